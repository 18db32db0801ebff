package main

import (
	"github.com/bigfin/bigfind/internal/cli"
)

func main() {
	cli.Execute()
}
