// Package cli holds the cobra command tree for the bigfind daemon.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/bigfin/bigfind/internal/config"
)

var (
	// Global flags
	configFile string
	standalone bool
	debug      bool
	verbose    bool
	quiet      bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "bigfind",
	Short: "bigfind - BigFin lending platform core daemon",
	Long: `bigfind is the BigFin platform core: a tenant-scoped double-entry
ledger, payment routing with rail fallback, transfer orchestration with a
funds-availability state machine, and daily reconciliation against the
payment provider. All money amounts are integer cents.`,
	Version: "0.1.0-dev",
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&configFile, "conf", "", "configuration file path")
	rootCmd.PersistentFlags().BoolVar(&standalone, "standalone", false, "run fully in-process: in-memory storage and payment provider")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable normally suppressed debug logging")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose logging")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress output to console after startup")
}

// loadConfig loads the configuration and applies the global flag overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return nil, err
	}
	if standalone {
		cfg.Standalone = true
	}
	return cfg, nil
}
