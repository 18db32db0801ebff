package sqlstore

import (
	"context"
	"database/sql"
	"strconv"
	"strings"
)

// executor allows repositories to run against *sql.DB and *sql.Tx alike.
type executor interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// rebind converts ? placeholders to $N for postgres. SQLite takes ? as-is.
func rebind(driver, query string) string {
	if driver != "postgres" {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// forUpdate appends a row-lock clause on postgres. SQLite serialises the
// whole database per write transaction, so no clause is needed.
func forUpdate(driver, query string) string {
	if driver != "postgres" {
		return query
	}
	return query + " FOR UPDATE"
}
