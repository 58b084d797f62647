// Package store persists participants, trade groups and matches in SQLite.
//
// Functions take the database handle explicitly. Lookups of a single row
// return (nil, nil) when the row does not exist.
package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// ErrOpenMatchExists is returned when a pending or accepted match between
// the same two participants already exists.
var ErrOpenMatchExists = errors.New("an open match with this participant already exists")

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("?,", n-1) + "?"
}
