// internal/store/store.go

// Package store holds the Postgres persistence layer for the dispatch
// pipeline: notification records, push tokens, templates and the durable
// presence timestamps. Users are read-only here; account management lives
// in the main backend and this service only consumes the directory.
package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
)

//go:embed schema.sql
var schemaSQL string

// EnsureSchema applies the idempotent schema. Run once at startup.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
