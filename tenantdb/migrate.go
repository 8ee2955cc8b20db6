package tenantdb

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
)

// Schema is the idempotent DDL for every table the module reads or writes,
// including the row-level security policies and the restricted role.
//
//go:embed schema.sql
var Schema string

// Migrate applies Schema in one transaction.
func Migrate(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return tx.Commit()
}
