package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"offlinepos/client/internal/store"
)

// migrations are applied in order; index i upgrades user_version i to i+1.
// Every statement must be safe to run against a database that already has
// some of the objects it creates.
var migrations = [][]string{
	{
		`CREATE TABLE IF NOT EXISTS customers (
			customer_id INTEGER PRIMARY KEY,
			name        TEXT NOT NULL DEFAULT '',
			mobile      TEXT NOT NULL DEFAULT '',
			email       TEXT NOT NULL DEFAULT '',
			address     TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS products (
			product_id INTEGER PRIMARY KEY,
			name       TEXT NOT NULL DEFAULT '',
			code       TEXT NOT NULL DEFAULT '',
			category   TEXT NOT NULL DEFAULT '',
			stock      TEXT NOT NULL DEFAULT '0',
			sale_price TEXT NOT NULL DEFAULT '0'
		)`,
		`CREATE TABLE IF NOT EXISTS online_sales (
			sale_id       INTEGER PRIMARY KEY,
			invoice_no    TEXT NOT NULL DEFAULT '',
			sale_date     TEXT NOT NULL DEFAULT '',
			customer_name TEXT NOT NULL DEFAULT '',
			total         TEXT NOT NULL DEFAULT '0',
			paid          TEXT NOT NULL DEFAULT '0',
			due           TEXT NOT NULL DEFAULT '0'
		)`,
		`CREATE TABLE IF NOT EXISTS sales (
			id              INTEGER PRIMARY KEY AUTOINCREMENT,
			idempotency_key TEXT NOT NULL,
			sale_json       TEXT NOT NULL,
			products_json   TEXT NOT NULL,
			created_at      TEXT NOT NULL
		)`,
	},
	{
		`CREATE TABLE IF NOT EXISTS accounts (
			kind      TEXT NOT NULL,
			source_id INTEGER NOT NULL,
			label     TEXT NOT NULL DEFAULT '',
			PRIMARY KEY (kind, source_id)
		)`,
	},
	{
		`CREATE UNIQUE INDEX IF NOT EXISTS sales_idempotency_key ON sales (idempotency_key)`,
		`CREATE INDEX IF NOT EXISTS accounts_kind ON accounts (kind)`,
	},
}

// SchemaVersion is the user_version this build migrates to.
func SchemaVersion() int {
	return len(migrations)
}

func migrate(ctx context.Context, db *sql.DB) error {
	var current int
	if err := db.QueryRowContext(ctx, `PRAGMA user_version`).Scan(&current); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if current > len(migrations) {
		return fmt.Errorf("%w: have %d, support %d", store.ErrSchemaTooNew, current, len(migrations))
	}

	for version := current; version < len(migrations); version++ {
		if err := applyMigration(ctx, db, version); err != nil {
			return fmt.Errorf("migrate to version %d: %w", version+1, err)
		}
	}
	return nil
}

func applyMigration(ctx context.Context, db *sql.DB, version int) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, stmt := range migrations[version] {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	// PRAGMA does not accept bound parameters.
	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`PRAGMA user_version = %d`, version+1)); err != nil {
		return err
	}
	return tx.Commit()
}
