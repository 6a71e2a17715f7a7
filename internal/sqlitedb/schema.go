package sqlitedb

import (
	"context"
	"database/sql"
	"fmt"
)

// Schema is a versioned list of DDL statements. Every statement must be
// idempotent (IF NOT EXISTS) so re-application is harmless.
type Schema struct {
	// Name prefixes the version table, so several schemas can share a file.
	Name       string
	Version    int
	Statements []string
}

func (s Schema) versionTable() string {
	if s.Name == "" {
		return "schema_version"
	}
	return s.Name + "_schema_version"
}

// Migrate creates or updates the schema to its latest version.
func (s Schema) Migrate(ctx context.Context, db *sql.DB) error {
	table := s.versionTable()

	if _, err := db.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS "+table+" (version INTEGER PRIMARY KEY)"); err != nil {
		return fmt.Errorf("sqlite: create %s: %w", table, err)
	}

	var current int
	if err := db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM "+table).Scan(&current); err != nil {
		return fmt.Errorf("sqlite: read schema version: %w", err)
	}
	if current >= s.Version {
		return nil
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin migration: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, stmt := range s.Statements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("sqlite: migrate: %w\nstatement: %s", err, stmt)
		}
	}
	if _, err := tx.ExecContext(ctx, "INSERT OR REPLACE INTO "+table+" (version) VALUES (?)", s.Version); err != nil {
		return fmt.Errorf("sqlite: record schema version: %w", err)
	}
	return tx.Commit()
}
