// Package sqlitedb opens the pure-Go SQLite databases used by the archive,
// the registry and the vector store, and applies their versioned schemas.
package sqlitedb

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // SQLite driver registration
)

// DefaultBusyTimeout is the milliseconds to wait on a busy lock.
const DefaultBusyTimeout = 5000

// Options controls how a database is opened.
type Options struct {
	// WAL enables WAL journal mode for concurrent reads. Defaults to true.
	WAL *bool `yaml:"wal"`

	// BusyTimeout is the milliseconds to wait on a busy lock. Defaults to 5000.
	BusyTimeout int `yaml:"busy_timeout"`
}

// WALEnabled reports whether WAL mode is requested.
func (o Options) WALEnabled() bool {
	return o.WAL == nil || *o.WAL
}

// Validate checks the options.
func (o Options) Validate() error {
	if o.BusyTimeout < 0 {
		return fmt.Errorf("sqlite: busy_timeout must be non-negative, got %d", o.BusyTimeout)
	}
	return nil
}

// Open opens (creating if needed) the database at path, applies the
// PRAGMAs and migrates it to schema. The pool is limited to a single
// connection since SQLite serialises writes.
func Open(ctx context.Context, path string, opts Options, schema Schema) (*sql.DB, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if opts.BusyTimeout == 0 {
		opts.BusyTimeout = DefaultBusyTimeout
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("sqlite: create directory %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	if opts.WALEnabled() {
		if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("sqlite: enable WAL: %w", err)
		}
	}

	if _, err := db.ExecContext(ctx, fmt.Sprintf("PRAGMA busy_timeout=%d", opts.BusyTimeout)); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: set busy_timeout: %w", err)
	}

	if err := schema.Migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}
