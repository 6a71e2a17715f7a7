// Package sqlite implements the persistent message archive on
// modernc.org/sqlite (pure Go, no CGO) with an FTS5 porter-stemmed index
// over content and summary.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/flemzord/sandy/internal/core"
	"github.com/flemzord/sandy/internal/sqlitedb"
)

// ServiceName is the service key the archive store registers under.
const ServiceName = "recall.store"

func init() {
	core.RegisterModule(&Module{})
}

// Compile-time interface guards.
var (
	_ core.Configurable = (*Module)(nil)
	_ core.Provisioner  = (*Module)(nil)
	_ core.Validator    = (*Module)(nil)
	_ core.Stopper      = (*Module)(nil)
)

// Module provides the archive Store as the "recall.store" service.
type Module struct {
	config Config
	logger *slog.Logger
	store  *Store
}

// ModuleInfo implements core.Module.
func (m *Module) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "recall.sqlite",
		New: func() core.Module { return &Module{} },
	}
}

// Configure implements core.Configurable.
func (m *Module) Configure(node *yaml.Node) error {
	if err := node.Decode(&m.config); err != nil {
		return fmt.Errorf("recall.sqlite: decode config: %w", err)
	}
	return nil
}

// Provision implements core.Provisioner.
func (m *Module) Provision(ctx *core.AppContext) error {
	m.logger = ctx.Logger

	if m.config.Path == "" {
		m.config.Path = filepath.Join(ctx.DataDir, defaultDBFile)
	}

	store, err := Open(context.Background(), m.config.Path, m.config.Options)
	if err != nil {
		return err
	}
	m.store = store
	ctx.RegisterService(ServiceName, store)

	m.logger.Info("recall store provisioned",
		"path", m.config.Path,
		"wal", m.config.WALEnabled(),
	)
	return nil
}

// Validate implements core.Validator.
func (m *Module) Validate() error {
	if err := m.config.Options.Validate(); err != nil {
		return err
	}
	if err := m.store.db.PingContext(context.Background()); err != nil {
		return fmt.Errorf("recall.sqlite: ping failed: %w", err)
	}

	var n int
	if err := m.store.db.QueryRowContext(context.Background(), "SELECT count(*) FROM chat_messages_fts").Scan(&n); err != nil {
		return fmt.Errorf("recall.sqlite: FTS5 not available: %w", err)
	}
	return nil
}

// Stop implements core.Stopper.
func (m *Module) Stop(_ context.Context) error {
	m.logger.Info("recall store stopping")
	if m.store != nil {
		return m.store.Close()
	}
	return nil
}

// Store returns the provisioned archive.
func (m *Module) Store() *Store {
	return m.store
}

// Open opens the archive at path outside the module system (CLI tools).
func Open(ctx context.Context, path string, opts sqlitedb.Options) (*Store, error) {
	db, err := sqlitedb.Open(ctx, path, opts, schema)
	if err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

// Store is the SQLite-backed message archive. Safe for concurrent use.
type Store struct {
	db *sql.DB
}

// Close releases the database.
func (s *Store) Close() error {
	return s.db.Close()
}
