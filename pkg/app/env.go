package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/flemzord/sandy/internal/config"
	"github.com/flemzord/sandy/internal/logging"
	"github.com/flemzord/sandy/internal/recall"
	"github.com/flemzord/sandy/internal/registry"
	"github.com/flemzord/sandy/internal/sqlitedb"
	"github.com/flemzord/sandy/internal/telemetry"
	"github.com/flemzord/sandy/internal/vector"
	"github.com/flemzord/sandy/modules/provider/ollama"
	"github.com/flemzord/sandy/modules/recall/sqlite"
)

// Env is a loaded and validated configuration together with the process
// logger and metrics. Every subcommand starts from one.
type Env struct {
	Config     *config.Config
	ConfigPath string
	DataDir    string
	Location   *time.Location
	Logger     *slog.Logger
	Redactor   *logging.Redactor
	Metrics    *telemetry.Metrics
}

// Load resolves, parses and validates the configuration, then builds the
// logger it asks for. Logs go to stderr so stdout stays free for the MCP
// transport.
func Load(configPath, dataDir string) (*Env, error) {
	path, err := config.ResolvePath(configPath)
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}

	loc, err := time.LoadLocation(cfg.Bot.Timezone)
	if err != nil {
		return nil, fmt.Errorf("config: bot.timezone: %w", err)
	}

	logger, redactor, err := logging.New(os.Stderr, logging.Options{
		Level:   cfg.Log.Level,
		Format:  cfg.Log.Format,
		Secrets: []string{cfg.Recall.Token},
	})
	if err != nil {
		return nil, err
	}

	if dataDir == "" {
		dataDir = DefaultDataDir()
	}
	if err := os.MkdirAll(dataDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating data dir: %w", err)
	}

	return &Env{
		Config:     cfg,
		ConfigPath: path,
		DataDir:    dataDir,
		Location:   loc,
		Logger:     logger,
		Redactor:   redactor,
		Metrics:    telemetry.NewMetrics(),
	}, nil
}

// Path resolves p against the data directory unless it is absolute.
func (e *Env) Path(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(e.DataDir, p)
}

// RecallClient returns a client for the configured archive API.
func (e *Env) RecallClient() *recall.Client {
	rc := e.Config.Recall
	return recall.NewClient(rc.URL,
		recall.WithTimeouts(rc.CreateTimeout, rc.ListTimeout),
		recall.WithToken(rc.Token),
		recall.WithLogger(e.Logger),
	)
}

// Backend builds the ollama provider from its module section, for commands
// that run without the module lifecycle.
func (e *Env) Backend() (*ollama.Provider, error) {
	var cfg ollama.Config
	if node, ok := e.Config.Modules[ollama.ServiceName]; ok {
		if err := node.Decode(&cfg); err != nil {
			return nil, fmt.Errorf("%s: decode config: %w", ollama.ServiceName, err)
		}
	}
	return ollama.New(cfg, e.Logger)
}

// OpenArchive opens the local archive database. An empty path falls back
// to the recall.sqlite module section, then to the data directory.
func (e *Env) OpenArchive(ctx context.Context, path string) (*sqlite.Store, error) {
	var cfg sqlite.Config
	if node, ok := e.Config.Modules["recall.sqlite"]; ok {
		if err := node.Decode(&cfg); err != nil {
			return nil, fmt.Errorf("recall.sqlite: decode config: %w", err)
		}
	}
	if path == "" {
		path = cfg.Path
	}
	if path == "" {
		path = "recall.db"
	}
	return sqlite.Open(ctx, e.Path(path), cfg.Options)
}

// OpenVector opens the embedding index.
func (e *Env) OpenVector(ctx context.Context) (*vector.Store, error) {
	return vector.Open(ctx, e.Path(e.Config.Vector.Path), sqlitedb.Options{})
}

// OpenRegistry opens the name lookup cache.
func (e *Env) OpenRegistry(ctx context.Context) (*registry.Registry, error) {
	return registry.Open(ctx, e.Path(e.Config.Registry.Path), sqlitedb.Options{}, e.Logger)
}
