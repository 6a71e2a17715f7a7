// Package app provides the shared entry point for the sandy binary: it
// loads configuration, builds the module set, and wires the agent between
// the loaded channel and backend.
package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/flemzord/sandy/internal/config"
	"github.com/flemzord/sandy/internal/core"
	"github.com/flemzord/sandy/internal/telemetry"
)

const tracingShutdownTimeout = 5 * time.Second

// RunParams configures the main application loop.
type RunParams struct {
	// ConfigPath is an explicit path to the YAML configuration file.
	// If empty, config.ResolvePath searches the standard locations.
	ConfigPath string

	// Version, Commit, and Date are injected at build time via ldflags.
	Version string
	Commit  string
	Date    string

	// DataDir overrides the default persistent data directory.
	DataDir string
}

// secretHolder is implemented by modules that load credentials.
type secretHolder interface {
	Secrets() []string
}

// Instance is a built application whose modules are loaded but not yet
// started.
type Instance struct {
	App *core.App
	Env *Env

	shutdownTracing telemetry.ShutdownFunc
}

// New loads configuration, loads every configured module and wires the
// agent. The caller starts the App and must call Close afterwards.
func New(params RunParams) (*Instance, error) {
	env, err := Load(params.ConfigPath, params.DataDir)
	if err != nil {
		return nil, err
	}
	logger := env.Logger
	logger.Info("sandy starting",
		"version", params.Version,
		"commit", params.Commit,
		"config", env.ConfigPath,
		"data_dir", env.DataDir,
	)

	_, shutdownTracing, err := telemetry.SetupTracing(context.Background(), env.Config.Telemetry.Tracing, params.Version)
	if err != nil {
		return nil, err
	}
	inst := &Instance{Env: env, shutdownTracing: shutdownTracing}

	appCtx := core.NewAppContext(logger, env.DataDir)
	appCtx = appCtx.WithModuleConfigs(env.Config.Modules)
	appCtx.RegisterService(telemetry.ServiceName, env.Metrics)
	appCtx.RegisterService("config.path", env.ConfigPath)

	application := core.NewApp(appCtx)
	ids := config.Resolve(env.Config)
	if err := application.LoadModules(ids); err != nil {
		inst.Close()
		return nil, err
	}
	redactModuleSecrets(application, ids, env)

	// Wire the agent between LoadModules and Start so the channel has an
	// inbox before it connects.
	if err := wireAgent(application, env); err != nil {
		application.Close()
		inst.Close()
		return nil, err
	}

	if bind := env.Config.Telemetry.MetricsBind; bind != "" {
		application.AppendModule("telemetry.metrics", &metricsModule{
			bind:    bind,
			metrics: env.Metrics,
			logger:  logger,
		})
	}
	inst.App = application
	return inst, nil
}

// Close flushes tracing. Modules are stopped by App.Stop.
func (i *Instance) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), tracingShutdownTimeout)
	defer cancel()
	if err := i.shutdownTracing(ctx); err != nil {
		i.Env.Logger.Warn("tracing shutdown failed", "error", err)
	}
}

// Run builds the application, starts all modules, and blocks until a
// shutdown signal is received.
func Run(params RunParams) error {
	inst, err := New(params)
	if err != nil {
		return err
	}
	defer inst.Close()
	return inst.App.Run()
}

func redactModuleSecrets(app *core.App, ids []string, env *Env) {
	for _, id := range ids {
		mod, ok := app.Module(id)
		if !ok {
			continue
		}
		if sh, ok := mod.(secretHolder); ok {
			for _, s := range sh.Secrets() {
				env.Redactor.AddLiteral(s)
			}
		}
	}
}

// DefaultDataDir returns the default persistent data directory.
// Uses $XDG_DATA_HOME/sandy if set, otherwise ~/.local/share/sandy.
func DefaultDataDir() string {
	if dir, ok := os.LookupEnv("XDG_DATA_HOME"); ok && dir != "" {
		return filepath.Join(dir, "sandy")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", "sandy")
}

// CheckConfig loads every module named in the config at path without
// starting any, and returns their IDs.
func CheckConfig(path string) ([]string, error) {
	env, err := Load(path, "")
	if err != nil {
		return nil, err
	}
	appCtx := core.NewAppContext(env.Logger, env.DataDir).WithModuleConfigs(env.Config.Modules)
	appCtx.RegisterService(telemetry.ServiceName, env.Metrics)

	application := core.NewApp(appCtx)
	ids := config.Resolve(env.Config)
	if err := application.LoadModules(ids); err != nil {
		return nil, fmt.Errorf("loading modules: %w", err)
	}
	application.Close()
	return ids, nil
}
