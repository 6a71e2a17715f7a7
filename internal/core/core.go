package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"
)

const shutdownTimeout = 30 * time.Second

// App owns the modules of one process: the ones loaded from configuration
// followed by the components the composition root appends. Modules start
// in that order and stop in reverse.
type App struct {
	ctx     *AppContext
	modules []moduleInstance
	logger  *slog.Logger
}

type moduleInstance struct {
	id      ModuleID
	module  Module
	started bool
}

func NewApp(ctx *AppContext) *App {
	return &App{
		ctx:    ctx,
		logger: ctx.Logger.With("component", "core"),
	}
}

// LoadModules builds every module in ids. On failure the modules loaded so
// far are closed and the app is left empty.
func (a *App) LoadModules(ids []string) error {
	for _, id := range ids {
		mod, err := a.ctx.LoadModule(id)
		if err != nil {
			a.Close()
			return fmt.Errorf("loading module %s: %w", id, err)
		}
		a.modules = append(a.modules, moduleInstance{id: ModuleID(id), module: mod})
		a.logger.Info("module loaded", "module", id)
	}
	return nil
}

// AppendModule adds an already-built component to the lifecycle.
func (a *App) AppendModule(id ModuleID, mod Module) {
	a.modules = append(a.modules, moduleInstance{id: id, module: mod})
}

// Module returns the instance registered under id.
func (a *App) Module(id string) (Module, bool) {
	for _, mi := range a.modules {
		if string(mi.id) == id {
			return mi.module, true
		}
	}
	return nil, false
}

func (a *App) Context() *AppContext {
	return a.ctx
}

// Start runs each Starter in order. If one fails, the ones already started
// are stopped again before the error is returned.
func (a *App) Start() error {
	for i := range a.modules {
		mi := &a.modules[i]
		s, ok := mi.module.(Starter)
		if !ok {
			continue
		}
		a.logger.Info("starting module", "module", string(mi.id))
		if err := s.Start(); err != nil {
			a.logger.Error("module start failed", "module", string(mi.id), "error", err)
			a.shutdown(false)
			return fmt.Errorf("starting module %s: %w", mi.id, err)
		}
		mi.started = true
	}
	a.logger.Info("all modules started", "count", len(a.modules))
	return nil
}

// Stop stops the started modules in reverse order. Modules stay loaded and
// may be started again.
func (a *App) Stop() {
	a.shutdown(false)
}

// Close stops every module, started or not, then forgets them. It is for
// apps that were loaded but never run, such as a config check.
func (a *App) Close() {
	a.shutdown(true)
	a.modules = nil
}

// shutdown stops modules in reverse order within shutdownTimeout. With all
// set, modules that never started are stopped too.
func (a *App) shutdown(all bool) error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var errs []error
	for i := len(a.modules) - 1; i >= 0; i-- {
		mi := &a.modules[i]
		if !mi.started && !all {
			continue
		}
		mi.started = false
		s, ok := mi.module.(Stopper)
		if !ok {
			continue
		}
		a.logger.Debug("stopping module", "module", string(mi.id))
		if err := s.Stop(ctx); err != nil {
			a.logger.Error("module stop error", "module", string(mi.id), "error", err)
			errs = append(errs, fmt.Errorf("stopping module %s: %w", mi.id, err))
		}
	}
	return errors.Join(errs...)
}

// Run starts the app and blocks until SIGINT or SIGTERM.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return a.RunContext(ctx)
}

// RunContext starts the app, blocks until ctx is done, then stops it and
// reports any stop errors.
func (a *App) RunContext(ctx context.Context) error {
	if err := a.Start(); err != nil {
		return err
	}
	<-ctx.Done()
	a.logger.Info("shutting down", "cause", context.Cause(ctx))

	if err := a.shutdown(false); err != nil {
		return err
	}
	a.logger.Info("shutdown complete")
	return nil
}
