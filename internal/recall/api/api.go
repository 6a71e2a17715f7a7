// Package api serves the message archive over HTTP. It is mounted as the
// "recall.api" module and resolves the store from the service registry.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/flemzord/sandy/internal/core"
	"github.com/flemzord/sandy/internal/recall"
	"github.com/flemzord/sandy/internal/telemetry"
)

// StoreService is the service key of the archive store.
const StoreService = "recall.store"

func init() {
	core.RegisterModule(&Server{})
}

// Store is the archive the API exposes.
type Store interface {
	Create(ctx context.Context, m recall.Message) (recall.Message, error)
	Get(ctx context.Context, id int64) (recall.Message, error)
	List(ctx context.Context, q recall.Query) ([]recall.Message, error)
	Delete(ctx context.Context, id int64) error
	Stats(ctx context.Context) (recall.Stats, error)
}

// Server is the archive HTTP module.
type Server struct {
	config    Config
	appCtx    *core.AppContext
	logger    *slog.Logger
	store     Store
	metrics   *telemetry.Metrics
	server    *http.Server
	startedAt time.Time
}

// New builds a server outside the module system.
func New(cfg Config, store Store, metrics *telemetry.Metrics, logger *slog.Logger) *Server {
	cfg.defaults()
	return &Server{config: cfg, store: store, metrics: metrics, logger: logger, startedAt: time.Now()}
}

// ModuleInfo implements core.Module.
func (s *Server) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "recall.api",
		New: func() core.Module { return &Server{} },
	}
}

// Configure implements core.Configurable.
func (s *Server) Configure(node *yaml.Node) error {
	if err := node.Decode(&s.config); err != nil {
		return fmt.Errorf("recall.api: decode config: %w", err)
	}
	s.config.defaults()
	return nil
}

// Provision implements core.Provisioner.
func (s *Server) Provision(ctx *core.AppContext) error {
	s.config.defaults()
	s.appCtx = ctx
	s.logger = ctx.Logger
	return nil
}

// Validate implements core.Validator.
func (s *Server) Validate() error {
	if _, err := net.ResolveTCPAddr("tcp", s.config.Bind); err != nil {
		return errors.New("recall.api: invalid bind address: " + s.config.Bind)
	}
	return nil
}

// Start implements core.Starter. It resolves the store and metrics from the
// service registry and starts listening.
func (s *Server) Start() error {
	if s.store == nil {
		store, ok := core.ServiceAs[Store](s.appCtx, StoreService)
		if !ok {
			return errors.New("recall.api: no archive store registered (enable recall.sqlite)")
		}
		s.store = store
	}
	if m, ok := core.ServiceAs[*telemetry.Metrics](s.appCtx, telemetry.ServiceName); ok {
		s.metrics = m
	}
	return s.ListenAndServe(context.Background())
}

// ListenAndServe binds the configured address and serves in the background.
func (s *Server) ListenAndServe(ctx context.Context) error {
	s.startedAt = time.Now()
	s.server = &http.Server{
		Addr:         s.config.Bind,
		Handler:      s.Handler(),
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.config.Bind)
	if err != nil {
		return errors.New("recall.api: listen failed: " + err.Error())
	}

	go func() {
		s.logger.Info("recall api listening", "addr", s.config.Bind)
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("recall api serve error", "error", err)
		}
	}()
	return nil
}

// Stop implements core.Stopper.
func (s *Server) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()

	s.logger.Info("recall api shutting down")
	return s.server.Shutdown(shutdownCtx)
}
