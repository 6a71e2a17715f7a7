package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/flemzord/sandy/internal/agent"
	"github.com/flemzord/sandy/internal/channel"
	"github.com/flemzord/sandy/internal/core"
	"github.com/flemzord/sandy/internal/cron"
	"github.com/flemzord/sandy/internal/gate"
	"github.com/flemzord/sandy/internal/history"
	"github.com/flemzord/sandy/internal/memory"
	"github.com/flemzord/sandy/internal/provider"
	"github.com/flemzord/sandy/internal/recall"
	"github.com/flemzord/sandy/internal/registry"
	"github.com/flemzord/sandy/internal/router"
	"github.com/flemzord/sandy/internal/scheduler"
	"github.com/flemzord/sandy/internal/telemetry"
	"github.com/flemzord/sandy/internal/tool"
	"github.com/flemzord/sandy/internal/tool/recalltool"
	"github.com/flemzord/sandy/internal/vector"
	"github.com/flemzord/sandy/modules/channel/discord"
	"github.com/flemzord/sandy/modules/provider/ollama"
	"github.com/flemzord/sandy/modules/recall/sqlite"
	"github.com/flemzord/sandy/pkg/message"
)

const seedTimeout = 30 * time.Second

// routerModule wraps a *router.Router to satisfy core.Module, core.Starter,
// and core.Stopper, so the router participates in the App lifecycle.
type routerModule struct {
	router *router.Router
	ctx    context.Context
}

func (m *routerModule) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{ID: "router"}
}

func (m *routerModule) Start() error {
	m.router.Start(m.ctx)
	return nil
}

func (m *routerModule) Stop(ctx context.Context) error {
	m.router.Stop(ctx)
	return nil
}

// cronModule puts the periodic jobs in the App lifecycle.
type cronModule struct {
	scheduler *cron.Scheduler
}

func (m *cronModule) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{ID: "cron"}
}

func (m *cronModule) Start() error {
	return m.scheduler.Start()
}

func (m *cronModule) Stop(ctx context.Context) error {
	return m.scheduler.Stop(ctx)
}

// storesModule closes the agent's local databases after the router has
// drained.
type storesModule struct {
	vector   *vector.Store
	registry *registry.Registry
}

func (m *storesModule) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{ID: "stores"}
}

func (m *storesModule) Start() error { return nil }

func (m *storesModule) Stop(_ context.Context) error {
	var errs []error
	if m.vector != nil {
		errs = append(errs, m.vector.Close())
	}
	if m.registry != nil {
		errs = append(errs, m.registry.Close())
	}
	return errors.Join(errs...)
}

// metricsModule serves /metrics on its own listener.
type metricsModule struct {
	bind    string
	metrics *telemetry.Metrics
	logger  *slog.Logger
	server  *http.Server
}

func (m *metricsModule) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{ID: "telemetry.metrics"}
}

func (m *metricsModule) Start() error {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Handle("/metrics", m.metrics.Handler())

	ln, err := net.Listen("tcp", m.bind)
	if err != nil {
		return fmt.Errorf("metrics: listen %s: %w", m.bind, err)
	}
	m.server = &http.Server{Handler: r, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		m.logger.Info("metrics listening", "addr", m.bind)
		if err := m.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			m.logger.Error("metrics serve error", "error", err)
		}
	}()
	return nil
}

func (m *metricsModule) Stop(ctx context.Context) error {
	if m.server == nil {
		return nil
	}
	return m.server.Shutdown(ctx)
}

// readyNotifier is implemented by channels that report their own account
// once connected.
type readyNotifier interface {
	OnReady(fn func(message.Speaker))
}

// archive is what the agent reads from and writes to.
type archive interface {
	memory.Archive
	recalltool.Lister
}

// resolveArchive prefers an in-process store over the HTTP API.
func resolveArchive(appCtx *core.AppContext, env *Env) archive {
	if store, ok := core.ServiceAs[*sqlite.Store](appCtx, sqlite.ServiceName); ok {
		env.Logger.Info("agent: using in-process archive")
		return store
	}
	env.Logger.Info("agent: using archive api", "url", env.Config.Recall.URL)
	return env.RecallClient()
}

// wireAgent builds the gate, the orchestrator and the memory pipeline
// around the loaded channel and backend, hooks the channel's inbox to a new
// router, and appends the router and its support modules to the app
// lifecycle. Must be called after LoadModules and before Start.
func wireAgent(app *core.App, env *Env) error {
	appCtx := app.Context()
	cfg := env.Config
	logger := env.Logger

	ch, ok := core.ServiceAs[channel.Channel](appCtx, discord.ServiceName)
	if !ok {
		logger.Info("agent: no channel configured, skipping agent wiring")
		return nil
	}
	backend, ok := core.ServiceAs[provider.Provider](appCtx, ollama.ServiceName)
	if !ok {
		return fmt.Errorf("agent: %w: the %s module is required when a channel is configured", provider.ErrNoProvider, ollama.ServiceName)
	}

	ctx := context.Background()
	stores := &storesModule{}
	reg, err := env.OpenRegistry(ctx)
	if err != nil {
		return fmt.Errorf("agent: %w", err)
	}
	stores.registry = reg

	var index memory.Index
	if !cfg.Memory.DisableVector {
		vec, err := env.OpenVector(ctx)
		if err != nil {
			_ = reg.Close()
			return fmt.Errorf("agent: %w", err)
		}
		stores.vector = vec
		index = vec
	}
	app.AppendModule("stores", stores)

	sched := scheduler.New(
		scheduler.WithMetrics(env.Metrics),
		scheduler.WithTracer(telemetry.Tracer("scheduler")),
		scheduler.WithLogger(logger),
		scheduler.WithBackgroundSkip(cfg.Scheduler.BackgroundSkipWhenBusy),
	)
	arch := resolveArchive(appCtx, env)

	tools := tool.NewRegistry()
	if err := recalltool.Register(tools, arch, recalltool.Options{
		Formatter: recalltool.Formatter{Names: reg, Location: env.Location},
		Logger:    logger,
	}); err != nil {
		return fmt.Errorf("agent: registering memory tools: %w", err)
	}
	dispatcher := tool.NewDispatcher(tools, logger)

	g := gate.New(backend, sched, gate.Config{
		Model:     cfg.Models.Gate,
		KeepAlive: cfg.Bot.KeepAlive,
	}, env.Metrics, logger)

	classifier := agent.NewClassifier(cfg.Bot.Classifier, backend, sched, cfg.Models.Gate, cfg.Bot.KeepAlive, logger)
	orch := agent.NewOrchestrator(backend, sched, dispatcher, classifier, agent.Config{
		Model:         cfg.Models.Brain,
		MaxToolRounds: cfg.Bot.MaxToolRounds,
		Temperature:   cfg.Bot.Temperature,
		NumPredict:    cfg.Bot.NumPredict,
		NumCtx:        cfg.Bot.NumCtx,
		KeepAlive:     cfg.Bot.KeepAlive,
		Location:      env.Location,
	}, logger)
	orch.SetMetrics(env.Metrics)

	embedder, _ := backend.(provider.Embedder)
	pipeline := memory.NewPipeline(memory.Deps{
		Backend:   backend,
		Embedder:  embedder,
		Scheduler: sched,
		Archive:   arch,
		Index:     index,
		Metrics:   env.Metrics,
		Logger:    logger,
	}, memoryConfig(env))

	cache := history.NewCache(cfg.History.Capacity)
	r, err := router.NewRouter(router.Config{
		WorkerCount: cfg.Bot.Workers,
		InboxSize:   cfg.Bot.InboxSize,
		Persona:     agent.Persona{Name: cfg.Bot.Name, Prompt: cfg.Bot.Persona},
		Tools:       true,
		RAG:         cfg.RAG.On() && index != nil,
		Cache:       cache,
		Channel:     ch,
		Gate:        g,
		Agent:       orch,
		Memory:      pipeline,
		Registry:    reg,
		Metrics:     env.Metrics,
		Logger:      logger,
	})
	if err != nil {
		return fmt.Errorf("creating router: %w", err)
	}
	ch.SetInbox(r.Submit)

	if cfg.History.Seed {
		if rn, ok := ch.(readyNotifier); ok {
			seeder := memory.NewSeeder(arch, cfg.History.SeedHours, cfg.History.SeedLimit, logger)
			rn.OnReady(func(self message.Speaker) {
				ctx, cancel := context.WithTimeout(context.Background(), seedTimeout)
				defer cancel()
				seeder.Seed(ctx, cache, self.ID)
			})
		}
	}

	app.AppendModule("router", &routerModule{
		router: r,
		ctx:    context.Background(),
	})

	if cfg.Cron.Enabled {
		cs, err := newCron(env, backend, pipeline, arch, stores)
		if err != nil {
			return err
		}
		app.AppendModule("cron", &cronModule{scheduler: cs})
	}

	logger.Info("agent: wired",
		"bot", cfg.Bot.Name,
		"brain", cfg.Models.Brain,
		"gate", cfg.Models.Gate,
		"rag", cfg.RAG.On() && index != nil,
	)
	return nil
}

func memoryConfig(env *Env) memory.Config {
	cfg := env.Config
	return memory.Config{
		TaggerModel:        cfg.Models.Tagger,
		SummarizerModel:    cfg.Models.Summarizer,
		EmbedModel:         cfg.Models.Embed,
		KeepAlive:          cfg.Bot.KeepAlive,
		SummarizeThreshold: cfg.Memory.SummarizeThreshold,
		DisableTagger:      cfg.Memory.DisableTagger,
		DisableSummarizer:  cfg.Memory.DisableSummarizer,
		MaxDistance:        cfg.Vector.MaxDistance,
		Results:            cfg.Vector.Results,
		Location:           env.Location,
	}
}

// newCron registers the periodic jobs the deployment can support. The
// backfill job needs an in-process archive, since the HTTP API cannot list
// missing ids.
func newCron(env *Env, backend provider.Provider, pipeline *memory.Pipeline, arch archive, stores *storesModule) (*cron.Scheduler, error) {
	cfg := env.Config.Cron
	logger := env.Logger
	cs := cron.NewScheduler(logger)

	if hc, ok := backend.(provider.HealthChecker); ok {
		if err := cs.RegisterJob(&cron.BackendHealthJob{
			Checker:      hc,
			Gauge:        env.Metrics,
			Logger:       logger,
			ScheduleExpr: cfg.BackendHealth,
		}); err != nil {
			return nil, err
		}
	}

	src, ok := arch.(memory.MissingSource)
	switch {
	case stores.vector == nil:
	case !ok:
		logger.Info("cron: vector backfill needs the recall.sqlite module, job disabled")
	default:
		if err := cs.RegisterJob(&cron.VectorBackfillJob{
			Backfiller:   pipeline,
			Source:       src,
			Keys:         stores.vector,
			Logger:       logger,
			ScheduleExpr: cfg.VectorBackfill,
		}); err != nil {
			return nil, err
		}
	}

	if err := cs.RegisterJob(&cron.RegistryVacuumJob{
		DB:           stores.registry,
		Logger:       logger,
		ScheduleExpr: cfg.RegistryVacuum,
	}); err != nil {
		return nil, err
	}
	return cs, nil
}

// Compile-time checks for the archive implementations.
var (
	_ archive = (*recall.Client)(nil)
	_ archive = (*sqlite.Store)(nil)
)
