package router

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/flemzord/sandy/internal/agent"
	"github.com/flemzord/sandy/internal/channel"
	"github.com/flemzord/sandy/internal/gate"
	"github.com/flemzord/sandy/internal/history"
	"github.com/flemzord/sandy/internal/memory"
	"github.com/flemzord/sandy/internal/telemetry"
	"github.com/flemzord/sandy/pkg/message"
)

const (
	defaultInboxSize       = 256
	defaultRegistryTimeout = 10 * time.Second
)

// Gate decides whether the agent answers.
type Gate interface {
	Decide(ctx context.Context, narrative, botName string) gate.Decision
}

// Generator produces replies.
type Generator interface {
	Generate(ctx context.Context, req agent.Request) (agent.Response, error)
}

// Memory writes turns to long-term memory and recalls from it.
type Memory interface {
	Process(ctx context.Context, t message.Turn) memory.Result
	Recall(ctx context.Context, text string, serverID int64) string
}

// Registry records first sightings of servers, channels and users.
type Registry interface {
	EnsureSeen(ctx context.Context, t message.Turn) error
}

// Config holds the configuration for a Router.
type Config struct {
	WorkerCount int
	InboxSize   int

	Persona agent.Persona
	// Tools attaches the memory tools to generation.
	Tools bool
	// RAG injects semantic recall into generation.
	RAG bool
	// GateMessages caps the narrative shown to the gate; 0 shows the whole
	// cached history.
	GateMessages   int
	TypingInterval time.Duration

	Cache    *history.Cache
	Channel  channel.Channel
	Gate     Gate
	Agent    Generator
	Memory   Memory
	Registry Registry
	Metrics  *telemetry.Metrics
	Logger   *slog.Logger

	// Now overrides the clock, for tests.
	Now func() time.Time
}

// withDefaults returns a copy of the config with zero values replaced by defaults.
func (c Config) withDefaults() Config {
	if c.WorkerCount <= 0 {
		c.WorkerCount = DefaultWorkerCount
	}
	if c.InboxSize <= 0 {
		c.InboxSize = defaultInboxSize
	}
	if c.TypingInterval <= 0 {
		c.TypingInterval = channel.DefaultTypingInterval
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

func (c Config) validate() error {
	switch {
	case c.Cache == nil:
		return fmt.Errorf("%w: history cache", ErrMissingDependency)
	case c.Channel == nil:
		return fmt.Errorf("%w: channel", ErrMissingDependency)
	case c.Gate == nil:
		return fmt.Errorf("%w: gate", ErrMissingDependency)
	case c.Agent == nil:
		return fmt.Errorf("%w: agent", ErrMissingDependency)
	}
	return nil
}

// Router receives turns from the channel, answers through the gate and
// the agent, and writes every turn back to memory.
type Router struct {
	config   Config
	inbox    chan envelope
	inboxMu  sync.RWMutex
	laneLock *LaneLock
	pool     *WorkerPool
	cancel   context.CancelFunc
	stopOnce sync.Once
	stopped  atomic.Bool
	logger   *slog.Logger

	// Write-back outlives the handler context and is drained on Stop.
	bgCtx    context.Context
	bgCancel context.CancelFunc
	bg       sync.WaitGroup
}

// NewRouter creates a new Router with the given configuration.
func NewRouter(cfg Config) (*Router, error) {
	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	bgCtx, bgCancel := context.WithCancel(context.Background())
	return &Router{
		config:   cfg,
		inbox:    make(chan envelope, cfg.InboxSize),
		laneLock: NewLaneLock(),
		pool:     NewWorkerPool(cfg.WorkerCount, cfg.Logger),
		logger:   cfg.Logger,
		bgCtx:    bgCtx,
		bgCancel: bgCancel,
	}, nil
}

// Start launches the worker pool and begins handling turns.
func (r *Router) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	r.inboxMu.Lock()
	if r.stopped.Load() {
		r.inboxMu.Unlock()
		cancel()
		r.logger.Warn("router: start ignored, router already stopped")
		return
	}
	r.cancel = cancel
	r.inboxMu.Unlock()

	r.pool.Start(ctx, r.inbox, func(ctx context.Context, env envelope) {
		r.handle(ctx, env)
	})
	r.logger.Info("router: started", "workers", r.config.WorkerCount, "inbox_size", r.config.InboxSize)
}

// Submit records a turn and queues it for handling. It never blocks.
//
// The cache append happens synchronously so room order matches arrival
// order. If the inbox is full the turn is still written back and
// ErrInboxFull is returned.
func (r *Router) Submit(turn message.Turn) error {
	r.inboxMu.RLock()
	defer r.inboxMu.RUnlock()

	if r.stopped.Load() {
		return ErrRouterStopped
	}

	r.config.Cache.Append(turn)
	r.config.Metrics.RecordTurn(turn.Author.Bot)
	r.ensureSeen(turn)

	select {
	case r.inbox <- envelope{Turn: turn, Received: r.config.Now()}:
		return nil
	default:
		r.logger.Warn("router: inbox full, turn only written back",
			"room", turn.Room.String(),
			"turn_id", turn.ID,
		)
		r.writeBack(turn)
		return ErrInboxFull
	}
}

// Stop closes the inbox, waits for in-flight turns, then drains pending
// write-backs until ctx ends.
func (r *Router) Stop(ctx context.Context) {
	r.stopOnce.Do(func() {
		r.logger.Info("router: stopping")

		r.inboxMu.Lock()
		r.stopped.Store(true)
		close(r.inbox)
		cancel := r.cancel
		r.inboxMu.Unlock()

		// Cancel before waiting so in-flight handlers can terminate.
		if cancel != nil {
			cancel()
		}
		r.pool.Wait()

		drained := make(chan struct{})
		go func() {
			r.bg.Wait()
			close(drained)
		}()
		select {
		case <-drained:
		case <-ctx.Done():
			r.logger.Warn("router: write-back drain interrupted", "error", ctx.Err())
			r.bgCancel()
			<-drained
		}
		r.bgCancel()
		r.logger.Info("router: stopped")
	})
}

// goBackground runs fn on the tracked write-back group. A zero timeout
// leaves fn bounded only by shutdown.
func (r *Router) goBackground(timeout time.Duration, fn func(ctx context.Context)) {
	r.bg.Add(1)
	go func() {
		defer r.bg.Done()
		ctx, cancel := r.bgCtx, context.CancelFunc(func() {})
		if timeout > 0 {
			ctx, cancel = context.WithTimeout(r.bgCtx, timeout)
		}
		defer cancel()
		fn(ctx)
	}()
}

func (r *Router) ensureSeen(turn message.Turn) {
	if r.config.Registry == nil || turn.IsDirectMessage() {
		return
	}
	r.goBackground(defaultRegistryTimeout, func(ctx context.Context) {
		if err := r.config.Registry.EnsureSeen(ctx, turn); err != nil {
			r.logger.Warn("router: registry update failed", "room", turn.Room.String(), "error", err)
		}
	})
}

// writeBack hands the turn to the memory pipeline without waiting. The
// pipeline may queue behind interactive work for as long as it takes, so no
// deadline is set here; its archive step carries its own.
func (r *Router) writeBack(turn message.Turn) {
	if r.config.Memory == nil {
		return
	}
	r.goBackground(0, func(ctx context.Context) {
		r.config.Memory.Process(ctx, turn)
	})
}
