// Package scheduler serializes access to the single inference backend.
//
// At most one request holds the gate at any time. Waiters are queued as
// explicit tickets and granted strictly in arrival order: on release the
// gate is handed directly to the head of the queue, so no newcomer can
// overtake a waiter. Priority does not reorder the queue; it only decides
// whether a caller may be turned away instead of waiting (see
// WithBackgroundSkip).
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/flemzord/sandy/internal/telemetry"
)

// Scheduler is a FIFO mutual-exclusion gate in front of the backend.
type Scheduler struct {
	mu      sync.Mutex
	held    bool
	waiters []*ticket

	skipBackground bool
	metrics        *telemetry.Metrics
	tracer         trace.Tracer
	logger         *slog.Logger

	served  atomic.Uint64
	skipped atomic.Uint64
}

// ticket is one queued waiter. ready is closed when the gate is handed over.
type ticket struct {
	role  Role
	ready chan struct{}
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithMetrics records wait times, queue depth and skips.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(s *Scheduler) { s.metrics = m }
}

// WithTracer wraps every Do call in a span.
func WithTracer(t trace.Tracer) Option {
	return func(s *Scheduler) {
		if t != nil {
			s.tracer = t
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithBackgroundSkip makes Do drop Background requests instead of queueing
// them while the gate is held or contended.
func WithBackgroundSkip(skip bool) Option {
	return func(s *Scheduler) { s.skipBackground = skip }
}

// New creates an idle Scheduler.
func New(opts ...Option) *Scheduler {
	s := &Scheduler{
		tracer: noop.NewTracerProvider().Tracer(""),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Acquire waits for the gate in FIFO order and returns an idempotent
// release function. If ctx ends first the ticket is withdrawn and
// ctx.Err() is returned; a ticket that was granted at the same instant is
// passed on to the next waiter.
func (s *Scheduler) Acquire(ctx context.Context, role Role) (release func(), err error) {
	start := time.Now()

	s.mu.Lock()
	if !s.held && len(s.waiters) == 0 {
		s.held = true
		s.mu.Unlock()
		s.granted(role, start)
		return s.releaser(), nil
	}
	t := &ticket{role: role, ready: make(chan struct{})}
	s.waiters = append(s.waiters, t)
	s.metrics.SetQueueDepth(len(s.waiters))
	s.mu.Unlock()

	select {
	case <-t.ready:
		s.granted(role, start)
		return s.releaser(), nil
	case <-ctx.Done():
		s.mu.Lock()
		if s.withdraw(t) {
			s.mu.Unlock()
			return nil, ctx.Err()
		}
		s.mu.Unlock()
		// The gate was handed to us while we were giving up.
		s.releaser()()
		return nil, ctx.Err()
	}
}

// TryAcquire takes the gate only if it is free and nobody is queued.
func (s *Scheduler) TryAcquire(role Role) (release func(), ok bool) {
	s.mu.Lock()
	if s.held || len(s.waiters) > 0 {
		s.mu.Unlock()
		return nil, false
	}
	s.held = true
	s.mu.Unlock()
	s.granted(role, time.Now())
	return s.releaser(), true
}

// Do runs fn while holding the gate. Interactive requests always wait.
// Background requests wait too, unless background skipping is enabled and
// the gate is busy, in which case fn is not run and ErrBusy is returned.
func (s *Scheduler) Do(ctx context.Context, role Role, prio Priority, fn func(context.Context) error) error {
	ctx, span := s.tracer.Start(ctx, "scheduler."+string(role),
		trace.WithAttributes(
			attribute.String("scheduler.role", string(role)),
			attribute.String("scheduler.priority", prio.String()),
		))
	defer span.End()

	var release func()
	if prio == Background && s.skipBackground {
		var ok bool
		release, ok = s.TryAcquire(role)
		if !ok {
			s.skipped.Add(1)
			s.metrics.IncSkipped(string(role))
			s.logger.Debug("scheduler: background request skipped", "role", role)
			span.SetAttributes(attribute.Bool("scheduler.skipped", true))
			return ErrBusy
		}
	} else {
		var err error
		release, err = s.Acquire(ctx, role)
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
			return err
		}
	}
	defer release()

	if err := fn(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

// Stats returns a snapshot of the gate state.
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{
		InFlight: s.held,
		Waiting:  len(s.waiters),
		Served:   s.served.Load(),
		Skipped:  s.skipped.Load(),
	}
}

func (s *Scheduler) granted(role Role, since time.Time) {
	s.served.Add(1)
	s.metrics.ObserveSchedulerWait(string(role), time.Since(since))
}

// releaser returns a release function that hands the gate to the head of
// the queue, or frees it when nobody waits. Calling it twice is a no-op.
func (s *Scheduler) releaser() func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if len(s.waiters) == 0 {
				s.held = false
				return
			}
			next := s.waiters[0]
			s.waiters[0] = nil
			s.waiters = s.waiters[1:]
			s.metrics.SetQueueDepth(len(s.waiters))
			close(next.ready)
		})
	}
}

// withdraw removes t from the queue. It reports false when t was already
// granted. Callers must hold s.mu.
func (s *Scheduler) withdraw(t *ticket) bool {
	for i, w := range s.waiters {
		if w == t {
			s.waiters = append(s.waiters[:i], s.waiters[i+1:]...)
			s.metrics.SetQueueDepth(len(s.waiters))
			return true
		}
	}
	return false
}
