package router

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/flemzord/sandy/pkg/message"
)

// DefaultWorkerCount is the number of workers when no size is specified.
const DefaultWorkerCount = 4

// envelope is a queued turn and when it arrived.
type envelope struct {
	Turn     message.Turn
	Received time.Time
}

// WorkerPool runs a fixed number of workers over the inbox. A handler that
// panics loses its turn, not its worker.
type WorkerPool struct {
	size   int
	logger *slog.Logger
	wg     sync.WaitGroup
}

// NewWorkerPool creates a pool with the given size.
// If size <= 0, DefaultWorkerCount is used.
func NewWorkerPool(size int, logger *slog.Logger) *WorkerPool {
	if size <= 0 {
		size = DefaultWorkerCount
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &WorkerPool{size: size, logger: logger}
}

// Start launches the workers. They exit once inbox is closed and drained.
func (p *WorkerPool) Start(ctx context.Context, inbox <-chan envelope, handler func(context.Context, envelope)) {
	p.wg.Add(p.size)
	for range p.size {
		go func() {
			defer p.wg.Done()
			for env := range inbox {
				p.run(ctx, env, handler)
			}
		}()
	}
}

func (p *WorkerPool) run(ctx context.Context, env envelope, handler func(context.Context, envelope)) {
	defer func() {
		if v := recover(); v != nil {
			p.logger.Error("router: turn handler panicked",
				"room", env.Turn.Room.String(),
				"turn_id", env.Turn.ID,
				"panic", fmt.Sprint(v),
				"stack", string(debug.Stack()),
			)
		}
	}()
	handler(ctx, env)
}

// Wait blocks until all workers have exited.
func (p *WorkerPool) Wait() {
	p.wg.Wait()
}
