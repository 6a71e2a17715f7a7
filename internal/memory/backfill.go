package memory

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/flemzord/sandy/internal/recall"
	"github.com/flemzord/sandy/internal/scheduler"
	"github.com/flemzord/sandy/internal/vector"
)

// DefaultBackfillBatch is how many messages pass between progress logs.
const DefaultBackfillBatch = 50

// MissingSource lists archived messages whose vector key is not in have,
// oldest first.
type MissingSource interface {
	Missing(ctx context.Context, have map[string]struct{}, limit int) ([]recall.Message, error)
}

// KeySource lists the ids already embedded.
type KeySource interface {
	IDs(ctx context.Context) (map[string]struct{}, error)
}

// BackfillOptions tunes a backfill run.
type BackfillOptions struct {
	// Limit caps the number of messages considered; 0 means all.
	Limit int
	// Batch is the progress log interval.
	Batch  int
	DryRun bool
	// Workers bounds concurrent embed requests. They still queue on the
	// scheduler.
	Workers int
}

// BackfillStats summarises a run.
type BackfillStats struct {
	Pending int
	Added   int
	Skipped int
	Errors  int
}

// Backfill embeds archived messages that are missing from the vector
// store. Empty content and the placeholder are skipped. Individual embed
// failures are counted, not returned.
func (p *Pipeline) Backfill(ctx context.Context, src MissingSource, keys KeySource, opts BackfillOptions) (BackfillStats, error) {
	if opts.Batch <= 0 {
		opts.Batch = DefaultBackfillBatch
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}

	have, err := keys.IDs(ctx)
	if err != nil {
		return BackfillStats{}, fmt.Errorf("memory: backfill: list vector ids: %w", err)
	}
	missing, err := src.Missing(ctx, have, opts.Limit)
	if err != nil {
		return BackfillStats{}, fmt.Errorf("memory: backfill: list archive: %w", err)
	}

	stats := BackfillStats{Pending: len(missing)}
	p.Logger.Info("memory: backfill starting", "pending", stats.Pending, "embedded", len(have), "dry_run", opts.DryRun)
	if opts.DryRun {
		for _, m := range missing {
			if !Embeddable(m.Content) {
				stats.Skipped++
			}
		}
		return stats, nil
	}

	var added, skipped, failed, done atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Workers)
	for _, m := range missing {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			defer func() {
				if n := done.Add(1); n%int64(opts.Batch) == 0 {
					p.Logger.Info("memory: backfill progress", "done", n, "pending", stats.Pending)
				}
			}()
			if !Embeddable(m.Content) {
				skipped.Add(1)
				return nil
			}
			err := p.Embed(gctx, vector.Record{
				ID:         m.VectorKey(),
				ServerID:   m.ServerID,
				AuthorName: m.AuthorName,
				Timestamp:  m.Timestamp,
				Document:   m.Content,
			}, scheduler.Background)
			switch {
			case err == nil:
				added.Add(1)
			case errors.Is(err, scheduler.ErrBusy):
				skipped.Add(1)
			case gctx.Err() != nil:
				return gctx.Err()
			default:
				failed.Add(1)
				p.Logger.Warn("memory: backfill embed failed", "id", m.VectorKey(), "error", err)
			}
			return nil
		})
	}
	err = g.Wait()

	stats.Added = int(added.Load())
	stats.Skipped = int(skipped.Load())
	stats.Errors = int(failed.Load())
	p.Logger.Info("memory: backfill finished",
		"added", stats.Added,
		"skipped", stats.Skipped,
		"errors", stats.Errors,
	)
	if err != nil {
		return stats, fmt.Errorf("memory: backfill interrupted: %w", err)
	}
	return stats, nil
}
