// Package cron runs the agent's periodic maintenance: backend health
// probes, the nightly vector backfill and the registry vacuum.
package cron

import "context"

// Job defines a periodic background task.
type Job interface {
	// Name returns a unique identifier for this job (used for logging and dedup).
	Name() string

	// Schedule returns a 5-field cron expression or a descriptor such as
	// "@every 5m" or "@weekly".
	Schedule() string

	// Run executes the job. Implementations should check ctx.Done() for
	// graceful cancellation.
	Run(ctx context.Context) error
}
