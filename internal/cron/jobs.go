package cron

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/flemzord/sandy/internal/memory"
	"github.com/flemzord/sandy/internal/provider"
)

// Default schedules.
const (
	DefaultBackendHealthSchedule  = "@every 5m"
	DefaultVectorBackfillSchedule = "0 4 * * *"
	DefaultRegistryVacuumSchedule = "@weekly"
)

const healthTimeout = 10 * time.Second

// BackendGauge records backend reachability. *telemetry.Metrics satisfies it.
type BackendGauge interface {
	SetBackendUp(up bool)
}

// BackendHealthJob probes the inference backend and records whether it is up.
type BackendHealthJob struct {
	Checker      provider.HealthChecker
	Gauge        BackendGauge
	Logger       *slog.Logger
	ScheduleExpr string // empty = DefaultBackendHealthSchedule

	down atomic.Bool
}

// Compile-time interface check.
var _ Job = (*BackendHealthJob)(nil)

// Name implements Job.
func (j *BackendHealthJob) Name() string { return "backend_health" }

// Schedule implements Job.
func (j *BackendHealthJob) Schedule() string {
	if j.ScheduleExpr != "" {
		return j.ScheduleExpr
	}
	return DefaultBackendHealthSchedule
}

// Run probes the backend. A failed probe is logged on the transition to
// down and returned so the scheduler records it.
func (j *BackendHealthJob) Run(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()

	err := j.Checker.HealthCheck(ctx)
	if j.Gauge != nil {
		j.Gauge.SetBackendUp(err == nil)
	}
	if err != nil {
		if !j.down.Swap(true) {
			j.Logger.Warn("cron: inference backend unreachable", "error", err)
		}
		return fmt.Errorf("cron: backend health: %w", err)
	}
	if j.down.Swap(false) {
		j.Logger.Info("cron: inference backend recovered")
	}
	return nil
}

// Backfiller embeds archived messages missing from the vector store.
// *memory.Pipeline satisfies it.
type Backfiller interface {
	Backfill(ctx context.Context, src memory.MissingSource, keys memory.KeySource, opts memory.BackfillOptions) (memory.BackfillStats, error)
}

// VectorBackfillJob runs an unlimited backfill.
type VectorBackfillJob struct {
	Backfiller   Backfiller
	Source       memory.MissingSource
	Keys         memory.KeySource
	Logger       *slog.Logger
	ScheduleExpr string // empty = DefaultVectorBackfillSchedule
}

// Compile-time interface check.
var _ Job = (*VectorBackfillJob)(nil)

// Name implements Job.
func (j *VectorBackfillJob) Name() string { return "vector_backfill" }

// Schedule implements Job.
func (j *VectorBackfillJob) Schedule() string {
	if j.ScheduleExpr != "" {
		return j.ScheduleExpr
	}
	return DefaultVectorBackfillSchedule
}

// Run embeds everything still missing.
func (j *VectorBackfillJob) Run(ctx context.Context) error {
	stats, err := j.Backfiller.Backfill(ctx, j.Source, j.Keys, memory.BackfillOptions{})
	if err != nil {
		return fmt.Errorf("cron: vector backfill: %w", err)
	}
	if stats.Added > 0 || stats.Errors > 0 {
		j.Logger.Info("cron: vector backfill done", "added", stats.Added, "errors", stats.Errors)
	}
	return nil
}

// Vacuumer compacts a database. *registry.Registry satisfies it.
type Vacuumer interface {
	Vacuum(ctx context.Context) error
}

// RegistryVacuumJob compacts the registry database.
type RegistryVacuumJob struct {
	DB           Vacuumer
	Logger       *slog.Logger
	ScheduleExpr string // empty = DefaultRegistryVacuumSchedule
}

// Compile-time interface check.
var _ Job = (*RegistryVacuumJob)(nil)

// Name implements Job.
func (j *RegistryVacuumJob) Name() string { return "registry_vacuum" }

// Schedule implements Job.
func (j *RegistryVacuumJob) Schedule() string {
	if j.ScheduleExpr != "" {
		return j.ScheduleExpr
	}
	return DefaultRegistryVacuumSchedule
}

// Run vacuums the registry.
func (j *RegistryVacuumJob) Run(ctx context.Context) error {
	if err := j.DB.Vacuum(ctx); err != nil {
		return fmt.Errorf("cron: registry vacuum: %w", err)
	}
	j.Logger.Debug("cron: registry vacuumed")
	return nil
}
