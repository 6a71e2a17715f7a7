// Package crontest provides doubles for the stores cron jobs drive.
package crontest

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/flemzord/sandy/internal/cron"
	"github.com/flemzord/sandy/internal/memory"
)

var (
	_ cron.Backfiller = (*MockBackfiller)(nil)
	_ cron.Vacuumer   = (*MockVacuumer)(nil)
)

// MockBackfiller is a test double for cron.Backfiller.
type MockBackfiller struct {
	Stats memory.BackfillStats
	Err   error
	Calls atomic.Int32

	mu   sync.Mutex
	last memory.BackfillOptions
}

// Backfill implements cron.Backfiller.
func (m *MockBackfiller) Backfill(_ context.Context, _ memory.MissingSource, _ memory.KeySource, opts memory.BackfillOptions) (memory.BackfillStats, error) {
	m.Calls.Add(1)
	m.mu.Lock()
	m.last = opts
	m.mu.Unlock()
	return m.Stats, m.Err
}

// LastOptions returns the options of the latest call.
func (m *MockBackfiller) LastOptions() memory.BackfillOptions {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}

// MockVacuumer is a test double for cron.Vacuumer.
type MockVacuumer struct {
	Err   error
	Calls atomic.Int32
}

// Vacuum implements cron.Vacuumer.
func (m *MockVacuumer) Vacuum(context.Context) error {
	m.Calls.Add(1)
	return m.Err
}
