package memory

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/flemzord/sandy/internal/history"
	"github.com/flemzord/sandy/internal/recall"
	"github.com/flemzord/sandy/pkg/message"
)

// Seed defaults.
const (
	DefaultSeedHours = 24
	DefaultSeedLimit = 1000
)

// Seeder fills the history cache from the archive once per process, so a
// gateway reconnect does not replay the same turns.
type Seeder struct {
	archive Archive
	hours   int
	limit   int
	logger  *slog.Logger

	once  sync.Once
	count int
}

// NewSeeder creates a Seeder reading the last hours of the archive.
func NewSeeder(archive Archive, hours, limit int, logger *slog.Logger) *Seeder {
	if hours <= 0 {
		hours = DefaultSeedHours
	}
	if limit <= 0 || limit > recall.MaxLimit {
		limit = DefaultSeedLimit
	}
	return &Seeder{archive: archive, hours: hours, limit: limit, logger: logger}
}

// Seed loads recent archived turns into cache, at most the cache capacity
// per room, oldest first. Turns authored by selfID are marked as the
// agent's own. Only the first call does any work; later calls return the
// first result. Errors yield 0.
func (s *Seeder) Seed(ctx context.Context, cache *history.Cache, selfID int64) int {
	s.once.Do(func() {
		s.count = s.seed(ctx, cache, selfID)
	})
	return s.count
}

func (s *Seeder) seed(ctx context.Context, cache *history.Cache, selfID int64) int {
	if s.archive == nil {
		return 0
	}
	msgs, err := s.archive.List(ctx, recall.Query{HoursAgo: s.hours, Limit: s.limit})
	if err != nil {
		s.logger.Error("memory: seed failed", "error", err)
		return 0
	}

	// The archive answers newest first; group while keeping that order.
	var order []message.RoomKey
	groups := make(map[message.RoomKey][]recall.Message)
	for _, m := range msgs {
		key := message.RoomKey{ServerID: m.ServerID, ChannelID: m.ChannelID}
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], m)
	}

	capacity := cache.Capacity()
	count := 0
	for _, key := range order {
		recent := groups[key]
		if len(recent) > capacity {
			recent = recent[:capacity]
		}
		for i := len(recent) - 1; i >= 0; i-- {
			t := recent[i].Turn()
			t.Self = selfID != 0 && t.Author.ID == selfID
			t.Author.Bot = t.Self
			cache.Append(t)
			count++
		}
	}

	s.logger.Info("memory: seeded history cache",
		"turns", count,
		"channels", len(groups),
		"window", time.Duration(s.hours)*time.Hour,
	)
	return count
}
