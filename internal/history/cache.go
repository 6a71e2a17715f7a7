// Package history keeps the short-term, in-memory view of every conversation
// the agent can see: a bounded ring of recent turns per room, plus the
// projections used to build classification and generation prompts.
package history

import (
	"cmp"
	"slices"
	"sync"

	"github.com/flemzord/sandy/pkg/message"
)

// DefaultCapacity is the number of turns kept per room when none is configured.
const DefaultCapacity = 10

// Cache holds one fixed-capacity ring buffer per RoomKey. Appends are O(1)
// and silently evict the oldest turn once a ring is full. A single mutex
// guards the map and every ring; reads copy out under the lock so callers
// never observe a half-written ring.
type Cache struct {
	mu       sync.RWMutex
	capacity int
	rooms    map[message.RoomKey]*ring
}

// ring is a fixed arena with a write cursor.
type ring struct {
	turns []message.Turn
	next  int // slot the next append writes to
	size  int
}

func newRing(capacity int) *ring {
	return &ring{turns: make([]message.Turn, capacity)}
}

func (r *ring) push(t message.Turn) {
	r.turns[r.next] = t
	r.next = (r.next + 1) % len(r.turns)
	if r.size < len(r.turns) {
		r.size++
	}
}

// ordered copies the ring oldest → newest.
func (r *ring) ordered() []message.Turn {
	out := make([]message.Turn, r.size)
	start := (r.next - r.size + len(r.turns)) % len(r.turns)
	for i := 0; i < r.size; i++ {
		out[i] = r.turns[(start+i)%len(r.turns)]
	}
	return out
}

// NewCache creates a Cache keeping capacity turns per room. A non-positive
// capacity falls back to DefaultCapacity.
func NewCache(capacity int) *Cache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Cache{
		capacity: capacity,
		rooms:    make(map[message.RoomKey]*ring),
	}
}

// Capacity returns the per-room bound.
func (c *Cache) Capacity() int {
	return c.capacity
}

// Append records a turn under its RoomKey, creating the ring on first use.
func (c *Cache) Append(t message.Turn) {
	c.mu.Lock()
	defer c.mu.Unlock()

	r, ok := c.rooms[t.Room]
	if !ok {
		r = newRing(c.capacity)
		c.rooms[t.Room] = r
	}
	r.push(t)
}

// Snapshot returns an immutable copy of the room's turns. Unseen keys yield
// an empty snapshot.
func (c *Cache) Snapshot(key message.RoomKey) Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	r, ok := c.rooms[key]
	if !ok {
		return Snapshot{}
	}
	return Snapshot{turns: r.ordered()}
}

// SnapshotByChannel looks a room up by channel id alone. Channel ids are
// globally unique, so the server id is not needed.
func (c *Cache) SnapshotByChannel(channelID int64) Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for key, r := range c.rooms {
		if key.ChannelID == channelID {
			return Snapshot{turns: r.ordered()}
		}
	}
	return Snapshot{}
}

// Clear drops one room.
func (c *Cache) Clear(key message.RoomKey) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.rooms, key)
}

// ClearRoom drops every channel of a server.
func (c *Cache) ClearRoom(serverID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.rooms {
		if key.ServerID == serverID {
			delete(c.rooms, key)
		}
	}
}

// ClearAll wipes the cache.
func (c *Cache) ClearAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rooms = make(map[message.RoomKey]*ring)
}

// Tracked returns every RoomKey currently held, sorted by server then channel.
func (c *Cache) Tracked() []message.RoomKey {
	c.mu.RLock()
	keys := make([]message.RoomKey, 0, len(c.rooms))
	for key := range c.rooms {
		keys = append(keys, key)
	}
	c.mu.RUnlock()

	slices.SortFunc(keys, func(a, b message.RoomKey) int {
		if n := cmp.Compare(a.ServerID, b.ServerID); n != 0 {
			return n
		}
		return cmp.Compare(a.ChannelID, b.ChannelID)
	})
	return keys
}
