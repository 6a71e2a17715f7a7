package router

import (
	"sync"

	"github.com/flemzord/sandy/pkg/message"
)

// LaneLock provides per-room serialization. Turns within the same room are
// gated and answered one at a time, while different rooms proceed
// concurrently (and then queue on the inference scheduler).
//
// A global mutex protects the lane map; each lane has its own mutex. The
// global mutex is held only briefly to look up or create a lane, and a lane
// is dropped once nobody holds or waits on it.
type LaneLock struct {
	mu    sync.Mutex
	lanes map[message.RoomKey]*lane
}

// lane counts goroutines that acquired (or are waiting on) it.
type lane struct {
	mu   sync.Mutex
	refs int
}

// NewLaneLock creates a ready-to-use LaneLock.
func NewLaneLock() *LaneLock {
	return &LaneLock{
		lanes: make(map[message.RoomKey]*lane),
	}
}

// Acquire gets or creates the room's lane and locks it.
// The caller must call Release with the same key when done.
func (l *LaneLock) Acquire(key message.RoomKey) {
	l.mu.Lock()
	ln, ok := l.lanes[key]
	if !ok {
		ln = &lane{}
		l.lanes[key] = ln
	}
	ln.refs++
	l.mu.Unlock()

	// Lock outside the global mutex so other rooms are not blocked.
	ln.mu.Lock()
}

// Release unlocks the room's lane.
// The caller must have previously called Acquire with the same key.
func (l *LaneLock) Release(key message.RoomKey) {
	l.mu.Lock()
	ln, ok := l.lanes[key]
	if !ok {
		l.mu.Unlock()
		return
	}
	ln.refs--
	if ln.refs == 0 {
		delete(l.lanes, key)
	}
	l.mu.Unlock()

	ln.mu.Unlock()
}

// Len returns the number of lanes currently held or awaited.
func (l *LaneLock) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.lanes)
}
