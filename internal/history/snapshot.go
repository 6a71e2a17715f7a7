package history

import (
	"fmt"

	"github.com/flemzord/sandy/pkg/message"
)

// Snapshot is a read-time copy of one room's history. Iteration order is
// oldest → newest; At indexes 1-based from the newest.
type Snapshot struct {
	turns []message.Turn
}

// NewSnapshot builds a snapshot from turns given oldest → newest.
func NewSnapshot(turns []message.Turn) Snapshot {
	return Snapshot{turns: append([]message.Turn(nil), turns...)}
}

// Len returns the number of turns.
func (s Snapshot) Len() int {
	return len(s.turns)
}

// Empty reports whether the snapshot has no turns.
func (s Snapshot) Empty() bool {
	return len(s.turns) == 0
}

// At returns the i-th most recent turn: At(1) is the newest and At(Len())
// the oldest retained.
func (s Snapshot) At(i int) (message.Turn, error) {
	n := len(s.turns)
	if i < 1 || i > n {
		return message.Turn{}, fmt.Errorf("%w: %d not in 1..%d", ErrIndexOutOfRange, i, n)
	}
	return s.turns[n-i], nil
}

// Newest returns the most recent turn, or false when empty.
func (s Snapshot) Newest() (message.Turn, bool) {
	if len(s.turns) == 0 {
		return message.Turn{}, false
	}
	return s.turns[len(s.turns)-1], true
}

// Turns returns a copy of the turns, oldest → newest.
func (s Snapshot) Turns() []message.Turn {
	return append([]message.Turn(nil), s.turns...)
}

// Last returns a snapshot of the n most recent turns. n <= 0 or n >= Len
// returns the receiver unchanged.
func (s Snapshot) Last(n int) Snapshot {
	if n <= 0 || n >= len(s.turns) {
		return s
	}
	return Snapshot{turns: s.turns[len(s.turns)-n:]}
}
