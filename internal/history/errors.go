package history

import "errors"

// ErrIndexOutOfRange is returned by Snapshot.At for indexes outside 1..Len.
var ErrIndexOutOfRange = errors.New("history: index out of range")
