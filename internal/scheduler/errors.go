package scheduler

import "errors"

// ErrBusy is returned by Do for a background request that was dropped
// because the gate was held and background skipping is enabled.
var ErrBusy = errors.New("scheduler: busy")
