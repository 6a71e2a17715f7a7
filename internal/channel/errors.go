package channel

import "errors"

// Sentinel errors for channel operations.
var (
	// ErrNoInbox indicates a channel's inbox callback has not been set.
	ErrNoInbox = errors.New("channel: inbox not set")

	// ErrDenied indicates the turn was blocked by the allow-list.
	ErrDenied = errors.New("channel: server or channel not allowed")

	// ErrNotReady indicates the platform session is not established yet.
	ErrNotReady = errors.New("channel: not connected")
)
