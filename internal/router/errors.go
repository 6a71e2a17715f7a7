// Package router is the turn handler: it records every observed turn,
// decides whether to answer, runs generation and hands each turn to the
// memory write-back pipeline.
package router

import "errors"

// Sentinel errors for router operations.
var (
	// ErrInboxFull indicates the inbox is at capacity. The turn is still
	// cached and written back; it just does not reach the gate.
	ErrInboxFull = errors.New("router: inbox full, turn not handled")

	// ErrRouterStopped indicates the router has been shut down and is
	// no longer accepting turns.
	ErrRouterStopped = errors.New("router: stopped")

	// ErrMissingDependency indicates a required collaborator was not set.
	ErrMissingDependency = errors.New("router: missing dependency")
)
