// Package tool defines the tools the generation loop may call and the
// dispatcher that runs them. Dispatch never fails: every outcome, including
// unknown names, bad arguments and panics, becomes text fed back to the model.
package tool

import (
	"context"
	"encoding/json"
)

// Server argument keys injected into scoped tools.
const (
	ArgServerID = "server_id"
	ArgServer   = "server"
)

// Scope pins a call to the server the conversation happens in.
type Scope struct {
	ServerID   int64
	ServerName string
}

// Tool is a capability exposed to the model.
type Tool interface {
	// Name returns the unique identifier for this tool.
	Name() string

	// Description returns a model-facing description.
	Description() string

	// Schema returns a JSON Schema describing the tool's parameters, as the
	// model may fill them in. Server fields are never part of it.
	Schema() json.RawMessage

	// Scoped reports whether the dispatcher must force the caller's server
	// into the arguments.
	Scoped() bool

	// Execute runs the tool and returns model-facing text.
	Execute(ctx context.Context, args json.RawMessage, scope Scope) (string, error)
}
