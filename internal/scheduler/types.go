package scheduler

// Priority is the caller's urgency class. Interactive callers always wait
// for the gate; background callers may be dropped when skipping is enabled.
type Priority int

const (
	// Interactive work has a human waiting on it (gate, reply generation).
	Interactive Priority = iota
	// Background work can be delayed or dropped (tagging, condensing, embedding).
	Background
)

// String returns the priority label used in logs and span attributes.
func (p Priority) String() string {
	switch p {
	case Interactive:
		return "interactive"
	case Background:
		return "background"
	default:
		return "unknown"
	}
}

// Role tags an inference request with the component that issued it.
type Role string

// Roles issued against the backend.
const (
	RoleGate     Role = "gate"
	RoleGenerate Role = "generate"
	RoleClassify Role = "classify"
	RoleCondense Role = "condense"
	RoleEmbed    Role = "embed"
	RoleIntent   Role = "intent"
)

// Stats is a point-in-time view of the gate.
type Stats struct {
	InFlight bool   `json:"in_flight"`
	Waiting  int    `json:"waiting"`
	Served   uint64 `json:"served"`
	Skipped  uint64 `json:"skipped"`
}
