// Package agent runs the bounded tool-use conversation that turns a room's
// history into a reply.
//
// Each invocation is a small state machine. The model may request tools
// (which are dispatched and fed back), announce that it is about to look
// something up without actually calling a tool (which earns a corrective
// nudge), or answer plainly (which ends the run). A run never exceeds the
// configured number of rounds.
package agent

import (
	"context"
	"encoding/json"
	"time"

	"github.com/flemzord/sandy/internal/provider"
	"github.com/flemzord/sandy/internal/tool"
)

// State is the orchestrator's position after a backend round.
type State int

// States of one orchestrator run.
const (
	StateAwaitingResponse State = iota
	StateToolRequested
	StateDeferralDetected
	StatePlainResponse
	StateRoundExhausted
)

func (s State) String() string {
	switch s {
	case StateAwaitingResponse:
		return "awaiting_response"
	case StateToolRequested:
		return "tool_requested"
	case StateDeferralDetected:
		return "deferral_detected"
	case StatePlainResponse:
		return "plain_response"
	case StateRoundExhausted:
		return "round_exhausted"
	default:
		return "unknown"
	}
}

// Correction is the strength of a nudge appended after a deferral.
type Correction int

// Correction levels.
const (
	CorrectionNone Correction = iota
	CorrectionSoft
	CorrectionHard
)

func (c Correction) String() string {
	switch c {
	case CorrectionSoft:
		return "soft"
	case CorrectionHard:
		return "hard"
	default:
		return "none"
	}
}

// SendFunc delivers interim text to the chat surface.
type SendFunc func(ctx context.Context, text string) error

// Request is the input to one orchestrator run.
type Request struct {
	// History is the room transcript, already in alternating form.
	History []provider.LLMMessage
	Persona Persona
	// Memory is the semantic recall block; empty omits the section.
	Memory string
	Scope  tool.Scope
	// Channel is the channel name shown in the grounding text.
	Channel string
	// Tools attaches the registered tools to the request.
	Tools bool
	// Send, when set, receives the first-round deferral text so the room
	// sees something while the lookup happens.
	Send SendFunc
}

// ToolCallRecord tracks one dispatched tool call.
type ToolCallRecord struct {
	Round     int
	Name      string
	Arguments json.RawMessage
	Output    string
	Duration  time.Duration
}

// Response is the outcome of one orchestrator run.
type Response struct {
	Content     string
	Rounds      int
	ToolCalls   []ToolCallRecord
	Final       State
	Corrections int
	Usage       provider.TokenUsage
	// ToolsDropped is set when the backend refused the tool list and the
	// run continued without it.
	ToolsDropped bool
}
