// Package gate decides, turn by turn, whether the agent should speak.
//
// A single structured-output call asks the backend for
// {should_respond, reason}. The model sometimes reasons its way to "yes"
// and then emits false; when the reason itself names a clear yes-signal the
// decision is flipped. Every failure answers no.
package gate

import (
	"context"
	"log/slog"
	"strings"

	"github.com/flemzord/sandy/internal/provider"
	"github.com/flemzord/sandy/internal/scheduler"
	"github.com/flemzord/sandy/internal/structured"
	"github.com/flemzord/sandy/internal/telemetry"
)

var decisionSchema = structured.MustSchema(`{
  "type": "object",
  "properties": {
    "should_respond": {"type": "boolean"},
    "reason": {"type": "string"}
  },
  "required": ["should_respond", "reason"]
}`)

// flipPhrases in a "no" reason indicate the boolean is wrong. The bot-name
// phrase is appended per call.
var flipPhrases = []string{
	"named",
	"mentioned",
	"addressed",
	"directed at",
	"follow-up",
	"back-and-forth",
}

// Config configures a Gate.
type Config struct {
	Model     string
	KeepAlive string
}

// Decision is the gate's verdict on the newest turn.
type Decision struct {
	Respond bool   `json:"should_respond"`
	Reason  string `json:"reason"`
	// Flipped is set when a "no" was overturned by its own reason.
	Flipped bool `json:"-"`
}

// Gate runs the respond/stay-quiet classification.
type Gate struct {
	backend provider.Provider
	sched   *scheduler.Scheduler
	cfg     Config
	metrics *telemetry.Metrics
	logger  *slog.Logger
}

// New creates a Gate. metrics may be nil.
func New(backend provider.Provider, sched *scheduler.Scheduler, cfg Config, metrics *telemetry.Metrics, logger *slog.Logger) *Gate {
	return &Gate{backend: backend, sched: sched, cfg: cfg, metrics: metrics, logger: logger}
}

// Decide classifies the newest line of narrative on behalf of botName.
// Backend, scheduling and schema errors all yield Respond == false.
func (g *Gate) Decide(ctx context.Context, narrative, botName string) Decision {
	var d Decision
	err := structured.Ask(ctx, g.backend, g.sched, decisionSchema, structured.Call{
		Model:     g.cfg.Model,
		System:    systemPrompt(botName),
		User:      userPrompt(narrative, botName),
		KeepAlive: g.cfg.KeepAlive,
		Role:      scheduler.RoleGate,
		Priority:  scheduler.Interactive,
	}, &d)
	if err != nil {
		g.logger.Error("gate: decision failed, staying quiet", "error", err)
		g.metrics.RecordGate("error")
		return Decision{}
	}

	if !d.Respond && shouldFlip(d.Reason, botName) {
		g.logger.Warn("gate: incoherent decision, flipping", "reason", d.Reason)
		d.Respond = true
		d.Flipped = true
	}

	g.logger.Info("gate: decided", "respond", d.Respond, "reason", d.Reason)
	switch {
	case d.Flipped:
		g.metrics.RecordGate("flipped")
	case d.Respond:
		g.metrics.RecordGate("yes")
	default:
		g.metrics.RecordGate("no")
	}
	return d
}

func shouldFlip(reason, botName string) bool {
	lower := strings.ToLower(reason)
	for _, p := range flipPhrases {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return botName != "" && strings.Contains(lower, "asked "+strings.ToLower(botName))
}
