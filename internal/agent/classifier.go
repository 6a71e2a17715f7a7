package agent

import (
	"context"
	"log/slog"
	"strings"

	"github.com/flemzord/sandy/internal/provider"
	"github.com/flemzord/sandy/internal/scheduler"
	"github.com/flemzord/sandy/internal/structured"
)

// Signal is what a Classifier found in a text-only reply.
type Signal struct {
	// Deferral means the reply announces a lookup it did not perform.
	Deferral bool
	// FailedCall means the reply names a tool instead of calling it.
	FailedCall bool
}

// Any reports whether either signal fired.
func (s Signal) Any() bool {
	return s.Deferral || s.FailedCall
}

// Classifier inspects a reply that carried no tool calls.
type Classifier interface {
	Classify(ctx context.Context, text string, toolNames []string) Signal
}

// Classifier kinds accepted by NewClassifier.
const (
	ClassifierPhrase = "phrase"
	ClassifierModel  = "model"
)

// deferralPhrases are lowercase fragments a model emits when it means to
// look something up.
var deferralPhrases = []string{
	"let me look", "let me check", "let me take a look", "let me search",
	"let me see", "let me pull up", "let me go back", "let me dig",
	"let me find", "i'll look", "i'll check", "i'll take a look",
	"i'll search", "i'll pull up", "i'll go back", "i'll find", "i'll dig",
	"lemme look", "lemme check", "lemme see", "let's see if", "let's find",
	"gonna check", "gonna look", "hang on", "give me a sec",
	"give me a moment", "trying to think", "trying to remember",
	"trying to recall", "i'm thinking", "let me think", "wait, wasn't",
	"wait, didn't", "wasn't there something", "i think i remember",
	"i vaguely remember", "check my", "check the log", "check back",
}

// PhraseClassifier matches a fixed list of deferral phrases and the literal
// names of the available tools.
type PhraseClassifier struct{}

// Classify implements Classifier.
func (PhraseClassifier) Classify(_ context.Context, text string, toolNames []string) Signal {
	lower := strings.ToLower(normalizeApostrophes(text))
	var s Signal
	for _, p := range deferralPhrases {
		if strings.Contains(lower, p) {
			s.Deferral = true
			break
		}
	}
	for _, name := range toolNames {
		if name != "" && strings.Contains(lower, strings.ToLower(name)) {
			s.FailedCall = true
			break
		}
	}
	return s
}

// normalizeApostrophes folds typographic apostrophes so "I’ll check" matches.
func normalizeApostrophes(s string) string {
	return strings.NewReplacer("’", "'", "‘", "'").Replace(s)
}

var intentSchema = structured.MustSchema(`{
  "type": "object",
  "properties": {
    "tool_call_intended": {"type": "boolean"}
  },
  "required": ["tool_call_intended"]
}`)

const intentSystem = `You read one chat reply written by an assistant that has memory tools.
Decide whether the speaker meant to look something up (search, check, recall, dig through logs) before answering, rather than answering now.
Reply with a JSON object that matches the schema.`

// ModelClassifier asks the backend whether a reply intended a tool call.
// Literal tool names still count as failed calls without a backend round.
type ModelClassifier struct {
	backend   provider.Provider
	sched     *scheduler.Scheduler
	model     string
	keepAlive string
	logger    *slog.Logger
}

// NewModelClassifier creates a ModelClassifier.
func NewModelClassifier(backend provider.Provider, sched *scheduler.Scheduler, model, keepAlive string, logger *slog.Logger) *ModelClassifier {
	return &ModelClassifier{backend: backend, sched: sched, model: model, keepAlive: keepAlive, logger: logger}
}

// Classify implements Classifier. Backend errors yield no deferral.
func (c *ModelClassifier) Classify(ctx context.Context, text string, toolNames []string) Signal {
	s := PhraseClassifier{}.Classify(ctx, text, toolNames)
	s.Deferral = false
	if strings.TrimSpace(text) == "" {
		return s
	}

	var out struct {
		Intended bool `json:"tool_call_intended"`
	}
	err := structured.Ask(ctx, c.backend, c.sched, intentSchema, structured.Call{
		Model:     c.model,
		System:    intentSystem,
		User:      "Does the speaker intend to call a tool for more information?\n\n" + text,
		KeepAlive: c.keepAlive,
		Role:      scheduler.RoleIntent,
		Priority:  scheduler.Interactive,
	}, &out)
	if err != nil {
		c.logger.Warn("agent: intent classification failed", "error", err)
		return s
	}
	s.Deferral = out.Intended
	return s
}

// NewClassifier returns the classifier named by kind. Unknown kinds and
// the empty string select the phrase classifier.
func NewClassifier(kind string, backend provider.Provider, sched *scheduler.Scheduler, model, keepAlive string, logger *slog.Logger) Classifier {
	if kind == ClassifierModel {
		return NewModelClassifier(backend, sched, model, keepAlive, logger)
	}
	return PhraseClassifier{}
}
