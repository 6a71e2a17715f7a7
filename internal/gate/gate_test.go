package gate

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/flemzord/sandy/internal/provider"
	"github.com/flemzord/sandy/internal/provider/providertest"
	"github.com/flemzord/sandy/internal/scheduler"
	"github.com/flemzord/sandy/internal/telemetry"
)

func newGate(reply string, err error) (*Gate, *providertest.MockProvider) {
	mock := &providertest.MockProvider{
		CompleteFunc: func(context.Context, provider.CompletionRequest) (provider.CompletionResponse, error) {
			return provider.CompletionResponse{Content: reply}, err
		},
	}
	g := New(mock, scheduler.New(), Config{Model: "gate-model", KeepAlive: "1h"},
		telemetry.NewMetrics(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	return g, mock
}

func TestDecide(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		reply       string
		err         error
		wantRespond bool
		wantFlipped bool
	}{
		{"plain yes", `{"should_respond": true, "reason": "open question"}`, nil, true, false},
		{"plain no", `{"should_respond": false, "reason": "unrelated chatter"}`, nil, false, false},
		{"incoherent no directed", `{"should_respond": false, "reason": "The message is directed at the agent"}`, nil, true, true},
		{"incoherent no mentioned", `{"should_respond": false, "reason": "Sandy was Mentioned by name"}`, nil, true, true},
		{"incoherent no asked bot", `{"should_respond": false, "reason": "user asked sandy a question"}`, nil, true, true},
		{"incoherent no follow-up", `{"should_respond": false, "reason": "reads as a follow-up"}`, nil, true, true},
		{"backend timeout", "", context.DeadlineExceeded, false, false},
		{"backend down", "", provider.ErrProviderDown, false, false},
		{"schema violation", `{"should_respond": "yes"}`, nil, false, false},
		{"missing reason", `{"should_respond": true}`, nil, false, false},
		{"prose reply", `Yes, Sandy should respond.`, nil, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			g, _ := newGate(tt.reply, tt.err)
			d := g.Decide(context.Background(), "[just now] [ana] hey", "Sandy")
			if d.Respond != tt.wantRespond {
				t.Errorf("Respond = %v, want %v", d.Respond, tt.wantRespond)
			}
			if d.Flipped != tt.wantFlipped {
				t.Errorf("Flipped = %v, want %v", d.Flipped, tt.wantFlipped)
			}
		})
	}
}

func TestDecide_RequestShape(t *testing.T) {
	t.Parallel()

	g, mock := newGate(`{"should_respond": false, "reason": "x"}`, nil)
	narrative := "[2m ago] [ana] anyone up?\n[just now] [bo] me"
	g.Decide(context.Background(), narrative, "Wren")

	if mock.Calls() != 1 {
		t.Fatalf("calls = %d, want exactly one backend call", mock.Calls())
	}
	req := mock.Request(0)
	if req.Model != "gate-model" || req.KeepAlive != "1h" {
		t.Errorf("model/keep_alive = %q/%q", req.Model, req.KeepAlive)
	}
	if !strings.Contains(string(req.Format), "should_respond") {
		t.Errorf("format should carry the decision schema: %s", req.Format)
	}
	if !strings.Contains(req.Messages[0].Content, "Wren") {
		t.Error("system prompt should be parameterized by bot name")
	}
	user := req.Messages[1].Content
	if !strings.Contains(user, narrative) || !strings.HasSuffix(user, "Should Wren respond to the most recent message?") {
		t.Errorf("unexpected user prompt: %q", user)
	}
}

func TestDecide_BusySchedulerFailsClosed(t *testing.T) {
	t.Parallel()

	sched := scheduler.New()
	release, _ := sched.Acquire(context.Background(), scheduler.RoleGenerate)
	defer release()

	mock := &providertest.MockProvider{
		CompleteFunc: func(context.Context, provider.CompletionRequest) (provider.CompletionResponse, error) {
			return provider.CompletionResponse{Content: `{"should_respond": true, "reason": "x"}`}, nil
		},
	}
	g := New(mock, sched, Config{}, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if d := g.Decide(ctx, "", "Sandy"); d.Respond {
		t.Error("a cancelled wait must fail closed")
	}
	if mock.Calls() != 0 {
		t.Error("backend must not be called without the gate")
	}
}

func TestShouldFlip(t *testing.T) {
	t.Parallel()

	if shouldFlip("nothing relevant", "") {
		t.Error("no phrase should not flip")
	}
	if !shouldFlip("an ongoing back-and-forth", "") {
		t.Error("back-and-forth should flip")
	}
	if shouldFlip("user asked bob something", "Sandy") {
		t.Error("asked <other> should not flip")
	}
}
