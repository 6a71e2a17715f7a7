package tool_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/flemzord/sandy/internal/tool"
	"github.com/flemzord/sandy/internal/tool/tooltest"
)

const limitSchema = `{
  "type": "object",
  "properties": {"limit": {"type": "integer", "minimum": 0}},
  "additionalProperties": false
}`

func newDispatcher(t *testing.T, tools ...tool.Tool) *tool.Dispatcher {
	t.Helper()
	r := tool.NewRegistry()
	for _, tl := range tools {
		if err := r.Register(tl); err != nil {
			t.Fatalf("Register: %v", err)
		}
	}
	return tool.NewDispatcher(r, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestDispatch_UnknownTool(t *testing.T) {
	t.Parallel()

	d := newDispatcher(t)
	got := d.Dispatch(context.Background(), "recall_everything", nil, tool.Scope{})
	if got != "Error: unknown tool 'recall_everything'." {
		t.Errorf("got %q", got)
	}
}

func TestDispatch_ScopedOverwritesServer(t *testing.T) {
	t.Parallel()

	mock := &tooltest.MockTool{NameValue: "get_chat_history", ScopedValue: true, SchemaValue: json.RawMessage(limitSchema)}
	d := newDispatcher(t, mock)

	args := json.RawMessage(`{"limit": 5, "server_id": 999, "server": "Elsewhere"}`)
	out := d.Dispatch(context.Background(), "get_chat_history", args, tool.Scope{ServerID: 42, ServerName: "Home"})
	if out != "ok" {
		t.Fatalf("Dispatch = %q", out)
	}

	calls := mock.Calls()
	if len(calls) != 1 {
		t.Fatalf("calls = %d", len(calls))
	}
	var got struct {
		Limit    int    `json:"limit"`
		ServerID int64  `json:"server_id"`
		Server   string `json:"server"`
	}
	if err := json.Unmarshal(calls[0], &got); err != nil {
		t.Fatal(err)
	}
	if got.ServerID != 42 || got.Server != "Home" || got.Limit != 5 {
		t.Errorf("executed with %+v, want server forced to the caller's scope", got)
	}
}

func TestDispatch_ScopedInjectsWhenAbsent(t *testing.T) {
	t.Parallel()

	mock := &tooltest.MockTool{NameValue: "t", ScopedValue: true}
	d := newDispatcher(t, mock)
	d.Dispatch(context.Background(), "t", nil, tool.Scope{ServerID: 7, ServerName: "Seven"})

	if !strings.Contains(string(mock.Calls()[0]), `"server_id":7`) {
		t.Errorf("args = %s", mock.Calls()[0])
	}
}

func TestDispatch_SchemaViolation(t *testing.T) {
	t.Parallel()

	mock := &tooltest.MockTool{NameValue: "t", ScopedValue: true, SchemaValue: json.RawMessage(limitSchema)}
	d := newDispatcher(t, mock)

	out := d.Dispatch(context.Background(), "t", json.RawMessage(`{"limit": -1}`), tool.Scope{})
	if !strings.HasPrefix(out, "Error executing t: ") {
		t.Errorf("got %q", out)
	}
	if len(mock.Calls()) != 0 {
		t.Error("invalid args must not reach the tool")
	}
}

func TestDispatch_MalformedJSON(t *testing.T) {
	t.Parallel()

	d := newDispatcher(t, &tooltest.MockTool{NameValue: "t"})
	out := d.Dispatch(context.Background(), "t", json.RawMessage(`{"limit": `), tool.Scope{})
	if !strings.HasPrefix(out, "Error executing t: ") {
		t.Errorf("got %q", out)
	}
}

func TestDispatch_ExecutorError(t *testing.T) {
	t.Parallel()

	mock := &tooltest.MockTool{
		NameValue: "t",
		ExecuteFunc: func(context.Context, json.RawMessage, tool.Scope) (string, error) {
			return "", errors.New("store offline")
		},
	}
	out := newDispatcher(t, mock).Dispatch(context.Background(), "t", nil, tool.Scope{})
	if out != "Error executing t: store offline" {
		t.Errorf("got %q", out)
	}
}

func TestDispatch_PanicRecovered(t *testing.T) {
	t.Parallel()

	mock := &tooltest.MockTool{
		NameValue: "t",
		ExecuteFunc: func(context.Context, json.RawMessage, tool.Scope) (string, error) {
			panic("nil map")
		},
	}
	out := newDispatcher(t, mock).Dispatch(context.Background(), "t", nil, tool.Scope{})
	if !strings.HasPrefix(out, "Error executing t: ") || !strings.Contains(out, "nil map") {
		t.Errorf("got %q", out)
	}
}

func TestDispatch_UnscopedKeepsServerArgs(t *testing.T) {
	t.Parallel()

	mock := &tooltest.MockTool{NameValue: "t"}
	d := newDispatcher(t, mock)
	d.Dispatch(context.Background(), "t", json.RawMessage(`{"server_id": 5}`), tool.Scope{ServerID: 1})

	if !strings.Contains(string(mock.Calls()[0]), `"server_id":5`) {
		t.Errorf("unscoped tool should receive caller-supplied server: %s", mock.Calls()[0])
	}
}
