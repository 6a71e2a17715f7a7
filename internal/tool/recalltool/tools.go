// Package recalltool implements the archive tools the model uses for
// precise recall: get_chat_history and search_messages.
package recalltool

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/flemzord/sandy/internal/recall"
	"github.com/flemzord/sandy/internal/tool"
)

// Tool names.
const (
	HistoryName = "get_chat_history"
	SearchName  = "search_messages"
)

// Unreachable is returned to the model when the archive cannot be queried.
const Unreachable = "Error: could not reach the memory store."

// Lister queries the archive. Satisfied by recall.Client and the SQLite
// store.
type Lister interface {
	List(ctx context.Context, q recall.Query) ([]recall.Message, error)
}

// Options configures the tools.
type Options struct {
	Formatter Formatter
	Logger    *slog.Logger
	// Unscoped exposes server and server_id to the caller instead of having
	// the dispatcher force them.
	Unscoped bool
}

// Register adds both tools to reg.
func Register(reg *tool.Registry, archive Lister, opts Options) error {
	if err := reg.Register(NewHistory(archive, opts)); err != nil {
		return err
	}
	return reg.Register(NewSearch(archive, opts))
}

type base struct {
	archive Lister
	opts    Options
}

func (b base) Scoped() bool { return !b.opts.Unscoped }

func (b base) schema(props string, required string) json.RawMessage {
	if b.opts.Unscoped {
		props += `,
		"server_id": {"type": "integer", "description": "Limit to a server ID"},
		"server": {"type": "string", "description": "Limit to a server name"}`
	}
	req := ""
	if required != "" {
		req = `
	"required": [` + required + `],`
	}
	return json.RawMessage(`{
	"type": "object",
	"properties": {` + props + `
	},` + req + `
	"additionalProperties": false
}`)
}

func (b base) list(ctx context.Context, name string, q recall.Query) ([]recall.Message, bool) {
	msgs, err := b.archive.List(ctx, q)
	if err != nil {
		if b.opts.Logger != nil {
			b.opts.Logger.Error("tool: archive query failed", "tool", name, "error", err)
		}
		return nil, false
	}
	return msgs, true
}

// History is the get_chat_history tool.
type History struct{ base }

// NewHistory returns get_chat_history over archive.
func NewHistory(archive Lister, opts Options) *History {
	return &History{base{archive: archive, opts: opts}}
}

func (h *History) Name() string { return HistoryName }

func (h *History) Description() string {
	return "Retrieve past messages from this server's chat history. Use this to recall what was " +
		"discussed before your current context window, or to check what someone said recently. " +
		"Filter by channel, author, tag, or time window."
}

func (h *History) Schema() json.RawMessage {
	return h.schema(`
		"author": {"type": "string", "description": "Filter by author display name"},
		"author_id": {"type": "integer", "description": "Filter by user ID (more reliable than name)"},
		"channel": {"type": "string", "description": "Filter by channel name"},
		"channel_id": {"type": "integer", "description": "Filter by channel ID"},
		"tag": {"type": "string", "description": "Tag substring to filter by (e.g. 'game' matches 'gaming')"},
		"hours_ago": {"type": "integer", "minimum": 0, "description": "Limit to messages from the last N hours"},
		"minutes_ago": {"type": "integer", "minimum": 0, "description": "Limit to messages from the last N minutes"},
		"since": {"type": "string", "description": "ISO datetime lower bound (e.g. '2026-02-01T00:00:00')"},
		"until": {"type": "string", "description": "ISO datetime upper bound"},
		"limit": {"type": "integer", "minimum": 0, "maximum": 1000, "description": "Maximum messages to return (default 100, max 1000)"}`, "")
}

func (h *History) Execute(ctx context.Context, raw json.RawMessage, _ tool.Scope) (string, error) {
	var args HistoryArgs
	if err := decodeStrict(raw, &args); err != nil {
		return "", err
	}
	if err := args.Validate(); err != nil {
		return "", fmt.Errorf("%w: %w", tool.ErrInvalidArguments, err)
	}

	msgs, ok := h.list(ctx, HistoryName, args.Query())
	switch {
	case !ok:
		return Unreachable, nil
	case len(msgs) == 0:
		return "No messages found matching those filters.", nil
	}
	return fmt.Sprintf("%d message(s) retrieved:\n\n%s", len(msgs), h.opts.Formatter.Lines(ctx, msgs)), nil
}

// Search is the search_messages tool.
type Search struct{ base }

// NewSearch returns search_messages over archive.
func NewSearch(archive Lister, opts Options) *Search {
	return &Search{base{archive: archive, opts: opts}}
}

func (s *Search) Name() string { return SearchName }

func (s *Search) Description() string {
	return "Full-text search through past messages on this server. Uses stemmed matching, so 'run' " +
		"finds 'running', 'ran', etc. Use this to find messages about a specific topic or keyword."
}

func (s *Search) Schema() json.RawMessage {
	return s.schema(`
		"query": {"type": "string", "description": "Text to search for (stemmed, case-insensitive)"},
		"author": {"type": "string", "description": "Limit to a specific author display name"},
		"author_id": {"type": "integer", "description": "Limit to a specific user ID"},
		"channel": {"type": "string", "description": "Limit to a specific channel name"},
		"channel_id": {"type": "integer", "description": "Limit to a specific channel ID"},
		"hours_ago": {"type": "integer", "minimum": 0, "description": "Limit to the last N hours"},
		"limit": {"type": "integer", "minimum": 0, "maximum": 1000, "description": "Maximum messages to return (default 50)"}`, `"query"`)
}

func (s *Search) Execute(ctx context.Context, raw json.RawMessage, _ tool.Scope) (string, error) {
	var args SearchArgs
	if err := decodeStrict(raw, &args); err != nil {
		return "", err
	}
	if err := args.Validate(); err != nil {
		return "", fmt.Errorf("%w: %w", tool.ErrInvalidArguments, err)
	}

	msgs, ok := s.list(ctx, SearchName, args.RecallQuery())
	switch {
	case !ok:
		return Unreachable, nil
	case len(msgs) == 0:
		return "No messages found for query: " + args.Query, nil
	}
	return fmt.Sprintf("%d message(s) found:\n\n%s", len(msgs), s.opts.Formatter.Lines(ctx, msgs)), nil
}
