package recalltool

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/flemzord/sandy/internal/recall"
)

// DefaultTimezone is used when no location is configured.
const DefaultTimezone = "America/Los_Angeles"

// NameResolver maps an archived author to their current display name.
type NameResolver interface {
	DisplayName(ctx context.Context, userID, serverID int64, fallback string) string
}

// Formatter renders archive records as model-readable lines.
type Formatter struct {
	Names    NameResolver
	Location *time.Location
}

// Line renders one record.
func (f Formatter) Line(ctx context.Context, m recall.Message) string {
	loc := f.Location
	if loc == nil {
		loc = time.UTC
	}

	author := m.AuthorName
	if f.Names != nil {
		author = f.Names.DisplayName(ctx, m.AuthorID, m.ServerID, m.AuthorName)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "[%s] #%s <%s>: %s",
		m.Timestamp.In(loc).Format("2006-01-02 15:04 MST"), m.ChannelName, author, m.Content)
	if len(m.Tags) > 0 {
		fmt.Fprintf(&b, "  [tags: %s]", strings.Join(m.Tags, ", "))
	}
	if m.Summary != "" {
		fmt.Fprintf(&b, "  (summary: %s)", m.Summary)
	}
	return b.String()
}

// Lines renders records one per line, in the order given.
func (f Formatter) Lines(ctx context.Context, msgs []recall.Message) string {
	lines := make([]string, len(msgs))
	for i, m := range msgs {
		lines[i] = f.Line(ctx, m)
	}
	return strings.Join(lines, "\n")
}
