package memory

import (
	"context"
	"fmt"
	"strings"

	"github.com/flemzord/sandy/internal/scheduler"
)

// Recall returns the semantic memory block for text on serverID: the
// nearest stored messages within the distance threshold, one per line.
// It returns "" when nothing qualifies or anything fails.
func (p *Pipeline) Recall(ctx context.Context, text string, serverID int64) string {
	if p.Index == nil || p.Embedder == nil || strings.TrimSpace(text) == "" {
		return ""
	}

	emb, err := p.embed(ctx, text, scheduler.Interactive)
	if err != nil {
		p.Logger.Warn("memory: recall embedding failed", "error", err)
		return ""
	}
	matches, err := p.Index.Query(ctx, emb, p.cfg.Results, serverID)
	if err != nil {
		p.Logger.Warn("memory: recall query failed", "error", err)
		return ""
	}

	lines := make([]string, 0, len(matches))
	for _, m := range matches {
		if m.Distance > p.cfg.MaxDistance {
			continue
		}
		ts := "?"
		if !m.Timestamp.IsZero() {
			ts = m.Timestamp.In(p.cfg.Location).Format("2006-01-02 15:04 MST")
		}
		lines = append(lines, fmt.Sprintf("[%s] <%s>: %s", ts, m.AuthorName, m.Document))
	}
	p.Logger.Debug("memory: recall", "server_id", serverID, "candidates", len(matches), "kept", len(lines))
	return strings.Join(lines, "\n")
}
