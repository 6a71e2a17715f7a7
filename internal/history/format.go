package history

import (
	"fmt"
	"strings"
	"time"

	"github.com/flemzord/sandy/internal/provider"
	"github.com/flemzord/sandy/pkg/message"
)

// NoRecentMessages is the narrative rendering of an empty snapshot.
const NoRecentMessages = "(no recent messages)"

// FormatAge renders the time elapsed between t and now as a compact age:
// "just now", "45s ago", "12m ago", "1h30m ago", "2h ago", "1d12h ago",
// "3d ago". Negative deltas (clock skew) clamp to zero.
func FormatAge(now, t time.Time) string {
	total := int64(now.Sub(t) / time.Second)
	if total < 0 {
		total = 0
	}

	days := total / 86400
	hours := total % 86400 / 3600
	minutes := total % 3600 / 60
	seconds := total % 60

	switch {
	case days > 0:
		if hours > 0 {
			return fmt.Sprintf("%dd%dh ago", days, hours)
		}
		return fmt.Sprintf("%dd ago", days)
	case hours > 0:
		if minutes > 0 {
			return fmt.Sprintf("%dh%dm ago", hours, minutes)
		}
		return fmt.Sprintf("%dh ago", hours)
	case minutes > 0:
		return fmt.Sprintf("%dm ago", minutes)
	case seconds > 0:
		return fmt.Sprintf("%ds ago", seconds)
	default:
		return "just now"
	}
}

// Narrative renders the snapshot as one line per turn, oldest → newest:
//
//	[<age>] [<display name>] <single-line text>
//
// When maxMessages > 0 only the newest maxMessages turns are included.
func Narrative(s Snapshot, now time.Time, maxMessages int) string {
	if s.Empty() {
		return NoRecentMessages
	}
	s = s.Last(maxMessages)

	var b strings.Builder
	for i, t := range s.turns {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "[%s] [%s] %s", FormatAge(now, t.CreatedAt), t.Author.Display(), message.SingleLine(t.Content))
	}
	return b.String()
}

// Alternating projects the snapshot onto a strictly alternating
// user/assistant sequence for generation. Turns authored by selfID become
// assistant entries carrying only their text; everyone else becomes a user
// entry tagged with age and display name. Adjacent entries with the same
// role are merged, newline-joined.
func Alternating(s Snapshot, selfID int64, now time.Time) []provider.LLMMessage {
	if s.Empty() {
		return nil
	}

	out := make([]provider.LLMMessage, 0, s.Len())
	for _, t := range s.turns {
		role := provider.MessageRoleUser
		line := fmt.Sprintf("[%s] [%s] %s", FormatAge(now, t.CreatedAt), t.Author.Display(), message.SingleLine(t.Content))
		if t.Author.ID == selfID {
			role = provider.MessageRoleAssistant
			line = message.SingleLine(t.Content)
		}

		if n := len(out); n > 0 && out[n-1].Role == role {
			out[n-1].Content += "\n" + line
			continue
		}
		out = append(out, provider.LLMMessage{Role: role, Content: line})
	}
	return out
}
