package message

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Turn is one message-equivalent event in a conversation stream. Turns are
// built by the gateway adapter (or the seed loader) and never mutated
// afterwards.
type Turn struct {
	ID          string    `json:"id"`
	Room        RoomKey   `json:"room"`
	Type        ChatType  `json:"type"`
	ServerName  string    `json:"server_name"`
	ChannelName string    `json:"channel_name"`
	Author      Speaker   `json:"author"`
	Content     string    `json:"content"`
	CreatedAt   time.Time `json:"created_at"`
	// Self is true when the agent authored the turn.
	Self     bool      `json:"self,omitempty"`
	Mentions []Speaker `json:"mentions,omitempty"`
}

// HasText reports whether the turn carries non-blank text.
func (t Turn) HasText() bool {
	return strings.TrimSpace(t.Content) != ""
}

// StoredContent is the content as written to the archive: the raw text, or
// EmptyPlaceholder when there is none.
func (t Turn) StoredContent() string {
	if t.Content == "" {
		return EmptyPlaceholder
	}
	return t.Content
}

// IsDirectMessage reports whether the turn arrived outside a server.
func (t Turn) IsDirectMessage() bool {
	return t.Type == ChatDM || t.Room.ServerID == 0
}

var mentionPattern = regexp.MustCompile(`<@!?(\d+)>`)

// ResolveMentions replaces raw <@id> and <@!id> mention tokens with
// @DisplayName using the turn's mention list. Unknown ids are left as-is.
func (t Turn) ResolveMentions() string {
	if len(t.Mentions) == 0 {
		return t.Content
	}
	names := make(map[int64]string, len(t.Mentions))
	for _, m := range t.Mentions {
		names[m.ID] = m.Display()
	}
	return mentionPattern.ReplaceAllStringFunc(t.Content, func(tok string) string {
		sub := mentionPattern.FindStringSubmatch(tok)
		id, err := strconv.ParseInt(sub[1], 10, 64)
		if err != nil {
			return tok
		}
		if name, ok := names[id]; ok {
			return "@" + name
		}
		return tok
	})
}
