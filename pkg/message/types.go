// Package message defines the platform-agnostic data contract between the
// chat gateway, the in-memory history and the agent.
package message

import (
	"fmt"
	"strings"
)

// EmptyPlaceholder stands in for turns without any text (attachments,
// embeds, stickers).
const EmptyPlaceholder = "(no text content)"

// ChatType indicates the kind of conversation a turn belongs to.
type ChatType string

const (
	// ChatDM is a direct (one-to-one) conversation.
	ChatDM ChatType = "dm"
	// ChatGroup is a channel inside a server.
	ChatGroup ChatType = "group"
)

// RoomKey identifies one independent conversation stream: a channel
// (sub-room) inside a server (room).
type RoomKey struct {
	ServerID  int64 `json:"server_id"`
	ChannelID int64 `json:"channel_id"`
}

// String renders the key as "server/channel".
func (k RoomKey) String() string {
	return fmt.Sprintf("%d/%d", k.ServerID, k.ChannelID)
}

// Speaker identifies the author of a turn.
type Speaker struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	DisplayName string `json:"display_name,omitempty"`
	// Nick is the per-server nickname; empty when none is set.
	Nick string `json:"nick,omitempty"`
	Bot  bool   `json:"bot,omitempty"`
}

// Display returns the name shown in history: the display name when set,
// otherwise the account name.
func (s Speaker) Display() string {
	if s.DisplayName != "" {
		return s.DisplayName
	}
	return s.Name
}

// SingleLine flattens text to one trimmed line, or EmptyPlaceholder when
// nothing is left.
func SingleLine(text string) string {
	s := strings.TrimSpace(strings.ReplaceAll(text, "\n", " "))
	if s == "" {
		return EmptyPlaceholder
	}
	return s
}
