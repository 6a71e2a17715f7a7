// Package channel defines the bridge between the chat platform and the turn
// handler: the Channel interface, typing indicators, message chunking and
// server/channel allow-listing.
package channel

import (
	"context"

	"github.com/flemzord/sandy/internal/core"
	"github.com/flemzord/sandy/pkg/message"
)

// Channel is the bridge between a chat platform and the turn handler.
//
// A channel receives events from its platform, turns them into
// message.Turn values and pushes them through the inbox callback. It also
// delivers outbound text via Send.
type Channel interface {
	core.Module

	// Send delivers an outbound message, splitting it when the platform
	// requires.
	Send(ctx context.Context, msg message.Outbound) error

	// SetInbox gives the channel the function that receives observed turns.
	// It is called during wiring, before Start.
	SetInbox(fn func(turn message.Turn) error)

	// Self returns the agent's own account once the platform has
	// identified it, and false before that.
	Self() (message.Speaker, bool)
}

// TypingChannel is implemented by channels that can show a typing
// indicator while a reply is generated.
type TypingChannel interface {
	Channel

	// SendTyping sends a single typing indicator to the channel.
	SendTyping(ctx context.Context, channelID int64) error
}
