package channel

import (
	"context"
	"sync"

	"github.com/flemzord/sandy/internal/core"
	"github.com/flemzord/sandy/pkg/message"
)

// MockChannel is a test double that implements TypingChannel. It records
// sent messages and typing indicators, and pushes simulated turns through
// its allow-list into the inbox.
type MockChannel struct {
	name      string
	allowList *AllowList

	mu     sync.Mutex
	inbox  func(turn message.Turn) error
	self   *message.Speaker
	sent   []message.Outbound
	typing []int64

	// SendFunc, if set, is called instead of the default recording behavior.
	SendFunc func(ctx context.Context, msg message.Outbound) error
}

// Compile-time interface guards.
var _ TypingChannel = (*MockChannel)(nil)

// NewMockChannel creates a MockChannel. Pass nil for allowList to observe
// everything.
func NewMockChannel(name string, allowList *AllowList) *MockChannel {
	return &MockChannel{name: name, allowList: allowList}
}

// ModuleInfo implements core.Module.
func (m *MockChannel) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID: core.ModuleID("channel." + m.name),
		New: func() core.Module {
			return NewMockChannel(m.name, m.allowList)
		},
	}
}

// SetSelf sets the identity returned by Self.
func (m *MockChannel) SetSelf(s message.Speaker) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.self = &s
}

// Self implements Channel.
func (m *MockChannel) Self() (message.Speaker, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.self == nil {
		return message.Speaker{}, false
	}
	return *m.self, true
}

// Send records the outbound message. If SendFunc is set, it delegates to it.
func (m *MockChannel) Send(ctx context.Context, msg message.Outbound) error {
	if m.SendFunc != nil {
		return m.SendFunc(ctx, msg)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
	return nil
}

// SendTyping implements TypingChannel. It records the channel id.
func (m *MockChannel) SendTyping(_ context.Context, channelID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.typing = append(m.typing, channelID)
	return nil
}

// SetInbox stores the inbox callback.
func (m *MockChannel) SetInbox(fn func(turn message.Turn) error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inbox = fn
}

// Simulate pushes a turn through the allow-list and into the inbox. It
// returns ErrDenied if the room is not allowed, and ErrNoInbox if SetInbox
// has not been called.
func (m *MockChannel) Simulate(turn message.Turn) error {
	m.mu.Lock()
	al := m.allowList
	inbox := m.inbox
	m.mu.Unlock()

	if !al.IsAllowed(turn) {
		return ErrDenied
	}
	if inbox == nil {
		return ErrNoInbox
	}
	return inbox(turn)
}

// SentMessages returns a copy of all outbound messages recorded by Send.
func (m *MockChannel) SentMessages() []message.Outbound {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := make([]message.Outbound, len(m.sent))
	copy(cp, m.sent)
	return cp
}

// TypingChannels returns a copy of the channel ids that received typing
// indicators.
func (m *MockChannel) TypingChannels() []int64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := make([]int64, len(m.typing))
	copy(cp, m.typing)
	return cp
}

// Reset clears recorded messages and typing indicators.
func (m *MockChannel) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = nil
	m.typing = nil
}
