// Package tooltest provides test helpers and mocks for the tool package.
package tooltest

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/flemzord/sandy/internal/tool"
)

// MockTool is a configurable mock implementation of tool.Tool.
type MockTool struct {
	NameValue   string
	SchemaValue json.RawMessage
	ScopedValue bool
	ExecuteFunc func(ctx context.Context, args json.RawMessage, scope tool.Scope) (string, error)

	mu    sync.Mutex
	calls []json.RawMessage
}

// Name implements tool.Tool.
func (m *MockTool) Name() string {
	if m.NameValue != "" {
		return m.NameValue
	}
	return "mock_tool"
}

// Description implements tool.Tool.
func (m *MockTool) Description() string { return "a mock tool" }

// Schema implements tool.Tool.
func (m *MockTool) Schema() json.RawMessage {
	if m.SchemaValue != nil {
		return m.SchemaValue
	}
	return json.RawMessage(`{"type":"object"}`)
}

// Scoped implements tool.Tool.
func (m *MockTool) Scoped() bool { return m.ScopedValue }

// Execute records args and delegates to ExecuteFunc.
func (m *MockTool) Execute(ctx context.Context, args json.RawMessage, scope tool.Scope) (string, error) {
	m.mu.Lock()
	m.calls = append(m.calls, append(json.RawMessage(nil), args...))
	m.mu.Unlock()

	if m.ExecuteFunc != nil {
		return m.ExecuteFunc(ctx, args, scope)
	}
	return "ok", nil
}

// Calls returns the arguments of every Execute call.
func (m *MockTool) Calls() []json.RawMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]json.RawMessage(nil), m.calls...)
}
