// Package providertest provides test helpers for the provider package.
package providertest

import (
	"context"
	"sync"

	"github.com/flemzord/sandy/internal/provider"
)

// MockProvider is a configurable test double for provider.Provider and
// provider.Embedder. Set the Func fields to control behavior. Unset funcs
// panic on call. All methods are safe for concurrent use.
type MockProvider struct {
	CompleteFunc    func(ctx context.Context, req provider.CompletionRequest) (provider.CompletionResponse, error)
	EmbedFunc       func(ctx context.Context, req provider.EmbedRequest) ([][]float64, error)
	ModelNameFunc   func() string
	HealthCheckFunc func(ctx context.Context) error

	mu            sync.Mutex
	CompleteCalls int
	EmbedCalls    int
	HealthCalls   int
	Requests      []provider.CompletionRequest
}

// Complete delegates to CompleteFunc, records the request and tracks the
// call count.
func (m *MockProvider) Complete(ctx context.Context, req provider.CompletionRequest) (provider.CompletionResponse, error) {
	m.mu.Lock()
	m.CompleteCalls++
	m.Requests = append(m.Requests, req)
	m.mu.Unlock()
	return m.CompleteFunc(ctx, req)
}

// Embed delegates to EmbedFunc and tracks call count.
func (m *MockProvider) Embed(ctx context.Context, req provider.EmbedRequest) ([][]float64, error) {
	m.mu.Lock()
	m.EmbedCalls++
	m.mu.Unlock()
	return m.EmbedFunc(ctx, req)
}

// ModelName delegates to ModelNameFunc, defaulting to "mock".
func (m *MockProvider) ModelName() string {
	if m.ModelNameFunc == nil {
		return "mock"
	}
	return m.ModelNameFunc()
}

// HealthCheck delegates to HealthCheckFunc and tracks call count.
func (m *MockProvider) HealthCheck(ctx context.Context) error {
	m.mu.Lock()
	m.HealthCalls++
	m.mu.Unlock()
	return m.HealthCheckFunc(ctx)
}

// Calls returns the number of Complete calls so far.
func (m *MockProvider) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.CompleteCalls
}

// Request returns a copy of the i-th recorded Complete request.
func (m *MockProvider) Request(i int) provider.CompletionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Requests[i]
}

// Sequence returns a CompleteFunc that replays responses in order and
// repeats the last one once exhausted.
func Sequence(responses ...provider.CompletionResponse) func(context.Context, provider.CompletionRequest) (provider.CompletionResponse, error) {
	var mu sync.Mutex
	i := 0
	return func(context.Context, provider.CompletionRequest) (provider.CompletionResponse, error) {
		mu.Lock()
		defer mu.Unlock()
		resp := responses[i]
		if i < len(responses)-1 {
			i++
		}
		return resp, nil
	}
}

// Interface guards.
var (
	_ provider.Provider      = (*MockProvider)(nil)
	_ provider.Embedder      = (*MockProvider)(nil)
	_ provider.HealthChecker = (*MockProvider)(nil)
)
