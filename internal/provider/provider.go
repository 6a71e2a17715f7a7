package provider

import "context"

// Provider is the interface for communicating with the inference backend.
// Concrete implementations live in separate packages (e.g. provider.ollama)
// and also implement core.Module for lifecycle management.
type Provider interface {
	// Complete sends a chat request and returns the full response.
	Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error)

	// ModelName returns the default model identifier.
	ModelName() string
}

// Embedder turns text into vectors.
type Embedder interface {
	Embed(ctx context.Context, req EmbedRequest) ([][]float64, error)
}

// HealthChecker is an optional interface that providers may implement
// to support active health probing.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}
