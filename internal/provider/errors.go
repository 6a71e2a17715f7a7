package provider

import "errors"

// Sentinel errors for provider operations.
var (
	// ErrRateLimit indicates the backend returned a rate limit response.
	ErrRateLimit = errors.New("provider rate limited")

	// ErrContextLength indicates the request exceeded the model's context window.
	ErrContextLength = errors.New("context length exceeded")

	// ErrProviderDown indicates the backend is temporarily unavailable.
	ErrProviderDown = errors.New("provider unavailable")

	// ErrBadRequest indicates the backend rejected the request shape, for
	// example tools attached to a model without tool support.
	ErrBadRequest = errors.New("provider bad request")

	// ErrAuthentication indicates the backend refused the credentials.
	ErrAuthentication = errors.New("provider authentication failed")

	// ErrNoProvider indicates no provider module is loaded.
	ErrNoProvider = errors.New("no provider configured")

	// ErrEmptyEmbedding indicates the backend returned no vectors.
	ErrEmptyEmbedding = errors.New("provider returned no embedding")
)

// IsRetryable reports whether the error is transient and the request
// can be retried after a delay.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrRateLimit) || errors.Is(err, ErrProviderDown)
}
