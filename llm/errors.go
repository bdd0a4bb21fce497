package llm

import (
	"errors"
	"fmt"
	"net/http"
)

// ProviderError is returned by every provider when a completion request fails.
// StatusCode is 0 when no HTTP response was received.
type ProviderError struct {
	Provider   string
	StatusCode int
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: chat completion failed (status %d): %v", e.Provider, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: chat completion failed: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// RateLimited reports whether the provider rejected the request for rate reasons.
func (e *ProviderError) RateLimited() bool {
	return e.StatusCode == http.StatusTooManyRequests
}

// Retryable reports whether re-sending the same request may succeed.
// Transport failures, rate limits and server errors are retryable;
// other client errors are not.
func (e *ProviderError) Retryable() bool {
	return e.StatusCode == 0 || e.RateLimited() || e.StatusCode >= 500
}

// AsProviderError extracts a *ProviderError from err's chain.
func AsProviderError(err error) (*ProviderError, bool) {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}
