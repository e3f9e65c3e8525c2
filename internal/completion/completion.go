// Package completion wraps the external chat-completion provider behind a
// single narrow interface.
package completion

import (
	"context"
	"errors"
	"fmt"

	"github.com/jaydahhei/reviewer2/internal/domain"
)

// Request describes one completion exchange with the provider.
type Request struct {
	Messages    []domain.Message
	Model       string
	Temperature float64
	MaxTokens   int
}

// Client generates a completion for an ordered message history.
// Failures are non-retriable within the same user action; the caller surfaces
// them and waits for a manual resubmit.
type Client interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// ProviderError reports a provider-side failure: transport, auth, rate limit,
// or a malformed response.
type ProviderError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("provider error (status %d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("provider error: %s", e.Message)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// IsProviderError reports whether err is (or wraps) a ProviderError.
func IsProviderError(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe)
}
