package enrichment

import (
	"errors"
	"fmt"
)

var (
	// ErrRateLimited is returned by a Generator when the upstream asks the
	// caller to back off. It is the only generation error that is retried.
	ErrRateLimited = errors.New("enrichment: rate limited")

	// ErrQueueFull is returned by Pool.Submit when every worker is busy and
	// the queue is at capacity.
	ErrQueueFull = errors.New("enrichment: queue full")

	ErrPoolClosed = errors.New("enrichment: pool closed")
)

// APIError is a non-2xx response from a speech-to-text or generation API.
type APIError struct {
	Service    string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: status %d: %s", e.Service, e.StatusCode, e.Body)
}
