package provider

import (
	"fmt"
	"time"
)

// AuthError means the backend rejected the request's credentials.
type AuthError struct {
	Backend string
	Message string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("%s: authentication failed: %s", e.Backend, e.Message)
}

// RateLimitError means the backend throttled the request. RetryAfter is
// zero when the backend did not say how long to wait.
type RateLimitError struct {
	Backend    string
	Message    string
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("%s: rate limited (retry after %s): %s", e.Backend, e.RetryAfter, e.Message)
	}
	return fmt.Sprintf("%s: rate limited: %s", e.Backend, e.Message)
}

// InvalidRequestError means the backend rejected the request as malformed.
// Retrying the same request cannot succeed.
type InvalidRequestError struct {
	Backend string
	Message string
}

func (e *InvalidRequestError) Error() string {
	return fmt.Sprintf("%s: invalid request: %s", e.Backend, e.Message)
}

// TransientError wraps network failures and backend 5xx responses.
// Callers may retry with backoff.
type TransientError struct {
	Backend string
	Err     error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("%s: transient failure: %v", e.Backend, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// Temporary marks the error as retryable.
func (e *TransientError) Temporary() bool { return true }

// ToolLoopError means a single execution exceeded the configured maximum
// number of tool-call round trips without the model producing a final answer.
type ToolLoopError struct {
	Rounds int
}

func (e *ToolLoopError) Error() string {
	return fmt.Sprintf("tool-call loop exceeded %d rounds without a final answer", e.Rounds)
}
