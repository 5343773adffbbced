package biz

import (
	"fmt"
	"time"

	"github.com/go-kratos/kratos/v2/errors"
)

// CircuitOpenError is returned when a breaker is OPEN and no fallback was
// supplied. The wrapped operation was never invoked.
type CircuitOpenError struct {
	Name       string
	RetryAfter time.Duration
}

// Error implements the error interface.
func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("circuit breaker %s is open, retry in %s", e.Name, e.RetryAfter)
}

// QueueOverflowError is returned when the bounded wait queue for an
// identifier is full and the request was evicted.
type QueueOverflowError struct {
	Identifier string
	QueueSize  int
}

// Error implements the error interface.
func (e *QueueOverflowError) Error() string {
	return fmt.Sprintf("request queue for %s overflowed (size %d)", e.Identifier, e.QueueSize)
}

// RateLimitExceededError is returned when the limit was hit, no queue slot
// was available and the retry budget ran out. RetryAfter and QueuePosition
// are machine-readable backoff hints.
type RateLimitExceededError struct {
	Identifier    string
	RetryAfter    time.Duration
	QueuePosition int
}

// Error implements the error interface.
func (e *RateLimitExceededError) Error() string {
	if e.QueuePosition > 0 {
		return fmt.Sprintf("rate limit exceeded for %s: queued at position %d, retry after %s",
			e.Identifier, e.QueuePosition, e.RetryAfter)
	}
	return fmt.Sprintf("rate limit exceeded for %s: retry after %s", e.Identifier, e.RetryAfter)
}

// BackendUnavailableError marks a coordination-store failure. It is always
// absorbed by the memory fallback and never surfaces to callers; it exists
// so logs and tests can identify the failure class.
type BackendUnavailableError struct {
	Op  string
	Err error
}

// Error implements the error interface.
func (e *BackendUnavailableError) Error() string {
	return fmt.Sprintf("coordination backend unavailable during %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *BackendUnavailableError) Unwrap() error { return e.Err }

// UpstreamError wraps a failure of the protected operation itself, after it
// was recorded against the breaker and limiter counters.
type UpstreamError struct {
	Identifier string
	Err        error
}

// Error implements the error interface.
func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream call for %s failed: %v", e.Identifier, e.Err)
}

// Unwrap returns the underlying error.
func (e *UpstreamError) Unwrap() error { return e.Err }

// TransportError maps a resilience error to a Kratos transport error so the
// ops surface returns machine-readable 429/503 responses.
func TransportError(err error) *errors.Error {
	switch e := err.(type) {
	case *CircuitOpenError:
		return errors.New(503, "CIRCUIT_OPEN",
			fmt.Sprintf("circuit %s open, retry_after=%dms", e.Name, e.RetryAfter.Milliseconds()))
	case *QueueOverflowError:
		return errors.New(429, "QUEUE_OVERFLOW",
			fmt.Sprintf("queue for %s full (size %d)", e.Identifier, e.QueueSize))
	case *RateLimitExceededError:
		return errors.New(429, "RATE_LIMIT_EXCEEDED",
			fmt.Sprintf("rate limit exceeded for %s, retry_after=%dms", e.Identifier, e.RetryAfter.Milliseconds()))
	default:
		return errors.New(500, "INTERNAL", err.Error())
	}
}
