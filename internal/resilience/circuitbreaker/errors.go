package circuitbreaker

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for errors.Is matching. The typed errors below wrap these,
// so callers can branch on the kind without inspecting the concrete type.
var (
	// ErrOpen indicates the breaker rejected the call without invoking the
	// operation.
	ErrOpen = errors.New("circuit breaker is open")

	// ErrTimeout indicates the operation exceeded the configured call timeout.
	// It is distinct from any deadline error the operation itself may return.
	ErrTimeout = errors.New("circuit breaker call timed out")
)

// OpenError is returned when a call is rejected because the breaker is in the
// open state (or half-open with all trial slots taken). The operation is never
// invoked.
type OpenError struct {
	// Name is the breaker that rejected the call.
	Name string

	// RetryAfter is the remaining time until the breaker is willing to admit
	// a trial call. Zero when the breaker is half-open with max trial calls
	// in flight.
	RetryAfter time.Duration
}

// Error implements the error interface.
func (e *OpenError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("circuit breaker %q is open, retry after %s", e.Name, e.RetryAfter)
	}
	return fmt.Sprintf("circuit breaker %q is open", e.Name)
}

// Unwrap makes errors.Is(err, ErrOpen) true.
func (e *OpenError) Unwrap() error { return ErrOpen }

// TimeoutError is returned when the wrapped operation did not complete within
// the breaker's call timeout. The timeout is recorded as a failure.
type TimeoutError struct {
	// Name is the breaker that enforced the timeout.
	Name string

	// Timeout is the configured call timeout that was exceeded.
	Timeout time.Duration
}

// Error implements the error interface.
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("circuit breaker %q call timed out after %s", e.Name, e.Timeout)
}

// Unwrap makes errors.Is(err, ErrTimeout) true.
func (e *TimeoutError) Unwrap() error { return ErrTimeout }
