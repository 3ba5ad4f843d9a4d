package recovery

import (
	"context"
	"time"
)

// Default bounds applied to actions that leave the fields zero.
const (
	DefaultActionTimeout = 30 * time.Second
	DefaultRetryDelay    = 5 * time.Second
)

// Action is one remediation step, such as resetting a circuit breaker or
// reconnecting a database pool.
type Action struct {
	// Name identifies the action; health checks reference it by name.
	Name string

	// Run performs the remediation. A nil return marks the attempt
	// successful.
	Run func(ctx context.Context) error

	// Timeout bounds a single attempt. Zero means DefaultActionTimeout.
	Timeout time.Duration

	// RetryCount is the number of additional attempts after the first
	// one fails.
	RetryCount int

	// RetryDelay is the pause between attempts. Zero means
	// DefaultRetryDelay.
	RetryDelay time.Duration

	// DependsOn lists action names that must run before this one when
	// both appear in the same check's action list.
	DependsOn []string
}

// Stats holds the execution counters of one action.
type Stats struct {
	SuccessCount  int
	FailureCount  int
	LastExecution time.Time
}
