package health

import (
	"context"
	"time"
)

// Probe inspects one component and reports its status with a short
// human-readable message. Returning a non-nil error marks the check
// unhealthy regardless of the returned status.
type Probe func(ctx context.Context) (Status, string, error)

// Check describes one monitored component.
type Check struct {
	// Name identifies the component (e.g. "database", "redis_cache").
	Name string

	// Probe is invoked on every engine run.
	Probe Probe

	// Timeout bounds a single probe invocation. Zero means
	// DefaultProbeTimeout.
	Timeout time.Duration

	// Critical marks the component as essential to the overall system.
	Critical bool

	// RecoveryActions lists recovery action names to execute, in order,
	// when this check reports an unhealthy or critical status.
	RecoveryActions []string
}

// DefaultProbeTimeout bounds probes that do not set their own timeout.
const DefaultProbeTimeout = 10 * time.Second

// Result is the outcome of one probe invocation.
type Result struct {
	Name                string
	Status              Status
	Message             string
	Err                 error
	Critical            bool
	RecoveryActions     []string
	ResponseTime        time.Duration
	CheckedAt           time.Time
	ConsecutiveFailures int
}

// Failed reports whether the result counts as a failed check.
func (r Result) Failed() bool {
	return r.Err != nil || r.Status.NeedsRecovery()
}
