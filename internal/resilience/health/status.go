package health

// Status is the ordinal health status of a monitored component. Higher
// values are worse, so the worst status of a set is simply the maximum.
type Status int

const (
	// StatusUnknown means the component has not been probed yet, or the
	// probe itself could not determine a status.
	StatusUnknown Status = iota

	// StatusHealthy means the component is operating normally.
	StatusHealthy

	// StatusDegraded means the component works but with reduced capacity
	// or elevated latency.
	StatusDegraded

	// StatusUnhealthy means the component is failing and recovery should
	// be considered.
	StatusUnhealthy

	// StatusCritical means the component is down or unreachable.
	StatusCritical
)

// String returns a string representation of the status.
func (s Status) String() string {
	switch s {
	case StatusUnknown:
		return "unknown"
	case StatusHealthy:
		return "healthy"
	case StatusDegraded:
		return "degraded"
	case StatusUnhealthy:
		return "unhealthy"
	case StatusCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// Worse returns the worse of two statuses.
func Worse(a, b Status) Status {
	if a > b {
		return a
	}
	return b
}

// NeedsRecovery reports whether the status is bad enough to trigger
// recovery actions.
func (s Status) NeedsRecovery() bool {
	return s == StatusUnhealthy || s == StatusCritical
}
