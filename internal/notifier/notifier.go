// Package notifier provides abstraction for delivering alert notifications.
// It defines the Notifier interface which allows different delivery
// mechanisms (Slack, logs, no-op) to be used interchangeably through
// dependency injection.
package notifier

import (
	"context"
	"time"
)

// Severity is the importance of a notification.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// Event distinguishes an alert firing from an alert clearing.
type Event string

const (
	EventFire  Event = "fire"
	EventClear Event = "clear"
)

// Notification is one alert state change to be delivered.
type Notification struct {
	// ID is a unique identifier for tracing this delivery.
	ID string

	// Alert is the alert rule name (e.g. "high_cpu_usage").
	Alert string

	Severity Severity
	Event    Event

	// Message is the rendered, human-readable alert text.
	Message string

	// Metadata carries extra key/value context shown alongside the message.
	Metadata map[string]string

	Timestamp time.Time
}

// Notifier delivers notifications to a transport.
// Implementations should handle rate limiting, retries, and error logging
// internally, and must be safe for concurrent use.
type Notifier interface {
	// Notify delivers one notification.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeout control
	//   - n: The notification to deliver
	//
	// Returns:
	//   - error: Non-nil if delivery failed after all retry attempts
	Notify(ctx context.Context, n Notification) error
}
