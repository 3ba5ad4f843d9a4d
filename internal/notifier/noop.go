package notifier

import "context"

// Noop is a no-operation implementation of the Notifier interface.
// It is used when notifications are disabled to avoid nil checks in the
// alerting code. This follows the Null Object pattern.
type Noop struct{}

// NewNoop creates a new Noop instance.
func NewNoop() *Noop {
	return &Noop{}
}

// Notify does nothing and returns nil immediately.
func (n *Noop) Notify(ctx context.Context, _ Notification) error {
	// No-op: intentionally does nothing
	return nil
}
