package monitoring

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"arbiguard/internal/notifier"
)

// Alert is one rule evaluated against the current metric snapshot.
type Alert struct {
	// Name identifies the rule (e.g. "high_cpu_usage").
	Name string

	// Predicate reports whether the alert condition holds for the
	// snapshot. It must be total: use Snapshot.ValueOr to tolerate
	// missing series.
	Predicate func(Snapshot) bool

	Severity notifier.Severity

	// Message renders the notification text from the snapshot. Nil means
	// a default message naming the rule.
	Message func(Snapshot) string

	// Cooldown is the minimum gap between two fire notifications of this
	// rule. A cleared alert still waits out the cooldown before it can
	// fire again.
	Cooldown time.Duration
}

// AlertStatus is the externally visible state of one rule.
type AlertStatus struct {
	Name           string            `json:"name"`
	Severity       notifier.Severity `json:"severity"`
	Active         bool              `json:"active"`
	LastTriggered  time.Time         `json:"last_triggered,omitzero"`
	TriggeredCount int               `json:"triggered_count"`
}

type alertState struct {
	active         bool
	lastTriggered  time.Time
	triggeredCount int
}

// AlertManager evaluates registered alerts against metric snapshots with
// edge-triggered firing: a continuously true predicate produces one fire
// notification, a false predicate on an active alert produces one clear
// notification, and re-fires are suppressed inside the cooldown window.
type AlertManager struct {
	mu     sync.Mutex
	alerts map[string]*Alert
	order  []string
	states map[string]*alertState
	sink   notifier.Notifier
	clock  Clock
}

// NewAlertManager creates an alert manager dispatching through sink.
// A nil sink means notifications are discarded.
func NewAlertManager(sink notifier.Notifier) *AlertManager {
	if sink == nil {
		sink = notifier.NewNoop()
	}
	return &AlertManager{
		alerts: make(map[string]*Alert),
		states: make(map[string]*alertState),
		sink:   sink,
		clock:  SystemClock{},
	}
}

// Register adds an alert rule. Registering a name twice replaces the rule
// but keeps its firing state.
func (am *AlertManager) Register(a Alert) error {
	if a.Name == "" {
		return fmt.Errorf("alert name is required")
	}
	if a.Predicate == nil {
		return fmt.Errorf("alert %q has no predicate", a.Name)
	}
	if a.Severity == "" {
		a.Severity = notifier.SeverityWarning
	}

	am.mu.Lock()
	defer am.mu.Unlock()
	if _, exists := am.alerts[a.Name]; !exists {
		am.order = append(am.order, a.Name)
		am.states[a.Name] = &alertState{}
	}
	am.alerts[a.Name] = &a

	slog.Info("alert rule registered",
		"alert", a.Name,
		"severity", a.Severity,
		"cooldown", a.Cooldown)
	return nil
}

// Evaluate runs every rule against the snapshot and dispatches fire/clear
// notifications for state edges. A panicking predicate is treated as
// false and logged. Notifier errors are logged, never propagated: the
// monitoring loop must not die because a webhook is down.
func (am *AlertManager) Evaluate(ctx context.Context, snap Snapshot) {
	am.mu.Lock()
	names := make([]string, len(am.order))
	copy(names, am.order)
	am.mu.Unlock()

	for _, name := range names {
		am.evaluateOne(ctx, name, snap)
	}
}

func (am *AlertManager) evaluateOne(ctx context.Context, name string, snap Snapshot) {
	am.mu.Lock()
	a, ok := am.alerts[name]
	if !ok {
		am.mu.Unlock()
		return
	}
	state := am.states[name]
	am.mu.Unlock()

	fired := am.safePredicate(a, snap)
	now := am.clock.Now()

	am.mu.Lock()
	var event notifier.Event
	switch {
	case !state.active && fired:
		if !state.lastTriggered.IsZero() && now.Sub(state.lastTriggered) < a.Cooldown {
			am.mu.Unlock()
			slog.Debug("alert suppressed by cooldown",
				"alert", a.Name,
				"since_last_trigger", now.Sub(state.lastTriggered))
			return
		}
		state.active = true
		state.lastTriggered = now
		state.triggeredCount++
		event = notifier.EventFire
	case state.active && !fired:
		state.active = false
		event = notifier.EventClear
	default:
		// Still active and still true, or inactive and false: no edge.
		am.mu.Unlock()
		return
	}
	am.mu.Unlock()

	am.dispatch(ctx, a, event, snap, now)
}

// safePredicate evaluates the predicate with panic containment.
func (am *AlertManager) safePredicate(a *Alert, snap Snapshot) (fired bool) {
	defer func() {
		if r := recover(); r != nil {
			fired = false
			slog.Error("alert predicate panicked",
				"alert", a.Name,
				"panic", r)
		}
	}()
	return a.Predicate(snap)
}

func (am *AlertManager) dispatch(ctx context.Context, a *Alert, event notifier.Event, snap Snapshot, now time.Time) {
	message := fmt.Sprintf("alert %s is %s", a.Name, event)
	if a.Message != nil {
		message = a.Message(snap)
	}

	n := notifier.Notification{
		ID:       uuid.New().String(),
		Alert:    a.Name,
		Severity: a.Severity,
		Event:    event,
		Message:  message,
		Metadata: map[string]string{
			"snapshot_taken": snap.Taken().Format(time.RFC3339),
		},
		Timestamp: now,
	}

	if event == notifier.EventFire {
		slog.Warn("alert fired",
			"alert", a.Name,
			"severity", a.Severity,
			"message", message)
	} else {
		slog.Info("alert cleared", "alert", a.Name)
	}

	if err := am.sink.Notify(ctx, n); err != nil {
		slog.Error("alert notification failed",
			"alert", a.Name,
			"event", event,
			"error", err)
	}
}

// Status returns the current state of every registered rule.
func (am *AlertManager) Status() map[string]AlertStatus {
	am.mu.Lock()
	defer am.mu.Unlock()

	out := make(map[string]AlertStatus, len(am.alerts))
	for name, a := range am.alerts {
		s := am.states[name]
		out[name] = AlertStatus{
			Name:           name,
			Severity:       a.Severity,
			Active:         s.active,
			LastTriggered:  s.lastTriggered,
			TriggeredCount: s.triggeredCount,
		}
	}
	return out
}
