// Package recovery maps failing health checks to ordered, retried
// remediation actions.
//
// Recovery is deliberately rate limited: once a check's actions have been
// attempted, the check is not eligible again until the cooldown elapses,
// regardless of outcome. This prevents recovery storms against a
// persistently broken dependency.
package recovery

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"arbiguard/internal/resilience/health"
	"arbiguard/internal/resilience/retry"
)

// DefaultCooldown is the minimum gap between recovery attempts for the
// same check.
const DefaultCooldown = 5 * time.Minute

// Clock abstracts time for deterministic cooldown tests.
type Clock interface {
	Now() time.Time
}

// SystemClock implements Clock with the wall clock.
type SystemClock struct{}

// Now returns the current wall-clock time.
func (SystemClock) Now() time.Time { return time.Now() }

// Orchestrator owns the registered recovery actions and decides, after
// each health check run, which checks get remediated.
type Orchestrator struct {
	mu          sync.Mutex
	actions     map[string]*Action
	stats       map[string]*Stats
	lastAttempt map[string]time.Time
	cooldown    time.Duration
	clock       Clock
}

// NewOrchestrator creates an orchestrator with the given per-check
// cooldown. A non-positive cooldown means DefaultCooldown.
func NewOrchestrator(cooldown time.Duration) *Orchestrator {
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	return &Orchestrator{
		actions:     make(map[string]*Action),
		stats:       make(map[string]*Stats),
		lastAttempt: make(map[string]time.Time),
		cooldown:    cooldown,
		clock:       SystemClock{},
	}
}

// Register adds an action. Registering a name twice replaces the previous
// action but keeps its counters.
func (o *Orchestrator) Register(a Action) error {
	if a.Name == "" {
		return fmt.Errorf("recovery action name is required")
	}
	if a.Run == nil {
		return fmt.Errorf("recovery action %q has no run function", a.Name)
	}
	if a.Timeout <= 0 {
		a.Timeout = DefaultActionTimeout
	}
	if a.RetryDelay <= 0 {
		a.RetryDelay = DefaultRetryDelay
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	o.actions[a.Name] = &a
	if _, ok := o.stats[a.Name]; !ok {
		o.stats[a.Name] = &Stats{}
	}

	slog.Info("recovery action registered",
		"action", a.Name,
		"timeout", a.Timeout,
		"retry_count", a.RetryCount)
	return nil
}

// Evaluate walks one health check run and remediates every check that is
// unhealthy or critical and outside its cooldown window. Recovery for
// different checks runs concurrently; the actions of one check run
// strictly in order. Evaluate returns once all triggered recoveries have
// finished.
func (o *Orchestrator) Evaluate(ctx context.Context, results []health.Result) {
	now := o.clock.Now()

	var wg sync.WaitGroup
	for _, r := range results {
		if !r.Status.NeedsRecovery() || len(r.RecoveryActions) == 0 {
			continue
		}

		o.mu.Lock()
		last, attempted := o.lastAttempt[r.Name]
		if attempted && now.Sub(last) < o.cooldown {
			o.mu.Unlock()
			slog.Debug("recovery suppressed by cooldown",
				"check", r.Name,
				"since_last_attempt", now.Sub(last),
				"cooldown", o.cooldown)
			continue
		}
		o.lastAttempt[r.Name] = now
		o.mu.Unlock()

		wg.Add(1)
		go func(r health.Result) {
			defer wg.Done()
			o.recoverCheck(ctx, r)
		}(r)
	}
	wg.Wait()
}

// recoverCheck runs one check's action list sequentially. A failed action
// is logged and the next action still runs.
func (o *Orchestrator) recoverCheck(ctx context.Context, r health.Result) {
	slog.Warn("starting recovery",
		"check", r.Name,
		"status", r.Status.String(),
		"actions", r.RecoveryActions)

	for _, name := range o.orderActions(r.RecoveryActions) {
		o.mu.Lock()
		a, ok := o.actions[name]
		o.mu.Unlock()
		if !ok {
			slog.Warn("recovery action not registered",
				"check", r.Name, "action", name)
			continue
		}
		if err := o.runAction(ctx, r.Name, a); err != nil {
			slog.Error("recovery action failed",
				"check", r.Name,
				"action", a.Name,
				"attempts", a.RetryCount+1,
				"error", err)
		}
		if ctx.Err() != nil {
			return
		}
	}
}

// runAction executes one action with fixed-delay retries and a per-attempt
// timeout. Remediation errors carry no retryability signal, so every failed
// attempt is worth the remaining retries.
func (o *Orchestrator) runAction(ctx context.Context, check string, a *Action) error {
	attempts := 0
	err := retry.WithBackoff(ctx, retry.Config{
		MaxAttempts:  a.RetryCount + 1,
		InitialDelay: a.RetryDelay,
		MaxDelay:     a.RetryDelay,
		Multiplier:   1.0,
		Classifier:   func(error) bool { return true },
	}, func() error {
		attempts++
		return o.attempt(ctx, a)
	})
	if err != nil {
		o.recordOutcome(a.Name, false)
		return err
	}

	o.recordOutcome(a.Name, true)
	slog.Info("recovery action succeeded",
		"check", check,
		"action", a.Name,
		"attempts", attempts)
	return nil
}

// attempt runs the action once under its timeout with panic containment.
// The timeout holds even when the action ignores its context.
func (o *Orchestrator) attempt(ctx context.Context, a *Action) error {
	actx, cancel := context.WithTimeout(ctx, a.Timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- fmt.Errorf("recovery action panic: %v", p)
			}
		}()
		done <- a.Run(actx)
	}()

	select {
	case err := <-done:
		return err
	case <-actx.Done():
		return actx.Err()
	}
}

func (o *Orchestrator) recordOutcome(name string, success bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	s := o.stats[name]
	if s == nil {
		s = &Stats{}
		o.stats[name] = s
	}
	if success {
		s.SuccessCount++
	} else {
		s.FailureCount++
	}
	s.LastExecution = o.clock.Now()
}

// orderActions resolves DependsOn edges within one check's declared list.
// Declared order is the tie-break; names outside the list are ignored as
// dependencies; a cycle is logged and the declared order returned as is.
func (o *Orchestrator) orderActions(declared []string) []string {
	o.mu.Lock()
	defer o.mu.Unlock()

	inList := make(map[string]int, len(declared))
	for i, name := range declared {
		inList[name] = i
	}

	// indegree counts only edges between actions of this list.
	indegree := make(map[string]int, len(declared))
	dependents := make(map[string][]string, len(declared))
	for _, name := range declared {
		a, ok := o.actions[name]
		if !ok {
			continue
		}
		for _, dep := range a.DependsOn {
			if _, listed := inList[dep]; !listed || dep == name {
				continue
			}
			indegree[name]++
			dependents[dep] = append(dependents[dep], name)
		}
	}

	ordered := make([]string, 0, len(declared))
	remaining := len(declared)
	done := make(map[string]bool, len(declared))
	for remaining > 0 {
		// Scan in declared order so ties resolve deterministically.
		next := ""
		for _, name := range declared {
			if !done[name] && indegree[name] == 0 {
				next = name
				break
			}
		}
		if next == "" {
			slog.Warn("recovery action dependency cycle, using declared order",
				"actions", declared)
			return declared
		}
		done[next] = true
		remaining--
		ordered = append(ordered, next)
		for _, dep := range dependents[next] {
			indegree[dep]--
		}
	}
	return ordered
}

// History returns a copy of the per-action execution counters.
func (o *Orchestrator) History() map[string]Stats {
	o.mu.Lock()
	defer o.mu.Unlock()

	out := make(map[string]Stats, len(o.stats))
	for name, s := range o.stats {
		out[name] = *s
	}
	return out
}

// LastAttempt returns when recovery last ran for the given check.
func (o *Orchestrator) LastAttempt(check string) (time.Time, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	t, ok := o.lastAttempt[check]
	return t, ok
}
