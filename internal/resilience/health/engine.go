// Package health runs periodic concurrent probes against named components
// and tracks their last-known status.
//
// Probes are fully isolated from each other: a slow, failing, or panicking
// probe never aborts the batch. Statuses are ordinal, so the overall system
// status is the worst status across all registered checks.
package health

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// maxConcurrentProbes caps the probe fan-out per run.
const maxConcurrentProbes = 8

// Engine owns the registered health checks and their last results.
//
// Engine is safe for concurrent use: RunChecks may race with Results and
// Summary readers, which observe the previous run's results until the
// current run completes.
type Engine struct {
	mu       sync.RWMutex
	checks   map[string]*Check
	order    []string
	results  map[string]Result
	failures map[string]int
}

// NewEngine creates an empty health check engine.
func NewEngine() *Engine {
	return &Engine{
		checks:   make(map[string]*Check),
		results:  make(map[string]Result),
		failures: make(map[string]int),
	}
}

// Register adds a check to the engine. Registering a name twice replaces
// the previous check and resets its failure streak.
func (e *Engine) Register(c Check) error {
	if c.Name == "" {
		return fmt.Errorf("health check name is required")
	}
	if c.Probe == nil {
		return fmt.Errorf("health check %q has no probe", c.Name)
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultProbeTimeout
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.checks[c.Name]; !exists {
		e.order = append(e.order, c.Name)
	}
	e.checks[c.Name] = &c
	delete(e.failures, c.Name)
	e.results[c.Name] = Result{
		Name:            c.Name,
		Status:          StatusUnknown,
		Critical:        c.Critical,
		RecoveryActions: c.RecoveryActions,
	}

	slog.Info("health check registered",
		"check", c.Name,
		"timeout", c.Timeout,
		"critical", c.Critical)
	return nil
}

// RunChecks probes every registered check concurrently and returns the
// results in registration order. Each probe runs under its own timeout;
// a timeout yields StatusCritical, a probe error yields at least
// StatusUnhealthy, and a panicking probe is contained and reported as
// StatusCritical.
//
// Parameters:
//   - ctx: cancels the whole run; a cancelled run reports remaining
//     probes as failed with the context error.
//
// Returns:
//   - []Result: one result per registered check, in registration order.
func (e *Engine) RunChecks(ctx context.Context) []Result {
	e.mu.RLock()
	checks := make([]*Check, 0, len(e.order))
	for _, name := range e.order {
		checks = append(checks, e.checks[name])
	}
	e.mu.RUnlock()

	results := make([]Result, len(checks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentProbes)
	for i, c := range checks {
		i, c := i, c
		g.Go(func() error {
			results[i] = e.runProbe(gctx, c)
			return nil
		})
	}
	// Goroutines never return errors; Wait is a pure barrier here.
	_ = g.Wait()

	e.mu.Lock()
	for i := range results {
		r := &results[i]
		if r.Failed() {
			e.failures[r.Name]++
		} else {
			e.failures[r.Name] = 0
		}
		r.ConsecutiveFailures = e.failures[r.Name]
		e.results[r.Name] = *r
	}
	e.mu.Unlock()

	for _, r := range results {
		if r.Failed() {
			slog.Warn("health check failed",
				"check", r.Name,
				"status", r.Status.String(),
				"message", r.Message,
				"error", r.Err,
				"consecutive_failures", r.ConsecutiveFailures)
		}
	}
	return results
}

// runProbe executes one probe under its timeout with panic containment.
func (e *Engine) runProbe(ctx context.Context, c *Check) Result {
	pctx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()

	start := time.Now()

	type probeOutcome struct {
		status  Status
		message string
		err     error
	}
	done := make(chan probeOutcome, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- probeOutcome{
					status:  StatusCritical,
					message: "probe panicked",
					err:     fmt.Errorf("probe panic: %v", p),
				}
			}
		}()
		status, message, err := c.Probe(pctx)
		done <- probeOutcome{status: status, message: message, err: err}
	}()

	r := Result{
		Name:            c.Name,
		Critical:        c.Critical,
		RecoveryActions: c.RecoveryActions,
		CheckedAt:       start,
	}

	select {
	case out := <-done:
		r.ResponseTime = time.Since(start)
		r.Status = out.status
		r.Message = out.message
		r.Err = out.err
		if out.err != nil && r.Status < StatusUnhealthy {
			r.Status = StatusUnhealthy
		}
		if out.err != nil && r.Message == "" {
			r.Message = out.err.Error()
		}
	case <-pctx.Done():
		r.ResponseTime = time.Since(start)
		r.Status = StatusCritical
		r.Err = pctx.Err()
		if ctx.Err() != nil {
			r.Message = "health check cancelled"
		} else {
			r.Message = fmt.Sprintf("health check timed out after %s", c.Timeout)
		}
	}
	return r
}

// Results returns the last known result for every registered check,
// sorted by check name. Checks that have never run report StatusUnknown.
func (e *Engine) Results() []Result {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]Result, 0, len(e.results))
	for _, r := range e.results {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Result returns the last known result for one check.
func (e *Engine) Result(name string) (Result, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	r, ok := e.results[name]
	return r, ok
}

// Summary aggregates the last known results into an overall view.
type Summary struct {
	Overall   Status
	Total     int
	Healthy   int
	Degraded  int
	Unhealthy int
	Critical  int
	Unknown   int
}

// Summary computes the current overall health. The overall status is the
// worst status across all checks; with no checks registered it is
// StatusUnknown.
func (e *Engine) Summary() Summary {
	e.mu.RLock()
	defer e.mu.RUnlock()

	s := Summary{Overall: StatusUnknown}
	for _, r := range e.results {
		s.Total++
		s.Overall = Worse(s.Overall, r.Status)
		switch r.Status {
		case StatusHealthy:
			s.Healthy++
		case StatusDegraded:
			s.Degraded++
		case StatusUnhealthy:
			s.Unhealthy++
		case StatusCritical:
			s.Critical++
		default:
			s.Unknown++
		}
	}
	return s
}
