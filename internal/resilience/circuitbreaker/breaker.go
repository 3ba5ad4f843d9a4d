// Package circuitbreaker implements per-resource fault isolation for external
// service calls. Each breaker is a three-state machine (closed, open,
// half-open) backed by a sliding window of call outcomes, so a dependency
// that starts failing is cut off quickly and probed again after a recovery
// timeout instead of being hammered with doomed requests.
package circuitbreaker

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// State represents the current state of the circuit breaker.
type State int

const (
	// StateClosed indicates normal operation; calls pass through.
	StateClosed State = iota

	// StateOpen indicates the circuit has tripped; calls are rejected
	// without invoking the operation.
	StateOpen

	// StateHalfOpen indicates the circuit is testing recovery with a
	// bounded number of trial calls.
	StateHalfOpen
)

// String returns a string representation of the state.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Result carries the outcome of a future-returning call started with Go.
type Result struct {
	Value any
	Err   error
}

// Snapshot is a point-in-time view of a breaker's state and statistics.
// It is what dashboards and status endpoints read.
type Snapshot struct {
	Name             string
	State            State
	FailureCount     int
	SuccessCount     int
	HalfOpenCalls    int
	LastFailureTime  time.Time
	StateChangedTime time.Time
	TimeInState      time.Duration
	Stats            RingSnapshot
}

// Breaker is a single named circuit breaker.
//
// All state reads and writes are serialized by one mutex, so a transition
// decision and the stat recording that justified it are atomic with respect
// to concurrent callers.
type Breaker struct {
	name  string
	cfg   Config
	clock Clock

	mu            sync.Mutex
	state         State
	failureCount  int
	successCount  int
	halfOpenCalls int
	lastFailure   time.Time
	stateChanged  time.Time
	stats         *Ring
}

// New creates a breaker with the given name and configuration. Zero-valued
// config fields fall back to DefaultConfig.
func New(name string, cfg Config) *Breaker {
	cfg = cfg.withDefaults()
	b := &Breaker{
		name:  name,
		cfg:   cfg,
		clock: cfg.Clock,
		state: StateClosed,
		stats: NewRing(cfg.SlidingWindowSize),
	}
	b.stateChanged = b.clock.Now()
	return b
}

// Name returns the breaker's name.
func (b *Breaker) Name() string { return b.name }

// Execute runs the operation under the breaker, blocking until it completes,
// times out, or is rejected.
//
// Returns:
//   - *OpenError when the circuit rejected the call (operation not invoked)
//   - *TimeoutError when the operation exceeded the call timeout
//   - otherwise the operation's own error, unchanged
func (b *Breaker) Execute(ctx context.Context, op func(context.Context) error) error {
	_, err := b.ExecuteValue(ctx, func(ctx context.Context) (any, error) {
		return nil, op(ctx)
	})
	return err
}

// ExecuteValue is Execute for operations that return a value.
func (b *Breaker) ExecuteValue(ctx context.Context, op func(context.Context) (any, error)) (any, error) {
	if err := b.admit(); err != nil {
		return nil, err
	}

	start := b.clock.Now()
	cctx, cancel := context.WithTimeout(ctx, b.cfg.CallTimeout)
	defer cancel()

	done := make(chan Result, 1)
	go func() {
		v, err := op(cctx)
		done <- Result{Value: v, Err: err}
	}()

	select {
	case out := <-done:
		duration := b.clock.Now().Sub(start)
		if out.Err != nil && b.cfg.IsFailure(out.Err) {
			b.recordFailure(duration, out.Err)
		} else {
			b.recordSuccess(duration)
		}
		return out.Value, out.Err

	case <-cctx.Done():
		duration := b.clock.Now().Sub(start)
		if err := ctx.Err(); err != nil {
			// The caller's context ended first; pass its error through. The
			// classifier decides whether the abandonment charges the
			// dependency, so routine caller cancellations can be excluded.
			if b.cfg.IsFailure(err) {
				b.recordFailure(duration, err)
			} else {
				b.recordSuccess(duration)
			}
			return nil, err
		}
		terr := &TimeoutError{Name: b.name, Timeout: b.cfg.CallTimeout}
		b.recordFailure(duration, terr)
		return nil, terr
	}
}

// Go runs the operation under the breaker without blocking the caller and
// delivers the outcome on the returned channel. The channel is buffered, so
// the result is never lost even if the caller reads it late.
func (b *Breaker) Go(ctx context.Context, op func(context.Context) (any, error)) <-chan Result {
	out := make(chan Result, 1)
	go func() {
		v, err := b.ExecuteValue(ctx, op)
		out <- Result{Value: v, Err: err}
	}()
	return out
}

// State returns the breaker's current state, transitioning open to half-open
// first if the recovery timeout has elapsed.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maybeHalfOpenLocked()
	return b.state
}

// Snapshot returns the breaker's current state and statistics.
func (b *Breaker) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	now := b.clock.Now()
	return Snapshot{
		Name:             b.name,
		State:            b.state,
		FailureCount:     b.failureCount,
		SuccessCount:     b.successCount,
		HalfOpenCalls:    b.halfOpenCalls,
		LastFailureTime:  b.lastFailure,
		StateChangedTime: b.stateChanged,
		TimeInState:      now.Sub(b.stateChanged),
		Stats:            b.stats.Snapshot(),
	}
}

// Reset returns the breaker to the closed state and clears its counters and
// call history. Used by recovery actions and manual intervention.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	prev := b.state
	b.state = StateClosed
	b.failureCount = 0
	b.successCount = 0
	b.halfOpenCalls = 0
	b.lastFailure = time.Time{}
	b.stateChanged = b.clock.Now()
	b.stats.Reset()

	slog.Info("circuit breaker reset",
		slog.String("circuit", b.name),
		slog.String("previous_state", prev.String()))
}

// ForceOpen trips the breaker regardless of call history.
func (b *Breaker) ForceOpen() {
	b.mu.Lock()
	defer b.mu.Unlock()
	prev := b.state
	b.state = StateOpen
	b.lastFailure = b.clock.Now()
	b.stateChanged = b.clock.Now()
	b.halfOpenCalls = 0

	slog.Warn("circuit breaker forced open",
		slog.String("circuit", b.name),
		slog.String("previous_state", prev.String()))
}

// admit decides whether a call may proceed, performing the open-to-half-open
// transition when the recovery timeout has elapsed. Half-open admissions are
// counted here, before the operation runs, so concurrent callers can never
// exceed HalfOpenMaxCalls trial slots.
func (b *Breaker) admit() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.maybeHalfOpenLocked()

	switch b.state {
	case StateOpen:
		remaining := b.cfg.RecoveryTimeout - b.clock.Now().Sub(b.stateChanged)
		if remaining < 0 {
			remaining = 0
		}
		return &OpenError{Name: b.name, RetryAfter: remaining}

	case StateHalfOpen:
		if b.halfOpenCalls >= b.cfg.HalfOpenMaxCalls {
			return &OpenError{Name: b.name}
		}
		b.halfOpenCalls++
	}
	return nil
}

// maybeHalfOpenLocked transitions open to half-open once the recovery
// timeout has elapsed. Caller holds b.mu.
func (b *Breaker) maybeHalfOpenLocked() {
	if b.state != StateOpen {
		return
	}
	if b.clock.Now().Sub(b.stateChanged) >= b.cfg.RecoveryTimeout {
		b.transitionLocked(StateHalfOpen)
		b.successCount = 0
		b.halfOpenCalls = 0
	}
}

func (b *Breaker) recordSuccess(duration time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.stats.Record(CallResult{
		Timestamp: b.clock.Now(),
		Success:   true,
		Duration:  duration,
	})

	switch b.state {
	case StateHalfOpen:
		b.successCount++
		if b.successCount >= b.cfg.SuccessThreshold {
			b.transitionLocked(StateClosed)
			b.failureCount = 0
			b.successCount = 0
			b.halfOpenCalls = 0
		}
	case StateClosed:
		b.failureCount = 0
	}
}

func (b *Breaker) recordFailure(duration time.Duration, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.stats.Record(CallResult{
		Timestamp: b.clock.Now(),
		Success:   false,
		Duration:  duration,
		Err:       err,
	})

	b.failureCount++
	b.lastFailure = b.clock.Now()

	switch b.state {
	case StateHalfOpen:
		// A single trial failure reopens the circuit.
		b.transitionLocked(StateOpen)
		b.halfOpenCalls = 0
	case StateClosed:
		if b.shouldTripLocked() {
			b.transitionLocked(StateOpen)
			b.halfOpenCalls = 0
		}
	}
}

// shouldTripLocked applies the two trip criteria: a run of consecutive
// failures, or a windowed failure rate over threshold once the window holds
// enough calls. Caller holds b.mu.
func (b *Breaker) shouldTripLocked() bool {
	if b.failureCount >= b.cfg.FailureThreshold {
		return true
	}
	snap := b.stats.Snapshot()
	return snap.TotalCalls >= b.cfg.MinimumCalls &&
		snap.FailureRate >= b.cfg.FailureRateThreshold
}

// transitionLocked moves the breaker to the target state and logs the edge.
// Caller holds b.mu.
func (b *Breaker) transitionLocked(to State) {
	from := b.state
	b.state = to
	b.stateChanged = b.clock.Now()

	slog.Warn("circuit breaker state changed",
		slog.String("circuit", b.name),
		slog.String("from", from.String()),
		slog.String("to", to.String()),
		slog.Int("failure_count", b.failureCount))
}
