package circuitbreaker

import (
	"sync"
	"time"
)

// CallResult records the outcome of a single protected call. Results are
// immutable once recorded.
type CallResult struct {
	// Timestamp is when the call completed.
	Timestamp time.Time

	// Success reports whether the call completed without a counted failure.
	Success bool

	// Duration is how long the call took, capped at the call timeout for
	// timed-out calls.
	Duration time.Duration

	// Err is the failure cause, nil on success.
	Err error
}

// Ring is a fixed-capacity sliding window of call results. Appends are O(1)
// and evict the oldest entry once the window is full. It backs the breaker's
// failure-rate trip decision and is also exposed for introspection.
//
// All methods are safe for concurrent use.
type Ring struct {
	mu    sync.RWMutex
	buf   []CallResult
	size  int // number of valid entries, <= len(buf)
	next  int // index the next append writes to
	sumNS int64
}

// RingSnapshot is a point-in-time summary of the retained window.
type RingSnapshot struct {
	TotalCalls      int
	SuccessfulCalls int
	FailedCalls     int
	SuccessRate     float64
	FailureRate     float64
	AverageDuration time.Duration
	WindowSize      int
}

// NewRing creates a ring retaining at most capacity results.
// A capacity below 1 is treated as 1.
func NewRing(capacity int) *Ring {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring{buf: make([]CallResult, capacity)}
}

// Record appends a call result, evicting the oldest entry when the window
// is full.
func (r *Ring) Record(res CallResult) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.size == len(r.buf) {
		r.sumNS -= int64(r.buf[r.next].Duration)
	} else {
		r.size++
	}
	r.buf[r.next] = res
	r.sumNS += int64(res.Duration)
	r.next = (r.next + 1) % len(r.buf)
}

// TotalCalls returns the number of results currently retained.
func (r *Ring) TotalCalls() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.size
}

// FailureRate returns failed/total over the retained window, 0 when empty.
func (r *Ring) FailureRate() float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.size == 0 {
		return 0
	}
	return float64(r.failedLocked()) / float64(r.size)
}

// SuccessRate returns successful/total over the retained window, 0 when empty.
func (r *Ring) SuccessRate() float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.size == 0 {
		return 0
	}
	return float64(r.size-r.failedLocked()) / float64(r.size)
}

// AverageDuration returns the mean call duration over the retained window.
func (r *Ring) AverageDuration() time.Duration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.size == 0 {
		return 0
	}
	return time.Duration(r.sumNS / int64(r.size))
}

// RecentFailures returns how many of the most recent k results failed.
// When fewer than k results are retained, all of them are considered.
func (r *Ring) RecentFailures(k int) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if k > r.size {
		k = r.size
	}
	failures := 0
	for i := 1; i <= k; i++ {
		idx := (r.next - i + len(r.buf)) % len(r.buf)
		if !r.buf[idx].Success {
			failures++
		}
	}
	return failures
}

// Snapshot returns aggregate statistics for the retained window.
func (r *Ring) Snapshot() RingSnapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snap := RingSnapshot{
		TotalCalls: r.size,
		WindowSize: len(r.buf),
	}
	if r.size == 0 {
		return snap
	}

	snap.FailedCalls = r.failedLocked()
	snap.SuccessfulCalls = r.size - snap.FailedCalls
	snap.SuccessRate = float64(snap.SuccessfulCalls) / float64(r.size)
	snap.FailureRate = float64(snap.FailedCalls) / float64(r.size)
	snap.AverageDuration = time.Duration(r.sumNS / int64(r.size))
	return snap
}

// Reset discards all retained results.
func (r *Ring) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.size = 0
	r.next = 0
	r.sumNS = 0
}

func (r *Ring) failedLocked() int {
	failed := 0
	for i := 1; i <= r.size; i++ {
		idx := (r.next - i + len(r.buf)) % len(r.buf)
		if !r.buf[idx].Success {
			failed++
		}
	}
	return failed
}
