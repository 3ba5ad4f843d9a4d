package monitoring

import (
	"log/slog"
	"math"
	"sync"
)

// DefaultBaselineWindow is the sample window used when a tracked metric
// does not set its own.
const DefaultBaselineWindow = 100

// BaselineTracker watches selected metrics for drift away from their
// recent mean. Deviations are advisory: they are logged, never turned
// into alerts, so anomaly spotting stays decoupled from the firing and
// cooldown machinery.
type BaselineTracker struct {
	mu      sync.Mutex
	tracked map[string]*baselineWindow
}

type baselineWindow struct {
	samples      []float64
	next         int
	full         bool
	baseline     float64
	thresholdPct float64
}

// NewBaselineTracker creates an empty tracker.
func NewBaselineTracker() *BaselineTracker {
	return &BaselineTracker{tracked: make(map[string]*baselineWindow)}
}

// Track starts baseline tracking for one series key. The baseline is the
// mean of the last windowSize samples and is only meaningful once the
// window has filled. thresholdPct is the percentage deviation above which
// an observation is flagged. A non-positive windowSize means
// DefaultBaselineWindow.
func (bt *BaselineTracker) Track(key string, windowSize int, thresholdPct float64) {
	if windowSize <= 0 {
		windowSize = DefaultBaselineWindow
	}
	bt.mu.Lock()
	defer bt.mu.Unlock()
	bt.tracked[key] = &baselineWindow{
		samples:      make([]float64, windowSize),
		thresholdPct: thresholdPct,
	}
}

// Observe feeds the snapshot's values into every tracked window and logs
// any deviation beyond the configured threshold.
func (bt *BaselineTracker) Observe(snap Snapshot) {
	bt.mu.Lock()
	defer bt.mu.Unlock()

	for key, w := range bt.tracked {
		value, ok := snap.Value(key)
		if !ok {
			continue
		}

		deviated, pct := w.observe(value)
		if deviated {
			slog.Warn("metric deviates from baseline",
				"metric", key,
				"value", value,
				"baseline", w.baseline,
				"deviation_pct", pct,
				"threshold_pct", w.thresholdPct)
		}
	}
}

// Baseline returns the current baseline for a tracked series, false while
// the window has not filled yet.
func (bt *BaselineTracker) Baseline(key string) (float64, bool) {
	bt.mu.Lock()
	defer bt.mu.Unlock()
	w, ok := bt.tracked[key]
	if !ok || !w.full {
		return 0, false
	}
	return w.baseline, true
}

// observe checks the value against the baseline (if established), then
// folds it into the window. It returns whether the value deviated and by
// what percentage.
func (w *baselineWindow) observe(value float64) (bool, float64) {
	deviated := false
	pct := 0.0
	if w.full && w.baseline != 0 {
		pct = math.Abs(value-w.baseline) / math.Abs(w.baseline) * 100
		deviated = pct > w.thresholdPct
	}

	w.samples[w.next] = value
	w.next = (w.next + 1) % len(w.samples)
	if w.next == 0 {
		w.full = true
	}
	if w.full {
		sum := 0.0
		for _, s := range w.samples {
			sum += s
		}
		w.baseline = sum / float64(len(w.samples))
	}
	return deviated, pct
}
