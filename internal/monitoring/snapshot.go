package monitoring

import (
	"sort"
	"time"
)

// Snapshot is an immutable view of the collector's current values.
// Alert predicates receive a Snapshot so rules can be expressed as plain
// functions over named values.
type Snapshot struct {
	metrics map[string]Metric
	taken   time.Time
}

// Value returns the value of the series with the given key.
func (s Snapshot) Value(key string) (float64, bool) {
	m, ok := s.metrics[key]
	return m.Value, ok
}

// ValueOr returns the value of the series, or fallback when absent.
// Predicates use it to stay total even while a producer is erroring.
func (s Snapshot) ValueOr(key string, fallback float64) float64 {
	if m, ok := s.metrics[key]; ok {
		return m.Value
	}
	return fallback
}

// Metric returns the full sample for the given series key.
func (s Snapshot) Metric(key string) (Metric, bool) {
	m, ok := s.metrics[key]
	return m, ok
}

// Family returns every series of one metric family, sorted by key.
func (s Snapshot) Family(name string) []Metric {
	var out []Metric
	for _, m := range s.metrics {
		if m.Name == name {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out
}

// All returns every sample in the snapshot, sorted by key.
func (s Snapshot) All() []Metric {
	out := make([]Metric, 0, len(s.metrics))
	for _, m := range s.metrics {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out
}

// Len returns the number of series in the snapshot.
func (s Snapshot) Len() int { return len(s.metrics) }

// Taken returns when the snapshot's collection cycle ran.
func (s Snapshot) Taken() time.Time { return s.taken }
