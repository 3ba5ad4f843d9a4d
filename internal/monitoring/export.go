package monitoring

import (
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
)

// SnapshotCollector exposes the metrics collector's current snapshot as a
// prometheus.Collector, giving the scrape endpoint the standard text
// exposition (HELP/TYPE lines, name{labels} value) for free.
//
// It is an unchecked collector: the set of series changes as producers
// come and go, so Describe intentionally sends nothing.
type SnapshotCollector struct {
	source func() Snapshot
}

// NewSnapshotCollector wraps a snapshot source, typically
// Collector.Snapshot.
func NewSnapshotCollector(source func() Snapshot) *SnapshotCollector {
	return &SnapshotCollector{source: source}
}

// Describe implements prometheus.Collector.
func (sc *SnapshotCollector) Describe(ch chan<- *prometheus.Desc) {
	// Unchecked collector: series are dynamic.
}

// Collect implements prometheus.Collector. Each snapshot entry becomes a
// const metric; entries that cannot be converted (e.g. invalid names) are
// logged and skipped rather than failing the scrape.
func (sc *SnapshotCollector) Collect(ch chan<- prometheus.Metric) {
	snap := sc.source()
	for _, m := range snap.All() {
		desc := prometheus.NewDesc(
			sanitizeMetricName(m.Name),
			m.Description,
			nil,
			prometheus.Labels(m.Labels),
		)
		pm, err := prometheus.NewConstMetric(desc, valueType(m.Type), m.Value)
		if err != nil {
			slog.Warn("skipping unexportable metric",
				"metric", m.Key(),
				"error", err)
			continue
		}
		ch <- pm
	}
}

// valueType maps a metric type to its Prometheus value type. Histogram
// and summary samples carry a single observed value here, so they export
// as gauges.
func valueType(t MetricType) prometheus.ValueType {
	if t == TypeCounter {
		return prometheus.CounterValue
	}
	return prometheus.GaugeValue
}

// sanitizeMetricName rewrites a name into the Prometheus metric name
// alphabet [a-zA-Z0-9_:], mapping every other rune to '_'.
func sanitizeMetricName(name string) string {
	if name == "" {
		return "_"
	}
	out := []byte(name)
	for i, c := range out {
		valid := c == '_' || c == ':' ||
			(c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') ||
			(c >= '0' && c <= '9' && i > 0)
		if !valid {
			out[i] = '_'
		}
	}
	return string(out)
}
