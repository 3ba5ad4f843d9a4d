package monitoring

import (
	"sort"
	"strings"
	"time"
)

// MetricType classifies how a metric's value behaves over time.
type MetricType string

const (
	TypeCounter   MetricType = "counter"
	TypeGauge     MetricType = "gauge"
	TypeHistogram MetricType = "histogram"
	TypeSummary   MetricType = "summary"
)

// Metric is one sampled value.
type Metric struct {
	// Name identifies the metric family (e.g. "cpu_usage_percent").
	Name string

	Value     float64
	Timestamp time.Time
	Type      MetricType

	// Labels distinguish series within one family (e.g. circuit="amazon_api").
	Labels map[string]string

	// Description is the human-readable help text exported as HELP.
	Description string
}

// Key returns the unique series identifier: the name for an unlabeled
// metric, otherwise the name followed by the sorted label pairs.
func (m Metric) Key() string {
	if len(m.Labels) == 0 {
		return m.Name
	}
	keys := make([]string, 0, len(m.Labels))
	for k := range m.Labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(m.Name)
	b.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(m.Labels[k])
	}
	b.WriteByte('}')
	return b.String()
}

// Gauge is a convenience constructor for an unlabeled gauge sample.
func Gauge(name string, value float64, description string) Metric {
	return Metric{
		Name:        name,
		Value:       value,
		Type:        TypeGauge,
		Description: description,
	}
}

// Counter is a convenience constructor for an unlabeled counter sample.
func Counter(name string, value float64, description string) Metric {
	return Metric{
		Name:        name,
		Value:       value,
		Type:        TypeCounter,
		Description: description,
	}
}
