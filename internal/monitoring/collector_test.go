package monitoring

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func staticProducer(metrics ...Metric) Producer {
	return func(ctx context.Context) ([]Metric, error) {
		return metrics, nil
	}
}

func TestMetric_Key(t *testing.T) {
	plain := Gauge("cpu_usage_percent", 42, "")
	if got := plain.Key(); got != "cpu_usage_percent" {
		t.Errorf("unlabeled key = %q, want bare name", got)
	}

	labeled := Metric{
		Name:   "circuit_breaker_state",
		Labels: map[string]string{"circuit": "amazon_api", "az": "eu-west-1"},
	}
	want := "circuit_breaker_state{az=eu-west-1,circuit=amazon_api}"
	if got := labeled.Key(); got != want {
		t.Errorf("labeled key = %q, want %q (labels sorted)", got, want)
	}
}

func TestCollector_RegisterProducerValidation(t *testing.T) {
	c := NewCollector(0)
	if err := c.RegisterProducer("", staticProducer()); err == nil {
		t.Error("expected error for empty name")
	}
	if err := c.RegisterProducer("scraper", nil); err == nil {
		t.Error("expected error for nil producer")
	}
	if err := c.RegisterProducer("scraper", staticProducer()); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := c.RegisterProducer("scraper", staticProducer()); err == nil {
		t.Error("expected error for duplicate name")
	}
}

func TestCollector_CollectUpdatesSnapshot(t *testing.T) {
	c := NewCollector(0)
	err := c.RegisterProducer("system", staticProducer(
		Gauge("cpu_usage_percent", 95, "CPU usage"),
		Gauge("memory_usage_percent", 41, "Memory usage"),
	))
	if err != nil {
		t.Fatal(err)
	}

	c.Collect(context.Background())

	snap := c.Snapshot()
	if snap.Len() != 2 {
		t.Fatalf("snapshot has %d series, want 2", snap.Len())
	}
	if got, ok := snap.Value("cpu_usage_percent"); !ok || got != 95 {
		t.Errorf("cpu_usage_percent = %v, %v; want 95, true", got, ok)
	}
	if got := snap.ValueOr("missing_metric", -1); got != -1 {
		t.Errorf("ValueOr for missing series = %v, want fallback -1", got)
	}
}

func TestCollector_FailingProducerSkippedKeepsLastValue(t *testing.T) {
	c := NewCollector(0)
	failing := false
	err := c.RegisterProducer("system", func(ctx context.Context) ([]Metric, error) {
		if failing {
			return nil, errors.New("psutil unavailable")
		}
		return []Metric{Gauge("cpu_usage_percent", 50, "")}, nil
	})
	if err != nil {
		t.Fatal(err)
	}
	err = c.RegisterProducer("steady", staticProducer(Gauge("queue_depth", 7, "")))
	if err != nil {
		t.Fatal(err)
	}

	c.Collect(context.Background())
	failing = true
	c.Collect(context.Background())

	snap := c.Snapshot()
	if got, _ := snap.Value("cpu_usage_percent"); got != 50 {
		t.Errorf("snapshot should keep last good value, got %v", got)
	}
	if got, _ := snap.Value("queue_depth"); got != 7 {
		t.Errorf("sibling producer should still be sampled, got %v", got)
	}
	if got := c.ProducerFailures()["system"]; got != 1 {
		t.Errorf("failure count = %d, want 1", got)
	}
}

func TestCollector_PanickingProducerContained(t *testing.T) {
	c := NewCollector(0)
	err := c.RegisterProducer("bad", func(ctx context.Context) ([]Metric, error) {
		panic("index out of range")
	})
	if err != nil {
		t.Fatal(err)
	}
	err = c.RegisterProducer("good", staticProducer(Gauge("ok_metric", 1, "")))
	if err != nil {
		t.Fatal(err)
	}

	c.Collect(context.Background())

	if _, ok := c.Snapshot().Value("ok_metric"); !ok {
		t.Error("good producer should survive a sibling panic")
	}
	if got := c.ProducerFailures()["bad"]; got != 1 {
		t.Errorf("panic should count as a producer failure, got %d", got)
	}
}

func TestCollector_HistoryBounded(t *testing.T) {
	c := NewCollector(5)
	value := 0.0
	err := c.RegisterProducer("seq", func(ctx context.Context) ([]Metric, error) {
		value++
		return []Metric{Gauge("sequence", value, "")}, nil
	})
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 10; i++ {
		c.Collect(context.Background())
	}

	h := c.History("sequence")
	if len(h) != 5 {
		t.Fatalf("history length = %d, want 5", len(h))
	}
	got := make([]float64, len(h))
	for i, m := range h {
		got[i] = m.Value
	}
	want := []float64{6, 7, 8, 9, 10}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("history mismatch (-want +got):\n%s", diff)
	}
}

func TestCollector_HistoryRange(t *testing.T) {
	clock := newFakeClock()
	c := NewCollector(0)
	c.clock = clock
	err := c.RegisterProducer("system", staticProducer(Gauge("cpu_usage_percent", 1, "")))
	if err != nil {
		t.Fatal(err)
	}

	start := clock.Now()
	for i := 0; i < 4; i++ {
		c.Collect(context.Background())
		clock.Advance(time.Minute)
	}

	got := c.HistoryRange("cpu_usage_percent", start.Add(time.Minute), start.Add(2*time.Minute))
	if len(got) != 2 {
		t.Fatalf("range returned %d samples, want 2", len(got))
	}
	if !got[0].Timestamp.Equal(start.Add(time.Minute)) {
		t.Errorf("first sample at %v, want %v", got[0].Timestamp, start.Add(time.Minute))
	}
}

func TestSnapshot_Family(t *testing.T) {
	c := NewCollector(0)
	err := c.RegisterProducer("breakers", staticProducer(
		Metric{Name: "circuit_breaker_state", Value: 0, Labels: map[string]string{"circuit": "amazon_api"}},
		Metric{Name: "circuit_breaker_state", Value: 1, Labels: map[string]string{"circuit": "ebay_api"}},
		Gauge("circuit_breakers_open", 1, ""),
	))
	if err != nil {
		t.Fatal(err)
	}
	c.Collect(context.Background())

	family := c.Snapshot().Family("circuit_breaker_state")
	if len(family) != 2 {
		t.Fatalf("family has %d series, want 2", len(family))
	}
	if family[0].Labels["circuit"] != "amazon_api" || family[1].Labels["circuit"] != "ebay_api" {
		t.Errorf("family not sorted by key: %v, %v", family[0].Labels, family[1].Labels)
	}
}
