// Package monitoring samples named metric producers into an in-memory
// snapshot with bounded per-series history, evaluates alert rules against
// that snapshot, and exports the whole thing for Prometheus scraping.
//
// The subsystem is deliberately single-process and in-memory: it is a
// fault-handling primitive, not a record store. Readers of the snapshot
// tolerate eventually-consistent data within one collection tick.
package monitoring

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// DefaultHistorySize bounds the per-series history kept by the collector.
const DefaultHistorySize = 1000

// Clock abstracts time for deterministic tests.
type Clock interface {
	Now() time.Time
}

// SystemClock implements Clock with the wall clock.
type SystemClock struct{}

// Now returns the current wall-clock time.
func (SystemClock) Now() time.Time { return time.Now() }

// Producer samples one group of metrics. A producer failure is contained:
// the cycle skips it and keeps the previous values.
type Producer func(ctx context.Context) ([]Metric, error)

type namedProducer struct {
	name    string
	produce Producer
}

// Collector periodically samples every registered producer into a current
// snapshot and a bounded per-series history.
//
// Collect is the single writer; Snapshot and History may be called
// concurrently from any goroutine.
type Collector struct {
	mu          sync.RWMutex
	producers   []namedProducer
	current     map[string]Metric
	history     map[string][]Metric
	historySize int
	failures    map[string]int
	lastRun     time.Time
	clock       Clock
}

// NewCollector creates a collector. A non-positive historySize means
// DefaultHistorySize.
func NewCollector(historySize int) *Collector {
	if historySize <= 0 {
		historySize = DefaultHistorySize
	}
	return &Collector{
		current:     make(map[string]Metric),
		history:     make(map[string][]Metric),
		historySize: historySize,
		failures:    make(map[string]int),
		clock:       SystemClock{},
	}
}

// RegisterProducer adds a named metric producer. Producers run in
// registration order on every Collect.
func (c *Collector) RegisterProducer(name string, p Producer) error {
	if name == "" {
		return fmt.Errorf("producer name is required")
	}
	if p == nil {
		return fmt.Errorf("producer %q is nil", name)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, existing := range c.producers {
		if existing.name == name {
			return fmt.Errorf("producer %q already registered", name)
		}
	}
	c.producers = append(c.producers, namedProducer{name: name, produce: p})

	slog.Info("metric producer registered", "producer", name)
	return nil
}

// Collect runs every producer once and folds the samples into the current
// snapshot and history. A producer that returns an error or panics is
// skipped for this cycle; its previous samples stay in the snapshot.
func (c *Collector) Collect(ctx context.Context) {
	c.mu.RLock()
	producers := make([]namedProducer, len(c.producers))
	copy(producers, c.producers)
	c.mu.RUnlock()

	now := c.clock.Now()
	var sampled []Metric
	for _, p := range producers {
		metrics, err := c.runProducer(ctx, p)
		if err != nil {
			c.mu.Lock()
			c.failures[p.name]++
			c.mu.Unlock()
			slog.Warn("metric producer failed, skipping for this cycle",
				"producer", p.name,
				"error", err)
			continue
		}
		sampled = append(sampled, metrics...)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, m := range sampled {
		if m.Timestamp.IsZero() {
			m.Timestamp = now
		}
		key := m.Key()
		c.current[key] = m

		h := append(c.history[key], m)
		if len(h) > c.historySize {
			h = h[len(h)-c.historySize:]
		}
		c.history[key] = h
	}
	c.lastRun = now
}

// runProducer invokes one producer with panic containment.
func (c *Collector) runProducer(ctx context.Context, p namedProducer) (metrics []Metric, err error) {
	defer func() {
		if r := recover(); r != nil {
			metrics = nil
			err = fmt.Errorf("producer panic: %v", r)
		}
	}()
	return p.produce(ctx)
}

// Snapshot returns an immutable copy of the current metric values.
func (c *Collector) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	metrics := make(map[string]Metric, len(c.current))
	for k, m := range c.current {
		metrics[k] = m
	}
	return Snapshot{metrics: metrics, taken: c.lastRun}
}

// History returns the retained samples for one series key, oldest first.
func (c *Collector) History(key string) []Metric {
	c.mu.RLock()
	defer c.mu.RUnlock()

	h := c.history[key]
	out := make([]Metric, len(h))
	copy(out, h)
	return out
}

// HistoryRange returns the retained samples for one series key whose
// timestamps fall within [from, to], oldest first.
func (c *Collector) HistoryRange(key string, from, to time.Time) []Metric {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []Metric
	for _, m := range c.history[key] {
		if m.Timestamp.Before(from) || m.Timestamp.After(to) {
			continue
		}
		out = append(out, m)
	}
	return out
}

// ProducerFailures returns how many cycles each producer has been skipped.
func (c *Collector) ProducerFailures() map[string]int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[string]int, len(c.failures))
	for name, n := range c.failures {
		out[name] = n
	}
	return out
}
