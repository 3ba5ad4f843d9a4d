package monitoring

import (
	"context"
	"runtime"

	"arbiguard/internal/resilience/circuitbreaker"
	"arbiguard/internal/resilience/health"
)

// Bridge producers translate the resilience components' internal state
// into collector samples. They live here rather than inside the breaker
// and health packages so the collector stays generic: it only ever sees
// opaque named producers, and the host process decides which bridges to
// register.

// BreakerMetrics returns a producer sampling every breaker in the
// registry: per-circuit state, failure rate, and call volume, plus
// aggregate open/total counts.
func BreakerMetrics(reg *circuitbreaker.Registry) Producer {
	return func(ctx context.Context) ([]Metric, error) {
		snapshots := reg.AllSnapshots()

		metrics := make([]Metric, 0, len(snapshots)*4+2)
		open := 0
		for _, s := range snapshots {
			if s.State == circuitbreaker.StateOpen {
				open++
			}
			labels := map[string]string{"circuit": s.Name}
			metrics = append(metrics,
				Metric{
					Name:        "circuit_breaker_state",
					Value:       float64(s.State),
					Type:        TypeGauge,
					Labels:      labels,
					Description: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
				},
				Metric{
					Name:        "circuit_breaker_failure_rate",
					Value:       s.Stats.FailureRate,
					Type:        TypeGauge,
					Labels:      labels,
					Description: "Failure rate over the breaker's sliding window",
				},
				Metric{
					Name:        "circuit_breaker_window_calls",
					Value:       float64(s.Stats.TotalCalls),
					Type:        TypeGauge,
					Labels:      labels,
					Description: "Calls retained in the breaker's sliding window",
				},
				Metric{
					Name:        "circuit_breaker_consecutive_failures",
					Value:       float64(s.FailureCount),
					Type:        TypeGauge,
					Labels:      labels,
					Description: "Consecutive failures since the last success",
				},
			)
		}
		metrics = append(metrics,
			Gauge("circuit_breakers_open", float64(open),
				"Number of circuit breakers currently open"),
			Gauge("circuit_breakers_total", float64(len(snapshots)),
				"Number of registered circuit breakers"),
		)
		return metrics, nil
	}
}

// HealthMetrics returns a producer sampling the health engine: per-check
// status and failure streak, plus the aggregate summary.
func HealthMetrics(eng *health.Engine) Producer {
	return func(ctx context.Context) ([]Metric, error) {
		results := eng.Results()
		summary := eng.Summary()

		metrics := make([]Metric, 0, len(results)*2+3)
		for _, r := range results {
			labels := map[string]string{"check": r.Name}
			metrics = append(metrics,
				Metric{
					Name:        "health_check_status",
					Value:       float64(r.Status),
					Type:        TypeGauge,
					Labels:      labels,
					Description: "Health status (0=unknown, 1=healthy, 2=degraded, 3=unhealthy, 4=critical)",
				},
				Metric{
					Name:        "health_check_consecutive_failures",
					Value:       float64(r.ConsecutiveFailures),
					Type:        TypeGauge,
					Labels:      labels,
					Description: "Consecutive failed runs of this health check",
				},
			)
		}
		metrics = append(metrics,
			Gauge("health_overall_status", float64(summary.Overall),
				"Worst status across all health checks"),
			Gauge("health_checks_total", float64(summary.Total),
				"Number of registered health checks"),
			Gauge("health_checks_failing", float64(summary.Unhealthy+summary.Critical),
				"Health checks currently unhealthy or critical"),
		)
		return metrics, nil
	}
}

// RuntimeMetrics returns a producer sampling the Go runtime: goroutine
// count, heap usage, and GC activity.
func RuntimeMetrics() Producer {
	return func(ctx context.Context) ([]Metric, error) {
		var ms runtime.MemStats
		runtime.ReadMemStats(&ms)

		return []Metric{
			Gauge("runtime_goroutines", float64(runtime.NumGoroutine()),
				"Number of live goroutines"),
			Gauge("runtime_heap_alloc_bytes", float64(ms.HeapAlloc),
				"Bytes of allocated heap objects"),
			Gauge("runtime_heap_objects", float64(ms.HeapObjects),
				"Number of allocated heap objects"),
			Counter("runtime_gc_runs_total", float64(ms.NumGC),
				"Completed GC cycles since process start"),
			Counter("runtime_total_alloc_bytes", float64(ms.TotalAlloc),
				"Cumulative bytes allocated for heap objects"),
		}, nil
	}
}
