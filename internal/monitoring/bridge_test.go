package monitoring

import (
	"context"
	"errors"
	"testing"

	"arbiguard/internal/resilience/circuitbreaker"
	"arbiguard/internal/resilience/health"
)

func TestBreakerMetrics(t *testing.T) {
	reg := circuitbreaker.NewRegistry()
	cfg := circuitbreaker.Config{FailureThreshold: 2}
	closed := reg.GetOrCreate("amazon_api", cfg)
	open := reg.GetOrCreate("ebay_api", cfg)

	boom := errors.New("boom")
	for i := 0; i < 2; i++ {
		_ = open.Execute(context.Background(), func(ctx context.Context) error { return boom })
	}
	_ = closed.Execute(context.Background(), func(ctx context.Context) error { return nil })

	metrics, err := BreakerMetrics(reg)(context.Background())
	if err != nil {
		t.Fatalf("producer error: %v", err)
	}

	byKey := make(map[string]Metric, len(metrics))
	for _, m := range metrics {
		byKey[m.Key()] = m
	}

	if got := byKey["circuit_breakers_total"].Value; got != 2 {
		t.Errorf("circuit_breakers_total = %v, want 2", got)
	}
	if got := byKey["circuit_breakers_open"].Value; got != 1 {
		t.Errorf("circuit_breakers_open = %v, want 1", got)
	}
	if got := byKey["circuit_breaker_state{circuit=ebay_api}"].Value; got != float64(circuitbreaker.StateOpen) {
		t.Errorf("ebay_api state = %v, want open", got)
	}
	if got := byKey["circuit_breaker_state{circuit=amazon_api}"].Value; got != float64(circuitbreaker.StateClosed) {
		t.Errorf("amazon_api state = %v, want closed", got)
	}
}

func TestHealthMetrics(t *testing.T) {
	eng := health.NewEngine()
	err := eng.Register(health.Check{
		Name: "database",
		Probe: func(ctx context.Context) (health.Status, string, error) {
			return health.StatusUnhealthy, "pool exhausted", nil
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	err = eng.Register(health.Check{
		Name: "redis_cache",
		Probe: func(ctx context.Context) (health.Status, string, error) {
			return health.StatusHealthy, "ok", nil
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	eng.RunChecks(context.Background())

	metrics, err := HealthMetrics(eng)(context.Background())
	if err != nil {
		t.Fatalf("producer error: %v", err)
	}

	byKey := make(map[string]Metric, len(metrics))
	for _, m := range metrics {
		byKey[m.Key()] = m
	}

	if got := byKey["health_check_status{check=database}"].Value; got != float64(health.StatusUnhealthy) {
		t.Errorf("database status = %v, want unhealthy", got)
	}
	if got := byKey["health_overall_status"].Value; got != float64(health.StatusUnhealthy) {
		t.Errorf("overall status = %v, want unhealthy", got)
	}
	if got := byKey["health_checks_failing"].Value; got != 1 {
		t.Errorf("failing checks = %v, want 1", got)
	}
}

func TestRuntimeMetrics(t *testing.T) {
	metrics, err := RuntimeMetrics()(context.Background())
	if err != nil {
		t.Fatalf("producer error: %v", err)
	}

	byName := make(map[string]Metric, len(metrics))
	for _, m := range metrics {
		byName[m.Name] = m
	}

	if got := byName["runtime_goroutines"].Value; got < 1 {
		t.Errorf("goroutines = %v, want at least 1", got)
	}
	if got := byName["runtime_heap_alloc_bytes"].Value; got <= 0 {
		t.Errorf("heap alloc = %v, want positive", got)
	}
	if byName["runtime_gc_runs_total"].Type != TypeCounter {
		t.Error("gc runs should be a counter")
	}
}
