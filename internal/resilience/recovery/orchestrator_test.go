package recovery

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"arbiguard/internal/resilience/health"
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

func failingResult(check string, actions ...string) health.Result {
	return health.Result{
		Name:            check,
		Status:          health.StatusUnhealthy,
		RecoveryActions: actions,
	}
}

func TestOrchestrator_RegisterValidation(t *testing.T) {
	o := NewOrchestrator(time.Minute)
	if err := o.Register(Action{Run: func(ctx context.Context) error { return nil }}); err == nil {
		t.Error("expected error for missing name")
	}
	if err := o.Register(Action{Name: "reconnect_database"}); err == nil {
		t.Error("expected error for missing run function")
	}
	err := o.Register(Action{
		Name: "reconnect_database",
		Run:  func(ctx context.Context) error { return nil },
	})
	if err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestOrchestrator_RecoversOnlyFailingChecks(t *testing.T) {
	o := NewOrchestrator(time.Minute)
	var runs int
	var mu sync.Mutex
	err := o.Register(Action{
		Name: "restart_worker",
		Run: func(ctx context.Context) error {
			mu.Lock()
			runs++
			mu.Unlock()
			return nil
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	o.Evaluate(context.Background(), []health.Result{
		{Name: "healthy", Status: health.StatusHealthy, RecoveryActions: []string{"restart_worker"}},
		{Name: "degraded", Status: health.StatusDegraded, RecoveryActions: []string{"restart_worker"}},
		failingResult("broken", "restart_worker"),
	})

	if runs != 1 {
		t.Errorf("action ran %d times, want 1 (only the unhealthy check)", runs)
	}
}

func TestOrchestrator_CooldownSuppressesReattempts(t *testing.T) {
	clock := newFakeClock()
	o := NewOrchestrator(5 * time.Minute)
	o.clock = clock

	var runs int
	err := o.Register(Action{
		Name: "reconnect_database",
		Run: func(ctx context.Context) error {
			runs++
			return errors.New("still down")
		},
		RetryDelay: time.Millisecond,
	})
	if err != nil {
		t.Fatal(err)
	}

	results := []health.Result{failingResult("database", "reconnect_database")}

	o.Evaluate(context.Background(), results)
	if runs != 1 {
		t.Fatalf("runs after first evaluate = %d, want 1", runs)
	}

	// Still failing on every tick inside the cooldown: no re-attempt.
	clock.Advance(time.Minute)
	o.Evaluate(context.Background(), results)
	clock.Advance(3 * time.Minute)
	o.Evaluate(context.Background(), results)
	if runs != 1 {
		t.Errorf("runs inside cooldown = %d, want 1", runs)
	}

	clock.Advance(time.Minute + time.Second)
	o.Evaluate(context.Background(), results)
	if runs != 2 {
		t.Errorf("runs after cooldown elapsed = %d, want 2", runs)
	}
}

func TestOrchestrator_RetriesExhaustedThenNextActionRuns(t *testing.T) {
	o := NewOrchestrator(time.Minute)

	var attempts int
	err := o.Register(Action{
		Name: "optimize_pool",
		Run: func(ctx context.Context) error {
			attempts++
			return errors.New("optimize failed")
		},
		RetryCount: 2,
		RetryDelay: time.Millisecond,
	})
	if err != nil {
		t.Fatal(err)
	}
	var reconnected bool
	err = o.Register(Action{
		Name: "reconnect_database",
		Run: func(ctx context.Context) error {
			reconnected = true
			return nil
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	o.Evaluate(context.Background(), []health.Result{
		failingResult("database", "optimize_pool", "reconnect_database"),
	})

	if attempts != 3 {
		t.Errorf("failing action attempted %d times, want 3 (1 + 2 retries)", attempts)
	}
	if !reconnected {
		t.Error("next action should run despite the previous one failing")
	}

	history := o.History()
	if got := history["optimize_pool"]; got.FailureCount != 1 || got.SuccessCount != 0 {
		t.Errorf("optimize_pool stats = %+v, want 1 failure", got)
	}
	if got := history["reconnect_database"]; got.SuccessCount != 1 || got.FailureCount != 0 {
		t.Errorf("reconnect_database stats = %+v, want 1 success", got)
	}
}

func TestOrchestrator_ActionsRunInDeclaredOrder(t *testing.T) {
	o := NewOrchestrator(time.Minute)
	var order []string
	var mu sync.Mutex
	record := func(name string) Action {
		return Action{
			Name: name,
			Run: func(ctx context.Context) error {
				mu.Lock()
				order = append(order, name)
				mu.Unlock()
				return nil
			},
		}
	}
	for _, name := range []string{"first", "second", "third"} {
		if err := o.Register(record(name)); err != nil {
			t.Fatal(err)
		}
	}

	o.Evaluate(context.Background(), []health.Result{
		failingResult("service", "first", "second", "third"),
	})

	mu.Lock()
	defer mu.Unlock()
	want := []string{"first", "second", "third"}
	if len(order) != len(want) {
		t.Fatalf("ran %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("ran %v, want %v", order, want)
		}
	}
}

func TestOrchestrator_DependsOnReordersDeclaredList(t *testing.T) {
	o := NewOrchestrator(time.Minute)
	var order []string
	var mu sync.Mutex
	register := func(name string, deps ...string) {
		t.Helper()
		err := o.Register(Action{
			Name:      name,
			DependsOn: deps,
			Run: func(ctx context.Context) error {
				mu.Lock()
				order = append(order, name)
				mu.Unlock()
				return nil
			},
		})
		if err != nil {
			t.Fatal(err)
		}
	}
	register("reconnect", "optimize")
	register("optimize")
	register("verify", "reconnect")

	// Declared order puts reconnect first, but it depends on optimize.
	o.Evaluate(context.Background(), []health.Result{
		failingResult("database", "reconnect", "optimize", "verify"),
	})

	mu.Lock()
	defer mu.Unlock()
	want := []string{"optimize", "reconnect", "verify"}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("ran %v, want %v", order, want)
		}
	}
}

func TestOrchestrator_DependencyCycleFallsBackToDeclaredOrder(t *testing.T) {
	o := NewOrchestrator(time.Minute)
	var order []string
	var mu sync.Mutex
	register := func(name string, deps ...string) {
		t.Helper()
		err := o.Register(Action{
			Name:      name,
			DependsOn: deps,
			Run: func(ctx context.Context) error {
				mu.Lock()
				order = append(order, name)
				mu.Unlock()
				return nil
			},
		})
		if err != nil {
			t.Fatal(err)
		}
	}
	register("a", "b")
	register("b", "a")

	o.Evaluate(context.Background(), []health.Result{
		failingResult("service", "a", "b"),
	})

	mu.Lock()
	defer mu.Unlock()
	if len(order) != 2 || order[0] != "a" || order[1] != "b" {
		t.Errorf("ran %v, want declared order [a b]", order)
	}
}

func TestOrchestrator_UnknownActionSkipped(t *testing.T) {
	o := NewOrchestrator(time.Minute)
	var ran bool
	err := o.Register(Action{
		Name: "known",
		Run: func(ctx context.Context) error {
			ran = true
			return nil
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	o.Evaluate(context.Background(), []health.Result{
		failingResult("service", "missing_action", "known"),
	})
	if !ran {
		t.Error("registered action should run even when a sibling is unknown")
	}
}

func TestOrchestrator_AttemptTimeout(t *testing.T) {
	o := NewOrchestrator(time.Minute)
	err := o.Register(Action{
		Name:    "stuck",
		Timeout: 20 * time.Millisecond,
		Run: func(ctx context.Context) error {
			<-ctx.Done()
			time.Sleep(30 * time.Millisecond)
			return nil
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	o.Evaluate(context.Background(), []health.Result{failingResult("service", "stuck")})

	if got := o.History()["stuck"]; got.FailureCount != 1 {
		t.Errorf("timed-out action stats = %+v, want 1 failure", got)
	}
}

func TestOrchestrator_PanicContained(t *testing.T) {
	o := NewOrchestrator(time.Minute)
	err := o.Register(Action{
		Name: "panicky",
		Run: func(ctx context.Context) error {
			panic("boom")
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	var ran bool
	err = o.Register(Action{
		Name: "steady",
		Run: func(ctx context.Context) error {
			ran = true
			return nil
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	o.Evaluate(context.Background(), []health.Result{
		failingResult("service", "panicky", "steady"),
	})

	if got := o.History()["panicky"]; got.FailureCount != 1 {
		t.Errorf("panicking action stats = %+v, want 1 failure", got)
	}
	if !ran {
		t.Error("sibling action should run after a panic")
	}
}

func TestOrchestrator_ChecksRecoverConcurrently(t *testing.T) {
	o := NewOrchestrator(time.Minute)

	release := make(chan struct{})
	started := make(chan string, 2)
	block := func(name string) Action {
		return Action{
			Name: name,
			Run: func(ctx context.Context) error {
				started <- name
				<-release
				return nil
			},
			Timeout: time.Second,
		}
	}
	if err := o.Register(block("fix_a")); err != nil {
		t.Fatal(err)
	}
	if err := o.Register(block("fix_b")); err != nil {
		t.Fatal(err)
	}

	done := make(chan struct{})
	go func() {
		o.Evaluate(context.Background(), []health.Result{
			failingResult("service_a", "fix_a"),
			failingResult("service_b", "fix_b"),
		})
		close(done)
	}()

	// Both checks' actions must be in flight at the same time.
	for i := 0; i < 2; i++ {
		select {
		case <-started:
		case <-time.After(time.Second):
			t.Fatal("recovery for the two checks did not overlap")
		}
	}
	close(release)
	<-done
}

func TestOrchestrator_LastAttempt(t *testing.T) {
	clock := newFakeClock()
	o := NewOrchestrator(time.Minute)
	o.clock = clock
	err := o.Register(Action{
		Name: "noop",
		Run:  func(ctx context.Context) error { return nil },
	})
	if err != nil {
		t.Fatal(err)
	}

	if _, ok := o.LastAttempt("service"); ok {
		t.Error("expected no attempt before first evaluate")
	}
	o.Evaluate(context.Background(), []health.Result{failingResult("service", "noop")})
	got, ok := o.LastAttempt("service")
	if !ok || !got.Equal(clock.Now()) {
		t.Errorf("last attempt = %v, %v; want %v", got, ok, clock.Now())
	}
}
