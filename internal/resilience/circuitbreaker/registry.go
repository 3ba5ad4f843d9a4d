package circuitbreaker

import (
	"log/slog"
	"sort"
	"sync"
)

// Registry manages named breaker instances, creating them lazily. It is the
// single lookup surface shared by protected callers, status endpoints, and
// recovery actions that reset breakers.
//
// The registry is an explicit service object; construct one at process start
// and inject it where needed.
type Registry struct {
	mu       sync.RWMutex
	breakers map[string]*Breaker
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{breakers: make(map[string]*Breaker)}
}

// GetOrCreate returns the breaker registered under name, creating it with
// cfg if it does not exist yet. The call is idempotent: once a breaker
// exists, the config argument is ignored on subsequent calls.
func (r *Registry) GetOrCreate(name string, cfg Config) *Breaker {
	r.mu.RLock()
	b, ok := r.breakers[name]
	r.mu.RUnlock()
	if ok {
		return b
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	// Re-check under the write lock: another goroutine may have created it.
	if b, ok := r.breakers[name]; ok {
		return b
	}
	b = New(name, cfg)
	r.breakers[name] = b
	slog.Info("circuit breaker registered", slog.String("circuit", name))
	return b
}

// Get returns the breaker registered under name, or nil.
func (r *Registry) Get(name string) *Breaker {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.breakers[name]
}

// Names returns the registered breaker names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.breakers))
	for name := range r.breakers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// OpenBreakers returns the names of breakers currently in the open state,
// in sorted order.
func (r *Registry) OpenBreakers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var open []string
	for name, b := range r.breakers {
		if b.State() == StateOpen {
			open = append(open, name)
		}
	}
	sort.Strings(open)
	return open
}

// AllSnapshots returns a snapshot of every registered breaker, keyed by name.
func (r *Registry) AllSnapshots() map[string]Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	snaps := make(map[string]Snapshot, len(r.breakers))
	for name, b := range r.breakers {
		snaps[name] = b.Snapshot()
	}
	return snaps
}

// ResetAll resets every registered breaker to the closed state.
func (r *Registry) ResetAll() {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, b := range r.breakers {
		b.Reset()
	}
	slog.Info("all circuit breakers reset", slog.Int("count", len(r.breakers)))
}
