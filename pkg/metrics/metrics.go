package metrics

import (
	"sort"
	"sync"
)

// Collector captures operation counters.
type Collector interface {
	Inc(name string, delta int64)
}

// Registry is a concurrency-safe in-memory Collector. The worker goroutine
// increments it and the HTTP surface reads it, so access is locked.
type Registry struct {
	mu       sync.RWMutex
	counters map[string]int64
}

func NewRegistry() *Registry {
	return &Registry{counters: make(map[string]int64)}
}

func (r *Registry) Inc(name string, delta int64) {
	r.mu.Lock()
	r.counters[name] += delta
	r.mu.Unlock()
}

// Counter returns the current value of one counter.
func (r *Registry) Counter(name string) int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.counters[name]
}

// Snapshot returns a copy of all counters.
func (r *Registry) Snapshot() map[string]int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]int64, len(r.counters))
	for name, v := range r.counters {
		out[name] = v
	}
	return out
}

// Names returns all counter names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.counters))
	for name := range r.counters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Nop is a Collector that discards everything.
type Nop struct{}

func (Nop) Inc(string, int64) {}
