package metrics

import (
	"sync"
	"testing"
)

func TestRegistryCounters(t *testing.T) {
	r := NewRegistry()

	r.Inc("a", 1)
	r.Inc("a", 2)
	r.Inc("b", 5)

	if got := r.Counter("a"); got != 3 {
		t.Fatalf("expected a=3, got %d", got)
	}
	if got := r.Counter("missing"); got != 0 {
		t.Fatalf("expected missing counter to read 0, got %d", got)
	}

	snap := r.Snapshot()
	if snap["a"] != 3 || snap["b"] != 5 {
		t.Fatalf("unexpected snapshot: %v", snap)
	}

	names := r.Names()
	if len(names) != 2 || names[0] != "a" || names[1] != "b" {
		t.Fatalf("unexpected names: %v", names)
	}
}

func TestRegistryConcurrentInc(t *testing.T) {
	r := NewRegistry()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				r.Inc("ops", 1)
			}
		}()
	}
	wg.Wait()

	if got := r.Counter("ops"); got != 800 {
		t.Fatalf("expected 800, got %d", got)
	}
}
