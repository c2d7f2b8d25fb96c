package wrshare

import (
	"sync"
	"testing"

	"github.com/oklog/ulid/v2"
)

func TestNewRequestIDOrderingAndValidity(t *testing.T) {
	const total = 200
	ids := make([]string, total)
	for i := range ids {
		ids[i] = NewRequestID()
	}
	for i, id := range ids {
		if _, err := ulid.Parse(id); err != nil {
			t.Fatalf("id %d is not a valid ULID: %s", i, err)
		}
	}
	for i := 1; i < total; i++ {
		if ids[i-1] >= ids[i] {
			t.Fatalf("expected strictly increasing IDs, %s >= %s", ids[i-1], ids[i])
		}
	}
}

func TestNewRequestIDConcurrentUniqueness(t *testing.T) {
	const goroutines = 8
	const perGoroutine = 50

	var mu sync.Mutex
	seen := make(map[string]bool, goroutines*perGoroutine)
	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perGoroutine; i++ {
				id := NewRequestID()
				mu.Lock()
				if seen[id] {
					t.Errorf("duplicate correlation ID %s", id)
				}
				seen[id] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
}

func TestNewConnID(t *testing.T) {
	a := NewConnID()
	b := NewConnID()
	if a == "" || a == b {
		t.Errorf("expected distinct non-empty connection IDs, got %q and %q", a, b)
	}
}
