package stream

import (
	"sync"
	"testing"
)

func TestAllocatePort_valid(t *testing.T) {
	port, err := AllocatePort()
	if err != nil {
		t.Fatalf("AllocatePort: %v", err)
	}
	if port <= 0 || port > 65535 {
		t.Errorf("port %d out of range", port)
	}
}

func TestAllocatePort_concurrentDistinct(t *testing.T) {
	const n = 20

	var mu sync.Mutex
	seen := make(map[int]bool)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			port, err := AllocatePort()
			if err != nil {
				t.Errorf("AllocatePort: %v", err)
				return
			}
			mu.Lock()
			if seen[port] {
				t.Errorf("port %d allocated twice", port)
			}
			seen[port] = true
			mu.Unlock()
		}()
	}
	wg.Wait()
}
