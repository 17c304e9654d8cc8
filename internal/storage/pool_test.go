package storage

import (
	"sync"
	"sync/atomic"
	"testing"
)

func TestPoolRunsAllJobs(t *testing.T) {
	p := NewPool(4)
	defer p.Close()

	var count int64
	for i := 0; i < 100; i++ {
		p.Submit(func() {
			atomic.AddInt64(&count, 1)
		})
	}
	p.Wait()

	if count != 100 {
		t.Errorf("ran %d jobs, want 100", count)
	}
}

func TestPoolWaitIsReusable(t *testing.T) {
	p := NewPool(2)
	defer p.Close()

	var mu sync.Mutex
	var order []int

	p.Submit(func() { mu.Lock(); order = append(order, 1); mu.Unlock() })
	p.Wait()
	p.Submit(func() { mu.Lock(); order = append(order, 2); mu.Unlock() })
	p.Wait()

	if len(order) != 2 {
		t.Errorf("ran %d jobs across two batches, want 2", len(order))
	}
}

func TestPoolDefaultsWorkerCount(t *testing.T) {
	p := NewPool(0)
	defer p.Close()

	done := make(chan struct{})
	p.Submit(func() { close(done) })
	p.Wait()

	select {
	case <-done:
	default:
		t.Error("job did not run with default worker count")
	}
}
