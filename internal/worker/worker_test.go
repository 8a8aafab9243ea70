package worker

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestNewWorkerPool(t *testing.T) {
	pool := NewPool(4)
	if pool.NumWorkers() != 4 {
		t.Errorf("expected 4 workers, got %d", pool.NumWorkers())
	}

	// Zero should default to a single worker
	pool2 := NewPool(0)
	if pool2.NumWorkers() != 1 {
		t.Errorf("expected 1 worker, got %d", pool2.NumWorkers())
	}
}

func TestWorkerPoolStartStop(t *testing.T) {
	pool := NewPool(2)
	ctx := context.Background()

	pool.Start(ctx)
	// Double start should be no-op
	pool.Start(ctx)

	pool.Stop()
	// Double stop should be no-op
	pool.Stop()
}

func TestWorkerPoolSubmitAfterStop(t *testing.T) {
	pool := NewPool(2)
	pool.Start(context.Background())
	pool.Stop()

	if pool.SubmitWait(func() {}) {
		t.Error("expected SubmitWait to return false after stop")
	}
}

func TestForEachRunsEveryItem(t *testing.T) {
	items := []string{"10.0.0.1", "10.0.0.2", "10.0.0.3", "10.0.0.4", "10.0.0.5"}

	var mu sync.Mutex
	var seen []string
	err := ForEach(context.Background(), 2, items, func(_ context.Context, addr string) {
		mu.Lock()
		seen = append(seen, addr)
		mu.Unlock()
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	sort.Strings(seen)
	if len(seen) != len(items) {
		t.Fatalf("expected %d items processed, got %d", len(items), len(seen))
	}
	for i := range items {
		if seen[i] != items[i] {
			t.Errorf("item %d: expected %s, got %s", i, items[i], seen[i])
		}
	}
}

func TestForEachBoundsParallelism(t *testing.T) {
	var current, peak atomic.Int32
	items := make([]int, 8)

	_ = ForEach(context.Background(), 3, items, func(context.Context, int) {
		n := current.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		current.Add(-1)
	})

	if peak.Load() > 3 {
		t.Errorf("expected at most 3 concurrent jobs, got %d", peak.Load())
	}
}

func TestForEachRunsConcurrently(t *testing.T) {
	items := []int{1, 2, 3}
	start := time.Now()

	_ = ForEach(context.Background(), 0, items, func(context.Context, int) {
		time.Sleep(50 * time.Millisecond)
	})

	if elapsed := time.Since(start); elapsed > 140*time.Millisecond {
		t.Errorf("expected parallel execution, took %v", elapsed)
	}
}

func TestForEachCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var counter atomic.Int32
	err := ForEach(ctx, 2, []int{1, 2, 3}, func(ctx context.Context, _ int) {
		if ctx.Err() != nil {
			counter.Add(1)
		}
	})

	if err != context.Canceled {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	// 投入済みのジョブは実行され、キャンセル済みctxを受け取る
	if counter.Load() != 3 {
		t.Errorf("expected 3 jobs to observe cancellation, got %d", counter.Load())
	}
}

func TestForEachEmpty(t *testing.T) {
	called := false
	if err := ForEach(context.Background(), 4, nil, func(context.Context, string) { called = true }); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if called {
		t.Error("fn must not be called for empty input")
	}
}
