package asyncnode

import (
	"context"
	"sync"
	"testing"
	"time"

	"reactiveflow/internal/corenode"
	"reactiveflow/internal/errs"
	"reactiveflow/internal/typetag"
	"reactiveflow/internal/workerpool"
)

// newPushSource builds an eager int source with no compute hook. Each
// Publish on it pushes into its successors, which reaches an async node's
// launch hook even while a task is in flight (a Request at that point
// returns errs.Pending without launching).
func newPushSource() *corenode.Node {
	return corenode.New(corenode.Config{
		Name:      "src",
		Kind:      corenode.KindProvider,
		OutputTag: typetag.For[int](),
		Mode:      corenode.Eager,
		Cache:     corenode.FullCached,
	})
}

func TestAsyncNodeModeNoneRunsSynchronously(t *testing.T) {
	pool := workerpool.New(1, 1)
	defer pool.Close()

	a := New[int](pool, "sync", corenode.Eager, ModeNone, false, nil,
		func(ctx context.Context, inputs []any, p Progress) (int, error) {
			return 42, nil
		})

	ctx := context.Background()
	a.Core().Request(ctx) // ModeNone runs inline; state is Fresh immediately after.
	v, err := a.Request(ctx)
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	if v != 42 {
		t.Errorf("Request = %d, want 42", v)
	}
}

func TestAsyncNodeModeDefaultDropsWhileBusy(t *testing.T) {
	pool := workerpool.New(2, 4)
	defer pool.Close()

	started := make(chan struct{})
	release := make(chan struct{})
	var calls int
	var mu sync.Mutex

	src := newPushSource()
	a := New[int](pool, "default", corenode.Eager, ModeDefault, false, []Input{In[int]("n", false)},
		func(ctx context.Context, inputs []any, p Progress) (int, error) {
			mu.Lock()
			calls++
			mu.Unlock()
			started <- struct{}{}
			<-release
			return 1, nil
		})
	if _, err := src.ConnectSuccessor(a.Core()); err != nil {
		t.Fatalf("connect: %v", err)
	}

	ctx := context.Background()
	src.Publish(ctx, 1, nil) // dispatches the first task onto the pool
	<-started                // first task is now running and holding busy=true

	src.Publish(ctx, 2, nil) // should be dropped: a task is already in flight
	close(release)
	time.Sleep(20 * time.Millisecond)

	mu.Lock()
	got := calls
	mu.Unlock()
	if got != 1 {
		t.Errorf("calls while busy under ModeDefault = %d, want 1 (second trigger dropped)", got)
	}
}

func TestAsyncNodeModeAllRunsEveryQueuedTrigger(t *testing.T) {
	pool := workerpool.New(1, 8)
	defer pool.Close()

	var mu sync.Mutex
	var order []int
	gate := make(chan struct{})
	first := true

	src := newPushSource()
	a := New[int](pool, "queued", corenode.Eager, ModeAll, false, []Input{In[int]("n", false)},
		func(ctx context.Context, inputs []any, p Progress) (int, error) {
			mu.Lock()
			isFirst := first
			first = false
			mu.Unlock()
			if isFirst {
				<-gate
			}
			mu.Lock()
			order = append(order, len(order)+1)
			mu.Unlock()
			return 0, nil
		})
	if _, err := src.ConnectSuccessor(a.Core()); err != nil {
		t.Fatalf("connect: %v", err)
	}

	ctx := context.Background()
	src.Publish(ctx, 1, nil)
	src.Publish(ctx, 2, nil)
	src.Publish(ctx, 3, nil)
	close(gate)
	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	n := len(order)
	mu.Unlock()
	if n != 3 {
		t.Fatalf("ModeAll should eventually run every queued trigger, got %d of 3", n)
	}
}

func TestAsyncNodeCancelPropagatesToTask(t *testing.T) {
	pool := workerpool.New(1, 1)
	defer pool.Close()

	canceled := make(chan struct{})
	a := New[int](pool, "cancelable", corenode.Eager, ModeLatest, false, nil,
		func(ctx context.Context, inputs []any, p Progress) (int, error) {
			<-ctx.Done()
			close(canceled)
			return 0, ctx.Err()
		})

	ctx := context.Background()
	a.Core().Request(ctx)
	time.Sleep(10 * time.Millisecond)
	a.Cancel()

	select {
	case <-canceled:
	case <-time.After(time.Second):
		t.Fatal("Cancel did not propagate to the running task's context")
	}
}

func TestAsyncNodeProgressReporting(t *testing.T) {
	pool := workerpool.New(1, 1)
	defer pool.Close()

	done := make(chan struct{})
	a := New[int](pool, "progress", corenode.Eager, ModeDefault, false, nil,
		func(ctx context.Context, inputs []any, p Progress) (int, error) {
			p.Report(0.5)
			return 1, nil
		})

	var got float64
	a.OnProgress(func(v float64) {
		got = v
		close(done)
	})

	ctx := context.Background()
	a.Core().Request(ctx)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("OnProgress callback never fired")
	}
	if got != 0.5 {
		t.Errorf("reported progress = %v, want 0.5", got)
	}
}

func TestAsyncNodeRequestPendingWhileInFlight(t *testing.T) {
	pool := workerpool.New(1, 1)
	defer pool.Close()

	release := make(chan struct{})
	a := New[int](pool, "pending", corenode.Eager, ModeDefault, false, nil,
		func(ctx context.Context, inputs []any, p Progress) (int, error) {
			<-release
			return 1, nil
		})

	ctx := context.Background()
	a.Core().Request(ctx)
	time.Sleep(10 * time.Millisecond)

	if _, err := a.Core().Request(ctx); err != errs.Pending {
		t.Errorf("Request while in flight = %v, want %v", err, errs.Pending)
	}
	close(release)
}
