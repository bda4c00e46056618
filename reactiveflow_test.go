package reactiveflow

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestBuilderConnectTypeMismatchRejected(t *testing.T) {
	mgr := NewManager(1, 4, 4)
	defer mgr.Close()

	intSrc, prov := AddProvider[int](mgr, "ints", Eager, false)
	strMod := AddModifier[string](mgr, "strmod", Eager, Transient, false,
		[]ModifierInput{ModifierIn[string]("s", false)},
		func(ctx context.Context, inputs []any) (any, error) { return inputs[0], nil })

	_, err := Connect(intSrc, strMod)
	if !errors.Is(err, ErrInvalidType) {
		t.Fatalf("Connect(int, string modifier) = %v, want %v", err, ErrInvalidType)
	}
	_ = prov
}

func TestBuilderEagerChainPropagates(t *testing.T) {
	mgr := NewManager(1, 4, 4)
	defer mgr.Close()

	src, prov := AddProvider[int](mgr, "src", Eager, false)
	doubled := AddModifier[int](mgr, "doubled", Eager, Transient, false,
		[]ModifierInput{ModifierIn[int]("n", false)},
		func(ctx context.Context, inputs []any) (any, error) {
			return inputs[0].(int) * 2, nil
		})
	if _, err := Connect(src, doubled); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	ctx := context.Background()
	prov.Update(ctx, 21)

	v, err := doubled.Request(ctx)
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	if v != 42 {
		t.Errorf("doubled = %d, want 42", v)
	}
}

func TestBuilderPulseRequiresManagerTick(t *testing.T) {
	mgr := NewManager(1, 4, 4)
	defer mgr.Close()

	src, prov := AddProvider[int](mgr, "src", Pulse, false)
	seen := make(chan int, 4)
	// The listener stays eager: it fires synchronously the instant the
	// pulse provider's own tick pushes a value, without needing to be a
	// second pulse node in the manager's registry itself.
	sink := AddListener[int](mgr, "sink", Eager, "n", func(ctx context.Context, v int, err error) {
		seen <- v
	})
	if _, err := Connect(src, sink); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	ctx := context.Background()
	prov.Update(ctx, 1)
	prov.Update(ctx, 2)
	prov.Update(ctx, 3)

	select {
	case <-seen:
		t.Fatal("listener fired before any manager tick")
	default:
	}

	mgr.Update(ctx)

	select {
	case v := <-seen:
		if v != 3 {
			t.Errorf("delivered value = %d, want 3 (the last update before the tick)", v)
		}
	default:
		t.Fatal("pulse tick should have delivered exactly one value")
	}

	select {
	case v := <-seen:
		t.Fatalf("pulse should coalesce to one delivery per tick, got an extra value %d", v)
	default:
	}
}

func TestDisconnectStopsPropagation(t *testing.T) {
	mgr := NewManager(1, 4, 4)
	defer mgr.Close()

	src, prov := AddProvider[int](mgr, "src", Eager, false)
	var mu sync.Mutex
	calls := 0
	sink := AddListener[int](mgr, "sink", Eager, "n", func(ctx context.Context, v int, err error) {
		mu.Lock()
		calls++
		mu.Unlock()
	})
	if _, err := Connect(src, sink); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	ctx := context.Background()
	prov.Update(ctx, 1)

	Disconnect(src, sink)
	prov.Update(ctx, 2)

	mu.Lock()
	got := calls
	mu.Unlock()
	if got != 1 {
		t.Errorf("calls after Disconnect = %d, want 1 (no delivery for the second update)", got)
	}
}

func TestPostActionRunsOnNextUpdate(t *testing.T) {
	mgr := NewManager(1, 4, 4)
	defer mgr.Close()

	ran := make(chan struct{}, 1)
	if err := mgr.PostAction(context.Background(), func(ctx context.Context) {
		ran <- struct{}{}
	}); err != nil {
		t.Fatalf("PostAction: %v", err)
	}

	select {
	case <-ran:
		t.Fatal("posted action ran before the next Update")
	default:
	}

	mgr.Update(context.Background())

	select {
	case <-ran:
	default:
		t.Fatal("posted action did not run during Update")
	}
}

func TestPeekReportsExpiredWithoutForcingRecompute(t *testing.T) {
	mgr := NewManager(1, 4, 4)
	defer mgr.Close()

	calls := 0
	src, prov := AddProvider[int](mgr, "src", Lazy, false)
	doubled := AddModifier[int](mgr, "doubled", Lazy, Transient, false,
		[]ModifierInput{ModifierIn[int]("n", false)},
		func(ctx context.Context, inputs []any) (any, error) {
			calls++
			return inputs[0].(int) * 2, nil
		})
	if _, err := Connect(src, doubled); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	ctx := context.Background()
	prov.Update(ctx, 10)

	if _, err := doubled.Peek(); !errors.Is(err, ErrExpired) {
		t.Fatalf("Peek on a dirty lazy modifier = %v, want %v", err, ErrExpired)
	}
	if calls != 0 {
		t.Fatalf("Peek must never trigger a recompute, got %d calls", calls)
	}

	v, err := doubled.Request(ctx)
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	if v != 20 {
		t.Errorf("Request = %d, want 20", v)
	}

	v, err = doubled.Peek()
	if err != nil {
		t.Fatalf("Peek after Request: %v", err)
	}
	if v != 20 {
		t.Errorf("Peek after Request = %d, want 20", v)
	}
}

func TestDebugDumpReportsEveryNode(t *testing.T) {
	mgr := NewManager(1, 4, 4)
	defer mgr.Close()

	src, prov := AddProvider[int](mgr, "src", Eager, false)
	doubled := AddModifier[int](mgr, "doubled", Eager, Transient, false,
		[]ModifierInput{ModifierIn[int]("n", false)},
		func(ctx context.Context, inputs []any) (any, error) { return inputs[0].(int) * 2, nil })
	if _, err := Connect(src, doubled); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	ctx := context.Background()
	prov.Update(ctx, 5)

	snap := mgr.DebugDump()
	if len(snap) != 2 {
		t.Fatalf("DebugDump returned %d entries, want 2", len(snap))
	}

	byName := make(map[string]NodeSnapshot, len(snap))
	for _, s := range snap {
		byName[s.Name] = s
	}
	if s, ok := byName["src"]; !ok || s.State != Fresh {
		t.Errorf("src snapshot = %+v, want present and Fresh", s)
	}
	if s, ok := byName["doubled"]; !ok || s.State != Fresh {
		t.Errorf("doubled snapshot = %+v, want present and Fresh", s)
	}
}

func TestAsyncCompletionAppliesOnlyOnManagerTick(t *testing.T) {
	mgr := NewManager(1, 4, 4)
	defer mgr.Close()

	release := make(chan struct{})
	src, prov := AddProvider[int](mgr, "src", Eager, false)
	work, _ := AddAsync[int](mgr, "work", Eager, ExecDefault, false,
		[]AsyncInput{AsyncIn[int]("n", false)},
		func(ctx context.Context, inputs []any, p Progress) (int, error) {
			<-release
			return inputs[0].(int) * 2, nil
		})
	seen := make(chan int, 1)
	sink := AddListener[int](mgr, "sink", Eager, "n", func(ctx context.Context, v int, err error) {
		seen <- v
	})
	if _, err := Connect(src, work); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if _, err := Connect(work, sink); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	ctx := context.Background()
	prov.Update(ctx, 5) // dispatches the task onto the worker pool

	if s := work.State(); s != InFlight {
		t.Fatalf("state before task finishes = %v, want %v", s, InFlight)
	}

	close(release) // the task runs to completion and calls finish()
	time.Sleep(20 * time.Millisecond)

	// finish() posts to the manager's completion queue instead of
	// publishing straight from the worker-pool goroutine; until a tick
	// drains that queue, the node must still read as in flight and no
	// listener delivery should have happened.
	if s := work.State(); s != InFlight {
		t.Fatalf("state after task finished but before any tick = %v, want %v", s, InFlight)
	}

	select {
	case v := <-seen:
		t.Fatalf("listener saw %d before any manager tick drained the completion", v)
	default:
	}

	mgr.Update(ctx)

	select {
	case v := <-seen:
		if v != 10 {
			t.Errorf("delivered value = %d, want 10", v)
		}
	default:
		t.Fatal("manager tick should have drained the completion and propagated it")
	}

	if s := work.State(); s != Fresh {
		t.Errorf("state after tick = %v, want %v", s, Fresh)
	}
}

func TestRetainReleaseViaHandle(t *testing.T) {
	mgr := NewManager(1, 4, 4)
	defer mgr.Close()

	src, _ := AddProvider[int](mgr, "src", Eager, false)
	child := AddModifier[int](mgr, "child", Eager, Transient, false,
		[]ModifierInput{ModifierIn[int]("n", false)},
		func(ctx context.Context, inputs []any) (any, error) { return inputs[0], nil })

	if _, err := Connect(src, child); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	// child's handle and src's successor edge are two independent strong
	// references; releasing one must not affect the node's usability
	// through the other.
	child.Retain()
	child.Release()

	src.Release()
}
