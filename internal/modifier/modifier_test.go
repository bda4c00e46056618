package modifier

import (
	"context"
	"testing"

	"reactiveflow/internal/corenode"
	"reactiveflow/internal/typetag"
)

// sourceNode is a minimal provider-shaped predecessor for exercising a
// modifier's Request/caching behavior without pulling in the provider
// package.
type sourceNode struct {
	core *corenode.Node
	val  int
}

func newSourceNode(name string, mode corenode.Mode) *sourceNode {
	s := &sourceNode{}
	s.core = corenode.New(corenode.Config{
		Name:      name,
		Kind:      corenode.KindProvider,
		OutputTag: typetag.For[int](),
		Mode:      mode,
		Cache:     corenode.FullCached,
		Compute: func(ctx context.Context, inputs []any) (any, error) {
			return s.val, nil
		},
	})
	return s
}

func (s *sourceNode) set(ctx context.Context, v int) {
	s.val = v
	s.core.Publish(ctx, v, nil)
}

func TestModifierTransientRecomputesEveryRequest(t *testing.T) {
	src := newSourceNode("src", corenode.Lazy)
	calls := 0
	mod := New[int]("double", corenode.Lazy, corenode.Transient, false,
		[]Input{In[int]("n", false)},
		func(ctx context.Context, inputs []any) (any, error) {
			calls++
			return inputs[0].(int) * 2, nil
		})
	if _, err := src.core.ConnectSuccessor(mod.Core()); err != nil {
		t.Fatalf("connect: %v", err)
	}

	ctx := context.Background()
	src.set(ctx, 3)

	if _, err := mod.Request(ctx); err != nil {
		t.Fatalf("Request: %v", err)
	}
	if _, err := mod.Request(ctx); err != nil {
		t.Fatalf("Request: %v", err)
	}
	if calls != 2 {
		t.Fatalf("transient modifier should recompute on every request, got %d calls", calls)
	}
}

func TestModifierFullCachedSkipsRecomputeWhileFresh(t *testing.T) {
	src := newSourceNode("src", corenode.Lazy)
	calls := 0
	mod := New[int]("double", corenode.Lazy, corenode.FullCached, false,
		[]Input{In[int]("n", false)},
		func(ctx context.Context, inputs []any) (any, error) {
			calls++
			return inputs[0].(int) * 2, nil
		})
	if _, err := src.core.ConnectSuccessor(mod.Core()); err != nil {
		t.Fatalf("connect: %v", err)
	}

	ctx := context.Background()
	src.set(ctx, 3)

	v1, err := mod.Request(ctx)
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	v2, err := mod.Request(ctx)
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	if calls != 1 {
		t.Fatalf("fully cached modifier should recompute once while Fresh, got %d calls", calls)
	}
	if v1 != 6 || v2 != 6 {
		t.Errorf("values = %v, %v, want 6, 6", v1, v2)
	}
}

// triggerSource is a minimal provider-shaped predecessor that outputs
// TriggerState values, for exercising trigger-as-input wiring.
type triggerSource struct {
	core *corenode.Node
}

func newTriggerSource(name string) *triggerSource {
	s := &triggerSource{}
	s.core = corenode.New(corenode.Config{
		Name:      name,
		Kind:      corenode.KindProvider,
		OutputTag: typetag.For[corenode.TriggerState](),
		Mode:      corenode.Eager,
		Cache:     corenode.FullCached,
	})
	return s
}

func (s *triggerSource) set(ctx context.Context, v corenode.TriggerState) {
	s.core.Publish(ctx, v, nil)
}

func TestModifierTriggerInputDrivesGate(t *testing.T) {
	data := newSourceNode("data", corenode.Eager)
	gate := newTriggerSource("gate")
	calls := 0
	mod := New[int]("gated", corenode.Eager, corenode.Transient, true,
		[]Input{In[int]("n", false), TriggerIn("gate")},
		func(ctx context.Context, inputs []any) (any, error) {
			calls++
			return inputs[0].(int) * 2, nil
		})
	if _, err := data.core.ConnectSuccessor(mod.Core()); err != nil {
		t.Fatalf("connect data: %v", err)
	}
	if _, err := gate.core.ConnectSuccessor(mod.Core()); err != nil {
		t.Fatalf("connect gate: %v", err)
	}

	ctx := context.Background()
	gate.set(ctx, corenode.Disabled)

	data.set(ctx, 3)
	if calls != 0 {
		t.Fatalf("modifier recomputed while its trigger-input gate was disabled, got %d calls", calls)
	}

	gate.set(ctx, corenode.Active)
	if calls != 1 {
		t.Fatalf("pushing the gate back to active with a dirty input should recompute exactly once, got %d calls", calls)
	}

	v, err := mod.Request(ctx)
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	if v != 6 {
		t.Errorf("value = %d, want 6", v)
	}
}

func TestModifierQuietInputDoesNotTriggerEagerRecompute(t *testing.T) {
	loud := newSourceNode("loud", corenode.Eager)
	quiet := newSourceNode("quiet", corenode.Eager)
	calls := 0
	mod := New[int]("combine", corenode.Eager, corenode.Transient, false,
		[]Input{In[int]("loud", false), In[int]("quiet", true)},
		func(ctx context.Context, inputs []any) (any, error) {
			calls++
			return inputs[0].(int) + inputs[1].(int), nil
		})
	if _, err := loud.core.ConnectSuccessor(mod.Core()); err != nil {
		t.Fatalf("connect loud: %v", err)
	}
	if _, err := quiet.core.ConnectSuccessor(mod.Core()); err != nil {
		t.Fatalf("connect quiet: %v", err)
	}

	ctx := context.Background()
	quiet.set(ctx, 100)
	if calls != 0 {
		t.Fatalf("updating a quiet slot must not trigger eager recompute, got %d calls", calls)
	}

	loud.set(ctx, 1)
	if calls != 1 {
		t.Fatalf("updating the loud slot should recompute exactly once, got %d calls", calls)
	}

	v, err := mod.Request(ctx)
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	if v != 101 {
		t.Errorf("combined value = %d, want 101 (quiet's update still feeds the computation, it just didn't wake the node up)", v)
	}
}
