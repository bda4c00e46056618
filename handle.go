package reactiveflow

import (
	"context"
	"fmt"

	"reactiveflow/internal/asyncnode"
	"reactiveflow/internal/corenode"
	"reactiveflow/internal/listener"
	"reactiveflow/internal/modifier"
	"reactiveflow/internal/provider"
)

// NodeHandle is the reference-counted, typed handle a caller holds to any
// node on the graph, regardless of flavor. Go has no scope-exit
// destructors: the handle an AddX call returns carries one strong
// reference, and every reference (that one, plus one per Retain call) must
// eventually be balanced with exactly one Release call, mirroring a C++
// shared_ptr's reset made explicit since nothing will call it on the
// caller's behalf. Copying a NodeHandle value does not add a reference.
type NodeHandle[T any] struct {
	mgr  *Manager
	core *corenode.Node
	req  func(ctx context.Context) (T, error)
}

// Core exposes the underlying node core. Exported for Connect/Disconnect
// and for packages (like a future introspection/debug-dump helper) that
// need to walk the graph generically; ordinary callers never need it.
func (h NodeHandle[T]) Core() *corenode.Node { return h.core }

// Name returns the node's debug name.
func (h NodeHandle[T]) Name() string { return h.core.Name() }

// State reports the node's current data state.
func (h NodeHandle[T]) State() corenode.DataState { return h.core.State() }

// Request pulls the node's current value.
func (h NodeHandle[T]) Request(ctx context.Context) (T, error) { return h.req(ctx) }

// Peek returns the node's last published value without forcing a pull or
// recompute, so a caller can check a lazy or pulse node's cache for
// staleness (ErrExpired) before deciding whether to pay for a Request.
func (h NodeHandle[T]) Peek() (T, error) {
	var zero T
	v, err := h.core.Peek()
	if err != nil {
		return zero, err
	}
	if v == nil {
		return zero, nil
	}
	out, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("node %s: unexpected output type", h.core.Name())
	}
	return out, nil
}

// SetMode changes the node's propagation discipline, keeping the manager's
// pulse registry consistent with the new mode.
func (h NodeHandle[T]) SetMode(m corenode.Mode) {
	h.mgr.untrack(h.core)
	h.core.SetMode(m)
	h.mgr.track(h.core)
}

// SetTrigger sets the node's independent execution gate. A no-op on nodes
// that do not carry a gate (providers and listeners).
func (h NodeHandle[T]) SetTrigger(ctx context.Context, state corenode.TriggerState) {
	h.core.SetTrigger(ctx, state)
}

// Retain adds a strong reference, matched by a later Release.
func (h NodeHandle[T]) Retain() { h.core.Retain() }

// Release drops this handle's strong reference, tearing the node down (and
// cascading to every child it alone was keeping alive) once the last
// reference anywhere is gone.
func (h NodeHandle[T]) Release() { h.core.Release() }

// Connect attaches producer as a new predecessor of consumer, returning
// the slot index it landed in. Fails with errs.InvalidType if no free slot
// matches producer's type, or errs.RingDetected if the edge would close a
// cycle.
func Connect[A, B any](producer NodeHandle[A], consumer NodeHandle[B]) (int, error) {
	return producer.core.ConnectSuccessor(consumer.core)
}

// Disconnect removes the edge from producer to consumer, if present.
func Disconnect[A, B any](producer NodeHandle[A], consumer NodeHandle[B]) {
	producer.core.DisconnectSuccessor(consumer.core)
}

func wrap[T any](mgr *Manager, core *corenode.Node, req func(context.Context) (T, error)) NodeHandle[T] {
	mgr.track(core)
	return NodeHandle[T]{mgr: mgr, core: core, req: req}
}

// AddProvider adds a source node with no predecessors. cached selects the
// Cached flavor over General; with either, every pull returns the held
// value without consuming it (see provider.Provider).
func AddProvider[T any](mgr *Manager, name string, mode corenode.Mode, cached bool) (NodeHandle[T], *provider.Provider[T]) {
	p := provider.New[T](name, mode, cached)
	return wrap[T](mgr, p.Core(), p.Request), p
}

// ModifierInput is the input-declaration type modifier builders accept.
type ModifierInput = modifier.Input

// ModifierIn declares one typed, named modifier input slot.
func ModifierIn[T any](name string, quiet bool) ModifierInput { return modifier.In[T](name, quiet) }

// ModifierTriggerIn declares a modifier input slot that carries
// TriggerState values: connecting a TriggerState producer to it drives the
// modifier's own trigger gate as part of the graph instead of only through
// an out-of-band SetTrigger call. The modifier must also be built with
// withTrigger so the gate it composes into actually does anything.
func ModifierTriggerIn(name string) ModifierInput { return modifier.TriggerIn(name) }

// AddModifier adds an N-input synchronous transform node.
func AddModifier[T any](mgr *Manager, name string, mode corenode.Mode, cache corenode.CacheDiscipline, withTrigger bool, inputs []ModifierInput, fn modifier.Func) NodeHandle[T] {
	m := modifier.New[T](name, mode, cache, withTrigger, inputs, fn)
	return wrap[T](mgr, m.Core(), m.Request)
}

// AddListener adds a terminal sink node invoking cb on delivery.
func AddListener[T any](mgr *Manager, name string, mode corenode.Mode, inputName string, cb listener.OnUpdate[T]) NodeHandle[T] {
	l := listener.New[T](name, mode, inputName, cb)
	return wrap[T](mgr, l.Core(), func(ctx context.Context) (T, error) {
		var zero T
		return zero, l.RequestCache(ctx)
	})
}

// AsyncInput is the input-declaration type async builders accept.
type AsyncInput = asyncnode.Input

// AsyncIn declares one typed, named async-node input slot.
func AsyncIn[T any](name string, quiet bool) AsyncInput { return asyncnode.In[T](name, quiet) }

// AsyncTriggerIn declares an async-node input slot that carries
// TriggerState values, the async-node equivalent of ModifierTriggerIn.
func AsyncTriggerIn(name string) AsyncInput { return asyncnode.TriggerIn(name) }

// AddAsync adds a node whose computation runs on the manager's worker
// pool. execMode picks the overlap policy for repeated triggers.
func AddAsync[T any](mgr *Manager, name string, mode corenode.Mode, execMode asyncnode.ExecMode, withTrigger bool, inputs []AsyncInput, fn asyncnode.Func[T]) (NodeHandle[T], *asyncnode.AsyncNode[T]) {
	a := asyncnode.New[T](mgr.pool, name, mode, execMode, withTrigger, inputs, fn)
	a.SetCompletionSink(mgr.enqueueAsyncCompletion)
	return wrap[T](mgr, a.Core(), a.Request), a
}
