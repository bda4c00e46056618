// Package corenode implements the node core shared by every node flavor:
// reference-counted handles, predecessor/successor bookkeeping, cycle
// checking at connect time, and the eager/lazy/pulse propagation engine.
// Concrete flavors (provider, modifier, listener, asyncnode) embed *Node
// and supply their behavior as function hooks rather than through an
// interface hierarchy, pairing a plain struct with its own lock instead of
// reaching for an interface.
package corenode

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/multierr"

	"reactiveflow/internal/errs"
	"reactiveflow/internal/typetag"
	"reactiveflow/internal/value"
)

// ComputeFunc is a node's own synchronous computation: given the current
// value of every predecessor slot, produce this node's output. Provider
// nodes have no predecessors and a ComputeFunc that simply reads the last
// externally-set value; listener nodes return nil and run their user
// callback as a side effect of being computed.
type ComputeFunc func(ctx context.Context, inputs []any) (any, error)

type predecessorSlot struct {
	tag       typetag.Tag
	name      string
	quiet     bool
	isTrigger bool // TriggerType slot: a push sets the gate instead of marking dirty
	producer  *Node // weak: does not hold a reference
	filled    bool
	dirty     bool
	cached    value.Carrier[any]
	cachedOK  bool // true once cached has ever held a value
}

type successorEdge struct {
	child     *Node
	slotIndex int
}

// Node is the engine-private core embedded by every public node wrapper.
// All of its fields are guarded by mu; callers never see *Node directly,
// only the typed handles built on top of it.
type Node struct {
	mu sync.Mutex

	name      string
	kind      Kind
	outputTag typetag.Tag

	mode       Mode
	cache      CacheDiscipline
	retainCopy bool // providers only: Cached (borrowed output) vs General (owned output)

	trigger    TriggerState
	hasTrigger bool // false for Provider/Listener, which ignore the gate entirely

	predecessors []*predecessorSlot
	successors   []successorEdge

	state    DataState
	output   value.Carrier[any]
	lastErr  error

	compute     ComputeFunc
	asyncLaunch func(ctx context.Context)
	teardownFn  func()

	refcount atomic.Int64

	// pulse bookkeeping; manager consults/clears these each tick.
	pulseDirty bool
	registered bool // true while the manager holds this node in its pulse registry

	lastTeardownErr error
}

// Config bundles the construction-time parameters shared by every flavor.
type Config struct {
	Name       string
	Kind       Kind
	OutputTag  typetag.Tag
	Mode       Mode
	Cache      CacheDiscipline
	RetainCopy bool
	HasTrigger bool
	Inputs     []InputDescriptor
	Compute    ComputeFunc
	Teardown   func()
}

// New builds a Node with refcount 1 (the caller's own reference).
func New(cfg Config) *Node {
	n := &Node{
		name:       cfg.Name,
		kind:       cfg.Kind,
		outputTag:  cfg.OutputTag,
		mode:       cfg.Mode,
		cache:      cfg.Cache,
		retainCopy: cfg.RetainCopy,
		hasTrigger: cfg.HasTrigger,
		trigger:    Active,
		state:      ExpiredState,
		compute:    cfg.Compute,
		teardownFn: cfg.Teardown,
	}
	n.predecessors = make([]*predecessorSlot, len(cfg.Inputs))
	for i, d := range cfg.Inputs {
		n.predecessors[i] = &predecessorSlot{name: d.Name, quiet: d.Quiet, isTrigger: d.IsTrigger}
	}
	n.refcount.Store(1)
	return n
}

// SetInputTag fixes the expected producer type for slot i. Builders call
// this right after New, once per declared input, using typetag.For[T]() for
// that input's compile-time type.
func (n *Node) SetInputTag(slot int, tag typetag.Tag) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.predecessors[slot].tag = tag
}

func (n *Node) Name() string      { return n.name }
func (n *Node) Kind() Kind        { return n.kind }
func (n *Node) OutputTag() typetag.Tag { return n.outputTag }

func (n *Node) String() string {
	if n.name != "" {
		return fmt.Sprintf("%s(%s)", n.kind, n.name)
	}
	return fmt.Sprintf("%s(%p)", n.kind, n)
}

// Retain increments the strong reference count. Called by NodeHandle.Retain,
// for every successor edge, and for every in-flight async task. Copying a
// NodeHandle does not call it, and the manager's node and pulse registries
// hold no strong reference.
func (n *Node) Retain() {
	n.refcount.Add(1)
}

// Release decrements the strong reference count and tears the node down
// once it reaches zero. Go has no scope-exit destructors, so every holder
// of a strong reference (NodeHandle, a successor edge, an in-flight task)
// must call Release explicitly exactly once per Retain
// (including the implicit +1 from New).
func (n *Node) Release() {
	if n.refcount.Add(-1) != 0 {
		return
	}
	n.teardown()
}

func (n *Node) teardown() {
	n.mu.Lock()
	succ := n.successors
	n.successors = nil
	fn := n.teardownFn
	n.mu.Unlock()

	var err error
	for _, e := range succ {
		// releasing may recursively tear down e.child; collect any panic
		// a misbehaving teardown hook raises instead of losing siblings.
		err = multierr.Append(err, safeRelease(e.child))
	}
	if fn != nil {
		fn()
	}
	n.mu.Lock()
	n.lastTeardownErr = err
	n.mu.Unlock()
}

func safeRelease(child *Node) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic releasing child: %v", r)
		}
	}()
	child.Release()
	return nil
}

// TeardownErr returns the aggregated error, if any, from the last time this
// node's refcount hit zero. The manager logs it; Release itself cannot
// return anything since it mirrors a destructor call made from arbitrary
// call sites.
func (n *Node) TeardownErr() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.lastTeardownErr
}

// State reports the node's current data state.
func (n *Node) State() DataState {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state
}

// errKind maps a DataState to the sentinel error Request should surface.
func (s DataState) errKind() error {
	switch s {
	case FailedState:
		return errs.Failed
	case PendingState:
		return errs.Pending
	case ExpiredState:
		return errs.Expired
	default:
		return nil
	}
}
