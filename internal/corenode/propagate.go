package corenode

import (
	"context"
	"fmt"

	"reactiveflow/internal/errs"
	"reactiveflow/internal/value"
)

// Mode reports the node's current propagation discipline.
func (n *Node) Mode() Mode {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.mode
}

// SetMode changes the node's propagation discipline. Changing mode never
// retroactively pushes or pulls; it only takes effect on the next change.
func (n *Node) SetMode(m Mode) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.mode = m
}

// Trigger reports the modifier/async gate's current state.
func (n *Node) Trigger() TriggerState {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.trigger
}

// SetTrigger sets the gate. Switching into Active from Disabled or a
// consumed OnPulse recomputes once immediately if any ordinary (non-trigger)
// input slot is dirty, rather than waiting for the next unrelated change to
// notice the gate reopened. A no-op on a node built without a gate.
func (n *Node) SetTrigger(ctx context.Context, state TriggerState) {
	n.mu.Lock()
	if !n.hasTrigger {
		n.mu.Unlock()
		return
	}
	prev := n.trigger
	n.trigger = state
	anyDirty := false
	for _, s := range n.predecessors {
		if s.dirty && !s.isTrigger {
			anyDirty = true
			break
		}
	}
	n.mu.Unlock()

	if state == Active && prev != Active && anyDirty {
		n.recomputeAndPublish(ctx)
	}
}

// Publish is called by a node's own flavor (provider after Update, modifier
// or async after a computation completes) to record a new result and
// propagate it to successors per this node's own mode.
func (n *Node) Publish(ctx context.Context, v any, err error) {
	n.publish(ctx, v, err, false)
}

// publishPulseFired is used by RunPulse: the tick forces a push to
// successors exactly as an eager node would, regardless of this node's own
// mode (a pulse node behaves like an eager source for the duration of its
// own fire).
func (n *Node) publishPulseFired(ctx context.Context, v any, err error) {
	n.publish(ctx, v, err, true)
}

func (n *Node) publish(ctx context.Context, v any, err error, forcePush bool) {
	n.mu.Lock()
	if err != nil {
		n.state = FailedState
		n.lastErr = err
		n.output = value.Empty[any]()
	} else {
		n.state = Fresh
		n.lastErr = nil
		if n.retainCopy {
			n.output = value.Borrowed(v)
		} else {
			n.output = value.Owned(v)
		}
	}
	push := forcePush || n.mode == Eager
	succ := append([]successorEdge(nil), n.successors...)
	n.mu.Unlock()

	if !push {
		// A lazy (or not-yet-fired pulse) producer never hands a value
		// downstream, but it still owes its successors the knowledge that
		// their corresponding slot just went stale, the same notification
		// an in-graph node gives its own successors via markExpiredCascade.
		for _, e := range succ {
			e.child.notifyUpstreamExpired(ctx, e.slotIndex)
		}
		return
	}

	for i, e := range succ {
		isLast := i == len(succ)-1
		var carrier value.Carrier[any]
		if err == nil {
			if isLast {
				carrier = value.Owned(v)
			} else {
				carrier = value.Borrowed(v)
			}
		}
		e.child.receivePush(ctx, e.slotIndex, carrier, err)
	}
}

// receivePush delivers a value (or a failure) pushed synchronously by an
// eager (or pulse-firing) predecessor into the given slot.
func (n *Node) receivePush(ctx context.Context, slot int, carrier value.Carrier[any], srcErr error) {
	n.mu.Lock()
	s := n.predecessors[slot]
	if s.isTrigger {
		n.mu.Unlock()
		n.receiveTriggerPush(ctx, s, carrier, srcErr)
		return
	}
	s.dirty = true
	if srcErr != nil {
		s.cached = value.Empty[any]()
		s.cachedOK = false
	} else if v, err := carrier.Take(); err == nil {
		s.cached = value.Borrowed(v)
		s.cachedOK = true
	}
	mode := n.mode
	quiet := s.quiet
	n.mu.Unlock()

	switch mode {
	case Eager:
		if quiet {
			return
		}
		n.recomputeAndPublish(ctx)
	case Lazy:
		n.markExpiredCascade(ctx)
	case Pulse:
		n.mu.Lock()
		n.state = ExpiredState
		n.pulseDirty = true
		n.mu.Unlock()
	}
}

// receiveTriggerPush handles a push into a TriggerType input slot: the
// carried value sets the gate directly instead of marking the slot dirty,
// composing the trigger into the DAG the same way set_trigger_type does out
// of band. SetTrigger already recomputes once on a transition into Active
// if any ordinary (non-trigger) input slot is dirty, which is exactly the
// change-event
// behavior a trigger-as-input push is supposed to have.
func (n *Node) receiveTriggerPush(ctx context.Context, s *predecessorSlot, carrier value.Carrier[any], srcErr error) {
	if srcErr != nil {
		return
	}
	v, err := carrier.Take()
	if err != nil {
		return
	}
	ts, ok := v.(TriggerState)
	if !ok {
		return
	}
	n.mu.Lock()
	s.cached = value.Borrowed(v)
	s.cachedOK = true
	n.mu.Unlock()
	n.SetTrigger(ctx, ts)
}

// markExpiredCascade marks this node Expired and, if this is the first time
// it has gone stale since its last recompute, tells its own successors
// their corresponding slot is now dirty too. A lazy node never pushes a
// value this way, only the knowledge that one is owed.
func (n *Node) markExpiredCascade(ctx context.Context) {
	n.mu.Lock()
	if n.state == ExpiredState {
		n.mu.Unlock()
		return
	}
	n.state = ExpiredState
	succ := append([]successorEdge(nil), n.successors...)
	n.mu.Unlock()

	for _, e := range succ {
		e.child.notifyUpstreamExpired(ctx, e.slotIndex)
	}
}

func (n *Node) notifyUpstreamExpired(ctx context.Context, slot int) {
	n.mu.Lock()
	if n.predecessors[slot].isTrigger {
		// A lazy/pulse trigger-input producer only matters the moment it
		// actually pushes a gate transition; going stale in between is not
		// itself a signal this node needs to do anything.
		n.mu.Unlock()
		return
	}
	n.predecessors[slot].dirty = true
	mode := n.mode
	n.mu.Unlock()

	switch mode {
	case Lazy:
		n.markExpiredCascade(ctx)
	case Pulse:
		n.mu.Lock()
		n.state = ExpiredState
		n.pulseDirty = true
		n.mu.Unlock()
	case Eager:
		// A lazy predecessor never pushes a value, so an eager node
		// downstream of one has no live trigger: it sits Expired until
		// something calls Request on it directly.
		n.mu.Lock()
		n.state = ExpiredState
		n.mu.Unlock()
	}
}

func (n *Node) triggerAllows() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	if !n.hasTrigger {
		return true
	}
	switch n.trigger {
	case Disabled:
		return false
	case OnPulse:
		n.trigger = Disabled
		return true
	default:
		return true
	}
}

func (n *Node) recomputeAndPublish(ctx context.Context) {
	if !n.triggerAllows() {
		return
	}
	n.mu.Lock()
	launch := n.asyncLaunch
	n.mu.Unlock()
	if launch != nil {
		launch(ctx)
		return
	}
	v, err := n.computeNow(ctx)
	n.Publish(ctx, v, err)
}

// MarkPulseDirty marks the node expired and due for exactly one pulse fire
// on the manager's next tick, without going through a predecessor push.
// Used by a pulse-mode provider's Update.
func (n *Node) MarkPulseDirty() {
	n.mu.Lock()
	n.state = ExpiredState
	n.pulseDirty = true
	n.mu.Unlock()
}

// RunPulse recomputes the node if it has been marked dirty since the last
// tick and pushes the result to its own successors as if eager, for the
// duration of this tick only. Called once per tick by the manager for
// every node in its pulse registry.
func (n *Node) RunPulse(ctx context.Context) {
	n.mu.Lock()
	dirty := n.pulseDirty
	n.pulseDirty = false
	n.mu.Unlock()
	if !dirty {
		return
	}
	if !n.triggerAllows() {
		return
	}
	n.mu.Lock()
	launch := n.asyncLaunch
	n.mu.Unlock()
	if launch != nil {
		launch(ctx)
		return
	}
	v, err := n.computeNow(ctx)
	n.publishPulseFired(ctx, v, err)
}

// slotSnapshot is a point-in-time, lock-free copy of one predecessor slot
// used while computing, so computeNow never calls into another node while
// holding n.mu.
type slotSnapshot struct {
	name      string
	producer  *Node
	dirty     bool
	hasCache  bool
	cached    any
	quiet     bool
	isTrigger bool
}

func (n *Node) snapshotSlots() []slotSnapshot {
	n.mu.Lock()
	defer n.mu.Unlock()
	snaps := make([]slotSnapshot, len(n.predecessors))
	for i, s := range n.predecessors {
		snaps[i] = slotSnapshot{name: s.name, producer: s.producer, dirty: s.dirty, quiet: s.quiet, isTrigger: s.isTrigger}
		if s.cachedOK {
			if v, err := s.cached.Peek(); err == nil {
				snaps[i].hasCache = true
				snaps[i].cached = v
			}
		}
	}
	return snaps
}

// GatherInputs resolves every predecessor slot's current value per this
// node's caching discipline: Transient always re-pulls every predecessor;
// ArgCached and FullCached re-pull only slots marked dirty, reusing the
// retained copy otherwise. Exported so asyncnode can gather inputs itself
// before handing them to a task running outside the synchronous
// computeNow/compute path.
func (n *Node) GatherInputs(ctx context.Context) ([]any, error) {
	n.mu.Lock()
	discipline := n.cache
	n.mu.Unlock()

	snaps := n.snapshotSlots()
	inputs := make([]any, len(snaps))
	refreshed := make([]bool, len(snaps))

	for i, s := range snaps {
		if s.isTrigger {
			// A trigger-as-input slot is a gate, not a data argument: it
			// never drives a pull, it only ever carries the last pushed
			// TriggerState for a compute hook curious enough to inspect it.
			inputs[i] = s.cached
			continue
		}
		needsPull := discipline == Transient || s.dirty || !s.hasCache
		switch {
		case needsPull && s.producer != nil:
			v, err := s.producer.Request(ctx)
			if err != nil {
				return nil, fmt.Errorf("input %d (%s): %w", i, s.name, err)
			}
			inputs[i] = v
			refreshed[i] = true
		case s.hasCache:
			inputs[i] = s.cached
		case s.producer == nil:
			return nil, fmt.Errorf("input %d (%s): %w", i, s.name, errs.NoData)
		}
	}

	n.mu.Lock()
	for i, s := range snaps {
		if refreshed[i] {
			n.predecessors[i].cached = value.Borrowed(inputs[i])
			n.predecessors[i].cachedOK = true
			n.predecessors[i].dirty = false
		} else if discipline != Transient && !s.dirty {
			n.predecessors[i].dirty = false
		}
	}
	n.mu.Unlock()

	return inputs, nil
}

// computeNow gathers inputs and runs this node's synchronous compute hook.
// Async nodes never call this; they gather inputs themselves and publish
// from their own task goroutine instead.
func (n *Node) computeNow(ctx context.Context) (any, error) {
	inputs, err := n.GatherInputs(ctx)
	if err != nil {
		return nil, err
	}

	n.mu.Lock()
	compute := n.compute
	n.mu.Unlock()
	if compute == nil {
		return nil, fmt.Errorf("node has no compute hook: %w", errs.NoData)
	}
	return safeCompute(ctx, compute, inputs)
}

// Request is the pull API: returns the node's current value,
// recomputing only if its discipline and state require it.
func (n *Node) Request(ctx context.Context) (any, error) {
	n.mu.Lock()
	state := n.state
	discipline := n.cache
	n.mu.Unlock()

	if state == FailedState {
		return nil, errs.Failed
	}
	if state == PendingState {
		return nil, errs.Pending
	}
	if state == Fresh && discipline == FullCached {
		n.mu.Lock()
		v, err := n.output.Peek()
		n.mu.Unlock()
		if err == nil {
			return v, nil
		}
	}

	n.mu.Lock()
	launch := n.asyncLaunch
	n.mu.Unlock()
	if launch != nil {
		launch(ctx)
		n.mu.Lock()
		st := n.state
		n.mu.Unlock()
		switch st {
		case PendingState:
			return nil, errs.Pending
		case FailedState:
			return nil, errs.Failed
		default:
			n.mu.Lock()
			v, err := n.output.Peek()
			n.mu.Unlock()
			return v, err
		}
	}

	v, err := n.computeNow(ctx)
	n.Publish(ctx, v, err)
	if err != nil {
		return nil, err
	}
	return v, nil
}

// Peek returns the node's last published value without forcing a pull or
// recompute. A lazy or pulse node whose cache has gone stale since the
// last recompute reports errs.Expired instead of silently returning data
// a caller might assume is current; FailedState and PendingState report
// their own sentinels exactly as Request does.
func (n *Node) Peek() (any, error) {
	n.mu.Lock()
	state := n.state
	n.mu.Unlock()
	if err := state.errKind(); err != nil {
		return nil, err
	}
	n.mu.Lock()
	v, err := n.output.Peek()
	n.mu.Unlock()
	return v, err
}

// MarkPending marks the node as having a task in flight, without pushing
// anything to successors. Used by asyncnode the instant it dispatches a
// task, so a concurrent Request sees Pending instead of stale data.
func (n *Node) MarkPending() {
	n.mu.Lock()
	n.state = PendingState
	n.mu.Unlock()
}

// SetAsyncLaunch installs the hook that replaces the synchronous
// compute/publish path for async nodes: instead of running compute inline,
// triggering this node dispatches launch, which is responsible for
// eventually calling Publish (or MarkPending immediately and Publish once
// the task completes) itself.
func (n *Node) SetAsyncLaunch(launch func(ctx context.Context)) {
	n.mu.Lock()
	n.asyncLaunch = launch
	n.mu.Unlock()
}

