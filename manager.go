// Package reactiveflow is the public surface of the dataflow engine: a
// Manager that owns the worker pool and drives ticks, and the builder
// functions that add typed nodes to its graph.
package reactiveflow

import (
	"context"
	"sync"

	"reactiveflow/internal/corenode"
	"reactiveflow/internal/logging"
	"reactiveflow/internal/telemetry"
	"reactiveflow/internal/workerpool"
)

// Manager owns the worker pool async nodes dispatch onto, the registry of
// pulse-mode nodes driven by Update, and the posted-action queue that lets
// foreign goroutines schedule work onto the manager's own tick instead of
// touching the graph directly.
type Manager struct {
	lgr  logging.Logger
	pool *workerpool.Pool

	mu         sync.Mutex
	pulseNodes map[*corenode.Node]struct{}
	allNodes   map[*corenode.Node]struct{}

	actions     chan func(context.Context)
	completions chan asyncCompletion

	closeOnce sync.Once
}

// asyncCompletion is one finished task's result, posted by an async node's
// completion sink and read back only by the manager thread during Update.
type asyncCompletion struct {
	node *corenode.Node
	v    any
	err  error
}

// Option configures a Manager at construction time.
type Option func(*Manager)

// WithLogger overrides the manager's logger (default: logging.NopLogger).
func WithLogger(lgr logging.Logger) Option {
	return func(m *Manager) { m.lgr = lgr }
}

// NewManager builds a Manager with a worker pool of the given size and a
// posted-action queue of the given capacity.
func NewManager(poolSize, queueLen, postedActionQueueLen int, opts ...Option) *Manager {
	m := &Manager{
		lgr:         logging.NopLogger{},
		pool:        workerpool.New(poolSize, queueLen),
		pulseNodes:  make(map[*corenode.Node]struct{}),
		allNodes:    make(map[*corenode.Node]struct{}),
		actions:     make(chan func(context.Context), postedActionQueueLen),
		completions: make(chan asyncCompletion, postedActionQueueLen),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// track registers n in the manager's node registry, and additionally in
// the pulse registry if its mode is Pulse. Called by every AddX builder
// right after constructing the node.
func (m *Manager) track(n *corenode.Node) {
	m.mu.Lock()
	m.allNodes[n] = struct{}{}
	if n.Mode() == corenode.Pulse {
		m.pulseNodes[n] = struct{}{}
	}
	m.mu.Unlock()
}

// untrack removes n from the pulse registry. NodeHandle.SetMode calls it
// before re-registering n under its new mode; nothing removes a node from
// either registry when it is torn down.
func (m *Manager) untrack(n *corenode.Node) {
	m.mu.Lock()
	delete(m.pulseNodes, n)
	m.mu.Unlock()
}

// PostAction enqueues fn to run on the manager's own tick thread during the
// next Update call, blocking only if the queue is full. This is the
// engine's one sanctioned way for a foreign goroutine (an async task
// callback, an external event source) to touch graph state.
func (m *Manager) PostAction(ctx context.Context, fn func(context.Context)) error {
	select {
	case m.actions <- fn:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// enqueueAsyncCompletion is installed as every manager-built async node's
// completion sink (see asyncnode.CompletionSink): the worker-pool goroutine
// that just finished a task posts its result here instead of publishing it
// directly, so the propagation wave it triggers always runs on the
// manager's own thread, during this node's next tick.
func (m *Manager) enqueueAsyncCompletion(n *corenode.Node, v any, err error) {
	m.completions <- asyncCompletion{node: n, v: v, err: err}
}

// Update drains every currently posted action, then every async task that
// finished since the last tick, and finally fires every pulse-mode node
// whose dirty flag is set, once each, in that order: posted actions land
// first, async results re-enter the graph next, and pulses (along with any
// eager cascade they set off) run last. Iteration order over the pulse
// registry itself is unspecified, so a chain of two pulse nodes should not
// assume the upstream one fires first within the same tick; wire such a
// chain eager below the first pulse hop instead of stacking pulse on
// pulse. It is the engine's single tick: call it from whatever loop (a
// ticker, a frame callback, a test) owns the notion of "now".
func (m *Manager) Update(ctx context.Context) {
	tickID := telemetry.NewTaskID()
	ctx, span := telemetry.StartTick(ctx, tickID)
	defer span.End()

	m.drainActions(ctx)
	m.drainCompletions(ctx)

	m.mu.Lock()
	nodes := make([]*corenode.Node, 0, len(m.pulseNodes))
	for n := range m.pulseNodes {
		nodes = append(nodes, n)
	}
	m.mu.Unlock()

	for _, n := range nodes {
		n.RunPulse(ctx)
		if err := n.TeardownErr(); err != nil {
			m.lgr.Warn("node teardown reported errors", logging.F("node", n.Name()), logging.F("err", err))
		}
	}
}

func (m *Manager) drainActions(ctx context.Context) {
	for {
		select {
		case fn := <-m.actions:
			fn(ctx)
		default:
			return
		}
	}
}

// drainCompletions publishes every async result queued since the last tick,
// each running its own induced propagation wave to completion before the
// next one is taken off the queue.
func (m *Manager) drainCompletions(ctx context.Context) {
	for {
		select {
		case c := <-m.completions:
			c.node.Publish(ctx, c.v, c.err)
			if err := c.node.TeardownErr(); err != nil {
				m.lgr.Warn("node teardown reported errors", logging.F("node", c.node.Name()), logging.F("err", err))
			}
		default:
			return
		}
	}
}

// Close stops the worker pool, waiting for in-flight tasks to return their
// goroutines. It does not cancel those tasks; cancel async nodes
// individually first if that is what's wanted.
func (m *Manager) Close() {
	m.closeOnce.Do(func() {
		m.pool.Close()
	})
}

// NodeSnapshot is one node's entry in a DebugDump result.
type NodeSnapshot struct {
	Name  string
	Kind  corenode.Kind
	Mode  corenode.Mode
	State corenode.DataState
}

// DebugDump returns a structured, point-in-time snapshot of every node the
// manager knows about: name, flavor, propagation mode, and current data
// state. The node list is copied under the manager's own lock; each node's
// fields are then read through its own locked getters, none of which has
// side effects, so dumping never triggers a recompute.
func (m *Manager) DebugDump() []NodeSnapshot {
	m.mu.Lock()
	nodes := make([]*corenode.Node, 0, len(m.allNodes))
	for n := range m.allNodes {
		nodes = append(nodes, n)
	}
	m.mu.Unlock()

	out := make([]NodeSnapshot, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, NodeSnapshot{Name: n.Name(), Kind: n.Kind(), Mode: n.Mode(), State: n.State()})
	}
	return out
}
