// Package asyncnode implements nodes whose computation runs on a worker
// pool instead of the calling goroutine: cancellation, progress
// reporting, and the four execution-overlap disciplines a trigger can
// ask for while a previous task is still in flight.
package asyncnode

import (
	"context"
	"fmt"
	"math"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel/trace"

	"reactiveflow/internal/corenode"
	"reactiveflow/internal/telemetry"
	"reactiveflow/internal/typetag"
	"reactiveflow/internal/workerpool"
)

// ExecMode controls what happens when a node is triggered while a previous
// task it launched has not yet completed.
type ExecMode int

const (
	// ModeDefault drops a trigger that arrives while a task is in flight;
	// only one task per node runs at a time, the rest are simply missed.
	ModeDefault ExecMode = iota
	// ModeLatest cancels the in-flight task and starts the new one in its
	// place, so the node always converges on the most recent trigger.
	ModeLatest
	// ModeAll queues every trigger and runs them one at a time, in the
	// order they arrived.
	ModeAll
	// ModeNone bypasses the worker pool entirely and runs the computation
	// synchronously on the triggering goroutine, as a degraded fallback.
	ModeNone
)

// Progress lets a running task report fractional completion back to
// whoever is watching the node, without the task needing to know who (if
// anyone) is listening.
type Progress struct {
	report func(float64)
}

// Report publishes a progress value in [0, 1]. A nil Progress (e.g. one
// constructed by a test without an AsyncNode behind it) discards the
// value.
func (p Progress) Report(v float64) {
	if p.report != nil {
		p.report(v)
	}
}

// Func is the user computation dispatched onto the worker pool.
type Func[T any] func(ctx context.Context, inputs []any, progress Progress) (T, error)

// CompletionSink receives a finished task's result instead of letting it
// publish directly from the worker-pool goroutine that produced it. A
// manager wires this in so every async result re-enters the graph on its
// own tick thread, the same as spec'd for the rest of propagation; with no
// sink set, finish publishes inline, which is only safe for a node used
// outside of any manager (as the package's own tests do).
type CompletionSink func(node *corenode.Node, v any, err error)

// Input declares one typed predecessor slot, mirroring modifier.Input.
type Input struct {
	tag  typetag.Tag
	desc corenode.InputDescriptor
}

// In declares a typed input slot.
func In[T any](name string, quiet bool) Input {
	return Input{tag: typetag.For[T](), desc: corenode.InputDescriptor{Name: name, Quiet: quiet}}
}

// TriggerIn declares an input slot carrying corenode.TriggerState values
// instead of ordinary data, the async-node equivalent of
// modifier.TriggerIn: a push sets the gate, composing it into the DAG
// instead of leaving it reachable only through the out-of-band SetTrigger
// control call.
func TriggerIn(name string) Input {
	return Input{tag: typetag.For[corenode.TriggerState](), desc: corenode.InputDescriptor{Name: name, IsTrigger: true}}
}

// AsyncNode is a typed node whose output is produced by a task running on
// a shared worker pool.
type AsyncNode[T any] struct {
	core *corenode.Node
	pool *workerpool.Pool
	mode ExecMode
	fn   Func[T]

	mu     sync.Mutex
	busy   bool
	cancel context.CancelFunc
	queue  []func()
	sink   CompletionSink

	progress          atomic.Uint64
	progressReceivers []func(float64)
}

// New builds an async node dispatching onto pool. mode is the node's own
// push/pull/pulse discipline (how its result reaches its successors);
// execMode is the overlap policy for repeated triggers.
func New[T any](pool *workerpool.Pool, name string, mode corenode.Mode, execMode ExecMode, withTrigger bool, inputs []Input, fn Func[T]) *AsyncNode[T] {
	descs := make([]corenode.InputDescriptor, len(inputs))
	for i, in := range inputs {
		descs[i] = in.desc
	}

	a := &AsyncNode[T]{pool: pool, mode: execMode, fn: fn}
	a.core = corenode.New(corenode.Config{
		Name:       name,
		Kind:       corenode.KindAsync,
		OutputTag:  typetag.For[T](),
		Mode:       mode,
		Cache:      corenode.FullCached,
		HasTrigger: withTrigger,
		Inputs:     descs,
	})
	for i, in := range inputs {
		a.core.SetInputTag(i, in.tag)
	}
	a.core.SetAsyncLaunch(a.launch)
	return a
}

// Core exposes the underlying node to the builder layer.
func (a *AsyncNode[T]) Core() *corenode.Node { return a.core }

// SetCompletionSink installs the manager's completion-queue hook. Call it
// once, before the node is ever triggered.
func (a *AsyncNode[T]) SetCompletionSink(sink CompletionSink) {
	a.mu.Lock()
	a.sink = sink
	a.mu.Unlock()
}

// Request pulls the node's current output, typed. If no task has ever
// completed and none is in flight, Request launches one (respecting
// ModeNone's synchronous degrade) the same way a push trigger would.
func (a *AsyncNode[T]) Request(ctx context.Context) (T, error) {
	var zero T
	v, err := a.core.Request(ctx)
	if err != nil {
		return zero, err
	}
	if v == nil {
		return zero, nil
	}
	out, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("async node %s: unexpected output type", a.core.Name())
	}
	return out, nil
}

// Cancel cancels the currently in-flight task, if any. Its eventual
// completion (with ctx.Err()) still runs through the ordinary
// failure-propagation path.
func (a *AsyncNode[T]) Cancel() {
	a.mu.Lock()
	cancel := a.cancel
	a.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Progress returns the most recently reported progress value.
func (a *AsyncNode[T]) Progress() float64 {
	return math.Float64frombits(a.progress.Load())
}

// OnProgress registers a receiver called synchronously, from the task's own
// goroutine (or the caller's, under ModeNone), every time the task reports
// progress.
func (a *AsyncNode[T]) OnProgress(fn func(float64)) {
	a.mu.Lock()
	a.progressReceivers = append(a.progressReceivers, fn)
	a.mu.Unlock()
}

func (a *AsyncNode[T]) reportProgress(v float64) {
	a.progress.Store(math.Float64bits(v))
	a.mu.Lock()
	recv := append([]func(float64)(nil), a.progressReceivers...)
	a.mu.Unlock()
	for _, r := range recv {
		r(v)
	}
}

// launch is installed as the node's asyncLaunch hook: it is what runs
// whenever an eager push, a pulse tick, a trigger gate reopening, or an
// explicit Request decides this node needs recomputing.
func (a *AsyncNode[T]) launch(ctx context.Context) {
	if a.mode == ModeNone {
		a.runInline(ctx)
		return
	}

	a.mu.Lock()
	switch a.mode {
	case ModeDefault:
		if a.busy {
			a.mu.Unlock()
			return
		}
		a.busy = true
	case ModeLatest:
		if a.cancel != nil {
			a.cancel()
		}
		a.busy = true
	case ModeAll:
		if a.busy {
			a.queue = append(a.queue, func() { a.dispatch(ctx) })
			a.mu.Unlock()
			return
		}
		a.busy = true
	}
	a.mu.Unlock()

	a.dispatch(ctx)
}

func (a *AsyncNode[T]) dispatch(parent context.Context) {
	inputs, err := a.core.GatherInputs(parent)
	if err != nil {
		a.finish(nil, err)
		return
	}

	spanCtx, span, _ := telemetry.StartTask(parent, a.core.Name())
	taskCtx, cancel := context.WithCancel(spanCtx)
	a.mu.Lock()
	a.cancel = cancel
	a.mu.Unlock()

	a.core.MarkPending()
	a.core.Retain() // the in-flight task keeps the node alive even if every user handle is released

	submitErr := a.pool.Submit(parent, func() {
		defer span.End()
		defer a.core.Release()
		defer cancel()
		v, err := a.safeRun(taskCtx, inputs, span)
		a.finish(v, err)
	})
	if submitErr != nil {
		span.End()
		cancel()
		a.core.Release()
		a.finish(nil, submitErr)
	}
}

func (a *AsyncNode[T]) runInline(ctx context.Context) {
	inputs, err := a.core.GatherInputs(ctx)
	if err != nil {
		a.core.Publish(ctx, nil, err)
		return
	}
	spanCtx, span, _ := telemetry.StartTask(ctx, a.core.Name())
	v, err := a.safeRun(spanCtx, inputs, span)
	span.End()
	a.core.Publish(ctx, v, err)
}

func (a *AsyncNode[T]) safeRun(ctx context.Context, inputs []any, span trace.Span) (out any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in async task: %v", r)
		}
	}()
	report := func(v float64) {
		telemetry.RecordProgress(span, v)
		a.reportProgress(v)
	}
	v, err := a.fn(ctx, inputs, Progress{report: report})
	if err != nil {
		var zero T
		return zero, err
	}
	return v, nil
}

// finish hands a task's result to the manager's completion queue instead of
// publishing it itself: this method runs on the worker-pool goroutine that
// just ran the task (or, for a dispatch-time failure, on whatever goroutine
// triggered the launch), and propagation must only ever happen on the
// manager's own thread during its next tick. With no sink installed the
// result is published inline, for package tests that exercise an AsyncNode
// with no manager behind it at all.
func (a *AsyncNode[T]) finish(v any, err error) {
	a.mu.Lock()
	sink := a.sink
	a.mu.Unlock()
	if sink != nil {
		sink(a.core, v, err)
	} else {
		a.core.Publish(context.Background(), v, err)
	}

	a.mu.Lock()
	a.busy = false
	a.cancel = nil
	var next func()
	if a.mode == ModeAll && len(a.queue) > 0 {
		next = a.queue[0]
		a.queue = a.queue[1:]
		a.busy = true
	}
	a.mu.Unlock()

	if next != nil {
		next()
	}
}
