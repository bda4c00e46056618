// Package provider implements the graph's source nodes: no
// predecessors, a value set from outside the graph by user code, and two
// retention flavors controlling what a pull sees after the value has
// already been delivered once.
package provider

import (
	"context"
	"sync"

	"reactiveflow/internal/corenode"
	"reactiveflow/internal/errs"
	"reactiveflow/internal/typetag"
)

// Provider is a typed source node. Request always re-reads the held output
// without draining it, so for both flavors a second pull without an
// intervening Update sees the same value again. The cached flag only
// selects whether that held output carrier is borrowed (Cached) or owned
// (General), the n.retainCopy switch on corenode.Node; fan-out to eager
// successors is the same for both flavors (the last successor receives an
// owned carrier, the others borrowed ones).
type Provider[T any] struct {
	core *corenode.Node

	mu  sync.Mutex
	val T
	set bool
}

// New builds a provider node. cached selects the Cached flavor (held output
// is a borrowed carrier) over General (held output is an owned carrier);
// see Provider for what this does and does not change.
func New[T any](name string, mode corenode.Mode, cached bool) *Provider[T] {
	p := &Provider[T]{}
	p.core = corenode.New(corenode.Config{
		Name:       name,
		Kind:       corenode.KindProvider,
		OutputTag:  typetag.For[T](),
		Mode:       mode,
		Cache:      corenode.FullCached,
		RetainCopy: cached,
		Compute: func(ctx context.Context, inputs []any) (any, error) {
			p.mu.Lock()
			defer p.mu.Unlock()
			if !p.set {
				return nil, nil
			}
			return p.val, nil
		},
	})
	return p
}

// Core exposes the underlying node for the builder layer (reactiveflow
// package) to wrap in a NodeHandle. Not part of the public API surface.
func (p *Provider[T]) Core() *corenode.Node { return p.core }

// Update sets a new value and propagates it per the provider's mode: eager
// providers push immediately, lazy providers just mark dependents expired,
// pulse providers wait for the manager's next tick.
func (p *Provider[T]) Update(ctx context.Context, v T) {
	p.mu.Lock()
	p.val = v
	p.set = true
	p.mu.Unlock()

	switch p.core.Mode() {
	case corenode.Pulse:
		p.core.MarkPulseDirty()
	default:
		p.core.Publish(ctx, v, nil)
	}
}

// Fail marks the provider (and, per the ordinary failure-propagation
// rules, its dependents) as failed with err.
func (p *Provider[T]) Fail(ctx context.Context, err error) {
	p.core.Publish(ctx, nil, err)
}

// Request returns the provider's current value, typed.
func (p *Provider[T]) Request(ctx context.Context) (T, error) {
	var zero T
	v, err := p.core.Request(ctx)
	if err != nil {
		return zero, err
	}
	if v == nil {
		return zero, errs.NoData
	}
	return v.(T), nil
}
