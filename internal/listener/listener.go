// Package listener implements terminal sink nodes: no output, a single
// user callback invoked on delivery, and an optional lazy variant that
// only calls the callback when explicitly pulled.
package listener

import (
	"context"

	"reactiveflow/internal/corenode"
	"reactiveflow/internal/typetag"
)

// OnUpdate is the user delivery callback. This package always invokes it
// with a nil err: an upstream failure stops the listener's recompute before
// the callback runs and surfaces as the error from RequestCache/Request
// instead.
type OnUpdate[T any] func(ctx context.Context, v T, err error)

// Listener is a typed terminal node with exactly one input.
type Listener[T any] struct {
	core *corenode.Node
}

// New builds a listener. Eager and pulse modes deliver as soon as a value
// is pushed or the manager ticks; lazy listeners only deliver when
// RequestCache is called.
func New[T any](name string, mode corenode.Mode, inputName string, cb OnUpdate[T]) *Listener[T] {
	l := &Listener[T]{}
	l.core = corenode.New(corenode.Config{
		Name: name,
		Kind: corenode.KindListener,
		Mode: mode,
		// A listener's own "output" type is its input type: chaining a
		// listener into a further slot makes no sense, but the tag still
		// has to be something, and this keeps the handle layer uniform.
		OutputTag: typetag.For[T](),
		Cache:     corenode.Transient,
		Inputs:    []corenode.InputDescriptor{{Name: inputName}},
		Compute: func(ctx context.Context, inputs []any) (any, error) {
			var zero T
			v := zero
			if len(inputs) > 0 && inputs[0] != nil {
				v = inputs[0].(T)
			}
			cb(ctx, v, nil)
			return v, nil
		},
	})
	l.core.SetInputTag(0, typetag.For[T]())
	return l
}

// Core exposes the underlying node to the builder layer.
func (l *Listener[T]) Core() *corenode.Node { return l.core }

// RequestCache pulls the upstream value through and delivers it, for lazy
// listeners that should only run on demand.
func (l *Listener[T]) RequestCache(ctx context.Context) error {
	_, err := l.core.Request(ctx)
	return err
}
