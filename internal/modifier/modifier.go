// Package modifier implements the graph's N-input-to-one-output synchronous
// transform nodes: transient, argument-cached, and
// fully-cached disciplines, the independent trigger gate, and the "quiet"
// input tag that updates an argument's cache without itself waking the
// node up.
package modifier

import (
	"context"
	"fmt"

	"reactiveflow/internal/corenode"
	"reactiveflow/internal/typetag"
)

// Input describes one predecessor slot by its Go type and descriptor tags.
// Built with In[T] so the type tag is derived the same way the output tag
// is.
type Input struct {
	tag  typetag.Tag
	desc corenode.InputDescriptor
}

// In declares a typed input slot.
func In[T any](name string, quiet bool) Input {
	return Input{tag: typetag.For[T](), desc: corenode.InputDescriptor{Name: name, Quiet: quiet}}
}

// TriggerIn declares an input slot carrying corenode.TriggerState values
// instead of ordinary data: connecting a TriggerState-typed producer to it
// lets the trigger gate be driven as part of the DAG (pushing a value both
// sets the gate and, on a transition into Active, can recompute the
// modifier's other inputs) rather than only out of band via SetTrigger.
// The modifier must still be built with withTrigger set for the gate to
// have any effect on its own recompute/forward decisions.
func TriggerIn(name string) Input {
	return Input{tag: typetag.For[corenode.TriggerState](), desc: corenode.InputDescriptor{Name: name, IsTrigger: true}}
}

// Func is the user computation: given the modifier's current inputs in
// declaration order, produce the output or an error.
type Func func(ctx context.Context, inputs []any) (any, error)

// Modifier is a typed synchronous transform node.
type Modifier[T any] struct {
	core *corenode.Node
}

// New builds a modifier node with the given cache discipline, optional
// trigger gate, and input slots, wired to fn.
func New[T any](name string, mode corenode.Mode, cache corenode.CacheDiscipline, withTrigger bool, inputs []Input, fn Func) *Modifier[T] {
	descs := make([]corenode.InputDescriptor, len(inputs))
	for i, in := range inputs {
		descs[i] = in.desc
	}

	m := &Modifier[T]{}
	m.core = corenode.New(corenode.Config{
		Name:       name,
		Kind:       corenode.KindModifier,
		OutputTag:  typetag.For[T](),
		Mode:       mode,
		Cache:      cache,
		HasTrigger: withTrigger,
		Inputs:     descs,
		Compute: func(ctx context.Context, in []any) (any, error) {
			return fn(ctx, in)
		},
	})
	for i, in := range inputs {
		m.core.SetInputTag(i, in.tag)
	}
	return m
}

// Core exposes the underlying node to the builder layer.
func (m *Modifier[T]) Core() *corenode.Node { return m.core }

// Request pulls the modifier's current (possibly cached) output, typed.
func (m *Modifier[T]) Request(ctx context.Context) (T, error) {
	var zero T
	v, err := m.core.Request(ctx)
	if err != nil {
		return zero, err
	}
	out, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("modifier %s: unexpected output type", m.core.Name())
	}
	return out, nil
}
