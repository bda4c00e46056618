package corenode

import (
	"context"
	"fmt"
)

// safeCompute runs fn and converts any panic into a FailedState-worthy
// error instead of unwinding the caller's stack. A modifier, async task, or
// listener callback is user code; one panicking callback must not take
// down the rest of the graph.
//
// The technique mirrors opentofu's internal/errorhandling.Safe2 (recover
// into an error return), adapted here because that helper is unexported in
// its own package and graph nodes need the panic folded into the same
// (value, error) shape computeNow already returns.
func safeCompute(ctx context.Context, fn ComputeFunc, inputs []any) (out any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in node computation: %v", r)
		}
	}()
	return fn(ctx, inputs)
}
