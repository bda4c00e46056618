// Package errs defines the sentinel errors that make up the engine's error
// kind enumeration. No custom error types: every kind is a package-level
// error created with errors.New, wrapped with fmt.Errorf("...: %w", ...)
// at the call site, and compared with errors.Is by callers.
package errs

import "errors"

var (
	// InvalidType is returned by Connect when the producer's output type
	// tag does not match any free predecessor slot on the consumer.
	InvalidType = errors.New("invalid type")

	// RingDetected is returned by Connect when adding the edge would close
	// a cycle in the successor graph. The graph is left unchanged.
	RingDetected = errors.New("cycle detected")

	// NoData is returned by Carrier.Take on an empty carrier, and by
	// Request when no upstream value has ever been produced.
	NoData = errors.New("no data")

	// Expired is a non-fatal status returned by Peek for a lazy or pulse
	// node whose cached value has gone stale since the last recompute.
	// Request never returns it: a pull always recomputes instead.
	Expired = errors.New("expired")

	// Failed is the sticky per-node status after a failed recompute.
	Failed = errors.New("failed")

	// Pending is returned by an async node's Request while its task is
	// still in flight.
	Pending = errors.New("pending")
)
