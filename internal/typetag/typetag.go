// Package typetag assigns a process-unique, stable identity to each
// concrete value type used on the graph. Tags are generated once per
// reflect.Type behind a monotonic counter, never by per-connection
// reflection: For[T] and the resulting Tag are the only things a
// connection check ever touches.
package typetag

import (
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"
)

// Tag identifies a concrete value type. Two tags compare equal iff the
// underlying types are identical; there is no subtyping or conversion.
type Tag struct {
	id   uint64
	name string
}

// String returns the tag's human-readable type name, useful in error
// messages and log fields.
func (t Tag) String() string {
	return t.name
}

// Equal reports whether two tags identify the same type.
func (t Tag) Equal(other Tag) bool {
	return t.id == other.id
}

var (
	registry syncMapTags
	counter  atomic.Uint64
)

type syncMapTags struct {
	mu sync.Mutex
	m  map[reflect.Type]Tag
}

// For returns the stable Tag for T, allocating one on first use. Safe for
// concurrent use from any goroutine (connect/disconnect
// itself is manager-thread-only, but tag allocation may be warmed up
// earlier from any thread, e.g. during init).
func For[T any]() Tag {
	rt := reflect.TypeFor[T]()

	registry.mu.Lock()
	defer registry.mu.Unlock()
	if registry.m == nil {
		registry.m = make(map[reflect.Type]Tag)
	}
	if tag, ok := registry.m[rt]; ok {
		return tag
	}
	tag := Tag{id: counter.Add(1), name: fmt.Sprintf("%v", rt)}
	registry.m[rt] = tag
	return tag
}
