package corenode

import "reactiveflow/internal/errs"

// ConnectSuccessor attaches a (the producer) to the first free predecessor
// slot on b (the consumer) whose declared type tag matches a's output tag.
// On success a strongly retains b (parent-owns-child) and the
// edge is recorded on both sides. Connecting would-be edges that close a
// cycle, or that find no free matching slot, leaves both nodes unchanged.
func (a *Node) ConnectSuccessor(b *Node) (slot int, err error) {
	if a == b {
		return 0, errs.RingDetected
	}

	// Cycle check first: a forward traversal starting at b over its
	// successors. If b can already reach a, adding a->b would close a
	// ring.
	if reaches(b, a) {
		return 0, errs.RingDetected
	}

	b.mu.Lock()
	slot = -1
	for i, s := range b.predecessors {
		if !s.filled && s.tag.Equal(a.outputTag) {
			slot = i
			break
		}
	}
	if slot < 0 {
		b.mu.Unlock()
		return 0, errs.InvalidType
	}
	b.predecessors[slot].filled = true
	b.predecessors[slot].producer = a
	b.predecessors[slot].dirty = true
	b.mu.Unlock()

	a.mu.Lock()
	a.successors = append(a.successors, successorEdge{child: b, slotIndex: slot})
	a.mu.Unlock()

	b.Retain()
	return slot, nil
}

// DisconnectSuccessor removes the edge a->b, if present, releasing a's
// strong reference to b. Idempotent: disconnecting an edge that does not
// exist is a no-op.
func (a *Node) DisconnectSuccessor(b *Node) {
	a.mu.Lock()
	found := false
	var slot int
	kept := a.successors[:0]
	for _, e := range a.successors {
		if e.child == b && !found {
			found = true
			slot = e.slotIndex
			continue
		}
		kept = append(kept, e)
	}
	a.successors = kept
	a.mu.Unlock()

	if !found {
		return
	}

	b.mu.Lock()
	if slot < len(b.predecessors) {
		b.predecessors[slot].filled = false
		b.predecessors[slot].producer = nil
	}
	b.mu.Unlock()

	b.Release()
}

// reaches reports whether target is reachable from start by following
// successor edges forward (a plain BFS; the graph is a DAG once connected,
// so this always terminates).
func reaches(start, target *Node) bool {
	if start == target {
		return true
	}
	seen := map[*Node]bool{start: true}
	queue := []*Node{start}
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		n.mu.Lock()
		succ := append([]successorEdge(nil), n.successors...)
		n.mu.Unlock()
		for _, e := range succ {
			if e.child == target {
				return true
			}
			if !seen[e.child] {
				seen[e.child] = true
				queue = append(queue, e.child)
			}
		}
	}
	return false
}
