// Copyright © 2016 The Jet authors

package jet

// Activation is the runtime variable storage for one lexical scope.  A new
// activation is introduced for every function invocation.  Activations form
// a tree through the parent link; the parent is held as a value reference
// (always an activation cell when present) so the collector traces it
// uniformly with everything else.
type Activation struct {
	parent *Sexp
	slots  []*Sexp
}

// NewActivationRecord returns a bare scope record.  Most callers want the
// heap constructor Runtime.NewActivation, which wraps the record in a
// managed cell.
func NewActivationRecord(parent *Sexp) *Activation {
	return &Activation{parent: parent}
}

// Parent returns the enclosing activation cell, or nil at the global scope.
func (a *Activation) Parent() *Sexp { return a.parent }

// Get reads a variable by its lexical address: walk up parent links, then
// index into the slot vector.  The analyzer guarantees valid up indexes, so
// a missing parent is a panic; the global activation, however, is allowed
// to hold unassigned slots (define before use), so an out-of-range or
// never-set slot is a runtime error, not a panic.
func (a *Activation) Get(rt *Runtime, up, right int) (*Sexp, error) {
	c := rt.Contract("Activation.Get")
	defer c.Done()
	c.ForbidGC()

	cursor := a
	for i := 0; i < up; i++ {
		if cursor.parent == nil {
			Panicf("invalid lexical address: up=%d right=%d", up, right)
		}
		cursor = cursor.parent.Activation()
	}
	if right >= len(cursor.slots) {
		return nil, Errorf("read of uninitialized variable (slot %d of %d)", right, len(cursor.slots))
	}
	v := cursor.slots[right]
	if v == nil || v == unsetSlot {
		return nil, Errorf("read of uninitialized variable (slot %d)", right)
	}
	return v, nil
}

// Set stores a variable at its lexical address, growing the slot vector
// with uninitialized sentinels as needed.  Activation values themselves may
// never be stored in a slot; activations form a tree, not a graph.
func (a *Activation) Set(rt *Runtime, up, right int, value *Sexp) error {
	c := rt.Contract("Activation.Set")
	defer c.Done()
	c.ForbidGC()

	if value.IsActivation() {
		return Errorf("cannot store an activation in a variable slot")
	}
	cursor := a
	for i := 0; i < up; i++ {
		if cursor.parent == nil {
			Panicf("invalid lexical address: up=%d right=%d", up, right)
		}
		cursor = cursor.parent.Activation()
	}
	for right >= len(cursor.slots) {
		cursor.slots = append(cursor.slots, unsetSlot)
	}
	writeBarrierSlot(cursor, value)
	cursor.slots[right] = value
	return nil
}

// Trace applies visit to the address of every non-nil slot and to the
// parent pointer.  The collector reaches parent scopes transitively through
// its worklist, so tracing the leaf activation is enough to relocate the
// whole chain.
func (a *Activation) Trace(visit func(**Sexp)) {
	for i := range a.slots {
		if a.slots[i] != nil {
			visit(&a.slots[i])
		}
	}
	if a.parent != nil {
		visit(&a.parent)
	}
}
