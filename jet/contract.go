// Copyright © 2016 The Jet authors

package jet

// The collector has a hard requirement that every native frame between the
// allocation site and the interpreter protects its managed pointers.  A
// function may omit protection only when it is certain that neither it nor
// any callee can trigger a collection.  That is a difficult invariant to
// reason about, so this contract system exists to check, at runtime, that
// "a GC cannot happen here" assertions actually hold.
//
// Contracts are enabled with WithDebugContracts; when disabled every entry
// point is a nil-receiver no-op.

type restriction uint8

const (
	restrictNone restriction = 0
	restrictNoGC restriction = 1 << 0
)

// ContractFrame records the restrictions asserted by one native function.
type ContractFrame struct {
	rt       *Runtime
	name     string
	parent   *ContractFrame
	restrict restriction
}

// Contract opens a contract frame for the calling function.  The returned
// frame is nil when contracts are disabled; all methods tolerate a nil
// receiver so call sites need no guards.
func (rt *Runtime) Contract(name string) *ContractFrame {
	if !rt.contractsOn {
		return nil
	}
	cf := &ContractFrame{rt: rt, name: name, parent: rt.contracts}
	rt.contracts = cf
	return cf
}

// Done closes the contract frame.  Call it with defer.
func (cf *ContractFrame) Done() {
	if cf == nil {
		return
	}
	if cf.rt.contracts != cf {
		Panicf("closing contract frame %q out of order", cf.name)
	}
	cf.rt.contracts = cf.parent
}

// ForbidGC asserts that no collection may occur while this frame is open.
func (cf *ContractFrame) ForbidGC() {
	if cf == nil {
		return
	}
	cf.restrict |= restrictNoGC
}

// Precondition checks a named assertion at function entry.
func (cf *ContractFrame) Precondition(ok bool, expr string) {
	if cf == nil {
		return
	}
	if !ok {
		Panicf("precondition failed in %s: %s", cf.name, expr)
	}
}

// signalPerformsGC is raised by the allocator.  It walks the open contract
// frames and panics if any of them forbids collection.
func (rt *Runtime) signalPerformsGC() {
	if !rt.contractsOn {
		return
	}
	for cf := rt.contracts; cf != nil; cf = cf.parent {
		if cf.restrict&restrictNoGC != 0 {
			Panicf("allocation performed while %q holds a no-GC contract", cf.name)
		}
	}
}
