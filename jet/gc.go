// Copyright © 2016 The Jet authors

package jet

import (
	"fmt"
	"unsafe"
)

// The heap is a semispace copying collector.  A single cell arena is
// partitioned into two regions, the fromspace and the tospace.  When a
// collection occurs the regions are swapped and every live cell is copied
// into the new tospace; references are updated through the root-frame chain
// and each cell's trace method, so a *Sexp held outside the protocol goes
// stale the moment a collection runs.

// PageSize is the allocation granule the arena is sized in.
const PageSize = 4096

// DefaultHeapPages is the arena size used when no override is configured.
// The original engine ran on 8 pages of 32-byte cells; a Go cell is four
// times as large, so the default scales up to leave a comparable number of
// cells per semispace with room for the prelude.
const DefaultHeapPages = 512

// cellSize is the uniform allocation size.  The pad field on Sexp rounds
// the struct so cells evenly divide a page.
const cellSize = unsafe.Sizeof(Sexp{})

const cellPad = 24

// Compile-time proof that the cell size evenly divides a page.
var _ = [1]struct{}{}[PageSize%cellSize]

// poisonPattern is stamped into evacuated cells in verify mode so stale
// references crash visibly instead of reading garbage.
const poisonPattern = 0xABABABABABABABAB

// kindPoison overwrites the kind of an evacuated cell in verify mode.
const kindPoison Kind = 0xAB

// HeapStats is a point-in-time snapshot of collector counters.
type HeapStats struct {
	Collections          uint64
	CellsInUse           int
	Extent               int
	FinalizeQueueLen     int
	StringsFinalized     uint64
	ActivationsFinalized uint64
	NativesFinalized     uint64
}

// Heap owns the cell arena and the collection machinery.
type Heap struct {
	rt    *Runtime
	cells []Sexp

	extent    int // cells per semispace
	tospace   int // start index of the active semispace
	fromspace int // start index of the reserve semispace
	free      int // next free cell index (bump pointer)
	top       int // end of the active semispace

	// epoch stamps every cell at allocation and copy time.  A reference
	// whose cell carries the current epoch has already been relocated into
	// tospace during this collection and must not be processed again.
	epoch uint64

	forwarding map[*Sexp]*Sexp
	worklist   []*Sexp
	finalize   []*Sexp

	stress bool
	verify bool

	stats HeapStats
	log   gcLog
}

func newHeap(rt *Runtime, pages int) *Heap {
	if pages <= 0 {
		pages = DefaultHeapPages
	}
	total := pages * PageSize / int(cellSize)
	if total < 2 {
		Panicf("heap of %d pages holds no cells", pages)
	}
	extent := total / 2
	return &Heap{
		rt:         rt,
		cells:      make([]Sexp, total),
		extent:     extent,
		tospace:    0,
		fromspace:  extent,
		free:       0,
		top:        extent,
		epoch:      1,
		forwarding: make(map[*Sexp]*Sexp),
	}
}

// Close releases the arena.  The heap is unusable afterwards.
func (h *Heap) Close() {
	h.cells = nil
	h.forwarding = nil
	h.worklist = nil
	h.finalize = nil
}

// SetStress toggles a collection on every allocation.  Test mode only;
// invaluable for catching missing root protections.
func (h *Heap) SetStress(on bool) { h.stress = on }

// SetVerify toggles a full heap walk before and after every collection,
// plus poisoning of evacuated cells.
func (h *Heap) SetVerify(on bool) { h.verify = on }

// Stats returns a snapshot of the collector counters.
func (h *Heap) Stats() HeapStats {
	s := h.stats
	s.CellsInUse = h.free - h.tospace
	s.Extent = h.extent
	s.FinalizeQueueLen = len(h.finalize)
	return s
}

// Allocate returns a zeroed cell.  The caller must initialize the tag and
// payload before the next allocation point.  Cells whose payload owns
// storage outside the arena pass needsFinalize so the collector can release
// that storage when the cell dies.
func (h *Heap) Allocate(needsFinalize bool) *Sexp {
	h.rt.signalPerformsGC()

	if h.stress || h.free >= h.top {
		h.logf("bump pointer alloc failed, triggering a GC")
		h.Collect()
		if h.free >= h.top {
			Panicf("out of memory: %d cells live in a %d cell semispace", h.free-h.tospace, h.extent)
		}
	}

	cell := &h.cells[h.free]
	h.free++
	*cell = Sexp{}
	cell.check = h.epoch
	if needsFinalize {
		h.logf("marking cell %p for finalization", cell)
		h.finalize = append(h.finalize, cell)
	}
	return cell
}

// Collect performs a garbage collection: flip the semispaces, relocate
// everything reachable from the root-frame chain, then finalize whatever
// was on the finalization queue and did not survive.
func (h *Heap) Collect() {
	if h.verify {
		h.verifyHeap()
	}
	if len(h.forwarding) != 0 || len(h.worklist) != 0 {
		Panicf("collection started with dirty forwarding state")
	}

	h.stats.Collections++
	h.epoch++
	h.logf("[%d] beginning a GC", h.stats.Collections)
	h.flip()

	// All roots are known live; process them first.
	h.logf("[%d] processing roots", h.stats.Collections)
	h.rt.scanRoots(h.process)

	// Drain the worklist: every popped cell has been copied already, so
	// only its children need processing.
	h.logf("[%d] draining worklist", h.stats.Collections)
	for len(h.worklist) > 0 {
		cell := h.worklist[len(h.worklist)-1]
		h.worklist = h.worklist[:len(h.worklist)-1]
		cell.trace(h.process)
	}

	// Finalization pass.  Anything on the queue with no forwarding entry is
	// unreachable: run its finalizer and drop it.  Survivors are rewritten
	// to their tospace copies so the queue never holds stale pointers.
	h.logf("[%d] finalizing dead cells", h.stats.Collections)
	live := h.finalize[:0]
	for _, old := range h.finalize {
		if to, ok := h.forwarding[old]; ok {
			h.logf("[%d] finalizer queue relocation: %p -> %p", h.stats.Collections, old, to)
			live = append(live, to)
			continue
		}
		h.runFinalizer(old)
	}
	for i := len(live); i < len(h.finalize); i++ {
		h.finalize[i] = nil
	}
	h.finalize = live

	clear(h.forwarding)
	h.worklist = h.worklist[:0]
	h.logf("[%d] GC complete", h.stats.Collections)

	h.rt.notifyGC(h.Stats())
	if h.verify {
		h.verifyHeap()
	}
}

// flip swaps the semispaces and resets the bump pointer.
func (h *Heap) flip() {
	h.tospace, h.fromspace = h.fromspace, h.tospace
	h.free = h.tospace
	h.top = h.tospace + h.extent
}

// process updates one reference slot to point at the tospace replica of its
// target, copying the target if this is the first reference to reach it.
func (h *Heap) process(slot **Sexp) {
	p := *slot
	if p == nil || p.IsEmpty() {
		// The empty singleton and the unset-slot sentinel live outside the
		// managed heap.
		return
	}
	if p.check == h.epoch {
		// Already relocated and this slot already updated.  Processing it
		// again would copy the tospace cell to some garbage location.
		return
	}
	*slot = h.forward(p)
}

// forward returns the tospace address for a fromspace cell, copying it on
// first contact.
func (h *Heap) forward(p *Sexp) *Sexp {
	if to, ok := h.forwarding[p]; ok {
		return to
	}
	return h.copy(p)
}

// copy moves one cell into tospace, records its forwarding address, and
// queues it for child tracing.
func (h *Heap) copy(from *Sexp) *Sexp {
	if from.check == poisonPattern {
		Panicf("relocating an already-evacuated cell %p", from)
	}
	if h.free >= h.top {
		Panicf("tospace overflow during collection")
	}
	to := &h.cells[h.free]
	h.free++
	*to = *from
	to.check = h.epoch
	h.logf("[%d] relocating: %p -> %p", h.stats.Collections, from, to)
	if h.verify {
		*from = Sexp{kind: kindPoison, check: poisonPattern}
	}
	h.forwarding[from] = to
	h.worklist = append(h.worklist, to)
	return to
}

func (h *Heap) runFinalizer(p *Sexp) {
	h.logf("[%d] finalizing cell %p", h.stats.Collections, p)
	switch p.kind {
	case KindString:
		p.str = ""
		h.stats.StringsFinalized++
	case KindActivation:
		p.act = nil
		h.stats.ActivationsFinalized++
	case KindNativeFunction:
		p.native = nil
		h.stats.NativesFinalized++
	default:
		Panicf("finalized a cell that is not finalizable: %s", p.kind)
	}
}

// verifyHeap traverses everything reachable from the roots and the
// finalization queue, checking that each cell lies inside the arena and
// does not carry the relocation poison.
func (h *Heap) verifyHeap() {
	h.logf("[%d] verifying heap", h.stats.Collections)
	var stack []*Sexp
	visited := make(map[*Sexp]bool)
	h.rt.scanRoots(func(slot **Sexp) {
		p := *slot
		if p == nil || p.IsEmpty() {
			return
		}
		stack = append(stack, p)
	})
	for _, p := range h.finalize {
		stack = append(stack, p)
	}
	for len(stack) > 0 {
		p := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if visited[p] {
			continue
		}
		visited[p] = true
		if !h.contains(p) {
			Panicf("heap verify: reachable cell %p is outside the arena", p)
		}
		if p.check == poisonPattern {
			Panicf("heap verify: reachable cell %p has been relocated", p)
		}
		p.trace(func(child **Sexp) {
			if *child == nil || (*child).IsEmpty() {
				return
			}
			stack = append(stack, *child)
		})
	}
}

func (h *Heap) contains(p *Sexp) bool {
	if len(h.cells) == 0 {
		return false
	}
	addr := uintptr(unsafe.Pointer(p))
	lo := uintptr(unsafe.Pointer(&h.cells[0]))
	hi := uintptr(unsafe.Pointer(&h.cells[len(h.cells)-1]))
	return addr >= lo && addr <= hi
}

// writeBarrier is invoked on every mutation of a heap cell's references.
// The collector does not currently require a barrier; the hook is reserved
// for a future generational collector.
func writeBarrier(cell, value *Sexp) {}

// writeBarrierSlot is the activation-slot variant of writeBarrier.
func writeBarrierSlot(a *Activation, value *Sexp) {}

// gcLog is a small ring of collector debug messages, kept in memory so a
// crash dump has recent GC history without paying for I/O on the hot path.
// Messages are only recorded in verify mode.
type gcLog struct {
	entries [256]string
	next    int
}

func (h *Heap) logf(format string, v ...interface{}) {
	if !h.verify {
		return
	}
	h.log.entries[h.log.next] = fmt.Sprintf(format, v...)
	h.log.next = (h.log.next + 1) % len(h.log.entries)
}

// Log returns the recorded debug messages, oldest first.
func (h *Heap) Log() []string {
	var out []string
	for i := 0; i < len(h.log.entries); i++ {
		e := h.log.entries[(h.log.next+i)%len(h.log.entries)]
		if e != "" {
			out = append(out, e)
		}
	}
	return out
}

// Allocation helpers.  Each protects its reference arguments through a root
// frame before allocating, initializes the cell, and returns it.  The
// pattern matters: the argument pointers must be registered before the
// Allocate call that could move them.

// AllocateEmpty returns the shared empty list.  There is only one possible
// empty value, so no allocation occurs.
func (rt *Runtime) AllocateEmpty() *Sexp { return theEmpty }

// AllocateCons allocates a cons cell on the managed heap.
func (rt *Runtime) AllocateCons(car, cdr *Sexp) *Sexp {
	f := rt.PushFrame("AllocateCons")
	defer f.Pop()
	f.Protect(&car, "car")
	f.Protect(&cdr, "cdr")

	s := rt.Heap.Allocate(false)
	s.kind = KindCons
	s.car = car
	s.cdr = cdr
	return s
}

// AllocateSymbol allocates a symbol cell for an interned id.
func (rt *Runtime) AllocateSymbol(id SymbolID) *Sexp {
	s := rt.Heap.Allocate(false)
	s.kind = KindSymbol
	s.sym = id
	return s
}

// AllocateString allocates a string cell owning str.
func (rt *Runtime) AllocateString(str string) *Sexp {
	s := rt.Heap.Allocate(true)
	s.kind = KindString
	s.str = str
	return s
}

// AllocateFixnum allocates a fixnum cell.
func (rt *Runtime) AllocateFixnum(n int64) *Sexp {
	s := rt.Heap.Allocate(false)
	s.kind = KindFixnum
	s.num = n
	return s
}

// AllocateBool allocates a boolean cell.
func (rt *Runtime) AllocateBool(b bool) *Sexp {
	s := rt.Heap.Allocate(false)
	s.kind = KindBool
	s.flag = b
	return s
}

// AllocateEof allocates an end-of-file cell.
func (rt *Runtime) AllocateEof() *Sexp {
	s := rt.Heap.Allocate(false)
	s.kind = KindEof
	return s
}

// AllocateActivation allocates an activation cell with a fresh scope record
// whose parent is the given activation cell (nil for the global scope).
func (rt *Runtime) AllocateActivation(parent *Sexp) *Sexp {
	f := rt.PushFrame("AllocateActivation")
	defer f.Pop()
	f.Protect(&parent, "parent")

	s := rt.Heap.Allocate(true)
	s.kind = KindActivation
	s.act = NewActivationRecord(parent)
	return s
}

// AllocateFunction allocates a function cell capturing act.
func (rt *Runtime) AllocateFunction(m *LambdaMeaning, act *Sexp) *Sexp {
	f := rt.PushFrame("AllocateFunction")
	defer f.Pop()
	f.Protect(&act, "act")

	s := rt.Heap.Allocate(false)
	s.kind = KindFunction
	s.fnMeaning = m
	s.fnAct = act
	return s
}

// AllocateNative allocates a cell wrapping a builtin callable.
func (rt *Runtime) AllocateNative(nf *NativeFunc) *Sexp {
	s := rt.Heap.Allocate(true)
	s.kind = KindNativeFunction
	s.native = nf
	return s
}

// AllocateMeaning allocates a cell wrapping an analyzed meaning.  Any
// references embedded in m must already be protected by the caller; the
// allocation below may relocate them, and tracing reaches them only through
// the cell being created here.
func (rt *Runtime) AllocateMeaning(m Meaning) *Sexp {
	s := rt.Heap.Allocate(false)
	s.kind = KindMeaning
	s.meaning = m
	return s
}
