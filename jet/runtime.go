// Copyright © 2016 The Jet authors

package jet

import (
	"fmt"
	"io"
	"os"
)

// Reader produces s-expression trees from an input stream.  Implementations
// must allocate every intermediate value through the runtime heap behind
// protected locals; reading is not exempt from the root protocol.
type Reader interface {
	// Read returns the next toplevel form, or an Eof cell at end of stream.
	Read() (*Sexp, error)
}

// Runtime owns the interpreter's shared state: the managed heap, the symbol
// interner, the analysis environment, the global activation, and the
// root-frame chain.  A Runtime is single threaded; none of its state is
// safe for concurrent use.
type Runtime struct {
	Heap     *Heap
	Interner *Interner
	Env      *AnalysisEnv

	// Global is the global activation cell.  It is registered with the
	// sentinel root frame, so it survives every collection.
	Global *Sexp

	// Reader, when set, backs the read builtin.
	Reader Reader

	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer

	// Profiler, when set and enabled, observes toplevel evaluations and
	// collection cycles.
	Profiler Profiler

	frames      *Frame
	contracts   *ContractFrame
	contractsOn bool
	warnings    bool

	heapPages  int
	gcStress   bool
	heapVerify bool
}

// NewRuntime builds a runtime and installs the builtin procedures into the
// global activation.  Initialization order is fixed: heap, interner, root
// frame sentinel, contract frame sentinel, analysis environment.
func NewRuntime(configs ...Config) *Runtime {
	rt := &Runtime{
		Stdin:  os.Stdin,
		Stdout: os.Stdout,
		Stderr: os.Stderr,
	}
	for _, fn := range configs {
		fn(rt)
	}

	rt.Heap = newHeap(rt, rt.heapPages)
	rt.Heap.SetStress(rt.gcStress)
	rt.Heap.SetVerify(rt.heapVerify)
	rt.Interner = NewInterner()
	rt.frames = &Frame{rt: rt, name: "<global>"}
	if rt.contractsOn {
		rt.contracts = &ContractFrame{rt: rt, name: "<global>"}
	}
	rt.Env = NewAnalysisEnv(rt)

	rt.Global = rt.AllocateActivation(nil)
	rt.frames.Protect(&rt.Global, "global-activation")
	LoadBuiltins(rt, rt.Global)
	return rt
}

// Close tears the runtime down, releasing the heap arena.
func (rt *Runtime) Close() {
	rt.Heap.Close()
}

// SexpString renders a value for display using the runtime's interner.
func (rt *Runtime) SexpString(v *Sexp) string {
	return v.Format(rt.Interner)
}

// Warnf emits a diagnostic when warnings are enabled.
func (rt *Runtime) Warnf(format string, v ...interface{}) {
	if !rt.warnings {
		return
	}
	w := rt.Stderr
	if w == nil {
		return
	}
	fmt.Fprintf(w, "warning: "+format+"\n", v...)
}

// RunForms reads, analyzes, and evaluates toplevel forms until the stream
// is exhausted, returning the value of the last form.  Errors from the
// reader, the analyzer, or the evaluator abort the loop; the caller decides
// how to report them.
func (rt *Runtime) RunForms(forms Reader) (*Sexp, error) {
	f := rt.PushFrame("RunForms")
	defer f.Pop()
	var form, meaning, result *Sexp
	f.Protect(&form, "form")
	f.Protect(&meaning, "meaning")
	f.Protect(&result, "result")
	result = rt.AllocateEmpty()

	for {
		var err error
		form, err = forms.Read()
		if err != nil {
			return nil, err
		}
		if form.IsEof() {
			return result, nil
		}
		result, err = rt.runForm(form, &meaning)
		if err != nil {
			return nil, err
		}
	}
}

func (rt *Runtime) runForm(form *Sexp, meaning **Sexp) (*Sexp, error) {
	if rt.Profiler != nil && rt.Profiler.IsEnabled() {
		end := rt.Profiler.Start(form)
		defer end()
	}
	m, err := rt.Analyze(form)
	if err != nil {
		return nil, err
	}
	*meaning = m
	return Evaluate(rt, *meaning, rt.Global)
}

// notifyGC forwards collector statistics to an enabled profiler.
func (rt *Runtime) notifyGC(stats HeapStats) {
	if rt.Profiler != nil && rt.Profiler.IsEnabled() {
		rt.Profiler.GC(stats)
	}
}
