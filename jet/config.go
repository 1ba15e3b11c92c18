// Copyright © 2016 The Jet authors

package jet

import "io"

// Config is a function that configures a Runtime during construction.
// Configs run before the heap and analysis environment are initialized.
type Config func(rt *Runtime)

// WithStdin returns a Config that sets the runtime's Stdin stream.  The
// runtime does not read it on its own: the read builtin reads through
// whatever Reader is attached to rt.Reader.
func WithStdin(r io.Reader) Config {
	return func(rt *Runtime) {
		rt.Stdin = r
	}
}

// WithStdout returns a Config that makes print and println write to w
// instead of the default, os.Stdout.
func WithStdout(w io.Writer) Config {
	return func(rt *Runtime) {
		rt.Stdout = w
	}
}

// WithStderr returns a Config that makes the runtime write diagnostics to w
// instead of the default, os.Stderr.
func WithStderr(w io.Writer) Config {
	return func(rt *Runtime) {
		rt.Stderr = w
	}
}

// WithWarnings returns a Config that enables late-binding warnings: a
// variable reference that auto-defines a global slot is reported to Stderr.
func WithWarnings(on bool) Config {
	return func(rt *Runtime) {
		rt.warnings = on
	}
}

// WithGCStress returns a Config that forces a collection on every
// allocation.  Programs run many times slower; missing root protections
// fail fast instead of corrupting the heap at some distant allocation.
func WithGCStress(on bool) Config {
	return func(rt *Runtime) {
		rt.gcStress = on
	}
}

// WithHeapVerify returns a Config that walks the heap before and after
// every collection and poisons evacuated cells.
func WithHeapVerify(on bool) Config {
	return func(rt *Runtime) {
		rt.heapVerify = on
	}
}

// WithHeapPages returns a Config that sizes the cell arena.  Both
// semispaces together occupy pages * PageSize bytes.
func WithHeapPages(pages int) Config {
	return func(rt *Runtime) {
		rt.heapPages = pages
	}
}

// WithDebugContracts returns a Config that enables the contract system:
// no-GC restrictions and preconditions are checked instead of compiled to
// no-ops.
func WithDebugContracts(on bool) Config {
	return func(rt *Runtime) {
		rt.contractsOn = on
	}
}

// WithProfiler returns a Config that attaches a profiler to the runtime.
func WithProfiler(p Profiler) Config {
	return func(rt *Runtime) {
		rt.Profiler = p
	}
}
