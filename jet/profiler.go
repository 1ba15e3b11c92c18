// Copyright © 2016 The Jet authors

package jet

// JetVersion is the interpreter version reported by the CLI.
const JetVersion = "0.1"

// Profiler observes interpreter activity.  The runtime calls Start around
// each toplevel form and GC after each collection cycle; implementations
// live outside the core (see jet/x/profiler).
type Profiler interface {
	// IsEnabled reports whether the profiler is collecting.
	IsEnabled() bool
	// Enable starts the profiling session.
	Enable() error
	// Complete ends the profiling session and flushes output.
	Complete() error
	// Start marks the start of a toplevel evaluation.  The returned
	// function marks its end.
	Start(form *Sexp) func()
	// GC records a completed collection cycle.
	GC(stats HeapStats)
}
