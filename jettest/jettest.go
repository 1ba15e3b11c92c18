// Copyright © 2016 The Jet authors

// Package jettest provides a harness for driving whole programs through the
// interpreter and asserting on their output.
package jettest

import (
	"bytes"
	"io"
	"log"
	"strings"
	"testing"

	"github.com/swgillespie/jet/jet"
	"github.com/swgillespie/jet/lisplib"
	"github.com/swgillespie/jet/parser"
)

// Runner configures the runtimes used by a test.  The zero value runs with
// default heap settings and the embedded prelude.
type Runner struct {
	// GCStress forces a collection on every allocation.
	GCStress bool
	// HeapVerify walks the heap around every collection.
	HeapVerify bool
	// Warnings enables late-binding warnings on Stderr.
	Warnings bool
	// HeapPages overrides the arena size when nonzero.
	HeapPages int
	// SkipPrelude leaves the standard prelude unloaded.
	SkipPrelude bool
	// Stdin backs the read builtin.
	Stdin string
}

// NewRuntime builds a runtime per the Runner's configuration with stdout
// and stderr redirected to the given writers.  Most callers pass a buffer
// for stdout and a *Logger for stderr so runtime diagnostics land in the
// test log.
func (r *Runner) NewRuntime(t testing.TB, stdout, stderr io.Writer) *jet.Runtime {
	t.Helper()
	rt := jet.NewRuntime(
		jet.WithStdin(strings.NewReader(r.Stdin)),
		jet.WithStdout(stdout),
		jet.WithStderr(stderr),
		jet.WithWarnings(r.Warnings),
		jet.WithGCStress(r.GCStress),
		jet.WithHeapVerify(r.HeapVerify),
		jet.WithHeapPages(r.HeapPages),
		jet.WithDebugContracts(true),
	)
	t.Cleanup(rt.Close)
	rt.Reader = parser.NewReader(rt, rt.Stdin)
	if !r.SkipPrelude {
		if _, err := rt.RunForms(parser.NewReader(rt, strings.NewReader(lisplib.Prelude))); err != nil {
			t.Fatalf("prelude: %v", err)
		}
	}
	return rt
}

// RunProgram evaluates src as a whole program and returns everything it
// wrote to stdout, plus the error that aborted it, if any.  Runtime
// diagnostics (late-binding warnings) go to the test log through a Logger.
func (r *Runner) RunProgram(t testing.TB, src string) (string, error) {
	t.Helper()
	var stdout bytes.Buffer
	logger := NewLogger(t)
	defer logger.Flush()
	rt := r.NewRuntime(t, &stdout, logger)
	_, err := rt.RunForms(parser.NewReader(rt, strings.NewReader(src)))
	return stdout.String(), err
}

// TestSequence is a sequence of expressions evaluated in order against a
// single runtime.
type TestSequence []struct {
	Expr   string // an expression
	Result string // the rendering of the evaluated result
	Output string // bytes written to stdout during evaluation
}

// TestSuite is a set of named TestSequences.
type TestSuite []struct {
	Name string
	TestSequence
}

// RunTestSuite runs each TestSequence on an isolated runtime.
func RunTestSuite(t *testing.T, runner *Runner, tests TestSuite) {
	for i, test := range tests {
		log.Printf("test %d -- %s", i, test.Name)
		var stdout bytes.Buffer
		logger := NewLogger(t)
		rt := runner.NewRuntime(t, &stdout, logger)
		for j, expr := range test.TestSequence {
			stdout.Reset()
			p := parser.NewReader(rt, strings.NewReader(expr.Expr))
			form, err := p.Read()
			if err != nil {
				t.Errorf("test %d %q: expr %d: parse error: %v", i, test.Name, j, err)
				continue
			}
			if form.IsEof() {
				t.Errorf("test %d %q: expr %d: no expression parsed", i, test.Name, j)
				continue
			}
			meaning, err := rt.Analyze(form)
			if err != nil {
				t.Errorf("test %d %q: expr %d: %v", i, test.Name, j, err)
				continue
			}
			v, err := jet.Evaluate(rt, meaning, rt.Global)
			if err != nil {
				t.Errorf("test %d %q: expr %d: %v", i, test.Name, j, err)
				continue
			}
			if result := rt.SexpString(v); result != expr.Result {
				t.Errorf("test %d %q: expr %d: expected result %s (got %s)", i, test.Name, j, expr.Result, result)
			}
			if stdout.String() != expr.Output {
				t.Errorf("test %d %q: expr %d: expected output %q (got %q)", i, test.Name, j, expr.Output, stdout.String())
			}
		}
		logger.Flush()
	}
}
