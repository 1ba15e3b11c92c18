// Copyright © 2016 The Jet authors

package jet

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (rt *Runtime) testSym(name string) *Sexp {
	return rt.AllocateSymbol(rt.Interner.Intern(name))
}

// dotted describes an improper list for buildForm.
type dotted struct {
	items []interface{}
	tail  interface{}
}

// buildForm constructs a value tree from a Go literal description: strings
// become symbols, ints fixnums, bools booleans, nil the empty list, and
// []interface{} proper lists.  Children are built one at a time behind
// protected storage, so nested construction is safe under GC stress.
func buildForm(rt *Runtime, spec interface{}) *Sexp {
	f := rt.PushFrame("buildForm")
	defer f.Pop()

	switch s := spec.(type) {
	case nil:
		return rt.AllocateEmpty()
	case string:
		return rt.testSym(s)
	case int:
		return rt.AllocateFixnum(int64(s))
	case bool:
		return rt.AllocateBool(s)
	case []interface{}:
		var items []*Sexp
		f.ProtectSlice(&items, "items")
		for _, child := range s {
			items = append(items, buildForm(rt, child))
		}
		var acc *Sexp
		f.Protect(&acc, "acc")
		acc = rt.AllocateEmpty()
		for i := len(items) - 1; i >= 0; i-- {
			acc = rt.AllocateCons(items[i], acc)
		}
		return acc
	case dotted:
		var items []*Sexp
		f.ProtectSlice(&items, "items")
		for _, child := range s.items {
			items = append(items, buildForm(rt, child))
		}
		var acc *Sexp
		f.Protect(&acc, "acc")
		acc = buildForm(rt, s.tail)
		for i := len(items) - 1; i >= 0; i-- {
			acc = rt.AllocateCons(items[i], acc)
		}
		return acc
	default:
		Panicf("buildForm: unsupported spec %T", spec)
		return nil
	}
}

func analyzeSpec(t *testing.T, rt *Runtime, spec interface{}) (*Sexp, error) {
	t.Helper()
	f := rt.PushFrame("analyzeSpec")
	defer f.Pop()
	var form *Sexp
	f.Protect(&form, "form")
	form = buildForm(rt, spec)
	return rt.Analyze(form)
}

func TestAnalysisEnvScopes(t *testing.T) {
	rt := testRuntime(t)
	env := NewAnalysisEnv(rt)

	x := rt.Interner.Intern("x")
	y := rt.Interner.Intern("y")

	env.EnterScope()
	assert.Equal(t, 0, env.Define(x))
	assert.Equal(t, 1, env.Define(y))
	assert.Equal(t, 0, env.Define(x), "slot indices never change once assigned")

	up, right := env.Get(x)
	assert.Equal(t, 0, up)
	assert.Equal(t, 0, right)

	env.EnterScope()
	up, right = env.Get(y)
	assert.Equal(t, 1, up)
	assert.Equal(t, 1, right)
	env.ExitScope()
	env.ExitScope()

	assert.Panics(t, func() { env.ExitScope() }, "the global scope is never popped")
}

func TestAnalysisEnvDefineGlobalIdempotent(t *testing.T) {
	rt := testRuntime(t)
	env := NewAnalysisEnv(rt)
	z := rt.Interner.Intern("z")

	_, r1 := env.DefineGlobal(z)
	_, r2 := env.DefineGlobal(z)
	assert.Equal(t, r1, r2)

	env.EnterScope()
	up, right := env.DefineGlobal(z)
	assert.Equal(t, 1, up, "address is relative to the current depth")
	assert.Equal(t, r1, right)
	env.ExitScope()
}

func TestAnalysisEnvAutoDefineWarns(t *testing.T) {
	var stderr bytes.Buffer
	rt := NewRuntime(
		WithHeapPages(64),
		WithStdout(io.Discard),
		WithStderr(&stderr),
		WithWarnings(true),
	)
	t.Cleanup(rt.Close)

	m, err := rt.Analyze(rt.testSym("zork"))
	require.NoError(t, err)
	require.True(t, m.IsMeaning())
	assert.Contains(t, stderr.String(), "possibly unbound symbol: zork")

	// The symbol now has a stable global slot; no second warning.
	stderr.Reset()
	_, err = rt.Analyze(rt.testSym("zork"))
	require.NoError(t, err)
	assert.Empty(t, stderr.String())
}

func TestAnalysisEnvMacroFlags(t *testing.T) {
	rt := testRuntime(t)
	env := NewAnalysisEnv(rt)
	m := rt.Interner.Intern("my-macro")

	env.DefineGlobal(m)
	assert.False(t, env.IsMacro(m))
	env.SetMacro(m)
	assert.True(t, env.IsMacro(m))

	// The macro flag reads through shadowing scopes.
	env.EnterScope()
	assert.True(t, env.IsMacro(m))
	env.ExitScope()
}

// lambdaMeaning digs the LambdaMeaning payload out of an analyzed cell.
func lambdaMeaning(t *testing.T, cell *Sexp) *LambdaMeaning {
	t.Helper()
	require.True(t, cell.IsMeaning())
	lm, ok := cell.Meaning().(*LambdaMeaning)
	require.True(t, ok, "expected a lambda meaning, got %T", cell.Meaning())
	return lm
}

func TestAnalyzeLambdaShapes(t *testing.T) {
	rt := testRuntime(t)

	// (lambda (x y) x)
	m, err := analyzeSpec(t, rt, []interface{}{"lambda", []interface{}{"x", "y"}, "x"})
	require.NoError(t, err)
	lm := lambdaMeaning(t, m)
	assert.Equal(t, 2, lm.Arity())
	assert.False(t, lm.IsVariadic())

	// (lambda xs xs)
	m, err = analyzeSpec(t, rt, []interface{}{"lambda", "xs", "xs"})
	require.NoError(t, err)
	lm = lambdaMeaning(t, m)
	assert.Equal(t, 0, lm.Arity())
	assert.True(t, lm.IsVariadic())

	// (lambda () 1)
	m, err = analyzeSpec(t, rt, []interface{}{"lambda", nil, 1})
	require.NoError(t, err)
	lm = lambdaMeaning(t, m)
	assert.Equal(t, 0, lm.Arity())
	assert.False(t, lm.IsVariadic())

	// (lambda (a b . rest) rest)
	m, err = analyzeSpec(t, rt, []interface{}{
		"lambda", dotted{items: []interface{}{"a", "b"}, tail: "rest"}, "rest",
	})
	require.NoError(t, err)
	lm = lambdaMeaning(t, m)
	assert.Equal(t, 2, lm.Arity())
	assert.True(t, lm.IsVariadic())
}

func TestAnalyzeResolvesLexicalAddresses(t *testing.T) {
	rt := testRuntime(t)

	// (lambda (x) (lambda (y) x)) — the inner reference to x crosses one
	// scope boundary.
	m, err := analyzeSpec(t, rt, []interface{}{
		"lambda", []interface{}{"x"},
		[]interface{}{"lambda", []interface{}{"y"}, "x"},
	})
	require.NoError(t, err)

	outer := lambdaMeaning(t, m)
	outerSeq := outer.Body().Meaning().(*SequenceMeaning)
	inner := lambdaMeaning(t, outerSeq.final)
	innerSeq := inner.Body().Meaning().(*SequenceMeaning)
	ref, ok := innerSeq.final.Meaning().(*ReferenceMeaning)
	require.True(t, ok)
	assert.Equal(t, 1, ref.up)
	assert.Equal(t, 0, ref.right)
}

func TestAnalyzeErrors(t *testing.T) {
	rt := testRuntime(t)

	for _, tc := range []struct {
		name string
		spec interface{}
		want string
	}{
		{"empty quote", []interface{}{"quote"}, "invalid quote form"},
		{"if without branches", []interface{}{"if", 1}, "invalid if form"},
		{"bare lambda", []interface{}{"lambda"}, "invalid lambda form"},
		{"numeric parameter", []interface{}{"lambda", []interface{}{1}, 1}, "parameter is not a symbol"},
		{"empty begin", []interface{}{"begin"}, "invalid begin form"},
		{"dotted invocation", dotted{items: []interface{}{"f"}, tail: 1}, "invalid invocation"},
		{"set! non-symbol", []interface{}{"set!", 1, 2}, "invalid set! form"},
		{"short let", []interface{}{"let", nil}, "invalid let form"},
	} {
		_, err := analyzeSpec(t, rt, tc.spec)
		assert.ErrorContains(t, err, tc.want, tc.name)
	}
}

func TestAnalyzeQuotedAtom(t *testing.T) {
	rt := testRuntime(t)
	f := rt.PushFrame("test")
	defer f.Pop()
	var m *Sexp
	f.Protect(&m, "m")

	m, err := rt.Analyze(rt.AllocateFixnum(42))
	require.NoError(t, err)
	qm, ok := m.Meaning().(*QuotedMeaning)
	require.True(t, ok)
	assert.Equal(t, int64(42), qm.quoted.Fixnum())

	// The empty list evaluates to itself.
	m, err = rt.Analyze(rt.AllocateEmpty())
	require.NoError(t, err)
	_, ok = m.Meaning().(*QuotedMeaning)
	assert.True(t, ok)
}

func TestAnalyzeUnderStress(t *testing.T) {
	rt := testRuntime(t, WithGCStress(true), WithHeapVerify(true))

	// (if (eq? x 0) (quote a) (begin 1 2))
	m, err := analyzeSpec(t, rt, []interface{}{
		"if",
		[]interface{}{"eq?", "x", 0},
		[]interface{}{"quote", "a"},
		[]interface{}{"begin", 1, 2},
	})
	require.NoError(t, err)
	cm, ok := m.Meaning().(*ConditionalMeaning)
	require.True(t, ok)
	assert.NotNil(t, cm.cond)
	assert.NotNil(t, cm.then)
	assert.NotNil(t, cm.els)
}
