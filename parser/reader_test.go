// Copyright © 2016 The Jet authors

package parser

import (
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swgillespie/jet/jet"
)

func testRuntime(t testing.TB) *jet.Runtime {
	t.Helper()
	rt := jet.NewRuntime(
		jet.WithHeapPages(64),
		jet.WithStdout(io.Discard),
		jet.WithStderr(io.Discard),
		jet.WithDebugContracts(true),
	)
	t.Cleanup(rt.Close)
	return rt
}

// readAll renders every form in src, pinning each rendering before the
// next read can move the cells.
func readAll(t *testing.T, rt *jet.Runtime, src string) []string {
	t.Helper()
	p := NewReader(rt, strings.NewReader(src))
	var out []string
	for {
		form, err := p.Read()
		require.NoError(t, err)
		if form.IsEof() {
			return out
		}
		out = append(out, rt.SexpString(form))
	}
}

func readOne(t *testing.T, rt *jet.Runtime, src string) string {
	t.Helper()
	forms := readAll(t, rt, src)
	require.Len(t, forms, 1)
	return forms[0]
}

func TestReadAtoms(t *testing.T) {
	rt := testRuntime(t)
	for _, tc := range []struct{ src, want string }{
		{"42", "42"},
		{"-17", "-17"},
		{"0", "0"},
		{"foo", "foo"},
		{"set!", "set!"},
		{"-", "-"},
		{"-abc", "-abc"},
		{"foo-bar?", "foo-bar?"},
		{"a.b", "a.b"},
		{"x2", "x2"},
		{"#t", "#t"},
		{"#f", "#f"},
		// A bare #eof reads as the Eof object, which readAll takes as the
		// end of input, so the token is read inside a list.
		{"(#eof)", "(#eof)"},
		{`"hello world"`, `"hello world"`},
		{`""`, `""`},
		{"()", "()"},
		{"[]", "()"},
	} {
		assert.Equal(t, tc.want, readOne(t, rt, tc.src), "source %q", tc.src)
	}
}

func TestReadLists(t *testing.T) {
	rt := testRuntime(t)
	for _, tc := range []struct{ src, want string }{
		{"(1 2 3)", "(1 2 3)"},
		{"( 1  2\t3 )", "(1 2 3)"},
		{"(a (b (c)))", "(a (b (c)))"},
		{"[a [b c]]", "(a (b c))"},
		{"(a . b)", "(a . b)"},
		{"(a b . c)", "(a b . c)"},
		{"(define (f x) (+ x 1))", "(define (f x) (+ x 1))"},
	} {
		assert.Equal(t, tc.want, readOne(t, rt, tc.src), "source %q", tc.src)
	}
}

func TestReadReaderMacros(t *testing.T) {
	rt := testRuntime(t)
	for _, tc := range []struct{ src, want string }{
		{"'x", "(quote x)"},
		{"'(1 2)", "(quote (1 2))"},
		{"''x", "(quote (quote x))"},
		{"`x", "(quasiquote x)"},
		{"`(a ,b ,@c)", "(quasiquote (a (unquote b) (unquote-splicing c)))"},
	} {
		assert.Equal(t, tc.want, readOne(t, rt, tc.src), "source %q", tc.src)
	}
}

func TestReadComments(t *testing.T) {
	rt := testRuntime(t)
	src := `
; leading comment
(+ 1 ; inline comment
   2)
; trailing comment`
	assert.Equal(t, []string{"(+ 1 2)"}, readAll(t, rt, src))
}

func TestReadMultipleForms(t *testing.T) {
	rt := testRuntime(t)
	forms := readAll(t, rt, "(define x 1) x 'y")
	assert.Equal(t, []string{"(define x 1)", "x", "(quote y)"}, forms)
}

func TestReadEofAtEnd(t *testing.T) {
	rt := testRuntime(t)
	p := NewReader(rt, strings.NewReader("  ; just a comment\n"))
	form, err := p.Read()
	require.NoError(t, err)
	assert.True(t, form.IsEof())
	// Reading past the end stays at EOF.
	form, err = p.Read()
	require.NoError(t, err)
	assert.True(t, form.IsEof())
}

func TestReadErrors(t *testing.T) {
	rt := testRuntime(t)
	for _, tc := range []struct{ name, src, want string }{
		{"unterminated list", "(1 2", "unexpected EOF"},
		{"unterminated string", `"abc`, "unexpected EOF"},
		{"mismatched delimiters", "(1 2]", "unexpected char"},
		{"bare close", ")", "unexpected char"},
		{"bad numeric literal", "12x", "numeric literal"},
		{"bad hash", "#q", "unexpected char"},
		{
			"over-deep nesting",
			strings.Repeat("(", 1025) + strings.Repeat(")", 1025),
			"maximum depth",
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			p := NewReader(rt, strings.NewReader(tc.src))
			_, err := p.Read()
			require.Error(t, err)
			var readErr *ReadError
			require.ErrorAs(t, err, &readErr)
			assert.ErrorContains(t, err, tc.want)
		})
	}
}

func TestReadNestingAtLimitSucceeds(t *testing.T) {
	rt := jet.NewRuntime(
		jet.WithHeapPages(1024),
		jet.WithStdout(io.Discard),
		jet.WithStderr(io.Discard),
	)
	t.Cleanup(rt.Close)
	src := strings.Repeat("(", 1024) + "x" + strings.Repeat(")", 1024)
	p := NewReader(rt, strings.NewReader(src))
	_, err := p.Read()
	assert.NoError(t, err)
}

func TestReadUnderGCStress(t *testing.T) {
	rt := jet.NewRuntime(
		jet.WithHeapPages(64),
		jet.WithStdout(io.Discard),
		jet.WithStderr(io.Discard),
		jet.WithGCStress(true),
		jet.WithHeapVerify(true),
	)
	t.Cleanup(rt.Close)
	p := NewReader(rt, strings.NewReader("(define (fact n) (if (eq? n 0) 1 (* n (fact (- n 1)))))"))
	form, err := p.Read()
	require.NoError(t, err)
	assert.Equal(t, "(define (fact n) (if (eq? n 0) 1 (* n (fact (- n 1)))))", rt.SexpString(form))
}