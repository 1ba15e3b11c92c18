// Copyright © 2016 The Jet authors

package jet

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLength(t *testing.T) {
	rt := testRuntime(t)
	f := rt.PushFrame("test")
	defer f.Pop()
	var proper3, improper, atom *Sexp
	f.Protect(&proper3, "proper3")
	f.Protect(&improper, "improper")
	f.Protect(&atom, "atom")

	proper3 = intList(rt, 1, 2, 3)
	improper = rt.AllocateCons(rt.AllocateFixnum(1), rt.AllocateFixnum(2))
	atom = rt.AllocateFixnum(7)

	ok, n := proper3.Length()
	assert.True(t, ok)
	assert.Equal(t, 3, n)

	ok, n = improper.Length()
	assert.False(t, ok)
	assert.Equal(t, 1, n)

	ok, n = atom.Length()
	assert.False(t, ok)
	assert.Equal(t, 0, n)

	assert.True(t, Empty().IsProperList())
	assert.False(t, improper.IsProperList())
}

func TestIsTruthy(t *testing.T) {
	rt := testRuntime(t)
	assert.False(t, rt.AllocateBool(false).IsTruthy())
	assert.True(t, rt.AllocateBool(true).IsTruthy())
	// Unlike some lisps, the empty list and zero are truthy.
	assert.True(t, Empty().IsTruthy())
	assert.True(t, rt.AllocateFixnum(0).IsTruthy())
	assert.True(t, rt.AllocateString("").IsTruthy())
}

func TestEq(t *testing.T) {
	rt := testRuntime(t)
	f := rt.PushFrame("test")
	defer f.Pop()
	var a, b *Sexp
	f.Protect(&a, "a")
	f.Protect(&b, "b")

	// Symbols compare by interned id even across distinct cells.
	id := rt.Interner.Intern("blorp")
	a = rt.AllocateSymbol(id)
	b = rt.AllocateSymbol(id)
	assert.True(t, a.Eq(b))

	// Immediates compare by payload.
	a = rt.AllocateFixnum(7)
	b = rt.AllocateFixnum(7)
	assert.True(t, a.Eq(b))
	assert.False(t, a.Eq(rt.AllocateFixnum(8)))

	// Every empty is the same empty.
	assert.True(t, Empty().Eq(Empty()))

	// Compound values compare by pointer.
	a = rt.AllocateCons(rt.AllocateFixnum(1), rt.AllocateEmpty())
	b = rt.AllocateCons(rt.AllocateFixnum(1), rt.AllocateEmpty())
	assert.False(t, a.Eq(b))
	assert.True(t, a.Eq(a))
}

func TestEqual(t *testing.T) {
	rt := testRuntime(t)
	f := rt.PushFrame("test")
	defer f.Pop()
	var a, b *Sexp
	f.Protect(&a, "a")
	f.Protect(&b, "b")

	a = intList(rt, 1, 2, 3)
	b = intList(rt, 1, 2, 3)
	assert.True(t, a.Equal(b))

	b = intList(rt, 1, 2)
	assert.False(t, a.Equal(b))

	a = rt.AllocateString("abc")
	b = rt.AllocateString("abc")
	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(rt.AllocateString("abd")))

	assert.False(t, rt.AllocateFixnum(1).Equal(rt.AllocateString("1")))
}

func TestFormat(t *testing.T) {
	rt := testRuntime(t)
	f := rt.PushFrame("test")
	defer f.Pop()
	var v *Sexp
	f.Protect(&v, "v")

	v = intList(rt, 1, 2, 3)
	assert.Equal(t, "(1 2 3)", rt.SexpString(v))

	v = rt.AllocateCons(rt.AllocateFixnum(1), rt.AllocateFixnum(2))
	assert.Equal(t, "(1 . 2)", rt.SexpString(v))

	v = rt.AllocateCons(intList(rt, 1, 2), rt.AllocateEmpty())
	assert.Equal(t, "((1 2))", rt.SexpString(v))

	assert.Equal(t, "()", rt.SexpString(Empty()))
	assert.Equal(t, `"hi"`, rt.SexpString(rt.AllocateString("hi")))
	assert.Equal(t, "#t", rt.SexpString(rt.AllocateBool(true)))
	assert.Equal(t, "#f", rt.SexpString(rt.AllocateBool(false)))
	assert.Equal(t, "#eof", rt.SexpString(rt.AllocateEof()))
	assert.Equal(t, "quote", rt.SexpString(rt.AllocateSymbol(SymQuote)))
	assert.Equal(t, "#<activation>", rt.SexpString(rt.AllocateActivation(nil)))
}

func TestAccessorsPanicOnWrongKind(t *testing.T) {
	rt := testRuntime(t)
	n := rt.AllocateFixnum(1)
	assert.Panics(t, func() { n.Car() })
	assert.Panics(t, func() { n.Str() })
	assert.Panics(t, func() { Empty().Cdr() })
}

func TestForEachVisitsEveryElement(t *testing.T) {
	rt := testRuntime(t, WithGCStress(true))
	f := rt.PushFrame("test")
	defer f.Pop()
	var list *Sexp
	f.Protect(&list, "list")

	list = intList(rt, 1, 2, 3, 4)
	var sum int64
	err := list.ForEach(rt, func(v *Sexp) error {
		sum += v.Fixnum()
		// Allocate inside the callback; the cursor must survive the moves.
		rt.AllocateString("churn")
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, int64(10), sum)
}

func TestCellSizeDividesPage(t *testing.T) {
	assert.Zero(t, PageSize%int(cellSize))
}
