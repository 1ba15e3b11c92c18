// Copyright © 2016 The Jet authors

package jet

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestActivationSetGet(t *testing.T) {
	rt := testRuntime(t)
	f := rt.PushFrame("test")
	defer f.Pop()
	var act, v *Sexp
	f.Protect(&act, "act")
	f.Protect(&v, "v")

	act = rt.AllocateActivation(nil)
	v = rt.AllocateFixnum(42)
	require.NoError(t, act.Activation().Set(rt, 0, 0, v))

	got, err := act.Activation().Get(rt, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(42), got.Fixnum())
}

func TestActivationGrowthPadsWithSentinel(t *testing.T) {
	rt := testRuntime(t)
	f := rt.PushFrame("test")
	defer f.Pop()
	var act, v *Sexp
	f.Protect(&act, "act")
	f.Protect(&v, "v")

	act = rt.AllocateActivation(nil)
	v = rt.AllocateFixnum(1)
	require.NoError(t, act.Activation().Set(rt, 0, 5, v))

	// Slots 0..4 exist but were never assigned; reading one is an error.
	_, err := act.Activation().Get(rt, 0, 2)
	assert.ErrorContains(t, err, "uninitialized")

	got, err := act.Activation().Get(rt, 0, 5)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.Fixnum())
}

func TestActivationReadPastEndErrors(t *testing.T) {
	rt := testRuntime(t)
	f := rt.PushFrame("test")
	defer f.Pop()
	var act *Sexp
	f.Protect(&act, "act")

	act = rt.AllocateActivation(nil)
	_, err := act.Activation().Get(rt, 0, 3)
	assert.ErrorContains(t, err, "uninitialized")
}

func TestActivationRefusesActivationValues(t *testing.T) {
	rt := testRuntime(t)
	f := rt.PushFrame("test")
	defer f.Pop()
	var act, other *Sexp
	f.Protect(&act, "act")
	f.Protect(&other, "other")

	act = rt.AllocateActivation(nil)
	other = rt.AllocateActivation(nil)
	err := act.Activation().Set(rt, 0, 0, other)
	assert.ErrorContains(t, err, "activation")
}

func TestActivationParentChain(t *testing.T) {
	rt := testRuntime(t)
	f := rt.PushFrame("test")
	defer f.Pop()
	var parent, child, v *Sexp
	f.Protect(&parent, "parent")
	f.Protect(&child, "child")
	f.Protect(&v, "v")

	parent = rt.AllocateActivation(nil)
	child = rt.AllocateActivation(parent)
	v = rt.AllocateFixnum(9)
	require.NoError(t, parent.Activation().Set(rt, 0, 0, v))

	got, err := child.Activation().Get(rt, 1, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(9), got.Fixnum())

	// Writing through the chain hits the parent's slot vector.
	require.NoError(t, child.Activation().Set(rt, 1, 0, rt.AllocateFixnum(10)))
	got, err = parent.Activation().Get(rt, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(10), got.Fixnum())
}

func TestActivationInvalidUpPanics(t *testing.T) {
	rt := testRuntime(t)
	f := rt.PushFrame("test")
	defer f.Pop()
	var act *Sexp
	f.Protect(&act, "act")

	act = rt.AllocateActivation(nil)
	assert.Panics(t, func() { act.Activation().Get(rt, 2, 0) })
}

func TestActivationChainSurvivesCollection(t *testing.T) {
	rt := testRuntime(t, WithGCStress(true), WithHeapVerify(true))
	f := rt.PushFrame("test")
	defer f.Pop()
	var parent, child *Sexp
	f.Protect(&parent, "parent")
	f.Protect(&child, "child")

	parent = rt.AllocateActivation(nil)
	child = rt.AllocateActivation(parent)
	require.NoError(t, parent.Activation().Set(rt, 0, 0, rt.AllocateFixnum(5)))
	require.NoError(t, child.Activation().Set(rt, 0, 0, rt.AllocateFixnum(6)))

	rt.Heap.Collect()

	got, err := child.Activation().Get(rt, 1, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(5), got.Fixnum())
	got, err = child.Activation().Get(rt, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(6), got.Fixnum())
}
