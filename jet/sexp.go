// Copyright © 2016 The Jet authors

package jet

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind is the runtime type of a Sexp cell.
type Kind uint8

// Possible Kind values.
const (
	// KindEmpty is the empty list ().  The canonical empty cell is a
	// singleton that lives outside the managed heap; code testing for
	// emptiness must compare kinds, never pointers, because the empty kind
	// is also used for the uninitialized-slot sentinel.
	KindEmpty Kind = iota
	// KindCons cells store car and cdr references.  Neither is ever nil; an
	// empty list tail is an Empty cell.
	KindCons
	// KindSymbol cells store an interned symbol id.  Symbols take a full
	// heap cell despite the small payload so that every allocation has a
	// uniform size.
	KindSymbol
	// KindString cells own their byte storage.  The storage is released by
	// the collector's finalizer pass when the cell dies.
	KindString
	// KindFixnum cells store a fixed-width signed integer.
	KindFixnum
	// KindBool cells store a boolean.  Booleans are boxed like everything
	// else, but Eq compares them by payload, so two equal booleans are eq?
	// even when they live in distinct cells.
	KindBool
	// KindEof is the end-of-file object produced by the reader.
	KindEof
	// KindActivation cells own a runtime scope record.  The record is
	// released by the finalizer pass.
	KindActivation
	// KindFunction cells pair a lambda meaning with the activation captured
	// when the lambda was evaluated.
	KindFunction
	// KindNativeFunction cells hold a builtin implemented in Go.  The
	// callable is dropped by the finalizer pass.
	KindNativeFunction
	// KindMeaning cells hold an analyzed meaning so the collector can trace
	// the value references embedded in it.
	KindMeaning
)

var kindStrings = []string{
	KindEmpty:          "empty",
	KindCons:           "cons",
	KindSymbol:         "symbol",
	KindString:         "string",
	KindFixnum:         "fixnum",
	KindBool:           "bool",
	KindEof:            "eof",
	KindActivation:     "activation",
	KindFunction:       "function",
	KindNativeFunction: "native-function",
	KindMeaning:        "meaning",
}

func (k Kind) String() string {
	if int(k) >= len(kindStrings) {
		return "invalid"
	}
	return kindStrings[k]
}

// NativeFunc is a builtin procedure implemented in Go.  The evaluator
// enforces Arity before invoking Fn; Fn receives exactly Arity arguments and
// must treat every argument as a live, protected reference.
type NativeFunc struct {
	Name  string
	Arity int
	Fn    func(rt *Runtime, args []*Sexp) (*Sexp, error)
}

// Sexp is a runtime value.  Every variant shares this one cell layout so the
// heap can bump-allocate uniformly.  Cells are relocated by the collector;
// holding a *Sexp across an allocation without protecting it through a root
// frame is a bug.
type Sexp struct {
	kind Kind
	flag bool
	sym  SymbolID

	num       int64
	car, cdr  *Sexp
	act       *Activation
	fnMeaning *LambdaMeaning
	fnAct     *Sexp
	native    *NativeFunc
	str       string
	meaning   Meaning

	// check doubles as relocation poison: the collector stamps evacuated
	// cells so stale references crash visibly in verify mode.
	check uint64

	_ [cellPad]byte
}

// theEmpty is the singleton empty list.  It is never heap-allocated and the
// collector skips it during tracing.
var theEmpty = &Sexp{kind: KindEmpty}

// unsetSlot marks an activation slot that was grown into existence but never
// assigned.  It aliases the empty kind so tracing can skip it, but it is
// pointer-distinct from theEmpty so reads of it can be diagnosed.
var unsetSlot = &Sexp{kind: KindEmpty}

// Empty returns the singleton empty list.
func Empty() *Sexp { return theEmpty }

func (v *Sexp) Kind() Kind { return v.kind }

func (v *Sexp) IsEmpty() bool          { return v.kind == KindEmpty }
func (v *Sexp) IsCons() bool           { return v.kind == KindCons }
func (v *Sexp) IsSymbol() bool         { return v.kind == KindSymbol }
func (v *Sexp) IsString() bool         { return v.kind == KindString }
func (v *Sexp) IsFixnum() bool         { return v.kind == KindFixnum }
func (v *Sexp) IsBool() bool           { return v.kind == KindBool }
func (v *Sexp) IsEof() bool            { return v.kind == KindEof }
func (v *Sexp) IsActivation() bool     { return v.kind == KindActivation }
func (v *Sexp) IsFunction() bool       { return v.kind == KindFunction }
func (v *Sexp) IsNativeFunction() bool { return v.kind == KindNativeFunction }
func (v *Sexp) IsMeaning() bool        { return v.kind == KindMeaning }

// IsSelfEvaluating reports whether v evaluates to itself.  Anything that is
// not a cons and not a symbol is self-evaluating.
func (v *Sexp) IsSelfEvaluating() bool {
	return !v.IsCons() && !v.IsSymbol()
}

// IsTruthy reports whether v counts as true in a conditional.  Only the
// boolean false value is falsey; the empty list is truthy.
func (v *Sexp) IsTruthy() bool {
	return !(v.kind == KindBool && !v.flag)
}

// Car returns the head of a cons cell.  Car panics if v is not a cons.
func (v *Sexp) Car() *Sexp {
	if v.kind != KindCons {
		panic("car of non-cons: " + v.kind.String())
	}
	return v.car
}

// Cdr returns the tail of a cons cell.  Cdr panics if v is not a cons.
func (v *Sexp) Cdr() *Sexp {
	if v.kind != KindCons {
		panic("cdr of non-cons: " + v.kind.String())
	}
	return v.cdr
}

// Cadr returns the second element of a list, panicking if the structure is
// insufficient.
func (v *Sexp) Cadr() *Sexp { return v.Cdr().Car() }

// Caddr returns the third element of a list, panicking if the structure is
// insufficient.
func (v *Sexp) Caddr() *Sexp { return v.Cdr().Cdr().Car() }

// SetCar overwrites the head of a cons cell.
func (v *Sexp) SetCar(car *Sexp) {
	if v.kind != KindCons {
		panic("set-car of non-cons: " + v.kind.String())
	}
	writeBarrier(v, car)
	v.car = car
}

// SetCdr overwrites the tail of a cons cell.
func (v *Sexp) SetCdr(cdr *Sexp) {
	if v.kind != KindCons {
		panic("set-cdr of non-cons: " + v.kind.String())
	}
	writeBarrier(v, cdr)
	v.cdr = cdr
}

// Symbol returns the interned id of a symbol cell.
func (v *Sexp) Symbol() SymbolID {
	if v.kind != KindSymbol {
		panic("not a symbol: " + v.kind.String())
	}
	return v.sym
}

// Str returns the contents of a string cell.
func (v *Sexp) Str() string {
	if v.kind != KindString {
		panic("not a string: " + v.kind.String())
	}
	return v.str
}

// Fixnum returns the integer payload of a fixnum cell.
func (v *Sexp) Fixnum() int64 {
	if v.kind != KindFixnum {
		panic("not a fixnum: " + v.kind.String())
	}
	return v.num
}

// Bool returns the payload of a boolean cell.
func (v *Sexp) Bool() bool {
	if v.kind != KindBool {
		panic("not a bool: " + v.kind.String())
	}
	return v.flag
}

// Activation returns the scope record owned by an activation cell.
func (v *Sexp) Activation() *Activation {
	if v.kind != KindActivation {
		panic("not an activation: " + v.kind.String())
	}
	return v.act
}

// FuncMeaning returns the lambda meaning of a function cell.
func (v *Sexp) FuncMeaning() *LambdaMeaning {
	if v.kind != KindFunction {
		panic("not a function: " + v.kind.String())
	}
	return v.fnMeaning
}

// FuncActivation returns the activation captured by a function cell.
func (v *Sexp) FuncActivation() *Sexp {
	if v.kind != KindFunction {
		panic("not a function: " + v.kind.String())
	}
	return v.fnAct
}

// Native returns the callable of a native-function cell.
func (v *Sexp) Native() *NativeFunc {
	if v.kind != KindNativeFunction {
		panic("not a native function: " + v.kind.String())
	}
	return v.native
}

// Meaning returns the meaning payload of a meaning cell.
func (v *Sexp) Meaning() Meaning {
	if v.kind != KindMeaning {
		panic("not a meaning: " + v.kind.String())
	}
	return v.meaning
}

// Length walks a list and returns whether it is proper along with the number
// of cons cells visited.  A non-list has length 0 and is not proper; an
// improper list reports the count of cells before the non-list tail.
func (v *Sexp) Length() (proper bool, n int) {
	if !v.IsCons() {
		return false, 0
	}
	cursor := v
	for {
		if cursor.IsEmpty() {
			return true, n
		}
		if !cursor.IsCons() {
			return false, n
		}
		n++
		cursor = cursor.cdr
	}
}

// IsProperList reports whether v is a proper list.  The empty list is
// proper.
func (v *Sexp) IsProperList() bool {
	if v.IsEmpty() {
		return true
	}
	proper, _ := v.Length()
	return proper
}

// ForEach applies fn to every element of a proper list.  The callback may
// allocate, so the cursor is held through a root frame.
func (v *Sexp) ForEach(rt *Runtime, fn func(*Sexp) error) error {
	f := rt.PushFrame("ForEach")
	defer f.Pop()
	var cursor *Sexp
	f.Protect(&cursor, "cursor")

	cursor = v
	for !cursor.IsEmpty() {
		if err := fn(cursor.Car()); err != nil {
			return err
		}
		cursor = cursor.Cdr()
	}
	return nil
}

// Eq reports identity.  The value model forces carve-outs from raw pointer
// comparison: all empty cells alias one another, symbols compare by
// interned id because every read of a symbol allocates a fresh cell, and
// the immediates (fixnums, booleans) compare by payload because the
// uniform-cell allocator boxes them.  Compound values compare by pointer;
// use Equal for structural comparison.
func (v *Sexp) Eq(other *Sexp) bool {
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case KindEmpty:
		return true
	case KindSymbol:
		return v.sym == other.sym
	case KindFixnum:
		return v.num == other.num
	case KindBool:
		return v.flag == other.flag
	default:
		return v == other
	}
}

// Equal reports structural equality: recursive on cons cells, by value on
// fixnums, booleans and symbol ids, byte-for-byte on strings.  Everything
// else falls back to Eq.
func (v *Sexp) Equal(other *Sexp) bool {
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case KindCons:
		return v.car.Equal(other.car) && v.cdr.Equal(other.cdr)
	case KindFixnum:
		return v.num == other.num
	case KindBool:
		return v.flag == other.flag
	case KindSymbol:
		return v.sym == other.sym
	case KindString:
		return v.str == other.str
	default:
		return v.Eq(other)
	}
}

// trace visits the address of every managed reference held by this cell.
// The collector relies on trace to find the transitive closure of a copied
// object; every variant that embeds *Sexp fields must be covered here.
func (v *Sexp) trace(visit func(**Sexp)) {
	switch v.kind {
	case KindCons:
		visit(&v.car)
		visit(&v.cdr)
	case KindFunction:
		v.fnMeaning.TracePointers(visit)
		visit(&v.fnAct)
	case KindActivation:
		v.act.Trace(visit)
	case KindMeaning:
		v.meaning.TracePointers(visit)
	}
}

// Format renders v for display.  Lists print with dotted-pair notation when
// improper; strings print quoted.  The interner recovers symbol names.
func (v *Sexp) Format(in *Interner) string {
	var b strings.Builder
	v.dump(&b, in)
	return b.String()
}

func (v *Sexp) dump(b *strings.Builder, in *Interner) {
	if !v.IsCons() {
		v.dumpAtom(b, in)
		return
	}
	b.WriteByte('(')
	car, cdr := v.car, v.cdr
	for {
		car.dump(b, in)
		if cdr.IsEmpty() {
			break
		}
		if cdr.IsCons() {
			car, cdr = cdr.car, cdr.cdr
			b.WriteByte(' ')
			continue
		}
		b.WriteString(" . ")
		cdr.dump(b, in)
		break
	}
	b.WriteByte(')')
}

func (v *Sexp) dumpAtom(b *strings.Builder, in *Interner) {
	switch v.kind {
	case KindString:
		b.WriteByte('"')
		b.WriteString(v.str)
		b.WriteByte('"')
	case KindSymbol:
		b.WriteString(in.Name(v.sym))
	case KindFixnum:
		b.WriteString(strconv.FormatInt(v.num, 10))
	case KindBool:
		if v.flag {
			b.WriteString("#t")
		} else {
			b.WriteString("#f")
		}
	case KindEof:
		b.WriteString("#eof")
	case KindEmpty:
		b.WriteString("()")
	case KindActivation:
		b.WriteString("#<activation>")
	case KindFunction:
		b.WriteString("#<function>")
	case KindNativeFunction:
		b.WriteString("#<native function>")
	case KindMeaning:
		v.meaning.dump(b, in)
	default:
		if v.check == poisonPattern {
			Panicf("probable heap corruption: formatting a relocated cell")
		}
		fmt.Fprintf(b, "#<invalid %d>", v.kind)
	}
}
