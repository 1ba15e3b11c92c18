// Copyright © 2016 The Jet authors

package jet

import (
	"fmt"
	"io"
)

// LoadBuiltins installs the builtin procedures into an activation, which
// must be the global activation the analyzer assigns slots against.
func LoadBuiltins(rt *Runtime, activation *Sexp) {
	c := rt.Contract("LoadBuiltins")
	defer c.Done()
	c.Precondition(activation.IsActivation(), "activation.IsActivation()")

	f := rt.PushFrame("LoadBuiltins")
	defer f.Pop()
	f.Protect(&activation, "activation")

	for _, nf := range builtinTable() {
		loadBuiltin(rt, activation, nf)
	}
}

func loadBuiltin(rt *Runtime, activation *Sexp, nf *NativeFunc) {
	f := rt.PushFrame("loadBuiltin")
	defer f.Pop()
	f.Protect(&activation, "activation")
	var fn *Sexp
	f.Protect(&fn, "fn")

	fn = rt.AllocateNative(nf)
	up, right := rt.Env.DefineGlobal(rt.Interner.Intern(nf.Name))
	if err := activation.Activation().Set(rt, up, right, fn); err != nil {
		Panicf("installing builtin %s: %v", nf.Name, err)
	}
}

func builtinTable() []*NativeFunc {
	return []*NativeFunc{
		{Name: "+", Arity: 2, Fn: builtinAdd},
		{Name: "-", Arity: 2, Fn: builtinSub},
		{Name: "*", Arity: 2, Fn: builtinMul},
		{Name: "/", Arity: 2, Fn: builtinDiv},
		{Name: "car", Arity: 1, Fn: builtinCar},
		{Name: "cdr", Arity: 1, Fn: builtinCdr},
		{Name: "cons", Arity: 2, Fn: builtinCons},
		{Name: "set-car!", Arity: 2, Fn: builtinSetCar},
		{Name: "set-cdr!", Arity: 2, Fn: builtinSetCdr},
		{Name: "append", Arity: 2, Fn: builtinAppend},
		{Name: "read", Arity: 0, Fn: builtinRead},
		{Name: "eval", Arity: 1, Fn: builtinEval},
		{Name: "print", Arity: 1, Fn: builtinPrint},
		{Name: "println", Arity: 1, Fn: builtinPrintln},
		{Name: "error", Arity: 1, Fn: builtinError},
		{Name: "eof-object?", Arity: 1, Fn: builtinIsEof},
		{Name: "empty?", Arity: 1, Fn: builtinIsEmpty},
		{Name: "pair?", Arity: 1, Fn: builtinIsPair},
		{Name: "not", Arity: 1, Fn: builtinNot},
		{Name: "eq?", Arity: 2, Fn: builtinEq},
		{Name: "equal?", Arity: 2, Fn: builtinEqual},
	}
}

func fixnumArgs(name string, args []*Sexp) (int64, int64, error) {
	if !args[0].IsFixnum() {
		return 0, 0, Errorf("%s: type error: not a fixnum: %s", name, args[0].Kind())
	}
	if !args[1].IsFixnum() {
		return 0, 0, Errorf("%s: type error: not a fixnum: %s", name, args[1].Kind())
	}
	return args[0].Fixnum(), args[1].Fixnum(), nil
}

func builtinAdd(rt *Runtime, args []*Sexp) (*Sexp, error) {
	a, b, err := fixnumArgs("+", args)
	if err != nil {
		return nil, err
	}
	return rt.AllocateFixnum(a + b), nil
}

func builtinSub(rt *Runtime, args []*Sexp) (*Sexp, error) {
	a, b, err := fixnumArgs("-", args)
	if err != nil {
		return nil, err
	}
	return rt.AllocateFixnum(a - b), nil
}

func builtinMul(rt *Runtime, args []*Sexp) (*Sexp, error) {
	a, b, err := fixnumArgs("*", args)
	if err != nil {
		return nil, err
	}
	return rt.AllocateFixnum(a * b), nil
}

func builtinDiv(rt *Runtime, args []*Sexp) (*Sexp, error) {
	a, b, err := fixnumArgs("/", args)
	if err != nil {
		return nil, err
	}
	if b == 0 {
		return nil, Errorf("/: divided by zero")
	}
	return rt.AllocateFixnum(a / b), nil
}

func builtinCar(rt *Runtime, args []*Sexp) (*Sexp, error) {
	if !args[0].IsCons() {
		return nil, Errorf("car: type error: not a pair: %s", args[0].Kind())
	}
	return args[0].Car(), nil
}

func builtinCdr(rt *Runtime, args []*Sexp) (*Sexp, error) {
	if !args[0].IsCons() {
		return nil, Errorf("cdr: type error: not a pair: %s", args[0].Kind())
	}
	return args[0].Cdr(), nil
}

func builtinCons(rt *Runtime, args []*Sexp) (*Sexp, error) {
	return rt.AllocateCons(args[0], args[1]), nil
}

func builtinSetCar(rt *Runtime, args []*Sexp) (*Sexp, error) {
	if !args[0].IsCons() {
		return nil, Errorf("set-car!: type error: not a pair: %s", args[0].Kind())
	}
	args[0].SetCar(args[1])
	return rt.AllocateEmpty(), nil
}

func builtinSetCdr(rt *Runtime, args []*Sexp) (*Sexp, error) {
	if !args[0].IsCons() {
		return nil, Errorf("set-cdr!: type error: not a pair: %s", args[0].Kind())
	}
	args[0].SetCdr(args[1])
	return rt.AllocateEmpty(), nil
}

// builtinAppend concatenates two lists.  The first must be a proper list
// and is copied; the second becomes the tail of the copy without being
// touched, which is also what the quasiquote rewrite needs from it.
func builtinAppend(rt *Runtime, args []*Sexp) (*Sexp, error) {
	if !args[0].IsProperList() {
		return nil, Errorf("append: type error: not a proper list: %s", args[0].Kind())
	}
	f := rt.PushFrame("builtinAppend")
	defer f.Pop()
	var cursor, acc, result *Sexp
	f.Protect(&cursor, "cursor")
	f.Protect(&acc, "acc")
	f.Protect(&result, "result")

	// Copy the first list reversed, then reverse the copy onto the second.
	acc = rt.AllocateEmpty()
	cursor = args[0]
	for !cursor.IsEmpty() {
		acc = rt.AllocateCons(cursor.Car(), acc)
		cursor = cursor.Cdr()
	}
	result = args[1]
	for !acc.IsEmpty() {
		next := acc.Cdr()
		acc.SetCdr(result)
		result = acc
		acc = next
	}
	return result, nil
}

func builtinRead(rt *Runtime, args []*Sexp) (*Sexp, error) {
	if rt.Reader == nil {
		return nil, Errorf("read: no reader attached to the runtime")
	}
	return rt.Reader.Read()
}

// builtinEval analyzes its argument in a fresh scope and evaluates the
// result in a new child of the global activation.
func builtinEval(rt *Runtime, args []*Sexp) (*Sexp, error) {
	f := rt.PushFrame("builtinEval")
	defer f.Pop()
	var form, analyzed, act *Sexp
	f.Protect(&form, "form")
	f.Protect(&analyzed, "analyzed")
	f.Protect(&act, "act")
	form = args[0]

	rt.Env.EnterScope()
	analyzed, err := rt.Analyze(form)
	rt.Env.ExitScope()
	if err != nil {
		return nil, err
	}

	act = rt.AllocateActivation(rt.Global)
	return Evaluate(rt, analyzed, act)
}

func builtinPrint(rt *Runtime, args []*Sexp) (*Sexp, error) {
	c := rt.Contract("builtinPrint")
	defer c.Done()
	c.ForbidGC()
	printSexp(rt.Stdout, rt, args[0])
	return rt.AllocateEmpty(), nil
}

func builtinPrintln(rt *Runtime, args []*Sexp) (*Sexp, error) {
	c := rt.Contract("builtinPrintln")
	defer c.Done()
	c.ForbidGC()
	printSexp(rt.Stdout, rt, args[0])
	fmt.Fprintln(rt.Stdout)
	return rt.AllocateEmpty(), nil
}

// printSexp writes a value for user consumption: strings appear without
// surrounding quotes.
func printSexp(w io.Writer, rt *Runtime, v *Sexp) {
	if v.IsString() {
		io.WriteString(w, v.Str())
		return
	}
	io.WriteString(w, rt.SexpString(v))
}

func builtinError(rt *Runtime, args []*Sexp) (*Sexp, error) {
	if args[0].IsString() {
		return nil, Errorf("%s", args[0].Str())
	}
	return nil, Errorf("%s", rt.SexpString(args[0]))
}

func builtinIsEof(rt *Runtime, args []*Sexp) (*Sexp, error) {
	return rt.AllocateBool(args[0].IsEof()), nil
}

func builtinIsEmpty(rt *Runtime, args []*Sexp) (*Sexp, error) {
	return rt.AllocateBool(args[0].IsEmpty()), nil
}

func builtinIsPair(rt *Runtime, args []*Sexp) (*Sexp, error) {
	return rt.AllocateBool(args[0].IsCons()), nil
}

func builtinNot(rt *Runtime, args []*Sexp) (*Sexp, error) {
	return rt.AllocateBool(!args[0].IsTruthy()), nil
}

func builtinEq(rt *Runtime, args []*Sexp) (*Sexp, error) {
	return rt.AllocateBool(args[0].Eq(args[1])), nil
}

func builtinEqual(rt *Runtime, args []*Sexp) (*Sexp, error) {
	return rt.AllocateBool(args[0].Equal(args[1])), nil
}
