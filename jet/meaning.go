// Copyright © 2016 The Jet authors

package jet

import (
	"strconv"
	"strings"
)

// A Trampoline is the result of evaluating a meaning: either a finished
// value or a thunk naming the next meaning to evaluate and the activation
// to evaluate it in.  Thunks are what give the interpreter proper tail
// calls; the evaluator loops instead of recursing.
type Trampoline struct {
	Value *Sexp
	Act   *Sexp
	Next  *Sexp
}

// ValueResult returns a finished trampoline.
func ValueResult(v *Sexp) Trampoline { return Trampoline{Value: v} }

// ThunkResult returns a trampoline describing the next evaluation step.
func ThunkResult(act, meaning *Sexp) Trampoline {
	return Trampoline{Act: act, Next: meaning}
}

// IsThunk reports whether the trampoline still has a step to run.
func (t *Trampoline) IsThunk() bool { return t.Next != nil }

// A Meaning is the analyzed form of an s-expression, the thing the
// evaluator actually interprets.  Meanings that embed managed references
// must expose them through TracePointers or the collector will move the
// referents out from under them.
type Meaning interface {
	Eval(rt *Runtime, act *Sexp) (Trampoline, error)
	TracePointers(visit func(**Sexp))
	dump(b *strings.Builder, in *Interner)
}

// QuotedMeaning returns its datum unevaluated.
type QuotedMeaning struct {
	quoted *Sexp
}

func (m *QuotedMeaning) Eval(rt *Runtime, act *Sexp) (Trampoline, error) {
	c := rt.Contract("QuotedMeaning.Eval")
	defer c.Done()
	c.ForbidGC()
	c.Precondition(act.IsActivation(), "act.IsActivation()")

	return ValueResult(m.quoted), nil
}

func (m *QuotedMeaning) TracePointers(visit func(**Sexp)) {
	visit(&m.quoted)
}

func (m *QuotedMeaning) dump(b *strings.Builder, in *Interner) {
	b.WriteString("(meaning-quote ")
	m.quoted.dump(b, in)
	b.WriteByte(')')
}

// ReferenceMeaning reads a variable through its lexical address.
type ReferenceMeaning struct {
	up, right int
}

func (m *ReferenceMeaning) Eval(rt *Runtime, act *Sexp) (Trampoline, error) {
	c := rt.Contract("ReferenceMeaning.Eval")
	defer c.Done()
	c.ForbidGC()
	c.Precondition(act.IsActivation(), "act.IsActivation()")

	v, err := act.Activation().Get(rt, m.up, m.right)
	if err != nil {
		return Trampoline{}, err
	}
	return ValueResult(v), nil
}

func (m *ReferenceMeaning) TracePointers(visit func(**Sexp)) {}

func (m *ReferenceMeaning) dump(b *strings.Builder, in *Interner) {
	b.WriteString("(meaning-ref ")
	b.WriteString(strconv.Itoa(m.up))
	b.WriteByte(' ')
	b.WriteString(strconv.Itoa(m.right))
	b.WriteByte(')')
}

// DefinitionMeaning evaluates a binding and stores it, used by define.
type DefinitionMeaning struct {
	up, right int
	binding   *Sexp
}

func (m *DefinitionMeaning) Eval(rt *Runtime, act *Sexp) (Trampoline, error) {
	c := rt.Contract("DefinitionMeaning.Eval")
	defer c.Done()
	c.Precondition(act.IsActivation(), "act.IsActivation()")

	f := rt.PushFrame("DefinitionMeaning.Eval")
	defer f.Pop()
	f.Protect(&act, "act")
	var value *Sexp
	f.Protect(&value, "value")

	value, err := Evaluate(rt, m.binding, act)
	if err != nil {
		return Trampoline{}, err
	}
	if err := act.Activation().Set(rt, m.up, m.right, value); err != nil {
		return Trampoline{}, err
	}
	return ValueResult(rt.AllocateEmpty()), nil
}

func (m *DefinitionMeaning) TracePointers(visit func(**Sexp)) {
	visit(&m.binding)
}

func (m *DefinitionMeaning) dump(b *strings.Builder, in *Interner) {
	b.WriteString("(meaning-define ")
	b.WriteString(strconv.Itoa(m.up))
	b.WriteByte(' ')
	b.WriteString(strconv.Itoa(m.right))
	b.WriteByte(' ')
	m.binding.dump(b, in)
	b.WriteByte(')')
}

// SetMeaning evaluates a binding and stores it in an already-defined slot,
// used by set!.
type SetMeaning struct {
	up, right int
	binding   *Sexp
}

func (m *SetMeaning) Eval(rt *Runtime, act *Sexp) (Trampoline, error) {
	c := rt.Contract("SetMeaning.Eval")
	defer c.Done()
	c.Precondition(act.IsActivation(), "act.IsActivation()")

	f := rt.PushFrame("SetMeaning.Eval")
	defer f.Pop()
	f.Protect(&act, "act")
	var value *Sexp
	f.Protect(&value, "value")

	value, err := Evaluate(rt, m.binding, act)
	if err != nil {
		return Trampoline{}, err
	}
	if err := act.Activation().Set(rt, m.up, m.right, value); err != nil {
		return Trampoline{}, err
	}
	return ValueResult(rt.AllocateEmpty()), nil
}

func (m *SetMeaning) TracePointers(visit func(**Sexp)) {
	visit(&m.binding)
}

func (m *SetMeaning) dump(b *strings.Builder, in *Interner) {
	b.WriteString("(meaning-set ")
	b.WriteString(strconv.Itoa(m.up))
	b.WriteByte(' ')
	b.WriteString(strconv.Itoa(m.right))
	b.WriteByte(' ')
	m.binding.dump(b, in)
	b.WriteByte(')')
}

// ConditionalMeaning evaluates its condition and then thunks into one of
// the two branches; both branches are in tail position.
type ConditionalMeaning struct {
	cond, then, els *Sexp
}

func (m *ConditionalMeaning) Eval(rt *Runtime, act *Sexp) (Trampoline, error) {
	c := rt.Contract("ConditionalMeaning.Eval")
	defer c.Done()
	c.Precondition(act.IsActivation(), "act.IsActivation()")

	f := rt.PushFrame("ConditionalMeaning.Eval")
	defer f.Pop()
	f.Protect(&act, "act")
	var cond *Sexp
	f.Protect(&cond, "cond")

	cond, err := Evaluate(rt, m.cond, act)
	if err != nil {
		return Trampoline{}, err
	}
	if cond.IsTruthy() {
		return ThunkResult(act, m.then), nil
	}
	return ThunkResult(act, m.els), nil
}

func (m *ConditionalMeaning) TracePointers(visit func(**Sexp)) {
	visit(&m.cond)
	visit(&m.then)
	visit(&m.els)
}

func (m *ConditionalMeaning) dump(b *strings.Builder, in *Interner) {
	b.WriteString("(meaning-if ")
	m.cond.dump(b, in)
	b.WriteByte(' ')
	m.then.dump(b, in)
	b.WriteByte(' ')
	m.els.dump(b, in)
	b.WriteByte(')')
}

// SequenceMeaning evaluates its body for effect and thunks into the final
// form, which is in tail position.
type SequenceMeaning struct {
	body  []*Sexp
	final *Sexp
}

func (m *SequenceMeaning) Eval(rt *Runtime, act *Sexp) (Trampoline, error) {
	c := rt.Contract("SequenceMeaning.Eval")
	defer c.Done()
	c.Precondition(act.IsActivation(), "act.IsActivation()")

	f := rt.PushFrame("SequenceMeaning.Eval")
	defer f.Pop()
	f.Protect(&act, "act")

	for i := range m.body {
		if _, err := Evaluate(rt, m.body[i], act); err != nil {
			return Trampoline{}, err
		}
	}
	return ThunkResult(act, m.final), nil
}

func (m *SequenceMeaning) TracePointers(visit func(**Sexp)) {
	for i := range m.body {
		visit(&m.body[i])
	}
	visit(&m.final)
}

func (m *SequenceMeaning) dump(b *strings.Builder, in *Interner) {
	b.WriteString("(meaning-sequence")
	for i := range m.body {
		b.WriteByte(' ')
		m.body[i].dump(b, in)
	}
	b.WriteByte(' ')
	m.final.dump(b, in)
	b.WriteByte(')')
}

// LambdaMeaning introduces a function; evaluating it captures the current
// activation.
type LambdaMeaning struct {
	arity    int
	variadic bool
	body     *Sexp
}

// Arity returns the number of required parameters.
func (m *LambdaMeaning) Arity() int { return m.arity }

// IsVariadic reports whether extra arguments are collected into a rest
// parameter at slot Arity().
func (m *LambdaMeaning) IsVariadic() bool { return m.variadic }

// Body returns the meaning cell evaluated when the function is invoked.
func (m *LambdaMeaning) Body() *Sexp { return m.body }

func (m *LambdaMeaning) Eval(rt *Runtime, act *Sexp) (Trampoline, error) {
	c := rt.Contract("LambdaMeaning.Eval")
	defer c.Done()
	c.Precondition(act.IsActivation(), "act.IsActivation()")

	f := rt.PushFrame("LambdaMeaning.Eval")
	defer f.Pop()
	f.Protect(&act, "act")

	return ValueResult(rt.AllocateFunction(m, act)), nil
}

func (m *LambdaMeaning) TracePointers(visit func(**Sexp)) {
	visit(&m.body)
}

func (m *LambdaMeaning) dump(b *strings.Builder, in *Interner) {
	b.WriteString("(meaning-lambda ")
	b.WriteString(strconv.Itoa(m.arity))
	if m.variadic {
		b.WriteString(" variadic")
	}
	b.WriteByte(' ')
	m.body.dump(b, in)
	b.WriteByte(')')
}

// AndMeaning evaluates arguments left to right, stopping at the first
// falsey value.  The final argument is in tail position.
type AndMeaning struct {
	args []*Sexp
}

func (m *AndMeaning) Eval(rt *Runtime, act *Sexp) (Trampoline, error) {
	c := rt.Contract("AndMeaning.Eval")
	defer c.Done()
	c.Precondition(act.IsActivation(), "act.IsActivation()")

	f := rt.PushFrame("AndMeaning.Eval")
	defer f.Pop()
	f.Protect(&act, "act")

	if len(m.args) == 0 {
		return ValueResult(rt.AllocateBool(true)), nil
	}
	var v *Sexp
	f.Protect(&v, "v")
	for i := 0; i < len(m.args)-1; i++ {
		var err error
		v, err = Evaluate(rt, m.args[i], act)
		if err != nil {
			return Trampoline{}, err
		}
		if !v.IsTruthy() {
			return ValueResult(v), nil
		}
	}
	return ThunkResult(act, m.args[len(m.args)-1]), nil
}

func (m *AndMeaning) TracePointers(visit func(**Sexp)) {
	for i := range m.args {
		visit(&m.args[i])
	}
}

func (m *AndMeaning) dump(b *strings.Builder, in *Interner) {
	b.WriteString("(meaning-and")
	for i := range m.args {
		b.WriteByte(' ')
		m.args[i].dump(b, in)
	}
	b.WriteByte(')')
}

// OrMeaning evaluates arguments left to right, stopping at the first truthy
// value.  The final argument is in tail position.
type OrMeaning struct {
	args []*Sexp
}

func (m *OrMeaning) Eval(rt *Runtime, act *Sexp) (Trampoline, error) {
	c := rt.Contract("OrMeaning.Eval")
	defer c.Done()
	c.Precondition(act.IsActivation(), "act.IsActivation()")

	f := rt.PushFrame("OrMeaning.Eval")
	defer f.Pop()
	f.Protect(&act, "act")

	if len(m.args) == 0 {
		return ValueResult(rt.AllocateBool(false)), nil
	}
	var v *Sexp
	f.Protect(&v, "v")
	for i := 0; i < len(m.args)-1; i++ {
		var err error
		v, err = Evaluate(rt, m.args[i], act)
		if err != nil {
			return Trampoline{}, err
		}
		if v.IsTruthy() {
			return ValueResult(v), nil
		}
	}
	return ThunkResult(act, m.args[len(m.args)-1]), nil
}

func (m *OrMeaning) TracePointers(visit func(**Sexp)) {
	for i := range m.args {
		visit(&m.args[i])
	}
}

func (m *OrMeaning) dump(b *strings.Builder, in *Interner) {
	b.WriteString("(meaning-or")
	for i := range m.args {
		b.WriteByte(' ')
		m.args[i].dump(b, in)
	}
	b.WriteByte(')')
}

// InvocationMeaning evaluates a callee and its arguments and transfers
// control.  Calls to interpreted functions return thunks — they are proper
// tail calls — while native calls run to completion on the Go stack.
type InvocationMeaning struct {
	base *Sexp
	args []*Sexp
}

func (m *InvocationMeaning) Eval(rt *Runtime, act *Sexp) (Trampoline, error) {
	c := rt.Contract("InvocationMeaning.Eval")
	defer c.Done()
	c.Precondition(act.IsActivation(), "act.IsActivation()")

	f := rt.PushFrame("InvocationMeaning.Eval")
	defer f.Pop()
	f.Protect(&act, "act")
	var callee, childAct, evalArg *Sexp
	f.Protect(&callee, "callee")
	f.Protect(&childAct, "childAct")
	f.Protect(&evalArg, "evalArg")

	callee, err := Evaluate(rt, m.base, act)
	if err != nil {
		return Trampoline{}, err
	}

	if callee.IsFunction() {
		lm := callee.FuncMeaning()
		if err := checkArity(len(m.args), lm.arity, lm.variadic); err != nil {
			return Trampoline{}, err
		}

		// Create the child activation, then evaluate each argument and
		// install it into its slot.
		childAct = rt.AllocateActivation(callee.FuncActivation())
		for i := 0; i < lm.arity; i++ {
			evalArg, err = Evaluate(rt, m.args[i], act)
			if err != nil {
				return Trampoline{}, err
			}
			if err := childAct.Activation().Set(rt, 0, i, evalArg); err != nil {
				return Trampoline{}, err
			}
		}
		if lm.variadic {
			// Collect the extras into a proper list: build it reversed so
			// construction is linear, then reverse the links in place.
			var rest *Sexp
			f.Protect(&rest, "rest")
			rest = rt.AllocateEmpty()
			for i := lm.arity; i < len(m.args); i++ {
				evalArg, err = Evaluate(rt, m.args[i], act)
				if err != nil {
					return Trampoline{}, err
				}
				rest = rt.AllocateCons(evalArg, rest)
			}
			rest = reverseInPlace(rest)
			if err := childAct.Activation().Set(rt, 0, lm.arity, rest); err != nil {
				return Trampoline{}, err
			}
		}

		// Tail call: hand the body back to the trampoline instead of
		// recursing.
		return ThunkResult(childAct, lm.body), nil
	}

	if callee.IsNativeFunction() {
		nf := callee.Native()
		if len(m.args) != nf.Arity {
			return Trampoline{}, Errorf("%s: arity mismatch: takes %d arguments, got %d", nf.Name, nf.Arity, len(m.args))
		}

		var args []*Sexp
		f.ProtectSlice(&args, "args")
		for i := range m.args {
			evalArg, err = Evaluate(rt, m.args[i], act)
			if err != nil {
				return Trampoline{}, err
			}
			args = append(args, evalArg)
		}

		// Native functions don't use activations and can't be tail called.
		ret, err := nf.Fn(rt, args)
		if err != nil {
			return Trampoline{}, err
		}
		return ValueResult(ret), nil
	}

	return Trampoline{}, Errorf("called a non-callable value: %s", callee.Kind())
}

func (m *InvocationMeaning) TracePointers(visit func(**Sexp)) {
	visit(&m.base)
	for i := range m.args {
		visit(&m.args[i])
	}
}

func (m *InvocationMeaning) dump(b *strings.Builder, in *Interner) {
	b.WriteString("(meaning-invocation ")
	m.base.dump(b, in)
	for i := range m.args {
		b.WriteByte(' ')
		m.args[i].dump(b, in)
	}
	b.WriteByte(')')
}

func checkArity(given, arity int, variadic bool) error {
	if variadic {
		if given < arity {
			return Errorf("arity mismatch: takes at least %d arguments, got %d", arity, given)
		}
		return nil
	}
	if given != arity {
		return Errorf("arity mismatch: takes %d arguments, got %d", arity, given)
	}
	return nil
}

// reverseInPlace reverses a proper list by relinking cdr pointers.  No
// allocation occurs.
func reverseInPlace(list *Sexp) *Sexp {
	prev := theEmpty
	for !list.IsEmpty() {
		next := list.Cdr()
		list.SetCdr(prev)
		prev = list
		list = next
	}
	return prev
}

// Evaluate runs a meaning to completion, bouncing on the trampoline until a
// value appears.  Tail calls replace the trampoline state instead of
// growing the Go stack.
func Evaluate(rt *Runtime, meaning, act *Sexp) (*Sexp, error) {
	f := rt.PushFrame("Evaluate")
	defer f.Pop()

	tr := ThunkResult(act, meaning)
	f.Protect(&tr.Value, "value")
	f.Protect(&tr.Act, "activation")
	f.Protect(&tr.Next, "meaning")

	for tr.IsThunk() {
		if !tr.Act.IsActivation() {
			Panicf("trampoline activation is %s", tr.Act.Kind())
		}
		next, err := tr.Next.Meaning().Eval(rt, tr.Act)
		if err != nil {
			return nil, err
		}
		tr = next
	}
	return tr.Value, nil
}
