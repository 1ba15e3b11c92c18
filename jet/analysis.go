// Copyright © 2016 The Jet authors

// The analysis phase turns an s-expression into a Meaning, which is then
// interpreted directly.  During analysis variable references are eliminated
// by translating them into (up, right) coordinates used at runtime to load
// and store variable slots.

package jet

// binding records what the analyzer knows about one variable in one scope.
type binding struct {
	slot    int
	isMacro bool
}

// AnalysisEnv is the symbol table used for semantic analysis: a stack of
// scopes mapping symbol ids to slot assignments.  The bottom scope is the
// global scope and is never popped.
type AnalysisEnv struct {
	rt     *Runtime
	scopes []map[SymbolID]*binding
}

// NewAnalysisEnv returns an environment holding only the global scope.
func NewAnalysisEnv(rt *Runtime) *AnalysisEnv {
	return &AnalysisEnv{rt: rt, scopes: []map[SymbolID]*binding{{}}}
}

// EnterScope pushes a new lexical scope.
func (e *AnalysisEnv) EnterScope() {
	e.scopes = append(e.scopes, map[SymbolID]*binding{})
}

// ExitScope pops the innermost lexical scope.
func (e *AnalysisEnv) ExitScope() {
	if len(e.scopes) == 1 {
		Panicf("popping the global analysis scope")
	}
	e.scopes = e.scopes[:len(e.scopes)-1]
}

// Depth returns the number of open scopes, including the global scope.
func (e *AnalysisEnv) Depth() int { return len(e.scopes) }

// Define assigns a slot for sym in the innermost scope.  Slot indices are
// dense per scope and never change once assigned; redefining a symbol in
// the same scope returns its existing slot.
func (e *AnalysisEnv) Define(sym SymbolID) int {
	scope := e.scopes[len(e.scopes)-1]
	if b, ok := scope[sym]; ok {
		return b.slot
	}
	slot := len(scope)
	scope[sym] = &binding{slot: slot}
	return slot
}

// DefineGlobal assigns a slot for sym in the global scope if it does not
// already have one, and returns the symbol's lexical address relative to
// the current scope depth.
func (e *AnalysisEnv) DefineGlobal(sym SymbolID) (up, right int) {
	global := e.scopes[0]
	b, ok := global[sym]
	if !ok {
		b = &binding{slot: len(global)}
		global[sym] = b
	}
	return len(e.scopes) - 1, b.slot
}

// Get resolves sym to a lexical address, searching innermost scope first.
// An unresolved symbol is auto-defined in the global scope so forward
// references to later definitions work; with warnings enabled the late
// binding is reported.
func (e *AnalysisEnv) Get(sym SymbolID) (up, right int) {
	for i := len(e.scopes) - 1; i >= 0; i-- {
		if b, ok := e.scopes[i][sym]; ok {
			return len(e.scopes) - 1 - i, b.slot
		}
	}
	e.rt.Warnf("possibly unbound symbol: %s", e.rt.Interner.Name(sym))
	return e.DefineGlobal(sym)
}

// GlobalSlot returns sym's slot in the global scope, if it has one.
func (e *AnalysisEnv) GlobalSlot(sym SymbolID) (int, bool) {
	if b, ok := e.scopes[0][sym]; ok {
		return b.slot, true
	}
	return 0, false
}

// IsMacro reports whether any binding of sym carries the macro flag.
func (e *AnalysisEnv) IsMacro(sym SymbolID) bool {
	for i := len(e.scopes) - 1; i >= 0; i-- {
		if b, ok := e.scopes[i][sym]; ok && b.isMacro {
			return true
		}
	}
	return false
}

// SetMacro flags the innermost binding of sym as a macro.
func (e *AnalysisEnv) SetMacro(sym SymbolID) {
	for i := len(e.scopes) - 1; i >= 0; i-- {
		if b, ok := e.scopes[i][sym]; ok {
			b.isMacro = true
			return
		}
	}
	Panicf("setting macro flag on unbound symbol %d", sym)
}

func (e *AnalysisEnv) setMacroGlobal(sym SymbolID) {
	b, ok := e.scopes[0][sym]
	if !ok {
		Panicf("setting macro flag on unbound global %d", sym)
	}
	b.isMacro = true
}

// Analyze converts a form into a meaning cell suitable for evaluation.
// Ill-formed programs produce a RuntimeError.
func (rt *Runtime) Analyze(form *Sexp) (*Sexp, error) {
	c := rt.Contract("Analyze")
	defer c.Done()
	c.Precondition(form != nil, "form != nil")

	f := rt.PushFrame("Analyze")
	defer f.Pop()
	f.Protect(&form, "form")

	if !form.IsCons() {
		return rt.analyzeAtom(form)
	}
	if form.Car().IsSymbol() {
		switch form.Car().Symbol() {
		case SymQuote:
			return rt.analyzeQuote(form.Cdr())
		case SymBegin:
			return rt.analyzeBegin(form.Cdr())
		case SymDefine:
			return rt.analyzeDefine(form.Cdr(), false)
		case SymDefmacro:
			return rt.analyzeDefine(form.Cdr(), true)
		case SymIf:
			return rt.analyzeIf(form.Cdr())
		case SymLambda:
			return rt.analyzeLambda(form.Cdr())
		case SymSetBang:
			return rt.analyzeSet(form.Cdr())
		case SymQuasiquote:
			return rt.analyzeQuasiquote(form.Cdr())
		case SymLet:
			return rt.analyzeLet(form.Cdr())
		case symAnd:
			return rt.analyzeShortCircuit(form.Cdr(), true)
		case symOr:
			return rt.analyzeShortCircuit(form.Cdr(), false)
		}
	}

	// Either a call through a bound symbol or some goofier invocation like
	// ((lambda (x) (+ x 1)) 1).
	return rt.analyzeInvocation(form)
}

func (rt *Runtime) analyzeAtom(form *Sexp) (*Sexp, error) {
	c := rt.Contract("analyzeAtom")
	defer c.Done()
	c.Precondition(!form.IsCons(), "!form.IsCons()")

	f := rt.PushFrame("analyzeAtom")
	defer f.Pop()
	f.Protect(&form, "form")

	if form.IsSymbol() {
		up, right := rt.Env.Get(form.Symbol())
		return rt.AllocateMeaning(&ReferenceMeaning{up: up, right: right}), nil
	}

	// Anything that isn't a cons or a symbol evaluates to itself.  The
	// meaning is built first and its embedded pointer protected before the
	// cell allocation; the allocation below can relocate form, and the
	// fresh QuotedMeaning is only traced once it is installed in a cell.
	m := &QuotedMeaning{quoted: form}
	f.Protect(&m.quoted, "quoted")
	return rt.AllocateMeaning(m), nil
}

func (rt *Runtime) analyzeQuote(rest *Sexp) (*Sexp, error) {
	f := rt.PushFrame("analyzeQuote")
	defer f.Pop()
	f.Protect(&rest, "rest")

	proper, n := rest.Length()
	if !proper || n != 1 {
		return nil, Errorf("invalid quote form")
	}
	m := &QuotedMeaning{quoted: rest.Car()}
	f.Protect(&m.quoted, "quoted")
	return rt.AllocateMeaning(m), nil
}

func (rt *Runtime) analyzeBegin(rest *Sexp) (*Sexp, error) {
	f := rt.PushFrame("analyzeBegin")
	defer f.Pop()
	f.Protect(&rest, "rest")

	if !rest.IsProperList() || rest.IsEmpty() {
		return nil, Errorf("invalid begin form")
	}
	var body []*Sexp
	f.ProtectSlice(&body, "body")
	err := rest.ForEach(rt, func(form *Sexp) error {
		analyzed, err := rt.Analyze(form)
		if err != nil {
			return err
		}
		body = append(body, analyzed)
		return nil
	})
	if err != nil {
		return nil, err
	}

	m := &SequenceMeaning{body: body[:len(body)-1], final: body[len(body)-1]}
	f.ProtectSlice(&m.body, "meaning body")
	f.Protect(&m.final, "meaning final")
	return rt.AllocateMeaning(m), nil
}

func (rt *Runtime) analyzeDefine(rest *Sexp, macro bool) (*Sexp, error) {
	f := rt.PushFrame("analyzeDefine")
	defer f.Pop()
	f.Protect(&rest, "rest")

	proper, n := rest.Length()
	if !proper || n < 2 {
		return nil, Errorf("invalid define form")
	}

	var name, expr *Sexp
	f.Protect(&name, "name")
	f.Protect(&expr, "expr")

	if rest.Car().IsCons() {
		// Function shorthand: (define (name params...) body...) desugars to
		// (define name (lambda (params...) body...)).
		target := rest.Car()
		if !target.Car().IsSymbol() {
			return nil, Errorf("invalid define form: name is not a symbol")
		}
		name = target.Car()
		var params, lamBody *Sexp
		f.Protect(&params, "params")
		f.Protect(&lamBody, "lamBody")
		params = target.Cdr()
		lamBody = rest.Cdr()
		lamBody = rt.AllocateCons(params, lamBody)
		expr = rt.AllocateCons(rt.AllocateSymbol(SymLambda), lamBody)
	} else {
		if n != 2 {
			return nil, Errorf("invalid define form")
		}
		if !rest.Car().IsSymbol() {
			return nil, Errorf("invalid define form: name is not a symbol")
		}
		name = rest.Car()
		expr = rest.Cadr()
	}

	up, right := rt.Env.DefineGlobal(name.Symbol())
	if macro {
		rt.Env.setMacroGlobal(name.Symbol())
	}

	var bindingM *Sexp
	f.Protect(&bindingM, "binding")
	bindingM, err := rt.Analyze(expr)
	if err != nil {
		return nil, err
	}
	m := &DefinitionMeaning{up: up, right: right, binding: bindingM}
	f.Protect(&m.binding, "meaning binding")
	return rt.AllocateMeaning(m), nil
}

func (rt *Runtime) analyzeIf(rest *Sexp) (*Sexp, error) {
	f := rt.PushFrame("analyzeIf")
	defer f.Pop()
	f.Protect(&rest, "rest")

	proper, n := rest.Length()
	if !proper || n < 2 || n > 3 {
		return nil, Errorf("invalid if form")
	}

	var cond, then, els *Sexp
	f.Protect(&cond, "cond")
	f.Protect(&then, "then")
	f.Protect(&els, "els")

	var err error
	cond, err = rt.Analyze(rest.Car())
	if err != nil {
		return nil, err
	}
	then, err = rt.Analyze(rest.Cadr())
	if err != nil {
		return nil, err
	}
	if n == 3 {
		els, err = rt.Analyze(rest.Caddr())
		if err != nil {
			return nil, err
		}
	} else {
		// A one-armed if evaluates to () when the condition is false.
		els = rt.AllocateMeaning(&QuotedMeaning{quoted: theEmpty})
	}

	m := &ConditionalMeaning{cond: cond, then: then, els: els}
	f.Protect(&m.cond, "meaning cond")
	f.Protect(&m.then, "meaning then")
	f.Protect(&m.els, "meaning els")
	return rt.AllocateMeaning(m), nil
}

func (rt *Runtime) analyzeLambda(rest *Sexp) (*Sexp, error) {
	f := rt.PushFrame("analyzeLambda")
	defer f.Pop()
	f.Protect(&rest, "rest")

	proper, n := rest.Length()
	if !proper || n < 2 {
		return nil, Errorf("invalid lambda form")
	}

	var params *Sexp
	f.Protect(&params, "params")
	params = rest.Car()

	variadic := false
	arity := 0
	switch {
	case params.IsSymbol():
		// A bare symbol receives the whole argument list.
		variadic = true
	case params.IsEmpty():
	case params.IsCons():
		listProper, count := params.Length()
		variadic = !listProper
		arity = count
	default:
		return nil, Errorf("invalid lambda form: parameters must be a list or a symbol")
	}

	rt.Env.EnterScope()
	defer rt.Env.ExitScope()

	// Walking the parameter list performs no allocation, so the cursor
	// needs no protection here.
	cursor := params
	for cursor.IsCons() {
		if !cursor.Car().IsSymbol() {
			return nil, Errorf("invalid lambda form: parameter is not a symbol")
		}
		rt.Env.Define(cursor.Car().Symbol())
		cursor = cursor.Cdr()
	}
	if !cursor.IsEmpty() {
		// The rest parameter: either the improper tail of the parameter
		// list or the whole bare-symbol parameter.
		if !cursor.IsSymbol() {
			return nil, Errorf("invalid lambda form: parameter is not a symbol")
		}
		rt.Env.Define(cursor.Symbol())
	}

	var body []*Sexp
	f.ProtectSlice(&body, "body")
	err := rest.Cdr().ForEach(rt, func(form *Sexp) error {
		analyzed, err := rt.Analyze(form)
		if err != nil {
			return err
		}
		body = append(body, analyzed)
		return nil
	})
	if err != nil {
		return nil, err
	}

	seq := &SequenceMeaning{body: body[:len(body)-1], final: body[len(body)-1]}
	f.ProtectSlice(&seq.body, "seq body")
	f.Protect(&seq.final, "seq final")
	var seqCell *Sexp
	f.Protect(&seqCell, "seqCell")
	seqCell = rt.AllocateMeaning(seq)

	m := &LambdaMeaning{arity: arity, variadic: variadic, body: seqCell}
	f.Protect(&m.body, "meaning body")
	return rt.AllocateMeaning(m), nil
}

func (rt *Runtime) analyzeSet(rest *Sexp) (*Sexp, error) {
	f := rt.PushFrame("analyzeSet")
	defer f.Pop()
	f.Protect(&rest, "rest")

	proper, n := rest.Length()
	if !proper || n != 2 {
		return nil, Errorf("invalid set! form")
	}
	if !rest.Car().IsSymbol() {
		return nil, Errorf("invalid set! form: target is not a symbol")
	}
	up, right := rt.Env.Get(rest.Car().Symbol())

	var bindingM *Sexp
	f.Protect(&bindingM, "binding")
	bindingM, err := rt.Analyze(rest.Cadr())
	if err != nil {
		return nil, err
	}
	m := &SetMeaning{up: up, right: right, binding: bindingM}
	f.Protect(&m.binding, "meaning binding")
	return rt.AllocateMeaning(m), nil
}

func (rt *Runtime) analyzeLet(rest *Sexp) (*Sexp, error) {
	f := rt.PushFrame("analyzeLet")
	defer f.Pop()
	f.Protect(&rest, "rest")

	proper, n := rest.Length()
	if !proper || n < 2 {
		return nil, Errorf("invalid let form")
	}
	if !rest.Car().IsProperList() {
		return nil, Errorf("invalid let form: bindings must be a list")
	}

	// (let ((v e) ...) body ...) desugars to ((lambda (v ...) body ...) e ...).
	var names, exprs, lambda, call *Sexp
	f.Protect(&names, "names")
	f.Protect(&exprs, "exprs")
	f.Protect(&lambda, "lambda")
	f.Protect(&call, "call")
	names = rt.AllocateEmpty()
	exprs = rt.AllocateEmpty()

	err := rest.Car().ForEach(rt, func(b *Sexp) error {
		// The binding is held across the cons allocations below, so it
		// needs its own root.
		fb := rt.PushFrame("letBinding")
		defer fb.Pop()
		fb.Protect(&b, "b")

		proper, n := b.Length()
		if !proper || n != 2 {
			return Errorf("invalid let binding")
		}
		if !b.Car().IsSymbol() {
			return Errorf("invalid let binding: name is not a symbol")
		}
		names = rt.AllocateCons(b.Car(), names)
		exprs = rt.AllocateCons(b.Cadr(), exprs)
		return nil
	})
	if err != nil {
		return nil, err
	}
	names = reverseInPlace(names)
	exprs = reverseInPlace(exprs)

	lambda = rt.AllocateCons(names, rest.Cdr())
	lambda = rt.AllocateCons(rt.AllocateSymbol(SymLambda), lambda)
	call = rt.AllocateCons(lambda, exprs)
	return rt.Analyze(call)
}

func (rt *Runtime) analyzeShortCircuit(rest *Sexp, and bool) (*Sexp, error) {
	f := rt.PushFrame("analyzeShortCircuit")
	defer f.Pop()
	f.Protect(&rest, "rest")

	if !rest.IsProperList() {
		return nil, Errorf("invalid short-circuit form")
	}
	var args []*Sexp
	f.ProtectSlice(&args, "args")
	err := rest.ForEach(rt, func(form *Sexp) error {
		analyzed, err := rt.Analyze(form)
		if err != nil {
			return err
		}
		args = append(args, analyzed)
		return nil
	})
	if err != nil {
		return nil, err
	}

	var m Meaning
	if and {
		am := &AndMeaning{args: args}
		f.ProtectSlice(&am.args, "meaning args")
		m = am
	} else {
		om := &OrMeaning{args: args}
		f.ProtectSlice(&om.args, "meaning args")
		m = om
	}
	return rt.AllocateMeaning(m), nil
}

func (rt *Runtime) analyzeInvocation(form *Sexp) (*Sexp, error) {
	f := rt.PushFrame("analyzeInvocation")
	defer f.Pop()
	f.Protect(&form, "form")

	if !form.IsProperList() {
		return nil, Errorf("invalid invocation")
	}

	if head := form.Car(); head.IsSymbol() && rt.Env.IsMacro(head.Symbol()) {
		var expanded *Sexp
		f.Protect(&expanded, "expanded")
		expanded, err := rt.macroExpand(head.Symbol(), form.Cdr())
		if err != nil {
			return nil, err
		}
		return rt.Analyze(expanded)
	}

	var base *Sexp
	var args []*Sexp
	f.Protect(&base, "base")
	f.ProtectSlice(&args, "args")

	base, err := rt.Analyze(form.Car())
	if err != nil {
		return nil, err
	}
	err = form.Cdr().ForEach(rt, func(arg *Sexp) error {
		analyzed, err := rt.Analyze(arg)
		if err != nil {
			return err
		}
		args = append(args, analyzed)
		return nil
	})
	if err != nil {
		return nil, err
	}

	m := &InvocationMeaning{base: base, args: args}
	f.Protect(&m.base, "meaning base")
	f.ProtectSlice(&m.args, "meaning args")
	return rt.AllocateMeaning(m), nil
}

// macroExpand applies a macro to its unevaluated argument forms and returns
// the replacement form, which the caller re-analyzes.  The macro body runs
// in a child of the activation the macro captured when it was defined, so
// its free variables resolve against the global scope as it existed at
// expansion time.
func (rt *Runtime) macroExpand(sym SymbolID, argForms *Sexp) (*Sexp, error) {
	f := rt.PushFrame("macroExpand")
	defer f.Pop()
	f.Protect(&argForms, "argForms")

	name := rt.Interner.Name(sym)
	slot, ok := rt.Env.GlobalSlot(sym)
	if !ok {
		return nil, Errorf("macro %s has no global binding", name)
	}
	var fn *Sexp
	f.Protect(&fn, "fn")
	fn, err := rt.Global.Activation().Get(rt, 0, slot)
	if err != nil {
		return nil, Errorf("macro %s has no value at expansion time", name)
	}
	if !fn.IsFunction() {
		return nil, Errorf("macro %s is not bound to a function: %s", name, fn.Kind())
	}

	lm := fn.FuncMeaning()
	proper, n := argForms.Length()
	if !proper && !argForms.IsEmpty() {
		return nil, Errorf("invalid macro invocation")
	}
	if err := checkArity(n, lm.arity, lm.variadic); err != nil {
		return nil, err
	}

	var child, cursor *Sexp
	f.Protect(&child, "child")
	f.Protect(&cursor, "cursor")
	child = rt.AllocateActivation(fn.FuncActivation())

	cursor = argForms
	for i := 0; i < lm.arity; i++ {
		if err := child.Activation().Set(rt, 0, i, cursor.Car()); err != nil {
			return nil, err
		}
		cursor = cursor.Cdr()
	}
	if lm.variadic {
		var extras *Sexp
		f.Protect(&extras, "extras")
		extras = rt.AllocateEmpty()
		for !cursor.IsEmpty() {
			extras = rt.AllocateCons(cursor.Car(), extras)
			cursor = cursor.Cdr()
		}
		extras = reverseInPlace(extras)
		if err := child.Activation().Set(rt, 0, lm.arity, extras); err != nil {
			return nil, err
		}
	}

	return Evaluate(rt, lm.body, child)
}

// analyzeQuasiquote rewrites `form into nested cons/append calls and
// analyzes the rewrite.
func (rt *Runtime) analyzeQuasiquote(rest *Sexp) (*Sexp, error) {
	f := rt.PushFrame("analyzeQuasiquote")
	defer f.Pop()
	f.Protect(&rest, "rest")

	proper, n := rest.Length()
	if !proper || n != 1 {
		return nil, Errorf("invalid quasiquote form")
	}
	var expanded *Sexp
	f.Protect(&expanded, "expanded")
	expanded, err := rt.qqExpand(rest.Car())
	if err != nil {
		return nil, err
	}
	return rt.Analyze(expanded)
}

// qqExpand implements the quasiquote rewrite: `x becomes (quote x) for
// atoms, ,e substitutes e, and list templates become cons chains with ,@e
// elements spliced through append.
func (rt *Runtime) qqExpand(form *Sexp) (*Sexp, error) {
	f := rt.PushFrame("qqExpand")
	defer f.Pop()
	f.Protect(&form, "form")

	if !form.IsCons() {
		return rt.list(rt.AllocateSymbol(SymQuote), form), nil
	}
	if form.Car().IsSymbol() && form.Car().Symbol() == SymUnquote {
		proper, n := form.Cdr().Length()
		if !proper || n != 1 {
			return nil, Errorf("invalid unquote form")
		}
		return form.Cadr(), nil
	}
	return rt.qqExpandList(form)
}

func (rt *Runtime) qqExpandList(list *Sexp) (*Sexp, error) {
	f := rt.PushFrame("qqExpandList")
	defer f.Pop()
	f.Protect(&list, "list")

	if list.IsEmpty() {
		return rt.list(rt.AllocateSymbol(SymQuote), theEmpty), nil
	}
	if !list.IsCons() {
		// Dotted tail of the template.
		return rt.qqExpand(list)
	}
	if list.Car().IsSymbol() && list.Car().Symbol() == SymUnquote {
		// `(a . ,b) reads as (a unquote b); substitute the tail.
		proper, n := list.Cdr().Length()
		if !proper || n != 1 {
			return nil, Errorf("invalid unquote form")
		}
		return list.Cadr(), nil
	}

	var head, rest, expandedHead *Sexp
	f.Protect(&head, "head")
	f.Protect(&rest, "rest")
	f.Protect(&expandedHead, "expandedHead")
	head = list.Car()

	var err error
	rest, err = rt.qqExpandList(list.Cdr())
	if err != nil {
		return nil, err
	}

	if head.IsCons() && head.Car().IsSymbol() && head.Car().Symbol() == SymUnquoteSplicing {
		proper, n := head.Cdr().Length()
		if !proper || n != 1 {
			return nil, Errorf("invalid unquote-splicing form")
		}
		// (append e rest)
		return rt.list(rt.AllocateSymbol(SymAppend), head.Cadr(), rest), nil
	}

	expandedHead, err = rt.qqExpand(head)
	if err != nil {
		return nil, err
	}
	// (cons expandedHead rest)
	return rt.list(rt.AllocateSymbol(rt.Interner.Intern("cons")), expandedHead, rest), nil
}

// list builds a proper list from items, protecting them across the
// allocations.
func (rt *Runtime) list(items ...*Sexp) *Sexp {
	f := rt.PushFrame("list")
	defer f.Pop()
	f.ProtectSlice(&items, "items")
	var acc *Sexp
	f.Protect(&acc, "acc")
	acc = rt.AllocateEmpty()
	for i := len(items) - 1; i >= 0; i-- {
		acc = rt.AllocateCons(items[i], acc)
	}
	return acc
}
