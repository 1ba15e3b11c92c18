// Copyright © 2016 The Jet authors

package jet

// SymbolID is a dense index assigned by the Interner.  Two symbols are the
// same symbol exactly when their ids are equal.
type SymbolID uint32

// Reserved symbol ids.  These constants mirror the seed order in
// NewInterner; the reader and analyzer dispatch on them numerically.
const (
	SymQuote SymbolID = iota
	SymDefine
	SymSetBang
	SymLambda
	SymIf
	SymBegin
	SymUnquote
	SymUnquoteSplicing
	SymQuasiquote
	SymAppend
	SymDefmacro
	SymLet
	symReservedCount
)

// The short-circuit forms are special forms too, but they are not part of
// the reserved-id contract above; they are interned immediately after the
// reserved block.
const (
	symAnd SymbolID = symReservedCount + iota
	symOr
)

// Interner maintains a bijection between symbol names and dense ids.
// Symbols and strings are similar, but a symbol is guaranteed interned so
// two symbols can be compared by id alone.
type Interner struct {
	ids   map[string]SymbolID
	names []string
}

// NewInterner returns an Interner pre-seeded with the reserved special-form
// symbols.  Don't mess with the seed order: the Sym constants above and the
// analyzer's dispatch depend on it.
func NewInterner() *Interner {
	in := &Interner{ids: make(map[string]SymbolID)}
	for _, name := range []string{
		"quote",
		"define",
		"set!",
		"lambda",
		"if",
		"begin",
		"unquote",
		"unquote-splicing",
		"quasiquote",
		"append",
		"defmacro",
		"let",
	} {
		in.Intern(name)
	}
	if len(in.names) != int(symReservedCount) {
		Panicf("interner seeded with %d symbols, want %d", len(in.names), symReservedCount)
	}
	in.Intern("and")
	in.Intern("or")
	return in
}

// Intern returns the id for name, assigning the next dense id on first use.
func (in *Interner) Intern(name string) SymbolID {
	if id, ok := in.ids[name]; ok {
		return id
	}
	id := SymbolID(len(in.names))
	in.ids[name] = id
	in.names = append(in.names, name)
	return id
}

// Name recovers the string for an interned id.  Name panics when the id was
// never issued, which cannot happen during normal operation.
func (in *Interner) Name(id SymbolID) string {
	if int(id) >= len(in.names) {
		Panicf("interner: no symbol with id %d", id)
	}
	return in.names[id]
}
