// Copyright © 2016 The Jet authors

// Package parser implements the s-expression reader.  The reader consumes a
// byte stream and produces value trees, allocating every intermediate
// through the runtime heap; it participates in the root-protection protocol
// like any other native code.
package parser

import (
	"bufio"
	"fmt"
	"io"
	"strconv"

	"github.com/swgillespie/jet/jet"
)

// maxNestingDepth bounds list nesting so malformed input cannot exhaust the
// delimiter stack.
const maxNestingDepth = 1024

// ReadError reports malformed input.  Read errors terminate the current
// toplevel form.
type ReadError struct {
	Msg string
}

func (e *ReadError) Error() string { return e.Msg }

func readErrorf(format string, v ...interface{}) *ReadError {
	return &ReadError{Msg: fmt.Sprintf(format, v...)}
}

// Reader reads toplevel forms from a stream.  It implements jet.Reader.
type Reader struct {
	rt     *jet.Runtime
	in     *bufio.Reader
	delims []byte
}

var _ jet.Reader = (*Reader)(nil)

// NewReader returns a Reader that allocates through rt's heap.
func NewReader(rt *jet.Runtime, r io.Reader) *Reader {
	return &Reader{rt: rt, in: bufio.NewReader(r)}
}

// Read returns the next toplevel form, or an Eof cell once the stream is
// exhausted.
func (p *Reader) Read() (*jet.Sexp, error) {
	if err := p.skipWhitespace(); err != nil {
		return nil, err
	}
	if _, ok, err := p.peek(); err != nil {
		return nil, err
	} else if !ok {
		return p.rt.AllocateEof(), nil
	}
	return p.readToplevel()
}

func (p *Reader) peek() (byte, bool, error) {
	b, err := p.in.ReadByte()
	if err == io.EOF {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	if err := p.in.UnreadByte(); err != nil {
		return 0, false, err
	}
	return b, true, nil
}

func (p *Reader) next() (byte, error) {
	b, err := p.in.ReadByte()
	if err == io.EOF {
		return 0, readErrorf("unexpected EOF")
	}
	return b, err
}

func (p *Reader) expect(c byte) error {
	b, err := p.next()
	if err != nil {
		return err
	}
	if b != c {
		return readErrorf("unexpected char: expected %q, got %q", c, b)
	}
	return nil
}

func isSpace(b byte) bool {
	switch b {
	case ' ', '\t', '\n', '\r', '\v', '\f':
		return true
	}
	return false
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }

func isAlpha(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

func isIdentStart(b byte) bool {
	if isAlpha(b) {
		return true
	}
	switch b {
	case '_', '-', '+', '/', '*', '?', '!', '=', '.':
		return true
	}
	return false
}

func isIdentBody(b byte) bool { return isIdentStart(b) || isDigit(b) }

func (p *Reader) skipWhitespace() error {
	for {
		b, ok, err := p.peek()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		if isSpace(b) {
			p.in.ReadByte()
			continue
		}
		if b == ';' {
			// Comment: skip to the next newline or the end of input.
			p.in.ReadByte()
			for {
				c, err := p.in.ReadByte()
				if err == io.EOF {
					return nil
				}
				if err != nil {
					return err
				}
				if c == '\n' {
					break
				}
			}
			continue
		}
		return nil
	}
}

func (p *Reader) readListStart() error {
	b, ok, err := p.peek()
	if err != nil {
		return err
	}
	if !ok || (b != '(' && b != '[') {
		return readErrorf("unexpected char: expected ( or [")
	}
	p.in.ReadByte()
	if len(p.delims) >= maxNestingDepth {
		return readErrorf("list nesting level exceeded maximum depth")
	}
	terminator := byte(')')
	if b == '[' {
		terminator = ']'
	}
	p.delims = append(p.delims, terminator)
	return nil
}

func (p *Reader) readListEnd() error {
	if len(p.delims) == 0 {
		jet.Panicf("reader delimiter stack underflow")
	}
	terminator := p.delims[len(p.delims)-1]
	p.delims = p.delims[:len(p.delims)-1]
	return p.expect(terminator)
}

func (p *Reader) isAtListEnd() (bool, error) {
	b, ok, err := p.peek()
	if err != nil {
		return false, err
	}
	if !ok {
		return false, readErrorf("unexpected EOF inside a list")
	}
	return b == p.delims[len(p.delims)-1], nil
}

func (p *Reader) isAtListStart() (bool, error) {
	b, ok, err := p.peek()
	if err != nil || !ok {
		return false, err
	}
	return b == '(' || b == '[', nil
}

// readSublist reads list elements after the opening delimiter has been
// consumed; the matching close delimiter is left for the caller.
func (p *Reader) readSublist() (*jet.Sexp, error) {
	f := p.rt.PushFrame("readSublist")
	defer f.Pop()
	var car, cdr *jet.Sexp
	f.Protect(&car, "car")
	f.Protect(&cdr, "cdr")

	if err := p.skipWhitespace(); err != nil {
		return nil, err
	}
	if end, err := p.isAtListEnd(); err != nil {
		return nil, err
	} else if end {
		return p.rt.AllocateEmpty(), nil
	}

	var err error
	car, err = p.readAtom()
	if err != nil {
		return nil, err
	}
	if err := p.skipWhitespace(); err != nil {
		return nil, err
	}
	end, err := p.isAtListEnd()
	if err != nil {
		return nil, err
	}
	if !end {
		b, _, err := p.peek()
		if err != nil {
			return nil, err
		}
		if b == '.' {
			// Improper list: read the dotted tail.
			p.in.ReadByte()
			cdr, err = p.readAtom()
			if err != nil {
				return nil, err
			}
			return p.rt.AllocateCons(car, cdr), nil
		}
		cdr, err = p.readSublist()
		if err != nil {
			return nil, err
		}
		return p.rt.AllocateCons(car, cdr), nil
	}
	return p.rt.AllocateCons(car, p.rt.AllocateEmpty()), nil
}

// readSymbol reads an identifier whose first bytes have already been
// consumed into prefix.
func (p *Reader) readSymbol(prefix []byte) (*jet.Sexp, error) {
	buf := prefix
	for {
		b, ok, err := p.peek()
		if err != nil {
			return nil, err
		}
		if !ok || !isIdentBody(b) {
			break
		}
		buf = append(buf, b)
		p.in.ReadByte()
	}
	id := p.rt.Interner.Intern(string(buf))
	return p.rt.AllocateSymbol(id), nil
}

// readFixnum reads an integer literal whose sign (if any) has already been
// consumed into prefix.
func (p *Reader) readFixnum(prefix []byte) (*jet.Sexp, error) {
	buf := prefix
	for {
		b, ok, err := p.peek()
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		if isDigit(b) {
			buf = append(buf, b)
			p.in.ReadByte()
			continue
		}
		if !isSpace(b) && b != ')' && b != '(' && b != '[' && b != ']' {
			return nil, readErrorf("unexpected char in numeric literal: %q", b)
		}
		break
	}
	n, err := strconv.ParseInt(string(buf), 10, 64)
	if err != nil {
		return nil, readErrorf("invalid numeric literal %q", buf)
	}
	return p.rt.AllocateFixnum(n), nil
}

func (p *Reader) readHash() (*jet.Sexp, error) {
	if err := p.expect('#'); err != nil {
		return nil, err
	}
	b, ok, err := p.peek()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, readErrorf("unexpected EOF after #")
	}
	switch b {
	case 't':
		p.in.ReadByte()
		return p.rt.AllocateBool(true), nil
	case 'f':
		p.in.ReadByte()
		return p.rt.AllocateBool(false), nil
	}
	for _, c := range []byte("eof") {
		if err := p.expect(c); err != nil {
			return nil, err
		}
	}
	return p.rt.AllocateEof(), nil
}

// readString reads a string literal.  No escape processing occurs; the
// literal ends at the next double quote.
func (p *Reader) readString() (*jet.Sexp, error) {
	if err := p.expect('"'); err != nil {
		return nil, err
	}
	var buf []byte
	for {
		b, err := p.in.ReadByte()
		if err == io.EOF {
			return nil, readErrorf("unexpected EOF while scanning string literal")
		}
		if err != nil {
			return nil, err
		}
		if b == '"' {
			break
		}
		buf = append(buf, b)
	}
	return p.rt.AllocateString(string(buf)), nil
}

// readMacro reads a reader-macro abbreviation and wraps the following form:
// 'x => (quote x), `x => (quasiquote x), ,x => (unquote x), and ,@x =>
// (unquote-splicing x).
func (p *Reader) readMacro(sym jet.SymbolID) (*jet.Sexp, error) {
	f := p.rt.PushFrame("readMacro")
	defer f.Pop()
	var quoted, inner *jet.Sexp
	f.Protect(&quoted, "quoted")
	f.Protect(&inner, "inner")

	var err error
	quoted, err = p.readToplevel()
	if err != nil {
		return nil, err
	}
	inner = p.rt.AllocateCons(quoted, p.rt.AllocateEmpty())
	return p.rt.AllocateCons(p.rt.AllocateSymbol(sym), inner), nil
}

func (p *Reader) readAtom() (*jet.Sexp, error) {
	f := p.rt.PushFrame("readAtom")
	defer f.Pop()
	var result *jet.Sexp
	f.Protect(&result, "result")

	if err := p.skipWhitespace(); err != nil {
		return nil, err
	}
	b, ok, err := p.peek()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, readErrorf("unexpected EOF when scanning atom")
	}

	if b == '-' {
		// A minus sign opens either a negative integer or a symbol.
		p.in.ReadByte()
		nb, nok, err := p.peek()
		if err != nil {
			return nil, err
		}
		if nok && isDigit(nb) {
			return p.readFixnum([]byte{'-'})
		}
		return p.readSymbol([]byte{'-'})
	}
	if isIdentStart(b) {
		p.in.ReadByte()
		return p.readSymbol([]byte{b})
	}
	if isDigit(b) {
		p.in.ReadByte()
		return p.readFixnum([]byte{b})
	}
	if start, err := p.isAtListStart(); err != nil {
		return nil, err
	} else if start {
		if err := p.readListStart(); err != nil {
			return nil, err
		}
		result, err = p.readSublist()
		if err != nil {
			return nil, err
		}
		if err := p.skipWhitespace(); err != nil {
			return nil, err
		}
		if err := p.readListEnd(); err != nil {
			return nil, err
		}
		return result, nil
	}
	switch b {
	case '#':
		return p.readHash()
	case '\'':
		p.in.ReadByte()
		return p.readMacro(jet.SymQuote)
	case '`':
		p.in.ReadByte()
		return p.readMacro(jet.SymQuasiquote)
	case ',':
		p.in.ReadByte()
		if nb, nok, err := p.peek(); err != nil {
			return nil, err
		} else if nok && nb == '@' {
			p.in.ReadByte()
			return p.readMacro(jet.SymUnquoteSplicing)
		}
		return p.readMacro(jet.SymUnquote)
	case '"':
		return p.readString()
	}
	return nil, readErrorf("unexpected char when scanning atom: %q", b)
}

func (p *Reader) readToplevel() (*jet.Sexp, error) {
	if err := p.skipWhitespace(); err != nil {
		return nil, err
	}
	start, err := p.isAtListStart()
	if err != nil {
		return nil, err
	}
	if !start {
		return p.readAtom()
	}

	f := p.rt.PushFrame("readToplevel")
	defer f.Pop()
	var sublist *jet.Sexp
	f.Protect(&sublist, "sublist")

	if err := p.readListStart(); err != nil {
		return nil, err
	}
	if err := p.skipWhitespace(); err != nil {
		return nil, err
	}
	if end, err := p.isAtListEnd(); err != nil {
		return nil, err
	} else if end {
		if err := p.readListEnd(); err != nil {
			return nil, err
		}
		return p.rt.AllocateEmpty(), nil
	}
	sublist, err = p.readSublist()
	if err != nil {
		return nil, err
	}
	if err := p.skipWhitespace(); err != nil {
		return nil, err
	}
	if err := p.readListEnd(); err != nil {
		return nil, err
	}
	return sublist, nil
}
