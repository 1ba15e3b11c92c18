// Copyright © 2016 The Jet authors

package jet

import (
	"fmt"
	"runtime"
)

// RuntimeError is an error raised during analysis or evaluation: arity
// mismatches, type errors in builtins, uninitialized variable reads, divide
// by zero, and user calls to the error builtin.  Runtime errors unwind to
// the top-level evaluation loop; there is no per-expression recovery.
type RuntimeError struct {
	Msg string
}

func (e *RuntimeError) Error() string { return e.Msg }

// Errorf returns a new RuntimeError with a formatted message.
func Errorf(format string, v ...interface{}) *RuntimeError {
	return &RuntimeError{Msg: fmt.Sprintf(format, v...)}
}

// Panicf reports an internal invariant violation: contract breaches, heap
// corruption, out of memory.  These are not recoverable errors; the panic
// message records the caller so post-mortems have a starting point.
func Panicf(format string, v ...interface{}) {
	msg := fmt.Sprintf(format, v...)
	if pc, file, line, ok := runtime.Caller(1); ok {
		fn := runtime.FuncForPC(pc)
		name := "???"
		if fn != nil {
			name = fn.Name()
		}
		msg = fmt.Sprintf("%s:%d: %s: %s", file, line, name, msg)
	}
	panic(msg)
}
