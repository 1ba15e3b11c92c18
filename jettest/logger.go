// Copyright © 2016 The Jet authors

package jettest

import (
	"bytes"
	"io"
	"testing"
)

// Logger adapts a testing.TB to io.Writer so runtime diagnostics (late
// binding warnings) land in the test log line by line instead of on the
// process stderr.
type Logger struct {
	t      testing.TB
	prefix string
	buf    []byte
}

var _ io.Writer = (*Logger)(nil)

// NewLogger returns a Logger that labels every line with the interpreter
// diagnostic prefix.
func NewLogger(t testing.TB) *Logger {
	return &Logger{t: t, prefix: "jet: "}
}

// Write buffers b and logs every complete line it now holds.
func (log *Logger) Write(b []byte) (int, error) {
	log.buf = append(log.buf, b...)
	for {
		i := bytes.IndexByte(log.buf, '\n')
		if i < 0 {
			return len(b), nil
		}
		log.t.Log(log.prefix + string(log.buf[:i])) // the \n itself is dropped
		log.buf = log.buf[i+1:]
	}
}

// Flush logs any buffered bytes that were not newline terminated.
func (log *Logger) Flush() {
	if len(log.buf) == 0 {
		return
	}
	log.t.Log(log.prefix + string(log.buf))
	log.buf = nil
}
