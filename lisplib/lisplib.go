// Copyright © 2016 The Jet authors

// Package lisplib carries the standard-library prelude.  The CLI reads the
// prelude from the configured stdlib directory; embedded tools (tests, the
// REPL) use the embedded copy.
package lisplib

import _ "embed"

// PreludeFileName is the file the CLI loads from the stdlib directory.
const PreludeFileName = "prelude.jet"

//go:embed prelude.jet
var Prelude string
