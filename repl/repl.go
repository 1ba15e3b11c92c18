// Copyright © 2016 The Jet authors

// Package repl implements an interactive session on top of the interpreter
// core.  Runtime errors restart the prompt instead of terminating the
// process.
package repl

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ergochat/readline"
	"github.com/muesli/reflow/wordwrap"

	"github.com/swgillespie/jet/jet"
	"github.com/swgillespie/jet/lisplib"
	"github.com/swgillespie/jet/parser"
)

const errorWrapWidth = 78

type config struct {
	stdin  io.ReadCloser
	stderr io.Writer
}

// Option adjusts the REPL's terminal wiring, mostly for tests.
type Option func(*config)

// WithStdin overrides the terminal input stream.
func WithStdin(stdin io.ReadCloser) Option {
	return func(c *config) { c.stdin = stdin }
}

// WithStderr overrides the stream prompts and results are written to.
func WithStderr(stderr io.Writer) Option {
	return func(c *config) { c.stderr = stderr }
}

// Run starts an interactive session in a fresh runtime with the embedded
// prelude loaded.  Run returns when the input stream is closed.
func Run(prompt string, configs []jet.Config, opts ...Option) error {
	cfg := &config{stderr: os.Stderr}
	for _, opt := range opts {
		opt(cfg)
	}

	rt := jet.NewRuntime(configs...)
	defer rt.Close()
	rt.Stderr = cfg.stderr

	if _, err := rt.RunForms(parser.NewReader(rt, strings.NewReader(lisplib.Prelude))); err != nil {
		return fmt.Errorf("prelude initialization failure: %w", err)
	}

	rlCfg := &readline.Config{
		Stdout:            cfg.stderr,
		Stderr:            cfg.stderr,
		Prompt:            prompt,
		HistoryFile:       historyPath(),
		HistorySearchFold: true,
	}
	if cfg.stdin != nil {
		rlCfg.Stdin = cfg.stdin
	}
	rl, err := readline.NewEx(rlCfg)
	if err != nil {
		return err
	}
	defer rl.Close() //nolint:errcheck // best-effort cleanup

	for {
		line, err := rl.ReadSlice()
		if err == readline.ErrInterrupt {
			continue
		}
		if err != nil {
			return nil
		}
		text := strings.TrimSpace(string(line))
		if text == "" {
			continue
		}
		evalLine(rt, cfg.stderr, text)
	}
}

// evalLine reads and evaluates every form on one input line, printing each
// result.  Errors restart the prompt.
func evalLine(rt *jet.Runtime, w io.Writer, line string) {
	p := parser.NewReader(rt, strings.NewReader(line))
	for {
		form, err := p.Read()
		if err != nil {
			renderError(w, "read error", err)
			return
		}
		if form.IsEof() {
			return
		}
		meaning, err := rt.Analyze(form)
		if err != nil {
			renderError(w, "runtime error", err)
			return
		}
		result, err := jet.Evaluate(rt, meaning, rt.Global)
		if err != nil {
			renderError(w, "runtime error", err)
			return
		}
		fmt.Fprintln(w, rt.SexpString(result))
	}
}

func renderError(w io.Writer, class string, err error) {
	fmt.Fprintln(w, wordwrap.String(class+": "+err.Error(), errorWrapWidth))
}

func historyPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".jet_history")
}
