// Copyright © 2016 The Jet authors

// Package profiler provides jet.Profiler implementations that annotate
// interpreter activity for external tracing systems.
package profiler

import (
	"fmt"

	"github.com/swgillespie/jet/jet"
)

// profiler carries the state shared by every annotator implementation.
type profiler struct {
	rt      *jet.Runtime
	enabled bool
}

func (p *profiler) IsEnabled() bool {
	return p.enabled
}

func (p *profiler) Enable() error {
	if p.enabled {
		return fmt.Errorf("profiler already enabled")
	}
	p.enabled = true
	return nil
}

// formLabel derives a span name from a toplevel form: the head symbol of a
// call, the symbol itself for a bare reference, or the value kind.
func formLabel(rt *jet.Runtime, form *jet.Sexp) string {
	switch {
	case form.IsCons() && form.Car().IsSymbol():
		return rt.Interner.Name(form.Car().Symbol())
	case form.IsSymbol():
		return rt.Interner.Name(form.Symbol())
	default:
		return form.Kind().String()
	}
}
