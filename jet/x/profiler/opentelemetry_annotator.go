// Copyright © 2016 The Jet authors

package profiler

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/swgillespie/jet/jet"
)

// ContextOpenTelemetryTracerKey looks up a parent tracer name from a
// context key.
const ContextOpenTelemetryTracerKey = "otelParentTracer"

var _ jet.Profiler = &otelAnnotator{}

// otelAnnotator opens a span for every toplevel evaluation and records each
// collection cycle as an event on the active span.
type otelAnnotator struct {
	profiler
	currentContext context.Context
	currentSpan    trace.Span
}

// NewOpenTelemetryAnnotator returns a profiler that appends spans to
// parentContext's trace.
func NewOpenTelemetryAnnotator(rt *jet.Runtime, parentContext context.Context) *otelAnnotator {
	return &otelAnnotator{
		profiler:       profiler{rt: rt},
		currentContext: parentContext,
	}
}

func (p *otelAnnotator) Enable() error {
	p.rt.Profiler = p
	if p.currentContext == nil {
		return errors.New("we can only append spans to a context that is linked to opentelemetry")
	}
	return p.profiler.Enable()
}

func (p *otelAnnotator) Complete() error {
	if p.currentSpan != nil {
		p.currentSpan.End()
	}
	return nil
}

func contextTracer(ctx context.Context) trace.Tracer {
	tracerName, ok := ctx.Value(ContextOpenTelemetryTracerKey).(string)
	if !ok {
		tracerName = "jet"
	}
	return otel.GetTracerProvider().Tracer(tracerName)
}

func (p *otelAnnotator) Start(form *jet.Sexp) func() {
	oldContext := p.currentContext
	label := formLabel(p.rt, form)
	p.currentContext, p.currentSpan = contextTracer(p.currentContext).Start(p.currentContext, label)
	p.currentSpan.SetAttributes(attribute.String("jet.form.kind", form.Kind().String()))
	return func() {
		p.currentSpan.End()
		// And pop the current context back.
		p.currentContext = oldContext
		p.currentSpan = trace.SpanFromContext(p.currentContext)
	}
}

func (p *otelAnnotator) GC(stats jet.HeapStats) {
	if p.currentSpan == nil || !p.currentSpan.IsRecording() {
		return
	}
	p.currentSpan.AddEvent("gc", trace.WithAttributes(
		attribute.Int64("jet.gc.collections", int64(stats.Collections)),
		attribute.Int("jet.gc.cells_in_use", stats.CellsInUse),
		attribute.Int("jet.gc.finalize_queue", stats.FinalizeQueueLen),
	))
}
