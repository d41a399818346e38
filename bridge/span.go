// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package bridge

import (
	"context"
	"sync"

	"github.com/z5labs/telemetry"
	"github.com/z5labs/telemetry/intern"

	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Default span filter.
const (
	DefaultTarget   = "schedule"
	DefaultLabelKey = "name"
)

// SpanOption configures a [SpanProcessor].
type SpanOption func(*SpanProcessor)

// Target sets the span name to translate. Spans with any other name are
// ignored.
func Target(name string) SpanOption {
	return func(sp *SpanProcessor) {
		sp.target = name
	}
}

// LabelKey sets the attribute holding the runtime name of a span.
func LabelKey(key string) SpanOption {
	return func(sp *SpanProcessor) {
		sp.labelKey = attribute.Key(key)
	}
}

// Interner sets the interner used for span labels.
func Interner(in *intern.Interner) SpanOption {
	return func(sp *SpanProcessor) {
		sp.interner = in
	}
}

// SpanProcessor is an [sdktrace.SpanProcessor] which emits a Begin event
// when a target span starts and the matching End event when it ends.
//
// The Begin event goes to the [telemetry.Stream] found in the parent
// context given to the tracer. The span must end on the goroutine which
// started it, which holds for hosts running phases sequentially. Spans
// started without a registered stream are ignored.
type SpanProcessor struct {
	target   string
	labelKey attribute.Key
	interner *intern.Interner
	scope    *telemetry.Scope

	// open spans keyed by span id
	ext sync.Map
}

// NewSpanProcessor returns a SpanProcessor for spans named "schedule"
// labelled by their "name" attribute.
func NewSpanProcessor(opts ...SpanOption) *SpanProcessor {
	sp := &SpanProcessor{
		target:   DefaultTarget,
		labelKey: DefaultLabelKey,
		interner: intern.Default(),
	}
	for _, opt := range opts {
		opt(sp)
	}
	sp.scope = telemetry.NewScope(sp.target)
	return sp
}

// OnStart implements the [sdktrace.SpanProcessor] interface.
func (sp *SpanProcessor) OnStart(parent context.Context, s sdktrace.ReadWriteSpan) {
	if s.Name() != sp.target {
		return
	}
	stream := telemetry.StreamFromContext(parent)
	if stream == nil {
		return
	}

	var label intern.String
	for _, kv := range s.Attributes() {
		if kv.Key == sp.labelKey {
			label = sp.interner.Intern(kv.Value.Emit())
			break
		}
	}

	span := stream.BeginNamed(sp.scope, label)
	if !span.IsRecording() {
		return
	}
	sp.ext.Store(s.SpanContext().SpanID(), span)
}

// OnEnd implements the [sdktrace.SpanProcessor] interface.
func (sp *SpanProcessor) OnEnd(s sdktrace.ReadOnlySpan) {
	v, ok := sp.ext.LoadAndDelete(s.SpanContext().SpanID())
	if !ok {
		return
	}
	v.(telemetry.Span).End()
}

// Shutdown implements the [sdktrace.SpanProcessor] interface. Spans still
// open are forgotten without an End event.
func (sp *SpanProcessor) Shutdown(context.Context) error {
	sp.ext.Clear()
	return nil
}

// ForceFlush implements the [sdktrace.SpanProcessor] interface.
func (sp *SpanProcessor) ForceFlush(context.Context) error {
	return nil
}
