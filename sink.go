// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package telemetry

import (
	"context"
	"errors"

	"github.com/z5labs/telemetry/internal/try"
)

// Sink receives flushed blocks. Log and metric blocks are delivered in
// channel order. Span blocks from different streams may be delivered
// concurrently, so implementations must be safe for concurrent use.
//
// The block and its events are owned by the sink once delivered.
type Sink interface {
	ProcessLogBlock(LogBlock)
	ProcessMetricBlock(MetricBlock)
	ProcessSpanBlock(SpanBlock)
}

type shutdowner interface {
	Shutdown(context.Context) error
}

type multiSink []Sink

// MultiSink returns a [Sink] which delivers every block to each of the
// given sinks in order. Nil sinks are skipped. A panic raised by one sink
// does not prevent delivery to the others; the recovered panics are
// raised again, joined, once every sink has been called.
//
// The returned Sink implements Shutdown(context.Context) error by
// shutting down every sink which supports it.
func MultiSink(sinks ...Sink) Sink {
	ms := make(multiSink, 0, len(sinks))
	for _, s := range sinks {
		if s == nil {
			continue
		}
		if inner, ok := s.(multiSink); ok {
			ms = append(ms, inner...)
			continue
		}
		ms = append(ms, s)
	}
	return ms
}

func (ms multiSink) each(f func(Sink)) {
	var errs []error
	for _, s := range ms {
		err := try.Call(func() { f(s) })
		if err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		panic(errors.Join(errs...))
	}
}

// ProcessLogBlock implements the [Sink] interface.
func (ms multiSink) ProcessLogBlock(b LogBlock) {
	ms.each(func(s Sink) { s.ProcessLogBlock(b) })
}

// ProcessMetricBlock implements the [Sink] interface.
func (ms multiSink) ProcessMetricBlock(b MetricBlock) {
	ms.each(func(s Sink) { s.ProcessMetricBlock(b) })
}

// ProcessSpanBlock implements the [Sink] interface.
func (ms multiSink) ProcessSpanBlock(b SpanBlock) {
	ms.each(func(s Sink) { s.ProcessSpanBlock(b) })
}

// Shutdown shuts down every sink which supports it.
func (ms multiSink) Shutdown(ctx context.Context) error {
	var errs []error
	for _, s := range ms {
		sd, ok := s.(shutdowner)
		if !ok {
			continue
		}
		if err := sd.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type discardSink struct{}

func (discardSink) ProcessLogBlock(LogBlock)       {}
func (discardSink) ProcessMetricBlock(MetricBlock) {}
func (discardSink) ProcessSpanBlock(SpanBlock)     {}

// Discard is a [Sink] which drops every block.
var Discard Sink = discardSink{}
