// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package telemetry captures logs, metrics and execution spans from a highly
// concurrent host application whose scheduler it does not control.
//
// Events flow through three independent channels, each with its own
// concurrency contract:
//
//   - Log: one process-wide channel. Any goroutine may append, no setup required.
//   - Metric: one process-wide channel. Any goroutine may append, no setup required.
//   - Span: one [Stream] per worker, never shared. A worker must call
//     [RegisterThread] before its spans are recorded.
//
// Each channel buffers events and delivers them to the installed [Sink] in
// blocks, either when the buffer reaches capacity or when a flush is
// requested. Events which have not been flushed are invisible to the sink.
//
// # Basic Usage
//
// A [Dispatcher] must be installed before events are recorded, usually by
// the guard package:
//
//	d := telemetry.NewDispatcher(sink, telemetry.WithCPUTracing(true))
//	if err := telemetry.Install(d); err != nil {
//	    return err
//	}
//	defer telemetry.Uninstall(d)
//
// Logs and metrics work from any goroutine:
//
//	telemetry.Infof("frame %d complete", n)
//	telemetry.EmitMetric("frame_time_ms", "ms", dt, nil)
//
// Spans are recorded into the Stream carried by the worker's context:
//
//	var updateScope = telemetry.NewScope("update")
//
//	func update(ctx context.Context) {
//	    defer telemetry.BeginSpan(ctx, updateScope).End()
//	    ...
//	}
//
// # Failure Model
//
// No emission function returns an error. Emitting without an installed
// Dispatcher, a span without a registered Stream, an unmatched end or any
// call after teardown silently does nothing. A missing registration shows
// up as a gap in the captured spans, never as a crash.
package telemetry
