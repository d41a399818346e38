// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package bridge translates ambient instrumentation into telemetry events.
//
// [SpanProcessor] watches the spans a host creates through OpenTelemetry
// and turns the ones with a configured name into Span channel events on
// the stream of the goroutine which started them. [LogHandler] routes
// [log/slog] records into the Log channel.
package bridge
