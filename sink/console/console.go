// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package console provides a [telemetry.Sink] which prints every event
// through a zap encoder.
package console

import (
	"fmt"
	"io"
	"os"

	"github.com/z5labs/telemetry"
	"github.com/z5labs/telemetry/intern"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Format selects the zap encoder.
type Format string

const (
	FormatConsole Format = "console"
	FormatJSON    Format = "json"
)

// UnknownFormatError is returned by [New] for a format other than
// [FormatConsole] or [FormatJSON].
type UnknownFormatError struct {
	Format Format
}

// Error implements the [builtin.error] interface.
func (e UnknownFormatError) Error() string {
	return fmt.Sprintf("console: unknown format: %q", e.Format)
}

type options struct {
	format  Format
	spans   bool
	metrics bool
}

// Option configures a [Sink].
type Option func(*options)

// WithFormat selects the output encoding. Defaults to [FormatConsole].
func WithFormat(f Format) Option {
	return func(o *options) {
		if f != "" {
			o.format = f
		}
	}
}

// PrintSpans toggles printing of span events.
func PrintSpans(enabled bool) Option {
	return func(o *options) {
		o.spans = enabled
	}
}

// PrintMetrics toggles printing of metric events.
func PrintMetrics(enabled bool) Option {
	return func(o *options) {
		o.metrics = enabled
	}
}

// Sink writes one line per event. Safe for concurrent use.
type Sink struct {
	core    zapcore.Core
	spans   bool
	metrics bool
}

// New returns a Sink writing to w, or to os.Stderr when w is nil.
func New(w io.Writer, opts ...Option) (*Sink, error) {
	o := &options{
		format:  FormatConsole,
		spans:   true,
		metrics: true,
	}
	for _, opt := range opts {
		opt(o)
	}
	if w == nil {
		w = os.Stderr
	}

	var enc zapcore.Encoder
	switch o.format {
	case FormatConsole:
		enc = zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig())
	case FormatJSON:
		cfg := zap.NewProductionEncoderConfig()
		cfg.EncodeTime = zapcore.RFC3339NanoTimeEncoder
		enc = zapcore.NewJSONEncoder(cfg)
	default:
		return nil, UnknownFormatError{Format: o.format}
	}

	return &Sink{
		core:    zapcore.NewCore(enc, zapcore.Lock(zapcore.AddSync(w)), zapcore.DebugLevel),
		spans:   o.spans,
		metrics: o.metrics,
	}, nil
}

func zapLevel(l telemetry.Level) zapcore.Level {
	switch {
	case l >= telemetry.LevelFatal:
		return zapcore.FatalLevel
	case l >= telemetry.LevelError:
		return zapcore.ErrorLevel
	case l >= telemetry.LevelWarn:
		return zapcore.WarnLevel
	case l >= telemetry.LevelInfo:
		return zapcore.InfoLevel
	default:
		return zapcore.DebugLevel
	}
}

func propFields(fields []zapcore.Field, ps *intern.PropertySet) []zapcore.Field {
	for _, p := range ps.All() {
		fields = append(fields, zap.String(p.Key, p.Value))
	}
	return fields
}

// ProcessLogBlock implements the [telemetry.Sink] interface.
func (s *Sink) ProcessLogBlock(b telemetry.LogBlock) {
	for _, e := range b.Events {
		fields := propFields([]zapcore.Field{zap.String("process_id", b.ProcessID)}, e.Properties)
		if !e.Trace.IsZero() {
			fields = append(fields, zap.String("trace_id", e.Trace.TraceID), zap.String("span_id", e.Trace.SpanID))
		}
		s.core.Write(zapcore.Entry{
			Level:      zapLevel(e.Level),
			Time:       e.Time,
			LoggerName: e.Target,
			Message:    e.Message,
		}, fields)
	}
}

// ProcessMetricBlock implements the [telemetry.Sink] interface.
func (s *Sink) ProcessMetricBlock(b telemetry.MetricBlock) {
	if !s.metrics {
		return
	}
	for _, e := range b.Events {
		fields := []zapcore.Field{
			zap.String("process_id", b.ProcessID),
			zap.String("unit", e.Unit),
		}
		if e.Integer {
			fields = append(fields, zap.Int64("value", int64(e.Value)))
		} else {
			fields = append(fields, zap.Float64("value", e.Value))
		}
		s.core.Write(zapcore.Entry{
			Level:      zapcore.InfoLevel,
			Time:       e.Time,
			LoggerName: "metric",
			Message:    e.Name,
		}, propFields(fields, e.Properties))
	}
}

// ProcessSpanBlock implements the [telemetry.Sink] interface.
func (s *Sink) ProcessSpanBlock(b telemetry.SpanBlock) {
	if !s.spans {
		return
	}
	for _, e := range b.Events {
		fields := []zapcore.Field{
			zap.String("process_id", b.ProcessID),
			zap.Uint64("thread_id", b.ThreadID),
			zap.String("kind", e.Kind.String()),
			zap.Uint32("depth", e.Depth),
		}
		if b.ThreadName != "" {
			fields = append(fields, zap.String("thread_name", b.ThreadName))
		}
		if e.SpanID != 0 {
			fields = append(fields, zap.Uint64("span_id", e.SpanID))
		}
		s.core.Write(zapcore.Entry{
			Level:      zapcore.DebugLevel,
			Time:       e.Time,
			LoggerName: "span",
			Message:    e.SpanName(),
		}, fields)
	}
}

// Sync flushes any buffered output.
func (s *Sink) Sync() error {
	return s.core.Sync()
}
