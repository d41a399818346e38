// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package bridge

import (
	"context"
	"log/slog"
	"slices"

	"github.com/z5labs/telemetry"
	"github.com/z5labs/telemetry/intern"

	"go.opentelemetry.io/otel/trace"
)

// TargetKey is the attribute whose value becomes [telemetry.LogEvent.Target]
// instead of a property.
const TargetKey = "target"

// LogOption configures a [LogHandler].
type LogOption func(*LogHandler)

// LogDispatcher routes records to d instead of the installed dispatcher.
func LogDispatcher(d *telemetry.Dispatcher) LogOption {
	return func(h *LogHandler) {
		h.d = d
	}
}

// LogInterner sets the interner used for record properties.
func LogInterner(in *intern.Interner) LogOption {
	return func(h *LogHandler) {
		h.interner = in
	}
}

// IncludeTraceContext records the OpenTelemetry trace and span ids found
// in the record context on [telemetry.LogEvent.Trace]. The ids are not
// interned.
func IncludeTraceContext(enabled bool) LogOption {
	return func(h *LogHandler) {
		h.traceContext = enabled
	}
}

// MaskAttr passes every attribute named key through f before it becomes
// a property, e.g. to keep per-entity identifiers out of the interner.
func MaskAttr(key string, f func(slog.Attr) slog.Attr) LogOption {
	return func(h *LogHandler) {
		h.attrMasks[key] = f
	}
}

// MaskMessage passes every record message through f.
func MaskMessage(f func(string) string) LogOption {
	return func(h *LogHandler) {
		h.msgMasks = append(h.msgMasks, f)
	}
}

// AnonymousString replaces the value of a with "****" whatever its kind.
func AnonymousString(a slog.Attr) slog.Attr {
	return slog.String(a.Key, "****")
}

// LogHandler is an [slog.Handler] which records every enabled record as a
// log event. Attributes become properties, with group names joined by
// dots, so they must have few distinct values.
type LogHandler struct {
	d            *telemetry.Dispatcher
	interner     *intern.Interner
	traceContext bool
	attrMasks    map[string]func(slog.Attr) slog.Attr
	msgMasks     []func(string) string

	target string
	group  string
	props  []intern.Property
}

// NewLogHandler returns a LogHandler.
func NewLogHandler(opts ...LogOption) *LogHandler {
	h := &LogHandler{
		interner:  intern.Default(),
		attrMasks: make(map[string]func(slog.Attr) slog.Attr),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// NewLogger provides a simple wrapper for slog.New(NewLogHandler(opts...)).
func NewLogger(opts ...LogOption) *slog.Logger {
	return slog.New(NewLogHandler(opts...))
}

func (h *LogHandler) dispatcher() *telemetry.Dispatcher {
	if h.d != nil {
		return h.d
	}
	return telemetry.Current()
}

// Enabled implements the [slog.Handler] interface.
func (h *LogHandler) Enabled(_ context.Context, lvl slog.Level) bool {
	return h.dispatcher().Enabled(telemetry.LevelFromSlog(lvl))
}

// Handle implements the [slog.Handler] interface.
func (h *LogHandler) Handle(ctx context.Context, record slog.Record) error {
	d := h.dispatcher()
	lvl := telemetry.LevelFromSlog(record.Level)
	if !d.Enabled(lvl) {
		return nil
	}

	target := h.target
	props := slices.Clone(h.props)
	record.Attrs(func(a slog.Attr) bool {
		if h.group == "" && a.Key == TargetKey {
			target = a.Value.String()
			return true
		}
		props = h.appendAttr(props, h.group, a)
		return true
	})

	var tc telemetry.TraceContext
	if h.traceContext {
		spanCtx := trace.SpanContextFromContext(ctx)
		if spanCtx.IsValid() {
			tc.TraceID = spanCtx.TraceID().String()
			tc.SpanID = spanCtx.SpanID().String()
		}
	}

	var set *intern.PropertySet
	if len(props) > 0 {
		set = h.interner.Props(props...)
	}
	msg := record.Message
	for _, mask := range h.msgMasks {
		msg = mask(msg)
	}
	d.EmitTracedLog(lvl, target, msg, set, tc)
	return nil
}

// WithAttrs implements the [slog.Handler] interface.
func (h *LogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	h2 := *h
	h2.props = slices.Clone(h.props)
	for _, a := range attrs {
		if h.group == "" && a.Key == TargetKey {
			h2.target = a.Value.String()
			continue
		}
		h2.props = h.appendAttr(h2.props, h.group, a)
	}
	return &h2
}

// WithGroup implements the [slog.Handler] interface.
func (h *LogHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	h2 := *h
	h2.props = slices.Clone(h.props)
	h2.group = joinKey(h.group, name)
	return &h2
}

func (h *LogHandler) appendAttr(props []intern.Property, group string, a slog.Attr) []intern.Property {
	if mask, ok := h.attrMasks[a.Key]; ok {
		a = mask(a)
	}
	v := a.Value.Resolve()
	if v.Kind() == slog.KindGroup {
		prefix := group
		if a.Key != "" {
			prefix = joinKey(group, a.Key)
		}
		for _, ga := range v.Group() {
			props = h.appendAttr(props, prefix, ga)
		}
		return props
	}
	if a.Key == "" {
		return props
	}
	return append(props, intern.Property{Key: joinKey(group, a.Key), Value: v.String()})
}

func joinKey(group, key string) string {
	if group == "" {
		return key
	}
	return group + "." + key
}
