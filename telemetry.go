// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package telemetry

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/z5labs/telemetry/intern"
)

var current atomic.Pointer[Dispatcher]

// ErrAlreadyInstalled is returned by [Install] when another Dispatcher is
// already installed.
var ErrAlreadyInstalled = errors.New("telemetry: a dispatcher is already installed")

// Install makes d the process-wide Dispatcher.
func Install(d *Dispatcher) error {
	if d == nil {
		return errors.New("telemetry: nil dispatcher")
	}
	if !current.CompareAndSwap(nil, d) {
		return ErrAlreadyInstalled
	}
	return nil
}

// Uninstall removes d if it is the installed Dispatcher. It reports
// whether d was installed.
func Uninstall(d *Dispatcher) bool {
	return current.CompareAndSwap(d, nil)
}

// Current returns the installed Dispatcher, or nil.
func Current() *Dispatcher {
	return current.Load()
}

// SetMinLevel changes the minimum severity of the installed Dispatcher.
func SetMinLevel(l Level) {
	Current().SetMinLevel(l)
}

// EmitLog records a log event on the installed Dispatcher.
func EmitLog(l Level, msg string, props *intern.PropertySet) {
	Current().EmitLog(l, msg, props)
}

func logf(l Level, format string, args ...any) {
	d := Current()
	if !d.Enabled(l) {
		return
	}
	d.EmitLog(l, fmt.Sprintf(format, args...), nil)
}

// Tracef formats and records a trace level log event.
func Tracef(format string, args ...any) { logf(LevelTrace, format, args...) }

// Debugf formats and records a debug level log event.
func Debugf(format string, args ...any) { logf(LevelDebug, format, args...) }

// Infof formats and records an info level log event.
func Infof(format string, args ...any) { logf(LevelInfo, format, args...) }

// Warnf formats and records a warn level log event.
func Warnf(format string, args ...any) { logf(LevelWarn, format, args...) }

// Errorf formats and records an error level log event.
func Errorf(format string, args ...any) { logf(LevelError, format, args...) }

// EmitMetric records a floating point measurement on the installed Dispatcher.
func EmitMetric(name, unit string, value float64, props *intern.PropertySet) {
	Current().EmitMetric(name, unit, value, props)
}

// EmitIntMetric records an integer measurement on the installed Dispatcher.
func EmitIntMetric(name, unit string, value int64, props *intern.PropertySet) {
	Current().EmitIntMetric(name, unit, value, props)
}

// FlushLogs flushes the Log channel of the installed Dispatcher.
func FlushLogs() {
	Current().FlushLogs()
}

// FlushMetrics flushes the Metric channel of the installed Dispatcher.
func FlushMetrics() {
	Current().FlushMetrics()
}

// BeginSpan opens a span on the Stream registered in ctx. Without a
// registered Stream the returned [Span] is the no-op sentinel.
func BeginSpan(ctx context.Context, scope *Scope) Span {
	return StreamFromContext(ctx).Begin(scope)
}

// EndSpan closes the innermost span opened on the Stream in ctx.
func EndSpan(ctx context.Context, scope *Scope) {
	StreamFromContext(ctx).End(scope)
}

// BeginAsyncScope records the start of an async scope on the Stream in
// ctx. The scope may be ended from any registered goroutine by passing the
// returned token to [EndAsyncScope].
func BeginAsyncScope(ctx context.Context, scope *Scope, parent uint64, depth uint32) AsyncToken {
	return StreamFromContext(ctx).BeginAsync(scope, parent, depth)
}

// EndAsyncScope records the end of the async scope identified by token on
// the Stream in ctx.
func EndAsyncScope(ctx context.Context, scope *Scope, token AsyncToken) {
	StreamFromContext(ctx).EndAsync(scope, token)
}
