// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package telemetrytest installs in-memory telemetry for tests.
package telemetrytest

import (
	"context"
	"testing"

	"github.com/z5labs/telemetry"
	"github.com/z5labs/telemetry/guard"
	"github.com/z5labs/telemetry/sink/memory"
	"github.com/z5labs/telemetry/taskpool"

	"github.com/zoobzio/clockz"
)

// Option tweaks the [guard.Config] used by [New].
type Option func(*guard.Config, *[]guard.Option)

// WithClock stamps events with c.
func WithClock(c clockz.Clock) Option {
	return func(_ *guard.Config, opts *[]guard.Option) {
		*opts = append(*opts, guard.WithClock(c))
	}
}

// WithBridge installs the ambient span bridge.
func WithBridge() Option {
	return func(cfg *guard.Config, _ *[]guard.Option) {
		cfg.Bridge.Install = true
	}
}

// WithWorkers installs the compute pool hooks with n workers.
func WithWorkers(n int) Option {
	return func(cfg *guard.Config, _ *[]guard.Option) {
		cfg.Workers.Install = true
		cfg.Workers.NumThreads = n
	}
}

// WithBufferSizes sets the channel capacities.
func WithBufferSizes(logs, metrics, spans int) Option {
	return func(cfg *guard.Config, _ *[]guard.Option) {
		cfg.Buffers = guard.BufferConfig{Log: logs, Metric: metrics, Span: spans}
	}
}

// WithoutCPUTracing disables span capture.
func WithoutCPUTracing() Option {
	return func(cfg *guard.Config, _ *[]guard.Option) {
		cfg.EnableCPUTracing = false
	}
}

// Harness is the telemetry installed for a single test.
type Harness struct {
	Guard *guard.Guard
	Sink  *memory.Sink

	// Ctx is registered as the test goroutine's span stream.
	Ctx context.Context
}

// New installs a [guard.Guard] delivering to a memory sink, with CPU
// tracing on and every level enabled. Everything is torn down when the
// test ends.
func New(t testing.TB, opts ...Option) *Harness {
	t.Helper()

	cfg := guard.DefaultConfig()
	cfg.MinLevel = telemetry.LevelTrace
	cfg.EnableCPUTracing = true

	sink := memory.New()
	gopts := []guard.Option{guard.WithSink(sink)}
	for _, opt := range opts {
		opt(&cfg, &gopts)
	}

	g, err := guard.New(context.Background(), cfg, gopts...)
	if err != nil {
		t.Fatalf("failed to install telemetry: %s", err)
	}

	h := &Harness{
		Guard: g,
		Sink:  sink,
		Ctx:   g.Dispatcher().RegisterThread(telemetry.WithThreadName(context.Background(), "main")),
	}
	t.Cleanup(func() {
		telemetry.UnregisterThread(h.Ctx)
		g.Shutdown(context.Background())
		if cfg.Workers.Install {
			taskpool.ResetForTesting()
		}
	})
	return h
}

// Flush delivers everything buffered so far, including the worker streams
// when pool hooks are installed, without tearing anything down.
func (h *Harness) Flush() {
	telemetry.FlushThread(h.Ctx)
	if pool := h.Guard.Pool(); pool != nil {
		pool.Broadcast(h.Ctx, telemetry.FlushThread)
	}
	h.Guard.Dispatcher().FlushLogs()
	h.Guard.Dispatcher().FlushMetrics()
}
