// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package guard brackets the lifetime of process wide telemetry.
//
// A [Guard] builds the configured sinks, installs a dispatcher, and
// optionally installs the ambient bridge as the global OpenTelemetry
// tracer provider and the span stream hooks on the compute pool.
// Configuration errors are the only errors it returns. Once built,
// nothing it installed can fail the program.
package guard

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/z5labs/telemetry"
	"github.com/z5labs/telemetry/bridge"
	"github.com/z5labs/telemetry/config"
	"github.com/z5labs/telemetry/internal/noop"
	"github.com/z5labs/telemetry/lifecycle"
	"github.com/z5labs/telemetry/sink/console"
	"github.com/z5labs/telemetry/sink/otlpsink"
	"github.com/z5labs/telemetry/sink/promsink"
	"github.com/z5labs/telemetry/sink/remote"
	"github.com/z5labs/telemetry/taskpool"
	"github.com/z5labs/telemetry/workerhooks"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/zoobzio/clockz"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
)

type options struct {
	sinks      []telemetry.Sink
	clock      clockz.Clock
	logger     *slog.Logger
	zapLogger  *zap.Logger
	registerer prometheus.Registerer
	console    io.Writer
	processID  string
}

// Option customizes a [Guard] beyond what [Config] covers.
type Option func(*options)

// WithSink adds a sink next to the configured ones.
func WithSink(s telemetry.Sink) Option {
	return func(o *options) {
		o.sinks = append(o.sinks, s)
	}
}

// WithClock sets the clock stamping every event.
func WithClock(c clockz.Clock) Option {
	return func(o *options) {
		o.clock = c
	}
}

// WithLogger sets the logger used for diagnostics about telemetry itself.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithZapLogger sets the logger used by the network sinks.
func WithZapLogger(l *zap.Logger) Option {
	return func(o *options) {
		o.zapLogger = l
	}
}

// WithRegisterer sets where the Prometheus sink registers its collectors.
func WithRegisterer(r prometheus.Registerer) Option {
	return func(o *options) {
		o.registerer = r
	}
}

// WithConsoleWriter redirects the console and stdout sinks.
func WithConsoleWriter(w io.Writer) Option {
	return func(o *options) {
		o.console = w
	}
}

// WithProcessID overrides the process identity stamped on every block.
func WithProcessID(id string) Option {
	return func(o *options) {
		o.processID = id
	}
}

// Guard owns the installed dispatcher. It is torn down by [Guard.Shutdown].
type Guard struct {
	d      *telemetry.Dispatcher
	logger *slog.Logger
	pool   *taskpool.Pool

	shutdown     lifecycle.Hook
	shutdownOnce sync.Once
	shutdownErr  error
}

// FromSources reads a [Config] from srcs, layered over [DefaultConfig],
// and builds a [Guard] from it.
func FromSources(ctx context.Context, srcs []config.Source, opts ...Option) (*Guard, error) {
	m, err := config.Read(srcs...)
	if err != nil {
		return nil, ConfigReadError{Cause: err}
	}

	cfg := DefaultConfig()
	err = m.Unmarshal(&cfg)
	if err != nil {
		return nil, ConfigUnmarshalError{Cause: err}
	}
	return New(ctx, cfg, opts...)
}

// New builds the configured sinks and installs a dispatcher delivering to
// them. If ctx carries a [lifecycle.Context], [Guard.Shutdown] is
// registered on it.
func New(ctx context.Context, cfg Config, opts ...Option) (*Guard, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	err := cfg.Validate()
	if err != nil {
		return nil, err
	}

	o := &options{
		clock:      clockz.RealClock,
		logger:     noop.Logger(),
		zapLogger:  zap.NewNop(),
		registerer: prometheus.DefaultRegisterer,
		console:    os.Stderr,
	}
	for _, opt := range opts {
		opt(o)
	}

	sinks, sinkHooks, err := buildSinks(ctx, cfg, o)
	if err != nil {
		return nil, err
	}
	shutdownSinks := lifecycle.MultiHook(sinkHooks...)

	dopts := []telemetry.Option{
		telemetry.WithClock(o.clock),
		telemetry.WithLogger(o.logger),
		telemetry.WithMinLevel(cfg.MinLevel),
		telemetry.WithCPUTracing(cfg.EnableCPUTracing),
		telemetry.WithBufferSizes(cfg.Buffers.Log, cfg.Buffers.Metric, cfg.Buffers.Span),
	}
	if o.processID != "" {
		dopts = append(dopts, telemetry.WithProcessID(o.processID))
	}
	d := telemetry.NewDispatcher(telemetry.MultiSink(sinks...), dopts...)

	err = telemetry.Install(d)
	if err != nil {
		return nil, errors.Join(err, shutdownSinks.Run(ctx))
	}

	g := &Guard{
		d:      d,
		logger: bridge.NewLogger(bridge.LogDispatcher(d), bridge.IncludeTraceContext(cfg.Bridge.LogTraceContext)),
	}

	var restoreBridge lifecycle.Hook
	if cfg.Bridge.Install {
		restoreBridge = installBridge(cfg.Bridge)
	}
	if cfg.Workers.Install {
		g.pool, _ = workerhooks.Install(
			workerhooks.NumThreads(cfg.Workers.NumThreads),
			workerhooks.Dispatcher(d),
			workerhooks.Logger(o.logger),
		)
	}

	g.shutdown = lifecycle.MultiHook(
		lifecycle.HookFunc(g.flush),
		restoreBridge,
		lifecycle.HookFunc(g.uninstall),
		shutdownSinks,
	)

	lc, ok := lifecycle.FromContext(ctx)
	if ok {
		lc.OnShutdown(lifecycle.HookFunc(g.Shutdown))
	}
	return g, nil
}

func buildSinks(ctx context.Context, cfg Config, o *options) ([]telemetry.Sink, []lifecycle.Hook, error) {
	var (
		sinks []telemetry.Sink
		hooks []lifecycle.Hook
	)
	fail := func(name string, err error) ([]telemetry.Sink, []lifecycle.Hook, error) {
		cerr := lifecycle.MultiHook(hooks...).Run(ctx)
		return nil, nil, errors.Join(SinkInitError{Sink: name, Cause: err}, cerr)
	}

	sinks = append(sinks, o.sinks...)
	for _, s := range o.sinks {
		hooks = append(hooks, tryShutdown(s))
	}

	if cfg.Console.Enabled {
		cs, err := console.New(
			o.console,
			console.WithFormat(cfg.Console.Format),
			console.PrintSpans(cfg.Console.Spans),
			console.PrintMetrics(cfg.Console.Metrics),
		)
		if err != nil {
			return fail("console", err)
		}
		sinks = append(sinks, cs)
		hooks = append(hooks, lifecycle.HookFunc(func(context.Context) error {
			cs.Sync()
			return nil
		}))
	}

	switch cfg.Remote.Protocol {
	case ProtocolHTTP:
		rs, err := remote.New(
			cfg.Remote.Endpoint,
			remote.Logger(o.zapLogger),
			remote.Timeout(cfg.Remote.Timeout),
			remote.RetryMax(cfg.Remote.RetryMax),
			remote.QueueSize(cfg.Remote.QueueSize),
		)
		if err != nil {
			return fail("remote", err)
		}
		sinks = append(sinks, rs)
		hooks = append(hooks, tryShutdown(rs))
	case ProtocolOTLP:
		ts, err := otlpsink.Dial(
			ctx,
			cfg.Remote.Endpoint,
			cfg.Remote.Timeout,
			otlpsink.ServiceName(cfg.ServiceName),
			otlpsink.Logger(o.zapLogger),
		)
		if err != nil {
			return fail("otlp", err)
		}
		sinks = append(sinks, ts)
		hooks = append(hooks, tryShutdown(ts))
	case ProtocolStdout:
		ss, err := otlpsink.Stdout(
			o.console,
			otlpsink.ServiceName(cfg.ServiceName),
			otlpsink.Logger(o.zapLogger),
		)
		if err != nil {
			return fail("stdout", err)
		}
		sinks = append(sinks, ss)
		hooks = append(hooks, tryShutdown(ss))
	}

	if cfg.Prometheus.Enabled {
		ps, err := promsink.New(
			promsink.Registerer(o.registerer),
			promsink.Namespace(cfg.Prometheus.Namespace),
			promsink.MaxLabelCardinality(cfg.Prometheus.MaxLabelCardinality),
		)
		if err != nil {
			return fail("prometheus", err)
		}
		sinks = append(sinks, ps)
		hooks = append(hooks, lifecycle.HookFunc(func(context.Context) error {
			ps.Unregister(o.registerer)
			return nil
		}))
	}
	return sinks, hooks, nil
}

// installBridge makes the span bridge the global tracer provider and
// returns the hook restoring the previous one.
func installBridge(cfg BridgeConfig) lifecycle.Hook {
	prev := otel.GetTracerProvider()
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSpanProcessor(bridge.NewSpanProcessor(
			bridge.Target(cfg.Target),
			bridge.LabelKey(cfg.LabelKey),
		)),
	)
	otel.SetTracerProvider(tp)

	return lifecycle.HookFunc(func(ctx context.Context) error {
		err := tp.Shutdown(ctx)
		otel.SetTracerProvider(prev)
		return err
	})
}

type shutdowner interface {
	Shutdown(context.Context) error
}

func tryShutdown(v any) lifecycle.HookFunc {
	return func(ctx context.Context) error {
		s, ok := v.(shutdowner)
		if !ok {
			return nil
		}
		return s.Shutdown(ctx)
	}
}

// Dispatcher returns the installed dispatcher.
func (g *Guard) Dispatcher() *telemetry.Dispatcher {
	return g.d
}

// Logger returns a logger whose records land on the Log channel.
func (g *Guard) Logger() *slog.Logger {
	return g.logger
}

// Pool returns the compute pool, if worker hooks were installed.
func (g *Guard) Pool() *taskpool.Pool {
	return g.pool
}

func (g *Guard) flush(ctx context.Context) error {
	telemetry.FlushThread(ctx)
	if g.pool != nil {
		return workerhooks.FlushWorkers(ctx, g.pool)
	}
	g.d.FlushLogs()
	g.d.FlushMetrics()
	return nil
}

func (g *Guard) uninstall(context.Context) error {
	g.d.Close()
	telemetry.Uninstall(g.d)
	return nil
}

// Shutdown flushes every channel, including the span stream carried by
// ctx, uninstalls the dispatcher, restores the previous tracer provider
// and shuts down the sinks. Only the first call does anything.
func (g *Guard) Shutdown(ctx context.Context) error {
	g.shutdownOnce.Do(func() {
		g.shutdownErr = g.shutdown.Run(ctx)
	})
	return g.shutdownErr
}
