// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package workerhooks registers a span stream on every worker of the
// process wide compute pool.
//
// Workers only get a stream if [Install] creates the compute pool. Once
// the host has built the pool itself, its workers keep emitting nothing
// on the Span channel for the rest of the process. Call Install at
// startup, before the host touches [taskpool.GetOrInit].
//
// The goroutine which drives the host run loop is used as a worker too
// but never passes through the spawn hook, so it must call
// [telemetry.RegisterThread] itself.
package workerhooks

import (
	"context"
	"log/slog"

	"github.com/z5labs/telemetry"
	"github.com/z5labs/telemetry/internal/noop"
	"github.com/z5labs/telemetry/taskpool"

	"golang.org/x/sync/errgroup"
)

// Options configure [Install].
type Options struct {
	numThreads int
	dispatcher *telemetry.Dispatcher
	logger     *slog.Logger
}

// Option sets a value on [Options].
type Option func(*Options)

// NumThreads sets the number of compute workers.
func NumThreads(n int) Option {
	return func(o *Options) {
		o.numThreads = n
	}
}

// Dispatcher binds the worker streams to d instead of the installed one.
func Dispatcher(d *telemetry.Dispatcher) Option {
	return func(o *Options) {
		o.dispatcher = d
	}
}

// Logger sets the logger used to report a pool which already existed.
func Logger(l *slog.Logger) Option {
	return func(o *Options) {
		o.logger = l
	}
}

// Install creates the process wide compute pool with hooks which register
// a span stream when a worker spawns and flush then unregister it when
// the worker is destroyed. It reports false, and logs a warning, if the
// pool already existed, in which case no hooks were installed.
func Install(opts ...Option) (*taskpool.Pool, bool) {
	o := &Options{
		logger: noop.Logger(),
	}
	for _, opt := range opts {
		opt(o)
	}

	created := false
	pool := taskpool.GetOrInit(func() *taskpool.Pool {
		created = true
		return taskpool.NewBuilder().
			NumThreads(o.numThreads).
			OnThreadSpawn(o.onSpawn).
			OnThreadDestroy(onDestroy).
			Build()
	})
	if !created {
		o.logger.Warn(
			"compute pool already existed, worker spans will not be captured",
			slog.Int("threads", pool.ThreadNum()),
		)
	}
	return pool, created
}

func (o *Options) onSpawn(ctx context.Context) context.Context {
	if th, ok := taskpool.ThreadFromContext(ctx); ok {
		ctx = telemetry.WithThreadName(ctx, th.Name)
	}
	d := o.dispatcher
	if d == nil {
		d = telemetry.Current()
	}
	return d.RegisterThread(ctx)
}

func onDestroy(ctx context.Context) {
	telemetry.FlushThread(ctx)
	telemetry.UnregisterThread(ctx)
}

// FlushWorkers flushes the span stream of every worker in pool, along
// with the shared Log and Metric channels of the installed dispatcher.
// It may be called from a task running on pool.
func FlushWorkers(ctx context.Context, pool *taskpool.Pool) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return pool.Broadcast(gctx, telemetry.FlushThread)
	})
	g.Go(func() error {
		telemetry.FlushLogs()
		return nil
	})
	g.Go(func() error {
		telemetry.FlushMetrics()
		return nil
	})
	return g.Wait()
}
