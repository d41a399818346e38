// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package schedule is a frame based application runner which executes
// systems in parallel on the process wide compute pool.
//
// Every phase of a frame is wrapped in an OpenTelemetry span named
// "schedule" whose "name" attribute holds the phase. Every system run is
// wrapped in a span named "system". Both come from the global
// TracerProvider.
package schedule

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/z5labs/telemetry/taskpool"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/z5labs/telemetry/schedule"

// SpanName is the name of the span wrapping each phase.
const SpanName = "schedule"

// LabelKey is the attribute carrying the phase name.
const LabelKey = "name"

// Phase is a stage of a frame. Phases run in declaration order.
type Phase int

const (
	First Phase = iota
	PreUpdate
	Update
	PostUpdate
	Last
)

var phases = [...]Phase{First, PreUpdate, Update, PostUpdate, Last}

// String implements the [fmt.Stringer] interface.
func (p Phase) String() string {
	switch p {
	case First:
		return "First"
	case PreUpdate:
		return "PreUpdate"
	case Update:
		return "Update"
	case PostUpdate:
		return "PostUpdate"
	case Last:
		return "Last"
	default:
		return fmt.Sprintf("Phase(%d)", int(p))
	}
}

// System is a named unit of frame work. Run receives the context of the
// goroutine executing it.
type System struct {
	Name string
	Run  func(context.Context) error
}

// SystemFunc returns a [System] named name.
func SystemFunc(name string, f func(context.Context) error) System {
	return System{Name: name, Run: f}
}

// Option configures an [App].
type Option func(*App)

// NumThreads sets the worker count used if the App creates the compute pool.
func NumThreads(n int) Option {
	return func(a *App) {
		a.numThreads = n
	}
}

// App runs registered systems frame after frame.
type App struct {
	numThreads int
	tracer     trace.Tracer
	pool       *taskpool.Pool
	systems    map[Phase][]System
	frame      atomic.Uint64
}

// New returns an App using the process wide compute pool. The pool is
// created without any worker hooks if it does not exist yet.
func New(opts ...Option) *App {
	a := &App{
		systems: make(map[Phase][]System),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.tracer = otel.Tracer(instrumentationName)
	a.pool = taskpool.GetOrInit(func() *taskpool.Pool {
		return taskpool.NewBuilder().NumThreads(a.numThreads).Build()
	})
	return a
}

// Pool returns the compute pool systems run on.
func (a *App) Pool() *taskpool.Pool {
	return a.pool
}

// AddSystems registers systems to run in phase p.
func (a *App) AddSystems(p Phase, systems ...System) *App {
	a.systems[p] = append(a.systems[p], systems...)
	return a
}

// Frame returns the number of completed frames.
func (a *App) Frame() uint64 {
	return a.frame.Load()
}

// Update runs a single frame. Phase spans start and end on the calling
// goroutine, which also executes systems while waiting for the workers.
func (a *App) Update(ctx context.Context) error {
	for _, p := range phases {
		err := a.runPhase(ctx, p)
		if err != nil {
			return err
		}
	}
	a.frame.Add(1)
	return nil
}

// RunFrames runs n frames, stopping early if ctx is cancelled.
func (a *App) RunFrames(ctx context.Context, n int) error {
	for range n {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := a.Update(ctx); err != nil {
			return err
		}
	}
	return nil
}

// PhaseError wraps the failure of a system.
type PhaseError struct {
	Phase Phase
	Cause error
}

// Error implements the [builtin.error] interface.
func (e PhaseError) Error() string {
	return fmt.Sprintf("schedule: phase %s failed: %s", e.Phase, e.Cause)
}

// Unwrap implements the implicit interface used by [errors.Is] and [errors.As].
func (e PhaseError) Unwrap() error {
	return e.Cause
}

func (a *App) runPhase(ctx context.Context, p Phase) error {
	spanCtx, span := a.tracer.Start(ctx, SpanName, trace.WithAttributes(
		attribute.String(LabelKey, p.String()),
	))
	defer span.End()

	systems := a.systems[p]
	if len(systems) == 0 {
		return nil
	}

	err := a.pool.Scope(spanCtx, func(s *taskpool.Scope) {
		for _, sys := range systems {
			s.Spawn(a.runSystem(sys))
		}
	})
	if err != nil {
		span.RecordError(err)
		return PhaseError{Phase: p, Cause: err}
	}
	return nil
}

func (a *App) runSystem(sys System) taskpool.Task {
	return func(ctx context.Context) error {
		ctx, span := a.tracer.Start(ctx, "system", trace.WithAttributes(
			attribute.String(LabelKey, sys.Name),
		))
		defer span.End()

		return sys.Run(ctx)
	}
}
