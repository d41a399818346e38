// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package asyncscope brackets groups of parallel work under named async
// scopes and relates synchronous spans to them afterwards.
//
// An async scope declares no resources and creates no dependency between
// the tasks it brackets, so a scheduler stays free to run them in
// parallel. A span belongs to a scope when its interval lies within the
// scope's interval. Nothing links the two explicitly.
package asyncscope

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/z5labs/telemetry"
)

// Slot holds the in-flight token of a single subsystem so the goroutine
// ending the scope need not be the one which began it.
type Slot struct {
	scope *telemetry.Scope
	token atomic.Uint64
}

// NewSlot returns a Slot recording scopes described by scope.
func NewSlot(scope *telemetry.Scope) *Slot {
	return &Slot{scope: scope}
}

// Scope returns the descriptor recorded by the Slot.
func (s *Slot) Scope() *telemetry.Scope {
	return s.scope
}

// Begin starts a top level scope on the stream in ctx.
func (s *Slot) Begin(ctx context.Context) telemetry.AsyncToken {
	return s.BeginChild(ctx, 0, 0)
}

// BeginChild starts a scope correlated to parent at depth. If a scope is
// still in flight it is ended first, on the stream in ctx.
func (s *Slot) BeginChild(ctx context.Context, parent telemetry.AsyncToken, depth uint32) telemetry.AsyncToken {
	token := telemetry.BeginAsyncScope(ctx, s.scope, uint64(parent), depth)
	if token == 0 {
		return 0
	}
	stale := s.token.Swap(uint64(token))
	if stale != 0 {
		telemetry.EndAsyncScope(ctx, s.scope, telemetry.AsyncToken(stale))
	}
	return token
}

// End ends the in-flight scope, if any, on the stream in ctx. The scope
// stays in flight if ctx carries no recording stream.
func (s *Slot) End(ctx context.Context) {
	stream := telemetry.StreamFromContext(ctx)
	if !stream.Recording() {
		return
	}
	token := s.token.Swap(0)
	if token == 0 {
		return
	}
	stream.EndAsync(s.scope, telemetry.AsyncToken(token))
}

// InFlight returns the token of the scope in flight, or zero.
func (s *Slot) InFlight() telemetry.AsyncToken {
	return telemetry.AsyncToken(s.token.Load())
}

// Registry is a set of Slots keyed by subsystem name.
type Registry struct {
	slots sync.Map
}

// Slot returns the Slot for name, creating it on first use.
func (r *Registry) Slot(name string) *Slot {
	if v, ok := r.slots.Load(name); ok {
		return v.(*Slot)
	}
	v, _ := r.slots.LoadOrStore(name, NewSlot(&telemetry.Scope{Name: name}))
	return v.(*Slot)
}
