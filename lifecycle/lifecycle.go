// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package lifecycle provides helpers for defining actions to execute when
// telemetry is torn down.
package lifecycle

import (
	"context"
	"errors"
	"slices"
	"sync"
)

// Hook represents functionality that needs to be performed
// at a specific "time" relative to the lifetime of a telemetry guard.
type Hook interface {
	Run(context.Context) error
}

// HookFunc is a func variant of the [Hook] interface.
type HookFunc func(context.Context) error

// Run implements the [Hook] interface.
func (f HookFunc) Run(ctx context.Context) error {
	return f(ctx)
}

type multiHook []Hook

func (mh multiHook) Run(ctx context.Context) error {
	errs := make([]error, 0, len(mh))
	for _, h := range mh {
		if h == nil {
			continue
		}
		err := h.Run(ctx)
		if err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return errs[0]
	}
	return errors.Join(errs...)
}

// MultiHook returns a [Hook] that's the logical concatenation
// of the provided [Hook]s. They're applied sequentially and every
// one of them runs even if an earlier one fails.
func MultiHook(hooks ...Hook) Hook {
	return multiHook(hooks)
}

// Context collects the [Hook]s to run when telemetry shuts down.
// It is safe for concurrent use.
type Context struct {
	mu        sync.Mutex
	shutdowns []Hook
}

// OnShutdown registers hook to run on [Context.Shutdown]. Hooks run
// in reverse registration order, like deferred calls.
func (c *Context) OnShutdown(hook Hook) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.shutdowns = append(c.shutdowns, hook)
}

// Shutdown runs and forgets every registered hook.
func (c *Context) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	hooks := c.shutdowns
	c.shutdowns = nil
	c.mu.Unlock()

	slices.Reverse(hooks)
	return multiHook(hooks).Run(ctx)
}

type key struct{}

var contextKey = &key{}

// NewContext returns a new [context.Context] containing the lifecycle [Context].
func NewContext(parent context.Context, c *Context) context.Context {
	return context.WithValue(parent, contextKey, c)
}

// FromContext tries to extract a lifecycle [Context] from the given [context.Context].
func FromContext(ctx context.Context) (*Context, bool) {
	lc, ok := ctx.Value(contextKey).(*Context)
	return lc, ok
}
