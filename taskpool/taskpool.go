// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package taskpool provides a fixed size pool of worker goroutines with
// per worker lifecycle hooks and a process wide compute pool.
//
// Every worker owns a [context.Context] for its whole lifetime. The spawn
// hook may derive a new context, e.g. to attach worker local state, and
// that context is handed to every task the worker runs and finally to the
// destroy hook.
package taskpool

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"

	"github.com/z5labs/telemetry/internal/try"
)

// Task is a unit of work run by a [Scope]. The context is the one owned
// by the goroutine executing the task.
type Task func(context.Context) error

// Thread describes a pool worker.
type Thread struct {
	Index int
	Name  string
}

type threadKey struct{}

type ownerKey struct{}

type owner struct {
	pool   *Pool
	worker *worker
}

// ThreadFromContext returns the worker which owns ctx. It reports false
// for contexts not owned by a pool worker.
func ThreadFromContext(ctx context.Context) (Thread, bool) {
	th, ok := ctx.Value(threadKey{}).(Thread)
	return th, ok
}

// Builder configures a [Pool].
type Builder struct {
	numThreads int
	threadName func(int) string
	onSpawn    func(context.Context) context.Context
	onDestroy  func(context.Context)
}

// NewBuilder returns a Builder for a pool with one worker per CPU.
func NewBuilder() *Builder {
	return &Builder{
		threadName: func(i int) string {
			return fmt.Sprintf("Compute Task Pool (%d)", i)
		},
	}
}

// NumThreads sets the number of workers. Non-positive values select
// [runtime.GOMAXPROCS].
func (b *Builder) NumThreads(n int) *Builder {
	b.numThreads = n
	return b
}

// ThreadName sets the function naming the i-th worker.
func (b *Builder) ThreadName(f func(i int) string) *Builder {
	if f != nil {
		b.threadName = f
	}
	return b
}

// OnThreadSpawn sets a hook run on every worker goroutine before it
// accepts work. The returned context is owned by the worker.
func (b *Builder) OnThreadSpawn(f func(context.Context) context.Context) *Builder {
	b.onSpawn = f
	return b
}

// OnThreadDestroy sets a hook run on every worker goroutine right before
// it exits.
func (b *Builder) OnThreadDestroy(f func(context.Context)) *Builder {
	b.onDestroy = f
	return b
}

// Build starts the workers. It returns once every spawn hook has run.
func (b *Builder) Build() *Pool {
	n := b.numThreads
	if n <= 0 {
		n = runtime.GOMAXPROCS(0)
	}

	p := &Pool{
		jobs:      make(chan *Scope, 256*n),
		quit:      make(chan struct{}),
		onDestroy: b.onDestroy,
		workers:   make([]*worker, n),
	}

	var ready sync.WaitGroup
	for i := range n {
		w := &worker{
			thread: Thread{Index: i, Name: b.threadName(i)},
			ctl:    make(chan func(context.Context)),
		}
		p.workers[i] = w

		ready.Add(1)
		p.running.Add(1)
		go p.run(w, b.onSpawn, ready.Done)
	}
	ready.Wait()
	return p
}

type worker struct {
	thread Thread
	ctl    chan func(context.Context)
}

// Pool is a fixed set of worker goroutines.
type Pool struct {
	jobs      chan *Scope
	quit      chan struct{}
	closeOnce sync.Once
	running   sync.WaitGroup
	onDestroy func(context.Context)
	workers   []*worker
}

func (p *Pool) run(w *worker, onSpawn func(context.Context) context.Context, ready func()) {
	defer p.running.Done()

	ctx := context.WithValue(context.Background(), threadKey{}, w.thread)
	ctx = context.WithValue(ctx, ownerKey{}, owner{pool: p, worker: w})
	if onSpawn != nil {
		ctx = onSpawn(ctx)
	}
	ready()

	defer func() {
		if p.onDestroy != nil {
			p.onDestroy(ctx)
		}
	}()

	for {
		select {
		case <-p.quit:
			return
		case f := <-w.ctl:
			f(ctx)
		case s := <-p.jobs:
			s.runOne(ctx)
		}
	}
}

// ThreadNum returns the number of workers.
func (p *Pool) ThreadNum() int {
	return len(p.workers)
}

// ErrClosed is returned by [Pool.Broadcast] once the pool is closed.
var ErrClosed = errors.New("taskpool: pool is closed")

// Broadcast runs f exactly once on every worker, with the worker's own
// context, and waits for all of them.
//
// If ctx belongs to one of the pool's workers, e.g. when called from a
// task, f runs inline for that worker with ctx, and the worker keeps
// serving other broadcasts while it waits.
func (p *Pool) Broadcast(ctx context.Context, f func(context.Context)) error {
	var self chan func(context.Context)
	if o, ok := ctx.Value(ownerKey{}).(owner); ok && o.pool == p {
		self = o.worker.ctl
	}

	var wg sync.WaitGroup
	for _, w := range p.workers {
		if w.ctl == self {
			f(ctx)
			continue
		}

		wg.Add(1)
		call := func(ctx context.Context) {
			defer wg.Done()
			f(ctx)
		}
	send:
		for {
			select {
			case <-p.quit:
				wg.Done()
				wg.Wait()
				return ErrClosed
			case w.ctl <- call:
				break send
			case g := <-self:
				g(ctx)
			}
		}
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		wg.Wait()
	}()
	for {
		select {
		case <-done:
			return nil
		case g := <-self:
			g(ctx)
		}
	}
}

// Scope runs f, which spawns tasks on s, and waits until every spawned
// task has finished. While waiting the calling goroutine executes queued
// tasks itself, with ctx, so the caller acts as one more worker.
//
// Spawn must only be called from f. Panics raised by tasks are returned
// as errors, joined with the errors returned by tasks.
func (p *Pool) Scope(ctx context.Context, f func(s *Scope)) error {
	s := &Scope{pool: p}
	f(s)

	for {
		t, ok := s.pop()
		if !ok {
			break
		}
		s.run(ctx, t)
	}
	s.wg.Wait()

	s.errMu.Lock()
	defer s.errMu.Unlock()
	return errors.Join(s.errs...)
}

// Close stops every worker, running the destroy hook on each, and waits
// for them to exit. Closing more than once is a no-op.
func (p *Pool) Close() {
	p.closeOnce.Do(func() {
		close(p.quit)
	})
	p.running.Wait()
}

// Scope collects the tasks of a single [Pool.Scope] call.
type Scope struct {
	pool *Pool

	mu    sync.Mutex
	queue []Task
	wg    sync.WaitGroup

	errMu sync.Mutex
	errs  []error
}

// Spawn queues t. Workers and the goroutine which called [Pool.Scope]
// race to execute it.
func (s *Scope) Spawn(t Task) {
	s.wg.Add(1)
	s.mu.Lock()
	s.queue = append(s.queue, t)
	s.mu.Unlock()

	select {
	case <-s.pool.quit:
	case s.pool.jobs <- s:
	default:
		// the caller drains whatever no worker picks up
	}
}

func (s *Scope) pop() (Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return nil, false
	}
	t := s.queue[0]
	s.queue = s.queue[1:]
	return t, true
}

func (s *Scope) runOne(ctx context.Context) {
	t, ok := s.pop()
	if !ok {
		return
	}
	s.run(ctx, t)
}

func (s *Scope) run(ctx context.Context, t Task) {
	defer s.wg.Done()

	var terr error
	err := try.Call(func() {
		terr = t(ctx)
	})
	err = errors.Join(terr, err)
	if err == nil {
		return
	}

	s.errMu.Lock()
	defer s.errMu.Unlock()
	s.errs = append(s.errs, err)
}
