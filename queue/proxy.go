// Package queue implements the single-goroutine task-queue proxy
// pattern described in spec §5: each cooperating context (network,
// media, manager) owns its state exclusively and every cross-context
// call is marshalled onto the owner's queue as a posted function,
// rather than accessed directly from another goroutine.
//
// This replaces the reference implementation's per-thread
// ThreadLocalObject wrapper (see original_source/tgcalls/Manager.h)
// with plain Go concurrency primitives, per spec §9's design note:
// "Reimplement as a task queue per context plus typed proxies that
// post method invocations."
package queue

import (
	"sync"
	"time"
)

// Context runs an unbounded FIFO of posted tasks on a single
// goroutine. Within a context, tasks execute to completion without
// preemption, so no lock is needed on data a Context exclusively owns
// (spec §5).
type Context struct {
	mu      sync.Mutex
	cond    *sync.Cond
	tasks   []func()
	closed  bool
	done    chan struct{}
	started bool
}

// NewContext creates a Context and starts its run loop goroutine.
func NewContext() *Context {
	c := &Context{done: make(chan struct{})}
	c.cond = sync.NewCond(&c.mu)
	c.started = true
	go c.run()
	return c
}

func (c *Context) run() {
	defer close(c.done)
	for {
		c.mu.Lock()
		for len(c.tasks) == 0 && !c.closed {
			c.cond.Wait()
		}
		if c.closed && len(c.tasks) == 0 {
			c.mu.Unlock()
			return
		}
		task := c.tasks[0]
		c.tasks = c.tasks[1:]
		c.mu.Unlock()

		task()
	}
}

// Post enqueues fn to run on this context's goroutine. Post never
// blocks the caller. Posting after Close has completed is a no-op,
// matching spec §5's "callbacks registered by the embedder must not
// be invoked after Manager destruction completes."
func (c *Context) Post(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.tasks = append(c.tasks, fn)
	c.cond.Signal()
}

// PostDelayed posts fn onto this context after delay elapses (spec
// §5: "a helper posts (delayMs, cause) into the network context").
// Posting still goes through Post, so a delayed task queued before
// Close is a no-op once Close has completed. Spurious extra firings
// are safe as long as fn itself tolerates re-evaluation, per spec §5's
// "spurious wakeups are tolerated."
func (c *Context) PostDelayed(delay time.Duration, fn func()) {
	time.AfterFunc(delay, func() { c.Post(fn) })
}

// Call posts fn and blocks until it has run, returning its result.
// Used sparingly — most cross-context interactions in this module are
// fire-and-forget Post calls, per spec §5's "asynchronous messages
// posted to the destination queue."
func Call[T any](c *Context, fn func() T) T {
	result := make(chan T, 1)
	c.Post(func() {
		result <- fn()
	})
	return <-result
}

// Drain blocks until every task queued before Drain was called has
// run. Used during teardown to implement spec §5's "drains pending
// tasks before releasing owned resources."
func (c *Context) Drain() {
	done := make(chan struct{})
	c.Post(func() { close(done) })
	<-done
}

// Close stops accepting new tasks and waits for the run loop to
// finish draining what was already queued.
func (c *Context) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.cond.Signal()
	c.mu.Unlock()
	<-c.done
}
