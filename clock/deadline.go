// Package clock implements DeadlineClock: a single re-armable timer
// with Min/Overwrite conflict policies, used by the producer to
// schedule Trigger::Interval block production. The timer mechanics
// follow the teacher's own use of time.Timer/time.AfterFunc for the
// block-sealing interrupt clock in miner/worker.go.
package clock

import (
	"context"
	"sync"
	"time"
)

// ConflictPolicy decides what happens when Arm is called while a
// deadline is already pending.
type ConflictPolicy int

const (
	// Min keeps the earlier of the current and newly requested
	// deadlines. Interval re-arms use this so a manual burst can't
	// perpetually delay production.
	Min ConflictPolicy = iota
	// Overwrite always replaces the pending deadline. Manual re-arms
	// use this.
	Overwrite
)

// DeadlineClock holds at most one pending deadline. Wait blocks until
// that deadline elapses or the context is cancelled; a concurrent Arm
// call with a shorter deadline wakes an in-progress Wait early.
type DeadlineClock struct {
	mu       sync.Mutex
	deadline time.Time
	pending  bool // true from Arm until the armed deadline actually fires
	timer    *time.Timer
	fired    chan struct{}
	rearmed  chan struct{}
}

// New constructs a DeadlineClock with no pending deadline.
func New() *DeadlineClock {
	return &DeadlineClock{
		fired:   make(chan struct{}),
		rearmed: make(chan struct{}),
	}
}

// Arm schedules (or reschedules, per policy) the deadline to fire at t.
// Re-arm cancellation is lossless: the previous timer is stopped and
// its resources released without ever firing spuriously.
func (c *DeadlineClock) Arm(t time.Time, policy ConflictPolicy) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.pending {
		if policy == Min && !t.Before(c.deadline) {
			return // existing pending deadline is already earlier or equal
		}
		c.timer.Stop()
	}

	c.deadline = t
	c.pending = true
	fired := make(chan struct{})
	c.fired = fired
	d := time.Until(t)
	if d < 0 {
		d = 0
	}
	c.timer = time.AfterFunc(d, func() {
		c.mu.Lock()
		if c.fired == fired {
			c.pending = false
		}
		c.mu.Unlock()
		close(fired)
	})

	close(c.rearmed)
	c.rearmed = make(chan struct{})
}

// Wait blocks until the pending deadline fires or ctx is cancelled. If
// no deadline has ever been armed, it blocks until ctx is cancelled. A
// concurrent Arm call wakes Wait so it can re-evaluate the new
// deadline instead of waiting out a stale one.
func (c *DeadlineClock) Wait(ctx context.Context) error {
	for {
		c.mu.Lock()
		fired := c.fired
		rearmed := c.rearmed
		c.mu.Unlock()

		select {
		case <-fired:
			return nil
		case <-rearmed:
			continue
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Chan returns a channel that receives exactly once, when Wait(ctx)
// would return (deadline reached or ctx cancelled). It spawns one
// helper goroutine per call; callers driving a cooperative select loop
// (BlockProducerLoop's main select) call this once per iteration and
// select on the result alongside other event sources.
func (c *DeadlineClock) Chan(ctx context.Context) <-chan error {
	ch := make(chan error, 1)
	go func() { ch <- c.Wait(ctx) }()
	return ch
}

// Deadline returns the currently armed deadline and whether it is still
// pending (armed but not yet fired).
func (c *DeadlineClock) Deadline() (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.deadline, c.pending
}

// Stop cancels any pending deadline.
func (c *DeadlineClock) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.pending = false
}
