// SPDX-License-Identifier: MIT

// Package debounce coalesces bursts of triggers into rate-limited callback
// invocations. The callback reads its payload from enclosing state, so the
// last trigger of a burst always wins.
package debounce

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Debouncer invokes fn at most once per interval. The first trigger after a
// quiet period fires immediately; triggers inside the interval are coalesced
// into one trailing invocation.
type Debouncer struct {
	interval time.Duration
	fn       func()
	clock    clockwork.Clock

	mu       sync.Mutex
	timer    clockwork.Timer
	lastFire time.Time
	stopped  bool
}

// New creates a debouncer with the real clock.
func New(interval time.Duration, fn func()) *Debouncer {
	return NewWithClock(interval, fn, clockwork.NewRealClock())
}

// NewWithClock creates a debouncer driven by the supplied clock.
func NewWithClock(interval time.Duration, fn func(), clock clockwork.Clock) *Debouncer {
	return &Debouncer{
		interval: interval,
		fn:       fn,
		clock:    clock,
	}
}

// Trigger requests an invocation. The leading call of a burst runs fn on the
// caller's goroutine; coalesced calls run it on the timer goroutine. Safe for
// concurrent use.
func (d *Debouncer) Trigger() {
	d.mu.Lock()

	if d.stopped {
		d.mu.Unlock()
		return
	}
	if d.timer != nil {
		// A trailing invocation is already scheduled; it will pick up the
		// latest state when it fires.
		d.mu.Unlock()
		return
	}

	now := d.clock.Now()
	elapsed := now.Sub(d.lastFire)
	if elapsed >= d.interval {
		d.lastFire = now
		d.mu.Unlock()
		d.fn()
		return
	}

	d.timer = d.clock.AfterFunc(d.interval-elapsed, func() {
		d.mu.Lock()
		if d.stopped {
			d.mu.Unlock()
			return
		}
		d.timer = nil
		d.lastFire = d.clock.Now()
		d.mu.Unlock()
		d.fn()
	})
	d.mu.Unlock()
}

// Flush fires any pending trailing invocation immediately. Used on shutdown
// so the final state always reaches its writer.
func (d *Debouncer) Flush() {
	d.mu.Lock()
	if d.stopped || d.timer == nil {
		d.mu.Unlock()
		return
	}
	d.timer.Stop()
	d.timer = nil
	d.lastFire = d.clock.Now()
	d.mu.Unlock()
	d.fn()
}

// Stop cancels any pending invocation. The debouncer cannot be reused.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
