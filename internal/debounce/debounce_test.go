// SPDX-License-Identifier: MIT

package debounce

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLeadingEdgeFiresImmediately(t *testing.T) {
	clock := clockwork.NewFakeClock()
	var calls atomic.Int32
	d := NewWithClock(1500*time.Millisecond, func() { calls.Add(1) }, clock)

	d.Trigger()
	assert.Equal(t, int32(1), calls.Load())
}

func TestBurstCoalescesToOneTrailingCall(t *testing.T) {
	clock := clockwork.NewFakeClock()
	var mu sync.Mutex
	var calls int
	var last string
	value := "a"
	d := NewWithClock(1500*time.Millisecond, func() {
		mu.Lock()
		calls++
		last = value
		mu.Unlock()
	}, clock)

	d.Trigger() // leading edge
	value = "b"
	d.Trigger()
	value = "c"
	d.Trigger()

	mu.Lock()
	require.Equal(t, 1, calls, "burst must not fire more than the leading call")
	mu.Unlock()

	clock.Advance(1500 * time.Millisecond)

	// AfterFunc runs on its own goroutine; give it a moment.
	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return calls == 2 && last == "c"
	}, time.Second, 5*time.Millisecond, "trailing call must fire once with the latest value")
}

func TestQuietPeriodAllowsNextLeadingCall(t *testing.T) {
	clock := clockwork.NewFakeClock()
	var calls atomic.Int32
	d := NewWithClock(1500*time.Millisecond, func() { calls.Add(1) }, clock)

	d.Trigger()
	clock.Advance(2 * time.Second)
	d.Trigger()
	assert.Equal(t, int32(2), calls.Load())
}

func TestFlushFiresPendingImmediately(t *testing.T) {
	clock := clockwork.NewFakeClock()
	var calls atomic.Int32
	d := NewWithClock(1500*time.Millisecond, func() { calls.Add(1) }, clock)

	d.Trigger() // leading
	d.Trigger() // schedules trailing
	require.Equal(t, int32(1), calls.Load())

	d.Flush()
	assert.Equal(t, int32(2), calls.Load())

	// Nothing left pending afterwards.
	d.Flush()
	assert.Equal(t, int32(2), calls.Load())
}

func TestStopCancelsPending(t *testing.T) {
	clock := clockwork.NewFakeClock()
	var calls atomic.Int32
	d := NewWithClock(1500*time.Millisecond, func() { calls.Add(1) }, clock)

	d.Trigger()
	d.Trigger()
	d.Stop()

	clock.Advance(5 * time.Second)
	assert.Equal(t, int32(1), calls.Load())

	d.Trigger()
	assert.Equal(t, int32(1), calls.Load(), "stopped debouncer must not fire")
}
