// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import "time"

// Clock abstracts the time operations used by the session frame loop,
// pointer interpolation, and last-write-wins stamping. Production
// code injects Real(); tests inject Fake() and step time explicitly.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// After returns a channel that receives the current time once d
	// has elapsed. If d <= 0 the channel receives immediately.
	After(d time.Duration) <-chan time.Time

	// AfterFunc calls f once d has elapsed. The returned Timer can
	// cancel the call. The Timer's C field is nil.
	AfterFunc(d time.Duration, f func()) *Timer

	// NewTicker returns a Ticker delivering ticks every d. Panics if
	// d <= 0.
	NewTicker(d time.Duration) *Ticker
}

// Ticker delivers periodic ticks on C. The channel has capacity 1: a
// consumer that falls behind loses ticks rather than queueing them,
// which is what a frame loop wants.
type Ticker struct {
	C <-chan time.Time

	stop  func()
	reset func(time.Duration)
}

// Stop turns off the ticker. Stop does not close C.
func (t *Ticker) Stop() { t.stop() }

// Reset changes the interval and restarts the cycle from now.
func (t *Ticker) Reset(d time.Duration) { t.reset(d) }

// Timer is a pending AfterFunc call.
type Timer struct {
	// C is nil for AfterFunc timers.
	C <-chan time.Time

	stop func() bool
}

// Stop prevents the call from happening. Returns false if it already
// happened or was already stopped.
func (t *Timer) Stop() bool { return t.stop() }
