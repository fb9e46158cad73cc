// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"sort"
	"sync"
	"time"
)

// Fake returns a FakeClock frozen at initial. Time moves only when
// Advance is called; timers and tickers fire during Advance.
func Fake(initial time.Time) *FakeClock {
	clock := &FakeClock{current: initial}
	clock.changed = sync.NewCond(&clock.mu)
	return clock
}

// FakeClock is a deterministic Clock for tests. It is safe for
// concurrent use.
//
// AfterFunc callbacks run synchronously inside Advance, in deadline
// order. A callback must not call Advance.
type FakeClock struct {
	mu      sync.Mutex
	current time.Time
	pending []*scheduled
	changed *sync.Cond
}

// scheduled is one registered After, AfterFunc, or ticker.
type scheduled struct {
	deadline time.Time
	channel  chan time.Time // nil for AfterFunc
	callback func()         // nil unless AfterFunc
	interval time.Duration  // non-zero for tickers
	stopped  bool
	fired    bool
}

// Now returns the current fake time.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// After returns a channel that receives once the clock has advanced
// by d.
func (c *FakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	channel := make(chan time.Time, 1)
	if d <= 0 {
		channel <- c.current
		return channel
	}
	c.addLocked(&scheduled{deadline: c.current.Add(d), channel: channel})
	return channel
}

// AfterFunc schedules f to run during the Advance that crosses d. If
// d <= 0, f runs before AfterFunc returns.
func (c *FakeClock) AfterFunc(d time.Duration, f func()) *Timer {
	if d <= 0 {
		f()
		return &Timer{stop: func() bool { return false }}
	}

	c.mu.Lock()
	entry := &scheduled{deadline: c.current.Add(d), callback: f}
	c.addLocked(entry)
	c.mu.Unlock()

	return &Timer{stop: func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		if entry.stopped || entry.fired {
			return false
		}
		entry.stopped = true
		return true
	}}
}

// NewTicker returns a Ticker that fires every d of advanced time.
func (c *FakeClock) NewTicker(d time.Duration) *Ticker {
	if d <= 0 {
		panic("clock: non-positive interval for NewTicker")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	channel := make(chan time.Time, 1)
	entry := &scheduled{deadline: c.current.Add(d), channel: channel, interval: d}
	c.addLocked(entry)

	return &Ticker{
		C: channel,
		stop: func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			entry.stopped = true
		},
		reset: func(d time.Duration) {
			c.mu.Lock()
			defer c.mu.Unlock()
			entry.interval = d
			entry.deadline = c.current.Add(d)
			entry.stopped = false
			for _, existing := range c.pending {
				if existing == entry {
					c.changed.Broadcast()
					return
				}
			}
			c.addLocked(entry)
		},
	}
}

// Advance moves the clock forward by d and fires everything whose
// deadline is now due, earliest first. A ticker whose interval is
// crossed several times fires once per crossing; sends that find the
// channel full are dropped, as with time.Ticker.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.current = c.current.Add(d)
	target := c.current
	c.mu.Unlock()

	for {
		due := c.takeDue(target)
		if len(due) == 0 {
			return
		}
		for _, entry := range due {
			if entry.callback != nil {
				entry.callback()
				continue
			}
			select {
			case entry.channel <- target:
			default:
			}
		}
	}
}

// takeDue removes due entries from the pending list, reschedules
// tickers, and returns the due entries in deadline order.
func (c *FakeClock) takeDue(target time.Time) []*scheduled {
	c.mu.Lock()
	defer c.mu.Unlock()

	var due, remaining []*scheduled
	for _, entry := range c.pending {
		switch {
		case entry.stopped:
		case entry.deadline.After(target):
			remaining = append(remaining, entry)
		default:
			due = append(due, entry)
		}
	}
	sort.SliceStable(due, func(i, j int) bool {
		return due[i].deadline.Before(due[j].deadline)
	})
	for _, entry := range due {
		if entry.interval > 0 {
			entry.deadline = entry.deadline.Add(entry.interval)
			remaining = append(remaining, entry)
		} else {
			entry.fired = true
		}
	}
	c.pending = remaining
	return due
}

// WaitForTimers blocks until at least n timers or tickers are
// pending. Tests call it after starting a goroutine that registers a
// ticker, so that the following Advance is guaranteed to reach it.
func (c *FakeClock) WaitForTimers(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for c.countLocked() < n {
		c.changed.Wait()
	}
}

// PendingCount returns the number of active timers and tickers.
func (c *FakeClock) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.countLocked()
}

func (c *FakeClock) addLocked(entry *scheduled) {
	c.pending = append(c.pending, entry)
	c.changed.Broadcast()
}

func (c *FakeClock) countLocked() int {
	count := 0
	for _, entry := range c.pending {
		if !entry.stopped {
			count++
		}
	}
	return count
}
