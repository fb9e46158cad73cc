// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time abstraction.
//
// Everything in the tabletop that depends on time takes a Clock: the
// session frame loop ticks on Clock.NewTicker, connect timeouts use
// Clock.AfterFunc, the board engine stamps edits with Clock.Now, and
// pointer interpolation computes alpha from Clock.Now. Production
// wires Real(); tests wire Fake() and drive time with Advance.
//
//	c := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	go session.Run(ctx)
//	c.WaitForTimers(1)              // frame ticker registered
//	c.Advance(16 * time.Millisecond) // one display frame
package clock
