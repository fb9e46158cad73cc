// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package session manages one peer's connections to the other players
// at a table.
//
// A [Session] owns the local peer identity and the live set of links,
// keyed by remote peer id. Messages are exchanged as tagged [Envelope]
// values; subscribers register per [Tag] with [Session.OnMessage]. Only
// the tags in the closed set ([TagAction], [TagPointer], [TagSnapshot])
// are accepted: anything else is reported as a [MalformedMessage] and
// dropped without tearing down the link.
//
// All session state is owned by the goroutine running [Session.Run].
// Transport events, posted functions, and display-frame ticks are
// processed there one at a time, so handlers never race each other and
// must not block. Code running outside the loop reaches the session
// through [Session.Do] or [Session.Post]. When Run returns, every link
// is closed and every subscription dropped in one step; no handler runs
// afterwards.
//
// Sends toward a peer without an open link are dropped and counted,
// never queued. A newly connected peer is brought up to date by the
// board snapshot push instead.
package session
