// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"errors"
	"fmt"
)

// ErrClosed is returned by Do and reported to pending Connect callbacks
// once Run has returned.
var ErrClosed = errors.New("session: closed")

// ErrConnectTimeout is the cause of a ConnectionError when negotiation
// did not finish within the connect timeout.
var ErrConnectTimeout = errors.New("session: connect timed out")

// errLinkLost is the cause of a ConnectionError when the link closed
// before the dial that created it returned.
var errLinkLost = errors.New("session: link closed while connecting")

// ConnectionError reports a failed outbound connect. It is delivered
// to the Connect callback and never retried.
type ConnectionError struct {
	Peer string
	Err  error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connecting to %s: %v", e.Peer, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// PeerDisconnect reports that a peer's link closed or failed. Err is
// nil for an orderly close.
type PeerDisconnect struct {
	Peer string
	Err  error
}

func (e *PeerDisconnect) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("peer %s disconnected", e.Peer)
	}
	return fmt.Sprintf("peer %s disconnected: %v", e.Peer, e.Err)
}

func (e *PeerDisconnect) Unwrap() error { return e.Err }

// MalformedMessage reports an inbound message that was dropped: it
// did not decode, carried an unknown tag, or a subscriber rejected
// its payload. The link stays open.
type MalformedMessage struct {
	Peer string
	Tag  Tag
	Err  error
}

func (e *MalformedMessage) Error() string {
	if e.Tag == "" {
		return fmt.Sprintf("malformed message from %s: %v", e.Peer, e.Err)
	}
	return fmt.Sprintf("malformed %q message from %s: %v", e.Tag, e.Peer, e.Err)
}

func (e *MalformedMessage) Unwrap() error { return e.Err }
