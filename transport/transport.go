// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"errors"
	"fmt"
)

// Link is an established, ordered, message-oriented channel to one
// remote peer. Every Send is delivered as exactly one message, or not
// at all.
type Link interface {
	// Peer returns the remote peer identifier.
	Peer() string

	// Send queues message for delivery. It never blocks on the
	// network. Returns net.ErrClosed if the link is closed and
	// ErrSendQueueFull if the peer is not keeping up.
	Send(message []byte) error

	// Close tears the link down. The transport emits EventClosed for
	// it exactly once.
	Close() error
}

// EventKind classifies a transport Event.
type EventKind int

const (
	// EventOpened reports a link that is ready for Send. Emitted for
	// both inbound and outbound links, always before any EventMessage
	// on that link.
	EventOpened EventKind = iota + 1

	// EventMessage carries one inbound message.
	EventMessage

	// EventClosed reports that a link has been torn down.
	EventClosed

	// EventError reports a link-level failure. A link that fails
	// also reports EventClosed; consumers must tolerate the two in
	// either order.
	EventError
)

func (kind EventKind) String() string {
	switch kind {
	case EventOpened:
		return "opened"
	case EventMessage:
		return "message"
	case EventClosed:
		return "closed"
	case EventError:
		return "error"
	default:
		return fmt.Sprintf("EventKind(%d)", int(kind))
	}
}

// Event is delivered on a transport's Events channel. All events of
// one transport share a single channel, so per-link ordering holds.
type Event struct {
	Kind EventKind

	// Link is the link the event concerns. Compare links by identity
	// to tell a replaced link apart from its successor.
	Link Link

	// Inbound is set on EventOpened when the remote peer initiated.
	Inbound bool

	// Data is the message body for EventMessage.
	Data []byte

	// Err is the failure for EventError.
	Err error
}

// ErrSendQueueFull is returned by Link.Send when the outbound queue
// is full. The message is dropped.
var ErrSendQueueFull = errors.New("transport: send queue full")

// ErrUnknownPeer is returned by Dial when the transport has no way to
// reach the requested peer.
var ErrUnknownPeer = errors.New("transport: unknown peer")

// ErrRejected is returned by Dial when the remote peer refused the
// link (wrong target, protocol revision, or password).
var ErrRejected = errors.New("transport: link rejected")
