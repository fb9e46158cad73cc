// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"
)

// sendQueueSize bounds the number of messages waiting to be written
// on one link. Pointer traffic runs at 20 Hz per peer, so a full
// queue means the peer is stalled, not busy.
const sendQueueSize = 256

// messageConn is a connection that preserves message boundaries.
// Implemented by framedConn (TCP) and dataChannelConn (WebRTC).
type messageConn interface {
	ReadMessage() ([]byte, error)
	WriteMessage(message []byte) error
	Close() error
}

// streamLink adapts a messageConn into a Link with a read loop that
// emits events and a write loop that drains a bounded send queue.
type streamLink struct {
	peer   string
	conn   messageConn
	events *eventQueue
	logger *slog.Logger

	outbound  chan []byte
	closed    chan struct{}
	closeOnce sync.Once
}

// openStreamLink emits EventOpened for the link and starts its loops.
// The read loop starts after the open event is queued, so no message
// can overtake it.
func openStreamLink(peer string, conn messageConn, inbound bool, events *eventQueue, logger *slog.Logger) *streamLink {
	link := &streamLink{
		peer:     peer,
		conn:     conn,
		events:   events,
		logger:   logger,
		outbound: make(chan []byte, sendQueueSize),
		closed:   make(chan struct{}),
	}
	events.push(Event{Kind: EventOpened, Link: link, Inbound: inbound})
	go link.readLoop()
	go link.writeLoop()
	return link
}

func (l *streamLink) Peer() string { return l.peer }

func (l *streamLink) Send(message []byte) error {
	select {
	case <-l.closed:
		return net.ErrClosed
	default:
	}
	select {
	case l.outbound <- message:
		return nil
	default:
		return ErrSendQueueFull
	}
}

func (l *streamLink) Close() error {
	l.shutdown(nil)
	return nil
}

// shutdown closes the link once. A non-nil cause is reported as
// EventError ahead of EventClosed.
func (l *streamLink) shutdown(cause error) {
	l.closeOnce.Do(func() {
		close(l.closed)
		l.conn.Close()
		if cause != nil {
			l.logger.Warn("peer link failed", "peer", l.peer, "error", cause)
			l.events.push(Event{Kind: EventError, Link: l, Err: cause})
		}
		l.events.push(Event{Kind: EventClosed, Link: l})
	})
}

func (l *streamLink) readLoop() {
	for {
		message, err := l.conn.ReadMessage()
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
				l.shutdown(nil)
			} else {
				l.shutdown(err)
			}
			return
		}
		l.events.push(Event{Kind: EventMessage, Link: l, Data: message})
	}
}

func (l *streamLink) writeLoop() {
	for {
		select {
		case message := <-l.outbound:
			if err := l.conn.WriteMessage(message); err != nil {
				l.shutdown(err)
				return
			}
		case <-l.closed:
			return
		}
	}
}
