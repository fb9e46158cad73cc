// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"errors"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/bureau-foundation/tabletop/lib/testutil"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestStreamLink_OpenedBeforeMessages(t *testing.T) {
	left, right := newMessagePipePair()
	leftEvents, rightEvents := newEventQueue(), newEventQueue()
	defer leftEvents.close()
	defer rightEvents.close()

	sender := openStreamLink("bob", newDataChannelConn(left), false, leftEvents, discardLogger())
	receiver := openStreamLink("alice", newDataChannelConn(right), true, rightEvents, discardLogger())

	if err := sender.Send([]byte("hello")); err != nil {
		t.Fatalf("Send: %v", err)
	}

	opened := testutil.RequireReceive(t, rightEvents.channel(), 5*time.Second, "open event")
	if opened.Kind != EventOpened || !opened.Inbound || opened.Link != Link(receiver) {
		t.Fatalf("first event = %+v, want inbound open of receiver", opened)
	}
	message := testutil.RequireReceive(t, rightEvents.channel(), 5*time.Second, "message event")
	if message.Kind != EventMessage || string(message.Data) != "hello" {
		t.Fatalf("second event = %v %q, want message hello", message.Kind, message.Data)
	}
	if message.Link.Peer() != "alice" {
		t.Errorf("message link peer = %q, want alice", message.Link.Peer())
	}
}

func TestStreamLink_CloseEmitsOnce(t *testing.T) {
	left, _ := newMessagePipePair()
	events := newEventQueue()
	defer events.close()

	link := openStreamLink("bob", newDataChannelConn(left), false, events, discardLogger())
	testutil.RequireReceive(t, events.channel(), 5*time.Second, "open event")

	link.Close()
	link.Close()

	closed := testutil.RequireReceive(t, events.channel(), 5*time.Second, "close event")
	if closed.Kind != EventClosed {
		t.Fatalf("event = %v, want closed", closed.Kind)
	}
	testutil.RequireNoReceive(t, events.channel(), 100*time.Millisecond, "duplicate close event")

	if err := link.Send([]byte("late")); !errors.Is(err, net.ErrClosed) {
		t.Errorf("Send after Close = %v, want net.ErrClosed", err)
	}
}

func TestStreamLink_RemoteCloseReportsClosed(t *testing.T) {
	left, right := newMessagePipePair()
	events := newEventQueue()
	defer events.close()

	openStreamLink("bob", newDataChannelConn(left), false, events, discardLogger())
	testutil.RequireReceive(t, events.channel(), 5*time.Second, "open event")

	right.Close()

	event := testutil.RequireReceive(t, events.channel(), 5*time.Second, "close event")
	if event.Kind != EventClosed {
		t.Fatalf("event = %v, want closed after clean EOF", event.Kind)
	}
}

type failingConn struct{ err error }

func (c failingConn) ReadMessage() ([]byte, error) { return nil, c.err }
func (c failingConn) WriteMessage([]byte) error    { return c.err }
func (c failingConn) Close() error                 { return nil }

func TestStreamLink_FailureReportsErrorThenClosed(t *testing.T) {
	events := newEventQueue()
	defer events.close()

	cause := errors.New("sctp association aborted")
	openStreamLink("bob", failingConn{err: cause}, false, events, discardLogger())

	testutil.RequireReceive(t, events.channel(), 5*time.Second, "open event")
	failure := testutil.RequireReceive(t, events.channel(), 5*time.Second, "error event")
	if failure.Kind != EventError || !errors.Is(failure.Err, cause) {
		t.Fatalf("event = %v (%v), want error wrapping cause", failure.Kind, failure.Err)
	}
	closed := testutil.RequireReceive(t, events.channel(), 5*time.Second, "close event")
	if closed.Kind != EventClosed {
		t.Fatalf("event = %v, want closed", closed.Kind)
	}
}

func TestFramedConn_RoundTrip(t *testing.T) {
	clientSide, serverSide := net.Pipe()
	client := newFramedConn(clientSide)
	server := newFramedConn(serverSide)
	defer client.Close()
	defer server.Close()

	go func() {
		client.WriteMessage([]byte("frame one"))
		client.Write([]byte("frame two"))
	}()

	first, err := server.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	if string(first) != "frame one" {
		t.Errorf("first = %q, want %q", first, "frame one")
	}

	buffer := make([]byte, 64)
	n, err := server.Read(buffer)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(buffer[:n]) != "frame two" {
		t.Errorf("second = %q, want %q", buffer[:n], "frame two")
	}
}
