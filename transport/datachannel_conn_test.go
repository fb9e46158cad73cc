// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"bytes"
	"io"
	"net"
	"sync"
	"testing"
)

// messagePipe is one end of an in-process, boundary-preserving
// duplex, standing in for a detached data channel.
type messagePipe struct {
	incoming <-chan []byte
	outgoing chan<- []byte
	done     chan struct{}
	peerDone chan struct{}
	once     *sync.Once
}

func newMessagePipePair() (*messagePipe, *messagePipe) {
	aToB := make(chan []byte, 16)
	bToA := make(chan []byte, 16)
	done := make(chan struct{})
	once := &sync.Once{}
	a := &messagePipe{incoming: bToA, outgoing: aToB, done: done, once: once}
	b := &messagePipe{incoming: aToB, outgoing: bToA, done: done, once: once}
	return a, b
}

func (p *messagePipe) Read(buffer []byte) (int, error) {
	select {
	case message := <-p.incoming:
		if len(message) > len(buffer) {
			return 0, io.ErrShortBuffer
		}
		return copy(buffer, message), nil
	case <-p.done:
		return 0, io.EOF
	}
}

func (p *messagePipe) Write(buffer []byte) (int, error) {
	message := append([]byte(nil), buffer...)
	select {
	case p.outgoing <- message:
		return len(buffer), nil
	case <-p.done:
		return 0, net.ErrClosed
	}
}

func (p *messagePipe) Close() error {
	p.once.Do(func() { close(p.done) })
	return nil
}

func TestDataChannelConn_PreservesBoundaries(t *testing.T) {
	left, right := newMessagePipePair()
	sender := newDataChannelConn(left)
	receiver := newDataChannelConn(right)
	defer sender.Close()
	defer receiver.Close()

	messages := [][]byte{[]byte("one"), []byte("two two"), bytes.Repeat([]byte{7}, 4096)}
	for _, message := range messages {
		if err := sender.WriteMessage(message); err != nil {
			t.Fatalf("WriteMessage: %v", err)
		}
	}
	for i, want := range messages {
		got, err := receiver.ReadMessage()
		if err != nil {
			t.Fatalf("ReadMessage %d: %v", i, err)
		}
		if !bytes.Equal(got, want) {
			t.Errorf("message %d has %d bytes, want %d", i, len(got), len(want))
		}
	}
}

func TestDataChannelConn_ReadMessageCopies(t *testing.T) {
	left, right := newMessagePipePair()
	sender := newDataChannelConn(left)
	receiver := newDataChannelConn(right)

	sender.WriteMessage([]byte("first"))
	sender.WriteMessage([]byte("second"))

	first, _ := receiver.ReadMessage()
	receiver.ReadMessage()
	if string(first) != "first" {
		t.Errorf("first message mutated to %q by a later read", first)
	}
}

func TestDataChannelConn_RejectsOversizedMessage(t *testing.T) {
	left, _ := newMessagePipePair()
	conn := newDataChannelConn(left)
	if err := conn.WriteMessage(make([]byte, maxMessageSize+1)); err == nil {
		t.Fatal("WriteMessage accepted an oversized message")
	}
}

func TestDataChannelConn_CloseIdempotent(t *testing.T) {
	left, _ := newMessagePipePair()
	conn := newDataChannelConn(left)
	if err := conn.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := conn.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}
