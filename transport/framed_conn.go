// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"io"
	"net"
	"sync"

	"github.com/bureau-foundation/tabletop/lib/codec"
)

// framedConn carries messages over a byte stream as a CBOR sequence
// of byte strings. It also implements io.ReadWriter with one message
// per call, which is the shape runPeerAuth expects of a data channel.
type framedConn struct {
	conn    net.Conn
	decoder *codec.Decoder

	writeMu sync.Mutex
	encoder *codec.Encoder
}

func newFramedConn(conn net.Conn) *framedConn {
	return &framedConn{
		conn:    conn,
		decoder: codec.NewDecoder(conn),
		encoder: codec.NewEncoder(conn),
	}
}

func (c *framedConn) ReadMessage() ([]byte, error) {
	var frame []byte
	if err := c.decoder.Decode(&frame); err != nil {
		return nil, err
	}
	return frame, nil
}

func (c *framedConn) WriteMessage(message []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.encoder.Encode(message)
}

// Read reads exactly one message into buffer.
func (c *framedConn) Read(buffer []byte) (int, error) {
	frame, err := c.ReadMessage()
	if err != nil {
		return 0, err
	}
	if len(frame) > len(buffer) {
		return 0, io.ErrShortBuffer
	}
	return copy(buffer, frame), nil
}

// Write sends buffer as one message.
func (c *framedConn) Write(buffer []byte) (int, error) {
	if err := c.WriteMessage(buffer); err != nil {
		return 0, err
	}
	return len(buffer), nil
}

func (c *framedConn) Close() error { return c.conn.Close() }
