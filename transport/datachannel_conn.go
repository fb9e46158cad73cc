// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"fmt"
	"io"
	"sync"
)

// maxMessageSize bounds one data channel message. Snapshots are
// compressed before sending and stay far below this.
const maxMessageSize = 1 << 20

// dataChannelConn wraps a detached pion data channel. SCTP preserves
// message boundaries, so every Read returns exactly one message as
// written by the remote's Write.
type dataChannelConn struct {
	rwc    io.ReadWriteCloser
	buffer []byte

	closeOnce sync.Once
	closeErr  error
}

func newDataChannelConn(rwc io.ReadWriteCloser) *dataChannelConn {
	return &dataChannelConn{rwc: rwc, buffer: make([]byte, maxMessageSize)}
}

// ReadMessage returns a copy of the next message. Not safe for
// concurrent use; only the link read loop calls it.
func (c *dataChannelConn) ReadMessage() ([]byte, error) {
	n, err := c.rwc.Read(c.buffer)
	if err != nil {
		return nil, err
	}
	message := make([]byte, n)
	copy(message, c.buffer[:n])
	return message, nil
}

func (c *dataChannelConn) WriteMessage(message []byte) error {
	if len(message) > maxMessageSize {
		return fmt.Errorf("message of %d bytes exceeds the %d byte limit", len(message), maxMessageSize)
	}
	_, err := c.rwc.Write(message)
	return err
}

func (c *dataChannelConn) Read(buffer []byte) (int, error)  { return c.rwc.Read(buffer) }
func (c *dataChannelConn) Write(buffer []byte) (int, error) { return c.rwc.Write(buffer) }

func (c *dataChannelConn) Close() error {
	c.closeOnce.Do(func() { c.closeErr = c.rwc.Close() })
	return c.closeErr
}
