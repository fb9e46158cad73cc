// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package signaling

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// writeWait is the time allowed to write one frame.
	writeWait = 10 * time.Second

	// pongWait is the time allowed between pongs from the peer.
	pongWait = 60 * time.Second

	// pingPeriod must be shorter than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// maxMessageSize bounds one frame. An SDP with gathered
	// candidates is a few kilobytes.
	maxMessageSize = 64 * 1024

	// sendBufferSize is the per-peer outbound queue.
	sendBufferSize = 32
)

// client is one connected peer.
type client struct {
	hub  *Hub
	id   string
	conn *websocket.Conn

	outbound  chan Message
	done      chan struct{}
	closeOnce sync.Once
}

func newClient(hub *Hub, id string, conn *websocket.Conn) *client {
	return &client{
		hub:      hub,
		id:       id,
		conn:     conn,
		outbound: make(chan Message, sendBufferSize),
		done:     make(chan struct{}),
	}
}

// send queues message. A peer whose queue is full is disconnected;
// it will reconnect and pick up its mailbox.
func (c *client) send(message Message) {
	select {
	case <-c.done:
		return
	default:
	}
	select {
	case c.outbound <- message:
	default:
		c.hub.logger.Warn("signaling send buffer full, disconnecting peer", "peer", c.id)
		c.close()
	}
}

func (c *client) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.conn.Close()
		c.hub.unregister(c)
	})
}

func (c *client) readPump() {
	defer c.close()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(c.hub.clock.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(c.hub.clock.Now().Add(pongWait))
		return nil
	})

	for {
		var message Message
		if err := c.conn.ReadJSON(&message); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("signaling read failed", "peer", c.id, "error", err)
			}
			return
		}
		c.hub.route(c, message)
	}
}

func (c *client) writePump() {
	ticker := c.hub.clock.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case message := <-c.outbound:
			c.conn.SetWriteDeadline(c.hub.clock.Now().Add(writeWait))
			if err := c.conn.WriteJSON(message); err != nil {
				c.hub.logger.Warn("signaling write failed", "peer", c.id, "error", err)
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(c.hub.clock.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}
