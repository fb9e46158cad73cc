// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package signaling

import (
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/bureau-foundation/tabletop/lib/clock"
)

// mailboxLimit bounds the messages held for one disconnected peer.
const mailboxLimit = 64

// Hub relays signaling messages between connected peers.
type Hub struct {
	clock    clock.Clock
	logger   *slog.Logger
	upgrader websocket.Upgrader

	mu        sync.Mutex
	clients   map[string]*client
	mailboxes map[string][]Message
}

// NewHub returns an empty hub.
func NewHub(clk clock.Clock, logger *slog.Logger) *Hub {
	return &Hub{
		clock:  clk,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Peers are native processes, not browsers; there is no
			// origin to check.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		clients:   make(map[string]*client),
		mailboxes: make(map[string][]Message),
	}
}

// ServeHTTP upgrades the request to a WebSocket and registers the
// peer named by the "id" query parameter. A second connection with
// the same id replaces the first.
func (h *Hub) ServeHTTP(writer http.ResponseWriter, request *http.Request) {
	peerID := request.URL.Query().Get("id")
	if peerID == "" {
		http.Error(writer, "missing id query parameter", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(writer, request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "peer", peerID, "error", err)
		return
	}

	c := newClient(h, peerID, conn)
	h.register(c)
	go c.writePump()
	go c.readPump()
}

// Peers returns the ids of connected peers, sorted.
func (h *Hub) Peers() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	peers := make([]string, 0, len(h.clients))
	for id := range h.clients {
		peers = append(peers, id)
	}
	sort.Strings(peers)
	return peers
}

// Close disconnects every peer.
func (h *Hub) Close() {
	h.mu.Lock()
	clients := make([]*client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		c.close()
	}
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	previous := h.clients[c.id]
	h.clients[c.id] = c
	pending := h.mailboxes[c.id]
	delete(h.mailboxes, c.id)
	h.mu.Unlock()

	if previous != nil {
		h.logger.Info("signaling peer reconnected, replacing old socket", "peer", c.id)
		previous.close()
	}
	h.logger.Info("signaling peer connected", "peer", c.id, "pending", len(pending))

	for _, message := range pending {
		c.send(message)
	}
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[c.id] == c {
		delete(h.clients, c.id)
		h.logger.Info("signaling peer disconnected", "peer", c.id)
	}
}

// route stamps and forwards message from sender.
func (h *Hub) route(sender *client, message Message) {
	message.From = sender.id
	message.Timestamp = h.clock.Now().UTC().Format(time.RFC3339Nano)

	if message.Type != TypeOffer && message.Type != TypeAnswer {
		sender.send(Message{Type: TypeError, To: sender.id, Error: "unknown message type " + message.Type})
		return
	}
	if message.To == "" || message.To == sender.id {
		sender.send(Message{Type: TypeError, To: sender.id, Error: "invalid recipient"})
		return
	}

	h.mu.Lock()
	target, online := h.clients[message.To]
	if !online {
		h.mailboxes[message.To] = appendMailbox(h.mailboxes[message.To], message)
	}
	h.mu.Unlock()

	if online {
		target.send(message)
		h.logger.Debug("relayed signal", "type", message.Type, "from", message.From, "to", message.To)
		return
	}
	h.logger.Debug("held signal for offline peer", "type", message.Type, "from", message.From, "to", message.To)
}

// appendMailbox keeps only the latest message per (type, sender) and
// at most mailboxLimit messages.
func appendMailbox(mailbox []Message, message Message) []Message {
	kept := mailbox[:0]
	for _, existing := range mailbox {
		if existing.Type == message.Type && existing.From == message.From {
			continue
		}
		kept = append(kept, existing)
	}
	kept = append(kept, message)
	if len(kept) > mailboxLimit {
		kept = kept[len(kept)-mailboxLimit:]
	}
	return kept
}
