// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package signaling

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/bureau-foundation/tabletop/lib/clock"
)

func newTestHub(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()
	hub := NewHub(clock.Real(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	server := httptest.NewServer(hub)
	t.Cleanup(func() {
		hub.Close()
		server.Close()
	})
	return hub, server
}

func connect(t *testing.T, server *httptest.Server, peerID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/?id=" + peerID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dialing hub as %s: %v", peerID, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var message Message
	if err := conn.ReadJSON(&message); err != nil {
		t.Fatalf("reading message: %v", err)
	}
	return message
}

func waitForPeers(t *testing.T, hub *Hub, want int) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for len(hub.Peers()) != want {
		if time.Now().After(deadline) {
			t.Fatalf("hub has peers %v, want %d", hub.Peers(), want)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHub_RelaysToConnectedPeer(t *testing.T) {
	hub, server := newTestHub(t)
	alice := connect(t, server, "alice")
	bob := connect(t, server, "bob")
	waitForPeers(t, hub, 2)

	if err := alice.WriteJSON(Message{Type: TypeOffer, From: "mallory", To: "bob", SDP: "v=0"}); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}

	got := readMessage(t, bob)
	if got.Type != TypeOffer || got.SDP != "v=0" {
		t.Fatalf("bob received %+v, want the offer", got)
	}
	if got.From != "alice" {
		t.Errorf("From = %q, want hub-stamped alice", got.From)
	}
	if got.Timestamp == "" {
		t.Error("Timestamp not stamped")
	}
}

func TestHub_MailboxFlushesOnConnect(t *testing.T) {
	hub, server := newTestHub(t)
	alice := connect(t, server, "alice")
	waitForPeers(t, hub, 1)

	alice.WriteJSON(Message{Type: TypeOffer, To: "bob", SDP: "stale"})
	alice.WriteJSON(Message{Type: TypeOffer, To: "bob", SDP: "fresh"})

	// Give the hub time to file both offers before bob appears.
	deadline := time.Now().Add(5 * time.Second)
	for {
		hub.mu.Lock()
		filed := len(hub.mailboxes["bob"]) == 1 && hub.mailboxes["bob"][0].SDP == "fresh"
		hub.mu.Unlock()
		if filed {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("offers never reached bob's mailbox")
		}
		time.Sleep(5 * time.Millisecond)
	}

	bob := connect(t, server, "bob")
	got := readMessage(t, bob)
	if got.SDP != "fresh" || got.From != "alice" {
		t.Fatalf("bob received %+v, want only the latest offer from alice", got)
	}
}

func TestHub_RejectsInvalidMessages(t *testing.T) {
	hub, server := newTestHub(t)
	alice := connect(t, server, "alice")
	waitForPeers(t, hub, 1)

	alice.WriteJSON(Message{Type: "chat", To: "bob"})
	if got := readMessage(t, alice); got.Type != TypeError {
		t.Errorf("unknown type reply = %+v, want error", got)
	}

	alice.WriteJSON(Message{Type: TypeOffer, To: "alice"})
	if got := readMessage(t, alice); got.Type != TypeError {
		t.Errorf("self-addressed reply = %+v, want error", got)
	}
}

func TestHub_RequiresID(t *testing.T) {
	_, server := newTestHub(t)
	response, err := http.Get(server.URL + "/")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	response.Body.Close()
	if response.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", response.StatusCode)
	}
}

func TestAppendMailbox_KeepsLatestPerSender(t *testing.T) {
	var mailbox []Message
	mailbox = appendMailbox(mailbox, Message{Type: TypeOffer, From: "alice", SDP: "1"})
	mailbox = appendMailbox(mailbox, Message{Type: TypeAnswer, From: "alice", SDP: "2"})
	mailbox = appendMailbox(mailbox, Message{Type: TypeOffer, From: "carol", SDP: "3"})
	mailbox = appendMailbox(mailbox, Message{Type: TypeOffer, From: "alice", SDP: "4"})

	if len(mailbox) != 3 {
		t.Fatalf("mailbox has %d messages, want 3", len(mailbox))
	}
	if last := mailbox[len(mailbox)-1]; last.SDP != "4" {
		t.Errorf("last message = %+v, want the replacement offer", last)
	}
	for _, message := range mailbox {
		if message.SDP == "1" {
			t.Error("superseded offer still in mailbox")
		}
	}
}
