// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bureau-foundation/tabletop/lib/clock"
	"github.com/bureau-foundation/tabletop/signaling"
)

func newRelay(t *testing.T) string {
	t.Helper()
	hub := signaling.NewHub(clock.Real(), discardLogger())
	server := httptest.NewServer(hub)
	t.Cleanup(func() {
		hub.Close()
		server.Close()
	})
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func pollUntil(t *testing.T, poll func() ([]SignalMessage, error)) []SignalMessage {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		messages, err := poll()
		if err != nil {
			t.Fatalf("poll: %v", err)
		}
		if len(messages) > 0 {
			return messages
		}
		if time.Now().After(deadline) {
			t.Fatal("timed out polling the relay")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestWebSocketSignaler_OfferAnswer(t *testing.T) {
	ctx := context.Background()
	relay := newRelay(t)

	alice, err := DialWebSocketSignaler(ctx, relay, "alice", discardLogger())
	if err != nil {
		t.Fatalf("alice dial: %v", err)
	}
	defer alice.Close()
	bob, err := DialWebSocketSignaler(ctx, relay, "bob", discardLogger())
	if err != nil {
		t.Fatalf("bob dial: %v", err)
	}
	defer bob.Close()

	if err := alice.PublishOffer(ctx, "alice", "bob", "offer-sdp"); err != nil {
		t.Fatalf("PublishOffer: %v", err)
	}
	offers := pollUntil(t, func() ([]SignalMessage, error) { return bob.PollOffers(ctx, "bob") })
	if len(offers) != 1 || offers[0].PeerID != "alice" || offers[0].SDP != "offer-sdp" {
		t.Fatalf("offers = %+v, want one offer from alice", offers)
	}

	if err := bob.PublishAnswer(ctx, "alice", "bob", "answer-sdp"); err != nil {
		t.Fatalf("PublishAnswer: %v", err)
	}
	answers := pollUntil(t, func() ([]SignalMessage, error) { return alice.PollAnswers(ctx, "alice") })
	if len(answers) != 1 || answers[0].PeerID != "bob" || answers[0].SDP != "answer-sdp" {
		t.Fatalf("answers = %+v, want one answer from bob", answers)
	}
}

func TestWebSocketSignaler_RefusesOtherIdentity(t *testing.T) {
	ctx := context.Background()
	alice, err := DialWebSocketSignaler(ctx, newRelay(t), "alice", discardLogger())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer alice.Close()

	if err := alice.PublishOffer(ctx, "mallory", "bob", "sdp"); err == nil {
		t.Error("published an offer under another peer's id")
	}
	if _, err := alice.PollOffers(ctx, "bob"); err == nil {
		t.Error("polled another peer's offers")
	}
}
