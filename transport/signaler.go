// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"strings"
)

// Signaler abstracts how WebRTC session descriptions reach the other
// peer. Production uses a WebSocket relay (see package signaling);
// tests use MemorySignaler.
//
// The signaling model is vanilla ICE: all candidates are gathered
// before the SDP is published, so establishing a connection takes
// exactly one offer and one answer.
type Signaler interface {
	// PublishOffer publishes a complete SDP offer from peerID to
	// targetID.
	PublishOffer(ctx context.Context, peerID, targetID, sdp string) error

	// PublishAnswer publishes a complete SDP answer from peerID to
	// offererID's earlier offer.
	PublishAnswer(ctx context.Context, offererID, peerID, sdp string) error

	// PollOffers returns offers addressed to peerID that have not been
	// returned before.
	PollOffers(ctx context.Context, peerID string) ([]SignalMessage, error)

	// PollAnswers returns answers to peerID's offers that have not
	// been returned before.
	PollAnswers(ctx context.Context, peerID string) ([]SignalMessage, error)
}

// SignalMessage is one offer or answer.
type SignalMessage struct {
	// PeerID is the other party: the offerer for a received offer,
	// the answerer for a received answer.
	PeerID string

	// SDP is the complete session description with all ICE
	// candidates embedded.
	SDP string

	// Timestamp is the RFC 3339 creation time of the signal.
	Timestamp string
}

// signalingSeparator joins offerer and target ids into a mailbox key.
const signalingSeparator = "|"

// signalKeyMatcher reports whether a mailbox key concerns peerID and,
// if so, returns the other party's id.
type signalKeyMatcher func(key, peerID string) (string, bool)

// matchOfferKey matches "offerer|peerID": offers addressed to peerID.
func matchOfferKey(key, peerID string) (string, bool) {
	offerer, target, ok := splitSignalKey(key)
	if !ok || target != peerID {
		return "", false
	}
	return offerer, true
}

// matchAnswerKey matches "peerID|answerer": answers to peerID's
// offers.
func matchAnswerKey(key, peerID string) (string, bool) {
	offerer, answerer, ok := splitSignalKey(key)
	if !ok || offerer != peerID {
		return "", false
	}
	return answerer, true
}

func splitSignalKey(key string) (string, string, bool) {
	return strings.Cut(key, signalingSeparator)
}
