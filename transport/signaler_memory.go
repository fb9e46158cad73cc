// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"sync"
	"time"
)

var _ Signaler = (*MemorySignaler)(nil)

// MemorySignaler is an in-process Signaler. Two WebRTCTransports
// sharing one MemorySignaler can establish PeerConnections without a
// relay.
type MemorySignaler struct {
	mu       sync.Mutex
	offers   map[string]SignalMessage // key: "offerer|target"
	answers  map[string]SignalMessage // key: "offerer|target"
	lastSeen map[string]time.Time
}

// NewMemorySignaler creates an empty signaler.
func NewMemorySignaler() *MemorySignaler {
	return &MemorySignaler{
		offers:   make(map[string]SignalMessage),
		answers:  make(map[string]SignalMessage),
		lastSeen: make(map[string]time.Time),
	}
}

func (s *MemorySignaler) PublishOffer(_ context.Context, peerID, targetID, sdp string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.offers[peerID+signalingSeparator+targetID] = SignalMessage{
		PeerID:    peerID,
		SDP:       sdp,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	}
	return nil
}

func (s *MemorySignaler) PublishAnswer(_ context.Context, offererID, peerID, sdp string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.answers[offererID+signalingSeparator+peerID] = SignalMessage{
		PeerID:    peerID,
		SDP:       sdp,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	}
	return nil
}

func (s *MemorySignaler) PollOffers(_ context.Context, peerID string) ([]SignalMessage, error) {
	return s.poll(peerID, s.offers, "offers", matchOfferKey), nil
}

func (s *MemorySignaler) PollAnswers(_ context.Context, peerID string) ([]SignalMessage, error) {
	return s.poll(peerID, s.answers, "answers", matchAnswerKey), nil
}

// poll returns the messages in store that concern peerID and are
// newer than the last poll of the same key.
func (s *MemorySignaler) poll(peerID string, store map[string]SignalMessage, label string, match signalKeyMatcher) []SignalMessage {
	s.mu.Lock()
	defer s.mu.Unlock()

	var messages []SignalMessage
	for key, message := range store {
		if _, ok := match(key, peerID); !ok {
			continue
		}
		timestamp, err := time.Parse(time.RFC3339Nano, message.Timestamp)
		if err != nil {
			continue
		}
		seenKey := label + ":" + peerID + ":" + key
		if last, ok := s.lastSeen[seenKey]; ok && !timestamp.After(last) {
			continue
		}
		s.lastSeen[seenKey] = timestamp
		messages = append(messages, message)
	}
	return messages
}
