// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/bureau-foundation/tabletop/signaling"
)

var _ Signaler = (*WebSocketSignaler)(nil)

// WebSocketSignaler is a Signaler backed by a signaling.Hub relay.
// It holds one WebSocket for its peer id. Received offers and answers
// are buffered (latest per sender) until polled.
type WebSocketSignaler struct {
	peerID string
	conn   *websocket.Conn
	logger *slog.Logger

	writeMu sync.Mutex

	mu      sync.Mutex
	offers  map[string]SignalMessage
	answers map[string]SignalMessage
	readErr error

	done chan struct{}
}

// DialWebSocketSignaler connects to the relay at rawURL as peerID.
func DialWebSocketSignaler(ctx context.Context, rawURL, peerID string, logger *slog.Logger) (*WebSocketSignaler, error) {
	endpoint, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parsing signaling url: %w", err)
	}
	query := endpoint.Query()
	query.Set("id", peerID)
	endpoint.RawQuery = query.Encode()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, endpoint.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("connecting to signaling relay %s: %w", rawURL, err)
	}

	signaler := &WebSocketSignaler{
		peerID:  peerID,
		conn:    conn,
		logger:  logger,
		offers:  make(map[string]SignalMessage),
		answers: make(map[string]SignalMessage),
		done:    make(chan struct{}),
	}
	go signaler.readPump()
	return signaler, nil
}

func (s *WebSocketSignaler) PublishOffer(_ context.Context, peerID, targetID, sdp string) error {
	return s.publish(peerID, signaling.Message{Type: signaling.TypeOffer, To: targetID, SDP: sdp})
}

func (s *WebSocketSignaler) PublishAnswer(_ context.Context, offererID, peerID, sdp string) error {
	return s.publish(peerID, signaling.Message{Type: signaling.TypeAnswer, To: offererID, SDP: sdp})
}

func (s *WebSocketSignaler) PollOffers(_ context.Context, peerID string) ([]SignalMessage, error) {
	return s.drain(peerID, s.offers)
}

func (s *WebSocketSignaler) PollAnswers(_ context.Context, peerID string) ([]SignalMessage, error) {
	return s.drain(peerID, s.answers)
}

// Done is closed when the relay connection ends.
func (s *WebSocketSignaler) Done() <-chan struct{} { return s.done }

// Close disconnects from the relay.
func (s *WebSocketSignaler) Close() error {
	return s.conn.Close()
}

func (s *WebSocketSignaler) publish(from string, message signaling.Message) error {
	if from != s.peerID {
		return fmt.Errorf("signaler connected as %s cannot publish for %s", s.peerID, from)
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.conn.WriteJSON(message); err != nil {
		return fmt.Errorf("sending %s to %s: %w", message.Type, message.To, err)
	}
	return nil
}

func (s *WebSocketSignaler) drain(peerID string, store map[string]SignalMessage) ([]SignalMessage, error) {
	if peerID != s.peerID {
		return nil, fmt.Errorf("signaler connected as %s cannot poll for %s", s.peerID, peerID)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	messages := make([]SignalMessage, 0, len(store))
	for sender, message := range store {
		messages = append(messages, message)
		delete(store, sender)
	}
	if len(messages) == 0 && s.readErr != nil {
		return nil, s.readErr
	}
	return messages, nil
}

func (s *WebSocketSignaler) readPump() {
	defer close(s.done)
	for {
		var message signaling.Message
		if err := s.conn.ReadJSON(&message); err != nil {
			s.mu.Lock()
			s.readErr = fmt.Errorf("signaling relay connection lost: %w", err)
			s.mu.Unlock()
			if !errors.Is(err, websocket.ErrCloseSent) {
				s.logger.Debug("signaling read ended", "error", err)
			}
			return
		}

		signal := SignalMessage{PeerID: message.From, SDP: message.SDP, Timestamp: message.Timestamp}
		s.mu.Lock()
		switch message.Type {
		case signaling.TypeOffer:
			s.offers[message.From] = signal
		case signaling.TypeAnswer:
			s.answers[message.From] = signal
		case signaling.TypeError:
			s.logger.Warn("signaling relay refused a message", "error", message.Error)
		}
		s.mu.Unlock()
	}
}
