// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package signaling

// Message types.
const (
	TypeOffer  = "offer"
	TypeAnswer = "answer"
	TypeError  = "error"
)

// Message is one JSON frame on the signaling WebSocket.
type Message struct {
	// Type is TypeOffer, TypeAnswer, or TypeError.
	Type string `json:"type"`

	// From is the sender's peer id. Set by the hub; any value the
	// sender supplies is overwritten.
	From string `json:"from"`

	// To is the recipient's peer id.
	To string `json:"to"`

	// SDP is the complete session description.
	SDP string `json:"sdp,omitempty"`

	// Timestamp is the RFC 3339 time the hub accepted the message.
	Timestamp string `json:"timestamp,omitempty"`

	// Error describes why a message was refused (TypeError only).
	Error string `json:"error,omitempty"`
}
