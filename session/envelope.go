// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"fmt"

	"github.com/bureau-foundation/tabletop/lib/codec"
)

// Tag names the kind of payload an Envelope carries.
type Tag string

const (
	// TagAction carries a board action.
	TagAction Tag = "action"

	// TagPointer carries one pointer sample.
	TagPointer Tag = "pointer"

	// TagSnapshot carries the full board state, sent once to a peer
	// that has just joined.
	TagSnapshot Tag = "snapshot"
)

// Valid reports whether tag is one of the known tags.
func (tag Tag) Valid() bool {
	switch tag {
	case TagAction, TagPointer, TagSnapshot:
		return true
	default:
		return false
	}
}

// Envelope is the unit of exchange on every link. Payload is decoded
// by the subscriber for Tag.
type Envelope struct {
	Tag     Tag              `json:"tag"`
	Payload codec.RawMessage `json:"payload"`
}

// encodeEnvelope wraps payload under tag. A payload that is already
// a RawMessage is embedded as is.
func encodeEnvelope(tag Tag, payload any) ([]byte, error) {
	if !tag.Valid() {
		return nil, fmt.Errorf("unknown message tag %q", tag)
	}
	raw, ok := payload.(codec.RawMessage)
	if !ok {
		encoded, err := codec.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encoding %s payload: %w", tag, err)
		}
		raw = encoded
	}
	data, err := codec.Marshal(Envelope{Tag: tag, Payload: raw})
	if err != nil {
		return nil, fmt.Errorf("encoding %s envelope: %w", tag, err)
	}
	return data, nil
}

// decodeEnvelope parses data and checks its tag.
func decodeEnvelope(data []byte) (Envelope, error) {
	var envelope Envelope
	if err := codec.Unmarshal(data, &envelope); err != nil {
		return Envelope{}, fmt.Errorf("decoding envelope: %w", err)
	}
	if !envelope.Tag.Valid() {
		return envelope, fmt.Errorf("unknown message tag %q", envelope.Tag)
	}
	if len(envelope.Payload) == 0 {
		return envelope, fmt.Errorf("%s message has no payload", envelope.Tag)
	}
	return envelope, nil
}
