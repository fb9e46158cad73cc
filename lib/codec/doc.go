// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides the tabletop's standard CBOR encoding
// configuration.
//
// Two serialization formats are in use, with a clear boundary:
//
//   - JSON for human-facing inputs and the signaling relay: scene seed
//     files, the WebSocket signaling protocol, CLI output.
//   - CBOR for everything exchanged between peers over a data channel
//     (message envelopes, actions, pointer samples, state snapshots)
//     and for snapshots at rest in the local store.
//
// The encoder uses Core Deterministic Encoding (RFC 8949 §4.2): sorted
// map keys, smallest integer encoding, no indefinite-length items.
// Encoding the same action twice yields the same bytes, which keeps
// snapshot digests stable across peers.
//
// For buffer-oriented operations (one data channel message):
//
//	data, err := codec.Marshal(value)
//	err = codec.Unmarshal(data, &value)
//
// For stream-oriented operations (TCP links):
//
//	encoder := codec.NewEncoder(conn)
//	decoder := codec.NewDecoder(conn)
//
// [UnmarshalStrict] rejects unknown fields. The board package uses it
// to merge partial entity patches so that a patch naming a field the
// entity does not have is refused rather than dropped.
//
// # Struct Tag Rules
//
//   - `cbor` tag: the type is only ever serialized as CBOR (envelopes,
//     wire-only action records, store records).
//   - `json` tag: the type may be serialized as both JSON and CBOR.
//     fxamacker/cbor v2 falls back to `json` tags when `cbor` tags are
//     absent, so entity records carry `json` tags and round-trip
//     through scene files and peer messages with identical field
//     names.
//
// Never use both `cbor` and `json` tags on the same field.
package codec
