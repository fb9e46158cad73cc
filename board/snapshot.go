// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package board

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/zeebo/blake3"

	"github.com/bureau-foundation/tabletop/lib/codec"
)

// maxSnapshotSize bounds the decompressed size of a received snapshot.
const maxSnapshotSize = 64 << 20

// ErrSnapshotDigest is returned when a snapshot's content does not
// match its digest.
var ErrSnapshotDigest = errors.New("board: snapshot digest mismatch")

// zstdEncoder and zstdDecoder are reused across calls; both are safe
// for concurrent EncodeAll/DecodeAll.
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil,
		zstd.WithEncoderLevel(zstd.SpeedDefault),
	)
	if err != nil {
		panic("board: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil, zstd.WithDecoderMaxMemory(maxSnapshotSize))
	if err != nil {
		panic("board: zstd decoder initialization failed: " + err.Error())
	}
}

// snapshotPayload is the body of a snapshot message: the zstd
// compressed CBOR State and the BLAKE3 digest of the uncompressed
// bytes.
type snapshotPayload struct {
	Digest []byte `json:"digest"`
	Data   []byte `json:"data"`
}

// MarshalState returns the canonical CBOR encoding of state.
func MarshalState(state State) ([]byte, error) {
	data, err := codec.Marshal(state.normalize())
	if err != nil {
		return nil, fmt.Errorf("encoding board state: %w", err)
	}
	return data, nil
}

// UnmarshalState decodes a state written by MarshalState.
func UnmarshalState(data []byte) (State, error) {
	var state State
	if err := codec.UnmarshalStrict(data, &state); err != nil {
		return State{}, fmt.Errorf("decoding board state: %w", err)
	}
	return state.normalize(), nil
}

// EncodeSnapshot packs state for transmission to a joining peer.
func EncodeSnapshot(state State) ([]byte, error) {
	raw, err := MarshalState(state)
	if err != nil {
		return nil, err
	}
	digest := blake3.Sum256(raw)
	payload := snapshotPayload{
		Digest: digest[:],
		Data:   zstdEncoder.EncodeAll(raw, nil),
	}
	data, err := codec.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encoding snapshot: %w", err)
	}
	return data, nil
}

// DecodeSnapshot unpacks and verifies a snapshot.
func DecodeSnapshot(data []byte) (State, error) {
	var payload snapshotPayload
	if err := codec.Unmarshal(data, &payload); err != nil {
		return State{}, fmt.Errorf("decoding snapshot: %w", err)
	}
	raw, err := zstdDecoder.DecodeAll(payload.Data, nil)
	if err != nil {
		return State{}, fmt.Errorf("decompressing snapshot: %w", err)
	}
	digest := blake3.Sum256(raw)
	if !bytes.Equal(digest[:], payload.Digest) {
		return State{}, ErrSnapshotDigest
	}
	return UnmarshalState(raw)
}
