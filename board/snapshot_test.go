// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package board

import (
	"errors"
	"reflect"
	"testing"

	"github.com/bureau-foundation/tabletop/lib/codec"
)

func TestSnapshot_RoundTrip(t *testing.T) {
	data, err := EncodeSnapshot(fixtureState())
	if err != nil {
		t.Fatalf("EncodeSnapshot: %v", err)
	}
	got, err := DecodeSnapshot(data)
	if err != nil {
		t.Fatalf("DecodeSnapshot: %v", err)
	}
	if !reflect.DeepEqual(got, fixtureState()) {
		t.Errorf("got %+v, want %+v", got, fixtureState())
	}
}

func TestSnapshot_EmptyState(t *testing.T) {
	data, err := EncodeSnapshot(State{})
	if err != nil {
		t.Fatalf("EncodeSnapshot: %v", err)
	}
	got, err := DecodeSnapshot(data)
	if err != nil {
		t.Fatalf("DecodeSnapshot: %v", err)
	}
	if !reflect.DeepEqual(got, NewState()) {
		t.Errorf("got %+v, want empty board", got)
	}
}

func TestDecodeSnapshot_RejectsTamperedDigest(t *testing.T) {
	data, err := EncodeSnapshot(fixtureState())
	if err != nil {
		t.Fatalf("EncodeSnapshot: %v", err)
	}
	var payload snapshotPayload
	if err := codec.Unmarshal(data, &payload); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	payload.Digest[0] ^= 0xff
	tampered, err := codec.Marshal(payload)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if _, err := DecodeSnapshot(tampered); !errors.Is(err, ErrSnapshotDigest) {
		t.Errorf("got error %v, want ErrSnapshotDigest", err)
	}
}

func TestDecodeSnapshot_RejectsCorruptData(t *testing.T) {
	data, err := codec.Marshal(snapshotPayload{Digest: make([]byte, 32), Data: []byte("not zstd")})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if _, err := DecodeSnapshot(data); err == nil {
		t.Error("DecodeSnapshot accepted corrupt data")
	}
}
