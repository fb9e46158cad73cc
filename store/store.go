// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/pierrec/lz4/v4"
	"go.etcd.io/bbolt"

	"github.com/bureau-foundation/tabletop/board"
	"github.com/bureau-foundation/tabletop/lib/clock"
	"github.com/bureau-foundation/tabletop/lib/codec"
)

// ErrNotFound is returned by Load for a map id with no snapshot.
var ErrNotFound = errors.New("store: map not found")

var bucketMaps = []byte("maps")

// Compression identifies how a record's data is encoded.
type Compression uint8

const (
	CompressionNone Compression = 0
	CompressionLZ4  Compression = 1
)

func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	default:
		return fmt.Sprintf("compression(%d)", uint8(c))
	}
}

// record is the stored form of one map.
type record struct {
	Compression Compression `json:"compression"`
	Size        int         `json:"size"`
	Saved       int64       `json:"saved"`
	Data        []byte      `json:"data"`
}

// Info describes a stored map.
type Info struct {
	MapID       string
	Saved       time.Time
	Size        int
	Compression Compression
}

// BoltStore is a snapshot store backed by one bbolt file. It is safe
// for concurrent use.
type BoltStore struct {
	db     *bbolt.DB
	clock  clock.Clock
	logger *slog.Logger
}

// Open opens or creates the database at path.
func Open(path string, clk clock.Clock, logger *slog.Logger) (*BoltStore, error) {
	if clk == nil {
		clk = clock.Real()
	}
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening store %s: %w", path, err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketMaps)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating maps bucket: %w", err)
	}
	return &BoltStore{db: db, clock: clk, logger: logger}, nil
}

// Close closes the database.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// Save replaces the snapshot stored under mapID.
func (s *BoltStore) Save(mapID string, state board.State) error {
	if mapID == "" {
		return errors.New("store: map id is required")
	}
	raw, err := board.MarshalState(state)
	if err != nil {
		return err
	}
	entry := record{
		Compression: CompressionNone,
		Size:        len(raw),
		Saved:       s.clock.Now().UnixMilli(),
		Data:        raw,
	}
	if compressed, ok := compressLZ4(raw); ok {
		entry.Compression = CompressionLZ4
		entry.Data = compressed
	}
	value, err := codec.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encoding record for %s: %w", mapID, err)
	}
	err = s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketMaps).Put([]byte(mapID), value)
	})
	if err != nil {
		return fmt.Errorf("saving %s: %w", mapID, err)
	}
	s.logger.Debug("saved map", "map", mapID, "entities", state.Len(),
		"size", entry.Size, "stored", len(entry.Data), "compression", entry.Compression)
	return nil
}

// Load returns the snapshot stored under mapID, or ErrNotFound.
func (s *BoltStore) Load(mapID string) (board.State, error) {
	var entry record
	err := s.db.View(func(tx *bbolt.Tx) error {
		value := tx.Bucket(bucketMaps).Get([]byte(mapID))
		if value == nil {
			return ErrNotFound
		}
		// value is only valid inside the transaction; Unmarshal
		// copies byte strings.
		return codec.Unmarshal(value, &entry)
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return board.State{}, err
		}
		return board.State{}, fmt.Errorf("loading %s: %w", mapID, err)
	}
	raw, err := entry.decode()
	if err != nil {
		return board.State{}, fmt.Errorf("loading %s: %w", mapID, err)
	}
	return board.UnmarshalState(raw)
}

// Delete removes the snapshot stored under mapID. Deleting a missing
// map is not an error.
func (s *BoltStore) Delete(mapID string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketMaps).Delete([]byte(mapID))
	})
}

// List describes every stored map in key order.
func (s *BoltStore) List() ([]Info, error) {
	var infos []Info
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketMaps).ForEach(func(key, value []byte) error {
			var entry record
			if err := codec.Unmarshal(value, &entry); err != nil {
				return fmt.Errorf("decoding record %s: %w", key, err)
			}
			infos = append(infos, Info{
				MapID:       string(key),
				Saved:       time.UnixMilli(entry.Saved).UTC(),
				Size:        entry.Size,
				Compression: entry.Compression,
			})
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return infos, nil
}

func (r record) decode() ([]byte, error) {
	switch r.Compression {
	case CompressionNone:
		return r.Data, nil
	case CompressionLZ4:
		return decompressLZ4(r.Data, r.Size)
	default:
		return nil, fmt.Errorf("unsupported compression %s", r.Compression)
	}
}

// compressLZ4 returns the LZ4 block encoding of data, or false when
// that would not be smaller.
func compressLZ4(data []byte) ([]byte, bool) {
	destination := make([]byte, lz4.CompressBlockBound(len(data)))
	written, err := lz4.CompressBlock(data, destination, nil)
	if err != nil || written == 0 || written >= len(data) {
		return nil, false
	}
	return destination[:written], true
}

func decompressLZ4(compressed []byte, size int) ([]byte, error) {
	destination := make([]byte, size)
	read, err := lz4.UncompressBlock(compressed, destination)
	if err != nil {
		return nil, fmt.Errorf("lz4 decompress: %w", err)
	}
	if read != size {
		return nil, fmt.Errorf("lz4 decompress: got %d bytes, expected %d", read, size)
	}
	return destination, nil
}
