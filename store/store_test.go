// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/bureau-foundation/tabletop/board"
	"github.com/bureau-foundation/tabletop/lib/clock"
)

var epoch = time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)

func openTestStore(t *testing.T) (*BoltStore, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "maps.db")
	store, err := Open(path, clock.Fake(epoch), slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store, path
}

// largeState returns a board big and repetitive enough to compress.
func largeState() board.State {
	state := board.NewState()
	for i := range 200 {
		id := fmt.Sprintf("token-%03d", i)
		state.Tokens[id] = board.Token{ID: id, Label: "Goblin", Size: 1, X: float64(i), Visible: true}
	}
	state.Notes["clue"] = board.Note{ID: "clue", Text: "the door is trapped"}
	return state
}

func TestBoltStore_SaveLoad(t *testing.T) {
	store, _ := openTestStore(t)
	if err := store.Save("cave", largeState()); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := store.Load("cave")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !reflect.DeepEqual(got, largeState()) {
		t.Error("loaded board differs from saved board")
	}

	infos, err := store.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(infos) != 1 || infos[0].MapID != "cave" || !infos[0].Saved.Equal(epoch) {
		t.Fatalf("got infos %+v", infos)
	}
	if infos[0].Compression != CompressionLZ4 {
		t.Errorf("got compression %s, want lz4", infos[0].Compression)
	}
}

func TestBoltStore_SmallStateStoredRaw(t *testing.T) {
	store, _ := openTestStore(t)
	if err := store.Save("empty", board.NewState()); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := store.Load("empty")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !reflect.DeepEqual(got, board.NewState()) {
		t.Errorf("got %+v, want empty board", got)
	}
	infos, err := store.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if infos[0].Compression != CompressionNone {
		t.Errorf("got compression %s, want none", infos[0].Compression)
	}
}

func TestBoltStore_LoadMissing(t *testing.T) {
	store, _ := openTestStore(t)
	if _, err := store.Load("nowhere"); !errors.Is(err, ErrNotFound) {
		t.Errorf("got error %v, want ErrNotFound", err)
	}
}

func TestBoltStore_Delete(t *testing.T) {
	store, _ := openTestStore(t)
	if err := store.Save("cave", largeState()); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := store.Delete("cave"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := store.Load("cave"); !errors.Is(err, ErrNotFound) {
		t.Errorf("got error %v after delete, want ErrNotFound", err)
	}
	if err := store.Delete("cave"); err != nil {
		t.Errorf("deleting a missing map: %v", err)
	}
}

func TestBoltStore_SaveRequiresID(t *testing.T) {
	store, _ := openTestStore(t)
	if err := store.Save("", board.NewState()); err == nil {
		t.Error("Save accepted an empty map id")
	}
}

func TestBoltStore_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "maps.db")
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	first, err := Open(path, clock.Fake(epoch), logger)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := first.Save("cave", largeState()); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	second, err := Open(path, clock.Fake(epoch), logger)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer second.Close()
	got, err := second.Load("cave")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Len() != largeState().Len() {
		t.Errorf("got %d entities, want %d", got.Len(), largeState().Len())
	}
}

func TestDecompressLZ4_SizeMismatch(t *testing.T) {
	data := []byte("aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	compressed, ok := compressLZ4(data)
	if !ok {
		t.Fatal("repetitive data did not compress")
	}
	if _, err := decompressLZ4(compressed, len(data)+1); err == nil {
		t.Error("accepted a wrong uncompressed size")
	}
}
