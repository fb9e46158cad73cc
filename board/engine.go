// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package board

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/bureau-foundation/tabletop/lib/clock"
	"github.com/bureau-foundation/tabletop/lib/codec"
	"github.com/bureau-foundation/tabletop/session"
)

// DefaultHistoryLimit bounds each of the undo and redo stacks when
// EngineConfig.HistoryLimit is zero.
const DefaultHistoryLimit = 100

// Network is the part of a session the engine sends through.
type Network interface {
	Send(peer string, tag session.Tag, payload any) error
	Broadcast(tag session.Tag, payload any) error
}

// Subscriber is the part of a session the engine receives through.
type Subscriber interface {
	OnMessage(tag session.Tag, handler session.MessageHandler) (unsubscribe func())
	OnPeerJoined(handler func(peer string)) (unsubscribe func())
}

// EngineConfig configures an Engine.
type EngineConfig struct {
	Network Network
	Clock   clock.Clock
	LocalID string
	Logger  *slog.Logger

	// HistoryLimit bounds the undo and redo stacks. The oldest entry
	// is discarded when a push would exceed it.
	HistoryLimit int

	// OnChange, if set, is called with the new state after every
	// change, local or remote.
	OnChange func(State)

	// OnError, if set, receives remote actions that decoded but could
	// not be applied.
	OnError func(error)
}

// ErrUnexpectedSnapshot is returned for a snapshot from a peer that is
// not a host of this table.
var ErrUnexpectedSnapshot = errors.New("board: unexpected snapshot")

// historyEntry pairs an applied action with its inverse.
type historyEntry struct {
	forward Action
	inverse Action
}

// Engine owns the local copy of the board. It is not safe for
// concurrent use: call it from the session goroutine.
type Engine struct {
	network Network
	clock   clock.Clock
	localID string
	logger  *slog.Logger
	limit   int

	onChange func(State)
	onError  func(error)

	state State
	undo  []historyEntry
	redo  []historyEntry

	// hosts are the peers whose snapshots may replace the board.
	hosts map[string]bool
}

// NewEngine returns an engine holding an empty board.
func NewEngine(config EngineConfig) (*Engine, error) {
	if config.Network == nil {
		return nil, errors.New("board: network is required")
	}
	if config.LocalID == "" {
		return nil, errors.New("board: local id is required")
	}
	if config.Logger == nil {
		return nil, errors.New("board: logger is required")
	}
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	if config.HistoryLimit <= 0 {
		config.HistoryLimit = DefaultHistoryLimit
	}
	return &Engine{
		network:  config.Network,
		clock:    config.Clock,
		localID:  config.LocalID,
		logger:   config.Logger,
		limit:    config.HistoryLimit,
		onChange: config.OnChange,
		onError:  config.OnError,
		state:    NewState(),
	}, nil
}

// LocalID returns the id stamped on local writes.
func (e *Engine) LocalID() string { return e.localID }

// State returns the current board.
func (e *Engine) State() State { return e.state }

// Perform stamps action with the local peer id, applies it, records
// its inverse for Undo, clears the redo stack, and broadcasts it.
func (e *Engine) Perform(action Action) error {
	stamped := action.stamp(e.state, e.now(), e.localID)
	inverse, err := e.apply(stamped)
	if err != nil {
		return err
	}
	e.undo = pushBounded(e.undo, historyEntry{forward: stamped, inverse: inverse}, e.limit)
	e.redo = nil
	return e.broadcast(stamped)
}

// Undo reverts the most recent local action and broadcasts the
// reversal. Returns false if there is nothing to undo.
func (e *Engine) Undo() (bool, error) {
	if len(e.undo) == 0 {
		return false, nil
	}
	entry := e.undo[len(e.undo)-1]
	// Restamping lets peers accept the reversal under last-write-wins;
	// the domain fields are restored exactly.
	reversal := entry.inverse.stamp(e.state, e.now(), e.localID)
	if _, err := e.apply(reversal); err != nil {
		return false, fmt.Errorf("undoing %s: %w", entry.forward.Kind(), err)
	}
	e.undo = e.undo[:len(e.undo)-1]
	e.redo = pushBounded(e.redo, entry, e.limit)
	return true, e.broadcast(reversal)
}

// Redo reapplies the most recently undone action. Returns false if
// there is nothing to redo.
func (e *Engine) Redo() (bool, error) {
	if len(e.redo) == 0 {
		return false, nil
	}
	entry := e.redo[len(e.redo)-1]
	forward := entry.forward.stamp(e.state, e.now(), e.localID)
	inverse, err := e.apply(forward)
	if err != nil {
		return false, fmt.Errorf("redoing %s: %w", entry.forward.Kind(), err)
	}
	e.redo = e.redo[:len(e.redo)-1]
	e.undo = pushBounded(e.undo, historyEntry{forward: forward, inverse: inverse}, e.limit)
	return true, e.broadcast(forward)
}

// UndoStack returns the actions that Undo would revert, oldest first.
func (e *Engine) UndoStack() []Action { return forwards(e.undo) }

// RedoStack returns the actions that Redo would reapply, oldest first.
func (e *Engine) RedoStack() []Action { return forwards(e.redo) }

// Receive applies an encoded action from peer. Patches that lose
// last-write-wins are dropped; the rest applies as a unit. A payload
// that does not decode is returned as an error and nothing changes.
// History is never touched.
func (e *Engine) Receive(peer string, payload codec.RawMessage) error {
	action, err := DecodeAction(payload)
	if err != nil {
		return err
	}
	next, err := action.filter(e.state).Apply(e.state)
	if err != nil {
		e.reportError(fmt.Errorf("applying %s action from %s: %w", action.Kind(), peer, err))
		return nil
	}
	e.state = next
	e.changed()
	return nil
}

// Load replaces the board, as when a host's snapshot arrives. Both
// history stacks are cleared: their inverses describe a board that no
// longer exists.
func (e *Engine) Load(state State) {
	e.state = state.normalize()
	e.undo = nil
	e.redo = nil
	e.changed()
}

// SyncPeer sends the full board to peer.
func (e *Engine) SyncPeer(peer string) error {
	data, err := EncodeSnapshot(e.state)
	if err != nil {
		return err
	}
	e.logger.Info("sending board snapshot", "peer", peer, "entities", e.state.Len(), "bytes", len(data))
	return e.network.Send(peer, session.TagSnapshot, codec.RawMessage(data))
}

// ExpectHost accepts snapshots from peer. A guest calls it for the
// peer it dials, before dialing.
func (e *Engine) ExpectHost(peer string) {
	if e.hosts == nil {
		e.hosts = make(map[string]bool)
	}
	e.hosts[peer] = true
}

// ReceiveSnapshot verifies and loads a snapshot sent by peer. Only a
// peer passed to ExpectHost may send one.
func (e *Engine) ReceiveSnapshot(peer string, payload codec.RawMessage) error {
	if !e.hosts[peer] {
		return fmt.Errorf("%w: %s is not a host of this table", ErrUnexpectedSnapshot, peer)
	}
	state, err := DecodeSnapshot(payload)
	if err != nil {
		return err
	}
	e.logger.Info("loaded board snapshot", "peer", peer, "entities", state.Len())
	e.Load(state)
	return nil
}

// Attach subscribes the engine to actions on s. A host sends the
// board to every peer that joins and never takes a snapshot; a guest
// takes snapshots from the peers given to ExpectHost.
func (e *Engine) Attach(s Subscriber, host bool) (detach func()) {
	unsubscribers := []func(){s.OnMessage(session.TagAction, e.Receive)}
	if host {
		unsubscribers = append(unsubscribers, s.OnPeerJoined(func(peer string) {
			if err := e.SyncPeer(peer); err != nil {
				e.reportError(fmt.Errorf("sending snapshot to %s: %w", peer, err))
			}
		}))
	} else {
		unsubscribers = append(unsubscribers, s.OnMessage(session.TagSnapshot, e.ReceiveSnapshot))
	}
	return func() {
		for _, unsubscribe := range unsubscribers {
			unsubscribe()
		}
	}
}

func (e *Engine) now() int64 { return e.clock.Now().UnixMilli() }

// apply moves the board through action and returns the inverse.
func (e *Engine) apply(action Action) (Action, error) {
	inverse, err := action.Invert(e.state)
	if err != nil {
		return nil, err
	}
	next, err := action.Apply(e.state)
	if err != nil {
		return nil, err
	}
	e.state = next
	e.changed()
	return inverse, nil
}

func (e *Engine) broadcast(action Action) error {
	data, err := EncodeAction(action)
	if err != nil {
		return err
	}
	return e.network.Broadcast(session.TagAction, codec.RawMessage(data))
}

func (e *Engine) changed() {
	if e.onChange != nil {
		e.onChange(e.state)
	}
}

func (e *Engine) reportError(err error) {
	e.logger.Warn("board action failed", "error", err)
	if e.onError != nil {
		e.onError(err)
	}
}

func pushBounded(stack []historyEntry, entry historyEntry, limit int) []historyEntry {
	stack = append(stack, entry)
	if len(stack) > limit {
		stack = stack[len(stack)-limit:]
	}
	return stack
}

func forwards(stack []historyEntry) []Action {
	actions := make([]Action, len(stack))
	for i, entry := range stack {
		actions[i] = entry.forward
	}
	return actions
}
