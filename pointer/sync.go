// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package pointer

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"math"
	"slices"
	"time"

	"github.com/bureau-foundation/tabletop/lib/clock"
	"github.com/bureau-foundation/tabletop/lib/codec"
	"github.com/bureau-foundation/tabletop/lib/vector"
	"github.com/bureau-foundation/tabletop/session"
)

// Defaults applied by New for zero Config fields.
const (
	DefaultTick    = 50 * time.Millisecond
	DefaultEpsilon = 1e-4
)

// State is one participant's pointer, as broadcast under the pointer
// tag.
type State struct {
	ID       string         `json:"id"`
	Position vector.Vector2 `json:"position"`
	Visible  bool           `json:"visible"`
	Color    string         `json:"color"`
}

// Network is the part of a session pointer broadcasts go through.
type Network interface {
	Broadcast(tag session.Tag, payload any) error
}

// Subscriber is the part of a session a Sync listens to.
type Subscriber interface {
	OnMessage(tag session.Tag, handler session.MessageHandler) (unsubscribe func())
	OnFrame(handler func(now time.Time)) (unsubscribe func())
	OnPeerLeft(handler func(peer string, reason *session.PeerDisconnect)) (unsubscribe func())
}

// Config configures a Sync.
type Config struct {
	Network Network
	Clock   clock.Clock
	Logger  *slog.Logger

	// LocalID and Color describe the local pointer.
	LocalID string
	Color   string

	// Tick is the minimum interval between broadcasts.
	// Default: DefaultTick.
	Tick time.Duration

	// SmoothingWindow is how far past its arrival a received sample
	// is stamped, and so how long the motion toward it takes.
	// Default: Tick.
	SmoothingWindow time.Duration

	// Epsilon is the per-axis distance under which two positions are
	// the same. Default: DefaultEpsilon.
	Epsilon float64

	// OnRender, if set, receives the remote pointers after every
	// frame, sorted by id.
	OnRender func([]State)
}

// sample is a pointer state and the time it applies at.
type sample struct {
	state State
	time  time.Time
}

// track is the interpolation frame for one remote peer. pending marks
// a peer that has sent only its first sample.
type track struct {
	from    sample
	to      sample
	pending bool
}

// Sync owns the local pointer and the interpolation state of every
// remote one. It is not safe for concurrent use: call it from the
// session goroutine.
type Sync struct {
	network Network
	clock   clock.Clock
	logger  *slog.Logger
	tick    time.Duration
	window  time.Duration
	epsilon float64

	onRender func([]State)

	local  State
	staged *State

	lastFrame   time.Time
	accumulated time.Duration

	remote map[string]*track
}

// New returns a Sync with a hidden local pointer.
func New(config Config) (*Sync, error) {
	if config.Network == nil {
		return nil, errors.New("pointer: network is required")
	}
	if config.LocalID == "" {
		return nil, errors.New("pointer: local id is required")
	}
	if config.Logger == nil {
		return nil, errors.New("pointer: logger is required")
	}
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	if config.Tick <= 0 {
		config.Tick = DefaultTick
	}
	if config.SmoothingWindow <= 0 {
		config.SmoothingWindow = config.Tick
	}
	if config.Epsilon <= 0 {
		config.Epsilon = DefaultEpsilon
	}
	return &Sync{
		network:  config.Network,
		clock:    config.Clock,
		logger:   config.Logger,
		tick:     config.Tick,
		window:   config.SmoothingWindow,
		epsilon:  config.Epsilon,
		onRender: config.OnRender,
		local:    State{ID: config.LocalID, Color: config.Color},
		remote:   make(map[string]*track),
	}, nil
}

// Local returns the local pointer.
func (s *Sync) Local() State { return s.local }

// PointerDown shows the local pointer at position.
func (s *Sync) PointerDown(position vector.Vector2) {
	s.local.Position = position
	s.local.Visible = true
	s.stage()
}

// PointerMove moves the local pointer without changing its
// visibility.
func (s *Sync) PointerMove(position vector.Vector2) {
	s.local.Position = position
	s.stage()
}

// PointerUp hides the local pointer.
func (s *Sync) PointerUp() {
	s.local.Visible = false
	s.stage()
}

// SetColor changes the local pointer's color.
func (s *Sync) SetColor(color string) {
	s.local.Color = color
	s.stage()
}

func (s *Sync) stage() {
	staged := s.local
	s.staged = &staged
}

// Frame advances the broadcast tick to now, sends the staged local
// state if the tick elapsed, and renders every remote pointer at now.
func (s *Sync) Frame(now time.Time) []State {
	if !s.lastFrame.IsZero() && now.After(s.lastFrame) {
		s.accumulated += now.Sub(s.lastFrame)
	}
	s.lastFrame = now
	if s.accumulated >= s.tick {
		// A long frame fires one broadcast, not a burst.
		s.accumulated %= s.tick
		s.flush()
	}

	rendered := s.render(now)
	if s.onRender != nil {
		s.onRender(rendered)
	}
	return rendered
}

func (s *Sync) flush() {
	if s.staged == nil {
		return
	}
	state := *s.staged
	s.staged = nil
	if err := s.network.Broadcast(session.TagPointer, state); err != nil {
		s.logger.Warn("pointer broadcast failed", "error", err)
	}
}

// render returns the remote pointers at now, dropping the tracks of
// pointers that have finished hiding.
func (s *Sync) render(now time.Time) []State {
	var rendered []State
	for _, peer := range slices.Sorted(maps.Keys(s.remote)) {
		entry := s.remote[peer]
		if entry.pending {
			continue
		}
		span := entry.to.time.Sub(entry.from.time)
		alpha := math.Inf(1)
		if span > 0 {
			alpha = float64(now.Sub(entry.from.time)) / float64(span)
		}
		switch {
		case alpha <= 1:
			state := entry.to.state
			state.Position = vector.Lerp(entry.from.state.Position, entry.to.state.Position, max(alpha, 0))
			// Visibility and color change only once the pointer
			// reaches the sample that changed them.
			state.Visible = entry.from.state.Visible
			state.Color = entry.from.state.Color
			rendered = append(rendered, state)
		case !entry.to.state.Visible:
			rendered = append(rendered, entry.to.state)
			delete(s.remote, peer)
		default:
			rendered = append(rendered, entry.to.state)
		}
	}
	return rendered
}

// Receive records a pointer sample from origin. Samples that do not
// move or change visibility are ignored. The sample's id must match
// the sending peer.
func (s *Sync) Receive(origin string, payload codec.RawMessage) error {
	var state State
	if err := codec.Unmarshal(payload, &state); err != nil {
		return fmt.Errorf("decoding pointer: %w", err)
	}
	if state.ID != origin {
		return fmt.Errorf("pointer from %q claims id %q", origin, state.ID)
	}
	if !finite(state.Position) {
		return fmt.Errorf("pointer from %q has non-finite position", origin)
	}

	now := s.clock.Now()
	entry, ok := s.remote[origin]
	if !ok {
		s.remote[origin] = &track{to: sample{state: state, time: now}, pending: true}
		return nil
	}
	if s.same(entry.to.state, state) {
		return nil
	}
	entry.from = sample{state: entry.to.state, time: now}
	entry.to = sample{state: state, time: now.Add(s.window)}
	entry.pending = false
	return nil
}

func (s *Sync) same(a, b State) bool {
	return a.Visible == b.Visible && a.Color == b.Color && vector.Compare(a.Position, b.Position, s.epsilon)
}

// Forget drops peer's pointer, as when its link closes.
func (s *Sync) Forget(peer string) {
	delete(s.remote, peer)
}

// Tracked returns the peers with interpolation state, sorted.
func (s *Sync) Tracked() []string {
	return slices.Sorted(maps.Keys(s.remote))
}

// Attach subscribes the Sync to pointer messages, frames, and
// departures on sub.
func (s *Sync) Attach(sub Subscriber) (detach func()) {
	unsubscribers := []func(){
		sub.OnMessage(session.TagPointer, s.Receive),
		sub.OnFrame(func(now time.Time) { s.Frame(now) }),
		sub.OnPeerLeft(func(peer string, _ *session.PeerDisconnect) { s.Forget(peer) }),
	}
	return func() {
		for _, unsubscribe := range unsubscribers {
			unsubscribe()
		}
	}
}

func finite(v vector.Vector2) bool {
	return !math.IsNaN(v.X) && !math.IsInf(v.X, 0) && !math.IsNaN(v.Y) && !math.IsInf(v.Y, 0)
}
