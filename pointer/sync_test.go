// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package pointer

import (
	"io"
	"log/slog"
	"reflect"
	"testing"
	"time"

	"github.com/bureau-foundation/tabletop/lib/clock"
	"github.com/bureau-foundation/tabletop/lib/codec"
	"github.com/bureau-foundation/tabletop/lib/vector"
	"github.com/bureau-foundation/tabletop/session"
)

var epoch = time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)

type countingNetwork struct {
	sent []State
}

func (n *countingNetwork) Broadcast(tag session.Tag, payload any) error {
	if tag == session.TagPointer {
		n.sent = append(n.sent, payload.(State))
	}
	return nil
}

func newTestSync(t *testing.T) (*Sync, *countingNetwork, *clock.FakeClock) {
	t.Helper()
	network := &countingNetwork{}
	clk := clock.Fake(epoch)
	sync, err := New(Config{
		Network: network,
		Clock:   clk,
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		LocalID: "alice",
		Color:   "#ff0000",
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return sync, network, clk
}

func encodeState(t *testing.T, state State) codec.RawMessage {
	t.Helper()
	data, err := codec.Marshal(state)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	return data
}

func receive(t *testing.T, sync *Sync, state State) {
	t.Helper()
	if err := sync.Receive(state.ID, encodeState(t, state)); err != nil {
		t.Fatalf("Receive: %v", err)
	}
}

func at(ms int) time.Time { return epoch.Add(time.Duration(ms) * time.Millisecond) }

func TestNew_RequiresDependencies(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	configs := map[string]Config{
		"network":  {LocalID: "a", Logger: logger},
		"local id": {Network: &countingNetwork{}, Logger: logger},
		"logger":   {Network: &countingNetwork{}, LocalID: "a"},
	}
	for name, config := range configs {
		if _, err := New(config); err == nil {
			t.Errorf("missing %s: New succeeded", name)
		}
	}
}

func TestSync_InterpolatesTowardHide(t *testing.T) {
	sync, _, _ := newTestSync(t)
	receive(t, sync, State{ID: "bob", Position: vector.Vector2{X: 0, Y: 0}, Visible: true})

	if got := sync.Frame(at(0)); len(got) != 0 {
		t.Fatalf("first sample rendered %+v, want it held pending", got)
	}

	receive(t, sync, State{ID: "bob", Position: vector.Vector2{X: 10, Y: 10}, Visible: false})

	tests := []struct {
		now     int
		want    State
		tracked bool
	}{
		{25, State{ID: "bob", Position: vector.Vector2{X: 5, Y: 5}, Visible: true}, true},
		{50, State{ID: "bob", Position: vector.Vector2{X: 10, Y: 10}, Visible: true}, true},
		{75, State{ID: "bob", Position: vector.Vector2{X: 10, Y: 10}, Visible: false}, false},
	}
	for _, test := range tests {
		got := sync.Frame(at(test.now))
		if len(got) != 1 || !reflect.DeepEqual(got[0], test.want) {
			t.Errorf("t=%d: got %+v, want [%+v]", test.now, got, test.want)
		}
		if tracked := len(sync.Tracked()) == 1; tracked != test.tracked {
			t.Errorf("t=%d: got tracked=%v, want %v", test.now, tracked, test.tracked)
		}
	}
	if got := sync.Frame(at(100)); len(got) != 0 {
		t.Errorf("hidden pointer still rendered: %+v", got)
	}
}

func TestSync_HoldsVisibleTarget(t *testing.T) {
	sync, _, _ := newTestSync(t)
	receive(t, sync, State{ID: "bob", Position: vector.Vector2{X: 0, Y: 0}, Visible: true})
	receive(t, sync, State{ID: "bob", Position: vector.Vector2{X: 10, Y: 0}, Visible: true})

	for _, now := range []int{75, 500} {
		got := sync.Frame(at(now))
		want := State{ID: "bob", Position: vector.Vector2{X: 10, Y: 0}, Visible: true}
		if len(got) != 1 || !reflect.DeepEqual(got[0], want) {
			t.Errorf("t=%d: got %+v, want [%+v]", now, got, want)
		}
	}
	if len(sync.Tracked()) != 1 {
		t.Error("visible pointer was dropped after reaching its target")
	}
}

func TestSync_ColorChangesOnArrival(t *testing.T) {
	sync, _, _ := newTestSync(t)
	receive(t, sync, State{ID: "bob", Position: vector.Vector2{X: 0, Y: 0}, Visible: true, Color: "#00ff00"})
	receive(t, sync, State{ID: "bob", Position: vector.Vector2{X: 10, Y: 0}, Visible: true, Color: "#0000ff"})

	tests := []struct {
		now   int
		color string
	}{
		{25, "#00ff00"},
		{50, "#00ff00"},
		{75, "#0000ff"},
	}
	for _, test := range tests {
		got := sync.Frame(at(test.now))
		if len(got) != 1 || got[0].Color != test.color {
			t.Errorf("t=%d: got %+v, want color %s", test.now, got, test.color)
		}
	}
}

func TestSync_NewSampleStartsFromPreviousTarget(t *testing.T) {
	sync, _, clk := newTestSync(t)
	receive(t, sync, State{ID: "bob", Position: vector.Vector2{X: 0, Y: 0}, Visible: true})
	receive(t, sync, State{ID: "bob", Position: vector.Vector2{X: 10, Y: 0}, Visible: true})

	clk.Advance(50 * time.Millisecond)
	receive(t, sync, State{ID: "bob", Position: vector.Vector2{X: 20, Y: 0}, Visible: true})

	got := sync.Frame(at(75))
	want := vector.Vector2{X: 15, Y: 0}
	if len(got) != 1 || !vector.Compare(got[0].Position, want, 1e-9) {
		t.Errorf("got %+v, want position %+v", got, want)
	}
}

func TestSync_DuplicateSampleIsIgnored(t *testing.T) {
	sync, _, clk := newTestSync(t)
	receive(t, sync, State{ID: "bob", Position: vector.Vector2{X: 0, Y: 0}, Visible: true})
	receive(t, sync, State{ID: "bob", Position: vector.Vector2{X: 10, Y: 10}, Visible: true})
	before := *sync.remote["bob"]

	clk.Advance(20 * time.Millisecond)
	receive(t, sync, State{ID: "bob", Position: vector.Vector2{X: 10, Y: 10.00001}, Visible: true})

	if after := *sync.remote["bob"]; !reflect.DeepEqual(after, before) {
		t.Errorf("duplicate sample changed the track\ngot  %+v\nwant %+v", after, before)
	}
}

func TestSync_DuplicateFirstSampleStaysPending(t *testing.T) {
	sync, _, _ := newTestSync(t)
	first := State{ID: "bob", Position: vector.Vector2{X: 1, Y: 1}, Visible: true}
	receive(t, sync, first)
	receive(t, sync, first)
	if got := sync.Frame(at(100)); len(got) != 0 {
		t.Errorf("got %+v, want nothing rendered", got)
	}
}

func TestSync_ReceiveRejects(t *testing.T) {
	sync, _, _ := newTestSync(t)
	if err := sync.Receive("bob", encodeState(t, State{ID: "mallory"})); err == nil {
		t.Error("accepted a sample claiming another peer's id")
	}
	if err := sync.Receive("bob", codec.RawMessage{0xff}); err == nil {
		t.Error("accepted garbage")
	}
	if len(sync.Tracked()) != 0 {
		t.Errorf("rejected samples were tracked: %v", sync.Tracked())
	}
}

func TestSync_BroadcastThrottle(t *testing.T) {
	sync, network, _ := newTestSync(t)
	frame := time.Second / 60
	now := epoch
	sync.PointerDown(vector.Vector2{X: 0, Y: 0})
	sync.Frame(now)
	for i := 1; i <= 60; i++ {
		now = now.Add(frame)
		sync.PointerMove(vector.Vector2{X: float64(i), Y: 0})
		sync.Frame(now)
	}
	if got := len(network.sent); got > 20 || got < 19 {
		t.Errorf("got %d broadcasts in one second at 60fps, want 19 or 20", got)
	}
	if last := network.sent[len(network.sent)-1]; last.ID != "alice" || last.Color != "#ff0000" || !last.Visible {
		t.Errorf("got broadcast %+v", last)
	}
}

func TestSync_NoBroadcastWithoutChange(t *testing.T) {
	sync, network, _ := newTestSync(t)
	sync.PointerDown(vector.Vector2{X: 1, Y: 1})
	sync.Frame(at(0))
	sync.Frame(at(60))
	if got := len(network.sent); got != 1 {
		t.Fatalf("got %d broadcasts, want 1", got)
	}
	for ms := 120; ms <= 1000; ms += 60 {
		sync.Frame(at(ms))
	}
	if got := len(network.sent); got != 1 {
		t.Errorf("idle pointer broadcast %d times, want 1 in total", got)
	}
}

func TestSync_LongFrameSendsOnce(t *testing.T) {
	sync, network, _ := newTestSync(t)
	sync.Frame(at(0))
	sync.PointerDown(vector.Vector2{X: 1, Y: 1})
	sync.Frame(at(500))
	sync.PointerMove(vector.Vector2{X: 2, Y: 2})
	sync.Frame(at(510))
	if got := len(network.sent); got != 1 {
		t.Errorf("got %d broadcasts, want 1", got)
	}
}

func TestSync_LocalState(t *testing.T) {
	sync, _, _ := newTestSync(t)
	if sync.Local().Visible {
		t.Error("local pointer starts visible")
	}
	sync.PointerDown(vector.Vector2{X: 3, Y: 4})
	if got := sync.Local(); !got.Visible || got.Position != (vector.Vector2{X: 3, Y: 4}) {
		t.Errorf("after down: got %+v", got)
	}
	sync.PointerUp()
	if got := sync.Local(); got.Visible || got.Position != (vector.Vector2{X: 3, Y: 4}) {
		t.Errorf("after up: got %+v", got)
	}
}

func TestSync_Forget(t *testing.T) {
	sync, _, _ := newTestSync(t)
	receive(t, sync, State{ID: "bob", Visible: true})
	receive(t, sync, State{ID: "bob", Position: vector.Vector2{X: 1, Y: 1}, Visible: true})
	sync.Forget("bob")
	if got := sync.Frame(at(10)); len(got) != 0 {
		t.Errorf("forgotten pointer rendered: %+v", got)
	}
}

// fakeSubscriber stands in for a session.
type fakeSubscriber struct {
	message session.MessageHandler
	frame   func(time.Time)
	left    func(string, *session.PeerDisconnect)
}

func (s *fakeSubscriber) OnMessage(tag session.Tag, handler session.MessageHandler) func() {
	s.message = handler
	return func() { s.message = nil }
}

func (s *fakeSubscriber) OnFrame(handler func(time.Time)) func() {
	s.frame = handler
	return func() { s.frame = nil }
}

func (s *fakeSubscriber) OnPeerLeft(handler func(string, *session.PeerDisconnect)) func() {
	s.left = handler
	return func() { s.left = nil }
}

func TestSync_Attach(t *testing.T) {
	sync, network, _ := newTestSync(t)
	subscriber := &fakeSubscriber{}
	detach := sync.Attach(subscriber)

	if err := subscriber.message("bob", encodeState(t, State{ID: "bob", Visible: true})); err != nil {
		t.Fatalf("message handler: %v", err)
	}
	if got := sync.Tracked(); len(got) != 1 {
		t.Fatalf("got tracked %v, want [bob]", got)
	}
	subscriber.left("bob", &session.PeerDisconnect{Peer: "bob"})
	if got := sync.Tracked(); len(got) != 0 {
		t.Errorf("departed peer still tracked: %v", got)
	}

	sync.PointerDown(vector.Vector2{X: 1, Y: 1})
	subscriber.frame(at(0))
	subscriber.frame(at(50))
	if len(network.sent) != 1 {
		t.Errorf("got %d broadcasts through the frame hook, want 1", len(network.sent))
	}

	detach()
	if subscriber.message != nil || subscriber.frame != nil || subscriber.left != nil {
		t.Error("detach left subscriptions behind")
	}
}
