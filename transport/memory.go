// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"fmt"
	"net"
	"sync"
)

// MemoryNetwork connects MemoryTransports in one process. Tests and
// the single-process demo use it in place of a real network; links
// behave like WebRTC data channels (ordered, message-oriented, no
// backpressure).
type MemoryNetwork struct {
	mu         sync.Mutex
	transports map[string]*MemoryTransport
}

// NewMemoryNetwork returns an empty network.
func NewMemoryNetwork() *MemoryNetwork {
	return &MemoryNetwork{transports: make(map[string]*MemoryTransport)}
}

// Transport registers and returns the transport for peerID. Calling
// it twice with the same id returns the same transport.
func (n *MemoryNetwork) Transport(peerID string) *MemoryTransport {
	n.mu.Lock()
	defer n.mu.Unlock()

	if existing, ok := n.transports[peerID]; ok {
		return existing
	}
	transport := &MemoryTransport{
		network: n,
		localID: peerID,
		events:  newEventQueue(),
		links:   make(map[*memoryLink]struct{}),
	}
	n.transports[peerID] = transport
	return transport
}

func (n *MemoryNetwork) lookup(peerID string) *MemoryTransport {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.transports[peerID]
}

func (n *MemoryNetwork) remove(transport *MemoryTransport) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.transports[transport.localID] == transport {
		delete(n.transports, transport.localID)
	}
}

// MemoryTransport is one peer's endpoint on a MemoryNetwork.
type MemoryTransport struct {
	network *MemoryNetwork
	localID string
	events  *eventQueue

	mu      sync.Mutex
	links   map[*memoryLink]struct{}
	reject  error
	stalled bool
	closed  bool
}

// LocalID returns the peer identifier.
func (t *MemoryTransport) LocalID() string { return t.localID }

// Events returns the transport's event channel. It is closed by
// Close.
func (t *MemoryTransport) Events() <-chan Event { return t.events.channel() }

// Reject makes subsequent inbound dials fail with an error wrapping
// ErrRejected and reason. A nil reason accepts again.
func (t *MemoryTransport) Reject(reason error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.reject = reason
}

// Stall makes subsequent inbound dials hang until the dialer's
// context ends, simulating a negotiation that never completes.
func (t *MemoryTransport) Stall(stalled bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stalled = stalled
}

// Dial opens a link to peerID. Both sides observe EventOpened before
// Dial returns.
func (t *MemoryTransport) Dial(ctx context.Context, peerID string) (Link, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if t.isClosed() {
		return nil, net.ErrClosed
	}

	remote := t.network.lookup(peerID)
	if remote == nil || remote == t {
		return nil, fmt.Errorf("dialing %s: %w", peerID, ErrUnknownPeer)
	}

	remote.mu.Lock()
	reject, stalled, remoteClosed := remote.reject, remote.stalled, remote.closed
	remote.mu.Unlock()

	switch {
	case remoteClosed:
		return nil, fmt.Errorf("dialing %s: %w", peerID, ErrUnknownPeer)
	case reject != nil:
		return nil, fmt.Errorf("dialing %s: %w: %w", peerID, ErrRejected, reject)
	case stalled:
		<-ctx.Done()
		return nil, ctx.Err()
	}

	local, far := newMemoryPair(t, remote)
	if !t.track(local) || !remote.track(far) {
		local.Close()
		return nil, fmt.Errorf("dialing %s: %w", peerID, net.ErrClosed)
	}
	remote.events.push(Event{Kind: EventOpened, Link: far, Inbound: true})
	t.events.push(Event{Kind: EventOpened, Link: local})
	return local, nil
}

// Close closes every link and the event channel, and removes the
// transport from its network.
func (t *MemoryTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	links := make([]*memoryLink, 0, len(t.links))
	for link := range t.links {
		links = append(links, link)
	}
	t.mu.Unlock()

	for _, link := range links {
		link.Close()
	}
	t.network.remove(t)
	t.events.close()
	return nil
}

func (t *MemoryTransport) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

func (t *MemoryTransport) track(link *memoryLink) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return false
	}
	t.links[link] = struct{}{}
	return true
}

func (t *MemoryTransport) untrack(link *memoryLink) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.links, link)
}

// memoryPair is the state shared by the two ends of one link.
type memoryPair struct {
	mu     sync.Mutex
	closed bool
}

type memoryLink struct {
	owner *MemoryTransport
	peer  string
	other *memoryLink
	pair  *memoryPair
}

func newMemoryPair(local, remote *MemoryTransport) (*memoryLink, *memoryLink) {
	pair := &memoryPair{}
	near := &memoryLink{owner: local, peer: remote.localID, pair: pair}
	far := &memoryLink{owner: remote, peer: local.localID, pair: pair}
	near.other, far.other = far, near
	return near, far
}

func (l *memoryLink) Peer() string { return l.peer }

func (l *memoryLink) Send(message []byte) error {
	l.pair.mu.Lock()
	defer l.pair.mu.Unlock()
	if l.pair.closed {
		return net.ErrClosed
	}
	data := make([]byte, len(message))
	copy(data, message)
	l.other.owner.events.push(Event{Kind: EventMessage, Link: l.other, Data: data})
	return nil
}

func (l *memoryLink) Close() error {
	l.teardown(nil)
	return nil
}

// Break fails the link the way a flaky data channel does: this end
// reports EventClosed followed by EventError carrying cause, and the
// remote end reports EventClosed.
func (l *memoryLink) Break(cause error) {
	l.teardown(cause)
}

func (l *memoryLink) teardown(cause error) {
	l.pair.mu.Lock()
	if l.pair.closed {
		l.pair.mu.Unlock()
		return
	}
	l.pair.closed = true
	l.pair.mu.Unlock()

	l.owner.untrack(l)
	l.other.owner.untrack(l.other)

	l.owner.events.push(Event{Kind: EventClosed, Link: l})
	if cause != nil {
		l.owner.events.push(Event{Kind: EventError, Link: l, Err: cause})
	}
	l.other.owner.events.push(Event{Kind: EventClosed, Link: l.other})
}

// BreakLink fails link, which must have come from a MemoryTransport.
// See memoryLink.Break.
func BreakLink(link Link, cause error) {
	if memory, ok := link.(*memoryLink); ok {
		memory.Break(cause)
	}
}
