// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/bureau-foundation/tabletop/lib/clock"
	"github.com/bureau-foundation/tabletop/lib/codec"
	"github.com/bureau-foundation/tabletop/transport"
)

// DefaultConnectTimeout bounds Connect when Config.ConnectTimeout is
// zero.
const DefaultConnectTimeout = 30 * time.Second

// DefaultFrameInterval is the display-frame period (60 fps) used when
// Config.FrameInterval is zero.
const DefaultFrameInterval = time.Second / 60

// Transport is what a Session needs from the link layer. All
// transport package implementations satisfy it.
type Transport interface {
	LocalID() string
	Dial(ctx context.Context, peerID string) (transport.Link, error)
	Events() <-chan transport.Event
}

// State is the lifecycle state of a peer connection.
type State int

const (
	StateConnecting State = iota + 1
	StateOpen
	StateClosed
)

func (state State) String() string {
	switch state {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("State(%d)", int(state))
	}
}

// MessageHandler receives the payload of one inbound message. A
// non-nil error marks the message malformed; it is reported through
// OnError and the link stays open.
type MessageHandler func(peer string, payload codec.RawMessage) error

// Config configures a Session.
type Config struct {
	Transport Transport

	// Clock drives connect timeouts and the frame loop. Default:
	// clock.Real().
	Clock clock.Clock

	// Logger receives connection lifecycle and dropped-message logs.
	Logger *slog.Logger

	ConnectTimeout time.Duration
	FrameInterval  time.Duration
}

// Session is one peer's view of a table: its identity, its live links,
// and the subscriptions that consume what arrives on them.
//
// Except for Run, Do, Post, and ID, methods must be called on the
// session goroutine: from a handler, from a function given to Do or
// Post, or before Run starts.
type Session struct {
	id             string
	transport      Transport
	clock          clock.Clock
	logger         *slog.Logger
	connectTimeout time.Duration
	frameInterval  time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	tasks  *taskQueue
	done   chan struct{}

	// Loop-owned state.
	peers      map[string]*peerConnection
	links      map[transport.Link]*peerConnection
	connecting map[string]*pendingConnect
	// retired holds outbound links that closed before their dial
	// returned, so the late dial result cannot revive them.
	retired    map[transport.Link]struct{}
	dropped    uint64
	stopped    bool

	incoming handlerList[func(peer string)]
	joined   handlerList[func(peer string)]
	left     handlerList[func(peer string, reason *PeerDisconnect)]
	messages map[Tag]*handlerList[MessageHandler]
	frames   handlerList[func(now time.Time)]
	errors   handlerList[func(err error)]
}

// peerConnection is one live link. A peer has at most one; a newer
// link for the same peer replaces the older.
type peerConnection struct {
	peer    string
	link    transport.Link
	inbound bool
	dialed  bool // the dial result has been seen
	state   State
}

type pendingConnect struct {
	peer      string
	callbacks []func(error)
	timer     *clock.Timer
	ctx       context.Context
}

// New creates a session over config.Transport. The session's id is
// the transport's local id.
func New(config Config) (*Session, error) {
	if config.Transport == nil {
		return nil, errors.New("session: transport is required")
	}
	if config.Logger == nil {
		return nil, errors.New("session: logger is required")
	}
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	if config.ConnectTimeout <= 0 {
		config.ConnectTimeout = DefaultConnectTimeout
	}
	if config.FrameInterval <= 0 {
		config.FrameInterval = DefaultFrameInterval
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		id:             config.Transport.LocalID(),
		transport:      config.Transport,
		clock:          config.Clock,
		logger:         config.Logger,
		connectTimeout: config.ConnectTimeout,
		frameInterval:  config.FrameInterval,
		ctx:            ctx,
		cancel:         cancel,
		tasks:          newTaskQueue(),
		done:           make(chan struct{}),
		peers:          make(map[string]*peerConnection),
		links:          make(map[transport.Link]*peerConnection),
		connecting:     make(map[string]*pendingConnect),
		retired:        make(map[transport.Link]struct{}),
		messages:       make(map[Tag]*handlerList[MessageHandler]),
	}, nil
}

// ID returns the local peer id.
func (s *Session) ID() string { return s.id }

// Done is closed when Run has returned and the session is torn down.
func (s *Session) Done() <-chan struct{} { return s.done }

// Run processes transport events, posted functions, and frame ticks
// until ctx is cancelled, then tears the session down. Run must be
// called exactly once.
func (s *Session) Run(ctx context.Context) error {
	ticker := s.clock.NewTicker(s.frameInterval)
	defer ticker.Stop()
	defer s.shutdown()

	events := s.transport.Events()
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-events:
			if !ok {
				s.logger.Warn("transport event channel closed")
				events = nil
				continue
			}
			s.handleEvent(event)
		case <-s.tasks.wake:
			for _, task := range s.tasks.take() {
				task()
			}
		case now := <-ticker.C:
			for _, handler := range s.frames.snapshot() {
				handler(now)
			}
		}
	}
}

// Post queues fn to run on the session goroutine. Returns false if
// the session has stopped, in which case fn never runs.
func (s *Session) Post(fn func()) bool {
	return s.tasks.push(fn)
}

// Do runs fn on the session goroutine and waits for it to finish.
func (s *Session) Do(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	if !s.Post(func() {
		defer close(finished)
		fn()
	}) {
		return ErrClosed
	}
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		select {
		case <-finished:
			return nil
		default:
			return ErrClosed
		}
	}
}

// Connect starts an outbound connection to peer. done is called on the
// session goroutine with nil once the link is open, or with a
// *ConnectionError if negotiation failed, was rejected, or exceeded
// the connect timeout. Connecting to an already open peer succeeds
// immediately; concurrent connects to one peer share the attempt.
func (s *Session) Connect(peer string, done func(error)) {
	if done == nil {
		done = func(error) {}
	}
	if s.stopped {
		done(&ConnectionError{Peer: peer, Err: ErrClosed})
		return
	}
	if peer == s.id || peer == "" {
		done(&ConnectionError{Peer: peer, Err: fmt.Errorf("invalid peer id %q", peer)})
		return
	}
	if connection, ok := s.peers[peer]; ok && connection.state == StateOpen {
		done(nil)
		return
	}
	if pending, ok := s.connecting[peer]; ok {
		pending.callbacks = append(pending.callbacks, done)
		return
	}

	ctx, cancel := context.WithCancelCause(s.ctx)
	pending := &pendingConnect{peer: peer, callbacks: []func(error){done}, ctx: ctx}
	pending.timer = s.clock.AfterFunc(s.connectTimeout, func() { cancel(ErrConnectTimeout) })
	s.connecting[peer] = pending

	s.logger.Info("connecting to peer", "peer", peer)
	go func() {
		link, err := s.transport.Dial(ctx, peer)
		posted := s.Post(func() {
			cancel(nil)
			s.finishConnect(pending, link, err)
		})
		if !posted {
			cancel(nil)
			if link != nil {
				link.Close()
			}
		}
	}()
}

func (s *Session) finishConnect(pending *pendingConnect, link transport.Link, err error) {
	pending.timer.Stop()
	if s.connecting[pending.peer] == pending {
		delete(s.connecting, pending.peer)
	}

	var result error
	if err != nil {
		if cause := context.Cause(pending.ctx); cause != nil && errors.Is(cause, ErrConnectTimeout) {
			err = cause
		}
		s.logger.Warn("connect failed", "peer", pending.peer, "error", err)
		result = &ConnectionError{Peer: pending.peer, Err: err}
	} else if _, closed := s.retired[link]; closed {
		delete(s.retired, link)
		link.Close()
		s.logger.Warn("connect failed", "peer", pending.peer, "error", errLinkLost)
		result = &ConnectionError{Peer: pending.peer, Err: errLinkLost}
	} else {
		s.register(link, false)
		if connection, ok := s.links[link]; ok {
			connection.dialed = true
		}
	}
	for _, callback := range pending.callbacks {
		callback(result)
	}
}

// OnIncomingConnection registers handler for every inbound link that
// opens.
func (s *Session) OnIncomingConnection(handler func(peer string)) (unsubscribe func()) {
	return s.incoming.add(handler)
}

// OnPeerJoined registers handler for every peer that gains a link,
// inbound or outbound.
func (s *Session) OnPeerJoined(handler func(peer string)) (unsubscribe func()) {
	return s.joined.add(handler)
}

// OnPeerLeft registers handler for every peer whose link closes. It
// fires exactly once per link, however many close and error events the
// transport reports for it.
func (s *Session) OnPeerLeft(handler func(peer string, reason *PeerDisconnect)) (unsubscribe func()) {
	return s.left.add(handler)
}

// OnMessage registers handler for inbound messages tagged tag.
// Multiple handlers per tag run in registration order.
func (s *Session) OnMessage(tag Tag, handler MessageHandler) (unsubscribe func()) {
	list, ok := s.messages[tag]
	if !ok {
		list = &handlerList[MessageHandler]{}
		s.messages[tag] = list
	}
	return list.add(handler)
}

// OnFrame registers handler for every display frame.
func (s *Session) OnFrame(handler func(now time.Time)) (unsubscribe func()) {
	return s.frames.add(handler)
}

// OnError registers handler for non-fatal errors: malformed messages
// and link failures.
func (s *Session) OnError(handler func(err error)) (unsubscribe func()) {
	return s.errors.add(handler)
}

// ReportError hands err to the OnError handlers. Subscribers use it
// for failures discovered after their message handler returned.
func (s *Session) ReportError(err error) {
	s.logger.Warn("session error", "error", err)
	for _, handler := range s.errors.snapshot() {
		handler(err)
	}
}

// Send transmits payload to peer under tag. A peer without an open
// link is skipped (the message is dropped and counted). Errors are
// returned only for payloads that cannot be encoded.
func (s *Session) Send(peer string, tag Tag, payload any) error {
	data, err := encodeEnvelope(tag, payload)
	if err != nil {
		return err
	}
	connection, ok := s.peers[peer]
	if !ok || connection.state != StateOpen {
		s.dropped++
		s.logger.Debug("dropping message for peer without open link", "peer", peer, "tag", tag)
		return nil
	}
	s.transmit(connection, tag, data)
	return nil
}

// Broadcast transmits payload to every open peer.
func (s *Session) Broadcast(tag Tag, payload any) error {
	data, err := encodeEnvelope(tag, payload)
	if err != nil {
		return err
	}
	for _, connection := range s.peers {
		if connection.state == StateOpen {
			s.transmit(connection, tag, data)
		}
	}
	return nil
}

func (s *Session) transmit(connection *peerConnection, tag Tag, data []byte) {
	if err := connection.link.Send(data); err != nil {
		s.dropped++
		s.logger.Debug("dropping message", "peer", connection.peer, "tag", tag, "error", err)
	}
}

// Peers returns the ids of peers with an open link, sorted.
func (s *Session) Peers() []string {
	peers := make([]string, 0, len(s.peers))
	for peer, connection := range s.peers {
		if connection.state == StateOpen {
			peers = append(peers, peer)
		}
	}
	slices.Sort(peers)
	return peers
}

// State returns the connection state of peer. Peers never seen, or
// whose link has gone, report StateClosed.
func (s *Session) State(peer string) State {
	if connection, ok := s.peers[peer]; ok {
		return connection.state
	}
	if _, ok := s.connecting[peer]; ok {
		return StateConnecting
	}
	return StateClosed
}

// Dropped returns how many outbound messages were dropped because the
// peer had no open link or its send queue was full.
func (s *Session) Dropped() uint64 { return s.dropped }

func (s *Session) handleEvent(event transport.Event) {
	switch event.Kind {
	case transport.EventOpened:
		s.register(event.Link, event.Inbound)
	case transport.EventMessage:
		s.dispatch(event.Link, event.Data)
	case transport.EventClosed:
		s.unregister(event.Link, nil)
	case transport.EventError:
		if s.unregister(event.Link, event.Err) {
			event.Link.Close()
		}
	}
}

// register adds link to the live set. Registration is idempotent by
// link identity: the dial result and the transport's open event for
// the same outbound link both land here.
func (s *Session) register(link transport.Link, inbound bool) {
	if s.stopped {
		link.Close()
		return
	}
	if _, known := s.links[link]; known {
		return
	}

	peer := link.Peer()
	connection := &peerConnection{peer: peer, link: link, inbound: inbound, state: StateOpen}
	previous, replacing := s.peers[peer]
	if replacing {
		// The old link's close event is no longer ours to report.
		delete(s.links, previous.link)
		s.retire(previous)
		previous.state = StateClosed
		previous.link.Close()
		s.logger.Info("peer link replaced", "peer", peer, "inbound", inbound)
	}
	s.peers[peer] = connection
	s.links[link] = connection

	if !replacing {
		s.logger.Info("peer joined", "peer", peer, "inbound", inbound)
	}
	if inbound {
		for _, handler := range s.incoming.snapshot() {
			handler(peer)
		}
	}
	if !replacing {
		for _, handler := range s.joined.snapshot() {
			handler(peer)
		}
	}
}

// unregister removes link and fires peerLeft. Returns false if the
// link was not live (already removed, replaced, or never opened).
func (s *Session) unregister(link transport.Link, cause error) bool {
	connection, ok := s.links[link]
	if !ok {
		return false
	}
	delete(s.links, link)
	s.retire(connection)
	if s.peers[connection.peer] == connection {
		delete(s.peers, connection.peer)
	}
	connection.state = StateClosed

	reason := &PeerDisconnect{Peer: connection.peer, Err: cause}
	if cause != nil {
		s.ReportError(reason)
	}
	s.logger.Info("peer left", "peer", connection.peer, "error", cause)
	for _, handler := range s.left.snapshot() {
		handler(connection.peer, reason)
	}
	return true
}

// retire remembers an outbound link leaving the live set before its
// dial result arrived.
func (s *Session) retire(connection *peerConnection) {
	if !connection.inbound && !connection.dialed {
		s.retired[connection.link] = struct{}{}
	}
}

func (s *Session) dispatch(link transport.Link, data []byte) {
	connection, ok := s.links[link]
	if !ok {
		s.logger.Debug("ignoring message on inactive link", "peer", link.Peer())
		return
	}

	envelope, err := decodeEnvelope(data)
	if err != nil {
		s.ReportError(&MalformedMessage{Peer: connection.peer, Tag: envelope.Tag, Err: err})
		return
	}
	list, ok := s.messages[envelope.Tag]
	if !ok {
		return
	}
	for _, handler := range list.snapshot() {
		if err := handler(connection.peer, envelope.Payload); err != nil {
			s.ReportError(&MalformedMessage{Peer: connection.peer, Tag: envelope.Tag, Err: err})
		}
	}
}

// shutdown closes every link, fails pending connects, and drops all
// subscriptions. Nothing registered with the session runs afterwards
// except the pending Connect callbacks, which learn ErrClosed.
func (s *Session) shutdown() {
	s.stopped = true
	s.tasks.close()
	s.cancel()

	pending := make([]*pendingConnect, 0, len(s.connecting))
	for _, connect := range s.connecting {
		pending = append(pending, connect)
	}
	for _, connection := range s.peers {
		connection.state = StateClosed
		connection.link.Close()
	}
	clear(s.peers)
	clear(s.links)
	clear(s.connecting)
	clear(s.retired)

	s.incoming.clear()
	s.joined.clear()
	s.left.clear()
	s.frames.clear()
	s.errors.clear()
	clear(s.messages)
	close(s.done)

	for _, connect := range pending {
		connect.timer.Stop()
		for _, callback := range connect.callbacks {
			callback(&ConnectionError{Peer: connect.peer, Err: ErrClosed})
		}
	}
	s.logger.Info("session closed", "peer", s.id)
}
