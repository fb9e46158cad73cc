// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"
)

// signalingPollInterval is how often the transport polls for inbound
// signaling offers from other peers.
const signalingPollInterval = 500 * time.Millisecond

// iceGatherTimeout is the maximum time to wait for ICE candidate gathering
// to complete before publishing the SDP.
const iceGatherTimeout = 15 * time.Second

// answerPollInterval is how often the dialer polls for an SDP answer after
// publishing an offer.
const answerPollInterval = 250 * time.Millisecond

// answerTimeout is the maximum time to wait for an SDP answer before giving up.
const answerTimeout = 30 * time.Second

// channelOpenTimeout bounds the wait for the session data channel to
// open once the answer has been applied.
const channelOpenTimeout = 30 * time.Second

// sessionChannelLabel names the single ordered data channel that
// carries all session traffic between two peers.
const sessionChannelLabel = "session"

// WebRTCTransport connects peers over WebRTC data channels.
//
// Each remote peer gets one PeerConnection carrying one ordered,
// reliable "session" data channel. The offerer creates the channel
// before its offer so the SDP carries an SCTP section; the answerer
// receives it through OnDataChannel and reports an inbound link.
//
// Signaling uses the Signaler interface. Connection establishment uses
// vanilla ICE: all candidates are gathered before the SDP is published,
// so signaling requires exactly one round-trip.
type WebRTCTransport struct {
	signaler Signaler
	localID  string
	logger   *slog.Logger
	events   *eventQueue

	// iceConfig is the ICE server configuration. Protected by configMu
	// because TURN credentials can be rotated while running.
	configMu  sync.RWMutex
	iceConfig ICEConfig

	authenticator PeerAuthenticator

	// peers maps remote peer id to its PeerConnection.
	mu    sync.Mutex
	peers map[string]*peerState

	ready     chan struct{}
	readyOnce sync.Once

	closed    chan struct{}
	closeOnce sync.Once
}

// peerState tracks the PeerConnection to one remote peer. Fields are
// immutable after creation; the peers map is guarded by
// WebRTCTransport.mu.
type peerState struct {
	connection *webrtc.PeerConnection
	peerID     string

	// cancel aborts an outbound negotiation still in progress. Nil
	// for answered connections.
	cancel context.CancelFunc
}

// NewWebRTCTransport creates a WebRTC transport identified as localID
// in signaling.
func NewWebRTCTransport(signaler Signaler, localID string, iceConfig ICEConfig, logger *slog.Logger) *WebRTCTransport {
	return &WebRTCTransport{
		signaler:  signaler,
		localID:   localID,
		iceConfig: iceConfig,
		logger:    logger,
		events:    newEventQueue(),
		peers:     make(map[string]*peerState),
		ready:     make(chan struct{}),
		closed:    make(chan struct{}),
	}
}

// SetAuthenticator requires every link to complete a mutual
// challenge-response with authenticator before it opens. Must be
// called before Serve and Dial.
func (wt *WebRTCTransport) SetAuthenticator(authenticator PeerAuthenticator) {
	wt.authenticator = authenticator
}

// LocalID returns the peer id this transport signals as.
func (wt *WebRTCTransport) LocalID() string { return wt.localID }

// Events returns the transport's event channel. It is closed by Close.
func (wt *WebRTCTransport) Events() <-chan Event { return wt.events.channel() }

// Ready returns a channel that is closed when Serve has started the
// signaling poller.
func (wt *WebRTCTransport) Ready() <-chan struct{} {
	return wt.ready
}

// Serve polls for inbound offers until ctx is cancelled or Close is
// called.
func (wt *WebRTCTransport) Serve(ctx context.Context) error {
	wt.readyOnce.Do(func() { close(wt.ready) })

	ticker := time.NewTicker(signalingPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-wt.closed:
			return nil
		case <-ticker.C:
			wt.processInboundOffers(ctx)
		}
	}
}

// Close shuts down all PeerConnections and closes the event channel.
func (wt *WebRTCTransport) Close() error {
	wt.closeOnce.Do(func() {
		close(wt.closed)
	})

	wt.mu.Lock()
	peers := make([]*peerState, 0, len(wt.peers))
	for peerID, peer := range wt.peers {
		peers = append(peers, peer)
		delete(wt.peers, peerID)
	}
	wt.mu.Unlock()

	for _, peer := range peers {
		wt.teardown(peer)
	}
	wt.events.close()
	return nil
}

// UpdateICEConfig replaces the ICE configuration for new PeerConnections.
// Existing PeerConnections continue using their current configuration.
func (wt *WebRTCTransport) UpdateICEConfig(config ICEConfig) {
	wt.configMu.Lock()
	defer wt.configMu.Unlock()
	wt.iceConfig = config
}

// Dial negotiates a new PeerConnection to peerID and returns the
// outbound link once its session channel is open (and authenticated,
// when an authenticator is set). Any existing connection to peerID is
// replaced.
func (wt *WebRTCTransport) Dial(ctx context.Context, peerID string) (Link, error) {
	select {
	case <-wt.closed:
		return nil, net.ErrClosed
	default:
	}
	if peerID == wt.localID {
		return nil, fmt.Errorf("dialing %s: %w", peerID, ErrUnknownPeer)
	}

	pc, err := wt.newPeerConnection()
	if err != nil {
		return nil, fmt.Errorf("creating PeerConnection: %w", err)
	}
	dialCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	peer := &peerState{connection: pc, peerID: peerID, cancel: cancel}
	wt.register(peer)

	link, err := wt.establishOutbound(dialCtx, peer)
	if err != nil {
		wt.forget(peer)
		wt.teardown(peer)
		return nil, fmt.Errorf("establishing peer connection to %s: %w", peerID, err)
	}
	return link, nil
}

// register stores peer, replacing (and tearing down) any previous
// connection to the same remote.
func (wt *WebRTCTransport) register(peer *peerState) {
	wt.mu.Lock()
	previous := wt.peers[peer.peerID]
	wt.peers[peer.peerID] = peer
	wt.mu.Unlock()
	if previous != nil {
		wt.teardown(previous)
	}
}

// forget removes peer from the map if it is still the current entry.
func (wt *WebRTCTransport) forget(peer *peerState) {
	wt.mu.Lock()
	defer wt.mu.Unlock()
	if current, ok := wt.peers[peer.peerID]; ok && current == peer {
		delete(wt.peers, peer.peerID)
	}
}

func (wt *WebRTCTransport) teardown(peer *peerState) {
	if peer.cancel != nil {
		peer.cancel()
	}
	peer.connection.Close()
}

func (wt *WebRTCTransport) establishOutbound(ctx context.Context, peer *peerState) (Link, error) {
	pc := peer.connection

	pc.OnICEConnectionStateChange(func(state webrtc.ICEConnectionState) {
		wt.handleICEStateChange(peer, state)
	})

	ordered := true
	channel, err := pc.CreateDataChannel(sessionChannelLabel, &webrtc.DataChannelInit{Ordered: &ordered})
	if err != nil {
		return nil, fmt.Errorf("creating session data channel: %w", err)
	}
	opened := make(chan io.ReadWriteCloser, 1)
	channel.OnOpen(func() {
		raw, err := channel.Detach()
		if err != nil {
			wt.logger.Error("detaching session data channel failed", "peer", peer.peerID, "error", err)
			return
		}
		opened <- raw
	})

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		return nil, fmt.Errorf("creating SDP offer: %w", err)
	}
	gatherComplete := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(offer); err != nil {
		return nil, fmt.Errorf("setting local description: %w", err)
	}
	if err := wt.waitGathered(ctx, gatherComplete); err != nil {
		return nil, err
	}

	if err := wt.signaler.PublishOffer(ctx, wt.localID, peer.peerID, pc.LocalDescription().SDP); err != nil {
		return nil, fmt.Errorf("publishing SDP offer: %w", err)
	}
	wt.logger.Info("WebRTC offer published", "peer", peer.peerID)

	answerSDP, err := wt.waitForAnswer(ctx, peer.peerID)
	if err != nil {
		return nil, fmt.Errorf("waiting for SDP answer from %s: %w", peer.peerID, err)
	}
	answer := webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: answerSDP}
	if err := pc.SetRemoteDescription(answer); err != nil {
		return nil, fmt.Errorf("setting remote description: %w", err)
	}

	var raw io.ReadWriteCloser
	select {
	case raw = <-opened:
	case <-time.After(channelOpenTimeout):
		return nil, fmt.Errorf("session data channel did not open within %s", channelOpenTimeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-wt.closed:
		return nil, net.ErrClosed
	}

	conn := wt.wrapChannel(raw, peer)
	if wt.authenticator != nil {
		if err := authenticateLink(conn, conn, wt.authenticator, wt.localID, peer.peerID); err != nil {
			conn.Close()
			return nil, err
		}
	}

	wt.logger.Info("WebRTC outbound link open", "peer", peer.peerID)
	return openStreamLink(peer.peerID, conn, false, wt.events, wt.logger), nil
}

func (wt *WebRTCTransport) waitGathered(ctx context.Context, gatherComplete <-chan struct{}) error {
	select {
	case <-gatherComplete:
		return nil
	case <-time.After(iceGatherTimeout):
		return fmt.Errorf("ICE gathering timed out after %s", iceGatherTimeout)
	case <-ctx.Done():
		return ctx.Err()
	case <-wt.closed:
		return net.ErrClosed
	}
}

// waitForAnswer polls the signaler for an SDP answer from the specified peer.
func (wt *WebRTCTransport) waitForAnswer(ctx context.Context, peerID string) (string, error) {
	deadline := time.After(answerTimeout)
	ticker := time.NewTicker(answerPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-deadline:
			return "", fmt.Errorf("timed out after %s", answerTimeout)
		case <-ctx.Done():
			return "", ctx.Err()
		case <-wt.closed:
			return "", net.ErrClosed
		case <-ticker.C:
			answers, err := wt.signaler.PollAnswers(ctx, wt.localID)
			if err != nil {
				wt.logger.Warn("polling for SDP answer failed", "error", err)
				continue
			}
			for _, answer := range answers {
				if answer.PeerID == peerID {
					return answer.SDP, nil
				}
			}
		}
	}
}

// processInboundOffers checks for new SDP offers and answers them.
func (wt *WebRTCTransport) processInboundOffers(ctx context.Context) {
	offers, err := wt.signaler.PollOffers(ctx, wt.localID)
	if err != nil {
		wt.logger.Warn("polling for SDP offers failed", "error", err)
		return
	}

	for _, offer := range offers {
		wt.mu.Lock()
		existing, hasExisting := wt.peers[offer.PeerID]
		wt.mu.Unlock()

		// Both peers dialed at once. The lexicographically smaller id
		// is the canonical offerer: if that is us, their offer is
		// ignored and they will answer ours.
		if hasExisting && existing.cancel != nil && !isDead(existing.connection) && offer.PeerID > wt.localID {
			wt.logger.Debug("ignoring offer from peer we are dialing", "peer", offer.PeerID)
			continue
		}

		if err := wt.answerOffer(ctx, offer); err != nil {
			wt.logger.Error("answering WebRTC offer failed",
				"peer", offer.PeerID,
				"error", err,
			)
		}
	}
}

func isDead(pc *webrtc.PeerConnection) bool {
	state := pc.ICEConnectionState()
	return state == webrtc.ICEConnectionStateFailed || state == webrtc.ICEConnectionStateClosed
}

// answerOffer creates a PeerConnection in response to an incoming SDP offer.
func (wt *WebRTCTransport) answerOffer(ctx context.Context, offer SignalMessage) error {
	if offer.PeerID == wt.localID {
		return errors.New("offer claims our own peer id")
	}
	pc, err := wt.newPeerConnection()
	if err != nil {
		return fmt.Errorf("creating PeerConnection: %w", err)
	}
	peer := &peerState{connection: pc, peerID: offer.PeerID}

	pc.OnDataChannel(func(channel *webrtc.DataChannel) {
		wt.handleInboundDataChannel(channel, peer)
	})
	pc.OnICEConnectionStateChange(func(state webrtc.ICEConnectionState) {
		wt.handleICEStateChange(peer, state)
	})

	remoteOffer := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: offer.SDP}
	if err := pc.SetRemoteDescription(remoteOffer); err != nil {
		pc.Close()
		return fmt.Errorf("setting remote description: %w", err)
	}

	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		pc.Close()
		return fmt.Errorf("creating SDP answer: %w", err)
	}
	gatherComplete := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(answer); err != nil {
		pc.Close()
		return fmt.Errorf("setting local description: %w", err)
	}
	if err := wt.waitGathered(ctx, gatherComplete); err != nil {
		pc.Close()
		return err
	}

	// Register before publishing: once the answer is out, the remote
	// side may open the channel at any moment.
	wt.register(peer)
	if err := wt.signaler.PublishAnswer(ctx, offer.PeerID, wt.localID, pc.LocalDescription().SDP); err != nil {
		wt.forget(peer)
		pc.Close()
		return fmt.Errorf("publishing SDP answer: %w", err)
	}

	wt.logger.Info("WebRTC offer answered", "peer", offer.PeerID)
	return nil
}

// handleInboundDataChannel turns the remote's session channel into an
// inbound link. Channels with any other label are closed.
func (wt *WebRTCTransport) handleInboundDataChannel(channel *webrtc.DataChannel, peer *peerState) {
	if channel.Label() != sessionChannelLabel {
		wt.logger.Warn("closing unexpected data channel", "peer", peer.peerID, "label", channel.Label())
		channel.OnOpen(func() { channel.Close() })
		return
	}

	channel.OnOpen(func() {
		raw, err := channel.Detach()
		if err != nil {
			wt.logger.Error("detaching inbound data channel failed",
				"peer", peer.peerID,
				"error", err,
			)
			return
		}
		// The handshake blocks on the network; pion callbacks must not.
		go wt.acceptInbound(wt.wrapChannel(raw, peer), peer)
	})
}

func (wt *WebRTCTransport) acceptInbound(conn *peerChannelConn, peer *peerState) {
	if wt.authenticator != nil {
		if err := authenticateLink(conn, conn, wt.authenticator, wt.localID, peer.peerID); err != nil {
			wt.logger.Warn("rejecting inbound peer", "peer", peer.peerID, "error", err)
			conn.Close()
			return
		}
	}
	select {
	case <-wt.closed:
		conn.Close()
		return
	default:
	}
	wt.logger.Info("WebRTC inbound link open", "peer", peer.peerID)
	openStreamLink(peer.peerID, conn, true, wt.events, wt.logger)
}

// handleICEStateChange closes PeerConnections whose ICE has failed so
// that the link read loop ends and the session sees the peer leave.
func (wt *WebRTCTransport) handleICEStateChange(peer *peerState, state webrtc.ICEConnectionState) {
	wt.logger.Debug("ICE state change",
		"peer", peer.peerID,
		"state", state.String(),
	)

	switch state {
	case webrtc.ICEConnectionStateFailed:
		wt.logger.Warn("WebRTC connection failed", "peer", peer.peerID)
		wt.forget(peer)
		go peer.connection.Close()
	case webrtc.ICEConnectionStateClosed:
		wt.forget(peer)
	}
}

// wrapChannel binds a detached channel to its PeerConnection so that
// closing the link also closes the connection.
func (wt *WebRTCTransport) wrapChannel(raw io.ReadWriteCloser, peer *peerState) *peerChannelConn {
	return &peerChannelConn{
		dataChannelConn: newDataChannelConn(raw),
		onClose: func() {
			wt.forget(peer)
			peer.connection.Close()
		},
	}
}

type peerChannelConn struct {
	*dataChannelConn
	onClose func()
	once    sync.Once
}

func (c *peerChannelConn) Close() error {
	err := c.dataChannelConn.Close()
	c.once.Do(c.onClose)
	return err
}

// newPeerConnection creates a pion PeerConnection with the current ICE config.
func (wt *WebRTCTransport) newPeerConnection() (*webrtc.PeerConnection, error) {
	wt.configMu.RLock()
	config := webrtc.Configuration{
		ICEServers: wt.iceConfig.Servers,
	}
	wt.configMu.RUnlock()

	// Detached channels give message-at-a-time reads; loopback
	// candidates let two peers on one machine (and tests) connect.
	settingEngine := webrtc.SettingEngine{}
	settingEngine.DetachDataChannels()
	settingEngine.SetIncludeLoopbackCandidate(true)

	api := webrtc.NewAPI(webrtc.WithSettingEngine(settingEngine))
	return api.NewPeerConnection(config)
}
