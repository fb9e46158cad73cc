// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/bureau-foundation/tabletop/board"
	"github.com/bureau-foundation/tabletop/lib/clock"
	"github.com/bureau-foundation/tabletop/lib/config"
	"github.com/bureau-foundation/tabletop/pointer"
	"github.com/bureau-foundation/tabletop/session"
	"github.com/bureau-foundation/tabletop/store"
	"github.com/bureau-foundation/tabletop/transport"
)

// discoveryTimeout bounds an mDNS lookup for a peer given by id only.
const discoveryTimeout = 3 * time.Second

// peerTransport is a transport the binary can serve and close.
type peerTransport interface {
	session.Transport
	Serve(ctx context.Context) error
	Close() error
}

// table wires one peer: its transport and session, the board engine,
// pointer sync, and optional snapshot store.
type table struct {
	cfg    *config.Config
	host   bool
	logger *slog.Logger
	out    io.Writer

	transport peerTransport
	tcp       *transport.TCPTransport // nil unless transport.kind is tcp
	closers   []func() error

	session *session.Session
	engine  *board.Engine
	pointer *pointer.Sync
	store   *store.BoltStore // nil when store.path is empty

	cancel  context.CancelFunc
	stopped chan struct{}
}

// openTable builds and starts every component.
func openTable(ctx context.Context, cfg *config.Config, host bool, logger *slog.Logger, out io.Writer) (*table, error) {
	t := &table{cfg: cfg, host: host, logger: logger, out: out, stopped: make(chan struct{})}
	if err := t.openTransport(ctx); err != nil {
		t.closeResources()
		return nil, err
	}
	if err := t.build(t.transport, clock.Real()); err != nil {
		t.closeResources()
		return nil, err
	}
	if err := t.restore(); err != nil {
		t.closeResources()
		return nil, err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	t.cancel = cancel
	go func() {
		if err := t.transport.Serve(runCtx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("transport stopped", "error", err)
		}
	}()
	go func() {
		defer close(t.stopped)
		t.session.Run(runCtx)
	}()
	return t, nil
}

func (t *table) openTransport(ctx context.Context) error {
	cfg := t.cfg
	var authenticator transport.PeerAuthenticator
	if cfg.Transport.Password != "" {
		password, err := transport.NewPasswordAuthenticator(cfg.Transport.Password)
		if err != nil {
			return err
		}
		authenticator = password
	}

	switch cfg.Transport.Kind {
	case config.TransportTCP:
		tcp, err := transport.NewTCPTransport(cfg.Peer.ID, cfg.Transport.Listen, t.logger)
		if err != nil {
			return err
		}
		t.closers = append(t.closers, tcp.Close)
		if authenticator != nil {
			tcp.SetAuthenticator(authenticator)
		}
		t.transport = tcp
		t.tcp = tcp
		if cfg.Transport.MDNS {
			port, err := listenPort(tcp.Address())
			if err != nil {
				return err
			}
			advertiser, err := transport.Advertise(cfg.Peer.ID, port)
			if err != nil {
				return err
			}
			t.closers = append(t.closers, advertiser.Close)
		}
		t.logger.Info("listening", "address", tcp.Address())

	case config.TransportWebRTC:
		signaler, err := transport.DialWebSocketSignaler(ctx, cfg.Transport.SignalingURL, cfg.Peer.ID, t.logger)
		if err != nil {
			return fmt.Errorf("connecting to signaling relay: %w", err)
		}
		t.closers = append(t.closers, signaler.Close)
		webrtc := transport.NewWebRTCTransport(signaler, cfg.Peer.ID,
			transport.ICEConfigFromServers(cfg.Transport.ICEServers), t.logger)
		if authenticator != nil {
			webrtc.SetAuthenticator(authenticator)
		}
		t.closers = append(t.closers, webrtc.Close)
		t.transport = webrtc

	default:
		return fmt.Errorf("unknown transport %q", cfg.Transport.Kind)
	}
	return nil
}

// build creates the session over links and the components attached
// to it.
func (t *table) build(links session.Transport, clk clock.Clock) error {
	cfg := t.cfg
	var err error
	t.session, err = session.New(session.Config{
		Transport:      links,
		Clock:          clk,
		Logger:         t.logger,
		ConnectTimeout: cfg.Session.ConnectTimeout,
		FrameInterval:  cfg.FrameInterval(),
	})
	if err != nil {
		return err
	}

	t.engine, err = board.NewEngine(board.EngineConfig{
		Network:      t.session,
		Clock:        clk,
		LocalID:      cfg.Peer.ID,
		Logger:       t.logger,
		HistoryLimit: cfg.History.Limit,
		OnError:      t.session.ReportError,
	})
	if err != nil {
		return err
	}
	t.engine.Attach(t.session, t.host)

	t.pointer, err = pointer.New(pointer.Config{
		Network:         t.session,
		Clock:           clk,
		Logger:          t.logger,
		LocalID:         cfg.Peer.ID,
		Color:           cfg.Peer.Color,
		Tick:            cfg.Pointer.Tick,
		SmoothingWindow: cfg.Smoothing(),
		Epsilon:         cfg.Pointer.Epsilon,
	})
	if err != nil {
		return err
	}
	t.pointer.Attach(t.session)

	t.session.OnPeerJoined(func(peer string) {
		t.logger.Info("peer joined", "peer", peer)
	})
	t.session.OnPeerLeft(func(peer string, reason *session.PeerDisconnect) {
		t.logger.Info("peer left", "peer", peer, "reason", reason)
	})
	return nil
}

// restore opens the store and, when hosting, loads the stored map or
// the configured scene.
func (t *table) restore() error {
	cfg := t.cfg
	if cfg.Store.Path != "" {
		opened, err := store.Open(cfg.Store.Path, clock.Real(), t.logger)
		if err != nil {
			return err
		}
		t.store = opened
		t.closers = append(t.closers, opened.Close)
	}
	if !t.host {
		return nil
	}

	if t.store != nil {
		state, err := t.store.Load(cfg.Store.MapID)
		switch {
		case err == nil:
			t.engine.Load(state)
			t.logger.Info("restored map", "map", cfg.Store.MapID, "entities", state.Len())
			return nil
		case !errors.Is(err, store.ErrNotFound):
			return err
		}
	}
	if cfg.Store.Scene != "" {
		state, err := board.LoadScene(cfg.Store.Scene)
		if err != nil {
			return err
		}
		t.engine.Load(state)
		t.logger.Info("loaded scene", "path", cfg.Store.Scene, "entities", state.Len())
	}
	return nil
}

// join connects to target, given as a peer id or, for tcp, as
// id@host:port. It waits for the link to open.
func (t *table) join(ctx context.Context, target string) error {
	peer, address, hasAddress := strings.Cut(target, "@")
	if t.tcp != nil {
		switch {
		case hasAddress:
			t.tcp.AddPeer(peer, address)
		case t.cfg.Transport.MDNS:
			if err := t.discover(ctx, peer); err != nil {
				return err
			}
		default:
			return fmt.Errorf("tcp peer %q needs an address (id@host:port) or mdns", peer)
		}
	} else if hasAddress {
		return fmt.Errorf("peer addresses are only used with tcp: %q", target)
	}

	result := make(chan error, 1)
	posted := t.session.Post(func() {
		t.engine.ExpectHost(peer)
		t.session.Connect(peer, func(err error) { result <- err })
	})
	if !posted {
		return session.ErrClosed
	}
	select {
	case err := <-result:
		if err != nil {
			return err
		}
		t.logger.Info("joined", "peer", peer)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// discover finds peer with mDNS and registers its address.
func (t *table) discover(ctx context.Context, peer string) error {
	found, err := transport.Browse(ctx, discoveryTimeout, t.logger)
	if err != nil {
		return err
	}
	for _, candidate := range found {
		if candidate.ID == peer {
			t.tcp.AddPeer(candidate.ID, candidate.Address)
			return nil
		}
	}
	return fmt.Errorf("peer %q not found on the local network", peer)
}

// do runs one command line on the session goroutine.
func (t *table) do(ctx context.Context, line string) error {
	var commandErr error
	if err := t.session.Do(ctx, func() { commandErr = t.execute(line) }); err != nil {
		return err
	}
	return commandErr
}

// close saves the map if hosting, then stops everything.
func (t *table) close() {
	if t.host && t.store != nil {
		err := t.session.Do(context.Background(), func() {
			if err := t.save(); err != nil {
				t.logger.Error("saving map on exit", "error", err)
			}
		})
		if err != nil {
			t.logger.Warn("session stopped before the map was saved", "error", err)
		}
	}
	if t.cancel != nil {
		t.cancel()
		<-t.stopped
	}
	t.closeResources()
}

func (t *table) closeResources() {
	for i := len(t.closers) - 1; i >= 0; i-- {
		if err := t.closers[i](); err != nil {
			t.logger.Debug("close failed", "error", err)
		}
	}
	t.closers = nil
}

func (t *table) save() error {
	if t.store == nil {
		return errors.New("no store configured (store.path)")
	}
	return t.store.Save(t.cfg.Store.MapID, t.engine.State())
}

func listenPort(address string) (int, error) {
	_, portText, err := net.SplitHostPort(address)
	if err != nil {
		return 0, fmt.Errorf("parsing listen address %q: %w", address, err)
	}
	return strconv.Atoi(portText)
}
