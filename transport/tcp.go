// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/bureau-foundation/tabletop/lib/codec"
	"github.com/bureau-foundation/tabletop/lib/version"
)

// helloTimeout bounds the hello exchange on a fresh TCP connection.
const helloTimeout = 10 * time.Second

// tcpHello is the first frame in each direction on a TCP connection.
// The dialer names the peer it expects to reach; the listener answers
// with its own hello, setting Error if it refuses the link.
type tcpHello struct {
	Protocol int    `json:"protocol"`
	ID       string `json:"id"`
	Target   string `json:"target"`
	Error    string `json:"error,omitempty"`
}

// TCPTransport connects peers over direct TCP connections. It is the
// same-LAN transport: it requires the dialer to reach the listener's
// address, which comes from AddPeer or mDNS discovery.
//
// Each connection carries a CBOR sequence of byte-string frames. The
// first frame in each direction is a tcpHello; when an authenticator
// is set the peer-auth handshake follows, and then session traffic.
type TCPTransport struct {
	localID  string
	listener net.Listener
	logger   *slog.Logger
	events   *eventQueue

	authenticator PeerAuthenticator

	mu        sync.Mutex
	addresses map[string]string
	closed    bool

	done     chan struct{}
	doneOnce sync.Once
}

// NewTCPTransport listens on address (e.g. ":7891", or ":0" for a
// random port) as localID.
func NewTCPTransport(localID, address string, logger *slog.Logger) (*TCPTransport, error) {
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("listening on %s: %w", address, err)
	}
	return &TCPTransport{
		localID:   localID,
		listener:  listener,
		logger:    logger,
		events:    newEventQueue(),
		addresses: make(map[string]string),
		done:      make(chan struct{}),
	}, nil
}

// SetAuthenticator requires every link to complete a mutual
// challenge-response with authenticator before it opens. Must be
// called before Serve and Dial.
func (t *TCPTransport) SetAuthenticator(authenticator PeerAuthenticator) {
	t.authenticator = authenticator
}

// LocalID returns the peer id announced in hellos.
func (t *TCPTransport) LocalID() string { return t.localID }

// Events returns the transport's event channel. It is closed by Close.
func (t *TCPTransport) Events() <-chan Event { return t.events.channel() }

// Address returns the listening address in "host:port" format.
func (t *TCPTransport) Address() string {
	return t.listener.Addr().String()
}

// AddPeer records the address at which peerID listens.
func (t *TCPTransport) AddPeer(peerID, address string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.addresses[peerID] = address
}

// Serve accepts inbound connections until ctx is cancelled or Close
// is called.
func (t *TCPTransport) Serve(ctx context.Context) error {
	go func() {
		select {
		case <-ctx.Done():
			t.Close()
		case <-t.done:
		}
	}()

	for {
		conn, err := t.listener.Accept()
		if err != nil {
			select {
			case <-t.done:
				return nil
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("accepting connection: %w", err)
		}
		go t.accept(conn)
	}
}

// Close stops the listener and closes the event channel. Open links
// are closed by their owners; their events are discarded.
func (t *TCPTransport) Close() error {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
	t.doneOnce.Do(func() { close(t.done) })
	err := t.listener.Close()
	t.events.close()
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

// Dial connects to the address registered for peerID.
func (t *TCPTransport) Dial(ctx context.Context, peerID string) (Link, error) {
	t.mu.Lock()
	address, known := t.addresses[peerID]
	closed := t.closed
	t.mu.Unlock()
	if closed {
		return nil, net.ErrClosed
	}
	if !known {
		return nil, fmt.Errorf("dialing %s: %w", peerID, ErrUnknownPeer)
	}

	raw, err := (&net.Dialer{}).DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("dialing %s at %s: %w", peerID, address, err)
	}
	conn := newFramedConn(raw)

	// Closing the socket unblocks the handshake when ctx ends.
	stop := context.AfterFunc(ctx, func() { raw.Close() })
	defer stop()

	if err := t.dialHandshake(conn, peerID); err != nil {
		conn.Close()
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("dialing %s: %w", peerID, err)
	}
	if !stop() {
		conn.Close()
		return nil, ctx.Err()
	}

	t.logger.Info("TCP outbound link open", "peer", peerID, "address", address)
	return openStreamLink(peerID, conn, false, t.events, t.logger), nil
}

func (t *TCPTransport) dialHandshake(conn *framedConn, peerID string) error {
	timer := time.AfterFunc(helloTimeout, func() { conn.Close() })
	defer timer.Stop()

	if err := writeHello(conn, tcpHello{Protocol: version.Protocol, ID: t.localID, Target: peerID}); err != nil {
		return err
	}
	reply, err := readHello(conn)
	if err != nil {
		return err
	}
	if reply.Error != "" {
		return fmt.Errorf("%w: %s", ErrRejected, reply.Error)
	}
	if reply.ID != peerID {
		return fmt.Errorf("%w: reached %q, expected %q", ErrRejected, reply.ID, peerID)
	}
	if reply.Protocol != version.Protocol {
		return fmt.Errorf("%w: peer speaks protocol %d, we speak %d", ErrRejected, reply.Protocol, version.Protocol)
	}
	timer.Stop()

	if t.authenticator != nil {
		if err := authenticateLink(conn, conn, t.authenticator, t.localID, peerID); err != nil {
			return err
		}
	}
	return nil
}

func (t *TCPTransport) accept(raw net.Conn) {
	conn := newFramedConn(raw)
	peerID, err := t.acceptHandshake(conn)
	if err != nil {
		t.logger.Warn("rejecting inbound connection",
			"remote", raw.RemoteAddr().String(),
			"error", err,
		)
		conn.Close()
		return
	}

	t.mu.Lock()
	closed := t.closed
	t.mu.Unlock()
	if closed {
		conn.Close()
		return
	}
	t.logger.Info("TCP inbound link open", "peer", peerID, "remote", raw.RemoteAddr().String())
	openStreamLink(peerID, conn, true, t.events, t.logger)
}

func (t *TCPTransport) acceptHandshake(conn *framedConn) (string, error) {
	timer := time.AfterFunc(helloTimeout, func() { conn.Close() })
	defer timer.Stop()

	hello, err := readHello(conn)
	if err != nil {
		return "", err
	}

	var refusal string
	switch {
	case hello.Protocol != version.Protocol:
		refusal = fmt.Sprintf("protocol %d is not supported (want %d)", hello.Protocol, version.Protocol)
	case hello.Target != t.localID:
		refusal = fmt.Sprintf("this is %q, not %q", t.localID, hello.Target)
	case hello.ID == "" || hello.ID == t.localID:
		refusal = fmt.Sprintf("invalid peer id %q", hello.ID)
	}
	reply := tcpHello{Protocol: version.Protocol, ID: t.localID, Target: hello.ID, Error: refusal}
	if err := writeHello(conn, reply); err != nil {
		return "", err
	}
	if refusal != "" {
		return "", fmt.Errorf("%w: %s", ErrRejected, refusal)
	}
	timer.Stop()

	if t.authenticator != nil {
		if err := authenticateLink(conn, conn, t.authenticator, t.localID, hello.ID); err != nil {
			return "", err
		}
	}
	return hello.ID, nil
}

func writeHello(conn *framedConn, hello tcpHello) error {
	data, err := codec.Marshal(hello)
	if err != nil {
		return fmt.Errorf("encoding hello: %w", err)
	}
	if err := conn.WriteMessage(data); err != nil {
		return fmt.Errorf("sending hello: %w", err)
	}
	return nil
}

func readHello(conn *framedConn) (tcpHello, error) {
	var hello tcpHello
	data, err := conn.ReadMessage()
	if err != nil {
		return hello, fmt.Errorf("reading hello: %w", err)
	}
	if err := codec.Unmarshal(data, &hello); err != nil {
		return hello, fmt.Errorf("decoding hello: %w", err)
	}
	return hello, nil
}
