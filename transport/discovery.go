// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/mdns"
)

// discoveryService is the mDNS service type TCP peers advertise.
const discoveryService = "_tabletop._tcp"

// discoveryIDKey prefixes the TXT record carrying the peer id.
const discoveryIDKey = "id="

// DiscoveredPeer is a TCP peer found on the local network.
type DiscoveredPeer struct {
	ID      string
	Address string
}

// Advertiser publishes this peer's TCP listener over mDNS until
// closed.
type Advertiser struct {
	server *mdns.Server
}

// Advertise announces peerID listening on port.
func Advertise(peerID string, port int) (*Advertiser, error) {
	host, err := os.Hostname()
	if err != nil {
		return nil, fmt.Errorf("reading hostname: %w", err)
	}
	service, err := mdns.NewMDNSService(
		peerID,
		discoveryService,
		"",
		"",
		port,
		nil,
		[]string{discoveryIDKey + peerID, "host=" + host},
	)
	if err != nil {
		return nil, fmt.Errorf("creating mDNS service: %w", err)
	}
	server, err := mdns.NewServer(&mdns.Config{Zone: service})
	if err != nil {
		return nil, fmt.Errorf("starting mDNS responder: %w", err)
	}
	return &Advertiser{server: server}, nil
}

// Close withdraws the advertisement.
func (a *Advertiser) Close() error {
	return a.server.Shutdown()
}

// Browse queries the local network for advertised peers for at most
// timeout (shortened by ctx's deadline). Entries without a peer id or
// IPv4 address are skipped; each id is reported once.
func Browse(ctx context.Context, timeout time.Duration, logger *slog.Logger) ([]DiscoveredPeer, error) {
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}
	if timeout <= 0 {
		return nil, context.DeadlineExceeded
	}

	entries := make(chan *mdns.ServiceEntry, 16)
	collected := make(chan []DiscoveredPeer, 1)
	go func() {
		seen := make(map[string]bool)
		var peers []DiscoveredPeer
		for entry := range entries {
			peer, ok := peerFromEntry(entry)
			if !ok || seen[peer.ID] {
				continue
			}
			seen[peer.ID] = true
			logger.Debug("discovered peer", "peer", peer.ID, "address", peer.Address)
			peers = append(peers, peer)
		}
		collected <- peers
	}()

	err := mdns.Query(&mdns.QueryParam{
		Service:     discoveryService,
		Timeout:     timeout,
		Entries:     entries,
		DisableIPv6: true,
	})
	close(entries)
	peers := <-collected
	if err != nil {
		return peers, fmt.Errorf("browsing for peers: %w", err)
	}
	return peers, nil
}

func peerFromEntry(entry *mdns.ServiceEntry) (DiscoveredPeer, bool) {
	if entry == nil || entry.AddrV4 == nil || entry.Port == 0 {
		return DiscoveredPeer{}, false
	}
	var id string
	for _, field := range entry.InfoFields {
		if value, ok := strings.CutPrefix(field, discoveryIDKey); ok {
			id = value
			break
		}
	}
	if id == "" {
		return DiscoveredPeer{}, false
	}
	return DiscoveredPeer{
		ID:      id,
		Address: net.JoinHostPort(entry.AddrV4.String(), strconv.Itoa(entry.Port)),
	}, true
}
