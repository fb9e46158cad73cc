// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/hashicorp/mdns"
)

func TestPeerFromEntry(t *testing.T) {
	tests := []struct {
		name   string
		entry  *mdns.ServiceEntry
		want   DiscoveredPeer
		wantOK bool
	}{
		{
			name: "complete",
			entry: &mdns.ServiceEntry{
				AddrV4:     net.IPv4(192, 168, 1, 20),
				Port:       7891,
				InfoFields: []string{"host=den", "id=alice"},
			},
			want:   DiscoveredPeer{ID: "alice", Address: "192.168.1.20:7891"},
			wantOK: true,
		},
		{
			name:  "no id",
			entry: &mdns.ServiceEntry{AddrV4: net.IPv4(10, 0, 0, 1), Port: 7891, InfoFields: []string{"host=den"}},
		},
		{
			name:  "no address",
			entry: &mdns.ServiceEntry{Port: 7891, InfoFields: []string{"id=alice"}},
		},
		{
			name:  "no port",
			entry: &mdns.ServiceEntry{AddrV4: net.IPv4(10, 0, 0, 1), InfoFields: []string{"id=alice"}},
		},
		{name: "nil"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			got, ok := peerFromEntry(test.entry)
			if ok != test.wantOK || got != test.want {
				t.Errorf("peerFromEntry = %+v, %v; want %+v, %v", got, ok, test.want, test.wantOK)
			}
		})
	}
}

func TestBrowse_ExpiredContext(t *testing.T) {
	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()
	if _, err := Browse(ctx, time.Second, discardLogger()); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Browse error = %v, want context.DeadlineExceeded", err)
	}
}
