// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tabletop.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Peer.ID == "" {
		t.Error("default peer id is empty")
	}
	if other := Default(); other.Peer.ID == cfg.Peer.ID {
		t.Errorf("two defaults share peer id %q", cfg.Peer.ID)
	}
	if cfg.Pointer.Tick != 50*time.Millisecond {
		t.Errorf("pointer.tick = %v, want 50ms", cfg.Pointer.Tick)
	}
	if cfg.Smoothing() != cfg.Pointer.Tick {
		t.Errorf("Smoothing() = %v, want tick %v", cfg.Smoothing(), cfg.Pointer.Tick)
	}
	if cfg.FrameInterval() != time.Second/60 {
		t.Errorf("FrameInterval() = %v, want %v", cfg.FrameInterval(), time.Second/60)
	}
	if cfg.History.Limit != 100 {
		t.Errorf("history.limit = %d, want 100", cfg.History.Limit)
	}
}

func TestLoadFile(t *testing.T) {
	t.Setenv("TABLETOP_TEST_PASSWORD", "hunter2")
	path := writeConfig(t, `
peer:
  id: gm
  color: "#ff0000"
transport:
  kind: tcp
  listen: "127.0.0.1:0"
  password: ${TABLETOP_TEST_PASSWORD}
pointer:
  tick: 100ms
  smoothing_window: 150ms
session:
  connect_timeout: 5s
store:
  path: ${TABLETOP_TEST_UNSET:-/tmp/maps.db}
`)

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.Peer.ID != "gm" {
		t.Errorf("peer.id = %q, want gm", cfg.Peer.ID)
	}
	if cfg.Transport.Password != "hunter2" {
		t.Errorf("password = %q, want expanded value", cfg.Transport.Password)
	}
	if cfg.Store.Path != "/tmp/maps.db" {
		t.Errorf("store.path = %q, want default expansion /tmp/maps.db", cfg.Store.Path)
	}
	if cfg.Pointer.Tick != 100*time.Millisecond {
		t.Errorf("pointer.tick = %v, want 100ms", cfg.Pointer.Tick)
	}
	if cfg.Smoothing() != 150*time.Millisecond {
		t.Errorf("Smoothing() = %v, want 150ms", cfg.Smoothing())
	}
	if cfg.Session.ConnectTimeout != 5*time.Second {
		t.Errorf("connect_timeout = %v, want 5s", cfg.Session.ConnectTimeout)
	}
	if cfg.Session.FrameRate != 60 {
		t.Errorf("frame_rate = %d, want default 60", cfg.Session.FrameRate)
	}
}

func TestLoadFile_Missing(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr string
	}{
		{"webrtc without signaling", func(c *Config) {}, "signaling_url"},
		{"tcp without listen", func(c *Config) { c.Transport.Kind = TransportTCP }, "transport.listen"},
		{"unknown kind", func(c *Config) { c.Transport.Kind = "carrier-pigeon" }, "transport.kind"},
		{"mdns on webrtc", func(c *Config) {
			c.Transport.SignalingURL = "ws://relay"
			c.Transport.MDNS = true
		}, "mdns"},
		{"zero tick", func(c *Config) {
			c.Transport.SignalingURL = "ws://relay"
			c.Pointer.Tick = 0
		}, "pointer.tick"},
		{"valid", func(c *Config) { c.Transport.SignalingURL = "ws://relay" }, ""},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			cfg := Default()
			test.modify(cfg)
			err := cfg.Validate()
			if test.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), test.wantErr) {
				t.Fatalf("Validate error = %v, want mention of %q", err, test.wantErr)
			}
		})
	}
}
