// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// Transport kinds.
const (
	TransportWebRTC = "webrtc"
	TransportTCP    = "tcp"
)

// Config is the configuration for one tabletop peer.
type Config struct {
	// Peer identifies the local participant.
	Peer PeerConfig `yaml:"peer"`

	// Transport selects and configures the peer link layer.
	Transport TransportConfig `yaml:"transport"`

	// Session configures connection and frame loop behavior.
	Session SessionConfig `yaml:"session"`

	// Pointer configures realtime pointer broadcast and smoothing.
	Pointer PointerConfig `yaml:"pointer"`

	// History configures the local undo/redo stacks.
	History HistoryConfig `yaml:"history"`

	// Store configures on-disk map snapshots.
	Store StoreConfig `yaml:"store"`
}

// PeerConfig identifies the local participant.
type PeerConfig struct {
	// ID is the peer identifier. Must be unique among connected
	// peers. Default: a random UUID generated at load time, stable
	// for the life of the process.
	ID string `yaml:"id"`

	// Color is the pointer color shown to other peers.
	// Default: #ffffff
	Color string `yaml:"color"`
}

// TransportConfig selects the link layer.
type TransportConfig struct {
	// Kind is "webrtc" (NAT traversal via a signaling relay) or "tcp"
	// (direct links on a LAN). Default: webrtc
	Kind string `yaml:"kind"`

	// Listen is the TCP listen address. Required for tcp.
	Listen string `yaml:"listen"`

	// SignalingURL is the WebSocket URL of the signaling relay.
	// Required for webrtc.
	SignalingURL string `yaml:"signaling_url"`

	// ICEServers lists STUN/TURN servers for webrtc. Empty means host
	// candidates only, which is enough on one machine or one LAN.
	ICEServers []ICEServerConfig `yaml:"ice_servers"`

	// Password, when set, requires every peer to prove knowledge of
	// the same game password before its link opens.
	Password string `yaml:"password"`

	// MDNS advertises this peer on the local network and lets the
	// join command discover hosts by id. tcp only.
	MDNS bool `yaml:"mdns"`
}

// ICEServerConfig is one STUN or TURN server.
type ICEServerConfig struct {
	URLs       []string `yaml:"urls"`
	Username   string   `yaml:"username"`
	Credential string   `yaml:"credential"`
}

// SessionConfig configures the peer session.
type SessionConfig struct {
	// ConnectTimeout bounds an outbound connect. Default: 30s
	ConnectTimeout time.Duration `yaml:"connect_timeout"`

	// FrameRate is the number of frame callbacks per second driving
	// interpolation and the pointer broadcast tick. Default: 60
	FrameRate int `yaml:"frame_rate"`
}

// PointerConfig configures realtime pointer sync.
type PointerConfig struct {
	// Tick is the broadcast interval. Default: 50ms (20 updates per
	// second).
	Tick time.Duration `yaml:"tick"`

	// SmoothingWindow is how far ahead a received sample is stamped.
	// Zero means equal to Tick.
	SmoothingWindow time.Duration `yaml:"smoothing_window"`

	// Epsilon is the position tolerance under which two samples are
	// considered identical. Default: 1e-4
	Epsilon float64 `yaml:"epsilon"`
}

// HistoryConfig configures the undo/redo stacks.
type HistoryConfig struct {
	// Limit bounds each stack. Default: 100
	Limit int `yaml:"limit"`
}

// StoreConfig configures snapshot persistence.
type StoreConfig struct {
	// Path is the bbolt database file. Empty disables persistence.
	Path string `yaml:"path"`

	// MapID keys the snapshot within the database. Default: default
	MapID string `yaml:"map_id"`

	// Scene is an optional JSONC file seeding the board when hosting
	// and no stored snapshot exists.
	Scene string `yaml:"scene"`
}

// Default returns a configuration usable without a file.
func Default() *Config {
	return &Config{
		Peer: PeerConfig{
			ID:    uuid.NewString(),
			Color: "#ffffff",
		},
		Transport: TransportConfig{
			Kind: TransportWebRTC,
		},
		Session: SessionConfig{
			ConnectTimeout: 30 * time.Second,
			FrameRate:      60,
		},
		Pointer: PointerConfig{
			Tick:    50 * time.Millisecond,
			Epsilon: 1e-4,
		},
		History: HistoryConfig{
			Limit: 100,
		},
		Store: StoreConfig{
			MapID: "default",
		},
	}
}

// LoadFile loads configuration from path on top of Default.
//
// The file is the single source of truth. The only expansion
// performed is ${VAR} and ${VAR:-default} substitution in path and
// password fields, so that secrets and home directories need not be
// written into the file.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	cfg.expandVariables()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// FrameInterval returns the duration of one frame.
func (c *Config) FrameInterval() time.Duration {
	return time.Second / time.Duration(c.Session.FrameRate)
}

// Smoothing returns the effective smoothing window.
func (c *Config) Smoothing() time.Duration {
	if c.Pointer.SmoothingWindow > 0 {
		return c.Pointer.SmoothingWindow
	}
	return c.Pointer.Tick
}

func (c *Config) expandVariables() {
	c.Store.Path = expandVars(c.Store.Path)
	c.Store.Scene = expandVars(c.Store.Scene)
	c.Transport.Password = expandVars(c.Transport.Password)
}

// varPattern matches ${VAR} and ${VAR:-default}.
var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		groups := varPattern.FindStringSubmatch(match)
		if value := os.Getenv(groups[1]); value != "" {
			return value
		}
		return groups[2]
	})
}

// Validate checks that the configuration is internally consistent.
func (c *Config) Validate() error {
	var errs []error

	if c.Peer.ID == "" {
		errs = append(errs, errors.New("peer.id must not be empty"))
	}

	switch c.Transport.Kind {
	case TransportWebRTC:
		if c.Transport.SignalingURL == "" {
			errs = append(errs, errors.New("transport.signaling_url is required for webrtc"))
		}
		if c.Transport.MDNS {
			errs = append(errs, errors.New("transport.mdns is only supported with tcp"))
		}
	case TransportTCP:
		if c.Transport.Listen == "" {
			errs = append(errs, errors.New("transport.listen is required for tcp"))
		}
	default:
		errs = append(errs, fmt.Errorf("transport.kind %q is not one of webrtc, tcp", c.Transport.Kind))
	}

	if c.Session.ConnectTimeout <= 0 {
		errs = append(errs, errors.New("session.connect_timeout must be positive"))
	}
	if c.Session.FrameRate <= 0 {
		errs = append(errs, errors.New("session.frame_rate must be positive"))
	}
	if c.Pointer.Tick <= 0 {
		errs = append(errs, errors.New("pointer.tick must be positive"))
	}
	if c.Pointer.SmoothingWindow < 0 {
		errs = append(errs, errors.New("pointer.smoothing_window must not be negative"))
	}
	if c.Pointer.Epsilon <= 0 {
		errs = append(errs, errors.New("pointer.epsilon must be positive"))
	}
	if c.History.Limit < 0 {
		errs = append(errs, errors.New("history.limit must not be negative"))
	}
	if c.Store.Path != "" && c.Store.MapID == "" {
		errs = append(errs, errors.New("store.map_id is required when store.path is set"))
	}

	return errors.Join(errs...)
}
