// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"github.com/pion/webrtc/v4"

	"github.com/bureau-foundation/tabletop/lib/config"
)

// ICEConfig holds ICE server configuration for WebRTC PeerConnections.
type ICEConfig struct {
	// Servers is the list of ICE servers (STUN + TURN) to use during
	// candidate gathering. Order matters: pion tries them in sequence.
	Servers []webrtc.ICEServer
}

// ICEConfigFromServers converts configured STUN/TURN servers into an
// ICEConfig. Entries without URLs are skipped. An empty result gathers
// host candidates only, which is enough on one machine or one LAN.
func ICEConfigFromServers(servers []config.ICEServerConfig) ICEConfig {
	var result ICEConfig
	for _, server := range servers {
		if len(server.URLs) == 0 {
			continue
		}
		entry := webrtc.ICEServer{URLs: server.URLs, Username: server.Username}
		if server.Credential != "" {
			entry.Credential = server.Credential
		}
		result.Servers = append(result.Servers, entry)
	}
	return result
}
