// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package signaling implements the WebSocket relay that carries
// WebRTC offers and answers between tabletop peers before they have a
// direct link.
//
// Each peer holds one WebSocket to the [Hub], identified by the "id"
// query parameter. A peer sends a [Message] naming its target; the hub
// stamps the sender and forwards it. If the target is not connected
// the message waits in the target's mailbox (latest per sender and
// type) and is flushed when the target connects, so a host can start
// after its players have already published offers.
//
// The relay never sees game traffic. Once the offer/answer exchange
// completes, peers talk directly over WebRTC data channels and the
// relay could go away without affecting open sessions.
//
// The client side is transport.WebSocketSignaler.
package signaling
