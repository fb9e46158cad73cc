// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package transport carries session traffic between tabletop peers.
//
// A transport produces [Link] values: ordered, message-oriented channels
// to one remote peer. Every link, inbound or outbound, is announced by an
// [EventOpened] on the transport's Events channel before any
// [EventMessage] for it, and ends with exactly one [EventClosed]. A link
// that fails also reports [EventError]. Sends never block on the network:
// each link has a bounded queue, and a full queue drops the message with
// [ErrSendQueueFull].
//
// [WebRTCTransport] is the production transport. Each pair of peers
// shares a PeerConnection carrying one ordered "session" data channel.
// Signaling is abstracted behind the [Signaler] interface, which
// publishes and polls SDP offers and answers. [WebSocketSignaler] talks
// to a signaling relay (see the signaling package); [MemorySignaler]
// provides an in-process implementation for tests. Connection
// establishment uses vanilla ICE (all candidates gathered before
// signaling). When both peers dial at once, the peer whose id is
// lexicographically smaller becomes the offerer and the other drops its
// redundant PeerConnection. [ICEConfigFromServers] turns configured
// STUN/TURN servers into pion ICE entries.
//
// [TCPTransport] connects peers directly on a LAN. Peers find each other
// with [Advertise] and [Browse] over mDNS, or by explicit address. Each
// connection opens with a hello frame naming the protocol revision and
// both peer ids.
//
// [MemoryTransport] links peers inside one process and is what session
// tests run against.
//
// When a [PeerAuthenticator] is configured, every link completes a mutual
// challenge-response handshake before it opens. [PasswordAuthenticator]
// derives the handshake key from a shared game password.
package transport
