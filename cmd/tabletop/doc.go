// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// tabletop is a headless tabletop peer. It hosts or joins a session,
// keeps the shared board and pointers in sync with the other peers,
// and reads board commands from standard input in place of a UI.
//
// Hosting over WebRTC through a signaling relay:
//
//	tabletop --host --id gm --signaling-url ws://relay:7700/signal
//
// Joining the same table:
//
//	tabletop --id player --signaling-url ws://relay:7700/signal --join gm
//
// On a LAN, --transport tcp links peers directly. Peers are named as
// id@host:port, or by id alone when the host advertises itself with
// mDNS (transport.mdns in the config file):
//
//	tabletop --host --id gm --transport tcp --listen :7701 --mdns
//	tabletop --id player --transport tcp --listen :0 --join gm
//
// The host sends its board to every peer that joins. With store.path
// set, the host reopens the stored map at startup and saves it on exit.
// Type "help" at the prompt for the command list.
package main
