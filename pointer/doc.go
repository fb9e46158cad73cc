// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package pointer shares each participant's pointer with the other
// peers in a session.
//
// Local pointer input updates the local state immediately and stages
// it for broadcast. The frame loop drives everything else: it
// accumulates elapsed time and sends the staged state at most once per
// tick (20 per second by default), and it renders every remote pointer
// by interpolating between the last two distinct samples received from
// that peer. A received sample is stamped one smoothing window into the
// future, on the assumption that the next one arrives a tick later, so
// that motion is continuous between sparse updates.
//
// Pointer state is ephemeral. It never enters the board's action
// history and is not persisted.
package pointer
