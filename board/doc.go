// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package board holds the shared state of a table (tokens, drawings,
// fog, and notes) and the reversible actions that change it.
//
// [State] is immutable by convention: every [Action] computes a new
// State from an old one without touching the input, and either applies
// completely or not at all. Each action can produce its own inverse
// from the state it was applied to, which is what undo uses.
//
// [Engine] owns the authoritative local State. Local edits go through
// [Engine.Perform], which stamps them, records their inverse on the
// undo stack, and broadcasts them. Remote edits arrive through
// [Engine.Receive] and are applied without touching history.
// Concurrent edits to one entity resolve by last-write-wins on the
// entity's [Stamp]: a later LastModified wins, and equal times are
// broken by the larger LastModifiedBy peer id.
package board
