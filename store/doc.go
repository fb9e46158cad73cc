// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package store persists board snapshots in a bbolt database so a host
// can reopen a map after restarting.
//
// Each map is one record in the "maps" bucket, keyed by map id. The
// record is a CBOR envelope around the board's canonical CBOR
// encoding, LZ4 block-compressed when that makes it smaller.
package store
