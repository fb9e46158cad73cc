// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers.
//
// [RequireReceive], [RequireNoReceive], [RequireSend], and
// [RequireClosed] wrap the select-with-timeout pattern so individual
// tests never call time.After directly. They are the only place in
// the test suite where wall-clock timeouts appear; everything else
// drives time through lib/clock.Fake.
//
// [UniqueID] generates monotonically increasing identifiers for peers
// and entities.
//
// All helpers call t.Fatalf on failure rather than returning errors.
package testutil
