// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"fmt"
	"sync/atomic"
)

var uniqueCounter atomic.Uint64

// UniqueID returns "prefix-N" with N increasing across the test
// binary. Tests use it for peer ids and entity ids that must not
// collide when tests share a signaler or a memory network.
//
//	alice := testutil.UniqueID("alice") // "alice-1"
//	token := testutil.UniqueID("token") // "token-2"
func UniqueID(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, uniqueCounter.Add(1))
}
