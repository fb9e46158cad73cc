// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package version provides build version information for the tabletop
// binaries and the peer protocol revision.
//
// [GitCommit], [BuildTime], and [Version] are injected with -ldflags:
//
//	go build -ldflags "-X github.com/bureau-foundation/tabletop/lib/version.GitCommit=$(git rev-parse --short HEAD)"
//
// [Protocol] is compared during the TCP link handshake.
package version
