// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package version

import (
	"fmt"
	"runtime"
)

// These variables are set via -ldflags at build time.
var (
	// GitCommit is the short git SHA of the build.
	GitCommit = "unknown"

	// BuildTime is the UTC timestamp of the build.
	BuildTime = "unknown"

	// Version is the semantic version. Set manually for releases.
	Version = "0.1.0-dev"
)

// Protocol is the peer wire protocol revision. Peers exchange it when
// a link opens and refuse links whose revision differs, since action
// and snapshot encodings are not negotiated.
const Protocol = 1

// Info returns a formatted version string suitable for --version.
func Info() string {
	return fmt.Sprintf("%s (%s, %s, protocol %d)", Version, GitCommit, BuildTime, Protocol)
}

// Full returns Info plus the Go toolchain and platform.
func Full() string {
	return fmt.Sprintf("%s\n  Go: %s\n  Platform: %s/%s",
		Info(), runtime.Version(), runtime.GOOS, runtime.GOARCH)
}
