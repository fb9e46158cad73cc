// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads the YAML configuration for a tabletop peer.
//
// Configuration comes from a single file named by the --config flag.
// There is no discovery and no environment override; the only
// substitution is ${VAR} expansion inside the store paths and the
// game password. Every field has a working default, so a peer can
// also run from [Default] with flags alone.
//
// A minimal host configuration:
//
//	peer:
//	  id: gm
//	  color: "#ff0000"
//	transport:
//	  kind: tcp
//	  listen: ":7700"
//	  password: ${TABLETOP_PASSWORD}
//	  mdns: true
//	store:
//	  path: ${HOME}/.local/share/tabletop/maps.db
package config
