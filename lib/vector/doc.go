// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package vector provides the small amount of 2D math shared by the
// board and pointer packages: a Vector2 value type, linear
// interpolation, epsilon-tolerant comparison, and axis-aligned
// bounding boxes.
//
// Coordinates on the tabletop are normalized map coordinates, so the
// epsilon used for "has the pointer moved" is small (1e-4) relative to
// a unit map.
package vector
