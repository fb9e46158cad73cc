// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package vector

import "math"

// Vector2 is a point or offset in map space.
type Vector2 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Add returns a + b.
func Add(a, b Vector2) Vector2 { return Vector2{X: a.X + b.X, Y: a.Y + b.Y} }

// Subtract returns a - b.
func Subtract(a, b Vector2) Vector2 { return Vector2{X: a.X - b.X, Y: a.Y - b.Y} }

// Multiply scales a by s.
func Multiply(a Vector2, s float64) Vector2 { return Vector2{X: a.X * s, Y: a.Y * s} }

// Lerp linearly interpolates from a to b. alpha is not clamped.
func Lerp(a, b Vector2, alpha float64) Vector2 {
	return Vector2{
		X: a.X + (b.X-a.X)*alpha,
		Y: a.Y + (b.Y-a.Y)*alpha,
	}
}

// Compare reports whether a and b differ by less than epsilon on
// both axes.
func Compare(a, b Vector2, epsilon float64) bool {
	return math.Abs(a.X-b.X) < epsilon && math.Abs(a.Y-b.Y) < epsilon
}

// Box is an axis-aligned bounding box.
type Box struct {
	Min Vector2
	Max Vector2
}

// Bounds returns the bounding box of points. The zero Box is returned
// for an empty slice.
func Bounds(points []Vector2) Box {
	if len(points) == 0 {
		return Box{}
	}
	box := Box{Min: points[0], Max: points[0]}
	for _, point := range points[1:] {
		box.Min.X = math.Min(box.Min.X, point.X)
		box.Min.Y = math.Min(box.Min.Y, point.Y)
		box.Max.X = math.Max(box.Max.X, point.X)
		box.Max.Y = math.Max(box.Max.Y, point.Y)
	}
	return box
}

// Overlaps reports whether the interiors of a and b intersect.
// Boxes that only share an edge do not overlap.
func (a Box) Overlaps(b Box) bool {
	return a.Min.X < b.Max.X && b.Min.X < a.Max.X &&
		a.Min.Y < b.Max.Y && b.Min.Y < a.Max.Y
}

// PointInPolygon reports whether point lies inside the closed polygon
// described by points, using the even-odd rule.
func PointInPolygon(point Vector2, polygon []Vector2) bool {
	inside := false
	for i, j := 0, len(polygon)-1; i < len(polygon); j, i = i, i+1 {
		a, b := polygon[i], polygon[j]
		if (a.Y > point.Y) != (b.Y > point.Y) &&
			point.X < (b.X-a.X)*(point.Y-a.Y)/(b.Y-a.Y)+a.X {
			inside = !inside
		}
	}
	return inside
}

// Area returns the absolute area of the polygon described by points.
func Area(polygon []Vector2) float64 {
	sum := 0.0
	for i := range polygon {
		a := polygon[i]
		b := polygon[(i+1)%len(polygon)]
		sum += a.X*b.Y - b.X*a.Y
	}
	return math.Abs(sum) / 2
}
