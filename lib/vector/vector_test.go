// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package vector

import "testing"

func TestLerp(t *testing.T) {
	from := Vector2{X: 0, Y: 0}
	to := Vector2{X: 10, Y: 10}

	tests := []struct {
		alpha float64
		want  Vector2
	}{
		{0, Vector2{X: 0, Y: 0}},
		{0.5, Vector2{X: 5, Y: 5}},
		{1, Vector2{X: 10, Y: 10}},
	}
	for _, test := range tests {
		if got := Lerp(from, to, test.alpha); got != test.want {
			t.Errorf("Lerp(alpha=%v) = %v, want %v", test.alpha, got, test.want)
		}
	}
}

func TestCompare(t *testing.T) {
	base := Vector2{X: 0.5, Y: 0.5}
	if !Compare(base, Vector2{X: 0.50005, Y: 0.49995}, 1e-4) {
		t.Error("points within epsilon compared unequal")
	}
	if Compare(base, Vector2{X: 0.5002, Y: 0.5}, 1e-4) {
		t.Error("points beyond epsilon compared equal")
	}
}

func TestBox_Overlaps(t *testing.T) {
	square := Bounds([]Vector2{{0, 0}, {10, 0}, {10, 10}, {0, 10}})
	if square.Min != (Vector2{0, 0}) || square.Max != (Vector2{10, 10}) {
		t.Fatalf("Bounds = %+v", square)
	}

	tests := []struct {
		name  string
		other Box
		want  bool
	}{
		{"inside", Box{Min: Vector2{2, 2}, Max: Vector2{3, 3}}, true},
		{"partial", Box{Min: Vector2{5, -5}, Max: Vector2{15, 15}}, true},
		{"shared edge", Box{Min: Vector2{10, 0}, Max: Vector2{20, 10}}, false},
		{"disjoint", Box{Min: Vector2{20, 20}, Max: Vector2{30, 30}}, false},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if got := square.Overlaps(test.other); got != test.want {
				t.Errorf("Overlaps = %v, want %v", got, test.want)
			}
		})
	}
}

func TestPointInPolygon(t *testing.T) {
	square := []Vector2{{0, 0}, {10, 0}, {10, 10}, {0, 10}}
	if !PointInPolygon(Vector2{5, 5}, square) {
		t.Error("center reported outside")
	}
	if PointInPolygon(Vector2{15, 5}, square) {
		t.Error("outside point reported inside")
	}
}

func TestArea(t *testing.T) {
	rectangle := []Vector2{{0, 0}, {5, 0}, {5, 10}, {0, 10}}
	if got := Area(rectangle); got != 50 {
		t.Errorf("Area = %v, want 50", got)
	}
}
