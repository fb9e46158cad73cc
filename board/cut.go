// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package board

import (
	"fmt"
	"maps"
	"slices"
	"strconv"

	polyclip "github.com/ctessum/polyclip-go"

	"github.com/bureau-foundation/tabletop/lib/vector"
)

// Cut subtracts Shapes from every fog polygon they overlap. A fog
// polygon left in one piece keeps its id; one split into several
// becomes "<id>-1", "<id>-2", ... in a deterministic order. A polygon
// cut away entirely is removed. Fog whose bounding box does not
// strictly overlap a cutter is untouched, so delivering the same Cut
// twice changes nothing the second time.
//
// A performed Cut carries a Stamp, written onto every piece, and the
// Sources it cut as the performer saw them. A peer whose copy of a
// source is older than the Stamp cuts the carried source instead, and
// a peer whose copy is at least as new leaves it alone.
type Cut struct {
	Shapes  []Fog
	Stamp   Stamp
	Sources []Fog
}

func (c Cut) Kind() Kind { return KindCut }

func (c Cut) Apply(state State) (State, error) {
	results := c.compute(state.Fogs)
	if len(results) == 0 {
		return state, nil
	}
	fogs := cloneEntities(state.Fogs)
	for _, result := range results {
		delete(fogs, result.prior.ID)
		for _, piece := range result.pieces {
			fogs[piece.ID] = piece
		}
	}
	state.Fogs = fogs
	return state, nil
}

// Invert removes the pieces the cut creates and restores every fog
// entity the cut replaced or overwrote.
func (c Cut) Invert(prior State) (Action, error) {
	results := c.compute(prior.Fogs)
	var removed []string
	restored := make(map[string]Fog)
	for _, result := range results {
		restored[result.prior.ID] = result.prior
		for _, piece := range result.pieces {
			if previous, ok := prior.Fogs[piece.ID]; ok {
				restored[piece.ID] = previous
			} else {
				removed = append(removed, piece.ID)
			}
		}
	}
	slices.Sort(removed)
	add := make([]Fog, 0, len(restored))
	for _, id := range slices.Sorted(maps.Keys(restored)) {
		add = append(add, restored[id])
	}
	return Batch{Actions: []Action{Remove[Fog]{IDs: removed}, Add[Fog]{Entities: add}}}, nil
}

// stamp records the fog the cut touches in state and a stamp newer
// than all of it.
func (c Cut) stamp(state State, now int64, writer string) Action {
	results := Cut{Shapes: c.Shapes}.compute(state.Fogs)
	stamped := Cut{Shapes: c.Shapes, Stamp: Stamp{LastModified: now, LastModifiedBy: writer}}
	for _, result := range results {
		if next := nextStamp(result.prior.Stamp, now, writer); next.NewerThan(stamped.Stamp) {
			stamped.Stamp = next
		}
		stamped.Sources = append(stamped.Sources, result.prior)
	}
	return stamped
}

func (c Cut) filter(State) Action { return c }

type cutResult struct {
	prior  Fog
	pieces []Fog
}

func (c Cut) stamped() bool { return c.Stamp != Stamp{} }

// compute returns, in id order, the fog polygons the cut replaces and
// what remains of each.
func (c Cut) compute(fogs map[string]Fog) []cutResult {
	if len(c.Shapes) == 0 {
		return nil
	}
	var clipping polyclip.Polygon
	var cutterBoxes []vector.Box
	for _, shape := range c.Shapes {
		clipping = append(clipping, shapeContours(shape)...)
		cutterBoxes = append(cutterBoxes, vector.Bounds(shape.Points))
	}
	sources := make(map[string]Fog, len(c.Sources))
	for _, source := range c.Sources {
		sources[source.ID] = source
	}

	var results []cutResult
	for _, id := range slices.Sorted(maps.Keys(fogs)) {
		fog := fogs[id]
		if c.stamped() && !c.Stamp.NewerThan(fog.Stamp) {
			continue
		}
		source, carried := sources[id]
		if !carried {
			if !overlapsAny(vector.Bounds(fog.Points), cutterBoxes) {
				continue
			}
			source = fog
		}
		remaining := polyclip.Polygon(shapeContours(source)).Construct(polyclip.DIFFERENCE, clipping)
		pieces := splitPieces(source, remaining)
		if c.stamped() {
			for i := range pieces {
				pieces[i].Stamp = c.Stamp
			}
		}
		results = append(results, cutResult{prior: fog, pieces: pieces})
	}
	return results
}

func overlapsAny(box vector.Box, others []vector.Box) bool {
	for _, other := range others {
		if box.Overlaps(other) {
			return true
		}
	}
	return false
}

func shapeContours(shape Fog) []polyclip.Contour {
	contours := []polyclip.Contour{toContour(shape.Points)}
	for _, hole := range shape.Holes {
		contours = append(contours, toContour(hole))
	}
	return contours
}

func toContour(points []vector.Vector2) polyclip.Contour {
	contour := make(polyclip.Contour, len(points))
	for i, point := range points {
		contour[i] = polyclip.Point{X: point.X, Y: point.Y}
	}
	return contour
}

func fromContour(contour polyclip.Contour) []vector.Vector2 {
	points := make([]vector.Vector2, len(contour))
	for i, point := range contour {
		points[i] = vector.Vector2{X: point.X, Y: point.Y}
	}
	return points
}

// splitPieces turns the contours of a clipping result into fog
// entities. A contour inside an odd number of others is a hole of the
// smallest outer contour containing it.
func splitPieces(source Fog, remaining polyclip.Polygon) []Fog {
	type ring struct {
		points []vector.Vector2
		area   float64
		holes  [][]vector.Vector2
	}
	var outers []*ring
	var holes [][]vector.Vector2
	for i, contour := range remaining {
		if len(contour) < 3 {
			continue
		}
		points := fromContour(contour)
		depth := 0
		for j, other := range remaining {
			if i != j && len(other) >= 3 && vector.PointInPolygon(points[0], fromContour(other)) {
				depth++
			}
		}
		if depth%2 == 1 {
			holes = append(holes, points)
			continue
		}
		outers = append(outers, &ring{points: points, area: vector.Area(points)})
	}

	for _, hole := range holes {
		var owner *ring
		for _, outer := range outers {
			if vector.PointInPolygon(hole[0], outer.points) && (owner == nil || outer.area < owner.area) {
				owner = outer
			}
		}
		if owner != nil {
			owner.holes = append(owner.holes, hole)
		}
	}

	// Order pieces by bounding box so ids do not depend on the
	// clipper's contour order.
	slices.SortStableFunc(outers, func(a, b *ring) int {
		boxA, boxB := vector.Bounds(a.points), vector.Bounds(b.points)
		if boxA.Min.X != boxB.Min.X {
			return compareFloat(boxA.Min.X, boxB.Min.X)
		}
		return compareFloat(boxA.Min.Y, boxB.Min.Y)
	})

	pieces := make([]Fog, len(outers))
	for i, outer := range outers {
		piece := source
		piece.Points = outer.points
		piece.Holes = outer.holes
		if len(outers) > 1 {
			piece.ID = source.ID + "-" + strconv.Itoa(i+1)
		}
		pieces[i] = piece
	}
	return pieces
}

func compareFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// validateShape checks that a fog polygon is usable geometry.
func validateShape(shape Fog) error {
	if len(shape.Points) < 3 {
		return fmt.Errorf("fog shape %q has %d points, need at least 3", shape.ID, len(shape.Points))
	}
	for i, hole := range shape.Holes {
		if len(hole) < 3 {
			return fmt.Errorf("hole %d of fog shape %q has %d points, need at least 3", i, shape.ID, len(hole))
		}
	}
	return nil
}
