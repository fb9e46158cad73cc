// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package board

import "github.com/bureau-foundation/tabletop/lib/vector"

// Stamp records the last write to an entity: the writer's clock in
// Unix milliseconds and its peer id.
type Stamp struct {
	LastModified   int64  `json:"lastModified"`
	LastModifiedBy string `json:"lastModifiedBy"`
}

// NewerThan reports whether s wins over other under last-write-wins.
func (s Stamp) NewerThan(other Stamp) bool {
	if s.LastModified != other.LastModified {
		return s.LastModified > other.LastModified
	}
	return s.LastModifiedBy > other.LastModifiedBy
}

func (s Stamp) stamp() Stamp { return s }

// Token is a character or object placed on the map.
type Token struct {
	ID       string   `json:"id"`
	TokenID  string   `json:"tokenId"`
	Owner    string   `json:"owner"`
	Size     float64  `json:"size"`
	Label    string   `json:"label"`
	Statuses []string `json:"statuses"`
	X        float64  `json:"x"`
	Y        float64  `json:"y"`
	Rotation float64  `json:"rotation"`
	Locked   bool     `json:"locked"`
	Visible  bool     `json:"visible"`
	Stamp
}

// Note is a text note pinned to the map.
type Note struct {
	ID       string  `json:"id"`
	Owner    string  `json:"owner"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Size     float64 `json:"size"`
	Text     string  `json:"text"`
	Color    string  `json:"color"`
	TextOnly bool    `json:"textOnly"`
	Locked   bool    `json:"locked"`
	Visible  bool    `json:"visible"`
	Stamp
}

// Drawing types.
const (
	DrawingPath  = "path"
	DrawingShape = "shape"
)

// Drawing is a freehand path or a geometric shape.
type Drawing struct {
	ID          string           `json:"id"`
	Type        string           `json:"type"`
	ShapeType   string           `json:"shapeType"`
	Points      []vector.Vector2 `json:"points"`
	Color       string           `json:"color"`
	StrokeWidth float64          `json:"strokeWidth"`
	Blend       bool             `json:"blend"`
	Stamp
}

// Fog is a polygon of fog of war, optionally with holes.
type Fog struct {
	ID          string             `json:"id"`
	Points      []vector.Vector2   `json:"points"`
	Holes       [][]vector.Vector2 `json:"holes"`
	Color       string             `json:"color"`
	StrokeWidth float64            `json:"strokeWidth"`
	Visible     bool               `json:"visible"`
	Stamp
}

func (t Token) EntityID() string   { return t.ID }
func (n Note) EntityID() string    { return n.ID }
func (d Drawing) EntityID() string { return d.ID }
func (f Fog) EntityID() string     { return f.ID }

// Entity is the set of record types a State holds.
type Entity interface {
	Token | Note | Drawing | Fog
	EntityID() string
	stamp() Stamp
}

// Collection names one of the four entity maps.
type Collection string

const (
	Tokens   Collection = "tokens"
	Drawings Collection = "drawings"
	Fogs     Collection = "fogs"
	Notes    Collection = "notes"
)

// collectionOf returns the collection holding entities of type T.
func collectionOf[T Entity]() Collection {
	var zero T
	switch any(zero).(type) {
	case Token:
		return Tokens
	case Note:
		return Notes
	case Drawing:
		return Drawings
	default:
		return Fogs
	}
}

// withStamp returns entity with its stamp replaced.
func withStamp[T Entity](entity T, stamp Stamp) T {
	switch value := any(entity).(type) {
	case Token:
		value.Stamp = stamp
		return any(value).(T)
	case Note:
		value.Stamp = stamp
		return any(value).(T)
	case Drawing:
		value.Stamp = stamp
		return any(value).(T)
	case Fog:
		value.Stamp = stamp
		return any(value).(T)
	}
	return entity
}
