// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package board

import (
	"errors"
	"reflect"
	"testing"

	"github.com/bureau-foundation/tabletop/lib/vector"
)

func square(id string, minX, minY, maxX, maxY float64) Fog {
	return Fog{
		ID: id,
		Points: []vector.Vector2{
			{X: minX, Y: minY},
			{X: maxX, Y: minY},
			{X: maxX, Y: maxY},
			{X: minX, Y: maxY},
		},
		Color:   "#000000",
		Visible: true,
	}
}

// fixtureState returns a board with one entity of each kind.
func fixtureState() State {
	state := NewState()
	state.Tokens["goblin"] = Token{
		ID:       "goblin",
		TokenID:  "goblin-image",
		Owner:    "alice",
		Size:     1,
		Label:    "Goblin",
		Statuses: []string{"poisoned"},
		X:        1,
		Y:        2,
		Visible:  true,
		Stamp:    Stamp{LastModified: 100, LastModifiedBy: "alice"},
	}
	state.Notes["clue"] = Note{ID: "clue", Text: "the door is trapped", X: 3, Y: 3, Size: 1, Visible: true}
	state.Drawings["line"] = Drawing{
		ID:          "line",
		Type:        DrawingPath,
		Points:      []vector.Vector2{{X: 0, Y: 0}, {X: 1, Y: 1}},
		Color:       "#ff0000",
		StrokeWidth: 2,
	}
	state.Fogs["cave"] = square("cave", 0, 0, 10, 10)
	return state
}

func TestAction_InvertRestoresPriorState(t *testing.T) {
	tests := []struct {
		name   string
		action Action
	}{
		{"add new", Add[Token]{Entities: []Token{{ID: "orc", X: 4, Visible: true}}}},
		{"add overwrite", Add[Token]{Entities: []Token{{ID: "goblin", Label: "Hobgoblin"}}}},
		{"add duplicate ids", Add[Note]{Entities: []Note{{ID: "a", Text: "one"}, {ID: "a", Text: "two"}}}},
		{"remove", Remove[Drawing]{IDs: []string{"line"}}},
		{"remove missing", Remove[Drawing]{IDs: []string{"nothing"}}},
		{"remove all", RemoveAll[Fog](fixtureState())},
		{"edit", Edit[Token]{Patches: map[string]Patch{
			"goblin": {"x": 5.0, "label": "Hurt goblin", "statuses": []any{}},
		}}},
		{"edit missing id", Edit[Token]{Patches: map[string]Patch{"ghost": {"x": 5.0}}}},
		{"cut shrinks", Cut{Shapes: []Fog{square("cutter", 5, -5, 15, 15)}}},
		{"cut splits", Cut{Shapes: []Fog{square("cutter", 4, -5, 6, 15)}}},
		{"cut removes", Cut{Shapes: []Fog{square("cutter", -1, -1, 11, 11)}}},
		{"batch", Batch{Actions: []Action{
			Add[Token]{Entities: []Token{{ID: "orc"}}},
			Edit[Token]{Patches: map[string]Patch{"orc": {"x": 7.0}}},
			Remove[Note]{IDs: []string{"clue"}},
		}}},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			prior := fixtureState()
			inverse, err := test.action.Invert(prior)
			if err != nil {
				t.Fatalf("Invert: %v", err)
			}
			applied, err := test.action.Apply(prior)
			if err != nil {
				t.Fatalf("Apply: %v", err)
			}
			restored, err := inverse.Apply(applied)
			if err != nil {
				t.Fatalf("applying inverse: %v", err)
			}
			if !reflect.DeepEqual(restored, fixtureState()) {
				t.Errorf("state after inverse differs from prior\ngot  %+v\nwant %+v", restored, fixtureState())
			}
		})
	}
}

func TestAction_ApplyDoesNotModifyInput(t *testing.T) {
	prior := fixtureState()
	actions := []Action{
		Add[Token]{Entities: []Token{{ID: "orc"}}},
		Remove[Token]{IDs: []string{"goblin"}},
		Edit[Token]{Patches: map[string]Patch{"goblin": {"x": 9.0}}},
		Cut{Shapes: []Fog{square("cutter", 5, -5, 15, 15)}},
	}
	for _, action := range actions {
		if _, err := action.Apply(prior); err != nil {
			t.Fatalf("%s: Apply: %v", action.Kind(), err)
		}
	}
	if !reflect.DeepEqual(prior, fixtureState()) {
		t.Errorf("input state was modified: %+v", prior)
	}
}

func TestEdit_Apply(t *testing.T) {
	state, err := Edit[Token]{Patches: map[string]Patch{
		"goblin": {"x": 5.0, "locked": true},
	}}.Apply(fixtureState())
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	token := state.Tokens["goblin"]
	if token.X != 5 || !token.Locked {
		t.Errorf("got x=%v locked=%v, want x=5 locked=true", token.X, token.Locked)
	}
	if token.Label != "Goblin" || token.Y != 2 {
		t.Errorf("unpatched fields changed: %+v", token)
	}
}

func TestEdit_ApplyRejectsBadPatches(t *testing.T) {
	tests := []struct {
		name  string
		patch Patch
	}{
		{"unknown field", Patch{"hitPoints": 12}},
		{"wrong type", Patch{"label": 12}},
		{"id change", Patch{"id": "other"}},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			prior := fixtureState()
			got, err := Edit[Token]{Patches: map[string]Patch{"goblin": test.patch}}.Apply(prior)
			if !errors.Is(err, ErrInvalidAction) {
				t.Fatalf("got error %v, want ErrInvalidAction", err)
			}
			if !reflect.DeepEqual(got, fixtureState()) {
				t.Errorf("state changed on failed edit")
			}
		})
	}
}

func TestBatch_ApplyIsAllOrNothing(t *testing.T) {
	prior := fixtureState()
	got, err := Batch{Actions: []Action{
		Remove[Note]{IDs: []string{"clue"}},
		Edit[Token]{Patches: map[string]Patch{"goblin": {"bogus": true}}},
	}}.Apply(prior)
	if !errors.Is(err, ErrInvalidAction) {
		t.Fatalf("got error %v, want ErrInvalidAction", err)
	}
	if _, ok := got.Notes["clue"]; !ok {
		t.Error("first batch step survived a failure in the second")
	}
}

func TestStamp_NewerThan(t *testing.T) {
	tests := []struct {
		name string
		a, b Stamp
		want bool
	}{
		{"later time", Stamp{2, "a"}, Stamp{1, "z"}, true},
		{"earlier time", Stamp{1, "z"}, Stamp{2, "a"}, false},
		{"tie higher id", Stamp{1, "bob"}, Stamp{1, "alice"}, true},
		{"tie lower id", Stamp{1, "alice"}, Stamp{1, "bob"}, false},
		{"equal", Stamp{1, "alice"}, Stamp{1, "alice"}, false},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if got := test.a.NewerThan(test.b); got != test.want {
				t.Errorf("got %v, want %v", got, test.want)
			}
		})
	}
}

func TestAdd_StampIsMonotonic(t *testing.T) {
	state := fixtureState()
	stamped := Add[Token]{Entities: []Token{{ID: "goblin"}, {ID: "orc"}}}.stamp(state, 50, "bob").(Add[Token])
	if got, want := stamped.Entities[0].Stamp, (Stamp{LastModified: 101, LastModifiedBy: "bob"}); got != want {
		t.Errorf("existing entity: got stamp %+v, want %+v", got, want)
	}
	if got, want := stamped.Entities[1].Stamp, (Stamp{LastModified: 50, LastModifiedBy: "bob"}); got != want {
		t.Errorf("new entity: got stamp %+v, want %+v", got, want)
	}
}
