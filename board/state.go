// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package board

import (
	"maps"
	"slices"
)

// State is the full shared board. Treat it as immutable: actions
// return a new State sharing the collections they did not change.
type State struct {
	Tokens   map[string]Token   `json:"tokens"`
	Drawings map[string]Drawing `json:"drawings"`
	Fogs     map[string]Fog     `json:"fogs"`
	Notes    map[string]Note    `json:"notes"`
}

// NewState returns an empty board.
func NewState() State {
	return State{
		Tokens:   make(map[string]Token),
		Drawings: make(map[string]Drawing),
		Fogs:     make(map[string]Fog),
		Notes:    make(map[string]Note),
	}
}

// normalize replaces nil collections with empty ones, so that states
// decoded from the wire compare equal to locally built ones.
func (s State) normalize() State {
	if s.Tokens == nil {
		s.Tokens = make(map[string]Token)
	}
	if s.Drawings == nil {
		s.Drawings = make(map[string]Drawing)
	}
	if s.Fogs == nil {
		s.Fogs = make(map[string]Fog)
	}
	if s.Notes == nil {
		s.Notes = make(map[string]Note)
	}
	return s
}

// Len returns the total number of entities.
func (s State) Len() int {
	return len(s.Tokens) + len(s.Drawings) + len(s.Fogs) + len(s.Notes)
}

// entitiesOf returns the collection of s holding T. The map must not
// be modified.
func entitiesOf[T Entity](s State) map[string]T {
	var zero T
	switch any(zero).(type) {
	case Token:
		return any(s.Tokens).(map[string]T)
	case Note:
		return any(s.Notes).(map[string]T)
	case Drawing:
		return any(s.Drawings).(map[string]T)
	default:
		return any(s.Fogs).(map[string]T)
	}
}

// withEntities returns s with the collection holding T replaced.
func withEntities[T Entity](s State, entities map[string]T) State {
	switch typed := any(entities).(type) {
	case map[string]Token:
		s.Tokens = typed
	case map[string]Note:
		s.Notes = typed
	case map[string]Drawing:
		s.Drawings = typed
	case map[string]Fog:
		s.Fogs = typed
	}
	return s
}

// cloneEntities copies a collection for modification.
func cloneEntities[T any](entities map[string]T) map[string]T {
	clone := make(map[string]T, len(entities))
	maps.Copy(clone, entities)
	return clone
}

// Get returns the entity of type T with id.
func Get[T Entity](s State, id string) (T, bool) {
	entity, ok := entitiesOf[T](s)[id]
	return entity, ok
}

// IDs returns the sorted ids in the collection holding T.
func IDs[T Entity](s State) []string {
	return slices.Sorted(maps.Keys(entitiesOf[T](s)))
}
