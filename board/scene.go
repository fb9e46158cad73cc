// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package board

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/tidwall/jsonc"
)

// Scene is the on-disk seed for a hosted board: JSON with comments
// and trailing commas allowed, entity lists in the wire field names.
//
//	{
//	  // party
//	  "tokens": [{"id": "fighter", "x": 0.5, "y": 0.5, "visible": true}],
//	  "fogs": [{"id": "cave", "points": [{"x": 0, "y": 0}, ...]}],
//	}
type Scene struct {
	Tokens   []Token   `json:"tokens"`
	Drawings []Drawing `json:"drawings"`
	Fogs     []Fog     `json:"fogs"`
	Notes    []Note    `json:"notes"`
}

// LoadScene reads a scene file and returns the board it describes.
func LoadScene(path string) (State, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return State{}, fmt.Errorf("reading scene: %w", err)
	}
	return ParseScene(data)
}

// ParseScene parses scene file content. Duplicate ids and fog with
// fewer than three points are rejected.
func ParseScene(data []byte) (State, error) {
	var scene Scene
	if err := json.Unmarshal(jsonc.ToJSON(data), &scene); err != nil {
		return State{}, fmt.Errorf("parsing scene: %w", err)
	}
	state := NewState()
	var err error
	if state.Tokens, err = sceneCollection(scene.Tokens); err != nil {
		return State{}, err
	}
	if state.Drawings, err = sceneCollection(scene.Drawings); err != nil {
		return State{}, err
	}
	if state.Notes, err = sceneCollection(scene.Notes); err != nil {
		return State{}, err
	}
	if state.Fogs, err = sceneCollection(scene.Fogs); err != nil {
		return State{}, err
	}
	for _, fog := range scene.Fogs {
		if err := validateShape(fog); err != nil {
			return State{}, fmt.Errorf("scene: %w", err)
		}
	}
	return state, nil
}

func sceneCollection[T Entity](entities []T) (map[string]T, error) {
	collection := make(map[string]T, len(entities))
	for i, entity := range entities {
		id := entity.EntityID()
		if id == "" {
			return nil, fmt.Errorf("scene: %s entry %d has no id", collectionOf[T](), i)
		}
		if _, ok := collection[id]; ok {
			return nil, fmt.Errorf("scene: duplicate %s id %q", collectionOf[T](), id)
		}
		collection[id] = entity
	}
	return collection, nil
}
