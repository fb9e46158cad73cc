// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package board

import (
	"errors"
	"fmt"

	"github.com/bureau-foundation/tabletop/lib/codec"
)

// maxBatchDepth bounds Batch nesting accepted from the wire.
const maxBatchDepth = 4

// wireAction is the encoded form of every Action. Which fields are
// set depends on Kind: Entities for add, IDs for remove, Patches for
// edit, Shapes (with Stamp and Sources once performed) for cut,
// Actions for batch.
type wireAction struct {
	Kind     Kind             `json:"kind"`
	Target   Collection       `json:"target,omitempty"`
	Entities codec.RawMessage `json:"entities,omitempty"`
	IDs      []string         `json:"ids,omitempty"`
	Patches  map[string]Patch `json:"patches,omitempty"`
	Shapes   []Fog            `json:"shapes,omitempty"`
	Stamp    *Stamp           `json:"stamp,omitempty"`
	Sources  []Fog            `json:"sources,omitempty"`
	Actions  []wireAction     `json:"actions,omitempty"`
}

// EncodeAction returns the wire encoding of action.
func EncodeAction(action Action) ([]byte, error) {
	wire, err := action.wire()
	if err != nil {
		return nil, err
	}
	data, err := codec.Marshal(wire)
	if err != nil {
		return nil, fmt.Errorf("encoding %s action: %w", action.Kind(), err)
	}
	return data, nil
}

// DecodeAction parses and validates an encoded action. Entities are
// decoded strictly: unknown fields are an error.
func DecodeAction(data []byte) (Action, error) {
	var wire wireAction
	if err := codec.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("decoding action: %w", err)
	}
	return fromWire(wire, 0)
}

func (a Add[T]) wire() (wireAction, error) {
	entities, err := codec.Marshal(a.Entities)
	if err != nil {
		return wireAction{}, fmt.Errorf("encoding %s: %w", collectionOf[T](), err)
	}
	return wireAction{Kind: KindAdd, Target: collectionOf[T](), Entities: entities}, nil
}

func (r Remove[T]) wire() (wireAction, error) {
	return wireAction{Kind: KindRemove, Target: collectionOf[T](), IDs: r.IDs}, nil
}

func (e Edit[T]) wire() (wireAction, error) {
	return wireAction{Kind: KindEdit, Target: collectionOf[T](), Patches: e.Patches}, nil
}

func (c Cut) wire() (wireAction, error) {
	wire := wireAction{Kind: KindCut, Target: Fogs, Shapes: c.Shapes, Sources: c.Sources}
	if c.stamped() {
		stamp := c.Stamp
		wire.Stamp = &stamp
	}
	return wire, nil
}

func (b Batch) wire() (wireAction, error) {
	actions := make([]wireAction, len(b.Actions))
	for i, action := range b.Actions {
		wire, err := action.wire()
		if err != nil {
			return wireAction{}, err
		}
		actions[i] = wire
	}
	return wireAction{Kind: KindBatch, Actions: actions}, nil
}

func fromWire(wire wireAction, depth int) (Action, error) {
	switch wire.Kind {
	case KindAdd, KindRemove, KindEdit:
		switch wire.Target {
		case Tokens:
			return typedFromWire[Token](wire)
		case Notes:
			return typedFromWire[Note](wire)
		case Drawings:
			return typedFromWire[Drawing](wire)
		case Fogs:
			return typedFromWire[Fog](wire)
		default:
			return nil, fmt.Errorf("%s action has unknown target %q", wire.Kind, wire.Target)
		}

	case KindCut:
		if wire.Target != "" && wire.Target != Fogs {
			return nil, fmt.Errorf("cut action targets %q, only fogs can be cut", wire.Target)
		}
		if len(wire.Shapes) == 0 {
			return nil, errors.New("cut action has no shapes")
		}
		for _, shape := range wire.Shapes {
			if err := validateShape(shape); err != nil {
				return nil, err
			}
		}
		cut := Cut{Shapes: wire.Shapes, Sources: wire.Sources}
		if wire.Stamp != nil {
			cut.Stamp = *wire.Stamp
		}
		if len(cut.Sources) > 0 && !cut.stamped() {
			return nil, errors.New("cut action carries sources without a stamp")
		}
		for _, source := range cut.Sources {
			if source.ID == "" {
				return nil, errors.New("cut action carries a source with no id")
			}
			if err := validateShape(source); err != nil {
				return nil, err
			}
		}
		return cut, nil

	case KindBatch:
		if depth >= maxBatchDepth {
			return nil, fmt.Errorf("batch nested deeper than %d", maxBatchDepth)
		}
		actions := make([]Action, len(wire.Actions))
		for i, inner := range wire.Actions {
			action, err := fromWire(inner, depth+1)
			if err != nil {
				return nil, fmt.Errorf("batch step %d: %w", i, err)
			}
			actions[i] = action
		}
		return Batch{Actions: actions}, nil

	default:
		return nil, fmt.Errorf("unknown action kind %q", wire.Kind)
	}
}

func typedFromWire[T Entity](wire wireAction) (Action, error) {
	collection := collectionOf[T]()
	switch wire.Kind {
	case KindAdd:
		var entities []T
		if len(wire.Entities) > 0 {
			if err := codec.UnmarshalStrict(wire.Entities, &entities); err != nil {
				return nil, fmt.Errorf("decoding %s to add: %w", collection, err)
			}
		}
		for i, entity := range entities {
			if entity.EntityID() == "" {
				return nil, fmt.Errorf("%s entity %d to add has no id", collection, i)
			}
			if fog, ok := any(entity).(Fog); ok {
				if err := validateShape(fog); err != nil {
					return nil, err
				}
			}
		}
		return Add[T]{Entities: entities}, nil

	case KindRemove:
		for _, id := range wire.IDs {
			if id == "" {
				return nil, fmt.Errorf("remove from %s lists an empty id", collection)
			}
		}
		return Remove[T]{IDs: wire.IDs}, nil

	default:
		for id, patch := range wire.Patches {
			if id == "" {
				return nil, fmt.Errorf("edit of %s has a patch for an empty id", collection)
			}
			if _, ok := patch["id"]; ok {
				return nil, fmt.Errorf("edit of %s %s changes its id", collection, id)
			}
		}
		return Edit[T]{Patches: wire.Patches}, nil
	}
}
