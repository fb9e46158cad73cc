// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package board

import (
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/bureau-foundation/tabletop/lib/codec"
)

// ErrInvalidAction is wrapped by errors from actions that decode
// correctly but cannot be applied, such as an Edit whose patch does not
// fit the entity's fields. The state is left unchanged.
var ErrInvalidAction = errors.New("board: invalid action")

// Kind identifies an action variant on the wire.
type Kind string

const (
	KindAdd    Kind = "add"
	KindRemove Kind = "remove"
	KindEdit   Kind = "edit"
	KindCut    Kind = "cut"
	KindBatch  Kind = "batch"
)

// Action is a reversible mutation of a State. The set of
// implementations is closed: Add, Remove, Edit, Cut, and Batch.
type Action interface {
	Kind() Kind

	// Apply returns the state after the action. The input is never
	// modified; on error it is the result's only valid value.
	Apply(state State) (State, error)

	// Invert returns the action that undoes this one, given the state
	// it is about to be (or was) applied to.
	Invert(prior State) (Action, error)

	wire() (wireAction, error)

	// stamp returns a copy whose writes carry a fresh stamp for
	// writer at now (Unix ms), monotonic per entity over state.
	stamp(state State, now int64, writer string) Action

	// filter drops the parts of a remote action that lose
	// last-write-wins against state.
	filter(state State) Action
}

// nextStamp returns a stamp at now for writer, strictly after current
// so that repeated local edits within one millisecond still order.
func nextStamp(current Stamp, now int64, writer string) Stamp {
	return Stamp{LastModified: max(now, current.LastModified+1), LastModifiedBy: writer}
}

// Add inserts entities, overwriting any with the same id.
type Add[T Entity] struct {
	Entities []T
}

func (a Add[T]) Kind() Kind { return KindAdd }

func (a Add[T]) Apply(state State) (State, error) {
	entities := cloneEntities(entitiesOf[T](state))
	for _, entity := range a.Entities {
		entities[entity.EntityID()] = entity
	}
	return withEntities(state, entities), nil
}

// Invert removes the added ids and restores any entity an add
// overwrote.
func (a Add[T]) Invert(prior State) (Action, error) {
	entities := entitiesOf[T](prior)
	var removed []string
	var restored []T
	seen := make(map[string]bool, len(a.Entities))
	for _, entity := range a.Entities {
		id := entity.EntityID()
		if seen[id] {
			continue
		}
		seen[id] = true
		if previous, ok := entities[id]; ok {
			restored = append(restored, previous)
		} else {
			removed = append(removed, id)
		}
	}
	if len(restored) == 0 {
		return Remove[T]{IDs: removed}, nil
	}
	return Batch{Actions: []Action{Remove[T]{IDs: removed}, Add[T]{Entities: restored}}}, nil
}

func (a Add[T]) stamp(state State, now int64, writer string) Action {
	current := entitiesOf[T](state)
	stamped := make([]T, len(a.Entities))
	for i, entity := range a.Entities {
		var previous Stamp
		if existing, ok := current[entity.EntityID()]; ok {
			previous = existing.stamp()
		}
		stamped[i] = withStamp(entity, nextStamp(previous, now, writer))
	}
	return Add[T]{Entities: stamped}
}

func (a Add[T]) filter(State) Action { return a }

// Remove deletes entities by id. Missing ids are ignored.
type Remove[T Entity] struct {
	IDs []string
}

func (r Remove[T]) Kind() Kind { return KindRemove }

func (r Remove[T]) Apply(state State) (State, error) {
	current := entitiesOf[T](state)
	present := false
	for _, id := range r.IDs {
		if _, ok := current[id]; ok {
			present = true
			break
		}
	}
	if !present {
		return state, nil
	}
	entities := cloneEntities(current)
	for _, id := range r.IDs {
		delete(entities, id)
	}
	return withEntities(state, entities), nil
}

// Invert re-adds the entities as they were before removal.
func (r Remove[T]) Invert(prior State) (Action, error) {
	entities := entitiesOf[T](prior)
	var restored []T
	seen := make(map[string]bool, len(r.IDs))
	for _, id := range r.IDs {
		if entity, ok := entities[id]; ok && !seen[id] {
			seen[id] = true
			restored = append(restored, entity)
		}
	}
	return Add[T]{Entities: restored}, nil
}

func (r Remove[T]) stamp(State, int64, string) Action { return r }
func (r Remove[T]) filter(State) Action                 { return r }

// RemoveAll returns a Remove of every entity of type T in state.
func RemoveAll[T Entity](state State) Remove[T] {
	return Remove[T]{IDs: IDs[T](state)}
}

// Patch is a partial entity: field names (as on the wire) mapped to
// new values. The "id" field cannot be patched.
type Patch map[string]any

// Edit merges patches into existing entities. Ids without an entity
// are skipped.
type Edit[T Entity] struct {
	Patches map[string]Patch
}

func (e Edit[T]) Kind() Kind { return KindEdit }

func (e Edit[T]) Apply(state State) (State, error) {
	current := entitiesOf[T](state)
	var entities map[string]T
	for _, id := range slices.Sorted(maps.Keys(e.Patches)) {
		entity, ok := current[id]
		if !ok {
			continue
		}
		patched, err := applyPatch(entity, e.Patches[id])
		if err != nil {
			return state, err
		}
		if entities == nil {
			entities = cloneEntities(current)
		}
		entities[id] = patched
	}
	if entities == nil {
		return state, nil
	}
	return withEntities(state, entities), nil
}

// Invert patches the same fields back to their prior values.
func (e Edit[T]) Invert(prior State) (Action, error) {
	current := entitiesOf[T](prior)
	inverse := make(map[string]Patch, len(e.Patches))
	for id, patch := range e.Patches {
		entity, ok := current[id]
		if !ok {
			continue
		}
		fields, err := entityFields(entity)
		if err != nil {
			return nil, err
		}
		restore := make(Patch, len(patch))
		for key := range patch {
			if value, ok := fields[key]; ok {
				restore[key] = value
			}
		}
		inverse[id] = restore
	}
	return Edit[T]{Patches: inverse}, nil
}

func (e Edit[T]) stamp(state State, now int64, writer string) Action {
	current := entitiesOf[T](state)
	patches := make(map[string]Patch, len(e.Patches))
	for id, patch := range e.Patches {
		var previous Stamp
		if existing, ok := current[id]; ok {
			previous = existing.stamp()
		}
		next := nextStamp(previous, now, writer)
		stamped := maps.Clone(patch)
		if stamped == nil {
			stamped = make(Patch, 2)
		}
		stamped["lastModified"] = next.LastModified
		stamped["lastModifiedBy"] = next.LastModifiedBy
		patches[id] = stamped
	}
	return Edit[T]{Patches: patches}
}

// filter keeps only patches whose stamp is at least as new as the
// entity's. Equal stamps pass so that a duplicate delivery reapplies
// the same values.
func (e Edit[T]) filter(state State) Action {
	current := entitiesOf[T](state)
	kept := make(map[string]Patch, len(e.Patches))
	for id, patch := range e.Patches {
		entity, ok := current[id]
		if !ok {
			continue
		}
		if entity.stamp().NewerThan(patchStamp(patch)) {
			continue
		}
		kept[id] = patch
	}
	return Edit[T]{Patches: kept}
}

// patchStamp reads the stamp fields carried by a patch. Missing or
// mistyped fields read as zero.
func patchStamp(patch Patch) Stamp {
	var stamp Stamp
	switch value := patch["lastModified"].(type) {
	case int64:
		stamp.LastModified = value
	case uint64:
		stamp.LastModified = int64(value)
	case int:
		stamp.LastModified = int64(value)
	case float64:
		stamp.LastModified = int64(value)
	}
	stamp.LastModifiedBy, _ = patch["lastModifiedBy"].(string)
	return stamp
}

// entityFields returns entity in its wire map form.
func entityFields[T Entity](entity T) (map[string]any, error) {
	data, err := codec.Marshal(entity)
	if err != nil {
		return nil, fmt.Errorf("encoding %s %s: %w", collectionOf[T](), entity.EntityID(), err)
	}
	var fields map[string]any
	if err := codec.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("decoding %s %s: %w", collectionOf[T](), entity.EntityID(), err)
	}
	return fields, nil
}

// applyPatch overlays patch on entity's wire form and decodes the
// result strictly, so unknown fields and mistyped values are rejected.
func applyPatch[T Entity](entity T, patch Patch) (T, error) {
	id := entity.EntityID()
	if _, ok := patch["id"]; ok {
		return entity, fmt.Errorf("%w: patch for %s %s changes its id", ErrInvalidAction, collectionOf[T](), id)
	}
	fields, err := entityFields(entity)
	if err != nil {
		return entity, err
	}
	maps.Copy(fields, patch)
	data, err := codec.Marshal(fields)
	if err != nil {
		return entity, fmt.Errorf("%w: encoding patch for %s %s: %v", ErrInvalidAction, collectionOf[T](), id, err)
	}
	var patched T
	if err := codec.UnmarshalStrict(data, &patched); err != nil {
		return entity, fmt.Errorf("%w: patch for %s %s: %v", ErrInvalidAction, collectionOf[T](), id, err)
	}
	return patched, nil
}

// Batch applies actions in order, all or nothing.
type Batch struct {
	Actions []Action
}

func (b Batch) Kind() Kind { return KindBatch }

func (b Batch) Apply(state State) (State, error) {
	next := state
	for i, action := range b.Actions {
		var err error
		next, err = action.Apply(next)
		if err != nil {
			return state, fmt.Errorf("batch step %d (%s): %w", i, action.Kind(), err)
		}
	}
	return next, nil
}

// Invert undoes the steps in reverse order, each inverted against the
// state it saw.
func (b Batch) Invert(prior State) (Action, error) {
	inverses := make([]Action, len(b.Actions))
	state := prior
	for i, action := range b.Actions {
		inverse, err := action.Invert(state)
		if err != nil {
			return nil, err
		}
		inverses[len(b.Actions)-1-i] = inverse
		if state, err = action.Apply(state); err != nil {
			return nil, err
		}
	}
	return Batch{Actions: inverses}, nil
}

func (b Batch) stamp(state State, now int64, writer string) Action {
	stamped := make([]Action, len(b.Actions))
	for i, action := range b.Actions {
		stamped[i] = action.stamp(state, now, writer)
	}
	return Batch{Actions: stamped}
}

func (b Batch) filter(state State) Action {
	filtered := make([]Action, len(b.Actions))
	for i, action := range b.Actions {
		filtered[i] = action.filter(state)
	}
	return Batch{Actions: filtered}
}
