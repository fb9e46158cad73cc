// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/bureau-foundation/tabletop/board"
	"github.com/bureau-foundation/tabletop/lib/vector"
)

const helpText = `commands:
  token add <x> <y> [label...]     add a token; prints its id
  token move <id> <x> <y>          move a token
  token show|hide <id>             change a token's visibility
  token lock|unlock <id>           change a token's lock
  token remove <id>                remove a token
  note add <x> <y> <text...>       add a note; prints its id
  note edit <id> <text...>         replace a note's text
  note remove <id>                 remove a note
  draw <x,y> <x,y>...              add a freehand path
  fog add <x,y> <x,y> <x,y>...     add a fog polygon
  fog cut <x,y> <x,y> <x,y>...     cut a polygon out of the fog
  clear tokens|notes|drawings|fog  remove everything in a collection
  undo | redo                      step through your own edits
  pointer down|move <x> <y>        show or move your pointer
  pointer up                       hide your pointer
  connect <peer>                   connect to another peer
  peers                            list connected peers
  list                             summarize the board
  save                             write the board to the store
  quit                             leave the table
`

// execute runs one command line. It must be called on the session
// goroutine.
func (t *table) execute(line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}
	name, args := fields[0], fields[1:]
	switch name {
	case "help":
		fmt.Fprint(t.out, helpText)
		return nil
	case "token":
		return t.tokenCommand(args)
	case "note":
		return t.noteCommand(args)
	case "draw":
		points, err := parsePoints(args, 2)
		if err != nil {
			return err
		}
		id := uuid.NewString()
		err = t.engine.Perform(board.Add[board.Drawing]{Entities: []board.Drawing{{
			ID:          id,
			Type:        board.DrawingPath,
			Points:      points,
			Color:       t.cfg.Peer.Color,
			StrokeWidth: 1,
		}}})
		if err == nil {
			fmt.Fprintln(t.out, id)
		}
		return err
	case "fog":
		return t.fogCommand(args)
	case "clear":
		return t.clearCommand(args)
	case "undo", "redo":
		step := t.engine.Undo
		if name == "redo" {
			step = t.engine.Redo
		}
		changed, err := step()
		if err != nil {
			return err
		}
		if !changed {
			fmt.Fprintf(t.out, "nothing to %s\n", name)
		}
		return nil
	case "pointer":
		return t.pointerCommand(args)
	case "connect":
		if len(args) != 1 {
			return usage("connect <peer>")
		}
		peer := args[0]
		t.session.Connect(peer, func(err error) {
			if err != nil {
				fmt.Fprintf(t.out, "connect %s: %v\n", peer, err)
				return
			}
			fmt.Fprintf(t.out, "connected to %s\n", peer)
		})
		return nil
	case "peers":
		for _, peer := range t.session.Peers() {
			fmt.Fprintf(t.out, "%s\t%s\n", peer, t.session.State(peer))
		}
		return nil
	case "list":
		t.list()
		return nil
	case "save":
		return t.save()
	default:
		return fmt.Errorf("unknown command %q (try help)", name)
	}
}

func (t *table) tokenCommand(args []string) error {
	if len(args) == 0 {
		return usage("token add|move|show|hide|lock|unlock|remove ...")
	}
	switch args[0] {
	case "add":
		if len(args) < 3 {
			return usage("token add <x> <y> [label...]")
		}
		position, err := parseXY(args[1], args[2])
		if err != nil {
			return err
		}
		id := uuid.NewString()
		err = t.engine.Perform(board.Add[board.Token]{Entities: []board.Token{{
			ID:      id,
			Owner:   t.cfg.Peer.ID,
			Size:    1,
			Label:   strings.Join(args[3:], " "),
			X:       position.X,
			Y:       position.Y,
			Visible: true,
		}}})
		if err == nil {
			fmt.Fprintln(t.out, id)
		}
		return err
	case "move":
		if len(args) != 4 {
			return usage("token move <id> <x> <y>")
		}
		position, err := parseXY(args[2], args[3])
		if err != nil {
			return err
		}
		return t.editToken(args[1], board.Patch{"x": position.X, "y": position.Y})
	case "show", "hide":
		if len(args) != 2 {
			return usage("token show|hide <id>")
		}
		return t.editToken(args[1], board.Patch{"visible": args[0] == "show"})
	case "lock", "unlock":
		if len(args) != 2 {
			return usage("token lock|unlock <id>")
		}
		return t.editToken(args[1], board.Patch{"locked": args[0] == "lock"})
	case "remove":
		if len(args) != 2 {
			return usage("token remove <id>")
		}
		if _, ok := board.Get[board.Token](t.engine.State(), args[1]); !ok {
			return fmt.Errorf("no token %q", args[1])
		}
		return t.engine.Perform(board.Remove[board.Token]{IDs: []string{args[1]}})
	default:
		return fmt.Errorf("unknown token command %q", args[0])
	}
}

func (t *table) editToken(id string, patch board.Patch) error {
	token, ok := board.Get[board.Token](t.engine.State(), id)
	if !ok {
		return fmt.Errorf("no token %q", id)
	}
	if token.Locked {
		if _, unlocking := patch["locked"]; !unlocking {
			return fmt.Errorf("token %q is locked", id)
		}
	}
	return t.engine.Perform(board.Edit[board.Token]{Patches: map[string]board.Patch{id: patch}})
}

func (t *table) noteCommand(args []string) error {
	if len(args) == 0 {
		return usage("note add|edit|remove ...")
	}
	switch args[0] {
	case "add":
		if len(args) < 4 {
			return usage("note add <x> <y> <text...>")
		}
		position, err := parseXY(args[1], args[2])
		if err != nil {
			return err
		}
		id := uuid.NewString()
		err = t.engine.Perform(board.Add[board.Note]{Entities: []board.Note{{
			ID:      id,
			Owner:   t.cfg.Peer.ID,
			X:       position.X,
			Y:       position.Y,
			Size:    1,
			Text:    strings.Join(args[3:], " "),
			Color:   t.cfg.Peer.Color,
			Visible: true,
		}}})
		if err == nil {
			fmt.Fprintln(t.out, id)
		}
		return err
	case "edit":
		if len(args) < 3 {
			return usage("note edit <id> <text...>")
		}
		if _, ok := board.Get[board.Note](t.engine.State(), args[1]); !ok {
			return fmt.Errorf("no note %q", args[1])
		}
		return t.engine.Perform(board.Edit[board.Note]{Patches: map[string]board.Patch{
			args[1]: {"text": strings.Join(args[2:], " ")},
		}})
	case "remove":
		if len(args) != 2 {
			return usage("note remove <id>")
		}
		if _, ok := board.Get[board.Note](t.engine.State(), args[1]); !ok {
			return fmt.Errorf("no note %q", args[1])
		}
		return t.engine.Perform(board.Remove[board.Note]{IDs: []string{args[1]}})
	default:
		return fmt.Errorf("unknown note command %q", args[0])
	}
}

func (t *table) fogCommand(args []string) error {
	if len(args) == 0 {
		return usage("fog add|cut <x,y> <x,y> <x,y>...")
	}
	points, err := parsePoints(args[1:], 3)
	if err != nil {
		return err
	}
	shape := board.Fog{
		ID:          uuid.NewString(),
		Points:      points,
		Color:       "#000000",
		StrokeWidth: 1,
		Visible:     true,
	}
	switch args[0] {
	case "add":
		if err := t.engine.Perform(board.Add[board.Fog]{Entities: []board.Fog{shape}}); err != nil {
			return err
		}
		fmt.Fprintln(t.out, shape.ID)
		return nil
	case "cut":
		return t.engine.Perform(board.Cut{Shapes: []board.Fog{shape}})
	default:
		return fmt.Errorf("unknown fog command %q", args[0])
	}
}

func (t *table) clearCommand(args []string) error {
	if len(args) != 1 {
		return usage("clear tokens|notes|drawings|fog")
	}
	state := t.engine.State()
	switch args[0] {
	case "tokens":
		return t.engine.Perform(board.RemoveAll[board.Token](state))
	case "notes":
		return t.engine.Perform(board.RemoveAll[board.Note](state))
	case "drawings":
		return t.engine.Perform(board.RemoveAll[board.Drawing](state))
	case "fog", "fogs":
		return t.engine.Perform(board.RemoveAll[board.Fog](state))
	default:
		return fmt.Errorf("unknown collection %q", args[0])
	}
}

func (t *table) pointerCommand(args []string) error {
	if len(args) == 1 && args[0] == "up" {
		t.pointer.PointerUp()
		return nil
	}
	if len(args) != 3 {
		return usage("pointer down|move <x> <y> | pointer up")
	}
	position, err := parseXY(args[1], args[2])
	if err != nil {
		return err
	}
	switch args[0] {
	case "down":
		t.pointer.PointerDown(position)
	case "move":
		t.pointer.PointerMove(position)
	default:
		return fmt.Errorf("unknown pointer command %q", args[0])
	}
	return nil
}

func (t *table) list() {
	state := t.engine.State()
	for _, id := range board.IDs[board.Token](state) {
		token := state.Tokens[id]
		fmt.Fprintf(t.out, "token   %s  (%g, %g) %q visible=%t locked=%t\n",
			id, token.X, token.Y, token.Label, token.Visible, token.Locked)
	}
	for _, id := range board.IDs[board.Note](state) {
		note := state.Notes[id]
		fmt.Fprintf(t.out, "note    %s  (%g, %g) %q\n", id, note.X, note.Y, note.Text)
	}
	for _, id := range board.IDs[board.Drawing](state) {
		fmt.Fprintf(t.out, "drawing %s  %d points\n", id, len(state.Drawings[id].Points))
	}
	for _, id := range board.IDs[board.Fog](state) {
		fog := state.Fogs[id]
		fmt.Fprintf(t.out, "fog     %s  %d points, %d holes\n", id, len(fog.Points), len(fog.Holes))
	}
	fmt.Fprintf(t.out, "%d entities, undo %d, redo %d\n",
		state.Len(), len(t.engine.UndoStack()), len(t.engine.RedoStack()))
}

func usage(text string) error {
	return fmt.Errorf("usage: %s", text)
}

func parseXY(xText, yText string) (vector.Vector2, error) {
	x, err := strconv.ParseFloat(xText, 64)
	if err != nil {
		return vector.Vector2{}, fmt.Errorf("invalid x %q", xText)
	}
	y, err := strconv.ParseFloat(yText, 64)
	if err != nil {
		return vector.Vector2{}, fmt.Errorf("invalid y %q", yText)
	}
	return vector.Vector2{X: x, Y: y}, nil
}

// parsePoints parses "x,y" arguments, requiring at least minimum.
func parsePoints(args []string, minimum int) ([]vector.Vector2, error) {
	if len(args) < minimum {
		return nil, fmt.Errorf("need at least %d points as x,y", minimum)
	}
	points := make([]vector.Vector2, len(args))
	for i, arg := range args {
		xText, yText, ok := strings.Cut(arg, ",")
		if !ok {
			return nil, fmt.Errorf("point %q is not x,y", arg)
		}
		point, err := parseXY(xText, yText)
		if err != nil {
			return nil, err
		}
		points[i] = point
	}
	return points, nil
}
