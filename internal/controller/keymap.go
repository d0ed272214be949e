/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package controller

import (
	"context"
	"strings"

	"refercanvas/internal/selection"
)

// KeyEvent is a key press or release. Key is the produced key value as a
// browser or toolkit reports it: "a", "G", "Delete", "ArrowLeft", " ".
type KeyEvent struct {
	Key     string
	Ctrl    bool
	Meta    bool
	Shift   bool
	Alt     bool
	Release bool
}

// Action is a shortcut target.
type Action string

const (
	ActionNone       Action = ""
	ActionDelete     Action = "delete"
	ActionSelectAll  Action = "select-all"
	ActionFitToggle  Action = "fit-toggle"
	ActionFitNext    Action = "fit-next"
	ActionFitPrev    Action = "fit-prev"
	ActionFlipH      Action = "flip-horizontal"
	ActionFlipV      Action = "flip-vertical"
	ActionRotateCW   Action = "rotate-cw"
	ActionRotateCCW  Action = "rotate-ccw"
	ActionActualSize Action = "actual-size"
	ActionFitAll     Action = "fit-all"
	ActionZoomOut    Action = "zoom-out"
	ActionZoomIn     Action = "zoom-in"
	ActionUndo       Action = "undo"
	ActionRedo       Action = "redo"
	ActionSave       Action = "save"
	ActionOpenLatest Action = "open-latest"
	ActionNewCanvas  Action = "new-canvas"
	ActionAddText    Action = "add-text"
	ActionCopy       Action = "copy"
	ActionCut        Action = "cut"
	ActionPaste      Action = "paste"
	ActionBringFront Action = "bring-front"
	ActionBringBack  Action = "bring-back"
)

// keymap binds "mod+...+key" combos to actions. Modifiers are listed in the
// order ctrl, alt, shift; meta is folded into ctrl.
var keymap = map[string]Action{
	"delete":       ActionDelete,
	"backspace":    ActionDelete,
	"ctrl+a":       ActionSelectAll,
	"f":            ActionFitToggle,
	"g":            ActionFitNext,
	"arrowright":   ActionFitNext,
	"shift+g":      ActionFitPrev,
	"arrowleft":    ActionFitPrev,
	"h":            ActionFlipH,
	"v":            ActionFlipV,
	"r":            ActionRotateCW,
	"shift+r":      ActionRotateCCW,
	"0":            ActionActualSize,
	"1":            ActionFitAll,
	"-":            ActionZoomOut,
	"=":            ActionZoomIn,
	"ctrl+z":       ActionUndo,
	"ctrl+shift+z": ActionRedo,
	"ctrl+s":       ActionSave,
	"ctrl+o":       ActionOpenLatest,
	"ctrl+n":       ActionNewCanvas,
	"t":            ActionAddText,
	"ctrl+c":       ActionCopy,
	"ctrl+x":       ActionCut,
	"ctrl+v":       ActionPaste,
	"]":            ActionBringFront,
	"[":            ActionBringBack,
}

// Combo renders e in keymap form.
func (e KeyEvent) Combo() string {
	var b strings.Builder
	if e.Ctrl || e.Meta {
		b.WriteString("ctrl+")
	}
	if e.Alt {
		b.WriteString("alt+")
	}
	if e.Shift {
		b.WriteString("shift+")
	}
	b.WriteString(strings.ToLower(e.Key))
	return b.String()
}

// Lookup returns the action bound to e.
func Lookup(e KeyEvent) Action { return keymap[e.Combo()] }

// HandleKey runs the shortcut bound to e and returns the action taken.
// Shortcuts are ignored while text is being edited. Space held down puts
// the view in drag mode.
func (c *Controller) HandleKey(ctx context.Context, e KeyEvent) (Action, error) {
	if c.Editing() {
		return ActionNone, nil
	}
	if e.Key == " " {
		c.setDragMode(!e.Release)
		return ActionNone, nil
	}
	if e.Release {
		return ActionNone, nil
	}
	a := Lookup(e)
	return a, c.Run(ctx, a)
}

// Run performs an action as if its shortcut was pressed. Menus use it too.
func (c *Controller) Run(ctx context.Context, a Action) error {
	switch a {
	case ActionDelete:
		c.DeleteSelection()
	case ActionSelectAll:
		c.SelectAll()
	case ActionFitToggle:
		return c.ToggleFit(ctx)
	case ActionFitNext:
		return c.FitNext(ctx, 1)
	case ActionFitPrev:
		return c.FitNext(ctx, -1)
	case ActionFlipH:
		c.Flip(selection.Horizontal)
	case ActionFlipV:
		c.Flip(selection.Vertical)
	case ActionRotateCW:
		c.RotateBy(90)
	case ActionRotateCCW:
		c.RotateBy(-90)
	case ActionActualSize:
		c.ZoomCenterTo(1, false)
	case ActionFitAll:
		return c.FitAll(ctx)
	case ActionZoomOut:
		c.ZoomCenterTo(zoomOutStep, true)
	case ActionZoomIn:
		c.ZoomCenterTo(zoomInStep, true)
	case ActionUndo:
		return c.Undo()
	case ActionRedo:
		return c.Redo()
	case ActionSave:
		if c.store == nil {
			return nil
		}
		_, err := c.Save(ctx, true)
		return err
	case ActionOpenLatest:
		if c.store == nil {
			return nil
		}
		return c.LoadLatest(ctx)
	case ActionNewCanvas:
		return c.NewCanvas(ctx)
	case ActionAddText:
		c.AddText("")
	case ActionCopy:
		_, err := c.Copy(ctx, true)
		return err
	case ActionCut:
		_, err := c.Cut(ctx, true)
		return err
	case ActionPaste:
		c.Paste()
	case ActionBringFront:
		c.BringToFront()
	case ActionBringBack:
		c.BringToBack()
	}
	return nil
}
