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

	"refercanvas/internal/clipboard"
	"refercanvas/internal/events"
	"refercanvas/internal/scene"
	"refercanvas/internal/selection"
	"refercanvas/internal/viewport"
)

// DefaultText is the content of text added with AddText.
const DefaultText = "Hello Refer!"

// Zoom steps of the - and = shortcuts.
const (
	zoomOutStep = 2.0 / 3.0
	zoomInStep  = 3.0 / 2.0
)

// ZoomCenterTo zooms about the canvas center; see viewport.ZoomCenterTo.
func (c *Controller) ZoomCenterTo(value float64, relative bool) {
	c.View.ZoomCenterTo(value, relative)
}

// Pan shifts the view by screen units.
func (c *Controller) Pan(dx, dy float64) { c.View.MoveViewportBy(dx, dy) }

// SelectAll selects every object.
func (c *Controller) SelectAll() scene.Selection { return c.Selection.SelectElement() }

// Select replaces the selection with objs.
func (c *Controller) Select(objs ...*scene.Object) scene.Selection {
	if len(objs) == 0 {
		c.canvas.DiscardActiveObject()
		return nil
	}
	return c.Selection.SelectElement(objs...)
}

// DeleteSelection removes the selected objects and returns how many.
func (c *Controller) DeleteSelection() int {
	if c.Selection.Active() == nil {
		return 0
	}
	return c.Selection.DeleteElement()
}

// Copy copies the selection. fromSystem marks the OS clipboard so that a
// later paste recognises its own content.
func (c *Controller) Copy(ctx context.Context, fromSystem bool) (int, error) {
	return c.Clipboard.Copy(ctx, clipboard.CopyOptions{FromSystemEvent: fromSystem})
}

// Cut copies and deletes the selection.
func (c *Controller) Cut(ctx context.Context, fromSystem bool) (int, error) {
	return c.Clipboard.Cut(ctx, clipboard.CopyOptions{FromSystemEvent: fromSystem})
}

// Paste inserts the internal clipboard.
func (c *Controller) Paste() []*scene.Object { return c.Clipboard.Paste() }

// MoveSelection shifts the selected objects by scene units as one history
// step.
func (c *Controller) MoveSelection(dx, dy float64) {
	members := c.Selection.Members()
	if len(members) == 0 || (dx == 0 && dy == 0) {
		return
	}
	c.History.Pause()
	for _, o := range members {
		c.canvas.Modify(o, scene.ObjectModified, func(o *scene.Object) {
			o.Left += dx
			o.Top += dy
		})
	}
	if err := c.History.Resume(); err != nil {
		c.log.Warn("record move", "err", err)
	}
}

func (c *Controller) BringToFront() { c.Selection.BringToFront(nil) }

func (c *Controller) BringToBack() { c.Selection.BringToBack(nil) }

// Flip mirrors the selection.
func (c *Controller) Flip(d selection.Direction) { c.Selection.Flip(nil, d) }

// RotateBy turns the selection by step degrees, snapping to quarter turns.
func (c *Controller) RotateBy(step float64) { c.Selection.RotateStep(nil, step) }

// Undo steps back one snapshot. It is a no-op with an empty stack.
func (c *Controller) Undo() error {
	if !c.History.CanUndo() {
		return nil
	}
	return c.History.Undo()
}

// Redo steps forward one snapshot.
func (c *Controller) Redo() error {
	if !c.History.CanRedo() {
		return nil
	}
	return c.History.Redo()
}

// FitAll fits every object without saving the current view, keeping the
// selection as it was.
func (c *Controller) FitAll(ctx context.Context) error {
	objs := c.canvas.Objects()
	if len(objs) == 0 {
		return nil
	}
	var el scene.Selection = objs[0]
	if len(objs) > 1 {
		el = scene.NewActiveSelection(objs...)
	}
	_, err := c.View.FitViewElement(ctx, viewport.FitOptions{Element: el})
	return err
}

// ToggleFit fits the selection, or restores the previous view when it is
// already fit.
func (c *Controller) ToggleFit(ctx context.Context) error {
	return c.View.ToggleFit(ctx, nil)
}

// FitNext fits the object step places from the current one.
func (c *Controller) FitNext(ctx context.Context, step int) error {
	return c.View.FitNext(ctx, step)
}

// AddText places an editable text object at the center of the view. Its
// font size is constant on screen.
func (c *Controller) AddText(text string) *scene.Object {
	if text == "" {
		text = DefaultText
	}
	size := c.Ingest.Config().TextSize / c.View.Zoom()
	o := c.canvas.Style().NewText(text, size)
	o.SetCenter(c.View.VpCenter())
	c.canvas.Add(o)
	return o
}

// BeginTextEdit marks o as being edited; shortcuts are ignored until
// EndTextEdit.
func (c *Controller) BeginTextEdit(o *scene.Object) {
	if o == nil || o.Kind != scene.KindText {
		return
	}
	c.mu.Lock()
	c.editing = o
	c.mu.Unlock()
	c.bus.Publish(events.TextEditEntered{Target: o})
}

// EndTextEdit stores the edited text and leaves edit mode. Empty text
// removes the object.
func (c *Controller) EndTextEdit(text string) {
	c.mu.Lock()
	o := c.editing
	c.editing = nil
	c.mu.Unlock()
	if o == nil {
		return
	}
	switch {
	case text == "":
		c.canvas.Remove(o)
	case text != o.Text:
		c.canvas.Modify(o, scene.ObjectModified, func(o *scene.Object) { o.SetText(text) })
	}
	c.bus.Publish(events.TextEditExited{Target: o})
}

// Editing reports whether a text object is being edited.
func (c *Controller) Editing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.editing != nil
}

// DragMode reports whether the view pans on drag (space held).
func (c *Controller) DragMode() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dragMode
}

func (c *Controller) setDragMode(on bool) {
	c.mu.Lock()
	c.dragMode = on
	c.mu.Unlock()
}
