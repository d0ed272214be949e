/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package selection manages the active selection, deletion and draw order.
package selection

import (
	"log/slog"
	"math"

	"refercanvas/internal/scene"
)

// Canvas is the scene surface the manager works on.
type Canvas interface {
	Objects() []*scene.Object
	Remove(objs ...*scene.Object)
	ActiveObject() scene.Selection
	SetActiveObject(sel scene.Selection)
	DiscardActiveObject()
	MoveTo(o *scene.Object, idx int) bool
	SetOrder(order []*scene.Object) bool
	Modify(o *scene.Object, kind scene.MutationKind, fn func(*scene.Object))
}

// Direction of a flip.
type Direction int

const (
	Horizontal Direction = iota
	Vertical
)

type Manager struct {
	c   Canvas
	log *slog.Logger
}

func New(c Canvas, log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	return &Manager{c: c, log: log}
}

// Active returns the current selection or nil.
func (m *Manager) Active() scene.Selection { return m.c.ActiveObject() }

// Members returns the objects of the active selection.
func (m *Manager) Members() []*scene.Object {
	if a := m.c.ActiveObject(); a != nil {
		return a.Members()
	}
	return nil
}

// SelectElement replaces the selection with elems, or with every object when
// none are given. One object is selected directly; several are grouped.
func (m *Manager) SelectElement(elems ...*scene.Object) scene.Selection {
	m.c.DiscardActiveObject()
	if len(elems) == 0 {
		elems = m.c.Objects()
	}
	var sel scene.Selection
	switch len(elems) {
	case 0:
		return nil
	case 1:
		sel = elems[0]
	default:
		sel = scene.NewActiveSelection(elems...)
	}
	m.c.SetActiveObject(sel)
	return sel
}

// DeleteElement removes elems, or the members of the active selection when
// none are given, and clears the selection.
func (m *Manager) DeleteElement(elems ...*scene.Object) int {
	if len(elems) == 0 {
		elems = m.Members()
	}
	if len(elems) > 0 {
		m.c.Remove(elems...)
		m.log.Debug("deleted elements", "count", len(elems))
	}
	m.c.DiscardActiveObject()
	return len(elems)
}

func (m *Manager) resolve(sel scene.Selection) scene.Selection {
	if sel == nil {
		return m.c.ActiveObject()
	}
	return sel
}

// SetElementIndex moves sel to draw index idx. A group is spliced in as a
// block that keeps its members' relative order.
func (m *Manager) SetElementIndex(sel scene.Selection, idx int) {
	sel = m.resolve(sel)
	if sel == nil {
		return
	}
	if o, ok := sel.(*scene.Object); ok {
		m.c.MoveTo(o, idx)
		return
	}
	members := map[*scene.Object]bool{}
	for _, o := range sel.Members() {
		members[o] = true
	}
	var rest, block []*scene.Object
	for _, o := range m.c.Objects() {
		if members[o] {
			block = append(block, o)
		} else {
			rest = append(rest, o)
		}
	}
	if idx < 0 {
		idx = 0
	}
	if idx > len(rest) {
		idx = len(rest)
	}
	order := make([]*scene.Object, 0, len(rest)+len(block))
	order = append(order, rest[:idx]...)
	order = append(order, block...)
	order = append(order, rest[idx:]...)
	m.c.SetOrder(order)
}

// BringToFront draws sel above everything else.
func (m *Manager) BringToFront(sel scene.Selection) {
	m.SetElementIndex(sel, len(m.c.Objects()))
}

// BringToBack draws sel below everything else.
func (m *Manager) BringToBack(sel scene.Selection) {
	m.SetElementIndex(sel, 0)
}

// Flip mirrors every member of sel.
func (m *Manager) Flip(sel scene.Selection, d Direction) {
	sel = m.resolve(sel)
	if sel == nil {
		return
	}
	for _, o := range sel.Members() {
		m.c.Modify(o, scene.ObjectModified, func(o *scene.Object) {
			if d == Horizontal {
				o.FlipX = !o.FlipX
			} else {
				o.FlipY = !o.FlipY
			}
		})
	}
}

// Rotate sets the angle of every member of sel, in degrees, about its center.
func (m *Manager) Rotate(sel scene.Selection, angle float64) {
	sel = m.resolve(sel)
	if sel == nil {
		return
	}
	for _, o := range sel.Members() {
		m.c.Modify(o, scene.ObjectRotated, func(o *scene.Object) { o.Angle = angle })
	}
}

// RotateStep turns sel by step degrees from the angle of its first member and
// snaps the result to a multiple of 90.
func (m *Manager) RotateStep(sel scene.Selection, step float64) {
	sel = m.resolve(sel)
	if sel == nil || len(sel.Members()) == 0 {
		return
	}
	cur := sel.Members()[0].Angle
	m.Rotate(sel, math.Round((cur+step)/90)*90)
}
