/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package scene is the in-memory scene graph the canvas controller drives.
// It owns object geometry, draw order, the active selection, the viewport
// transform, hit-testing and (de)serialization, and reports every mutation
// to a single Observer.
package scene

import (
	"sync"
)

// MutationKind enumerates what changed on the canvas.
type MutationKind int

const (
	ObjectAdded MutationKind = iota + 1
	ObjectRemoved
	ObjectModified
	ObjectRotated
	ObjectScaled
	SelectionSet
	SelectionCleared
)

func (k MutationKind) String() string {
	switch k {
	case ObjectAdded:
		return "object:added"
	case ObjectRemoved:
		return "object:removed"
	case ObjectModified:
		return "object:modified"
	case ObjectRotated:
		return "object:rotated"
	case ObjectScaled:
		return "object:scaled"
	case SelectionSet:
		return "selection:set"
	case SelectionCleared:
		return "selection:cleared"
	default:
		return "unknown"
	}
}

// Mutation describes one change. Target is set for object mutations,
// Selection for SelectionSet.
type Mutation struct {
	Kind      MutationKind
	Target    *Object
	Selection Selection
}

// Observer receives mutations after the canvas lock is released, so it may
// read the canvas (for example to serialize it).
type Observer func(Mutation)

// Canvas holds the ordered object list (index 0 is drawn first).
type Canvas struct {
	mu         sync.RWMutex
	size       Size
	objects    []*Object
	active     Selection
	vpt        Affine2D
	background string
	style      StylePreset
	obs        Observer
}

type Option func(*Canvas)

// WithStyle sets the preset applied to objects created by LoadFromJSON.
func WithStyle(s StylePreset) Option { return func(c *Canvas) { c.style = s } }

// WithObserver installs the mutation observer.
func WithObserver(o Observer) Option { return func(c *Canvas) { c.obs = o } }

// NewCanvas creates an empty canvas with a viewport of w x h screen units.
func NewCanvas(w, h float64, opts ...Option) *Canvas {
	c := &Canvas{size: Size{W: w, H: h}, vpt: Identity, style: DefaultStyle()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetObserver replaces the mutation observer; nil disables notifications.
func (c *Canvas) SetObserver(o Observer) {
	c.mu.Lock()
	c.obs = o
	c.mu.Unlock()
}

func (c *Canvas) notify(ms ...Mutation) {
	c.mu.RLock()
	obs := c.obs
	c.mu.RUnlock()
	if obs == nil {
		return
	}
	for _, m := range ms {
		obs(m)
	}
}

// Style returns the preset used for new and loaded objects.
func (c *Canvas) Style() StylePreset {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.style
}

func (c *Canvas) Size() Size {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.size
}

func (c *Canvas) SetSize(w, h float64) {
	c.mu.Lock()
	c.size = Size{W: w, H: h}
	c.mu.Unlock()
}

func (c *Canvas) Background() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.background
}

func (c *Canvas) SetBackground(color string) {
	c.mu.Lock()
	c.background = color
	c.mu.Unlock()
}

// Objects returns a copy of the draw-ordered object list.
func (c *Canvas) Objects() []*Object {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]*Object(nil), c.objects...)
}

func (c *Canvas) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.objects)
}

// IndexOf returns the draw index of o, or -1.
func (c *Canvas) IndexOf(o *Object) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.indexLocked(o)
}

func (c *Canvas) indexLocked(o *Object) int {
	for i, x := range c.objects {
		if x == o {
			return i
		}
	}
	return -1
}

// Add appends objects on top of the draw order. Objects already present are skipped.
func (c *Canvas) Add(objs ...*Object) {
	var ms []Mutation
	c.mu.Lock()
	for _, o := range objs {
		if o == nil || c.indexLocked(o) >= 0 {
			continue
		}
		c.objects = append(c.objects, o)
		ms = append(ms, Mutation{Kind: ObjectAdded, Target: o})
	}
	c.mu.Unlock()
	c.notify(ms...)
}

// Remove deletes objects from the canvas. If the active selection contains
// any of them it is discarded.
func (c *Canvas) Remove(objs ...*Object) {
	var ms []Mutation
	c.mu.Lock()
	for _, o := range objs {
		i := c.indexLocked(o)
		if i < 0 {
			continue
		}
		c.objects = append(c.objects[:i], c.objects[i+1:]...)
		ms = append(ms, Mutation{Kind: ObjectRemoved, Target: o})
	}
	if c.active != nil && len(ms) > 0 && selectionTouches(c.active, objs) {
		c.active = nil
		ms = append(ms, Mutation{Kind: SelectionCleared})
	}
	c.mu.Unlock()
	c.notify(ms...)
}

func selectionTouches(sel Selection, objs []*Object) bool {
	for _, m := range sel.Members() {
		for _, o := range objs {
			if m == o {
				return true
			}
		}
	}
	return false
}

// Clear removes every object and the active selection.
func (c *Canvas) Clear() {
	c.Remove(c.Objects()...)
	c.DiscardActiveObject()
}

// MoveTo places o at draw index idx (clamped). It reports false when o is
// not on the canvas. Reordering is not a mutation event.
func (c *Canvas) MoveTo(o *Object, idx int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	i := c.indexLocked(o)
	if i < 0 {
		return false
	}
	c.objects = append(c.objects[:i], c.objects[i+1:]...)
	if idx < 0 {
		idx = 0
	}
	if idx > len(c.objects) {
		idx = len(c.objects)
	}
	c.objects = append(c.objects[:idx], append([]*Object{o}, c.objects[idx:]...)...)
	return true
}

// SetOrder replaces the draw order. order must be a permutation of the
// current objects; otherwise nothing changes and false is returned.
func (c *Canvas) SetOrder(order []*Object) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(order) != len(c.objects) {
		return false
	}
	seen := make(map[*Object]bool, len(order))
	for _, o := range order {
		if seen[o] || c.indexLocked(o) < 0 {
			return false
		}
		seen[o] = true
	}
	c.objects = append([]*Object(nil), order...)
	return true
}

// ActiveObject returns the current selection or nil.
func (c *Canvas) ActiveObject() Selection {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.active
}

// SetActiveObject makes sel the active selection; nil discards it.
func (c *Canvas) SetActiveObject(sel Selection) {
	if sel == nil || len(sel.Members()) == 0 {
		c.DiscardActiveObject()
		return
	}
	c.mu.Lock()
	c.active = sel
	c.mu.Unlock()
	c.notify(Mutation{Kind: SelectionSet, Selection: sel})
}

// DiscardActiveObject clears the selection, notifying only when one existed.
func (c *Canvas) DiscardActiveObject() {
	c.mu.Lock()
	had := c.active != nil
	c.active = nil
	c.mu.Unlock()
	if had {
		c.notify(Mutation{Kind: SelectionCleared})
	}
}

// Modify applies fn to o under the canvas lock and reports kind
// (ObjectModified, ObjectRotated or ObjectScaled) when o is on the canvas.
func (c *Canvas) Modify(o *Object, kind MutationKind, fn func(*Object)) {
	c.mu.Lock()
	fn(o)
	onCanvas := c.indexLocked(o) >= 0
	c.mu.Unlock()
	if onCanvas {
		c.notify(Mutation{Kind: kind, Target: o})
	}
}

// ViewportTransform returns the scene-to-screen transform.
func (c *Canvas) ViewportTransform() Affine2D {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vpt
}

// SetViewportTransform replaces the scene-to-screen transform.
func (c *Canvas) SetViewportTransform(m Affine2D) {
	c.mu.Lock()
	c.vpt = m
	c.mu.Unlock()
}

// Zoom returns the current zoom factor.
func (c *Canvas) Zoom() float64 { return c.ViewportTransform().A }

// VpCenter returns the scene point shown at the center of the viewport.
func (c *Canvas) VpCenter() Pt {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vpt.Invert().Apply(c.size.Center())
}

// FindTarget returns the topmost selectable object under the screen point.
func (c *Canvas) FindTarget(screen Pt) *Object {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p := c.vpt.Invert().Apply(screen)
	for i := len(c.objects) - 1; i >= 0; i-- {
		o := c.objects[i]
		if o.Selectable && o.Hit(p) {
			return o
		}
	}
	return nil
}
