/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package scene

import (
	"math"

	"refercanvas/internal/textlayout"
)

// Kind identifies the type of a scene object.
type Kind string

const (
	KindImage   Kind = "image"
	KindText    Kind = "text"
	KindRect    Kind = "rect"
	KindEllipse Kind = "ellipse"
)

// Object is a placed item on the canvas. Left/Top locate the unrotated
// top-left corner; rotation and flips pivot around the object center.
// Handles are *Object; identity is pointer identity.
type Object struct {
	Kind          Kind
	Left, Top     float64
	Width, Height float64 // natural size before scaling
	ScaleX        float64
	ScaleY        float64
	Angle         float64 // degrees, clockwise
	FlipX, FlipY  bool
	Opacity       float64
	Fill          string
	Stroke        string
	StrokeWidth   float64

	Src        string // image source: URL or data URL
	Text       string
	FontSize   float64
	FontFamily string

	Selectable bool
	Editable   bool

	// Style is the preset the object was built with; it is not serialized.
	Style StylePreset
}

func newObject(k Kind, s StylePreset) *Object {
	return &Object{Kind: k, ScaleX: 1, ScaleY: 1, Opacity: 1, Selectable: true, Style: s}
}

// ScaledWidth is the width after scaling, ignoring rotation.
func (o *Object) ScaledWidth() float64 { return o.Width * math.Abs(o.ScaleX) }

// ScaledHeight is the height after scaling, ignoring rotation.
func (o *Object) ScaledHeight() float64 { return o.Height * math.Abs(o.ScaleY) }

// Center returns the pivot of the object in scene coordinates.
func (o *Object) Center() Pt {
	return Pt{o.Left + o.ScaledWidth()/2, o.Top + o.ScaledHeight()/2}
}

// SetCenter moves the object so that its center lands on p.
func (o *Object) SetCenter(p Pt) {
	o.Left = p.X - o.ScaledWidth()/2
	o.Top = p.Y - o.ScaledHeight()/2
}

// Transform maps object-local coordinates (0..Width, 0..Height) to the scene.
func (o *Object) Transform() Affine2D {
	sx, sy := o.ScaleX, o.ScaleY
	if o.FlipX {
		sx = -sx
	}
	if o.FlipY {
		sy = -sy
	}
	c := o.Center()
	return Translate(c.X, c.Y).
		Mul(Rotate(Deg2Rad(o.Angle))).
		Mul(Scale(sx, sy)).
		Mul(Translate(-o.Width/2, -o.Height/2))
}

// Bounds returns the axis-aligned bounding box in scene coordinates.
func (o *Object) Bounds() Rect {
	m := o.Transform()
	return BoundsOf(
		m.Apply(Pt{0, 0}),
		m.Apply(Pt{o.Width, 0}),
		m.Apply(Pt{0, o.Height}),
		m.Apply(Pt{o.Width, o.Height}),
	)
}

// Members makes a single object usable as a Selection.
func (o *Object) Members() []*Object { return []*Object{o} }

// Hit reports whether the scene point p lies on the object.
func (o *Object) Hit(p Pt) bool {
	q := o.Transform().Invert().Apply(p)
	if o.Kind == KindEllipse {
		rx, ry := o.Width/2, o.Height/2
		if rx == 0 || ry == 0 {
			return false
		}
		dx := (q.X - rx) / rx
		dy := (q.Y - ry) / ry
		return dx*dx+dy*dy <= 1
	}
	return R(0, 0, o.Width, o.Height).Contains(q)
}

// Clone returns an independent deep copy.
func (o *Object) Clone() *Object {
	c := *o
	return &c
}

// SetText replaces the text of a text object and re-measures it.
func (o *Object) SetText(text string) {
	o.Text = text
	o.measure()
}

func (o *Object) measure() {
	if o.Kind != KindText {
		return
	}
	o.Width, o.Height = textlayout.Size(o.Text, o.FontSize)
}

// Selection is what the canvas can hold as its active object: either a
// single *Object or an *ActiveSelection grouping several.
type Selection interface {
	Bounds() Rect
	Members() []*Object
}

// ActiveSelection is an ephemeral group of selected objects. It is never part
// of the object list and never serialized.
type ActiveSelection struct {
	members []*Object
}

// NewActiveSelection groups objs, keeping their order.
func NewActiveSelection(objs ...*Object) *ActiveSelection {
	return &ActiveSelection{members: append([]*Object(nil), objs...)}
}

func (g *ActiveSelection) Members() []*Object { return append([]*Object(nil), g.members...) }
func (g *ActiveSelection) Len() int           { return len(g.members) }

func (g *ActiveSelection) Contains(o *Object) bool {
	for _, m := range g.members {
		if m == o {
			return true
		}
	}
	return false
}

func (g *ActiveSelection) Bounds() Rect {
	var b Rect
	for i, m := range g.members {
		if i == 0 {
			b = m.Bounds()
			continue
		}
		b = b.Union(m.Bounds())
	}
	return b
}
