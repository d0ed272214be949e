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
	"encoding/json"
	"errors"
	"fmt"
	"slices"
)

// FormatVersion tags every serialized document.
const FormatVersion = "refer/1"

// ErrUnknownKind is returned by LoadFromJSON for objects of an unsupported type.
var ErrUnknownKind = errors.New("unknown object type")

// objectJSON is the dataless wire form: properties equal to their default are
// omitted. Fields whose default is not the zero value are pointers.
type objectJSON struct {
	Type        Kind     `json:"type"`
	Left        float64  `json:"left"`
	Top         float64  `json:"top"`
	Width       float64  `json:"width,omitempty"`
	Height      float64  `json:"height,omitempty"`
	ScaleX      *float64 `json:"scaleX,omitempty"`
	ScaleY      *float64 `json:"scaleY,omitempty"`
	Angle       float64  `json:"angle,omitempty"`
	FlipX       bool     `json:"flipX,omitempty"`
	FlipY       bool     `json:"flipY,omitempty"`
	Opacity     *float64 `json:"opacity,omitempty"`
	Fill        string   `json:"fill,omitempty"`
	Stroke      string   `json:"stroke,omitempty"`
	StrokeWidth float64  `json:"strokeWidth,omitempty"`
	Src         string   `json:"src,omitempty"`
	Text        string   `json:"text,omitempty"`
	FontSize    float64  `json:"fontSize,omitempty"`
	FontFamily  string   `json:"fontFamily,omitempty"`
	Selectable  *bool    `json:"selectable,omitempty"`
	Editable    *bool    `json:"editable,omitempty"`
}

type documentJSON struct {
	Version    string       `json:"version"`
	Objects    []objectJSON `json:"objects"`
	Background string       `json:"background,omitempty"`
}

func ptrIf[T comparable](v, def T, force bool) *T {
	if v == def && !force {
		return nil
	}
	return &v
}

func toWire(o *Object, extra []string) objectJSON {
	return objectJSON{
		Type:        o.Kind,
		Left:        o.Left,
		Top:         o.Top,
		Width:       o.Width,
		Height:      o.Height,
		ScaleX:      ptrIf(o.ScaleX, 1, false),
		ScaleY:      ptrIf(o.ScaleY, 1, false),
		Angle:       o.Angle,
		FlipX:       o.FlipX,
		FlipY:       o.FlipY,
		Opacity:     ptrIf(o.Opacity, 1, false),
		Fill:        o.Fill,
		Stroke:      o.Stroke,
		StrokeWidth: o.StrokeWidth,
		Src:         o.Src,
		Text:        o.Text,
		FontSize:    o.FontSize,
		FontFamily:  o.FontFamily,
		Selectable:  ptrIf(o.Selectable, true, slices.Contains(extra, "selectable")),
		Editable:    ptrIf(o.Editable, false, slices.Contains(extra, "editable")),
	}
}

func fromWire(w objectJSON, s StylePreset) (*Object, error) {
	switch w.Type {
	case KindImage, KindText, KindRect, KindEllipse:
	default:
		return nil, fmt.Errorf("%w %q", ErrUnknownKind, w.Type)
	}
	o := newObject(w.Type, s)
	o.Left, o.Top = w.Left, w.Top
	o.Width, o.Height = w.Width, w.Height
	if w.ScaleX != nil {
		o.ScaleX = *w.ScaleX
	}
	if w.ScaleY != nil {
		o.ScaleY = *w.ScaleY
	}
	o.Angle = w.Angle
	o.FlipX, o.FlipY = w.FlipX, w.FlipY
	if w.Opacity != nil {
		o.Opacity = *w.Opacity
	}
	o.Fill, o.Stroke, o.StrokeWidth = w.Fill, w.Stroke, w.StrokeWidth
	o.Src, o.Text, o.FontSize, o.FontFamily = w.Src, w.Text, w.FontSize, w.FontFamily
	if w.Selectable != nil {
		o.Selectable = *w.Selectable
	}
	if w.Editable != nil {
		o.Editable = *w.Editable
	}
	return o, nil
}

// MarshalJSON encodes a single object in the dataless form.
func (o *Object) MarshalJSON() ([]byte, error) {
	return json.Marshal(toWire(o, nil))
}

// ToDatalessJSON serializes the canvas. Properties named in extra are written
// even when they hold their default value. Equal scenes produce identical
// strings.
func (c *Canvas) ToDatalessJSON(extra ...string) (string, error) {
	c.mu.RLock()
	doc := documentJSON{Version: FormatVersion, Objects: make([]objectJSON, 0, len(c.objects)), Background: c.background}
	for _, o := range c.objects {
		doc.Objects = append(doc.Objects, toWire(o, extra))
	}
	c.mu.RUnlock()
	b, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("serialize canvas: %w", err)
	}
	return string(b), nil
}

// DecodeObjects parses a serialized document into detached objects built with
// style s, without touching any canvas.
func DecodeObjects(data string, s StylePreset) ([]*Object, string, error) {
	var doc documentJSON
	if err := json.Unmarshal([]byte(data), &doc); err != nil {
		return nil, "", fmt.Errorf("decode document: %w", err)
	}
	objs := make([]*Object, 0, len(doc.Objects))
	for i, w := range doc.Objects {
		o, err := fromWire(w, s)
		if err != nil {
			return nil, "", fmt.Errorf("object %d: %w", i, err)
		}
		objs = append(objs, o)
	}
	return objs, doc.Background, nil
}

// LoadFromJSON replaces the canvas content with the serialized document. The
// document is fully decoded before anything changes, so a bad document leaves
// the canvas untouched. Loading replaces the scene wholesale and reports no
// per-object mutations; an existing selection is cleared.
func (c *Canvas) LoadFromJSON(data string) error {
	objs, bg, err := DecodeObjects(data, c.Style())
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.objects = objs
	c.background = bg
	had := c.active != nil
	c.active = nil
	c.mu.Unlock()
	if had {
		c.notify(Mutation{Kind: SelectionCleared})
	}
	return nil
}
