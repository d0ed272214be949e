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
	"fmt"
	"strconv"
	"strings"
)

// Color is an 8-bit RGBA color.
type Color struct{ R, G, B, A uint8 }

var (
	Black       = Color{0, 0, 0, 255}
	White       = Color{255, 255, 255, 255}
	Transparent = Color{0, 0, 0, 0}
)

// ParseColor accepts #rgb, #rrggbb, #rrggbbaa and the keywords
// "transparent", "black" and "white". Anything else is an error.
func ParseColor(s string) (Color, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "", "transparent", "none":
		return Transparent, nil
	case "black":
		return Black, nil
	case "white":
		return White, nil
	}
	if !strings.HasPrefix(s, "#") {
		return Color{}, fmt.Errorf("unsupported color %q", s)
	}
	hex := s[1:]
	if len(hex) == 3 {
		hex = string([]byte{hex[0], hex[0], hex[1], hex[1], hex[2], hex[2]})
	}
	if len(hex) == 6 {
		hex += "ff"
	}
	if len(hex) != 8 {
		return Color{}, fmt.Errorf("unsupported color %q", s)
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return Color{}, fmt.Errorf("parse color %q: %w", s, err)
	}
	return Color{R: uint8(v >> 24), G: uint8(v >> 16), B: uint8(v >> 8), A: uint8(v)}, nil
}

// Hex formats c as #rrggbb, or #rrggbbaa when not opaque.
func (c Color) Hex() string {
	if c.A == 255 {
		return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
	}
	return fmt.Sprintf("#%02x%02x%02x%02x", c.R, c.G, c.B, c.A)
}

// Controls lists which transform handles are visible on a selected object.
type Controls struct {
	ML, MR, MT, MB, MTR bool
}

// StylePreset is the construction-time styling applied to every new object.
// It is a plain value: each object receives its own copy and nothing global
// is mutated.
type StylePreset struct {
	BorderColor        string
	BorderScaleFactor  float64
	CornerSize         float64
	CornerColor        string
	CornerStrokeColor  string
	CornerStyle        string // "circle" | "rect"
	TransparentCorners bool
	Controls           Controls

	TextFill       string
	TextFontFamily string
	ShapeFill      string
}

// DefaultStyle returns the stock preset: pink borders with round, filled
// corner handles and the side and rotation handles hidden.
func DefaultStyle() StylePreset {
	return StylePreset{
		BorderColor:        "#ff5967",
		BorderScaleFactor:  2,
		CornerSize:         10,
		CornerColor:        "#ff5967",
		CornerStrokeColor:  "#ffffff",
		CornerStyle:        "circle",
		TransparentCorners: false,
		Controls:           Controls{},
		TextFill:           "#ed5e77",
		TextFontFamily:     "sans-serif",
		ShapeFill:          "#cccccc",
	}
}

// NewImage builds an image object of natural size w x h with the preset applied.
func (s StylePreset) NewImage(src string, w, h float64) *Object {
	o := newObject(KindImage, s)
	o.Src = src
	o.Width, o.Height = w, h
	return o
}

// NewText builds a text object sized by measuring text at fontSize.
func (s StylePreset) NewText(text string, fontSize float64) *Object {
	o := newObject(KindText, s)
	o.Text = text
	o.FontSize = fontSize
	o.FontFamily = s.TextFontFamily
	o.Fill = s.TextFill
	o.Editable = true
	o.measure()
	return o
}

// NewRect builds a filled rectangle.
func (s StylePreset) NewRect(w, h float64) *Object {
	o := newObject(KindRect, s)
	o.Width, o.Height = w, h
	o.Fill = s.ShapeFill
	return o
}

// NewEllipse builds a filled ellipse inscribed in w x h.
func (s StylePreset) NewEllipse(w, h float64) *Object {
	o := newObject(KindEllipse, s)
	o.Width, o.Height = w, h
	o.Fill = s.ShapeFill
	return o
}
