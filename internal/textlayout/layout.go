/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package textlayout measures the text objects placed on the canvas.
// Measurement is isolated behind a Provider so the scene stays deterministic
// in tests and exporters can draw with the same face they measured with.
package textlayout

import (
	"math"
	"strings"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
)

// LineHeight is the line spacing factor applied to the font size.
const LineHeight = 1.16

// Metrics provides font metrics in pixels for the resolved face.
type Metrics struct {
	Ascent, Descent, LineGap float64
	// Size is the nominal pixel size of the face as returned by Resolve.
	Size float64
}

// Provider maps a family name to a concrete font.Face.
type Provider interface {
	Resolve(family string) (font.Face, Metrics)
}

// BasicProvider uses x/image/basicfont Face7x13 for every family.
type BasicProvider struct{}

func (BasicProvider) Resolve(string) (font.Face, Metrics) {
	f := basicfont.Face7x13
	m := f.Metrics()
	return f, Metrics{
		Ascent:  float64(m.Ascent.Round()),
		Descent: float64(m.Descent.Round()),
		LineGap: float64(m.Height.Round() - m.Ascent.Round() - m.Descent.Round()),
		Size:    float64(m.Height.Round()),
	}
}

// Line is one laid out line of a text object, in object units.
type Line struct {
	Text  string
	Width float64
}

// Box is the measured extent of a text object.
type Box struct {
	Lines  []Line
	Width  float64
	Height float64
	// Scale converts face pixels to object units (fontSize / face size).
	Scale float64
}

// Measure lays out text at fontSize. Lines break only on '\n'; there is no wrapping.
func Measure(p Provider, family, text string, fontSize float64) Box {
	if p == nil {
		p = BasicProvider{}
	}
	face, met := p.Resolve(family)
	if met.Size <= 0 {
		met.Size = met.Ascent + met.Descent
	}
	if fontSize <= 0 {
		fontSize = met.Size
	}
	scale := fontSize / met.Size
	d := &font.Drawer{Face: face}
	box := Box{Scale: scale}
	parts := strings.Split(text, "\n")
	for _, s := range parts {
		w := float64(d.MeasureString(s)) / 64 * scale
		box.Lines = append(box.Lines, Line{Text: s, Width: w})
		box.Width = math.Max(box.Width, w)
	}
	box.Height = float64(len(parts)) * fontSize * LineHeight
	return box
}

// Size returns only the width and height of text measured with BasicProvider.
func Size(text string, fontSize float64) (w, h float64) {
	b := Measure(BasicProvider{}, "", text, fontSize)
	return b.Width, b.Height
}
