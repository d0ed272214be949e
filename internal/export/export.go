/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package export renders the objects of a board to PNG, PDF and SVG, and
// packs boards with their assets into ZIP bundles.
package export

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"

	"refercanvas/internal/ingest"
	"refercanvas/internal/scene"
)

// DefaultPadding surrounds the union of object bounds.
const DefaultPadding = 20

var ErrEmpty = errors.New("export: nothing to export")

// Fetcher returns the raw bytes behind an image source.
type Fetcher interface {
	Fetch(ctx context.Context, src string) ([]byte, error)
}

// Options shared by all exporters.
type Options struct {
	// Padding in scene units around the content. Zero uses DefaultPadding;
	// negative means none.
	Padding float64
	// Scale is output units per scene unit. Zero means 1.
	Scale float64
	// Background fill; empty means white.
	Background string
	// Fetcher resolves image sources. Nil uses an ingest.HTTPLoader.
	Fetcher Fetcher
}

func (o Options) withDefaults() Options {
	if o.Padding == 0 {
		o.Padding = DefaultPadding
	}
	if o.Padding < 0 {
		o.Padding = 0
	}
	if o.Scale <= 0 {
		o.Scale = 1
	}
	if o.Background == "" {
		o.Background = "#ffffff"
	}
	if o.Fetcher == nil {
		o.Fetcher = &ingest.HTTPLoader{}
	}
	return o
}

// Bounds returns the union of the object boxes grown by pad on every side.
func Bounds(objs []*scene.Object, pad float64) (scene.Rect, error) {
	if len(objs) == 0 {
		return scene.Rect{}, ErrEmpty
	}
	b := objs[0].Bounds()
	for _, o := range objs[1:] {
		b = b.Union(o.Bounds())
	}
	return b.Inset(-pad, -pad), nil
}

// frame is the page every exporter draws: content bounds plus the matrix
// from scene to output units.
type frame struct {
	bounds scene.Rect
	scale  float64
}

func newFrame(objs []*scene.Object, o Options) (frame, error) {
	b, err := Bounds(objs, o.Padding)
	if err != nil {
		return frame{}, err
	}
	return frame{bounds: b, scale: o.Scale}, nil
}

func (f frame) width() float64  { return f.bounds.W * f.scale }
func (f frame) height() float64 { return f.bounds.H * f.scale }

// objectMatrix maps object-local coordinates to output coordinates.
func (f frame) objectMatrix(o *scene.Object) scene.Affine2D {
	return scene.Scale(f.scale, f.scale).
		Mul(scene.Translate(-f.bounds.X, -f.bounds.Y)).
		Mul(o.Transform())
}

func fetchImage(ctx context.Context, fe Fetcher, src string) (image.Image, string, []byte, error) {
	data, err := fe.Fetch(ctx, src)
	if err != nil {
		return nil, "", nil, err
	}
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", nil, fmt.Errorf("decode image: %w", err)
	}
	return img, format, data, nil
}

func colorOr(s string, def scene.Color) scene.Color {
	if s == "" {
		return def
	}
	c, err := scene.ParseColor(s)
	if err != nil {
		return def
	}
	return c
}

// textFill resolves the fill of a text object from the object or its style.
func textFill(o *scene.Object) scene.Color {
	if o.Fill != "" {
		return colorOr(o.Fill, scene.Black)
	}
	return colorOr(o.Style.TextFill, scene.Black)
}

// WriteFile renders with fn into path, creating parent directories.
func WriteFile(path string, fn func(io.Writer) error) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("ensure out dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", filepath.Base(path), err)
	}
	if err := fn(f); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return err
	}
	return f.Close()
}
