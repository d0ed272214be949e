/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package export

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"refercanvas/internal/scene"
)

// PresetName represents a named export preset.
type PresetName string

const (
	PresetWeb   PresetName = "web"
	PresetPrint PresetName = "print"
	PresetThumb PresetName = "thumb"
)

// Formats understood by BatchExport.
const (
	FormatPNG    = "png"
	FormatPDF    = "pdf"
	FormatSVG    = "svg"
	FormatBundle = "zip"
)

// BatchOptions controls batch export of one board to several formats.
//
// Files are named <Name>.<format> inside OutDir. Formats empty means the
// preset defaults. Scale, when > 0, overrides the preset scale.
type BatchOptions struct {
	Preset  PresetName
	Formats []string
	OutDir  string
	Name    string
	Scale   float64
	Options Options
	// Content is the serialized board, required for the zip format.
	Content string
}

// BatchExport runs the exporters selected by opt and returns the written paths.
func BatchExport(ctx context.Context, objs []*scene.Object, opt BatchOptions) ([]string, error) {
	if strings.TrimSpace(opt.OutDir) == "" {
		return nil, fmt.Errorf("output directory is required")
	}
	name := opt.Name
	if name == "" {
		name = "board"
	}
	formats := opt.Formats
	if len(formats) == 0 {
		formats = presetDefaultFormats(opt.Preset)
	}
	eo := opt.Options
	eo.Scale = presetScale(opt.Preset)
	if opt.Scale > 0 {
		eo.Scale = opt.Scale
	}

	var written []string
	for _, f := range formats {
		f = strings.ToLower(strings.TrimSpace(f))
		var fn func(io.Writer) error
		switch f {
		case FormatPNG:
			fn = func(w io.Writer) error { return PNG(ctx, w, objs, eo) }
		case FormatPDF:
			// Points map 1:1 to scene units unless a scale is forced.
			po := eo
			if opt.Scale <= 0 {
				po.Scale = 1
			}
			fn = func(w io.Writer) error { return PDF(ctx, w, objs, po) }
		case FormatSVG:
			fn = func(w io.Writer) error { return SVG(ctx, w, objs, eo) }
		case FormatBundle:
			fn = func(w io.Writer) error { return Bundle(ctx, w, opt.Content, objs, eo) }
		default:
			return written, fmt.Errorf("unknown format: %s", f)
		}
		out := filepath.Join(opt.OutDir, name+"."+f)
		if err := WriteFile(out, fn); err != nil {
			return written, fmt.Errorf("%s: %w", f, err)
		}
		written = append(written, out)
	}
	return written, nil
}

// FormatFromPath maps a file extension to an export format.
func FormatFromPath(path string) (string, bool) {
	switch f := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), "."); f {
	case FormatPNG, FormatPDF, FormatSVG, FormatBundle:
		return f, true
	}
	return "", false
}

func presetDefaultFormats(p PresetName) []string {
	switch p {
	case PresetWeb:
		return []string{FormatPNG, FormatSVG}
	case PresetPrint:
		return []string{FormatPDF, FormatPNG}
	case PresetThumb:
		return []string{FormatPNG}
	default:
		return []string{FormatPNG}
	}
}

// presetScale is output units per scene unit for raster and SVG output:
// print renders at 300 dpi, thumbnails at a quarter.
func presetScale(p PresetName) float64 {
	switch p {
	case PresetPrint:
		return 300.0 / 72.0
	case PresetThumb:
		return 0.25
	default:
		return 1
	}
}
