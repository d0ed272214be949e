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
	"bytes"
	"context"
	"fmt"
	"html"
	"io"
	"math"
	"strings"

	"refercanvas/internal/scene"
	"refercanvas/internal/textlayout"
)

// SVG writes objs as an SVG document. Image sources are referenced as-is,
// so data URLs stay embedded and remote images stay remote.
func SVG(ctx context.Context, w io.Writer, objs []*scene.Object, opt Options) error {
	opt = opt.withDefaults()
	fr, err := newFrame(objs, opt)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	var werr error
	wf := func(format string, args ...any) {
		if werr != nil {
			return
		}
		_, werr = fmt.Fprintf(&buf, format, args...)
	}

	pw, ph := fr.width(), fr.height()
	wf("<?xml version=\"1.0\" encoding=\"UTF-8\"?>\n")
	wf("<svg xmlns=\"http://www.w3.org/2000/svg\" xmlns:xlink=\"http://www.w3.org/1999/xlink\" version=\"1.1\" width=\"%dpx\" height=\"%dpx\" viewBox=\"0 0 %g %g\">\n",
		int(math.Ceil(pw)), int(math.Ceil(ph)), num(pw), num(ph))
	wf("  <rect x=\"0\" y=\"0\" width=\"%g\" height=\"%g\" fill=\"%s\"/>\n", num(pw), num(ph), colorOr(opt.Background, scene.White).Hex())

	for _, o := range objs {
		if err := ctx.Err(); err != nil {
			return err
		}
		m := fr.objectMatrix(o)
		wf("  <g transform=\"matrix(%g %g %g %g %g %g)\"", num(m.A), num(m.B), num(m.C), num(m.D), num(m.E), num(m.F))
		if o.Opacity < 1 {
			wf(" opacity=\"%g\"", num(clamp01(o.Opacity)))
		}
		wf(">\n")
		switch o.Kind {
		case scene.KindRect:
			wf("    <rect x=\"0\" y=\"0\" width=\"%g\" height=\"%g\"%s/>\n", num(o.Width), num(o.Height), paintAttrs(o))
		case scene.KindEllipse:
			wf("    <ellipse cx=\"%g\" cy=\"%g\" rx=\"%g\" ry=\"%g\"%s/>\n",
				num(o.Width/2), num(o.Height/2), num(o.Width/2), num(o.Height/2), paintAttrs(o))
		case scene.KindText:
			size := o.FontSize
			if size <= 0 {
				size = 16
			}
			family := o.FontFamily
			if family == "" {
				family = "sans-serif"
			}
			wf("    <text font-family=\"%s\" font-size=\"%g\" fill=\"%s\">\n", html.EscapeString(family), num(size), textFill(o).Hex())
			lh := size * textlayout.LineHeight
			for i, line := range strings.Split(o.Text, "\n") {
				wf("      <tspan x=\"0\" y=\"%g\">%s</tspan>\n", num(float64(i)*lh+size*0.9), html.EscapeString(line))
			}
			wf("    </text>\n")
		case scene.KindImage:
			wf("    <image x=\"0\" y=\"0\" width=\"%g\" height=\"%g\" preserveAspectRatio=\"none\" xlink:href=\"%s\"/>\n",
				num(o.Width), num(o.Height), html.EscapeString(o.Src))
		}
		wf("  </g>\n")
	}
	wf("</svg>\n")
	if werr != nil {
		return fmt.Errorf("build svg: %w", werr)
	}
	if _, err := w.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("write svg: %w", err)
	}
	return nil
}

func paintAttrs(o *scene.Object) string {
	fill := "none"
	if c := colorOr(o.Fill, scene.Transparent); c.A > 0 {
		fill = c.Hex()
	}
	out := fmt.Sprintf(" fill=\"%s\"", fill)
	if c := colorOr(o.Stroke, scene.Transparent); c.A > 0 && o.StrokeWidth > 0 {
		out += fmt.Sprintf(" stroke=\"%s\" stroke-width=\"%g\"", c.Hex(), num(o.StrokeWidth))
	}
	return out
}

// num rounds to 4 decimals so output stays stable across platforms.
func num(v float64) float64 { return scene.FloatRound(v, 4) }
