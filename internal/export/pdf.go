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
	"image/png"
	"io"
	"log/slog"
	"strings"

	"github.com/jung-kurt/gofpdf"

	applog "refercanvas/internal/log"
	"refercanvas/internal/scene"
	"refercanvas/internal/textlayout"
)

// PDF writes objs as a single page whose size is the padded content bounds.
// Units are points; Options.Scale points per scene unit.
// Text uses the built-in Helvetica so nothing needs embedding.
func PDF(ctx context.Context, w io.Writer, objs []*scene.Object, opt Options) error {
	opt = opt.withDefaults()
	fr, err := newFrame(objs, opt)
	if err != nil {
		return err
	}
	l := applog.WithOperation(applog.WithComponent("export"), "pdf")
	pw, ph := fr.width(), fr.height()

	pdf := gofpdf.NewCustom(&gofpdf.InitType{
		UnitStr: "pt",
		Size:    gofpdf.SizeType{Wd: pw, Ht: ph},
	})
	pdf.SetTitle("Refer board", true)
	pdf.SetCreator("refercanvas", true)
	pdf.SetAutoPageBreak(false, 0)
	pdf.SetMargins(0, 0, 0)
	pdf.AddPage()
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	setFillColor(pdf, colorOr(opt.Background, scene.White))
	pdf.Rect(0, 0, pw, ph, "F")

	s := fr.scale
	for i, o := range objs {
		if err := ctx.Err(); err != nil {
			return err
		}
		c := o.Center()
		cx, cy := (c.X-fr.bounds.X)*s, (c.Y-fr.bounds.Y)*s
		w, h := o.Width*s, o.Height*s
		x, y := cx-w/2, cy-h/2
		sx, sy := o.ScaleX, o.ScaleY
		if o.FlipX {
			sx = -sx
		}
		if o.FlipY {
			sy = -sy
		}
		if sx == 0 || sy == 0 {
			continue
		}

		pdf.TransformBegin()
		// gofpdf rotates counter-clockwise; scene angles are clockwise.
		pdf.TransformRotate(-o.Angle, cx, cy)
		pdf.TransformScale(sx*100, sy*100, cx, cy)
		pdf.SetAlpha(clamp01(o.Opacity), "Normal")

		switch o.Kind {
		case scene.KindRect, scene.KindEllipse:
			style := shapeStyle(pdf, o, s)
			if style != "" {
				if o.Kind == scene.KindRect {
					pdf.Rect(x, y, w, h, style)
				} else {
					pdf.Ellipse(cx, cy, w/2, h/2, 0, style)
				}
			}
		case scene.KindText:
			size := o.FontSize
			if size <= 0 {
				size = 16
			}
			pdf.SetFont("Helvetica", "", size*s)
			fc := textFill(o)
			pdf.SetTextColor(int(fc.R), int(fc.G), int(fc.B))
			lh := size * textlayout.LineHeight * s
			for j, line := range strings.Split(o.Text, "\n") {
				pdf.Text(x, y+float64(j)*lh+size*0.9*s, tr(line))
			}
		case scene.KindImage:
			name, opts, err := registerImage(ctx, pdf, opt.Fetcher, o.Src, i)
			if err != nil {
				l.Warn("image skipped", slog.String("src", truncate(o.Src, 60)), slog.Any("err", err))
				break
			}
			pdf.ImageOptions(name, x, y, w, h, false, opts, 0, "")
		}
		pdf.SetAlpha(1, "Normal")
		pdf.TransformEnd()
	}
	if err := pdf.Error(); err != nil {
		return fmt.Errorf("render pdf: %w", err)
	}
	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("write pdf: %w", err)
	}
	return nil
}

// shapeStyle sets colors for a shape and returns the gofpdf style string,
// or "" when there is nothing to paint.
func shapeStyle(pdf *gofpdf.Fpdf, o *scene.Object, s float64) string {
	var style string
	if fill := colorOr(o.Fill, scene.Transparent); fill.A > 0 {
		setFillColor(pdf, fill)
		style += "F"
	}
	if stroke := colorOr(o.Stroke, scene.Transparent); stroke.A > 0 && o.StrokeWidth > 0 {
		pdf.SetDrawColor(int(stroke.R), int(stroke.G), int(stroke.B))
		pdf.SetLineWidth(o.StrokeWidth * s)
		style += "D"
	}
	return style
}

// registerImage hands the image to gofpdf. JPEG, PNG and GIF pass through;
// other formats are re-encoded as PNG.
func registerImage(ctx context.Context, pdf *gofpdf.Fpdf, fe Fetcher, src string, idx int) (string, gofpdf.ImageOptions, error) {
	img, format, data, err := fetchImage(ctx, fe, src)
	if err != nil {
		return "", gofpdf.ImageOptions{}, err
	}
	var typ string
	switch format {
	case "jpeg":
		typ = "JPG"
	case "png":
		typ = "PNG"
	case "gif":
		typ = "GIF"
	default:
		var buf bytes.Buffer
		if err := png.Encode(&buf, img); err != nil {
			return "", gofpdf.ImageOptions{}, fmt.Errorf("re-encode %s: %w", format, err)
		}
		data, typ = buf.Bytes(), "PNG"
	}
	name := fmt.Sprintf("img%d", idx)
	opts := gofpdf.ImageOptions{ImageType: typ}
	pdf.RegisterImageOptionsReader(name, opts, bytes.NewReader(data))
	if err := pdf.Error(); err != nil {
		pdf.ClearError()
		return "", opts, fmt.Errorf("register image: %w", err)
	}
	return name, opts, nil
}

func setFillColor(pdf *gofpdf.Fpdf, c scene.Color) {
	pdf.SetFillColor(int(c.R), int(c.G), int(c.B))
}
