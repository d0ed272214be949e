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
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"math"
	"strings"
	"sync"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"

	applog "refercanvas/internal/log"
	"refercanvas/internal/scene"
	"refercanvas/internal/textlayout"
)

var regularFont = sync.OnceValues(func() (*truetype.Font, error) {
	return truetype.Parse(goregular.TTF)
})

// RenderImage rasterizes objs bottom to top. Images that cannot be fetched
// or decoded are skipped with a warning.
func RenderImage(ctx context.Context, objs []*scene.Object, opt Options) (image.Image, error) {
	opt = opt.withDefaults()
	fr, err := newFrame(objs, opt)
	if err != nil {
		return nil, err
	}
	w := int(math.Ceil(fr.width()))
	h := int(math.Ceil(fr.height()))
	if w <= 0 || h <= 0 {
		return nil, ErrEmpty
	}
	l := applog.WithOperation(applog.WithComponent("export"), "png")

	dc := gg.NewContext(w, h)
	dc.SetColor(toColor(colorOr(opt.Background, scene.White)))
	dc.Clear()

	for _, o := range objs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		dc.Push()
		dc.Scale(fr.scale, fr.scale)
		dc.Translate(-fr.bounds.X, -fr.bounds.Y)
		c := o.Center()
		sx, sy := o.ScaleX, o.ScaleY
		if o.FlipX {
			sx = -sx
		}
		if o.FlipY {
			sy = -sy
		}
		dc.Translate(c.X, c.Y)
		dc.Rotate(scene.Deg2Rad(o.Angle))
		dc.Scale(sx, sy)
		dc.Translate(-o.Width/2, -o.Height/2)

		switch o.Kind {
		case scene.KindRect:
			dc.DrawRectangle(0, 0, o.Width, o.Height)
			fillStroke(dc, o)
		case scene.KindEllipse:
			dc.DrawEllipse(o.Width/2, o.Height/2, o.Width/2, o.Height/2)
			fillStroke(dc, o)
		case scene.KindText:
			if err := drawText(dc, o); err != nil {
				l.Warn("text skipped", slog.Any("err", err))
			}
		case scene.KindImage:
			px := math.Abs(o.Width*o.ScaleX) * fr.scale
			py := math.Abs(o.Height*o.ScaleY) * fr.scale
			if err := drawImage(ctx, dc, o, opt.Fetcher, px, py); err != nil {
				l.Warn("image skipped", slog.String("src", truncate(o.Src, 60)), slog.Any("err", err))
			}
		}
		dc.Pop()
	}
	return dc.Image(), nil
}

// PNG renders objs and encodes the result to w.
func PNG(ctx context.Context, w io.Writer, objs []*scene.Object, opt Options) error {
	img, err := RenderImage(ctx, objs, opt)
	if err != nil {
		return err
	}
	if err := png.Encode(w, img); err != nil {
		return fmt.Errorf("encode png: %w", err)
	}
	return nil
}

// Thumbnail renders objs so that the longer side is at most maxSide pixels
// and returns the PNG bytes with their size.
func Thumbnail(ctx context.Context, objs []*scene.Object, maxSide int) ([]byte, int, int, error) {
	b, err := Bounds(objs, DefaultPadding)
	if err != nil {
		return nil, 0, 0, err
	}
	scale := 1.0
	if long := math.Max(b.W, b.H); long > float64(maxSide) && maxSide > 0 {
		scale = float64(maxSide) / long
	}
	img, err := RenderImage(ctx, objs, Options{Scale: scale})
	if err != nil {
		return nil, 0, 0, err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, 0, 0, fmt.Errorf("encode thumbnail: %w", err)
	}
	r := img.Bounds()
	return buf.Bytes(), r.Dx(), r.Dy(), nil
}

func fillStroke(dc *gg.Context, o *scene.Object) {
	fill := colorOr(o.Fill, scene.Transparent)
	stroke := colorOr(o.Stroke, scene.Transparent)
	if fill.A > 0 {
		dc.SetColor(withOpacity(fill, o.Opacity))
		if stroke.A > 0 && o.StrokeWidth > 0 {
			dc.FillPreserve()
		} else {
			dc.Fill()
			return
		}
	}
	if stroke.A > 0 && o.StrokeWidth > 0 {
		dc.SetColor(withOpacity(stroke, o.Opacity))
		dc.SetLineWidth(o.StrokeWidth)
		dc.Stroke()
		return
	}
	dc.ClearPath()
}

func drawText(dc *gg.Context, o *scene.Object) error {
	f, err := regularFont()
	if err != nil {
		return fmt.Errorf("parse font: %w", err)
	}
	size := o.FontSize
	if size <= 0 {
		size = 16
	}
	dc.SetFontFace(truetype.NewFace(f, &truetype.Options{Size: size, DPI: 72, Hinting: font.HintingNone}))
	dc.SetColor(withOpacity(textFill(o), o.Opacity))
	lh := size * textlayout.LineHeight
	for i, line := range strings.Split(o.Text, "\n") {
		dc.DrawString(line, 0, float64(i)*lh+size*0.9)
	}
	return nil
}

// drawImage draws the source into the object box. Sources larger than their
// on-page pixel size are downscaled first for quality.
func drawImage(ctx context.Context, dc *gg.Context, o *scene.Object, fe Fetcher, px, py float64) error {
	src, _, _, err := fetchImage(ctx, fe, o.Src)
	if err != nil {
		return err
	}
	sb := src.Bounds()
	tw, th := sb.Dx(), sb.Dy()
	if px >= 1 && py >= 1 && (float64(tw) > px || float64(th) > py) {
		tw, th = int(math.Ceil(px)), int(math.Ceil(py))
	}
	dst := image.NewRGBA(image.Rect(0, 0, tw, th))
	var mask image.Image
	if o.Opacity < 1 {
		mask = image.NewUniform(color.Alpha{A: uint8(math.Round(clamp01(o.Opacity) * 255))})
	}
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), src, sb, xdraw.Over, &xdraw.Options{SrcMask: mask})
	if o.Width <= 0 || o.Height <= 0 {
		return nil
	}
	dc.Scale(o.Width/float64(tw), o.Height/float64(th))
	dc.DrawImage(dst, 0, 0)
	return nil
}

func toColor(c scene.Color) color.NRGBA {
	return color.NRGBA{R: c.R, G: c.G, B: c.B, A: c.A}
}

func withOpacity(c scene.Color, op float64) color.NRGBA {
	n := toColor(c)
	n.A = uint8(math.Round(float64(n.A) * clamp01(op)))
	return n
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}
