//go:build fyne && cgo

/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package ui

import (
	"bytes"
	"context"
	"image"
	"image/color"
	_ "image/jpeg"
	_ "image/png"
	"log/slog"
	"strings"
	"sync"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/widget"

	"refercanvas/internal/controller"
	"refercanvas/internal/ingest"
	"refercanvas/internal/scene"
	"refercanvas/internal/viewport"
)

// BoardCanvas draws the scene of a controller and forwards pointer input to
// it. Rotation is not drawn; rotated objects show as their bounding box.
type BoardCanvas struct {
	widget.BaseWidget

	ctl *controller.Controller
	log *slog.Logger

	// modifier state, fed by the window's key down/up handlers
	ctrl, shift, alt bool

	// drag state
	dragging  bool
	panning   bool
	dragDelta scene.Pt

	// OnEditText is called when a text object is double-tapped.
	OnEditText func(o *scene.Object)

	imgMu  sync.Mutex
	images map[string]image.Image
}

func NewBoardCanvas(ctl *controller.Controller, log *slog.Logger) *BoardCanvas {
	b := &BoardCanvas{ctl: ctl, log: log, images: map[string]image.Image{}}
	b.ExtendBaseWidget(b)
	return b
}

// PreferredSize sets a decent default size for the widget.
func (b *BoardCanvas) PreferredSize() fyne.Size { return fyne.NewSize(800, 600) }

func toPt(p fyne.Position) scene.Pt { return scene.Pt{X: float64(p.X), Y: float64(p.Y)} }

// Resize keeps the scene viewport in step with the widget.
func (b *BoardCanvas) Resize(s fyne.Size) {
	b.ctl.Canvas().SetSize(float64(s.Width), float64(s.Height))
	b.BaseWidget.Resize(s)
}

// Tapped selects the object under the pointer or clears the selection.
func (b *BoardCanvas) Tapped(e *fyne.PointEvent) {
	if t := b.ctl.Canvas().FindTarget(toPt(e.Position)); t != nil {
		b.ctl.Select(t)
	} else {
		b.ctl.Select()
	}
	b.Refresh()
}

// DoubleTapped edits text objects and toggles the fit of anything else.
func (b *BoardCanvas) DoubleTapped(e *fyne.PointEvent) {
	if t := b.ctl.Canvas().FindTarget(toPt(e.Position)); t != nil && t.Kind == scene.KindText && b.OnEditText != nil {
		b.OnEditText(t)
		return
	}
	go func() {
		if err := b.ctl.HandleDoubleClick(context.Background(), toPt(e.Position)); err != nil {
			b.log.Debug("fit toggle", "err", err)
		}
		fyne.Do(b.Refresh)
	}()
}

// Dragged pans in drag mode or on empty space, and moves the selection
// otherwise. The move is committed on DragEnd.
func (b *BoardCanvas) Dragged(e *fyne.DragEvent) {
	if !b.dragging {
		b.dragging = true
		hit := b.ctl.Canvas().FindTarget(toPt(e.Position.Subtract(e.Dragged)))
		b.panning = b.ctl.DragMode() || hit == nil
		if !b.panning && !selected(b.ctl.Canvas().ActiveObject(), hit) {
			b.ctl.Select(hit)
		}
	}
	if b.panning {
		b.ctl.Pan(float64(e.Dragged.DX), float64(e.Dragged.DY))
	} else {
		z := b.ctl.View.Zoom()
		b.dragDelta.X += float64(e.Dragged.DX) / z
		b.dragDelta.Y += float64(e.Dragged.DY) / z
	}
	b.Refresh()
}

func (b *BoardCanvas) DragEnd() {
	if !b.panning {
		b.ctl.MoveSelection(b.dragDelta.X, b.dragDelta.Y)
	}
	b.dragging, b.panning = false, false
	b.dragDelta = scene.Pt{}
	b.Refresh()
}

func selected(sel scene.Selection, o *scene.Object) bool {
	if sel == nil || o == nil {
		return false
	}
	for _, m := range sel.Members() {
		if m == o {
			return true
		}
	}
	return false
}

// Scrolled zooms with ctrl held and pans otherwise.
func (b *BoardCanvas) Scrolled(e *fyne.ScrollEvent) {
	b.ctl.HandleWheel(viewport.WheelEvent{
		// fyne reports the content offset; the wheel delta is its inverse
		DeltaX:  -float64(e.Scrolled.DX),
		DeltaY:  -float64(e.Scrolled.DY),
		Pointer: toPt(e.Position),
		Ctrl:    b.ctrl,
		Shift:   b.shift,
		Alt:     b.alt,
	})
	b.Refresh()
}

// bitmap returns the decoded image of a data URL source, caching it.
func (b *BoardCanvas) bitmap(src string) image.Image {
	b.imgMu.Lock()
	defer b.imgMu.Unlock()
	if img, ok := b.images[src]; ok {
		return img
	}
	var img image.Image
	if data, _, err := ingest.DecodeDataURL(src); err == nil {
		img, _, _ = image.Decode(bytes.NewReader(data))
	}
	b.images[src] = img
	return img
}

func (b *BoardCanvas) CreateRenderer() fyne.WidgetRenderer {
	bg := canvas.NewRectangle(color.NRGBA{R: 30, G: 30, B: 34, A: 255})
	sel := canvas.NewRectangle(color.Transparent)
	sel.StrokeColor = color.NRGBA{R: 0, G: 170, B: 255, A: 255}
	sel.StrokeWidth = 1
	sel.Hide()
	return &boardRenderer{b: b, bg: bg, sel: sel}
}

// boardRenderer rebuilds one canvas object per scene object on Refresh.
type boardRenderer struct {
	b       *BoardCanvas
	bg, sel *canvas.Rectangle
	objects []fyne.CanvasObject
	visuals []fyne.CanvasObject
}

func (r *boardRenderer) Destroy()                     {}
func (r *boardRenderer) Objects() []fyne.CanvasObject { return r.objects }
func (r *boardRenderer) MinSize() fyne.Size           { return fyne.NewSize(200, 150) }
func (r *boardRenderer) Refresh()                     { r.Layout(r.b.Size()); canvas.Refresh(r.b) }

func (r *boardRenderer) Layout(size fyne.Size) {
	r.bg.Resize(size)
	r.bg.Move(fyne.NewPos(0, 0))

	cv := r.b.ctl.Canvas()
	vpt := cv.ViewportTransform()
	active := cv.ActiveObject()
	delta := r.b.dragDelta

	r.visuals = r.visuals[:0]
	for _, o := range cv.Objects() {
		bb := o.Bounds()
		if selected(active, o) {
			bb.X += delta.X
			bb.Y += delta.Y
		}
		v := r.visual(o)
		if v == nil {
			continue
		}
		placeRect(v, vpt, bb)
		r.visuals = append(r.visuals, v)
	}

	r.sel.Hide()
	if active != nil && len(active.Members()) > 0 {
		bb := active.Bounds()
		bb.X += delta.X
		bb.Y += delta.Y
		placeRect(r.sel, vpt, bb.Inset(-2/vpt.A, -2/vpt.A))
		r.sel.Show()
	}

	r.objects = append([]fyne.CanvasObject{r.bg}, r.visuals...)
	r.objects = append(r.objects, r.sel)
}

func placeRect(v fyne.CanvasObject, vpt scene.Affine2D, bb scene.Rect) {
	tl := vpt.Apply(scene.Pt{X: bb.X, Y: bb.Y})
	v.Move(fyne.NewPos(float32(tl.X), float32(tl.Y)))
	v.Resize(fyne.NewSize(float32(bb.W*vpt.A), float32(bb.H*vpt.A)))
}

func (r *boardRenderer) visual(o *scene.Object) fyne.CanvasObject {
	switch o.Kind {
	case scene.KindImage:
		img := r.b.bitmap(o.Src)
		if img == nil {
			return canvas.NewRectangle(color.NRGBA{R: 80, G: 80, B: 80, A: 255})
		}
		ci := canvas.NewImageFromImage(img)
		ci.FillMode = canvas.ImageFillStretch
		ci.Translucency = 1 - o.Opacity
		return ci
	case scene.KindText:
		c, _ := scene.ParseColor(o.Fill)
		t := canvas.NewText(strings.ReplaceAll(o.Text, "\n", " "), nrgba(c))
		t.TextSize = float32(o.FontSize * o.ScaleY * r.b.ctl.View.Zoom())
		return t
	case scene.KindEllipse:
		return shape(canvas.NewCircle(color.Transparent), o)
	case scene.KindRect:
		return shape(canvas.NewRectangle(color.Transparent), o)
	}
	return nil
}

func shape(v fyne.CanvasObject, o *scene.Object) fyne.CanvasObject {
	fill, _ := scene.ParseColor(o.Fill)
	stroke, _ := scene.ParseColor(o.Stroke)
	switch s := v.(type) {
	case *canvas.Rectangle:
		s.FillColor, s.StrokeColor, s.StrokeWidth = nrgba(fill), nrgba(stroke), float32(o.StrokeWidth)
	case *canvas.Circle:
		s.FillColor, s.StrokeColor, s.StrokeWidth = nrgba(fill), nrgba(stroke), float32(o.StrokeWidth)
	}
	return v
}

func nrgba(c scene.Color) color.NRGBA { return color.NRGBA{R: c.R, G: c.G, B: c.B, A: c.A} }
