/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package viewport controls zoom and pan of the canvas: point zoom, fit to an
// element with restorable preview state, eased transitions and wheel input.
package viewport

import (
	"context"
	"log/slog"
	"math"
	"time"

	"refercanvas/internal/events"
	"refercanvas/internal/scene"
)

const (
	MinZoom = 0.01
	MaxZoom = 100
	// FitMargin is added to the element size, in scene units, when fitting.
	FitMargin = 20
)

// Surface is the part of the canvas the viewport drives.
type Surface interface {
	Size() scene.Size
	ViewportTransform() scene.Affine2D
	SetViewportTransform(scene.Affine2D)
	ActiveObject() scene.Selection
	Objects() []*scene.Object
}

// ViewState is the current zoom and the screen translation of the scene origin.
type ViewState struct {
	Zoom float64
	Pan  scene.Pt
}

// PreviewStatus is the view captured before a fit so it can be restored.
type PreviewStatus struct {
	Zoom float64
	// Pan is vpCenter*zoom - canvasCenter, the negated translation.
	Pan     scene.Pt
	Center  scene.Pt
	Element scene.Selection
}

// Clamp limits z to [MinZoom, MaxZoom].
func Clamp(z float64) float64 { return math.Min(MaxZoom, math.Max(MinZoom, z)) }

type Option func(*Controller)

// WithBus publishes ViewChanged on every view change.
func WithBus(b *events.Bus) Option { return func(c *Controller) { c.bus = b } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(c *Controller) { c.log = l } }

// WithAnimation makes fit and restore ease over d instead of jumping.
func WithAnimation(d time.Duration) Option { return func(c *Controller) { c.anim = d } }

// WithTicker replaces the frame source used by AnimateToPoint.
func WithTicker(f func(time.Duration) Ticker) Option { return func(c *Controller) { c.newTicker = f } }

// Controller owns the view of one Surface. It is not safe for concurrent use;
// drive it from the UI goroutine.
type Controller struct {
	s         Surface
	bus       *events.Bus
	log       *slog.Logger
	anim      time.Duration
	newTicker func(time.Duration) Ticker
	preview   *PreviewStatus
}

func New(s Surface, opts ...Option) *Controller {
	c := &Controller{s: s, log: slog.Default(), newTicker: NewTimeTicker}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Zoom returns the current zoom factor.
func (c *Controller) Zoom() float64 { return c.s.ViewportTransform().A }

func (c *Controller) ViewState() ViewState {
	m := c.s.ViewportTransform()
	return ViewState{Zoom: m.A, Pan: scene.Pt{X: m.E, Y: m.F}}
}

// Preview returns the live preview status, or nil.
func (c *Controller) Preview() *PreviewStatus {
	if c.preview == nil {
		return nil
	}
	p := *c.preview
	return &p
}

func (c *Controller) setVpt(m scene.Affine2D) {
	c.s.SetViewportTransform(m)
	c.bus.Publish(events.ViewChanged{Zoom: m.A, Pan: scene.Pt{X: m.E, Y: m.F}})
}

// ZoomToPoint sets the zoom, clamped, keeping the screen point fixed.
func (c *Controller) ZoomToPoint(screen scene.Pt, zoom float64) {
	zoom = Clamp(zoom)
	m := c.s.ViewportTransform()
	p := m.Invert().Apply(screen)
	m.A, m.D = zoom, zoom
	after := m.Apply(p)
	m.E += screen.X - after.X
	m.F += screen.Y - after.Y
	c.setVpt(m)
}

// AbsolutePan places the viewport so that the scene origin is at -p on screen.
func (c *Controller) AbsolutePan(p scene.Pt) {
	m := c.s.ViewportTransform()
	m.E, m.F = -p.X, -p.Y
	c.setVpt(m)
}

// MoveViewportBy shifts the view by (dx, dy) screen units.
func (c *Controller) MoveViewportBy(dx, dy float64) {
	m := c.s.ViewportTransform()
	m.E += dx
	m.F += dy
	c.setVpt(m)
}

// VpCenter returns the scene point at the center of the viewport.
func (c *Controller) VpCenter() scene.Pt {
	return c.ScreenToScene(c.s.Size().Center())
}

func (c *Controller) ScreenToScene(p scene.Pt) scene.Pt {
	return c.s.ViewportTransform().Invert().Apply(p)
}

func (c *Controller) SceneToScreen(p scene.Pt) scene.Pt {
	return c.s.ViewportTransform().Apply(p)
}

// centerOn sets zoom and places the scene point p at the screen center.
func (c *Controller) centerOn(p scene.Pt, zoom float64) {
	cc := c.s.Size().Center()
	m := c.s.ViewportTransform()
	m.A, m.D = zoom, zoom
	m.E = cc.X - p.X*zoom
	m.F = cc.Y - p.Y*zoom
	c.setVpt(m)
}

func (c *Controller) capture(el scene.Selection) {
	z := c.Zoom()
	vc := c.VpCenter()
	cc := c.s.Size().Center()
	c.preview = &PreviewStatus{
		Zoom:    z,
		Pan:     scene.Pt{X: vc.X*z - cc.X, Y: vc.Y*z - cc.Y},
		Center:  vc,
		Element: el,
	}
}

// FitOptions selects the element to fit. A nil Element means the active
// selection. SaveState stores the current view for RestorePreViewStatus;
// without it only the element of an existing preview is updated.
type FitOptions struct {
	Element   scene.Selection
	SaveState bool
}

// FitTarget computes the zoom and scene center that fit el in the viewport.
func (c *Controller) FitTarget(el scene.Selection) (scene.Pt, float64) {
	size := c.s.Size()
	b := el.Bounds()
	z := math.Min(size.W/(b.W+FitMargin), size.H/(b.H+FitMargin))
	return b.Center(), Clamp(z)
}

// FitViewElement zooms and pans so the element fills the viewport. It
// returns false when there is nothing to fit.
func (c *Controller) FitViewElement(ctx context.Context, opts FitOptions) (bool, error) {
	el := opts.Element
	if el == nil {
		el = c.s.ActiveObject()
	}
	if el == nil || len(el.Members()) == 0 {
		return false, nil
	}
	if opts.SaveState {
		c.capture(el)
	} else if c.preview != nil {
		c.preview.Element = el
	}
	center, zoom := c.FitTarget(el)
	c.log.Debug("fit element", "zoom", zoom, "saved", opts.SaveState)
	return true, c.transition(ctx, center, zoom)
}

// RestorePreViewStatus returns to the view saved by the last fit and clears
// it. Without a saved view it does nothing.
func (c *Controller) RestorePreViewStatus(ctx context.Context) error {
	p := c.preview
	if p == nil {
		return nil
	}
	c.preview = nil
	if c.anim > 0 {
		return c.AnimateToPoint(ctx, AnimateOptions{Point: p.Center, TargetZoom: p.Zoom, Duration: c.anim})
	}
	c.ZoomToPoint(scene.Pt{X: -p.Pan.X, Y: -p.Pan.Y}, p.Zoom)
	c.AbsolutePan(p.Pan)
	return nil
}

// ToggleFit applies the double-click rule: fit and save when nothing is
// saved, fit without saving when a different element was fit, restore when
// the same element is fit again.
func (c *Controller) ToggleFit(ctx context.Context, el scene.Selection) error {
	if el == nil {
		el = c.s.ActiveObject()
	}
	if el == nil {
		return nil
	}
	switch {
	case c.preview == nil:
		_, err := c.FitViewElement(ctx, FitOptions{Element: el, SaveState: true})
		return err
	case c.preview.Element != el:
		_, err := c.FitViewElement(ctx, FitOptions{Element: el})
		return err
	default:
		return c.RestorePreViewStatus(ctx)
	}
}

// FitNext fits the object step places away from the current one (the
// previewed element, else the active object), wrapping at both ends.
func (c *Controller) FitNext(ctx context.Context, step int) error {
	var cur scene.Selection
	if c.preview != nil {
		cur = c.preview.Element
	} else {
		cur = c.s.ActiveObject()
	}
	if cur == nil {
		return nil
	}
	objs := c.s.Objects()
	if len(objs) == 0 {
		return nil
	}
	idx := -1
	if o, ok := cur.(*scene.Object); ok {
		for i, x := range objs {
			if x == o {
				idx = i
				break
			}
		}
	}
	idx = ((idx+step)%len(objs) + len(objs)) % len(objs)
	return c.ToggleFit(ctx, objs[idx])
}

func (c *Controller) transition(ctx context.Context, center scene.Pt, zoom float64) error {
	if c.anim > 0 {
		return c.AnimateToPoint(ctx, AnimateOptions{Point: center, TargetZoom: zoom, Duration: c.anim})
	}
	c.centerOn(center, zoom)
	return nil
}

// ZoomCenterTo zooms about the canvas center. With relative the value
// multiplies the current zoom.
func (c *Controller) ZoomCenterTo(value float64, relative bool) {
	if relative {
		value *= c.Zoom()
	}
	c.ZoomToPoint(c.s.Size().Center(), value)
}

// ZoomBy multiplies the zoom about the canvas center.
func (c *Controller) ZoomBy(factor float64) { c.ZoomCenterTo(factor, true) }

// WheelEvent is a scroll gesture at a screen position.
type WheelEvent struct {
	DeltaX, DeltaY float64
	Pointer        scene.Pt
	Ctrl, Meta     bool
	Shift, Alt     bool
}

// HandleWheel zooms about the pointer with ctrl or meta held and pans
// otherwise. Shift speeds zooming up and swaps the pan axes; alt slows
// zooming down.
func (c *Controller) HandleWheel(e WheelEvent) {
	if e.Ctrl || e.Meta {
		k := 0.002
		if e.DeltaY == math.Trunc(e.DeltaY) {
			k = 0.003
		}
		ratio := e.DeltaY * k
		if e.Shift {
			ratio *= 5
		} else if e.Alt {
			ratio *= 0.1
		}
		c.ZoomToPoint(e.Pointer, c.Zoom()*(1-ratio))
		return
	}
	dx, dy := -e.DeltaX, -e.DeltaY
	if e.Shift {
		dx, dy = dy, dx
	}
	c.MoveViewportBy(dx, dy)
}
