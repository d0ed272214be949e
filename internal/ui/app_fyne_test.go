//go:build fyne && cgo

/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// These tests validate the Fyne-based UI components. They are gated behind the
// "fyne" build tag so CI (which is headless) does not need Fyne or a display.
// To run locally:
//
//	go test -tags fyne ./internal/ui
//
// Ensure you have the Fyne dependencies installed and a working OS driver.
package ui

import (
	"testing"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/test"

	"refercanvas/internal/config"
	"refercanvas/internal/controller"
	applog "refercanvas/internal/log"
	"refercanvas/internal/scene"
)

func almostEqual(a, b, eps float32) bool {
	if a > b {
		return a-b <= eps
	}
	return b-a <= eps
}

func newBoard(t *testing.T) (*BoardCanvas, *controller.Controller) {
	t.Helper()
	test.NewTempApp(t)
	cfg := config.Defaults()
	cfg.Canvas.AnimationMs = 0
	ctl, err := controller.New(controller.Deps{Config: cfg, Logger: applog.Discard()})
	if err != nil {
		t.Fatalf("controller: %v", err)
	}
	t.Cleanup(ctl.Close)
	return NewBoardCanvas(ctl, applog.Discard()), ctl
}

func TestBoardCanvas_Defaults(t *testing.T) {
	b, _ := newBoard(t)
	sz := b.PreferredSize()
	if sz.Width != 800 || sz.Height != 600 {
		t.Fatalf("unexpected PreferredSize: %v", sz)
	}
}

func TestBoardCanvas_LayoutFollowsViewport(t *testing.T) {
	b, ctl := newBoard(t)
	o := ctl.Canvas().Style().NewRect(100, 50)
	o.Left, o.Top = 10, 20
	ctl.Canvas().Add(o)
	ctl.ZoomCenterTo(2, false)
	ctl.Select(o)

	r, ok := b.CreateRenderer().(*boardRenderer)
	if !ok {
		t.Fatalf("expected boardRenderer, got %T", b.CreateRenderer())
	}
	r.Layout(fyne.NewSize(800, 600))
	if len(r.visuals) != 1 {
		t.Fatalf("visuals: %d", len(r.visuals))
	}
	want := ctl.View.SceneToScreen(scene.Pt{X: o.Bounds().X, Y: o.Bounds().Y})
	v := r.visuals[0]
	if !almostEqual(v.Position().X, float32(want.X), 0.5) || !almostEqual(v.Position().Y, float32(want.Y), 0.5) {
		t.Fatalf("rect at %v, want %v", v.Position(), want)
	}
	if !almostEqual(v.Size().Width, 200, 0.5) || !almostEqual(v.Size().Height, 100, 0.5) {
		t.Fatalf("rect size %v", v.Size())
	}
	if !r.sel.Visible() {
		t.Fatalf("selection overlay hidden")
	}
}

func TestBoardCanvas_DragMovesSelectionOnce(t *testing.T) {
	b, ctl := newBoard(t)
	o := ctl.Canvas().Style().NewRect(100, 50)
	ctl.Canvas().Add(o)
	ctl.Select(o)
	b.Dragged(&fyne.DragEvent{PointEvent: fyne.PointEvent{Position: fyne.NewPos(60, 35)}, Dragged: fyne.NewDelta(10, 5)})
	b.Dragged(&fyne.DragEvent{PointEvent: fyne.PointEvent{Position: fyne.NewPos(70, 40)}, Dragged: fyne.NewDelta(10, 5)})
	if o.Left != 0 {
		t.Fatalf("object moved before drag end")
	}
	b.DragEnd()
	if o.Left != 20 || o.Top != 10 {
		t.Fatalf("moved to %v,%v", o.Left, o.Top)
	}
}
