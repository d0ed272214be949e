/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package clipboard

import (
	"context"
	"errors"
	"testing"

	"refercanvas/internal/scene"
	"refercanvas/internal/selection"
)

func setup() (*scene.Canvas, *selection.Manager, *Memory, *Controller) {
	c := scene.NewCanvas(800, 600)
	sel := selection.New(c, nil)
	mem := &Memory{}
	return c, sel, mem, New(c, sel, mem)
}

func TestCopyWritesSentinel(t *testing.T) {
	c, sel, mem, ctl := setup()
	o := c.Style().NewRect(10, 10)
	c.Add(o)
	sel.SelectElement(o)
	n, err := ctl.Copy(context.Background(), CopyOptions{FromSystemEvent: true})
	if err != nil || n != 1 {
		t.Fatalf("copy: n=%d err=%v", n, err)
	}
	if text, _ := mem.ReadText(); !IsInternal(text) || !ctl.SystemHoldsInternal() {
		t.Fatalf("sentinel not written: %q", text)
	}
	o.Left = 500
	p := ctl.Paste()
	if len(p) != 1 || p[0].Left != 20 {
		t.Fatalf("paste should use the copied state: %+v", p)
	}
}

func TestCopyWithoutSystemEventLeavesOS(t *testing.T) {
	c, _, mem, ctl := setup()
	_ = mem.WriteText("external")
	o := c.Style().NewRect(1, 1)
	c.Add(o)
	if _, err := ctl.Copy(context.Background(), CopyOptions{Elements: []*scene.Object{o}}); err != nil {
		t.Fatal(err)
	}
	if text, _ := mem.ReadText(); text != "external" {
		t.Fatalf("OS clipboard changed: %q", text)
	}
}

func TestPasteIsNotCumulative(t *testing.T) {
	c, _, _, ctl := setup()
	o := c.Style().NewRect(1, 1)
	o.Left, o.Top = 100, 100
	c.Add(o)
	c.SetViewportTransform(scene.Affine2D{A: 2, D: 2})
	_, _ = ctl.Copy(context.Background(), CopyOptions{Elements: []*scene.Object{o}})
	a := ctl.Paste()
	b := ctl.Paste()
	if a[0].Left != 110 || b[0].Left != 110 || a[0] == b[0] {
		t.Fatalf("expected two independent pastes at 110: %v %v", a[0].Left, b[0].Left)
	}
	if c.Len() != 3 {
		t.Fatalf("expected 3 objects, got %d", c.Len())
	}
}

func TestPasteRefillsBufferWithClones(t *testing.T) {
	c, _, _, ctl := setup()
	o := c.Style().NewRect(4, 4)
	o.Left, o.Top = 10, 10
	c.Add(o)
	_, _ = ctl.Copy(context.Background(), CopyOptions{Elements: []*scene.Object{o}})
	ctl.mu.Lock()
	before := ctl.entries[0]
	ctl.mu.Unlock()

	pasted := ctl.Paste()
	ctl.mu.Lock()
	after := ctl.entries[0]
	ctl.mu.Unlock()
	if after == before || after == pasted[0] || after == o {
		t.Fatalf("buffer must hold a fresh clone after paste")
	}
	if after.Left != 10 || after.Top != 10 {
		t.Fatalf("buffer drifted to (%v,%v)", after.Left, after.Top)
	}
	pasted[0].Left = 500
	if next := ctl.Paste(); next[0].Left != 30 {
		t.Fatalf("second paste at %v, want 30", next[0].Left)
	}
}

func TestPasteGroupSelectsAll(t *testing.T) {
	c, sel, _, ctl := setup()
	a, b := c.Style().NewRect(1, 1), c.Style().NewRect(2, 2)
	c.Add(a, b)
	sel.SelectElement()
	_, _ = ctl.Copy(context.Background(), CopyOptions{})
	out := ctl.Paste()
	g, ok := c.ActiveObject().(*scene.ActiveSelection)
	if len(out) != 2 || !ok || g.Len() != 2 {
		t.Fatalf("pasted group should be selected")
	}
}

func TestCutRemovesAndBuffers(t *testing.T) {
	c, sel, _, ctl := setup()
	o := c.Style().NewRect(1, 1)
	c.Add(o)
	sel.SelectElement(o)
	n, err := ctl.Cut(context.Background(), CopyOptions{})
	if err != nil || n != 1 || c.Len() != 0 || ctl.Len() != 1 {
		t.Fatalf("cut: n=%d err=%v len=%d buf=%d", n, err, c.Len(), ctl.Len())
	}
}

func TestEmptyPaste(t *testing.T) {
	c, _, _, ctl := setup()
	if out := ctl.Paste(); len(out) != 0 || c.Len() != 0 {
		t.Fatalf("empty clipboard should paste nothing")
	}
	if n, err := ctl.Copy(context.Background(), CopyOptions{FromSystemEvent: true}); n != 0 || err != nil {
		t.Fatalf("copy without targets: %d %v", n, err)
	}
}

type failing struct{ Memory }

func (*failing) WriteText(string) error { return errors.New("no clipboard") }

func TestCopySystemErrorStillBuffers(t *testing.T) {
	c := scene.NewCanvas(10, 10)
	o := c.Style().NewRect(1, 1)
	c.Add(o)
	ctl := New(c, selection.New(c, nil), &failing{})
	n, err := ctl.Copy(context.Background(), CopyOptions{Elements: []*scene.Object{o}, FromSystemEvent: true})
	if err == nil || n != 1 || ctl.Len() != 1 {
		t.Fatalf("expected buffered copy with error: n=%d err=%v", n, err)
	}
}
