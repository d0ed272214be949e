/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package selection

import (
	"testing"

	"refercanvas/internal/scene"
)

func fixture(n int) (*scene.Canvas, []*scene.Object) {
	c := scene.NewCanvas(100, 100)
	objs := make([]*scene.Object, n)
	for i := range objs {
		objs[i] = c.Style().NewRect(float64(i+1), 1)
	}
	c.Add(objs...)
	return c, objs
}

func order(c *scene.Canvas, objs []*scene.Object) []int {
	var out []int
	for _, o := range c.Objects() {
		for i, x := range objs {
			if x == o {
				out = append(out, i)
			}
		}
	}
	return out
}

func eq(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestSelectElement(t *testing.T) {
	c, objs := fixture(3)
	m := New(c, nil)
	if sel := m.SelectElement(objs[1]); sel != scene.Selection(objs[1]) {
		t.Fatalf("single element should be selected directly")
	}
	sel := m.SelectElement()
	g, ok := sel.(*scene.ActiveSelection)
	if !ok || g.Len() != 3 {
		t.Fatalf("default should select all in a group: %#v", sel)
	}
	if c.ActiveObject() != sel {
		t.Fatalf("canvas selection not updated")
	}
}

func TestSelectElementOnEmptyCanvas(t *testing.T) {
	m := New(scene.NewCanvas(1, 1), nil)
	if m.SelectElement() != nil {
		t.Fatalf("expected no selection")
	}
}

func TestDeleteGroupDeletesMembers(t *testing.T) {
	c, objs := fixture(3)
	m := New(c, nil)
	m.SelectElement(objs[0], objs[2])
	if n := m.DeleteElement(); n != 2 {
		t.Fatalf("expected 2 deletions, got %d", n)
	}
	if c.Len() != 1 || c.Objects()[0] != objs[1] || c.ActiveObject() != nil {
		t.Fatalf("unexpected canvas state")
	}
}

func TestBringGroupToFrontKeepsRelativeOrder(t *testing.T) {
	c, objs := fixture(5)
	m := New(c, nil)
	g := m.SelectElement(objs[3], objs[0])
	m.BringToFront(g)
	if got := order(c, objs); !eq(got, []int{1, 2, 4, 0, 3}) {
		t.Fatalf("front: %v", got)
	}
	m.BringToBack(g)
	if got := order(c, objs); !eq(got, []int{0, 3, 1, 2, 4}) {
		t.Fatalf("back: %v", got)
	}
}

func TestBringSingleToBack(t *testing.T) {
	c, objs := fixture(3)
	m := New(c, nil)
	m.BringToBack(objs[2])
	if got := order(c, objs); !eq(got, []int{2, 0, 1}) {
		t.Fatalf("back: %v", got)
	}
	m.SelectElement(objs[2])
	m.BringToFront(nil)
	if got := order(c, objs); !eq(got, []int{0, 1, 2}) {
		t.Fatalf("front of active: %v", got)
	}
}

func TestRotateStepSnaps(t *testing.T) {
	c, objs := fixture(1)
	m := New(c, nil)
	objs[0].Angle = 37
	m.RotateStep(objs[0], 90)
	if objs[0].Angle != 90 {
		t.Fatalf("expected 90, got %v", objs[0].Angle)
	}
	m.RotateStep(objs[0], -90)
	m.RotateStep(objs[0], -90)
	if objs[0].Angle != -90 {
		t.Fatalf("expected -90, got %v", objs[0].Angle)
	}
}

func TestFlipToggles(t *testing.T) {
	c, objs := fixture(2)
	m := New(c, nil)
	g := m.SelectElement()
	m.Flip(g, Horizontal)
	m.Flip(nil, Vertical)
	for _, o := range objs {
		if !o.FlipX || !o.FlipY {
			t.Fatalf("flip not applied to all members")
		}
	}
	m.Flip(g, Horizontal)
	if objs[0].FlipX {
		t.Fatalf("second flip should toggle back")
	}
}
