/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package history

import (
	"errors"
	"testing"

	"refercanvas/internal/events"
	"refercanvas/internal/scene"
)

func setup(t *testing.T, cfg Config) (*scene.Canvas, *events.Bus, *Manager) {
	t.Helper()
	bus := events.NewBus()
	c := scene.NewCanvas(800, 600, scene.WithObserver(events.SceneObserver(bus)))
	m := New(c, bus, cfg)
	if err := m.Init(); err != nil {
		t.Fatalf("init: %v", err)
	}
	return c, bus, m
}

func TestUndoRedoRoundTrip(t *testing.T) {
	c, bus, m := setup(t, Config{})
	rec := events.Record(bus)
	o := c.Style().NewRect(10, 10)
	c.Add(o)
	c.Modify(o, scene.ObjectModified, func(o *scene.Object) { o.Left = 50 })
	if u, _ := m.Stats(); u != 2 {
		t.Fatalf("expected 2 undo entries, got %d", u)
	}
	before, _ := c.ToDatalessJSON(ExtraProps...)
	if err := m.Undo(); err != nil {
		t.Fatalf("undo: %v", err)
	}
	if m.State() != StateIdle {
		t.Fatalf("state not reset")
	}
	mid, _ := c.ToDatalessJSON(ExtraProps...)
	if mid == before {
		t.Fatalf("undo did not change the scene")
	}
	if err := m.Redo(); err != nil {
		t.Fatalf("redo: %v", err)
	}
	after, _ := c.ToDatalessJSON(ExtraProps...)
	if after != before {
		t.Fatalf("redo not byte-identical:\n%s\n%s", before, after)
	}
	if rec.Count(events.KindHistoryUndo) != 1 || rec.Count(events.KindHistoryRedo) != 1 || rec.Count(events.KindHistoryAppend) != 2 {
		t.Fatalf("unexpected events %v", rec.Kinds())
	}
}

func TestUndoToEmptyCanvas(t *testing.T) {
	c, _, m := setup(t, Config{})
	c.Add(c.Style().NewRect(1, 1))
	if err := m.Undo(); err != nil {
		t.Fatal(err)
	}
	if c.Len() != 0 {
		t.Fatalf("expected empty canvas after undo, got %d", c.Len())
	}
	if !m.CanRedo() || m.CanUndo() {
		t.Fatalf("stack flags wrong")
	}
}

func TestNewMutationClearsRedo(t *testing.T) {
	c, _, m := setup(t, Config{})
	c.Add(c.Style().NewRect(1, 1))
	_ = m.Undo()
	c.Add(c.Style().NewRect(2, 2))
	if m.CanRedo() {
		t.Fatalf("redo should be cleared by a new change")
	}
}

func TestFIFOEviction(t *testing.T) {
	c, _, m := setup(t, Config{MaxSize: 3})
	var first string
	for i := 0; i < 5; i++ {
		o := c.Style().NewRect(float64(i+1), 1)
		c.Add(o)
		if i == 1 {
			first, _ = c.ToDatalessJSON(ExtraProps...)
		}
	}
	if u, _ := m.Stats(); u != 3 {
		t.Fatalf("expected cap 3, got %d", u)
	}
	for m.CanUndo() {
		_ = m.Undo()
	}
	got, _ := c.ToDatalessJSON(ExtraProps...)
	if got != first {
		t.Fatalf("oldest entries should be evicted first:\n%s\n%s", first, got)
	}
}

func TestEventStormDedup(t *testing.T) {
	c, _, m := setup(t, Config{})
	o := c.Style().NewRect(1, 1)
	c.Add(o)
	// several events for the same change
	c.Modify(o, scene.ObjectModified, func(o *scene.Object) { o.Left = 9 })
	c.Modify(o, scene.ObjectModified, func(*scene.Object) {})
	c.Modify(o, scene.ObjectRotated, func(*scene.Object) {})
	if u, _ := m.Stats(); u != 2 {
		t.Fatalf("expected 2 entries, got %d", u)
	}
	// one Add of three objects fires three events
	c.Add(c.Style().NewRect(1, 1), c.Style().NewRect(2, 2), c.Style().NewRect(3, 3))
	if u, _ := m.Stats(); u != 3 {
		t.Fatalf("multi-add left %d entries, want 3", u)
	}
}

func TestScalingUntrackedByDefault(t *testing.T) {
	c, _, m := setup(t, Config{})
	o := c.Style().NewRect(1, 1)
	c.Add(o)
	c.Modify(o, scene.ObjectScaled, func(o *scene.Object) { o.ScaleX = 2 })
	if u, _ := m.Stats(); u != 1 {
		t.Fatalf("scale should not be tracked, got %d", u)
	}
	c2, _, m2 := setup(t, Config{TrackScaling: true})
	o2 := c2.Style().NewRect(1, 1)
	c2.Add(o2)
	c2.Modify(o2, scene.ObjectScaled, func(o *scene.Object) { o.ScaleX = 2 })
	if u, _ := m2.Stats(); u != 2 {
		t.Fatalf("scale should be tracked when enabled, got %d", u)
	}
}

func TestPauseResume(t *testing.T) {
	c, _, m := setup(t, Config{})
	m.Pause()
	c.Add(c.Style().NewRect(1, 1))
	if m.CanUndo() {
		t.Fatalf("paused manager recorded")
	}
	if err := m.Resume(); err != nil {
		t.Fatal(err)
	}
	if !m.CanUndo() {
		t.Fatalf("resume should record the pending change")
	}
}

func TestSetMaxSizeTrims(t *testing.T) {
	c, _, m := setup(t, Config{})
	for i := 0; i < 6; i++ {
		c.Add(c.Style().NewRect(1, 1))
	}
	_ = m.Undo()
	_ = m.Undo()
	m.SetMaxSize(2)
	u, r := m.Stats()
	if u != 2 || r != 2 {
		t.Fatalf("expected 2/2, got %d/%d", u, r)
	}
	m.Clear()
	if m.CanUndo() || m.CanRedo() {
		t.Fatalf("clear failed")
	}
}

type badLoader struct{ *scene.Canvas }

func (badLoader) LoadFromJSON(string) error { return errors.New("boom") }

func TestFailedLoadResetsGuardAndStacks(t *testing.T) {
	c := scene.NewCanvas(10, 10)
	m := New(badLoader{c}, nil, Config{})
	_ = m.Init()
	c.Add(c.Style().NewRect(1, 1))
	if err := m.Save(); err != nil {
		t.Fatal(err)
	}
	if err := m.Undo(); err == nil {
		t.Fatalf("expected load error")
	}
	if m.State() != StateIdle {
		t.Fatalf("guard must be reset after a failed load")
	}
	if u, r := m.Stats(); u != 1 || r != 0 {
		t.Fatalf("stacks not rolled back: %d/%d", u, r)
	}
}

func TestUndoEmptyIsNoop(t *testing.T) {
	_, _, m := setup(t, Config{})
	if err := m.Undo(); err != nil {
		t.Fatal(err)
	}
	if err := m.Redo(); err != nil {
		t.Fatal(err)
	}
}

// reentrantLoader saves from inside the load, as a listener would.
type reentrantLoader struct {
	*scene.Canvas
	m   *Manager
	got error
}

func (r *reentrantLoader) LoadFromJSON(s string) error {
	r.got = r.m.Save()
	return r.Canvas.LoadFromJSON(s)
}

func TestSaveDuringReplayIsRejected(t *testing.T) {
	c := scene.NewCanvas(10, 10)
	rl := &reentrantLoader{Canvas: c}
	m := New(rl, nil, Config{})
	rl.m = m
	_ = m.Init()
	c.Add(c.Style().NewRect(1, 1))
	_ = m.Save()
	if err := m.Undo(); err != nil {
		t.Fatalf("undo: %v", err)
	}
	if !errors.Is(rl.got, ErrReplaying) {
		t.Fatalf("save during replay = %v, want ErrReplaying", rl.got)
	}
	if u, r := m.Stats(); u != 0 || r != 1 {
		t.Fatalf("replay-time save leaked into stacks: %d/%d", u, r)
	}
}

// noisyLoader publishes an object event from inside the load, the way a
// scene that reports every restored object would.
type noisyLoader struct {
	*scene.Canvas
	m     *Manager
	bus   *events.Bus
	state State
}

func (n *noisyLoader) LoadFromJSON(s string) error {
	if err := n.Canvas.LoadFromJSON(s); err != nil {
		return err
	}
	n.state = n.m.State()
	n.bus.Publish(events.ObjectAdded{Target: n.Canvas.Style().NewRect(5, 5)})
	return nil
}

func TestMutationEventsIgnoredDuringReplay(t *testing.T) {
	bus := events.NewBus()
	c := scene.NewCanvas(10, 10)
	nl := &noisyLoader{Canvas: c, bus: bus}
	m := New(nl, bus, Config{})
	nl.m = m
	if err := m.Init(); err != nil {
		t.Fatalf("init: %v", err)
	}
	rec := events.Record(bus)

	c.Add(c.Style().NewRect(1, 1))
	bus.Publish(events.ObjectAdded{})
	if u, r := m.Stats(); u != 1 || r != 0 {
		t.Fatalf("before undo: %d/%d", u, r)
	}
	if err := m.Undo(); err != nil {
		t.Fatalf("undo: %v", err)
	}
	if nl.state != StateReplaying {
		t.Fatalf("event arrived in state %v, want replaying", nl.state)
	}
	if u, r := m.Stats(); u != 0 || r != 1 {
		t.Fatalf("event during replay changed the stacks: %d/%d", u, r)
	}
	empty, _ := c.ToDatalessJSON(ExtraProps...)
	m.mu.Lock()
	next := m.next
	m.mu.Unlock()
	if next != empty {
		t.Fatalf("next state moved during replay:\n%s\n%s", next, empty)
	}
	if rec.Count(events.KindHistoryAppend) != 1 {
		t.Fatalf("appends = %d, want only the pre-undo one", rec.Count(events.KindHistoryAppend))
	}
	if err := m.Redo(); err != nil || c.Len() != 1 {
		t.Fatalf("redo after ignored event: len=%d err=%v", c.Len(), err)
	}
}
