/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package controller

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"refercanvas/internal/autosave"
	"refercanvas/internal/clipboard"
	"refercanvas/internal/config"
	"refercanvas/internal/events"
	"refercanvas/internal/ingest"
	applog "refercanvas/internal/log"
	"refercanvas/internal/scene"
	"refercanvas/internal/storage"
	"refercanvas/internal/viewport"
)

type idleTimer struct{}

func (idleTimer) Stop() bool { return true }

// neverFire keeps autosave from running on its own.
func neverFire(time.Duration, func()) autosave.Timer { return idleTimer{} }

func testConfig() config.AppConfig {
	cfg := config.Defaults()
	cfg.Canvas.AnimationMs = 0
	return cfg
}

func newController(t *testing.T, withStore bool) (*Controller, *storage.Store) {
	t.Helper()
	return newControllerWithLoader(t, withStore, nil)
}

func newControllerWithLoader(t *testing.T, withStore bool, l ingest.Loader) (*Controller, *storage.Store) {
	t.Helper()
	d := Deps{
		Config:   testConfig(),
		System:   &clipboard.Memory{},
		Loader:   l,
		Logger:   applog.Discard(),
		Autosave: []autosave.Option{autosave.WithScheduler(neverFire)},
	}
	var st *storage.Store
	if withStore {
		var err error
		st, err = storage.Open(context.Background(), filepath.Join(t.TempDir(), storage.DatabaseFileName))
		if err != nil {
			t.Fatalf("open store: %v", err)
		}
		t.Cleanup(func() { _ = st.Close() })
		d.Store = st
	}
	c, err := New(d)
	if err != nil {
		t.Fatalf("new controller: %v", err)
	}
	t.Cleanup(c.Close)
	return c, st
}

func addRect(c *Controller, x, y float64) *scene.Object {
	o := c.Canvas().Style().NewRect(100, 50)
	o.Left, o.Top = x, y
	c.Canvas().Add(o)
	return o
}

func key(k string) KeyEvent { return KeyEvent{Key: k} }

func TestComboNormalisesModifiers(t *testing.T) {
	cases := map[string]KeyEvent{
		"ctrl+shift+z": {Key: "Z", Meta: true, Shift: true},
		"shift+g":      {Key: "G", Shift: true},
		"arrowleft":    {Key: "ArrowLeft"},
		"ctrl+a":       {Key: "a", Ctrl: true},
	}
	for want, e := range cases {
		if got := e.Combo(); got != want {
			t.Fatalf("Combo(%+v)=%q, want %q", e, got, want)
		}
	}
	if Lookup(KeyEvent{Key: "a"}) != ActionNone {
		t.Fatalf("bare a must not be bound")
	}
}

func TestSelectAllDeleteUndoRedo(t *testing.T) {
	c, _ := newController(t, false)
	ctx := context.Background()
	addRect(c, 0, 0)
	addRect(c, 200, 0)

	if a, err := c.HandleKey(ctx, KeyEvent{Key: "a", Ctrl: true}); err != nil || a != ActionSelectAll {
		t.Fatalf("select all: %v %v", a, err)
	}
	if n := len(c.Selection.Members()); n != 2 {
		t.Fatalf("selected %d, want 2", n)
	}
	if _, err := c.HandleKey(ctx, key("Delete")); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if c.Canvas().Len() != 0 {
		t.Fatalf("objects left after delete: %d", c.Canvas().Len())
	}
	if _, err := c.HandleKey(ctx, KeyEvent{Key: "z", Ctrl: true}); err != nil {
		t.Fatalf("undo: %v", err)
	}
	if c.Canvas().Len() != 2 {
		t.Fatalf("undo restored %d objects, want 2", c.Canvas().Len())
	}
	if _, err := c.HandleKey(ctx, KeyEvent{Key: "z", Ctrl: true, Shift: true}); err != nil {
		t.Fatalf("redo: %v", err)
	}
	if c.Canvas().Len() != 0 {
		t.Fatalf("redo left %d objects", c.Canvas().Len())
	}
}

func TestShortcutsIgnoredWhileEditingText(t *testing.T) {
	c, _ := newController(t, false)
	ctx := context.Background()
	rec := events.Record(c.Bus())
	txt := c.AddText("")
	if txt.Text != DefaultText {
		t.Fatalf("text=%q", txt.Text)
	}
	c.BeginTextEdit(txt)
	c.Select(txt)
	if a, _ := c.HandleKey(ctx, key("Delete")); a != ActionNone {
		t.Fatalf("shortcut ran while editing: %v", a)
	}
	if c.Canvas().Len() != 1 {
		t.Fatalf("text was deleted while editing")
	}
	c.EndTextEdit("edited")
	if txt.Text != "edited" {
		t.Fatalf("text=%q after edit", txt.Text)
	}
	if rec.Count(events.KindTextEditEntered) != 1 || rec.Count(events.KindTextEditExited) != 1 {
		t.Fatalf("text edit events: %v", rec.Kinds())
	}
	if a, _ := c.HandleKey(ctx, key("Delete")); a != ActionDelete {
		t.Fatalf("delete not handled after edit: %v", a)
	}
}

func TestEndTextEditWithEmptyTextRemoves(t *testing.T) {
	c, _ := newController(t, false)
	txt := c.AddText("x")
	c.BeginTextEdit(txt)
	c.EndTextEdit("")
	if c.Canvas().Len() != 0 {
		t.Fatalf("empty text kept")
	}
}

func TestSpaceTogglesDragMode(t *testing.T) {
	c, _ := newController(t, false)
	ctx := context.Background()
	_, _ = c.HandleKey(ctx, key(" "))
	if !c.DragMode() {
		t.Fatalf("space down did not enable drag mode")
	}
	_, _ = c.HandleKey(ctx, KeyEvent{Key: " ", Release: true})
	if c.DragMode() {
		t.Fatalf("space up did not disable drag mode")
	}
}

func TestZoomShortcuts(t *testing.T) {
	c, _ := newController(t, false)
	ctx := context.Background()
	_, _ = c.HandleKey(ctx, key("="))
	if z := c.View.Zoom(); z < 1.49 || z > 1.51 {
		t.Fatalf("zoom in: %v", z)
	}
	_, _ = c.HandleKey(ctx, key("-"))
	_, _ = c.HandleKey(ctx, key("-"))
	if z := c.View.Zoom(); z < 0.66 || z > 0.67 {
		t.Fatalf("zoom out: %v", z)
	}
	_, _ = c.HandleKey(ctx, key("0"))
	if c.View.Zoom() != 1 {
		t.Fatalf("actual size: %v", c.View.Zoom())
	}
}

func TestSelectionIsBroughtToFront(t *testing.T) {
	c, _ := newController(t, false)
	a := addRect(c, 0, 0)
	addRect(c, 10, 10)
	c.Select(a)
	objs := c.Canvas().Objects()
	if objs[len(objs)-1] != a {
		t.Fatalf("selected object not on top")
	}
}

func TestRotateAndFlipShortcuts(t *testing.T) {
	c, _ := newController(t, false)
	ctx := context.Background()
	o := addRect(c, 0, 0)
	c.Select(o)
	_, _ = c.HandleKey(ctx, key("r"))
	_, _ = c.HandleKey(ctx, key("r"))
	_, _ = c.HandleKey(ctx, KeyEvent{Key: "R", Shift: true})
	if o.Angle != 90 {
		t.Fatalf("angle=%v, want 90", o.Angle)
	}
	_, _ = c.HandleKey(ctx, key("h"))
	if !o.FlipX || o.FlipY {
		t.Fatalf("flip h: %v %v", o.FlipX, o.FlipY)
	}
}

func TestHandlePasteWithMarkerUsesInternalClipboard(t *testing.T) {
	c, _ := newController(t, false)
	ctx := context.Background()
	o := addRect(c, 10, 10)
	c.Select(o)
	if n, err := c.Copy(ctx, true); err != nil || n != 1 {
		t.Fatalf("copy: %d %v", n, err)
	}
	c.ZoomCenterTo(2, false)
	got, err := c.HandlePaste(ctx, []ingest.Item{{Kind: ingest.PlainText, Text: "ignored"}}, clipboard.SentinelMarker)
	if err != nil || len(got) != 1 {
		t.Fatalf("paste: %v %v", got, err)
	}
	if got[0].Left != 20 || got[0].Top != 20 {
		t.Fatalf("pasted at %v,%v, want 20,20", got[0].Left, got[0].Top)
	}
	if c.Canvas().Len() != 2 {
		t.Fatalf("canvas has %d objects", c.Canvas().Len())
	}
}

func TestHandlePasteFallsBackToInternalClipboard(t *testing.T) {
	c, _ := newController(t, false)
	ctx := context.Background()
	o := addRect(c, 0, 0)
	c.Select(o)
	_, _ = c.Copy(ctx, false)
	got, err := c.HandlePaste(ctx, nil, "something else")
	if err != nil || len(got) != 1 {
		t.Fatalf("fallback paste: %v %v", got, err)
	}
}

func TestHandlePasteIngestsText(t *testing.T) {
	c, _ := newController(t, false)
	it, _ := ingest.NewItem("text/plain", "", []byte("note"))
	got, err := c.HandlePaste(context.Background(), []ingest.Item{it}, "")
	if err != nil || len(got) != 1 || got[0].Text != "note" {
		t.Fatalf("ingest paste: %v %v", got, err)
	}
	if c.Canvas().Len() != 1 {
		t.Fatalf("pasted text not added")
	}
}

// slowLoader resolves every source to a 40x20 image after delay. started
// is closed when the first load begins.
type slowLoader struct {
	delay   time.Duration
	once    sync.Once
	started chan struct{}
}

func newSlowLoader(d time.Duration) *slowLoader {
	return &slowLoader{delay: d, started: make(chan struct{})}
}

func (l *slowLoader) Load(ctx context.Context, src string) (ingest.Resolved, error) {
	l.once.Do(func() { close(l.started) })
	select {
	case <-ctx.Done():
		return ingest.Resolved{}, ctx.Err()
	case <-time.After(l.delay):
	}
	return ingest.Resolved{Src: src, Format: "png", Width: 40, Height: 20}, nil
}

type pasteResult struct {
	objs []*scene.Object
	err  error
}

func TestWheelDoesNotCancelPaste(t *testing.T) {
	l := newSlowLoader(200 * time.Millisecond)
	c, _ := newControllerWithLoader(t, false, l)
	ctx := context.Background()
	c.Select(addRect(c, 0, 0))
	_, _ = c.Copy(ctx, false)

	done := make(chan pasteResult, 1)
	go func() {
		objs, err := c.HandlePaste(ctx, []ingest.Item{{Kind: ingest.URIList, Text: "https://img.test/a.png"}}, "")
		done <- pasteResult{objs, err}
	}()
	<-l.started
	c.HandleWheel(viewport.WheelEvent{DeltaY: 40})
	r := <-done
	if r.err != nil || len(r.objs) != 1 {
		t.Fatalf("paste = %v, %v", r.objs, r.err)
	}
	if r.objs[0].Kind != scene.KindImage || r.objs[0].Src != "https://img.test/a.png" {
		t.Fatalf("pasted %s %q, want the image", r.objs[0].Kind, r.objs[0].Src)
	}
	if c.Canvas().Len() != 2 {
		t.Fatalf("canvas has %d objects, want 2", c.Canvas().Len())
	}
}

func TestSupersededPasteDoesNotFallBack(t *testing.T) {
	l := newSlowLoader(5 * time.Second)
	c, _ := newControllerWithLoader(t, false, l)
	ctx := context.Background()
	c.Select(addRect(c, 0, 0))
	_, _ = c.Copy(ctx, false)

	done := make(chan pasteResult, 1)
	go func() {
		objs, err := c.HandlePaste(ctx, []ingest.Item{{Kind: ingest.URIList, Text: "https://img.test/slow.png"}}, "")
		done <- pasteResult{objs, err}
	}()
	<-l.started
	second, err := c.HandlePaste(ctx, []ingest.Item{{Kind: ingest.PlainText, Text: "second"}}, "")
	if err != nil || len(second) != 1 || second[0].Text != "second" {
		t.Fatalf("second paste = %v, %v", second, err)
	}
	first := <-done
	if first.err != nil || len(first.objs) != 0 {
		t.Fatalf("superseded paste = %v, %v", first.objs, first.err)
	}
	if c.Canvas().Len() != 2 {
		t.Fatalf("canvas has %d objects, want the rect and the text", c.Canvas().Len())
	}
}

func TestIngestedObjectsAreSelected(t *testing.T) {
	c, _ := newController(t, false)
	ctx := context.Background()
	objs, err := c.HandleDrop(ctx, []ingest.Item{{Kind: ingest.PlainText, Text: "dropped"}}, scene.Pt{X: 50, Y: 50})
	if err != nil || len(objs) != 1 {
		t.Fatalf("drop = %v, %v", objs, err)
	}
	if got := c.Canvas().ActiveObject(); got != objs[0] {
		t.Fatalf("active after drop = %v, want the dropped text", got)
	}

	objs, err = c.HandlePaste(ctx, []ingest.Item{
		{Kind: ingest.PlainText, Text: "one"},
		{Kind: ingest.PlainText, Text: "two"},
	}, "")
	if err != nil || len(objs) != 2 {
		t.Fatalf("paste = %v, %v", objs, err)
	}
	g, ok := c.Canvas().ActiveObject().(*scene.ActiveSelection)
	if !ok || g.Len() != 2 || !g.Contains(objs[0]) || !g.Contains(objs[1]) {
		t.Fatalf("active after paste = %v", c.Canvas().ActiveObject())
	}
}

func TestHandleDropDocumentReplacesCanvas(t *testing.T) {
	c, _ := newController(t, false)
	addRect(c, 0, 0)
	doc := `{"version":"refer/1","objects":[{"type":"rect","left":1,"top":2,"width":3,"height":4},{"type":"rect","left":5,"top":6,"width":7,"height":8}]}`
	it, _ := ingest.NewItem("application/json", "board.refer.json", []byte(doc))
	if _, err := c.HandleDrop(context.Background(), []ingest.Item{it}, scene.Pt{}); err != nil {
		t.Fatalf("drop: %v", err)
	}
	if c.Canvas().Len() != 2 {
		t.Fatalf("canvas has %d objects, want 2", c.Canvas().Len())
	}
	if c.History.CanUndo() {
		t.Fatalf("history survived document switch")
	}
	if id, _ := c.Document(); id != "" {
		t.Fatalf("dropped board already has id %q", id)
	}
}

func TestHandleDropInvalidDocumentIsIgnored(t *testing.T) {
	c, _ := newController(t, false)
	addRect(c, 0, 0)
	it, _ := ingest.NewItem("application/json", "x.json", []byte(`{"nope":1}`))
	if _, err := c.HandleDrop(context.Background(), []ingest.Item{it}, scene.Pt{}); err != nil {
		t.Fatalf("drop: %v", err)
	}
	if c.Canvas().Len() != 1 {
		t.Fatalf("invalid drop changed the canvas")
	}
}

func TestDoubleClickTogglesFit(t *testing.T) {
	c, _ := newController(t, false)
	ctx := context.Background()
	o := addRect(c, 100, 100)
	screen := c.View.SceneToScreen(o.Center())
	if err := c.HandleDoubleClick(ctx, screen); err != nil {
		t.Fatalf("fit: %v", err)
	}
	if c.View.Preview() == nil || c.View.Zoom() == 1 {
		t.Fatalf("double click did not fit (zoom %v)", c.View.Zoom())
	}
	screen = c.View.SceneToScreen(o.Center())
	if err := c.HandleDoubleClick(ctx, screen); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if c.View.Preview() != nil || c.View.Zoom() != 1 {
		t.Fatalf("second double click did not restore (zoom %v)", c.View.Zoom())
	}
	if err := c.HandleDoubleClick(ctx, scene.Pt{X: 790, Y: 590}); err != nil {
		t.Fatalf("miss: %v", err)
	}
}

func TestSaveCreatesUpdatesAndSkipsUnchanged(t *testing.T) {
	c, st := newController(t, true)
	ctx := context.Background()
	rec := events.Record(c.Bus())

	if id, err := c.Save(ctx, false); err != nil || id != "" {
		t.Fatalf("empty canvas saved: %q %v", id, err)
	}
	o := addRect(c, 0, 0)
	id, err := c.Save(ctx, false)
	if err != nil || id == "" {
		t.Fatalf("save: %q %v", id, err)
	}
	_, title := c.Document()
	if !strings.HasPrefix(title, "Refer_") {
		t.Fatalf("title=%q", title)
	}
	if again, _ := c.Save(ctx, false); again != id {
		t.Fatalf("second save id %q != %q", again, id)
	}
	if rec.Count(events.KindDocumentSaved) != 1 {
		t.Fatalf("unchanged save published: %d", rec.Count(events.KindDocumentSaved))
	}
	c.Canvas().Modify(o, scene.ObjectModified, func(o *scene.Object) { o.Left = 50 })
	if _, err := c.Save(ctx, false); err != nil {
		t.Fatalf("update: %v", err)
	}
	revs, err := st.ListRevisions(ctx, id)
	if err != nil || len(revs) != 1 {
		t.Fatalf("revisions: %d %v", len(revs), err)
	}
	if _, err := st.GetThumbnail(ctx, id); err != nil {
		t.Fatalf("thumbnail missing: %v", err)
	}
}

func TestLoadLatestNewCanvasRenameDelete(t *testing.T) {
	c, st := newController(t, true)
	ctx := context.Background()

	if err := c.LoadLatest(ctx); err != nil {
		t.Fatalf("load latest on empty store: %v", err)
	}
	addRect(c, 0, 0)
	id, err := c.Save(ctx, true)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := c.NewCanvas(ctx); err != nil {
		t.Fatalf("new canvas: %v", err)
	}
	if c.Canvas().Len() != 0 {
		t.Fatalf("new canvas not empty")
	}
	if err := c.LoadLatest(ctx); err != nil {
		t.Fatalf("load latest: %v", err)
	}
	if got, _ := c.Document(); got != id || c.Canvas().Len() != 1 {
		t.Fatalf("loaded %q with %d objects", got, c.Canvas().Len())
	}
	if err := c.Rename(ctx, "  moodboard "); err != nil {
		t.Fatalf("rename: %v", err)
	}
	doc, err := st.Get(ctx, id)
	if err != nil || doc.Title != "moodboard" {
		t.Fatalf("stored title %q %v", doc.Title, err)
	}
	if err := c.Delete(ctx); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if n, _ := st.Count(ctx); n != 0 {
		t.Fatalf("documents left: %d", n)
	}
}

func TestDocumentOpsWithoutStore(t *testing.T) {
	c, _ := newController(t, false)
	if _, err := c.Save(context.Background(), true); err != ErrNoStore {
		t.Fatalf("err=%v", err)
	}
	if a, err := c.HandleKey(context.Background(), KeyEvent{Key: "s", Ctrl: true}); err != nil || a != ActionSave {
		t.Fatalf("ctrl+s without store: %v %v", a, err)
	}
}

func TestExportAndImportFile(t *testing.T) {
	c, _ := newController(t, false)
	ctx := context.Background()
	addRect(c, 0, 0)
	dir := t.TempDir()
	path := filepath.Join(dir, "board"+storage.FileExt)
	if err := c.Export(ctx, path); err != nil {
		t.Fatalf("export: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil || !bytes.Contains(data, []byte("\n    \"")) {
		t.Fatalf("export not indented: %v", err)
	}
	if err := c.Export(ctx, filepath.Join(dir, "board.svg")); err != nil {
		t.Fatalf("svg export: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "board.svg")); err != nil {
		t.Fatalf("svg missing: %v", err)
	}

	_ = c.NewCanvas(ctx)
	ok, err := c.ImportFile(ctx, path)
	if err != nil || !ok || c.Canvas().Len() != 1 {
		t.Fatalf("import: %v %v len=%d", ok, err, c.Canvas().Len())
	}

	bad := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(bad, []byte("not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	ok, err = c.ImportFile(ctx, bad)
	if err != nil || ok {
		t.Fatalf("invalid import: %v %v", ok, err)
	}
	if c.Canvas().Len() != 1 {
		t.Fatalf("invalid import changed the canvas")
	}
}

func TestAddFilesIngestsImages(t *testing.T) {
	c, _ := newController(t, false)
	img := image.NewNRGBA(image.Rect(0, 0, 40, 20))
	img.Set(1, 1, color.NRGBA{R: 255, A: 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	dir := t.TempDir()
	p := filepath.Join(dir, "shot.png")
	if err := os.WriteFile(p, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
	n, err := c.AddFiles(context.Background(), []string{p, filepath.Join(dir, "missing.png")})
	if err != nil || n != 1 {
		t.Fatalf("add files: %d %v", n, err)
	}
	o := c.Canvas().Objects()[0]
	if o.Kind != scene.KindImage || o.ScaledHeight() < 299 || o.ScaledHeight() > 301 {
		t.Fatalf("image object %v h=%v", o.Kind, o.ScaledHeight())
	}
}

func TestPruneRevisions(t *testing.T) {
	c, st := newController(t, true)
	ctx := context.Background()
	o := addRect(c, 0, 0)
	id, _ := c.Save(ctx, false)
	for i := 1; i <= 4; i++ {
		c.Canvas().Modify(o, scene.ObjectModified, func(o *scene.Object) { o.Left = float64(i) })
		if _, err := c.Save(ctx, false); err != nil {
			t.Fatalf("save %d: %v", i, err)
		}
	}
	c.cfg.Storage.RevisionKeep = 2
	n, err := c.PruneRevisions(ctx)
	if err != nil || n != 2 {
		t.Fatalf("pruned %d %v", n, err)
	}
	revs, _ := st.ListRevisions(ctx, id)
	if len(revs) != 2 {
		t.Fatalf("revisions left: %d", len(revs))
	}
	stop, err := c.StartPruning(ctx)
	if err != nil {
		t.Fatalf("start pruning: %v", err)
	}
	stop()
}

func TestAutosaveRunsThroughStore(t *testing.T) {
	c, st := newController(t, true)
	ctx := context.Background()
	addRect(c, 0, 0)
	if !c.Autosave.State().PendingChanges {
		t.Fatalf("change did not mark autosave pending")
	}
	if err := c.Autosave.ForceSave(ctx); err != nil {
		t.Fatalf("force save: %v", err)
	}
	if n, _ := st.Count(ctx); n != 1 {
		t.Fatalf("stored documents: %d", n)
	}
}

func TestMoveSelectionIsOneHistoryStep(t *testing.T) {
	c, _ := newController(t, false)
	a := addRect(c, 0, 0)
	b := addRect(c, 200, 0)
	c.SelectAll()
	before, _ := c.History.Stats()
	c.MoveSelection(10, 5)
	after, _ := c.History.Stats()
	if after != before+1 {
		t.Fatalf("history grew by %d, want 1", after-before)
	}
	if a.Left != 10 || b.Left != 210 || b.Top != 5 {
		t.Fatalf("moved to %v/%v %v", a.Left, b.Left, b.Top)
	}
	if err := c.Undo(); err != nil {
		t.Fatalf("undo: %v", err)
	}
	if got := c.Canvas().Objects()[0].Left; got != 0 && got != 200 {
		t.Fatalf("undo did not restore positions: %v", got)
	}
}
