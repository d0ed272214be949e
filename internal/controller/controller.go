/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package controller wires the canvas components together behind one facade
// that a UI host or the CLI drives: view, selection, clipboard, ingestion,
// history, persistence and autosave.
package controller

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"refercanvas/internal/autosave"
	"refercanvas/internal/clipboard"
	"refercanvas/internal/config"
	"refercanvas/internal/domain"
	"refercanvas/internal/events"
	"refercanvas/internal/history"
	"refercanvas/internal/ingest"
	applog "refercanvas/internal/log"
	"refercanvas/internal/scene"
	"refercanvas/internal/selection"
	"refercanvas/internal/storage"
	"refercanvas/internal/viewport"
)

// ErrNoStore is returned by document operations when no store is wired.
var ErrNoStore = errors.New("controller: no document store")

// Store is the document persistence the controller needs.
type Store interface {
	Create(ctx context.Context, title, content string) (domain.Document, error)
	Get(ctx context.Context, fileID string) (domain.Document, error)
	Latest(ctx context.Context) (domain.Document, error)
	List(ctx context.Context) ([]domain.Document, error)
	Update(ctx context.Context, fileID, content string) (bool, error)
	Rename(ctx context.Context, fileID, title string) error
	Delete(ctx context.Context, fileID string) error
	PutThumbnail(ctx context.Context, th storage.Thumbnail) error
	PruneRevisions(ctx context.Context, keep int) (int64, error)
}

// Deps are the collaborators of a Controller. Only Config is required in
// practice; a nil Canvas gets an 800x600 canvas, a nil Bus a fresh bus, a
// nil System an in-memory clipboard and a nil Loader the HTTP loader.
// Without a Store the document operations return ErrNoStore.
type Deps struct {
	Canvas *scene.Canvas
	Bus    *events.Bus
	Store  Store
	System clipboard.System
	Loader ingest.Loader
	Config config.AppConfig
	Logger *slog.Logger
	// Autosave overrides options of the autosave manager, mostly for tests.
	Autosave []autosave.Option
}

// Controller is the single entry point for canvas interaction. Methods are
// meant to be called from the UI goroutine; autosave runs in the
// background and only touches the store and the serialized scene.
type Controller struct {
	cfg    config.AppConfig
	canvas *scene.Canvas
	bus    *events.Bus
	store  Store
	log    *slog.Logger

	View      *viewport.Controller
	Selection *selection.Manager
	Clipboard *clipboard.Controller
	Ingest    *ingest.Pipeline
	History   *history.Manager
	Autosave  *autosave.Manager

	unsubs []func()

	saveMu sync.Mutex

	mu       sync.Mutex
	fileID   string
	title    string
	hash     string
	gen      int
	editing  *scene.Object
	dragMode bool

	// Drop and paste ingestion is superseded only by the next drop or
	// paste. View gestures (fit toggles) are cancelled by the wheel.
	ingesting gestureSlot
	viewing   gestureSlot
}

// New constructs every component once and connects them through the bus.
func New(d Deps) (*Controller, error) {
	if d.Canvas == nil {
		d.Canvas = scene.NewCanvas(800, 600)
	}
	if d.Bus == nil {
		d.Bus = events.NewBus()
	}
	if d.System == nil {
		d.System = &clipboard.Memory{}
	}
	if d.Loader == nil {
		d.Loader = &ingest.HTTPLoader{}
	}
	if d.Logger == nil {
		d.Logger = applog.WithComponent("controller")
	}
	cc := d.Config.Canvas

	c := &Controller{cfg: d.Config, canvas: d.Canvas, bus: d.Bus, store: d.Store, log: d.Logger}
	d.Canvas.SetObserver(events.SceneObserver(d.Bus))

	c.View = viewport.New(d.Canvas,
		viewport.WithBus(d.Bus),
		viewport.WithLogger(d.Logger.With("part", "viewport")),
		viewport.WithAnimation(cc.AnimationDuration()),
	)
	c.Selection = selection.New(d.Canvas, d.Logger.With("part", "selection"))
	copts := []clipboard.Option{clipboard.WithLogger(d.Logger.With("part", "clipboard"))}
	if cc.PasteOffset > 0 {
		copts = append(copts, clipboard.WithOffset(cc.PasteOffset))
	}
	c.Clipboard = clipboard.New(d.Canvas, c.Selection, d.System, copts...)
	c.Ingest = ingest.New(c.View, d.Canvas.Style(), d.Loader, ingestConfig(cc), d.Logger.With("part", "ingest"))
	c.History = history.New(d.Canvas, d.Bus,
		history.Config{MaxSize: cc.HistoryMaxSize, TrackScaling: cc.TrackScaling},
		history.WithLogger(d.Logger.With("part", "history")),
	)
	if err := c.History.Init(); err != nil {
		return nil, err
	}

	aopts := append([]autosave.Option{
		autosave.WithBus(d.Bus),
		autosave.WithLogger(d.Logger.With("part", "autosave")),
		autosave.OnError(func(err error) { c.log.Error("autosave gave up", "err", err) }),
	}, d.Autosave...)
	c.Autosave = autosave.New(c.autosaveFunc, autosave.Config{
		Throttle:   d.Config.Autosave.Throttle(),
		MaxRetries: d.Config.Autosave.MaxRetries,
		RetryDelay: d.Config.Autosave.RetryDelay(),
	}, aopts...)

	c.unsubs = append(c.unsubs,
		d.Bus.SubscribeKind(c.onSelection, events.KindSelectionChanged),
		d.Bus.SubscribeKind(func(events.Event) { c.markDirty() },
			events.KindHistoryAppend, events.KindHistoryUndo, events.KindHistoryRedo),
	)
	return c, nil
}

func ingestConfig(cc config.CanvasConfig) ingest.Config {
	ic := ingest.DefaultConfig()
	if cc.ImageDisplayHeight > 0 {
		ic.DisplayHeight = cc.ImageDisplayHeight
	}
	if cc.LayoutGap > 0 {
		ic.Gap = cc.LayoutGap
	}
	ic.LoadTimeout = cc.LoadTimeout()
	return ic
}

// Close stops autosave and detaches every bus subscription. Pending changes
// are not flushed; call Save first.
func (c *Controller) Close() {
	c.cancelGestures()
	c.Autosave.Close()
	c.History.Close()
	for _, u := range c.unsubs {
		u()
	}
	c.unsubs = nil
}

// Canvas returns the scene being edited.
func (c *Controller) Canvas() *scene.Canvas { return c.canvas }

// Bus returns the event bus.
func (c *Controller) Bus() *events.Bus { return c.bus }

// onSelection draws a freshly selected object above the others.
func (c *Controller) onSelection(e events.Event) {
	ev, ok := e.(events.SelectionChanged)
	if !ok || ev.Selection == nil {
		return
	}
	c.Selection.BringToFront(ev.Selection)
}

func (c *Controller) markDirty() {
	if c.store == nil {
		return
	}
	c.Autosave.Save()
}

// gestureSlot holds the cancel func of the running gesture of one kind.
type gestureSlot struct {
	mu     sync.Mutex
	seq    uint64
	cancel context.CancelFunc
}

// begin cancels the previous gesture of the slot and returns a context for
// the new one. Call the returned func when the gesture completes.
func (s *gestureSlot) begin(parent context.Context) (context.Context, func()) {
	ctx, cancel := context.WithCancel(parent)
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.seq++
	seq := s.seq
	s.cancel = cancel
	s.mu.Unlock()
	return ctx, func() {
		cancel()
		s.mu.Lock()
		if s.seq == seq {
			s.cancel = nil
		}
		s.mu.Unlock()
	}
}

func (s *gestureSlot) stop() {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.mu.Unlock()
}

// cancelGestures stops every running gesture, before the board is replaced
// or the controller closes.
func (c *Controller) cancelGestures() {
	c.ingesting.stop()
	c.viewing.stop()
}
