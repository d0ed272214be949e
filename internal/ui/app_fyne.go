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
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/driver/desktop"
	fstorage "fyne.io/fyne/v2/storage"
	"fyne.io/fyne/v2/widget"

	"refercanvas/internal/controller"
	"refercanvas/internal/events"
	"refercanvas/internal/ingest"
	applog "refercanvas/internal/log"
	"refercanvas/internal/scene"
	"refercanvas/internal/storage"
	"refercanvas/internal/version"
)

const appTitle = "Refer Canvas"

// Run opens the board window and blocks until it is closed. The most
// recent board is opened on start.
func Run(ctx context.Context, ctl *controller.Controller) error {
	l := applog.WithComponent("ui")
	l.Info("starting UI", slog.String("version", version.String()))

	fyneApp := app.NewWithID("refercanvas")
	w := fyneApp.NewWindow(appTitle)
	prefs := fyneApp.Preferences()
	winW := max(prefs.IntWithFallback("window.width", 1200), 800)
	winH := max(prefs.IntWithFallback("window.height", 800), 600)
	w.Resize(fyne.NewSize(float32(winW), float32(winH)))

	board := NewBoardCanvas(ctl, l)
	status := widget.NewLabel("Ready")
	h := &host{ctx: ctx, ctl: ctl, w: w, app: fyneApp, board: board, status: status, log: l}
	board.OnEditText = h.editText

	unsub := ctl.Bus().Subscribe(func(e events.Event) { fyne.Do(func() { h.onEvent(e) }) })
	defer unsub()

	h.bindKeys()
	w.SetOnDropped(h.dropped)
	w.SetMainMenu(h.menu())
	w.SetContent(container.NewBorder(nil, status, nil, nil, board))

	if err := ctl.LoadLatest(ctx); err != nil && !errors.Is(err, controller.ErrNoStore) {
		l.Error("open latest board", slog.Any("err", err))
	}
	h.updateTitle()

	w.SetCloseIntercept(func() {
		sz := w.Canvas().Size()
		prefs.SetInt("window.width", int(sz.Width))
		prefs.SetInt("window.height", int(sz.Height))
		if _, err := ctl.Save(ctx, false); err != nil && !errors.Is(err, controller.ErrNoStore) {
			l.Error("save on close", slog.Any("err", err))
		}
		w.Close()
	})
	w.ShowAndRun()
	return nil
}

type host struct {
	ctx    context.Context
	ctl    *controller.Controller
	w      fyne.Window
	app    fyne.App
	board  *BoardCanvas
	status *widget.Label
	log    *slog.Logger
}

func (h *host) onEvent(e events.Event) {
	switch ev := e.(type) {
	case events.DocumentSaved:
		h.status.SetText(fmt.Sprintf("Saved %s at %s", ev.Title, ev.At.Format("15:04:05")))
		h.updateTitle()
	case events.AutosaveStatus:
		switch {
		case ev.IsSaving:
			h.status.SetText("Saving…")
		case ev.Err != nil:
			h.status.SetText(fmt.Sprintf("Save failed (%d): %v", ev.ErrorCount, ev.Err))
		case ev.PendingChanges:
			h.status.SetText("Unsaved changes")
		}
	case events.ViewChanged:
		h.status.SetText(fmt.Sprintf("Zoom %.0f%%", ev.Zoom*100))
	}
	h.board.Refresh()
}

func (h *host) updateTitle() {
	_, title := h.ctl.Document()
	if title == "" {
		title = "Untitled"
	}
	h.w.SetTitle(appTitle + " - " + title)
}

// key runs a shortcut and reports failures in the status bar.
func (h *host) key(e controller.KeyEvent) {
	e.Shift = e.Shift || h.board.shift
	e.Alt = e.Alt || h.board.alt
	a, err := h.ctl.HandleKey(h.ctx, e)
	if err != nil {
		h.log.Error("shortcut failed", slog.String("action", string(a)), slog.Any("err", err))
		dialog.ShowError(err, h.w)
	}
	h.board.Refresh()
}

func (h *host) bindKeys() {
	c := h.w.Canvas()
	c.SetOnTypedRune(func(r rune) {
		if r == ' ' {
			return
		}
		h.key(controller.KeyEvent{Key: string(r)})
	})
	c.SetOnTypedKey(func(e *fyne.KeyEvent) {
		switch e.Name {
		case fyne.KeyDelete:
			h.key(controller.KeyEvent{Key: "Delete"})
		case fyne.KeyBackspace:
			h.key(controller.KeyEvent{Key: "Backspace"})
		case fyne.KeyLeft:
			h.key(controller.KeyEvent{Key: "ArrowLeft"})
		case fyne.KeyRight:
			h.key(controller.KeyEvent{Key: "ArrowRight"})
		}
	})
	if dc, ok := c.(desktop.Canvas); ok {
		dc.SetOnKeyDown(func(e *fyne.KeyEvent) { h.modifier(e.Name, true) })
		dc.SetOnKeyUp(func(e *fyne.KeyEvent) { h.modifier(e.Name, false) })
	}
	for _, k := range []fyne.KeyName{fyne.KeyA, fyne.KeyZ, fyne.KeyS, fyne.KeyO, fyne.KeyN, fyne.KeyC, fyne.KeyX} {
		name := strings.ToLower(string(k))
		c.AddShortcut(&desktop.CustomShortcut{KeyName: k, Modifier: fyne.KeyModifierShortcutDefault}, func(fyne.Shortcut) {
			h.key(controller.KeyEvent{Key: name, Ctrl: true})
		})
	}
	c.AddShortcut(&desktop.CustomShortcut{KeyName: fyne.KeyZ, Modifier: fyne.KeyModifierShortcutDefault | fyne.KeyModifierShift}, func(fyne.Shortcut) {
		h.key(controller.KeyEvent{Key: "z", Ctrl: true, Shift: true})
	})
	c.AddShortcut(&desktop.CustomShortcut{KeyName: fyne.KeyV, Modifier: fyne.KeyModifierShortcutDefault}, func(fyne.Shortcut) {
		h.paste()
	})
}

func (h *host) modifier(k fyne.KeyName, down bool) {
	switch k {
	case desktop.KeyControlLeft, desktop.KeyControlRight, desktop.KeySuperLeft, desktop.KeySuperRight:
		h.board.ctrl = down
	case desktop.KeyShiftLeft, desktop.KeyShiftRight:
		h.board.shift = down
	case desktop.KeyAltLeft, desktop.KeyAltRight:
		h.board.alt = down
	case fyne.KeySpace:
		h.key(controller.KeyEvent{Key: " ", Release: !down})
	}
}

// paste feeds the OS clipboard text to the controller. URLs and data URLs
// are treated as a uri list, anything else as plain text.
func (h *host) paste() {
	text := h.app.Clipboard().Content()
	var items []ingest.Item
	if t := strings.TrimSpace(text); t != "" {
		mime := "text/plain"
		if strings.HasPrefix(t, "http://") || strings.HasPrefix(t, "https://") || strings.HasPrefix(t, "data:image/") {
			mime = "text/uri-list"
		}
		if it, ok := ingest.NewItem(mime, "", []byte(t)); ok {
			items = append(items, it)
		}
	}
	go func() {
		if _, err := h.ctl.HandlePaste(h.ctx, items, text); err != nil {
			h.log.Warn("paste failed", slog.Any("err", err))
		}
		fyne.Do(h.board.Refresh)
	}()
}

func (h *host) dropped(pos fyne.Position, uris []fyne.URI) {
	var items []ingest.Item
	for _, u := range uris {
		it, err := ingest.ReadFile(u.Path())
		if err != nil {
			h.log.Debug("drop skipped", slog.String("uri", u.String()), slog.Any("err", err))
			continue
		}
		items = append(items, it)
	}
	origin := fyne.CurrentApp().Driver().AbsolutePositionForObject(h.board)
	at := h.ctl.View.ScreenToScene(toPt(pos.Subtract(origin)))
	go func() {
		if _, err := h.ctl.HandleDrop(h.ctx, items, at); err != nil {
			h.log.Warn("drop failed", slog.Any("err", err))
		}
		fyne.Do(func() {
			h.updateTitle()
			h.board.Refresh()
		})
	}()
}

func (h *host) editText(o *scene.Object) {
	h.ctl.BeginTextEdit(o)
	entry := widget.NewMultiLineEntry()
	entry.SetText(o.Text)
	dialog.ShowForm("Edit Text", "Done", "Cancel", []*widget.FormItem{widget.NewFormItem("Text", entry)}, func(ok bool) {
		if ok {
			h.ctl.EndTextEdit(entry.Text)
		} else {
			h.ctl.EndTextEdit(o.Text)
		}
		h.board.Refresh()
	}, h.w)
}

func (h *host) run(name string, fn func() error) {
	if err := fn(); err != nil {
		h.log.Error("menu action failed", slog.String("action", name), slog.Any("err", err))
		dialog.ShowError(err, h.w)
	}
	h.updateTitle()
	h.board.Refresh()
}

func (h *host) menu() *fyne.MainMenu {
	item := func(label string, a controller.Action) *fyne.MenuItem {
		return fyne.NewMenuItem(label, func() {
			h.run(string(a), func() error { return h.ctl.Run(h.ctx, a) })
		})
	}
	file := fyne.NewMenu("File",
		item("New Board", controller.ActionNewCanvas),
		fyne.NewMenuItem("Open…", h.openDialog),
		item("Open Latest", controller.ActionOpenLatest),
		item("Save", controller.ActionSave),
		fyne.NewMenuItemSeparator(),
		fyne.NewMenuItem("Rename…", h.renameDialog),
		fyne.NewMenuItem("Delete Board", func() {
			dialog.ShowConfirm("Delete Board", "Delete this board and its revisions?", func(ok bool) {
				if ok {
					h.run("delete", func() error { return h.ctl.Delete(h.ctx) })
				}
			}, h.w)
		}),
		fyne.NewMenuItemSeparator(),
		fyne.NewMenuItem("Import…", h.importDialog),
		fyne.NewMenuItem("Export…", h.exportDialog),
	)
	edit := fyne.NewMenu("Edit",
		item("Undo", controller.ActionUndo),
		item("Redo", controller.ActionRedo),
		fyne.NewMenuItemSeparator(),
		item("Cut", controller.ActionCut),
		item("Copy", controller.ActionCopy),
		fyne.NewMenuItem("Paste", h.paste),
		item("Delete", controller.ActionDelete),
		item("Select All", controller.ActionSelectAll),
		fyne.NewMenuItemSeparator(),
		item("Add Text", controller.ActionAddText),
		item("Bring to Front", controller.ActionBringFront),
		item("Send to Back", controller.ActionBringBack),
		item("Flip Horizontal", controller.ActionFlipH),
		item("Flip Vertical", controller.ActionFlipV),
	)
	view := fyne.NewMenu("View",
		item("Fit All", controller.ActionFitAll),
		item("Fit Selection", controller.ActionFitToggle),
		item("Actual Size", controller.ActionActualSize),
		item("Zoom In", controller.ActionZoomIn),
		item("Zoom Out", controller.ActionZoomOut),
	)
	return fyne.NewMainMenu(file, edit, view)
}

func (h *host) openDialog() {
	docs, err := h.ctl.Documents(h.ctx)
	if err != nil {
		dialog.ShowError(err, h.w)
		return
	}
	if len(docs) == 0 {
		dialog.ShowInformation("Open Board", "No saved boards yet.", h.w)
		return
	}
	chosen := -1
	list := widget.NewList(
		func() int { return len(docs) },
		func() fyne.CanvasObject { return widget.NewLabel("") },
		func(i widget.ListItemID, o fyne.CanvasObject) {
			o.(*widget.Label).SetText(fmt.Sprintf("%s  (%s)", docs[i].Title, docs[i].UpdatedAt.Local().Format("2006-01-02 15:04")))
		},
	)
	list.OnSelected = func(i widget.ListItemID) { chosen = i }
	d := dialog.NewCustomConfirm("Open Board", "Open", "Cancel", container.NewGridWrap(fyne.NewSize(420, 300), list), func(ok bool) {
		if ok && chosen >= 0 {
			h.run("open", func() error { return h.ctl.LoadFile(h.ctx, docs[chosen].FileID) })
		}
	}, h.w)
	d.Show()
}

func (h *host) renameDialog() {
	_, title := h.ctl.Document()
	entry := widget.NewEntry()
	entry.SetText(title)
	dialog.ShowForm("Rename Board", "Rename", "Cancel", []*widget.FormItem{widget.NewFormItem("Title", entry)}, func(ok bool) {
		if ok && strings.TrimSpace(entry.Text) != "" {
			h.run("rename", func() error { return h.ctl.Rename(h.ctx, entry.Text) })
		}
	}, h.w)
}

func (h *host) importDialog() {
	open := dialog.NewFileOpen(func(ur fyne.URIReadCloser, err error) {
		if err != nil || ur == nil {
			return
		}
		path := ur.URI().Path()
		_ = ur.Close()
		h.run("import", func() error {
			ok, err := h.ctl.ImportFile(h.ctx, path)
			if err == nil && !ok {
				dialog.ShowInformation("Import", "The file is not a valid board.", h.w)
			}
			return err
		})
	}, h.w)
	open.SetFilter(fstorage.NewExtensionFileFilter([]string{".json"}))
	open.Show()
}

func (h *host) exportDialog() {
	save := dialog.NewFileSave(func(uc fyne.URIWriteCloser, err error) {
		if err != nil || uc == nil {
			return
		}
		path := uc.URI().Path()
		_ = uc.Close()
		h.run("export", func() error { return h.ctl.Export(h.ctx, path) })
	}, h.w)
	_, title := h.ctl.Document()
	if title == "" {
		title = "board"
	}
	save.SetFileName(title + storage.FileExt)
	save.SetFilter(fstorage.NewExtensionFileFilter([]string{".json", ".png", ".pdf", ".svg", ".zip"}))
	save.Show()
}
