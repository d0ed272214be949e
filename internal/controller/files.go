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
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"refercanvas/internal/domain"
	"refercanvas/internal/events"
	"refercanvas/internal/export"
	"refercanvas/internal/history"
	applog "refercanvas/internal/log"
	"refercanvas/internal/storage"
)

// ThumbnailSide bounds the longer side of stored thumbnails.
const ThumbnailSide = 256

// Document returns the id and title of the open document. The id is empty
// until the first save.
func (c *Controller) Document() (fileID, title string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fileID, c.title
}

func (c *Controller) serialize() (string, error) {
	return c.canvas.ToDatalessJSON(history.ExtraProps...)
}

func (c *Controller) autosaveFunc(ctx context.Context) (string, error) {
	return c.Save(ctx, false)
}

// Save writes the canvas to the store and returns the file id. Unless force
// is set, content equal to the last save is skipped, and an empty canvas that
// was never saved is not stored.
func (c *Controller) Save(ctx context.Context, force bool) (string, error) {
	if c.store == nil {
		return "", ErrNoStore
	}
	c.saveMu.Lock()
	defer c.saveMu.Unlock()
	content, err := c.serialize()
	if err != nil {
		return "", err
	}
	hash := domain.HashContent(content)
	c.mu.Lock()
	id, title, last, gen := c.fileID, c.title, c.hash, c.gen
	c.mu.Unlock()
	l := applog.WithOperation(c.log, "save")

	switch {
	case id == "":
		if !force && c.canvas.Len() == 0 {
			return "", nil
		}
		doc, err := c.store.Create(ctx, "", content)
		if err != nil {
			return "", fmt.Errorf("create document: %w", err)
		}
		id, title = doc.FileID, doc.Title
	case !force && hash == last:
		return id, nil
	default:
		if _, err := c.store.Update(ctx, id, content); err != nil {
			return "", fmt.Errorf("update document: %w", err)
		}
	}

	c.mu.Lock()
	// Skipped when another document was opened meanwhile.
	if c.gen == gen {
		c.fileID, c.title, c.hash = id, title, hash
	}
	c.mu.Unlock()
	c.storeThumbnail(ctx, id)
	l.Debug("document saved", "file_id", id, "force", force)
	c.bus.Publish(events.DocumentSaved{FileID: id, Title: title, At: time.Now()})
	return id, nil
}

// CrashSave saves the open board while the process is going down.
func (c *Controller) CrashSave(ctx context.Context) (string, error) {
	return c.Save(ctx, true)
}

func (c *Controller) storeThumbnail(ctx context.Context, id string) {
	data, w, h, err := export.Thumbnail(ctx, c.canvas.Objects(), ThumbnailSide)
	if err != nil {
		if !errors.Is(err, export.ErrEmpty) {
			c.log.Debug("thumbnail failed", "file_id", id, "err", err)
		}
		return
	}
	if err := c.store.PutThumbnail(ctx, storage.Thumbnail{FileID: id, W: w, H: h, PNG: data}); err != nil {
		c.log.Warn("store thumbnail", "file_id", id, "err", err)
	}
}

// flush persists pending autosave changes before the canvas is replaced.
func (c *Controller) flush(ctx context.Context) {
	if c.store == nil || !c.Autosave.State().PendingChanges {
		return
	}
	if err := c.Autosave.ForceSave(ctx); err != nil {
		c.log.Warn("flush before switching documents", "err", err)
	}
}

// replace loads content as the open document and resets history. doc
// carries the stored identity, or is zero for an unsaved board.
func (c *Controller) replace(ctx context.Context, content string, doc domain.Document) error {
	c.cancelGestures()
	c.flush(ctx)
	c.Autosave.Reset()
	c.canvas.DiscardActiveObject()
	if err := c.canvas.LoadFromJSON(content); err != nil {
		return fmt.Errorf("load document: %w", err)
	}
	hash := doc.Hash
	if doc.FileID != "" {
		if s, err := c.serialize(); err == nil {
			hash = domain.HashContent(s)
		}
	}
	c.reset(doc.FileID, doc.Title, hash)
	return c.History.Init()
}

// reset switches the identity of the open document.
func (c *Controller) reset(fileID, title, hash string) {
	c.mu.Lock()
	c.fileID, c.title, c.hash = fileID, title, hash
	c.editing = nil
	c.gen++
	c.mu.Unlock()
}

// LoadFile opens a stored document.
func (c *Controller) LoadFile(ctx context.Context, fileID string) error {
	if c.store == nil {
		return ErrNoStore
	}
	doc, err := c.store.Get(ctx, fileID)
	if err != nil {
		return err
	}
	ctx = applog.WithDocument(ctx, fileID)
	if err := c.replace(ctx, doc.Content, doc); err != nil {
		return err
	}
	c.log.InfoContext(ctx, "document opened", "title", doc.Title)
	return nil
}

// Documents lists the stored documents, most recently updated first.
func (c *Controller) Documents(ctx context.Context) ([]domain.Document, error) {
	if c.store == nil {
		return nil, ErrNoStore
	}
	return c.store.List(ctx)
}

// LoadLatest opens the most recently updated document, or starts a new
// canvas when the store is empty.
func (c *Controller) LoadLatest(ctx context.Context) error {
	if c.store == nil {
		return ErrNoStore
	}
	doc, err := c.store.Latest(ctx)
	if errors.Is(err, storage.ErrNotFound) {
		return c.NewCanvas(ctx)
	}
	if err != nil {
		return err
	}
	return c.LoadFile(ctx, doc.FileID)
}

// NewCanvas saves pending changes and starts an empty, unsaved board.
func (c *Controller) NewCanvas(ctx context.Context) error {
	c.cancelGestures()
	c.flush(ctx)
	c.Autosave.Reset()
	c.canvas.Clear()
	c.reset("", "", "")
	return c.History.Init()
}

// OpenDocument starts a new board from serialized content, as for a dropped
// or imported file. The board is stored on the next save.
func (c *Controller) OpenDocument(ctx context.Context, content string) error {
	if err := c.replace(ctx, content, domain.Document{}); err != nil {
		return err
	}
	c.markDirty()
	return nil
}

// Rename changes the title of the open document, saving it first when it
// was never stored.
func (c *Controller) Rename(ctx context.Context, title string) error {
	if c.store == nil {
		return ErrNoStore
	}
	id, _ := c.Document()
	if id == "" {
		var err error
		if id, err = c.Save(ctx, true); err != nil {
			return err
		}
	}
	title = strings.TrimSpace(title)
	if err := c.store.Rename(ctx, id, title); err != nil {
		return err
	}
	c.mu.Lock()
	if c.fileID == id {
		c.title = title
	}
	c.mu.Unlock()
	return nil
}

// Delete removes the open document from the store and starts a new canvas.
func (c *Controller) Delete(ctx context.Context) error {
	if c.store == nil {
		return ErrNoStore
	}
	id, _ := c.Document()
	c.Autosave.Reset()
	if id != "" {
		if err := c.store.Delete(ctx, id); err != nil {
			return err
		}
	}
	c.reset("", "", "")
	return c.NewCanvas(ctx)
}

// ExportFile writes the board as indented JSON.
func (c *Controller) ExportFile(path string) error {
	content, err := c.serialize()
	if err != nil {
		return err
	}
	return storage.ExportFile(path, content)
}

// ImportFile opens a board file as a new canvas. Files that are not valid
// boards are logged and ignored.
func (c *Controller) ImportFile(ctx context.Context, path string) (bool, error) {
	content, err := storage.ImportFile(path)
	if errors.Is(err, storage.ErrInvalidDocument) {
		c.log.Warn("ignoring invalid board file", "path", path, "err", err)
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, c.OpenDocument(ctx, content)
}

// Export writes the board to path in the format named by its extension:
// png, pdf, svg, zip, or board JSON for anything else.
func (c *Controller) Export(ctx context.Context, path string) error {
	f, ok := export.FormatFromPath(path)
	if !ok {
		return c.ExportFile(path)
	}
	content, err := c.serialize()
	if err != nil {
		return err
	}
	base := filepath.Base(path)
	_, err = export.BatchExport(ctx, c.canvas.Objects(), export.BatchOptions{
		Formats: []string{f},
		OutDir:  filepath.Dir(path),
		Name:    strings.TrimSuffix(base, filepath.Ext(base)),
		Content: content,
	})
	return err
}
