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

	"refercanvas/internal/clipboard"
	"refercanvas/internal/ingest"
	"refercanvas/internal/scene"
	"refercanvas/internal/storage"
	"refercanvas/internal/viewport"
)

// HandleDrop resolves dropped items at a scene point and selects the new
// objects. A dropped board document replaces the canvas instead. The next
// drop or paste supersedes an ingest still in flight.
func (c *Controller) HandleDrop(ctx context.Context, items []ingest.Item, at scene.Pt) ([]*scene.Object, error) {
	if doc, ok := ingest.FindDocument(items); ok {
		content, err := storage.ParseDocument([]byte(doc))
		if err != nil {
			c.log.Warn("ignoring dropped document", "err", err)
			return nil, nil
		}
		return nil, c.OpenDocument(ctx, content)
	}
	objs, _, err := c.ingest(ctx, items, ingest.AtPointer(at))
	return objs, err
}

// HandlePaste handles a paste event. markerText is the plain text the OS
// clipboard held. The internal clipboard is pasted when the marker is ours
// or when the items resolve to nothing. A superseded paste adds nothing.
func (c *Controller) HandlePaste(ctx context.Context, items []ingest.Item, markerText string) ([]*scene.Object, error) {
	if clipboard.IsInternal(markerText) {
		return c.Clipboard.Paste(), nil
	}
	objs, superseded, err := c.ingest(ctx, items, ingest.Anchor{})
	if err != nil || superseded {
		return nil, err
	}
	if len(objs) == 0 {
		return c.Clipboard.Paste(), nil
	}
	return objs, nil
}

// ingest resolves items, adds the result to the canvas and selects it.
// superseded reports that a newer drop or paste cancelled this one.
func (c *Controller) ingest(ctx context.Context, items []ingest.Item, a ingest.Anchor) (objs []*scene.Object, superseded bool, err error) {
	if len(items) == 0 {
		return nil, false, nil
	}
	gctx, done := c.ingesting.begin(ctx)
	defer done()
	objs, err = c.Ingest.AddFromDataTransfer(gctx, items, a)
	if err != nil {
		if errors.Is(err, context.Canceled) && ctx.Err() == nil {
			c.log.Debug("ingest superseded")
			return nil, true, nil
		}
		return nil, false, err
	}
	if len(objs) > 0 {
		c.canvas.Add(objs...)
		c.Selection.SelectElement(objs...)
	}
	return objs, false, nil
}

// HandleDoubleClick toggles the fit of the object under the screen point.
func (c *Controller) HandleDoubleClick(ctx context.Context, screen scene.Pt) error {
	t := c.canvas.FindTarget(screen)
	if t == nil {
		return nil
	}
	gctx, done := c.viewing.begin(ctx)
	defer done()
	return c.View.ToggleFit(gctx, t)
}

// HandleWheel zooms or pans; see viewport.HandleWheel. It stops a running
// fit animation but leaves ingestion alone.
func (c *Controller) HandleWheel(e viewport.WheelEvent) {
	c.viewing.stop()
	c.View.HandleWheel(e)
}
