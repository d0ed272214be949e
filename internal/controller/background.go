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
	"fmt"
	"path/filepath"
	"strings"

	"github.com/robfig/cron/v3"

	"refercanvas/internal/config"
	"refercanvas/internal/ingest"
	"refercanvas/internal/storage"
	"refercanvas/internal/watch"
)

// PruneRevisions keeps the newest revisions of every document, as many as
// the storage config allows.
func (c *Controller) PruneRevisions(ctx context.Context) (int64, error) {
	if c.store == nil {
		return 0, ErrNoStore
	}
	n, err := c.store.PruneRevisions(ctx, c.cfg.Storage.RevisionKeep)
	if err != nil {
		return 0, fmt.Errorf("prune revisions: %w", err)
	}
	if n > 0 {
		c.log.Info("revisions pruned", "removed", n)
	}
	return n, nil
}

// StartPruning runs PruneRevisions on the configured cron schedule until the
// returned stop func is called or ctx ends.
func (c *Controller) StartPruning(ctx context.Context) (func(), error) {
	if c.store == nil {
		return nil, ErrNoStore
	}
	schedule := c.cfg.Storage.PruneSchedule
	if schedule == "" {
		schedule = config.Defaults().Storage.PruneSchedule
	}
	cr := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := cr.AddFunc(schedule, func() {
		if _, err := c.PruneRevisions(ctx); err != nil {
			c.log.Warn("scheduled prune failed", "err", err)
		}
	}); err != nil {
		return nil, fmt.Errorf("prune schedule %q: %w", schedule, err)
	}
	cr.Start()
	stopped := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			<-cr.Stop().Done()
		case <-stopped:
		}
	}()
	return func() {
		select {
		case <-stopped:
			return
		default:
			close(stopped)
		}
		<-cr.Stop().Done()
	}, nil
}

// InboxDir is the configured inbox, or "inbox" under the app dir.
func InboxDir(cfg config.AppConfig) (string, error) {
	if cfg.Storage.InboxDir != "" {
		return cfg.Storage.InboxDir, nil
	}
	dir, err := config.AppDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "inbox"), nil
}

func isBoardFile(path string) bool {
	return strings.HasSuffix(strings.ToLower(path), storage.FileExt)
}

// AddFiles ingests files at the center of the view. Board files are opened
// as a new canvas instead; the last one wins.
func (c *Controller) AddFiles(ctx context.Context, paths []string) (int, error) {
	var items []ingest.Item
	for _, p := range paths {
		if isBoardFile(p) {
			if _, err := c.ImportFile(ctx, p); err != nil {
				c.log.Warn("import board file", "path", p, "err", err)
			}
			continue
		}
		it, err := ingest.ReadFile(p)
		if err != nil {
			c.log.Warn("skipping file", "path", p, "err", err)
			continue
		}
		items = append(items, it)
	}
	if len(items) == 0 {
		return 0, nil
	}
	objs, err := c.Ingest.AddFromDataTransfer(ctx, items, ingest.Anchor{})
	if err != nil {
		return 0, err
	}
	if len(objs) > 0 {
		c.canvas.Add(objs...)
	}
	return len(objs), nil
}

// WatchInbox adds files dropped into the inbox directory until ctx ends.
func (c *Controller) WatchInbox(ctx context.Context, dir string) error {
	w, err := watch.New(dir, func(ctx context.Context, paths []string) {
		n, err := c.AddFiles(ctx, paths)
		if err != nil {
			c.log.Warn("inbox ingest failed", "err", err)
			return
		}
		c.log.Info("inbox ingested", "files", len(paths), "objects", n)
	},
		watch.WithLogger(c.log.With("part", "watch")),
		watch.WithFilter(func(p string) bool { return isBoardFile(p) || ingest.IsImagePath(p) }),
	)
	if err != nil {
		return err
	}
	defer func() { _ = w.Close() }()
	return w.Run(ctx)
}
