/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package watch feeds files dropped into an inbox directory to a handler.
package watch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/fsnotify/fsnotify"

	applog "refercanvas/internal/log"
)

// DefaultDebounce is the quiet period before a batch is delivered.
const DefaultDebounce = 500 * time.Millisecond

// Handler receives a batch of settled files, sorted by path.
type Handler func(ctx context.Context, paths []string)

type Option func(*Watcher)

func WithDebounce(d time.Duration) Option { return func(w *Watcher) { w.debounce = d } }
func WithLogger(l *slog.Logger) Option { return func(w *Watcher) { w.log = l } }

// WithFilter restricts delivered files. The default accepts everything.
func WithFilter(f func(path string) bool) Option { return func(w *Watcher) { w.accept = f } }

// Watcher debounces create and write events of one directory.
type Watcher struct {
	dir      string
	handle   Handler
	debounce time.Duration
	accept   func(string) bool
	log      *slog.Logger
	fw       *fsnotify.Watcher
}

// New starts watching dir, creating it when missing.
func New(dir string, h Handler, opts ...Option) (*Watcher, error) {
	if h == nil {
		return nil, errors.New("watch: handler is required")
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("watch: bad path %q: %w", dir, err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("watch: create inbox: %w", err)
	}
	w := &Watcher{
		dir:      abs,
		handle:   h,
		debounce: DefaultDebounce,
		accept:   func(string) bool { return true },
		log:      applog.WithComponent("watch"),
	}
	for _, opt := range opts {
		opt(w)
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watch: create watcher: %w", err)
	}
	if err := fw.Add(abs); err != nil {
		_ = fw.Close()
		return nil, fmt.Errorf("watch: add %q: %w", abs, err)
	}
	w.fw = fw
	return w, nil
}

// Dir returns the watched directory.
func (w *Watcher) Dir() string { return w.dir }

// Run delivers batches until ctx is done or the watcher is closed. Pending
// files are dropped on cancellation.
func (w *Watcher) Run(ctx context.Context) error {
	l := applog.WithOperation(w.log, "run").With(slog.String("dir", w.dir))
	l.Info("watching inbox")
	pending := map[string]bool{}
	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-w.fw.Events:
			if !ok {
				return nil
			}
			if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
				continue
			}
			if !w.accept(ev.Name) {
				continue
			}
			if fi, err := os.Stat(ev.Name); err != nil || fi.IsDir() {
				continue
			}
			pending[ev.Name] = true
			timer.Reset(w.debounce)
		case <-timer.C:
			if len(pending) == 0 {
				continue
			}
			batch := make([]string, 0, len(pending))
			for p := range pending {
				batch = append(batch, p)
			}
			sort.Strings(batch)
			clear(pending)
			l.Debug("inbox batch", slog.Int("files", len(batch)))
			w.handle(ctx, batch)
		case err, ok := <-w.fw.Errors:
			if !ok {
				return nil
			}
			l.Warn("watcher error", slog.Any("err", err))
		}
	}
}

func (w *Watcher) Close() error { return w.fw.Close() }
