/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package clipboard copies, cuts and pastes canvas objects through an
// in-process buffer and marks the OS clipboard so that a later paste event
// can tell internal content from external content.
package clipboard

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/atotto/clipboard"

	"refercanvas/internal/scene"
)

// SentinelMarker is written to the OS clipboard text slot on copy.
const SentinelMarker = "__REFER_EMPTY__"

// DefaultPasteOffset is the screen distance between a copy and its paste.
const DefaultPasteOffset = 20

// System is the OS clipboard text slot.
type System interface {
	ReadText() (string, error)
	WriteText(text string) error
}

// OS is the desktop clipboard.
type OS struct{}

func (OS) ReadText() (string, error)   { return clipboard.ReadAll() }
func (OS) WriteText(text string) error { return clipboard.WriteAll(text) }

// Available reports whether a desktop clipboard can be used.
func Available() bool { return !clipboard.Unsupported }

// Memory is an in-process System used when no desktop clipboard exists.
type Memory struct {
	mu   sync.Mutex
	text string
}

func (m *Memory) ReadText() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.text, nil
}

func (m *Memory) WriteText(text string) error {
	m.mu.Lock()
	m.text = text
	m.mu.Unlock()
	return nil
}

// Canvas is what the controller needs from the scene.
type Canvas interface {
	Add(objs ...*scene.Object)
	ActiveObject() scene.Selection
	SetActiveObject(sel scene.Selection)
	DiscardActiveObject()
	Zoom() float64
}

// Deleter removes objects for Cut.
type Deleter interface {
	DeleteElement(elems ...*scene.Object) int
}

type Option func(*Controller)

// WithOffset sets the paste offset in screen units.
func WithOffset(px float64) Option { return func(c *Controller) { c.offset = px } }

func WithLogger(l *slog.Logger) Option { return func(c *Controller) { c.log = l } }

// Controller holds deep copies of the copied objects.
type Controller struct {
	c      Canvas
	del    Deleter
	sys    System
	offset float64
	log    *slog.Logger

	mu      sync.Mutex
	entries []*scene.Object
}

func New(c Canvas, del Deleter, sys System, opts ...Option) *Controller {
	ctl := &Controller{c: c, del: del, sys: sys, offset: DefaultPasteOffset, log: slog.Default()}
	for _, opt := range opts {
		opt(ctl)
	}
	return ctl
}

// CopyOptions selects what to copy. Nil Elements means the active selection.
// FromSystemEvent marks the OS clipboard with SentinelMarker.
type CopyOptions struct {
	Elements        []*scene.Object
	FromSystemEvent bool
}

func (ctl *Controller) targets(elems []*scene.Object) []*scene.Object {
	if len(elems) > 0 {
		return elems
	}
	if a := ctl.c.ActiveObject(); a != nil {
		return a.Members()
	}
	return nil
}

// Copy replaces the buffer with clones of the targets and returns how many
// were copied. Nothing happens when there is nothing to copy.
func (ctl *Controller) Copy(ctx context.Context, o CopyOptions) (int, error) {
	elems := ctl.targets(o.Elements)
	if len(elems) == 0 {
		return 0, nil
	}
	clones := make([]*scene.Object, len(elems))
	for i, e := range elems {
		clones[i] = e.Clone()
	}
	ctl.mu.Lock()
	ctl.entries = clones
	ctl.mu.Unlock()
	if o.FromSystemEvent && ctl.sys != nil {
		if err := ctx.Err(); err != nil {
			return len(clones), err
		}
		if err := ctl.sys.WriteText(SentinelMarker); err != nil {
			return len(clones), fmt.Errorf("mark system clipboard: %w", err)
		}
	}
	return len(clones), nil
}

// Cut copies the targets and deletes them.
func (ctl *Controller) Cut(ctx context.Context, o CopyOptions) (int, error) {
	elems := ctl.targets(o.Elements)
	o.Elements = elems
	n, err := ctl.Copy(ctx, o)
	if n > 0 {
		ctl.del.DeleteElement(elems...)
	}
	return n, err
}

// Paste adds clones of the buffer offset by the paste offset divided by the
// zoom, and selects them. The buffer itself is never moved, so repeated
// pastes land on the same spot.
func (ctl *Controller) Paste() []*scene.Object {
	ctl.mu.Lock()
	entries := ctl.entries
	ctl.mu.Unlock()
	if len(entries) == 0 {
		return nil
	}
	d := ctl.offset / ctl.c.Zoom()
	out := make([]*scene.Object, len(entries))
	for i, e := range entries {
		n := e.Clone()
		n.Left += d
		n.Top += d
		out[i] = n
	}
	// The buffer is refilled with fresh clones of the entries it pasted
	// from, so the next paste starts at the same origin again.
	fresh := make([]*scene.Object, len(entries))
	for i, e := range entries {
		fresh[i] = e.Clone()
	}
	ctl.mu.Lock()
	if sameEntries(ctl.entries, entries) {
		ctl.entries = fresh
	}
	ctl.mu.Unlock()

	ctl.c.DiscardActiveObject()
	ctl.c.Add(out...)
	if len(out) == 1 {
		ctl.c.SetActiveObject(out[0])
	} else {
		ctl.c.SetActiveObject(scene.NewActiveSelection(out...))
	}
	ctl.log.Debug("pasted", "count", len(out), "offset", d)
	return out
}

func sameEntries(a, b []*scene.Object) bool {
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

// Len is the number of buffered objects.
func (ctl *Controller) Len() int {
	ctl.mu.Lock()
	defer ctl.mu.Unlock()
	return len(ctl.entries)
}

// IsInternal reports whether OS clipboard text is the copy marker.
func IsInternal(text string) bool { return text == SentinelMarker }

// SystemHoldsInternal reads the OS clipboard and reports whether it still
// holds the marker of the last internal copy.
func (ctl *Controller) SystemHoldsInternal() bool {
	if ctl.sys == nil {
		return false
	}
	text, err := ctl.sys.ReadText()
	if err != nil {
		ctl.log.Debug("read system clipboard", "err", err)
		return false
	}
	return IsInternal(text)
}
