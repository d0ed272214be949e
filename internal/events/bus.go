/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package events is the typed event bus connecting the canvas to its
// controllers. The set of events is closed: every variant is declared here.
package events

import (
	"sync"
	"time"

	"refercanvas/internal/scene"
)

// Kind names an event variant.
type Kind int

const (
	KindObjectAdded Kind = iota + 1
	KindObjectRemoved
	KindObjectModified
	KindObjectRotated
	KindObjectScaled
	KindSelectionChanged
	KindSelectionCleared
	KindViewChanged
	KindTextEditEntered
	KindTextEditExited
	KindHistoryAppend
	KindHistoryUndo
	KindHistoryRedo
	KindHistoryClear
	KindDocumentSaved
	KindAutosaveStatus
)

var kindNames = map[Kind]string{
	KindObjectAdded:      "object:added",
	KindObjectRemoved:    "object:removed",
	KindObjectModified:   "object:modified",
	KindObjectRotated:    "object:rotated",
	KindObjectScaled:     "object:scaled",
	KindSelectionChanged: "selection:changed",
	KindSelectionCleared: "selection:cleared",
	KindViewChanged:      "view:changed",
	KindTextEditEntered:  "text:editing:entered",
	KindTextEditExited:   "text:editing:exited",
	KindHistoryAppend:    "history:append",
	KindHistoryUndo:      "history:undo",
	KindHistoryRedo:      "history:redo",
	KindHistoryClear:     "history:clear",
	KindDocumentSaved:    "document:saved",
	KindAutosaveStatus:   "autosave:status",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown"
}

// Event is implemented only by the variants in this package.
type Event interface {
	Kind() Kind
	isEvent()
}

type ObjectAdded struct{ Target *scene.Object }
type ObjectRemoved struct{ Target *scene.Object }
type ObjectModified struct{ Target *scene.Object }
type ObjectRotated struct{ Target *scene.Object }
type ObjectScaled struct{ Target *scene.Object }

// SelectionChanged carries the new active selection.
type SelectionChanged struct{ Selection scene.Selection }
type SelectionCleared struct{}

// ViewChanged reports the viewport after a zoom or pan.
type ViewChanged struct {
	Zoom float64
	Pan  scene.Pt
}

type TextEditEntered struct{ Target *scene.Object }
type TextEditExited struct{ Target *scene.Object }

// HistoryAppend reports the undo depth after a push.
type HistoryAppend struct{ UndoLen int }
type HistoryUndo struct{ State string }
type HistoryRedo struct{ State string }
type HistoryClear struct{}

// DocumentSaved is published after a document reaches the store.
type DocumentSaved struct {
	FileID string
	Title  string
	At     time.Time
}

// AutosaveStatus mirrors the autosave manager state.
type AutosaveStatus struct {
	IsSaving       bool
	LastSaveTime   time.Time
	ErrorCount     int
	PendingChanges bool
	Err            error
}

func (ObjectAdded) Kind() Kind      { return KindObjectAdded }
func (ObjectRemoved) Kind() Kind    { return KindObjectRemoved }
func (ObjectModified) Kind() Kind   { return KindObjectModified }
func (ObjectRotated) Kind() Kind    { return KindObjectRotated }
func (ObjectScaled) Kind() Kind     { return KindObjectScaled }
func (SelectionChanged) Kind() Kind { return KindSelectionChanged }
func (SelectionCleared) Kind() Kind { return KindSelectionCleared }
func (ViewChanged) Kind() Kind      { return KindViewChanged }
func (TextEditEntered) Kind() Kind  { return KindTextEditEntered }
func (TextEditExited) Kind() Kind   { return KindTextEditExited }
func (HistoryAppend) Kind() Kind    { return KindHistoryAppend }
func (HistoryUndo) Kind() Kind      { return KindHistoryUndo }
func (HistoryRedo) Kind() Kind      { return KindHistoryRedo }
func (HistoryClear) Kind() Kind     { return KindHistoryClear }
func (DocumentSaved) Kind() Kind    { return KindDocumentSaved }
func (AutosaveStatus) Kind() Kind   { return KindAutosaveStatus }

func (ObjectAdded) isEvent()      {}
func (ObjectRemoved) isEvent()    {}
func (ObjectModified) isEvent()   {}
func (ObjectRotated) isEvent()    {}
func (ObjectScaled) isEvent()     {}
func (SelectionChanged) isEvent() {}
func (SelectionCleared) isEvent() {}
func (ViewChanged) isEvent()      {}
func (TextEditEntered) isEvent()  {}
func (TextEditExited) isEvent()   {}
func (HistoryAppend) isEvent()    {}
func (HistoryUndo) isEvent()      {}
func (HistoryRedo) isEvent()      {}
func (HistoryClear) isEvent()     {}
func (DocumentSaved) isEvent()    {}
func (AutosaveStatus) isEvent()   {}

// Handler receives published events.
type Handler func(Event)

type subscription struct {
	id    uint64
	kinds map[Kind]bool // nil means all
	h     Handler
}

// Bus delivers events synchronously, in subscription order, on the
// publisher's goroutine. Handlers may publish and (un)subscribe.
type Bus struct {
	mu     sync.RWMutex
	nextID uint64
	subs   []subscription
}

func NewBus() *Bus { return &Bus{} }

// Subscribe registers h for every event and returns its unsubscribe func.
func (b *Bus) Subscribe(h Handler) func() {
	return b.add(nil, h)
}

// SubscribeKind registers h for the listed kinds only.
func (b *Bus) SubscribeKind(h Handler, kinds ...Kind) func() {
	set := make(map[Kind]bool, len(kinds))
	for _, k := range kinds {
		set[k] = true
	}
	return b.add(set, h)
}

func (b *Bus) add(kinds map[Kind]bool, h Handler) func() {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subs = append(b.subs, subscription{id: id, kinds: kinds, h: h})
	b.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			for i, s := range b.subs {
				if s.id == id {
					b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
					return
				}
			}
		})
	}
}

// Publish delivers e to the matching handlers. A nil bus drops the event.
func (b *Bus) Publish(e Event) {
	if b == nil || e == nil {
		return
	}
	b.mu.RLock()
	subs := append([]subscription(nil), b.subs...)
	b.mu.RUnlock()
	for _, s := range subs {
		if s.kinds != nil && !s.kinds[e.Kind()] {
			continue
		}
		s.h(e)
	}
}

// SceneObserver adapts canvas mutations into bus events.
func SceneObserver(b *Bus) scene.Observer {
	return func(m scene.Mutation) {
		switch m.Kind {
		case scene.ObjectAdded:
			b.Publish(ObjectAdded{Target: m.Target})
		case scene.ObjectRemoved:
			b.Publish(ObjectRemoved{Target: m.Target})
		case scene.ObjectModified:
			b.Publish(ObjectModified{Target: m.Target})
		case scene.ObjectRotated:
			b.Publish(ObjectRotated{Target: m.Target})
		case scene.ObjectScaled:
			b.Publish(ObjectScaled{Target: m.Target})
		case scene.SelectionSet:
			b.Publish(SelectionChanged{Selection: m.Selection})
		case scene.SelectionCleared:
			b.Publish(SelectionCleared{})
		}
	}
}
