/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package history keeps snapshot-based undo and redo stacks for a canvas.
// Snapshots are full dataless serializations, captured when a tracked
// mutation event arrives and replayed by reloading the scene.
package history

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"refercanvas/internal/events"
)

// DefaultMaxSize bounds each stack.
const DefaultMaxSize = 30

// ErrReplaying is returned by Save while a snapshot is being loaded.
var ErrReplaying = errors.New("history: replay in progress")

// ExtraProps are serialized even when they hold their default value.
var ExtraProps = []string{"selectable", "editable"}

// State of the replay state machine.
type State int

const (
	StateIdle State = iota
	StateReplaying
)

func (s State) String() string {
	if s == StateReplaying {
		return "replaying"
	}
	return "idle"
}

// Snapshot is one serialized scene.
type Snapshot struct {
	State string
	TS    time.Time
}

// Loader serializes and restores the scene.
type Loader interface {
	ToDatalessJSON(extra ...string) (string, error)
	LoadFromJSON(data string) error
}

type Config struct {
	// MaxSize caps both stacks; the oldest entries are evicted first.
	MaxSize int
	// TrackScaling also records scale events.
	TrackScaling bool
}

// Manager records scene states and replays them. It is safe for concurrent
// use; the scene is loaded without holding the lock so that mutation events
// raised by the load reach Observe and are dropped there.
type Manager struct {
	cfg   Config
	scene Loader
	bus   *events.Bus
	log   *slog.Logger
	now   func() time.Time

	mu     sync.Mutex
	undo   []Snapshot
	redo   []Snapshot
	next   string
	state  State
	paused bool
	unsub  func()
}

type Option func(*Manager)

func WithLogger(l *slog.Logger) Option { return func(m *Manager) { m.log = l } }

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option { return func(m *Manager) { m.now = now } }

// New creates a manager for scene. With a bus it subscribes to the tracked
// mutation events and publishes history events.
func New(scene Loader, bus *events.Bus, cfg Config, opts ...Option) *Manager {
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = DefaultMaxSize
	}
	m := &Manager{cfg: cfg, scene: scene, bus: bus, log: slog.Default(), now: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	if bus != nil {
		kinds := []events.Kind{events.KindObjectAdded, events.KindObjectRemoved, events.KindObjectModified, events.KindObjectRotated}
		if cfg.TrackScaling {
			kinds = append(kinds, events.KindObjectScaled)
		}
		m.unsub = bus.SubscribeKind(func(e events.Event) { m.Observe(e.Kind()) }, kinds...)
	}
	return m
}

// Close stops listening to the bus.
func (m *Manager) Close() {
	if m.unsub != nil {
		m.unsub()
	}
}

func (m *Manager) serialize() (string, error) {
	s, err := m.scene.ToDatalessJSON(ExtraProps...)
	if err != nil {
		return "", fmt.Errorf("history: serialize: %w", err)
	}
	return s, nil
}

// Init drops both stacks and captures the current scene as the next state.
func (m *Manager) Init() error {
	s, err := m.serialize()
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.undo, m.redo = nil, nil
	m.next = s
	m.state = StateIdle
	m.mu.Unlock()
	return nil
}

// Observe records the state preceding a tracked mutation. It is a no-op
// while replaying or paused.
func (m *Manager) Observe(kind events.Kind) {
	m.mu.Lock()
	if m.state == StateReplaying || m.paused {
		m.mu.Unlock()
		return
	}
	appended, n, err := m.recordLocked()
	m.mu.Unlock()
	if err != nil {
		m.log.Warn("history capture failed", "event", kind.String(), "err", err)
		return
	}
	if appended {
		m.bus.Publish(events.HistoryAppend{UndoLen: n})
	}
}

// Save records the current state explicitly.
func (m *Manager) Save() error {
	m.mu.Lock()
	if m.state == StateReplaying {
		m.mu.Unlock()
		return ErrReplaying
	}
	appended, n, err := m.recordLocked()
	m.mu.Unlock()
	if err != nil {
		return err
	}
	if appended {
		m.bus.Publish(events.HistoryAppend{UndoLen: n})
	}
	return nil
}

func (m *Manager) recordLocked() (bool, int, error) {
	prev := m.next
	if n := len(m.undo); n > 0 && m.undo[n-1].State == prev {
		s, err := m.serialize()
		if err != nil {
			return false, 0, err
		}
		m.next = s
		return false, n, nil
	}
	cur, err := m.serialize()
	if err != nil {
		return false, 0, err
	}
	if cur == prev {
		// several events for one change
		return false, len(m.undo), nil
	}
	m.undo = pushCapped(m.undo, Snapshot{State: prev, TS: m.now()}, m.cfg.MaxSize)
	m.redo = nil
	m.next = cur
	return true, len(m.undo), nil
}

func pushCapped(stack []Snapshot, s Snapshot, max int) []Snapshot {
	stack = append(stack, s)
	if over := len(stack) - max; over > 0 {
		stack = append([]Snapshot(nil), stack[over:]...)
	}
	return stack
}

// Undo restores the previous state. It does nothing when there is nothing to
// undo or a replay is in progress.
func (m *Manager) Undo() error { return m.replay(true) }

// Redo re-applies the last undone state.
func (m *Manager) Redo() error { return m.replay(false) }

func (m *Manager) replay(undo bool) error {
	m.mu.Lock()
	from, to := &m.undo, &m.redo
	if !undo {
		from, to = &m.redo, &m.undo
	}
	if len(*from) == 0 || m.state == StateReplaying {
		m.mu.Unlock()
		return nil
	}
	cur, err := m.serialize()
	if err != nil {
		m.mu.Unlock()
		return err
	}
	snap := (*from)[len(*from)-1]
	*from = (*from)[:len(*from)-1]
	savedTo := append([]Snapshot(nil), (*to)...)
	*to = pushCapped(*to, Snapshot{State: cur, TS: m.now()}, m.cfg.MaxSize)
	m.state = StateReplaying
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.state = StateIdle
		m.mu.Unlock()
	}()

	if err := m.scene.LoadFromJSON(snap.State); err != nil {
		m.mu.Lock()
		*from = append(*from, snap)
		*to = savedTo
		m.mu.Unlock()
		m.log.Error("history replay failed", "undo", undo, "err", err)
		return fmt.Errorf("history: load snapshot: %w", err)
	}
	if undo {
		m.bus.Publish(events.HistoryUndo{State: snap.State})
	} else {
		m.bus.Publish(events.HistoryRedo{State: snap.State})
	}
	next, err := m.serialize()
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.next = next
	m.mu.Unlock()
	return nil
}

func (m *Manager) CanUndo() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.undo) > 0
}

func (m *Manager) CanRedo() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.redo) > 0
}

// Clear empties both stacks and publishes HistoryClear.
func (m *Manager) Clear() {
	m.mu.Lock()
	m.undo, m.redo = nil, nil
	m.mu.Unlock()
	m.bus.Publish(events.HistoryClear{})
}

// SetMaxSize changes the cap and trims both stacks to it.
func (m *Manager) SetMaxSize(n int) {
	if n <= 0 {
		n = DefaultMaxSize
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cfg.MaxSize = n
	if over := len(m.undo) - n; over > 0 {
		m.undo = append([]Snapshot(nil), m.undo[over:]...)
	}
	if over := len(m.redo) - n; over > 0 {
		m.redo = append([]Snapshot(nil), m.redo[over:]...)
	}
}

// Pause stops recording until Resume.
func (m *Manager) Pause() {
	m.mu.Lock()
	m.paused = true
	m.mu.Unlock()
}

// Resume re-enables recording and records the current state.
func (m *Manager) Resume() error {
	m.mu.Lock()
	m.paused = false
	m.mu.Unlock()
	return m.Save()
}

func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Stats returns the stack depths.
func (m *Manager) Stats() (undo, redo int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.undo), len(m.redo)
}
