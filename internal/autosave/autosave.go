/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package autosave coalesces change notifications into throttled saves with
// bounded retry.
package autosave

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"refercanvas/internal/events"
	applog "refercanvas/internal/log"
)

// Defaults.
const (
	DefaultThrottle   = 5 * time.Second
	DefaultMaxRetries = 3
	DefaultRetryDelay = time.Second
)

// SaveFunc persists the current document and returns its file id.
type SaveFunc func(ctx context.Context) (string, error)

// State is a snapshot of the manager.
type State struct {
	IsSaving       bool
	LastSaveTime   time.Time
	ErrorCount     int
	PendingChanges bool
}

type Config struct {
	Throttle   time.Duration
	MaxRetries int
	RetryDelay time.Duration
}

// Timer is the subset of *time.Timer the manager needs.
type Timer interface{ Stop() bool }

// AfterFunc schedules f after d.
type AfterFunc func(d time.Duration, f func()) Timer

func realAfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }

type Option func(*Manager)

func WithBus(b *events.Bus) Option { return func(m *Manager) { m.bus = b } }
func WithLogger(l *slog.Logger) Option { return func(m *Manager) { m.log = l } }
func WithScheduler(af AfterFunc) Option { return func(m *Manager) { m.after = af } }
func WithClock(now func() time.Time) Option { return func(m *Manager) { m.now = now } }

// OnSuccess is called with the file id after every successful save.
func OnSuccess(f func(fileID string)) Option { return func(m *Manager) { m.onSuccess = f } }

// OnError is called once the retries for a failing save are exhausted.
func OnError(f func(error)) Option { return func(m *Manager) { m.onError = f } }

// Manager runs save at most once per throttle window, on the trailing edge.
// A failing save is retried after RetryDelay while ErrorCount <= MaxRetries.
type Manager struct {
	cfg       Config
	save      SaveFunc
	bus       *events.Bus
	log       *slog.Logger
	after     AfterFunc
	now       func() time.Time
	onSuccess func(string)
	onError   func(error)

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	st       State
	throttle Timer
	retry    Timer
	closed   bool
}

// New creates a manager. Zero config fields take the defaults.
func New(save SaveFunc, cfg Config, opts ...Option) *Manager {
	if cfg.Throttle <= 0 {
		cfg.Throttle = DefaultThrottle
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = DefaultRetryDelay
	}
	m := &Manager{
		cfg:   cfg,
		save:  save,
		log:   applog.WithComponent("autosave"),
		after: realAfterFunc,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.ctx, m.cancel = context.WithCancel(context.Background())
	return m
}

// Save marks the document dirty and schedules a trailing save unless one is
// already scheduled.
func (m *Manager) Save() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.st.PendingChanges = true
	if m.throttle == nil {
		m.throttle = m.after(m.cfg.Throttle, m.fire)
	}
	st := m.st
	m.mu.Unlock()
	m.publish(st, nil)
}

func (m *Manager) fire() {
	m.mu.Lock()
	m.throttle = nil
	m.mu.Unlock()
	_ = m.perform(m.ctx)
}

// ForceSave cancels the pending throttled save and saves immediately.
func (m *Manager) ForceSave(ctx context.Context) error {
	m.mu.Lock()
	if m.throttle != nil {
		m.throttle.Stop()
		m.throttle = nil
	}
	m.mu.Unlock()
	return m.perform(ctx)
}

func (m *Manager) perform(ctx context.Context) error {
	m.mu.Lock()
	if m.st.IsSaving || m.closed {
		m.mu.Unlock()
		return nil
	}
	m.st.IsSaving = true
	m.st.PendingChanges = false
	st := m.st
	m.mu.Unlock()
	m.publish(st, nil)

	fileID, err := m.save(ctx)

	m.mu.Lock()
	m.st.IsSaving = false
	var exhausted bool
	if err == nil {
		m.st.LastSaveTime = m.now()
		m.st.ErrorCount = 0
	} else {
		m.st.ErrorCount++
		if m.st.ErrorCount <= m.cfg.MaxRetries && !m.closed {
			m.retry = m.after(m.cfg.RetryDelay, m.retryFire)
		} else {
			exhausted = true
		}
	}
	st = m.st
	m.mu.Unlock()

	l := applog.WithOperation(m.log, "save")
	switch {
	case err == nil:
		l.Debug("autosaved", slog.String("file_id", fileID))
		if m.onSuccess != nil {
			m.onSuccess(fileID)
		}
	case exhausted:
		l.Error("autosave failed", slog.Int("attempts", st.ErrorCount), slog.Any("err", err))
		if m.onError != nil {
			m.onError(err)
		}
	default:
		l.Warn("autosave failed, retrying", slog.Int("attempt", st.ErrorCount), slog.Any("err", err))
	}
	m.publish(st, err)
	return err
}

func (m *Manager) retryFire() {
	m.mu.Lock()
	m.retry = nil
	m.mu.Unlock()
	_ = m.perform(m.ctx)
}

func (m *Manager) publish(st State, err error) {
	m.bus.Publish(events.AutosaveStatus{
		IsSaving:       st.IsSaving,
		LastSaveTime:   st.LastSaveTime,
		ErrorCount:     st.ErrorCount,
		PendingChanges: st.PendingChanges,
		Err:            err,
	})
}

// State returns a copy of the current state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st
}

// Reset clears the state and cancels scheduled saves and retries.
func (m *Manager) Reset() {
	m.mu.Lock()
	m.stopLocked()
	m.st = State{}
	m.mu.Unlock()
}

func (m *Manager) stopLocked() {
	if m.throttle != nil {
		m.throttle.Stop()
		m.throttle = nil
	}
	if m.retry != nil {
		m.retry.Stop()
		m.retry = nil
	}
}

// Close resets the manager and ignores further calls. A save in flight sees
// its context cancelled.
func (m *Manager) Close() {
	m.mu.Lock()
	m.stopLocked()
	m.st = State{}
	m.closed = true
	m.mu.Unlock()
	m.cancel()
}
