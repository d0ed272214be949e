/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package autosave

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"refercanvas/internal/events"
)

// fakeSched collects scheduled callbacks; tests run them with fire.
type fakeSched struct {
	mu    sync.Mutex
	tasks []*fakeTimer
}

type fakeTimer struct {
	d       time.Duration
	f       func()
	stopped bool
}

func (t *fakeTimer) Stop() bool {
	was := !t.stopped
	t.stopped = true
	return was
}

func (s *fakeSched) after(d time.Duration, f func()) Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &fakeTimer{d: d, f: f}
	s.tasks = append(s.tasks, t)
	return t
}

// live returns the scheduled timers that were not stopped or fired.
func (s *fakeSched) live() []*fakeTimer {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*fakeTimer
	for _, t := range s.tasks {
		if !t.stopped {
			out = append(out, t)
		}
	}
	return out
}

// fire runs the oldest live timer and reports its delay.
func (s *fakeSched) fire(t *testing.T) time.Duration {
	t.Helper()
	live := s.live()
	if len(live) == 0 {
		t.Fatalf("no scheduled task")
	}
	tm := live[0]
	tm.stopped = true
	tm.f()
	return tm.d
}

type saver struct {
	mu    sync.Mutex
	calls int
	fail  int
}

func (s *saver) save(context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.calls <= s.fail {
		return "", errors.New("disk full")
	}
	return "file-1", nil
}

func TestSaveIsThrottledTrailing(t *testing.T) {
	sched := &fakeSched{}
	sv := &saver{}
	m := New(sv.save, Config{Throttle: 5 * time.Second}, WithScheduler(sched.after))
	for i := 0; i < 10; i++ {
		m.Save()
	}
	if sv.calls != 0 {
		t.Fatalf("save ran on the leading edge")
	}
	if n := len(sched.live()); n != 1 {
		t.Fatalf("scheduled %d saves, want 1", n)
	}
	if !m.State().PendingChanges {
		t.Fatalf("pending flag not set")
	}
	if d := sched.fire(t); d != 5*time.Second {
		t.Fatalf("throttle delay = %v", d)
	}
	if sv.calls != 1 {
		t.Fatalf("calls = %d, want 1", sv.calls)
	}
	st := m.State()
	if st.PendingChanges || st.IsSaving || st.LastSaveTime.IsZero() {
		t.Fatalf("state after save = %+v", st)
	}
	// A new change opens a new window.
	m.Save()
	sched.fire(t)
	if sv.calls != 2 {
		t.Fatalf("calls = %d, want 2", sv.calls)
	}
}

func TestRetriesAreBoundedAndReportError(t *testing.T) {
	sched := &fakeSched{}
	sv := &saver{fail: 100}
	var reported error
	m := New(sv.save, Config{Throttle: time.Second, MaxRetries: 3, RetryDelay: time.Second},
		WithScheduler(sched.after), OnError(func(err error) { reported = err }))
	m.Save()
	sched.fire(t)
	for i := 0; i < 3; i++ {
		if reported != nil {
			t.Fatalf("error reported after %d attempts", i+1)
		}
		sched.fire(t)
	}
	if sv.calls != 4 {
		t.Fatalf("attempts = %d, want 4", sv.calls)
	}
	if reported == nil {
		t.Fatalf("OnError not called")
	}
	if n := len(sched.live()); n != 0 {
		t.Fatalf("retry scheduled after exhaustion")
	}
	if got := m.State().ErrorCount; got != 4 {
		t.Fatalf("ErrorCount = %d", got)
	}
}

func TestSuccessResetsErrorCount(t *testing.T) {
	sched := &fakeSched{}
	sv := &saver{fail: 1}
	var ids []string
	m := New(sv.save, Config{}, WithScheduler(sched.after), OnSuccess(func(id string) { ids = append(ids, id) }))
	m.Save()
	sched.fire(t)
	if m.State().ErrorCount != 1 {
		t.Fatalf("ErrorCount after failure = %d", m.State().ErrorCount)
	}
	if d := sched.fire(t); d != DefaultRetryDelay {
		t.Fatalf("retry delay = %v", d)
	}
	if m.State().ErrorCount != 0 || len(ids) != 1 || ids[0] != "file-1" {
		t.Fatalf("state = %+v ids = %v", m.State(), ids)
	}
}

func TestForceSaveCancelsThrottle(t *testing.T) {
	sched := &fakeSched{}
	sv := &saver{}
	bus := events.NewBus()
	rec := events.Record(bus)
	m := New(sv.save, Config{}, WithScheduler(sched.after), WithBus(bus))
	m.Save()
	if err := m.ForceSave(context.Background()); err != nil {
		t.Fatalf("ForceSave: %v", err)
	}
	if sv.calls != 1 || len(sched.live()) != 0 {
		t.Fatalf("calls = %d live = %d", sv.calls, len(sched.live()))
	}
	if rec.Count(events.KindAutosaveStatus) < 3 {
		t.Fatalf("status events = %v", rec.Kinds())
	}
}

func TestResetAndClose(t *testing.T) {
	sched := &fakeSched{}
	sv := &saver{}
	m := New(sv.save, Config{}, WithScheduler(sched.after))
	m.Save()
	m.Reset()
	if st := m.State(); st != (State{}) {
		t.Fatalf("state after reset = %+v", st)
	}
	if len(sched.live()) != 0 {
		t.Fatalf("throttle not cancelled")
	}
	m.Close()
	m.Save()
	if len(sched.live()) != 0 {
		t.Fatalf("save scheduled after close")
	}
	if err := m.ForceSave(context.Background()); err != nil || sv.calls != 0 {
		t.Fatalf("ForceSave after close = %v calls %d", err, sv.calls)
	}
}
