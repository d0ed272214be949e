/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package watch

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestBatchesAreDebounced(t *testing.T) {
	dir := t.TempDir()
	var mu sync.Mutex
	var batches [][]string
	done := make(chan struct{}, 4)
	w, err := New(dir, func(_ context.Context, paths []string) {
		mu.Lock()
		batches = append(batches, paths)
		mu.Unlock()
		done <- struct{}{}
	}, WithDebounce(150*time.Millisecond), WithFilter(func(p string) bool {
		return strings.HasSuffix(p, ".png")
	}))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer func() { _ = w.Close() }()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Run(ctx) }()

	for _, name := range []string{"b.png", "a.png", "skip.txt"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("no batch delivered")
	}
	mu.Lock()
	defer mu.Unlock()
	if len(batches) != 1 {
		t.Fatalf("batches = %v", batches)
	}
	got := batches[0]
	if len(got) != 2 || filepath.Base(got[0]) != "a.png" || filepath.Base(got[1]) != "b.png" {
		t.Fatalf("batch = %v", got)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	w, err := New(filepath.Join(t.TempDir(), "inbox"), func(context.Context, []string) {})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer func() { _ = w.Close() }()
	if _, err := os.Stat(w.Dir()); err != nil {
		t.Fatalf("inbox not created: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- w.Run(ctx) }()
	cancel()
	select {
	case err := <-errc:
		if err != context.Canceled {
			t.Fatalf("Run = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Run did not return")
	}
}

func TestNewRequiresHandler(t *testing.T) {
	if _, err := New(t.TempDir(), nil); err == nil {
		t.Fatalf("expected error")
	}
}
