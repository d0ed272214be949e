/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "data", DatabaseFileName))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// stepClock returns a clock that advances one second per call.
func stepClock(start time.Time) func() time.Time {
	cur := start
	return func() time.Time {
		cur = cur.Add(time.Second)
		return cur
	}
}

const boardA = `{"version":"refer/1","objects":[{"type":"text","left":1,"top":2,"text":"a kitten on a wall"}]}`
const boardB = `{"version":"refer/1","objects":[{"type":"rect","left":5,"top":5,"width":10,"height":10}]}`

func TestOpenMigratesToCurrentSchema(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()
	v, err := s.SchemaVersion(ctx)
	if err != nil {
		t.Fatalf("SchemaVersion: %v", err)
	}
	if v != schemaVersion {
		t.Fatalf("schema = %d, want %d", v, schemaVersion)
	}
	if err := s.QuickCheck(ctx); err != nil {
		t.Fatalf("QuickCheck: %v", err)
	}
	// Reopen is idempotent.
	path := s.Path()
	_ = s.Close()
	s2, err := Open(ctx, path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer func() { _ = s2.Close() }()
	if v, _ := s2.SchemaVersion(ctx); v != schemaVersion {
		t.Fatalf("schema after reopen = %d", v)
	}
}

func TestOpenRequiresPath(t *testing.T) {
	if _, err := Open(context.Background(), "  "); err == nil {
		t.Fatalf("expected error for empty path")
	}
}

func TestCreateGetLatestList(t *testing.T) {
	s := openTemp(t)
	s.now = stepClock(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))
	ctx := context.Background()

	if _, err := s.Latest(ctx); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Latest on empty store: %v", err)
	}
	a, err := s.Create(ctx, "", boardA)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if !strings.HasPrefix(a.Title, "Refer_") {
		t.Fatalf("default title = %q", a.Title)
	}
	b, err := s.Create(ctx, "  Moodboard ", boardB)
	if err != nil {
		t.Fatalf("Create b: %v", err)
	}
	if b.Title != "Moodboard" {
		t.Fatalf("title = %q", b.Title)
	}

	got, err := s.Get(ctx, a.FileID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Content != boardA || got.Hash != a.Hash {
		t.Fatalf("Get returned %+v", got)
	}
	latest, err := s.Latest(ctx)
	if err != nil || latest.FileID != b.FileID {
		t.Fatalf("Latest = %v, %v; want b", latest.FileID, err)
	}

	// Touching a makes it the latest.
	if _, err := s.Update(ctx, a.FileID, boardB); err != nil {
		t.Fatalf("Update: %v", err)
	}
	latest, _ = s.Latest(ctx)
	if latest.FileID != a.FileID {
		t.Fatalf("Latest after update = %s", latest.FileID)
	}
	list, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 2 || list[0].FileID != a.FileID || list[0].Content != "" {
		t.Fatalf("List = %+v", list)
	}
	if n, _ := s.Count(ctx); n != 2 {
		t.Fatalf("Count = %d", n)
	}
	if _, err := s.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get missing: %v", err)
	}
}

func TestUpdateSkipsUnchangedAndKeepsRevision(t *testing.T) {
	s := openTemp(t)
	s.now = stepClock(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))
	ctx := context.Background()
	d, _ := s.Create(ctx, "x", boardA)

	changed, err := s.Update(ctx, d.FileID, boardA)
	if err != nil || changed {
		t.Fatalf("Update same content = %v, %v", changed, err)
	}
	changed, err = s.Update(ctx, d.FileID, boardB)
	if err != nil || !changed {
		t.Fatalf("Update new content = %v, %v", changed, err)
	}
	revs, err := s.ListRevisions(ctx, d.FileID)
	if err != nil {
		t.Fatalf("ListRevisions: %v", err)
	}
	if len(revs) != 1 || revs[0].Content != boardA {
		t.Fatalf("revisions = %+v", revs)
	}
	r, err := s.GetRevision(ctx, revs[0].ID)
	if err != nil || r.FileID != d.FileID {
		t.Fatalf("GetRevision = %+v, %v", r, err)
	}
	if _, err := s.Update(ctx, "missing", boardA); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Update missing: %v", err)
	}
}

func TestRenameAndDelete(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()
	d, _ := s.Create(ctx, "old", boardA)
	if err := s.Rename(ctx, d.FileID, " "); err == nil {
		t.Fatalf("expected error for blank title")
	}
	if err := s.Rename(ctx, d.FileID, "new"); err != nil {
		t.Fatalf("Rename: %v", err)
	}
	got, _ := s.Get(ctx, d.FileID)
	if got.Title != "new" {
		t.Fatalf("title = %q", got.Title)
	}
	if err := s.Rename(ctx, "missing", "t"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Rename missing: %v", err)
	}
	_, _ = s.AddRevision(ctx, d.FileID, boardB)
	_ = s.PutThumbnail(ctx, Thumbnail{FileID: d.FileID, W: 1, H: 1, PNG: []byte{1}})
	if err := s.Delete(ctx, d.FileID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Get(ctx, d.FileID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get after delete: %v", err)
	}
	if revs, _ := s.ListRevisions(ctx, d.FileID); len(revs) != 0 {
		t.Fatalf("revisions survived delete: %d", len(revs))
	}
	if _, err := s.GetThumbnail(ctx, d.FileID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("thumbnail survived delete: %v", err)
	}
	if err := s.Delete(ctx, d.FileID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second Delete: %v", err)
	}
}

func TestPruneRevisionsKeepsNewestPerDocument(t *testing.T) {
	s := openTemp(t)
	s.now = stepClock(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))
	ctx := context.Background()
	a, _ := s.Create(ctx, "a", boardA)
	b, _ := s.Create(ctx, "b", boardA)
	for i := 0; i < 5; i++ {
		_, _ = s.AddRevision(ctx, a.FileID, boardA)
	}
	_, _ = s.AddRevision(ctx, b.FileID, boardB)
	last, _ := s.AddRevision(ctx, a.FileID, boardB)

	n, err := s.PruneRevisions(ctx, 2)
	if err != nil {
		t.Fatalf("PruneRevisions: %v", err)
	}
	if n != 4 {
		t.Fatalf("removed = %d, want 4", n)
	}
	revs, _ := s.ListRevisions(ctx, a.FileID)
	if len(revs) != 2 || revs[0].ID != last {
		t.Fatalf("a revisions = %+v", revs)
	}
	if revs, _ := s.ListRevisions(ctx, b.FileID); len(revs) != 1 {
		t.Fatalf("b revisions = %d", len(revs))
	}
	if n, _ := s.PruneRevisions(ctx, 0); n != 0 {
		t.Fatalf("keep 0 pruned %d", n)
	}
}

func TestSearchMatchesTitleAndText(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()
	a, _ := s.Create(ctx, "Cats", boardA)
	_, _ = s.Create(ctx, "Buildings", boardB)

	res, err := s.Search(ctx, SearchQuery{Text: "kitten"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(res) != 1 || res[0].FileID != a.FileID {
		t.Fatalf("Search kitten = %+v", res)
	}
	if !strings.Contains(res[0].Snippet, "[kitten]") {
		t.Fatalf("snippet = %q", res[0].Snippet)
	}
	res, _ = s.Search(ctx, SearchQuery{Text: "buildings"})
	if len(res) != 1 || res[0].Title != "Buildings" {
		t.Fatalf("Search title = %+v", res)
	}
	// Content updates reindex.
	_, _ = s.Update(ctx, a.FileID, boardB)
	if res, _ := s.Search(ctx, SearchQuery{Text: "kitten"}); len(res) != 0 {
		t.Fatalf("stale index: %+v", res)
	}
	if res, _ := s.Search(ctx, SearchQuery{}); len(res) != 2 {
		t.Fatalf("empty query = %d results", len(res))
	}
}

func TestThumbnailUpsert(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()
	if err := s.PutThumbnail(ctx, Thumbnail{FileID: "f"}); err == nil {
		t.Fatalf("expected error for empty thumbnail")
	}
	_ = s.PutThumbnail(ctx, Thumbnail{FileID: "f", W: 1, H: 1, PNG: []byte{1}})
	_ = s.PutThumbnail(ctx, Thumbnail{FileID: "f", W: 2, H: 3, PNG: []byte{2, 2}})
	th, err := s.GetThumbnail(ctx, "f")
	if err != nil {
		t.Fatalf("GetThumbnail: %v", err)
	}
	if th.W != 2 || th.H != 3 || len(th.PNG) != 2 {
		t.Fatalf("thumbnail = %+v", th)
	}
}

func TestSearchText(t *testing.T) {
	got := SearchText(`{"objects":[{"type":"text","text":"one"},{"type":"image","src":"x"},{"type":"text","text":"two"}]}`)
	if got != "one\ntwo" {
		t.Fatalf("SearchText = %q", got)
	}
	if SearchText("{bad") != "" || SearchText("") != "" {
		t.Fatalf("malformed content should yield empty text")
	}
}

func TestExportImportFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "board"+FileExt)
	if err := ExportFile(path, boardA); err != nil {
		t.Fatalf("ExportFile: %v", err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read export: %v", err)
	}
	if !strings.Contains(string(raw), "\n    \"objects\"") {
		t.Fatalf("export not indented with four spaces:\n%s", raw)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Fatalf("temp file left behind")
	}
	got, err := ImportFile(path)
	if err != nil {
		t.Fatalf("ImportFile: %v", err)
	}
	if got != boardA {
		t.Fatalf("round trip = %s", got)
	}
}

func TestImportRejectsInvalidDocuments(t *testing.T) {
	dir := t.TempDir()
	cases := map[string]string{
		"notjson":  `{"objects": [`,
		"noobjs":   `{"version":"refer/1"}`,
		"badkind":  `{"objects":[{"type":"triangle"}]}`,
		"badalpha": `{"objects":[{"type":"rect","opacity":3}]}`,
	}
	for name, body := range cases {
		p := filepath.Join(dir, name+FileExt)
		if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
		if _, err := ImportFile(p); !errors.Is(err, ErrInvalidDocument) {
			t.Fatalf("%s: err = %v, want ErrInvalidDocument", name, err)
		}
	}
	if _, err := ImportFile(filepath.Join(dir, "missing.json")); err == nil || errors.Is(err, ErrInvalidDocument) {
		t.Fatalf("missing file err = %v", err)
	}
}
