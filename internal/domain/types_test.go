/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package domain

import (
	"encoding/json"
	"testing"
	"time"
)

func TestDocumentJSONRoundTrip(t *testing.T) {
	now := time.Date(2025, 3, 4, 5, 6, 7, 0, time.UTC)
	d := Document{ID: 3, FileID: "f", Title: "T", Content: `{"objects":[]}`, CreatedAt: now, UpdatedAt: now}
	b, err := json.Marshal(d)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var got Document
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Title != d.Title || got.Content != d.Content || !got.UpdatedAt.Equal(now) {
		t.Fatalf("mismatch: %+v", got)
	}
}

func TestNewFileIDIsUUIDv7(t *testing.T) {
	a, err := NewFileID()
	if err != nil {
		t.Fatalf("id: %v", err)
	}
	b, _ := NewFileID()
	if a == b || !ValidFileID(a) || a[14] != '7' {
		t.Fatalf("unexpected ids %q %q", a, b)
	}
	if ValidFileID("nope") {
		t.Fatalf("invalid id accepted")
	}
}

func TestDefaultTitleAndHash(t *testing.T) {
	got := DefaultTitle(time.Date(2024, 12, 31, 23, 59, 1, 0, time.UTC))
	if got != "Refer_2024-12-31_23-59-01" {
		t.Fatalf("title %q", got)
	}
	if HashContent("a") == HashContent("b") || len(HashContent("")) != 64 {
		t.Fatalf("hash")
	}
	if CleanTitle("  ", "x") != "x" || CleanTitle(" y ", "x") != "y" {
		t.Fatalf("clean title")
	}
}
