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

// This file defines the persisted model of a reference board: a titled
// document whose content is the dataless JSON of a canvas, plus its
// revision history.

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// TitlePrefix starts every generated document title.
const TitlePrefix = "Refer_"

// Document is one saved board.
type Document struct {
	ID        int64     `json:"id"`
	FileID    string    `json:"fileId"`
	Title     string    `json:"title"`
	Content   string    `json:"content,omitempty"`
	Hash      string    `json:"hash,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Revision is an earlier content of a document, kept for recovery.
type Revision struct {
	ID      int64     `json:"id"`
	FileID  string    `json:"fileId"`
	TS      time.Time `json:"ts"`
	Content string    `json:"content"`
}

// NewFileID returns a time-ordered unique document id.
func NewFileID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate file id: %w", err)
	}
	return id.String(), nil
}

// ValidFileID reports whether s parses as a UUID.
func ValidFileID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}

// DefaultTitle names a new document after its creation time.
func DefaultTitle(t time.Time) string {
	return TitlePrefix + t.Format("2006-01-02_15-04-05")
}

// HashContent returns the hex SHA-256 of serialized content.
func HashContent(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// CleanTitle trims a user supplied title and falls back to def when empty.
func CleanTitle(title, def string) string {
	title = strings.TrimSpace(title)
	if title == "" {
		return def
	}
	return title
}
