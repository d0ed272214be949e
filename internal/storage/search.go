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
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// SearchQuery describes a gallery search.
// Text uses SQLite FTS5 syntax (simple terms, phrases in quotes, AND/OR/NOT).
// Limit/Offset implement pagination; reasonable defaults applied if zero.
type SearchQuery struct {
	Text   string
	Limit  int
	Offset int
}

// SearchResult represents a single match row.
// Snippet is a highlighted excerpt using [ ] markers from the text objects.
type SearchResult struct {
	FileID  string
	Title   string
	Snippet string
}

// Search performs a full-text search over document titles and the text of
// their text objects. An empty query lists documents by recency.
func (s *Store) Search(ctx context.Context, q SearchQuery) ([]SearchResult, error) {
	var args []any
	var sb strings.Builder
	if strings.TrimSpace(q.Text) != "" {
		sb.WriteString("SELECT r.file_id, r.title, snippet(fts_refers, 1, '[', ']', '…', 10)\n")
		sb.WriteString("FROM fts_refers JOIN refers r ON fts_refers.rowid = r.id\n")
		sb.WriteString("WHERE fts_refers MATCH ?\n")
		sb.WriteString("ORDER BY rank\n")
		args = append(args, q.Text)
	} else {
		sb.WriteString("SELECT r.file_id, r.title, ''\nFROM refers r\n")
		sb.WriteString("ORDER BY r.updated_at DESC, r.id DESC\n")
	}
	limit := q.Limit
	if limit <= 0 {
		limit = 100
	}
	if q.Offset < 0 {
		q.Offset = 0
	}
	sb.WriteString("LIMIT ? OFFSET ?")
	args = append(args, limit, q.Offset)

	rows, err := s.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("search query: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var out []SearchResult
	for rows.Next() {
		var r SearchResult
		var sn sql.NullString
		if err := rows.Scan(&r.FileID, &r.Title, &sn); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		if sn.Valid {
			r.Snippet = sn.String
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Thumbnail is a cached PNG preview of a document for the gallery.
type Thumbnail struct {
	FileID string
	W, H   int
	PNG    []byte
}

// language=SQL
const (
	upsertThumbSQL = `INSERT INTO thumbnails (file_id, w, h, png, updated_at) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(file_id) DO UPDATE SET w=excluded.w, h=excluded.h, png=excluded.png, updated_at=excluded.updated_at`
	selectThumbSQL = `SELECT file_id, w, h, png FROM thumbnails WHERE file_id = ?`
)

// PutThumbnail stores or replaces the thumbnail of a document.
func (s *Store) PutThumbnail(ctx context.Context, th Thumbnail) error {
	if len(th.PNG) == 0 {
		return errors.New("thumbnail is empty")
	}
	if _, err := s.db.ExecContext(ctx, upsertThumbSQL, th.FileID, th.W, th.H, th.PNG, millis(s.now().UTC())); err != nil {
		return fmt.Errorf("store thumbnail: %w", err)
	}
	return nil
}

// GetThumbnail returns the cached thumbnail of fileID, or ErrNotFound.
func (s *Store) GetThumbnail(ctx context.Context, fileID string) (Thumbnail, error) {
	var th Thumbnail
	err := s.db.QueryRowContext(ctx, selectThumbSQL, fileID).Scan(&th.FileID, &th.W, &th.H, &th.PNG)
	if errors.Is(err, sql.ErrNoRows) {
		return Thumbnail{}, ErrNotFound
	}
	if err != nil {
		return Thumbnail{}, fmt.Errorf("read thumbnail: %w", err)
	}
	return th, nil
}
