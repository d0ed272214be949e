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
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"refercanvas/internal/domain"
	applog "refercanvas/internal/log"
)

// language=SQL
const (
	insertReferSQL = `INSERT INTO refers (file_id, title, content, hash, search_text, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`
	selectReferSQL = `SELECT id, file_id, title, content, hash, created_at, updated_at
		FROM refers WHERE file_id = ?`
	selectLatestSQL = `SELECT id, file_id, title, content, hash, created_at, updated_at
		FROM refers ORDER BY updated_at DESC, id DESC LIMIT 1`
	listRefersSQL = `SELECT id, file_id, title, hash, created_at, updated_at
		FROM refers ORDER BY updated_at DESC, id DESC`
	updateReferSQL = `UPDATE refers SET content = ?, hash = ?, search_text = ?, updated_at = ?
		WHERE file_id = ?`
	renameReferSQL  = `UPDATE refers SET title = ?, updated_at = ? WHERE file_id = ?`
	deleteReferSQL  = `DELETE FROM refers WHERE file_id = ?`
	deleteRevsSQL   = `DELETE FROM revisions WHERE file_id = ?`
	deleteThumbSQL  = `DELETE FROM thumbnails WHERE file_id = ?`
	countRefersSQL  = `SELECT COUNT(*) FROM refers`
	selectHashSQL   = `SELECT hash FROM refers WHERE file_id = ?`
)

// Create inserts a new document with a fresh file id. An empty title gets
// the timestamped default.
func (s *Store) Create(ctx context.Context, title, content string) (domain.Document, error) {
	id, err := domain.NewFileID()
	if err != nil {
		return domain.Document{}, err
	}
	now := s.now().UTC()
	doc := domain.Document{
		FileID:    id,
		Title:     domain.CleanTitle(title, domain.DefaultTitle(now.Local())),
		Content:   content,
		Hash:      domain.HashContent(content),
		CreatedAt: now,
		UpdatedAt: now,
	}
	res, err := s.db.ExecContext(ctx, insertReferSQL,
		doc.FileID, doc.Title, doc.Content, doc.Hash, SearchText(content), millis(now), millis(now))
	if err != nil {
		return domain.Document{}, fmt.Errorf("insert document: %w", err)
	}
	doc.ID, _ = res.LastInsertId()
	applog.WithOperation(s.log, "create").Info("document created",
		slog.String("file_id", doc.FileID), slog.String("title", doc.Title))
	return doc, nil
}

// Get returns the document with fileID, or ErrNotFound.
func (s *Store) Get(ctx context.Context, fileID string) (domain.Document, error) {
	return scanDocument(s.db.QueryRowContext(ctx, selectReferSQL, fileID))
}

// Latest returns the most recently updated document, or ErrNotFound when
// the store is empty.
func (s *Store) Latest(ctx context.Context) (domain.Document, error) {
	return scanDocument(s.db.QueryRowContext(ctx, selectLatestSQL))
}

// List returns all documents without content, newest first.
func (s *Store) List(ctx context.Context) ([]domain.Document, error) {
	rows, err := s.db.QueryContext(ctx, listRefersSQL)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var out []domain.Document
	for rows.Next() {
		var d domain.Document
		var created, updated int64
		if err := rows.Scan(&d.ID, &d.FileID, &d.Title, &d.Hash, &created, &updated); err != nil {
			return nil, err
		}
		d.CreatedAt, d.UpdatedAt = fromMillis(created), fromMillis(updated)
		out = append(out, d)
	}
	return out, rows.Err()
}

// Count returns the number of stored documents.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, countRefersSQL).Scan(&n)
	return n, err
}

// Hash returns the stored content hash of fileID.
func (s *Store) Hash(ctx context.Context, fileID string) (string, error) {
	var h string
	err := s.db.QueryRowContext(ctx, selectHashSQL, fileID).Scan(&h)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	return h, err
}

// Update replaces the content of fileID. The previous content is kept as a
// revision when it differs. It reports false when the content hash is
// unchanged and nothing was written.
func (s *Store) Update(ctx context.Context, fileID, content string) (bool, error) {
	l := applog.WithOperation(s.log, "update").With(slog.String("file_id", fileID))
	hash := domain.HashContent(content)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin update: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var prev, prevHash string
	err = tx.QueryRowContext(ctx, `SELECT content, hash FROM refers WHERE file_id = ?`, fileID).Scan(&prev, &prevHash)
	if errors.Is(err, sql.ErrNoRows) {
		return false, ErrNotFound
	}
	if err != nil {
		return false, fmt.Errorf("read document: %w", err)
	}
	if prevHash == hash {
		l.Debug("content unchanged")
		return false, nil
	}
	now := s.now().UTC()
	if prev != "" {
		if _, err := tx.ExecContext(ctx, insertRevisionSQL, fileID, millis(now), prev); err != nil {
			return false, fmt.Errorf("insert revision: %w", err)
		}
	}
	if _, err := tx.ExecContext(ctx, updateReferSQL, content, hash, SearchText(content), millis(now), fileID); err != nil {
		return false, fmt.Errorf("update document: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit update: %w", err)
	}
	l.Debug("document updated", slog.Int("bytes", len(content)))
	return true, nil
}

// Rename changes the title of fileID. An empty title is rejected.
func (s *Store) Rename(ctx context.Context, fileID, title string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return errors.New("title is required")
	}
	res, err := s.db.ExecContext(ctx, renameReferSQL, title, millis(s.now().UTC()), fileID)
	if err != nil {
		return fmt.Errorf("rename document: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes fileID together with its revisions and thumbnail.
func (s *Store) Delete(ctx context.Context, fileID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete: %w", err)
	}
	defer func() { _ = tx.Rollback() }()
	res, err := tx.ExecContext(ctx, deleteReferSQL, fileID)
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	for _, q := range []string{deleteRevsSQL, deleteThumbSQL} {
		if _, err := tx.ExecContext(ctx, q, fileID); err != nil {
			return fmt.Errorf("delete document data: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	applog.WithOperation(s.log, "delete").Info("document deleted", slog.String("file_id", fileID))
	return nil
}

func scanDocument(row *sql.Row) (domain.Document, error) {
	var d domain.Document
	var created, updated int64
	err := row.Scan(&d.ID, &d.FileID, &d.Title, &d.Content, &d.Hash, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Document{}, ErrNotFound
	}
	if err != nil {
		return domain.Document{}, fmt.Errorf("read document: %w", err)
	}
	d.CreatedAt, d.UpdatedAt = fromMillis(created), fromMillis(updated)
	return d, nil
}

// SearchText extracts the text of all text objects in serialized board
// content, one line per object. Malformed content yields "".
func SearchText(content string) string {
	if strings.TrimSpace(content) == "" {
		return ""
	}
	var doc struct {
		Objects []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"objects"`
	}
	if err := json.Unmarshal([]byte(content), &doc); err != nil {
		return ""
	}
	var b strings.Builder
	for _, o := range doc.Objects {
		if o.Text == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(o.Text)
	}
	return b.String()
}

func millis(t time.Time) int64 { return t.UnixMilli() }

func fromMillis(ms int64) time.Time { return time.UnixMilli(ms).UTC() }
