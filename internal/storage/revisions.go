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
	"fmt"
	"log/slog"

	"refercanvas/internal/domain"
	applog "refercanvas/internal/log"
)

// language=SQL
const (
	insertRevisionSQL = `INSERT INTO revisions (file_id, ts, content) VALUES (?, ?, ?)`
	listRevisionsSQL  = `SELECT id, file_id, ts, content FROM revisions
		WHERE file_id = ? ORDER BY ts DESC, id DESC`
	getRevisionSQL = `SELECT id, file_id, ts, content FROM revisions WHERE id = ?`
	// Keep the newest `keep` revisions per document.
	pruneRevisionsSQL = `DELETE FROM revisions
		WHERE id IN (
			SELECT id FROM (
				SELECT id, ROW_NUMBER() OVER (PARTITION BY file_id ORDER BY ts DESC, id DESC) AS rn
				FROM revisions
			) WHERE rn > ?
		)`
)

// AddRevision records content as a revision of fileID.
func (s *Store) AddRevision(ctx context.Context, fileID, content string) (int64, error) {
	res, err := s.db.ExecContext(ctx, insertRevisionSQL, fileID, millis(s.now().UTC()), content)
	if err != nil {
		return 0, fmt.Errorf("insert revision: %w", err)
	}
	return res.LastInsertId()
}

// ListRevisions returns the revisions of fileID, newest first.
func (s *Store) ListRevisions(ctx context.Context, fileID string) ([]domain.Revision, error) {
	rows, err := s.db.QueryContext(ctx, listRevisionsSQL, fileID)
	if err != nil {
		return nil, fmt.Errorf("list revisions: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var out []domain.Revision
	for rows.Next() {
		var r domain.Revision
		var ts int64
		if err := rows.Scan(&r.ID, &r.FileID, &ts, &r.Content); err != nil {
			return nil, err
		}
		r.TS = fromMillis(ts)
		out = append(out, r)
	}
	return out, rows.Err()
}

// GetRevision returns a single revision by id.
func (s *Store) GetRevision(ctx context.Context, id int64) (domain.Revision, error) {
	var r domain.Revision
	var ts int64
	if err := s.db.QueryRowContext(ctx, getRevisionSQL, id).Scan(&r.ID, &r.FileID, &ts, &r.Content); err != nil {
		return domain.Revision{}, fmt.Errorf("read revision %d: %w", id, err)
	}
	r.TS = fromMillis(ts)
	return r, nil
}

// PruneRevisions deletes all but the newest keep revisions of every
// document and returns the number removed. keep <= 0 is a no-op.
func (s *Store) PruneRevisions(ctx context.Context, keep int) (int64, error) {
	if keep <= 0 {
		return 0, nil
	}
	res, err := s.db.ExecContext(ctx, pruneRevisionsSQL, keep)
	if err != nil {
		return 0, fmt.Errorf("prune revisions: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		applog.WithOperation(s.log, "prune").Info("revisions pruned", slog.Int64("removed", n), slog.Int("keep", keep))
	}
	return n, nil
}
