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
	"strings"
	"time"

	"airunner/internal/domain"
)

// language=SQL
// dialect=SQLite
const insertGenerationSQL = `INSERT INTO generations(job_id, action, prompt, negative_prompt, seed, layer_id, region, metadata, thumb_blob, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(job_id) DO NOTHING`

// language=SQL
// dialect=SQLite
const listGenerationsSQL = `SELECT job_id, action, prompt, negative_prompt, seed, layer_id, region, metadata, thumb_blob, created_at
FROM generations ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`

// language=SQL
// dialect=SQLite
const searchGenerationsSQL = `SELECT g.job_id, g.action, g.prompt, g.negative_prompt, g.seed, g.layer_id, g.region, g.metadata, g.thumb_blob, g.created_at
FROM fts_prompts f JOIN generations g ON g.id = f.rowid
WHERE fts_prompts MATCH ? ORDER BY g.created_at DESC LIMIT ?`

// language=SQL
// dialect=SQLite
const pruneGenerationsSQL = `DELETE FROM generations WHERE id NOT IN (
	SELECT id FROM generations ORDER BY created_at DESC, id DESC LIMIT ?
)`

// tsLayout sorts lexicographically in time order.
const tsLayout = "2006-01-02T15:04:05.000000000Z"

// Generation is one completed generation placed into a document.
type Generation struct {
	JobID          string
	Action         string
	Prompt         string
	NegativePrompt string
	Seed           int64
	Layer          domain.LayerID
	Region         domain.Rect
	Metadata       map[string]any
	Thumb          []byte // PNG, optional
	CreatedAt      time.Time
}

// RecordGeneration inserts g. Recording the same job twice is a no-op.
func RecordGeneration(ctx context.Context, db *sql.DB, g Generation) error {
	if db == nil {
		return errors.New("nil index")
	}
	if g.JobID == "" {
		return errors.New("generation job id is required")
	}
	if g.CreatedAt.IsZero() {
		g.CreatedAt = time.Now()
	}
	region, err := json.Marshal(g.Region)
	if err != nil {
		return err
	}
	var meta []byte
	if len(g.Metadata) > 0 {
		if meta, err = json.Marshal(g.Metadata); err != nil {
			return fmt.Errorf("marshal metadata: %w", err)
		}
	}
	_, err = db.ExecContext(ctx, insertGenerationSQL, g.JobID, g.Action, g.Prompt, g.NegativePrompt, g.Seed,
		string(g.Layer), string(region), string(meta), g.Thumb, g.CreatedAt.UTC().Format(tsLayout))
	return err
}

// ListGenerations returns generations newest first.
func ListGenerations(ctx context.Context, db *sql.DB, limit, offset int) ([]Generation, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := db.QueryContext(ctx, listGenerationsSQL, limit, offset)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	return scanGenerations(rows)
}

// SearchGenerations runs an FTS5 query over prompts, newest first.
func SearchGenerations(ctx context.Context, db *sql.DB, text string, limit int) ([]Generation, error) {
	if strings.TrimSpace(text) == "" {
		return ListGenerations(ctx, db, limit, 0)
	}
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.QueryContext(ctx, searchGenerationsSQL, text, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	return scanGenerations(rows)
}

// PruneGenerations keeps at most keepLast generations and deletes older ones.
func PruneGenerations(ctx context.Context, db *sql.DB, keepLast int) (int64, error) {
	if keepLast < 0 {
		keepLast = 0
	}
	res, err := db.ExecContext(ctx, pruneGenerationsSQL, keepLast)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// RecordGenerationFor opens the document's index, records g and closes it again.
func RecordGenerationFor(ctx context.Context, docPath string, g Generation) error {
	db, err := InitOrOpenIndex(docPath)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()
	return RecordGeneration(ctx, db, g)
}

func scanGenerations(rows *sql.Rows) ([]Generation, error) {
	var out []Generation
	for rows.Next() {
		var (
			g                   Generation
			neg, layer, reg, md sql.NullString
			ts                  string
		)
		if err := rows.Scan(&g.JobID, &g.Action, &g.Prompt, &neg, &g.Seed, &layer, &reg, &md, &g.Thumb, &ts); err != nil {
			return nil, err
		}
		g.NegativePrompt = neg.String
		g.Layer = domain.LayerID(layer.String)
		if reg.String != "" {
			_ = json.Unmarshal([]byte(reg.String), &g.Region)
		}
		if md.String != "" {
			_ = json.Unmarshal([]byte(md.String), &g.Metadata)
		}
		g.CreatedAt, _ = time.Parse(tsLayout, ts)
		out = append(out, g)
	}
	return out, rows.Err()
}
