/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	applog "airunner/internal/log"
	"airunner/internal/version"

	// Pure-Go SQLite driver (CGO-free)
	_ "modernc.org/sqlite"
)

const (
	// IndexDirName holds per-document index data next to the document.
	IndexDirName = ".airunner"

	// schemaVersion tracks the local SQLite schema for the generation index.
	// Bump this when you perform breaking schema changes and add migrations.
	schemaVersion = 2
)

// IndexPath returns the generation index file of the document at docPath.
func IndexPath(docPath string) string {
	name := strings.TrimSuffix(filepath.Base(docPath), DocumentExt)
	return filepath.Join(filepath.Dir(docPath), IndexDirName, name+".sqlite")
}

// InitOrOpenIndex ensures that the document's SQLite generation index exists, opens it,
// enables WAL mode, and ensures the meta/version and generations tables exist.
// Callers close the returned *sql.DB.
func InitOrOpenIndex(docPath string) (*sql.DB, error) {
	l := applog.WithOperation(applog.WithComponent("storage"), "index_init").With(
		slog.String("doc", docPath),
	)
	if strings.TrimSpace(docPath) == "" {
		return nil, errors.New("document path is required")
	}
	path := IndexPath(docPath)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		l.Error("create index dir failed", slog.Any("err", err))
		return nil, fmt.Errorf("create index dir: %w", err)
	}

	// Forward slashes for the SQLite URI.
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)", filepath.ToSlash(path))
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		l.Error("sqlite open failed", slog.Any("err", err))
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL;"); err != nil {
		_ = db.Close()
		l.Error("enable WAL failed", slog.Any("err", err))
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	if err := ensureMetaAndVersion(ctx, db); err != nil {
		_ = db.Close()
		l.Error("ensure meta/version failed", slog.Any("err", err))
		return nil, err
	}
	if err := ensureIndexSchema(ctx, db); err != nil {
		_ = db.Close()
		l.Error("ensure index schema failed", slog.Any("err", err))
		return nil, err
	}
	if err := runMigrations(ctx, db); err != nil {
		_ = db.Close()
		l.Error("run migrations failed", slog.Any("err", err))
		return nil, err
	}
	l.Debug("index ready", slog.String("path", path))
	return db, nil
}

func ensureMetaAndVersion(ctx context.Context, db *sql.DB) error {
	ddl := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS version (
			id          INTEGER PRIMARY KEY CHECK(id=1),
			schema      INTEGER NOT NULL,
			app         TEXT,
			created_at  TEXT NOT NULL,
			updated_at  TEXT NOT NULL
		);`,
	}
	for _, q := range ddl {
		if _, err := db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("create table: %w", err)
		}
	}
	now := time.Now().UTC().Format(time.RFC3339)
	appv := version.String()
	var curSchema int
	err := db.QueryRowContext(ctx, `SELECT schema FROM version WHERE id=1`).Scan(&curSchema)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		// a fresh DB starts at version 1 and migrates forward
		if _, err := db.ExecContext(ctx, `INSERT INTO version (id, schema, app, created_at, updated_at) VALUES(1, 1, ?, ?, ?)`, appv, now, now); err != nil {
			return fmt.Errorf("insert version: %w", err)
		}
	case err != nil:
		return fmt.Errorf("read version: %w", err)
	default:
		if _, err := db.ExecContext(ctx, `UPDATE version SET app=?, updated_at=? WHERE id=1`, appv, now); err != nil {
			return fmt.Errorf("update version: %w", err)
		}
	}
	return nil
}

// ensureIndexSchema creates the version 1 tables.
func ensureIndexSchema(ctx context.Context, db *sql.DB) error {
	ddl := []string{
		`CREATE TABLE IF NOT EXISTS generations (
			id              INTEGER PRIMARY KEY,
			job_id          TEXT    NOT NULL UNIQUE,
			action          TEXT    NOT NULL,
			prompt          TEXT    NOT NULL,
			negative_prompt TEXT,
			seed            INTEGER NOT NULL,
			layer_id        TEXT,
			region          TEXT,
			metadata        TEXT,
			thumb_blob      BLOB,
			created_at      TEXT    NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS schema_migrations (
			version    INTEGER PRIMARY KEY,
			applied_at TEXT NOT NULL
		);`,
	}
	for _, q := range ddl {
		if _, err := db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("ensure index schema: %w", err)
		}
	}
	return nil
}

// runMigrations applies incremental schema migrations up to schemaVersion.
func runMigrations(ctx context.Context, db *sql.DB) error {
	var cur int
	if err := db.QueryRowContext(ctx, `SELECT schema FROM version WHERE id=1`).Scan(&cur); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	for cur < schemaVersion {
		next := cur + 1
		var stmts []string
		switch next {
		case 2:
			// prompt search and chronological listing
			stmts = []string{
				`CREATE INDEX IF NOT EXISTS idx_generations_created ON generations(created_at);`,
				`CREATE VIRTUAL TABLE IF NOT EXISTS fts_prompts USING fts5(prompt, content='generations', content_rowid='id', tokenize='unicode61');`,
				`CREATE TRIGGER IF NOT EXISTS generations_ai AFTER INSERT ON generations BEGIN
					INSERT INTO fts_prompts(rowid, prompt) VALUES (new.id, new.prompt);
				END;`,
				`CREATE TRIGGER IF NOT EXISTS generations_ad AFTER DELETE ON generations BEGIN
					INSERT INTO fts_prompts(fts_prompts, rowid, prompt) VALUES ('delete', old.id, old.prompt);
				END;`,
				`INSERT INTO fts_prompts(fts_prompts) VALUES ('rebuild');`,
			}
		}
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", next, err)
		}
		for _, q := range stmts {
			if _, err := tx.ExecContext(ctx, q); err != nil {
				_ = tx.Rollback()
				return fmt.Errorf("migration %d stmt failed: %w", next, err)
			}
		}
		now := time.Now().UTC().Format(time.RFC3339)
		if _, err := tx.ExecContext(ctx, `INSERT OR REPLACE INTO schema_migrations(version, applied_at) VALUES(?, ?)`, next, now); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d record: %w", next, err)
		}
		if _, err := tx.ExecContext(ctx, `UPDATE version SET schema=?, updated_at=? WHERE id=1`, next, now); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d update version: %w", next, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("migration %d commit: %w", next, err)
		}
		cur = next
	}
	return nil
}

// DetectAndRebuildIndex checks the index for corruption. A broken index is backed up and
// recreated empty; it returns true when that happened.
func DetectAndRebuildIndex(ctx context.Context, docPath string) (bool, error) {
	path := IndexPath(docPath)
	db, err := InitOrOpenIndex(docPath)
	if err == nil {
		var chk string
		qerr := db.QueryRowContext(ctx, `PRAGMA quick_check;`).Scan(&chk)
		if qerr == nil && strings.Contains(strings.ToLower(chk), "ok") {
			_, qerr = db.ExecContext(ctx, `SELECT 1 FROM generations LIMIT 1;`)
		} else if qerr == nil {
			qerr = fmt.Errorf("quick_check: %s", chk)
		}
		_ = db.Close()
		if qerr == nil {
			return false, nil
		}
		err = qerr
	}
	applog.WithComponent("storage").Warn("rebuilding generation index", slog.String("path", path), slog.Any("err", err))
	backupIndexFile(path)
	for _, suffix := range []string{"", "-wal", "-shm"} {
		_ = os.Remove(path + suffix)
	}
	db, rerr := InitOrOpenIndex(docPath)
	if rerr != nil {
		return false, fmt.Errorf("rebuild after failure: %w (open err: %v)", rerr, err)
	}
	return true, db.Close()
}

// backupIndexFile copies the current index file into a timestamped backup next to it.
func backupIndexFile(indexPath string) {
	bdir := filepath.Join(filepath.Dir(indexPath), BackupsDirName)
	_ = os.MkdirAll(bdir, 0o755)
	stamp := time.Now().Format("20060102-150405")
	bak := filepath.Join(bdir, fmt.Sprintf("%s.%s.bak", filepath.Base(indexPath), stamp))
	if data, err := os.ReadFile(indexPath); err == nil {
		_ = os.WriteFile(bak, data, 0o644)
	}
}
