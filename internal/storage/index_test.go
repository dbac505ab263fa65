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
	"os"
	"path/filepath"
	"testing"
	"time"

	"airunner/internal/domain"
)

func TestInitOrOpenIndexCreatesSchema(t *testing.T) {
	doc := filepath.Join(t.TempDir(), "art"+DocumentExt)
	db, err := InitOrOpenIndex(doc)
	if err != nil {
		t.Fatalf("InitOrOpenIndex: %v", err)
	}
	defer db.Close()
	if _, err := os.Stat(filepath.Join(filepath.Dir(doc), IndexDirName, "art.sqlite")); err != nil {
		t.Fatalf("index file missing: %v", err)
	}
	var schema int
	if err := db.QueryRow(`SELECT schema FROM version WHERE id=1`).Scan(&schema); err != nil {
		t.Fatalf("read version: %v", err)
	}
	if schema != schemaVersion {
		t.Fatalf("schema = %d, want %d", schema, schemaVersion)
	}
	var applied int
	if err := db.QueryRow(`SELECT COUNT(*) FROM schema_migrations`).Scan(&applied); err != nil || applied != 1 {
		t.Fatalf("migrations applied = %d (%v)", applied, err)
	}
}

func TestRecordAndListGenerations(t *testing.T) {
	ctx := context.Background()
	doc := filepath.Join(t.TempDir(), "art"+DocumentExt)
	db, err := InitOrOpenIndex(doc)
	if err != nil {
		t.Fatalf("InitOrOpenIndex: %v", err)
	}
	defer db.Close()

	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	gens := []Generation{
		{JobID: "j1", Action: "txt2img", Prompt: "a red fox in snow", Seed: 1, Layer: "L1", CreatedAt: base},
		{JobID: "j2", Action: "inpaint", Prompt: "a blue bird", Seed: 2, Region: domain.Rect{X: 8, Width: 64, Height: 64}, Metadata: map[string]any{"steps": float64(20)}, CreatedAt: base.Add(time.Second)},
		{JobID: "j3", Action: "txt2img", Prompt: "red sunset", Seed: 3, CreatedAt: base.Add(2 * time.Second)},
	}
	for _, g := range gens {
		if err := RecordGeneration(ctx, db, g); err != nil {
			t.Fatalf("RecordGeneration(%s): %v", g.JobID, err)
		}
	}
	if err := RecordGeneration(ctx, db, gens[0]); err != nil {
		t.Fatalf("duplicate record must be a no-op: %v", err)
	}

	list, err := ListGenerations(ctx, db, 10, 0)
	if err != nil {
		t.Fatalf("ListGenerations: %v", err)
	}
	if len(list) != 3 || list[0].JobID != "j3" || list[2].JobID != "j1" {
		t.Fatalf("unexpected order: %+v", list)
	}
	if list[1].Region.Width != 64 || list[1].Metadata["steps"] != float64(20) {
		t.Fatalf("region/metadata not round-tripped: %+v", list[1])
	}
	if !list[2].CreatedAt.Equal(base) || list[2].Layer != "L1" {
		t.Fatalf("timestamp/layer mismatch: %+v", list[2])
	}

	found, err := SearchGenerations(ctx, db, "red", 10)
	if err != nil {
		t.Fatalf("SearchGenerations: %v", err)
	}
	if len(found) != 2 || found[0].JobID != "j3" {
		t.Fatalf("search results: %+v", found)
	}

	n, err := PruneGenerations(ctx, db, 1)
	if err != nil || n != 2 {
		t.Fatalf("prune removed %d (%v)", n, err)
	}
	found, err = SearchGenerations(ctx, db, "fox", 10)
	if err != nil || len(found) != 0 {
		t.Fatalf("pruned rows must leave the search index: %+v %v", found, err)
	}
}

func TestRecordGenerationRequiresJobID(t *testing.T) {
	db, err := InitOrOpenIndex(filepath.Join(t.TempDir(), "x"+DocumentExt))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	if err := RecordGeneration(context.Background(), db, Generation{Prompt: "p"}); err == nil {
		t.Fatalf("expected error for missing job id")
	}
}

func TestDetectAndRebuildIndexOnCorruption(t *testing.T) {
	ctx := context.Background()
	doc := filepath.Join(t.TempDir(), "art"+DocumentExt)
	if err := RecordGenerationFor(ctx, doc, Generation{JobID: "j", Prompt: "p"}); err != nil {
		t.Fatalf("RecordGenerationFor: %v", err)
	}
	rebuilt, err := DetectAndRebuildIndex(ctx, doc)
	if err != nil || rebuilt {
		t.Fatalf("healthy index must not be rebuilt: %v %v", rebuilt, err)
	}
	idx := IndexPath(doc)
	for _, suffix := range []string{"-wal", "-shm"} {
		_ = os.Remove(idx + suffix)
	}
	if err := os.WriteFile(idx, []byte("THIS IS NOT SQLITE"), 0o644); err != nil {
		t.Fatalf("write corrupt: %v", err)
	}
	rebuilt, err = DetectAndRebuildIndex(ctx, doc)
	if err != nil {
		t.Fatalf("DetectAndRebuildIndex: %v", err)
	}
	if !rebuilt {
		t.Fatalf("expected rebuild to occur")
	}
	entries, _ := os.ReadDir(filepath.Join(filepath.Dir(idx), BackupsDirName))
	if len(entries) == 0 {
		t.Fatalf("expected backup of the corrupt index")
	}
}
