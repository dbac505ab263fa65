/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package storage

import (
	"errors"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"airunner/internal/canvas"
	"airunner/internal/domain"
)

func sampleCanvas() *canvas.Canvas {
	c := canvas.New()
	c.AddLayer()
	c.Draw(0, domain.Stroke{Start: domain.Point{X: 1, Y: 2}, End: domain.Point{X: 30, Y: 40}, Color: domain.Color{R: 255}, Width: 5, Tool: domain.ToolBrush})
	img := image.NewNRGBA(image.Rect(0, 0, 3, 2))
	img.SetNRGBA(1, 1, color.NRGBA{R: 10, G: 20, B: 30, A: 255})
	c.SetActiveRegion(domain.Rect{X: 64, Y: 32, Width: 256, Height: 256})
	c.PlaceImage(1, img, domain.Point{X: 7, Y: 9})
	c.ToggleLayerVisibility(c.Layer(1).ID)
	return c
}

func TestCreateOpenRoundTrip(t *testing.T) {
	dir := t.TempDir()
	src := sampleCanvas()
	h, err := Create(filepath.Join(dir, "scene"), src)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if !strings.HasSuffix(h.Path, DocumentExt) || h.Name() != "scene" {
		t.Fatalf("unexpected handle: %+v name=%q", h, h.Name())
	}
	got, err := Open(h.Path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	c := got.Canvas
	if c.Len() != 2 {
		t.Fatalf("layers = %d", c.Len())
	}
	for i := 0; i < 2; i++ {
		want, have := src.Layer(i), c.Layer(i)
		if want.ID != have.ID || want.Name != have.Name || want.Visible != have.Visible {
			t.Fatalf("layer %d identity mismatch: %+v vs %+v", i, want, have)
		}
		if len(want.Strokes) != len(have.Strokes) || len(want.Images) != len(have.Images) {
			t.Fatalf("layer %d content mismatch", i)
		}
	}
	if c.Layer(0).Strokes[0] != src.Layer(0).Strokes[0] {
		t.Fatalf("stroke mismatch: %+v", c.Layer(0).Strokes[0])
	}
	pi := c.Layer(1).Images[0]
	if pi.Anchor != (domain.Point{X: 7, Y: 9}) || pi.Image.Bounds().Dx() != 3 {
		t.Fatalf("image mismatch: %+v %v", pi.Anchor, pi.Image.Bounds())
	}
	r, g, b, _ := pi.Image.At(1, 1).RGBA()
	if r>>8 != 10 || g>>8 != 20 || b>>8 != 30 {
		t.Fatalf("pixel mismatch")
	}
	if c.ImageRootPoint() != src.ImageRootPoint() || c.ImagePivotPoint() != src.ImagePivotPoint() || c.ActiveRegion() != src.ActiveRegion() {
		t.Fatalf("points/region mismatch")
	}
}

func TestSaveCreatesBackupAndOpenFallsBack(t *testing.T) {
	dir := t.TempDir()
	h, err := Create(filepath.Join(dir, "doc"+DocumentExt), sampleCanvas())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	time.Sleep(5 * time.Millisecond)
	h.Canvas.AddLayer()
	if err := Save(h); err != nil {
		t.Fatalf("Save: %v", err)
	}
	baks, err := Backups(h.Path)
	if err != nil || len(baks) != 1 {
		t.Fatalf("expected one backup, got %v (%v)", baks, err)
	}

	// corrupt the document; Open must recover the backup (2 layers, before AddLayer)
	if err := os.WriteFile(h.Path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	got, err := Open(h.Path)
	if err != nil {
		t.Fatalf("Open with backup: %v", err)
	}
	if got.Canvas.Len() != 2 {
		t.Fatalf("backup layers = %d, want 2", got.Canvas.Len())
	}
}

func TestOpenMissingWithoutBackupFails(t *testing.T) {
	if _, err := Open(filepath.Join(t.TempDir(), "nope"+DocumentExt)); err == nil {
		t.Fatalf("expected error")
	}
}

func TestValidateRejectsBadDocuments(t *testing.T) {
	cases := map[string]string{
		"missing layers": `{"version":1}`,
		"bad tool":       `{"version":1,"layers":[{"id":"a","name":"L","visible":true,"strokes":[{"start":{"x":0,"y":0},"end":{"x":1,"y":1},"width":1,"tool":"spray"}]}]}`,
		"zero width":     `{"version":1,"layers":[{"id":"a","name":"L","visible":true,"strokes":[{"start":{"x":0,"y":0},"end":{"x":1,"y":1},"width":0}]}]}`,
	}
	for name, doc := range cases {
		if err := Validate([]byte(doc)); !errors.Is(err, ErrInvalidDocument) {
			t.Fatalf("%s: expected schema error, got %v", name, err)
		}
	}
	if err := Validate([]byte(`{"version":1,"layers":[]}`)); err != nil {
		t.Fatalf("minimal document rejected: %v", err)
	}
}

func TestSavedDocumentConformsToSchema(t *testing.T) {
	h, err := Create(filepath.Join(t.TempDir(), "s"), sampleCanvas())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	data, err := os.ReadFile(h.Path)
	if err != nil {
		t.Fatal(err)
	}
	if err := Validate(data); err != nil {
		t.Fatalf("saved document invalid: %v", err)
	}
}

func TestAutosaveCrashSnapshot(t *testing.T) {
	h, err := Create(filepath.Join(t.TempDir(), "crashy"), sampleCanvas())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	h.Canvas.AddLayer()
	p, err := AutosaveCrashSnapshot(h)
	if err != nil {
		t.Fatalf("autosave: %v", err)
	}
	if !strings.Contains(filepath.Base(p), "crashy.airunner.crash-") {
		t.Fatalf("unexpected snapshot name %s", p)
	}
	snap, err := Open(p)
	if err != nil {
		t.Fatalf("open snapshot: %v", err)
	}
	if snap.Canvas.Len() != 3 {
		t.Fatalf("snapshot must hold live state, layers=%d", snap.Canvas.Len())
	}
	if _, err := AutosaveCrashSnapshot(nil); err == nil {
		t.Fatalf("nil handle must fail")
	}
}

func TestSaveAsMovesHandle(t *testing.T) {
	dir := t.TempDir()
	h, err := Create(filepath.Join(dir, "a"), canvas.New())
	if err != nil {
		t.Fatal(err)
	}
	if err := SaveAs(h, filepath.Join(dir, "sub", "b")); err != nil {
		t.Fatalf("SaveAs: %v", err)
	}
	if h.Name() != "b" {
		t.Fatalf("handle not updated: %s", h.Path)
	}
	if _, err := os.Stat(h.Path); err != nil {
		t.Fatalf("new file missing: %v", err)
	}
}

func TestSaveAsFailureKeepsPath(t *testing.T) {
	dir := t.TempDir()
	h, err := Create(filepath.Join(dir, "a"), canvas.New())
	if err != nil {
		t.Fatal(err)
	}
	orig := h.Path
	// A non-empty directory where the document should go cannot be backed up or replaced.
	blocked := filepath.Join(dir, "b"+DocumentExt)
	if err := os.MkdirAll(filepath.Join(blocked, "inner"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := SaveAs(h, blocked); err == nil {
		t.Fatalf("SaveAs onto a directory must fail")
	}
	if h.Path != orig {
		t.Fatalf("failed SaveAs moved the handle to %s", h.Path)
	}
	h.Canvas.AddLayer()
	if err := Save(h); err != nil {
		t.Fatalf("Save after failed SaveAs: %v", err)
	}
	reopened, err := Open(orig)
	if err != nil || reopened.Canvas.Len() != 2 {
		t.Fatalf("next Save must go to the original file: %v", err)
	}
}
