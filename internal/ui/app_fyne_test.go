//go:build fyne

/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// These tests validate the Fyne-based UI components. They are gated behind the
// "fyne" build tag so CI (which is headless) does not need Fyne or a display.
// To run locally:
//
//	go test -tags fyne ./internal/ui
package ui

import (
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/driver/desktop"
	"fyne.io/fyne/v2/test"

	"airunner/internal/domain"
	"airunner/internal/session"
)

func newSession() *session.Session {
	return session.New(session.Settings{BrushSize: 2, Primary: domain.Color{R: 255}})
}

func TestDocumentCanvas_Defaults(t *testing.T) {
	test.NewTempApp(t)
	dc := NewDocumentCanvas()
	if dc.zoom != 1 || !dc.showGrid || dc.gridSize != 64 {
		t.Fatalf("unexpected defaults: zoom=%v grid=%v/%d", dc.zoom, dc.showGrid, dc.gridSize)
	}
	sz := dc.PreferredSize()
	if sz.Width != 800 || sz.Height != 600 {
		t.Fatalf("unexpected PreferredSize: %v", sz)
	}
}

func TestDocumentCanvas_CoordinateMapping(t *testing.T) {
	test.NewTempApp(t)
	dc := NewDocumentCanvas()
	s := newSession()
	dc.SetSession(s)
	s.Canvas().Pan(10, 20)
	dc.zoom = 2

	p := dc.toCanvas(fyne.NewPos(100, 100))
	if p != (domain.Point{X: 40, Y: 30}) {
		t.Fatalf("toCanvas = %+v", p)
	}
	back := dc.toScreen(p)
	if back.X != 100 || back.Y != 100 {
		t.Fatalf("toScreen = %v", back)
	}
	b := dc.viewBounds(fyne.NewSize(100, 50))
	if b.Min != image.Pt(-10, -20) || b.Dx() != 51 {
		t.Fatalf("viewBounds = %v", b)
	}
}

func TestDocumentCanvas_PointerDrivesSession(t *testing.T) {
	test.NewTempApp(t)
	dc := NewDocumentCanvas()
	s := newSession()
	dc.SetSession(s)
	changed := 0
	dc.OnChange = func() { changed++ }

	dc.MouseDown(&desktop.MouseEvent{PointEvent: fyne.PointEvent{Position: fyne.NewPos(5, 5)}, Button: desktop.MouseButtonPrimary})
	dc.Dragged(&fyne.DragEvent{PointEvent: fyne.PointEvent{Position: fyne.NewPos(25, 5)}})
	dc.MouseUp(&desktop.MouseEvent{PointEvent: fyne.PointEvent{Position: fyne.NewPos(25, 5)}, Button: desktop.MouseButtonPrimary})

	if n := len(s.Canvas().Current().Strokes); n != 1 {
		t.Fatalf("strokes = %d", n)
	}
	if changed != 1 || !s.History().CanUndo() {
		t.Fatalf("change callback=%d undo=%v", changed, s.History().CanUndo())
	}
}

func TestDocumentCanvas_PaintAndLayout(t *testing.T) {
	test.NewTempApp(t)
	dc := NewDocumentCanvas()
	s := newSession()
	dc.SetSession(s)
	dc.SetBackground(color.White)
	dc.SetGrid(false, 64)
	s.PointerDown(domain.Point{X: 10, Y: 10}, false)
	s.PointerUp(domain.Point{X: 30, Y: 10})
	dc.Resize(fyne.NewSize(64, 32))

	r := dc.CreateRenderer().(*documentCanvasRenderer)
	r.Layout(fyne.NewSize(64, 32))
	img := r.paint()
	if img.Bounds().Dx() != 65 || img.Bounds().Dy() != 33 {
		t.Fatalf("paint bounds = %v", img.Bounds())
	}
	if cr, _, _, _ := img.At(20, 10).RGBA(); cr>>8 != 255 {
		t.Fatalf("stroke not painted")
	}
	if _, cg, _, _ := img.At(20, 25).RGBA(); cg>>8 != 255 {
		t.Fatalf("background not painted")
	}
	if r.region.Size().Width != 512 || r.region.Position().X != 0 {
		t.Fatalf("region outline at %v size %v", r.region.Position(), r.region.Size())
	}
}

func TestDrawGrid(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 10, 10))
	drawGrid(img, image.Pt(-4, 0), 4)
	if img.RGBAAt(0, 0).A == 0 || img.RGBAAt(4, 5).A == 0 {
		t.Fatalf("grid lines missing")
	}
	if img.RGBAAt(1, 1).A != 0 {
		t.Fatalf("unexpected grid pixel")
	}
}

func TestRecentDocuments(t *testing.T) {
	a := test.NewTempApp(t)
	prefs := a.Preferences()
	dir := t.TempDir()
	var paths []string
	for _, n := range []string{"a", "b"} {
		p := filepath.Join(dir, n+".airunner")
		if err := os.WriteFile(p, []byte("{}"), 0o644); err != nil {
			t.Fatal(err)
		}
		paths = append(paths, p)
	}
	addRecentDocument(prefs, paths[0])
	addRecentDocument(prefs, paths[1])
	addRecentDocument(prefs, paths[0])
	addRecentDocument(prefs, filepath.Join(dir, "missing.airunner"))
	got := loadRecentDocuments(prefs)
	if len(got) != 2 || got[0] != paths[0] || got[1] != paths[1] {
		t.Fatalf("recent = %v", got)
	}
}
