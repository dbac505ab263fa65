/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package canvas

import (
	"image"
	"image/color"
	"reflect"
	"testing"

	"airunner/internal/domain"
	"airunner/internal/undo"
)

type state struct {
	Order   []domain.LayerID
	Current int
	Layers  []domain.Layer
	Root    domain.Point
	Pivot   domain.Point
}

func snapshot(c *Canvas) state {
	s := state{Order: c.Order(), Current: c.CurrentIndex(), Root: c.ImageRootPoint(), Pivot: c.ImagePivotPoint()}
	for _, l := range c.Layers() {
		cp := *l.Clone()
		if len(cp.Strokes) == 0 {
			cp.Strokes = nil
		}
		if len(cp.Images) == 0 {
			cp.Images = nil
		}
		s.Layers = append(s.Layers, cp)
	}
	return s
}

func stroke(x int) domain.Stroke {
	return domain.Stroke{Start: domain.Point{X: x, Y: 0}, End: domain.Point{X: x, Y: 10}, Color: domain.Color{R: 200}, Width: 2, Tool: domain.ToolBrush}
}

func solid(w, h int, c color.Color) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

type redrawCounter struct{ n int }

func (r *redrawCounter) RequestRedraw() { r.n++ }

func TestNewCanvasHasOneLayer(t *testing.T) {
	c := New()
	if c.Len() != 1 || c.CurrentIndex() != 0 {
		t.Fatalf("fresh canvas: len=%d current=%d", c.Len(), c.CurrentIndex())
	}
	if c.Current() == nil || c.Current().Name != "Layer 1" {
		t.Fatalf("unexpected default layer: %+v", c.Current())
	}
}

func TestAddLayerTwiceUndoRedo(t *testing.T) {
	c := NewEmpty()
	h := undo.NewHistory(undo.Config{})
	h.Record(c.AddLayer())
	first := c.Layer(0).ID
	h.Record(c.AddLayer())
	if c.Len() != 2 || c.CurrentIndex() != 0 {
		t.Fatalf("after two adds: len=%d current=%d", c.Len(), c.CurrentIndex())
	}
	if c.Layer(0).ID == c.Layer(1).ID {
		t.Fatalf("layers must have distinct ids")
	}
	h.Undo(c)
	if c.Len() != 1 || c.Layer(0).ID != first {
		t.Fatalf("undo should leave the first added layer, got %v", c.Order())
	}
	h.Redo(c)
	if c.Len() != 2 || c.CurrentIndex() != 0 {
		t.Fatalf("after redo: len=%d current=%d", c.Len(), c.CurrentIndex())
	}
}

func TestEraseUndoRedo(t *testing.T) {
	c := New()
	h := undo.NewHistory(undo.Config{})
	s1, s2, s3 := stroke(1), stroke(2), stroke(3)
	c.Draw(0, s1, s2, s3)
	h.Record(c.Erase(0, nil))
	if len(c.Layer(0).Strokes) != 0 {
		t.Fatalf("erase should clear strokes")
	}
	h.Undo(c)
	if got := c.Layer(0).Strokes; !reflect.DeepEqual(got, []domain.Stroke{s1, s2, s3}) {
		t.Fatalf("undo erase = %v", got)
	}
	h.Redo(c)
	if len(c.Layer(0).Strokes) != 0 {
		t.Fatalf("redo erase should clear strokes again, got %v", c.Layer(0).Strokes)
	}
}

func TestDrawUndoRedo(t *testing.T) {
	c := New()
	h := undo.NewHistory(undo.Config{})
	a, b := stroke(1), stroke(2)
	ev := c.Draw(0, a, b)
	if ev.Start != 0 || ev.End != 2 {
		t.Fatalf("draw range = [%d,%d)", ev.Start, ev.End)
	}
	h.Record(ev)
	h.Undo(c)
	if len(c.Layer(0).Strokes) != 0 {
		t.Fatalf("undo draw left %v", c.Layer(0).Strokes)
	}
	h.Redo(c)
	if got := c.Layer(0).Strokes; !reflect.DeepEqual(got, []domain.Stroke{a, b}) {
		t.Fatalf("redo draw = %v", got)
	}
}

func TestDrawUndoDrawRedoIsNoop(t *testing.T) {
	c := New()
	h := undo.NewHistory(undo.Config{})
	h.Record(c.Draw(0, stroke(1)))
	h.Undo(c)
	h.Record(c.Draw(0, stroke(2)))
	before := snapshot(c)
	if h.Redo(c) {
		t.Fatalf("redo after a new draw must have nothing to do")
	}
	if !reflect.DeepEqual(before, snapshot(c)) {
		t.Fatalf("state changed on empty redo")
	}
}

func TestDeleteUndoRestoresOrder(t *testing.T) {
	c := New()
	h := undo.NewHistory(undo.Config{})
	h.Record(c.AddLayer())
	h.Record(c.AddLayer())
	c.SetCurrentLayer(1)
	before := c.Order()
	h.Record(c.DeleteLayer(1))
	if c.Len() != 2 {
		t.Fatalf("delete should remove one layer")
	}
	h.Undo(c)
	if !reflect.DeepEqual(c.Order(), before) {
		t.Fatalf("order after undo = %v, want %v", c.Order(), before)
	}
	if c.CurrentIndex() != 1 {
		t.Fatalf("current after undo = %d, want 1", c.CurrentIndex())
	}
}

func TestDeleteClampsCurrent(t *testing.T) {
	c := New()
	c.AddLayer()
	c.AddLayer()
	c.SetCurrentLayer(2)
	c.DeleteLayer(2)
	if c.CurrentIndex() != 1 {
		t.Fatalf("current = %d, want 1", c.CurrentIndex())
	}
	c.SetCurrentLayer(1)
	keep := c.Layer(1).ID
	c.DeleteLayer(0)
	if c.Current().ID != keep {
		t.Fatalf("current should follow its layer after deleting above it")
	}
}

func TestDeleteLastLayerLeavesEmptyStack(t *testing.T) {
	c := New()
	h := undo.NewHistory(undo.Config{})
	h.Record(c.DeleteLayer(0))
	if c.Len() != 0 || c.CurrentIndex() != 0 {
		t.Fatalf("expected empty stack with current 0, got len=%d current=%d", c.Len(), c.CurrentIndex())
	}
	if c.Draw(0, stroke(1)) != nil || c.Erase(0, nil) != nil || c.DeleteLayer(0) != nil {
		t.Fatalf("index operations on an empty stack must be no-ops")
	}
	if c.PlaceImage(0, solid(1, 1, color.White), domain.Point{}) != nil {
		t.Fatalf("place image on empty stack must be a no-op")
	}
	h.Undo(c)
	if c.Len() != 1 {
		t.Fatalf("undo should bring the layer back")
	}
}

func TestMoveUpThenDownIsIdentity(t *testing.T) {
	c := New()
	c.AddLayer()
	c.AddLayer()
	before := c.Order()
	mid := c.Layer(1).ID
	if c.MoveLayerUp(mid) == nil {
		t.Fatalf("move up from the middle should happen")
	}
	if c.IndexOf(mid) != 0 {
		t.Fatalf("layer should now be on top")
	}
	c.MoveLayerDown(mid)
	if !reflect.DeepEqual(c.Order(), before) {
		t.Fatalf("order = %v, want %v", c.Order(), before)
	}
}

func TestMoveAtBoundaryIsNoop(t *testing.T) {
	c := New()
	c.AddLayer()
	if c.MoveLayerUp(c.Layer(0).ID) != nil {
		t.Fatalf("top layer cannot move up")
	}
	if c.MoveLayerDown(c.Layer(1).ID) != nil {
		t.Fatalf("bottom layer cannot move down")
	}
	if c.MoveLayerUp("missing") != nil {
		t.Fatalf("unknown layer must be a no-op")
	}
}

func TestMoveUndoRedo(t *testing.T) {
	c := New()
	h := undo.NewHistory(undo.Config{})
	c.AddLayer()
	c.AddLayer()
	before := snapshot(c)
	h.Record(c.MoveLayerDown(c.Layer(0).ID))
	after := snapshot(c)
	h.Undo(c)
	if !reflect.DeepEqual(before, snapshot(c)) {
		t.Fatalf("undo move did not restore state")
	}
	h.Redo(c)
	if !reflect.DeepEqual(after, snapshot(c)) {
		t.Fatalf("redo move did not reapply state")
	}
}

func TestToggleVisibilityNotRecorded(t *testing.T) {
	c := New()
	id := c.Layer(0).ID
	if c.ToggleLayerVisibility(id) {
		t.Fatalf("first toggle should hide the layer")
	}
	if !c.ToggleLayerVisibility(id) {
		t.Fatalf("second toggle should show the layer")
	}
}

func TestPlaceImageMovesAlignmentPoints(t *testing.T) {
	c := New()
	h := undo.NewHistory(undo.Config{})
	c.SetActiveRegion(domain.Rect{X: 64, Y: 32, Width: 128, Height: 128})
	img := solid(4, 4, color.White)
	h.Record(c.PlaceImage(0, img, domain.Point{X: 70, Y: 40}))
	if c.ImageRootPoint() != (domain.Point{X: 70, Y: 40}) || c.ImagePivotPoint() != (domain.Point{X: 64, Y: 32}) {
		t.Fatalf("root=%v pivot=%v", c.ImageRootPoint(), c.ImagePivotPoint())
	}
	h.Undo(c)
	if len(c.Layer(0).Images) != 0 || c.ImageRootPoint() != (domain.Point{}) || c.ImagePivotPoint() != (domain.Point{}) {
		t.Fatalf("undo should restore images and points")
	}
	h.Redo(c)
	if len(c.Layer(0).Images) != 1 || c.ImageRootPoint() != (domain.Point{X: 70, Y: 40}) {
		t.Fatalf("redo should reapply image placement")
	}
}

func TestEraseAt(t *testing.T) {
	c := New()
	c.Draw(0, stroke(0), stroke(50))
	if c.EraseAt(0, domain.Point{X: 200, Y: 200}, 3) != nil {
		t.Fatalf("erasing empty space must be a no-op")
	}
	ev := c.EraseAt(0, domain.Point{X: 2, Y: 5}, 2)
	if ev == nil || len(ev.Lines) != 2 {
		t.Fatalf("expected erase event holding the two old strokes, got %+v", ev)
	}
	if got := c.Layer(0).Strokes; len(got) != 1 || got[0].Start.X != 50 {
		t.Fatalf("remaining strokes = %v", got)
	}
}

func TestRedrawRequested(t *testing.T) {
	c := New()
	rc := &redrawCounter{}
	c.SetSurface(rc)
	c.Draw(0, stroke(1))
	c.AddLayer()
	c.Recenter()
	if rc.n != 3 {
		t.Fatalf("redraw requests = %d, want 3", rc.n)
	}
}

func TestSnap(t *testing.T) {
	if got := Snap(domain.Point{X: 13, Y: 31}, 8); got != (domain.Point{X: 16, Y: 32}) {
		t.Fatalf("Snap = %v", got)
	}
	if got := Snap(domain.Point{X: 13, Y: 31}, 1); got != (domain.Point{X: 13, Y: 31}) {
		t.Fatalf("grid 1 must not snap, got %v", got)
	}
}

func TestRestoreDropsDuplicates(t *testing.T) {
	a := domain.NewLayer("a")
	c := Restore([]*domain.Layer{a, a, nil}, domain.Point{X: 1}, domain.Point{Y: 2}, domain.Rect{})
	if c.Len() != 1 {
		t.Fatalf("len = %d", c.Len())
	}
	if c.ActiveRegion() != DefaultRegion {
		t.Fatalf("empty region should fall back to default")
	}
	if c.AddLayer(); c.Layer(0).Name != "Layer 2" {
		t.Fatalf("naming should continue after restored layers, got %q", c.Layer(0).Name)
	}
}
