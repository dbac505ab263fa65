package domain

import (
	"encoding/json"
	"image"
	"testing"
)

func TestNewLayerHasDistinctIDs(t *testing.T) {
	a := NewLayer("a")
	b := NewLayer("b")
	if a.ID == "" || b.ID == "" {
		t.Fatalf("expected non-empty ids")
	}
	if a.ID == b.ID {
		t.Fatalf("ids must be unique: %s", a.ID)
	}
	if !a.Visible {
		t.Fatalf("new layer should be visible")
	}
}

func TestCloneDoesNotAlias(t *testing.T) {
	l := NewLayer("x")
	l.Strokes = []Stroke{{Start: Point{1, 2}, End: Point{3, 4}, Width: 2, Tool: ToolBrush}}
	c := l.Clone()
	c.Strokes[0].Width = 9
	c.Strokes = append(c.Strokes, Stroke{})
	if l.Strokes[0].Width != 2 || len(l.Strokes) != 1 {
		t.Fatalf("clone aliases source strokes: %+v", l.Strokes)
	}
	if c.ID != l.ID {
		t.Fatalf("clone should keep identity")
	}
}

func TestStrokeJSON(t *testing.T) {
	s := Stroke{Start: Point{1, 2}, End: Point{5, 6}, Color: Color{R: 10}, Width: 3, Tool: ToolEraser}
	b, err := json.Marshal(s)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var got Stroke
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got != s {
		t.Fatalf("got %+v want %+v", got, s)
	}
}

func TestPlacedImageBounds(t *testing.T) {
	pi := PlacedImage{Image: image.NewRGBA(image.Rect(0, 0, 4, 3)), Anchor: Point{10, 20}}
	if got, want := pi.Bounds(), image.Rect(10, 20, 14, 23); got != want {
		t.Fatalf("bounds = %v, want %v", got, want)
	}
	if (PlacedImage{}).Bounds() != (image.Rectangle{}) {
		t.Fatalf("nil image should have empty bounds")
	}
}
