package render

import (
	"image"
	"image/color"
	"testing"

	"airunner/internal/domain"
)

func TestFlattenPaintsStrokes(t *testing.T) {
	l := domain.NewLayer("l")
	l.Strokes = []domain.Stroke{{Start: domain.Point{X: 2, Y: 5}, End: domain.Point{X: 18, Y: 5}, Color: domain.Color{R: 255}, Width: 4, Tool: domain.ToolBrush}}
	img := Flatten([]*domain.Layer{l}, image.Rect(0, 0, 20, 10), color.White)
	if got := img.RGBAAt(10, 5); got.R != 255 || got.G != 0 || got.B != 0 {
		t.Fatalf("stroke pixel = %+v, want red", got)
	}
	if got := img.RGBAAt(10, 0); got != (color.RGBA{255, 255, 255, 255}) {
		t.Fatalf("background pixel = %+v, want white", got)
	}
}

func TestFlattenSkipsHiddenAndOrdersTopLast(t *testing.T) {
	bottom := domain.NewLayer("bottom")
	bottom.Images = []domain.PlacedImage{{Image: fill(4, 4, color.RGBA{B: 255, A: 255})}}
	top := domain.NewLayer("top")
	top.Images = []domain.PlacedImage{{Image: fill(2, 2, color.RGBA{G: 255, A: 255})}}
	img := Flatten([]*domain.Layer{top, bottom}, image.Rect(0, 0, 4, 4), nil)
	if got := img.RGBAAt(0, 0); got.G != 255 {
		t.Fatalf("top layer should be painted last, got %+v", got)
	}
	if got := img.RGBAAt(3, 3); got.B != 255 {
		t.Fatalf("bottom layer should show where top is empty, got %+v", got)
	}
	top.Visible = false
	img = Flatten([]*domain.Layer{top, bottom}, image.Rect(0, 0, 4, 4), nil)
	if got := img.RGBAAt(0, 0); got.G != 0 || got.B != 255 {
		t.Fatalf("hidden layer must not be painted, got %+v", got)
	}
}

func TestRegionMask(t *testing.T) {
	l := domain.NewLayer("l")
	l.Images = []domain.PlacedImage{{Image: fill(4, 4, color.RGBA{R: 9, A: 255}), Anchor: domain.Point{X: 10, Y: 10}}}
	img, mask := Region([]*domain.Layer{l}, domain.Rect{X: 8, Y: 8, Width: 8, Height: 8})
	if img.Bounds().Dx() != 8 || mask.Bounds().Dy() != 8 {
		t.Fatalf("unexpected crop size %v", img.Bounds())
	}
	if mask.GrayAt(0, 0).Y != 255 {
		t.Fatalf("empty area should be white in mask")
	}
	if mask.GrayAt(3, 3).Y != 0 {
		t.Fatalf("painted area should be black in mask")
	}
}

func TestBounds(t *testing.T) {
	l := domain.NewLayer("l")
	l.Images = []domain.PlacedImage{{Image: fill(4, 4, color.Black), Anchor: domain.Point{X: 100, Y: 100}}}
	if got := Bounds([]*domain.Layer{l}); got != image.Rect(100, 100, 104, 104) {
		t.Fatalf("Bounds = %v", got)
	}
}

func fill(w, h int, c color.Color) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func TestThumbnail(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 200, 100))
	if b := Thumbnail(src, 64).Bounds(); b.Dx() != 64 || b.Dy() != 32 {
		t.Fatalf("thumbnail bounds = %v", b)
	}
	if b := Thumbnail(src, 0).Bounds(); b.Dx() != 200 {
		t.Fatalf("max 0 keeps size, got %v", b)
	}
	tall := image.NewRGBA(image.Rect(0, 0, 10, 300))
	if b := Thumbnail(tall, 30).Bounds(); b.Dx() != 1 || b.Dy() != 30 {
		t.Fatalf("tall thumbnail bounds = %v", b)
	}
}
