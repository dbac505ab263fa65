//go:build fyne

/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package ui

import (
	"image"
	"image/color"
	"image/draw"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/driver/desktop"
	"fyne.io/fyne/v2/widget"

	"airunner/internal/domain"
	"airunner/internal/render"
	"airunner/internal/session"
)

// DocumentCanvas displays the open document and forwards pointer input to the session.
// It is the session's redraw surface.
type DocumentCanvas struct {
	widget.BaseWidget

	sess *session.Session
	zoom float32

	background color.Color
	showGrid   bool
	gridSize   int

	// OnChange runs after input that may have changed the document.
	OnChange func()
}

// NewDocumentCanvas creates the view. Attach a session with SetSession before showing it.
func NewDocumentCanvas() *DocumentCanvas {
	dc := &DocumentCanvas{
		zoom:       1,
		background: color.Black,
		showGrid:   true,
		gridSize:   64,
	}
	dc.ExtendBaseWidget(dc)
	return dc
}

// SetSession attaches the session whose canvas is displayed.
func (d *DocumentCanvas) SetSession(s *session.Session) {
	d.sess = s
	d.Refresh()
}

// SetGrid configures the grid overlay.
func (d *DocumentCanvas) SetGrid(show bool, size int) {
	d.showGrid, d.gridSize = show, size
	d.Refresh()
}

// SetBackground sets the colour behind all layers.
func (d *DocumentCanvas) SetBackground(c color.Color) {
	d.background = c
	d.Refresh()
}

// RequestRedraw implements the canvas surface. Calls arrive on the UI goroutine.
func (d *DocumentCanvas) RequestRedraw() { d.Refresh() }

// PreferredSize sets a decent default size for the widget.
func (d *DocumentCanvas) PreferredSize() fyne.Size { return fyne.NewSize(800, 600) }

func (d *DocumentCanvas) offset() domain.Point {
	if d.sess == nil {
		return domain.Point{}
	}
	return d.sess.Canvas().Offset()
}

// toCanvas maps a widget position to canvas coordinates.
func (d *DocumentCanvas) toCanvas(pos fyne.Position) domain.Point {
	o := d.offset()
	return domain.Point{
		X: int(pos.X/d.zoom) - o.X,
		Y: int(pos.Y/d.zoom) - o.Y,
	}
}

// toScreen maps a canvas point to a widget position.
func (d *DocumentCanvas) toScreen(p domain.Point) fyne.Position {
	o := d.offset()
	return fyne.NewPos(float32(p.X+o.X)*d.zoom, float32(p.Y+o.Y)*d.zoom)
}

// viewBounds is the canvas rectangle visible in a widget of the given size.
func (d *DocumentCanvas) viewBounds(size fyne.Size) image.Rectangle {
	o := d.offset()
	w, h := int(size.Width/d.zoom)+1, int(size.Height/d.zoom)+1
	return image.Rect(-o.X, -o.Y, -o.X+w, -o.Y+h)
}

func (d *DocumentCanvas) changed() {
	if d.OnChange != nil {
		d.OnChange()
	}
}

func (d *DocumentCanvas) MouseDown(e *desktop.MouseEvent) {
	if d.sess == nil {
		return
	}
	d.sess.PointerDown(d.toCanvas(e.Position), e.Button == desktop.MouseButtonSecondary)
}

func (d *DocumentCanvas) MouseUp(e *desktop.MouseEvent) {
	if d.sess == nil {
		return
	}
	d.sess.PointerUp(d.toCanvas(e.Position))
	d.changed()
}

func (d *DocumentCanvas) Dragged(e *fyne.DragEvent) {
	if d.sess == nil {
		return
	}
	d.sess.PointerMove(d.toCanvas(e.Position))
}

func (d *DocumentCanvas) DragEnd() {}

// Scrolled zooms the view.
func (d *DocumentCanvas) Scrolled(e *fyne.ScrollEvent) {
	d.zoom += e.Scrolled.DY * 0.05
	if d.zoom < 0.1 {
		d.zoom = 0.1
	}
	if d.zoom > 4.0 {
		d.zoom = 4.0
	}
	d.Refresh()
}

// CreateRenderer builds the raster view and the active region outline.
func (d *DocumentCanvas) CreateRenderer() fyne.WidgetRenderer {
	r := &documentCanvasRenderer{dc: d}
	r.raster = canvas.NewRaster(func(_, _ int) image.Image { return r.paint() })
	r.region = canvas.NewRectangle(color.Transparent)
	r.region.StrokeColor = color.RGBA{R: 0, G: 170, B: 255, A: 255}
	r.region.StrokeWidth = 1
	r.objects = []fyne.CanvasObject{r.raster, r.region}
	return r
}

type documentCanvasRenderer struct {
	dc      *DocumentCanvas
	raster  *canvas.Raster
	region  *canvas.Rectangle
	objects []fyne.CanvasObject
}

func (r *documentCanvasRenderer) Destroy()                     {}
func (r *documentCanvasRenderer) Objects() []fyne.CanvasObject { return r.objects }
func (r *documentCanvasRenderer) MinSize() fyne.Size           { return fyne.NewSize(200, 200) }

func (r *documentCanvasRenderer) Refresh() {
	r.Layout(r.dc.Size())
	canvas.Refresh(r.raster)
	canvas.Refresh(r.region)
}

func (r *documentCanvasRenderer) Layout(size fyne.Size) {
	r.raster.Resize(size)
	r.raster.Move(fyne.NewPos(0, 0))
	if r.dc.sess == nil {
		r.region.Hide()
		return
	}
	ar := r.dc.sess.Canvas().ActiveRegion()
	r.region.Move(r.dc.toScreen(ar.Origin()))
	r.region.Resize(fyne.NewSize(float32(ar.Width)*r.dc.zoom, float32(ar.Height)*r.dc.zoom))
	r.region.Show()
}

// paint renders the visible part of the document at one canvas pixel per widget unit; the
// raster scales it to the device.
func (r *documentCanvasRenderer) paint() image.Image {
	b := r.dc.viewBounds(r.dc.Size())
	if b.Empty() {
		return image.NewRGBA(image.Rect(0, 0, 1, 1))
	}
	if r.dc.sess == nil {
		img := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
		draw.Draw(img, img.Bounds(), image.NewUniform(r.dc.background), image.Point{}, draw.Src)
		return img
	}
	img := render.Flatten(r.dc.sess.Canvas().Layers(), b, r.dc.background)
	if r.dc.showGrid {
		drawGrid(img, b.Min, r.dc.gridSize)
	}
	return img
}

// drawGrid overlays faint grid lines every size canvas pixels.
func drawGrid(img *image.RGBA, origin image.Point, size int) {
	if size < 2 {
		return
	}
	line := color.RGBA{R: 80, G: 80, B: 80, A: 255}
	b := img.Bounds()
	for x := 0; x < b.Dx(); x++ {
		if (x+origin.X)%size != 0 {
			continue
		}
		for y := 0; y < b.Dy(); y++ {
			img.SetRGBA(x, y, line)
		}
	}
	for y := 0; y < b.Dy(); y++ {
		if (y+origin.Y)%size != 0 {
			continue
		}
		for x := 0; x < b.Dx(); x++ {
			img.SetRGBA(x, y, line)
		}
	}
}
