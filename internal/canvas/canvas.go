/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package canvas holds the layer stack of a document and is the only sanctioned way to change it.
// Every content mutation returns the undo event describing it; callers record that event in an
// undo.History. Index 0 of the stack is the topmost layer.
//
// A Canvas is not safe for concurrent use. All calls must come from the control (UI) thread.
package canvas

import (
	"fmt"
	"image"
	"math"

	"airunner/internal/domain"
	"airunner/internal/undo"
)

// DefaultRegion is the active region of a fresh canvas.
var DefaultRegion = domain.Rect{X: 0, Y: 0, Width: 512, Height: 512}

// Surface is the rendering collaborator. The canvas never draws pixels itself.
type Surface interface {
	RequestRedraw()
}

// Canvas owns the ordered layer stack, the current layer, the active region, the image
// alignment points and the pan offset.
type Canvas struct {
	layers  map[domain.LayerID]*domain.Layer
	order   []domain.LayerID
	current int
	created int

	region domain.Rect
	root   domain.Point
	pivot  domain.Point
	offset domain.Point

	surface Surface
}

// New returns a canvas with a single empty layer selected.
func New() *Canvas {
	c := NewEmpty()
	l := c.newLayer()
	c.layers[l.ID] = l
	c.order = []domain.LayerID{l.ID}
	return c
}

// NewEmpty returns a canvas without layers. Callers must add a layer before drawing.
func NewEmpty() *Canvas {
	return &Canvas{
		layers: make(map[domain.LayerID]*domain.Layer),
		region: DefaultRegion,
	}
}

// Restore builds a canvas from loaded document state. The canvas takes ownership of layers.
// Duplicate or nil layers are dropped.
func Restore(layers []*domain.Layer, root, pivot domain.Point, region domain.Rect) *Canvas {
	c := NewEmpty()
	for _, l := range layers {
		if l == nil {
			continue
		}
		if _, dup := c.layers[l.ID]; dup || l.ID == "" {
			continue
		}
		c.layers[l.ID] = l
		c.order = append(c.order, l.ID)
	}
	c.created = len(c.order)
	c.root, c.pivot = root, pivot
	if !region.Empty() {
		c.region = region
	}
	return c
}

// SetSurface attaches the rendering surface that receives redraw requests.
func (c *Canvas) SetSurface(s Surface) { c.surface = s }

func (c *Canvas) redraw() {
	if c.surface != nil {
		c.surface.RequestRedraw()
	}
}

func (c *Canvas) newLayer() *domain.Layer {
	c.created++
	return domain.NewLayer(fmt.Sprintf("Layer %d", c.created))
}

// Len returns the number of layers.
func (c *Canvas) Len() int { return len(c.order) }

// Layers returns the live layers from top to bottom. Callers must treat them as read-only.
func (c *Canvas) Layers() []*domain.Layer {
	out := make([]*domain.Layer, len(c.order))
	for i, id := range c.order {
		out[i] = c.layers[id]
	}
	return out
}

// Layer returns the layer at index or nil when the index is out of range.
func (c *Canvas) Layer(index int) *domain.Layer {
	if index < 0 || index >= len(c.order) {
		return nil
	}
	return c.layers[c.order[index]]
}

// Order returns the layer identifiers from top to bottom.
func (c *Canvas) Order() []domain.LayerID { return append([]domain.LayerID(nil), c.order...) }

// IndexOf returns the stack position of id or -1.
func (c *Canvas) IndexOf(id domain.LayerID) int {
	for i, o := range c.order {
		if o == id {
			return i
		}
	}
	return -1
}

// CurrentIndex returns the selected layer index (0 when the stack is empty).
func (c *Canvas) CurrentIndex() int { return c.current }

// Current returns the selected layer or nil when the stack is empty.
func (c *Canvas) Current() *domain.Layer { return c.Layer(c.current) }

// SetCurrentLayer selects the layer at index. Out-of-range indexes are ignored.
func (c *Canvas) SetCurrentLayer(index int) bool {
	if index < 0 || index >= len(c.order) {
		return false
	}
	c.current = index
	c.redraw()
	return true
}

func (c *Canvas) ActiveRegion() domain.Rect     { return c.region }
func (c *Canvas) ImageRootPoint() domain.Point  { return c.root }
func (c *Canvas) ImagePivotPoint() domain.Point { return c.pivot }
func (c *Canvas) Offset() domain.Point          { return c.offset }

// SetActiveRegion moves or resizes the working region sent to the generation backend.
func (c *Canvas) SetActiveRegion(r domain.Rect) {
	if r.Empty() {
		return
	}
	c.region = r
	c.redraw()
}

// Pan shifts the view offset.
func (c *Canvas) Pan(dx, dy int) {
	c.offset = c.offset.Add(domain.Point{X: dx, Y: dy})
	c.redraw()
}

// Recenter resets the view offset.
func (c *Canvas) Recenter() {
	c.offset = domain.Point{}
	c.redraw()
}

// AddLayer inserts a new empty layer at the top of the stack and selects it.
func (c *Canvas) AddLayer() *undo.NewLayer {
	prev := c.current
	l := c.newLayer()
	c.layers[l.ID] = l
	c.order = append([]domain.LayerID{l.ID}, c.order...)
	c.current = 0
	c.redraw()
	return &undo.NewLayer{Layer: l.ID, PrevCurrent: prev, NextCurrent: 0}
}

// DeleteLayer removes the layer at index. The current index keeps pointing at the same layer
// where possible and is clamped into range otherwise. Deleting the last layer leaves the stack
// empty; callers should add a layer before allowing further drawing.
func (c *Canvas) DeleteLayer(index int) *undo.DeleteLayer {
	if index < 0 || index >= len(c.order) {
		return nil
	}
	before := c.Order()
	prev := c.current
	id := c.order[index]
	l := c.layers[id]
	delete(c.layers, id)
	c.order = append(c.order[:index:index], c.order[index+1:]...)
	if index < c.current {
		c.current--
	}
	c.clampCurrent()
	c.redraw()
	return &undo.DeleteLayer{Order: before, LayerIndex: index, Current: prev, Layer: id, Detached: l}
}

// MoveLayerUp swaps the layer with its neighbour towards the top. It is a no-op at the top.
func (c *Canvas) MoveLayerUp(id domain.LayerID) *undo.MoveLayer {
	i := c.IndexOf(id)
	if i <= 0 {
		return nil
	}
	return c.swap(i, i-1)
}

// MoveLayerDown swaps the layer with its neighbour towards the bottom. It is a no-op at the bottom.
func (c *Canvas) MoveLayerDown(id domain.LayerID) *undo.MoveLayer {
	i := c.IndexOf(id)
	if i < 0 || i >= len(c.order)-1 {
		return nil
	}
	return c.swap(i, i+1)
}

func (c *Canvas) swap(i, j int) *undo.MoveLayer {
	ev := &undo.MoveLayer{Order: c.Order(), Current: c.current}
	c.order[i], c.order[j] = c.order[j], c.order[i]
	switch c.current {
	case i:
		c.current = j
	case j:
		c.current = i
	}
	c.redraw()
	return ev
}

// ToggleLayerVisibility flips the visibility flag. Visibility is a view setting and is not
// recorded in history.
func (c *Canvas) ToggleLayerVisibility(id domain.LayerID) bool {
	l, ok := c.layers[id]
	if !ok {
		return false
	}
	l.Visible = !l.Visible
	c.redraw()
	return l.Visible
}

// Draw appends a contiguous run of strokes to the layer at index.
func (c *Canvas) Draw(index int, strokes ...domain.Stroke) *undo.Draw {
	l := c.Layer(index)
	if l == nil || len(strokes) == 0 {
		return nil
	}
	start := len(l.Strokes)
	l.Strokes = append(l.Strokes, strokes...)
	c.redraw()
	return &undo.Draw{Layer: l.ID, Start: start, End: len(l.Strokes)}
}

// Erase replaces the strokes of the layer at index wholesale. The event keeps the old sequence.
func (c *Canvas) Erase(index int, strokes []domain.Stroke) *undo.Erase {
	l := c.Layer(index)
	if l == nil {
		return nil
	}
	old := l.Strokes
	l.Strokes = append([]domain.Stroke(nil), strokes...)
	c.redraw()
	return &undo.Erase{Layer: l.ID, Lines: old}
}

// EraseAt removes every stroke of the layer at index that passes within radius of p.
// It returns nil when nothing was hit.
func (c *Canvas) EraseAt(index int, p domain.Point, radius int) *undo.Erase {
	l := c.Layer(index)
	if l == nil {
		return nil
	}
	kept := make([]domain.Stroke, 0, len(l.Strokes))
	for _, s := range l.Strokes {
		if !strokeHit(s, p, radius) {
			kept = append(kept, s)
		}
	}
	if len(kept) == len(l.Strokes) {
		return nil
	}
	return c.Erase(index, kept)
}

// PlaceImage appends img to the layer at index and moves the alignment points: the root point
// becomes the anchor and the pivot point the active region origin.
func (c *Canvas) PlaceImage(index int, img image.Image, anchor domain.Point) *undo.SetImage {
	l := c.Layer(index)
	if l == nil || img == nil {
		return nil
	}
	ev := &undo.SetImage{Layer: l.ID, Images: l.Images, RootPoint: c.root, PivotPoint: c.pivot}
	images := make([]domain.PlacedImage, 0, len(l.Images)+1)
	images = append(images, l.Images...)
	l.Images = append(images, domain.PlacedImage{Image: img, Anchor: anchor})
	c.root = anchor
	c.pivot = c.region.Origin()
	c.redraw()
	return ev
}

// InvertImages replaces the images of the layer at index with colour-inverted copies.
func (c *Canvas) InvertImages(index int) *undo.SetImage {
	return c.mapImages(index, invert)
}

// ImageFilter transforms one placed image into a new one.
type ImageFilter interface {
	Apply(img image.Image) image.Image
}

// FilterImages replaces the images of the layer at index with filtered copies. Anchors and
// the alignment points are unchanged.
func (c *Canvas) FilterImages(index int, f ImageFilter) *undo.SetImage {
	if f == nil {
		return nil
	}
	return c.mapImages(index, f.Apply)
}

func (c *Canvas) mapImages(index int, fn func(image.Image) image.Image) *undo.SetImage {
	l := c.Layer(index)
	if l == nil || len(l.Images) == 0 {
		return nil
	}
	ev := &undo.SetImage{Layer: l.ID, Images: l.Images, RootPoint: c.root, PivotPoint: c.pivot}
	mapped := make([]domain.PlacedImage, len(l.Images))
	for i, pi := range l.Images {
		mapped[i] = pi
		if pi.Image != nil {
			mapped[i].Image = fn(pi.Image)
		}
	}
	l.Images = mapped
	c.redraw()
	return ev
}

// ImportImage places img on the current layer at the active region origin.
func (c *Canvas) ImportImage(img image.Image) *undo.SetImage {
	return c.PlaceImage(c.current, img, c.region.Origin())
}

// Snap rounds p to the nearest multiple of grid. A grid below 2 leaves p unchanged.
func Snap(p domain.Point, grid int) domain.Point {
	if grid < 2 {
		return p
	}
	r := func(v int) int {
		return int(math.Round(float64(v)/float64(grid))) * grid
	}
	return domain.Point{X: r(p.X), Y: r(p.Y)}
}

func (c *Canvas) clampCurrent() {
	switch {
	case len(c.order) == 0:
		c.current = 0
	case c.current >= len(c.order):
		c.current = len(c.order) - 1
	case c.current < 0:
		c.current = 0
	}
}

// strokeHit reports whether p lies within radius of the stroke's painted area.
func strokeHit(s domain.Stroke, p domain.Point, radius int) bool {
	ax, ay := float64(s.Start.X), float64(s.Start.Y)
	bx, by := float64(s.End.X), float64(s.End.Y)
	px, py := float64(p.X), float64(p.Y)
	dx, dy := bx-ax, by-ay
	t := 0.0
	if l2 := dx*dx + dy*dy; l2 > 0 {
		t = ((px-ax)*dx + (py-ay)*dy) / l2
		t = math.Max(0, math.Min(1, t))
	}
	cx, cy := ax+t*dx, ay+t*dy
	reach := float64(radius) + float64(s.Width)/2
	return math.Hypot(px-cx, py-cy) <= reach
}
