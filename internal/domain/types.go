/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package domain

// This file defines the entities of an airunner document: layers holding freehand strokes and
// placed raster images. Entities carry no behavior; every change goes through canvas.Canvas so
// that it can be captured as an undo event.

import (
	"image"

	"github.com/google/uuid"
)

// Point is an integer position in canvas coordinates.
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Add returns p translated by q.
func (p Point) Add(q Point) Point { return Point{X: p.X + q.X, Y: p.Y + q.Y} }

// Rect is an axis-aligned rectangle in canvas coordinates.
type Rect struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Origin returns the top-left corner.
func (r Rect) Origin() Point { return Point{X: r.X, Y: r.Y} }

// Empty reports whether the rectangle has no area.
func (r Rect) Empty() bool { return r.Width <= 0 || r.Height <= 0 }

// Image converts r to an image.Rectangle.
func (r Rect) Image() image.Rectangle { return image.Rect(r.X, r.Y, r.X+r.Width, r.Y+r.Height) }

// Color is an RGB triple. Strokes are always opaque.
type Color struct {
	R uint8 `json:"r"`
	G uint8 `json:"g"`
	B uint8 `json:"b"`
}

// ToolKind identifies the tool that produced a stroke.
type ToolKind string

const (
	ToolBrush  ToolKind = "brush"
	ToolEraser ToolKind = "eraser"
)

// Stroke is one straight freehand segment. Strokes are values and are never edited in place.
type Stroke struct {
	Start Point    `json:"start"`
	End   Point    `json:"end"`
	Color Color    `json:"color"`
	Width int      `json:"width"`
	Tool  ToolKind `json:"tool"`
}

// PlacedImage is a bitmap pasted or generated onto a layer at Anchor.
type PlacedImage struct {
	Image  image.Image
	Anchor Point
}

// Bounds returns the canvas-space rectangle covered by the image.
func (pi PlacedImage) Bounds() image.Rectangle {
	if pi.Image == nil {
		return image.Rectangle{}
	}
	b := pi.Image.Bounds()
	return image.Rect(pi.Anchor.X, pi.Anchor.Y, pi.Anchor.X+b.Dx(), pi.Anchor.Y+b.Dy())
}

// LayerID is the stable identity of a layer. It is never reused and is independent of the
// layer's position in the stack.
type LayerID string

// NewLayerID returns a fresh random identifier.
func NewLayerID() LayerID { return LayerID(uuid.NewString()) }

// Layer is one drawable surface. Strokes are kept in append order; later strokes paint over
// earlier ones.
type Layer struct {
	ID      LayerID
	Name    string
	Visible bool
	Strokes []Stroke
	Images  []PlacedImage
}

// NewLayer returns an empty visible layer with a fresh identifier.
func NewLayer(name string) *Layer {
	return &Layer{ID: NewLayerID(), Name: name, Visible: true}
}

// Clone returns a copy whose slices do not alias l. Image buffers are shared; they are treated
// as immutable once placed.
func (l *Layer) Clone() *Layer {
	if l == nil {
		return nil
	}
	c := *l
	c.Strokes = append([]Stroke(nil), l.Strokes...)
	c.Images = append([]PlacedImage(nil), l.Images...)
	return &c
}
