/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package render rasterizes document layers. It is used by the UI surface, the exporters and
// the generation request builder; the canvas itself never draws pixels.
package render

import (
	"image"
	"image/color"
	"image/draw"
	"math"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/vector"

	"airunner/internal/domain"
)

// capSegments controls how round stroke caps are approximated.
const capSegments = 8

// Bounds returns the union of everything painted on the visible layers.
func Bounds(layers []*domain.Layer) image.Rectangle {
	var r image.Rectangle
	for _, l := range layers {
		if l == nil || !l.Visible {
			continue
		}
		for _, pi := range l.Images {
			r = r.Union(pi.Bounds())
		}
		for _, s := range l.Strokes {
			r = r.Union(strokeBounds(s))
		}
	}
	return r
}

// Flatten composites the visible layers into a new image covering bounds. layers is ordered
// top to bottom, so it is painted in reverse. bg may be nil for a transparent background.
func Flatten(layers []*domain.Layer, bounds image.Rectangle, bg color.Color) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	if bg != nil {
		xdraw.Draw(dst, dst.Bounds(), image.NewUniform(bg), image.Point{}, xdraw.Src)
	}
	for i := len(layers) - 1; i >= 0; i-- {
		DrawLayer(dst, layers[i], bounds.Min)
	}
	return dst
}

// DrawLayer paints one layer onto dst; origin is the canvas point mapped to dst's (0,0).
// Images are painted first and strokes over them.
func DrawLayer(dst draw.Image, l *domain.Layer, origin image.Point) {
	if l == nil || !l.Visible {
		return
	}
	for _, pi := range l.Images {
		if pi.Image == nil {
			continue
		}
		r := pi.Bounds().Sub(origin)
		xdraw.Draw(dst, r, pi.Image, pi.Image.Bounds().Min, xdraw.Over)
	}
	b := dst.Bounds()
	z := vector.NewRasterizer(b.Dx(), b.Dy())
	for _, s := range l.Strokes {
		DrawStroke(z, dst, s, origin)
	}
}

// DrawStroke rasterizes a stroke as a capsule of the stroke width. Eraser strokes clear pixels.
func DrawStroke(z *vector.Rasterizer, dst draw.Image, s domain.Stroke, origin image.Point) {
	b := dst.Bounds()
	z.Reset(b.Dx(), b.Dy())
	w := s.Width
	if w < 1 {
		w = 1
	}
	r := float64(w) / 2
	ax, ay := float64(s.Start.X-origin.X-b.Min.X), float64(s.Start.Y-origin.Y-b.Min.Y)
	bx, by := float64(s.End.X-origin.X-b.Min.X), float64(s.End.Y-origin.Y-b.Min.Y)
	theta := math.Atan2(by-ay, bx-ax)
	first := true
	arc := func(cx, cy, from float64) {
		for i := 0; i <= capSegments; i++ {
			a := from + math.Pi*float64(i)/capSegments
			x, y := float32(cx+r*math.Cos(a)), float32(cy+r*math.Sin(a))
			if first {
				z.MoveTo(x, y)
				first = false
				continue
			}
			z.LineTo(x, y)
		}
	}
	arc(bx, by, theta-math.Pi/2)
	arc(ax, ay, theta+math.Pi/2)
	z.ClosePath()

	var src image.Image = image.NewUniform(color.RGBA{R: s.Color.R, G: s.Color.G, B: s.Color.B, A: 255})
	z.DrawOp = draw.Over
	if s.Tool == domain.ToolEraser {
		src = image.Transparent
		z.DrawOp = draw.Src
	}
	z.Draw(dst, b, src, image.Point{})
}

// Mask returns a grayscale mask of img: white where img is fully transparent (area to
// synthesize), black where it already has content.
func Mask(img image.Image) *image.Gray {
	b := img.Bounds()
	m := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			_, _, _, a := img.At(x, y).RGBA()
			v := uint8(255)
			if a != 0 {
				v = 0
			}
			m.SetGray(x-b.Min.X, y-b.Min.Y, color.Gray{Y: v})
		}
	}
	return m
}

func strokeBounds(s domain.Stroke) image.Rectangle {
	h := (s.Width + 1) / 2
	r := image.Rect(s.Start.X, s.Start.Y, s.End.X, s.End.Y) // Rect canonicalizes
	return image.Rect(r.Min.X-h, r.Min.Y-h, r.Max.X+h+1, r.Max.Y+h+1)
}

// Region renders the visible layers inside r and returns the crop together with its mask.
// This is the input sent to the generation backend for the active region.
func Region(layers []*domain.Layer, r domain.Rect) (*image.RGBA, *image.Gray) {
	img := Flatten(layers, r.Image(), nil)
	return img, Mask(img)
}

// Thumbnail scales img down so that its longer side is at most size pixels.
func Thumbnail(img image.Image, size int) *image.RGBA {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if size > 0 && (w > size || h > size) {
		if w >= h {
			w, h = size, h*size/w
		} else {
			w, h = w*size/h, size
		}
	}
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	xdraw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, b, xdraw.Src, nil)
	return dst
}
