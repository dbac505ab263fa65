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

	xdraw "golang.org/x/image/draw"

	"airunner/internal/domain"
	"airunner/internal/undo"
)

// Clipboard is the system clipboard as seen by the canvas.
type Clipboard interface {
	Image() (image.Image, bool)
	SetImage(img image.Image)
}

// MemClipboard is an in-process Clipboard used by headless builds and tests.
type MemClipboard struct {
	img image.Image
}

func (m *MemClipboard) Image() (image.Image, bool) { return m.img, m.img != nil }
func (m *MemClipboard) SetImage(img image.Image)   { m.img = img }

// CopyImage puts the most recently placed image of the current layer on the clipboard.
func (c *Canvas) CopyImage(cb Clipboard) bool {
	l := c.Current()
	if l == nil || len(l.Images) == 0 || cb == nil {
		return false
	}
	cb.SetImage(l.Images[len(l.Images)-1].Image)
	return true
}

// PasteImage places the clipboard image on the current layer at the active region origin.
// With resize set, the image is scaled to the active region first.
func (c *Canvas) PasteImage(cb Clipboard, resize bool) *undo.SetImage {
	if cb == nil {
		return nil
	}
	img, ok := cb.Image()
	if !ok || img == nil {
		return nil
	}
	if resize {
		img = scaleTo(img, c.region)
	}
	return c.ImportImage(img)
}

func scaleTo(img image.Image, r domain.Rect) image.Image {
	b := img.Bounds()
	if r.Empty() || (b.Dx() == r.Width && b.Dy() == r.Height) {
		return img
	}
	dst := image.NewRGBA(image.Rect(0, 0, r.Width, r.Height))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), img, b, xdraw.Over, nil)
	return dst
}

// invert returns a copy of img with RGB channels inverted; alpha is preserved.
func invert(img image.Image) image.Image {
	if img == nil {
		return nil
	}
	b := img.Bounds()
	out := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			out.SetNRGBA(x-b.Min.X, y-b.Min.Y, color.NRGBA{R: 255 - c.R, G: 255 - c.G, B: 255 - c.B, A: c.A})
		}
	}
	return out
}
