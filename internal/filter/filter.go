/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package filter holds the image filters that can be applied to the placed images of a layer.
// Every filter returns a new image with the same size as its input and never modifies the input.
package filter

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"sort"
	"strings"

	"github.com/disintegration/imaging"
)

// Filter transforms one image.
type Filter interface {
	Name() string
	Apply(img image.Image) image.Image
}

// GaussianBlur blurs with a Gaussian kernel; Radius is the standard deviation in pixels.
type GaussianBlur struct{ Radius float64 }

func (GaussianBlur) Name() string { return "gaussian-blur" }

func (f GaussianBlur) Apply(img image.Image) image.Image { return imaging.Blur(img, f.Radius) }

// BoxBlur averages each pixel over a (2*Radius+1) square. Edges repeat the border pixels.
type BoxBlur struct{ Radius int }

func (BoxBlur) Name() string { return "box-blur" }

func (f BoxBlur) Apply(img image.Image) image.Image {
	src := imaging.Clone(img)
	if f.Radius <= 0 {
		return src
	}
	w, h := src.Rect.Dx(), src.Rect.Dy()
	tmp := image.NewNRGBA(src.Rect)
	boxPass(src, tmp, w, h, f.Radius, true)
	out := image.NewNRGBA(src.Rect)
	boxPass(tmp, out, w, h, f.Radius, false)
	return out
}

// boxPass runs a one-dimensional running average along rows (horizontal) or columns.
func boxPass(src, dst *image.NRGBA, w, h, r int, horizontal bool) {
	lines, n := h, w
	if !horizontal {
		lines, n = w, h
	}
	offset := func(line, i int) int {
		i = min(max(i, 0), n-1)
		if horizontal {
			return line*src.Stride + i*4
		}
		return i*src.Stride + line*4
	}
	span := 2*r + 1
	for line := 0; line < lines; line++ {
		var sum [4]int
		for i := -r; i <= r; i++ {
			o := offset(line, i)
			for c := 0; c < 4; c++ {
				sum[c] += int(src.Pix[o+c])
			}
		}
		for i := 0; i < n; i++ {
			o := offset(line, i)
			for c := 0; c < 4; c++ {
				dst.Pix[o+c] = uint8((sum[c] + span/2) / span)
			}
			out, in := offset(line, i-r), offset(line, i+r+1)
			for c := 0; c < 4; c++ {
				sum[c] += int(src.Pix[in+c]) - int(src.Pix[out+c])
			}
		}
	}
}

// UnsharpMask sharpens by adding back Percent of the difference to a Gaussian blur of Radius.
// Channel differences below Threshold are left alone.
type UnsharpMask struct {
	Radius    float64
	Percent   int
	Threshold int
}

func (UnsharpMask) Name() string { return "unsharp-mask" }

func (f UnsharpMask) Apply(img image.Image) image.Image {
	src := imaging.Clone(img)
	blurred := imaging.Blur(src, f.Radius)
	out := image.NewNRGBA(src.Rect)
	for i := 0; i < len(src.Pix); i += 4 {
		for c := 0; c < 3; c++ {
			v := int(src.Pix[i+c])
			d := v - int(blurred.Pix[i+c])
			if abs(d) >= f.Threshold {
				v += d * f.Percent / 100
			}
			out.Pix[i+c] = clamp8(v)
		}
		out.Pix[i+3] = src.Pix[i+3]
	}
	return out
}

// Saturation scales colour saturation: 0 is greyscale, 1 the original, 2 double.
type Saturation struct{ Factor float64 }

func (Saturation) Name() string { return "saturation" }

func (f Saturation) Apply(img image.Image) image.Image {
	return imaging.AdjustSaturation(img, (f.Factor-1)*100)
}

// ColorBalance shifts each channel towards its colour (positive) or its complement (negative).
// Values are in -1..1.
type ColorBalance struct {
	CyanRed      float64
	MagentaGreen float64
	YellowBlue   float64
}

func (ColorBalance) Name() string { return "color-balance" }

func (f ColorBalance) Apply(img image.Image) image.Image {
	shift := func(v uint8, amount float64) uint8 {
		return clamp8(int(math.Round(float64(v) * (1 + amount))))
	}
	return imaging.AdjustFunc(img, func(c color.NRGBA) color.NRGBA {
		return color.NRGBA{
			R: shift(c.R, f.CyanRed),
			G: shift(c.G, f.MagentaGreen),
			B: shift(c.B, f.YellowBlue),
			A: c.A,
		}
	})
}

// PixelArt averages Size x Size blocks into single pixels and scales them back up. With Colors
// above 1 every channel is also reduced to that many levels.
type PixelArt struct {
	Size   int
	Colors int
}

func (PixelArt) Name() string { return "pixel-art" }

func (f PixelArt) Apply(img image.Image) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	var out *image.NRGBA
	if f.Size > 1 && w > 0 && h > 0 {
		small := imaging.Resize(img, max(1, w/f.Size), max(1, h/f.Size), imaging.Box)
		out = imaging.Resize(small, w, h, imaging.NearestNeighbor)
	} else {
		out = imaging.Clone(img)
	}
	if f.Colors > 1 {
		step := 255.0 / float64(f.Colors-1)
		q := func(v uint8) uint8 { return clamp8(int(math.Round(math.Round(float64(v)/step) * step))) }
		out = imaging.AdjustFunc(out, func(c color.NRGBA) color.NRGBA {
			return color.NRGBA{R: q(c.R), G: q(c.G), B: q(c.B), A: c.A}
		})
	}
	return out
}

var builders = map[string]func(amount float64) Filter{
	"gaussian-blur": func(a float64) Filter { return GaussianBlur{Radius: or(a, 2)} },
	"box-blur":      func(a float64) Filter { return BoxBlur{Radius: int(or(a, 2))} },
	"unsharp-mask":  func(a float64) Filter { return UnsharpMask{Radius: or(a, 2), Percent: 150, Threshold: 3} },
	"saturation":    func(a float64) Filter { return Saturation{Factor: or(a, 1.5)} },
	"color-balance": func(a float64) Filter { return ColorBalance{CyanRed: a} },
	"pixel-art":     func(a float64) Filter { return PixelArt{Size: int(or(a, 8)), Colors: 16} },
}

// Names lists the filters ByName knows, sorted.
func Names() []string {
	out := make([]string, 0, len(builders))
	for n := range builders {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// ByName builds a filter from its name and one main parameter; amount 0 picks the default,
// except for colour balance where 0 is a neutral shift.
// The parameter is the radius for blurs and unsharp mask, the factor for saturation, the
// cyan-red shift for colour balance and the block size for pixel art.
func ByName(name string, amount float64) (Filter, error) {
	b, ok := builders[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("unknown filter %q (known: %s)", name, strings.Join(Names(), ", "))
	}
	return b(amount), nil
}

func or(v, def float64) float64 {
	if v == 0 {
		return def
	}
	return v
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func clamp8(v int) uint8 {
	return uint8(min(max(v, 0), 255))
}
