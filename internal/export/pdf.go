/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package export

import (
	"bytes"
	"fmt"
	"image"
	"image/png"

	"github.com/jung-kurt/gofpdf"

	"airunner/internal/domain"
	"airunner/internal/storage"
	"airunner/internal/version"
)

// PDF writes the visible layers to a single-page PDF at outPath. One canvas pixel maps to one
// point. Placed images are embedded as PNG and strokes stay vector lines with round caps.
//
// Eraser strokes cannot clear embedded images in PDF; they are painted in the page
// background colour instead.
func PDF(h *storage.DocumentHandle, outPath string, opt Options) error {
	if err := check(h); err != nil {
		return err
	}
	out, err := resolveOut(h, outPath)
	if err != nil {
		return err
	}
	b := bounds(h, opt)
	w, ht := float64(b.Dx()), float64(b.Dy())

	pdf := gofpdf.NewCustom(&gofpdf.InitType{
		UnitStr: "pt",
		Size:    gofpdf.SizeType{Wd: w, Ht: ht},
	})
	pdf.SetTitle(fmt.Sprintf("%s - AI Runner", documentName(h)), false)
	pdf.SetCreator("AI Runner "+version.String(), false)
	pdf.SetMargins(0, 0, 0)
	pdf.SetAutoPageBreak(false, 0)
	pdf.AddPageFormat("", gofpdf.SizeType{Wd: w, Ht: ht})

	bg := domain.Color{R: 255, G: 255, B: 255}
	if opt.Background != nil {
		bg = *opt.Background
	}
	setFillColor(pdf, bg)
	pdf.Rect(0, 0, w, ht, "F")

	pdf.SetLineCapStyle("round")
	layers := h.Canvas.Layers()
	n := 0
	for i := len(layers) - 1; i >= 0; i-- {
		l := layers[i]
		if !l.Visible {
			continue
		}
		for _, pi := range l.Images {
			if pi.Image == nil {
				continue
			}
			n++
			if err := embedImage(pdf, fmt.Sprintf("img%d", n), pi, b.Min); err != nil {
				return err
			}
		}
		for _, s := range l.Strokes {
			c := s.Color
			if s.Tool == domain.ToolEraser {
				c = bg
			}
			setDrawColor(pdf, c)
			pdf.SetLineWidth(float64(max(1, s.Width)))
			pdf.Line(float64(s.Start.X-b.Min.X), float64(s.Start.Y-b.Min.Y), float64(s.End.X-b.Min.X), float64(s.End.Y-b.Min.Y))
		}
	}
	if err := pdf.OutputFileAndClose(out); err != nil {
		return fmt.Errorf("write pdf: %w", err)
	}
	return nil
}

func embedImage(pdf *gofpdf.Fpdf, name string, pi domain.PlacedImage, origin image.Point) error {
	var buf bytes.Buffer
	if err := png.Encode(&buf, pi.Image); err != nil {
		return fmt.Errorf("encode image: %w", err)
	}
	opt := gofpdf.ImageOptions{ImageType: "PNG"}
	pdf.RegisterImageOptionsReader(name, opt, &buf)
	if err := pdf.Error(); err != nil {
		return fmt.Errorf("register image: %w", err)
	}
	r := pi.Bounds().Sub(origin)
	pdf.ImageOptions(name, float64(r.Min.X), float64(r.Min.Y), float64(r.Dx()), float64(r.Dy()), false, opt, 0, "")
	return nil
}

func documentName(h *storage.DocumentHandle) string {
	if h.Path == "" {
		return "Untitled"
	}
	return h.Name()
}

func setDrawColor(pdf *gofpdf.Fpdf, c domain.Color) {
	pdf.SetDrawColor(int(c.R), int(c.G), int(c.B))
}

func setFillColor(pdf *gofpdf.Fpdf, c domain.Color) {
	pdf.SetFillColor(int(c.R), int(c.G), int(c.B))
}
