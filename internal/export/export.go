/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package export writes documents to image and print formats. Exporters only read the canvas.
package export

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"os"
	"path/filepath"

	"airunner/internal/domain"
	"airunner/internal/render"
	"airunner/internal/storage"
)

// ExportsDirName is where relative output paths are resolved, next to the document.
const ExportsDirName = "exports"

// Scope selects which part of the canvas is exported.
type Scope string

const (
	// ScopeContent covers everything painted on visible layers.
	ScopeContent Scope = "content"
	// ScopeRegion covers the active region.
	ScopeRegion Scope = "region"
)

// Options are shared by all exporters.
type Options struct {
	Scope Scope
	// Background fills the page; nil keeps PNG output transparent and PDF pages white.
	Background *domain.Color
}

var errNilDocument = errors.New("document handle is nil")

// bounds resolves the canvas rectangle to export. An empty document falls back to the active
// region so that exports never produce zero-sized output.
func bounds(h *storage.DocumentHandle, opt Options) image.Rectangle {
	c := h.Canvas
	if opt.Scope != ScopeRegion {
		if b := render.Bounds(c.Layers()); !b.Empty() {
			return b
		}
	}
	return c.ActiveRegion().Image()
}

// resolveOut maps a relative output path into the document's exports folder and creates the
// parent directory.
func resolveOut(h *storage.DocumentHandle, out string) (string, error) {
	if !filepath.IsAbs(out) && h.Path != "" {
		out = filepath.Join(h.Dir(), ExportsDirName, out)
	}
	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		return "", fmt.Errorf("ensure out dir: %w", err)
	}
	return out, nil
}

func check(h *storage.DocumentHandle) error {
	if h == nil || h.Canvas == nil {
		return errNilDocument
	}
	return nil
}

func toRGBA(c *domain.Color) color.Color {
	if c == nil {
		return nil
	}
	return color.RGBA{R: c.R, G: c.G, B: c.B, A: 255}
}
