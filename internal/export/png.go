/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package export

import (
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"

	"airunner/internal/domain"
	"airunner/internal/render"
	"airunner/internal/storage"
)

// PNG flattens the visible layers into a single PNG at outPath.
func PNG(h *storage.DocumentHandle, outPath string, opt Options) error {
	if err := check(h); err != nil {
		return err
	}
	out, err := resolveOut(h, outPath)
	if err != nil {
		return err
	}
	b := bounds(h, opt)
	return writePNG(out, render.Flatten(h.Canvas.Layers(), b, toRGBA(opt.Background)))
}

// LayerPNGs writes each visible layer to its own PNG in outDir, named
// layer-<n>-<name>.png with n counting from the bottom layer. All files share the same bounds
// so they can be stacked again.
func LayerPNGs(h *storage.DocumentHandle, outDir string, opt Options) ([]string, error) {
	if err := check(h); err != nil {
		return nil, err
	}
	dir, err := resolveOut(h, filepath.Join(outDir, "x"))
	if err != nil {
		return nil, err
	}
	dir = filepath.Dir(dir)
	b := bounds(h, opt)
	layers := h.Canvas.Layers()
	var written []string
	for i := len(layers) - 1; i >= 0; i-- {
		l := layers[i]
		if !l.Visible {
			continue
		}
		img := render.Flatten([]*domain.Layer{l}, b, toRGBA(opt.Background))
		name := filepath.Join(dir, fmt.Sprintf("layer-%d-%s.png", len(layers)-i, safeName(l.Name)))
		if err := writePNG(name, img); err != nil {
			return written, err
		}
		written = append(written, name)
	}
	return written, nil
}

func writePNG(name string, img image.Image) error {
	f, err := os.Create(name)
	if err != nil {
		return fmt.Errorf("create png: %w", err)
	}
	if err := png.Encode(f, img); err != nil {
		_ = f.Close()
		return fmt.Errorf("encode png: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close png: %w", err)
	}
	return nil
}

// safeName keeps letters, digits, dash and underscore; everything else becomes '_'.
func safeName(s string) string {
	out := []rune(s)
	for i, r := range out {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			out[i] = '_'
		}
	}
	if len(out) == 0 {
		return "layer"
	}
	return string(out)
}
