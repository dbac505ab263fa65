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
	"path/filepath"
	"strings"

	"airunner/internal/domain"
	"airunner/internal/storage"
)

// PresetName represents a named export preset.
type PresetName string

const (
	PresetWeb   PresetName = "web"
	PresetPrint PresetName = "print"
)

// Format names accepted by BatchExport.
const (
	FormatPNG    = "png"
	FormatLayers = "layers"
	FormatPDF    = "pdf"
)

// BatchOptions controls batch export across multiple formats.
//
// Path semantics:
//   - If OutDir is empty it defaults to the preset name. Relative directories are created under
//     <document dir>/exports/.
//   - Each format writes into its own subfolder: png/<name>.png, pdf/<name>.pdf and
//     layers/layer-<n>-<layer>.png.
type BatchOptions struct {
	Preset  PresetName
	Formats []string // empty means preset defaults
	Scope   Scope
	OutDir  string
}

// BatchExport runs exports according to the given preset and returns the files written.
func BatchExport(h *storage.DocumentHandle, opt BatchOptions) ([]string, error) {
	if err := check(h); err != nil {
		return nil, err
	}
	formats := opt.Formats
	if len(formats) == 0 {
		formats = presetDefaultFormats(opt.Preset)
	}
	baseOut := opt.OutDir
	if baseOut == "" {
		baseOut = string(opt.Preset)
		if baseOut == "" {
			baseOut = "default"
		}
	}
	if !filepath.IsAbs(baseOut) && h.Path != "" {
		baseOut = filepath.Join(h.Dir(), ExportsDirName, baseOut)
	}
	eo := Options{Scope: opt.Scope, Background: presetBackground(opt.Preset)}
	name := documentName(h)

	var written []string
	for _, f := range formats {
		switch strings.ToLower(strings.TrimSpace(f)) {
		case FormatPNG:
			out := filepath.Join(baseOut, FormatPNG, name+".png")
			if err := PNG(h, out, eo); err != nil {
				return written, fmt.Errorf("png: %w", err)
			}
			written = append(written, out)
		case FormatPDF:
			out := filepath.Join(baseOut, FormatPDF, name+".pdf")
			if err := PDF(h, out, eo); err != nil {
				return written, fmt.Errorf("pdf: %w", err)
			}
			written = append(written, out)
		case FormatLayers:
			files, err := LayerPNGs(h, filepath.Join(baseOut, FormatLayers), eo)
			written = append(written, files...)
			if err != nil {
				return written, fmt.Errorf("layers: %w", err)
			}
		default:
			return written, fmt.Errorf("unknown format: %s", f)
		}
	}
	return written, nil
}

func presetDefaultFormats(p PresetName) []string {
	switch p {
	case PresetWeb:
		return []string{FormatPNG, FormatLayers}
	case PresetPrint:
		return []string{FormatPDF, FormatPNG}
	default:
		return []string{FormatPNG}
	}
}

// presetBackground keeps web output transparent and flattens print output onto white.
func presetBackground(p PresetName) *domain.Color {
	if p == PresetPrint {
		return &domain.Color{R: 255, G: 255, B: 255}
	}
	return nil
}
