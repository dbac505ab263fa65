/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package storage

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"image/png"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"airunner/internal/canvas"
	"airunner/internal/domain"
)

const (
	DocumentExt    = ".airunner"
	BackupsDirName = "backups"
	// FormatVersion is written into every document file.
	FormatVersion = 1
)

// DocumentHandle ties an open canvas to its file. Canvas is the live document; Save
// serializes whatever it holds at that moment.
type DocumentHandle struct {
	Path   string
	Canvas *canvas.Canvas
}

// Dir returns the directory holding the document, its backups and its index.
func (h *DocumentHandle) Dir() string { return filepath.Dir(h.Path) }

// Name returns the document name without extension.
func (h *DocumentHandle) Name() string {
	return strings.TrimSuffix(filepath.Base(h.Path), DocumentExt)
}

// File is the on-disk shape of a document.
type File struct {
	Version         int          `json:"version"`
	Layers          []FileLayer  `json:"layers"`
	ImageRootPoint  domain.Point `json:"image_root_point"`
	ImagePivotPoint domain.Point `json:"image_pivot_point"`
	ActiveRegion    domain.Rect  `json:"active_region"`
	SavedAt         string       `json:"saved_at,omitempty"`
}

type FileLayer struct {
	ID      domain.LayerID  `json:"id"`
	Name    string          `json:"name"`
	Visible bool            `json:"visible"`
	Strokes []domain.Stroke `json:"strokes"`
	Images  []FileImage     `json:"images"`
}

type FileImage struct {
	PNG    string       `json:"png"` // base64
	Anchor domain.Point `json:"anchor"`
}

// Encode captures the canvas into its file representation. Layers are written top to bottom.
func Encode(c *canvas.Canvas) (File, error) {
	f := File{
		Version:         FormatVersion,
		Layers:          []FileLayer{},
		ImageRootPoint:  c.ImageRootPoint(),
		ImagePivotPoint: c.ImagePivotPoint(),
		ActiveRegion:    c.ActiveRegion(),
	}
	for _, l := range c.Layers() {
		fl := FileLayer{ID: l.ID, Name: l.Name, Visible: l.Visible, Strokes: l.Strokes, Images: []FileImage{}}
		if fl.Strokes == nil {
			fl.Strokes = []domain.Stroke{}
		}
		for _, pi := range l.Images {
			if pi.Image == nil {
				continue
			}
			var buf bytes.Buffer
			if err := png.Encode(&buf, pi.Image); err != nil {
				return File{}, fmt.Errorf("encode image on layer %q: %w", l.Name, err)
			}
			fl.Images = append(fl.Images, FileImage{PNG: base64.StdEncoding.EncodeToString(buf.Bytes()), Anchor: pi.Anchor})
		}
		f.Layers = append(f.Layers, fl)
	}
	return f, nil
}

// Decode rebuilds a canvas from its file representation.
func Decode(f File) (*canvas.Canvas, error) {
	layers := make([]*domain.Layer, 0, len(f.Layers))
	for _, fl := range f.Layers {
		l := &domain.Layer{ID: fl.ID, Name: fl.Name, Visible: fl.Visible, Strokes: fl.Strokes}
		if l.ID == "" {
			l.ID = domain.NewLayerID()
		}
		for i, fi := range fl.Images {
			data, err := base64.StdEncoding.DecodeString(fi.PNG)
			if err != nil {
				return nil, fmt.Errorf("layer %q image %d: %w", fl.Name, i, err)
			}
			img, err := png.Decode(bytes.NewReader(data))
			if err != nil {
				return nil, fmt.Errorf("layer %q image %d: %w", fl.Name, i, err)
			}
			l.Images = append(l.Images, domain.PlacedImage{Image: img, Anchor: fi.Anchor})
		}
		layers = append(layers, l)
	}
	return canvas.Restore(layers, f.ImageRootPoint, f.ImagePivotPoint, f.ActiveRegion), nil
}

// Create writes c as a new document at path. The extension is added when missing.
func Create(path string, c *canvas.Canvas) (*DocumentHandle, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("document path is required")
	}
	if !strings.HasSuffix(path, DocumentExt) {
		path += DocumentExt
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create document dir: %w", err)
	}
	h := &DocumentHandle{Path: path, Canvas: c}
	if err := Save(h); err != nil {
		return nil, err
	}
	return h, nil
}

// Open loads a document. If the file cannot be read, parsed or validated, the latest
// backup is tried.
func Open(path string) (*DocumentHandle, error) {
	c, err := readDocument(path)
	if err != nil {
		bc, berr := openFromLatestBackup(path)
		if berr != nil {
			return nil, fmt.Errorf("open document: %w; backup attempt: %v", err, berr)
		}
		return &DocumentHandle{Path: path, Canvas: bc}, nil
	}
	return &DocumentHandle{Path: path, Canvas: c}, nil
}

func readDocument(path string) (*canvas.Canvas, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := Validate(b); err != nil {
		return nil, err
	}
	var f File
	if err := json.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}
	return Decode(f)
}

func marshal(c *canvas.Canvas) ([]byte, error) {
	f, err := Encode(c)
	if err != nil {
		return nil, err
	}
	f.SavedAt = time.Now().UTC().Format(time.RFC3339)
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal document: %w", err)
	}
	return append(data, '\n'), nil
}

// Save writes the document with transactional semantics and a timestamped backup of the
// previous file (if present).
func Save(h *DocumentHandle) error {
	if h == nil || h.Canvas == nil {
		return errors.New("nil DocumentHandle")
	}
	if h.Path == "" {
		return errors.New("invalid DocumentHandle: missing path")
	}
	data, err := marshal(h.Canvas)
	if err != nil {
		return err
	}

	bdir := filepath.Join(h.Dir(), BackupsDirName)
	if err := os.MkdirAll(bdir, 0o755); err != nil {
		return fmt.Errorf("ensure backups dir: %w", err)
	}
	if _, statErr := os.Stat(h.Path); statErr == nil {
		stamp := time.Now().Format("20060102-150405.000")
		bpath := filepath.Join(bdir, fmt.Sprintf("%s.%s.bak", filepath.Base(h.Path), stamp))
		if cerr := copyFile(h.Path, bpath); cerr != nil {
			return fmt.Errorf("backup current document: %w", cerr)
		}
	}

	temp := filepath.Join(h.Dir(), fmt.Sprintf(".%s.tmp-%d-%d", filepath.Base(h.Path), os.Getpid(), rand.Int()))
	if werr := writeFileSync(temp, data); werr != nil {
		return fmt.Errorf("write temp document: %w", werr)
	}
	// On Windows, replace by removing destination first if needed
	if _, err := os.Stat(h.Path); err == nil {
		_ = os.Remove(h.Path)
	}
	if rerr := os.Rename(temp, h.Path); rerr != nil {
		_ = os.Remove(temp)
		return fmt.Errorf("replace document: %w", rerr)
	}
	return nil
}

// SaveAs writes the document to a new path and updates the handle. On failure the handle keeps
// its previous path.
func SaveAs(h *DocumentHandle, newPath string) error {
	if h == nil {
		return errors.New("nil DocumentHandle")
	}
	if newPath == "" {
		return errors.New("new path is empty")
	}
	if !strings.HasSuffix(newPath, DocumentExt) {
		newPath += DocumentExt
	}
	if err := os.MkdirAll(filepath.Dir(newPath), 0o755); err != nil {
		return fmt.Errorf("create document dir: %w", err)
	}
	old := h.Path
	h.Path = newPath
	if err := Save(h); err != nil {
		h.Path = old
		return err
	}
	return nil
}

// AutosaveCrashSnapshot writes the live document next to the original as
// <name>.airunner.crash-<stamp> without touching the document file itself.
func AutosaveCrashSnapshot(h *DocumentHandle) (string, error) {
	if h == nil || h.Canvas == nil || h.Path == "" {
		return "", errors.New("nil DocumentHandle")
	}
	data, err := marshal(h.Canvas)
	if err != nil {
		return "", err
	}
	path := fmt.Sprintf("%s.crash-%s", h.Path, time.Now().Format("20060102-150405"))
	if err := writeFileSync(path, data); err != nil {
		return "", fmt.Errorf("write crash snapshot: %w", err)
	}
	return path, nil
}

// writeFileSync writes data to a file, ensures it is flushed to disk.
func writeFileSync(path string, data []byte) (err error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	if _, err := f.Write(data); err != nil {
		return err
	}
	return f.Sync()
}

// copyFile copies a file from src to dst (overwrites dst if exists).
func copyFile(src, dst string) (err error) {
	sf, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := sf.Close(); err == nil {
			err = cerr
		}
	}()
	df, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := df.Close(); err == nil {
			err = cerr
		}
	}()
	if _, err := io.Copy(df, sf); err != nil {
		return err
	}
	return df.Sync()
}

// Backups lists the backups of the document at path, oldest first.
func Backups(path string) ([]string, error) {
	bdir := filepath.Join(filepath.Dir(path), BackupsDirName)
	ents, err := os.ReadDir(bdir)
	if err != nil {
		return nil, fmt.Errorf("read backups dir: %w", err)
	}
	prefix := filepath.Base(path) + "."
	var out []string
	for _, e := range ents {
		name := e.Name()
		if strings.HasPrefix(name, prefix) && strings.HasSuffix(name, ".bak") {
			out = append(out, filepath.Join(bdir, name))
		}
	}
	sort.Strings(out) // timestamp in name yields lexicographic order
	return out, nil
}

// openFromLatestBackup tries the backups newest first and returns the first one that loads.
func openFromLatestBackup(path string) (*canvas.Canvas, error) {
	candidates, err := Backups(path)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, errors.New("no backups found")
	}
	var lastErr error
	for i := len(candidates) - 1; i >= 0; i-- {
		c, err := readDocument(candidates[i])
		if err == nil {
			return c, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("read latest backup: %w", lastErr)
}
