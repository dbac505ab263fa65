/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package session is the editor shell around one open document. It routes user input to the
// canvas, records the returned events in the document's history, and applies generation
// results. All methods run on the control thread; Session is not safe for concurrent use.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"

	"airunner/internal/canvas"
	"airunner/internal/config"
	"airunner/internal/domain"
	"airunner/internal/filter"
	applog "airunner/internal/log"
	"airunner/internal/storage"
	"airunner/internal/telemetry"
	"airunner/internal/undo"
)

// Tool selects what pointer input does.
type Tool string

const (
	ToolBrush        Tool = "brush"
	ToolEraser       Tool = "eraser"
	ToolActiveRegion Tool = "active_region"
	ToolMove         Tool = "move"
)

// UntitledName is shown for documents that were never saved.
const UntitledName = "Untitled"

// ErrNoDocumentPath is returned by Save for a document that has never been saved.
var ErrNoDocumentPath = errors.New("session: document has no path, use SaveAs")

// Settings are the editor preferences the shell reads.
type Settings struct {
	BrushSize     int
	Primary       domain.Color
	Secondary     domain.Color
	GridSize      int
	SnapToGrid    bool
	NSFWFilter    bool
	ResizeOnPaste bool
	WorkingRegion domain.Rect
	MaxDepth      int
}

// SettingsFrom maps the persisted configuration onto shell settings.
func SettingsFrom(cfg config.AppConfig) Settings {
	cfg.Normalize()
	primary, _ := config.ParseColor(cfg.Canvas.PrimaryColor)
	secondary, _ := config.ParseColor(cfg.Canvas.SecondaryColor)
	return Settings{
		BrushSize:     cfg.Canvas.BrushSize,
		Primary:       primary,
		Secondary:     secondary,
		GridSize:      cfg.Canvas.GridSize,
		SnapToGrid:    cfg.Canvas.SnapToGrid,
		NSFWFilter:    cfg.General.NSFWFilter,
		ResizeOnPaste: cfg.General.ResizeOnPaste,
		WorkingRegion: cfg.Canvas.WorkingRegion(),
		MaxDepth:      cfg.History.MaxDepth,
	}
}

// Option configures a Session.
type Option func(*Session)

// WithSurface attaches the view that receives redraw requests.
func WithSurface(s canvas.Surface) Option { return func(ss *Session) { ss.surface = s } }

// WithClipboard replaces the in-memory clipboard.
func WithClipboard(cb canvas.Clipboard) Option { return func(ss *Session) { ss.clipboard = cb } }

// WithGenerator sets where generation jobs are submitted.
func WithGenerator(g Submitter) Option { return func(ss *Session) { ss.gen = g } }

// Session owns one canvas and its history.
type Session struct {
	settings  Settings
	canvas    *canvas.Canvas
	history   *undo.History
	doc       *storage.DocumentHandle
	surface   canvas.Surface
	clipboard canvas.Clipboard
	gen       Submitter
	tool      Tool
	dirty     bool

	status    string
	statusErr bool

	gesture gesture
	pending map[string]pendingJob
	log     *slog.Logger
}

// New creates a shell with a fresh single-layer document.
func New(settings Settings, opts ...Option) *Session {
	s := &Session{
		settings:  settings,
		clipboard: &canvas.MemClipboard{},
		tool:      ToolBrush,
		pending:   make(map[string]pendingJob),
		log:       applog.WithComponent("session"),
	}
	for _, o := range opts {
		o(s)
	}
	s.history = undo.NewHistory(undo.Config{MaxDepth: settings.MaxDepth})
	s.NewDocument()
	return s
}

// replace installs c as the open document. History never outlives the canvas it was
// recorded against.
func (s *Session) replace(c *canvas.Canvas, doc *storage.DocumentHandle) {
	s.gesture = gesture{}
	c.SetSurface(s.surface)
	s.canvas = c
	s.doc = doc
	s.history.Clear()
	s.history.SetMaxDepth(s.settings.MaxDepth)
	s.pending = make(map[string]pendingJob)
	s.dirty = false
	if s.surface != nil {
		s.surface.RequestRedraw()
	}
}

// NewDocument discards the open document and starts an empty one with a single layer.
func (s *Session) NewDocument() {
	c := canvas.New()
	if !s.settings.WorkingRegion.Empty() {
		c.SetActiveRegion(s.settings.WorkingRegion)
	}
	s.replace(c, nil)
	s.setStatus("New document", false)
	telemetry.Event(telemetry.EventDocumentNew, nil)
}

// Load opens the document at path and makes it the open document.
func (s *Session) Load(path string) error {
	l := applog.WithOperation(s.log, "open").With(slog.String("path", path))
	h, err := storage.Open(path)
	if err != nil {
		l.Error("open failed", slog.Any("err", err))
		s.setStatus(fmt.Sprintf("Could not open %s", filepath.Base(path)), true)
		return err
	}
	if h.Canvas.Len() == 0 {
		h.Canvas.AddLayer()
	}
	s.replace(h.Canvas, h)
	if rebuilt, err := storage.DetectAndRebuildIndex(context.Background(), h.Path); err != nil {
		l.Warn("generation index check failed", slog.Any("err", err))
	} else if rebuilt {
		l.Warn("generation index was rebuilt")
	}
	l.Info("document opened", slog.Int("layers", h.Canvas.Len()))
	s.setStatus(fmt.Sprintf("Opened %s", h.Name()), false)
	telemetry.Event(telemetry.EventDocumentOpen, map[string]any{"layers": h.Canvas.Len()})
	return nil
}

// Save writes the open document to its path.
func (s *Session) Save() error {
	if s.doc == nil {
		return ErrNoDocumentPath
	}
	s.finishGesture()
	if err := storage.Save(s.doc); err != nil {
		s.log.Error("save failed", slog.String("path", s.doc.Path), slog.Any("err", err))
		s.setStatus("Save failed", true)
		return err
	}
	s.dirty = false
	s.setStatus(fmt.Sprintf("Saved %s", s.doc.Name()), false)
	return nil
}

// SaveAs writes the open document to path and keeps editing it there. History is kept.
func (s *Session) SaveAs(path string) error {
	s.finishGesture()
	if s.doc == nil {
		h, err := storage.Create(path, s.canvas)
		if err != nil {
			s.setStatus("Save failed", true)
			return err
		}
		s.doc = h
	} else if err := storage.SaveAs(s.doc, path); err != nil {
		s.setStatus("Save failed", true)
		return err
	}
	s.dirty = false
	s.setStatus(fmt.Sprintf("Saved %s", s.doc.Name()), false)
	return nil
}

// Document returns the handle of the open document, or nil when it was never saved.
func (s *Session) Document() *storage.DocumentHandle { return s.doc }

// CrashHandle returns a handle suitable for crash autosave. Unsaved documents are autosaved
// into fallbackDir.
func (s *Session) CrashHandle(fallbackDir string) *storage.DocumentHandle {
	if s.doc != nil {
		return s.doc
	}
	if fallbackDir == "" {
		return nil
	}
	return &storage.DocumentHandle{Path: filepath.Join(fallbackDir, UntitledName+storage.DocumentExt), Canvas: s.canvas}
}

// Canvas exposes the open document for rendering. Mutate it only through Session.
func (s *Session) Canvas() *canvas.Canvas { return s.canvas }

// History exposes the undo log for inspection.
func (s *Session) History() *undo.History { return s.history }

// Settings returns the current settings.
func (s *Session) Settings() Settings { return s.settings }

// UpdateSettings replaces the settings. A new history depth applies to the open document too.
func (s *Session) UpdateSettings(st Settings) {
	s.settings = st
	s.history.SetMaxDepth(st.MaxDepth)
}

// Tool returns the active tool.
func (s *Session) Tool() Tool { return s.tool }

// SetTool switches the pointer tool, committing any stroke in progress.
func (s *Session) SetTool(t Tool) {
	s.finishGesture()
	s.tool = t
}

// Dirty reports unsaved changes.
func (s *Session) Dirty() bool { return s.dirty }

// Saved reports whether the open document matches its file on disk.
func (s *Session) Saved() bool { return s.doc != nil && !s.dirty }

// Name returns the document name without extension.
func (s *Session) Name() string {
	if s.doc == nil {
		return UntitledName
	}
	return s.doc.Name()
}

// Title is the window title: document name, with a marker for unsaved changes.
func (s *Session) Title() string {
	var b strings.Builder
	b.WriteString("AI Runner - ")
	b.WriteString(s.Name())
	if s.dirty {
		b.WriteString(" *")
	}
	return b.String()
}

// Status returns the latest status message and whether it reports an error.
func (s *Session) Status() (string, bool) { return s.status, s.statusErr }

func (s *Session) setStatus(msg string, isErr bool) {
	s.status, s.statusErr = msg, isErr
	if isErr {
		s.log.Warn("status", slog.String("msg", msg))
	} else {
		s.log.Debug("status", slog.String("msg", msg))
	}
}

// record stores ev in history and marks the document dirty. Nil events are ignored.
func (s *Session) record(ev undo.Event) bool {
	if !s.history.Record(ev) {
		return false
	}
	s.dirty = true
	return true
}

// Undo reverts the latest change.
func (s *Session) Undo() bool {
	s.finishGesture()
	if !s.history.Undo(s.canvas) {
		s.setStatus("Nothing to undo", false)
		return false
	}
	s.dirty = true
	telemetry.Event(telemetry.EventUndo, nil)
	return true
}

// Redo reapplies the latest undone change.
func (s *Session) Redo() bool {
	s.finishGesture()
	if !s.history.Redo(s.canvas) {
		s.setStatus("Nothing to redo", false)
		return false
	}
	s.dirty = true
	telemetry.Event(telemetry.EventRedo, nil)
	return true
}

// NewLayer adds a layer on top and selects it.
func (s *Session) NewLayer() {
	s.finishGesture()
	s.record(s.canvas.AddLayer())
}

// DeleteLayer removes the current layer.
func (s *Session) DeleteLayer() bool {
	s.finishGesture()
	return s.record(s.canvas.DeleteLayer(s.canvas.CurrentIndex()))
}

// LayerUp moves the current layer one step towards the top.
func (s *Session) LayerUp() bool {
	s.finishGesture()
	l := s.canvas.Current()
	if l == nil {
		return false
	}
	return s.record(s.canvas.MoveLayerUp(l.ID))
}

// LayerDown moves the current layer one step towards the bottom.
func (s *Session) LayerDown() bool {
	s.finishGesture()
	l := s.canvas.Current()
	if l == nil {
		return false
	}
	return s.record(s.canvas.MoveLayerDown(l.ID))
}

// ToggleVisibility flips the visibility of the layer at index. Not recorded in history.
func (s *Session) ToggleVisibility(index int) {
	if l := s.canvas.Layer(index); l != nil {
		s.canvas.ToggleLayerVisibility(l.ID)
		s.dirty = true
	}
}

// SelectLayer makes the layer at index current.
func (s *Session) SelectLayer(index int) bool {
	s.finishGesture()
	return s.canvas.SetCurrentLayer(index)
}

// Copy puts the current layer's last image on the clipboard.
func (s *Session) Copy() bool {
	if !s.canvas.CopyImage(s.clipboard) {
		s.setStatus("Nothing to copy", false)
		return false
	}
	return true
}

// Paste places the clipboard image at the active region.
func (s *Session) Paste() bool {
	s.finishGesture()
	return s.record(s.canvas.PasteImage(s.clipboard, s.settings.ResizeOnPaste))
}

// Invert colour-inverts the images of the current layer.
func (s *Session) Invert() bool {
	s.finishGesture()
	return s.record(s.canvas.InvertImages(s.canvas.CurrentIndex()))
}

// ApplyFilter runs f over the images of the current layer as one undo step.
func (s *Session) ApplyFilter(f filter.Filter) bool {
	s.finishGesture()
	if !s.record(s.canvas.FilterImages(s.canvas.CurrentIndex(), f)) {
		s.setStatus("No images on the current layer", false)
		return false
	}
	s.log.Debug("filter applied", slog.String("filter", f.Name()))
	return true
}

// ImportImage decodes an image file and places it on the current layer at the active region.
// With resize-on-paste enabled it is scaled to the active region first.
func (s *Session) ImportImage(path string) error {
	s.finishGesture()
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		s.setStatus("Could not import image", true)
		return fmt.Errorf("import image: %w", err)
	}
	r := s.canvas.ActiveRegion()
	if s.settings.ResizeOnPaste && !r.Empty() {
		img = imaging.Resize(img, r.Width, r.Height, imaging.Lanczos)
	}
	if !s.record(s.canvas.ImportImage(img)) {
		return errors.New("import image: no layer to place it on")
	}
	s.setStatus("Imported "+filepath.Base(path), false)
	return nil
}

// Recenter resets the view offset.
func (s *Session) Recenter() { s.canvas.Recenter() }
