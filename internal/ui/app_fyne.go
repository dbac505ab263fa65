//go:build fyne && cgo

/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package ui

import (
	"context"
	"fmt"
	"image/color"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/driver/desktop"
	fstorage "fyne.io/fyne/v2/storage"
	"fyne.io/fyne/v2/widget"

	"airunner/internal/config"
	"airunner/internal/crash"
	"airunner/internal/export"
	"airunner/internal/filter"
	"airunner/internal/generate"
	applog "airunner/internal/log"
	"airunner/internal/session"
	"airunner/internal/storage"
	"airunner/internal/telemetry"
	"airunner/internal/version"
)

// Run starts the Fyne-based desktop editor. Pass an optional document path to open immediately.
func Run(docPath string) error {
	l := applog.WithComponent("ui")
	l.Info("starting UI")

	cfg, token, err := config.Load()
	if err != nil {
		l.Warn("config load failed, using defaults", slog.Any("err", err))
		cfg = config.Defaults()
	}
	telemetry.NewDefault(telemetry.FromSettings(cfg.General.TelemetryOptIn))
	telemetry.Event(telemetry.EventAppStarted, nil)

	backend := generate.NewHTTPBackend(cfg.Backend.BaseURL, generate.HTTPOptions{
		Token:           token,
		Timeout:         cfg.Backend.Timeout(),
		RatePerSec:      cfg.Backend.RatePerSec,
		BreakerFailures: uint32(cfg.Backend.BreakerFailures),
	})
	dispatcher := generate.NewDispatcher(backend, 8)

	view := NewDocumentCanvas()
	sess := session.New(session.SettingsFrom(cfg), session.WithSurface(view), session.WithGenerator(dispatcher))
	view.SetSession(sess)
	view.SetGrid(cfg.Canvas.ShowGrid, cfg.Canvas.GridSize)
	if bg, err := config.ParseColor(cfg.Canvas.CanvasColor); err == nil {
		view.SetBackground(color.RGBA{R: bg.R, G: bg.G, B: bg.B, A: 255})
	}
	defer crash.RecoverFunc(func() *storage.DocumentHandle { return sess.CrashHandle(os.TempDir()) })

	fyneApp := app.NewWithID("airunner")
	w := fyneApp.NewWindow(sess.Title())
	prefs := fyneApp.Preferences()
	winW := prefs.IntWithFallback("window.width", 1200)
	winH := prefs.IntWithFallback("window.height", 800)
	if winW < 800 {
		winW = 800
	}
	if winH < 600 {
		winH = 600
	}
	w.Resize(fyne.NewSize(float32(winW), float32(winH)))

	status := widget.NewLabel("Ready")

	// Layers (right)
	layerList := widget.NewList(
		func() int { return sess.Canvas().Len() },
		func() fyne.CanvasObject { return widget.NewCheck("", nil) },
		func(i widget.ListItemID, o fyne.CanvasObject) {
			chk := o.(*widget.Check)
			ly := sess.Canvas().Layer(int(i))
			if ly == nil {
				return
			}
			chk.OnChanged = nil
			chk.SetText(ly.Name)
			chk.SetChecked(ly.Visible)
			idx := int(i)
			chk.OnChanged = func(bool) {
				sess.ToggleVisibility(idx)
			}
		},
	)

	layerList.OnSelected = func(id widget.ListItemID) {
		if sess.SelectLayer(int(id)) {
			l.Debug("layer selected", slog.Int("index", int(id)))
		}
	}
	refresh := func() {
		layerList.Refresh()
		if cur := sess.Canvas().CurrentIndex(); cur < sess.Canvas().Len() {
			layerList.Select(widget.ListItemID(cur))
		}
		msg, isErr := sess.Status()
		if isErr {
			msg = "Error: " + msg
		}
		status.SetText(msg)
		w.SetTitle(sess.Title())
		view.Refresh()
	}
	view.OnChange = refresh

	layerButtons := container.NewGridWithColumns(4,
		widget.NewButton("+", func() { sess.NewLayer(); refresh() }),
		widget.NewButton("-", func() { sess.DeleteLayer(); refresh() }),
		widget.NewButton("Up", func() { sess.LayerUp(); refresh() }),
		widget.NewButton("Down", func() { sess.LayerDown(); refresh() }),
	)
	right := container.NewBorder(
		container.NewVBox(widget.NewLabel("Layers"), widget.NewSeparator()),
		layerButtons, nil, nil, layerList)

	// Tools and brush (left)
	tools := widget.NewRadioGroup([]string{"Brush", "Eraser", "Active Region", "Move"}, func(v string) {
		switch v {
		case "Eraser":
			sess.SetTool(session.ToolEraser)
		case "Active Region":
			sess.SetTool(session.ToolActiveRegion)
		case "Move":
			sess.SetTool(session.ToolMove)
		default:
			sess.SetTool(session.ToolBrush)
		}
	})
	tools.SetSelected("Brush")
	brushLabel := widget.NewLabel(fmt.Sprintf("Brush size: %d", cfg.Canvas.BrushSize))
	brush := widget.NewSlider(config.MinBrushSize, config.MaxBrushSize)
	brush.SetValue(float64(cfg.Canvas.BrushSize))
	brush.OnChanged = func(v float64) {
		st := sess.Settings()
		st.BrushSize = int(v)
		sess.UpdateSettings(st)
		brushLabel.SetText(fmt.Sprintf("Brush size: %d", st.BrushSize))
	}
	snap := widget.NewCheck("Snap to grid", func(v bool) {
		st := sess.Settings()
		st.SnapToGrid = v
		sess.UpdateSettings(st)
	})
	snap.SetChecked(cfg.Canvas.SnapToGrid)
	left := container.NewVBox(widget.NewLabel("Tools"), widget.NewSeparator(), tools, brushLabel, brush, snap)

	// Generation form (bottom)
	prompt := widget.NewMultiLineEntry()
	prompt.SetPlaceHolder("Prompt")
	prompt.SetMinRowsVisible(2)
	negative := widget.NewEntry()
	negative.SetPlaceHolder("Negative prompt")
	seed := widget.NewEntry()
	seed.SetPlaceHolder("Seed")
	action := widget.NewSelect([]string{"txt2img", "img2img", "inpaint", "outpaint"}, nil)
	action.SetSelected("txt2img")
	generateBtn := widget.NewButton("Generate", func() {
		n, _ := strconv.ParseInt(strings.TrimSpace(seed.Text), 10, 64)
		req := session.Request{Action: action.Selected, Prompt: prompt.Text, NegativePrompt: negative.Text, Seed: n}
		if _, err := sess.Generate(context.Background(), req); err != nil {
			dialog.ShowError(err, w)
		}
		refresh()
	})
	bottom := container.NewBorder(nil, nil, nil, container.NewVBox(action, generateBtn),
		container.NewVBox(prompt, container.NewGridWithColumns(2, negative, seed)))

	editor := container.NewBorder(nil, container.NewVBox(bottom, status), left, right, view)
	w.SetContent(editor)

	// Results arrive off the UI goroutine and are applied on it.
	go func() {
		for res := range dispatcher.Results() {
			res := res
			fyne.Do(func() {
				sess.HandleResult(context.Background(), res)
				refresh()
			})
		}
	}()

	open := func(path string) {
		if err := sess.Load(path); err != nil {
			dialog.ShowError(err, w)
		} else {
			addRecentDocument(prefs, path)
		}
		refresh()
	}
	saveAs := func() {
		save := dialog.NewFileSave(func(uc fyne.URIWriteCloser, err error) {
			if err != nil {
				dialog.ShowError(err, w)
				return
			}
			if uc == nil {
				return
			}
			path := uc.URI().Path()
			_ = uc.Close()
			if err := sess.SaveAs(path); err != nil {
				dialog.ShowError(err, w)
			} else {
				addRecentDocument(prefs, sess.Document().Path)
			}
			refresh()
		}, w)
		save.SetFileName(sess.Name() + storage.DocumentExt)
		save.SetFilter(fstorage.NewExtensionFileFilter([]string{storage.DocumentExt}))
		save.Show()
	}
	// confirmDiscard asks before dropping unsaved changes.
	confirmDiscard := func(then func()) {
		if !sess.Dirty() {
			then()
			return
		}
		dialog.ShowConfirm("Unsaved changes", "Discard changes to "+sess.Name()+"?", func(ok bool) {
			if ok {
				then()
			}
		}, w)
	}

	newItem := fyne.NewMenuItem("New", func() {
		l.Info("menu: new document")
		confirmDiscard(func() { sess.NewDocument(); refresh() })
	})
	openItem := fyne.NewMenuItem("Open…", func() {
		l.Info("menu: open document")
		confirmDiscard(func() {
			fd := dialog.NewFileOpen(func(rc fyne.URIReadCloser, err error) {
				if err != nil {
					dialog.ShowError(err, w)
					return
				}
				if rc == nil {
					return
				}
				path := rc.URI().Path()
				_ = rc.Close()
				open(path)
			}, w)
			fd.SetFilter(fstorage.NewExtensionFileFilter([]string{storage.DocumentExt}))
			fd.Show()
		})
	})
	saveItem := fyne.NewMenuItem("Save", func() {
		l.Info("menu: save")
		if sess.Document() == nil {
			saveAs()
			return
		}
		if err := sess.Save(); err != nil {
			dialog.ShowError(err, w)
		}
		refresh()
	})
	saveAsItem := fyne.NewMenuItem("Save As…", saveAs)
	importItem := fyne.NewMenuItem("Import Image…", func() {
		fd := dialog.NewFileOpen(func(rc fyne.URIReadCloser, err error) {
			if err != nil {
				dialog.ShowError(err, w)
				return
			}
			if rc == nil {
				return
			}
			path := rc.URI().Path()
			_ = rc.Close()
			if err := sess.ImportImage(path); err != nil {
				dialog.ShowError(err, w)
			}
			refresh()
		}, w)
		fd.SetFilter(fstorage.NewExtensionFileFilter([]string{".png", ".jpg", ".jpeg"}))
		fd.Show()
	})
	var recentItems []*fyne.MenuItem
	for _, p := range loadRecentDocuments(prefs) {
		p := p
		recentItems = append(recentItems, fyne.NewMenuItem(filepath.Base(p), func() { confirmDiscard(func() { open(p) }) }))
	}
	recentItem := fyne.NewMenuItem("Open Recent", nil)
	recentItem.ChildMenu = fyne.NewMenu("", recentItems...)
	recentItem.Disabled = len(recentItems) == 0

	newItem.Shortcut = &desktop.CustomShortcut{KeyName: fyne.KeyN, Modifier: fyne.KeyModifierControl}
	openItem.Shortcut = &desktop.CustomShortcut{KeyName: fyne.KeyO, Modifier: fyne.KeyModifierControl}
	saveItem.Shortcut = &desktop.CustomShortcut{KeyName: fyne.KeyS, Modifier: fyne.KeyModifierControl}
	fileMenu := fyne.NewMenu("File", newItem, openItem, recentItem, saveItem, saveAsItem, fyne.NewMenuItemSeparator(), importItem)

	undoItem := fyne.NewMenuItem("Undo", func() { sess.Undo(); refresh() })
	redoItem := fyne.NewMenuItem("Redo", func() { sess.Redo(); refresh() })
	copyItem := fyne.NewMenuItem("Copy Image", func() { sess.Copy(); refresh() })
	pasteItem := fyne.NewMenuItem("Paste Image", func() { sess.Paste(); refresh() })
	invertItem := fyne.NewMenuItem("Invert Layer Images", func() { sess.Invert(); refresh() })
	undoItem.Shortcut = &desktop.CustomShortcut{KeyName: fyne.KeyZ, Modifier: fyne.KeyModifierControl}
	redoItem.Shortcut = &desktop.CustomShortcut{KeyName: fyne.KeyZ, Modifier: fyne.KeyModifierControl | fyne.KeyModifierShift}
	editMenu := fyne.NewMenu("Edit", undoItem, redoItem, fyne.NewMenuItemSeparator(), copyItem, pasteItem, invertItem)
	w.Canvas().AddShortcut(&desktop.CustomShortcut{KeyName: fyne.KeyY, Modifier: fyne.KeyModifierControl}, func(fyne.Shortcut) {
		sess.Redo()
		refresh()
	})

	layerMenu := fyne.NewMenu("Layer",
		fyne.NewMenuItem("New Layer", func() { sess.NewLayer(); refresh() }),
		fyne.NewMenuItem("Delete Layer", func() { sess.DeleteLayer(); refresh() }),
		fyne.NewMenuItem("Move Up", func() { sess.LayerUp(); refresh() }),
		fyne.NewMenuItem("Move Down", func() { sess.LayerDown(); refresh() }),
	)
	gridItem := fyne.NewMenuItem("Show Grid", nil)
	gridItem.Checked = cfg.Canvas.ShowGrid
	gridItem.Action = func() {
		gridItem.Checked = !gridItem.Checked
		view.SetGrid(gridItem.Checked, sess.Settings().GridSize)
	}
	viewMenu := fyne.NewMenu("View", fyne.NewMenuItem("Recenter", func() { sess.Recenter(); refresh() }), gridItem)

	filterItem := func(label, name, param string, lo, hi, def, step float64) *fyne.MenuItem {
		return fyne.NewMenuItem(label+"…", func() {
			amount := widget.NewSlider(lo, hi)
			amount.Step = step
			amount.SetValue(def)
			dialog.ShowForm(label, "Apply", "Cancel", []*widget.FormItem{widget.NewFormItem(param, amount)}, func(ok bool) {
				if !ok {
					return
				}
				f, err := filter.ByName(name, amount.Value)
				if err != nil {
					dialog.ShowError(err, w)
					return
				}
				sess.ApplyFilter(f)
				refresh()
			}, w)
		})
	}
	filterMenu := fyne.NewMenu("Filters",
		filterItem("Gaussian Blur", "gaussian-blur", "Radius", 0.5, 20, 2, 0.5),
		filterItem("Box Blur", "box-blur", "Radius", 1, 20, 2, 1),
		filterItem("Unsharp Mask", "unsharp-mask", "Radius", 0.5, 10, 2, 0.5),
		filterItem("Saturation", "saturation", "Factor", 0.05, 2, 1.5, 0.05),
		filterItem("Color Balance", "color-balance", "Cyan / Red", -1, 1, 0.1, 0.05),
		filterItem("Pixel Art", "pixel-art", "Block size", 2, 64, 8, 1),
	)

	exportFile := func(title, ext string, fn func(h *storage.DocumentHandle, out string) error) *fyne.MenuItem {
		return fyne.NewMenuItem(title, func() {
			save := dialog.NewFileSave(func(uc fyne.URIWriteCloser, err error) {
				if err != nil {
					dialog.ShowError(err, w)
					return
				}
				if uc == nil {
					return
				}
				out := uc.URI().Path()
				_ = uc.Close()
				h := sess.CrashHandle(os.TempDir())
				if err := fn(h, out); err != nil {
					dialog.ShowError(err, w)
					return
				}
				telemetry.Event(telemetry.EventExport, map[string]any{"format": ext})
				dialog.ShowInformation(title, "Exported to "+out, w)
			}, w)
			save.SetFileName(sess.Name() + "." + ext)
			save.SetFilter(fstorage.NewExtensionFileFilter([]string{"." + ext}))
			save.Show()
		})
	}
	exportMenu := fyne.NewMenu("Export",
		exportFile("Export PNG…", "png", func(h *storage.DocumentHandle, out string) error {
			return export.PNG(h, out, export.Options{})
		}),
		exportFile("Export PDF…", "pdf", func(h *storage.DocumentHandle, out string) error {
			return export.PDF(h, out, export.Options{})
		}),
	)

	aboutItem := fyne.NewMenuItem("About AI Runner", func() {
		exe, _ := os.Executable()
		info := fmt.Sprintf("AI Runner\nVersion: %s\nOS: %s\nArch: %s\nGo: %s\nExecutable: %s\nBackend: %s",
			version.String(), runtime.GOOS, runtime.GOARCH, runtime.Version(), exe, cfg.Backend.BaseURL)
		dialog.ShowInformation("Installation Environment", info, w)
	})
	aboutMenu := fyne.NewMenu("About", aboutItem)

	w.SetMainMenu(fyne.NewMainMenu(fileMenu, editMenu, layerMenu, filterMenu, viewMenu, exportMenu, aboutMenu))

	w.SetCloseIntercept(func() {
		confirmDiscard(func() {
			sz := w.Canvas().Size()
			prefs.SetInt("window.width", int(sz.Width))
			prefs.SetInt("window.height", int(sz.Height))
			dispatcher.Close()
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			telemetry.Flush(ctx)
			cancel()
			w.Close()
		})
	})

	if docPath != "" {
		open(docPath)
	}
	refresh()

	w.ShowAndRun()
	return nil
}
