/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"airunner/internal/config"
	"airunner/internal/crash"
	"airunner/internal/export"
	"airunner/internal/filter"
	"airunner/internal/generate"
	applog "airunner/internal/log"
	"airunner/internal/session"
	"airunner/internal/storage"
	"airunner/internal/telemetry"
	"airunner/internal/ui"
	"airunner/internal/version"
)

func usage() {
	fmt.Println("AI Runner")
	fmt.Printf("Version: %s\n", version.String())
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  airunner version|-v|--version                 Show version")
	fmt.Println("  airunner new <file>                           Create an empty document")
	fmt.Println("  airunner info <file>                          Print a document summary")
	fmt.Println("  airunner export <file> <web|print|png|pdf|layers> [outDir]")
	fmt.Println("                                                Export a document")
	fmt.Println("  airunner generate <file> <prompt>             Generate into the active region and save")
	fmt.Println("  airunner import <file> <image>                Place an image file at the active region")
	fmt.Printf("  airunner filter <file> <name> [amount]        Filter the images of the top layer (%s)\n", strings.Join(filter.Names(), ", "))
	fmt.Println("  airunner history <file> [query]               List or search recorded generations")
	fmt.Println("  airunner prune <file> <keep>                  Keep only the newest <keep> generations")
	fmt.Println("  airunner ui [<file>]                          Launch desktop UI (build with -tags fyne for full UI)")
}

func fail(l *slog.Logger, msg string, err error) {
	l.Error(msg, slog.Any("err", err))
	fmt.Println("Error:", err)
	os.Exit(1)
}

func need(args []string, n int, what string) {
	if len(args) < n {
		fmt.Println(what)
		usage()
		os.Exit(2)
	}
}

func main() {
	var doc *storage.DocumentHandle
	defer crash.RecoverFunc(func() *storage.DocumentHandle { return doc })

	cfg, token, cfgErr := config.Load()
	if cfgErr != nil {
		cfg = config.Defaults()
	}
	applog.Init(applog.Options{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		File:      cfg.Logging.File,
		AddSource: cfg.Logging.Source,
	})
	defer func() { _ = applog.Close() }()
	l := applog.WithComponent("cli")
	if cfgErr != nil {
		l.Warn("config load failed, using defaults", slog.Any("err", cfgErr))
	}
	telemetry.NewDefault(telemetry.FromSettings(cfg.General.TelemetryOptIn))
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		telemetry.Flush(ctx)
	}()

	args := os.Args
	l.Debug("start", slog.Int("args", len(args)))
	if len(args) < 2 {
		usage()
		return
	}
	switch args[1] {
	case "version", "--version", "-v":
		fmt.Println("AI Runner")
		fmt.Println(version.String())
	case "new":
		need(args, 3, "new requires <file>")
		h, err := storage.Create(args[2], session.New(session.SettingsFrom(cfg)).Canvas())
		if err != nil {
			fail(l, "create failed", err)
		}
		doc = h
		telemetry.Event(telemetry.EventDocumentNew, nil)
		fmt.Println("Created document at", h.Path)
	case "info":
		need(args, 3, "info requires <file>")
		h, err := storage.Open(args[2])
		if err != nil {
			fail(l, "open failed", err)
		}
		doc = h
		c := h.Canvas
		fmt.Printf("Document: %s\n", h.Name())
		fmt.Printf("Layers: %d\n", c.Len())
		for i, ly := range c.Layers() {
			vis := "visible"
			if !ly.Visible {
				vis = "hidden"
			}
			fmt.Printf("  %d. %s (%s) strokes=%d images=%d\n", i, ly.Name, vis, len(ly.Strokes), len(ly.Images))
		}
		r := c.ActiveRegion()
		fmt.Printf("Active region: %dx%d at (%d,%d)\n", r.Width, r.Height, r.X, r.Y)
	case "export":
		need(args, 4, "export requires <file> and a preset or format")
		h, err := storage.Open(args[2])
		if err != nil {
			fail(l, "open failed", err)
		}
		doc = h
		opt := export.BatchOptions{}
		switch kind := strings.ToLower(args[3]); kind {
		case string(export.PresetWeb), string(export.PresetPrint):
			opt.Preset = export.PresetName(kind)
		default:
			opt.Formats = []string{kind}
		}
		if len(args) >= 5 {
			opt.OutDir = args[4]
		}
		files, err := export.BatchExport(h, opt)
		if err != nil {
			fail(l, "export failed", err)
		}
		telemetry.Event(telemetry.EventExport, map[string]any{"format": args[3]})
		for _, f := range files {
			fmt.Println("Wrote", f)
		}
	case "generate":
		need(args, 4, "generate requires <file> and <prompt>")
		runGenerate(l, cfg, token, args[2], strings.Join(args[3:], " "), &doc)
	case "import":
		need(args, 4, "import requires <file> and <image>")
		editDocument(l, cfg, args[2], &doc, func(sess *session.Session) error {
			return sess.ImportImage(args[3])
		})
	case "filter":
		need(args, 4, "filter requires <file> and <name>")
		var amount float64
		if len(args) >= 5 {
			v, err := strconv.ParseFloat(args[4], 64)
			if err != nil {
				fail(l, "invalid amount", err)
			}
			amount = v
		}
		f, err := filter.ByName(args[3], amount)
		if err != nil {
			fail(l, "unknown filter", err)
		}
		editDocument(l, cfg, args[2], &doc, func(sess *session.Session) error {
			if !sess.ApplyFilter(f) {
				return errors.New("the top layer has no images")
			}
			return nil
		})
	case "history":
		need(args, 3, "history requires <file>")
		ctx := context.Background()
		db, err := storage.InitOrOpenIndex(args[2])
		if err != nil {
			fail(l, "open index failed", err)
		}
		defer func() { _ = db.Close() }()
		var gens []storage.Generation
		if len(args) >= 4 {
			gens, err = storage.SearchGenerations(ctx, db, strings.Join(args[3:], " "), 50)
		} else {
			gens, err = storage.ListGenerations(ctx, db, 50, 0)
		}
		if err != nil {
			fail(l, "query failed", err)
		}
		for _, g := range gens {
			fmt.Printf("%s  %-8s seed=%-10d %s\n", g.CreatedAt.Local().Format(time.DateTime), g.Action, g.Seed, g.Prompt)
		}
	case "prune":
		need(args, 4, "prune requires <file> and <keep>")
		keep, err := strconv.Atoi(args[3])
		if err != nil || keep < 0 {
			fail(l, "invalid keep count", fmt.Errorf("keep must be a non-negative number, got %q", args[3]))
		}
		db, err := storage.InitOrOpenIndex(args[2])
		if err != nil {
			fail(l, "open index failed", err)
		}
		n, err := storage.PruneGenerations(context.Background(), db, keep)
		_ = db.Close()
		if err != nil {
			fail(l, "prune failed", err)
		}
		fmt.Printf("Removed %d generations\n", n)
	case "ui":
		var path string
		if len(args) >= 3 {
			path = args[2]
		}
		if err := ui.Run(path); err != nil {
			fmt.Println("Error:", err)
			os.Exit(1)
		}
	default:
		usage()
	}
}

// editDocument loads path into a session, runs edit and saves the result.
func editDocument(l *slog.Logger, cfg config.AppConfig, path string, doc **storage.DocumentHandle, edit func(*session.Session) error) {
	sess := session.New(session.SettingsFrom(cfg))
	if err := sess.Load(path); err != nil {
		fail(l, "open failed", err)
	}
	*doc = sess.Document()
	sess.SelectLayer(0)
	if err := edit(sess); err != nil {
		fail(l, "edit failed", err)
	}
	if err := sess.Save(); err != nil {
		fail(l, "save failed", err)
	}
	fmt.Println("Saved", sess.Document().Path)
}

// runGenerate runs one generation against the configured backend, places the result and
// saves the document.
func runGenerate(l *slog.Logger, cfg config.AppConfig, token, path, prompt string, doc **storage.DocumentHandle) {
	backend := generate.NewHTTPBackend(cfg.Backend.BaseURL, generate.HTTPOptions{
		Token:           token,
		Timeout:         cfg.Backend.Timeout(),
		RatePerSec:      cfg.Backend.RatePerSec,
		BreakerFailures: uint32(cfg.Backend.BreakerFailures),
	})
	dispatcher := generate.NewDispatcher(backend, 1)
	defer dispatcher.Close()

	sess := session.New(session.SettingsFrom(cfg), session.WithGenerator(dispatcher))
	if err := sess.Load(path); err != nil {
		fail(l, "open failed", err)
	}
	*doc = sess.Document()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Backend.Timeout()+5*time.Second)
	defer cancel()
	id, err := sess.Generate(ctx, session.Request{Prompt: prompt, Seed: time.Now().UnixNano() % 1_000_000_000})
	if err != nil {
		fail(l, "generate failed", err)
	}
	fmt.Println("Submitted job", id)
	select {
	case res := <-dispatcher.Results():
		placed := sess.HandleResult(ctx, res)
		msg, _ := sess.Status()
		fmt.Println(msg)
		if !placed {
			os.Exit(1)
		}
	case <-ctx.Done():
		fail(l, "generate timed out", ctx.Err())
	}
	if err := sess.Save(); err != nil {
		fail(l, "save failed", err)
	}
	fmt.Println("Saved", sess.Document().Path)
}
