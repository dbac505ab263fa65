/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package log configures the process-wide slog logger. Records go to stderr as text or JSON and,
// when a file is configured, also to a size-rotated JSON file. Records logged with a context
// carry the document path and generation job stored on that context.
package log

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	lj "gopkg.in/natefinch/lumberjack.v2"

	"airunner/internal/version"
)

// Options mirrors the logging section of the settings file.
type Options struct {
	Level     string // debug, info, warn or error; anything else is info
	Format    string // "json", or "text"/"console"
	File      string // rotated JSON log, empty to disable
	MaxSizeMB int    // rotation size for File; 0 means 10
	AddSource bool

	// Writer receives console output; nil means stderr.
	Writer io.Writer
}

type ctxKey int

const (
	docKey ctxKey = iota
	jobKey
)

// ContextWithDocument tags ctx so records logged with it carry the document path.
func ContextWithDocument(ctx context.Context, path string) context.Context {
	return context.WithValue(ctx, docKey, path)
}

// ContextWithJob tags ctx with a generation job id.
func ContextWithJob(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, jobKey, id)
}

var (
	mu      sync.Mutex
	current *slog.Logger
	file    *lj.Logger
)

// Init installs a new process logger built from opts and makes it the slog default. A log
// file opened by an earlier Init is closed.
func Init(opts Options) *slog.Logger {
	ho := &slog.HandlerOptions{Level: parseLevel(opts.Level), AddSource: opts.AddSource}
	w := opts.Writer
	if w == nil {
		w = os.Stderr
	}
	var console slog.Handler
	if strings.EqualFold(strings.TrimSpace(opts.Format), "json") {
		console = slog.NewJSONHandler(w, ho)
	} else {
		console = slog.NewTextHandler(w, ho)
	}
	handlers := fanout{console}

	var rotated *lj.Logger
	if path := strings.TrimSpace(opts.File); path != "" {
		size := opts.MaxSizeMB
		if size <= 0 {
			size = 10
		}
		rotated = &lj.Logger{Filename: path, MaxSize: size, MaxBackups: 3, MaxAge: 28, Compress: true}
		handlers = append(handlers, slog.NewJSONHandler(rotated, ho))
	}

	var h slog.Handler = handlers
	if len(handlers) == 1 {
		h = console
	}
	logger := slog.New(contextHandler{next: h}).With(
		slog.String("app", "airunner"),
		slog.String("ver", version.Version),
	)

	mu.Lock()
	prev := file
	current, file = logger, rotated
	mu.Unlock()
	if prev != nil {
		_ = prev.Close()
	}
	slog.SetDefault(logger)
	return logger
}

// Close flushes and closes the log file, if any. Console logging keeps working.
func Close() error {
	mu.Lock()
	f := file
	file = nil
	mu.Unlock()
	if f == nil {
		return nil
	}
	return f.Close()
}

// L returns the process logger, installing a default info-level console logger on first use.
func L() *slog.Logger {
	mu.Lock()
	l := current
	mu.Unlock()
	if l != nil {
		return l
	}
	return Init(Options{})
}

// WithComponent returns a logger with the component attribute pre-set.
func WithComponent(name string) *slog.Logger { return L().With(slog.String("component", name)) }

// WithOperation annotates the logger with an operation name.
func WithOperation(l *slog.Logger, op string) *slog.Logger { return l.With(slog.String("op", op)) }

func parseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// contextHandler copies the document and job tags from the record's context into the record.
type contextHandler struct{ next slog.Handler }

func (h contextHandler) Enabled(ctx context.Context, l slog.Level) bool {
	return h.next.Enabled(ctx, l)
}

func (h contextHandler) Handle(ctx context.Context, r slog.Record) error {
	if ctx != nil {
		if v, _ := ctx.Value(docKey).(string); v != "" {
			r.AddAttrs(slog.String("doc", v))
		}
		if v, _ := ctx.Value(jobKey).(string); v != "" {
			r.AddAttrs(slog.String("job", v))
		}
	}
	return h.next.Handle(ctx, r)
}

func (h contextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return contextHandler{next: h.next.WithAttrs(attrs)}
}

func (h contextHandler) WithGroup(name string) slog.Handler {
	return contextHandler{next: h.next.WithGroup(name)}
}

// fanout hands every record to each handler that accepts its level.
type fanout []slog.Handler

func (f fanout) Enabled(ctx context.Context, l slog.Level) bool {
	for _, h := range f {
		if h.Enabled(ctx, l) {
			return true
		}
	}
	return false
}

func (f fanout) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range f {
		if h.Enabled(ctx, r.Level) {
			errs = append(errs, h.Handle(ctx, r.Clone()))
		}
	}
	return errors.Join(errs...)
}

func (f fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithAttrs(attrs)
	}
	return out
}

func (f fanout) WithGroup(name string) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithGroup(name)
	}
	return out
}
