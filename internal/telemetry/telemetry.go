/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package telemetry sends opt-in anonymous usage events and crash reports. Nothing leaves the
// machine unless the user opted in and an endpoint is configured.
package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	applog "airunner/internal/log"
	"airunner/internal/version"
)

// Event names sent by the editor. Properties never carry prompts, paths or image data.
const (
	EventAppStarted   = "app_started"
	EventDocumentNew  = "document_new"
	EventDocumentOpen = "document_open"
	EventGenerate     = "generate"
	EventGenerateFail = "generate_failed"
	EventUndo         = "undo"
	EventRedo         = "redo"
	EventExport       = "export"
)

// Environment overrides read by FromSettings.
const (
	EnvOptIn     = "AIR_TELEMETRY_OPT_IN"
	EnvEventsURL = "AIR_TELEMETRY_URL"
	EnvCrashURL  = "AIR_CRASH_UPLOAD_URL"
	EnvTimeoutMs = "AIR_TELEMETRY_TIMEOUT_MS"
)

// Config selects what the client may send and where.
type Config struct {
	OptIn     bool
	EventsURL string
	CrashURL  string
	Timeout   time.Duration // per request; 0 means 1.5s
	// EventsPerSec caps accepted events; the burst equals the rate. 0 means 5.
	EventsPerSec float64
}

// FromSettings starts from the persisted opt-in flag. A non-empty AIR_TELEMETRY_OPT_IN wins over
// it; endpoints and the timeout only come from the environment.
func FromSettings(optIn bool) Config {
	if v := strings.TrimSpace(os.Getenv(EnvOptIn)); v != "" {
		switch strings.ToLower(v) {
		case "1", "true", "yes", "on":
			optIn = true
		default:
			optIn = false
		}
	}
	cfg := Config{
		OptIn:     optIn,
		EventsURL: strings.TrimSpace(os.Getenv(EnvEventsURL)),
		CrashURL:  strings.TrimSpace(os.Getenv(EnvCrashURL)),
	}
	if ms, err := strconv.Atoi(strings.TrimSpace(os.Getenv(EnvTimeoutMs))); err == nil && ms > 0 {
		cfg.Timeout = time.Duration(ms) * time.Millisecond
	}
	return cfg
}

type event struct {
	Name    string         `json:"name"`
	Props   map[string]any `json:"props,omitempty"`
	Version string         `json:"version"`
	OS      string         `json:"os"`
	Arch    string         `json:"arch"`
	TS      string         `json:"ts"`
}

// queued is either an event or a flush marker.
type queued struct {
	ev   *event
	done chan struct{}
}

// Client posts events from one background goroutine. Event never blocks: events over the rate
// or beyond the queue are counted and dropped.
type Client struct {
	cfg     Config
	http    *http.Client
	limit   *rate.Limiter
	log     *slog.Logger
	queue   chan queued
	stop    chan struct{}
	once    sync.Once
	dropped atomic.Int64
}

// New builds a client. The sender goroutine only runs when events can be sent.
func New(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 1500 * time.Millisecond
	}
	eps := cfg.EventsPerSec
	if eps <= 0 {
		eps = 5
	}
	c := &Client{
		cfg:   cfg,
		http:  &http.Client{Timeout: cfg.Timeout},
		limit: rate.NewLimiter(rate.Limit(eps), max(1, int(eps))),
		log:   applog.WithComponent("telemetry"),
		queue: make(chan queued, 64),
		stop:  make(chan struct{}),
	}
	if c.Enabled() {
		go c.run()
	}
	return c
}

// Enabled reports whether usage events are sent.
func (c *Client) Enabled() bool { return c != nil && c.cfg.OptIn && c.cfg.EventsURL != "" }

// Dropped counts events refused by the rate limit or a full queue.
func (c *Client) Dropped() int64 { return c.dropped.Load() }

// Event queues a usage event. props must not hold personal data.
func (c *Client) Event(name string, props map[string]any) {
	if !c.Enabled() || name == "" {
		return
	}
	if !c.limit.Allow() {
		c.dropped.Add(1)
		return
	}
	ev := &event{
		Name:    name,
		Version: version.String(),
		OS:      runtime.GOOS,
		Arch:    runtime.GOARCH,
		TS:      time.Now().UTC().Format(time.RFC3339Nano),
	}
	if len(props) > 0 {
		ev.Props = make(map[string]any, len(props))
		for k, v := range props {
			ev.Props[k] = v
		}
	}
	select {
	case c.queue <- queued{ev: ev}:
	default:
		c.dropped.Add(1)
	}
}

// Flush returns once every event queued before the call was sent, or when ctx ends.
func (c *Client) Flush(ctx context.Context) {
	if !c.Enabled() {
		return
	}
	done := make(chan struct{})
	select {
	case c.queue <- queued{done: done}:
	case <-c.stop:
		return
	case <-ctx.Done():
		return
	}
	select {
	case <-done:
	case <-c.stop:
	case <-ctx.Done():
	}
}

// Close stops the sender. Queued events are discarded.
func (c *Client) Close() { c.once.Do(func() { close(c.stop) }) }

func (c *Client) run() {
	for {
		select {
		case <-c.stop:
			return
		case q := <-c.queue:
			if q.done != nil {
				close(q.done)
				continue
			}
			body, err := json.Marshal(q.ev)
			if err != nil {
				continue
			}
			if err := c.post(c.cfg.EventsURL, "application/json", body); err != nil {
				c.log.Debug("event not sent", slog.String("event", q.ev.Name), slog.Any("err", err))
			}
		}
	}
}

// UploadCrash posts a crash report and waits for the answer, since the process is about to exit.
func (c *Client) UploadCrash(report []byte) {
	if c == nil || !c.cfg.OptIn || c.cfg.CrashURL == "" {
		return
	}
	if err := c.post(c.cfg.CrashURL, "text/plain; charset=utf-8", report); err != nil {
		c.log.Debug("crash report not uploaded", slog.Any("err", err))
	}
}

func (c *Client) post(url, contentType string, body []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.Timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", contentType)
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	_ = resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("telemetry: %s answered %s", url, resp.Status)
	}
	return nil
}

var std atomic.Pointer[Client]

// NewDefault installs the client used by the package-level functions and closes the previous one.
func NewDefault(cfg Config) {
	if old := std.Swap(New(cfg)); old != nil {
		old.Close()
	}
}

// Event sends through the default client; without NewDefault it does nothing.
func Event(name string, props map[string]any) { std.Load().Event(name, props) }

// Flush drains the default client.
func Flush(ctx context.Context) { std.Load().Flush(ctx) }

// UploadCrash uploads through the default client.
func UploadCrash(report []byte) { std.Load().UploadCrash(report) }
