/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package log

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// reset restores a quiet console logger once the test is done.
func reset(t *testing.T) {
	t.Helper()
	t.Cleanup(func() {
		_ = Close()
		Init(Options{Writer: io.Discard})
	})
}

func lastJSON(t *testing.T, b []byte) map[string]any {
	t.Helper()
	lines := strings.Split(strings.TrimSpace(string(b)), "\n")
	var m map[string]any
	if err := json.Unmarshal([]byte(lines[len(lines)-1]), &m); err != nil {
		t.Fatalf("not a JSON record: %q: %v", lines[len(lines)-1], err)
	}
	return m
}

func TestComponentLoggerCarriesDocumentAndJob(t *testing.T) {
	reset(t)
	var buf bytes.Buffer
	Init(Options{Format: "json", Writer: &buf})

	l := WithOperation(WithComponent("session"), "generation_result")
	ctx := ContextWithJob(ContextWithDocument(context.Background(), "/work/cat.airunner"), "01JOB")
	l.InfoContext(ctx, "result applied", slog.Int("layer", 2))

	m := lastJSON(t, buf.Bytes())
	want := map[string]any{
		"app": "airunner", "component": "session", "op": "generation_result",
		"doc": "/work/cat.airunner", "job": "01JOB", "msg": "result applied", "layer": float64(2),
	}
	for k, v := range want {
		if m[k] != v {
			t.Fatalf("%s = %v, want %v (record %v)", k, m[k], v, m)
		}
	}
	if _, ok := m["ver"].(string); !ok {
		t.Fatalf("missing ver: %v", m)
	}

	// Without tags on the context neither attribute appears.
	WithComponent("session").Info("plain")
	m = lastJSON(t, buf.Bytes())
	if _, ok := m["doc"]; ok {
		t.Fatalf("untagged record has doc: %v", m)
	}
	if _, ok := m["job"]; ok {
		t.Fatalf("untagged record has job: %v", m)
	}
}

func TestLevelAndTextFormat(t *testing.T) {
	reset(t)
	var buf bytes.Buffer
	Init(Options{Level: "warning", Format: "console", Writer: &buf})

	WithComponent("storage").Info("hidden")
	WithComponent("storage").Warn("rebuilding generation index")
	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("info record passed a warn logger: %q", out)
	}
	if !strings.Contains(out, "level=WARN") || !strings.Contains(out, "component=storage") {
		t.Fatalf("text record = %q", out)
	}
	if parseLevel("nonsense") != slog.LevelInfo || parseLevel(" DEBUG ") != slog.LevelDebug {
		t.Fatalf("parseLevel fallback")
	}
}

func TestRotatingFileGetsJSONAlongsideConsole(t *testing.T) {
	reset(t)
	path := filepath.Join(t.TempDir(), "airunner.log")
	var console bytes.Buffer
	Init(Options{Level: "debug", Format: "text", File: path, Writer: &console})

	ctx := ContextWithDocument(context.Background(), "/work/a.airunner")
	WithComponent("crash").DebugContext(ctx, "report written")
	if err := Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	m := lastJSON(t, b)
	if m["msg"] != "report written" || m["doc"] != "/work/a.airunner" || m["component"] != "crash" {
		t.Fatalf("file record = %v", m)
	}
	if !strings.Contains(console.String(), "doc=/work/a.airunner") {
		t.Fatalf("console missed the record: %q", console.String())
	}
	if err := Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestLFallsBackToConsole(t *testing.T) {
	reset(t)
	mu.Lock()
	current = nil
	mu.Unlock()
	if L() == nil || L() != L() {
		t.Fatalf("L must install one logger and keep it")
	}
}
