/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package generate

import (
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
)

func solid(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 200, A: 255})
		}
	}
	return img
}

func TestHTTPBackendRoundTrip(t *testing.T) {
	var gotAuth string
	var gotReq map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/generate" {
			http.NotFound(w, r)
			return
		}
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&gotReq)
		img, _ := encodePNG(solid(4, 4))
		_ = json.NewEncoder(w).Encode(wireResponse{Image: img, Metadata: map[string]any{"seed": 42}})
	}))
	defer srv.Close()

	b := NewHTTPBackend(srv.URL+"/", HTTPOptions{Token: "tok"})
	job := Job{ID: NewJobID(), Action: "txt2img", Prompt: "a cat", Width: 4, Height: 4, Image: solid(4, 4)}
	res, err := b.Generate(context.Background(), job)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if res.Err != nil || res.Image == nil {
		t.Fatalf("unexpected result: %+v", res)
	}
	if res.Image.Bounds().Dx() != 4 || res.JobID != job.ID {
		t.Fatalf("bad result image/id: %v %s", res.Image.Bounds(), res.JobID)
	}
	if gotAuth != "Bearer tok" {
		t.Fatalf("auth header = %q", gotAuth)
	}
	if gotReq["prompt"] != "a cat" || gotReq["image"] == "" || gotReq["mask"] != nil {
		t.Fatalf("unexpected request body: %v", gotReq)
	}
}

func TestHTTPBackendJobError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(wireResponse{Error: "out of memory"})
	}))
	defer srv.Close()
	res, err := NewHTTPBackend(srv.URL, HTTPOptions{}).Generate(context.Background(), Job{ID: "j"})
	if err != nil {
		t.Fatalf("job-level errors must not be transport errors: %v", err)
	}
	if res.Err == nil || res.Err.Error() != "out of memory" {
		t.Fatalf("res.Err = %v", res.Err)
	}
}

func TestHTTPBackendNoImage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"nsfw":true}`))
	}))
	defer srv.Close()
	res, err := NewHTTPBackend(srv.URL, HTTPOptions{}).Generate(context.Background(), Job{ID: "j"})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if !errors.Is(res.Err, ErrNoImage) || !res.NSFW {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestHTTPBackendBreakerOpens(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()
	b := NewHTTPBackend(srv.URL, HTTPOptions{BreakerFailures: 2, BreakerTimeout: time.Minute})
	for i := 0; i < 2; i++ {
		if _, err := b.Generate(context.Background(), Job{ID: "j"}); err == nil {
			t.Fatalf("expected server error")
		}
	}
	if b.State() != gobreaker.StateOpen {
		t.Fatalf("breaker state = %v, want open", b.State())
	}
	_, err := b.Generate(context.Background(), Job{ID: "j"})
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Fatalf("expected open-state error, got %v", err)
	}
	if atomic.LoadInt32(&hits) != 2 {
		t.Fatalf("open breaker must not reach the server, hits=%d", hits)
	}
}

type fakeBackend struct {
	fail bool
}

func (f fakeBackend) Generate(ctx context.Context, job Job) (Result, error) {
	if f.fail {
		return Result{}, errors.New("boom")
	}
	return Result{Image: solid(1, 1), Metadata: map[string]any{"prompt": job.Prompt}}, nil
}

func TestDispatcherDeliversOneResultPerJob(t *testing.T) {
	d := NewDispatcher(fakeBackend{}, 4)
	ids := map[string]bool{}
	for i := 0; i < 5; i++ {
		id, err := d.Submit(context.Background(), Job{Prompt: "p"})
		if err != nil {
			t.Fatalf("submit: %v", err)
		}
		ids[id] = true
	}
	if len(ids) != 5 {
		t.Fatalf("job ids must be unique: %v", ids)
	}
	d.Close()
	if _, err := d.Submit(context.Background(), Job{}); !errors.Is(err, ErrClosed) {
		t.Fatalf("submit after close: %v", err)
	}
	got := 0
	for res := range d.Results() {
		if !ids[res.JobID] {
			t.Fatalf("unknown job id %q", res.JobID)
		}
		delete(ids, res.JobID)
		got++
	}
	if got != 5 || len(ids) != 0 {
		t.Fatalf("got %d results, missing %v", got, ids)
	}
}

func TestDispatcherReportsFailures(t *testing.T) {
	d := NewDispatcher(fakeBackend{fail: true}, 1)
	id, _ := d.Submit(context.Background(), Job{ID: "fixed"})
	if id != "fixed" {
		t.Fatalf("explicit id must be kept, got %q", id)
	}
	res := <-d.Results()
	if res.Err == nil || res.JobID != "fixed" {
		t.Fatalf("unexpected result: %+v", res)
	}
	d.Close()
}
