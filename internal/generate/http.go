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
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/png"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	applog "airunner/internal/log"
)

const (
	defaultTimeout         = 120 * time.Second
	defaultBreakerFailures = 3
	defaultBreakerTimeout  = 30 * time.Second
)

// HTTPOptions configures an HTTPBackend. Zero values select defaults.
type HTTPOptions struct {
	Token           string // bearer token
	Timeout         time.Duration
	RatePerSec      float64 // 0 disables limiting
	BreakerFailures uint32
	BreakerTimeout  time.Duration
}

// HTTPBackend is a minimal client for a generation server exposing POST /generate.
type HTTPBackend struct {
	BaseURL string
	Token   string
	client  *http.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker[Result]
	log     *slog.Logger
}

type wireRequest struct {
	Job
	Image string `json:"image,omitempty"` // base64 PNG
	Mask  string `json:"mask,omitempty"`  // base64 PNG
}

type wireResponse struct {
	Image    string         `json:"image"`
	Metadata map[string]any `json:"metadata"`
	NSFW     bool           `json:"nsfw"`
	Error    string         `json:"error"`
}

// NewHTTPBackend creates a backend client. baseURL may include a trailing slash; it will be normalized.
func NewHTTPBackend(baseURL string, opts HTTPOptions) *HTTPBackend {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	failures := opts.BreakerFailures
	if failures == 0 {
		failures = defaultBreakerFailures
	}
	btimeout := opts.BreakerTimeout
	if btimeout <= 0 {
		btimeout = defaultBreakerTimeout
	}
	limit := rate.Inf
	if opts.RatePerSec > 0 {
		limit = rate.Limit(opts.RatePerSec)
	}
	l := applog.WithComponent("generate")
	b := &HTTPBackend{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   opts.Token,
		client:  &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(limit, 1),
		log:     l,
	}
	b.breaker = gobreaker.NewCircuitBreaker[Result](gobreaker.Settings{
		Name:        "generate:" + b.BaseURL,
		MaxRequests: 1,
		Timeout:     btimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			l.Warn("circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
	return b
}

// Generate implements Backend. Transport failures and non-2xx answers are returned as errors;
// a job-level failure reported by the server is returned in Result.Err.
func (b *HTTPBackend) Generate(ctx context.Context, job Job) (Result, error) {
	if err := b.limiter.Wait(ctx); err != nil {
		return Result{JobID: job.ID, Job: job}, err
	}
	start := time.Now()
	res, err := b.breaker.Execute(func() (Result, error) {
		return b.post(ctx, job)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			err = fmt.Errorf("generation backend unavailable: %w", err)
		}
		return Result{JobID: job.ID, Job: job}, err
	}
	res.Elapsed = time.Since(start)
	b.log.Debug("generation finished", "job", job.ID, "elapsed", res.Elapsed, "nsfw", res.NSFW)
	return res, nil
}

// State reports the breaker state for diagnostics.
func (b *HTTPBackend) State() gobreaker.State { return b.breaker.State() }

func (b *HTTPBackend) post(ctx context.Context, job Job) (Result, error) {
	res := Result{JobID: job.ID, Job: job}
	wr := wireRequest{Job: job}
	var err error
	if wr.Image, err = encodePNG(job.Image); err != nil {
		return res, fmt.Errorf("encode image: %w", err)
	}
	if wr.Mask, err = encodePNG(job.Mask); err != nil {
		return res, fmt.Errorf("encode mask: %w", err)
	}
	body, err := json.Marshal(wr)
	if err != nil {
		return res, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.BaseURL+"/generate", bytes.NewReader(body))
	if err != nil {
		return res, err
	}
	req.Header.Set("Content-Type", "application/json")
	if b.Token != "" {
		req.Header.Set("Authorization", "Bearer "+b.Token)
	}
	resp, err := b.client.Do(req)
	if err != nil {
		return res, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return res, fmt.Errorf("server POST /generate: %s", resp.Status)
	}
	var out wireResponse
	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(&out); err != nil {
		return res, fmt.Errorf("decode response: %w", err)
	}
	res.Metadata = out.Metadata
	res.NSFW = out.NSFW
	if out.Error != "" {
		res.Err = errors.New(out.Error)
		return res, nil
	}
	if out.Image == "" {
		res.Err = ErrNoImage
		return res, nil
	}
	if res.Image, err = decodePNG(out.Image); err != nil {
		res.Err = fmt.Errorf("decode image: %w", err)
	}
	return res, nil
}

func encodePNG(img image.Image) (string, error) {
	if img == nil {
		return "", nil
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

func decodePNG(s string) (image.Image, error) {
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, err
	}
	return png.Decode(bytes.NewReader(data))
}
