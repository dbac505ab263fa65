/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package generate talks to the external image-generation backend. The document core treats a
// generation as an opaque asynchronous call: a Job goes out, exactly one Result comes back.
package generate

import (
	"context"
	"crypto/rand"
	"errors"
	"image"
	"time"

	"github.com/oklog/ulid/v2"

	"airunner/internal/domain"
)

// ErrNoImage is reported when the backend answers without an image.
var ErrNoImage = errors.New("generate: backend returned no image")

// Job is the opaque job description handed to the backend. The core fills in the region and
// its raster input; everything else is passed through from the settings form.
type Job struct {
	ID             string         `json:"id"`
	Action         string         `json:"action"` // txt2img, img2img, inpaint, outpaint, ...
	Prompt         string         `json:"prompt"`
	NegativePrompt string         `json:"negative_prompt,omitempty"`
	Model          string         `json:"model,omitempty"`
	Scheduler      string         `json:"scheduler,omitempty"`
	Seed           int64          `json:"seed"`
	Steps          int            `json:"steps,omitempty"`
	Scale          float64        `json:"scale,omitempty"`
	Strength       float64        `json:"strength,omitempty"`
	Samples        int            `json:"samples,omitempty"`
	Width          int            `json:"width"`
	Height         int            `json:"height"`
	Region         domain.Rect    `json:"region"`
	Image          image.Image    `json:"-"`
	Mask           image.Image    `json:"-"`
	Options        map[string]any `json:"options,omitempty"`
}

// Result is delivered exactly once per accepted job. Err is set on job-level failure.
type Result struct {
	JobID    string
	Job      Job
	Image    image.Image
	Metadata map[string]any
	NSFW     bool
	Err      error
	Elapsed  time.Duration
}

// Backend runs one job synchronously. Implementations must honour ctx cancellation.
type Backend interface {
	Generate(ctx context.Context, job Job) (Result, error)
}

// NewJobID returns a time-sortable job identifier.
func NewJobID() string {
	return ulid.MustNew(ulid.Timestamp(time.Now()), rand.Reader).String()
}
