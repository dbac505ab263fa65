/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image/png"
	"log/slog"

	"airunner/internal/domain"
	"airunner/internal/generate"
	applog "airunner/internal/log"
	"airunner/internal/render"
	"airunner/internal/storage"
	"airunner/internal/telemetry"
)

// ThumbSize bounds the thumbnails stored in the generation index.
const ThumbSize = 128

// ErrNoGenerator is returned by Generate when no backend is attached.
var ErrNoGenerator = errors.New("session: no generation backend configured")

// Submitter accepts jobs for asynchronous generation. *generate.Dispatcher implements it.
type Submitter interface {
	Submit(ctx context.Context, job generate.Job) (string, error)
}

// Request holds the form values of a generation. The active region and its pixels are added
// by Generate.
type Request struct {
	Action         string
	Prompt         string
	NegativePrompt string
	Model          string
	Scheduler      string
	Seed           int64
	Steps          int
	Scale          float64
	Strength       float64
	Samples        int
	Options        map[string]any
}

type pendingJob struct {
	layer domain.LayerID
	job   generate.Job
}

// Generate submits a job for the active region. The result is placed on the layer that was
// current at submission time.
func (s *Session) Generate(ctx context.Context, req Request) (string, error) {
	if s.gen == nil {
		return "", ErrNoGenerator
	}
	s.finishGesture()
	region := s.canvas.ActiveRegion()
	img, mask := render.Region(s.canvas.Layers(), region)
	job := generate.Job{
		ID:             generate.NewJobID(),
		Action:         req.Action,
		Prompt:         req.Prompt,
		NegativePrompt: req.NegativePrompt,
		Model:          req.Model,
		Scheduler:      req.Scheduler,
		Seed:           req.Seed,
		Steps:          req.Steps,
		Scale:          req.Scale,
		Strength:       req.Strength,
		Samples:        req.Samples,
		Width:          region.Width,
		Height:         region.Height,
		Region:         region,
		Image:          img,
		Mask:           mask,
		Options:        req.Options,
	}
	if job.Action == "" {
		job.Action = "txt2img"
	}
	var target domain.LayerID
	if l := s.canvas.Current(); l != nil {
		target = l.ID
	}
	id, err := s.gen.Submit(applog.ContextWithJob(ctx, job.ID), job)
	if err != nil {
		s.setStatus("Could not start generation", true)
		return "", fmt.Errorf("submit generation: %w", err)
	}
	s.pending[id] = pendingJob{layer: target, job: job}
	s.setStatus("Generating...", false)
	return id, nil
}

// Pending returns the number of submitted jobs without a result yet.
func (s *Session) Pending() int { return len(s.pending) }

// HandleResult applies a generation result on the control thread. It reports whether an
// image was placed. Results of jobs submitted against an earlier document are dropped.
func (s *Session) HandleResult(ctx context.Context, res generate.Result) bool {
	l := applog.WithOperation(s.log, "generation_result").With(slog.String("job", res.JobID))
	p, ok := s.pending[res.JobID]
	if !ok {
		l.Warn("dropping result for unknown job")
		return false
	}
	delete(s.pending, res.JobID)

	switch {
	case res.Err != nil:
		l.Error("generation failed", slog.Any("err", res.Err))
		s.setStatus(fmt.Sprintf("Generation failed: %v", res.Err), true)
		telemetry.Event(telemetry.EventGenerateFail, map[string]any{"action": p.job.Action})
		return false
	case res.NSFW && s.settings.NSFWFilter:
		l.Info("result withheld by NSFW filter")
		s.setStatus("NSFW content detected, image was filtered", true)
		return false
	case res.Image == nil:
		s.setStatus("Generation returned no image", true)
		return false
	}

	s.finishGesture()
	index := s.canvas.IndexOf(p.layer)
	if index < 0 {
		index = s.canvas.CurrentIndex()
	}
	if !s.record(s.canvas.PlaceImage(index, res.Image, p.job.Region.Origin())) {
		s.setStatus("No layer to place the image on", true)
		return false
	}
	s.setStatus("Image generated", false)
	telemetry.Event(telemetry.EventGenerate, map[string]any{"action": p.job.Action, "ms": res.Elapsed.Milliseconds()})

	if s.doc != nil {
		layer := s.canvas.Layer(index)
		g := storage.Generation{
			JobID:          res.JobID,
			Action:         p.job.Action,
			Prompt:         p.job.Prompt,
			NegativePrompt: p.job.NegativePrompt,
			Seed:           p.job.Seed,
			Layer:          layer.ID,
			Region:         p.job.Region,
			Metadata:       res.Metadata,
		}
		var buf bytes.Buffer
		if err := png.Encode(&buf, render.Thumbnail(res.Image, ThumbSize)); err == nil {
			g.Thumb = buf.Bytes()
		}
		ctx = applog.ContextWithDocument(ctx, s.doc.Path)
		if err := storage.RecordGenerationFor(ctx, s.doc.Path, g); err != nil {
			l.WarnContext(ctx, "recording generation failed", slog.Any("err", err))
		}
	}
	return true
}
