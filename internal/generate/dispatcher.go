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
	"errors"
	"sync"

	applog "airunner/internal/log"
)

// ErrClosed is returned by Submit after Close.
var ErrClosed = errors.New("generate: dispatcher closed")

// Dispatcher runs jobs off the control thread and delivers exactly one Result per accepted
// job on Results. It never touches document state; the receiver applies results.
type Dispatcher struct {
	backend Backend
	results chan Result

	mu     sync.Mutex
	wg     sync.WaitGroup
	closed bool
}

// NewDispatcher creates a dispatcher. buffer sizes the result channel.
func NewDispatcher(b Backend, buffer int) *Dispatcher {
	if buffer < 1 {
		buffer = 1
	}
	return &Dispatcher{backend: b, results: make(chan Result, buffer)}
}

// Results is drained by the control loop. It is closed by Close once in-flight jobs finish.
func (d *Dispatcher) Results() <-chan Result { return d.results }

// Submit accepts job and runs it asynchronously. A missing job ID is filled in and returned.
func (d *Dispatcher) Submit(ctx context.Context, job Job) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return "", ErrClosed
	}
	if job.ID == "" {
		job.ID = NewJobID()
	}
	d.wg.Add(1)
	go d.run(ctx, job)
	return job.ID, nil
}

func (d *Dispatcher) run(ctx context.Context, job Job) {
	defer d.wg.Done()
	l := applog.WithOperation(applog.WithComponent("generate"), "dispatch")
	res, err := d.backend.Generate(ctx, job)
	res.JobID = job.ID
	res.Job = job
	if err != nil {
		l.Warn("generation failed", "job", job.ID, "err", err)
		if res.Err == nil {
			res.Err = err
		}
	}
	d.results <- res
}

// Close stops accepting jobs, waits for in-flight jobs and closes Results. Callers must keep
// draining Results until it is closed.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	d.mu.Unlock()
	go func() {
		d.wg.Wait()
		close(d.results)
	}()
}
