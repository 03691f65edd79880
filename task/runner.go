/*
Copyright (C) 2026 the vecfilter authors.
This file is part of vecfilter.

vecfilter is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

vecfilter is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with vecfilter.  If not, see <http://www.gnu.org/licenses/>.
*/

// Package task implements §4.9's cooperative task runner: one pipeline
// run per Task, executed on a dedicated goroutine, cancellable only at
// the well-defined suspension points the orchestrator calls out via
// Checkpoint. This mirrors the context.Context-threaded long-running
// loop pattern the teacher uses for its simulation Run method
// (inmap.go), adapted from a single blocking call into an explicit
// suspend/resume protocol the orchestrator drives step by step.
package task

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Progress is the 0-100 + short description pair reported at each
// suspension point, per §4.9.
type Progress struct {
	Percent int
	Text    string
}

// Func is the body of one task: it receives a Control it must consult at
// every suspension point named in §4.9 (after prepare_source, after each
// apply_filter, before history push).
type Func func(ctx context.Context, ctl *Control) error

// Control is threaded through a running Task's Func so it can report
// progress and check for cancellation at a suspension point.
type Control struct {
	ctx      context.Context
	progress func(Progress)
}

// Checkpoint reports progress and returns ctx.Err() if the task has been
// cancelled since the last checkpoint — the orchestrator must treat a
// non-nil return as "stop now and roll back", never ignore it.
func (c *Control) Checkpoint(p Progress) error {
	if c.progress != nil {
		c.progress(p)
	}
	return c.ctx.Err()
}

// Context returns the task's context, for operations (backend calls)
// that need to observe cancellation directly rather than only at a
// named checkpoint.
func (c *Control) Context() context.Context {
	return c.ctx
}

// Task is one in-flight or completed cooperative run.
type Task struct {
	id     string
	cancel context.CancelFunc
	done    chan struct{}
	err     error
	mu      sync.Mutex
}

// ID returns the task's unique identifier, suitable for correlating log
// lines and progress callbacks across a single cooperative run. It is
// assigned once at Start and never reused, unlike the single-flight key
// passed to Start, which is reused across successive runs of the same
// layer.
func (t *Task) ID() string { return t.id }

// Runner schedules Tasks and enforces per-layer single-flight: starting
// a new task for a layer_ref that already has one pending cancels the
// pending one first, per §4.9.
type Runner struct {
	mu      sync.Mutex
	pending map[string]*Task
	log     *logrus.Entry
}

// New builds a Runner. log may be nil, in which case a package-level
// default logrus entry is used.
func New(log *logrus.Entry) *Runner {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Runner{pending: make(map[string]*Task), log: log}
}

// Start launches fn on its own goroutine under key's single-flight slot,
// cancelling any task already pending for key. onProgress may be nil.
func (r *Runner) Start(ctx context.Context, key string, fn Func, onProgress func(Progress)) *Task {
	r.mu.Lock()
	if prev, ok := r.pending[key]; ok {
		r.log.WithField("layer_ref", key).Info("cancelling pending task for single-flight slot")
		prev.Cancel()
	}
	runCtx, cancel := context.WithCancel(ctx)
	t := &Task{id: uuid.NewString(), cancel: cancel, done: make(chan struct{})}
	r.pending[key] = t
	r.mu.Unlock()

	ctl := &Control{ctx: runCtx, progress: onProgress}

	go func() {
		defer close(t.done)
		defer func() {
			r.mu.Lock()
			// only clear the slot if we still own it -- a newer Start
			// call for the same key may have already replaced it.
			if r.pending[key] == t {
				delete(r.pending, key)
			}
			r.mu.Unlock()
		}()
		r.log.WithFields(logrus.Fields{"layer_ref": key, "task_id": t.id}).Debug("task started")
		err := fn(runCtx, ctl)
		t.mu.Lock()
		t.err = err
		t.mu.Unlock()
	}()
	return t
}

// Cancel requests cancellation of t. The task observes it at its next
// Checkpoint, not immediately.
func (t *Task) Cancel() {
	t.cancel()
}

// Wait blocks until t completes (successfully, with an error, or
// because it was cancelled and the orchestrator finished rolling back)
// and returns its terminal error.
func (t *Task) Wait(ctx context.Context) error {
	select {
	case <-t.done:
		t.mu.Lock()
		defer t.mu.Unlock()
		return t.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done reports whether t has finished.
func (t *Task) Done() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}
