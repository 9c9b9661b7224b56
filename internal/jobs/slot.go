// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

// Package jobs runs one-shot background work and hands each result to the
// poller at most once.
//
// A Slot holds at most one running job. Starting a new job abandons the
// previous one: the old worker keeps running to completion but its result
// can no longer be observed. Polling never blocks.
package jobs

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrDisconnected is returned when a worker exits without sending a result.
var ErrDisconnected = errors.New("job worker disconnected without a result")

// Kind identifies what a job computes.
type Kind int

const (
	Load Kind = iota
	Filter
	ArtifactRemoval
)

func (k Kind) String() string {
	switch k {
	case Load:
		return "load"
	case Filter:
		return "filter"
	case ArtifactRemoval:
		return "artifact_removal"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Status is the outcome of a poll.
type Status int

const (
	// Idle means no job is running in the slot.
	Idle Status = iota
	// Pending means the job is still running.
	Pending
	// Delivered means the job succeeded and Value holds its result.
	Delivered
	// Failed means the job returned an error.
	Failed
	// Disconnected means the worker died without a result.
	Disconnected
)

func (s Status) String() string {
	switch s {
	case Idle:
		return "idle"
	case Pending:
		return "pending"
	case Delivered:
		return "delivered"
	case Failed:
		return "failed"
	case Disconnected:
		return "disconnected"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// Result is returned by Poll. ID and Generation identify the job the
// result belongs to and are zero for Idle.
type Result[T any] struct {
	ID         uuid.UUID
	Generation uint64
	Status     Status
	Value      T
	Err        error
}

// Done reports whether the poll drained the slot.
func (r Result[T]) Done() bool {
	return r.Status == Delivered || r.Status == Failed || r.Status == Disconnected
}

type outcome[T any] struct {
	value T
	err   error
}

type job[T any] struct {
	id         uuid.UUID
	generation uint64
	results    <-chan outcome[T]
}

// Slot runs one job of a given kind at a time.
type Slot[T any] struct {
	kind    Kind
	logger  *slog.Logger
	metrics *Metrics

	mu         sync.Mutex
	generation uint64
	current    *job[T]
}

// NewSlot creates an idle slot. The logger and metrics may be nil.
func NewSlot[T any](kind Kind, logger *slog.Logger, metrics *Metrics) *Slot[T] {
	if logger == nil {
		logger = slog.Default()
	}
	return &Slot[T]{
		kind:    kind,
		logger:  logger.With(slog.String("job", kind.String())),
		metrics: metrics,
	}
}

// Kind returns the kind of job the slot runs.
func (s *Slot[T]) Kind() Kind {
	return s.kind
}

// Start runs fn on its own goroutine and returns the new job's ID. A job
// already running in the slot is abandoned first. fn must only use inputs
// it owns.
func (s *Slot[T]) Start(fn func() (T, error)) uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.abandonLocked()

	s.generation++
	results := make(chan outcome[T], 1)
	j := &job[T]{
		id:         uuid.New(),
		generation: s.generation,
		results:    results,
	}
	s.current = j

	logger := s.logger.With(slog.String("id", j.id.String()), slog.Uint64("generation", j.generation))
	logger.Debug("Starting job")
	s.metrics.started(s.kind)

	go func() {
		started := time.Now()
		defer close(results)
		defer s.metrics.stopped(s.kind, started)
		defer func() {
			if r := recover(); r != nil {
				logger.Error("Job panicked", slog.Any("panic", r))
			}
		}()

		value, err := fn()
		results <- outcome[T]{value: value, err: err}
	}()

	return j.id
}

// Abandon drops the running job, if any. The worker is not stopped but its
// result will never be delivered. It reports whether a job was abandoned.
func (s *Slot[T]) Abandon() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.abandonLocked()
}

func (s *Slot[T]) abandonLocked() bool {
	if s.current == nil {
		return false
	}

	s.logger.Debug("Abandoning job", slog.String("id", s.current.id.String()))
	s.metrics.finished(s.kind, "abandoned")
	s.current = nil
	return true
}

// Poll checks the running job without blocking.
func (s *Slot[T]) Poll() Result[T] {
	s.mu.Lock()
	defer s.mu.Unlock()

	j := s.current
	if j == nil {
		return Result[T]{Status: Idle}
	}
	res := Result[T]{ID: j.id, Generation: j.generation}

	select {
	case out, ok := <-j.results:
		s.current = nil
		switch {
		case !ok:
			res.Status = Disconnected
			res.Err = fmt.Errorf("%w: %s job %s", ErrDisconnected, s.kind, j.id)
		case out.err != nil:
			res.Status = Failed
			res.Err = out.err
		default:
			res.Status = Delivered
			res.Value = out.value
		}
		s.metrics.finished(s.kind, res.Status.String())
	default:
		res.Status = Pending
	}

	return res
}

// Running reports whether a job is occupying the slot.
func (s *Slot[T]) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.current != nil
}

// Generation returns the number of jobs started in the slot so far.
func (s *Slot[T]) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.generation
}
