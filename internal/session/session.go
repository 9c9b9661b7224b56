// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

// Package session owns the loaded recording and the background jobs that
// load and condition it. A Session is driven from a single polling
// goroutine; it is not safe for concurrent use.
package session

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/OpenPSG/dangercat/internal/jobs"
	"github.com/OpenPSG/dangercat/internal/recording"
	"github.com/OpenPSG/dangercat/internal/signal"
	"github.com/google/uuid"
)

// ErrNoRecording is returned when processing is requested before samples
// have been loaded.
var ErrNoRecording = errors.New("no recording loaded")

// Event reports a job that left its slot during a Tick.
type Event struct {
	Kind   jobs.Kind
	ID     uuid.UUID
	Status jobs.Status
	Err    error
}

// Session owns the loaded recording and one job slot per kind of work. It
// is driven from a single goroutine: jobs run in the background, their
// results are only installed by Tick.
type Session struct {
	logger *slog.Logger

	// nil until a load has been delivered.
	rec *recording.Recording

	load     *jobs.Slot[*recording.Recording]
	filter   *jobs.Slot[recording.Data]
	artifact *jobs.Slot[recording.Data]
}

// New creates an empty session. The logger and metrics may be nil.
func New(logger *slog.Logger, metrics *jobs.Metrics) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		logger:   logger,
		load:     jobs.NewSlot[*recording.Recording](jobs.Load, logger, metrics),
		filter:   jobs.NewSlot[recording.Data](jobs.Filter, logger, metrics),
		artifact: jobs.NewSlot[recording.Data](jobs.ArtifactRemoval, logger, metrics),
	}
}

// Recording returns the installed recording, or nil.
func (s *Session) Recording() *recording.Recording {
	return s.rec
}

// Busy reports whether any job is running.
func (s *Session) Busy() bool {
	return s.load.Running() || s.filter.Running() || s.artifact.Running()
}

// StartLoad loads path in the background, superseding any load in flight.
func (s *Session) StartLoad(path string, opts recording.Options) uuid.UUID {
	if opts.Logger == nil {
		opts.Logger = s.logger
	}
	return s.load.Start(func() (*recording.Recording, error) {
		return recording.Load(path, opts)
	})
}

// StartFilter runs the filter pipeline over a copy of the current samples.
func (s *Session) StartFilter(p signal.FilterParams) (uuid.UUID, error) {
	if s.rec == nil || s.rec.Data == nil {
		return uuid.Nil, ErrNoRecording
	}
	rate := s.rec.Info.SamplingRate

	var fn func() (recording.Data, error)
	switch d := s.rec.Data.(type) {
	case *recording.Signals[float32]:
		fn = transform(d, s.logger, func(m signal.Matrix[float32]) (signal.Matrix[float32], error) {
			return signal.Filter(p, rate, m)
		})
	case *recording.Signals[int16]:
		fn = transform(d, s.logger, func(m signal.Matrix[int16]) (signal.Matrix[int16], error) {
			return signal.Filter(p, rate, m)
		})
	default:
		return uuid.Nil, ErrNoRecording
	}

	return s.filter.Start(fn), nil
}

// StartArtifactRemoval removes stimulation artifacts around every marker
// from a copy of the current samples.
func (s *Session) StartArtifactRemoval(p signal.ArtifactParams) (uuid.UUID, error) {
	if s.rec == nil || s.rec.Data == nil {
		return uuid.Nil, ErrNoRecording
	}
	rate := s.rec.Info.SamplingRate
	markers := append([]float64(nil), s.rec.Markers.Positions...)

	var fn func() (recording.Data, error)
	switch d := s.rec.Data.(type) {
	case *recording.Signals[float32]:
		fn = transform(d, s.logger, func(m signal.Matrix[float32]) (signal.Matrix[float32], error) {
			return signal.RemoveArtifacts(p, markers, rate, m)
		})
	case *recording.Signals[int16]:
		fn = transform(d, s.logger, func(m signal.Matrix[int16]) (signal.Matrix[int16], error) {
			return signal.RemoveArtifacts(p, markers, rate, m)
		})
	default:
		return uuid.Nil, ErrNoRecording
	}

	return s.artifact.Start(fn), nil
}

// transform snapshots the samples now and returns a job that produces new
// signals from the snapshot, with a freshly computed reference.
func transform[T signal.Sample](d *recording.Signals[T], logger *slog.Logger, f func(signal.Matrix[T]) (signal.Matrix[T], error)) func() (recording.Data, error) {
	in := d.Samples.Clone()
	return func() (recording.Data, error) {
		out, err := f(in)
		if err != nil {
			return nil, err
		}
		return recording.NewSignals(out, logger), nil
	}
}

// Tick drains every slot once without blocking and installs delivered
// results. It returns the jobs that finished.
func (s *Session) Tick() []Event {
	var events []Event

	if res := s.load.Poll(); res.Done() {
		if res.Status == jobs.Delivered {
			s.rec = res.Value
			// Results computed from the previous recording no longer apply.
			s.filter.Abandon()
			s.artifact.Abandon()
			s.logger.Info("Recording loaded",
				slog.String("path", s.rec.Path),
				slog.Int("channels", s.rec.Info.ChannelCount),
				slog.Float64("sampling_rate", s.rec.Info.SamplingRate),
				slog.Int("markers", s.rec.Markers.Count()))
		}
		events = append(events, s.event(jobs.Load, res.ID, res.Status, res.Err))
	}

	for _, slot := range []*jobs.Slot[recording.Data]{s.filter, s.artifact} {
		res := slot.Poll()
		if !res.Done() {
			continue
		}
		if res.Status == jobs.Delivered && s.rec != nil {
			s.rec.Data = res.Value
		}
		events = append(events, s.event(slot.Kind(), res.ID, res.Status, res.Err))
	}

	return events
}

func (s *Session) event(kind jobs.Kind, id uuid.UUID, status jobs.Status, err error) Event {
	if err != nil {
		s.logger.Error("Job failed", slog.String("job", kind.String()), slog.String("id", id.String()),
			slog.String("status", status.String()), slog.Any("error", err))
	}
	return Event{Kind: kind, ID: id, Status: status, Err: err}
}

// Wait ticks every interval until no job is running or ctx is done, and
// returns the collected events.
func (s *Session) Wait(ctx context.Context, interval time.Duration) ([]Event, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var events []Event
	for {
		events = append(events, s.Tick()...)
		if !s.Busy() {
			return events, nil
		}

		select {
		case <-ctx.Done():
			return events, ctx.Err()
		case <-ticker.C:
		}
	}
}
