// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package session_test

import (
	"context"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/OpenPSG/dangercat/edf"
	"github.com/OpenPSG/dangercat/internal/jobs"
	"github.com/OpenPSG/dangercat/internal/recording"
	"github.com/OpenPSG/dangercat/internal/session"
	"github.com/OpenPSG/dangercat/internal/signal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

const rate = 250

// writeEDF writes four seconds of a 10 Hz sine on two channels with a
// stimulus marker at two seconds.
func writeEDF(t *testing.T) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "session.edf")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	sig := func(label string) edf.Signal {
		return edf.Signal{
			Label:             label,
			PhysicalDimension: "uV",
			PhysicalMin:       -3276.8,
			PhysicalMax:       3276.7,
			DigitalMin:        -32768,
			DigitalMax:        32767,
			SamplesPerRecord:  rate,
		}
	}

	ew, err := edf.Create(f, edf.Header{
		Version:            edf.Version0,
		StartTime:          time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC),
		DataRecordDuration: time.Second,
		Signals: []edf.Signal{sig("EEG C3"), sig("EEG C4"), {
			Label:            edf.AnnotationsLabel,
			DigitalMin:       -32768,
			DigitalMax:       32767,
			PhysicalMin:      -1,
			PhysicalMax:      1,
			SamplesPerRecord: 30,
		}},
	})
	require.NoError(t, err)

	for r := 0; r < 4; r++ {
		signals := [][]float64{make([]float64, rate), make([]float64, rate)}
		for c := range signals {
			for i := range signals[c] {
				n := float64(r*rate + i)
				signals[c][i] = 20 + float64(c)*5 + 100*math.Sin(2*math.Pi*10*n/rate)
			}
		}

		var tals []edf.TAL
		if r == 2 {
			tals = append(tals, edf.TAL{Onset: 2, Texts: []string{"TMS"}})
		}
		require.NoError(t, ew.WriteRecord(signals, tals...))
	}
	require.NoError(t, ew.Close())

	return path
}

func wait(t *testing.T, s *session.Session) []session.Event {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	events, err := s.Wait(ctx, time.Millisecond)
	require.NoError(t, err)
	return events
}

func loaded(t *testing.T) *session.Session {
	t.Helper()

	s := session.New(discard, nil)
	s.StartLoad(writeEDF(t), recording.Options{LoadSamples: true})

	events := wait(t, s)
	require.Len(t, events, 1)
	require.Equal(t, jobs.Delivered, events[0].Status)
	require.NotNil(t, s.Recording())

	return s
}

func samples(t *testing.T, s *session.Session) signal.Matrix[float32] {
	t.Helper()

	d, ok := s.Recording().Data.(*recording.Signals[float32])
	require.True(t, ok)
	return d.Samples
}

func TestNoRecording(t *testing.T) {
	s := session.New(discard, nil)

	_, err := s.StartFilter(signal.FilterParams{Highpass: 1, Lowpass: 45})
	require.ErrorIs(t, err, session.ErrNoRecording)
	_, err = s.StartArtifactRemoval(signal.ArtifactParams{TMin: 0.002, TMax: 0.005})
	require.ErrorIs(t, err, session.ErrNoRecording)
	_, err = s.Summaries(recording.Original)
	require.ErrorIs(t, err, session.ErrNoRecording)

	assert.False(t, s.Busy())
	assert.Empty(t, s.Tick())
}

func TestLoad(t *testing.T) {
	s := loaded(t)
	rec := s.Recording()

	assert.Equal(t, []string{"EEG C3", "EEG C4"}, rec.Info.ChannelNames)
	assert.Equal(t, float64(rate), rec.Info.SamplingRate)
	assert.Equal(t, []float64{2 * rate}, rec.Markers.Positions)
	assert.Equal(t, 4*rate, rec.Data.Len())

	summaries, err := s.Summaries(recording.Original)
	require.NoError(t, err)
	require.Len(t, summaries, 2)
	assert.InDelta(t, 20, summaries[0].Mean, 0.5)
	assert.InDelta(t, 25, summaries[1].Mean, 0.5)

	// The average reference removes the common sine.
	referenced, err := s.Summaries(recording.AverageReference)
	require.NoError(t, err)
	assert.InDelta(t, -2.5, referenced[0].Mean, 0.1)
	assert.InDelta(t, 0, referenced[0].StdDev, 0.1)

	preview, err := s.Preview(recording.Original, 100)
	require.NoError(t, err)
	require.Len(t, preview, 2)
	assert.Len(t, preview[0], 10)
}

func TestLoadFailureInstallsNothing(t *testing.T) {
	s := session.New(discard, nil)
	s.StartLoad(filepath.Join(t.TempDir(), "missing.edf"), recording.Options{LoadSamples: true})

	events := wait(t, s)
	require.Len(t, events, 1)
	assert.Equal(t, jobs.Load, events[0].Kind)
	assert.Equal(t, jobs.Failed, events[0].Status)
	assert.ErrorIs(t, events[0].Err, recording.ErrNotFound)
	assert.Nil(t, s.Recording())
}

func TestLoadSuperseded(t *testing.T) {
	s := session.New(discard, nil)
	s.StartLoad(filepath.Join(t.TempDir(), "missing.edf"), recording.Options{LoadSamples: true})
	path := writeEDF(t)
	id := s.StartLoad(path, recording.Options{LoadSamples: true})

	events := wait(t, s)
	require.Len(t, events, 1)
	assert.Equal(t, id, events[0].ID)
	assert.Equal(t, jobs.Delivered, events[0].Status)
	assert.Equal(t, path, s.Recording().Path)
}

func TestFilter(t *testing.T) {
	s := loaded(t)
	before := samples(t, s)

	_, err := s.StartFilter(signal.FilterParams{Highpass: 1, Lowpass: 45, Notch: true})
	require.NoError(t, err)

	events := wait(t, s)
	require.Len(t, events, 1)
	require.Equal(t, jobs.Filter, events[0].Kind)
	require.Equal(t, jobs.Delivered, events[0].Status)

	after := samples(t, s)
	require.Equal(t, before.Channels(), after.Channels())
	require.Equal(t, before.Len(), after.Len())

	// The high-pass removes the DC offset.
	summaries, err := s.Summaries(recording.Original)
	require.NoError(t, err)
	assert.InDelta(t, 0, summaries[0].Mean, 2)

	d := s.Recording().Data.(*recording.Signals[float32])
	assert.NotNil(t, d.Referenced)
}

func TestFilterFailureKeepsData(t *testing.T) {
	s := loaded(t)
	before := s.Recording().Data

	_, err := s.StartFilter(signal.FilterParams{Highpass: 1, Lowpass: rate})
	require.NoError(t, err)

	events := wait(t, s)
	require.Len(t, events, 1)
	assert.Equal(t, jobs.Failed, events[0].Status)
	assert.ErrorIs(t, events[0].Err, signal.ErrFilter)
	assert.Same(t, before, s.Recording().Data)
}

func TestArtifactRemoval(t *testing.T) {
	s := loaded(t)
	before := samples(t, s).Clone()

	_, err := s.StartArtifactRemoval(signal.ArtifactParams{TMin: 0.002, TMax: 0.005, Mode: signal.ModeZero})
	require.NoError(t, err)

	events := wait(t, s)
	require.Len(t, events, 1)
	require.Equal(t, jobs.ArtifactRemoval, events[0].Kind)
	require.Equal(t, jobs.Delivered, events[0].Status)

	after := samples(t, s)
	for ch := range after {
		assert.Zero(t, after[ch][500])
		assert.Zero(t, after[ch][501])
		assert.Equal(t, before[ch][499], after[ch][499])
		assert.Equal(t, before[ch][502], after[ch][502])
	}
}

func TestLoadAbandonsProcessing(t *testing.T) {
	s := loaded(t)

	_, err := s.StartFilter(signal.FilterParams{Highpass: 1, Lowpass: 45})
	require.NoError(t, err)
	s.StartLoad(writeEDF(t), recording.Options{LoadSamples: true})

	events := wait(t, s)
	for _, ev := range events {
		if ev.Kind == jobs.Load {
			// Once the new recording is installed the old filter result is dropped.
			assert.Equal(t, jobs.Delivered, ev.Status)
		}
	}
	assert.False(t, s.Busy())
}
