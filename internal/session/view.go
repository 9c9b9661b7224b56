// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package session

import (
	"github.com/OpenPSG/dangercat/internal/recording"
	"github.com/OpenPSG/dangercat/internal/signal"
)

// Summaries returns per-channel statistics of the display matrix.
func (s *Session) Summaries(ref recording.Reference) ([]signal.ChannelSummary, error) {
	if s.rec == nil {
		return nil, ErrNoRecording
	}

	switch d := s.rec.Data.(type) {
	case *recording.Signals[float32]:
		return signal.Summarize(d.Display(ref)), nil
	case *recording.Signals[int16]:
		return signal.Summarize(d.Display(ref)), nil
	}
	return nil, ErrNoRecording
}

// Preview returns the display matrix keeping every factor-th sample.
func (s *Session) Preview(ref recording.Reference, factor int) ([][]float64, error) {
	if s.rec == nil {
		return nil, ErrNoRecording
	}

	switch d := s.rec.Data.(type) {
	case *recording.Signals[float32]:
		return rows(signal.Decimate(d.Display(ref), factor)), nil
	case *recording.Signals[int16]:
		return rows(signal.Decimate(d.Display(ref), factor)), nil
	}
	return nil, ErrNoRecording
}

func rows[T signal.Sample](m signal.Matrix[T]) [][]float64 {
	out := make([][]float64, m.Channels())
	for ch := range out {
		out[ch] = m.Row(ch)
	}
	return out
}
