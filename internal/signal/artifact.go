// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package signal

import (
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/floats"
)

// ArtifactMode selects how samples inside an artifact window are replaced.
type ArtifactMode int

const (
	// ModeZero sets every sample in the window to zero.
	ModeZero ArtifactMode = iota
	// ModeInterpolate replaces the window with a straight line between its
	// neighbouring samples.
	ModeInterpolate
)

func (m ArtifactMode) String() string {
	switch m {
	case ModeZero:
		return "zero"
	case ModeInterpolate:
		return "interpolate"
	default:
		return fmt.Sprintf("ArtifactMode(%d)", int(m))
	}
}

// ParseArtifactMode parses "zero" or "interpolate".
func ParseArtifactMode(s string) (ArtifactMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "zero":
		return ModeZero, nil
	case "interpolate", "interp":
		return ModeInterpolate, nil
	}
	return 0, fmt.Errorf("unknown artifact mode %q", s)
}

// ArtifactParams configures artifact removal.
type ArtifactParams struct {
	TMin float64 // Seconds before each marker
	TMax float64 // Seconds after each marker
	Mode ArtifactMode
}

// Window is an inclusive sample range around a marker.
type Window struct {
	Start, End int

	// ClippedStart and ClippedEnd report that the window was clamped to the
	// first or last sample of the recording.
	ClippedStart, ClippedEnd bool
}

// Len returns the number of samples in the window.
func (w Window) Len() int {
	return w.End - w.Start + 1
}

// ArtifactWindow computes the window [marker - tmin*rate, marker + tmax*rate]
// clamped to [0, length). It reports false when the clamped window is empty.
func ArtifactWindow(marker, tmin, tmax, rate float64, length int) (Window, bool) {
	start := math.Round(marker - tmin*rate)
	end := math.Round(marker + tmax*rate)
	if math.IsNaN(start) || math.IsNaN(end) {
		return Window{}, false
	}

	var w Window
	if start < 0 {
		start, w.ClippedStart = 0, true
	}
	if end > float64(length-1) {
		end, w.ClippedEnd = float64(length-1), true
	}
	if start > end {
		return Window{}, false
	}

	w.Start, w.End = int(start), int(end)
	return w, true
}

// RemoveArtifacts replaces the artifact window around every marker on every
// channel. Markers whose window falls outside the recording are skipped.
func RemoveArtifacts[T Sample](p ArtifactParams, markers []float64, rate float64, m Matrix[T]) (Matrix[T], error) {
	if m.Channels() == 0 || m.Len() == 0 {
		return nil, fmt.Errorf("%w: no samples", ErrDegenerate)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}

	out := m.Clone()
	for _, marker := range markers {
		w, ok := ArtifactWindow(marker, p.TMin, p.TMax, rate, m.Len())
		if !ok {
			continue
		}
		for _, row := range out {
			switch p.Mode {
			case ModeInterpolate:
				interpolate(row, w)
			default:
				clear(row[w.Start : w.End+1])
			}
		}
	}
	return out, nil
}

// interpolate draws a line from row[w.Start-1] to row[w.End+1], the samples
// just outside the window, and writes it over row[w.Start:w.End+1]. The
// anchors themselves are left as they are. When the window touches an edge
// of the recording the remaining neighbour is held constant.
func interpolate[T Sample](row []T, w Window) {
	hasLeft := !w.ClippedStart && w.Start > 0
	hasRight := !w.ClippedEnd && w.End < len(row)-1

	var fill []float64
	switch {
	case hasLeft && hasRight:
		line := floats.Span(make([]float64, w.Len()+2), float64(row[w.Start-1]), float64(row[w.End+1]))
		fill = line[1 : len(line)-1]
	case hasLeft:
		fill = constant(w.Len(), float64(row[w.Start-1]))
	case hasRight:
		fill = constant(w.Len(), float64(row[w.End+1]))
	default:
		fill = make([]float64, w.Len())
	}

	for i, v := range fill {
		row[w.Start+i] = quantize[T](v)
	}
}

func constant(n int, v float64) []float64 {
	out := make([]float64, n)
	floats.AddConst(v, out)
	return out
}
