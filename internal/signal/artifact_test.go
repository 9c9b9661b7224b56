// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package signal_test

import (
	"testing"

	"github.com/OpenPSG/dangercat/internal/signal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func filled(channels, samples int, v float32) signal.Matrix[float32] {
	m := signal.NewMatrix[float32](channels, samples)
	for _, row := range m {
		for i := range row {
			row[i] = v
		}
	}
	return m
}

func TestArtifactWindow(t *testing.T) {
	w, ok := signal.ArtifactWindow(1000, 0.002, 0.005, 1000, 2000)
	require.True(t, ok)
	assert.Equal(t, 998, w.Start)
	assert.Equal(t, 1005, w.End)
	assert.Equal(t, 8, w.Len())

	w, ok = signal.ArtifactWindow(1, 0.005, 0.005, 1000, 2000)
	require.True(t, ok)
	assert.Equal(t, 0, w.Start)
	assert.True(t, w.ClippedStart)

	w, ok = signal.ArtifactWindow(1998, 0.002, 0.005, 1000, 2000)
	require.True(t, ok)
	assert.Equal(t, 1999, w.End)
	assert.True(t, w.ClippedEnd)

	_, ok = signal.ArtifactWindow(5000, 0.002, 0.005, 1000, 2000)
	assert.False(t, ok)

	_, ok = signal.ArtifactWindow(-100, 0.002, 0.005, 1000, 2000)
	assert.False(t, ok)
}

func TestRemoveArtifactsZero(t *testing.T) {
	m := filled(3, 2000, 7)
	orig := m.Clone()

	p := signal.ArtifactParams{TMin: 0.002, TMax: 0.005, Mode: signal.ModeZero}
	out, err := signal.RemoveArtifacts(p, []float64{1000}, 1000, m)
	require.NoError(t, err)
	require.Equal(t, m.Channels(), out.Channels())
	require.Equal(t, m.Len(), out.Len())

	for ch, row := range out {
		for i, v := range row {
			if i >= 998 && i <= 1005 {
				assert.Zero(t, v, "channel %d sample %d", ch, i)
			} else {
				assert.Equal(t, float32(7), v, "channel %d sample %d", ch, i)
			}
		}
	}
	assert.Equal(t, orig, m)
}

func TestRemoveArtifactsInterpolate(t *testing.T) {
	m := signal.NewMatrix[float32](2, 2000)
	for _, row := range m {
		for i := range row {
			switch {
			case i < 998:
				row[i] = 10
			case i > 1005:
				row[i] = 20
			default:
				row[i] = 500 // Artifact
			}
		}
	}

	p := signal.ArtifactParams{TMin: 0.002, TMax: 0.005, Mode: signal.ModeInterpolate}
	out, err := signal.RemoveArtifacts(p, []float64{1000}, 1000, m)
	require.NoError(t, err)

	for _, row := range out {
		assert.Equal(t, float32(10), row[997])
		assert.Equal(t, float32(20), row[1006])

		// A straight line from row[997] to row[1006].
		step := float32(10.0 / 9.0)
		prev := row[997]
		for i := 998; i <= 1005; i++ {
			assert.Greater(t, row[i], prev)
			assert.Less(t, row[i], float32(20))
			assert.InDelta(t, step, row[i]-prev, 1e-4)
			prev = row[i]
		}
	}
}

func TestRemoveArtifactsInterpolateAnchors(t *testing.T) {
	// Only the samples at 998 and 1006 are set, everything else is zero.
	m := signal.NewMatrix[float32](1, 2000)
	m[0][998] = 10
	m[0][1006] = 20

	p := signal.ArtifactParams{TMin: 0.002, TMax: 0.005, Mode: signal.ModeInterpolate}
	out, err := signal.RemoveArtifacts(p, []float64{1000}, 1000, m)
	require.NoError(t, err)
	row := out[0]

	// 998 is the first sample of the window [998, 1005], so it is replaced.
	// The line runs from row[997] = 0 to row[1006] = 20.
	assert.Equal(t, float32(0), row[997])
	assert.Equal(t, float32(20), row[1006])
	for i := 998; i <= 1005; i++ {
		assert.InDelta(t, 20*float64(i-997)/9, row[i], 1e-4, "sample %d", i)
	}
	assert.NotEqual(t, float32(10), row[998])
	assert.Equal(t, float32(0), row[1007])
}

func TestRemoveArtifactsInterpolateEdges(t *testing.T) {
	m := signal.Matrix[int16]{make([]int16, 100)}
	for i := range m[0] {
		m[0][i] = int16(i)
	}

	p := signal.ArtifactParams{TMin: 0.005, TMax: 0.005, Mode: signal.ModeInterpolate}
	out, err := signal.RemoveArtifacts(p, []float64{2, 97}, 1000, m)
	require.NoError(t, err)

	// Clamped to [0, 7]: the right neighbour is held.
	for i := 0; i <= 7; i++ {
		assert.Equal(t, int16(8), out[0][i])
	}
	// Clamped to [92, 99]: the left neighbour is held.
	for i := 92; i <= 99; i++ {
		assert.Equal(t, int16(91), out[0][i])
	}
	assert.Equal(t, int16(50), out[0][50])
}

func TestRemoveArtifactsSkipsOutOfRangeMarkers(t *testing.T) {
	m := filled(2, 100, 1)

	p := signal.ArtifactParams{TMin: 0.002, TMax: 0.005, Mode: signal.ModeZero}
	out, err := signal.RemoveArtifacts(p, []float64{-50, 1000, 50}, 1000, m)
	require.NoError(t, err)

	zeros := 0
	for _, v := range out[0] {
		if v == 0 {
			zeros++
		}
	}
	assert.Equal(t, 8, zeros)
}

func TestRemoveArtifactsEmpty(t *testing.T) {
	p := signal.ArtifactParams{TMin: 0.002, TMax: 0.005}

	_, err := signal.RemoveArtifacts(p, []float64{1}, 1000, signal.Matrix[float32]{})
	require.ErrorIs(t, err, signal.ErrDegenerate)

	_, err = signal.RemoveArtifacts(p, []float64{1}, 1000, signal.NewMatrix[int16](4, 0))
	require.ErrorIs(t, err, signal.ErrDegenerate)

	// No markers is not an error.
	out, err := signal.RemoveArtifacts(p, nil, 1000, filled(1, 10, 3))
	require.NoError(t, err)
	assert.Equal(t, filled(1, 10, 3), out)
}

func TestParseArtifactMode(t *testing.T) {
	mode, err := signal.ParseArtifactMode("Interpolate")
	require.NoError(t, err)
	assert.Equal(t, signal.ModeInterpolate, mode)
	assert.Equal(t, "zero", signal.ModeZero.String())

	_, err = signal.ParseArtifactMode("smooth")
	require.Error(t, err)
}
