// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

// Package signal implements the per-channel transforms applied to a sample
// matrix before display: average referencing, zero-phase filtering and
// stimulation artifact removal. Every transform is a pure function that
// returns a new matrix and leaves its input untouched.
package signal

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrFilter is returned for filter parameters outside (0, Nyquist).
	ErrFilter = errors.New("invalid filter parameters")
	// ErrDegenerate is returned for empty or ragged input matrices.
	ErrDegenerate = errors.New("degenerate matrix")
)

// Sample is the element type of a sample matrix. EDF recordings are
// calibrated to float32, BrainVision recordings keep their int16 values.
type Sample interface {
	float32 | int16
}

// Matrix is a channel-major sample matrix: one row per channel.
type Matrix[T Sample] [][]T

// NewMatrix allocates a zeroed matrix.
func NewMatrix[T Sample](channels, samples int) Matrix[T] {
	m := make(Matrix[T], channels)
	for i := range m {
		m[i] = make([]T, samples)
	}
	return m
}

// Channels returns the number of rows.
func (m Matrix[T]) Channels() int {
	return len(m)
}

// Len returns the number of samples per channel, taken from the first row.
func (m Matrix[T]) Len() int {
	if len(m) == 0 {
		return 0
	}
	return len(m[0])
}

// Validate checks that every row has the same length as the first.
func (m Matrix[T]) Validate() error {
	n := m.Len()
	for i, row := range m {
		if len(row) != n {
			return fmt.Errorf("%w: channel %d has %d samples, want %d", ErrDegenerate, i, len(row), n)
		}
	}
	return nil
}

// Clone returns a deep copy.
func (m Matrix[T]) Clone() Matrix[T] {
	if m == nil {
		return nil
	}
	out := make(Matrix[T], len(m))
	for i, row := range m {
		out[i] = append([]T(nil), row...)
	}
	return out
}

// Row returns a channel as float64 values.
func (m Matrix[T]) Row(ch int) []float64 {
	row := make([]float64, len(m[ch]))
	for i, v := range m[ch] {
		row[i] = float64(v)
	}
	return row
}

// quantize converts a computed value back to the element type. Integer
// samples are rounded half away from zero and saturated.
func quantize[T Sample](v float64) T {
	var zero T
	if _, ok := any(zero).(int16); ok {
		r := math.Round(v)
		switch {
		case math.IsNaN(r):
			r = 0
		case r > math.MaxInt16:
			r = math.MaxInt16
		case r < math.MinInt16:
			r = math.MinInt16
		}
		return T(int16(r))
	}
	return T(v)
}

func fromRow[T Sample](row []float64) []T {
	out := make([]T, len(row))
	for i, v := range row {
		out[i] = quantize[T](v)
	}
	return out
}

// Decimate keeps every factor-th sample of each channel. A factor below 2
// returns a copy.
func Decimate[T Sample](m Matrix[T], factor int) Matrix[T] {
	if factor < 2 {
		return m.Clone()
	}
	out := make(Matrix[T], len(m))
	for i, row := range m {
		out[i] = make([]T, 0, (len(row)+factor-1)/factor)
		for j := 0; j < len(row); j += factor {
			out[i] = append(out[i], row[j])
		}
	}
	return out
}
