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
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// ChannelSummary holds descriptive statistics of one channel.
type ChannelSummary struct {
	Mean   float64
	StdDev float64
	Min    float64
	Max    float64
}

// Summarize computes per-channel statistics. Empty channels yield a zero
// summary.
func Summarize[T Sample](m Matrix[T]) []ChannelSummary {
	out := make([]ChannelSummary, len(m))
	for ch := range m {
		row := m.Row(ch)
		if len(row) == 0 {
			continue
		}
		mean, std := stat.MeanStdDev(row, nil)
		if len(row) == 1 {
			std = 0
		}
		out[ch] = ChannelSummary{
			Mean:   mean,
			StdDev: std,
			Min:    floats.Min(row),
			Max:    floats.Max(row),
		}
	}
	return out
}
