// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package signal

import "gonum.org/v1/gonum/stat"

// Reference returns the average-referenced view of m: at every time index
// the mean across channels is subtracted from each channel. An empty matrix
// yields an empty result.
func Reference[T Sample](m Matrix[T]) (Matrix[T], error) {
	if len(m) == 0 {
		return Matrix[T]{}, nil
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}

	out := NewMatrix[T](len(m), m.Len())
	col := make([]float64, len(m))
	for t := 0; t < m.Len(); t++ {
		for ch := range m {
			col[ch] = float64(m[ch][t])
		}
		mean := stat.Mean(col, nil)
		for ch := range m {
			out[ch][t] = quantize[T](col[ch] - mean)
		}
	}

	return out, nil
}
