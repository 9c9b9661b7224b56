// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package recording

import (
	"strings"

	"github.com/OpenPSG/dangercat/edf"
)

// DecodeAnnotations turns the raw samples of an EDF+ annotation channel into
// markers. The onset of the first record is the reference point, every
// record with a valid onset and at least one text becomes a marker at
// (onset - reference) * rate. Only the onset field has to parse, a malformed
// duration is ignored. Records without a valid onset are skipped.
func DecodeAnnotations(samples []int16, rate float64) Markers {
	var (
		markers Markers
		origin  float64
	)

	for i, record := range edf.SplitTALs(edf.AnnotationBytes(samples)) {
		onset, err := edf.ParseOnset(record)
		if err != nil {
			continue
		}
		if i == 0 {
			origin = onset
		}
		texts := edf.TALTexts(record)
		if len(texts) == 0 {
			continue
		}

		markers.Positions = append(markers.Positions, (onset-origin)*rate)
		markers.Labels = append(markers.Labels, strings.Join(texts, "; "))
	}

	return markers
}
