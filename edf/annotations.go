// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package edf

import (
	"fmt"
	"strconv"
	"strings"
)

// TAL delimiters as defined by EDF+.
const (
	talEnd         = '\x00' // Terminates a time-stamped annotation list
	talTextSep     = '\x14' // Separates the onset from, and terminates, each annotation text
	talDurationSep = '\x15' // Separates the onset from the duration
)

// TAL is a time-stamped annotation list.
type TAL struct {
	Onset    float64  // Onset in seconds relative to the file start time
	Duration float64  // Duration in seconds, 0 if not specified
	Texts    []string // Annotation texts, empty for timekeeping TALs
}

// AnnotationBytes reassembles the byte stream of an annotation signal. Every
// sample is an unsigned 16-bit little-endian word.
func AnnotationBytes(samples []int16) []byte {
	b := make([]byte, 0, len(samples)*2)
	for _, s := range samples {
		w := uint16(s)
		b = append(b, byte(w&0xFF), byte(w>>8))
	}
	return b
}

// AnnotationSamples packs an annotation byte stream into n samples, padding
// with zero bytes.
func AnnotationSamples(b []byte, n int) ([]int16, error) {
	if len(b) > n*2 {
		return nil, fmt.Errorf("annotations too large: %d bytes, max is %d bytes", len(b), n*2)
	}
	padded := make([]byte, n*2)
	copy(padded, b)

	samples := make([]int16, n)
	for i := range samples {
		samples[i] = int16(uint16(padded[2*i]) | uint16(padded[2*i+1])<<8)
	}
	return samples, nil
}

// SplitTALs splits a decoded annotation stream into its non-empty TAL records.
func SplitTALs(b []byte) []string {
	var records []string
	for _, rec := range strings.Split(string(b), string(talEnd)) {
		if strings.TrimSpace(rec) == "" {
			continue
		}
		records = append(records, rec)
	}
	return records
}

// ParseTAL parses a single TAL record (without its trailing NUL). The onset
// must carry an explicit '+' sign.
func ParseTAL(record string) (TAL, error) {
	onset, err := ParseOnset(record)
	if err != nil {
		return TAL{}, err
	}

	tal := TAL{Onset: onset, Texts: TALTexts(record)}
	head, _, _ := strings.Cut(record, string(talTextSep))
	if _, durationStr, ok := strings.Cut(head, string(talDurationSep)); ok && strings.TrimSpace(durationStr) != "" {
		if tal.Duration, err = strconv.ParseFloat(strings.TrimSpace(durationStr), 64); err != nil {
			return TAL{}, fmt.Errorf("error parsing duration: %w", err)
		}
	}

	return tal, nil
}

// ParseOnset parses only the signed onset field of a TAL record, in seconds.
func ParseOnset(record string) (float64, error) {
	head, _, _ := strings.Cut(record, string(talTextSep))
	onsetStr, _, _ := strings.Cut(head, string(talDurationSep))

	onsetStr = strings.TrimSpace(onsetStr)
	if !strings.HasPrefix(onsetStr, "+") {
		return 0, fmt.Errorf("onset %q: missing '+' sign", onsetStr)
	}
	onset, err := strconv.ParseFloat(strings.TrimSpace(onsetStr[1:]), 64)
	if err != nil {
		return 0, fmt.Errorf("error parsing onset: %w", err)
	}
	return onset, nil
}

// TALTexts returns the non-empty annotation texts of a TAL record.
func TALTexts(record string) []string {
	_, rest, _ := strings.Cut(record, string(talTextSep))

	var texts []string
	for _, text := range strings.Split(rest, string(talTextSep)) {
		if text != "" {
			texts = append(texts, text)
		}
	}
	return texts
}

// String encodes the TAL including its trailing NUL.
func (t TAL) String() string {
	var sb strings.Builder
	if t.Onset >= 0 {
		sb.WriteByte('+')
	}
	sb.WriteString(strconv.FormatFloat(t.Onset, 'f', -1, 64))
	if t.Duration > 0 {
		sb.WriteByte(talDurationSep)
		sb.WriteString(strconv.FormatFloat(t.Duration, 'f', -1, 64))
	}
	sb.WriteByte(talTextSep)
	if len(t.Texts) == 0 {
		sb.WriteByte(talTextSep)
	}
	for _, text := range t.Texts {
		sb.WriteString(text)
		sb.WriteByte(talTextSep)
	}
	sb.WriteByte(talEnd)
	return sb.String()
}
