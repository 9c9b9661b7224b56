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
	"math"
	"strings"
	"time"
)

// Version is the 8 byte version field of the preamble.
type Version string

const (
	// Version0 represents the version of the EDF/EDF+ standard.
	Version0 Version = "0"
)

// AnnotationsLabel is the signal label reserved by EDF+ for TAL channels.
const AnnotationsLabel = "EDF Annotations"

// Header represents the EDF/EDF+ file header.
type Header struct {
	Version            Version       // Version of the EDF/EDF+ standard (usually "0")
	PatientID          string        // Identification of the patient
	RecordingID        string        // Identification of the recording session
	StartTime          time.Time     // Start date of the recording
	HeaderBytes        int           // Number of bytes in the header
	Reserved           string        // "EDF+C" or "EDF+D" for EDF+ files
	DataRecordDuration time.Duration // Duration of a single data record
	DataRecords        int           // Number of data records, -1 if unknown
	SignalCount        int           // Number of signals in each data record
	Signals            []Signal      // Details of each signal
}

// RecordSize returns the size in bytes of one data record.
func (h *Header) RecordSize() int {
	var n int
	for _, sig := range h.Signals {
		n += sig.SamplesPerRecord * 2
	}
	return n
}

// Signal represents the characteristics of each signal in the EDF/EDF+ file.
type Signal struct {
	Label             string  // Label of the signal (e.g., EEG Fpz-Cz)
	TransducerType    string  // Type of transducer used
	PhysicalDimension string  // Physical dimension (e.g., uV, mV)
	PhysicalMin       float64 // Minimum physical value
	PhysicalMax       float64 // Maximum physical value
	DigitalMin        int     // Minimum digital value
	DigitalMax        int     // Maximum digital value
	Prefiltering      string  // Pre-filtering information
	SamplesPerRecord  int     // Number of samples in each data record for this signal
	Reserved          string  // Reserved for future use
}

// IsAnnotations reports whether the signal carries EDF+ annotations rather
// than sampled data.
func (s Signal) IsAnnotations() bool {
	return strings.Contains(s.Label, AnnotationsLabel)
}

// Physical converts a digital sample into its physical value using the
// signal's calibration.
func (s Signal) Physical(digital int16) float64 {
	if s.DigitalMax == s.DigitalMin {
		return 0 // Avoid division by zero
	}
	return s.PhysicalMin + (float64(digital)-float64(s.DigitalMin))*(s.PhysicalMax-s.PhysicalMin)/float64(s.DigitalMax-s.DigitalMin)
}

// Digital converts a physical value into a digital sample, clamped to the
// signal's digital range.
func (s Signal) Digital(physical float64) int16 {
	if s.PhysicalMax == s.PhysicalMin {
		return 0 // Avoid division by zero
	}
	digital := (physical-s.PhysicalMin)*float64(s.DigitalMax-s.DigitalMin)/(s.PhysicalMax-s.PhysicalMin) + float64(s.DigitalMin)
	if digital < float64(s.DigitalMin) {
		digital = float64(s.DigitalMin)
	}
	if digital > float64(s.DigitalMax) {
		digital = float64(s.DigitalMax)
	}
	return int16(math.Round(digital))
}
