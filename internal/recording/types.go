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
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/OpenPSG/dangercat/internal/signal"
)

// Format identifies the container a recording was read from.
type Format int

const (
	// FormatAuto picks the format from the file extension.
	FormatAuto Format = iota
	FormatEDF
	FormatBrainVision
)

func (f Format) String() string {
	switch f {
	case FormatAuto:
		return "auto"
	case FormatEDF:
		return "edf"
	case FormatBrainVision:
		return "brainvision"
	default:
		return fmt.Sprintf("Format(%d)", int(f))
	}
}

// ParseFormat parses a format name as accepted on the command line.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return FormatAuto, nil
	case "edf", "edf+":
		return FormatEDF, nil
	case "brainvision", "bv", "vhdr":
		return FormatBrainVision, nil
	}
	return 0, fmt.Errorf("unknown format %q", s)
}

// DetectFormat guesses the format from the file extension.
func DetectFormat(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".edf":
		return FormatEDF, nil
	case ".vhdr":
		return FormatBrainVision, nil
	}
	return 0, fmt.Errorf("cannot detect format of %s", path)
}

// Reference selects the matrix used for display.
type Reference int

const (
	Original Reference = iota
	AverageReference
)

func (r Reference) String() string {
	if r == AverageReference {
		return "average"
	}
	return "original"
}

// ParseReference parses "original" or "average".
func ParseReference(s string) (Reference, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "original", "":
		return Original, nil
	case "average", "avg":
		return AverageReference, nil
	}
	return 0, fmt.Errorf("unknown reference %q", s)
}

// Channel describes one channel as declared in the file header.
type Channel struct {
	Label             string
	SamplesPerRecord  int
	PhysicalDimension string
	PhysicalMin       float64
	PhysicalMax       float64
	DigitalMin        int
	DigitalMax        int
	Resolution        float64 // BrainVision only
}

// Metadata is the header level description of a recording.
type Metadata struct {
	DataRecords    int           // Number of data blocks, -1 if unknown
	RecordDuration time.Duration // Duration of one data block
	Channels       []Channel
}

// BlockDurationMillis returns the duration of one data block in milliseconds.
func (m Metadata) BlockDurationMillis() float64 {
	return float64(m.RecordDuration) / float64(time.Millisecond)
}

// TotalDuration returns the number of blocks times the block duration.
func (m Metadata) TotalDuration() time.Duration {
	if m.DataRecords < 0 {
		return 0
	}
	return time.Duration(m.DataRecords) * m.RecordDuration
}

// Info describes the signal matrix: its rows are parallel to ChannelNames.
type Info struct {
	ChannelCount int
	ChannelNames []string
	SamplingRate float64   // Samples per second used for all channels
	Rates        []float64 // Per-channel rates as declared by the header
}

// MultiRate reports whether the header declared differing channel rates.
func (i Info) MultiRate() bool {
	for _, r := range i.Rates {
		if r != i.SamplingRate {
			return true
		}
	}
	return false
}

// Markers are event positions in fractional samples from the start of the
// recording, in file order.
type Markers struct {
	Positions []float64
	Labels    []string
}

// Count returns the number of markers.
func (m Markers) Count() int {
	return len(m.Positions)
}

// Data is the typed sample data of a loaded recording: *Signals[float32]
// for EDF and *Signals[int16] for BrainVision.
type Data interface {
	Channels() int
	Len() int
	data()
}

// Signals holds a sample matrix and its average-referenced view. Referenced
// is nil when it has not been computed.
type Signals[T signal.Sample] struct {
	Samples    signal.Matrix[T]
	Referenced signal.Matrix[T]
}

// NewSignals wraps samples and computes the referenced view. A referencing
// failure is logged and leaves the view empty.
func NewSignals[T signal.Sample](samples signal.Matrix[T], logger *slog.Logger) *Signals[T] {
	s := &Signals[T]{Samples: samples}

	ref, err := signal.Reference(samples)
	if err != nil {
		logger.Warn("Error computing average reference", "error", err)
		return s
	}
	s.Referenced = ref
	return s
}

func (s *Signals[T]) Channels() int { return s.Samples.Channels() }
func (s *Signals[T]) Len() int      { return s.Samples.Len() }
func (s *Signals[T]) data()         {}

// Display returns the matrix to show for the given reference. The original
// samples are the fallback when the referenced view is missing.
func (s *Signals[T]) Display(ref Reference) signal.Matrix[T] {
	if ref == AverageReference && s.Referenced != nil {
		return s.Referenced
	}
	return s.Samples
}

// Recording is a loaded file. Data is nil when only the header was read.
type Recording struct {
	Path     string
	Format   Format
	Metadata Metadata
	Info     Info
	Markers  Markers
	Data     Data
}
