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
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// maxRecordBytes is the data record size recommended by the EDF standard.
const maxRecordBytes = 61440

// Writer writes EDF/EDF+ files.
type Writer struct {
	w           io.WriteSeeker
	hdr         *Header
	dataRecords int // Number of data records written so far.
	annotations int // Index of the annotation signal, -1 if none.
}

// Create creates a new EDF writer that writes to the given writer. If one of
// the signals is labelled AnnotationsLabel the file is written as EDF+C and
// every record carries a timekeeping TAL.
func Create(w io.WriteSeeker, hdr Header) (*Writer, error) {
	hdr.DataRecords = -1 // Unknown number of data records (at this time).
	hdr.SignalCount = len(hdr.Signals)
	if hdr.SignalCount == 0 {
		return nil, ErrSignalCount
	}
	if hdr.DataRecordDuration <= 0 {
		return nil, fmt.Errorf("invalid data record duration %s", hdr.DataRecordDuration)
	}

	ew := &Writer{w: w, hdr: &hdr, annotations: -1}
	for i, sig := range hdr.Signals {
		if sig.IsAnnotations() {
			ew.annotations = i
			ew.hdr.Reserved = "EDF+C"
			break
		}
	}

	// Write the initial header
	if err := ew.writeHeader(); err != nil {
		return nil, fmt.Errorf("error writing header: %w", err)
	}

	return ew, nil
}

// Close finalizes the EDF file by updating the header with the total number of data records.
func (ew *Writer) Close() error {
	ew.hdr.DataRecords = ew.dataRecords
	if err := ew.writeHeader(); err != nil {
		return fmt.Errorf("error writing header: %w", err)
	}

	return nil
}

// WriteRecord writes a single data record. The signals slice holds the
// physical samples of every signal except the annotation signal, in header
// order. The annotations are stored after the record's timekeeping TAL.
func (ew *Writer) WriteRecord(signals [][]float64, annotations ...TAL) error {
	expected := ew.hdr.SignalCount
	if ew.annotations >= 0 {
		expected--
	} else if len(annotations) > 0 {
		return fmt.Errorf("header has no %q signal", AnnotationsLabel)
	}
	if len(signals) != expected {
		return fmt.Errorf("expected %d signals, got %d", expected, len(signals))
	}

	if size := ew.hdr.RecordSize(); size > maxRecordBytes {
		return fmt.Errorf("data record too large: %d bytes, max is %d bytes", size, maxRecordBytes)
	}

	if _, err := ew.w.Seek(0, io.SeekEnd); err != nil {
		return err
	}

	writer := bufio.NewWriter(ew.w)

	next := 0
	for i, sig := range ew.hdr.Signals {
		var samples []int16
		if i == ew.annotations {
			var err error
			if samples, err = ew.annotationSamples(sig, annotations); err != nil {
				return err
			}
		} else {
			physical := signals[next]
			next++
			if len(physical) != sig.SamplesPerRecord {
				return fmt.Errorf("signal %d (%s): expected %d samples, got %d", i, sig.Label, sig.SamplesPerRecord, len(physical))
			}
			samples = make([]int16, len(physical))
			for j, v := range physical {
				samples[j] = sig.Digital(v)
			}
		}

		if err := binary.Write(writer, binary.LittleEndian, samples); err != nil {
			return err
		}
	}

	// Ensure all data is flushed to the underlying writer
	if err := writer.Flush(); err != nil {
		return err
	}

	ew.dataRecords++
	return nil
}

func (ew *Writer) annotationSamples(sig Signal, annotations []TAL) ([]int16, error) {
	start := ew.hdr.DataRecordDuration.Seconds() * float64(ew.dataRecords)

	var sb strings.Builder
	sb.WriteString(TAL{Onset: start}.String())
	for _, tal := range annotations {
		sb.WriteString(tal.String())
	}

	samples, err := AnnotationSamples([]byte(sb.String()), sig.SamplesPerRecord)
	if err != nil {
		return nil, fmt.Errorf("record %d: %w", ew.dataRecords, err)
	}
	return samples, nil
}

// writeHeader (re)writes the EDF header at the start of the file.
func (ew *Writer) writeHeader() error {
	// Rewind to the beginning of the file.
	if _, err := ew.w.Seek(0, io.SeekStart); err != nil {
		return err
	}

	ew.hdr.HeaderBytes = PreambleSize + (ew.hdr.SignalCount * 256)

	writer := bufio.NewWriter(ew.w)
	field := func(width int, v string) {
		if len(v) > width {
			v = v[:width]
		}
		_, _ = fmt.Fprintf(writer, "%-*s", width, v)
	}

	field(8, string(ew.hdr.Version))
	field(80, ew.hdr.PatientID)
	field(80, ew.hdr.RecordingID)
	field(8, ew.hdr.StartTime.Format("02.01.06"))
	field(8, ew.hdr.StartTime.Format("15.04.05"))
	field(8, strconv.Itoa(ew.hdr.HeaderBytes))
	field(44, ew.hdr.Reserved)
	field(8, strconv.Itoa(ew.hdr.DataRecords))
	field(8, strconv.FormatFloat(ew.hdr.DataRecordDuration.Seconds(), 'f', -1, 64))
	field(4, strconv.Itoa(ew.hdr.SignalCount))

	columns := []struct {
		width int
		value func(sig Signal) string
	}{
		{16, func(sig Signal) string { return sig.Label }},
		{80, func(sig Signal) string { return sig.TransducerType }},
		{8, func(sig Signal) string { return sig.PhysicalDimension }},
		{8, func(sig Signal) string { return formatPhysicalValue(sig.PhysicalMin) }},
		{8, func(sig Signal) string { return formatPhysicalValue(sig.PhysicalMax) }},
		{8, func(sig Signal) string { return strconv.Itoa(sig.DigitalMin) }},
		{8, func(sig Signal) string { return strconv.Itoa(sig.DigitalMax) }},
		{80, func(sig Signal) string { return sig.Prefiltering }},
		{8, func(sig Signal) string { return strconv.Itoa(sig.SamplesPerRecord) }},
		{32, func(sig Signal) string { return sig.Reserved }},
	}
	for _, col := range columns {
		for _, sig := range ew.hdr.Signals {
			field(col.width, col.value(sig))
		}
	}

	// Ensure all data is flushed to the underlying writer
	return writer.Flush()
}

func formatPhysicalValue(val float64) string {
	// Try with 2 decimal places
	s := fmt.Sprintf("%.2f", val)
	if len(s) > 8 {
		// Fall back to no decimal
		s = fmt.Sprintf("%.0f", val)
	}
	return s
}
