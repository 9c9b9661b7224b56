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
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

// PreambleSize is the size of the fixed part of the header.
const PreambleSize = 256

// ErrSignalCount is returned when the header declares no signals.
var ErrSignalCount = errors.New("header declares no signals")

// Reader reads EDF/EDF+ files.
type Reader struct {
	r        io.ReadSeeker
	hdr      *Header
	preamble []byte
}

// signalColumns lists the per-signal header fields in file order. Each field
// is stored as ns consecutive values of the given width.
var signalColumns = []struct {
	width int
	set   func(sig *Signal, v string)
}{
	{16, func(sig *Signal, v string) { sig.Label = v }},
	{80, func(sig *Signal, v string) { sig.TransducerType = v }},
	{8, func(sig *Signal, v string) { sig.PhysicalDimension = v }},
	{8, func(sig *Signal, v string) { sig.PhysicalMin = parseFloat(v) }},
	{8, func(sig *Signal, v string) { sig.PhysicalMax = parseFloat(v) }},
	{8, func(sig *Signal, v string) { sig.DigitalMin = parseInt(v) }},
	{8, func(sig *Signal, v string) { sig.DigitalMax = parseInt(v) }},
	{80, func(sig *Signal, v string) { sig.Prefiltering = v }},
	{8, func(sig *Signal, v string) { sig.SamplesPerRecord = parseInt(v) }},
	{32, func(sig *Signal, v string) { sig.Reserved = v }},
}

// Open opens an EDF/EDF+ file for reading.
func Open(r io.ReadSeeker) (*Reader, error) {
	reader := bufio.NewReader(r)

	b := make([]byte, PreambleSize)
	if _, err := io.ReadFull(reader, b); err != nil {
		return nil, fmt.Errorf("error reading header: %w", err)
	}

	hdr, err := parsePreamble(b)
	if err != nil {
		return nil, err
	}
	if hdr.SignalCount <= 0 {
		return nil, ErrSignalCount
	}

	hdr.Signals = make([]Signal, hdr.SignalCount)
	for _, col := range signalColumns {
		field := make([]byte, col.width)
		for i := range hdr.Signals {
			if _, err := io.ReadFull(reader, field); err != nil {
				return nil, fmt.Errorf("error reading signal headers: %w", err)
			}
			col.set(&hdr.Signals[i], strings.TrimSpace(string(field)))
		}
	}

	for i, sig := range hdr.Signals {
		if sig.SamplesPerRecord <= 0 {
			return nil, fmt.Errorf("signal %d (%s): invalid samples per record %d", i, sig.Label, sig.SamplesPerRecord)
		}
	}

	return &Reader{
		r:        r,
		hdr:      hdr,
		preamble: b,
	}, nil
}

func parsePreamble(b []byte) (*Header, error) {
	field := func(from, to int) string {
		return strings.TrimSpace(string(b[from:to]))
	}

	// Parse fields based on EDF/EDF+ specifications
	hdr := &Header{}
	hdr.Version = Version(field(0, 8))
	hdr.PatientID = field(8, 88)
	hdr.RecordingID = field(88, 168)

	startDate, err := time.Parse("02.01.06", field(168, 176))
	if err != nil {
		return nil, fmt.Errorf("error parsing start date: %w", err)
	}
	startTime, err := time.Parse("15.04.05", field(176, 184))
	if err != nil {
		return nil, fmt.Errorf("error parsing start time: %w", err)
	}
	hdr.StartTime = time.Date(startDate.Year(), startDate.Month(), startDate.Day(),
		startTime.Hour(), startTime.Minute(), startTime.Second(), 0, time.UTC)

	if hdr.HeaderBytes, err = strconv.Atoi(field(184, 192)); err != nil {
		return nil, fmt.Errorf("error parsing header bytes: %w", err)
	}
	hdr.Reserved = field(192, 236)

	if hdr.DataRecords, err = strconv.Atoi(field(236, 244)); err != nil {
		return nil, fmt.Errorf("error parsing number of data records: %w", err)
	}

	hdr.DataRecordDuration, err = time.ParseDuration(field(244, 252) + "s")
	if err != nil {
		return nil, fmt.Errorf("error parsing data record duration: %w", err)
	}
	if hdr.DataRecordDuration <= 0 {
		return nil, fmt.Errorf("invalid data record duration %s", hdr.DataRecordDuration)
	}

	if hdr.SignalCount, err = strconv.Atoi(field(252, 256)); err != nil {
		return nil, fmt.Errorf("error parsing signal count: %w", err)
	}

	return hdr, nil
}

// Header returns the parsed file header.
func (er *Reader) Header() *Header {
	return er.hdr
}

// Preamble returns the raw fixed-size part of the header.
func (er *Reader) Preamble() []byte {
	return er.preamble
}

// ReadAll reads every data record and returns the digital samples of each
// signal concatenated in record order. When the header does not know the
// number of records (-1), records are read until the end of the file.
func (er *Reader) ReadAll() ([][]int16, error) {
	if _, err := er.r.Seek(int64(er.hdr.HeaderBytes), io.SeekStart); err != nil {
		return nil, fmt.Errorf("error seeking to data records: %w", err)
	}

	reader := bufio.NewReader(er.r)
	buf := make([]byte, er.hdr.RecordSize())

	signals := make([][]int16, len(er.hdr.Signals))
	if er.hdr.DataRecords > 0 {
		for i, sig := range er.hdr.Signals {
			signals[i] = make([]int16, 0, sig.SamplesPerRecord*er.hdr.DataRecords)
		}
	}

	for record := 0; er.hdr.DataRecords < 0 || record < er.hdr.DataRecords; record++ {
		if _, err := io.ReadFull(reader, buf); err != nil {
			if er.hdr.DataRecords < 0 && errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("error reading data record %d: %w", record, err)
		}

		offset := 0
		for i, sig := range er.hdr.Signals {
			for j := 0; j < sig.SamplesPerRecord; j++ {
				signals[i] = append(signals[i], int16(binary.LittleEndian.Uint16(buf[offset:])))
				offset += 2
			}
		}
	}

	return signals, nil
}

func parseFloat(s string) float64 {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0.0
	}
	return f
}

func parseInt(s string) int {
	i, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return i
}
