// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package edf_test

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/OpenPSG/dangercat/edf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func preamble(date string, records, signals int) []byte {
	return []byte(fmt.Sprintf("%-8s%-80s%-80s%-8s%-8s%-8d%-44s%-8d%-8s%-4d",
		"0", "X X X X", "Startdate X X X X", date, "10.00.00", 256+signals*256, "", records, "1", signals))
}

func TestReader(t *testing.T) {
	f, err := os.OpenFile(filepath.Join(t.TempDir(), "reader.edf"), os.O_RDWR|os.O_CREATE, 0o644)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, f.Close())
	})

	ew, err := edf.Create(f, edf.Header{
		Version:            edf.Version0,
		PatientID:          "Patient X",
		StartTime:          time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
		DataRecordDuration: 500 * time.Millisecond,
		Signals:            []edf.Signal{eegSignal("EEG O1", 4), eegSignal("EEG O2", 4)},
	})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		base := float64(i * 4)
		require.NoError(t, ew.WriteRecord([][]float64{
			{base, base + 1, base + 2, base + 3},
			{-base, -base - 1, -base - 2, -base - 3},
		}))
	}
	require.NoError(t, ew.Close())

	_, err = f.Seek(0, io.SeekStart)
	require.NoError(t, err)

	er, err := edf.Open(f)
	require.NoError(t, err)

	hdr := er.Header()
	assert.Equal(t, "Patient X", hdr.PatientID)
	assert.Equal(t, time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC), hdr.StartTime)
	assert.Equal(t, 500*time.Millisecond, hdr.DataRecordDuration)
	assert.Equal(t, 3, hdr.DataRecords)
	assert.Equal(t, 2, hdr.SignalCount)
	assert.Equal(t, 16, hdr.RecordSize())
	assert.Len(t, er.Preamble(), edf.PreambleSize)

	signals, err := er.ReadAll()
	require.NoError(t, err)
	require.Len(t, signals, 2)
	require.Len(t, signals[0], 12)

	for i := range signals[0] {
		assert.InDelta(t, float64(i), hdr.Signals[0].Physical(signals[0][i]), 0.1)
		assert.InDelta(t, -float64(i), hdr.Signals[1].Physical(signals[1][i]), 0.1)
	}
}

func TestReaderUnknownRecordCount(t *testing.T) {
	f, err := os.OpenFile(filepath.Join(t.TempDir(), "open.edf"), os.O_RDWR|os.O_CREATE, 0o644)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, f.Close())
	})

	ew, err := edf.Create(f, edf.Header{
		Version:            edf.Version0,
		StartTime:          time.Now(),
		DataRecordDuration: time.Second,
		Signals:            []edf.Signal{eegSignal("EEG Pz", 8)},
	})
	require.NoError(t, err)

	// Not closed, the header still declares -1 data records.
	for i := 0; i < 5; i++ {
		require.NoError(t, ew.WriteRecord([][]float64{make([]float64, 8)}))
	}

	_, err = f.Seek(0, io.SeekStart)
	require.NoError(t, err)

	er, err := edf.Open(f)
	require.NoError(t, err)
	require.Equal(t, -1, er.Header().DataRecords)

	signals, err := er.ReadAll()
	require.NoError(t, err)
	require.Len(t, signals[0], 40)
}

func TestReaderZeroSignals(t *testing.T) {
	_, err := edf.Open(bytes.NewReader(preamble("01.01.24", 1, 0)))
	require.ErrorIs(t, err, edf.ErrSignalCount)
}

func TestReaderMalformedHeader(t *testing.T) {
	_, err := edf.Open(bytes.NewReader(preamble("xx.yy.zz", 1, 1)))
	require.ErrorContains(t, err, "start date")

	_, err = edf.Open(bytes.NewReader([]byte("0       short")))
	require.Error(t, err)

	// Signal headers are truncated.
	_, err = edf.Open(bytes.NewReader(preamble("01.01.24", 1, 2)))
	require.ErrorContains(t, err, "signal headers")
}

func TestReaderTruncatedData(t *testing.T) {
	f, err := os.OpenFile(filepath.Join(t.TempDir(), "short.edf"), os.O_RDWR|os.O_CREATE, 0o644)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, f.Close())
	})

	ew, err := edf.Create(f, edf.Header{
		Version:            edf.Version0,
		StartTime:          time.Now(),
		DataRecordDuration: time.Second,
		Signals:            []edf.Signal{eegSignal("EEG Fz", 8)},
	})
	require.NoError(t, err)
	require.NoError(t, ew.WriteRecord([][]float64{make([]float64, 8)}))
	require.NoError(t, ew.Close())

	// Claim more records than the file holds.
	_, err = f.Seek(236, io.SeekStart)
	require.NoError(t, err)
	_, err = f.WriteString(fmt.Sprintf("%-8d", 4))
	require.NoError(t, err)

	_, err = f.Seek(0, io.SeekStart)
	require.NoError(t, err)

	er, err := edf.Open(f)
	require.NoError(t, err)

	_, err = er.ReadAll()
	require.ErrorContains(t, err, "data record 1")
}
