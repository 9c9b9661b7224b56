// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

// Package recording loads EDF and BrainVision files into the in-memory data
// model consumed by the signal pipeline.
package recording

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/OpenPSG/dangercat/brainvision"
	"github.com/OpenPSG/dangercat/edf"
	"github.com/OpenPSG/dangercat/internal/signal"
)

var (
	// ErrNotFound is returned when the recording path does not exist.
	ErrNotFound = errors.New("recording not found")
	// ErrIO is returned when the recording exists but cannot be read.
	ErrIO = errors.New("error reading recording")
	// ErrFormat is returned for malformed or inconsistent recordings.
	ErrFormat = errors.New("invalid recording format")
)

// Options controls how much of a recording is read.
type Options struct {
	// HeaderOnly reads and logs the header without touching sample data.
	HeaderOnly bool
	// LoadSamples reads the sample matrix and the markers.
	LoadSamples bool
	// Format overrides detection by extension when not FormatAuto.
	Format Format
	// Logger receives diagnostics. Defaults to slog.Default().
	Logger *slog.Logger
}

// Load reads the recording at path. Unless opts.Format says otherwise the
// format is chosen by extension: .edf for EDF/EDF+ and .vhdr for BrainVision.
func Load(path string, opts Options) (*Recording, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("%w: %w", ErrIO, err)
	}

	format := opts.Format
	if format == FormatAuto {
		detected, err := DetectFormat(path)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrFormat, err)
		}
		format = detected
	}

	logger = logger.With(slog.String("path", filepath.Base(path)), slog.String("format", format.String()))

	var (
		rec *Recording
		err error
	)
	switch format {
	case FormatBrainVision:
		rec, err = loadBrainVision(path, opts, logger)
	default:
		rec, err = loadEDF(path, opts, logger)
	}
	if err != nil {
		return nil, err
	}

	rec.Path = path
	rec.Format = format
	return rec, nil
}

func loadEDF(path string, opts Options, logger *slog.Logger) (*Recording, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIO, err)
	}
	defer f.Close()

	er, err := edf.Open(f)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFormat, err)
	}
	hdr := er.Header()

	if opts.HeaderOnly {
		preamble := er.Preamble()
		logger.Info("EDF header",
			slog.String("preamble", string(preamble)),
			slog.String("data_records", strings.TrimSpace(string(preamble[236:244]))),
			slog.String("record_duration", strings.TrimSpace(string(preamble[244:252]))),
			slog.String("channels", strings.TrimSpace(string(preamble[252:256]))))
	}

	meta := Metadata{
		DataRecords:    hdr.DataRecords,
		RecordDuration: hdr.DataRecordDuration,
	}
	for _, sig := range hdr.Signals {
		meta.Channels = append(meta.Channels, Channel{
			Label:             sig.Label,
			SamplesPerRecord:  sig.SamplesPerRecord,
			PhysicalDimension: sig.PhysicalDimension,
			PhysicalMin:       sig.PhysicalMin,
			PhysicalMax:       sig.PhysicalMax,
			DigitalMin:        sig.DigitalMin,
			DigitalMax:        sig.DigitalMax,
		})
	}

	// The last signal is reserved for annotations.
	signals := hdr.Signals[:len(hdr.Signals)-1]
	if len(signals) == 0 {
		return nil, fmt.Errorf("%w: no data channels besides the reserved annotation channel", ErrFormat)
	}

	info := Info{ChannelCount: len(signals)}
	blockMillis := meta.BlockDurationMillis()
	for _, sig := range signals {
		info.ChannelNames = append(info.ChannelNames, sig.Label)
		info.Rates = append(info.Rates, float64(sig.SamplesPerRecord)*1000/blockMillis)
	}
	info.SamplingRate = info.Rates[0]
	if info.MultiRate() {
		rates := slices.Compact(slices.Sorted(slices.Values(info.Rates)))
		logger.Warn("Channels have different sampling rates, using the first channel's rate",
			slog.Any("rates", rates), slog.Float64("sampling_rate", info.SamplingRate))
	}

	logger.Info("Loaded header",
		slog.Int("channels", info.ChannelCount),
		slog.Float64("sampling_rate", info.SamplingRate),
		slog.Duration("duration", meta.TotalDuration()))

	rec := &Recording{Metadata: meta, Info: info}
	if opts.HeaderOnly || !opts.LoadSamples {
		return rec, nil
	}

	digital, err := er.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFormat, err)
	}

	samples := make(signal.Matrix[float32], len(signals))
	for ch, sig := range signals {
		row := make([]float32, len(digital[ch]))
		for i, v := range digital[ch] {
			row[i] = float32(sig.Physical(v))
		}
		samples[ch] = row
	}
	if err := samples.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFormat, err)
	}

	rec.Data = NewSignals(samples, logger)

	if last := hdr.Signals[len(hdr.Signals)-1]; last.IsAnnotations() {
		rec.Markers = DecodeAnnotations(digital[len(digital)-1], info.SamplingRate)
		logger.Info("Decoded annotations", slog.Int("markers", rec.Markers.Count()))
	}

	return rec, nil
}

// brainVisionSkip lists marker types that do not mark events.
var brainVisionSkip = []string{"New Segment"}

func loadBrainVision(path string, opts Options, logger *slog.Logger) (*Recording, error) {
	b, err := brainvision.ReadHeader(path)
	if err != nil {
		if errors.Is(err, brainvision.ErrHeader) {
			return nil, fmt.Errorf("%w: %w", ErrFormat, err)
		}
		return nil, fmt.Errorf("%w: %w", ErrIO, err)
	}

	if opts.HeaderOnly {
		logger.Info("BrainVision header", slog.String("header", string(b)))
	}

	hdr, err := brainvision.ParseHeader(b)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFormat, err)
	}
	hdr.Dir = filepath.Dir(path)

	interval := time.Duration(hdr.SamplingInterval * float64(time.Microsecond))
	meta := Metadata{DataRecords: -1, RecordDuration: interval}
	info := Info{
		ChannelCount: hdr.NumberOfChannels,
		SamplingRate: hdr.SamplingRate(),
	}
	for _, ch := range hdr.Channels {
		meta.Channels = append(meta.Channels, Channel{
			Label:             ch.Name,
			SamplesPerRecord:  1,
			PhysicalDimension: ch.Unit,
			Resolution:        ch.Resolution,
		})
		info.ChannelNames = append(info.ChannelNames, ch.Name)
		info.Rates = append(info.Rates, info.SamplingRate)
	}

	// One sample point per block, so the block count is the sample count.
	if fi, err := os.Stat(filepath.Join(hdr.Dir, hdr.DataFile)); err == nil {
		meta.DataRecords = int(fi.Size()) / (2 * hdr.NumberOfChannels)
	}

	logger.Info("Loaded header",
		slog.Int("channels", info.ChannelCount),
		slog.Float64("sampling_rate", info.SamplingRate),
		slog.Duration("duration", meta.TotalDuration()))

	rec := &Recording{Metadata: meta, Info: info}
	if opts.HeaderOnly || !opts.LoadSamples {
		return rec, nil
	}

	data, err := hdr.LoadData()
	if err != nil {
		if errors.Is(err, brainvision.ErrHeader) {
			return nil, fmt.Errorf("%w: %w", ErrFormat, err)
		}
		return nil, fmt.Errorf("%w: %w", ErrIO, err)
	}

	samples := signal.Matrix[int16](data)
	if err := samples.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFormat, err)
	}
	rec.Metadata.DataRecords = samples.Len()
	rec.Data = NewSignals(samples, logger)

	markers, err := hdr.LoadMarkers()
	if err != nil {
		if errors.Is(err, brainvision.ErrHeader) {
			return nil, fmt.Errorf("%w: %w", ErrFormat, err)
		}
		return nil, fmt.Errorf("%w: %w", ErrIO, err)
	}
	for _, m := range markers {
		if slices.Contains(brainVisionSkip, m.Type) {
			continue
		}
		rec.Markers.Positions = append(rec.Markers.Positions, float64(m.Position))
		rec.Markers.Labels = append(rec.Markers.Labels, strings.TrimSpace(m.Description))
	}
	logger.Info("Loaded markers", slog.Int("markers", rec.Markers.Count()))

	return rec, nil
}
