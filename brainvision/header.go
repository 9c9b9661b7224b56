// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

// Package brainvision reads BrainVision Core Data Format recordings: a text
// header (.vhdr), a binary data file (.eeg) and an optional marker file
// (.vmrk).
package brainvision

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/ini.v1"
)

var (
	// ErrHeader is returned for malformed header or marker files.
	ErrHeader = errors.New("malformed brainvision header")
	// ErrUnsupported is returned for valid but unsupported data layouts.
	ErrUnsupported = errors.New("unsupported brainvision format")
)

const identification = "Data Exchange Header File"

// Orientation is the sample layout of the binary data file.
type Orientation string

const (
	// Multiplexed stores all channels of one sample point together.
	Multiplexed Orientation = "MULTIPLEXED"
	// Vectorized stores all samples of one channel together.
	Vectorized Orientation = "VECTORIZED"
)

// Channel describes one recorded channel.
type Channel struct {
	Name       string  // Channel name (e.g., Fp1)
	Reference  string  // Reference channel name, empty for the common reference
	Resolution float64 // Physical value of one digital step
	Unit       string  // Physical unit (e.g., µV)
}

// Header represents a parsed .vhdr file.
type Header struct {
	Dir              string // Directory the data and marker files are resolved against
	DataFile         string
	MarkerFile       string
	DataFormat       string
	Orientation      Orientation
	BinaryFormat     string
	NumberOfChannels int
	SamplingInterval float64 // Microseconds between samples
	Channels         []Channel
}

// SamplingRate returns the sampling rate in Hz.
func (h *Header) SamplingRate() float64 {
	return 1e6 / h.SamplingInterval
}

var loadOptions = ini.LoadOptions{
	SkipUnrecognizableLines: true,
	IgnoreInlineComment:     true,
	IgnoreContinuation:      true,
}

// ReadHeader reads the raw header file and checks its identification line.
func ReadHeader(path string) ([]byte, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	line, _, _ := bufio.NewReader(bytes.NewReader(b)).ReadLine()
	if !strings.Contains(string(line), identification) {
		return nil, fmt.Errorf("%w: missing identification line", ErrHeader)
	}
	return b, nil
}

// ParseHeader parses the contents of a .vhdr file.
func ParseHeader(b []byte) (*Header, error) {
	f, err := ini.LoadSources(loadOptions, b)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrHeader, err)
	}

	common, err := f.GetSection("Common Infos")
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrHeader, err)
	}

	hdr := &Header{
		DataFile:     common.Key("DataFile").String(),
		MarkerFile:   common.Key("MarkerFile").String(),
		DataFormat:   strings.ToUpper(common.Key("DataFormat").MustString("BINARY")),
		Orientation:  Orientation(strings.ToUpper(common.Key("DataOrientation").MustString(string(Multiplexed)))),
		BinaryFormat: strings.ToUpper(f.Section("Binary Infos").Key("BinaryFormat").MustString("INT_16")),
	}

	if hdr.DataFile == "" {
		return nil, fmt.Errorf("%w: DataFile is not set", ErrHeader)
	}
	if hdr.NumberOfChannels, err = common.Key("NumberOfChannels").Int(); err != nil || hdr.NumberOfChannels <= 0 {
		return nil, fmt.Errorf("%w: invalid NumberOfChannels %q", ErrHeader, common.Key("NumberOfChannels").String())
	}
	if hdr.SamplingInterval, err = common.Key("SamplingInterval").Float64(); err != nil || hdr.SamplingInterval <= 0 {
		return nil, fmt.Errorf("%w: invalid SamplingInterval %q", ErrHeader, common.Key("SamplingInterval").String())
	}

	if hdr.DataFormat != "BINARY" || hdr.BinaryFormat != "INT_16" {
		return nil, fmt.Errorf("%w: %s %s", ErrUnsupported, hdr.DataFormat, hdr.BinaryFormat)
	}
	if hdr.Orientation != Multiplexed && hdr.Orientation != Vectorized {
		return nil, fmt.Errorf("%w: orientation %s", ErrUnsupported, hdr.Orientation)
	}

	channels := f.Section("Channel Infos")
	for i := 1; i <= hdr.NumberOfChannels; i++ {
		key := "Ch" + strconv.Itoa(i)
		if !channels.HasKey(key) {
			return nil, fmt.Errorf("%w: channel %s is not described", ErrHeader, key)
		}
		hdr.Channels = append(hdr.Channels, parseChannel(channels.Key(key).String()))
	}

	return hdr, nil
}

// parseChannel parses "<name>,<reference>,<resolution>,<unit>".
func parseChannel(v string) Channel {
	fields := strings.Split(v, ",")
	for i := range fields {
		fields[i] = unescape(strings.TrimSpace(fields[i]))
	}

	ch := Channel{Name: fields[0], Resolution: 1}
	if len(fields) > 1 {
		ch.Reference = fields[1]
	}
	if len(fields) > 2 && fields[2] != "" {
		if res, err := strconv.ParseFloat(fields[2], 64); err == nil {
			ch.Resolution = res
		}
	}
	if len(fields) > 3 {
		ch.Unit = fields[3]
	}
	return ch
}

// unescape restores commas, which the format stores as \1.
func unescape(s string) string {
	return strings.ReplaceAll(s, `\1`, ",")
}

// Open reads and parses a header file. Data and marker files are resolved
// relative to the header's directory.
func Open(path string) (*Header, error) {
	b, err := ReadHeader(path)
	if err != nil {
		return nil, err
	}

	hdr, err := ParseHeader(b)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	hdr.Dir = filepath.Dir(path)

	return hdr, nil
}
