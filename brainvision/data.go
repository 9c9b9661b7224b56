// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package brainvision

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/ini.v1"
)

// LoadData reads the binary data file and returns one row of digital
// samples per channel.
func (h *Header) LoadData() ([][]int16, error) {
	b, err := os.ReadFile(filepath.Join(h.Dir, h.DataFile))
	if err != nil {
		return nil, err
	}

	frame := 2 * h.NumberOfChannels
	if len(b)%frame != 0 {
		return nil, fmt.Errorf("%w: data file size %d is not a multiple of %d channels", ErrHeader, len(b), h.NumberOfChannels)
	}
	samples := len(b) / frame

	data := make([][]int16, h.NumberOfChannels)
	for ch := range data {
		data[ch] = make([]int16, samples)
	}

	for i := 0; i < len(b)/2; i++ {
		v := int16(binary.LittleEndian.Uint16(b[2*i:]))
		if h.Orientation == Vectorized {
			data[i/samples][i%samples] = v
		} else {
			data[i%h.NumberOfChannels][i/h.NumberOfChannels] = v
		}
	}

	return data, nil
}

// Marker is one entry of a marker file.
type Marker struct {
	Type        string // Marker type (e.g., Stimulus, New Segment)
	Description string // Marker description (e.g., S  1)
	Position    int    // Zero-based sample position
	Length      int    // Length in samples
	Channel     int    // Channel number, 0 for all channels
}

// LoadMarkers reads the marker file named by the header. A header without a
// marker file yields no markers.
func (h *Header) LoadMarkers() ([]Marker, error) {
	if h.MarkerFile == "" {
		return nil, nil
	}

	b, err := os.ReadFile(filepath.Join(h.Dir, h.MarkerFile))
	if err != nil {
		return nil, err
	}
	return ParseMarkers(b)
}

// ParseMarkers parses the contents of a .vmrk file. Entries have the form
// Mk<n>=<type>,<description>,<position>,<length>,<channel>[,<date>] where
// position is one-based.
func ParseMarkers(b []byte) ([]Marker, error) {
	f, err := ini.LoadSources(loadOptions, b)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrHeader, err)
	}

	var markers []Marker
	for _, key := range f.Section("Marker Infos").Keys() {
		if !strings.HasPrefix(key.Name(), "Mk") {
			continue
		}

		fields := strings.Split(key.Value(), ",")
		if len(fields) < 3 {
			return nil, fmt.Errorf("%w: marker %s: %q", ErrHeader, key.Name(), key.Value())
		}

		pos, err := strconv.Atoi(strings.TrimSpace(fields[2]))
		if err != nil || pos < 1 {
			return nil, fmt.Errorf("%w: marker %s: invalid position %q", ErrHeader, key.Name(), fields[2])
		}

		m := Marker{
			Type:        unescape(strings.TrimSpace(fields[0])),
			Description: unescape(fields[1]),
			Position:    pos - 1,
			Length:      1,
		}
		if len(fields) > 3 {
			if n, err := strconv.Atoi(strings.TrimSpace(fields[3])); err == nil {
				m.Length = n
			}
		}
		if len(fields) > 4 {
			if n, err := strconv.Atoi(strings.TrimSpace(fields[4])); err == nil {
				m.Channel = n
			}
		}
		markers = append(markers, m)
	}

	return markers, nil
}
