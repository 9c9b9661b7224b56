// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package main

import (
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/rand/v2"
	"os"
	"time"

	"github.com/OpenPSG/dangercat/edf"
	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/stat/distuv"
)

// synthOptions describes a synthetic TMS-EEG recording.
type synthOptions struct {
	Channels int
	Seconds  int
	Rate     int
	Interval float64 // Seconds between stimuli
	Artifact float64 // Peak artifact amplitude in uV
	Mains    float64 // Mains frequency in Hz, 0 to disable
	Seed     uint64
}

var synthOpts = synthOptions{
	Channels: 8,
	Seconds:  10,
	Rate:     1000,
	Interval: 1,
	Artifact: 2000,
	Mains:    50,
	Seed:     1,
}

var montage = []string{"Fp1", "Fp2", "F3", "F4", "C3", "C4", "P3", "P4", "O1", "O2", "F7", "F8", "T3", "T4", "T5", "T6", "Fz", "Cz", "Pz"}

var synthCmd = &cobra.Command{
	Use:   "synth OUT.edf",
	Short: "Write a synthetic EDF+ recording with stimulus markers",
	Long: `Write an EDF+ recording of alpha activity, mains interference and noise,
with a decaying stimulation artifact and a "TMS" annotation at every
stimulus.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Create(args[0])
		if err != nil {
			return err
		}
		defer f.Close()

		stimuli, err := synthesize(f, synthOpts)
		if err != nil {
			return fmt.Errorf("error writing %s: %w", args[0], err)
		}
		if err := f.Close(); err != nil {
			return err
		}

		slog.Info("Wrote synthetic recording",
			slog.String("path", args[0]),
			slog.Int("channels", synthOpts.Channels),
			slog.Int("sampling_rate", synthOpts.Rate),
			slog.Int("stimuli", stimuli))
		return nil
	},
}

func init() {
	flags := synthCmd.Flags()
	flags.IntVar(&synthOpts.Channels, "channels", synthOpts.Channels, "number of EEG channels")
	flags.IntVar(&synthOpts.Seconds, "duration", synthOpts.Seconds, "recording length in seconds")
	flags.IntVar(&synthOpts.Rate, "rate", synthOpts.Rate, "sampling rate in Hz")
	flags.Float64Var(&synthOpts.Interval, "interval", synthOpts.Interval, "seconds between stimuli, 0 for none")
	flags.Float64Var(&synthOpts.Artifact, "artifact", synthOpts.Artifact, "peak stimulation artifact in uV")
	flags.Float64Var(&synthOpts.Mains, "mains", synthOpts.Mains, "mains interference frequency in Hz, 0 for none")
	flags.Uint64Var(&synthOpts.Seed, "seed", synthOpts.Seed, "noise seed")
}

// synthesize writes the recording in one second data records and returns
// the number of stimuli.
func synthesize(w io.WriteSeeker, opts synthOptions) (int, error) {
	if opts.Channels < 1 || opts.Seconds < 1 || opts.Rate < 1 {
		return 0, fmt.Errorf("channels, duration and rate must be positive")
	}

	var stimuli []float64
	if opts.Interval > 0 {
		for t := opts.Interval / 2; t < float64(opts.Seconds); t += opts.Interval {
			stimuli = append(stimuli, t)
		}
	}

	// Room for the timekeeping TAL plus every stimulus of one record.
	perRecord := 1
	if opts.Interval > 0 {
		perRecord += int(math.Ceil(1 / opts.Interval))
	}
	annotationSamples := max(30, (16+perRecord*24)/2)

	hdr := edf.Header{
		Version:            edf.Version0,
		PatientID:          "X X X Synthetic",
		RecordingID:        "Startdate X X X dangercat",
		StartTime:          time.Now(),
		DataRecordDuration: time.Second,
	}
	for ch := 0; ch < opts.Channels; ch++ {
		label := fmt.Sprintf("EEG %d", ch+1)
		if ch < len(montage) {
			label = "EEG " + montage[ch]
		}
		hdr.Signals = append(hdr.Signals, edf.Signal{
			Label:             label,
			TransducerType:    "AgAgCl electrode",
			PhysicalDimension: "uV",
			PhysicalMin:       -3276.8,
			PhysicalMax:       3276.7,
			DigitalMin:        -32768,
			DigitalMax:        32767,
			Prefiltering:      "None",
			SamplesPerRecord:  opts.Rate,
		})
	}
	hdr.Signals = append(hdr.Signals, edf.Signal{
		Label:            edf.AnnotationsLabel,
		PhysicalMin:      -1,
		PhysicalMax:      1,
		DigitalMin:       -32768,
		DigitalMax:       32767,
		SamplesPerRecord: annotationSamples,
	})

	ew, err := edf.Create(w, hdr)
	if err != nil {
		return 0, err
	}

	noise := distuv.Normal{Mu: 0, Sigma: 3, Src: rand.NewPCG(opts.Seed, opts.Seed^0x9e3779b97f4a7c15)}
	rate := float64(opts.Rate)
	next := 0

	for r := 0; r < opts.Seconds; r++ {
		var tals []edf.TAL
		for next < len(stimuli) && stimuli[next] < float64(r+1) {
			tals = append(tals, edf.TAL{Onset: stimuli[next], Texts: []string{"TMS"}})
			next++
		}

		signals := make([][]float64, opts.Channels)
		for ch := range signals {
			phase := float64(ch) * math.Pi / 8
			row := make([]float64, opts.Rate)
			for i := range row {
				t := float64(r) + float64(i)/rate
				v := 20*math.Sin(2*math.Pi*10*t+phase) + noise.Rand()
				if opts.Mains > 0 {
					v += 5 * math.Sin(2*math.Pi*opts.Mains*t)
				}
				for _, tal := range tals {
					if dt := t - tal.Onset; dt >= 0 && dt < 0.005 {
						v += opts.Artifact * math.Exp(-dt/0.001)
					}
				}
				row[i] = v
			}
			signals[ch] = row
		}

		if err := ew.WriteRecord(signals, tals...); err != nil {
			return 0, err
		}
	}

	if err := ew.Close(); err != nil {
		return 0, err
	}
	return len(stimuli), nil
}
