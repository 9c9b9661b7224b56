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
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/OpenPSG/dangercat/internal/config"
	"github.com/OpenPSG/dangercat/internal/jobs"
	"github.com/OpenPSG/dangercat/internal/recording"
	"github.com/OpenPSG/dangercat/internal/session"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

const (
	stepFilter   = "filter"
	stepArtifact = "artifact"
)

var (
	processSteps   []string
	processPreview string
	processMetrics string
)

var processCmd = &cobra.Command{
	Use:   "process FILE",
	Short: "Load a recording and run the conditioning pipeline",
	Long: `Load a recording in the background, then run each step in order as a
background job. Steps are "filter" (high-pass, low-pass and optional notch)
and "artifact" (zero or interpolate a window around every marker).`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := applyFlags(cmd.Flags(), cfg); err != nil {
			return err
		}
		ref, err := cfg.Reference()
		if err != nil {
			return err
		}

		reg := prometheus.NewRegistry()
		s := session.New(slog.Default(), jobs.NewMetrics(reg))

		if err := condition(cmd.Context(), s, args[0], processSteps, cfg); err != nil {
			return err
		}

		w := cmd.OutOrStdout()
		rec := s.Recording()
		printHeader(w, rec)
		fmt.Fprintln(w)
		printMarkers(w, rec)
		fmt.Fprintln(w)
		if err := printSummaries(w, s, ref); err != nil {
			return err
		}

		if processPreview != "" {
			if err := writePreview(processPreview, s, ref, cfg.Display.Decimation); err != nil {
				return err
			}
			slog.Info("Wrote preview", slog.String("path", processPreview), slog.Int("decimation", cfg.Display.Decimation))
		}

		if processMetrics != "" {
			if err := prometheus.WriteToTextfile(processMetrics, reg); err != nil {
				return fmt.Errorf("error writing metrics: %w", err)
			}
		}

		return nil
	},
}

func init() {
	addPipelineFlags(processCmd.Flags())
	processCmd.Flags().StringSliceVar(&processSteps, "steps", []string{stepFilter}, `pipeline steps in order: "filter", "artifact"`)
	processCmd.Flags().StringVar(&processPreview, "preview", "", "write the decimated display matrix to this CSV file")
	processCmd.Flags().StringVar(&processMetrics, "metrics", "", "write job metrics in Prometheus text format to this file")
}

// addPipelineFlags registers the flags that override the config file.
func addPipelineFlags(flags *pflag.FlagSet) {
	flags.Float64("highpass", 0, "high-pass cutoff in Hz (overrides config)")
	flags.Float64("lowpass", 0, "low-pass cutoff in Hz (overrides config)")
	flags.Bool("notch", false, "apply the mains notch filter (overrides config)")
	flags.Float64("notch-freq", 0, "notch frequency in Hz (overrides config)")
	flags.String("mode", "", `artifact removal mode "zero" or "interpolate" (overrides config)`)
	flags.Float64("tmin", 0, "artifact window before each marker in seconds (overrides config)")
	flags.Float64("tmax", 0, "artifact window after each marker in seconds (overrides config)")
	flags.String("reference", "", `display reference "original" or "average" (overrides config)`)
	flags.Int("decimate", 0, "keep every n-th sample in the preview (overrides config)")
}

// applyFlags copies explicitly set pipeline flags into cfg and revalidates.
func applyFlags(flags *pflag.FlagSet, cfg *config.Config) error {
	floats := map[string]*float64{
		"highpass":   &cfg.Filter.Highpass,
		"lowpass":    &cfg.Filter.Lowpass,
		"notch-freq": &cfg.Filter.NotchFreq,
		"tmin":       &cfg.Artifact.TMin,
		"tmax":       &cfg.Artifact.TMax,
	}
	for name, dst := range floats {
		if flags.Changed(name) {
			v, err := flags.GetFloat64(name)
			if err != nil {
				return err
			}
			*dst = v
		}
	}

	if flags.Changed("notch") {
		v, err := flags.GetBool("notch")
		if err != nil {
			return err
		}
		cfg.Filter.Notch = v
	}
	if flags.Changed("mode") {
		cfg.Artifact.Mode, _ = flags.GetString("mode")
	}
	if flags.Changed("reference") {
		cfg.Display.Reference, _ = flags.GetString("reference")
	}
	if flags.Changed("decimate") {
		cfg.Display.Decimation, _ = flags.GetInt("decimate")
	}

	return cfg.Validate()
}

// condition loads path into s and runs the steps one after another, each as
// a background job.
func condition(ctx context.Context, s *session.Session, path string, steps []string, cfg *config.Config) error {
	s.StartLoad(path, recording.Options{LoadSamples: true, Format: inputFormat})
	if err := drain(ctx, s, cfg); err != nil {
		return err
	}

	for _, step := range steps {
		var (
			id  uuid.UUID
			err error
		)
		switch step {
		case stepFilter:
			id, err = s.StartFilter(cfg.FilterParams())
		case stepArtifact:
			p, perr := cfg.ArtifactParams()
			if perr != nil {
				return perr
			}
			id, err = s.StartArtifactRemoval(p)
		default:
			return fmt.Errorf("unknown step %q", step)
		}
		if err != nil {
			return err
		}

		slog.Debug("Started step", slog.String("step", step), slog.String("id", id.String()))
		if err := drain(ctx, s, cfg); err != nil {
			return fmt.Errorf("%s: %w", step, err)
		}
	}

	return nil
}

// drain ticks the session until it is idle and returns the first job error.
func drain(ctx context.Context, s *session.Session, cfg *config.Config) error {
	events, err := s.Wait(ctx, cfg.Session.Tick)
	if err != nil {
		return err
	}
	for _, ev := range events {
		if ev.Err != nil {
			return ev.Err
		}
	}
	return nil
}

func printSummaries(w io.Writer, s *session.Session, ref recording.Reference) error {
	summaries, err := s.Summaries(ref)
	if err != nil {
		return err
	}

	names := s.Recording().Info.ChannelNames
	fmt.Fprintf(w, "reference: %s\n", ref)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CHANNEL\tMEAN\tSTDDEV\tMIN\tMAX")
	for i, sum := range summaries {
		fmt.Fprintf(tw, "%s\t%.3f\t%.3f\t%.3f\t%.3f\n", names[i], sum.Mean, sum.StdDev, sum.Min, sum.Max)
	}
	return tw.Flush()
}

// writePreview writes one row per kept sample: time in seconds then one
// column per channel.
func writePreview(path string, s *session.Session, ref recording.Reference, factor int) error {
	preview, err := s.Preview(ref, factor)
	if err != nil {
		return err
	}
	rec := s.Recording()

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(append([]string{"time"}, rec.Info.ChannelNames...)); err != nil {
		return err
	}

	if len(preview) > 0 {
		step := float64(max(factor, 1)) / rec.Info.SamplingRate
		record := make([]string, len(preview)+1)
		for i := range preview[0] {
			record[0] = strconv.FormatFloat(float64(i)*step, 'f', 4, 64)
			for ch := range preview {
				record[ch+1] = strconv.FormatFloat(preview[ch][i], 'f', 3, 64)
			}
			if err := w.Write(record); err != nil {
				return err
			}
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	return f.Close()
}
