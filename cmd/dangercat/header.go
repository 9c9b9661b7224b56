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
	"strings"
	"text/tabwriter"

	"github.com/OpenPSG/dangercat/internal/recording"
	"github.com/spf13/cobra"
)

var headerCmd = &cobra.Command{
	Use:   "header FILE",
	Short: "Print the header of a recording without reading samples",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rec, err := recording.Load(args[0], recording.Options{HeaderOnly: true, Format: inputFormat})
		if err != nil {
			return err
		}

		printHeader(cmd.OutOrStdout(), rec)
		return nil
	},
}

func printHeader(w io.Writer, rec *recording.Recording) {
	fmt.Fprintf(w, "file: %s\n", rec.Path)
	fmt.Fprintf(w, "format: %s\n", rec.Format)
	fmt.Fprintf(w, "data_records: %d\n", rec.Metadata.DataRecords)
	fmt.Fprintf(w, "record_duration_ms: %g\n", rec.Metadata.BlockDurationMillis())
	fmt.Fprintf(w, "duration: %s\n", rec.Metadata.TotalDuration())
	fmt.Fprintf(w, "sampling_rate: %g Hz\n", rec.Info.SamplingRate)
	if rec.Info.MultiRate() {
		fmt.Fprintf(w, "warning: channel rates differ, using %g Hz\n", rec.Info.SamplingRate)
	}
	fmt.Fprintf(w, "channels: %d\n\n", rec.Info.ChannelCount)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tLABEL\tUNIT\tSAMPLES/RECORD\tPHYSICAL RANGE")
	for i, ch := range rec.Metadata.Channels {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%g..%g\n", i+1, strings.TrimSpace(ch.Label), ch.PhysicalDimension,
			ch.SamplesPerRecord, ch.PhysicalMin, ch.PhysicalMax)
	}
	_ = tw.Flush()
}
