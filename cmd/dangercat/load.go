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
	"text/tabwriter"

	"github.com/OpenPSG/dangercat/internal/recording"
	"github.com/spf13/cobra"
)

var loadCmd = &cobra.Command{
	Use:   "load FILE",
	Short: "Load a recording and list its markers",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rec, err := recording.Load(args[0], recording.Options{LoadSamples: true, Format: inputFormat})
		if err != nil {
			return err
		}

		w := cmd.OutOrStdout()
		printHeader(w, rec)
		fmt.Fprintf(w, "\nsamples: %d per channel\n", rec.Data.Len())
		printMarkers(w, rec)
		return nil
	},
}

func printMarkers(w io.Writer, rec *recording.Recording) {
	fmt.Fprintf(w, "markers: %d\n", rec.Markers.Count())
	if rec.Markers.Count() == 0 {
		return
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tSAMPLE\tTIME (s)\tLABEL")
	for i, pos := range rec.Markers.Positions {
		label := ""
		if i < len(rec.Markers.Labels) {
			label = rec.Markers.Labels[i]
		}
		fmt.Fprintf(tw, "%d\t%.1f\t%.3f\t%s\n", i+1, pos, pos/rec.Info.SamplingRate, label)
	}
	_ = tw.Flush()
}
