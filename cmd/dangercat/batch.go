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
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"runtime"
	"text/tabwriter"

	"github.com/OpenPSG/dangercat/internal/jobs"
	"github.com/OpenPSG/dangercat/internal/session"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var (
	batchSteps   []string
	batchJobs    int
	batchMetrics string
)

type batchResult struct {
	path     string
	channels int
	rate     float64
	markers  int
	samples  int
	err      error
}

var batchCmd = &cobra.Command{
	Use:   "batch FILE...",
	Short: "Run the conditioning pipeline over several recordings",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if batchJobs < 1 {
			return fmt.Errorf("--jobs must be at least 1, got %d", batchJobs)
		}
		if err := applyFlags(cmd.Flags(), cfg); err != nil {
			return err
		}

		reg := prometheus.NewRegistry()
		metrics := jobs.NewMetrics(reg)
		results := make([]batchResult, len(args))

		g, ctx := errgroup.WithContext(cmd.Context())
		g.SetLimit(batchJobs)
		for i, path := range args {
			g.Go(func() error {
				logger := slog.Default().With(slog.String("file", filepath.Base(path)))
				s := session.New(logger, metrics)

				res := batchResult{path: path}
				if err := condition(ctx, s, path, batchSteps, cfg); err != nil {
					logger.Error("Processing failed", slog.Any("error", err))
					res.err = err
				} else {
					rec := s.Recording()
					res.channels = rec.Info.ChannelCount
					res.rate = rec.Info.SamplingRate
					res.markers = rec.Markers.Count()
					res.samples = rec.Data.Len()
				}
				results[i] = res

				// A failed file does not stop the others, only cancellation does.
				return ctx.Err()
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "FILE\tCHANNELS\tRATE\tSAMPLES\tMARKERS\tSTATUS")

		var errs []error
		for _, res := range results {
			status := "ok"
			if res.err != nil {
				status = res.err.Error()
				errs = append(errs, fmt.Errorf("%s: %w", res.path, res.err))
			}
			fmt.Fprintf(tw, "%s\t%d\t%g\t%d\t%d\t%s\n", res.path, res.channels, res.rate, res.samples, res.markers, status)
		}
		if err := tw.Flush(); err != nil {
			return err
		}

		if batchMetrics != "" {
			if err := prometheus.WriteToTextfile(batchMetrics, reg); err != nil {
				return fmt.Errorf("error writing metrics: %w", err)
			}
		}

		return errors.Join(errs...)
	},
}

func init() {
	addPipelineFlags(batchCmd.Flags())
	batchCmd.Flags().StringSliceVar(&batchSteps, "steps", []string{stepFilter}, `pipeline steps in order: "filter", "artifact"`)
	batchCmd.Flags().IntVarP(&batchJobs, "jobs", "j", runtime.NumCPU(), "number of recordings processed at once")
	batchCmd.Flags().StringVar(&batchMetrics, "metrics", "", "write job metrics in Prometheus text format to this file")
}
