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
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	"github.com/OpenPSG/dangercat/internal/config"
	"github.com/OpenPSG/dangercat/internal/recording"
	"github.com/spf13/cobra"
)

var (
	cfg          *config.Config
	cfgFile      string
	verboseLevel int
	formatName   string
	inputFormat  recording.Format
)

var rootCmd = &cobra.Command{
	Use:   "dangercat",
	Short: "Inspect and condition EEG recordings",
	Long: `dangercat loads EDF/EDF+ and BrainVision recordings, decodes their
stimulus markers and runs the conditioning pipeline: average reference,
high-pass, low-pass and notch filtering, and TMS artifact removal.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cfgFile == "" {
			cfgFile = config.DefaultPath()
		}

		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		if inputFormat, err = recording.ParseFormat(formatName); err != nil {
			return err
		}

		setupLogging(verboseLevel, cfg)
		return nil
	},
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/dangercat.yaml)")
	rootCmd.PersistentFlags().StringVar(&formatName, "format", "auto", `input format "edf" or "brainvision", "auto" detects it from the extension`)
	rootCmd.PersistentFlags().CountVarP(&verboseLevel, "verbose", "v", "increase log verbosity (-v debug)")

	rootCmd.AddCommand(headerCmd)
	rootCmd.AddCommand(loadCmd)
	rootCmd.AddCommand(processCmd)
	rootCmd.AddCommand(batchCmd)
	rootCmd.AddCommand(synthCmd)
	rootCmd.AddCommand(configCmd)
}

// setupLogging configures slog from the config, -v forces debug.
func setupLogging(verbose int, cfg *config.Config) {
	level := cfg.LogLevel()
	if verbose > 0 {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if cfg.Logging.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}
