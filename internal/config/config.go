// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

// Package config loads the dangercat configuration from defaults, an
// optional YAML file and DANGERCAT_ environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/OpenPSG/dangercat/internal/recording"
	"github.com/OpenPSG/dangercat/internal/signal"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of environment overrides, e.g. DANGERCAT_FILTER_LOWPASS.
const EnvPrefix = "DANGERCAT"

// ErrInvalid is returned when the resolved configuration fails validation.
var ErrInvalid = errors.New("invalid configuration")

// Config is the resolved configuration of the command line tool.
type Config struct {
	Filter   FilterConfig   `mapstructure:"filter" yaml:"filter"`
	Artifact ArtifactConfig `mapstructure:"artifact" yaml:"artifact"`
	Display  DisplayConfig  `mapstructure:"display" yaml:"display"`
	Session  SessionConfig  `mapstructure:"session" yaml:"session"`
	Logging  LoggingConfig  `mapstructure:"logging" yaml:"logging"`
}

// FilterConfig holds the cutoffs of the filter pipeline in Hz.
type FilterConfig struct {
	Highpass  float64 `mapstructure:"highpass" yaml:"highpass" validate:"gt=0"`
	Lowpass   float64 `mapstructure:"lowpass" yaml:"lowpass" validate:"gt=0,gtfield=Highpass"`
	Notch     bool    `mapstructure:"notch" yaml:"notch"`
	NotchFreq float64 `mapstructure:"notch_freq" yaml:"notch_freq" validate:"gt=0"`
	Order     int     `mapstructure:"order" yaml:"order" validate:"min=1,max=16"`
}

// ArtifactConfig is the window around each marker, in seconds, and how it
// is replaced.
type ArtifactConfig struct {
	TMin float64 `mapstructure:"tmin" yaml:"tmin" validate:"gte=0"`
	TMax float64 `mapstructure:"tmax" yaml:"tmax" validate:"gte=0"`
	Mode string  `mapstructure:"mode" yaml:"mode" validate:"oneof=zero interpolate"`
}

// DisplayConfig selects the matrix shown in summaries and previews.
type DisplayConfig struct {
	Reference  string `mapstructure:"reference" yaml:"reference" validate:"oneof=original average"`
	Decimation int    `mapstructure:"decimation" yaml:"decimation" validate:"min=1"`
}

// SessionConfig controls how often background jobs are polled.
type SessionConfig struct {
	Tick time.Duration `mapstructure:"tick" yaml:"tick" validate:"gt=0"`
}

// MarshalYAML writes the tick as a duration string rather than nanoseconds.
func (s SessionConfig) MarshalYAML() (any, error) {
	return map[string]string{"tick": s.Tick.String()}, nil
}

// LoggingConfig configures the slog handler.
type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" yaml:"format" validate:"oneof=text json"`
}

// DefaultPath returns the configuration file read when none is given.
func DefaultPath() string {
	return os.ExpandEnv("$HOME/.config/dangercat.yaml")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("filter.highpass", 1.0)
	v.SetDefault("filter.lowpass", 45.0)
	v.SetDefault("filter.notch", false)
	v.SetDefault("filter.notch_freq", signal.DefaultNotchFrequency)
	v.SetDefault("filter.order", signal.DefaultOrder)

	v.SetDefault("artifact.tmin", 0.002)
	v.SetDefault("artifact.tmax", 0.005)
	v.SetDefault("artifact.mode", "zero")

	v.SetDefault("display.reference", "original")
	v.SetDefault("display.decimation", 100)

	v.SetDefault("session.tick", 50*time.Millisecond)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}

// Load resolves the configuration. A missing file at configFile is not an
// error; the defaults and environment are used instead.
func Load(configFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("error reading config file %s: %w", configFile, err)
			}
			slog.Debug("Config file not found, using defaults", slog.String("path", configFile))
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()

	// Report fields by their configuration key.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("mapstructure"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	return v
}

// Validate checks every field against its constraints.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}

	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msgs = append(msgs, formatFieldError(fe))
	}
	return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(msgs, "; "))
}

func formatFieldError(fe validator.FieldError) string {
	// Drop the leading struct name: Config.filter.lowpass -> filter.lowpass.
	_, field, _ := strings.Cut(fe.Namespace(), ".")
	param := fe.Param()

	switch fe.Tag() {
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, strings.ReplaceAll(param, " ", ", "))
	case "gtfield":
		return fmt.Sprintf("%s must be greater than %s", field, strings.ToLower(param))
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, param)
	case "max":
		return fmt.Sprintf("%s must be at most %s", field, param)
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", field, param)
	case "gte":
		return fmt.Sprintf("%s must be greater than or equal to %s", field, param)
	default:
		return fmt.Sprintf("%s failed %s validation", field, fe.Tag())
	}
}

// FilterParams returns the filter pipeline parameters.
func (c *Config) FilterParams() signal.FilterParams {
	return signal.FilterParams{
		Highpass:  c.Filter.Highpass,
		Lowpass:   c.Filter.Lowpass,
		Notch:     c.Filter.Notch,
		NotchFreq: c.Filter.NotchFreq,
		Order:     c.Filter.Order,
	}
}

// ArtifactParams returns the artifact removal parameters.
func (c *Config) ArtifactParams() (signal.ArtifactParams, error) {
	mode, err := signal.ParseArtifactMode(c.Artifact.Mode)
	if err != nil {
		return signal.ArtifactParams{}, err
	}
	return signal.ArtifactParams{TMin: c.Artifact.TMin, TMax: c.Artifact.TMax, Mode: mode}, nil
}

// Reference returns the display reference.
func (c *Config) Reference() (recording.Reference, error) {
	return recording.ParseReference(c.Display.Reference)
}

// LogLevel returns the configured slog level.
func (c *Config) LogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Logging.Level)); err != nil {
		return slog.LevelInfo
	}
	return level
}
