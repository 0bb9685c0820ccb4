/*
 * Copyright 2026 HomeGrid Labs.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package logger provides JSON structured logging using zerolog.
package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Config controls log level and destination.
type Config struct {
	Level      string `json:"level,omitempty"`
	Debug      bool   `json:"debug,omitempty"`
	Output     string `json:"output,omitempty"`
	TimeFormat string `json:"time_format,omitempty"`
}

// DefaultConfig returns info-level logging to stdout.
func DefaultConfig() *Config {
	return &Config{Level: "info", Output: "stdout"}
}

// Logger is the structured logging interface passed around the codebase.
type Logger interface {
	Debug() *zerolog.Event
	Info() *zerolog.Event
	Warn() *zerolog.Event
	Error() *zerolog.Event
	Fatal() *zerolog.Event
	With() zerolog.Context
	WithComponent(component string) zerolog.Logger
	SetLevel(level zerolog.Level)
	SetDebug(debug bool)
}

// New builds a Logger from the provided configuration. A nil config uses the
// defaults.
func New(config *Config) (Logger, error) {
	if config == nil {
		config = DefaultConfig()
	}

	var output io.Writer = os.Stdout
	if config.Output == "stderr" {
		output = os.Stderr
	}

	return newWithOutput(config, output)
}

func newWithOutput(config *Config, output io.Writer) (Logger, error) {
	level := zerolog.InfoLevel

	if config.Debug {
		level = zerolog.DebugLevel
	} else if config.Level != "" {
		var err error

		level, err = zerolog.ParseLevel(config.Level)
		if err != nil {
			return nil, err
		}
	}

	timeFormat := config.TimeFormat
	if timeFormat == "" {
		timeFormat = time.RFC3339
	}

	zerolog.TimeFieldFormat = timeFormat

	zlog := zerolog.New(output).
		Level(level).
		With().
		Timestamp().
		Logger()

	return &zerologAdapter{logger: zlog}, nil
}

type zerologAdapter struct {
	logger zerolog.Logger
}

func (a *zerologAdapter) Debug() *zerolog.Event { return a.logger.Debug() }
func (a *zerologAdapter) Info() *zerolog.Event  { return a.logger.Info() }
func (a *zerologAdapter) Warn() *zerolog.Event  { return a.logger.Warn() }
func (a *zerologAdapter) Error() *zerolog.Event { return a.logger.Error() }
func (a *zerologAdapter) Fatal() *zerolog.Event { return a.logger.Fatal() }
func (a *zerologAdapter) With() zerolog.Context { return a.logger.With() }

func (a *zerologAdapter) WithComponent(component string) zerolog.Logger {
	return a.logger.With().Str("component", component).Logger()
}

func (a *zerologAdapter) SetLevel(level zerolog.Level) {
	a.logger = a.logger.Level(level)
}

func (a *zerologAdapter) SetDebug(debug bool) {
	if debug {
		a.SetLevel(zerolog.DebugLevel)
	} else {
		a.SetLevel(zerolog.InfoLevel)
	}
}

// NewTestLogger creates a no-op logger for testing that discards all output.
func NewTestLogger() Logger {
	nop := zerolog.New(io.Discard).Level(zerolog.Disabled)
	return &zerologAdapter{logger: nop}
}
