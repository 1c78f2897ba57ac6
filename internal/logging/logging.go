// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package logging configures the process-wide zerolog logger.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Options selects level and format.
type Options struct {
	Level string
	JSON  bool
	// Out defaults to os.Stderr.
	Out io.Writer
}

// ParseLevel maps a level name to a zerolog level. Empty means info.
func ParseLevel(s string) (zerolog.Level, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return zerolog.InfoLevel, nil
	}
	if s == "warning" {
		s = "warn"
	}
	lvl, err := zerolog.ParseLevel(s)
	if err != nil {
		return zerolog.NoLevel, fmt.Errorf("invalid log level %q: %w", s, err)
	}
	return lvl, nil
}

// New returns a logger for opts. Console output is used unless JSON is set.
func New(opts Options) (zerolog.Logger, error) {
	lvl, err := ParseLevel(opts.Level)
	if err != nil {
		return zerolog.Nop(), err
	}
	out := opts.Out
	if out == nil {
		out = os.Stderr
	}
	if !opts.JSON {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.TimeOnly}
	}
	return zerolog.New(out).Level(lvl).With().Timestamp().Logger(), nil
}

// Setup installs the logger from opts as the global logger and as the
// default for zerolog.Ctx on contexts that carry none.
func Setup(opts Options) (zerolog.Logger, error) {
	l, err := New(opts)
	if err != nil {
		return l, err
	}
	log.Logger = l
	zerolog.DefaultContextLogger = &log.Logger
	return l, nil
}
