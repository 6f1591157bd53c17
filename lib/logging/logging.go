// Copyright 2026 The Feedin Authors
// SPDX-License-Identifier: Apache-2.0

// Package logging builds the slog loggers of the feedin binaries.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"golang.org/x/term"
)

// LevelCritical sits above slog.LevelError for failures that end the
// process.
const LevelCritical = slog.Level(12)

// Levels lists the accepted level names in increasing severity.
var Levels = []string{"debug", "info", "warning", "error", "critical"}

// ParseLevel maps a level name to its slog level. Matching is case
// insensitive; "warn" is accepted for "warning".
func ParseLevel(name string) (slog.Level, error) {
	switch strings.ToLower(name) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warning", "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	case "critical":
		return LevelCritical, nil
	}
	return 0, fmt.Errorf("unknown log level %q (want one of %s)", name, strings.Join(Levels, ", "))
}

// New creates a logger writing to stderr at level. When stderr is a
// terminal the output is slog text; otherwise it is JSON, so logs of
// workers spawned by the gateway stay machine-parseable.
func New(level slog.Level) *slog.Logger {
	return NewWriter(os.Stderr, term.IsTerminal(int(os.Stderr.Fd())), level)
}

// NewWriter creates a logger writing to w, as text when human is set
// and as JSON otherwise.
func NewWriter(w io.Writer, human bool, level slog.Level) *slog.Logger {
	options := &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: renameCritical,
	}
	var handler slog.Handler
	if human {
		handler = slog.NewTextHandler(w, options)
	} else {
		handler = slog.NewJSONHandler(w, options)
	}
	return slog.New(handler)
}

// renameCritical prints LevelCritical as CRITICAL instead of ERROR+4.
func renameCritical(groups []string, attr slog.Attr) slog.Attr {
	if len(groups) == 0 && attr.Key == slog.LevelKey {
		if level, ok := attr.Value.Any().(slog.Level); ok && level >= LevelCritical {
			return slog.String(slog.LevelKey, "CRITICAL")
		}
	}
	return attr
}
