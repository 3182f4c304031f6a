// Package logging configures the process-wide zerolog logger and
// exposes small helpers for deriving per-component sub-loggers.
package logging

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

// New builds the root logger. Output is a human-readable console
// writer in development; set CORTEX_LOG_JSON=1 for structured JSON
// (the shape expected when shipping to a log collector).
func New() zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339

	var w zerolog.ConsoleWriter
	if os.Getenv("CORTEX_LOG_JSON") == "1" {
		return zerolog.New(os.Stdout).With().Timestamp().Logger()
	}

	w = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}
	return zerolog.New(w).With().Timestamp().Logger()
}

// Component returns a child logger tagged with the given component
// name, used so each package's log lines are filterable.
func Component(base zerolog.Logger, name string) zerolog.Logger {
	return base.With().Str("component", name).Logger()
}
