package main

import (
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// parseLogLevel maps a configured level name onto zerolog, defaulting to info.
func parseLogLevel(name string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// newLogger builds the console logger used by every component.
func newLogger(w io.Writer, level string) zerolog.Logger {
	console := zerolog.ConsoleWriter{Out: w, TimeFormat: time.TimeOnly}
	return zerolog.New(console).Level(parseLogLevel(level)).With().Timestamp().Logger()
}
