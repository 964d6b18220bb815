package slogutil

import (
	"io"
	"log/slog"
	"strings"
)

const (
	FormatHuman = "human"
	FormatJSON  = "json"
)

// NewLogger returns a logger writing to w. format is "human" or "json";
// anything else falls back to human.
func NewLogger(w io.Writer, level slog.Level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(format, FormatJSON) {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(NewHumanHandler(w, opts))
}

// NewDiscardLogger drops everything. Used in tests.
func NewDiscardLogger() *slog.Logger {
	return slog.New(NewHumanHandler(io.Discard, &slog.HandlerOptions{Level: slog.Level(100)}))
}

// LevelFromString maps debug, info, warn(ing) and error to a level.
// Unknown strings give info.
func LevelFromString(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
