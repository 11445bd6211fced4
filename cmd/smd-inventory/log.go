package main

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// initLogger configures the global slog logger. Output goes to w (stderr)
// because stdout carries the inventory document.
func initLogger(w io.Writer, level string, json bool) error {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.ToUpper(level))); err != nil {
		return fmt.Errorf("invalid --log-level %q: %w", level, err)
	}

	opts := &slog.HandlerOptions{Level: lvl}
	var handler slog.Handler
	if json {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	slog.SetDefault(slog.New(handler))
	slog.Debug("logger initialized", "level", lvl.String(), "json", json)
	return nil
}
