// Package logger builds the syncer's slog.Logger from its Config.
//
// Output goes to stdout as text or JSON; the level is one of debug, info,
// warn or error and falls back to info.
package logger

import (
	"log/slog"
	"os"
	"strings"

	"github.com/HatiCode/rulesync/cmd/syncer/config"
)

func New(cfg *config.Config) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if strings.EqualFold(cfg.LogFormat, "json") {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler).With("component", "syncer")
}
