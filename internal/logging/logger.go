package logging

import (
	"log/slog"
	"os"
)

func stdoutHandler() slog.Handler {
	return slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})
}

// Setup initializes the global slog logger with JSON output to stdout.
func Setup() {
	slog.SetDefault(slog.New(stdoutHandler()))
}

// Install replaces the global logger with one that writes to stdout and
// to each sink.
func Install(sinks ...slog.Handler) {
	handlers := append([]slog.Handler{stdoutHandler()}, sinks...)
	slog.SetDefault(slog.New(NewMultiHandler(handlers...)))
}
