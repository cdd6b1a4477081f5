package util

import (
	"log/slog"
	"os"
	"strings"
)

// InitLogger installs a JSON slog logger at the given level as the process
// default and returns it. Unknown levels fall back to info.
func InitLogger(level string) *slog.Logger {
	var lv slog.Level
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		lv = slog.LevelDebug
	case "warn", "warning":
		lv = slog.LevelWarn
	case "error":
		lv = slog.LevelError
	default:
		lv = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level:     lv,
		AddSource: lv == slog.LevelDebug,
	}))
	slog.SetDefault(logger)
	return logger
}
