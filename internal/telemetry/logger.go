package telemetry

import (
	"log/slog"
	"os"
	"time"
)

// NewLogger builds the process-wide *slog.Logger the sinks and every
// pipeline component share: JSON on stdout, the time attribute renamed
// to "timestamp" and formatted RFC3339 so log lines line up with the
// slot timestamps operators correlate them against. Unrecognised level
// strings fall back to info.
func NewLogger(level string) *slog.Logger {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLevel(level),
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				return slog.String("timestamp", a.Value.Time().Format(time.RFC3339))
			}
			return a
		},
	})
	return slog.New(handler).With("component", "engine")
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
