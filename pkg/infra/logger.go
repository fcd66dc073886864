package infra

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/Guizzs26/mobilize-sync/internal/config"
)

// SetupLogger builds the process logger. When LOG_FILE is set output is tee'd to it;
// the returned close func releases the file.
func SetupLogger(cfg *config.Config) (*slog.Logger, func() error, error) {
	var out io.Writer = os.Stdout
	closer := func() error { return nil }

	if cfg.LogFile != "" {
		logFile, err := os.OpenFile(cfg.LogFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return nil, closer, fmt.Errorf("failed to open log file %s: %w", cfg.LogFile, err)
		}
		out = io.MultiWriter(os.Stdout, logFile)
		closer = logFile.Close
	}

	return NewLogger(out, cfg.LogLevel, cfg.LogFormat), closer, nil
}

// NewLogger builds a slog logger writing to w
func NewLogger(w io.Writer, logLevel, logFormat string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(logLevel)}

	var handler slog.Handler
	if strings.ToUpper(logFormat) == "JSON" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	return slog.New(handler)
}

func ParseLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
