package config

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// ParseLevel maps debug, info, warn and error (case-insensitive, "" is info)
// to a slog.Level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid log level: %s", s)
	}
}

// NewLogger builds the host logger from the log.* options. Output goes to
// the rotating log.file when set, otherwise to stderr. The returned closer is
// nil unless a file was opened; the caller must close it.
func NewLogger(cfg *Config, stderr io.Writer) (*slog.Logger, io.Closer, error) {
	schema := DefaultSchema()

	level, err := ParseLevel(schema.Resolve(cfg, KeyLogLevel))
	if err != nil {
		return nil, nil, err
	}

	var (
		out    = stderr
		closer io.Closer
	)
	if path := schema.Resolve(cfg, KeyLogFile); path != "" {
		f, err := OpenRotatingFile(path, schema.Int(cfg, KeyLogMaxSizeMB), schema.Int(cfg, KeyLogMaxFiles))
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open log file %s: %w", path, err)
		}
		out, closer = f, f
	}

	handlerOpts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	switch format := strings.ToLower(schema.Resolve(cfg, KeyLogFormat)); format {
	case "json":
		handler = slog.NewJSONHandler(out, handlerOpts)
	case "text", "":
		handler = slog.NewTextHandler(out, handlerOpts)
	default:
		if closer != nil {
			_ = closer.Close()
		}
		return nil, nil, fmt.Errorf("invalid log format: %s", format)
	}

	return slog.New(handler), closer, nil
}
