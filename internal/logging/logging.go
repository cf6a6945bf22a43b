package logging

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"

	"ProductScout/internal/config"
)

// New creates a console slog.Logger at the configured level. When cfg.File is
// set, records at info and above are also written as JSON into a rotating file.
// The returned close func flushes and releases the file.
func New(cfg config.LoggingConfig) (*slog.Logger, func() error) {
	if strings.TrimSpace(cfg.File) == "" {
		return build(cfg.Level, os.Stdout, nil), func() error { return nil }
	}

	rotator := &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    10, // megabytes
		MaxBackups: 5,
		MaxAge:     30, // days
		Compress:   true,
	}
	return build(cfg.Level, os.Stdout, rotator), rotator.Close
}

func build(level string, console, file io.Writer) *slog.Logger {
	lvl := levelFromString(level)
	consoleHandler := slog.NewTextHandler(console, &slog.HandlerOptions{Level: lvl})
	if file == nil {
		return slog.New(consoleHandler)
	}

	fileLevel := lvl
	if fileLevel < slog.LevelInfo {
		fileLevel = slog.LevelInfo
	}
	fileHandler := slog.NewJSONHandler(file, &slog.HandlerOptions{Level: fileLevel})
	return slog.New(teeHandler{consoleHandler, fileHandler})
}

func levelFromString(value string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "error":
		return slog.LevelError
	case "warn", "warning":
		return slog.LevelWarn
	case "info":
		return slog.LevelInfo
	default:
		return slog.LevelDebug
	}
}

// teeHandler fans records out to every handler that accepts their level.
type teeHandler []slog.Handler

func (t teeHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range t {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (t teeHandler) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range t {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (t teeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make(teeHandler, len(t))
	for i, h := range t {
		out[i] = h.WithAttrs(attrs)
	}
	return out
}

func (t teeHandler) WithGroup(name string) slog.Handler {
	out := make(teeHandler, len(t))
	for i, h := range t {
		out[i] = h.WithGroup(name)
	}
	return out
}
