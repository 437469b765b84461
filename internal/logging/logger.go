// Package logging provides structured logging configuration using log/slog.
//
// Request IDs are carried in the context under chi's RequestID key, so a
// caller that runs loads inside an HTTP handler wrapped by chi's RequestID
// middleware gets request_id on every loader log entry for free. Callers
// outside HTTP can attach one with ContextWithRequestID.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/lmittmann/tint"
)

// Setup configures the global slog logger based on level and format,
// writing to stdout.
//
// Level values: "debug", "info", "warn", "error" (default: "info")
// Format values: "text", "json" (default: "text")
//
// "json" is meant for machine parsing. "text" uses a colorized tint handler
// for human readability.
func Setup(level, format string) {
	slog.SetDefault(New(os.Stdout, level, format))
}

// New builds a logger writing to w. See Setup for the accepted values.
func New(w io.Writer, level, format string) *slog.Logger {
	lvl := parseLevel(level)

	var handler slog.Handler
	if strings.ToLower(format) == "json" {
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl})
	} else {
		handler = tint.NewHandler(w, &tint.Options{
			Level:      lvl,
			TimeFormat: time.RFC3339,
			NoColor:    w != os.Stdout && w != os.Stderr,
		})
	}

	return slog.New(handler)
}

// parseLevel converts a string log level to slog.Level.
func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
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

// ContextWithRequestID stores id where FromContext will find it.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, middleware.RequestIDKey, id)
}

// FromContext returns a logger enriched with request context.
//
// When ctx carries a chi RequestID, the returned logger includes
// request_id in all log entries.
//
// Usage:
//
//	logger := logging.FromContext(ctx)
//	logger.Info("loading", "source", path)
func FromContext(ctx context.Context) *slog.Logger {
	return withRequestID(ctx, slog.Default())
}

// FromContextWith is FromContext starting from base instead of the default logger.
func FromContextWith(ctx context.Context, base *slog.Logger) *slog.Logger {
	if base == nil {
		base = slog.Default()
	}
	return withRequestID(ctx, base)
}

func withRequestID(ctx context.Context, logger *slog.Logger) *slog.Logger {
	// Chi's RequestID middleware stores the ID in context
	if reqID := middleware.GetReqID(ctx); reqID != "" {
		logger = logger.With("request_id", reqID)
	}
	return logger
}
