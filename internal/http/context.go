package http

import (
	"context"
	"log/slog"

	"github.com/example/matchbook/internal/logging"
)

// ContextWithLogger returns a derived context carrying the request logger.
func ContextWithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return logging.ContextWithLogger(ctx, logger)
}

// LoggerFromContext extracts the request logger if one was attached.
func LoggerFromContext(ctx context.Context) *slog.Logger {
	return logging.FromContext(ctx)
}

func orDefault(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return slog.Default()
	}
	return logger
}

// requestLogger prefers the logger RequestLogger attached to ctx.
func requestLogger(ctx context.Context, fallback *slog.Logger) *slog.Logger {
	if logger := LoggerFromContext(ctx); logger != nil {
		return logger
	}
	return orDefault(fallback)
}

// scopedLogger tags the request logger with the handler and, when set, the
// operation being served.
func scopedLogger(ctx context.Context, fallback *slog.Logger, handler, operation string, attrs ...any) *slog.Logger {
	pairs := make([]any, 0, len(attrs)+4)
	pairs = append(pairs, "handler", handler)
	if operation != "" {
		pairs = append(pairs, "operation", operation)
	}
	return requestLogger(ctx, fallback).With(append(pairs, attrs...)...)
}
