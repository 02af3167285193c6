package logger

import (
	"context"
	"log/slog"
)

type ctxKey string

const (
	loggerKey ctxKey = "logger"
	traceKey  ctxKey = "trace_id"
)

// With returns a new context that includes a logger with fields.
func With(ctx context.Context, fields ...any) context.Context {
	l := From(ctx).With(fields...)
	return context.WithValue(ctx, loggerKey, l)
}

// WithTrace stores the trace id and stamps the context logger with it, so
// every log line for one webhook delivery or API call shares the id.
func WithTrace(ctx context.Context, traceID string) context.Context {
	ctx = context.WithValue(ctx, traceKey, traceID)
	return With(ctx, "trace_id", traceID)
}

// TraceID returns the trace id stored in context, or empty if missing.
func TraceID(ctx context.Context) string {
	if id, ok := ctx.Value(traceKey).(string); ok {
		return id
	}
	return ""
}

// From returns the logger stored in context, or default if missing.
func From(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(loggerKey).(*slog.Logger); ok {
		return l
	}
	return LoggerWrapper()
}
