package logger

import (
	"log/slog"
	"os"
)

const serviceName = "subscription-billing"

var defaultLogger *slog.Logger

func Init(env string) {
	var handler slog.Handler

	if env == "production" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug})
	}

	defaultLogger = slog.New(handler).With("service", serviceName)
	slog.SetDefault(defaultLogger)
}

func LoggerWrapper() *slog.Logger {
	if defaultLogger == nil {
		// lazy initialize a development logger to avoid nil pointer panics
		Init("development")
	}
	return defaultLogger
}

// ForGateway returns a logger stamped with the gateway name so adapter and
// reconciler lines group per gateway.
func ForGateway(gatewayName string) *slog.Logger {
	return LoggerWrapper().With("gateway", gatewayName)
}
