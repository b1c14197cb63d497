package utils

import (
	"context"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// GenerateTraceId returns a fresh trace id for an inbound request.
func GenerateTraceId() string {
	return uuid.New().String()
}

func logEntry(entry *log.Entry, level, message string) {
	switch level {
	case "debug":
		entry.Debug(message)
	case "info":
		entry.Info(message)
	case "warn":
		entry.Warn(message)
	case "error":
		entry.Error(message)
	case "fatal":
		entry.Fatal(message)
	default:
		entry.Info(message)
	}
}

// LogMessage logs a message without request context.
func LogMessage(level, message string) {
	logEntry(log.WithFields(log.Fields{}), level, message)
}

// LogMessageWithFields logs a message enriched with the trace id of the request.
func LogMessageWithFields(ctx context.Context, level, message string) {
	fields := log.Fields{}
	if traceId, ok := ctx.Value(TraceIdKey.String()).(string); ok {
		fields["traceId"] = traceId
	}
	logEntry(log.WithFields(fields), level, message)
}

// LogMessageWithFieldsAndError logs a message together with the causing error.
func LogMessageWithFieldsAndError(ctx context.Context, level, message string, err error) {
	LogMessageWithFields(ctx, level, message+": "+err.Error())
}
