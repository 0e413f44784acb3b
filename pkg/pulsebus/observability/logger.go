// Package observability provides structured logging, metrics, and
// distributed tracing for pulsebus.
//
// Features:
//   - Structured logging via slog (Go stdlib)
//   - Metrics via OpenTelemetry
//   - Tracing via OpenTelemetry
//
// All features are opt-in and have no-op implementations when disabled.
package observability

import (
	"log/slog"
	"time"
)

// EnrichLogger adds dispatch context to a logger.
// Returns a new logger with handler, event_id, and variant fields.
func EnrichLogger(logger *slog.Logger, handler, eventID, variant string) *slog.Logger {
	if logger == nil {
		return nil
	}
	return logger.With(
		slog.String("handler", handler),
		slog.String("event_id", eventID),
		slog.String("variant", variant),
	)
}

// LogDispatchError logs a failed handler invocation with full context.
func LogDispatchError(logger *slog.Logger, handler, eventID, variant string, err error) {
	if logger == nil {
		return
	}
	logger.Error("handler failed",
		slog.String("handler", handler),
		slog.String("event_id", eventID),
		slog.String("variant", variant),
		slog.String("error", err.Error()),
	)
}

// LogPublishRejected logs a publish rejected because the broker is
// draining or stopped.
func LogPublishRejected(logger *slog.Logger, eventID, variant, state string) {
	if logger == nil {
		return
	}
	logger.Warn("publish rejected",
		slog.String("event_id", eventID),
		slog.String("variant", variant),
		slog.String("state", state),
	)
}

// LogCascadeRejected logs a derived publish that exceeded the cascade
// depth bound.
func LogCascadeRejected(logger *slog.Logger, eventID string, depth, maxDepth int) {
	if logger == nil {
		return
	}
	logger.Error("cascade depth exceeded",
		slog.String("event_id", eventID),
		slog.Int("depth", depth),
		slog.Int("max_depth", maxDepth),
	)
}

// LogShutdownTimeout reports dispatch units abandoned after the grace
// period elapsed. Not a hard failure, but an observable condition.
func LogShutdownTimeout(logger *slog.Logger, abandoned int64, grace time.Duration) {
	if logger == nil {
		return
	}
	logger.Warn("shutdown grace period elapsed",
		slog.Int64("abandoned_units", abandoned),
		slog.Duration("grace", grace),
	)
}

// LogQueueOverflow logs a dispatch unit spilled to an overflow goroutine
// because the worker queue was full.
func LogQueueOverflow(logger *slog.Logger, eventID, variant string) {
	if logger == nil {
		return
	}
	logger.Debug("dispatch queue full, spawning overflow worker",
		slog.String("event_id", eventID),
		slog.String("variant", variant),
	)
}

// TimedOperation measures the duration of an operation.
// Returns a function that, when called, returns the elapsed time in
// milliseconds.
func TimedOperation() func() float64 {
	start := time.Now()
	return func() float64 {
		return float64(time.Since(start).Milliseconds())
	}
}
