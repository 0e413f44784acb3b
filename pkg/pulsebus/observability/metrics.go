package observability

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MetricsRecorder records broker metrics.
// Use NewMetricsRecorder() for OTel metrics or NoopMetrics{} when disabled.
type MetricsRecorder interface {
	// RecordPublish records a publish attempt and whether it was accepted.
	RecordPublish(ctx context.Context, variant string, accepted bool)

	// RecordDispatch records one dispatch unit with its duration and
	// error status.
	RecordDispatch(ctx context.Context, variant, handler string, duration time.Duration, err error)

	// RecordOverflow records a dispatch unit spilled past the worker queue.
	RecordOverflow(ctx context.Context, variant string)

	// RecordAbandoned records dispatch units abandoned at shutdown.
	RecordAbandoned(ctx context.Context, count int64)
}

// otelMetrics implements MetricsRecorder using OpenTelemetry.
type otelMetrics struct {
	published       metric.Int64Counter
	rejected        metric.Int64Counter
	dispatches      metric.Int64Counter
	dispatchErrors  metric.Int64Counter
	dispatchLatency metric.Float64Histogram
	overflows       metric.Int64Counter
	abandoned       metric.Int64Counter
}

var (
	defaultMetrics     *otelMetrics
	defaultMetricsOnce sync.Once
	defaultMetricsErr  error
)

// getDefaultMetrics returns the default OTel metrics instance.
// Lazily initializes the metrics on first call.
func getDefaultMetrics() (*otelMetrics, error) {
	defaultMetricsOnce.Do(func() {
		defaultMetrics, defaultMetricsErr = newOtelMetrics()
	})
	return defaultMetrics, defaultMetricsErr
}

// newOtelMetrics creates a new OTel metrics instance.
func newOtelMetrics() (*otelMetrics, error) {
	meter := otel.Meter("pulsebus")

	published, err := meter.Int64Counter("pulsebus.events.published",
		metric.WithDescription("Number of events accepted by Publish"),
	)
	if err != nil {
		return nil, err
	}

	rejected, err := meter.Int64Counter("pulsebus.events.rejected",
		metric.WithDescription("Number of events rejected by Publish"),
	)
	if err != nil {
		return nil, err
	}

	dispatches, err := meter.Int64Counter("pulsebus.dispatch.count",
		metric.WithDescription("Number of dispatch units executed"),
	)
	if err != nil {
		return nil, err
	}

	dispatchErrors, err := meter.Int64Counter("pulsebus.dispatch.errors",
		metric.WithDescription("Number of failed handler invocations"),
	)
	if err != nil {
		return nil, err
	}

	dispatchLatency, err := meter.Float64Histogram("pulsebus.dispatch.latency_ms",
		metric.WithDescription("Handler execution latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	overflows, err := meter.Int64Counter("pulsebus.dispatch.overflows",
		metric.WithDescription("Dispatch units run on overflow goroutines"),
	)
	if err != nil {
		return nil, err
	}

	abandoned, err := meter.Int64Counter("pulsebus.dispatch.abandoned",
		metric.WithDescription("Dispatch units abandoned at shutdown"),
	)
	if err != nil {
		return nil, err
	}

	return &otelMetrics{
		published:       published,
		rejected:        rejected,
		dispatches:      dispatches,
		dispatchErrors:  dispatchErrors,
		dispatchLatency: dispatchLatency,
		overflows:       overflows,
		abandoned:       abandoned,
	}, nil
}

// NewMetricsRecorder returns a MetricsRecorder that uses OpenTelemetry.
// If metrics initialization fails, returns a no-op recorder and logs the
// failure.
func NewMetricsRecorder() MetricsRecorder {
	m, err := getDefaultMetrics()
	if err != nil {
		slog.Warn("otel metrics unavailable, using noop recorder",
			slog.String("error", err.Error()))
		return NoopMetrics{}
	}
	return m
}

// RecordPublish implements MetricsRecorder.
func (m *otelMetrics) RecordPublish(ctx context.Context, variant string, accepted bool) {
	attrs := metric.WithAttributes(attribute.String("variant", variant))
	if accepted {
		m.published.Add(ctx, 1, attrs)
	} else {
		m.rejected.Add(ctx, 1, attrs)
	}
}

// RecordDispatch implements MetricsRecorder.
func (m *otelMetrics) RecordDispatch(ctx context.Context, variant, handler string, duration time.Duration, err error) {
	attrs := metric.WithAttributes(
		attribute.String("variant", variant),
		attribute.String("handler", handler),
	)
	m.dispatches.Add(ctx, 1, attrs)
	m.dispatchLatency.Record(ctx, float64(duration.Milliseconds()), attrs)
	if err != nil {
		m.dispatchErrors.Add(ctx, 1, attrs)
	}
}

// RecordOverflow implements MetricsRecorder.
func (m *otelMetrics) RecordOverflow(ctx context.Context, variant string) {
	m.overflows.Add(ctx, 1, metric.WithAttributes(attribute.String("variant", variant)))
}

// RecordAbandoned implements MetricsRecorder.
func (m *otelMetrics) RecordAbandoned(ctx context.Context, count int64) {
	if count > 0 {
		m.abandoned.Add(ctx, count)
	}
}
