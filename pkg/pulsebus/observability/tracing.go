package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// tracer is the pulsebus tracer instance.
// Uses the global OTel tracer provider.
var tracer = otel.Tracer("pulsebus")

// SpanManager handles trace span lifecycle.
// Use NewSpanManager() for OTel tracing or NoopSpanManager{} when disabled.
type SpanManager interface {
	// StartPublishSpan starts a span covering registry lookup and
	// dispatch submission for one published event.
	StartPublishSpan(ctx context.Context, variant, eventID string) (context.Context, trace.Span)

	// StartDispatchSpan starts a span for a single dispatch unit.
	// The dispatch span should be a child of the publish span.
	StartDispatchSpan(ctx context.Context, handler, variant, eventID string) (context.Context, trace.Span)

	// EndSpanWithError completes a span, optionally recording an error.
	EndSpanWithError(span trace.Span, err error)

	// AddSpanEvent adds an event to the current span in context.
	AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue)
}

// otelSpanManager implements SpanManager using OpenTelemetry.
type otelSpanManager struct{}

// NewSpanManager returns a SpanManager that uses OpenTelemetry.
//
// The span manager uses the global OTel tracer provider. Configure the
// provider before calling this function:
//
//	import "go.opentelemetry.io/otel"
//	otel.SetTracerProvider(yourProvider)
func NewSpanManager() SpanManager {
	return &otelSpanManager{}
}

// StartPublishSpan starts a span for one published event.
func (m *otelSpanManager) StartPublishSpan(ctx context.Context, variant, eventID string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "pulsebus.publish",
		trace.WithAttributes(
			attribute.String("event.variant", variant),
			attribute.String("event.id", eventID),
		),
		trace.WithSpanKind(trace.SpanKindProducer),
	)
}

// StartDispatchSpan starts a span for a single dispatch unit.
func (m *otelSpanManager) StartDispatchSpan(ctx context.Context, handler, variant, eventID string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "pulsebus.dispatch",
		trace.WithAttributes(
			attribute.String("handler", handler),
			attribute.String("event.variant", variant),
			attribute.String("event.id", eventID),
		),
		trace.WithSpanKind(trace.SpanKindConsumer),
	)
}

// EndSpanWithError completes a span, optionally recording an error.
func (m *otelSpanManager) EndSpanWithError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// AddSpanEvent adds an event to the current span in context.
func (m *otelSpanManager) AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	span := trace.SpanFromContext(ctx)
	span.AddEvent(name, trace.WithAttributes(attrs...))
}
