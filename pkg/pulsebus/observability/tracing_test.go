package observability

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

// setupTracingTest installs a test tracer provider with an in-memory
// exporter and rebinds the package tracer to it.
func setupTracingTest(t *testing.T) *tracetest.InMemoryExporter {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))

	original := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	tracer = otel.Tracer("pulsebus")

	t.Cleanup(func() {
		otel.SetTracerProvider(original)
		tracer = otel.Tracer("pulsebus")
		if err := tp.Shutdown(context.Background()); err != nil {
			t.Logf("tracer provider shutdown: %v", err)
		}
	})

	return exporter
}

func attrValue(s tracetest.SpanStub, key string) string {
	for _, attr := range s.Attributes {
		if string(attr.Key) == key {
			return attr.Value.AsString()
		}
	}
	return ""
}

func TestStartPublishSpan(t *testing.T) {
	exporter := setupTracingTest(t)
	m := NewSpanManager()

	ctx, span := m.StartPublishSpan(context.Background(), "telemetry", "evt-1")
	require.NotNil(t, span)
	assert.NotEqual(t, context.Background(), ctx)

	span.End()

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	s := spans[0]
	assert.Equal(t, "pulsebus.publish", s.Name)
	assert.Equal(t, trace.SpanKindProducer, s.SpanKind)
	assert.Equal(t, "telemetry", attrValue(s, "event.variant"))
	assert.Equal(t, "evt-1", attrValue(s, "event.id"))
}

func TestStartDispatchSpanIsChildOfPublish(t *testing.T) {
	exporter := setupTracingTest(t)
	m := NewSpanManager()

	ctx, publishSpan := m.StartPublishSpan(context.Background(), "telemetry", "evt-1")
	_, dispatchSpan := m.StartDispatchSpan(ctx, "pipeline.Detector", "telemetry", "evt-1")

	dispatchSpan.End()
	publishSpan.End()

	spans := exporter.GetSpans()
	require.Len(t, spans, 2)

	// Exported in end order: dispatch first.
	dispatch := spans[0]
	publish := spans[1]
	assert.Equal(t, "pulsebus.dispatch", dispatch.Name)
	assert.Equal(t, trace.SpanKindConsumer, dispatch.SpanKind)
	assert.Equal(t, "pipeline.Detector", attrValue(dispatch, "handler"))
	assert.Equal(t, publish.SpanContext.SpanID(), dispatch.Parent.SpanID())
	assert.Equal(t, publish.SpanContext.TraceID(), dispatch.SpanContext.TraceID())
}

func TestEndSpanWithError(t *testing.T) {
	exporter := setupTracingTest(t)
	m := NewSpanManager()

	_, span := m.StartDispatchSpan(context.Background(), "h", "telemetry", "evt-1")
	m.EndSpanWithError(span, errors.New("boom"))

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	s := spans[0]
	assert.Equal(t, codes.Error, s.Status.Code)
	assert.Equal(t, "boom", s.Status.Description)
	require.NotEmpty(t, s.Events)
	assert.Equal(t, "exception", s.Events[0].Name)
}

func TestEndSpanWithoutError(t *testing.T) {
	exporter := setupTracingTest(t)
	m := NewSpanManager()

	_, span := m.StartPublishSpan(context.Background(), "telemetry", "evt-1")
	m.EndSpanWithError(span, nil)

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Ok, spans[0].Status.Code)
}

func TestAddSpanEvent(t *testing.T) {
	exporter := setupTracingTest(t)
	m := NewSpanManager()

	ctx, span := m.StartPublishSpan(context.Background(), "telemetry", "evt-1")
	m.AddSpanEvent(ctx, "fanout.resolved")
	span.End()

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	require.NotEmpty(t, spans[0].Events)
	assert.Equal(t, "fanout.resolved", spans[0].Events[0].Name)
}
