package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/storefront-kit/webhooks"

// Tracer provides OpenTelemetry tracing for delivery attempts.
type Tracer struct {
	tracer trace.Tracer
}

// NewTracer creates a tracer backed by the global otel provider.
func NewTracer() *Tracer {
	return &Tracer{
		tracer: otel.Tracer(tracerName),
	}
}

// StartDeliverySpan starts a new span for a delivery attempt.
func (t *Tracer) StartDeliverySpan(ctx context.Context, deliveryID, endpointID, eventType string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "webhooks.delivery",
		trace.WithAttributes(
			attribute.String("webhooks.delivery_id", deliveryID),
			attribute.String("webhooks.endpoint_id", endpointID),
			attribute.String("webhooks.event_type", eventType),
		),
	)
}

// EndDeliverySpan ends a delivery span with result attributes.
func (t *Tracer) EndDeliverySpan(span trace.Span, statusCode, latencyMs int, err string) {
	span.SetAttributes(
		attribute.Int("http.status_code", statusCode),
		attribute.Int("webhooks.latency_ms", latencyMs),
	)
	if err != "" {
		span.SetAttributes(attribute.String("webhooks.error", err))
	}
	span.End()
}
