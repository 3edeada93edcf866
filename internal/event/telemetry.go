package event

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/dshills/evbus/internal/event"

// telemetry holds the OpenTelemetry instruments of a bus.
type telemetry struct {
	tracer   trace.Tracer
	posted   metric.Int64Counter
	invoked  metric.Int64Counter
	failed   metric.Int64Counter
	duration metric.Float64Histogram
}

func newTelemetry(mp metric.MeterProvider, tp trace.TracerProvider) *telemetry {
	meter := mp.Meter(instrumentationName)
	t := &telemetry{tracer: tp.Tracer(instrumentationName)}

	var err error
	if t.posted, err = meter.Int64Counter("evbus.events.posted",
		metric.WithDescription("Events posted to the bus"),
		metric.WithUnit("{event}"),
	); err != nil {
		otel.Handle(err)
	}
	if t.invoked, err = meter.Int64Counter("evbus.handlers.invoked",
		metric.WithDescription("Handler invocations"),
		metric.WithUnit("{call}"),
	); err != nil {
		otel.Handle(err)
	}
	if t.failed, err = meter.Int64Counter("evbus.handlers.failed",
		metric.WithDescription("Handler invocations that returned an error or panicked"),
		metric.WithUnit("{call}"),
	); err != nil {
		otel.Handle(err)
	}
	if t.duration, err = meter.Float64Histogram("evbus.handler.duration",
		metric.WithDescription("Handler execution time"),
		metric.WithUnit("ms"),
	); err != nil {
		otel.Handle(err)
	}
	return t
}

// startPost opens the span covering one dispatch and counts the event.
func (t *telemetry) startPost(ctx context.Context, name string, handlers int) (context.Context, trace.Span) {
	attrs := attribute.String("evbus.event", name)
	t.posted.Add(ctx, 1, metric.WithAttributes(attrs))
	return t.tracer.Start(ctx, "evbus.post",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attrs, attribute.Int("evbus.handlers", handlers)),
	)
}

// recordInvocation records one handler call.
func (t *telemetry) recordInvocation(ctx context.Context, name string, b *binding, elapsed time.Duration, herr *HandlerError) {
	attrs := metric.WithAttributes(
		attribute.String("evbus.event", name),
		attribute.String("evbus.priority", b.priority.String()),
	)
	t.invoked.Add(ctx, 1, attrs)
	t.duration.Record(ctx, float64(elapsed)/float64(time.Millisecond), attrs)
	if herr == nil {
		return
	}

	t.failed.Add(ctx, 1, attrs)
	span := trace.SpanFromContext(ctx)
	span.RecordError(herr, trace.WithAttributes(
		attribute.String("evbus.listener", herr.Listener),
		attribute.String("evbus.handler", herr.Handler),
		attribute.Bool("evbus.panic", herr.Panicked()),
	))
	span.SetStatus(codes.Error, "event handler failed")
}
