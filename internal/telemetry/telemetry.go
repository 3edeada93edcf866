// Package telemetry wires OpenTelemetry providers for evbus.
//
// Telemetry is off by default. When disabled, Setup returns no-op
// providers; when enabled, spans and metrics are written to the given
// writer by the stdout exporters.
package telemetry

import (
	"context"
	"io"

	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/multierr"
)

// Providers holds the meter and tracer providers handed to the bus.
type Providers struct {
	MeterProvider  metric.MeterProvider
	TracerProvider trace.TracerProvider

	shutdown []func(context.Context) error
}

// Setup builds providers. A nil w writes to io.Discard.
func Setup(enabled bool, w io.Writer, serviceName, version string) (*Providers, error) {
	if !enabled {
		return &Providers{
			MeterProvider:  metricnoop.NewMeterProvider(),
			TracerProvider: tracenoop.NewTracerProvider(),
		}, nil
	}
	if w == nil {
		w = io.Discard
	}

	res := resource.NewWithAttributes(semconv.SchemaURL,
		semconv.ServiceNameKey.String(serviceName),
		semconv.ServiceVersionKey.String(version),
	)

	spanExp, err := stdouttrace.New(stdouttrace.WithWriter(w), stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, err
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithSyncer(spanExp),
	)

	metricExp, err := stdoutmetric.New(stdoutmetric.WithWriter(w), stdoutmetric.WithPrettyPrint())
	if err != nil {
		_ = tp.Shutdown(context.Background())
		return nil, err
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExp)),
	)

	return &Providers{
		MeterProvider:  mp,
		TracerProvider: tp,
		shutdown:       []func(context.Context) error{tp.Shutdown, mp.Shutdown},
	}, nil
}

// Shutdown flushes pending spans and metrics and stops the providers.
func (p *Providers) Shutdown(ctx context.Context) error {
	var err error
	for _, fn := range p.shutdown {
		err = multierr.Append(err, fn(ctx))
	}
	p.shutdown = nil
	return err
}
