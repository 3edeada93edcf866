package event

import (
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// BusOption configures an event Bus.
type BusOption func(*busConfig)

// busConfig contains configuration for the event bus.
type busConfig struct {
	// logger receives registration and failure logs.
	logger *slog.Logger

	// sink receives handler failures. Defaults to a LogSink on logger.
	sink ErrorSink

	// slowHandler is the duration after which a handler invocation is
	// logged as slow. Zero disables the check.
	slowHandler time.Duration

	meterProvider  metric.MeterProvider
	tracerProvider trace.TracerProvider
}

// defaultBusConfig returns sensible default configuration.
func defaultBusConfig() busConfig {
	return busConfig{
		logger:         slog.Default(),
		meterProvider:  otel.GetMeterProvider(),
		tracerProvider: otel.GetTracerProvider(),
	}
}

// WithLogger sets the structured logger used by the bus.
func WithLogger(l *slog.Logger) BusOption {
	return func(c *busConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithErrorSink sets where handler failures are reported.
func WithErrorSink(s ErrorSink) BusOption {
	return func(c *busConfig) {
		c.sink = s
	}
}

// WithSlowHandlerThreshold logs a warning for handlers that run longer than d.
// Handlers are never interrupted.
func WithSlowHandlerThreshold(d time.Duration) BusOption {
	return func(c *busConfig) {
		if d > 0 {
			c.slowHandler = d
		}
	}
}

// WithMeterProvider sets the OpenTelemetry meter provider.
func WithMeterProvider(mp metric.MeterProvider) BusOption {
	return func(c *busConfig) {
		if mp != nil {
			c.meterProvider = mp
		}
	}
}

// WithTracerProvider sets the OpenTelemetry tracer provider.
func WithTracerProvider(tp trace.TracerProvider) BusOption {
	return func(c *busConfig) {
		if tp != nil {
			c.tracerProvider = tp
		}
	}
}
