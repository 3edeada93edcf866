package event

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func sumOf(t *testing.T, rm metricdata.ResourceMetrics, name string) int64 {
	t.Helper()
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok, "metric %s is not an int64 sum", name)
			var total int64
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
			return total
		}
	}
	return 0
}

func TestTelemetry_Metrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	bus, _ := newTestBus(t, WithMeterProvider(mp))
	rec := &recorder{}
	require.NoError(t, bus.Register(&fooListener{name: "ok", rec: rec}))
	require.NoError(t, bus.Register(&fooListener{name: "bad", rec: rec, err: errors.New("x")}))

	bus.Post(fooEvent{})
	bus.Post(fooEvent{})
	bus.Post(barEvent{})

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	assert.Equal(t, int64(2), sumOf(t, rm, "evbus.events.posted"))
	assert.Equal(t, int64(4), sumOf(t, rm, "evbus.handlers.invoked"))
	assert.Equal(t, int64(2), sumOf(t, rm, "evbus.handlers.failed"))
}

func TestTelemetry_Spans(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	bus, _ := newTestBus(t, WithTracerProvider(tp))
	require.NoError(t, bus.Register(&fooListener{name: "bad", rec: &recorder{}, panicWith: "x"}))

	bus.Post(fooEvent{})
	bus.Post(barEvent{})

	spans := sr.Ended()
	require.Len(t, spans, 1, "events without handlers are not traced")
	assert.Equal(t, "evbus.post", spans[0].Name())
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	require.Len(t, spans[0].Events(), 1)
	assert.Equal(t, "exception", spans[0].Events()[0].Name)
}
