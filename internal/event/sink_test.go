package event

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
)

func TestLogSink(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	bus := NewBus(WithLogger(logger))

	require.NoError(t, bus.Register(&fooListener{name: "x", rec: &recorder{}, err: errors.New("disk full")}))
	bus.Post(fooEvent{})

	out := buf.String()
	assert.Contains(t, out, `"msg":"event handler failed"`)
	assert.Contains(t, out, `"event":"test.foo"`)
	assert.Contains(t, out, `"listener":"*event.fooListener"`)
	assert.Contains(t, out, `"handler":"onFoo"`)
	assert.Contains(t, out, `"priority":"normal"`)
	assert.Contains(t, out, "disk full")
}

func TestLogSink_Panic(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	sink := NewLogSink(logger)

	sink.Report(context.Background(), &HandlerError{
		Event:   "test.foo",
		Handler: "h",
		Err:     &PanicError{Value: "oops", Stack: []byte("goroutine 1")},
	})

	out := buf.String()
	assert.Contains(t, out, `"msg":"event handler panicked"`)
	assert.Contains(t, out, `"msg":"event handler panic stack"`)
	assert.Contains(t, out, "goroutine 1")
}

func TestMultiSink(t *testing.T) {
	a, b := &Collector{}, &Collector{}
	var calls int
	sink := MultiSink{a, nil, SinkFunc(func(context.Context, *HandlerError) { calls++ }), b}

	sink.Report(context.Background(), &HandlerError{Err: errors.New("x")})

	assert.Equal(t, 1, a.Len())
	assert.Equal(t, 1, b.Len())
	assert.Equal(t, 1, calls)
}

func TestCollector(t *testing.T) {
	c := &Collector{}
	assert.NoError(t, c.Err())

	e1 := &HandlerError{Handler: "one", Err: errors.New("first")}
	e2 := &HandlerError{Handler: "two", Err: errors.New("second")}
	c.Report(context.Background(), e1)
	c.Report(context.Background(), e2)

	assert.Equal(t, []*HandlerError{e1, e2}, c.Errors())
	err := c.Err()
	require.Error(t, err)
	assert.Len(t, multierr.Errors(err), 2)

	c.Reset()
	assert.Zero(t, c.Len())
}

func TestHandlerError(t *testing.T) {
	cause := errors.New("cause")
	err := &HandlerError{Event: "user.created", Listener: "*app.Mailer", Handler: "welcome", Err: cause}

	assert.Equal(t, "handler *app.Mailer.welcome failed on user.created: cause", err.Error())
	assert.ErrorIs(t, err, cause)
	assert.False(t, err.Panicked())
}

func TestSignatureError(t *testing.T) {
	err := &SignatureError{Listener: "*app.Mailer", Handler: "welcome", Reason: "takes 2 parameters"}

	assert.Equal(t, "invalid handler signature *app.Mailer.welcome: takes 2 parameters", err.Error())
	assert.ErrorIs(t, err, ErrInvalidHandlerSignature)
}
