package event

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"go.uber.org/multierr"
)

// ErrorSink receives handler failures reported by Post.
// Report is called on the posting goroutine and must not block for long.
type ErrorSink interface {
	Report(ctx context.Context, err *HandlerError)
}

// SinkFunc adapts a function to ErrorSink.
type SinkFunc func(ctx context.Context, err *HandlerError)

// Report implements ErrorSink.
func (f SinkFunc) Report(ctx context.Context, err *HandlerError) {
	f(ctx, err)
}

// LogSink logs handler failures.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates a sink logging to l, or slog.Default() if l is nil.
func NewLogSink(l *slog.Logger) *LogSink {
	if l == nil {
		l = slog.Default()
	}
	return &LogSink{logger: l}
}

// Report implements ErrorSink.
func (s *LogSink) Report(ctx context.Context, err *HandlerError) {
	attrs := []any{
		"event", err.Event,
		"listener", err.Listener,
		"handler", err.Handler,
		"priority", err.Priority.String(),
		"error", err.Err,
	}

	var pe *PanicError
	if errors.As(err.Err, &pe) {
		s.logger.ErrorContext(ctx, "event handler panicked", attrs...)
		s.logger.DebugContext(ctx, "event handler panic stack",
			"handler", err.Handler,
			"stack", string(pe.Stack),
		)
		return
	}
	s.logger.ErrorContext(ctx, "event handler failed", attrs...)
}

// MultiSink fans failures out to several sinks in order.
type MultiSink []ErrorSink

// Report implements ErrorSink.
func (m MultiSink) Report(ctx context.Context, err *HandlerError) {
	for _, s := range m {
		if s != nil {
			s.Report(ctx, err)
		}
	}
}

// Collector records handler failures for later inspection.
// It is safe for concurrent use.
type Collector struct {
	mu   sync.Mutex
	errs []*HandlerError
}

// Report implements ErrorSink.
func (c *Collector) Report(_ context.Context, err *HandlerError) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errs = append(c.errs, err)
}

// Errors returns a copy of the recorded failures in report order.
func (c *Collector) Errors() []*HandlerError {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]*HandlerError, len(c.errs))
	copy(out, c.errs)
	return out
}

// Err combines the recorded failures into one error, or nil.
func (c *Collector) Err() error {
	return combine(c.Errors())
}

// Len returns the number of recorded failures.
func (c *Collector) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.errs)
}

// Reset discards all recorded failures.
func (c *Collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errs = nil
}

func combine(errs []*HandlerError) error {
	var err error
	for _, e := range errs {
		err = multierr.Append(err, e)
	}
	return err
}
