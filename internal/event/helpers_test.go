package event

import (
	"io"
	"log/slog"
	"sync"
	"testing"
)

type fooEvent struct{ N int }

func (fooEvent) EventName() string { return "test.foo" }

type barEvent struct{}

func (barEvent) EventName() string { return "test.bar" }

type ptrEvent struct{ ID string }

func (e *ptrEvent) EventName() string { return "test.ptr." + e.ID }

type notAnEvent struct{}

// recorder captures handler calls in order.
type recorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *recorder) record(s string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, s)
}

func (r *recorder) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.calls))
	copy(out, r.calls)
	return out
}

// fooListener handles fooEvent at a fixed priority.
type fooListener struct {
	name      string
	priority  Priority
	rec       *recorder
	err       error
	panicWith any
}

func (l *fooListener) EventHandlers() []Handler {
	return []Handler{On("onFoo", l.onFoo, WithPriority(l.priority))}
}

func (l *fooListener) onFoo(fooEvent) error {
	l.rec.record(l.name)
	if l.panicWith != nil {
		panic(l.panicWith)
	}
	return l.err
}

// declListener returns whatever declarations it holds.
type declListener struct {
	decls []Handler
}

func (l *declListener) EventHandlers() []Handler {
	return l.decls
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestBus(t *testing.T, opts ...BusOption) (*Bus, *Collector) {
	t.Helper()
	c := &Collector{}
	opts = append([]BusOption{WithLogger(discardLogger()), WithErrorSink(c)}, opts...)
	return NewBus(opts...), c
}
