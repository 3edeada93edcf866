package event

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
)

func TestBus_PriorityOrder(t *testing.T) {
	bus, _ := newTestBus(t)
	rec := &recorder{}

	for _, l := range []*fooListener{
		{name: "lowest", priority: PriorityLowest, rec: rec},
		{name: "normal", priority: PriorityNormal, rec: rec},
		{name: "highest", priority: PriorityHighest, rec: rec},
		{name: "high", priority: PriorityHigh, rec: rec},
		{name: "low", priority: PriorityLow, rec: rec},
	} {
		require.NoError(t, bus.Register(l))
	}

	bus.Post(fooEvent{})

	assert.Equal(t, []string{"highest", "high", "normal", "low", "lowest"}, rec.Calls())

	infos := bus.Handlers(fooEvent{})
	require.Len(t, infos, 5)
	for i := 1; i < len(infos); i++ {
		assert.LessOrEqual(t, infos[i-1].Priority, infos[i].Priority)
	}
}

func TestBus_EqualPrioritiesKeepRegistrationOrder(t *testing.T) {
	bus, _ := newTestBus(t)
	rec := &recorder{}

	for i := range 4 {
		require.NoError(t, bus.Register(&fooListener{name: fmt.Sprintf("n%d", i), rec: rec}))
	}
	require.NoError(t, bus.Register(&fooListener{name: "h0", priority: PriorityHigh, rec: rec}))
	require.NoError(t, bus.Register(&fooListener{name: "n4", priority: PriorityNormal, rec: rec}))
	require.NoError(t, bus.Register(&fooListener{name: "h1", priority: PriorityHigh, rec: rec}))

	bus.Post(fooEvent{})

	assert.Equal(t, []string{"h0", "h1", "n0", "n1", "n2", "n3", "n4"}, rec.Calls())
}

func TestBus_RegisterPostUnregisterScenario(t *testing.T) {
	bus, sink := newTestBus(t)
	rec := &recorder{}
	l := &fooListener{name: "L", priority: PriorityHigh, rec: rec}
	m := &fooListener{name: "M", priority: PriorityNormal, rec: rec}

	require.NoError(t, bus.Register(l))
	require.NoError(t, bus.Register(m))

	bus.Post(fooEvent{})
	assert.Equal(t, []string{"L", "M"}, rec.Calls())

	require.NoError(t, bus.Unregister(l))
	bus.Post(fooEvent{})
	assert.Equal(t, []string{"L", "M", "M"}, rec.Calls())
	assert.Zero(t, sink.Len())
}

func TestBus_PostWithoutHandlers(t *testing.T) {
	bus, sink := newTestBus(t)
	rec := &recorder{}
	require.NoError(t, bus.Register(&fooListener{name: "foo", rec: rec}))

	assert.NotPanics(t, func() { bus.Post(barEvent{}) })
	assert.NoError(t, bus.Deliver(context.Background(), barEvent{}))

	assert.Empty(t, rec.Calls())
	assert.Zero(t, sink.Len())
	stats := bus.Stats()
	assert.Equal(t, uint64(2), stats.EventsPosted)
	assert.Equal(t, uint64(2), stats.EventsUnhandled)
	assert.Zero(t, stats.HandlersInvoked)
}

func TestBus_PostNil(t *testing.T) {
	bus, _ := newTestBus(t)

	assert.NotPanics(t, func() { bus.Post(nil) })
	assert.NoError(t, bus.Deliver(context.Background(), nil))
	assert.Zero(t, bus.Stats().EventsPosted)
}

func TestBus_UnregisterRemovesOnlyOwnBindings(t *testing.T) {
	bus, _ := newTestBus(t)
	rec := &recorder{}
	a := &fooListener{name: "a", rec: rec}
	b := &fooListener{name: "b", rec: rec}
	c := &fooListener{name: "c", rec: rec}
	for _, l := range []*fooListener{a, b, c} {
		require.NoError(t, bus.Register(l))
	}

	require.NoError(t, bus.Unregister(b))
	bus.Post(fooEvent{})
	assert.Equal(t, []string{"a", "c"}, rec.Calls())

	// Second unregister is a no-op.
	require.NoError(t, bus.Unregister(b))
	assert.Equal(t, 2, bus.Stats().Bindings)

	// Never-registered listener is a no-op too.
	require.NoError(t, bus.Unregister(&fooListener{name: "d", rec: rec}))
	assert.Equal(t, 2, bus.Stats().Bindings)
}

func TestBus_UnregisterDropsEmptyEventTypes(t *testing.T) {
	bus, _ := newTestBus(t)
	l := &fooListener{name: "only", rec: &recorder{}}

	require.NoError(t, bus.Register(l))
	assert.Equal(t, []reflect.Type{reflect.TypeFor[fooEvent]()}, bus.EventTypes())

	require.NoError(t, bus.Unregister(l))
	assert.Empty(t, bus.EventTypes())
	assert.False(t, bus.HasHandlers(fooEvent{}))
	assert.Equal(t, 0, bus.Stats().EventTypes)
}

func TestBus_FailureIsolation(t *testing.T) {
	bus, sink := newTestBus(t)
	rec := &recorder{}
	boom := errors.New("boom")

	require.NoError(t, bus.Register(&fooListener{name: "first", priority: PriorityHighest, rec: rec}))
	require.NoError(t, bus.Register(&fooListener{name: "erroring", priority: PriorityHigh, rec: rec, err: boom}))
	require.NoError(t, bus.Register(&fooListener{name: "panicking", priority: PriorityNormal, rec: rec, panicWith: "kaboom"}))
	require.NoError(t, bus.Register(&fooListener{name: "last", priority: PriorityLowest, rec: rec}))

	assert.NotPanics(t, func() { bus.Post(fooEvent{}) })
	assert.Equal(t, []string{"first", "erroring", "panicking", "last"}, rec.Calls())

	failures := sink.Errors()
	require.Len(t, failures, 2)

	assert.ErrorIs(t, failures[0], boom)
	assert.False(t, failures[0].Panicked())
	assert.Equal(t, "test.foo", failures[0].Event)
	assert.Equal(t, "onFoo", failures[0].Handler)
	assert.Equal(t, "*event.fooListener", failures[0].Listener)
	assert.Equal(t, PriorityHigh, failures[0].Priority)

	assert.ErrorIs(t, failures[1], ErrHandlerPanic)
	assert.True(t, failures[1].Panicked())
	var pe *PanicError
	require.ErrorAs(t, failures[1], &pe)
	assert.Equal(t, "kaboom", pe.Value)
	assert.NotEmpty(t, pe.Stack)

	stats := bus.Stats()
	assert.Equal(t, uint64(4), stats.HandlersInvoked)
	assert.Equal(t, uint64(1), stats.HandlerErrors)
	assert.Equal(t, uint64(1), stats.HandlerPanics)
}

func TestBus_PanicWithErrorValue(t *testing.T) {
	bus, sink := newTestBus(t)
	cause := errors.New("wrapped cause")
	require.NoError(t, bus.Register(&fooListener{name: "p", rec: &recorder{}, panicWith: cause}))

	bus.Post(fooEvent{})

	require.Equal(t, 1, sink.Len())
	err := sink.Errors()[0]
	assert.ErrorIs(t, err, ErrHandlerPanic)
	assert.ErrorIs(t, err, cause)
}

func TestBus_DeliverReturnsCombinedFailures(t *testing.T) {
	bus, sink := newTestBus(t)
	rec := &recorder{}
	errA := errors.New("a failed")
	errB := errors.New("b failed")

	require.NoError(t, bus.Register(&fooListener{name: "a", rec: rec, err: errA}))
	require.NoError(t, bus.Register(&fooListener{name: "ok", rec: rec}))
	require.NoError(t, bus.Register(&fooListener{name: "b", rec: rec, err: errB}))

	err := bus.Deliver(context.Background(), fooEvent{})
	require.Error(t, err)
	assert.ErrorIs(t, err, errA)
	assert.ErrorIs(t, err, errB)
	assert.Len(t, multierr.Errors(err), 2)
	assert.Equal(t, []string{"a", "ok", "b"}, rec.Calls())

	// Deliver reports to the sink as well.
	assert.Equal(t, 2, sink.Len())
}

func TestBus_InvalidHandlerSignatures(t *testing.T) {
	tests := []struct {
		name string
		fn   any
	}{
		{"nil func", nil},
		{"typed nil func", (func(fooEvent))(nil)},
		{"not a func", 42},
		{"no parameters", func() {}},
		{"two events", func(fooEvent, barEvent) {}},
		{"context second", func(fooEvent, context.Context) {}},
		{"three parameters", func(context.Context, fooEvent, int) {}},
		{"not an event", func(notAnEvent) {}},
		{"builtin type", func(string) {}},
		{"interface parameter", func(Event) {}},
		{"variadic", func(...fooEvent) {}},
		{"non-error result", func(fooEvent) int { return 0 }},
		{"two results", func(fooEvent) (int, error) { return 0, nil }},
		{"pointer to value event", func(*notAnEvent) {}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bus, _ := newTestBus(t)
			l := &declListener{decls: []Handler{On("bad", tt.fn)}}

			err := bus.Register(l)
			require.ErrorIs(t, err, ErrInvalidHandlerSignature)

			var se *SignatureError
			require.ErrorAs(t, err, &se)
			assert.Equal(t, "bad", se.Handler)
			assert.Equal(t, "*event.declListener", se.Listener)
			assert.NotEmpty(t, se.Reason)

			assert.ErrorIs(t, bus.Unregister(l), ErrInvalidHandlerSignature)
			assert.Zero(t, bus.Stats().Bindings)
		})
	}
}

func TestBus_ValidHandlerForms(t *testing.T) {
	bus, _ := newTestBus(t)
	rec := &recorder{}
	l := &declListener{decls: []Handler{
		On("plain", func(fooEvent) { rec.record("plain") }),
		On("withError", func(fooEvent) error { rec.record("withError"); return nil }),
		On("withContext", func(context.Context, fooEvent) { rec.record("withContext") }),
		On("withBoth", func(context.Context, fooEvent) error { rec.record("withBoth"); return nil }),
		On("pointer", func(*ptrEvent) { rec.record("pointer") }),
	}}

	require.NoError(t, bus.Register(l))
	bus.Post(fooEvent{})
	bus.Post(&ptrEvent{ID: "1"})

	assert.Equal(t, []string{"plain", "withError", "withContext", "withBoth", "pointer"}, rec.Calls())
}

func TestBus_RegisterIsAtomic(t *testing.T) {
	bus, _ := newTestBus(t)
	rec := &recorder{}
	l := &declListener{decls: []Handler{
		On("good", func(fooEvent) { rec.record("good") }),
		On("alsoGood", func(barEvent) { rec.record("alsoGood") }),
		On("bad", func(notAnEvent) {}),
	}}

	err := bus.Register(l)
	require.ErrorIs(t, err, ErrInvalidHandlerSignature)

	bus.Post(fooEvent{})
	bus.Post(barEvent{})
	assert.Empty(t, rec.Calls())
	assert.Empty(t, bus.EventTypes())
}

func TestBus_UnnamedHandlerErrorsUseIndex(t *testing.T) {
	bus, _ := newTestBus(t)
	l := &declListener{decls: []Handler{
		{Fn: func(fooEvent) {}},
		{Fn: func(int) {}},
	}}

	var se *SignatureError
	require.ErrorAs(t, bus.Register(l), &se)
	assert.Equal(t, "handler[1]", se.Handler)
}

func TestBus_InvalidPriority(t *testing.T) {
	bus, _ := newTestBus(t)
	l := &declListener{decls: []Handler{On("h", func(fooEvent) {}, WithPriority(Priority(99)))}}

	err := bus.Register(l)
	require.ErrorIs(t, err, ErrInvalidHandlerSignature)
	assert.Contains(t, err.Error(), ErrInvalidPriority.Error())
}

type mapListener map[string]int

func (mapListener) EventHandlers() []Handler { return nil }

func TestBus_ListenerValidation(t *testing.T) {
	bus, _ := newTestBus(t)

	assert.ErrorIs(t, bus.Register(nil), ErrNilListener)
	assert.ErrorIs(t, bus.Unregister(nil), ErrNilListener)

	var typedNil *fooListener
	assert.ErrorIs(t, bus.Register(typedNil), ErrNilListener)

	assert.ErrorIs(t, bus.Register(mapListener{}), ErrListenerNotComparable)

	// The type is comparable but this value is not.
	boxed := boxListener{tag: []int{1}}
	assert.ErrorIs(t, bus.Register(boxed), ErrListenerNotComparable)
	assert.ErrorIs(t, bus.Unregister(boxed), ErrListenerNotComparable)

	// Comparable values of the same type still register and unregister.
	plain := boxListener{tag: "plain"}
	require.NoError(t, bus.Register(plain))
	assert.NotPanics(t, func() { require.NoError(t, bus.Unregister(plain)) })
	assert.False(t, bus.HasHandlers(fooEvent{}))
}

type boxListener struct {
	tag any
}

func (l boxListener) EventHandlers() []Handler {
	return []Handler{On("onFoo", func(fooEvent) {})}
}

type valueListener struct {
	id  string
	rec *recorder
}

func (l valueListener) EventHandlers() []Handler {
	return []Handler{On("onFoo", func(fooEvent) { l.rec.record(l.id) })}
}

func TestBus_ValueListenersMatchByEquality(t *testing.T) {
	bus, _ := newTestBus(t)
	rec := &recorder{}

	require.NoError(t, bus.Register(valueListener{id: "x", rec: rec}))
	require.NoError(t, bus.Register(valueListener{id: "y", rec: rec}))

	require.NoError(t, bus.Unregister(valueListener{id: "x", rec: rec}))
	bus.Post(fooEvent{})
	assert.Equal(t, []string{"y"}, rec.Calls())
}

func TestBus_ExactTypeRouting(t *testing.T) {
	bus, _ := newTestBus(t)
	rec := &recorder{}
	require.NoError(t, bus.Register(&fooListener{name: "value", rec: rec}))

	bus.Post(&fooEvent{})
	assert.Empty(t, rec.Calls(), "pointer to event type must not match value handler")

	bus.Post(fooEvent{N: 1})
	assert.Equal(t, []string{"value"}, rec.Calls())
}

func TestBus_DuplicateRegistration(t *testing.T) {
	bus, _ := newTestBus(t)
	rec := &recorder{}
	l := &fooListener{name: "dup", rec: rec}

	require.NoError(t, bus.Register(l))
	require.NoError(t, bus.Register(l))
	bus.Post(fooEvent{})
	assert.Equal(t, []string{"dup", "dup"}, rec.Calls())

	require.NoError(t, bus.Unregister(l))
	assert.Zero(t, bus.Stats().Bindings)
}

type ctxKey struct{}

func TestBus_PostContextPassesContext(t *testing.T) {
	bus, _ := newTestBus(t)
	var got any
	l := &declListener{decls: []Handler{
		On("ctx", func(ctx context.Context, _ fooEvent) { got = ctx.Value(ctxKey{}) }),
	}}
	require.NoError(t, bus.Register(l))

	bus.PostContext(context.WithValue(context.Background(), ctxKey{}, "value"), fooEvent{})
	assert.Equal(t, "value", got)

	//nolint:staticcheck // nil context is normalised by the bus
	bus.PostContext(nil, fooEvent{})
	assert.Nil(t, got)
}

func TestBus_ReentrantRegistration(t *testing.T) {
	bus, _ := newTestBus(t)
	rec := &recorder{}
	late := &fooListener{name: "late", rec: rec}

	var registerOnce bool
	early := &declListener{}
	early.decls = []Handler{On("registerLate", func(fooEvent) {
		rec.record("early")
		if !registerOnce {
			registerOnce = true
			require.NoError(t, bus.Register(late))
			require.NoError(t, bus.Unregister(early))
		}
	})}
	require.NoError(t, bus.Register(early))

	bus.Post(fooEvent{})
	assert.Equal(t, []string{"early"}, rec.Calls(), "changes made during dispatch apply to later posts")

	bus.Post(fooEvent{})
	assert.Equal(t, []string{"early", "late"}, rec.Calls())
}

func TestBus_NestedPost(t *testing.T) {
	bus, _ := newTestBus(t)
	rec := &recorder{}
	l := &declListener{decls: []Handler{
		On("foo", func(fooEvent) {
			rec.record("foo")
			bus.Post(barEvent{})
			rec.record("foo-done")
		}),
		On("bar", func(barEvent) { rec.record("bar") }),
	}}
	require.NoError(t, bus.Register(l))

	bus.Post(fooEvent{})
	assert.Equal(t, []string{"foo", "bar", "foo-done"}, rec.Calls())
}

func TestBus_PanickingSinkDoesNotEscape(t *testing.T) {
	bus := NewBus(
		WithLogger(discardLogger()),
		WithErrorSink(SinkFunc(func(context.Context, *HandlerError) { panic("sink") })),
	)
	rec := &recorder{}
	require.NoError(t, bus.Register(&fooListener{name: "bad", rec: rec, err: errors.New("x")}))
	require.NoError(t, bus.Register(&fooListener{name: "good", rec: rec}))

	assert.NotPanics(t, func() { bus.Post(fooEvent{}) })
	assert.Equal(t, []string{"bad", "good"}, rec.Calls())
}

func TestBus_HandlersDescribeBindings(t *testing.T) {
	bus, _ := newTestBus(t)
	l := &fooListener{name: "l", priority: PriorityLow, rec: &recorder{}}
	require.NoError(t, bus.Register(l))
	sub, err := SubscribeFunc(bus, func(fooEvent) {}, WithPriority(PriorityHigh), WithName("audit"))
	require.NoError(t, err)

	infos := bus.Handlers(fooEvent{})
	require.Len(t, infos, 2)

	assert.Equal(t, sub.ID(), infos[0].ID)
	assert.Equal(t, "audit", infos[0].Handler)
	assert.Equal(t, "subscription:"+sub.ID(), infos[0].Listener)
	assert.Equal(t, PriorityHigh, infos[0].Priority)

	assert.Equal(t, "onFoo", infos[1].Handler)
	assert.Equal(t, "*event.fooListener", infos[1].Listener)
	assert.Equal(t, reflect.TypeFor[fooEvent](), infos[1].EventType)
	assert.NotEmpty(t, infos[1].ID)

	assert.Nil(t, bus.Handlers(nil))
	assert.Nil(t, bus.Handlers(barEvent{}))
}

type namedListener struct {
	declListener
	name string
}

func (l *namedListener) ListenerName() string { return l.name }

func TestBus_NamedListener(t *testing.T) {
	bus, collector := newTestBus(t)
	l := &namedListener{
		declListener: declListener{decls: []Handler{
			On("fail", func(fooEvent) error { return errors.New("nope") }),
		}},
		name: "billing",
	}
	require.NoError(t, bus.Register(l))

	infos := bus.Handlers(fooEvent{})
	require.Len(t, infos, 1)
	assert.Equal(t, "billing", infos[0].Listener)

	bus.Post(fooEvent{})
	require.Equal(t, 1, collector.Len())
	assert.Equal(t, "billing", collector.Errors()[0].Listener)

	require.NoError(t, bus.Unregister(l))
	assert.False(t, bus.HasHandlers(fooEvent{}))
}

func TestBus_Reset(t *testing.T) {
	bus, _ := newTestBus(t)
	rec := &recorder{}
	require.NoError(t, bus.Register(&fooListener{name: "a", rec: rec}))
	sub, err := SubscribeFunc(bus, func(barEvent) { rec.record("bar") })
	require.NoError(t, err)

	bus.Reset()
	bus.Post(fooEvent{})
	bus.Post(barEvent{})
	assert.Empty(t, rec.Calls())
	assert.False(t, sub.Active())
	assert.NotPanics(t, sub.Unsubscribe)
	assert.Zero(t, bus.Stats().Bindings)
}

func TestBus_ConcurrentAccess(t *testing.T) {
	bus, _ := newTestBus(t)
	rec := &recorder{}
	stable := &fooListener{name: "stable", priority: PriorityHighest, rec: rec}
	require.NoError(t, bus.Register(stable))

	var g errgroup.Group
	for i := range 8 {
		g.Go(func() error {
			l := &fooListener{name: fmt.Sprintf("worker-%d", i), rec: &recorder{}}
			for range 100 {
				if err := bus.Register(l); err != nil {
					return err
				}
				bus.Post(fooEvent{N: i})
				if err := bus.Unregister(l); err != nil {
					return err
				}
			}
			return nil
		})
		g.Go(func() error {
			for range 100 {
				bus.Post(fooEvent{N: i})
				_ = bus.Handlers(fooEvent{})
				_ = bus.Stats()
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	// Every post reached the stable listener exactly once.
	assert.Len(t, rec.Calls(), 8*100*2)
	assert.Equal(t, 1, bus.Stats().Bindings)
}

func TestBus_ConcurrentSnapshotsAreSorted(t *testing.T) {
	bus, _ := newTestBus(t)

	var g errgroup.Group
	for i := range 4 {
		g.Go(func() error {
			for j := range 50 {
				p := Priority(1 + (i+j)%5)
				if err := bus.Register(&fooListener{name: "x", priority: p, rec: &recorder{}}); err != nil {
					return err
				}
			}
			return nil
		})
	}
	g.Go(func() error {
		for range 200 {
			infos := bus.Handlers(fooEvent{})
			for k := 1; k < len(infos); k++ {
				if infos[k-1].Priority > infos[k].Priority {
					return fmt.Errorf("unsorted snapshot at %d", k)
				}
			}
		}
		return nil
	})
	require.NoError(t, g.Wait())
	assert.Equal(t, 200, bus.Stats().Bindings)
}
