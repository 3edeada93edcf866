package event

import (
	"context"
	"reflect"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
)

// Bus routes posted events to the handlers bound for their exact type.
// The zero value is not usable; create buses with NewBus.
type Bus struct {
	registry  *registry
	config    busConfig
	telemetry *telemetry
	stats     counters
}

// NewBus creates a new event bus with the given options.
func NewBus(opts ...BusOption) *Bus {
	config := defaultBusConfig()
	for _, opt := range opts {
		opt(&config)
	}
	if config.sink == nil {
		config.sink = NewLogSink(config.logger)
	}

	return &Bus{
		registry:  newRegistry(),
		config:    config,
		telemetry: newTelemetry(config.meterProvider, config.tracerProvider),
	}
}

// Register binds every handler declared by l.
//
// All declarations are validated first; if any is invalid, Register returns
// an error matching ErrInvalidHandlerSignature and binds nothing. Registering
// the same listener twice binds its handlers twice.
func (b *Bus) Register(l Listener) error {
	decls, err := compileHandlers(l)
	if err != nil {
		return err
	}

	name := listenerName(l)
	bindings := make([]*binding, len(decls))
	for i, d := range decls {
		bindings[i] = &binding{
			id:        uuid.NewString(),
			owner:     l,
			listener:  name,
			handler:   d.name,
			eventType: d.eventType,
			priority:  d.priority,
			invoke:    d.invoke,
		}
	}
	b.registry.add(bindings)

	b.config.logger.Debug("listener registered",
		"listener", name,
		"handlers", len(bindings),
	)
	return nil
}

// Unregister removes every binding owned by l for the event types its
// handlers declare. Unregistering a listener that has no bindings is a no-op.
// Declarations are validated exactly as in Register.
func (b *Bus) Unregister(l Listener) error {
	decls, err := compileHandlers(l)
	if err != nil {
		return err
	}

	types := make([]reflect.Type, len(decls))
	for i, d := range decls {
		types[i] = d.eventType
	}
	removed := b.registry.remove(l, types)

	if removed > 0 {
		b.config.logger.Debug("listener unregistered",
			"listener", listenerName(l),
			"handlers", removed,
		)
	}
	return nil
}

// Post delivers ev to every handler bound to its exact type, in priority
// order, on the calling goroutine. Handler errors and panics are reported to
// the error sink and never stop delivery to the remaining handlers.
// Posting nil is a no-op.
func (b *Bus) Post(ev Event) {
	b.dispatch(context.Background(), ev)
}

// PostContext is Post with a caller-supplied context, which is passed to
// handlers that accept one. The bus itself does not cancel dispatch.
func (b *Bus) PostContext(ctx context.Context, ev Event) {
	b.dispatch(ctx, ev)
}

// Deliver is PostContext that also returns the combined handler failures.
// Every handler is still invoked regardless of earlier failures.
func (b *Bus) Deliver(ctx context.Context, ev Event) error {
	return combine(b.dispatch(ctx, ev))
}

func (b *Bus) dispatch(ctx context.Context, ev Event) []*HandlerError {
	if ev == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}

	bindings := b.registry.snapshot(reflect.TypeOf(ev))
	b.stats.posted.Add(1)
	if len(bindings) == 0 {
		b.stats.unhandled.Add(1)
		return nil
	}

	name := nameOf(ev)
	ctx, span := b.telemetry.startPost(ctx, name, len(bindings))
	defer span.End()

	var failures []*HandlerError
	for _, bd := range bindings {
		if herr := b.invoke(ctx, name, bd, ev); herr != nil {
			failures = append(failures, herr)
			b.report(ctx, herr)
		}
	}
	return failures
}

// invoke runs one binding and converts its failure, if any.
func (b *Bus) invoke(ctx context.Context, name string, bd *binding, ev Event) *HandlerError {
	start := time.Now()
	err := call(ctx, bd, ev)
	elapsed := time.Since(start)

	b.stats.invoked.Add(1)
	if b.config.slowHandler > 0 && elapsed > b.config.slowHandler {
		b.config.logger.WarnContext(ctx, "slow event handler",
			"event", name,
			"listener", bd.listener,
			"handler", bd.handler,
			"elapsed", elapsed,
		)
	}

	var herr *HandlerError
	if err != nil {
		herr = &HandlerError{
			Event:     name,
			BindingID: bd.id,
			Listener:  bd.listener,
			Handler:   bd.handler,
			Priority:  bd.priority,
			Err:       err,
		}
		if herr.Panicked() {
			b.stats.panics.Add(1)
		} else {
			b.stats.errors.Add(1)
		}
	}

	b.telemetry.recordInvocation(ctx, name, bd, elapsed, herr)
	return herr
}

// call executes a binding, converting a panic into a *PanicError.
func call(ctx context.Context, bd *binding, ev Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	return bd.invoke(ctx, ev)
}

// report hands a failure to the sink. A panicking sink must not break Post.
func (b *Bus) report(ctx context.Context, herr *HandlerError) {
	defer func() {
		if r := recover(); r != nil {
			b.config.logger.ErrorContext(ctx, "error sink panicked",
				"handler", herr.Handler,
				"panic", r,
			)
		}
	}()
	b.config.sink.Report(ctx, herr)
}

// Handlers returns the bindings that Post would invoke for ev, in order.
func (b *Bus) Handlers(ev Event) []HandlerInfo {
	if ev == nil {
		return nil
	}
	return b.HandlersFor(reflect.TypeOf(ev))
}

// HandlersFor returns the bindings for event type t, in dispatch order.
func (b *Bus) HandlersFor(t reflect.Type) []HandlerInfo {
	bindings := b.registry.snapshot(t)
	if len(bindings) == 0 {
		return nil
	}
	out := make([]HandlerInfo, len(bindings))
	for i, bd := range bindings {
		out[i] = bd.info()
	}
	return out
}

// HasHandlers reports whether any handler is bound to ev's type.
func (b *Bus) HasHandlers(ev Event) bool {
	if ev == nil {
		return false
	}
	return len(b.registry.snapshot(reflect.TypeOf(ev))) > 0
}

// EventTypes returns the event types that currently have handlers, sorted by name.
func (b *Bus) EventTypes() []reflect.Type {
	return b.registry.types()
}

// Reset removes every binding. Calling Unsubscribe on an outstanding
// subscription afterwards is harmless.
func (b *Bus) Reset() {
	b.registry.clear()
}

// Stats returns current bus statistics.
func (b *Bus) Stats() Stats {
	bindings, types := b.registry.len()
	return Stats{
		EventsPosted:    b.stats.posted.Load(),
		EventsUnhandled: b.stats.unhandled.Load(),
		HandlersInvoked: b.stats.invoked.Load(),
		HandlerErrors:   b.stats.errors.Load(),
		HandlerPanics:   b.stats.panics.Load(),
		Bindings:        bindings,
		EventTypes:      types,
	}
}
