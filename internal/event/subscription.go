package event

import (
	"context"
	"fmt"
	"reflect"
	"sync/atomic"

	"github.com/google/uuid"
)

// Subscription is a handle to a single handler bound with Subscribe.
type Subscription struct {
	id        string
	bus       *Bus
	eventType reflect.Type
	handler   string
	priority  Priority
	cancelled atomic.Bool
}

// ID returns the unique subscription identifier.
func (s *Subscription) ID() string {
	return s.id
}

// EventType returns the routed event type.
func (s *Subscription) EventType() reflect.Type {
	return s.eventType
}

// Priority returns the effective handler priority.
func (s *Subscription) Priority() Priority {
	return s.priority
}

// Active reports whether the subscription is still bound. It is false after
// Unsubscribe and after the bus is Reset.
func (s *Subscription) Active() bool {
	return !s.cancelled.Load() && s.bus.registry.has(s, s.eventType)
}

// Unsubscribe removes the handler from the bus. Calling it more than once
// is a no-op.
func (s *Subscription) Unsubscribe() {
	if s.cancelled.Swap(true) {
		return
	}
	s.bus.registry.remove(s, []reflect.Type{s.eventType})
	s.bus.config.logger.Debug("subscription cancelled",
		"subscription", s.id,
		"event_type", s.eventType.String(),
	)
}

// Subscribe binds fn to events of type E. The type parameter is the routing
// key, so only interface type arguments can fail validation.
func Subscribe[E Event](b *Bus, fn func(context.Context, E) error, opts ...HandlerOption) (*Subscription, error) {
	if fn == nil {
		return nil, ErrNilHandler
	}
	return b.subscribe(reflect.TypeFor[E](), func(ctx context.Context, ev Event) error {
		return fn(ctx, ev.(E))
	}, opts)
}

// SubscribeFunc binds a handler that cannot fail to events of type E.
func SubscribeFunc[E Event](b *Bus, fn func(E), opts ...HandlerOption) (*Subscription, error) {
	if fn == nil {
		return nil, ErrNilHandler
	}
	return b.subscribe(reflect.TypeFor[E](), func(_ context.Context, ev Event) error {
		fn(ev.(E))
		return nil
	}, opts)
}

func (b *Bus) subscribe(et reflect.Type, inv invoker, opts []HandlerOption) (*Subscription, error) {
	h := Handler{}
	for _, opt := range opts {
		opt(&h)
	}

	id := uuid.NewString()
	name := h.Name
	if name == "" {
		name = "subscribe[" + et.String() + "]"
	}

	if et.Kind() == reflect.Interface {
		return nil, &SignatureError{
			Listener: "subscription:" + id,
			Handler:  name,
			Reason:   fmt.Sprintf("parameter type %s is an interface, want a concrete event type", et),
		}
	}
	if !h.Priority.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidPriority, int(h.Priority))
	}

	s := &Subscription{
		id:        id,
		bus:       b,
		eventType: et,
		handler:   name,
		priority:  h.Priority.normalize(),
	}
	b.registry.add([]*binding{{
		id:        id,
		owner:     s,
		listener:  listenerName(s),
		handler:   name,
		eventType: et,
		priority:  s.priority,
		invoke:    inv,
	}})

	b.config.logger.Debug("subscription added",
		"subscription", id,
		"event_type", et.String(),
		"priority", s.priority.String(),
	)
	return s, nil
}
