// Package event provides the in-process event bus for evbus.
//
// The bus decouples producers of domain events from their consumers. Listeners
// declare the handlers they want bound, each for exactly one event type and at a
// chosen priority; the bus keeps one ordered handler list per event type and fans
// every posted event out to that list on the poster's goroutine.
//
// # Events
//
// Any type implementing Event can be posted. Routing uses the exact dynamic
// type of the posted value: a handler bound to UserCreated is not invoked for
// *UserCreated, and no interface matching is performed.
//
//	type UserCreated struct{ ID string }
//
//	func (UserCreated) EventName() string { return "user.created" }
//
// # Listeners
//
// A listener is any comparable value implementing Listener. Its EventHandlers
// method returns the handler declarations; each declaration carries a function
// whose single parameter (optionally preceded by a context.Context) is the event
// type it handles:
//
//	func (m *Mailer) EventHandlers() []event.Handler {
//	    return []event.Handler{
//	        event.On("welcome", m.welcome, event.WithPriority(event.PriorityHigh)),
//	    }
//	}
//
//	func (m *Mailer) welcome(ev UserCreated) error { ... }
//
//	bus := event.NewBus()
//	if err := bus.Register(mailer); err != nil { ... }
//	bus.Post(UserCreated{ID: "42"})
//	bus.Unregister(mailer)
//
// Register validates every declaration before binding any of them, so a listener
// with one malformed handler is rejected as a whole with an error matching
// ErrInvalidHandlerSignature.
//
// Listeners are named by their type in logs and errors unless they implement
// NamedListener.
//
// # Typed Subscriptions
//
// Callers that do not need a listener object can bind a single function with
// compile-time type checking. The returned Subscription removes the binding:
//
//	sub, err := event.Subscribe(bus, func(ctx context.Context, ev UserCreated) error {
//	    return nil
//	}, event.WithPriority(event.PriorityLow))
//	defer sub.Unsubscribe()
//
// # Priority Ordering
//
// Handlers run from PriorityHighest to PriorityLowest. Handlers of equal
// priority run in the order they were bound.
//
// # Failure Isolation
//
// Post never returns an error and never panics. A handler that returns an error
// or panics is reported to the bus's ErrorSink as a *HandlerError and the
// remaining handlers still run. Deliver offers the same guarantee but also
// returns the combined failures to the caller.
//
// # Thread Safety
//
// The Bus is safe for concurrent use. Each per-type handler list is replaced
// rather than mutated, so Post dispatches from a stable snapshot without holding
// a lock; handlers may register, unregister or post re-entrantly. Changes made
// while a Post is running take effect for later posts.
package event
