package event

import (
	"errors"
	"fmt"
)

// Sentinel errors for the event bus.
var (
	// ErrInvalidHandlerSignature is returned when a declared handler does not
	// take exactly one event parameter.
	ErrInvalidHandlerSignature = errors.New("invalid handler signature")

	// ErrNilListener is returned when a nil listener is registered or unregistered.
	ErrNilListener = errors.New("listener cannot be nil")

	// ErrListenerNotComparable is returned for listeners that cannot be matched
	// by equality on unregister (maps, slices, funcs).
	ErrListenerNotComparable = errors.New("listener type is not comparable")

	// ErrInvalidPriority is returned for priorities outside the defined range.
	ErrInvalidPriority = errors.New("invalid priority")

	// ErrNilHandler is returned when a nil handler function is subscribed.
	ErrNilHandler = errors.New("handler cannot be nil")

	// ErrHandlerPanic is matched by PanicError.
	ErrHandlerPanic = errors.New("handler panicked")

	// ErrUnknownEvent is returned by Catalog lookups for undefined names.
	ErrUnknownEvent = errors.New("unknown event")

	// ErrDuplicateEvent is returned when two types are defined under one name.
	ErrDuplicateEvent = errors.New("duplicate event name")
)

// SignatureError identifies a handler declaration that cannot be bound.
type SignatureError struct {
	// Listener is the type name of the listener declaring the handler.
	Listener string

	// Handler is the declared handler name.
	Handler string

	// Reason describes what is wrong with the declaration.
	Reason string
}

// Error implements the error interface.
func (e *SignatureError) Error() string {
	return fmt.Sprintf("invalid handler signature %s.%s: %s", e.Listener, e.Handler, e.Reason)
}

// Is allows errors.Is to match SignatureError with ErrInvalidHandlerSignature.
func (e *SignatureError) Is(target error) bool {
	return target == ErrInvalidHandlerSignature
}

// HandlerError reports a handler that failed while processing an event.
type HandlerError struct {
	// Event is the EventName of the event being dispatched.
	Event string

	// BindingID identifies the failed binding.
	BindingID string

	// Listener is the type name of the listener owning the handler.
	Listener string

	// Handler is the declared handler name.
	Handler string

	// Priority is the binding priority.
	Priority Priority

	// Err is the returned error or a *PanicError.
	Err error
}

// Error implements the error interface.
func (e *HandlerError) Error() string {
	return fmt.Sprintf("handler %s.%s failed on %s: %v", e.Listener, e.Handler, e.Event, e.Err)
}

// Unwrap returns the underlying error.
func (e *HandlerError) Unwrap() error {
	return e.Err
}

// Panicked reports whether the handler panicked rather than returning an error.
func (e *HandlerError) Panicked() bool {
	var pe *PanicError
	return errors.As(e.Err, &pe)
}

// PanicError wraps a panic value as an error.
type PanicError struct {
	// Value is the value passed to panic().
	Value any

	// Stack is the stack trace at the time of the panic.
	Stack []byte
}

// Error implements the error interface.
func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// Is allows errors.Is to match PanicError with ErrHandlerPanic.
func (e *PanicError) Is(target error) bool {
	return target == ErrHandlerPanic
}

// Unwrap exposes the panic value when it is itself an error.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}
