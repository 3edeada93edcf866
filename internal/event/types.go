package event

import (
	"fmt"
	"reflect"
	"strings"
	"sync/atomic"
)

// Event is implemented by every value that can be posted on a Bus.
// The dynamic type of the value is its routing key; EventName is used for
// logging, telemetry and script lookups.
type Event interface {
	EventName() string
}

// Priority determines handler execution order.
// Lower values execute first.
type Priority int

const (
	// priorityUnset is the zero value; bindings treat it as PriorityNormal.
	priorityUnset Priority = iota

	// PriorityHighest runs before every other handler.
	PriorityHighest

	// PriorityHigh is for handlers other handlers depend on.
	PriorityHigh

	// PriorityNormal is the default priority.
	PriorityNormal

	// PriorityLow is for secondary consumers.
	PriorityLow

	// PriorityLowest is for auditing and metrics that should observe the final state.
	PriorityLowest
)

var priorityNames = map[Priority]string{
	PriorityHighest: "highest",
	PriorityHigh:    "high",
	PriorityNormal:  "normal",
	PriorityLow:     "low",
	PriorityLowest:  "lowest",
}

// String returns a human-readable priority name.
func (p Priority) String() string {
	if p == priorityUnset {
		return priorityNames[PriorityNormal]
	}
	if name, ok := priorityNames[p]; ok {
		return name
	}
	return fmt.Sprintf("priority(%d)", int(p))
}

// Valid reports whether p is one of the defined priorities.
// The zero value is valid and means PriorityNormal.
func (p Priority) Valid() bool {
	return p >= priorityUnset && p <= PriorityLowest
}

// normalize maps the zero value to PriorityNormal.
func (p Priority) normalize() Priority {
	if p == priorityUnset {
		return PriorityNormal
	}
	return p
}

// ParsePriority parses a priority name such as "high" or "LOWEST".
func ParsePriority(s string) (Priority, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	if name == "" {
		return PriorityNormal, nil
	}
	for p, n := range priorityNames {
		if n == name {
			return p, nil
		}
	}
	return priorityUnset, fmt.Errorf("%w: %q", ErrInvalidPriority, s)
}

// HandlerInfo describes one bound handler.
type HandlerInfo struct {
	// ID uniquely identifies the binding.
	ID string

	// EventType is the routing type of the binding.
	EventType reflect.Type

	// Listener is the type name of the owning listener.
	Listener string

	// Handler is the declared handler name.
	Handler string

	// Priority is the effective priority.
	Priority Priority
}

// Stats contains event bus statistics.
type Stats struct {
	// EventsPosted is the total number of non-nil events posted.
	EventsPosted uint64

	// EventsUnhandled is the number of posted events that had no handlers.
	EventsUnhandled uint64

	// HandlersInvoked is the total number of handler invocations.
	HandlersInvoked uint64

	// HandlerErrors is the number of invocations that returned an error.
	HandlerErrors uint64

	// HandlerPanics is the number of invocations that panicked.
	HandlerPanics uint64

	// Bindings is the current number of bound handlers.
	Bindings int

	// EventTypes is the current number of event types with handlers.
	EventTypes int
}

type counters struct {
	posted    atomic.Uint64
	unhandled atomic.Uint64
	invoked   atomic.Uint64
	errors    atomic.Uint64
	panics    atomic.Uint64
}

// nameOf returns ev.EventName(), falling back to the type name if the
// method panics (for example on a nil pointer receiver).
func nameOf(ev Event) (name string) {
	defer func() {
		if r := recover(); r != nil {
			name = reflect.TypeOf(ev).String()
		}
	}()
	name = ev.EventName()
	if name == "" {
		name = reflect.TypeOf(ev).String()
	}
	return name
}
