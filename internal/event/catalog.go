package event

import (
	"fmt"
	"reflect"
	"sort"
	"sync"
)

// Catalog maps stable event names to event types. It lets code that only
// knows an event by name, such as scripts, bind handlers to the right type.
// It is thread-safe for concurrent access.
type Catalog struct {
	mu     sync.RWMutex
	byName map[string]reflect.Type
}

// NewCatalog creates an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{
		byName: make(map[string]reflect.Type),
	}
}

// Define adds E to the catalog under the name returned by its zero value's
// EventName. Defining the same type twice is a no-op; defining a different
// type under a taken name fails with ErrDuplicateEvent.
func Define[E Event](c *Catalog) error {
	var zero E
	t := reflect.TypeFor[E]()
	if t.Kind() == reflect.Interface {
		return fmt.Errorf("%w: %s is an interface", ErrInvalidHandlerSignature, t)
	}
	return c.add(nameOf(zero), t)
}

// MustDefine is Define that panics on error. It is intended for package
// initialisation of fixed event sets.
func MustDefine[E Event](c *Catalog) {
	if err := Define[E](c); err != nil {
		panic(err)
	}
}

func (c *Catalog) add(name string, t reflect.Type) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.byName[name]; ok {
		if existing == t {
			return nil
		}
		return fmt.Errorf("%w: %q is already %s", ErrDuplicateEvent, name, existing)
	}
	c.byName[name] = t
	return nil
}

// Lookup returns the event type registered under name.
func (c *Catalog) Lookup(name string) (reflect.Type, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	t, ok := c.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, name)
	}
	return t, nil
}

// Names returns all defined event names in sorted order.
func (c *Catalog) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, 0, len(c.byName))
	for n := range c.byName {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of defined events.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.byName)
}
