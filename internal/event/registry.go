package event

import (
	"reflect"
	"slices"
	"sync"
)

// binding is one handler bound to one event type. Bindings are immutable;
// only their membership in a registry list changes.
type binding struct {
	id        string
	owner     any
	listener  string
	handler   string
	eventType reflect.Type
	priority  Priority
	invoke    invoker
}

func (b *binding) info() HandlerInfo {
	return HandlerInfo{
		ID:        b.id,
		EventType: b.eventType,
		Listener:  b.listener,
		Handler:   b.handler,
		Priority:  b.priority,
	}
}

// registry maps event types to priority-ordered binding lists.
// It is thread-safe for concurrent access.
//
// Lists are copy-on-write: a stored slice is never modified after it is
// published, so readers may iterate a snapshot without holding the lock.
type registry struct {
	mu       sync.RWMutex
	handlers map[reflect.Type][]*binding
	count    int
}

func newRegistry() *registry {
	return &registry{
		handlers: make(map[reflect.Type][]*binding),
	}
}

// add binds all bs under a single lock. Each binding is appended to its
// type's list, which is then stable-sorted by priority so equal priorities
// keep insertion order.
func (r *registry) add(bs []*binding) {
	if len(bs) == 0 {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	next := make(map[reflect.Type][]*binding)
	for _, b := range bs {
		list, ok := next[b.eventType]
		if !ok {
			old := r.handlers[b.eventType]
			list = make([]*binding, len(old), len(old)+len(bs))
			copy(list, old)
		}
		next[b.eventType] = append(list, b)
	}

	for t, list := range next {
		slices.SortStableFunc(list, func(a, b *binding) int {
			return int(a.priority) - int(b.priority)
		})
		r.handlers[t] = list
	}
	r.count += len(bs)
}

// remove drops every binding owned by owner from the lists of the given
// types. Types whose list becomes empty are deleted. Returns the number of
// bindings removed.
func (r *registry) remove(owner any, types []reflect.Type) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	seen := make(map[reflect.Type]bool, len(types))
	for _, t := range types {
		if seen[t] {
			continue
		}
		seen[t] = true

		old, ok := r.handlers[t]
		if !ok {
			continue
		}

		kept := make([]*binding, 0, len(old))
		for _, b := range old {
			if b.owner == owner {
				continue
			}
			kept = append(kept, b)
		}
		if len(kept) == len(old) {
			continue
		}

		removed += len(old) - len(kept)
		if len(kept) == 0 {
			delete(r.handlers, t)
		} else {
			r.handlers[t] = kept
		}
	}

	r.count -= removed
	return removed
}

// snapshot returns the current list for t. The result must not be modified.
func (r *registry) snapshot(t reflect.Type) []*binding {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.handlers[t]
}

// has reports whether any binding of type t is owned by owner.
func (r *registry) has(owner any, t reflect.Type) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, b := range r.handlers[t] {
		if b.owner == owner {
			return true
		}
	}
	return false
}

// types returns all event types that currently have bindings.
func (r *registry) types() []reflect.Type {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.handlers) == 0 {
		return nil
	}

	types := make([]reflect.Type, 0, len(r.handlers))
	for t := range r.handlers {
		types = append(types, t)
	}
	slices.SortFunc(types, func(a, b reflect.Type) int {
		switch {
		case a.String() < b.String():
			return -1
		case a.String() > b.String():
			return 1
		}
		return 0
	})
	return types
}

// len returns the number of bindings and event types.
func (r *registry) len() (bindings, types int) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.count, len(r.handlers)
}

// clear removes all bindings.
func (r *registry) clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.handlers = make(map[reflect.Type][]*binding)
	r.count = 0
}
