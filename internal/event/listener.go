package event

import (
	"context"
	"fmt"
	"reflect"
	"runtime"
	"strings"
)

// Listener is implemented by values that contribute handlers to a Bus.
// EventHandlers is called on every Register and Unregister and must return
// the same declarations each time.
type Listener interface {
	EventHandlers() []Handler
}

// NamedListener is a Listener that supplies its own name for logs,
// errors and HandlerInfo. Other listeners are named by their type.
type NamedListener interface {
	Listener
	ListenerName() string
}

// Handler declares one event handler of a listener.
//
// Fn must be a function of one of the forms
//
//	func(E)
//	func(E) error
//	func(context.Context, E)
//	func(context.Context, E) error
//
// where E is a concrete type implementing Event.
type Handler struct {
	// Name identifies the handler in errors and logs. Defaults to the
	// function's symbol name.
	Name string

	// Fn is the handler function.
	Fn any

	// Priority orders the handler; the zero value means PriorityNormal.
	Priority Priority
}

// HandlerOption configures a handler declaration or subscription.
type HandlerOption func(*Handler)

// WithPriority sets the handler priority.
func WithPriority(p Priority) HandlerOption {
	return func(h *Handler) {
		h.Priority = p
	}
}

// WithName sets the handler name.
func WithName(name string) HandlerOption {
	return func(h *Handler) {
		h.Name = name
	}
}

// On declares a handler named name.
func On(name string, fn any, opts ...HandlerOption) Handler {
	h := Handler{Name: name, Fn: fn}
	for _, opt := range opts {
		opt(&h)
	}
	return h
}

// invoker calls a compiled handler.
type invoker func(ctx context.Context, ev Event) error

var (
	eventType   = reflect.TypeFor[Event]()
	contextType = reflect.TypeFor[context.Context]()
	errorType   = reflect.TypeFor[error]()
)

// compiled is a validated handler declaration.
type compiled struct {
	name      string
	eventType reflect.Type
	priority  Priority
	invoke    invoker
}

// compileHandlers validates every declaration of l. Nothing is returned unless
// all declarations are valid.
func compileHandlers(l Listener) ([]compiled, error) {
	if l == nil {
		return nil, ErrNilListener
	}
	// Checks the dynamic value: interface fields holding slices or maps
	// make an otherwise comparable type panic on ==.
	lv := reflect.ValueOf(l)
	if !lv.Comparable() {
		return nil, fmt.Errorf("%w: %s", ErrListenerNotComparable, lv.Type())
	}
	if lv.Kind() == reflect.Pointer && lv.IsNil() {
		return nil, ErrNilListener
	}

	listener := listenerName(l)
	decls := l.EventHandlers()
	out := make([]compiled, 0, len(decls))
	for i, h := range decls {
		c, reason := compileHandler(h)
		if reason != "" {
			name := h.Name
			if name == "" {
				name = fmt.Sprintf("handler[%d]", i)
			}
			return nil, &SignatureError{Listener: listener, Handler: name, Reason: reason}
		}
		out = append(out, c)
	}
	return out, nil
}

// compileHandler checks one declaration and builds its invoker.
// A non-empty reason means the declaration is invalid.
func compileHandler(h Handler) (compiled, string) {
	if !h.Priority.Valid() {
		return compiled{}, fmt.Sprintf("%v: %d", ErrInvalidPriority, int(h.Priority))
	}
	if h.Fn == nil {
		return compiled{}, "handler function is nil"
	}

	fv := reflect.ValueOf(h.Fn)
	ft := fv.Type()
	if ft.Kind() != reflect.Func {
		return compiled{}, fmt.Sprintf("%s is not a function", ft)
	}
	if fv.IsNil() {
		return compiled{}, "handler function is nil"
	}
	if ft.IsVariadic() {
		return compiled{}, "variadic handlers are not supported"
	}

	withContext := false
	switch ft.NumIn() {
	case 1:
	case 2:
		if ft.In(0) != contextType {
			return compiled{}, fmt.Sprintf("first of two parameters must be context.Context, got %s", ft.In(0))
		}
		withContext = true
	default:
		return compiled{}, fmt.Sprintf("takes %d parameters, want exactly one event parameter", ft.NumIn())
	}

	et := ft.In(ft.NumIn() - 1)
	if et.Kind() == reflect.Interface {
		return compiled{}, fmt.Sprintf("parameter type %s is an interface, want a concrete event type", et)
	}
	if !et.Implements(eventType) {
		return compiled{}, fmt.Sprintf("parameter type %s does not implement event.Event", et)
	}

	returnsError := false
	switch ft.NumOut() {
	case 0:
	case 1:
		if ft.Out(0) != errorType {
			return compiled{}, fmt.Sprintf("result type %s must be error", ft.Out(0))
		}
		returnsError = true
	default:
		return compiled{}, fmt.Sprintf("returns %d values, want at most an error", ft.NumOut())
	}

	name := h.Name
	if name == "" {
		name = funcName(fv)
	}

	return compiled{
		name:      name,
		eventType: et,
		priority:  h.Priority.normalize(),
		invoke:    reflectInvoker(fv, withContext, returnsError),
	}, ""
}

func reflectInvoker(fv reflect.Value, withContext, returnsError bool) invoker {
	return func(ctx context.Context, ev Event) error {
		var args []reflect.Value
		if withContext {
			args = []reflect.Value{reflect.ValueOf(ctx), reflect.ValueOf(ev)}
		} else {
			args = []reflect.Value{reflect.ValueOf(ev)}
		}
		out := fv.Call(args)
		if !returnsError {
			return nil
		}
		err, _ := out[0].Interface().(error)
		return err
	}
}

// funcName returns the short symbol name of a function value.
func funcName(fv reflect.Value) string {
	fn := runtime.FuncForPC(fv.Pointer())
	if fn == nil {
		return "func"
	}
	name := fn.Name()
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	return strings.TrimSuffix(name, "-fm")
}

// listenerName returns the type name used for l in errors and logs.
func listenerName(owner any) string {
	switch l := owner.(type) {
	case *Subscription:
		return "subscription:" + l.id
	case NamedListener:
		if name := l.ListenerName(); name != "" {
			return name
		}
	}
	return fmt.Sprintf("%T", owner)
}
