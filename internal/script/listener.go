package script

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"reflect"
	"sync"
	"time"

	"github.com/tidwall/gjson"
	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/evbus/internal/event"
)

var (
	contextType = reflect.TypeFor[context.Context]()
	errorType   = reflect.TypeFor[error]()
)

// Poster accepts events posted by scripts. *event.Bus implements it.
type Poster interface {
	PostContext(ctx context.Context, ev event.Event)
}

// Option configures a Listener.
type Option func(*Listener)

// WithLogger sets the logger used for print and evbus.log.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Listener) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithTimeout bounds each handler invocation. Zero means no limit beyond
// the caller's context.
func WithTimeout(d time.Duration) Option {
	return func(l *Listener) {
		l.timeout = d
	}
}

// WithPoster enables evbus.post.
func WithPoster(p Poster) Option {
	return func(l *Listener) {
		l.poster = p
	}
}

// Listener is an event.Listener whose handlers are Lua functions.
type Listener struct {
	name    string
	catalog *event.Catalog
	logger  *slog.Logger
	timeout time.Duration
	poster  Poster

	mu       sync.Mutex
	L        *lua.LState
	handlers []event.Handler
	pending  []event.Event
	loaded   bool
	closed   bool
}

// LoadFile loads the script at path.
func LoadFile(path string, catalog *event.Catalog, opts ...Option) (*Listener, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading script: %w", err)
	}
	return Load(path, string(src), catalog, opts...)
}

// Load runs src and collects the handlers it declares. Event names passed
// to evbus.on are resolved through catalog.
func Load(name, src string, catalog *event.Catalog, opts ...Option) (*Listener, error) {
	l := &Listener{
		name:    name,
		catalog: catalog,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.catalog == nil {
		l.catalog = event.NewCatalog()
	}
	l.logger = l.logger.With("script", name)

	l.L = newSandbox(l.logger)
	l.L.SetGlobal("evbus", l.module())

	if err := l.L.DoString(src); err != nil {
		l.L.Close()
		return nil, &Error{Script: name, Err: err}
	}

	l.loaded = true
	queued := l.pending
	l.pending = nil
	l.flush(context.Background(), queued)

	l.logger.Debug("script loaded", "handlers", len(l.handlers))
	return l, nil
}

// ListenerName returns the script name prefixed with "lua:".
func (l *Listener) ListenerName() string {
	return "lua:" + l.name
}

// EventHandlers returns the handlers declared by the script.
func (l *Listener) EventHandlers() []event.Handler {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]event.Handler, len(l.handlers))
	copy(out, l.handlers)
	return out
}

// Close releases the Lua state. Handlers invoked afterwards fail with
// ErrClosed.
func (l *Listener) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	l.L.Close()
	return nil
}

// module builds the evbus table exposed to scripts.
func (l *Listener) module() *lua.LTable {
	mod := l.L.NewTable()
	l.L.SetFuncs(mod, map[string]lua.LGFunction{
		"on":   l.luaOn,
		"post": l.luaPost,
		"log":  l.luaLog,
	})
	return mod
}

// luaOn implements evbus.on(name, [priority], fn).
func (l *Listener) luaOn(L *lua.LState) int {
	name := L.CheckString(1)
	if l.loaded {
		L.RaiseError("evbus.on is only allowed while the script loads")
	}

	priority := event.PriorityNormal
	fnArg := 2
	if L.GetTop() >= 3 {
		fnArg = 3
		switch p := L.Get(2).(type) {
		case lua.LNumber:
			priority = event.Priority(int(p))
		case lua.LString:
			parsed, err := event.ParsePriority(string(p))
			if err != nil {
				L.ArgError(2, err.Error())
			}
			priority = parsed
		case *lua.LNilType:
		default:
			L.ArgError(2, "priority must be a number or a name")
		}
		if !priority.Valid() {
			L.ArgError(2, fmt.Sprintf("invalid priority %d", priority))
		}
	}
	fn := L.CheckFunction(fnArg)

	et, err := l.catalog.Lookup(name)
	if err != nil {
		L.RaiseError("%v", err)
	}

	l.handlers = append(l.handlers, event.On(
		fmt.Sprintf("%s#%d", name, len(l.handlers)+1),
		l.makeHandler(et, name, fn),
		event.WithPriority(priority),
	))
	return 0
}

// makeHandler builds a func(context.Context, E) error for event type et
// that calls fn.
func (l *Listener) makeHandler(et reflect.Type, name string, fn *lua.LFunction) any {
	ft := reflect.FuncOf([]reflect.Type{contextType, et}, []reflect.Type{errorType}, false)
	return reflect.MakeFunc(ft, func(args []reflect.Value) []reflect.Value {
		ctx, _ := args[0].Interface().(context.Context)
		ev, _ := args[1].Interface().(event.Event)

		out := reflect.New(errorType).Elem()
		if err := l.call(ctx, name, fn, ev); err != nil {
			out.Set(reflect.ValueOf(err))
		}
		return []reflect.Value{out}
	}).Interface()
}

// call runs one Lua handler and posts whatever it queued.
func (l *Listener) call(ctx context.Context, name string, fn *lua.LFunction, ev event.Event) error {
	if ctx == nil {
		ctx = context.Background()
	}

	queued, err := l.run(ctx, name, fn, ev)
	l.flush(ctx, queued)
	return err
}

func (l *Listener) run(ctx context.Context, name string, fn *lua.LFunction, ev event.Event) ([]event.Event, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return nil, &Error{Script: l.name, Event: name, Err: fmt.Errorf("encoding event: %w", err)}
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil, ErrClosed
	}

	if l.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}
	l.L.SetContext(ctx)
	defer l.L.RemoveContext()

	arg := jsonToLua(l.L, gjson.ParseBytes(payload))
	err = l.L.CallByParam(lua.P{Fn: fn, NRet: 1, Protect: true}, arg, lua.LString(name))

	queued := l.pending
	l.pending = nil

	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
		}
		return queued, &Error{Script: l.name, Event: name, Err: err}
	}

	ret := l.L.Get(-1)
	l.L.Pop(1)
	return queued, resultError(ret)
}

// resultError maps a handler's return value to an error.
func resultError(ret lua.LValue) error {
	switch v := ret.(type) {
	case *lua.LNilType:
		return nil
	case lua.LBool:
		if v {
			return nil
		}
		return errors.New("handler returned false")
	case lua.LString:
		return errors.New(string(v))
	default:
		return fmt.Errorf("handler returned %s", ret.Type())
	}
}

// luaPost implements evbus.post(name, table).
func (l *Listener) luaPost(L *lua.LState) int {
	name := L.CheckString(1)
	fields := L.OptTable(2, L.NewTable())

	if l.poster == nil {
		L.RaiseError("%v", ErrNoPoster)
	}
	ev, err := l.decode(name, fields)
	if err != nil {
		L.RaiseError("%v", err)
	}
	l.pending = append(l.pending, ev)
	return 0
}

// decode builds an event of the type registered under name from a table.
func (l *Listener) decode(name string, fields *lua.LTable) (event.Event, error) {
	et, err := l.catalog.Lookup(name)
	if err != nil {
		return nil, err
	}
	data, err := tableToJSON(fields)
	if err != nil {
		return nil, fmt.Errorf("encoding %s: %w", name, err)
	}

	var v reflect.Value
	if et.Kind() == reflect.Pointer {
		v = reflect.New(et.Elem())
		err = json.Unmarshal(data, v.Interface())
	} else {
		ptr := reflect.New(et)
		err = json.Unmarshal(data, ptr.Interface())
		v = ptr.Elem()
	}
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", name, err)
	}

	ev, ok := v.Interface().(event.Event)
	if !ok {
		return nil, fmt.Errorf("%s does not implement event.Event", et)
	}
	return ev, nil
}

func (l *Listener) flush(ctx context.Context, queued []event.Event) {
	for _, ev := range queued {
		l.poster.PostContext(ctx, ev)
	}
}

// luaLog implements evbus.log(msg, [level]).
func (l *Listener) luaLog(L *lua.LState) int {
	msg := L.CheckString(1)
	level := slog.LevelInfo
	if s := L.OptString(2, ""); s != "" {
		if err := level.UnmarshalText([]byte(s)); err != nil {
			L.ArgError(2, err.Error())
		}
	}
	ctx := L.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	l.logger.Log(ctx, level, msg)
	return 0
}
