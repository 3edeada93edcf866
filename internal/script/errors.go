package script

import (
	"errors"
	"fmt"
)

// Errors returned by script operations.
var (
	// ErrClosed indicates the script's Lua state has been closed.
	ErrClosed = errors.New("script closed")

	// ErrNoPoster indicates evbus.post was called without a bus.
	ErrNoPoster = errors.New("script has no bus to post to")
)

// Error reports a failure inside a Lua script.
type Error struct {
	// Script is the script name, usually its file path.
	Script string
	// Event is the event being handled, empty at load time.
	Event string
	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Event == "" {
		return fmt.Sprintf("script %s: %v", e.Script, e.Err)
	}
	return fmt.Sprintf("script %s on %s: %v", e.Script, e.Event, e.Err)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}
