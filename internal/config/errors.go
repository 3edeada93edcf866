package config

import (
	"errors"
	"fmt"
)

// Errors returned by configuration operations.
var (
	// ErrFileNotFound indicates the configuration file doesn't exist.
	ErrFileNotFound = errors.New("config file not found")

	// ErrUnsupportedFormat indicates a file extension with no decoder.
	ErrUnsupportedFormat = errors.New("unsupported config format")

	// ErrValidationFailed indicates a value outside its allowed set.
	ErrValidationFailed = errors.New("validation failed")
)

// ParseError represents an error while parsing a configuration file or
// environment variable.
type ParseError struct {
	// Path is the file path or variable name that failed to parse.
	Path string
	// Message describes the parse error.
	Message string
	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error in %s: %s", e.Path, e.Message)
}

// Unwrap returns the underlying error.
func (e *ParseError) Unwrap() error {
	return e.Err
}

// ValidationError reports an invalid setting.
type ValidationError struct {
	// Setting is the dotted setting path.
	Setting string
	// Value is the rejected value.
	Value any
	// Allowed lists accepted values, if the set is closed.
	Allowed []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if len(e.Allowed) > 0 {
		return fmt.Sprintf("invalid %s %v (must be one of %v)", e.Setting, e.Value, e.Allowed)
	}
	return fmt.Sprintf("invalid %s %v", e.Setting, e.Value)
}

// Is allows errors.Is to match ValidationError with ErrValidationFailed.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidationFailed
}
