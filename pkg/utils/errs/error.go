package errs

import (
	"errors"
	"fmt"
	"strings"
)

// Kinds of failure the booking core reports. Outer layers match them with errors.Is.
var (
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")
	ErrValidation = errors.New("validation failed")
	ErrStore      = errors.New("store failure")
	// ErrDuplicate is returned by stores on a uniqueness violation.
	ErrDuplicate = errors.New("duplicate")
)

// CustomError represents a custom error with additional arguments, a kind and wrapping capability.
type CustomError struct {
	message string
	args    map[string]interface{}
	kind    error
	wrapped error
}

// New creates a new CustomError instance.
func New(message string) *CustomError {
	return &CustomError{
		message: message,
		args:    make(map[string]interface{}),
	}
}

// Error implements the error interface.
func (e *CustomError) Error() string {
	return e.fullErrorString()
}

// Arg adds an argument to the error.
func (e *CustomError) Arg(key string, value interface{}) *CustomError {
	e.args[key] = value
	return e
}

// Kind tags the error with one of the package sentinels.
func (e *CustomError) Kind(kind error) *CustomError {
	e.kind = kind
	return e
}

// Wrap wraps another error (can be of the same type or a standard error).
func (e *CustomError) Wrap(err error) *CustomError {
	if err != nil {
		e.wrapped = err
	}
	return e
}

// Unwrap exposes both the kind and the wrapped error to errors.Is / errors.As.
func (e *CustomError) Unwrap() []error {
	out := make([]error, 0, 2)
	if e.kind != nil {
		out = append(out, e.kind)
	}
	if e.wrapped != nil {
		out = append(out, e.wrapped)
	}
	return out
}

// fullErrorString builds the error string in the format
// "{msg: <message>, kind: <kind>, args: <args>, wrappedError: {<wrapped error>}}".
func (e *CustomError) fullErrorString() string {
	var builder strings.Builder

	builder.WriteString("{msg: ")
	builder.WriteString(e.message)

	if e.kind != nil {
		builder.WriteString(", kind: ")
		builder.WriteString(e.kind.Error())
	}

	if len(e.args) > 0 {
		builder.WriteString(fmt.Sprintf(", args: %v", e.args))
	}

	if e.wrapped != nil {
		var wrappedErr *CustomError
		if errors.As(e.wrapped, &wrappedErr) && wrappedErr == e.wrapped {
			builder.WriteString(fmt.Sprintf(", wrappedError: %s", wrappedErr.fullErrorString()))
		} else {
			builder.WriteString(fmt.Sprintf(", wrappedError: {%v}", e.wrapped.Error()))
		}
	}

	builder.WriteString("}")

	return builder.String()
}

// NotFound is a shorthand for a not-found error about entity with the given id.
func NotFound(entity string, id int64) *CustomError {
	return New(entity+" not found").Arg(entity+"_id", id).Kind(ErrNotFound)
}

// Validation is a shorthand for rejecting malformed input.
func Validation(message string) *CustomError {
	return New(message).Kind(ErrValidation)
}

// Store wraps a persistence failure.
func Store(op string, err error) *CustomError {
	return New(op).Kind(ErrStore).Wrap(err)
}
