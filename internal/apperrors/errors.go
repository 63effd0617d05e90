package apperrors

import (
	"errors"
	"fmt"
)

// Code classifies an error for the transport layer without it having to know
// which service produced it.
type Code string

const (
	CodeValidation Code = "VALIDATION"
	CodeNotFound   Code = "NOT_FOUND"
	CodeIntegrity  Code = "INTEGRITY"
	CodeConflict   Code = "CONFLICT"
	CodeForbidden  Code = "FORBIDDEN"
	CodeInternal   Code = "INTERNAL"
)

type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

func Wrap(code Code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// Validation builds a malformed-input error. These surface to the caller
// unchanged and are never retried.
func Validation(format string, args ...any) *Error {
	return New(CodeValidation, fmt.Sprintf(format, args...))
}

func NotFound(what string) *Error {
	return New(CodeNotFound, what+" not found")
}

// Integrity marks a consistency violation between two stores, e.g. a
// participant row whose user record is gone. Retrying will not fix a dangling
// reference, so callers surface it as-is.
func Integrity(format string, args ...any) *Error {
	return New(CodeIntegrity, fmt.Sprintf(format, args...))
}

func Forbidden(message string) *Error {
	return New(CodeForbidden, message)
}

// Is reports whether err carries the given code anywhere in its chain.
func Is(err error, code Code) bool {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}
