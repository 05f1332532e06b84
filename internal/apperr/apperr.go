// Package apperr defines the error kinds returned across operation boundaries.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for callers that need to branch on it.
type Kind string

const (
	Validation Kind = "VALIDATION_ERROR"
	NotFound   Kind = "NOT_FOUND"
	Conflict   Kind = "CONFLICT"
	Forbidden  Kind = "FORBIDDEN"
	Internal   Kind = "INTERNAL_ERROR"
)

// Error carries a Kind, a caller-safe message, and an optional cause.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same Kind, so errors.Is(err, apperr.ErrConflict)
// works regardless of message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Message == ""
}

// Sentinels for errors.Is.
var (
	ErrValidation = &Error{Kind: Validation}
	ErrNotFound   = &Error{Kind: NotFound}
	ErrConflict   = &Error{Kind: Conflict}
	ErrForbidden  = &Error{Kind: Forbidden}
	ErrInternal   = &Error{Kind: Internal}
)

func newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Validationf(format string, args ...any) *Error { return newf(Validation, format, args...) }
func NotFoundf(format string, args ...any) *Error   { return newf(NotFound, format, args...) }
func Conflictf(format string, args ...any) *Error   { return newf(Conflict, format, args...) }
func Forbiddenf(format string, args ...any) *Error  { return newf(Forbidden, format, args...) }

// Internalf wraps an underlying store failure. The message stays safe to show;
// the cause is kept for logs.
func Internalf(err error, format string, args ...any) *Error {
	e := newf(Internal, format, args...)
	e.Err = err
	return e
}

// KindOf returns the Kind of err, or Internal for errors that carry none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// PublicMessage returns the message safe to hand to a client.
func PublicMessage(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Kind != Internal {
		return e.Message
	}
	return "internal error"
}
