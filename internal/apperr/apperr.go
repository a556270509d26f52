// Package apperr defines the error taxonomy shared by the domain packages.
// Errors carry a human-readable message and match their kind through errors.Is.
package apperr

import "errors"

var (
	ErrBadRequest   = errors.New("bad request")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
)

// Error is a classified domain error.
type Error struct {
	kind error
	msg  string
}

func (e *Error) Error() string { return e.msg }

func (e *Error) Unwrap() error { return e.kind }

// Kind returns the sentinel this error is classified as.
func (e *Error) Kind() error { return e.kind }

func newError(kind error, msg string) *Error {
	if msg == "" {
		msg = kind.Error()
	}
	return &Error{kind: kind, msg: msg}
}

func BadRequest(msg string) error   { return newError(ErrBadRequest, msg) }
func Unauthorized(msg string) error { return newError(ErrUnauthorized, msg) }
func Forbidden(msg string) error    { return newError(ErrForbidden, msg) }
func NotFound(msg string) error     { return newError(ErrNotFound, msg) }
func Conflict(msg string) error     { return newError(ErrConflict, msg) }

// Message returns the client-facing message for err and whether err is classified.
// Unclassified errors yield false and must not be shown to clients.
func Message(err error) (string, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.msg, true
	}
	for _, kind := range []error{ErrBadRequest, ErrUnauthorized, ErrForbidden, ErrNotFound, ErrConflict} {
		if errors.Is(err, kind) {
			return kind.Error(), true
		}
	}
	return "", false
}
