// Package apperr holds the error kinds shared by the auth service layers.
// Handlers translate them into HTTP status codes; lower layers wrap them
// with %w or build an *Error carrying a client-facing message.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrUnauthenticated   = errors.New("could not validate credentials")
	ErrInactive          = errors.New("inactive user")
	ErrConflict          = errors.New("conflict")
	ErrNotFound          = errors.New("not found")
	ErrDuplicateIdentity = errors.New("duplicate identity")
	ErrInvalidInput      = errors.New("invalid input")
	ErrUpstream          = errors.New("upstream provider error")
	ErrUnavailable       = errors.New("service unavailable")
)

// Error pairs an error kind with a message safe to show to clients.
type Error struct {
	Kind    error
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

// Unwrap exposes both the kind and the cause to errors.Is / errors.As.
func (e *Error) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Kind, e.Err}
	}
	return []error{e.Kind}
}

func newError(kind error, cause error, format string, args ...interface{}) error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: cause}
}

func Conflict(format string, args ...interface{}) error {
	return newError(ErrConflict, nil, format, args...)
}

func NotFound(format string, args ...interface{}) error {
	return newError(ErrNotFound, nil, format, args...)
}

func Duplicate(format string, args ...interface{}) error {
	return newError(ErrDuplicateIdentity, nil, format, args...)
}

func Invalid(format string, args ...interface{}) error {
	return newError(ErrInvalidInput, nil, format, args...)
}

// Upstream marks err as a failure of an external identity provider.
func Upstream(err error, format string, args ...interface{}) error {
	return newError(ErrUpstream, err, format, args...)
}

// Unavailable marks err as an outage of a backing store.
func Unavailable(err error, format string, args ...interface{}) error {
	return newError(ErrUnavailable, err, format, args...)
}

// HTTPStatus maps an error kind to the status code reported to clients.
func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrDuplicateIdentity),
		errors.Is(err, ErrInvalidInput),
		errors.Is(err, ErrInactive):
		return http.StatusBadRequest
	case errors.Is(err, ErrUpstream):
		return http.StatusBadGateway
	case errors.Is(err, ErrUnavailable):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// Message returns the client-facing text for err. Unknown errors map to a
// generic message so internal details never leak.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	for _, kind := range []error{ErrUnauthenticated, ErrInactive, ErrConflict, ErrNotFound, ErrDuplicateIdentity, ErrInvalidInput, ErrUpstream, ErrUnavailable} {
		if errors.Is(err, kind) {
			return kind.Error()
		}
	}
	return "internal server error"
}
