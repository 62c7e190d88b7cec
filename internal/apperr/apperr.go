// Package apperr defines the error kinds surfaced to API clients.
package apperr

import (
	"errors"
	"net/http"
)

// Kind classifies an error for transport mapping.
type Kind int

const (
	Internal Kind = iota
	Validation
	Conflict
	Unauthorized
	NotFound
)

// GenericMessage is returned to clients for errors that carry no safe message.
const GenericMessage = "something went wrong"

func (k Kind) String() string {
	switch k {
	case Validation:
		return "validation"
	case Conflict:
		return "conflict"
	case Unauthorized:
		return "unauthorized"
	case NotFound:
		return "not_found"
	default:
		return "internal"
	}
}

// Status returns the HTTP status code for the kind.
func (k Kind) Status() int {
	switch k {
	case Validation:
		return http.StatusBadRequest
	case Conflict:
		return http.StatusConflict
	case Unauthorized:
		return http.StatusUnauthorized
	case NotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// Error is a classified error with a client-safe message.
// Err holds the underlying cause and is never shown to clients.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func ValidationError(message string) *Error {
	return New(Validation, message)
}

func ConflictError(message string) *Error {
	return New(Conflict, message)
}

func UnauthorizedError(message string) *Error {
	return New(Unauthorized, message)
}

func NotFoundError(message string) *Error {
	return New(NotFound, message)
}

// InternalError wraps err as an Internal error with the given message.
func InternalError(message string, err error) *Error {
	return Wrap(Internal, message, err)
}

// As extracts an *Error from err. Unclassified errors become Internal
// with the generic message.
func As(err error) *Error {
	if err == nil {
		return nil
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return &Error{Kind: Internal, Message: GenericMessage, Err: err}
}

// KindOf reports the kind of err, defaulting to Internal.
func KindOf(err error) Kind {
	return As(err).Kind
}

// Status reports the HTTP status for err, defaulting to 500.
func Status(err error) int {
	return As(err).Kind.Status()
}

// Is reports whether err is an *Error of the given kind.
func Is(err error, kind Kind) bool {
	var appErr *Error
	return errors.As(err, &appErr) && appErr.Kind == kind
}
