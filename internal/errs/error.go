package errs

import (
	"errors"
	"net/http"
)

// Error is the structured error raised by services. It carries the HTTP
// status and the client-facing message; Err keeps the underlying cause for
// logs and errors.Is matching.
type Error struct {
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// New builds an Error with an explicit status.
func New(status int, msg string, cause error) *Error {
	return &Error{Status: status, Message: msg, Err: cause}
}

// BadRequest reports invalid client input.
func BadRequest(msg string) *Error { return New(http.StatusBadRequest, msg, ErrValidation) }

// Unauthorized reports an authentication failure.
func Unauthorized(msg string) *Error { return New(http.StatusUnauthorized, msg, ErrUnauthorized) }

// Conflict reports a uniqueness violation.
func Conflict(msg string) *Error { return New(http.StatusConflict, msg, ErrAlreadyExists) }

// NotFound reports a missing entity.
func NotFound(msg string) *Error { return New(http.StatusNotFound, msg, ErrNotFound) }

// Internal reports an unexpected store or upload failure.
func Internal(msg string, cause error) *Error {
	return New(http.StatusInternalServerError, msg, cause)
}

// StatusOf resolves the HTTP status for any error: the status of a wrapped
// *Error wins, then known sentinels, then 500.
func StatusOf(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.Status
	}
	switch {
	case errors.Is(err, ErrValidation), errors.Is(err, ErrUpload):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// MessageOf returns the client-facing message for err. Unknown errors are
// reported generically so internals never leak.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	switch StatusOf(err) {
	case http.StatusBadRequest:
		return "bad request"
	case http.StatusUnauthorized:
		return "unauthorized request"
	case http.StatusNotFound:
		return "not found"
	case http.StatusConflict:
		return "already exists"
	case http.StatusTooManyRequests:
		return "too many login attempts, try again later"
	default:
		return "internal server error"
	}
}
