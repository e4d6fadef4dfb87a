// Package apperr defines the closed taxonomy of error classes used across
// the service.  Every error that crosses a package boundary is wrapped in
// one of these so the HTTP layer and the logger can treat them uniformly
// without string-matching messages.
package apperr

import (
	"fmt"
	"net/http"

	"github.com/pkg/errors"
)

// Code identifies one of the error classes from the error-handling design.
type Code string

const (
	CodeConfig          Code = "config"           // fatal, abort startup
	CodeTransport       Code = "transport"        // recoverable, STOMP layer
	CodeDecode          Code = "decode"           // per-message, dropped
	CodeEnrichmentMiss  Code = "enrichment_miss"  // expected, non-fatal
	CodeStore           Code = "store"            // recoverable read / abort write
	CodeRequest         Code = "request"          // reportable, 4xx
	CodeServer          Code = "server"           // reportable, 5xx
)

// Error wraps an underlying cause with a stable Code and, for Request
// errors, an HTTP status.  The message is safe to return to clients;
// internal detail belongs in the wrapped Cause, logged but never sent.
type Error struct {
	Code    Code
	Message string
	Status  int   // only meaningful for CodeRequest / CodeServer
	Cause   error // original error, for logging only
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds a plain Error with no wrapped cause.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap attaches code and message to an existing error, capturing a stack
// trace on the cause via pkg/errors so a %+v log of Cause points at the
// originating call site rather than just the message chain.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: errors.WithStack(cause)}
}

// Request builds a client-facing error with an explicit HTTP status.
func Request(status int, message string) *Error {
	return &Error{Code: CodeRequest, Message: message, Status: status}
}

// BadRequest is shorthand for Request(400, …).
func BadRequest(message string) *Error { return Request(http.StatusBadRequest, message) }

// NotFound is shorthand for Request(404, …).
func NotFound(message string) *Error { return Request(http.StatusNotFound, message) }

// TooManyRequests is shorthand for Request(429, …).
func TooManyRequests(message string) *Error { return Request(http.StatusTooManyRequests, message) }

// Server builds an opaque 500 whose detail is only ever logged, never
// returned to the caller.
func Server(message string, cause error) *Error {
	return &Error{Code: CodeServer, Message: message, Status: http.StatusInternalServerError, Cause: cause}
}

// HTTPStatus reports the status code an Error should produce, defaulting
// to 500 for anything not already a *Error.
func HTTPStatus(err error) int {
	if e, ok := err.(*Error); ok && e.Status != 0 {
		return e.Status
	}
	return http.StatusInternalServerError
}
