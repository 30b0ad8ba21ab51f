package core

import (
	"fmt"
	"net/http"
)

// ErrorKind classifies failures into the categories callers are allowed to see.
type ErrorKind string

const (
	KindInvalidInput        ErrorKind = "INVALID_INPUT"
	KindServerMisconfigured ErrorKind = "SERVER_MISCONFIGURED"
	KindNotFound            ErrorKind = "NOT_FOUND"
	KindUpstreamUnavailable ErrorKind = "UPSTREAM_UNAVAILABLE"
	KindConflict            ErrorKind = "CONFLICT"
)

// Error carries a user-safe message and an HTTP status per kind. The
// underlying cause is kept for operator logs only and never serialized.
type Error struct {
	Kind    ErrorKind
	Message string
	status  int
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

func (e *Error) HTTPStatus() int {
	if e.status != 0 {
		return e.status
	}
	return http.StatusInternalServerError
}

// WithStatus overrides the default status for the kind. The chat endpoint
// reports upstream failures as 500 while the ABN endpoint uses 502.
func (e *Error) WithStatus(code int) *Error {
	e.status = code
	return e
}

func NewInvalidInput(message string) *Error {
	return &Error{Kind: KindInvalidInput, Message: message, status: http.StatusBadRequest}
}

func NewMisconfigured(message string) *Error {
	return &Error{Kind: KindServerMisconfigured, Message: message, status: http.StatusInternalServerError}
}

func NewNotFound(message string) *Error {
	return &Error{Kind: KindNotFound, Message: message, status: http.StatusNotFound}
}

func NewUpstream(message string, cause error) *Error {
	return &Error{Kind: KindUpstreamUnavailable, Message: message, status: http.StatusBadGateway, cause: cause}
}

func NewConflict(message string) *Error {
	return &Error{Kind: KindConflict, Message: message, status: http.StatusConflict}
}
