// Package apperr defines the typed errors returned by the service layer and
// their mapping onto HTTP statuses.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Standard error codes
const (
	CodeValidation    = "VALIDATION_ERROR"
	CodeNotFound      = "RESOURCE_NOT_FOUND"
	CodePersistence   = "PERSISTENCE_ERROR"
	CodeBadRequest    = "BAD_REQUEST"
	CodeRouteNotFound = "ROUTE_NOT_FOUND"
	CodeInternal      = "INTERNAL_ERROR"
	CodeUnavailable   = "SERVICE_UNAVAILABLE"
	CodeRateLimited   = "RATE_LIMIT_EXCEEDED"
)

// Error is an application error with an HTTP status and a stable code.
type Error struct {
	Code       string            `json:"code"`
	Message    string            `json:"message"`
	Details    map[string]string `json:"details,omitempty"`
	HTTPStatus int               `json:"-"`
	Err        error             `json:"-"`
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// WithDetail adds a single detail to the error
func (e *Error) WithDetail(key, value string) *Error {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// New creates an Error.
func New(code, message string, status int) *Error {
	return &Error{Code: code, Message: message, HTTPStatus: status}
}

// Validation is returned for bad input detected before any write.
func Validation(format string, args ...any) *Error {
	return New(CodeValidation, fmt.Sprintf(format, args...), http.StatusBadRequest)
}

// NotFound is returned when a referenced entity is absent.
func NotFound(resource string) *Error {
	return New(CodeNotFound, resource+" not found", http.StatusNotFound)
}

// NotFoundWithID is NotFound with the missing id attached.
func NotFoundWithID(resource, id string) *Error {
	return NotFound(resource).WithDetail("id", id)
}

// Persistence wraps a store failure. The cause text is kept in the message.
func Persistence(op string, err error) *Error {
	e := New(CodePersistence, fmt.Sprintf("%s: %v", op, err), http.StatusInternalServerError)
	e.Err = err
	return e
}

// BadRequest is used for malformed request bodies.
func BadRequest(message string) *Error {
	return New(CodeBadRequest, message, http.StatusBadRequest)
}

// As extracts an *Error from err.
func As(err error) (*Error, bool) {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// From converts any error into an *Error; unknown errors become internal.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	if appErr, ok := As(err); ok {
		return appErr
	}
	e := New(CodeInternal, "an internal error occurred", http.StatusInternalServerError)
	e.Err = err
	return e
}

// IsNotFound reports whether err is a not-found Error.
func IsNotFound(err error) bool {
	appErr, ok := As(err)
	return ok && appErr.Code == CodeNotFound
}

// IsValidation reports whether err is a validation Error.
func IsValidation(err error) bool {
	appErr, ok := As(err)
	return ok && appErr.Code == CodeValidation
}
