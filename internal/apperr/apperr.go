package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error by how callers should react to it
type Kind string

const (
	// KindAcquisition is a search or fetch provider failure
	KindAcquisition Kind = "acquisition"
	// KindValidation is a malformed request, rejected before any task is spawned
	KindValidation Kind = "validation"
	// KindExecution is a failure inside a running scan or monitor task
	KindExecution Kind = "execution"
	// KindNotFound is a lookup against an unknown scan or monitor id
	KindNotFound Kind = "not_found"
)

// Error is the typed error carried across package boundaries
type Error struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
	Err     error  `json:"-"`
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

// Is matches any *Error of the same kind, so errors.Is(err, &Error{Kind: KindNotFound}) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Message == "" || t.Message == e.Message)
}

// Validation builds a validation error
func Validation(format string, args ...interface{}) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// NotFound builds a not-found error for the given entity kind and id
func NotFound(entity, id string) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf("%s not found: %s", entity, id)}
}

// Execution wraps a task failure
func Execution(err error) *Error {
	return &Error{Kind: KindExecution, Message: "execution failed", Err: err}
}

// Acquisition wraps a provider failure
func Acquisition(message string, err error) *Error {
	return &Error{Kind: KindAcquisition, Message: message, Err: err}
}

// KindOf returns the kind of the first *Error in the chain, or "" when there is none
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// HTTPStatus maps an error to the response status the request surface should use
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
