// Package apperr defines the error taxonomy shared by services, storage and controllers.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind int

const (
	KindInternal Kind = iota
	KindValidationFailed
	KindUnauthenticated
	KindInvalidToken
	KindExpiredToken
	KindAccountDisabled
	KindForbidden
	KindNotFound
	KindConflict
	KindInvalidTransition
	KindUpstreamStoreUnavailable
)

// Title is the short label written to the "error" field of responses.
func (k Kind) Title() string {
	switch k {
	case KindValidationFailed:
		return "Validation failed"
	case KindUnauthenticated:
		return "Authentication failed"
	case KindInvalidToken:
		return "Invalid token"
	case KindExpiredToken:
		return "Token expired"
	case KindAccountDisabled:
		return "Account disabled"
	case KindForbidden:
		return "Access denied"
	case KindNotFound:
		return "Not found"
	case KindConflict:
		return "Conflict"
	case KindInvalidTransition:
		return "Invalid status transition"
	case KindUpstreamStoreUnavailable:
		return "Service unavailable"
	default:
		return "Internal server error"
	}
}

func (k Kind) HTTPStatus() int {
	switch k {
	case KindValidationFailed:
		return http.StatusBadRequest
	case KindUnauthenticated, KindInvalidToken, KindExpiredToken, KindAccountDisabled:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict, KindInvalidTransition:
		return http.StatusConflict
	case KindUpstreamStoreUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// FieldError is one field-level validation problem.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type Error struct {
	Kind    Kind
	Message string
	Details []FieldError
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func Validation(message string, details ...FieldError) *Error {
	return &Error{Kind: KindValidationFailed, Message: message, Details: details}
}

func NotFound(message string) *Error { return New(KindNotFound, message) }

func Forbidden(message string) *Error { return New(KindForbidden, message) }

func Conflict(message string) *Error { return New(KindConflict, message) }

func Internal(message string, err error) *Error { return Wrap(KindInternal, message, err) }

// KindOf reports the kind of err, or KindInternal when err is not an *Error.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

func Is(err error, kind Kind) bool {
	if err == nil {
		return false
	}
	return KindOf(err) == kind
}
