// Package errors maps failures onto API error categories and their HTTP statuses.
package errors

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/pscheid92/hoodpulse/internal/domain"
)

// ErrorType is the category reported to clients and used as a metric label.
type ErrorType string

const (
	TypeValidation ErrorType = "validation" // 400
	TypeNotFound   ErrorType = "not_found"  // 404
	TypeConflict   ErrorType = "conflict"   // 409
	TypeInternal   ErrorType = "internal"   // 500
	TypeExternal   ErrorType = "external"   // 502
)

// Error is a categorized error with optional context for logs and responses.
type Error struct {
	Type    ErrorType
	Message string
	Cause   error
	Context map[string]any
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func (e *Error) HTTPStatus() int {
	switch e.Type {
	case TypeValidation:
		return http.StatusBadRequest
	case TypeNotFound:
		return http.StatusNotFound
	case TypeConflict:
		return http.StatusConflict
	case TypeExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func newError(t ErrorType, message string, cause error) *Error {
	return &Error{Type: t, Message: message, Cause: cause, Context: make(map[string]any)}
}

func ValidationError(message string) *Error {
	return newError(TypeValidation, message, nil)
}

func NotFoundError(message string) *Error {
	return newError(TypeNotFound, message, nil)
}

func ConflictError(message string, cause error) *Error {
	return newError(TypeConflict, message, cause)
}

func InternalError(message string, cause error) *Error {
	return newError(TypeInternal, message, cause)
}

func ExternalError(message string, cause error) *Error {
	return newError(TypeExternal, message, cause)
}

// WithContext adds a field to the error (chainable).
func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// ErrorResponse is the JSON body sent to clients.
type ErrorResponse struct {
	Error   string         `json:"error"`
	Type    ErrorType      `json:"type"`
	Context map[string]any `json:"context,omitempty"`
}

func (e *Error) ToResponse() ErrorResponse {
	return ErrorResponse{
		Error:   e.Message,
		Type:    e.Type,
		Context: e.Context,
	}
}

// AsStructuredError returns err unchanged when it already is an *Error,
// categorizes known domain errors, and treats everything else as internal.
func AsStructuredError(err error) *Error {
	if err == nil {
		return nil
	}

	var structuredErr *Error
	if errors.As(err, &structuredErr) {
		return structuredErr
	}

	switch {
	case errors.Is(err, domain.ErrInvalidNeighborhood):
		return newError(TypeValidation, domain.ErrInvalidNeighborhood.Error(), err)
	case errors.Is(err, domain.ErrCacheEntryNotFound),
		errors.Is(err, domain.ErrReputationNotFound),
		errors.Is(err, domain.ErrUnknownSource):
		return newError(TypeNotFound, "not found", err)
	case errors.Is(err, domain.ErrRefreshInProgress):
		return newError(TypeConflict, domain.ErrRefreshInProgress.Error(), err)
	case errors.Is(err, domain.ErrCrawlFailed), errors.Is(err, domain.ErrNoPosts):
		return newError(TypeExternal, "upstream sources unavailable", err)
	default:
		return InternalError("internal server error", err)
	}
}
