package common

import (
	"errors"
	"fmt"
	"net/http"
)

// AppError represents application-specific errors
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Lifecycle error taxonomy. Every store/engine operation fails with exactly
// one of these; none of them is ever swallowed inside the core.
var (
	// ErrNotFound: unknown invoice id.
	ErrNotFound = errors.New("invoice not found")
	// ErrInvalidTransition: illegal state-machine transition attempted.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrInvalidState: field correction attempted outside needs_review.
	ErrInvalidState = errors.New("operation not allowed in current status")
	// ErrExtractionFailed: external extraction service failure (recoverable,
	// invoice stays processing and may be retried).
	ErrExtractionFailed = errors.New("extraction failed")
	// ErrExtractionCancelled: a late extraction result arrived for a
	// cancelled invoice and was dropped.
	ErrExtractionCancelled = errors.New("extraction cancelled")
	// ErrConflict: resolving an already-terminal invoice in a conflicting way.
	ErrConflict = errors.New("conflicting resolution")
	// ErrDuplicateUpload: the same file name is already mid-flight.
	ErrDuplicateUpload = errors.New("duplicate upload in flight")
	// ErrInvalidInput: malformed request data.
	ErrInvalidInput = errors.New("invalid input")
)

// Error constructors
func NewAppError(code, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// HTTPStatus maps a core error onto the status code the API surface returns.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrConflict), errors.Is(err, ErrDuplicateUpload):
		return http.StatusConflict
	case errors.Is(err, ErrInvalidTransition), errors.Is(err, ErrInvalidState):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrExtractionFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
