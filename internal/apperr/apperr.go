// Package apperr defines the error taxonomy shared by the service layers.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var ErrJobInProgress = errors.New("job already in progress")

// ValidationError carries every violated rule, not just the first.
type ValidationError struct {
	Message string
	Errors  []string
}

func (e *ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Message, strings.Join(e.Errors, "; "))
}

func NewValidation(message string, errs ...string) *ValidationError {
	return &ValidationError{Message: message, Errors: errs}
}

type NotFoundError struct {
	Resource string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found", e.Resource)
}

func NotFound(format string, args ...any) *NotFoundError {
	return &NotFoundError{Resource: fmt.Sprintf(format, args...)}
}

// ProcessingError is a failed provider call. It is scoped to a single unit of work.
type ProcessingError struct {
	Op  string
	Err error
}

func (e *ProcessingError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ProcessingError) Unwrap() error {
	return e.Err
}

func Processing(op string, err error) *ProcessingError {
	return &ProcessingError{Op: op, Err: err}
}

type InternalError struct {
	Err error
}

func (e *InternalError) Error() string {
	return fmt.Sprintf("internal error: %v", e.Err)
}

func (e *InternalError) Unwrap() error {
	return e.Err
}

func Internal(err error) *InternalError {
	return &InternalError{Err: err}
}

// StatusCode maps an error onto its HTTP equivalent.
func StatusCode(err error) int {
	var (
		validation *ValidationError
		notFound   *NotFoundError
		processing *ProcessingError
	)
	switch {
	case err == nil:
		return http.StatusOK
	case errors.As(err, &validation):
		return http.StatusBadRequest
	case errors.As(err, &notFound):
		return http.StatusNotFound
	case errors.Is(err, ErrJobInProgress):
		return http.StatusConflict
	case errors.As(err, &processing):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
