package models

import (
	"errors"
	"fmt"
)

var (
	ErrValidation        = errors.New("validation error")
	ErrEmbeddingService  = errors.New("embedding service error")
	ErrRetrievalService  = errors.New("retrieval service error")
	ErrGenerationService = errors.New("generation service error")
	ErrConfiguration     = errors.New("configuration error")
	ErrRequestTimeout    = errors.New("request timed out")
)

// ServiceError carries the remote status and code of a failed external call.
// It matches both its Kind and the underlying cause with errors.Is.
type ServiceError struct {
	Kind   error
	Status string
	Code   string
	Err    error
}

func (e *ServiceError) Error() string {
	status, code := e.Status, e.Code
	if status == "" {
		status = "unknown"
	}
	if code == "" {
		code = "unknown"
	}
	if e.Err == nil {
		return fmt.Sprintf("%v (status=%s, code=%s)", e.Kind, status, code)
	}
	return fmt.Sprintf("%v (status=%s, code=%s): %v", e.Kind, status, code, e.Err)
}

func (e *ServiceError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func NewEmbeddingError(status, code string, err error) error {
	return &ServiceError{Kind: ErrEmbeddingService, Status: status, Code: code, Err: err}
}

func NewRetrievalError(status, code string, err error) error {
	return &ServiceError{Kind: ErrRetrievalService, Status: status, Code: code, Err: err}
}

func NewGenerationError(status, code string, err error) error {
	return &ServiceError{Kind: ErrGenerationService, Status: status, Code: code, Err: err}
}

// Validationf builds an ErrValidation error with a caller-facing message
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// Configurationf builds an ErrConfiguration error
func Configurationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConfiguration, fmt.Sprintf(format, args...))
}
