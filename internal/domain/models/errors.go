package models

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidRange is returned for malformed query parameters.
	ErrInvalidRange = errors.New("invalid range")

	// ErrStorageUnavailable signals a persistence I/O failure. Callers on the
	// drain path must retry rather than drop candles.
	ErrStorageUnavailable = errors.New("storage unavailable")
)

// ValidationError rejects a malformed tick before aggregation.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid tick: %s %s", e.Field, e.Message)
}

// NewValidationError creates a per-field validation error.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// IsValidation reports whether err is a tick validation failure.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
