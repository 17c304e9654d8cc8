package errors

import (
	"fmt"
)

// ErrorType represents different categories of errors
type ErrorType string

const (
	ErrorTypeValidation    ErrorType = "validation"
	ErrorTypeDecode        ErrorType = "decode"
	ErrorTypeNotReady      ErrorType = "not_ready"
	ErrorTypeEnrichment    ErrorType = "enrichment"
	ErrorTypeConfiguration ErrorType = "configuration"
	ErrorTypeInternal      ErrorType = "internal"
)

// AppError represents a structured application error
type AppError struct {
	Type    ErrorType `json:"type"`
	Message string    `json:"message"`
	Details string    `json:"details,omitempty"`
	Cause   error     `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// NewValidationError creates a new validation error
func NewValidationError(message string, cause error) *AppError {
	return &AppError{
		Type:    ErrorTypeValidation,
		Message: message,
		Cause:   cause,
	}
}

// NewDecodeError creates a new image decode/IO error
func NewDecodeError(message string, cause error) *AppError {
	return &AppError{
		Type:    ErrorTypeDecode,
		Message: message,
		Cause:   cause,
	}
}

// NewNotReadyError creates an error indicating a matcher's backing
// index or template set failed to load
func NewNotReadyError(message string, cause error) *AppError {
	return &AppError{
		Type:    ErrorTypeNotReady,
		Message: message,
		Cause:   cause,
	}
}

// NewEnrichmentError creates a new enrichment lookup error. Enrichment
// errors are always non-fatal to matching.
func NewEnrichmentError(message string, cause error) *AppError {
	return &AppError{
		Type:    ErrorTypeEnrichment,
		Message: message,
		Cause:   cause,
	}
}

// NewConfigurationError creates a new configuration error. Configuration
// errors are fatal: the engine cannot produce region-aware results
// without a resolvable template.
func NewConfigurationError(message string, cause error) *AppError {
	return &AppError{
		Type:    ErrorTypeConfiguration,
		Message: message,
		Cause:   cause,
	}
}

// NewInternalError creates a new internal error
func NewInternalError(message string, cause error) *AppError {
	return &AppError{
		Type:    ErrorTypeInternal,
		Message: message,
		Cause:   cause,
	}
}

// IsType checks if the error is of a specific type
func IsType(err error, errorType ErrorType) bool {
	if appErr, ok := err.(*AppError); ok {
		return appErr.Type == errorType
	}
	return false
}

// IsFatal reports whether the error must surface to the caller instead
// of degrading to a zero-confidence result.
func IsFatal(err error) bool {
	return IsType(err, ErrorTypeConfiguration)
}
