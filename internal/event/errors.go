package event

import (
	"errors"
	"fmt"
)

// Sentinel errors for use with errors.Is().
var (
	// ErrValidation indicates an event or its input failed validation.
	ErrValidation = errors.New("validation failed")

	// ErrUnavailable indicates a sink could not accept an event.
	ErrUnavailable = errors.New("unavailable")

	// ErrDropped indicates an event was intentionally not delivered.
	ErrDropped = errors.New("event dropped")
)

// ValidationError provides context for validation errors.
type ValidationError struct {
	Field   string
	Message string
	Value   any
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed for %s: %s", e.Field, e.Message)
	}

	return "validation failed: " + e.Message
}

// Unwrap returns the sentinel error for errors.Is() support.
func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// NewValidationError creates a validation error with context.
func NewValidationError(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// NewValidationErrorWithValue creates a validation error including the invalid value.
func NewValidationErrorWithValue(field, message string, value any) error {
	return &ValidationError{Field: field, Message: message, Value: value}
}

// UnavailableError provides context for sink delivery failures.
type UnavailableError struct {
	Sink   string
	Reason string
}

// Error implements the error interface.
func (e *UnavailableError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("sink %q unavailable: %s", e.Sink, e.Reason)
	}

	return fmt.Sprintf("sink %q unavailable", e.Sink)
}

// Unwrap returns the sentinel error for errors.Is() support.
func (e *UnavailableError) Unwrap() error {
	return ErrUnavailable
}

// NewUnavailableError creates an unavailable error with context.
func NewUnavailableError(sink, reason string) error {
	return &UnavailableError{Sink: sink, Reason: reason}
}

// DroppedError records why an event was not delivered.
type DroppedError struct {
	Reason string
}

// Error implements the error interface.
func (e *DroppedError) Error() string {
	return "event dropped: " + e.Reason
}

// Unwrap returns the sentinel error for errors.Is() support.
func (e *DroppedError) Unwrap() error {
	return ErrDropped
}

// NewDroppedError creates a dropped error with a reason.
func NewDroppedError(reason string) error {
	return &DroppedError{Reason: reason}
}

// IsValidation checks if an error is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsUnavailable checks if an error is an unavailable error.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}

// IsDropped checks if an error is a dropped error.
func IsDropped(err error) bool {
	return errors.Is(err, ErrDropped)
}
