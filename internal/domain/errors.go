package domain

import (
	"errors"
	"fmt"
)

var (
	ErrConfig      = errors.New("configuration error")
	ErrValidation  = errors.New("validation failed")
	ErrInvalidGrid = errors.New("invalid grid")
	ErrGateway     = errors.New("gateway failure")
	ErrFetch       = errors.New("fetch failed")
	ErrStream      = errors.New("stream failure")
	ErrPreprocess  = errors.New("preprocess failed")
)

// ConfigError reports a missing or unusable credential or setting.
type ConfigError struct {
	Key string
	Msg string
}

func (e *ConfigError) Error() string {
	if e.Msg != "" {
		return e.Msg
	}
	return fmt.Sprintf("%s is not set", e.Key)
}

func (e *ConfigError) Unwrap() error { return ErrConfig }

// ValidationError reports malformed or out-of-range caller input. Kind lets
// callers distinguish grid bound violations from other input problems.
type ValidationError struct {
	Field  string
	Reason string
	Kind   error
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() []error {
	if e.Kind != nil {
		return []error{ErrValidation, e.Kind}
	}
	return []error{ErrValidation}
}

// NewValidationError is a shorthand for a plain input validation failure.
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// InvalidGridError reports grid dimensions outside the supported bounds.
func InvalidGridError(field string, value, min, max int) *ValidationError {
	return &ValidationError{
		Field:  field,
		Reason: fmt.Sprintf("must be between %d and %d, got %d", min, max, value),
		Kind:   ErrInvalidGrid,
	}
}

// PreprocessError wraps any failure of the one-shot portrait conversion.
type PreprocessError struct {
	Cause error
}

func (e *PreprocessError) Error() string {
	if e.Cause == nil {
		return ErrPreprocess.Error()
	}
	return fmt.Sprintf("%s: %v", ErrPreprocess, e.Cause)
}

func (e *PreprocessError) Unwrap() []error {
	if e.Cause == nil {
		return []error{ErrPreprocess}
	}
	return []error{ErrPreprocess, e.Cause}
}
