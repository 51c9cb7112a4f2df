// Package errors provides custom error types for domain-specific errors.
package errors

import (
	"errors"
	"fmt"
)

// Standard sentinel errors
var (
	ErrInsufficientData    = errors.New("insufficient data")
	ErrNumericDegenerate   = errors.New("numerically degenerate input")
	ErrModelTraining       = errors.New("model training failed")
	ErrUpstreamUnavailable = errors.New("upstream data source unavailable")
	ErrRateLimited         = errors.New("rate limited")
	ErrSymbolNotFound      = errors.New("symbol not found")
	ErrNoUsableData        = errors.New("no usable price or fundamental data")
	ErrConfigInvalid       = errors.New("invalid configuration")
	ErrInputValidation     = errors.New("input validation failed")
	ErrDatabaseError       = errors.New("database error")
	ErrCacheMiss           = errors.New("cache miss")
	ErrCircuitOpen         = errors.New("circuit breaker is open")
)

// DataError represents a data-related error.
type DataError struct {
	DataType string
	Symbol   string
	Message  string
	Err      error
}

func (e *DataError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("data error [%s] %s: %s: %v", e.DataType, e.Symbol, e.Message, e.Err)
	}
	return fmt.Sprintf("data error [%s] %s: %s", e.DataType, e.Symbol, e.Message)
}

func (e *DataError) Unwrap() error {
	return e.Err
}

// NewDataError creates a new DataError.
func NewDataError(dataType, symbol, message string, err error) *DataError {
	return &DataError{
		DataType: dataType,
		Symbol:   symbol,
		Message:  message,
		Err:      err,
	}
}

// ValuationError explains why a valuation method produced no estimate.
// Err is one of ErrInsufficientData or ErrNumericDegenerate.
type ValuationError struct {
	Method string
	Reason string
	Err    error
}

func (e *ValuationError) Error() string {
	return fmt.Sprintf("valuation [%s]: %s", e.Method, e.Reason)
}

func (e *ValuationError) Unwrap() error {
	return e.Err
}

// NewValuationError creates a new ValuationError.
func NewValuationError(method, reason string, err error) *ValuationError {
	return &ValuationError{
		Method: method,
		Reason: reason,
		Err:    err,
	}
}

// UpstreamError is returned once a market-data source has exhausted its retries.
type UpstreamError struct {
	Source   string
	Symbol   string
	Attempts int
	Err      error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream [%s] %s unavailable after %d attempt(s): %v", e.Source, e.Symbol, e.Attempts, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// Is makes every UpstreamError match ErrUpstreamUnavailable.
func (e *UpstreamError) Is(target error) bool {
	return target == ErrUpstreamUnavailable
}

// NewUpstreamError creates a new UpstreamError.
func NewUpstreamError(source, symbol string, attempts int, err error) *UpstreamError {
	return &UpstreamError{
		Source:   source,
		Symbol:   symbol,
		Attempts: attempts,
		Err:      err,
	}
}

// ValidationError represents a validation error.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s (%v): %s", e.Field, e.Value, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrInputValidation
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field string, value interface{}, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Value:   value,
		Message: message,
	}
}

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
