// Package errors classifies job failures by how much of a run they end.
package errors

import (
	"context"
	stderrors "errors"
	"fmt"
)

// ErrorType represents the granularity at which a failure is handled
type ErrorType string

const (
	ErrorTypeFatal         ErrorType = "fatal"
	ErrorTypeTaxpayer      ErrorType = "taxpayer"
	ErrorTypeItem          ErrorType = "item"
	ErrorTypeExpectedEmpty ErrorType = "expected_empty"
	ErrorTypeValidation    ErrorType = "validation"
	ErrorTypeCancellation  ErrorType = "cancellation"
)

// OperationError represents a job-driver error
type OperationError struct {
	Type    ErrorType `json:"type"`
	Stage   string    `json:"stage,omitempty"`
	GSTIN   string    `json:"gstin,omitempty"`
	Message string    `json:"message"`
	Cause   error     `json:"-"`
}

// Error implements the error interface
func (e *OperationError) Error() string {
	if e == nil {
		return "unknown operation error"
	}

	msg := e.Message
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	switch {
	case e.Stage != "" && e.GSTIN != "":
		return fmt.Sprintf("[%s] %s %s: %s", e.Type, e.Stage, e.GSTIN, msg)
	case e.Stage != "":
		return fmt.Sprintf("[%s] %s: %s", e.Type, e.Stage, msg)
	default:
		return fmt.Sprintf("[%s] %s", e.Type, msg)
	}
}

// Unwrap returns the underlying error
func (e *OperationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// NewFatalError creates an error that aborts the whole run
func NewFatalError(message string, cause error) *OperationError {
	return &OperationError{
		Type:    ErrorTypeFatal,
		Message: message,
		Cause:   cause,
	}
}

// NewTaxpayerError creates an error that ends one stage for one taxpayer
func NewTaxpayerError(stage, gstin, message string, cause error) *OperationError {
	return &OperationError{
		Type:    ErrorTypeTaxpayer,
		Stage:   stage,
		GSTIN:   gstin,
		Message: message,
		Cause:   cause,
	}
}

// NewItemError creates an error scoped to a single bill or state group
func NewItemError(stage, gstin, item string, cause error) *OperationError {
	return &OperationError{
		Type:    ErrorTypeItem,
		Stage:   stage,
		GSTIN:   gstin,
		Message: item,
		Cause:   cause,
	}
}

// NewExpectedEmptyError marks a stage that found nothing to do
func NewExpectedEmptyError(stage, gstin, message string) *OperationError {
	return &OperationError{
		Type:    ErrorTypeExpectedEmpty,
		Stage:   stage,
		GSTIN:   gstin,
		Message: message,
	}
}

// NewValidationError creates a validation error
func NewValidationError(stage, message string, cause error) *OperationError {
	return &OperationError{
		Type:    ErrorTypeValidation,
		Stage:   stage,
		Message: message,
		Cause:   cause,
	}
}

// NewCancellationError creates a cancellation error
func NewCancellationError(stage string, cause error) *OperationError {
	return &OperationError{
		Type:    ErrorTypeCancellation,
		Stage:   stage,
		Message: "operation was cancelled",
		Cause:   cause,
	}
}

// GetErrorType returns the type of the first OperationError in err's chain.
// Context errors are cancellation, anything else is a taxpayer failure.
func GetErrorType(err error) ErrorType {
	if err == nil {
		return ""
	}
	var opErr *OperationError
	if stderrors.As(err, &opErr) {
		return opErr.Type
	}
	if stderrors.Is(err, context.Canceled) {
		return ErrorTypeCancellation
	}
	return ErrorTypeTaxpayer
}

// IsFatal reports whether err must abort the run.
func IsFatal(err error) bool {
	switch GetErrorType(err) {
	case ErrorTypeFatal, ErrorTypeValidation, ErrorTypeCancellation:
		return true
	}
	return false
}
