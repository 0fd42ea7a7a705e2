package errors

import (
	stderrors "errors"
	"fmt"
)

// AppError represents a structured application error.
// Code is the failure kind shown to the user; Cause keeps the chain for errors.Is.
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// New creates a new AppError
func New(code, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Newf creates a new AppError with a formatted message
func Newf(code, format string, args ...interface{}) *AppError {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap wraps an error with additional context, keeping the code of the wrapped AppError
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return &AppError{
			Code:    appErr.Code,
			Message: message,
			Cause:   err,
		}
	}
	return &AppError{
		Code:    CodeInternalError,
		Message: message,
		Cause:   err,
	}
}

// Wrapf wraps an error with formatted additional context
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return Wrap(err, fmt.Sprintf(format, args...))
}

// WithCode attaches a code to an existing error
func WithCode(code string, err error) error {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return &AppError{
			Code:    code,
			Message: appErr.Message,
			Cause:   appErr.Cause,
		}
	}
	return &AppError{
		Code:    code,
		Message: err.Error(),
		Cause:   err,
	}
}

// IsAppError checks if an error is, or wraps, an AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return stderrors.As(err, &appErr)
}

// GetCode returns the error code if it's an AppError, otherwise returns "UNKNOWN"
func GetCode(err error) string {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return "UNKNOWN"
}

// Predefined error codes
const (
	CodeConfigInvalid      = "CONFIG_INVALID"
	CodeNotFound           = "NOT_FOUND"
	CodeInternalError      = "INTERNAL_ERROR"
	CodeInvalidInput       = "INVALID_INPUT"
	CodeParseError         = "PARSE_ERROR"
	CodeInvalidSelection   = "INVALID_SELECTION"
	CodeInsufficientData   = "INSUFFICIENT_DATA"
	CodeNoEvents           = "NO_EVENTS"
	CodeZeroVariance       = "ZERO_VARIANCE"
	CodeSingularMatrix     = "SINGULAR_MATRIX"
	CodeConvergenceFailure = "CONVERGENCE_FAILURE"
	CodeInvalidEvent       = "INVALID_EVENT"
	CodeInvalidChart       = "INVALID_CHART"
)

// IsFitFailure reports whether the code belongs to the model-fit family
func IsFitFailure(code string) bool {
	switch code {
	case CodeInsufficientData, CodeNoEvents, CodeZeroVariance,
		CodeSingularMatrix, CodeConvergenceFailure, CodeInvalidEvent:
		return true
	}
	return false
}

// Common error constructors
func ConfigInvalid(message string) *AppError {
	return New(CodeConfigInvalid, message)
}

func NotFound(resource string) *AppError {
	return New(CodeNotFound, fmt.Sprintf("%s not found", resource))
}

func InternalError(message string) *AppError {
	return New(CodeInternalError, message)
}

func InvalidInput(message string) *AppError {
	return New(CodeInvalidInput, message)
}

func ParseError(message string, cause error) *AppError {
	return &AppError{Code: CodeParseError, Message: message, Cause: cause}
}

func InvalidSelection(message string, cause error) *AppError {
	return &AppError{Code: CodeInvalidSelection, Message: message, Cause: cause}
}

func InvalidChart(message string, cause error) *AppError {
	return &AppError{Code: CodeInvalidChart, Message: message, Cause: cause}
}
