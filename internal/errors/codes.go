// Package errors defines structured error codes for the assistant pipeline.
// Nothing in the pipeline is allowed to raise an unclassified error into the
// transport layer; every failure is wrapped with a code here and rendered as
// an error frame or error fragment at the boundary.
package errors

import (
	"fmt"
)

// ErrorCode represents a specific error type for assistant operations.
type ErrorCode string

const (
	// ErrCodeUnauthorized indicates authentication failure.
	ErrCodeUnauthorized ErrorCode = "UNAUTHORIZED"
	// ErrCodeRateLimitExceeded indicates rate limit has been exceeded.
	ErrCodeRateLimitExceeded ErrorCode = "RATE_LIMIT_EXCEEDED"
	// ErrCodeInvalidArgument indicates invalid input parameters.
	ErrCodeInvalidArgument ErrorCode = "INVALID_ARGUMENT"
	// ErrCodeBackendUnavailable indicates the forecast backend is not reachable.
	ErrCodeBackendUnavailable ErrorCode = "BACKEND_UNAVAILABLE"
	// ErrCodeBackendRejected indicates the forecast backend returned a failure envelope.
	ErrCodeBackendRejected ErrorCode = "BACKEND_REJECTED"
	// ErrCodeLLMUnavailable indicates the LLM service is not available.
	ErrCodeLLMUnavailable ErrorCode = "LLM_UNAVAILABLE"
	// ErrCodeValidationFailed indicates a filter value could not be matched.
	ErrCodeValidationFailed ErrorCode = "VALIDATION_FAILED"
	// ErrCodeContextCanceled indicates the operation was canceled.
	ErrCodeContextCanceled ErrorCode = "CONTEXT_CANCELED"
	// ErrCodeTimeout indicates the operation timed out.
	ErrCodeTimeout ErrorCode = "TIMEOUT"
)

// AssistError represents a structured error for assistant operations.
type AssistError struct {
	Code    ErrorCode
	Message string
	Cause   error
	Context map[string]interface{}
}

// Error implements the error interface.
func (e *AssistError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *AssistError) Unwrap() error {
	return e.Cause
}

// WithContext adds context to the error.
func (e *AssistError) WithContext(key string, value interface{}) *AssistError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// GetCode returns the error code.
func (e *AssistError) GetCode() ErrorCode {
	return e.Code
}

// Unauthorized creates an unauthorized error.
func Unauthorized(msg string) *AssistError {
	return &AssistError{Code: ErrCodeUnauthorized, Message: msg}
}

// RateLimitExceeded creates a rate limit exceeded error.
func RateLimitExceeded(msg string) *AssistError {
	return &AssistError{Code: ErrCodeRateLimitExceeded, Message: msg}
}

// InvalidArgument creates an invalid argument error.
func InvalidArgument(msg string) *AssistError {
	return &AssistError{Code: ErrCodeInvalidArgument, Message: msg}
}

// BackendUnavailable creates a backend unavailable error.
func BackendUnavailable(msg string, cause error) *AssistError {
	return &AssistError{Code: ErrCodeBackendUnavailable, Message: msg, Cause: cause}
}

// BackendRejected creates a backend rejected error.
func BackendRejected(msg string) *AssistError {
	return &AssistError{Code: ErrCodeBackendRejected, Message: msg}
}

// LLMUnavailable creates an LLM unavailable error.
func LLMUnavailable(msg string, cause error) *AssistError {
	return &AssistError{Code: ErrCodeLLMUnavailable, Message: msg, Cause: cause}
}

// ValidationFailed creates a validation failed error.
func ValidationFailed(msg string) *AssistError {
	return &AssistError{Code: ErrCodeValidationFailed, Message: msg}
}

// ContextCanceled creates a context canceled error.
func ContextCanceled(cause error) *AssistError {
	return &AssistError{Code: ErrCodeContextCanceled, Message: "operation canceled", Cause: cause}
}

// Timeout creates a timeout error.
func Timeout(msg string) *AssistError {
	return &AssistError{Code: ErrCodeTimeout, Message: msg}
}

// Wrap wraps an existing error with additional context.
func Wrap(cause error, code ErrorCode, msg string) *AssistError {
	return &AssistError{Code: code, Message: msg, Cause: cause}
}

// IsCode checks if an error is of a specific code.
func IsCode(err error, code ErrorCode) bool {
	if aErr, ok := err.(*AssistError); ok {
		return aErr.Code == code
	}
	return false
}

// GetCodeFromError extracts the error code from any error.
// Returns the provided default code if the error is not an AssistError.
func GetCodeFromError(err error, defaultCode ErrorCode) ErrorCode {
	if aErr, ok := err.(*AssistError); ok {
		return aErr.Code
	}
	return defaultCode
}
