package types

import (
	"errors"
	"fmt"
)

// ErrorCode represents a namespaced error code for engine errors.
type ErrorCode string

// Planning error codes
const (
	PLANNING_NO_CAPABILITY     ErrorCode = "PLANNING_NO_CAPABILITY"
	PLANNING_INPUT_UNSATISFIED ErrorCode = "PLANNING_INPUT_UNSATISFIED"
	PLANNING_CYCLE_DETECTED    ErrorCode = "PLANNING_CYCLE_DETECTED"
)

// Agent pool error codes
const (
	POOL_SATURATED ErrorCode = "POOL_SATURATED"
	POOL_SHUTDOWN  ErrorCode = "POOL_SHUTDOWN"
)

// Node execution error codes
const (
	NODE_EXECUTION_FAILED ErrorCode = "NODE_EXECUTION_FAILED"
	NODE_TIMEOUT          ErrorCode = "NODE_TIMEOUT"
	NODE_BAD_RESULT       ErrorCode = "NODE_BAD_RESULT"
)

// Data source error codes
const (
	SOURCE_FETCH_FAILED ErrorCode = "SOURCE_FETCH_FAILED"
	SOURCE_ALL_FAILED   ErrorCode = "SOURCE_ALL_FAILED"
	SOURCE_CIRCUIT_OPEN ErrorCode = "SOURCE_CIRCUIT_OPEN"
)

// Configuration error codes
const (
	CONFIG_LOAD_FAILED       ErrorCode = "CONFIG_LOAD_FAILED"
	CONFIG_VALIDATION_FAILED ErrorCode = "CONFIG_VALIDATION_FAILED"
)

// Persistence sink error codes
const (
	STORE_OPEN_FAILED  ErrorCode = "STORE_OPEN_FAILED"
	STORE_WRITE_FAILED ErrorCode = "STORE_WRITE_FAILED"
)

// Investigation lifecycle error codes
const (
	INVESTIGATION_NOT_FOUND ErrorCode = "INVESTIGATION_NOT_FOUND"
	INVESTIGATION_FAILED    ErrorCode = "INVESTIGATION_FAILED"
	AGGREGATION_TIMEOUT     ErrorCode = "AGGREGATION_TIMEOUT"
)

// EngineError represents a structured error with error code, message, and
// optional cause. It supports error wrapping and retryability hints for
// error handling logic.
type EngineError struct {
	Code      ErrorCode
	Message   string
	Retryable bool
	Cause     error
}

// Error implements the error interface, returning a formatted error message.
// Format: "[CODE] message" or "[CODE] message: cause" if cause exists.
func (e *EngineError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause error for error unwrapping chains.
func (e *EngineError) Unwrap() error {
	return e.Cause
}

// Is checks if the target error matches this error by error code.
func (e *EngineError) Is(target error) bool {
	var engineErr *EngineError
	if errors.As(target, &engineErr) {
		return e.Code == engineErr.Code
	}
	return false
}

// NewError creates a new non-retryable EngineError with the given code and message.
func NewError(code ErrorCode, message string) *EngineError {
	return &EngineError{
		Code:      code,
		Message:   message,
		Retryable: false,
	}
}

// NewRetryableError creates a new retryable EngineError with the given code and message.
// Use this for transient errors that may succeed on retry (e.g., source timeouts).
func NewRetryableError(code ErrorCode, message string) *EngineError {
	return &EngineError{
		Code:      code,
		Message:   message,
		Retryable: true,
	}
}

// WrapError creates a new non-retryable EngineError that wraps an existing error.
// The wrapped error is accessible via Unwrap() for error chain inspection.
func WrapError(code ErrorCode, message string, cause error) *EngineError {
	return &EngineError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}
