package errors

import (
	"errors"
	"fmt"
)

// ErrorCode classifies application errors for boundary mapping.
type ErrorCode string

const (
	CodeValidation     ErrorCode = "VALIDATION_ERROR"
	CodeNotFound       ErrorCode = "NOT_FOUND"
	CodeAlreadyExists  ErrorCode = "ALREADY_EXISTS"
	CodeConfig         ErrorCode = "CONFIG_ERROR"
	CodeTransport      ErrorCode = "TRANSPORT_ERROR"
	CodeTimeout        ErrorCode = "TIMEOUT"
	CodeDecode         ErrorCode = "DECODE_ERROR"
	CodeInternal       ErrorCode = "INTERNAL_ERROR"
	CodeServiceUnavail ErrorCode = "SERVICE_UNAVAILABLE"
	CodeLLM            ErrorCode = "LLM_ERROR"
	CodeTool           ErrorCode = "TOOL_ERROR"
)

// AppError is the tagged error carried across component boundaries.
type AppError struct {
	Code    ErrorCode
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates an AppError with an arbitrary code.
func New(code ErrorCode, message string) *AppError {
	return &AppError{Code: code, Message: message}
}

// Wrap creates an AppError wrapping a cause.
func Wrap(code ErrorCode, message string, cause error) *AppError {
	return &AppError{Code: code, Message: message, Err: cause}
}

// NewValidationError creates a validation error.
func NewValidationError(message string) *AppError {
	return &AppError{Code: CodeValidation, Message: message}
}

// NewNotFoundError creates a not-found error.
func NewNotFoundError(message string) *AppError {
	return &AppError{Code: CodeNotFound, Message: message}
}

// NewAlreadyExistsError creates an already-exists error.
func NewAlreadyExistsError(message string) *AppError {
	return &AppError{Code: CodeAlreadyExists, Message: message}
}

// NewConfigError creates a configuration error (missing credential,
// unknown backend).
func NewConfigError(message string) *AppError {
	return &AppError{Code: CodeConfig, Message: message}
}

// NewInternalError creates an internal error.
func NewInternalError(message string) *AppError {
	return &AppError{Code: CodeInternal, Message: message}
}

// NewInternalErrorWithCause creates an internal error wrapping a cause.
func NewInternalErrorWithCause(message string, cause error) *AppError {
	return &AppError{Code: CodeInternal, Message: message, Err: cause}
}

func hasCode(err error, code ErrorCode) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// IsNotFound reports whether err carries CodeNotFound.
func IsNotFound(err error) bool { return hasCode(err, CodeNotFound) }

// IsAlreadyExists reports whether err carries CodeAlreadyExists.
func IsAlreadyExists(err error) bool { return hasCode(err, CodeAlreadyExists) }

// IsConfigError reports whether err carries CodeConfig.
func IsConfigError(err error) bool { return hasCode(err, CodeConfig) }

// IsValidation reports whether err carries CodeValidation.
func IsValidation(err error) bool { return hasCode(err, CodeValidation) }

// IsTimeout reports whether err carries CodeTimeout.
func IsTimeout(err error) bool { return hasCode(err, CodeTimeout) }

// IsLLMError reports whether err carries CodeLLM.
func IsLLMError(err error) bool { return hasCode(err, CodeLLM) }
