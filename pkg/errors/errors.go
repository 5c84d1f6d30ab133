// Package errors provides standardized error types for the query gateway.
package errors

import (
	"errors"
	"fmt"
)

// Error codes used across the gateway boundary.
const (
	CodeInvalidRequest   = "INVALID_REQUEST"
	CodeUnauthorized     = "UNAUTHORIZED"
	CodePermissionDenied = "PERMISSION_DENIED"
	CodeQueryFailed      = "QUERY_FAILED"
	CodeConnectionFailed = "CONNECTION_FAILED"
	CodeNotFound         = "NOT_FOUND"
	CodeDeadlineExceeded = "DEADLINE_EXCEEDED"
	CodeUnavailable      = "UNAVAILABLE"
	CodeInternal         = "INTERNAL_ERROR"
)

// GatewayError represents a gateway error with a code, message, and optional cause.
type GatewayError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
	Cause   error                  `json:"-"`
}

// Error implements the error interface.
func (e *GatewayError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *GatewayError) Unwrap() error {
	return e.Cause
}

// Is implements error comparison by code and message.
func (e *GatewayError) Is(target error) bool {
	t, ok := target.(*GatewayError)
	if !ok {
		return false
	}
	return e.Code == t.Code && e.Message == t.Message
}

// WithDetail adds a single detail to the error.
func (e *GatewayError) WithDetail(key string, value interface{}) *GatewayError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// Validation rejections. The message text is part of the user-visible
// contract and must not change.
var (
	ErrDangerousOperation = &GatewayError{
		Code:    CodePermissionDenied,
		Message: "Dangerous operations (DROP, TRUNCATE, EXEC) are not allowed for security reasons.",
	}
	ErrAuthenticationRequired = &GatewayError{
		Code:    CodeUnauthorized,
		Message: "Write operations require authentication. Please authenticate first.",
	}
	ErrMultipleStatements = &GatewayError{
		Code:    CodeInvalidRequest,
		Message: "Multiple statements are not allowed.",
	}
	ErrUnsupportedStatement = &GatewayError{
		Code:    CodeInvalidRequest,
		Message: "Only SELECT, UPDATE, INSERT, DELETE statements are allowed.",
	}
	ErrEmptyStatement = &GatewayError{
		Code:    CodeInvalidRequest,
		Message: "SQL statement cannot be empty.",
	}
)

// New creates a new GatewayError with the given code and message.
func New(code, message string) *GatewayError {
	return &GatewayError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an error with a GatewayError.
func Wrap(err error, code, message string) *GatewayError {
	if err == nil {
		return nil
	}
	return &GatewayError{
		Code:    code,
		Message: message,
		Cause:   err,
	}
}

// Wrapf wraps an error with a formatted message.
func Wrapf(err error, code, format string, args ...interface{}) *GatewayError {
	if err == nil {
		return nil
	}
	return &GatewayError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   err,
	}
}

// Execution converts a driver error into a gateway error whose message is the
// driver's text verbatim. The gateway does not sanitize engine error text.
func Execution(err error) *GatewayError {
	if err == nil {
		return nil
	}
	return &GatewayError{
		Code:    CodeQueryFailed,
		Message: err.Error(),
		Cause:   err,
	}
}

// IsValidation reports whether an error was raised before any database contact.
func IsValidation(err error) bool {
	switch GetCode(err) {
	case CodeInvalidRequest, CodeUnauthorized, CodePermissionDenied:
		return true
	}
	return false
}

// GetCode extracts the error code from an error.
func GetCode(err error) string {
	var gwErr *GatewayError
	if errors.As(err, &gwErr) {
		return gwErr.Code
	}
	return CodeInternal
}

// GetMessage extracts the error message from an error.
func GetMessage(err error) string {
	var gwErr *GatewayError
	if errors.As(err, &gwErr) {
		return gwErr.Message
	}
	return err.Error()
}

// UserMessage renders an error in the uniform boundary shape. Every failure
// crossing the gateway boundary is detectable by this single prefix.
func UserMessage(err error) string {
	return "ERROR: " + GetMessage(err)
}
