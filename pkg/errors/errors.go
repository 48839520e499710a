// Package errors defines common error types for the application.
package errors

import (
	"errors"
	"fmt"
)

// Error codes for the application.
const (
	CodeUnknown            = "UNKNOWN_ERROR"
	CodeMalformedSourceMap = "MALFORMED_SOURCE_MAP"
	CodeUnreadableFile     = "UNREADABLE_FILE"
	CodeInvalidInput       = "INVALID_INPUT"
	CodeConfigError        = "CONFIG_ERROR"
	CodeDatabaseError      = "DATABASE_ERROR"
	CodeStorageError       = "STORAGE_ERROR"
	CodeNotFound           = "NOT_FOUND"
)

// AppError represents an application error with a code and message.
type AppError struct {
	Code    string
	Message string
	Err     error
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *AppError) Unwrap() error {
	return e.Err
}

// Is reports whether target is an AppError with the same code.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// New creates a new AppError.
func New(code string, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an existing error with an AppError.
func Wrap(code string, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Common error instances.
var (
	ErrMalformedSourceMap = New(CodeMalformedSourceMap, "malformed source map")
	ErrUnreadableFile     = New(CodeUnreadableFile, "unreadable file")
	ErrInvalidInput       = New(CodeInvalidInput, "invalid input")
	ErrConfigError        = New(CodeConfigError, "configuration error")
	ErrDatabaseError      = New(CodeDatabaseError, "database error")
	ErrStorageError       = New(CodeStorageError, "storage error")
	ErrNotFound           = New(CodeNotFound, "resource not found")
)

// MalformedSourceMap wraps err as a malformed source map error for file.
func MalformedSourceMap(file string, err error) *AppError {
	return Wrap(CodeMalformedSourceMap, fmt.Sprintf("malformed source map %s", file), err)
}

// UnreadableFile wraps err as an unreadable file error for path.
func UnreadableFile(path string, err error) *AppError {
	return Wrap(CodeUnreadableFile, fmt.Sprintf("cannot read %s", path), err)
}

// IsMalformedSourceMap checks if the error is a malformed source map error.
func IsMalformedSourceMap(err error) bool {
	return errors.Is(err, ErrMalformedSourceMap)
}

// IsUnreadableFile checks if the error is an unreadable file error.
func IsUnreadableFile(err error) bool {
	return errors.Is(err, ErrUnreadableFile)
}

// IsInvalidInput checks if the error is an invalid input error.
func IsInvalidInput(err error) bool {
	return errors.Is(err, ErrInvalidInput)
}

// IsDatabaseError checks if the error is a database error.
func IsDatabaseError(err error) bool {
	return errors.Is(err, ErrDatabaseError)
}

// IsStorageError checks if the error is a storage error.
func IsStorageError(err error) bool {
	return errors.Is(err, ErrStorageError)
}

// IsNotFound checks if the error is a not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// GetErrorCode extracts the error code from an error.
func GetErrorCode(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeUnknown
}

// GetErrorMessage extracts the error message from an error.
func GetErrorMessage(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	if err != nil {
		return err.Error()
	}
	return ""
}
