// Package errors provides error codes shared by the queue, the sync engine
// and the local API.
package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents a stable, machine-readable error code.
type ErrorCode string

const (
	// General errors
	ErrInternal   ErrorCode = "INTERNAL_ERROR"
	ErrInvalid    ErrorCode = "INVALID_INPUT"
	ErrNotFound   ErrorCode = "NOT_FOUND"
	ErrValidation ErrorCode = "VALIDATION_ERROR"
	ErrConfig     ErrorCode = "CONFIG_INVALID"

	// Database errors
	ErrDatabase         ErrorCode = "DATABASE_ERROR"
	ErrMigration        ErrorCode = "MIGRATION_FAILED"
	ErrQueueUnavailable ErrorCode = "QUEUE_UNAVAILABLE"

	// Sync errors
	ErrSyncFailed     ErrorCode = "SYNC_FAILED"
	ErrSyncInProgress ErrorCode = "SYNC_IN_PROGRESS"
	ErrSyncOffline    ErrorCode = "SYNC_OFFLINE"
	ErrSyncTimeout    ErrorCode = "SYNC_TIMEOUT"
	ErrTransport      ErrorCode = "TRANSPORT_ERROR"
	ErrRemoteRejected ErrorCode = "REMOTE_REJECTED"
)

// AppError represents an application error with code and message.
type AppError struct {
	Code    ErrorCode
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

// New creates a new AppError.
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an existing error with an error code.
func Wrap(code ErrorCode, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Is checks if err, or any error it wraps, is an AppError with code.
func Is(err error, code ErrorCode) bool {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// CodeOf returns the code of the outermost AppError in err's chain,
// or ErrInternal when there is none.
func CodeOf(err error) ErrorCode {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrInternal
}
