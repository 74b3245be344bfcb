package domain

import (
	"errors"
	"fmt"
)

// ErrorCode represents a semantic classification shared across transport layers.
type ErrorCode string

const (
	ErrCodeNotFound ErrorCode = "NOT_FOUND"
	ErrCodeInvalid  ErrorCode = "INVALID"
	ErrCodeConflict ErrorCode = "CONFLICT"
	ErrCodeInternal ErrorCode = "INTERNAL"
)

// Error represents a domain-level error.
type Error struct {
	Code    ErrorCode
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewError builds a domain error.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WrapError wraps an existing error with a domain classification.
func WrapError(code ErrorCode, message string, err error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Common domain errors.
var (
	ErrEntityNotFound          = NewError(ErrCodeNotFound, "entity not found")
	ErrRelationshipNotFound    = NewError(ErrCodeNotFound, "relationship not found")
	ErrFrameworkNotFound       = NewError(ErrCodeNotFound, "compliance framework not found")
	ErrCascadeBatchNotFound    = NewError(ErrCodeNotFound, "cascade batch not found")
	ErrDuplicateReference      = NewError(ErrCodeConflict, "duplicate reference")
	ErrVersionConflict         = NewError(ErrCodeConflict, "version conflict")
	ErrCascadeExecutionFailure = NewError(ErrCodeInternal, "cascade execution failed")
	ErrUnknownEntityType       = NewError(ErrCodeInvalid, "unknown entity type")
	ErrUnknownRelationship     = NewError(ErrCodeInvalid, "unknown relationship type")
	ErrUnknownAction           = NewError(ErrCodeInvalid, "unknown event action")
	ErrReassignUnavailable     = NewError(ErrCodeInvalid, "reassign strategy has no hook configured")
	ErrInvalidPayload          = NewError(ErrCodeInvalid, "invalid payload")
)

// IsDomainError helps checking error codes.
func IsDomainError(err error, code ErrorCode) bool {
	var dErr *Error
	if errors.As(err, &dErr) {
		return dErr.Code == code
	}
	return false
}
