package database

import (
	"errors"
	"fmt"
)

// DBError wraps a failed store operation, e.g. ReplaceAutoDetected or ApplyScan
type DBError struct {
	Operation string
	Err       error
}

// Error implements the error interface
func (e *DBError) Error() string {
	return fmt.Sprintf("bill store %s: %v", e.Operation, e.Err)
}

// Unwrap returns the driver error
func (e *DBError) Unwrap() error {
	return e.Err
}

// NotFoundError reports a missing row, such as a bill an event refers to
type NotFoundError struct {
	Resource string
	ID       interface{}
}

// Error implements the error interface
func (e *NotFoundError) Error() string {
	if e.ID != nil {
		return fmt.Sprintf("%s not found: %v", e.Resource, e.ID)
	}
	return fmt.Sprintf("%s not found", e.Resource)
}

// ValidationError is returned when a stored row cannot be mapped back into
// the domain, e.g. an unknown frequency value
type ValidationError struct {
	Field  string
	Reason string
	Value  interface{}
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	if e.Value != nil {
		return fmt.Sprintf("invalid %s: %s (got %v)", e.Field, e.Reason, e.Value)
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// WrapDBError tags err with the store operation that failed. Errors that
// already carry an operation keep the innermost one.
func WrapDBError(operation string, err error) error {
	if err == nil {
		return nil
	}
	var existing *DBError
	if errors.As(err, &existing) {
		return err
	}
	return &DBError{
		Operation: operation,
		Err:       err,
	}
}

// NewNotFoundErrorWithID reports a missing bill or feed row by id
func NewNotFoundErrorWithID(resource string, id interface{}) error {
	return &NotFoundError{
		Resource: resource,
		ID:       id,
	}
}

// NewValidationErrorWithValue reports a stored column that does not map to a domain value
func NewValidationErrorWithValue(field, reason string, value interface{}) error {
	return &ValidationError{
		Field:  field,
		Reason: reason,
		Value:  value,
	}
}

// IsNotFound reports whether err wraps a NotFoundError; the API maps it to 404
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}
