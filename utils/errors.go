package utils

import (
	"errors"
	"fmt"
)

var (
	ErrMissingCredential     = errors.New("missing credential")
	ErrInvalidCredential     = errors.New("invalid or expired credential")
	ErrInsufficientPrivilege = errors.New("insufficient privilege")
	ErrNotFound              = errors.New("not found")
)

// ValidationError reports a caller-supplied field that is missing or invalid.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// InfraError wraps a database or transport failure. Its message is safe to
// log but is not meant for clients.
type InfraError struct {
	Op  string
	Err error
}

func (e *InfraError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *InfraError) Unwrap() error { return e.Err }

func Infra(op string, err error) error {
	if err == nil {
		return nil
	}
	return &InfraError{Op: op, Err: err}
}
