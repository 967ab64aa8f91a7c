// Package errs holds the error taxonomy shared by the alerting and job components.
package errs

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrValidation       = errors.New("validation failed")
	ErrProcessorMissing = errors.New("no processor available")
)

// ValidationError carries every problem found, not only the first.
type ValidationError struct {
	Errors []string
}

func NewValidation(errs ...string) *ValidationError {
	return &ValidationError{Errors: errs}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s", strings.Join(e.Errors, "; "))
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

type NotFoundError struct {
	Resource string
	ID       int64
}

func NotFound(resource string, id int64) *NotFoundError {
	return &NotFoundError{Resource: resource, ID: id}
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %d not found", e.Resource, e.ID)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// TransientStoreError wraps a data-access failure.
type TransientStoreError struct {
	Op  string
	Err error
}

func Store(op string, err error) error {
	if err == nil {
		return nil
	}
	return &TransientStoreError{Op: op, Err: err}
}

func (e *TransientStoreError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransientStoreError) Unwrap() error {
	return e.Err
}

type NotificationError struct {
	Channel   string
	Recipient string
	Err       error
}

func (e *NotificationError) Error() string {
	return fmt.Sprintf("notification via %s to %s failed: %v", e.Channel, e.Recipient, e.Err)
}

func (e *NotificationError) Unwrap() error {
	return e.Err
}

type ProcessorMissingError struct {
	JobType string
}

func (e *ProcessorMissingError) Error() string {
	return fmt.Sprintf("no processor available for job type %s", e.JobType)
}

func (e *ProcessorMissingError) Is(target error) bool {
	return target == ErrProcessorMissing
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}
