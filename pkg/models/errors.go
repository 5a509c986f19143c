package models

import (
	"errors"
	"fmt"
)

// ValidationError reports malformed or out-of-range input.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Reason
	}
	return fmt.Sprintf("validation failed: %s %s", e.Field, e.Reason)
}

// NotFoundError reports an unknown task or agent reference.
type NotFoundError struct {
	Kind string // "task", "agent", ...
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

// ConflictError reports an operation that is invalid for the current state:
// an illegal transition, an OFFLINE assignee, or a task that does not accept input.
type ConflictError struct {
	TaskID string
	Reason string
}

func (e *ConflictError) Error() string {
	if e.TaskID == "" {
		return "conflict: " + e.Reason
	}
	return fmt.Sprintf("conflict on task %s: %s", e.TaskID, e.Reason)
}

// InvalidTransition builds the ConflictError for a rejected state change.
func InvalidTransition(taskID string, from, to TaskStatus) *ConflictError {
	return &ConflictError{TaskID: taskID, Reason: fmt.Sprintf("invalid transition %s -> %s", from, to)}
}

// InternalError reports a collaborator failure such as storage being unavailable.
type InternalError struct {
	Op  string
	Err error
}

func (e *InternalError) Error() string {
	return fmt.Sprintf("internal error during %s: %v", e.Op, e.Err)
}

func (e *InternalError) Unwrap() error {
	return e.Err
}

// Internal wraps err as an InternalError unless it already belongs to the taxonomy.
func Internal(op string, err error) error {
	if err == nil {
		return nil
	}
	if IsValidation(err) || IsNotFound(err) || IsConflict(err) || IsInternal(err) {
		return err
	}
	return &InternalError{Op: op, Err: err}
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var target *NotFoundError
	return errors.As(err, &target)
}

// IsConflict reports whether err is a ConflictError.
func IsConflict(err error) bool {
	var target *ConflictError
	return errors.As(err, &target)
}

// IsInternal reports whether err is an InternalError.
func IsInternal(err error) bool {
	var target *InternalError
	return errors.As(err, &target)
}
