package service

import (
	"errors"
	"fmt"
)

// Common sentinel errors for TaskService
var (
	// ErrTaskNotFound indicates that the requested task does not exist.
	ErrTaskNotFound = errors.New("task not found")

	// ErrEmptyBatch indicates a batch request with no task IDs.
	ErrEmptyBatch = errors.New("batch contains no task ids")

	// ErrInvalidBatchAction indicates a batch action outside the supported set.
	ErrInvalidBatchAction = errors.New("invalid batch action")
)

// TaskServiceError wraps errors from the task service with operation context.
type TaskServiceError struct {
	// Operation is the operation that failed (e.g., "create_task", "batch_process")
	Operation string
	// Message is a human-readable description of the error
	Message string
	// Err is the underlying error that caused the failure
	Err error
}

// Error implements the error interface for TaskServiceError.
func (e *TaskServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("task service %s failed: %s: %v", e.Operation, e.Message, e.Err)
	}
	return fmt.Sprintf("task service %s failed: %s", e.Operation, e.Message)
}

// Unwrap returns the wrapped error to support errors.Is/errors.As.
func (e *TaskServiceError) Unwrap() error {
	return e.Err
}

// NewTaskServiceError creates a new TaskServiceError.
// Sentinel errors pass through unwrapped so callers can match them directly.
func NewTaskServiceError(operation, message string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrTaskNotFound) ||
		errors.Is(err, ErrEmptyBatch) ||
		errors.Is(err, ErrInvalidBatchAction) {
		return err
	}
	return &TaskServiceError{
		Operation: operation,
		Message:   message,
		Err:       err,
	}
}
