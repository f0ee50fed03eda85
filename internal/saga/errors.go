package saga

import (
	"errors"
	"fmt"
)

// TaskError describes why a task ended in the Failed state.
type TaskError struct {
	// Code identifies the failure category.
	Code TaskErrorCode

	// Task is the name of the failed task.
	Task string

	// TaskID is the scheduler ID of the failed task.
	TaskID string

	// Err is the underlying error, if any.
	Err error

	// Panic holds the recovered value for TASK_PANICKED.
	Panic any

	// Stack holds the goroutine stack captured at the panic.
	Stack []byte
}

// TaskErrorCode categorizes task failures.
type TaskErrorCode string

const (
	// ErrCodeTaskFailed indicates the task body returned an error.
	ErrCodeTaskFailed TaskErrorCode = "TASK_FAILED"

	// ErrCodeTaskPanicked indicates the task body panicked.
	ErrCodeTaskPanicked TaskErrorCode = "TASK_PANICKED"

	// ErrCodeChildFailed indicates a child task failed.
	ErrCodeChildFailed TaskErrorCode = "CHILD_FAILED"

	// ErrCodeCleanupFailed indicates a cleanup returned an error or panicked.
	ErrCodeCleanupFailed TaskErrorCode = "CLEANUP_FAILED"
)

// Error implements the error interface.
func (e *TaskError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("%s: task %s (id=%s): %v", e.Code, e.Task, e.TaskID, e.Err)
	case e.Panic != nil:
		return fmt.Sprintf("%s: task %s (id=%s): panic: %v", e.Code, e.Task, e.TaskID, e.Panic)
	default:
		return fmt.Sprintf("%s: task %s (id=%s)", e.Code, e.Task, e.TaskID)
	}
}

// Unwrap returns the underlying error.
func (e *TaskError) Unwrap() error {
	return e.Err
}

// ErrSuspendInCleanup is raised when a cleanup tries to suspend.
var ErrSuspendInCleanup = errors.New("saga: cleanup must not suspend")

// ErrNotRunning is returned by effects called on a task that does not hold
// the scheduler baton.
var ErrNotRunning = errors.New("saga: task is not running")

// IsTaskFailed checks if err is a TaskError with code TASK_FAILED.
func IsTaskFailed(err error) bool {
	return hasCode(err, ErrCodeTaskFailed)
}

// IsTaskPanicked checks if err is a TaskError with code TASK_PANICKED.
func IsTaskPanicked(err error) bool {
	return hasCode(err, ErrCodeTaskPanicked)
}

// IsChildFailed checks if err is a TaskError with code CHILD_FAILED.
func IsChildFailed(err error) bool {
	return hasCode(err, ErrCodeChildFailed)
}

// IsCleanupFailed checks if err is a TaskError with code CLEANUP_FAILED.
func IsCleanupFailed(err error) bool {
	return hasCode(err, ErrCodeCleanupFailed)
}

func hasCode(err error, code TaskErrorCode) bool {
	var te *TaskError
	if errors.As(err, &te) {
		return te.Code == code
	}
	return false
}
