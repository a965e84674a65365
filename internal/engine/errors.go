package engine

import (
	"errors"
	"fmt"
)

// ErrStopped is returned when posting to a loop that has been stopped.
var ErrStopped = errors.New("main loop stopped")

// TaskError wraps a failure returned by a task.
type TaskError struct {
	// Task is the task name.
	Task string

	// Err is the error returned by the task, or the recovered panic value.
	Err error

	// Panicked is true when the task panicked instead of returning.
	Panicked bool
}

// Error implements the error interface.
func (e *TaskError) Error() string {
	if e.Panicked {
		return fmt.Sprintf("task %q panicked: %v", e.Task, e.Err)
	}
	return fmt.Sprintf("task %q: %v", e.Task, e.Err)
}

// Unwrap returns the underlying error.
func (e *TaskError) Unwrap() error {
	return e.Err
}

// IsTaskPanic returns true if err is a TaskError for a panicking task.
// Uses errors.As to handle wrapped errors.
func IsTaskPanic(err error) bool {
	var te *TaskError
	if errors.As(err, &te) {
		return te.Panicked
	}
	return false
}
