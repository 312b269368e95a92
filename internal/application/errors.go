package application

import (
	"errors"
	"fmt"
)

// ErrEmptyAnswer is returned when an empty answer is about to be recorded.
var ErrEmptyAnswer = errors.New("answer must not be empty")

// PendingUserInputError signals that only a human can unblock the run.
type PendingUserInputError struct {
	Message string
	Err     error
}

func NewPendingUserInput(format string, args ...any) *PendingUserInputError {
	return &PendingUserInputError{Message: fmt.Sprintf(format, args...)}
}

func (e *PendingUserInputError) Error() string {
	if e.Err != nil && e.Message == "" {
		return e.Err.Error()
	}
	return e.Message
}

func (e *PendingUserInputError) Unwrap() error { return e.Err }

// FieldSubmissionError is raised by the submitter when a single field could not be filled.
type FieldSubmissionError struct {
	Field   *FieldDescriptor
	Message string
	Err     error
}

func (e *FieldSubmissionError) Error() string {
	id := ""
	if e.Field != nil {
		id = e.Field.ID
	}
	return fmt.Sprintf("field %q: %s", id, e.Message)
}

func (e *FieldSubmissionError) Unwrap() error { return e.Err }

// BrowserError wraps a failure of the browser session itself.
type BrowserError struct {
	Op  string
	Err error
}

func (e *BrowserError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *BrowserError) Unwrap() error { return e.Err }
