package models

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidTransition = errors.New("invalid job status transition")
)

// ValidationError is returned for bad search criteria. The job is never created.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// NavigationError is returned once every navigation attempt has failed.
type NavigationError struct {
	URL      string
	Attempts int
	Err      error
}

func (e *NavigationError) Error() string {
	return fmt.Sprintf("navigation to %s failed after %d attempts: %v", e.URL, e.Attempts, e.Err)
}

func (e *NavigationError) Unwrap() error {
	return e.Err
}

// ExtractionError describes one listing element that could not be parsed.
// It is logged and the element skipped.
type ExtractionError struct {
	Source Source
	Index  int
	Reason string
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("%s element %d: %s", e.Source, e.Index, e.Reason)
}

// AdapterFailure is one source failing as a whole.
type AdapterFailure struct {
	Source Source
	Err    error
}

func (e *AdapterFailure) Error() string {
	return fmt.Sprintf("adapter %s failed: %v", e.Source, e.Err)
}

func (e *AdapterFailure) Unwrap() error {
	return e.Err
}

// JobFailure is an uncaught error during job processing.
type JobFailure struct {
	JobID string
	Err   error
}

func (e *JobFailure) Error() string {
	return fmt.Sprintf("job %s failed: %v", e.JobID, e.Err)
}

func (e *JobFailure) Unwrap() error {
	return e.Err
}

// QueueConnectionError is a transient loss of the work queue.
type QueueConnectionError struct {
	Op  string
	Err error
}

func (e *QueueConnectionError) Error() string {
	return fmt.Sprintf("queue %s: %v", e.Op, e.Err)
}

func (e *QueueConnectionError) Unwrap() error {
	return e.Err
}
