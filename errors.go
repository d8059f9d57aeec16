package specrunner

import (
	"errors"
	"fmt"
)

// RuntimeError represents an operational error that should lead to exit code 2
// Examples include configuration errors, file not found, etc.
type RuntimeError struct {
	Err error
}

func (e *RuntimeError) Error() string {
	return fmt.Sprintf("runtime error: %v", e.Err)
}

// Unwrap implements the errors.Unwrap interface
func (e *RuntimeError) Unwrap() error {
	return e.Err
}

// NewRuntimeError creates a new RuntimeError
func NewRuntimeError(err error) *RuntimeError {
	return &RuntimeError{Err: err}
}

// IsRuntimeError checks if the error is or wraps a RuntimeError
func IsRuntimeError(err error) bool {
	var runtimeErr *RuntimeError
	return err != nil && errors.As(err, &runtimeErr)
}

// TestFailureError represents a failure from spec file assertions (exit code 1)
type TestFailureError struct {
	Message string
}

func (e *TestFailureError) Error() string {
	return fmt.Sprintf("test failure: %s", e.Message)
}

// NewTestFailureError creates a new TestFailureError
func NewTestFailureError(message string) *TestFailureError {
	return &TestFailureError{Message: message}
}

// IsTestFailureError checks if the error is or wraps a TestFailureError
func IsTestFailureError(err error) bool {
	var testErr *TestFailureError
	return err != nil && errors.As(err, &testErr)
}

// ReporterSyncError means the run itself succeeded but one or more reporters
// failed to flush within the sync timeout (exit code 3). Reported output may
// be incomplete.
type ReporterSyncError struct {
	Err error
}

func (e *ReporterSyncError) Error() string {
	return fmt.Sprintf("reporter sync: %v", e.Err)
}

func (e *ReporterSyncError) Unwrap() error {
	return e.Err
}

// NewReporterSyncError creates a new ReporterSyncError
func NewReporterSyncError(err error) *ReporterSyncError {
	return &ReporterSyncError{Err: err}
}

// IsReporterSyncError checks if the error is or wraps a ReporterSyncError
func IsReporterSyncError(err error) bool {
	var syncErr *ReporterSyncError
	return err != nil && errors.As(err, &syncErr)
}
