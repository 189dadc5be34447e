package domain

import (
	"errors"
	"fmt"
)

// ErrRunInProgress is returned when a run is requested while another run of
// the same session is still executing.
var ErrRunInProgress = errors.New("a test run is already in progress")

// ConfigurationError reports a setup problem detected before any pipeline
// stage runs (no workspace root, no runner executable, unreadable config).
type ConfigurationError struct {
	Reason string
	Err    error
}

func (e *ConfigurationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("configuration: %s: %v", e.Reason, e.Err)
	}
	return "configuration: " + e.Reason
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// ExecutionError reports a failed run: spawn failure or an exit code that
// signals an infrastructure problem rather than failing tests.
type ExecutionError struct {
	ExitCode int
	Stderr   string
	Err      error
}

func (e *ExecutionError) Error() string {
	msg := fmt.Sprintf("test execution failed (exit code %d)", e.ExitCode)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.Stderr != "" {
		msg += "\n" + e.Stderr
	}
	return msg
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// ParseError reports a malformed report record. It is logged and the record
// skipped; it never aborts a batch.
type ParseError struct {
	Section string
	Record  string
	Err     error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s section, record %q: %v", e.Section, e.Record, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }
