// Package mnerr defines the status-coded error taxonomy shared by every
// layer of msserve (spec.md §7). A Status is not a Go error itself —
// handlers wrap it via New/Wrap so callers can still errors.Is/As
// against the underlying github.com/pkg/errors-wrapped cause.
package mnerr

import (
	"fmt"

	"github.com/pkg/errors"
)

// Status is the error-kind taxonomy. It is not an exhaustive replacement
// for Go errors — it is the wire-visible "kind" attached to one.
type Status int

const (
	Success Status = iota
	InvalidInputs
	Failed
	SystemError
	WorkerUnavailable
	ServableUnavailable
)

func (s Status) String() string {
	switch s {
	case Success:
		return "SUCCESS"
	case InvalidInputs:
		return "INVALID_INPUTS"
	case Failed:
		return "FAILED"
	case SystemError:
		return "SYSTEM_ERROR"
	case WorkerUnavailable:
		return "WORKER_UNAVAILABLE"
	case ServableUnavailable:
		return "SERVABLE_UNAVAILABLE"
	default:
		return "UNKNOWN"
	}
}

// Error carries a Status plus a human-readable message and, optionally,
// a wrapped cause (via github.com/pkg/errors, for stack-trace capture
// at the point a lower-level failure first crossed a status boundary).
type Error struct {
	Code    Status
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New builds a status-coded error.
func New(code Status, format string, a ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, a...)}
}

// Wrap attaches a status code to an existing error, preserving it as the
// cause so errors.Cause(err) still recovers the original failure.
func Wrap(code Status, cause error, format string, a ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, a...), cause: errors.WithStack(cause)}
}

// Code extracts the Status from err, defaulting to Failed for errors
// that were never assigned one (e.g. a panic recovered at a stage
// boundary and converted per spec.md §7).
func Code(err error) Status {
	if err == nil {
		return Success
	}
	var me *Error
	if errors.As(err, &me) {
		return me.Code
	}
	return Failed
}
