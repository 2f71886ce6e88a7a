// Package errors provides unified error handling for the exploration engine.
package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unique error code for an engine-level failure.
type ErrorCode string

const (
	// ErrCodeTransport covers network failures and timeouts while executing
	// an action against the target. Non-fatal: recorded on the transition,
	// exploration continues.
	ErrCodeTransport ErrorCode = "ENG_TRANSPORT"

	// ErrCodeAssertionFailure covers an action's expected_status mismatch.
	// Recorded as a HIGH-severity Violation; exploration continues unless
	// fail_fast is set.
	ErrCodeAssertionFailure ErrorCode = "ENG_ASSERTION_FAILURE"

	// ErrCodeInvariantViolation covers an invariant check returning false.
	// Recorded with the full reproduction path; severity is per-invariant.
	ErrCodeInvariantViolation ErrorCode = "ENG_INVARIANT_VIOLATION"

	// ErrCodeRollbackFailure covers a Rollbackable.Rollback call that itself
	// failed. Fatal: the World is marked poisoned and the Agent aborts.
	ErrCodeRollbackFailure ErrorCode = "ENG_ROLLBACK_FAILURE"

	// ErrCodeCheckpointFailure covers a Rollbackable.Checkpoint call that
	// itself failed. Fatal for the same reason as a rollback failure.
	ErrCodeCheckpointFailure ErrorCode = "ENG_CHECKPOINT_FAILURE"

	// ErrCodeConfiguration covers engine misconfiguration (e.g. no
	// rollbackable systems and no state_from_context). Surfaced at
	// construction time, before any I/O.
	ErrCodeConfiguration ErrorCode = "ENG_CONFIGURATION"
)

// Fatal reports whether errors of this code abort exploration immediately,
// as opposed to being recorded and continuing.
func (c ErrorCode) Fatal() bool {
	switch c {
	case ErrCodeRollbackFailure, ErrCodeCheckpointFailure, ErrCodeConfiguration:
		return true
	default:
		return false
	}
}

// EngineError represents a structured, categorized engine failure.
type EngineError struct {
	Code    ErrorCode              `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
	Err     error                  `json:"-"`
}

// Error implements the error interface.
func (e *EngineError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *EngineError) Unwrap() error {
	return e.Err
}

// WithDetails attaches additional structured context to the error.
func (e *EngineError) WithDetails(key string, value interface{}) *EngineError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// Fatal reports whether this error is fatal to the current exploration run.
func (e *EngineError) Fatal() bool {
	return e.Code.Fatal()
}

// New creates a new EngineError.
func New(code ErrorCode, message string) *EngineError {
	return &EngineError{Code: code, Message: message}
}

// Wrap wraps an existing error with an EngineError.
func Wrap(code ErrorCode, message string, err error) *EngineError {
	return &EngineError{Code: code, Message: message, Err: err}
}

// Transport wraps a network/timeout failure encountered executing an action.
func Transport(action string, err error) *EngineError {
	return Wrap(ErrCodeTransport, "transport error", err).WithDetails("action", action)
}

// AssertionFailure records an action's expected_status mismatch.
func AssertionFailure(action string, expected, actual int) *EngineError {
	return New(ErrCodeAssertionFailure, "expected_status mismatch").
		WithDetails("action", action).
		WithDetails("expected_status", expected).
		WithDetails("actual_status", actual)
}

// InvariantViolation records a failed invariant check with its reproduction path.
func InvariantViolation(invariant string, reproductionPath []string) *EngineError {
	return New(ErrCodeInvariantViolation, "invariant violation").
		WithDetails("invariant", invariant).
		WithDetails("reproduction_path", reproductionPath)
}

// RollbackFailure records a fatal failure to roll back a subsystem.
func RollbackFailure(system string, err error) *EngineError {
	return Wrap(ErrCodeRollbackFailure, "subsystem rollback failed", err).WithDetails("system", system)
}

// CheckpointFailure records a fatal failure to checkpoint a subsystem.
func CheckpointFailure(system string, err error) *EngineError {
	return Wrap(ErrCodeCheckpointFailure, "subsystem checkpoint failed", err).WithDetails("system", system)
}

// Configuration records an engine misconfiguration detected at construction time.
func Configuration(reason string) *EngineError {
	return New(ErrCodeConfiguration, reason)
}

// IsEngineError checks if an error is an EngineError.
func IsEngineError(err error) bool {
	var engineErr *EngineError
	return errors.As(err, &engineErr)
}

// GetEngineError extracts an EngineError from an error chain.
func GetEngineError(err error) *EngineError {
	var engineErr *EngineError
	if errors.As(err, &engineErr) {
		return engineErr
	}
	return nil
}

// IsFatal reports whether err is (or wraps) a fatal EngineError.
func IsFatal(err error) bool {
	if ee := GetEngineError(err); ee != nil {
		return ee.Fatal()
	}
	return false
}
