// Package errors provides custom error types for the sync orchestration core
package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents the type of error that occurred
type ErrorCode string

const (
	ErrCodeStorageFailure    ErrorCode = "STORAGE_FAILURE"
	ErrCodeConflictFailure   ErrorCode = "CONFLICT_FAILURE"
	ErrCodeValidationFailure ErrorCode = "VALIDATION_FAILURE"
	ErrCodeIntegrityFailure  ErrorCode = "INTEGRITY_FAILURE"
	ErrCodeScheduleFailure   ErrorCode = "SCHEDULE_FAILURE"
)

// Kind classifies errors beyond their code for logging and handling decisions.
type Kind string

const (
	KindInternal   Kind = "internal"
	KindInvalid    Kind = "invalid"
	KindNotFound   Kind = "not_found"
	KindCorruption Kind = "corruption"
	KindExhausted  Kind = "exhausted"
)

// Operation represents the type of sync-core operation
type Operation string

const (
	OpDetect    Operation = "detect"
	OpResolve   Operation = "resolve"
	OpSchedule  Operation = "schedule"
	OpRetry     Operation = "retry"
	OpValidate  Operation = "validate"
	OpBackup    Operation = "backup"
	OpRestore   Operation = "restore"
	OpReset     Operation = "reset"
	OpDedupe    Operation = "dedupe"
	OpRepair    Operation = "repair"
	OpResync    Operation = "resync"
	OpRecover   Operation = "recover"
	OpStore     Operation = "store"
	OpLoad      Operation = "load"
	OpConfigure Operation = "configure"
	OpClose     Operation = "close"
)

// SyncError represents an error that occurred in the sync core
type SyncError struct {
	// Operation during which the error occurred
	Op Operation

	// Component that generated the error (e.g., "detector", "scheduler", "recovery")
	Component string

	// Underlying error
	Err error

	// Whether the operation can be retried
	Retryable bool

	// Error code for the error type
	Code ErrorCode

	// Kind classifies the failure for handling decisions
	Kind Kind

	// Metadata for additional context
	Metadata map[string]interface{}
}

func (e *SyncError) Error() string {
	var msg string
	if e.Component != "" {
		msg = fmt.Sprintf("%s operation failed in %s component", e.Op, e.Component)
	} else {
		msg = fmt.Sprintf("%s operation failed", e.Op)
	}

	if e.Code != "" {
		msg += fmt.Sprintf(" [%s]", e.Code)
	}

	return msg + fmt.Sprintf(": %v", e.Err)
}

func (e *SyncError) Unwrap() error {
	return e.Err
}

// NewStorageError creates a new storage-related SyncError
func NewStorageError(op Operation, cause error) *SyncError {
	return &SyncError{
		Code:      ErrCodeStorageFailure,
		Kind:      KindInternal,
		Op:        op,
		Component: "store",
		Err:       cause,
		Retryable: true,
	}
}

// NewConflictError creates a new conflict-related SyncError
func NewConflictError(op Operation, cause error) *SyncError {
	return &SyncError{
		Code:      ErrCodeConflictFailure,
		Kind:      KindInvalid,
		Op:        op,
		Component: "conflict",
		Err:       cause,
		Retryable: false,
	}
}

// NewValidationError creates a new validation-related SyncError
func NewValidationError(op Operation, cause error) *SyncError {
	return &SyncError{
		Code:      ErrCodeValidationFailure,
		Kind:      KindInvalid,
		Op:        op,
		Err:       cause,
		Retryable: false,
	}
}

// NewIntegrityError creates a SyncError for integrity failures such as a
// checksum mismatch. Integrity errors are never retryable: the caller must
// not re-attempt the mutation against the same payload.
func NewIntegrityError(op Operation, cause error) *SyncError {
	return &SyncError{
		Code:      ErrCodeIntegrityFailure,
		Kind:      KindCorruption,
		Op:        op,
		Component: "recovery",
		Err:       cause,
		Retryable: false,
	}
}

// NewScheduleError creates a scheduling-related SyncError
func NewScheduleError(op Operation, cause error) *SyncError {
	return &SyncError{
		Code:      ErrCodeScheduleFailure,
		Kind:      KindInvalid,
		Op:        op,
		Component: "scheduler",
		Err:       cause,
		Retryable: false,
	}
}

// New creates a new SyncError
func New(op Operation, err error) *SyncError {
	return &SyncError{
		Op:  op,
		Err: err,
	}
}

// NewWithComponent creates a new SyncError with component information
func NewWithComponent(op Operation, component string, err error) *SyncError {
	return &SyncError{
		Op:        op,
		Component: component,
		Err:       err,
	}
}

// NewRetryable creates a new retryable SyncError
func NewRetryable(op Operation, err error) *SyncError {
	return &SyncError{
		Op:        op,
		Err:       err,
		Retryable: true,
	}
}

// IsRetryable checks if an error is a retryable SyncError
func IsRetryable(err error) bool {
	var syncErr *SyncError
	if errors.As(err, &syncErr) {
		return syncErr.Retryable
	}
	return false
}

// IsIntegrityFailure reports whether err carries the integrity failure code.
func IsIntegrityFailure(err error) bool {
	var syncErr *SyncError
	if errors.As(err, &syncErr) {
		return syncErr.Code == ErrCodeIntegrityFailure
	}
	return false
}
