package archive

import (
	"errors"
	"fmt"
)

// Sentinel errors. Callers branch with errors.Is.
var (
	// ErrNotFound — no record with the given identifier.
	ErrNotFound = errors.New("record not found")

	// ErrConcurrencyConflict — an optimistic write found the record changed
	// since it was read. Re-read and retry once before surfacing.
	ErrConcurrencyConflict = errors.New("record modified concurrently")

	// ErrAlreadySet — a write-once field (checksum, classification time)
	// already holds a value.
	ErrAlreadySet = errors.New("write-once field already set")

	// ErrFileUnreadable — the source locator resolved but the content could
	// not be read.
	ErrFileUnreadable = errors.New("file unreadable")
)

// StateReason identifies which precondition an operation violated.
type StateReason string

const (
	NotArchivable      StateReason = "not_archivable"
	ActiveRecordExists StateReason = "active_record_exists"
	NotQueued          StateReason = "not_queued"
	NotActive          StateReason = "not_active"
	NotUnarchivable    StateReason = "not_unarchivable"
	NotDeletable       StateReason = "not_deletable"
)

// StateError reports an operation that is not valid for the record's current
// status. These are caller mistakes and are never retried.
type StateError struct {
	Reason StateReason
	Status Status
}

func (e *StateError) Error() string {
	return fmt.Sprintf("invalid operation (%s) for status %q", e.Reason, e.Status)
}

// IsStateError reports whether err is a StateError with the given reason.
func IsStateError(err error, reason StateReason) bool {
	var se *StateError
	return errors.As(err, &se) && se.Reason == reason
}

// ValidationError reports malformed input, independent of record state.
type ValidationError struct {
	Field  string
	Detail string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Detail)
}

// Gate identifies an execution precondition.
type Gate string

const (
	GateExistence Gate = "existence"
	GateUsage     Gate = "usage"
)

// GateBlockedError reports that execution preconditions are unmet. This is an
// expected, recoverable condition: the blocking gate and detail are surfaced
// to the operator and the record stays queued with the matching flag set.
type GateBlockedError struct {
	Gate   Gate
	Detail string
}

func (e *GateBlockedError) Error() string {
	return fmt.Sprintf("execution blocked by %s gate: %s", e.Gate, e.Detail)
}

// IsGateBlocked reports whether err is a GateBlockedError.
func IsGateBlocked(err error) bool {
	var ge *GateBlockedError
	return errors.As(err, &ge)
}

// UnderlyingIOError wraps a failure to act on the underlying file (deletion,
// read) where the record itself is fine.
type UnderlyingIOError struct {
	Op  string
	Err error
}

func (e *UnderlyingIOError) Error() string {
	return fmt.Sprintf("underlying file %s failed: %v", e.Op, e.Err)
}

func (e *UnderlyingIOError) Unwrap() error { return e.Err }
