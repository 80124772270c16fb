/*
errors.go - Centralized error types for the dues engine

ERROR CATEGORIES:
  1. Conflict errors   - Uniqueness violations on (student, day)
  2. Validation errors - Bad amounts or tallies, rejected before any write
  3. Upstream errors   - Roster or settings collaborator failures
  4. Batch errors      - Some items of a batch failed while others succeeded

USAGE:
  Stores translate driver errors into ErrDuplicateKey. The engine decides per
  operation whether a conflict is success (materialization) or a hard failure
  (prepayment):

    if errors.Is(err, dues.ErrDuplicateKey) {
        // someone else created the row first
    }
*/
package dues

import (
	"errors"
	"fmt"
	"strings"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrDuplicateKey is returned by stores when a record for the same
	// (student, day) already exists.
	ErrDuplicateKey = errors.New("duplicate record for student and day")

	ErrInvalidAmount = errors.New("invalid amount")

	ErrInvalidTally = errors.New("invalid tally")

	// ErrUpstreamUnavailable wraps roster and settings failures.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")

	ErrPartialBatch = errors.New("partial batch failure")

	// ErrBatchAborted marks items rolled back because a sibling item failed
	// inside the same transaction.
	ErrBatchAborted = errors.New("batch aborted")

	ErrRecordNotFound  = errors.New("record not found")
	ErrStudentNotFound = errors.New("student not found")
	ErrClassNotFound   = errors.New("class not found")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

type DuplicateKeyError struct {
	Key RecordKey
}

func (e *DuplicateKeyError) Error() string {
	return fmt.Sprintf("record already exists for %s", e.Key)
}

func (e *DuplicateKeyError) Unwrap() error { return ErrDuplicateKey }

type InvalidAmountError struct {
	Field string
	Value int64
	// Reason overrides the default "must be positive" wording.
	Reason string
}

func (e *InvalidAmountError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("invalid amount: %s %s, got %d", e.Field, e.Reason, e.Value)
	}
	return fmt.Sprintf("invalid amount: %s must be positive, got %d", e.Field, e.Value)
}

func (e *InvalidAmountError) Unwrap() error { return ErrInvalidAmount }

type TallyError struct {
	Reason string
}

func (e *TallyError) Error() string { return "invalid tally: " + e.Reason }

func (e *TallyError) Unwrap() error { return ErrInvalidTally }

// UpstreamError reports a collaborator failure. It matches both
// ErrUpstreamUnavailable and the underlying cause.
type UpstreamError struct {
	Collaborator string // "roster", "settings"
	Err          error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s unavailable: %v", e.Collaborator, e.Err)
}

func (e *UpstreamError) Unwrap() []error { return []error{ErrUpstreamUnavailable, e.Err} }

func upstream(collaborator string, err error) error {
	if err == nil {
		return nil
	}
	return &UpstreamError{Collaborator: collaborator, Err: err}
}

// ItemFailure is one failed student in a batch.
type ItemFailure struct {
	StudentID StudentID
	ClassID   *ClassID
	Err       error
}

// BatchError aggregates the failures of one batch operation.
type BatchError struct {
	Op       string
	Failures []ItemFailure
}

func (e *BatchError) Error() string {
	parts := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		parts = append(parts, fmt.Sprintf("student %d: %v", f.StudentID, f.Err))
	}
	return fmt.Sprintf("%s: %d item(s) failed: %s", e.Op, len(e.Failures), strings.Join(parts, "; "))
}

func (e *BatchError) Unwrap() error { return ErrPartialBatch }

func batchErr(op string, failures []ItemFailure) error {
	if len(failures) == 0 {
		return nil
	}
	return &BatchError{Op: op, Failures: failures}
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrInvalidTally)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrRecordNotFound) ||
		errors.Is(err, ErrStudentNotFound) ||
		errors.Is(err, ErrClassNotFound)
}

func IsConflict(err error) bool { return errors.Is(err, ErrDuplicateKey) }
