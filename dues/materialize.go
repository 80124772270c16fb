/*
materialize.go - Idempotent "ensure a record exists" primitive

PURPOSE:
  Guarantees exactly one record exists for (student, day). The sweep, the
  reconciliation read path and the enrollment hook all create records through
  Materialize, so a fresh record always carries the same default fields.

ALGORITHM:
  1. Try to insert a zeroed record (Amount=0, every flag false).
  2. Insert succeeded              -> Created
  3. Insert hit the unique key     -> re-read the winning row -> Existing
  4. Anything else, or the re-read -> Failed
     comes back empty

  The outcome is a tagged value, never a panic or a bare error, so callers can
  branch deterministically and count outcomes.

CONCURRENCY:
  Any number of callers may race on the same key. The store's unique
  constraint lets exactly one insert through; every loser lands in step 3.
  Callers must not assume anything about the winner's SubmittedBy or flags.
*/
package dues

import (
	"context"
	"errors"
	"fmt"
)

// Outcome tags the result of a materialization.
type Outcome int

const (
	OutcomeCreated Outcome = iota
	OutcomeExisting
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCreated:
		return "created"
	case OutcomeExisting:
		return "existing"
	default:
		return "failed"
	}
}

// MaterializeRequest carries everything needed to create a default record.
// DueAmount is a snapshot taken by the caller; Materialize never reads
// settings itself.
type MaterializeRequest struct {
	StudentID   StudentID
	ClassID     *ClassID
	Day         Day
	SubmittedBy SubmitterID
	DueAmount   int64
}

func (r MaterializeRequest) Key() RecordKey {
	return RecordKey{StudentID: r.StudentID, Day: r.Day}
}

// Materialization is the tagged result: Created, Existing(record), Failed(err).
type Materialization struct {
	Outcome Outcome
	Record  Record
	Err     error
}

func (m Materialization) OK() bool { return m.Outcome != OutcomeFailed }

// NewDefaultRecord builds the record every creation path starts from.
func NewDefaultRecord(req MaterializeRequest) Record {
	return Record{
		StudentID:         req.StudentID,
		ClassID:           req.ClassID,
		Day:               req.Day,
		Amount:            0,
		HasPaid:           false,
		IsAbsent:          false,
		IsPrepaid:         false,
		DueAmountSnapshot: req.DueAmount,
		SubmittedBy:       req.SubmittedBy,
	}
}

// Materialize ensures a record exists for req.Key().
func (e *Engine) Materialize(ctx context.Context, req MaterializeRequest) Materialization {
	return materialize(ctx, e.Records, req)
}

func materialize(ctx context.Context, records RecordStore, req MaterializeRequest) Materialization {
	created, err := records.Insert(ctx, NewDefaultRecord(req))
	if err == nil {
		return Materialization{Outcome: OutcomeCreated, Record: created}
	}
	if !errors.Is(err, ErrDuplicateKey) {
		return Materialization{Outcome: OutcomeFailed, Err: fmt.Errorf("create record for %s: %w", req.Key(), err)}
	}

	existing, err := records.Find(ctx, req.Key())
	if err != nil {
		return Materialization{Outcome: OutcomeFailed, Err: fmt.Errorf("read conflicting record for %s: %w", req.Key(), err)}
	}
	if existing == nil {
		// The winning row vanished between the conflict and the read.
		return Materialization{Outcome: OutcomeFailed, Err: fmt.Errorf("conflicting record for %s disappeared: %w", req.Key(), ErrRecordNotFound)}
	}
	return Materialization{Outcome: OutcomeExisting, Record: *existing}
}
