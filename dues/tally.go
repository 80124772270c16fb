/*
tally.go - Teacher end-of-day tally submission

PURPOSE:
  Applies a teacher's paid / unpaid / absent lists for one class-day as one
  upsert per student, keyed on (student, day). Resubmitting the same tally
  rewrites the same rows; it never creates more.

CROSS-LIST RULE:
  A student should appear in one list only. When a student shows up in more
  than one, the first list in this order wins: absent, paid, unpaid. The
  losing entries are dropped and reported in TallyResult.Overridden.

ATOMICITY:
  TxStore:   all upserts run in one transaction. If any fails, nothing is
             written; the failing student carries the cause and every other
             student carries ErrBatchAborted.
  otherwise: each upsert stands alone; failures are reported per student.

VALIDATION:
  Negative amounts, a missing class or a missing day reject the whole tally
  before anything is written.
*/
package dues

import (
	"context"
	"errors"
	"fmt"
)

type TallyEntry struct {
	StudentID StudentID
	Amount    int64
}

type Tally struct {
	ClassID     ClassID
	Day         Day
	Paid        []TallyEntry
	Unpaid      []TallyEntry
	Absent      []TallyEntry
	SubmittedBy SubmitterID
}

type TallyResult struct {
	Records    []Record
	Failures   []ItemFailure
	Overridden []StudentID
}

func (r TallyResult) Err() error { return batchErr("tally", r.Failures) }

// resolvedEntry is one student's final classification for the tally.
type resolvedEntry struct {
	StudentID StudentID
	Amount    int64
	Status    Status
}

func (t Tally) validate() error {
	if t.ClassID == 0 {
		return &TallyError{Reason: "class is required"}
	}
	if t.Day.IsZero() {
		return &TallyError{Reason: "day is required"}
	}
	lists := []struct {
		name    string
		entries []TallyEntry
	}{{"paid", t.Paid}, {"unpaid", t.Unpaid}, {"absent", t.Absent}}
	for _, l := range lists {
		for _, e := range l.entries {
			if e.StudentID == 0 {
				return &TallyError{Reason: fmt.Sprintf("%s entry without student", l.name)}
			}
			if e.Amount < 0 {
				return &TallyError{Reason: fmt.Sprintf("%s entry for student %d has negative amount %d", l.name, e.StudentID, e.Amount)}
			}
		}
	}
	return nil
}

// resolve flattens the three lists, applying absence > paid > unpaid.
func (t Tally) resolve() (entries []resolvedEntry, overridden []StudentID) {
	seen := make(map[StudentID]bool)
	add := func(list []TallyEntry, status Status) {
		for _, e := range list {
			if seen[e.StudentID] {
				overridden = append(overridden, e.StudentID)
				continue
			}
			seen[e.StudentID] = true
			entries = append(entries, resolvedEntry{StudentID: e.StudentID, Amount: e.Amount, Status: status})
		}
	}
	add(t.Absent, StatusAbsent)
	add(t.Paid, StatusPaid)
	add(t.Unpaid, StatusUnpaid)
	return entries, overridden
}

func (t Tally) record(e resolvedEntry, due int64) Record {
	return Record{
		StudentID:         e.StudentID,
		ClassID:           ClassIDPtr(t.ClassID),
		Day:               t.Day,
		Amount:            e.Amount,
		HasPaid:           e.Status == StatusPaid,
		IsAbsent:          e.Status == StatusAbsent,
		DueAmountSnapshot: due,
		SubmittedBy:       t.SubmittedBy,
	}
}

// SubmitTally upserts one record per student of the tally.
func (e *Engine) SubmitTally(ctx context.Context, t Tally) (TallyResult, error) {
	if err := t.validate(); err != nil {
		return TallyResult{}, err
	}
	due, err := e.dueSnapshot(ctx)
	if err != nil {
		return TallyResult{}, err
	}

	entries, overridden := t.resolve()
	result := TallyResult{Overridden: overridden}
	for _, id := range overridden {
		e.log.Warn().
			Int64("student_id", int64(id)).
			Int64("class_id", int64(t.ClassID)).
			Str("day", t.Day.String()).
			Msg("student listed in more than one tally list; absence takes precedence")
	}

	if txs, ok := e.Records.(TxStore); ok {
		return e.submitTallyTx(ctx, txs, t, entries, due, result), nil
	}

	for _, entry := range entries {
		rec, err := e.Records.Upsert(ctx, t.record(entry, due))
		if err != nil {
			result.Failures = append(result.Failures, e.tallyFailure(t, entry.StudentID, err))
			continue
		}
		result.Records = append(result.Records, rec)
	}
	return result, nil
}

type tallyItemError struct {
	StudentID StudentID
	Err       error
}

func (e *tallyItemError) Error() string { return fmt.Sprintf("student %d: %v", e.StudentID, e.Err) }
func (e *tallyItemError) Unwrap() error { return e.Err }

func (e *Engine) submitTallyTx(ctx context.Context, txs TxStore, t Tally, entries []resolvedEntry, due int64, result TallyResult) TallyResult {
	var written []Record
	err := txs.WithTx(ctx, func(rs RecordStore) error {
		written = written[:0]
		for _, entry := range entries {
			rec, err := rs.Upsert(ctx, t.record(entry, due))
			if err != nil {
				return &tallyItemError{StudentID: entry.StudentID, Err: err}
			}
			written = append(written, rec)
		}
		return nil
	})
	if err == nil {
		result.Records = written
		return result
	}

	var item *tallyItemError
	hasItem := errors.As(err, &item)
	for _, entry := range entries {
		cause := err
		switch {
		case hasItem && item.StudentID == entry.StudentID:
			cause = item.Err
		case hasItem:
			cause = ErrBatchAborted
		}
		result.Failures = append(result.Failures, e.tallyFailure(t, entry.StudentID, cause))
	}
	return result
}

func (e *Engine) tallyFailure(t Tally, id StudentID, err error) ItemFailure {
	e.log.Error().Err(err).
		Int64("student_id", int64(id)).
		Int64("class_id", int64(t.ClassID)).
		Str("day", t.Day.String()).
		Msg("tally upsert failed")
	return ItemFailure{StudentID: id, ClassID: ClassIDPtr(t.ClassID), Err: err}
}
