package dues

import (
	"context"
	"fmt"
)

// UpdateStatus flips the paid and absent flags of one record, leaving amount
// and ownership alone.
func UpdateStatus(ctx context.Context, rm RecordManager, id RecordID, hasPaid, isAbsent bool) (Record, error) {
	rec, err := rm.Get(ctx, id)
	if err != nil {
		return Record{}, err
	}
	if rec == nil {
		return Record{}, ErrRecordNotFound
	}
	rec.HasPaid = hasPaid
	rec.IsAbsent = isAbsent
	return rm.Update(ctx, *rec)
}

// EditRecord replaces the editable fields of an existing record. Moving it
// onto a (student, day) that is already taken fails with ErrDuplicateKey.
func EditRecord(ctx context.Context, rm RecordManager, rec Record) (Record, error) {
	if rec.StudentID == 0 || rec.Day.IsZero() {
		return Record{}, &TallyError{Reason: "record needs a student and a day"}
	}
	if rec.Amount < 0 {
		return Record{}, &InvalidAmountError{Field: "amount", Value: rec.Amount}
	}
	existing, err := rm.Get(ctx, rec.ID)
	if err != nil {
		return Record{}, err
	}
	if existing == nil {
		return Record{}, ErrRecordNotFound
	}
	updated, err := rm.Update(ctx, rec)
	if err != nil {
		return Record{}, fmt.Errorf("edit record %s: %w", rec.ID, err)
	}
	return updated, nil
}
