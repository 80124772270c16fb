/*
prepay.go - Lump-sum prepayment into future paid records

ALGORITHM:
  count = floor(lumpSum / perDayAmount)
  for i in 0..count-1: insert a record for today+i with
      Amount=perDayAmount, IsPrepaid=true, HasPaid=true

  Records are inserted, never upserted. A prepayment assumes those future days
  are still free; hitting an existing row is a hard error, because silently
  skipping a day would swallow the guardian's money.

EDGE CASES:
  lumpSum < perDayAmount -> zero records, no error. The caller decides whether
                            that deserves a user-facing message.
  lumpSum <= 0 or perDayAmount <= 0 -> InvalidAmountError before any write.
  count > MaxPrepaidDays            -> InvalidAmountError before any write.

ATOMICITY:
  With a TxStore the whole sequence is one transaction, so a conflict on day
  three leaves days one and two unwritten. Without one, the records created
  before the failure are returned alongside the error.
*/
package dues

import (
	"context"
	"errors"
	"fmt"
)

type Prepayment struct {
	StudentID    StudentID
	LumpSum      int64
	PerDayAmount int64
	SubmittedBy  SubmitterID
}

func (p Prepayment) validate(maxDays int64) error {
	if p.LumpSum <= 0 {
		return &InvalidAmountError{Field: "lump sum", Value: p.LumpSum}
	}
	if p.PerDayAmount <= 0 {
		return &InvalidAmountError{Field: "per-day amount", Value: p.PerDayAmount}
	}
	if n := p.RecordCount(); n > maxDays {
		return &InvalidAmountError{
			Field:  "prepaid days",
			Value:  n,
			Reason: fmt.Sprintf("must not exceed %d", maxDays),
		}
	}
	return nil
}

// RecordCount is the number of whole days the lump sum covers. Only
// meaningful once both amounts are positive.
func (p Prepayment) RecordCount() int64 {
	return p.LumpSum / p.PerDayAmount
}

// GeneratePrepayment creates the prepaid records starting today.
func (e *Engine) GeneratePrepayment(ctx context.Context, p Prepayment) ([]Record, error) {
	if err := p.validate(e.maxPrepaidDays()); err != nil {
		return nil, err
	}
	count := int(p.RecordCount())
	if count == 0 {
		return []Record{}, nil
	}

	student, err := e.Roster.Student(ctx, p.StudentID)
	if err != nil {
		if IsNotFound(err) {
			return nil, err
		}
		return nil, upstream("roster", err)
	}
	due, err := e.dueSnapshot(ctx)
	if err != nil {
		return nil, err
	}

	today := e.Today()
	build := func(i int) Record {
		return Record{
			StudentID:         p.StudentID,
			ClassID:           ClassIDPtr(student.ClassID),
			Day:               today.AddDays(i),
			Amount:            p.PerDayAmount,
			HasPaid:           true,
			IsPrepaid:         true,
			DueAmountSnapshot: due,
			SubmittedBy:       p.SubmittedBy,
		}
	}
	insertAll := func(rs RecordStore) ([]Record, error) {
		var out []Record
		for i := 0; i < count; i++ {
			rec := build(i)
			created, err := rs.Insert(ctx, rec)
			if err != nil {
				if errors.Is(err, ErrDuplicateKey) {
					return out, &DuplicateKeyError{Key: rec.Key()}
				}
				return out, fmt.Errorf("prepay %s: %w", rec.Key(), err)
			}
			out = append(out, created)
		}
		return out, nil
	}

	if txs, ok := e.Records.(TxStore); ok {
		var created []Record
		err := txs.WithTx(ctx, func(rs RecordStore) error {
			var err error
			created, err = insertAll(rs)
			return err
		})
		if err != nil {
			return nil, err
		}
		e.logPrepayment(p, today, len(created))
		return created, nil
	}

	created, err := insertAll(e.Records)
	if err != nil {
		return created, err
	}
	e.logPrepayment(p, today, len(created))
	return created, nil
}

func (e *Engine) logPrepayment(p Prepayment, from Day, n int) {
	e.log.Info().
		Int64("student_id", int64(p.StudentID)).
		Int64("lump_sum", p.LumpSum).
		Int64("per_day", p.PerDayAmount).
		Str("from", from.String()).
		Int("records", n).
		Msg("prepayment recorded")
}
