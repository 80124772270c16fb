/*
reconcile.go - Complete, partitioned view of a class-day

STEPS (order matters):
  1. Fetch the class roster.
  2. Fetch every record of the class for the day in one query, index by student.
  3. For each roster student without a record, materialize one; otherwise reuse.
  4. Partition into absent / paid / unpaid (absence first, so the three sets
     are disjoint and add up to the roster size).

PARTIAL FAILURE:
  A student whose materialization fails is left out of the partitions and
  reported in Failures. One bad row never blocks the rest of the class.
  Roster and settings failures abort the whole call with ErrUpstreamUnavailable.
*/
package dues

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// ClassDay is the reconciled view of one class on one day.
type ClassDay struct {
	ClassID  ClassID
	Day      Day
	Paid     []Record
	Unpaid   []Record
	Absent   []Record
	Created  int
	Failures []ItemFailure
}

// Records returns paid, then unpaid, then absent records.
func (c ClassDay) Records() []Record {
	out := make([]Record, 0, len(c.Paid)+len(c.Unpaid)+len(c.Absent))
	out = append(out, c.Paid...)
	out = append(out, c.Unpaid...)
	return append(out, c.Absent...)
}

func (c ClassDay) Total() int { return len(c.Paid) + len(c.Unpaid) + len(c.Absent) }

// Err reports per-student failures as a *BatchError, nil when there are none.
func (c ClassDay) Err() error { return batchErr("reconcile", c.Failures) }

// ReconcileClassDay returns every roster student's record for day, creating
// the missing ones.
func (e *Engine) ReconcileClassDay(ctx context.Context, classID ClassID, day Day) (ClassDay, error) {
	roster, err := e.classRoster(ctx, classID)
	if err != nil {
		return ClassDay{}, err
	}

	existing, err := e.Records.FindForClass(ctx, classID, day, day)
	if err != nil {
		return ClassDay{}, err
	}
	byStudent := make(map[StudentID]Record, len(existing))
	for _, r := range existing {
		byStudent[r.StudentID] = r
	}

	var due int64
	missing := 0
	for _, s := range roster.Students {
		if _, ok := byStudent[s.ID]; !ok {
			missing++
		}
	}
	if missing > 0 {
		if due, err = e.dueSnapshot(ctx); err != nil {
			return ClassDay{}, err
		}
	}

	submitter := DefaultSubmitter(roster.Class)
	results := make([]Materialization, len(roster.Students))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency())
	for i, s := range roster.Students {
		if rec, ok := byStudent[s.ID]; ok {
			results[i] = Materialization{Outcome: OutcomeExisting, Record: rec}
			continue
		}
		i, s := i, s
		g.Go(func() error {
			results[i] = e.Materialize(gctx, MaterializeRequest{
				StudentID:   s.ID,
				ClassID:     ClassIDPtr(classID),
				Day:         day,
				SubmittedBy: submitter,
				DueAmount:   due,
			})
			// Per-student failures are collected, never returned, so one
			// failure does not cancel its siblings.
			return nil
		})
	}
	_ = g.Wait()

	view := ClassDay{ClassID: classID, Day: day}
	for i, m := range results {
		s := roster.Students[i]
		if !m.OK() {
			e.log.Error().Err(m.Err).
				Int64("student_id", int64(s.ID)).
				Int64("class_id", int64(classID)).
				Str("day", day.String()).
				Msg("materialization failed during reconciliation")
			view.Failures = append(view.Failures, ItemFailure{StudentID: s.ID, ClassID: ClassIDPtr(classID), Err: m.Err})
			continue
		}
		if m.Outcome == OutcomeCreated {
			view.Created++
		}
		view.add(m.Record)
	}
	return view, nil
}

func (c *ClassDay) add(r Record) {
	switch r.Status() {
	case StatusAbsent:
		c.Absent = append(c.Absent, r)
	case StatusPaid:
		c.Paid = append(c.Paid, r)
	default:
		c.Unpaid = append(c.Unpaid, r)
	}
}

// ListClassDay returns the records of one partition straight from the store,
// without materializing anything.
func (e *Engine) ListClassDay(ctx context.Context, classID ClassID, day Day, status Status) ([]Record, error) {
	recs, err := e.Records.FindForClass(ctx, classID, day, day)
	if err != nil {
		return nil, err
	}
	out := make([]Record, 0, len(recs))
	for _, r := range recs {
		if status.Matches(r) {
			out = append(out, r)
		}
	}
	return out, nil
}
