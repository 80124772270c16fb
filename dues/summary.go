package dues

import (
	"context"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// PartitionSummary is a count with its money total.
type PartitionSummary struct {
	Count  int
	Amount decimal.Decimal
}

// ClassDaySummary is the collector's dashboard for one class-day.
//
// Collected sums the amounts actually recorded on paid records. Outstanding
// sums the due snapshot of each unpaid record, so a later settings change
// does not rewrite what was owed on that day.
type ClassDaySummary struct {
	ClassID       ClassID
	Day           Day
	TotalStudents int
	Paid          PartitionSummary
	Unpaid        PartitionSummary
	Absent        int
	Failed        int
}

// SummarizeClassDay reconciles the class-day and totals it.
func (e *Engine) SummarizeClassDay(ctx context.Context, classID ClassID, day Day) (ClassDaySummary, error) {
	view, err := e.ReconcileClassDay(ctx, classID, day)
	if err != nil {
		return ClassDaySummary{}, err
	}
	return Summarize(view), nil
}

func Summarize(view ClassDay) ClassDaySummary {
	s := ClassDaySummary{
		ClassID:       view.ClassID,
		Day:           view.Day,
		TotalStudents: view.Total() + len(view.Failures),
		Paid:          PartitionSummary{Count: len(view.Paid), Amount: decimal.Zero},
		Unpaid:        PartitionSummary{Count: len(view.Unpaid), Amount: decimal.Zero},
		Absent:        len(view.Absent),
		Failed:        len(view.Failures),
	}
	for _, r := range view.Paid {
		s.Paid.Amount = s.Paid.Amount.Add(decimal.NewFromInt(r.Amount))
	}
	for _, r := range view.Unpaid {
		s.Unpaid.Amount = s.Unpaid.Amount.Add(decimal.NewFromInt(r.DueAmountSnapshot))
	}
	return s
}

// SchoolSummary is the administrator's dashboard across every class.
// ExpectedDaily is what a full day of collections would bring in at the
// current default due amount.
type SchoolSummary struct {
	Classes       int
	Students      int
	Supervisors   int
	DueAmount     int64
	ExpectedDaily decimal.Decimal
}

// SummarizeSchool totals the whole roster. It reads only; no records are
// created.
func (e *Engine) SummarizeSchool(ctx context.Context) (SchoolSummary, error) {
	var (
		rosters []Roster
		due     int64
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		if rosters, err = e.Roster.Rosters(gctx); err != nil {
			return upstream("roster", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		due, err = e.dueSnapshot(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return SchoolSummary{}, err
	}

	s := SchoolSummary{Classes: len(rosters), DueAmount: due}
	supervisors := make(map[SubmitterID]struct{})
	for _, r := range rosters {
		s.Students += len(r.Students)
		if r.Class.SupervisorID != nil {
			supervisors[*r.Class.SupervisorID] = struct{}{}
		}
	}
	s.Supervisors = len(supervisors)
	s.ExpectedDaily = decimal.NewFromInt(due).Mul(decimal.NewFromInt(int64(s.Students)))
	return s, nil
}
