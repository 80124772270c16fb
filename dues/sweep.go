package dues

import (
	"context"
	"time"
)

// SweepResult summarizes one daily sweep. Skipped counts students whose
// record already existed.
type SweepResult struct {
	Day      Day
	Created  int
	Skipped  int
	Failures []ItemFailure
}

func (r SweepResult) Failed() int { return len(r.Failures) }

func (r SweepResult) Err() error { return batchErr("daily sweep", r.Failures) }

// RunDailySweep ensures every enrolled student has a record for today.
func (e *Engine) RunDailySweep(ctx context.Context) (SweepResult, error) {
	return e.SweepDay(ctx, e.Today())
}

// SweepDay materializes day's record for every class/student pair. A failing
// student is logged and counted; the sweep carries on with the rest.
func (e *Engine) SweepDay(ctx context.Context, day Day) (SweepResult, error) {
	start := time.Now()
	result := SweepResult{Day: day}

	rosters, err := e.Roster.Rosters(ctx)
	if err != nil {
		return result, upstream("roster", err)
	}
	due, err := e.dueSnapshot(ctx)
	if err != nil {
		return result, err
	}

	for _, roster := range rosters {
		classID := roster.Class.ID
		submitter := DefaultSubmitter(roster.Class)
		for _, s := range roster.Students {
			if err := ctx.Err(); err != nil {
				return result, err
			}
			m := e.Materialize(ctx, MaterializeRequest{
				StudentID:   s.ID,
				ClassID:     ClassIDPtr(classID),
				Day:         day,
				SubmittedBy: submitter,
				DueAmount:   due,
			})
			switch m.Outcome {
			case OutcomeCreated:
				result.Created++
			case OutcomeExisting:
				result.Skipped++
			default:
				e.log.Error().Err(m.Err).
					Int64("student_id", int64(s.ID)).
					Int64("class_id", int64(classID)).
					Str("day", day.String()).
					Msg("daily sweep: materialization failed")
				result.Failures = append(result.Failures, ItemFailure{StudentID: s.ID, ClassID: ClassIDPtr(classID), Err: m.Err})
			}
		}
	}

	e.log.Info().
		Str("day", day.String()).
		Int("created", result.Created).
		Int("skipped", result.Skipped).
		Int("failed", result.Failed()).
		Dur("took", time.Since(start)).
		Msg("daily sweep completed")
	return result, nil
}

// =============================================================================
// SWEEP RUN HISTORY
// =============================================================================

const (
	SweepRunning   = "running"
	SweepCompleted = "completed"
	SweepFailed    = "failed"
)

// SweepRun is one recorded execution of the daily sweep.
type SweepRun struct {
	ID          string
	Day         Day
	Trigger     string // scheduler, manual
	Status      string
	Created     int
	Skipped     int
	Failed      int
	Error       string
	StartedAt   time.Time
	CompletedAt *time.Time
}

// Finish copies the sweep outcome into the run. A run whose sweep errored,
// or had failed students, is marked failed so the scheduler retries it.
func (r *SweepRun) Finish(res SweepResult, err error, at time.Time) {
	r.Created = res.Created
	r.Skipped = res.Skipped
	r.Failed = res.Failed()
	r.CompletedAt = &at
	if err == nil {
		err = res.Err()
	}
	if err != nil {
		r.Status = SweepFailed
		r.Error = err.Error()
		return
	}
	r.Status = SweepCompleted
	r.Error = ""
}
