package dues

import (
	"context"
	"fmt"
)

// OnStudentEnrolled makes sure a newly enrolled student has today's record
// right away instead of waiting for the next sweep. It is best-effort: errors
// are logged, never returned. A record that already exists counts as success.
func (e *Engine) OnStudentEnrolled(ctx context.Context, studentID StudentID) {
	m, err := e.EnsureTodayRecord(ctx, studentID)
	if err != nil {
		e.log.Error().Err(err).Int64("student_id", int64(studentID)).Msg("could not create today's record for new student")
		return
	}
	e.log.Info().
		Int64("student_id", int64(studentID)).
		Str("outcome", m.Outcome.String()).
		Str("day", m.Record.Day.String()).
		Msg("record ensured for new student")
}

// EnsureTodayRecord is the error-returning form of OnStudentEnrolled.
func (e *Engine) EnsureTodayRecord(ctx context.Context, studentID StudentID) (Materialization, error) {
	student, err := e.Roster.Student(ctx, studentID)
	if err != nil {
		if IsNotFound(err) {
			return Materialization{}, err
		}
		return Materialization{}, upstream("roster", err)
	}
	roster, err := e.classRoster(ctx, student.ClassID)
	if err != nil {
		return Materialization{}, err
	}
	due, err := e.dueSnapshot(ctx)
	if err != nil {
		return Materialization{}, err
	}

	m := e.Materialize(ctx, MaterializeRequest{
		StudentID:   student.ID,
		ClassID:     ClassIDPtr(student.ClassID),
		Day:         e.Today(),
		SubmittedBy: DefaultSubmitter(roster.Class),
		DueAmount:   due,
	})
	if !m.OK() {
		return m, fmt.Errorf("enroll student %d: %w", studentID, m.Err)
	}
	return m, nil
}
