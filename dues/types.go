/*
Package dues provides the daily canteen-dues record engine.

PURPOSE:
  Tracks one payment record per (student, calendar day). A record says whether
  the student paid, was absent (exempt), or still owes. The engine creates the
  records that should exist, reconciles a teacher's end-of-day tally against
  them, and turns a guardian's lump-sum prepayment into future paid records.

KEY CONCEPTS IN THIS FILE (types.go):
  - Record:    The central entity, unique per (StudentID, Day)
  - RecordKey: The natural key (StudentID, Day)
  - Status:    Paid / Unpaid / Absent classification of a record
  - Student, Roster: Read-only views of the enrolment data

INVARIANTS:
  1. At most one Record per RecordKey. The store enforces this, not the engine.
  2. A freshly materialized record has Amount=0 and every flag false.
  3. DueAmountSnapshot is written once, at creation, and never changed.
  4. IsAbsent wins over HasPaid when classifying a record.

SEE ALSO:
  - day.go: Day key and the reference timezone
  - store.go: Persistence and collaborator interfaces
  - materialize.go: The idempotent creation primitive
*/
package dues

import (
	"fmt"
	"time"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type StudentID int64
type ClassID int64

// SubmitterID identifies who owns a record: a collector, a class supervisor,
// or, when nobody is assigned, the class itself.
type SubmitterID int64

type RecordID string

// =============================================================================
// RECORD - One payment obligation per student per day
// =============================================================================

// RecordKey is the natural key of a record.
type RecordKey struct {
	StudentID StudentID
	Day       Day
}

func (k RecordKey) String() string {
	return fmt.Sprintf("student %d on %s", k.StudentID, k.Day)
}

type Record struct {
	ID                RecordID
	StudentID         StudentID
	ClassID           *ClassID
	Day               Day
	Amount            int64
	HasPaid           bool
	IsAbsent          bool
	IsPrepaid         bool
	DueAmountSnapshot int64
	SubmittedBy       SubmitterID

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (r Record) Key() RecordKey {
	return RecordKey{StudentID: r.StudentID, Day: r.Day}
}

// Status classifies the record. Absence is checked first so an absent
// student never shows up as owing or paid.
func (r Record) Status() Status {
	switch {
	case r.IsAbsent:
		return StatusAbsent
	case r.HasPaid:
		return StatusPaid
	default:
		return StatusUnpaid
	}
}

// ClassIDPtr is a small helper for the nullable class column.
func ClassIDPtr(id ClassID) *ClassID { return &id }

// =============================================================================
// STATUS
// =============================================================================

type Status string

const (
	StatusPaid   Status = "paid"
	StatusUnpaid Status = "unpaid"
	StatusAbsent Status = "absent"
)

func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusPaid, StatusUnpaid, StatusAbsent:
		return Status(s), nil
	}
	return "", fmt.Errorf("unknown status %q", s)
}

// Matches reports whether a record falls in the status partition.
func (s Status) Matches(r Record) bool { return r.Status() == s }

// =============================================================================
// ROSTER - Read-only enrolment data
// =============================================================================

type Student struct {
	ID      StudentID
	ClassID ClassID
	Name    string
}

type Class struct {
	ID           ClassID
	Name         string
	SupervisorID *SubmitterID
}

// Roster is a class with its currently enrolled students.
type Roster struct {
	Class    Class
	Students []Student
}
