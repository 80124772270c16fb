/*
store.go - Persistence and collaborator interfaces

KEY INTERFACES:
  RecordStore:      The four primitives the engine needs (insert, find, range, upsert)
  TxStore:          Optional multi-row atomicity for tally and prepayment batches
  RecordManager:    Direct record maintenance (status update, edit, delete, history)
  RosterProvider:   Class rosters and student lookups (read side)
  SettingsProvider: The default due amount

UNIQUENESS:
  Every RecordStore MUST enforce a hard uniqueness constraint on
  (student_id, day). Insert returns an error matching ErrDuplicateKey when the
  key is taken. This constraint is the only concurrency-control mechanism the
  engine relies on; the engine takes no locks of its own. A store may still
  serialize writes internally (the SQLite and memory stores do), in which case
  a losing insert reaches the conflict branch after the winner rather than
  racing it.

IMPLEMENTATIONS:
  - dues/store/memory.go:      In-memory for tests
  - store/sqlite/sqlite.go:    SQLite
  - store/postgres/postgres.go: PostgreSQL (pgx)
*/
package dues

import "context"

// =============================================================================
// RECORD STORE
// =============================================================================

type RecordStore interface {
	// Insert creates rec. Returns ErrDuplicateKey if the key exists.
	// The store fills ID, CreatedAt and UpdatedAt when they are empty.
	Insert(ctx context.Context, rec Record) (Record, error)

	// Find returns the record for key, or nil when there is none.
	Find(ctx context.Context, key RecordKey) (*Record, error)

	// FindForClass returns records of classID with Day in [from, to].
	FindForClass(ctx context.Context, classID ClassID, from, to Day) ([]Record, error)

	// Upsert creates rec, or, when the key exists, overwrites Amount,
	// HasPaid, IsAbsent and SubmittedBy of the existing row. ClassID,
	// IsPrepaid and DueAmountSnapshot are only written on creation.
	Upsert(ctx context.Context, rec Record) (Record, error)
}

// TxStore wraps RecordStore with transaction support.
// If fn returns an error the transaction is rolled back.
type TxStore interface {
	RecordStore
	WithTx(ctx context.Context, fn func(RecordStore) error) error
}

// RecordManager covers direct maintenance of existing records.
type RecordManager interface {
	Get(ctx context.Context, id RecordID) (*Record, error)
	Update(ctx context.Context, rec Record) (Record, error)
	Delete(ctx context.Context, id RecordID) error
	ListByStudent(ctx context.Context, studentID StudentID) ([]Record, error)
}

// =============================================================================
// COLLABORATORS
// =============================================================================

type RosterProvider interface {
	// ClassRoster returns ErrClassNotFound for an unknown class.
	ClassRoster(ctx context.Context, classID ClassID) (Roster, error)

	// Rosters returns every class with its students.
	Rosters(ctx context.Context) ([]Roster, error)

	// Student returns ErrStudentNotFound for an unknown student.
	Student(ctx context.Context, studentID StudentID) (Student, error)
}

type SettingsProvider interface {
	// DueAmount returns the current default due amount, 0 when unset.
	DueAmount(ctx context.Context) (int64, error)
}

// RosterAdmin is the write side of the roster, used by the HTTP layer.
type RosterAdmin interface {
	SaveClass(ctx context.Context, c Class) (Class, error)
	ListClasses(ctx context.Context) ([]Class, error)
	AssignSupervisor(ctx context.Context, classID ClassID, supervisor *SubmitterID) error
	SaveStudent(ctx context.Context, s Student) (Student, error)
}

type SettingsAdmin interface {
	SettingsProvider
	SetDueAmount(ctx context.Context, value string) error
}

// =============================================================================
// SWEEP RUNS
// =============================================================================

// SweepRunStore keeps the history of daily sweeps so the scheduler can tell
// whether today's sweep already completed.
type SweepRunStore interface {
	// SaveSweepRun inserts run, or updates it when the ID already exists.
	SaveSweepRun(ctx context.Context, run SweepRun) error
	IsSweepComplete(ctx context.Context, day Day) (bool, error)
	// ListSweepRuns returns the most recent runs first, at most limit.
	ListSweepRuns(ctx context.Context, limit int) ([]SweepRun, error)
}
