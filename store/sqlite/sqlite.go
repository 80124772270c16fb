/*
Package sqlite provides a SQLite-backed implementation of the dues storage interfaces.

PURPOSE:
  Implements every persistence interface the engine and the HTTP layer need
  using SQLite. The PostgreSQL store in store/postgres follows the same
  schema; only the dialect differs.

INTERFACES IMPLEMENTED:
  dues.TxStore:          Record primitives plus transactions
  dues.RecordManager:    Status updates, edits, deletes, history
  dues.RosterProvider:   Class rosters (read side)
  dues.RosterAdmin:      Classes, supervisors, students (write side)
  dues.SettingsAdmin:    The default due amount
  dues.SweepRunStore:    Daily sweep history

KEY TABLES:
  records:    One row per (student, day). UNIQUE(student_id, day) is the
              only thing that keeps concurrent creators from duplicating rows.
  classes:    Class with optional supervisor
  students:   Enrolment
  settings:   Name/value pairs; "due_amount" holds a decimal string
  sweep_runs: History of daily sweeps

CONCURRENCY:
  Uses sync.RWMutex around statements, so within one Store racing inserts
  for the same (student, day) are serialized and the loser meets the UNIQUE
  constraint after the winner has committed. Separate processes (or two
  Store values on one file) have no shared mutex and race on the constraint
  alone; _busy_timeout makes their writers wait instead of failing with
  SQLITE_BUSY.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) so readers don't block the
  single writer.

USAGE:
  store, err := sqlite.New("./data/canteen.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  engine := dues.NewEngine(store, store, store)

MIGRATION:
  Schema is auto-migrated on New().
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"
	"github.com/warp/canteen-engine/dues"
)

const timeLayout = time.RFC3339Nano

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Daily records, one per student per day
	CREATE TABLE IF NOT EXISTS records (
		id TEXT PRIMARY KEY,
		student_id INTEGER NOT NULL,
		class_id INTEGER,
		day TEXT NOT NULL,
		amount INTEGER NOT NULL DEFAULT 0,
		has_paid INTEGER NOT NULL DEFAULT 0,
		is_absent INTEGER NOT NULL DEFAULT 0,
		is_prepaid INTEGER NOT NULL DEFAULT 0,
		due_amount_snapshot INTEGER NOT NULL DEFAULT 0,
		submitted_by INTEGER NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		UNIQUE(student_id, day)
	);

	-- Reconciliation reads a whole class-day at once (hot path)
	CREATE INDEX IF NOT EXISTS idx_records_class_day
		ON records(class_id, day);

	CREATE TABLE IF NOT EXISTS classes (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		supervisor_id INTEGER
	);

	CREATE TABLE IF NOT EXISTS students (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		class_id INTEGER NOT NULL REFERENCES classes(id),
		name TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_students_class
		ON students(class_id);

	CREATE TABLE IF NOT EXISTS settings (
		name TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	-- Sweep runs (for the daily scheduler)
	CREATE TABLE IF NOT EXISTS sweep_runs (
		id TEXT PRIMARY KEY,
		day TEXT NOT NULL,
		trigger TEXT NOT NULL,
		status TEXT NOT NULL,
		created INTEGER NOT NULL DEFAULT 0,
		skipped INTEGER NOT NULL DEFAULT 0,
		failed INTEGER NOT NULL DEFAULT 0,
		error TEXT NOT NULL DEFAULT '',
		started_at TEXT NOT NULL,
		completed_at TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_sweep_runs_day_status
		ON sweep_runs(day, status);
	`

	_, err := s.db.Exec(schema)
	return err
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// =============================================================================
// RECORD STORE (dues.RecordStore interface)
// =============================================================================

const recordColumns = `id, student_id, class_id, day, amount, has_paid, is_absent, is_prepaid,
	due_amount_snapshot, submitted_by, created_at, updated_at`

func (s *Store) Insert(ctx context.Context, rec dues.Record) (dues.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return insertRecord(ctx, s.db, rec)
}

func (s *Store) Find(ctx context.Context, key dues.RecordKey) (*dues.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return findRecord(ctx, s.db, key)
}

func (s *Store) FindForClass(ctx context.Context, classID dues.ClassID, from, to dues.Day) ([]dues.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return queryRecords(ctx, s.db, `
		SELECT `+recordColumns+` FROM records
		WHERE class_id = ? AND day >= ? AND day <= ?
		ORDER BY day, student_id
	`, int64(classID), from.String(), to.String())
}

func (s *Store) Upsert(ctx context.Context, rec dues.Record) (dues.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return upsertRecord(ctx, s.db, rec)
}

func insertRecord(ctx context.Context, q querier, rec dues.Record) (dues.Record, error) {
	if rec.ID == "" {
		rec.ID = dues.RecordID(uuid.NewString())
	}
	now := time.Now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now

	_, err := q.ExecContext(ctx, `
		INSERT INTO records (`+recordColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		string(rec.ID),
		int64(rec.StudentID),
		classIDArg(rec.ClassID),
		rec.Day.String(),
		rec.Amount,
		rec.HasPaid,
		rec.IsAbsent,
		rec.IsPrepaid,
		rec.DueAmountSnapshot,
		int64(rec.SubmittedBy),
		rec.CreatedAt.Format(timeLayout),
		rec.UpdatedAt.Format(timeLayout),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return dues.Record{}, &dues.DuplicateKeyError{Key: rec.Key()}
		}
		return dues.Record{}, fmt.Errorf("failed to insert record: %w", err)
	}
	return rec, nil
}

func upsertRecord(ctx context.Context, q querier, rec dues.Record) (dues.Record, error) {
	now := time.Now().UTC().Format(timeLayout)
	_, err := q.ExecContext(ctx, `
		INSERT INTO records (`+recordColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(student_id, day) DO UPDATE SET
			amount = excluded.amount,
			has_paid = excluded.has_paid,
			is_absent = excluded.is_absent,
			submitted_by = excluded.submitted_by,
			updated_at = excluded.updated_at
	`,
		uuid.NewString(),
		int64(rec.StudentID),
		classIDArg(rec.ClassID),
		rec.Day.String(),
		rec.Amount,
		rec.HasPaid,
		rec.IsAbsent,
		rec.IsPrepaid,
		rec.DueAmountSnapshot,
		int64(rec.SubmittedBy),
		now,
		now,
	)
	if err != nil {
		return dues.Record{}, fmt.Errorf("failed to upsert record: %w", err)
	}
	saved, err := findRecord(ctx, q, rec.Key())
	if err != nil {
		return dues.Record{}, err
	}
	if saved == nil {
		return dues.Record{}, dues.ErrRecordNotFound
	}
	return *saved, nil
}

func findRecord(ctx context.Context, q querier, key dues.RecordKey) (*dues.Record, error) {
	recs, err := queryRecords(ctx, q, `
		SELECT `+recordColumns+` FROM records WHERE student_id = ? AND day = ?
	`, int64(key.StudentID), key.Day.String())
	if err != nil || len(recs) == 0 {
		return nil, err
	}
	return &recs[0], nil
}

func queryRecords(ctx context.Context, q querier, query string, args ...any) ([]dues.Record, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer rows.Close()

	var out []dues.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func scanRecord(rows *sql.Rows) (dues.Record, error) {
	var (
		rec                  dues.Record
		id                   string
		studentID, submitter int64
		classID              sql.NullInt64
		day                  string
		createdAt, updatedAt string
	)
	err := rows.Scan(&id, &studentID, &classID, &day, &rec.Amount, &rec.HasPaid, &rec.IsAbsent,
		&rec.IsPrepaid, &rec.DueAmountSnapshot, &submitter, &createdAt, &updatedAt)
	if err != nil {
		return dues.Record{}, fmt.Errorf("failed to scan record: %w", err)
	}

	rec.ID = dues.RecordID(id)
	rec.StudentID = dues.StudentID(studentID)
	rec.SubmittedBy = dues.SubmitterID(submitter)
	if classID.Valid {
		rec.ClassID = dues.ClassIDPtr(dues.ClassID(classID.Int64))
	}
	if rec.Day, err = dues.ParseDay(day); err != nil {
		return dues.Record{}, fmt.Errorf("record %s has bad day %q: %w", id, day, err)
	}
	rec.CreatedAt, _ = time.Parse(timeLayout, createdAt)
	rec.UpdatedAt, _ = time.Parse(timeLayout, updatedAt)
	return rec, nil
}

// =============================================================================
// TRANSACTIONAL STORE (dues.TxStore interface)
// =============================================================================

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(dues.RecordStore) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{tx: sqlTx}); err != nil {
		return err
	}

	return sqlTx.Commit()
}

type txStore struct {
	tx *sql.Tx
}

func (ts *txStore) Insert(ctx context.Context, rec dues.Record) (dues.Record, error) {
	return insertRecord(ctx, ts.tx, rec)
}

func (ts *txStore) Find(ctx context.Context, key dues.RecordKey) (*dues.Record, error) {
	return findRecord(ctx, ts.tx, key)
}

func (ts *txStore) FindForClass(ctx context.Context, classID dues.ClassID, from, to dues.Day) ([]dues.Record, error) {
	return queryRecords(ctx, ts.tx, `
		SELECT `+recordColumns+` FROM records
		WHERE class_id = ? AND day >= ? AND day <= ?
		ORDER BY day, student_id
	`, int64(classID), from.String(), to.String())
}

func (ts *txStore) Upsert(ctx context.Context, rec dues.Record) (dues.Record, error) {
	return upsertRecord(ctx, ts.tx, rec)
}

// =============================================================================
// RECORD MANAGER (dues.RecordManager interface)
// =============================================================================

func (s *Store) Get(ctx context.Context, id dues.RecordID) (*dues.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	recs, err := queryRecords(ctx, s.db, `SELECT `+recordColumns+` FROM records WHERE id = ?`, string(id))
	if err != nil || len(recs) == 0 {
		return nil, err
	}
	return &recs[0], nil
}

// Update rewrites every editable column of an existing record. The due
// snapshot and creation time are never touched.
func (s *Store) Update(ctx context.Context, rec dues.Record) (dues.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		UPDATE records SET student_id = ?, class_id = ?, day = ?, amount = ?, has_paid = ?,
			is_absent = ?, is_prepaid = ?, submitted_by = ?, updated_at = ?
		WHERE id = ?
	`,
		int64(rec.StudentID), classIDArg(rec.ClassID), rec.Day.String(), rec.Amount, rec.HasPaid,
		rec.IsAbsent, rec.IsPrepaid, int64(rec.SubmittedBy), time.Now().UTC().Format(timeLayout),
		string(rec.ID),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return dues.Record{}, &dues.DuplicateKeyError{Key: rec.Key()}
		}
		return dues.Record{}, fmt.Errorf("failed to update record: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return dues.Record{}, dues.ErrRecordNotFound
	}

	recs, err := queryRecords(ctx, s.db, `SELECT `+recordColumns+` FROM records WHERE id = ?`, string(rec.ID))
	if err != nil {
		return dues.Record{}, err
	}
	if len(recs) == 0 {
		return dues.Record{}, dues.ErrRecordNotFound
	}
	return recs[0], nil
}

func (s *Store) Delete(ctx context.Context, id dues.RecordID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `DELETE FROM records WHERE id = ?`, string(id))
	if err != nil {
		return fmt.Errorf("failed to delete record: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return dues.ErrRecordNotFound
	}
	return nil
}

func (s *Store) ListByStudent(ctx context.Context, studentID dues.StudentID) ([]dues.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return queryRecords(ctx, s.db, `
		SELECT `+recordColumns+` FROM records WHERE student_id = ? ORDER BY day
	`, int64(studentID))
}

// =============================================================================
// ROSTER
// =============================================================================

func (s *Store) SaveClass(ctx context.Context, c dues.Class) (dues.Class, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var supervisor any
	if c.SupervisorID != nil {
		supervisor = int64(*c.SupervisorID)
	}
	if c.ID == 0 {
		res, err := s.db.ExecContext(ctx, `INSERT INTO classes (name, supervisor_id) VALUES (?, ?)`, c.Name, supervisor)
		if err != nil {
			return dues.Class{}, fmt.Errorf("failed to save class: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return dues.Class{}, err
		}
		c.ID = dues.ClassID(id)
		return c, nil
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO classes (id, name, supervisor_id) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, supervisor_id = excluded.supervisor_id
	`, int64(c.ID), c.Name, supervisor)
	if err != nil {
		return dues.Class{}, fmt.Errorf("failed to save class: %w", err)
	}
	return c, nil
}

func (s *Store) ListClasses(ctx context.Context) ([]dues.Class, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queryClasses(ctx, `SELECT id, name, supervisor_id FROM classes ORDER BY id`)
}

func (s *Store) queryClasses(ctx context.Context, query string, args ...any) ([]dues.Class, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []dues.Class
	for rows.Next() {
		var (
			id         int64
			name       string
			supervisor sql.NullInt64
		)
		if err := rows.Scan(&id, &name, &supervisor); err != nil {
			return nil, err
		}
		c := dues.Class{ID: dues.ClassID(id), Name: name}
		if supervisor.Valid {
			sup := dues.SubmitterID(supervisor.Int64)
			c.SupervisorID = &sup
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) AssignSupervisor(ctx context.Context, classID dues.ClassID, supervisor *dues.SubmitterID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var arg any
	if supervisor != nil {
		arg = int64(*supervisor)
	}
	res, err := s.db.ExecContext(ctx, `UPDATE classes SET supervisor_id = ? WHERE id = ?`, arg, int64(classID))
	if err != nil {
		return fmt.Errorf("failed to assign supervisor: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return dues.ErrClassNotFound
	}
	return nil
}

func (s *Store) SaveStudent(ctx context.Context, st dues.Student) (dues.Student, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var exists int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM classes WHERE id = ?`, int64(st.ClassID)).Scan(&exists); err != nil {
		return dues.Student{}, err
	}
	if exists == 0 {
		return dues.Student{}, dues.ErrClassNotFound
	}

	if st.ID == 0 {
		res, err := s.db.ExecContext(ctx, `INSERT INTO students (class_id, name) VALUES (?, ?)`, int64(st.ClassID), st.Name)
		if err != nil {
			return dues.Student{}, fmt.Errorf("failed to save student: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return dues.Student{}, err
		}
		st.ID = dues.StudentID(id)
		return st, nil
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO students (id, class_id, name) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET class_id = excluded.class_id, name = excluded.name
	`, int64(st.ID), int64(st.ClassID), st.Name)
	if err != nil {
		return dues.Student{}, fmt.Errorf("failed to save student: %w", err)
	}
	return st, nil
}

func (s *Store) ClassRoster(ctx context.Context, classID dues.ClassID) (dues.Roster, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	classes, err := s.queryClasses(ctx, `SELECT id, name, supervisor_id FROM classes WHERE id = ?`, int64(classID))
	if err != nil {
		return dues.Roster{}, err
	}
	if len(classes) == 0 {
		return dues.Roster{}, dues.ErrClassNotFound
	}
	students, err := s.queryStudents(ctx, `SELECT id, class_id, name FROM students WHERE class_id = ? ORDER BY id`, int64(classID))
	if err != nil {
		return dues.Roster{}, err
	}
	return dues.Roster{Class: classes[0], Students: students}, nil
}

func (s *Store) Rosters(ctx context.Context) ([]dues.Roster, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	classes, err := s.queryClasses(ctx, `SELECT id, name, supervisor_id FROM classes ORDER BY id`)
	if err != nil {
		return nil, err
	}
	students, err := s.queryStudents(ctx, `SELECT id, class_id, name FROM students ORDER BY class_id, id`)
	if err != nil {
		return nil, err
	}

	byClass := make(map[dues.ClassID][]dues.Student)
	for _, st := range students {
		byClass[st.ClassID] = append(byClass[st.ClassID], st)
	}
	out := make([]dues.Roster, 0, len(classes))
	for _, c := range classes {
		out = append(out, dues.Roster{Class: c, Students: byClass[c.ID]})
	}
	return out, nil
}

func (s *Store) Student(ctx context.Context, id dues.StudentID) (dues.Student, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	students, err := s.queryStudents(ctx, `SELECT id, class_id, name FROM students WHERE id = ?`, int64(id))
	if err != nil {
		return dues.Student{}, err
	}
	if len(students) == 0 {
		return dues.Student{}, dues.ErrStudentNotFound
	}
	return students[0], nil
}

func (s *Store) queryStudents(ctx context.Context, query string, args ...any) ([]dues.Student, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []dues.Student
	for rows.Next() {
		var id, classID int64
		var name string
		if err := rows.Scan(&id, &classID, &name); err != nil {
			return nil, err
		}
		out = append(out, dues.Student{ID: dues.StudentID(id), ClassID: dues.ClassID(classID), Name: name})
	}
	return out, rows.Err()
}

// =============================================================================
// SETTINGS
// =============================================================================

const dueAmountSetting = "due_amount"

func (s *Store) DueAmount(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE name = ?`, dueAmountSetting).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return dues.ParseDueAmount(value)
}

func (s *Store) SetDueAmount(ctx context.Context, value string) error {
	normalized, err := dues.NormalizeDueAmount(value)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO settings (name, value) VALUES (?, ?)
		ON CONFLICT(name) DO UPDATE SET value = excluded.value
	`, dueAmountSetting, normalized)
	return err
}

// =============================================================================
// SWEEP RUNS STORE
// =============================================================================

// SaveSweepRun saves a sweep run.
func (s *Store) SaveSweepRun(ctx context.Context, r dues.SweepRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO sweep_runs (id, day, trigger, status, created, skipped, failed, error, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			created = excluded.created,
			skipped = excluded.skipped,
			failed = excluded.failed,
			error = excluded.error,
			completed_at = excluded.completed_at
	`

	var completedAt *string
	if r.CompletedAt != nil {
		s := r.CompletedAt.UTC().Format(timeLayout)
		completedAt = &s
	}

	_, err := s.db.ExecContext(ctx, query,
		r.ID, r.Day.String(), r.Trigger, r.Status,
		r.Created, r.Skipped, r.Failed, r.Error,
		r.StartedAt.UTC().Format(timeLayout), completedAt,
	)
	return err
}

// ListSweepRuns returns the most recent sweep runs first.
func (s *Store) ListSweepRuns(ctx context.Context, limit int) ([]dues.SweepRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, day, trigger, status, created, skipped, failed, error, started_at, completed_at
		FROM sweep_runs
		ORDER BY started_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []dues.SweepRun
	for rows.Next() {
		var r dues.SweepRun
		var day, startedAt string
		var completedAt sql.NullString
		if err := rows.Scan(
			&r.ID, &day, &r.Trigger, &r.Status, &r.Created, &r.Skipped, &r.Failed, &r.Error,
			&startedAt, &completedAt,
		); err != nil {
			return nil, err
		}

		r.Day, _ = dues.ParseDay(day)
		r.StartedAt, _ = time.Parse(timeLayout, startedAt)
		if completedAt.Valid {
			t, _ := time.Parse(timeLayout, completedAt.String)
			r.CompletedAt = &t
		}
		runs = append(runs, r)
	}

	return runs, rows.Err()
}

// IsSweepComplete checks if the sweep for day has already succeeded.
func (s *Store) IsSweepComplete(ctx context.Context, day dues.Day) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM sweep_runs WHERE day = ? AND status = ?
	`, day.String(), dues.SweepCompleted).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// Helper functions

func classIDArg(id *dues.ClassID) any {
	if id == nil {
		return nil
	}
	return int64(*id)
}

func isUniqueConstraintError(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
