/*
Package postgres provides a PostgreSQL implementation of the dues storage interfaces.

PURPOSE:
  Production backend. Mirrors store/sqlite table for table, built on a pgx
  connection pool with queries assembled by squirrel.

UNIQUENESS:
  records carries UNIQUE(student_id, day). A violation surfaces as SQLSTATE
  23505 and is translated into dues.DuplicateKeyError; that constraint is the
  only concurrency control the engine relies on across server instances.

TRANSACTIONS:
  WithTx runs fn against a pgx.Tx. An error from fn rolls back.
*/
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/warp/canteen-engine/dues"
)

const uniqueViolation = "23505"

const schema = `
CREATE TABLE IF NOT EXISTS classes (
	id BIGSERIAL PRIMARY KEY,
	name TEXT NOT NULL,
	supervisor_id BIGINT
);

CREATE TABLE IF NOT EXISTS students (
	id BIGSERIAL PRIMARY KEY,
	class_id BIGINT NOT NULL REFERENCES classes(id),
	name TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_students_class ON students(class_id);

CREATE TABLE IF NOT EXISTS records (
	id TEXT PRIMARY KEY,
	student_id BIGINT NOT NULL,
	class_id BIGINT,
	day DATE NOT NULL,
	amount BIGINT NOT NULL DEFAULT 0,
	has_paid BOOLEAN NOT NULL DEFAULT FALSE,
	is_absent BOOLEAN NOT NULL DEFAULT FALSE,
	is_prepaid BOOLEAN NOT NULL DEFAULT FALSE,
	due_amount_snapshot BIGINT NOT NULL DEFAULT 0,
	submitted_by BIGINT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	UNIQUE (student_id, day)
);

CREATE INDEX IF NOT EXISTS idx_records_class_day ON records(class_id, day);

CREATE TABLE IF NOT EXISTS settings (
	name TEXT PRIMARY KEY,
	value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS sweep_runs (
	id TEXT PRIMARY KEY,
	day DATE NOT NULL,
	trigger TEXT NOT NULL,
	status TEXT NOT NULL,
	created INTEGER NOT NULL DEFAULT 0,
	skipped INTEGER NOT NULL DEFAULT 0,
	failed INTEGER NOT NULL DEFAULT 0,
	error TEXT NOT NULL DEFAULT '',
	started_at TIMESTAMPTZ NOT NULL,
	completed_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_sweep_runs_day_status ON sweep_runs(day, status);
`

var recordColumns = []string{
	"id", "student_id", "class_id", "day", "amount", "has_paid", "is_absent", "is_prepaid",
	"due_amount_snapshot", "submitted_by", "created_at", "updated_at",
}

// dbtx is satisfied by both *pgxpool.Pool and pgx.Tx.
type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Config holds pool settings.
type Config struct {
	URL      string
	MaxConns int32
}

// Store implements the dues storage interfaces on PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
	sb   squirrel.StatementBuilderType
	log  zerolog.Logger
}

// New connects, pings and migrates.
func New(ctx context.Context, cfg Config, log zerolog.Logger) (*Store, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse pgxpool config: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = cfg.MaxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create database connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to establish database connection: %w", err)
	}

	s := newStore(pool, log)
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

func newStore(pool *pgxpool.Pool, log zerolog.Logger) *Store {
	return &Store{
		pool: pool,
		sb:   squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
		log:  log,
	}
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

func (s *Store) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

// isDuplicateKeyError checks if the error is a PostgreSQL unique violation error.
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// =============================================================================
// RECORD STORE
// =============================================================================

func (s *Store) Insert(ctx context.Context, rec dues.Record) (dues.Record, error) {
	return s.insert(ctx, s.pool, rec)
}

func (s *Store) Find(ctx context.Context, key dues.RecordKey) (*dues.Record, error) {
	return s.find(ctx, s.pool, key)
}

func (s *Store) FindForClass(ctx context.Context, classID dues.ClassID, from, to dues.Day) ([]dues.Record, error) {
	return s.findForClass(ctx, s.pool, classID, from, to)
}

func (s *Store) Upsert(ctx context.Context, rec dues.Record) (dues.Record, error) {
	return s.upsert(ctx, s.pool, rec)
}

func (s *Store) insertSQL(rec dues.Record) (string, []any, error) {
	return s.sb.Insert("records").
		Columns(recordColumns...).
		Values(recordValues(rec)...).
		Suffix("RETURNING " + joinColumns()).
		ToSql()
}

// upsertSQL writes only the tally-owned columns on conflict.
func (s *Store) upsertSQL(rec dues.Record) (string, []any, error) {
	return s.sb.Insert("records").
		Columns(recordColumns...).
		Values(recordValues(rec)...).
		Suffix(`ON CONFLICT (student_id, day) DO UPDATE SET
			amount = EXCLUDED.amount,
			has_paid = EXCLUDED.has_paid,
			is_absent = EXCLUDED.is_absent,
			submitted_by = EXCLUDED.submitted_by,
			updated_at = EXCLUDED.updated_at
			RETURNING ` + joinColumns()).
		ToSql()
}

func (s *Store) insert(ctx context.Context, db dbtx, rec dues.Record) (dues.Record, error) {
	rec = withDefaults(rec)
	query, args, err := s.insertSQL(rec)
	if err != nil {
		return dues.Record{}, fmt.Errorf("failed to build insert record query: %w", err)
	}
	created, err := scanRecord(db.QueryRow(ctx, query, args...))
	if err != nil {
		if isDuplicateKeyError(err) {
			return dues.Record{}, &dues.DuplicateKeyError{Key: rec.Key()}
		}
		return dues.Record{}, fmt.Errorf("error inserting record: %w", err)
	}
	return created, nil
}

func (s *Store) upsert(ctx context.Context, db dbtx, rec dues.Record) (dues.Record, error) {
	// A fresh ID only matters when the row is created.
	rec.ID = ""
	rec = withDefaults(rec)
	query, args, err := s.upsertSQL(rec)
	if err != nil {
		return dues.Record{}, fmt.Errorf("failed to build upsert record query: %w", err)
	}
	saved, err := scanRecord(db.QueryRow(ctx, query, args...))
	if err != nil {
		return dues.Record{}, fmt.Errorf("error upserting record: %w", err)
	}
	return saved, nil
}

func (s *Store) find(ctx context.Context, db dbtx, key dues.RecordKey) (*dues.Record, error) {
	query, args, err := s.sb.Select(recordColumns...).
		From("records").
		Where(squirrel.Eq{"student_id": int64(key.StudentID), "day": key.Day.String()}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build find record query: %w", err)
	}
	rec, err := scanRecord(db.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error finding record: %w", err)
	}
	return &rec, nil
}

func (s *Store) findForClassSQL(classID dues.ClassID, from, to dues.Day) (string, []any, error) {
	return s.sb.Select(recordColumns...).
		From("records").
		Where(squirrel.Eq{"class_id": int64(classID)}).
		Where(squirrel.GtOrEq{"day": from.String()}).
		Where(squirrel.LtOrEq{"day": to.String()}).
		OrderBy("day", "student_id").
		ToSql()
}

func (s *Store) findForClass(ctx context.Context, db dbtx, classID dues.ClassID, from, to dues.Day) ([]dues.Record, error) {
	query, args, err := s.findForClassSQL(classID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to build class records query: %w", err)
	}
	return queryRecords(ctx, db, query, args...)
}

func queryRecords(ctx context.Context, db dbtx, query string, args ...any) ([]dues.Record, error) {
	rows, err := db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error querying records: %w", err)
	}
	defer rows.Close()

	out := []dues.Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning record row: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating record rows: %w", err)
	}
	return out, nil
}

func withDefaults(rec dues.Record) dues.Record {
	if rec.ID == "" {
		rec.ID = dues.RecordID(uuid.NewString())
	}
	now := time.Now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
	return rec
}

func recordValues(rec dues.Record) []any {
	var classID *int64
	if rec.ClassID != nil {
		v := int64(*rec.ClassID)
		classID = &v
	}
	return []any{
		string(rec.ID), int64(rec.StudentID), classID, rec.Day.String(), rec.Amount,
		rec.HasPaid, rec.IsAbsent, rec.IsPrepaid, rec.DueAmountSnapshot, int64(rec.SubmittedBy),
		rec.CreatedAt, rec.UpdatedAt,
	}
}

func joinColumns() string { return strings.Join(recordColumns, ", ") }

func scanRecord(row pgx.Row) (dues.Record, error) {
	var (
		rec                  dues.Record
		id                   string
		studentID, submitter int64
		classID              *int64
		day                  time.Time
	)
	err := row.Scan(&id, &studentID, &classID, &day, &rec.Amount, &rec.HasPaid, &rec.IsAbsent,
		&rec.IsPrepaid, &rec.DueAmountSnapshot, &submitter, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return dues.Record{}, err
	}
	rec.ID = dues.RecordID(id)
	rec.StudentID = dues.StudentID(studentID)
	rec.SubmittedBy = dues.SubmitterID(submitter)
	if classID != nil {
		rec.ClassID = dues.ClassIDPtr(dues.ClassID(*classID))
	}
	rec.Day = dues.NewDay(day.Year(), day.Month(), day.Day())
	return rec, nil
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx runs fn within a transaction, rolling back on error or panic.
func (s *Store) WithTx(ctx context.Context, fn func(dues.RecordStore) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if r := recover(); r != nil {
			_ = tx.Rollback(ctx)
			panic(r)
		}
	}()

	if err := fn(&txStore{tx: tx, parent: s}); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			s.log.Error().Err(rbErr).Msg("failed to rollback transaction")
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

type txStore struct {
	tx     pgx.Tx
	parent *Store
}

func (ts *txStore) Insert(ctx context.Context, rec dues.Record) (dues.Record, error) {
	return ts.parent.insert(ctx, ts.tx, rec)
}

func (ts *txStore) Find(ctx context.Context, key dues.RecordKey) (*dues.Record, error) {
	return ts.parent.find(ctx, ts.tx, key)
}

func (ts *txStore) FindForClass(ctx context.Context, classID dues.ClassID, from, to dues.Day) ([]dues.Record, error) {
	return ts.parent.findForClass(ctx, ts.tx, classID, from, to)
}

func (ts *txStore) Upsert(ctx context.Context, rec dues.Record) (dues.Record, error) {
	return ts.parent.upsert(ctx, ts.tx, rec)
}

// =============================================================================
// RECORD MANAGER
// =============================================================================

func (s *Store) Get(ctx context.Context, id dues.RecordID) (*dues.Record, error) {
	query, args, err := s.sb.Select(recordColumns...).From("records").Where(squirrel.Eq{"id": string(id)}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build get record query: %w", err)
	}
	rec, err := scanRecord(s.pool.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error getting record: %w", err)
	}
	return &rec, nil
}

// Update rewrites the editable columns. The due snapshot and creation time
// are left alone.
func (s *Store) Update(ctx context.Context, rec dues.Record) (dues.Record, error) {
	var classID *int64
	if rec.ClassID != nil {
		v := int64(*rec.ClassID)
		classID = &v
	}
	query, args, err := s.sb.Update("records").
		SetMap(map[string]interface{}{
			"student_id":   int64(rec.StudentID),
			"class_id":     classID,
			"day":          rec.Day.String(),
			"amount":       rec.Amount,
			"has_paid":     rec.HasPaid,
			"is_absent":    rec.IsAbsent,
			"is_prepaid":   rec.IsPrepaid,
			"submitted_by": int64(rec.SubmittedBy),
			"updated_at":   time.Now().UTC(),
		}).
		Where(squirrel.Eq{"id": string(rec.ID)}).
		Suffix("RETURNING " + joinColumns()).
		ToSql()
	if err != nil {
		return dues.Record{}, fmt.Errorf("failed to build update record query: %w", err)
	}
	updated, err := scanRecord(s.pool.QueryRow(ctx, query, args...))
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return dues.Record{}, dues.ErrRecordNotFound
	case isDuplicateKeyError(err):
		return dues.Record{}, &dues.DuplicateKeyError{Key: rec.Key()}
	case err != nil:
		return dues.Record{}, fmt.Errorf("error updating record: %w", err)
	}
	return updated, nil
}

func (s *Store) Delete(ctx context.Context, id dues.RecordID) error {
	query, args, err := s.sb.Delete("records").Where(squirrel.Eq{"id": string(id)}).ToSql()
	if err != nil {
		return fmt.Errorf("failed to build delete record query: %w", err)
	}
	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("error deleting record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return dues.ErrRecordNotFound
	}
	return nil
}

func (s *Store) ListByStudent(ctx context.Context, studentID dues.StudentID) ([]dues.Record, error) {
	query, args, err := s.sb.Select(recordColumns...).
		From("records").
		Where(squirrel.Eq{"student_id": int64(studentID)}).
		OrderBy("day").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build student history query: %w", err)
	}
	return queryRecords(ctx, s.pool, query, args...)
}

// =============================================================================
// ROSTER
// =============================================================================

func supervisorArg(id *dues.SubmitterID) *int64 {
	if id == nil {
		return nil
	}
	v := int64(*id)
	return &v
}

func (s *Store) SaveClass(ctx context.Context, c dues.Class) (dues.Class, error) {
	b := s.sb.Insert("classes")
	if c.ID == 0 {
		b = b.Columns("name", "supervisor_id").Values(c.Name, supervisorArg(c.SupervisorID))
	} else {
		b = b.Columns("id", "name", "supervisor_id").
			Values(int64(c.ID), c.Name, supervisorArg(c.SupervisorID)).
			Suffix("ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, supervisor_id = EXCLUDED.supervisor_id")
	}
	query, args, err := b.Suffix("RETURNING id").ToSql()
	if err != nil {
		return dues.Class{}, fmt.Errorf("failed to build save class query: %w", err)
	}
	var id int64
	if err := s.pool.QueryRow(ctx, query, args...).Scan(&id); err != nil {
		return dues.Class{}, fmt.Errorf("error saving class: %w", err)
	}
	c.ID = dues.ClassID(id)
	return c, nil
}

func (s *Store) ListClasses(ctx context.Context) ([]dues.Class, error) {
	query, args, err := s.sb.Select("id", "name", "supervisor_id").From("classes").OrderBy("id").ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build list classes query: %w", err)
	}
	return s.queryClasses(ctx, query, args...)
}

func (s *Store) queryClasses(ctx context.Context, query string, args ...any) ([]dues.Class, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error querying classes: %w", err)
	}
	defer rows.Close()

	out := []dues.Class{}
	for rows.Next() {
		var id int64
		var name string
		var supervisor *int64
		if err := rows.Scan(&id, &name, &supervisor); err != nil {
			return nil, fmt.Errorf("error scanning class row: %w", err)
		}
		c := dues.Class{ID: dues.ClassID(id), Name: name}
		if supervisor != nil {
			sup := dues.SubmitterID(*supervisor)
			c.SupervisorID = &sup
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) AssignSupervisor(ctx context.Context, classID dues.ClassID, supervisor *dues.SubmitterID) error {
	query, args, err := s.sb.Update("classes").
		Set("supervisor_id", supervisorArg(supervisor)).
		Where(squirrel.Eq{"id": int64(classID)}).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build assign supervisor query: %w", err)
	}
	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("error assigning supervisor: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return dues.ErrClassNotFound
	}
	return nil
}

func (s *Store) SaveStudent(ctx context.Context, st dues.Student) (dues.Student, error) {
	var exists bool
	if err := s.pool.QueryRow(ctx, "SELECT EXISTS(SELECT 1 FROM classes WHERE id = $1)", int64(st.ClassID)).Scan(&exists); err != nil {
		return dues.Student{}, fmt.Errorf("error checking class: %w", err)
	}
	if !exists {
		return dues.Student{}, dues.ErrClassNotFound
	}

	b := s.sb.Insert("students")
	if st.ID == 0 {
		b = b.Columns("class_id", "name").Values(int64(st.ClassID), st.Name)
	} else {
		b = b.Columns("id", "class_id", "name").
			Values(int64(st.ID), int64(st.ClassID), st.Name).
			Suffix("ON CONFLICT (id) DO UPDATE SET class_id = EXCLUDED.class_id, name = EXCLUDED.name")
	}
	query, args, err := b.Suffix("RETURNING id").ToSql()
	if err != nil {
		return dues.Student{}, fmt.Errorf("failed to build save student query: %w", err)
	}
	var id int64
	if err := s.pool.QueryRow(ctx, query, args...).Scan(&id); err != nil {
		return dues.Student{}, fmt.Errorf("error saving student: %w", err)
	}
	st.ID = dues.StudentID(id)
	return st, nil
}

func (s *Store) ClassRoster(ctx context.Context, classID dues.ClassID) (dues.Roster, error) {
	query, args, err := s.sb.Select("id", "name", "supervisor_id").From("classes").Where(squirrel.Eq{"id": int64(classID)}).ToSql()
	if err != nil {
		return dues.Roster{}, fmt.Errorf("failed to build class query: %w", err)
	}
	classes, err := s.queryClasses(ctx, query, args...)
	if err != nil {
		return dues.Roster{}, err
	}
	if len(classes) == 0 {
		return dues.Roster{}, dues.ErrClassNotFound
	}
	students, err := s.queryStudents(ctx, squirrel.Eq{"class_id": int64(classID)})
	if err != nil {
		return dues.Roster{}, err
	}
	return dues.Roster{Class: classes[0], Students: students}, nil
}

func (s *Store) Rosters(ctx context.Context) ([]dues.Roster, error) {
	classes, err := s.ListClasses(ctx)
	if err != nil {
		return nil, err
	}
	students, err := s.queryStudents(ctx, nil)
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
	students, err := s.queryStudents(ctx, squirrel.Eq{"id": int64(id)})
	if err != nil {
		return dues.Student{}, err
	}
	if len(students) == 0 {
		return dues.Student{}, dues.ErrStudentNotFound
	}
	return students[0], nil
}

func (s *Store) queryStudents(ctx context.Context, where squirrel.Sqlizer) ([]dues.Student, error) {
	b := s.sb.Select("id", "class_id", "name").From("students").OrderBy("class_id", "id")
	if where != nil {
		b = b.Where(where)
	}
	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build students query: %w", err)
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error querying students: %w", err)
	}
	defer rows.Close()

	out := []dues.Student{}
	for rows.Next() {
		var id, classID int64
		var name string
		if err := rows.Scan(&id, &classID, &name); err != nil {
			return nil, fmt.Errorf("error scanning student row: %w", err)
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
	var value string
	err := s.pool.QueryRow(ctx, "SELECT value FROM settings WHERE name = $1", dueAmountSetting).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("error reading due amount: %w", err)
	}
	return dues.ParseDueAmount(value)
}

func (s *Store) SetDueAmount(ctx context.Context, value string) error {
	normalized, err := dues.NormalizeDueAmount(value)
	if err != nil {
		return err
	}
	query, args, err := s.sb.Insert("settings").
		Columns("name", "value").
		Values(dueAmountSetting, normalized).
		Suffix("ON CONFLICT (name) DO UPDATE SET value = EXCLUDED.value").
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build settings query: %w", err)
	}
	_, err = s.pool.Exec(ctx, query, args...)
	return err
}

// =============================================================================
// SWEEP RUNS
// =============================================================================

func (s *Store) SaveSweepRun(ctx context.Context, r dues.SweepRun) error {
	query, args, err := s.sb.Insert("sweep_runs").
		Columns("id", "day", "trigger", "status", "created", "skipped", "failed", "error", "started_at", "completed_at").
		Values(r.ID, r.Day.String(), r.Trigger, r.Status, r.Created, r.Skipped, r.Failed, r.Error, r.StartedAt, r.CompletedAt).
		Suffix(`ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			created = EXCLUDED.created,
			skipped = EXCLUDED.skipped,
			failed = EXCLUDED.failed,
			error = EXCLUDED.error,
			completed_at = EXCLUDED.completed_at`).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build sweep run query: %w", err)
	}
	_, err = s.pool.Exec(ctx, query, args...)
	return err
}

func (s *Store) IsSweepComplete(ctx context.Context, day dues.Day) (bool, error) {
	var done bool
	err := s.pool.QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM sweep_runs WHERE day = $1 AND status = $2)",
		day.String(), dues.SweepCompleted,
	).Scan(&done)
	return done, err
}

func (s *Store) ListSweepRuns(ctx context.Context, limit int) ([]dues.SweepRun, error) {
	b := s.sb.Select("id", "day", "trigger", "status", "created", "skipped", "failed", "error", "started_at", "completed_at").
		From("sweep_runs").
		OrderBy("started_at DESC")
	if limit > 0 {
		b = b.Limit(uint64(limit))
	}
	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build sweep runs query: %w", err)
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error querying sweep runs: %w", err)
	}
	defer rows.Close()

	runs := []dues.SweepRun{}
	for rows.Next() {
		var r dues.SweepRun
		var day time.Time
		if err := rows.Scan(&r.ID, &day, &r.Trigger, &r.Status, &r.Created, &r.Skipped, &r.Failed,
			&r.Error, &r.StartedAt, &r.CompletedAt); err != nil {
			return nil, fmt.Errorf("error scanning sweep run row: %w", err)
		}
		r.Day = dues.NewDay(day.Year(), day.Month(), day.Day())
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
