// Package store provides in-memory implementations of the dues interfaces.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/warp/canteen-engine/dues"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory keeps records, roster and settings in maps. The (student, day)
// index plays the role of the database unique constraint. One mutex guards
// everything, so racing inserts are serialized and the loser sees the taken
// key rather than racing the winner.
type Memory struct {
	mu       sync.RWMutex
	records  map[dues.RecordID]dues.Record
	byKey    map[key]dues.RecordID
	classes  map[dues.ClassID]dues.Class
	students map[dues.StudentID]dues.Student
	due      string
	runs     []dues.SweepRun

	nextClass   dues.ClassID
	nextStudent dues.StudentID
}

type key struct {
	StudentID dues.StudentID
	Day       string
}

func keyOf(k dues.RecordKey) key { return key{StudentID: k.StudentID, Day: k.Day.String()} }

func NewMemory() *Memory {
	return &Memory{
		records:  make(map[dues.RecordID]dues.Record),
		byKey:    make(map[key]dues.RecordID),
		classes:  make(map[dues.ClassID]dues.Class),
		students: make(map[dues.StudentID]dues.Student),
	}
}

// =============================================================================
// RECORD STORE
// =============================================================================

func (m *Memory) Insert(_ context.Context, rec dues.Record) (dues.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insertLocked(rec)
}

func (m *Memory) Find(_ context.Context, k dues.RecordKey) (*dues.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.findLocked(k), nil
}

func (m *Memory) FindForClass(_ context.Context, classID dues.ClassID, from, to dues.Day) ([]dues.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.findForClassLocked(classID, from, to), nil
}

func (m *Memory) Upsert(_ context.Context, rec dues.Record) (dues.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.upsertLocked(rec)
}

func (m *Memory) insertLocked(rec dues.Record) (dues.Record, error) {
	k := keyOf(rec.Key())
	if _, taken := m.byKey[k]; taken {
		return dues.Record{}, &dues.DuplicateKeyError{Key: rec.Key()}
	}
	if rec.ID == "" {
		rec.ID = dues.RecordID(uuid.NewString())
	}
	now := time.Now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
	m.records[rec.ID] = rec
	m.byKey[k] = rec.ID
	return rec, nil
}

func (m *Memory) findLocked(k dues.RecordKey) *dues.Record {
	id, ok := m.byKey[keyOf(k)]
	if !ok {
		return nil
	}
	rec := m.records[id]
	return &rec
}

func (m *Memory) findForClassLocked(classID dues.ClassID, from, to dues.Day) []dues.Record {
	var out []dues.Record
	for _, r := range m.records {
		if r.ClassID == nil || *r.ClassID != classID {
			continue
		}
		if r.Day.Before(from) || r.Day.After(to) {
			continue
		}
		out = append(out, r)
	}
	sortRecords(out)
	return out
}

func (m *Memory) upsertLocked(rec dues.Record) (dues.Record, error) {
	existing := m.findLocked(rec.Key())
	if existing == nil {
		return m.insertLocked(rec)
	}
	updated := *existing
	updated.Amount = rec.Amount
	updated.HasPaid = rec.HasPaid
	updated.IsAbsent = rec.IsAbsent
	updated.SubmittedBy = rec.SubmittedBy
	updated.UpdatedAt = time.Now().UTC()
	m.records[updated.ID] = updated
	return updated, nil
}

func sortRecords(recs []dues.Record) {
	sort.Slice(recs, func(i, j int) bool {
		if !recs[i].Day.Equal(recs[j].Day) {
			return recs[i].Day.Before(recs[j].Day)
		}
		return recs[i].StudentID < recs[j].StudentID
	})
}

// All returns every stored record ordered by day then student.
func (m *Memory) All() []dues.Record {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]dues.Record, 0, len(m.records))
	for _, r := range m.records {
		out = append(out, r)
	}
	sortRecords(out)
	return out
}

// =============================================================================
// RECORD MANAGER
// =============================================================================

func (m *Memory) Get(_ context.Context, id dues.RecordID) (*dues.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[id]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (m *Memory) Update(_ context.Context, rec dues.Record) (dues.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	old, ok := m.records[rec.ID]
	if !ok {
		return dues.Record{}, dues.ErrRecordNotFound
	}
	newKey := keyOf(rec.Key())
	if owner, taken := m.byKey[newKey]; taken && owner != rec.ID {
		return dues.Record{}, &dues.DuplicateKeyError{Key: rec.Key()}
	}
	delete(m.byKey, keyOf(old.Key()))
	rec.CreatedAt = old.CreatedAt
	rec.DueAmountSnapshot = old.DueAmountSnapshot
	rec.UpdatedAt = time.Now().UTC()
	m.records[rec.ID] = rec
	m.byKey[newKey] = rec.ID
	return rec, nil
}

func (m *Memory) Delete(_ context.Context, id dues.RecordID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok {
		return dues.ErrRecordNotFound
	}
	delete(m.records, id)
	delete(m.byKey, keyOf(rec.Key()))
	return nil
}

func (m *Memory) ListByStudent(_ context.Context, studentID dues.StudentID) ([]dues.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []dues.Record
	for _, r := range m.records {
		if r.StudentID == studentID {
			out = append(out, r)
		}
	}
	sortRecords(out)
	return out, nil
}

// =============================================================================
// ROSTER
// =============================================================================

func (m *Memory) SaveClass(_ context.Context, c dues.Class) (dues.Class, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c.ID == 0 {
		m.nextClass++
		c.ID = m.nextClass
	} else if c.ID > m.nextClass {
		m.nextClass = c.ID
	}
	m.classes[c.ID] = c
	return c, nil
}

func (m *Memory) ListClasses(_ context.Context) ([]dues.Class, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]dues.Class, 0, len(m.classes))
	for _, c := range m.classes {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) AssignSupervisor(_ context.Context, classID dues.ClassID, supervisor *dues.SubmitterID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.classes[classID]
	if !ok {
		return dues.ErrClassNotFound
	}
	c.SupervisorID = supervisor
	m.classes[classID] = c
	return nil
}

func (m *Memory) SaveStudent(_ context.Context, s dues.Student) (dues.Student, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.classes[s.ClassID]; !ok {
		return dues.Student{}, dues.ErrClassNotFound
	}
	if s.ID == 0 {
		m.nextStudent++
		s.ID = m.nextStudent
	} else if s.ID > m.nextStudent {
		m.nextStudent = s.ID
	}
	m.students[s.ID] = s
	return s, nil
}

func (m *Memory) ClassRoster(_ context.Context, classID dues.ClassID) (dues.Roster, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.classes[classID]
	if !ok {
		return dues.Roster{}, dues.ErrClassNotFound
	}
	return m.rosterLocked(c), nil
}

func (m *Memory) Rosters(_ context.Context) ([]dues.Roster, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]dues.Roster, 0, len(m.classes))
	for _, c := range m.classes {
		out = append(out, m.rosterLocked(c))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Class.ID < out[j].Class.ID })
	return out, nil
}

func (m *Memory) rosterLocked(c dues.Class) dues.Roster {
	r := dues.Roster{Class: c}
	for _, s := range m.students {
		if s.ClassID == c.ID {
			r.Students = append(r.Students, s)
		}
	}
	sort.Slice(r.Students, func(i, j int) bool { return r.Students[i].ID < r.Students[j].ID })
	return r
}

func (m *Memory) Student(_ context.Context, studentID dues.StudentID) (dues.Student, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.students[studentID]
	if !ok {
		return dues.Student{}, dues.ErrStudentNotFound
	}
	return s, nil
}

// =============================================================================
// SETTINGS
// =============================================================================

func (m *Memory) DueAmount(_ context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return dues.ParseDueAmount(m.due)
}

func (m *Memory) SetDueAmount(_ context.Context, value string) error {
	normalized, err := dues.NormalizeDueAmount(value)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.due = normalized
	return nil
}

// =============================================================================
// SWEEP RUNS
// =============================================================================

func (m *Memory) SaveSweepRun(_ context.Context, run dues.SweepRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.runs {
		if m.runs[i].ID == run.ID {
			m.runs[i] = run
			return nil
		}
	}
	m.runs = append(m.runs, run)
	return nil
}

func (m *Memory) IsSweepComplete(_ context.Context, day dues.Day) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, r := range m.runs {
		if r.Day.Equal(day) && r.Status == dues.SweepCompleted {
			return true, nil
		}
	}
	return false, nil
}

func (m *Memory) ListSweepRuns(_ context.Context, limit int) ([]dues.SweepRun, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]dues.SweepRun, 0, len(m.runs))
	for i := len(m.runs) - 1; i >= 0; i-- {
		if limit > 0 && len(out) == limit {
			break
		}
		out = append(out, m.runs[i])
	}
	return out, nil
}

// =============================================================================
// TRANSACTIONAL MEMORY STORE
// =============================================================================

// TxMemory wraps Memory with transaction support.
type TxMemory struct {
	*Memory
}

func NewTxMemory() *TxMemory {
	return &TxMemory{Memory: NewMemory()}
}

// WithTx executes fn within a transaction, simulated with a snapshot and a
// rollback on error. The store stays locked for the duration of fn.
func (tm *TxMemory) WithTx(_ context.Context, fn func(dues.RecordStore) error) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	snap := tm.snapshot()
	if err := fn(&txMemoryView{parent: tm.Memory}); err != nil {
		tm.records = snap.records
		tm.byKey = snap.byKey
		return err
	}
	return nil
}

type memorySnapshot struct {
	records map[dues.RecordID]dues.Record
	byKey   map[key]dues.RecordID
}

func (tm *TxMemory) snapshot() memorySnapshot {
	recs := make(map[dues.RecordID]dues.Record, len(tm.records))
	for k, v := range tm.records {
		recs[k] = v
	}
	keys := make(map[key]dues.RecordID, len(tm.byKey))
	for k, v := range tm.byKey {
		keys[k] = v
	}
	return memorySnapshot{records: recs, byKey: keys}
}

// txMemoryView runs against the already locked parent.
type txMemoryView struct {
	parent *Memory
}

func (tv *txMemoryView) Insert(_ context.Context, rec dues.Record) (dues.Record, error) {
	return tv.parent.insertLocked(rec)
}

func (tv *txMemoryView) Find(_ context.Context, k dues.RecordKey) (*dues.Record, error) {
	return tv.parent.findLocked(k), nil
}

func (tv *txMemoryView) FindForClass(_ context.Context, classID dues.ClassID, from, to dues.Day) ([]dues.Record, error) {
	return tv.parent.findForClassLocked(classID, from, to), nil
}

func (tv *txMemoryView) Upsert(_ context.Context, rec dues.Record) (dues.Record, error) {
	return tv.parent.upsertLocked(rec)
}
