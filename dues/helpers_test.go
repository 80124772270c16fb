package dues_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/warp/canteen-engine/dues"
	"github.com/warp/canteen-engine/dues/store"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

var (
	oct16 = dues.NewDay(2026, time.October, 16)
	errDB = errors.New("connection reset")
)

type fixture struct {
	mem    *store.TxMemory
	engine *dues.Engine
	class  dues.Class
	ids    []dues.StudentID
}

// newFixture seeds one class with n students and a due amount of 5.
func newFixture(t *testing.T, n int, opts ...dues.Option) *fixture {
	t.Helper()
	ctx := context.Background()
	mem := store.NewTxMemory()

	supervisor := dues.SubmitterID(900)
	class, err := mem.SaveClass(ctx, dues.Class{Name: "JHS 1", SupervisorID: &supervisor})
	require.NoError(t, err)
	require.NoError(t, mem.SetDueAmount(ctx, "5"))

	f := &fixture{mem: mem, class: class}
	for i := 0; i < n; i++ {
		s, err := mem.SaveStudent(ctx, dues.Student{ClassID: class.ID, Name: "student"})
		require.NoError(t, err)
		f.ids = append(f.ids, s.ID)
	}

	opts = append([]dues.Option{dues.WithClock(dues.FixedClock(oct16))}, opts...)
	f.engine = dues.NewEngine(mem, mem, mem, opts...)
	return f
}

// withRecords swaps the engine's record store, keeping roster and settings.
func (f *fixture) withRecords(rs dues.RecordStore) *dues.Engine {
	return dues.NewEngine(rs, f.mem, f.mem, dues.WithClock(dues.FixedClock(oct16)))
}

// flakyStore fails Insert and Upsert for selected students.
type flakyStore struct {
	dues.RecordStore
	failOn map[dues.StudentID]error
}

func (s *flakyStore) Insert(ctx context.Context, rec dues.Record) (dues.Record, error) {
	if err, ok := s.failOn[rec.StudentID]; ok {
		return dues.Record{}, err
	}
	return s.RecordStore.Insert(ctx, rec)
}

func (s *flakyStore) Upsert(ctx context.Context, rec dues.Record) (dues.Record, error) {
	if err, ok := s.failOn[rec.StudentID]; ok {
		return dues.Record{}, err
	}
	return s.RecordStore.Upsert(ctx, rec)
}

// flakyTxStore is flakyStore with transactions passed through to TxMemory.
type flakyTxStore struct {
	*flakyStore
	tx *store.TxMemory
}

func newFlakyTx(mem *store.TxMemory, failOn map[dues.StudentID]error) *flakyTxStore {
	return &flakyTxStore{flakyStore: &flakyStore{RecordStore: mem, failOn: failOn}, tx: mem}
}

func (s *flakyTxStore) WithTx(ctx context.Context, fn func(dues.RecordStore) error) error {
	return s.tx.WithTx(ctx, func(rs dues.RecordStore) error {
		return fn(&flakyStore{RecordStore: rs, failOn: s.failOn})
	})
}

// nonTx hides WithTx so the engine takes the per-student path.
type nonTx struct{ dues.RecordStore }

type brokenRoster struct{ dues.RosterProvider }

func (brokenRoster) ClassRoster(context.Context, dues.ClassID) (dues.Roster, error) {
	return dues.Roster{}, errDB
}

func (brokenRoster) Rosters(context.Context) ([]dues.Roster, error) { return nil, errDB }

func (brokenRoster) Student(context.Context, dues.StudentID) (dues.Student, error) {
	return dues.Student{}, errDB
}

func countFor(recs []dues.Record, id dues.StudentID) int {
	n := 0
	for _, r := range recs {
		if r.StudentID == id {
			n++
		}
	}
	return n
}
