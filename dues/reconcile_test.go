package dues_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/canteen-engine/dues"
)

func TestReconcile_MaterializesMissingRecords(t *testing.T) {
	// GIVEN: A class of 4 with no records
	f := newFixture(t, 4)
	ctx := context.Background()

	// WHEN: Reconciling the class-day
	view, err := f.engine.ReconcileClassDay(ctx, f.class.ID, oct16)
	require.NoError(t, err)

	// THEN: Every student is unpaid with a fresh record
	assert.Equal(t, 4, view.Created)
	assert.Len(t, view.Unpaid, 4)
	assert.Empty(t, view.Paid)
	assert.Empty(t, view.Absent)
	assert.Equal(t, 4, view.Total())
	assert.NoError(t, view.Err())
	assert.Len(t, f.mem.All(), 4)
}

func TestReconcile_IsIdempotent(t *testing.T) {
	f := newFixture(t, 3)
	ctx := context.Background()

	first, err := f.engine.ReconcileClassDay(ctx, f.class.ID, oct16)
	require.NoError(t, err)
	second, err := f.engine.ReconcileClassDay(ctx, f.class.ID, oct16)
	require.NoError(t, err)

	assert.Equal(t, 3, first.Created)
	assert.Equal(t, 0, second.Created)
	assert.Len(t, f.mem.All(), 3)
	assert.ElementsMatch(t, first.Records(), second.Records())
}

func TestReconcile_PartitionsAreDisjointAndExhaustive(t *testing.T) {
	// GIVEN: One paid, one absent, one both absent and paid, one untouched
	f := newFixture(t, 4)
	ctx := context.Background()
	put := func(id dues.StudentID, paid, absent bool) {
		_, err := f.mem.Upsert(ctx, dues.Record{
			StudentID: id, ClassID: dues.ClassIDPtr(f.class.ID), Day: oct16,
			Amount: 5, HasPaid: paid, IsAbsent: absent, SubmittedBy: 1,
		})
		require.NoError(t, err)
	}
	put(f.ids[0], true, false)
	put(f.ids[1], false, true)
	put(f.ids[2], true, true)

	// WHEN: Reconciling
	view, err := f.engine.ReconcileClassDay(ctx, f.class.ID, oct16)
	require.NoError(t, err)

	// THEN: Absence wins and the partitions add up to the roster
	assert.Equal(t, 1, view.Created)
	require.Len(t, view.Paid, 1)
	assert.Equal(t, f.ids[0], view.Paid[0].StudentID)
	assert.Len(t, view.Absent, 2)
	require.Len(t, view.Unpaid, 1)
	assert.Equal(t, f.ids[3], view.Unpaid[0].StudentID)
	assert.Equal(t, len(f.ids), view.Total())

	seen := map[dues.StudentID]bool{}
	for _, r := range view.Records() {
		assert.False(t, seen[r.StudentID], "student %d in two partitions", r.StudentID)
		seen[r.StudentID] = true
	}
}

func TestReconcile_OtherDaysAreIgnored(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()
	_, err := f.mem.Upsert(ctx, dues.Record{
		StudentID: f.ids[0], ClassID: dues.ClassIDPtr(f.class.ID), Day: oct16.AddDays(-1),
		HasPaid: true, Amount: 5,
	})
	require.NoError(t, err)

	view, err := f.engine.ReconcileClassDay(ctx, f.class.ID, oct16)
	require.NoError(t, err)

	assert.Equal(t, 1, view.Created)
	assert.Len(t, view.Unpaid, 1)
}

func TestReconcile_PartialFailureKeepsTheRest(t *testing.T) {
	// GIVEN: Inserts for the second student fail
	f := newFixture(t, 3)
	engine := f.withRecords(&flakyStore{RecordStore: f.mem, failOn: map[dues.StudentID]error{f.ids[1]: errDB}})

	// WHEN: Reconciling
	view, err := engine.ReconcileClassDay(context.Background(), f.class.ID, oct16)

	// THEN: The others are materialized and the failure is reported
	require.NoError(t, err)
	assert.Len(t, view.Unpaid, 2)
	require.Len(t, view.Failures, 1)
	assert.Equal(t, f.ids[1], view.Failures[0].StudentID)
	assert.ErrorIs(t, view.Failures[0].Err, errDB)
	assert.ErrorIs(t, view.Err(), dues.ErrPartialBatch)
	assert.Len(t, f.mem.All(), 2)
}

func TestReconcile_RosterFailureIsUpstream(t *testing.T) {
	f := newFixture(t, 1)
	engine := dues.NewEngine(f.mem, brokenRoster{}, f.mem)

	_, err := engine.ReconcileClassDay(context.Background(), f.class.ID, oct16)

	assert.ErrorIs(t, err, dues.ErrUpstreamUnavailable)
	assert.ErrorIs(t, err, errDB)
	assert.Empty(t, f.mem.All())
}

func TestReconcile_UnknownClass(t *testing.T) {
	f := newFixture(t, 1)

	_, err := f.engine.ReconcileClassDay(context.Background(), 999, oct16)

	assert.ErrorIs(t, err, dues.ErrClassNotFound)
	assert.True(t, dues.IsNotFound(err))
}

func TestReconcile_EmptyClass(t *testing.T) {
	f := newFixture(t, 0)

	view, err := f.engine.ReconcileClassDay(context.Background(), f.class.ID, oct16)

	require.NoError(t, err)
	assert.Equal(t, 0, view.Total())
}

func TestListClassDay_DoesNotMaterialize(t *testing.T) {
	f := newFixture(t, 2)
	ctx := context.Background()
	_, err := f.mem.Upsert(ctx, dues.Record{
		StudentID: f.ids[0], ClassID: dues.ClassIDPtr(f.class.ID), Day: oct16, HasPaid: true, Amount: 5,
	})
	require.NoError(t, err)

	paid, err := f.engine.ListClassDay(ctx, f.class.ID, oct16, dues.StatusPaid)
	require.NoError(t, err)
	unpaid, err := f.engine.ListClassDay(ctx, f.class.ID, oct16, dues.StatusUnpaid)
	require.NoError(t, err)

	assert.Len(t, paid, 1)
	assert.Empty(t, unpaid)
	assert.Len(t, f.mem.All(), 1)
}

func TestSummarizeClassDay(t *testing.T) {
	// GIVEN: Due of 5, one student paid 7, one absent, two untouched
	f := newFixture(t, 4)
	ctx := context.Background()
	_, err := f.mem.Upsert(ctx, dues.Record{
		StudentID: f.ids[0], ClassID: dues.ClassIDPtr(f.class.ID), Day: oct16, HasPaid: true, Amount: 7, DueAmountSnapshot: 5,
	})
	require.NoError(t, err)
	_, err = f.mem.Upsert(ctx, dues.Record{
		StudentID: f.ids[1], ClassID: dues.ClassIDPtr(f.class.ID), Day: oct16, IsAbsent: true, DueAmountSnapshot: 5,
	})
	require.NoError(t, err)

	// WHEN: Summarizing
	s, err := f.engine.SummarizeClassDay(ctx, f.class.ID, oct16)
	require.NoError(t, err)

	// THEN: Collected and outstanding are computed per partition
	assert.Equal(t, 4, s.TotalStudents)
	assert.Equal(t, 1, s.Paid.Count)
	assert.True(t, s.Paid.Amount.Equal(decimal.NewFromInt(7)))
	assert.Equal(t, 2, s.Unpaid.Count)
	assert.True(t, s.Unpaid.Amount.Equal(decimal.NewFromInt(10)))
	assert.Equal(t, 1, s.Absent)
	assert.Equal(t, 0, s.Failed)
}
