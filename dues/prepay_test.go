package dues_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/canteen-engine/dues"
)

func TestGeneratePrepayment_FloorsToWholeDays(t *testing.T) {
	// GIVEN: 100 paid at 30 a day
	f := newFixture(t, 1)

	// WHEN: Generating the prepayment
	recs, err := f.engine.GeneratePrepayment(context.Background(), dues.Prepayment{
		StudentID: f.ids[0], LumpSum: 100, PerDayAmount: 30, SubmittedBy: 4,
	})

	// THEN: Three consecutive prepaid days from today
	require.NoError(t, err)
	require.Len(t, recs, 3)
	for i, r := range recs {
		assert.Equal(t, oct16.AddDays(i).String(), r.Day.String())
		assert.Equal(t, int64(30), r.Amount)
		assert.True(t, r.HasPaid)
		assert.True(t, r.IsPrepaid)
		assert.False(t, r.IsAbsent)
		require.NotNil(t, r.ClassID)
		assert.Equal(t, f.class.ID, *r.ClassID)
		assert.Equal(t, dues.SubmitterID(4), r.SubmittedBy)
	}
	assert.Len(t, f.mem.All(), 3)
}

func TestGeneratePrepayment_LumpBelowPerDayCreatesNothing(t *testing.T) {
	f := newFixture(t, 1)

	recs, err := f.engine.GeneratePrepayment(context.Background(), dues.Prepayment{
		StudentID: f.ids[0], LumpSum: 10, PerDayAmount: 30,
	})

	require.NoError(t, err)
	assert.Empty(t, recs)
	assert.Empty(t, f.mem.All())
}

func TestGeneratePrepayment_RejectsNonPositiveAmounts(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()

	for _, p := range []dues.Prepayment{
		{StudentID: f.ids[0], LumpSum: 0, PerDayAmount: 30},
		{StudentID: f.ids[0], LumpSum: 100, PerDayAmount: 0},
		{StudentID: f.ids[0], LumpSum: -5, PerDayAmount: 30},
	} {
		_, err := f.engine.GeneratePrepayment(ctx, p)
		var amountErr *dues.InvalidAmountError
		assert.ErrorAs(t, err, &amountErr)
		assert.ErrorIs(t, err, dues.ErrInvalidAmount)
	}
	assert.Empty(t, f.mem.All())
}

func TestGeneratePrepayment_ConflictRollsBack(t *testing.T) {
	// GIVEN: Day two of the range already has a record
	f := newFixture(t, 1)
	ctx := context.Background()
	_, err := f.mem.Insert(ctx, dues.Record{StudentID: f.ids[0], ClassID: dues.ClassIDPtr(f.class.ID), Day: oct16.AddDays(1)})
	require.NoError(t, err)

	// WHEN: Prepaying three days
	recs, err := f.engine.GeneratePrepayment(ctx, dues.Prepayment{
		StudentID: f.ids[0], LumpSum: 90, PerDayAmount: 30,
	})

	// THEN: Conflict, and day one was rolled back
	var dup *dues.DuplicateKeyError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, oct16.AddDays(1).String(), dup.Key.Day.String())
	assert.Nil(t, recs)
	assert.Len(t, f.mem.All(), 1)
	assert.Equal(t, 1, countFor(f.mem.All(), f.ids[0]))
}

func TestGeneratePrepayment_WithoutTransactionsReturnsPartial(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()
	_, err := f.mem.Insert(ctx, dues.Record{StudentID: f.ids[0], ClassID: dues.ClassIDPtr(f.class.ID), Day: oct16.AddDays(2)})
	require.NoError(t, err)
	engine := f.withRecords(nonTx{f.mem})

	recs, err := engine.GeneratePrepayment(ctx, dues.Prepayment{StudentID: f.ids[0], LumpSum: 90, PerDayAmount: 30})

	assert.ErrorIs(t, err, dues.ErrDuplicateKey)
	assert.Len(t, recs, 2)
	assert.Len(t, f.mem.All(), 3)
}

func TestGeneratePrepayment_UnknownStudent(t *testing.T) {
	f := newFixture(t, 0)

	_, err := f.engine.GeneratePrepayment(context.Background(), dues.Prepayment{StudentID: 42, LumpSum: 60, PerDayAmount: 30})

	assert.ErrorIs(t, err, dues.ErrStudentNotFound)
}

func TestGeneratePrepayment_RejectsTooManyDays(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()

	tests := []struct {
		name string
		p    dues.Prepayment
	}{
		{"one day over the year", dues.Prepayment{StudentID: f.ids[0], LumpSum: 367, PerDayAmount: 1}},
		{"billion days", dues.Prepayment{StudentID: f.ids[0], LumpSum: 1_000_000_000, PerDayAmount: 1}},
		{"near max int64", dues.Prepayment{StudentID: f.ids[0], LumpSum: 9_000_000_000_000_000_000, PerDayAmount: 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recs, err := f.engine.GeneratePrepayment(ctx, tt.p)

			var amountErr *dues.InvalidAmountError
			require.ErrorAs(t, err, &amountErr)
			assert.ErrorIs(t, err, dues.ErrInvalidAmount)
			assert.Equal(t, "prepaid days", amountErr.Field)
			assert.Nil(t, recs)
		})
	}
	assert.Empty(t, f.mem.All())
}

func TestGeneratePrepayment_MaxPrepaidDaysOption(t *testing.T) {
	// GIVEN: An engine capped at five prepaid days
	f := newFixture(t, 1, dues.WithMaxPrepaidDays(5))
	ctx := context.Background()

	// WHEN: Prepaying exactly five, then six
	five, err := f.engine.GeneratePrepayment(ctx, dues.Prepayment{StudentID: f.ids[0], LumpSum: 50, PerDayAmount: 10})
	require.NoError(t, err)
	_, err = f.engine.GeneratePrepayment(ctx, dues.Prepayment{StudentID: f.ids[0], LumpSum: 60, PerDayAmount: 10})

	// THEN: The cap is inclusive and the rejected call writes nothing
	assert.Len(t, five, 5)
	assert.ErrorIs(t, err, dues.ErrInvalidAmount)
	assert.Len(t, f.mem.All(), 5)
}
