package api

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/canteen-engine/dues"
	"github.com/warp/canteen-engine/dues/store"
)

func newScheduledEngine(t *testing.T, now time.Time, students int) (*dues.Engine, *store.TxMemory) {
	t.Helper()
	ctx := context.Background()
	mem := store.NewTxMemory()
	class, err := mem.SaveClass(ctx, dues.Class{Name: "KG 2"})
	require.NoError(t, err)
	for i := 0; i < students; i++ {
		_, err := mem.SaveStudent(ctx, dues.Student{ClassID: class.ID, Name: "pupil"})
		require.NoError(t, err)
	}
	clock := dues.Clock{Now: func() time.Time { return now }, Location: time.UTC}
	return dues.NewEngine(mem, mem, mem, dues.WithClock(clock)), mem
}

func TestScheduler_Due(t *testing.T) {
	s := &DailySweepScheduler{RunAtHour: 6, RunAtMinute: 15}
	accra := time.FixedZone("GMT", 0)

	assert.False(t, s.Due(time.Date(2026, 10, 16, 6, 14, 59, 0, accra)))
	assert.True(t, s.Due(time.Date(2026, 10, 16, 6, 15, 0, 0, accra)))
	assert.True(t, s.Due(time.Date(2026, 10, 16, 23, 0, 0, 0, accra)))
}

func TestScheduler_SweepsOncePerDay(t *testing.T) {
	// GIVEN: It is past run_at and nothing has run today
	engine, mem := newScheduledEngine(t, time.Date(2026, 10, 16, 7, 0, 0, 0, time.UTC), 3)
	s := NewDailySweepScheduler(engine, mem, zerolog.Nop())
	ctx := context.Background()

	// WHEN: Checking twice
	s.checkAndProcess(ctx)
	s.checkAndProcess(ctx)

	// THEN: One completed run that created every record
	runs, err := mem.ListSweepRuns(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, dues.SweepCompleted, runs[0].Status)
	assert.Equal(t, 3, runs[0].Created)
	assert.Equal(t, TriggerScheduler, runs[0].Trigger)
	assert.Equal(t, "2026-10-16", runs[0].Day.String())
	assert.Len(t, mem.All(), 3)
}

func TestScheduler_WaitsForRunAt(t *testing.T) {
	engine, mem := newScheduledEngine(t, time.Date(2026, 10, 16, 0, 10, 0, 0, time.UTC), 2)
	s := NewDailySweepScheduler(engine, mem, zerolog.Nop())

	s.checkAndProcess(context.Background())

	runs, err := mem.ListSweepRuns(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, runs)
	assert.Empty(t, mem.All())
}

// brokenRosters fails every full-roster read.
type brokenRosters struct{ dues.RosterProvider }

func (brokenRosters) Rosters(context.Context) ([]dues.Roster, error) {
	return nil, errors.New("roster down")
}

func TestScheduler_FailedRunIsRetried(t *testing.T) {
	// GIVEN: A roster that fails
	engine, mem := newScheduledEngine(t, time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC), 1)
	engine.Roster = brokenRosters{RosterProvider: mem}
	s := NewDailySweepScheduler(engine, mem, zerolog.Nop())
	ctx := context.Background()

	// WHEN: Two checks run
	s.checkAndProcess(ctx)
	s.checkAndProcess(ctx)

	// THEN: Both attempts are recorded as failed
	runs, err := mem.ListSweepRuns(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	for _, r := range runs {
		assert.Equal(t, dues.SweepFailed, r.Status)
		assert.Contains(t, r.Error, "roster down")
		assert.NotNil(t, r.CompletedAt)
	}

	// AND: Once the roster recovers the next check completes the day
	engine.Roster = mem
	s.checkAndProcess(ctx)
	done, err := mem.IsSweepComplete(ctx, engine.Today())
	require.NoError(t, err)
	assert.True(t, done)
}

func TestScheduler_StartStop(t *testing.T) {
	engine, mem := newScheduledEngine(t, time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC), 2)
	s := NewDailySweepScheduler(engine, mem, zerolog.Nop())
	s.CheckInterval = time.Hour

	s.Start()
	require.Eventually(t, func() bool {
		done, err := mem.IsSweepComplete(context.Background(), engine.Today())
		return err == nil && done
	}, 2*time.Second, 10*time.Millisecond)
	s.Stop()
	s.Stop()

	assert.Len(t, mem.All(), 2)
}

func TestScheduler_Disabled(t *testing.T) {
	engine, mem := newScheduledEngine(t, time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC), 1)
	s := NewDailySweepScheduler(engine, mem, zerolog.Nop())
	s.Enabled = false

	s.Start()
	s.Stop()

	runs, err := mem.ListSweepRuns(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, runs)
}
