/*
scheduler.go - Automated daily sweep scheduler

PURPOSE:
  Makes sure every enrolled student gets a record for each calendar day,
  whether or not a collector opens the class that day.

DESIGN:
  - Runs a background goroutine with a configurable check interval
  - Checks once immediately on start, then on every tick
  - Fires the sweep when the local time in the reference timezone is at or
    past RunAt and no completed run exists for today
  - Records every run (running, then completed or failed) for audit
  - A failed run does not count as complete, so the next tick retries it

CONFIGURATION:
  - CheckInterval: How often to check (default: 1 minute)
  - RunAtHour/RunAtMinute: Earliest local time to sweep (default: 00:30)
  - Enabled: Whether the scheduler is active (default: true)

USAGE:
  s := NewDailySweepScheduler(engine, store, logger)
  s.Start()
  // ... later
  s.Stop()

SEE ALSO:
  - handlers.go: TriggerDailySweep endpoint (manual sweep)
  - dues/sweep.go: SweepDay
*/
package api

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/warp/canteen-engine/dues"
)

const (
	TriggerScheduler = "scheduler"
	TriggerManual    = "manual"
)

// DailySweepScheduler runs the daily sweep once per local day.
type DailySweepScheduler struct {
	Engine        *dues.Engine
	Runs          dues.SweepRunStore
	CheckInterval time.Duration
	Enabled       bool
	RunAtHour     int
	RunAtMinute   int

	log    zerolog.Logger
	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex

	// sweepMu keeps a manual run and a scheduled run from overlapping.
	sweepMu sync.Mutex
}

// NewDailySweepScheduler creates a scheduler with the default settings.
func NewDailySweepScheduler(engine *dues.Engine, runs dues.SweepRunStore, log zerolog.Logger) *DailySweepScheduler {
	return &DailySweepScheduler{
		Engine:        engine,
		Runs:          runs,
		CheckInterval: time.Minute,
		Enabled:       true,
		RunAtHour:     0,
		RunAtMinute:   30,
		log:           log.With().Str("component", "sweep-scheduler").Logger(),
	}
}

// Start begins the scheduler.
func (s *DailySweepScheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.Enabled {
		s.log.Info().Msg("disabled, not starting")
		return
	}
	if s.ticker != nil {
		return
	}

	s.ticker = time.NewTicker(s.CheckInterval)
	s.stop = make(chan struct{})
	s.wg.Add(1)
	go s.run()

	s.log.Info().
		Dur("check_interval", s.CheckInterval).
		Str("run_at", fmt.Sprintf("%02d:%02d", s.RunAtHour, s.RunAtMinute)).
		Msg("started")
}

// Stop stops the scheduler and waits for the loop to exit.
func (s *DailySweepScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ticker != nil {
		s.ticker.Stop()
		close(s.stop)
		s.wg.Wait()
		s.ticker = nil
		s.log.Info().Msg("stopped")
	}
}

func (s *DailySweepScheduler) run() {
	defer s.wg.Done()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-s.stop
		cancel()
	}()

	// Run immediately on start
	s.checkAndProcess(ctx)

	for {
		select {
		case <-s.ticker.C:
			s.checkAndProcess(ctx)
		case <-s.stop:
			return
		}
	}
}

// Due reports whether the sweep should fire at local time now.
func (s *DailySweepScheduler) Due(now time.Time) bool {
	runAt := time.Date(now.Year(), now.Month(), now.Day(), s.RunAtHour, s.RunAtMinute, 0, 0, now.Location())
	return !now.Before(runAt)
}

func (s *DailySweepScheduler) checkAndProcess(ctx context.Context) {
	now := s.Engine.Clock.LocalNow()
	if !s.Due(now) {
		return
	}

	today := s.Engine.Today()
	done, err := s.Runs.IsSweepComplete(ctx, today)
	if err != nil {
		s.log.Error().Err(err).Str("day", today.String()).Msg("could not check sweep status")
		return
	}
	if done {
		return
	}

	if _, err := s.RunNow(ctx, TriggerScheduler); err != nil {
		s.log.Error().Err(err).Str("day", today.String()).Msg("daily sweep failed")
	}
}

// RunNow sweeps today immediately and records the run, whatever the time
// and whether or not today was already swept.
func (s *DailySweepScheduler) RunNow(ctx context.Context, trigger string) (dues.SweepRun, error) {
	s.sweepMu.Lock()
	defer s.sweepMu.Unlock()

	run := dues.SweepRun{
		ID:        uuid.NewString(),
		Day:       s.Engine.Today(),
		Trigger:   trigger,
		Status:    dues.SweepRunning,
		StartedAt: time.Now().UTC(),
	}
	if err := s.Runs.SaveSweepRun(ctx, run); err != nil {
		return run, fmt.Errorf("failed to save run record: %w", err)
	}

	res, sweepErr := s.Engine.SweepDay(ctx, run.Day)
	run.Finish(res, sweepErr, time.Now().UTC())

	// The sweep may have been cancelled; the run record still gets written.
	if err := s.Runs.SaveSweepRun(context.WithoutCancel(ctx), run); err != nil {
		return run, fmt.Errorf("failed to update run record: %w", err)
	}

	s.log.Info().
		Str("run_id", run.ID).
		Str("day", run.Day.String()).
		Str("trigger", trigger).
		Str("status", run.Status).
		Int("created", run.Created).
		Int("skipped", run.Skipped).
		Int("failed", run.Failed).
		Msg("daily sweep finished")

	return run, sweepErr
}
