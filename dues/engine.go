package dues

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// DefaultConcurrency bounds parallel materialization during reconciliation.
const DefaultConcurrency = 8

// DefaultMaxPrepaidDays caps how many records one prepayment may create.
const DefaultMaxPrepaidDays = 366

// Engine wires the dues operations to their collaborators. It holds no
// mutable state; every call is an independent unit of work.
type Engine struct {
	Records  RecordStore
	Roster   RosterProvider
	Settings SettingsProvider
	Clock    Clock

	// Concurrency caps in-flight materializations per reconciliation.
	Concurrency int

	// MaxPrepaidDays caps the records a single prepayment may create.
	MaxPrepaidDays int64

	log zerolog.Logger
}

type Option func(*Engine)

func WithClock(c Clock) Option { return func(e *Engine) { e.Clock = c } }

func WithLocation(loc *time.Location) Option {
	return func(e *Engine) { e.Clock.Location = loc }
}

func WithLogger(l zerolog.Logger) Option { return func(e *Engine) { e.log = l } }

func WithConcurrency(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.Concurrency = n
		}
	}
}

func WithMaxPrepaidDays(n int64) Option {
	return func(e *Engine) {
		if n > 0 {
			e.MaxPrepaidDays = n
		}
	}
}

func NewEngine(records RecordStore, roster RosterProvider, settings SettingsProvider, opts ...Option) *Engine {
	e := &Engine{
		Records:        records,
		Roster:         roster,
		Settings:       settings,
		Clock:          SystemClock(time.UTC),
		Concurrency:    DefaultConcurrency,
		MaxPrepaidDays: DefaultMaxPrepaidDays,
		log:            zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) concurrency() int {
	if e.Concurrency <= 0 {
		return DefaultConcurrency
	}
	return e.Concurrency
}

func (e *Engine) maxPrepaidDays() int64 {
	if e.MaxPrepaidDays <= 0 {
		return DefaultMaxPrepaidDays
	}
	return e.MaxPrepaidDays
}

// Today returns the current day key in the reference timezone.
func (e *Engine) Today() Day { return e.Clock.Today() }

// dueSnapshot reads the settings value once per operation. Callers thread
// the result into every record they create.
func (e *Engine) dueSnapshot(ctx context.Context) (int64, error) {
	amount, err := e.Settings.DueAmount(ctx)
	if err != nil {
		return 0, upstream("settings", err)
	}
	return amount, nil
}

func (e *Engine) classRoster(ctx context.Context, classID ClassID) (Roster, error) {
	roster, err := e.Roster.ClassRoster(ctx, classID)
	if err != nil {
		if IsNotFound(err) {
			return Roster{}, err
		}
		return Roster{}, upstream("roster", err)
	}
	return roster, nil
}
