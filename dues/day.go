package dues

import (
	"time"
)

// =============================================================================
// DAY - Calendar day used as half of the record key
// =============================================================================

// DayLayout is the wire and storage format of a Day.
const DayLayout = "2006-01-02"

// Day is a calendar date. It is always held as midnight UTC of that date so
// two Days compare equal exactly when they name the same date. Converting an
// instant to a Day requires a reference timezone, see DayIn.
type Day struct {
	Time time.Time
}

func NewDay(year int, month time.Month, day int) Day {
	return Day{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DayIn truncates t to its calendar date as observed in loc.
func DayIn(t time.Time, loc *time.Location) Day {
	if loc == nil {
		loc = time.UTC
	}
	lt := t.In(loc)
	return NewDay(lt.Year(), lt.Month(), lt.Day())
}

func ParseDay(s string) (Day, error) {
	t, err := time.Parse(DayLayout, s)
	if err != nil {
		return Day{}, err
	}
	return NewDay(t.Year(), t.Month(), t.Day()), nil
}

func MustParseDay(s string) Day {
	d, err := ParseDay(s)
	if err != nil {
		panic(err)
	}
	return d
}

// Comparison
func (d Day) Before(other Day) bool { return d.Time.Before(other.Time) }
func (d Day) After(other Day) bool  { return d.Time.After(other.Time) }
func (d Day) Equal(other Day) bool  { return d.Time.Equal(other.Time) }
func (d Day) IsZero() bool          { return d.Time.IsZero() }

// Arithmetic
func (d Day) AddDays(n int) Day { return Day{Time: d.Time.AddDate(0, 0, n)} }

// StartIn and EndIn bound the instants that belong to d in loc.
func (d Day) StartIn(loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	return time.Date(d.Time.Year(), d.Time.Month(), d.Time.Day(), 0, 0, 0, 0, loc)
}

func (d Day) EndIn(loc *time.Location) time.Time {
	return d.StartIn(loc).AddDate(0, 0, 1).Add(-time.Nanosecond)
}

func (d Day) String() string { return d.Time.Format(DayLayout) }

// =============================================================================
// CLOCK
// =============================================================================

// Clock yields "today" in the reference timezone. Tests pin it.
type Clock struct {
	Now      func() time.Time
	Location *time.Location
}

func SystemClock(loc *time.Location) Clock {
	if loc == nil {
		loc = time.UTC
	}
	return Clock{Now: time.Now, Location: loc}
}

// FixedClock always reports the given day as today.
func FixedClock(d Day) Clock {
	return Clock{Now: func() time.Time { return d.Time.Add(12 * time.Hour) }, Location: time.UTC}
}

func (c Clock) Today() Day {
	now := time.Now
	if c.Now != nil {
		now = c.Now
	}
	return DayIn(now(), c.Location)
}

// LocalNow is the current instant in the reference timezone.
func (c Clock) LocalNow() time.Time {
	now := time.Now
	if c.Now != nil {
		now = c.Now
	}
	loc := c.Location
	if loc == nil {
		loc = time.UTC
	}
	return now().In(loc)
}
