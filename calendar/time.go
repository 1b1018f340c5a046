package calendar

import (
	"fmt"
	"iter"
	"time"
)

// =============================================================================
// DAY - Civil date used as the key of every index
// =============================================================================

// Day is a calendar date without time of day or location.
// It is comparable and safe to use as a map key.
type Day struct {
	y int
	m time.Month
	d int
}

const dayLayout = "2006-01-02"

// NewDay normalizes out-of-range values the same way time.Date does.
func NewDay(year int, month time.Month, day int) Day {
	return DayOf(time.Date(year, month, day, 0, 0, 0, 0, time.UTC))
}

// DayOf returns the date of t in t's own location.
func DayOf(t time.Time) Day {
	y, m, d := t.Date()
	return Day{y: y, m: m, d: d}
}

// ParseDay parses an ISO date (2006-01-02).
func ParseDay(s string) (Day, error) {
	t, err := time.Parse(dayLayout, s)
	if err != nil {
		return Day{}, fmt.Errorf("%w: %q", ErrInvalidDay, s)
	}
	return DayOf(t), nil
}

// MustParseDay is ParseDay for tests and fixtures.
func MustParseDay(s string) Day {
	d, err := ParseDay(s)
	if err != nil {
		panic(err)
	}
	return d
}

func (d Day) Year() int         { return d.y }
func (d Day) Month() time.Month { return d.m }
func (d Day) Day() int          { return d.d }
func (d Day) IsZero() bool      { return d == Day{} }

// Time returns midnight of the day in loc (UTC when loc is nil).
func (d Day) Time(loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	return time.Date(d.y, d.m, d.d, 0, 0, 0, 0, loc)
}

func (d Day) Weekday() time.Weekday { return d.Time(time.UTC).Weekday() }

func (d Day) AddDays(n int) Day { return DayOf(d.Time(time.UTC).AddDate(0, 0, n)) }

func (d Day) Before(o Day) bool { return d.compare(o) < 0 }
func (d Day) After(o Day) bool  { return d.compare(o) > 0 }
func (d Day) Equal(o Day) bool  { return d == o }

func (d Day) BeforeOrEqual(o Day) bool { return d.compare(o) <= 0 }
func (d Day) AfterOrEqual(o Day) bool  { return d.compare(o) >= 0 }

func (d Day) compare(o Day) int {
	switch {
	case d.y != o.y:
		return d.y - o.y
	case d.m != o.m:
		return int(d.m - o.m)
	default:
		return d.d - o.d
	}
}

func (d Day) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.y, d.m, d.d)
}

func (d Day) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

func (d *Day) UnmarshalText(b []byte) error {
	parsed, err := ParseDay(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// =============================================================================
// MONTH AND WEEK ARITHMETIC
// =============================================================================

// DaysInMonth returns the number of days in the given month.
func DaysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func StartOfMonth(d Day) Day { return Day{y: d.y, m: d.m, d: 1} }
func EndOfMonth(d Day) Day   { return Day{y: d.y, m: d.m, d: DaysInMonth(d.y, d.m)} }

// IsLastDayOfMonth reports whether d is the final day of its month.
func (d Day) IsLastDayOfMonth() bool { return d.d == DaysInMonth(d.y, d.m) }

// addMonthsClamped moves d by n months keeping the day-of-month, clamped to the
// target month's length (Oct 31 + 4 months = Feb 28, not Mar 3).
func addMonthsClamped(d Day, n int) Day {
	first := StartOfMonth(d).Time(time.UTC).AddDate(0, n, 0)
	y, m := first.Year(), first.Month()
	day := d.d
	if last := DaysInMonth(y, m); day > last {
		day = last
	}
	return Day{y: y, m: m, d: day}
}

// WeekStartOf returns the first day of the week containing d.
func WeekStartOf(d Day, first time.Weekday) Day {
	offset := (int(d.Weekday()) - int(first) + 7) % 7
	return d.AddDays(-offset)
}

// WeekStart returns the Monday of d's week.
func (d Day) WeekStart() Day { return WeekStartOf(d, time.Monday) }

// =============================================================================
// ITERATION
// =============================================================================

// EachDay yields every day in [start, end]. The sequence is restartable; an
// empty range (end before start) yields nothing.
func EachDay(start, end Day) iter.Seq[Day] {
	return func(yield func(Day) bool) {
		for d := start; d.BeforeOrEqual(end); d = d.AddDays(1) {
			if !yield(d) {
				return
			}
		}
	}
}

// EachWeek yields the start of every week that intersects [start, end].
func EachWeek(start, end Day, first time.Weekday) iter.Seq[Day] {
	return func(yield func(Day) bool) {
		for d := WeekStartOf(start, first); d.BeforeOrEqual(end); d = d.AddDays(7) {
			if !yield(d) {
				return
			}
		}
	}
}
