/*
window.go - Request window arithmetic

PURPOSE:
  Decides whether a day can be requested at all, independent of capacity.
  A day is requestable when it starts strictly after now + MinLead and is
  on or before the horizon boundary.

HORIZON BOUNDARY:
  The boundary is N calendar months ahead of today, same day-of-month.
  When that day does not exist in the target month it is clamped to the
  month's last day (Aug 31 + 6 months = Feb 28).

  END-OF-MONTH EXPANSION:
  When today is the last day of its month, the boundary covers every day of
  the target month from the clamped day through the month's last day:

    today 2026-02-28  ->  [2026-08-28, 2026-08-31]
    today 2025-10-31  ->  [2026-04-30, 2026-04-30]
    today 2026-10-14  ->  [2027-04-14, 2027-04-14]

SEE ALSO:
  - time.go: Day arithmetic
  - availability.go: Uses Window for rule 2 (unavailable)
*/
package calendar

import "time"

// Boundary is the inclusive last-eligible range in the horizon's target month.
// Every day on or before End is inside the horizon.
type Boundary struct {
	Start Day
	End   Day
}

// Expanded reports whether the end-of-month exception widened the boundary.
func (b Boundary) Expanded() bool { return b.Start != b.End }

// Contains reports whether d falls inside [Start, End].
func (b Boundary) Contains(d Day) bool {
	return d.AfterOrEqual(b.Start) && d.BeforeOrEqual(b.End)
}

// MonthsAhead computes the horizon boundary n months after today.
func MonthsAhead(today Day, n int) Boundary {
	start := addMonthsClamped(today, n)
	end := start
	if today.IsLastDayOfMonth() {
		end = EndOfMonth(start)
	}
	return Boundary{Start: start, End: end}
}

// SixMonthBoundary is MonthsAhead(today, 6).
func SixMonthBoundary(today Day) Boundary { return MonthsAhead(today, 6) }

// =============================================================================
// WINDOW
// =============================================================================

// Window is the permitted request window relative to "now".
type Window struct {
	// MinLead is the blackout after now; a day must start strictly after now+MinLead.
	MinLead time.Duration

	// HorizonMonths bounds how far ahead a day may be. Zero means unbounded.
	HorizonMonths int

	// Location defines where days start. Nil means UTC.
	Location *time.Location
}

// DefaultWindow is the PLD/SDV window: 48 hours lead, six months ahead.
func DefaultWindow() Window {
	return Window{MinLead: 48 * time.Hour, HorizonMonths: 6, Location: time.UTC}
}

func (w Window) location() *time.Location {
	if w.Location == nil {
		return time.UTC
	}
	return w.Location
}

// Today returns the current day in the window's location.
func (w Window) Today(now time.Time) Day { return DayOf(now.In(w.location())) }

// Boundary returns the horizon boundary for now. ok is false when unbounded.
func (w Window) Boundary(now time.Time) (b Boundary, ok bool) {
	if w.HorizonMonths <= 0 {
		return Boundary{}, false
	}
	return MonthsAhead(w.Today(now), w.HorizonMonths), true
}

// Check classifies d against the window: ReasonNone when requestable,
// ReasonTooSoon within the lead blackout (or in the past), ReasonTooFar
// beyond the horizon.
func (w Window) Check(d Day, now time.Time) Reason {
	if !d.Time(w.location()).After(now.Add(w.MinLead)) {
		return ReasonTooSoon
	}
	if b, ok := w.Boundary(now); ok && d.After(b.End) {
		return ReasonTooFar
	}
	return ReasonNone
}

// Contains reports whether d is requestable at now.
func (w Window) Contains(d Day, now time.Time) bool { return w.Check(d, now) == ReasonNone }
