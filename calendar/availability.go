/*
availability.go - Availability classification

PURPOSE:
  Classifies one date key into exactly one Verdict and answers whether it is
  selectable for a new request by the querying member.

PRECEDENCE (first match wins):
  1. Member already occupies the key         -> user_requested
  2. Key outside the request window          -> unavailable (too_soon | too_far)
  3. No allotment for the key                -> unallocated
  4. occupied >= max                         -> full
     occupied / max >= LimitedRatio          -> limited
     otherwise                               -> available

  A missing snapshot (failed or not yet loaded fetch) reports every key as
  unallocated. An allotment of zero is full.

ZONES:
  Query.Zone is the zone calendar being viewed, defaulting to the member's
  zone. A zone-specific allotment counts only requests in that zone; a
  division-wide allotment counts every request at the key.

SELECTABILITY:
  Only available and limited keys are selectable for an ordinary request.
  A full key is a waitlist target: the press is accepted with a waitlist
  offer rather than rejected (see selection.go).
*/
package calendar

import (
	"iter"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// VERDICT
// =============================================================================

type Verdict string

const (
	VerdictAvailable     Verdict = "available"
	VerdictLimited       Verdict = "limited"
	VerdictFull          Verdict = "full"
	VerdictUnallocated   Verdict = "unallocated"
	VerdictUnavailable   Verdict = "unavailable"
	VerdictUserRequested Verdict = "user_requested"
)

// =============================================================================
// POLICY - Configuration of one calendar kind
// =============================================================================

// Policy holds the business constants of a calendar kind.
type Policy struct {
	Kind Kind

	// LimitedRatio is the occupancy ratio at which a key turns limited.
	LimitedRatio decimal.Decimal

	Window Window

	// WeekStart aligns vacation keys.
	WeekStart time.Weekday
}

// DefaultLimitedRatio is 70% occupancy.
var DefaultLimitedRatio = decimal.NewFromFloat(0.7)

// DefaultPolicy returns the stock policy for kind. Vacation weeks keep the
// 48-hour blackout but have no horizon; their reach is bounded by what the
// fetch returns.
func DefaultPolicy(kind Kind) Policy {
	p := Policy{
		Kind:         kind,
		LimitedRatio: DefaultLimitedRatio,
		Window:       DefaultWindow(),
		WeekStart:    time.Monday,
	}
	if kind == KindVacation {
		p.Window.HorizonMonths = 0
	}
	return p
}

// KeyOf maps a pressed or rendered day to its index key.
func (p Policy) KeyOf(d Day) Day {
	if p.Kind == KindVacation {
		return WeekStartOf(d, p.WeekStart)
	}
	return d
}

// Keys yields every key intersecting [start, end].
func (p Policy) Keys(start, end Day) iter.Seq[Day] {
	if p.Kind == KindVacation {
		return EachWeek(start, end, p.WeekStart)
	}
	return EachDay(start, end)
}

// =============================================================================
// QUERY AND ASSESSMENT
// =============================================================================

// Query is the read-only context of one classification.
type Query struct {
	Member Member
	Zone   *ZoneID // zone calendar being viewed; nil = member's zone
	Now    time.Time
}

func (q Query) zone() *ZoneID {
	if q.Zone != nil {
		return q.Zone
	}
	return q.Member.ZoneID
}

// CheckZoneAccess rejects a zone view the member does not belong to.
func CheckZoneAccess(q Query) Reason {
	if q.Zone != nil && !sameZone(q.Zone, q.Member.ZoneID) {
		return ReasonZoneAccessDenied
	}
	return ReasonNone
}

// Assessment is the derived availability of one key. It is never persisted.
type Assessment struct {
	Day        Day
	Key        Day
	Verdict    Verdict
	Reason     Reason
	Occupied   int
	Max        int
	Remaining  int
	Allocated  bool
	ZoneID     *ZoneID        // zone of the applied allotment, nil if division-wide
	Request    *RequestRecord // the member's own occupying request
	Generation uint64
}

// Selectable reports whether the key accepts an ordinary request.
func (a Assessment) Selectable() bool {
	return a.Verdict == VerdictAvailable || a.Verdict == VerdictLimited
}

// IsSelectable is Assessment.Selectable in function form.
func IsSelectable(a Assessment) bool { return a.Selectable() }

// =============================================================================
// ENGINE
// =============================================================================

// Engine classifies keys of one calendar kind.
type Engine struct {
	Policy Policy
}

func NewEngine(policy Policy) *Engine { return &Engine{Policy: policy} }

// Classify derives the verdict for day (normalized to its key) from snap.
func (e *Engine) Classify(snap *Snapshot, q Query, day Day) Assessment {
	key := e.Policy.KeyOf(day)
	a := Assessment{Day: day, Key: key, Generation: snap.Generation()}
	if snap == nil {
		a.Verdict, a.Reason = VerdictUnallocated, ReasonUnallocated
		return a
	}

	if rec, ok := snap.Allotments().Get(key, q.zone()); ok {
		a.Allocated = true
		a.Max = rec.MaxAllotment
		a.ZoneID = rec.ZoneID
		a.Occupied = snap.Requests().OccupancyCount(key, rec.ZoneID)
		a.Remaining = max(0, a.Max-a.Occupied)
	}

	if r, ok := snap.Requests().MemberRequest(key, q.Member.ID); ok {
		a.Verdict, a.Request = VerdictUserRequested, &r
		return a
	}
	if reason := e.Policy.Window.Check(key, q.Now); reason != ReasonNone {
		a.Verdict, a.Reason = VerdictUnavailable, reason
		return a
	}
	if !a.Allocated {
		a.Verdict, a.Reason = VerdictUnallocated, ReasonUnallocated
		return a
	}
	a.Verdict = e.capacityVerdict(a.Occupied, a.Max)
	if a.Verdict == VerdictFull {
		a.Reason = ReasonFull
	}
	return a
}

func (e *Engine) capacityVerdict(occupied, maxAllotment int) Verdict {
	if occupied >= maxAllotment {
		return VerdictFull
	}
	ratio := decimal.NewFromInt(int64(occupied)).Div(decimal.NewFromInt(int64(maxAllotment)))
	if ratio.GreaterThanOrEqual(e.Policy.LimitedRatio) {
		return VerdictLimited
	}
	return VerdictAvailable
}

// Range classifies every key intersecting [start, end], in order.
func (e *Engine) Range(snap *Snapshot, q Query, start, end Day) []Assessment {
	var out []Assessment
	for key := range e.Policy.Keys(start, end) {
		out = append(out, e.Classify(snap, q, key))
	}
	return out
}
