/*
Package calendar provides the availability engine for leave calendars.

PURPOSE:
  Given a snapshot of capacity (allotments) and requests for a calendar
  context, decide for every day (PLD/SDV) or vacation week whether a member
  can request it, and mediate day presses through a small selection state
  machine. The backend is authoritative for allotment and waitlist
  enforcement; this package only derives what to show and what to accept.

KEY CONCEPTS IN THIS FILE (types.go):
  - Kind: which calendar a record belongs to (daily PLD/SDV, or vacation weeks)
  - AllotmentRecord: capacity for one date key, optionally zone-scoped
  - RequestRecord: one leave request and its backend status
  - Member: the member-context boundary supplied by the profile layer

DATA FLOW:
  Source (fetch) -> Snapshot{AllotmentIndex, RequestIndex} -> Engine.Classify
  -> Selection.Press -> OnSelect fan-out

SEE ALSO:
  - window.go: Request window (48h lead, six-month horizon)
  - availability.go: Classification precedence
  - selection.go: Press/toggle state machine
  - calendar.go: One calendar context, refresh cycle and generations
*/
package calendar

import "fmt"

// =============================================================================
// IDENTIFIERS
// =============================================================================

type MemberID string
type RequestID string
type ZoneID int
type DivisionID int

// Zone returns a pointer to z, for building zone-scoped records and queries.
func Zone(z ZoneID) *ZoneID { return &z }

func sameZone(a, b *ZoneID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// =============================================================================
// KIND - Which calendar a key belongs to
// =============================================================================

type Kind string

const (
	KindDaily    Kind = "pld_sdv"  // one key per calendar day
	KindVacation Kind = "vacation" // one key per week start
)

// ParseKind validates a kind coming from a URL or config.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindDaily, KindVacation:
		return Kind(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// =============================================================================
// ALLOTMENT
// =============================================================================

// AllotmentRecord is the maximum number of occupying requests for one key.
// Yearly records carry Year instead of DateKey and apply to every key of that
// year that has no dated record.
type AllotmentRecord struct {
	Kind         Kind
	DivisionID   DivisionID
	DateKey      Day
	Year         int
	Yearly       bool
	MaxAllotment int
	ZoneID       *ZoneID // nil = division-wide
}

// =============================================================================
// REQUEST
// =============================================================================

type RequestStatus string

const (
	StatusPending             RequestStatus = "pending"
	StatusApproved            RequestStatus = "approved"
	StatusWaitlisted          RequestStatus = "waitlisted"
	StatusDenied              RequestStatus = "denied"
	StatusCancelled           RequestStatus = "cancelled"
	StatusCancellationPending RequestStatus = "cancellation_pending"
	StatusTransferred         RequestStatus = "transferred"
)

// Occupying reports whether the status counts against an allotment.
func (s RequestStatus) Occupying() bool {
	switch s {
	case StatusPending, StatusApproved, StatusWaitlisted, StatusCancellationPending:
		return true
	}
	return false
}

type LeaveType string

const (
	LeavePLD LeaveType = "PLD"
	LeaveSDV LeaveType = "SDV"
)

// RequestRecord is one leave or vacation request. Vacation requests have no
// LeaveType and are keyed by week start.
type RequestRecord struct {
	ID         RequestID
	MemberID   MemberID
	Kind       Kind
	DivisionID DivisionID
	DateKey    Day
	Status     RequestStatus
	LeaveType  LeaveType
	PaidInLieu bool
	ZoneID     *ZoneID
}

// =============================================================================
// MEMBER CONTEXT
// =============================================================================

// Member is supplied by the profile layer and treated as immutable for the
// duration of one query.
type Member struct {
	ID         MemberID
	Name       string
	ZoneID     *ZoneID
	DivisionID DivisionID
}
