/*
errors.go - Error types and rejection reasons

PURPOSE:
  Two separate families live here:

  1. Errors: snapshot and input failures (duplicate allotments, unknown kinds,
     mismatched generations). These are returned from constructors and
     Refresh, never from classification.

  2. Reasons: user-facing codes attached to a rejected or qualified press
     (too soon, too far, not allocated, full, zone access denied). A press
     never fails; it carries a Reason in its Outcome.

SEE ALSO:
  - selection.go: Emits Reasons
  - calendar.go: Returns FetchError from Refresh
*/
package calendar

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrDuplicateAllotment is returned when two records share a key and zone.
	ErrDuplicateAllotment = errors.New("duplicate allotment record")

	// ErrNegativeAllotment is returned for a record with MaxAllotment < 0.
	ErrNegativeAllotment = errors.New("negative allotment")

	// ErrGenerationMismatch is returned when indices from different fetch
	// cycles are paired into one snapshot.
	ErrGenerationMismatch = errors.New("allotment and request generations differ")

	ErrUnknownKind = errors.New("unknown calendar kind")
	ErrInvalidDay  = errors.New("invalid date")
)

// =============================================================================
// STRUCTURED ERRORS
// =============================================================================

// DuplicateAllotmentError names the offending key.
type DuplicateAllotmentError struct {
	Key    string
	ZoneID *ZoneID
}

func (e *DuplicateAllotmentError) Error() string {
	if e.ZoneID != nil {
		return fmt.Sprintf("duplicate allotment record for %s zone %d", e.Key, *e.ZoneID)
	}
	return fmt.Sprintf("duplicate allotment record for %s", e.Key)
}

func (e *DuplicateAllotmentError) Unwrap() error { return ErrDuplicateAllotment }

// FetchError wraps a fetch boundary failure with the calendar it belongs to.
type FetchError struct {
	Kind       Kind
	DivisionID DivisionID
	Op         string // "allotments" or "requests"
	Err        error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("load %s for %s/%d: %v", e.Op, e.Kind, e.DivisionID, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// IsClientError returns true if the error is due to invalid caller input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrUnknownKind) || errors.Is(err, ErrInvalidDay)
}

// =============================================================================
// REASONS - User-facing press feedback
// =============================================================================

type Reason string

const (
	ReasonNone             Reason = ""
	ReasonTooSoon          Reason = "too_soon"
	ReasonTooFar           Reason = "too_far"
	ReasonUnallocated      Reason = "unallocated"
	ReasonFull             Reason = "full"
	ReasonZoneAccessDenied Reason = "zone_access_denied"
)

// Message is the notification text shown for a reason.
func (r Reason) Message() string {
	switch r {
	case ReasonTooSoon:
		return "This date is inside the request blackout and can no longer be requested."
	case ReasonTooFar:
		return "This date is too far ahead to request yet."
	case ReasonUnallocated:
		return "No allotment has been set for this date."
	case ReasonFull:
		return "This date is full. You can join the waitlist."
	case ReasonZoneAccessDenied:
		return "You do not have access to this zone's calendar."
	default:
		return ""
	}
}
