package calendar

import (
	"context"
	"time"
)

// =============================================================================
// FETCH BOUNDARY - Complete snapshots for a window, replace-not-merge
// =============================================================================

// Scope selects the records of one calendar context. A nil ZoneID asks for
// every zone of the division (division-wide and zone-specific allotments,
// requests of all zones).
type Scope struct {
	Kind       Kind
	DivisionID DivisionID
	ZoneID     *ZoneID
}

// Source is the fetch boundary. Both loads return complete snapshots of
// [start, end]; the caller replaces, never merges. Retry and timeout policy
// belongs to the implementation.
type Source interface {
	LoadAllotments(ctx context.Context, scope Scope, start, end Day) ([]AllotmentRecord, error)
	LoadRequests(ctx context.Context, scope Scope, start, end Day) ([]RequestRecord, error)
}

// =============================================================================
// OBSERVER - Optional instrumentation hooks
// =============================================================================

// Observer receives classification, press and refresh events. The metrics
// package provides the Prometheus implementation.
type Observer interface {
	ObserveClassification(kind Kind, verdict Verdict)
	ObservePress(kind Kind, outcome Outcome)
	ObserveRefresh(kind Kind, generation uint64, elapsed time.Duration, err error)
}

type nopObserver struct{}

func (nopObserver) ObserveClassification(Kind, Verdict) {}
func (nopObserver) ObservePress(Kind, Outcome) {}
func (nopObserver) ObserveRefresh(Kind, uint64, time.Duration, error) {}
