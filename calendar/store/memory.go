// Package store provides calendar.Source implementations.
package store

import (
	"context"
	"sync"

	"github.com/warp/leave-calendar/calendar"
)

// =============================================================================
// MEMORY SOURCE - In-memory fetch boundary (for testing/dev)
// =============================================================================

type Memory struct {
	mu         sync.RWMutex
	allotments []calendar.AllotmentRecord
	requests   []calendar.RequestRecord

	// Err, when set, fails every load. Used to simulate backend outages.
	Err error
}

func NewMemory() *Memory {
	return &Memory{}
}

// SetAllotments replaces every allotment record.
func (m *Memory) SetAllotments(records ...calendar.AllotmentRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.allotments = append([]calendar.AllotmentRecord(nil), records...)
}

// SetRequests replaces every request record.
func (m *Memory) SetRequests(records ...calendar.RequestRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append([]calendar.RequestRecord(nil), records...)
}

// AddRequest appends one request record.
func (m *Memory) AddRequest(r calendar.RequestRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, r)
}

// SetFailure makes subsequent loads fail with err (nil restores them).
func (m *Memory) SetFailure(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Err = err
}

func (m *Memory) LoadAllotments(_ context.Context, scope calendar.Scope, start, end calendar.Day) ([]calendar.AllotmentRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.Err != nil {
		return nil, m.Err
	}

	var result []calendar.AllotmentRecord
	for _, r := range m.allotments {
		if !inScope(scope, r.Kind, r.DivisionID) || !zoneMatch(scope.ZoneID, r.ZoneID, true) {
			continue
		}
		if r.Yearly {
			year := r.Year
			if year == 0 {
				year = r.DateKey.Year()
			}
			if year < start.Year() || year > end.Year() {
				continue
			}
		} else if r.DateKey.Before(start) || r.DateKey.After(end) {
			continue
		}
		result = append(result, r)
	}
	return result, nil
}

func (m *Memory) LoadRequests(_ context.Context, scope calendar.Scope, start, end calendar.Day) ([]calendar.RequestRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.Err != nil {
		return nil, m.Err
	}

	var result []calendar.RequestRecord
	for _, r := range m.requests {
		if !inScope(scope, r.Kind, r.DivisionID) || !zoneMatch(scope.ZoneID, r.ZoneID, false) {
			continue
		}
		if r.DateKey.Before(start) || r.DateKey.After(end) {
			continue
		}
		result = append(result, r)
	}
	return result, nil
}

func inScope(scope calendar.Scope, kind calendar.Kind, division calendar.DivisionID) bool {
	return kind == scope.Kind && division == scope.DivisionID
}

// zoneMatch filters by the scope zone. Division-wide records pass a zone
// filter only when includeDivision is set (allotments, not requests).
func zoneMatch(filter, zone *calendar.ZoneID, includeDivision bool) bool {
	if filter == nil {
		return true
	}
	if zone == nil {
		return includeDivision
	}
	return *zone == *filter
}
