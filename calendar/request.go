package calendar

import "sort"

// =============================================================================
// REQUEST INDEX - One list of requests per date key
// =============================================================================

// RequestIndex groups the requests of one fetch by date key. Regular and
// paid-in-lieu requests live in the same index; PaidInLieu is only a tag.
type RequestIndex struct {
	generation uint64
	byKey      map[Day][]RequestRecord
	byMember   map[MemberID][]RequestRecord
}

// NewRequestIndex builds an index from one fetch. Records are kept in input
// order within a key.
func NewRequestIndex(generation uint64, records []RequestRecord) *RequestIndex {
	idx := &RequestIndex{
		generation: generation,
		byKey:      make(map[Day][]RequestRecord),
		byMember:   make(map[MemberID][]RequestRecord),
	}
	for _, r := range records {
		idx.byKey[r.DateKey] = append(idx.byKey[r.DateKey], r)
		idx.byMember[r.MemberID] = append(idx.byMember[r.MemberID], r)
	}
	return idx
}

// OccupancyCount counts occupying requests at key. With a zone, only requests
// in that zone are counted.
func (idx *RequestIndex) OccupancyCount(key Day, zone *ZoneID) int {
	if idx == nil {
		return 0
	}
	n := 0
	for _, r := range idx.byKey[key] {
		if !r.Status.Occupying() {
			continue
		}
		if zone != nil && !sameZone(r.ZoneID, zone) {
			continue
		}
		n++
	}
	return n
}

// MemberRequest returns the member's occupying request at key. A regular
// request is preferred over a paid-in-lieu one when both exist.
func (idx *RequestIndex) MemberRequest(key Day, member MemberID) (RequestRecord, bool) {
	if idx == nil || member == "" {
		return RequestRecord{}, false
	}
	var (
		found RequestRecord
		ok    bool
	)
	for _, r := range idx.byKey[key] {
		if r.MemberID != member || !r.Status.Occupying() {
			continue
		}
		if !r.PaidInLieu {
			return r, true
		}
		if !ok {
			found, ok = r, true
		}
	}
	return found, ok
}

// Requests returns a copy of every request at key, occupying or not.
func (idx *RequestIndex) Requests(key Day) []RequestRecord {
	if idx == nil {
		return nil
	}
	return append([]RequestRecord(nil), idx.byKey[key]...)
}

// MemberRequests returns the member's requests ordered by date key.
func (idx *RequestIndex) MemberRequests(member MemberID) []RequestRecord {
	if idx == nil {
		return nil
	}
	out := append([]RequestRecord(nil), idx.byMember[member]...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].DateKey.Before(out[j].DateKey) })
	return out
}

func (idx *RequestIndex) Len() int {
	if idx == nil {
		return 0
	}
	n := 0
	for _, rs := range idx.byKey {
		n += len(rs)
	}
	return n
}

func (idx *RequestIndex) Generation() uint64 {
	if idx == nil {
		return 0
	}
	return idx.generation
}

// =============================================================================
// SNAPSHOT - Allotments and requests from the same fetch cycle
// =============================================================================

// Snapshot pairs an AllotmentIndex with a RequestIndex of the same generation.
// The engine only answers from a Snapshot, so it never mixes fetch cycles.
type Snapshot struct {
	allotments *AllotmentIndex
	requests   *RequestIndex
}

// NewSnapshot pairs two indices, refusing mismatched generations.
func NewSnapshot(allotments *AllotmentIndex, requests *RequestIndex) (*Snapshot, error) {
	if allotments.Generation() != requests.Generation() {
		return nil, ErrGenerationMismatch
	}
	return &Snapshot{allotments: allotments, requests: requests}, nil
}

// BuildSnapshot builds both indices of one fetch cycle under one generation.
func BuildSnapshot(generation uint64, allotments []AllotmentRecord, requests []RequestRecord) (*Snapshot, error) {
	a, err := NewAllotmentIndex(generation, allotments)
	if err != nil {
		return nil, err
	}
	return NewSnapshot(a, NewRequestIndex(generation, requests))
}

func (s *Snapshot) Generation() uint64 {
	if s == nil {
		return 0
	}
	return s.allotments.Generation()
}

func (s *Snapshot) Allotments() *AllotmentIndex {
	if s == nil {
		return nil
	}
	return s.allotments
}

func (s *Snapshot) Requests() *RequestIndex {
	if s == nil {
		return nil
	}
	return s.requests
}
