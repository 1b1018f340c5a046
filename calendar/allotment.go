package calendar

import "strconv"

// =============================================================================
// ALLOTMENT INDEX - Capacity snapshot, rebuilt wholesale on every fetch
// =============================================================================

type allotmentKey struct {
	day    Day
	zone   ZoneID
	zoned  bool
	yearly bool
	year   int
}

// AllotmentIndex maps date keys to capacity records. It is immutable after
// construction; a refetch builds a new index.
//
// Lookup precedence for Get(key, zone):
//  1. dated record for the zone
//  2. dated division-wide record
//  3. yearly record for the zone
//  4. yearly division-wide record
type AllotmentIndex struct {
	generation uint64
	records    map[allotmentKey]AllotmentRecord
}

// NewAllotmentIndex builds an index from one fetch. Duplicate (key, zone)
// pairs and negative capacities are rejected.
func NewAllotmentIndex(generation uint64, records []AllotmentRecord) (*AllotmentIndex, error) {
	idx := &AllotmentIndex{
		generation: generation,
		records:    make(map[allotmentKey]AllotmentRecord, len(records)),
	}
	for _, r := range records {
		if r.MaxAllotment < 0 {
			return nil, ErrNegativeAllotment
		}
		k := keyForRecord(r)
		if _, exists := idx.records[k]; exists {
			return nil, &DuplicateAllotmentError{Key: k.String(), ZoneID: r.ZoneID}
		}
		idx.records[k] = r
	}
	return idx, nil
}

func keyForRecord(r AllotmentRecord) allotmentKey {
	k := allotmentKey{yearly: r.Yearly}
	if r.Yearly {
		k.year = r.Year
		if k.year == 0 {
			k.year = r.DateKey.Year()
		}
	} else {
		k.day = r.DateKey
	}
	if r.ZoneID != nil {
		k.zone, k.zoned = *r.ZoneID, true
	}
	return k
}

func (k allotmentKey) String() string {
	if k.yearly {
		return "year " + strconv.Itoa(k.year)
	}
	return k.day.String()
}

// Get returns the applicable record for key. Zone-specific records are only
// considered when zone is non-nil.
func (idx *AllotmentIndex) Get(key Day, zone *ZoneID) (AllotmentRecord, bool) {
	if idx == nil {
		return AllotmentRecord{}, false
	}
	for _, k := range lookupOrder(key, zone) {
		if r, ok := idx.records[k]; ok {
			return r, true
		}
	}
	return AllotmentRecord{}, false
}

func lookupOrder(key Day, zone *ZoneID) []allotmentKey {
	dated := allotmentKey{day: key}
	yearly := allotmentKey{yearly: true, year: key.Year()}
	if zone == nil {
		return []allotmentKey{dated, yearly}
	}
	datedZone, yearlyZone := dated, yearly
	datedZone.zone, datedZone.zoned = *zone, true
	yearlyZone.zone, yearlyZone.zoned = *zone, true
	return []allotmentKey{datedZone, dated, yearlyZone, yearly}
}

// Has reports whether any record (any zone) covers key.
func (idx *AllotmentIndex) Has(key Day) bool {
	if idx == nil {
		return false
	}
	for k := range idx.records {
		if k.yearly && k.year == key.Year() || !k.yearly && k.day == key {
			return true
		}
	}
	return false
}

// Len returns the number of records, dated and yearly.
func (idx *AllotmentIndex) Len() int {
	if idx == nil {
		return 0
	}
	return len(idx.records)
}

func (idx *AllotmentIndex) Generation() uint64 {
	if idx == nil {
		return 0
	}
	return idx.generation
}
