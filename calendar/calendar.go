/*
calendar.go - One calendar context (kind + division)

PURPOSE:
  A Calendar owns the current Snapshot of one context, the generation
  counter shared by both of its indices, and the fetch boundary used to
  rebuild it. There is one Calendar for PLD/SDV and one for vacation per
  division; nothing is shared between them.

REFRESH CYCLE:
  1. Take the next generation
  2. Load allotments and requests for the fetch range
  3. Normalize vacation keys to week starts
  4. Build both indices under the same generation
  5. Swap the snapshot unless a newer refresh already landed

  A failed fetch or build drops the snapshot, so every key reports
  unallocated until the next successful refresh. Realtime "something
  changed" signals simply call Refresh again.

FETCH RANGE:
  From the start of the current month (its week start for vacation) to the
  end of the month max(HorizonMonths, FetchMonthsAhead) months ahead.

SEE ALSO:
  - selection.go: Per-member selection reading this calendar
  - request.go: Snapshot pairing
*/
package calendar

import (
	"context"
	"sync"
	"time"
)

// Options configures a Calendar.
type Options struct {
	Policy Policy

	// FetchMonthsAhead extends the fetch range past the policy horizon.
	FetchMonthsAhead int

	Observer Observer
}

type Calendar struct {
	division DivisionID
	source   Source
	engine   *Engine
	months   int
	observer Observer

	mu         sync.RWMutex
	snapshot   *Snapshot
	loaded     uint64 // generation of the current snapshot (or failure)
	next       uint64
	fetchStart Day
	fetchEnd   Day
}

// New creates an empty calendar. It reports every key unallocated until the
// first Refresh.
func New(source Source, division DivisionID, opts Options) *Calendar {
	if opts.Policy.Kind == "" {
		opts.Policy = DefaultPolicy(KindDaily)
	}
	if opts.Observer == nil {
		opts.Observer = nopObserver{}
	}
	return &Calendar{
		division: division,
		source:   source,
		engine:   NewEngine(opts.Policy),
		months:   max(opts.Policy.Window.HorizonMonths, opts.FetchMonthsAhead),
		observer: opts.Observer,
	}
}

func (c *Calendar) Kind() Kind { return c.engine.Policy.Kind }
func (c *Calendar) Division() DivisionID { return c.division }
func (c *Calendar) Policy() Policy { return c.engine.Policy }

// FetchRange returns the window Refresh loads at now.
func (c *Calendar) FetchRange(now time.Time) (start, end Day) {
	today := c.engine.Policy.Window.Today(now)
	start = StartOfMonth(today)
	if c.Kind() == KindVacation {
		start = WeekStartOf(start, c.engine.Policy.WeekStart)
	}
	end = EndOfMonth(addMonthsClamped(today, c.months))
	return start, end
}

// Refresh reloads the snapshot from the source.
func (c *Calendar) Refresh(ctx context.Context, now time.Time) error {
	began := time.Now()
	c.mu.Lock()
	c.next++
	gen := c.next
	c.mu.Unlock()

	start, end := c.FetchRange(now)
	snap, err := c.fetch(ctx, gen, start, end)

	c.mu.Lock()
	if gen > c.loaded {
		c.snapshot = snap
		c.loaded = gen
		c.fetchStart, c.fetchEnd = start, end
	}
	c.mu.Unlock()

	c.observer.ObserveRefresh(c.Kind(), gen, time.Since(began), err)
	return err
}

func (c *Calendar) fetch(ctx context.Context, gen uint64, start, end Day) (*Snapshot, error) {
	scope := Scope{Kind: c.Kind(), DivisionID: c.division}

	allotments, err := c.source.LoadAllotments(ctx, scope, start, end)
	if err != nil {
		return nil, &FetchError{Kind: scope.Kind, DivisionID: c.division, Op: "allotments", Err: err}
	}
	requests, err := c.source.LoadRequests(ctx, scope, start, end)
	if err != nil {
		return nil, &FetchError{Kind: scope.Kind, DivisionID: c.division, Op: "requests", Err: err}
	}

	allotments = c.normalizeAllotments(allotments)
	requests = c.normalizeRequests(requests)
	return BuildSnapshot(gen, allotments, requests)
}

func (c *Calendar) normalizeAllotments(in []AllotmentRecord) []AllotmentRecord {
	out := in[:0:0]
	for _, r := range in {
		if r.Kind != "" && r.Kind != c.Kind() {
			continue
		}
		if !r.Yearly {
			r.DateKey = c.engine.Policy.KeyOf(r.DateKey)
		}
		out = append(out, r)
	}
	return out
}

func (c *Calendar) normalizeRequests(in []RequestRecord) []RequestRecord {
	out := in[:0:0]
	for _, r := range in {
		if r.Kind != "" && r.Kind != c.Kind() {
			continue
		}
		r.DateKey = c.engine.Policy.KeyOf(r.DateKey)
		out = append(out, r)
	}
	return out
}

// Snapshot returns the current snapshot, nil when none is loaded.
func (c *Calendar) Snapshot() *Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshot
}

// LoadedRange returns the window of the last refresh attempt.
func (c *Calendar) LoadedRange() (start, end Day) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.fetchStart, c.fetchEnd
}

// Loaded reports whether a usable snapshot is present.
func (c *Calendar) Loaded() bool { return c.Snapshot() != nil }

// Classify classifies day against the current snapshot.
func (c *Calendar) Classify(q Query, day Day) Assessment {
	a := c.engine.Classify(c.Snapshot(), q, day)
	c.observer.ObserveClassification(c.Kind(), a.Verdict)
	return a
}

// Range classifies every key in [start, end] against one snapshot.
func (c *Calendar) Range(q Query, start, end Day) []Assessment {
	out := c.engine.Range(c.Snapshot(), q, start, end)
	for _, a := range out {
		c.observer.ObserveClassification(c.Kind(), a.Verdict)
	}
	return out
}

// Requests returns every request at day's key in the current snapshot.
func (c *Calendar) Requests(day Day) []RequestRecord {
	return c.Snapshot().Requests().Requests(c.engine.Policy.KeyOf(day))
}

// Reset drops the snapshot, as on logout. Selections clear on next read.
func (c *Calendar) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.next++
	c.loaded = c.next
	c.snapshot = nil
}

// NewSelection starts a selection for member viewing zone (nil = own zone).
func (c *Calendar) NewSelection(member Member, zone *ZoneID) *Selection {
	return &Selection{cal: c, member: member, zone: zone}
}
