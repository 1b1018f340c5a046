package api

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/warp/leave-calendar/calendar"
)

// =============================================================================
// CALENDAR REGISTRY - One Calendar per (kind, division), created on demand
// =============================================================================

type calendarKey struct {
	kind     calendar.Kind
	division calendar.DivisionID
}

type calendarEntry struct {
	cal *calendar.Calendar

	// mu serializes loads so concurrent first readers fetch once.
	mu sync.Mutex
}

// loadTimeout bounds a load triggered by a reader.
const loadTimeout = 10 * time.Second

// Calendars opens calendars lazily and refreshes them together when a
// change signal arrives.
type Calendars struct {
	source   calendar.Source
	options  map[calendar.Kind]calendar.Options
	observer calendar.Observer
	clock    func() time.Time
	logger   *slog.Logger

	mu   sync.Mutex
	cals map[calendarKey]*calendarEntry
}

// NewCalendars creates an empty registry. Kinds missing from options use
// their default policy.
func NewCalendars(source calendar.Source, options map[calendar.Kind]calendar.Options, observer calendar.Observer, clock func() time.Time, logger *slog.Logger) *Calendars {
	if clock == nil {
		clock = time.Now
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Calendars{
		source:   source,
		options:  options,
		observer: observer,
		clock:    clock,
		logger:   logger,
		cals:     make(map[calendarKey]*calendarEntry),
	}
}

// Get returns the calendar of (kind, division), loading it while it has no
// snapshot: on first use, after a failed load and after ResetAll. A failed
// load is logged and the calendar reports every key unallocated; the next
// Get tries again.
func (c *Calendars) Get(ctx context.Context, kind calendar.Kind, division calendar.DivisionID) *calendar.Calendar {
	key := calendarKey{kind, division}

	c.mu.Lock()
	entry, ok := c.cals[key]
	if !ok {
		opts, found := c.options[kind]
		if !found {
			opts = calendar.Options{Policy: calendar.DefaultPolicy(kind)}
			if kind == calendar.KindVacation {
				opts.FetchMonthsAhead = 12
			}
		}
		if opts.Observer == nil {
			opts.Observer = c.observer
		}
		entry = &calendarEntry{cal: calendar.New(c.source, division, opts)}
		c.cals[key] = entry
	}
	c.mu.Unlock()

	entry.mu.Lock()
	defer entry.mu.Unlock()
	if !entry.cal.Loaded() {
		// The caller may go away mid-load; the snapshot is shared.
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), loadTimeout)
		defer cancel()
		c.refresh(loadCtx, entry.cal)
	}
	return entry.cal
}

func (c *Calendars) refresh(ctx context.Context, cal *calendar.Calendar) error {
	err := cal.Refresh(ctx, c.clock())
	if err != nil {
		c.logger.Warn("calendar refresh failed",
			"kind", cal.Kind(), "division", cal.Division(), "err", err)
		return err
	}
	c.logger.Debug("calendar refreshed",
		"kind", cal.Kind(), "division", cal.Division(), "generation", cal.Snapshot().Generation())
	return nil
}

// RefreshAll refetches every open calendar and reports how many it touched.
func (c *Calendars) RefreshAll(ctx context.Context) (int, error) {
	cals := c.list()
	var errs []error
	for _, cal := range cals {
		if err := c.refresh(ctx, cal); err != nil {
			errs = append(errs, err)
		}
	}
	return len(cals), errors.Join(errs...)
}

// ResetAll drops every snapshot, as on logout or a data reset. The next
// RefreshAll, or the next Get of each calendar, reloads them.
func (c *Calendars) ResetAll() {
	for _, cal := range c.list() {
		cal.Reset()
	}
}

// Len returns the number of open calendars.
func (c *Calendars) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.cals)
}

func (c *Calendars) list() []*calendar.Calendar {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*calendar.Calendar, 0, len(c.cals))
	for _, e := range c.cals {
		out = append(out, e.cal)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Kind() != out[j].Kind() {
			return out[i].Kind() < out[j].Kind()
		}
		return out[i].Division() < out[j].Division()
	})
	return out
}
