/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the database with realistic
	calendar data. Each scenario creates members, allotments and requests
	that show one aspect of availability: capacity thresholds, zone
	allotments, vacation weeks.

AVAILABLE SCENARIOS:

	standard-division: One division, yearly allotment with dated overrides
	zoned-division:    Zone allotments next to a division-wide one
	vacation-season:   Weekly vacation keys with a waitlisted week

HOW SCENARIOS WORK:
 1. Reset database (clear all data)
 2. Create members
 3. Save allotments (yearly, then dated overrides)
 4. Save requests in every status
 5. Drop snapshots and sessions, announce the change

All dates are relative to the handler clock, so a scenario always lands
inside the request window.

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "zoned-division"}

ADDING NEW SCENARIOS:
 1. Add to 'scenarios' slice with ID, name, description
 2. Create loader function: loadXxxScenario(ctx, today)
 3. Add case to LoadScenario handler

NOTE:

	Scenarios reset the database. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: calendar and selection handlers
  - store/sqlite/sqlite.go: Persistence
*/
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/warp/leave-calendar/calendar"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "standard-division",
		Name:        "Standard Division",
		Description: "Yearly PLD/SDV allotment of 4 with a full day, a limited day and a closed holiday",
		Kind:        string(calendar.KindDaily),
	},
	{
		ID:          "zoned-division",
		Name:        "Zoned Division",
		Description: "Two zones with their own allotments next to a division-wide allotment",
		Kind:        string(calendar.KindDaily),
	},
	{
		ID:          "vacation-season",
		Name:        "Vacation Season",
		Description: "Weekly vacation allotments with a full week and a waitlist",
		Kind:        string(calendar.KindVacation),
	},
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()

	if current == "" {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, ScenarioDTO{ID: current, Name: current})
}

// LoadScenario loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if !h.validateStruct(w, req) {
		return
	}

	var load func(context.Context, calendar.Day) error
	switch req.ScenarioID {
	case "standard-division":
		load = h.loadStandardDivisionScenario
	case "zoned-division":
		load = h.loadZonedDivisionScenario
	case "vacation-season":
		load = h.loadVacationSeasonScenario
	default:
		writeError(w, http.StatusNotFound, "Unknown scenario", nil)
		return
	}

	ctx := r.Context()
	if err := h.reset(ctx); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	if err := load(ctx, calendar.DayOf(h.Clock())); err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to load scenario: %v", err), err)
		return
	}
	if resp, _ := h.changed(ctx); len(resp.Errors) > 0 {
		h.Logger.Warn("refresh after scenario load failed", "scenario", req.ScenarioID, "errors", resp.Errors)
	}

	h.mu.Lock()
	h.currentScenario = req.ScenarioID
	h.mu.Unlock()

	h.Logger.Info("scenario loaded", "scenario", req.ScenarioID)
	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": req.ScenarioID})
}

// ResetDatabase clears all data.
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	if err := h.reset(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	if resp, _ := h.changed(r.Context()); len(resp.Errors) > 0 {
		h.Logger.Warn("refresh after reset failed", "errors", resp.Errors)
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// reset empties the store, drops every snapshot and every selection.
func (h *Handler) reset(ctx context.Context) error {
	if err := h.Store.Reset(ctx); err != nil {
		return err
	}
	h.Calendars.ResetAll()
	h.clearSessions()

	h.mu.Lock()
	h.currentScenario = ""
	h.mu.Unlock()
	return nil
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

// workday returns the first Monday-to-Friday day at least n days after today.
func workday(today calendar.Day, n int) calendar.Day {
	d := today.AddDays(n)
	for d.Weekday() == time.Sunday || d.Weekday() == time.Saturday {
		d = d.AddDays(1)
	}
	return d
}

func yearlyAllotments(kind calendar.Kind, division calendar.DivisionID, today calendar.Day, maxAllotment int, zone *calendar.ZoneID) []calendar.AllotmentRecord {
	return []calendar.AllotmentRecord{
		{Kind: kind, DivisionID: division, Year: today.Year(), Yearly: true, MaxAllotment: maxAllotment, ZoneID: zone},
		{Kind: kind, DivisionID: division, Year: today.Year() + 1, Yearly: true, MaxAllotment: maxAllotment, ZoneID: zone},
	}
}

func request(member calendar.MemberID, kind calendar.Kind, division calendar.DivisionID, key calendar.Day, status calendar.RequestStatus, leave calendar.LeaveType) calendar.RequestRecord {
	return calendar.RequestRecord{
		ID:         calendar.RequestID(uuid.NewString()),
		MemberID:   member,
		Kind:       kind,
		DivisionID: division,
		DateKey:    key,
		Status:     status,
		LeaveType:  leave,
	}
}

func (h *Handler) saveMembers(ctx context.Context, members ...calendar.Member) error {
	for _, m := range members {
		if err := h.Store.SaveMember(ctx, m); err != nil {
			return fmt.Errorf("save member %s: %w", m.ID, err)
		}
	}
	return nil
}

func (h *Handler) loadStandardDivisionScenario(ctx context.Context, today calendar.Day) error {
	const division calendar.DivisionID = 1
	daily := calendar.KindDaily

	if err := h.saveMembers(ctx,
		calendar.Member{ID: "m-101", Name: "Dana Whitfield", DivisionID: division},
		calendar.Member{ID: "m-102", Name: "Ray Okafor", DivisionID: division},
		calendar.Member{ID: "m-103", Name: "Lena Sorensen", DivisionID: division},
		calendar.Member{ID: "m-104", Name: "Marco Ruiz", DivisionID: division},
		calendar.Member{ID: "m-105", Name: "Priya Natarajan", DivisionID: division},
	); err != nil {
		return err
	}

	full := workday(today, 7)
	limited := workday(full, 1)
	holiday := workday(limited, 1)
	ownDay := workday(holiday, 3)
	narrow := workday(ownDay, 2)

	allotments := yearlyAllotments(daily, division, today, 4, nil)
	allotments = append(allotments,
		calendar.AllotmentRecord{Kind: daily, DivisionID: division, DateKey: holiday, MaxAllotment: 0},
		calendar.AllotmentRecord{Kind: daily, DivisionID: division, DateKey: narrow, MaxAllotment: 1},
	)
	if err := h.Store.SaveAllotments(ctx, allotments...); err != nil {
		return err
	}

	reqs := []calendar.RequestRecord{
		// Full: 4 of 4, one of them waitlisted
		request("m-102", daily, division, full, calendar.StatusApproved, calendar.LeavePLD),
		request("m-103", daily, division, full, calendar.StatusApproved, calendar.LeaveSDV),
		request("m-104", daily, division, full, calendar.StatusPending, calendar.LeavePLD),
		request("m-105", daily, division, full, calendar.StatusWaitlisted, calendar.LeavePLD),
		// Limited: 3 of 4, a denied request does not count
		request("m-102", daily, division, limited, calendar.StatusApproved, calendar.LeavePLD),
		request("m-103", daily, division, limited, calendar.StatusCancellationPending, calendar.LeavePLD),
		request("m-104", daily, division, limited, calendar.StatusPending, calendar.LeaveSDV),
		request("m-105", daily, division, limited, calendar.StatusDenied, calendar.LeavePLD),
		// m-101 already holds a day
		request("m-101", daily, division, ownDay, calendar.StatusApproved, calendar.LeavePLD),
		// Narrow day is full at 1, but m-101 was paid in lieu elsewhere
		request("m-102", daily, division, narrow, calendar.StatusApproved, calendar.LeaveSDV),
	}
	paid := request("m-101", daily, division, workday(narrow, 3), calendar.StatusApproved, calendar.LeaveSDV)
	paid.PaidInLieu = true
	reqs = append(reqs, paid)

	return h.Store.SaveRequests(ctx, reqs...)
}

func (h *Handler) loadZonedDivisionScenario(ctx context.Context, today calendar.Day) error {
	const division calendar.DivisionID = 2
	daily := calendar.KindDaily
	north, south := calendar.Zone(10), calendar.Zone(20)

	if err := h.saveMembers(ctx,
		calendar.Member{ID: "m-201", Name: "Hollis Grant", DivisionID: division, ZoneID: north},
		calendar.Member{ID: "m-202", Name: "Ines Carvalho", DivisionID: division, ZoneID: north},
		calendar.Member{ID: "m-203", Name: "Tomasz Wojcik", DivisionID: division, ZoneID: south},
		calendar.Member{ID: "m-204", Name: "Abby Lindqvist", DivisionID: division, ZoneID: south},
		calendar.Member{ID: "m-205", Name: "Sam Achebe", DivisionID: division},
	); err != nil {
		return err
	}

	busy := workday(today, 10)

	allotments := yearlyAllotments(daily, division, today, 6, nil)
	allotments = append(allotments, yearlyAllotments(daily, division, today, 2, north)...)
	allotments = append(allotments,
		// South only has a dated allotment on the busy day; other days fall
		// back to the division-wide yearly record.
		calendar.AllotmentRecord{Kind: daily, DivisionID: division, DateKey: busy, MaxAllotment: 3, ZoneID: south},
	)
	if err := h.Store.SaveAllotments(ctx, allotments...); err != nil {
		return err
	}

	reqs := []calendar.RequestRecord{
		request("m-201", daily, division, busy, calendar.StatusApproved, calendar.LeavePLD),
		request("m-202", daily, division, busy, calendar.StatusPending, calendar.LeavePLD),
		request("m-203", daily, division, busy, calendar.StatusApproved, calendar.LeaveSDV),
		request("m-205", daily, division, busy, calendar.StatusApproved, calendar.LeavePLD),
	}
	for i := range reqs {
		switch reqs[i].MemberID {
		case "m-201", "m-202":
			reqs[i].ZoneID = north
		case "m-203":
			reqs[i].ZoneID = south
		}
	}
	return h.Store.SaveRequests(ctx, reqs...)
}

func (h *Handler) loadVacationSeasonScenario(ctx context.Context, today calendar.Day) error {
	const division calendar.DivisionID = 3
	vacation := calendar.KindVacation
	weekStart := h.weekStart(vacation)

	if err := h.saveMembers(ctx,
		calendar.Member{ID: "m-301", Name: "Orla Brennan", DivisionID: division},
		calendar.Member{ID: "m-302", Name: "Kofi Mensah", DivisionID: division},
		calendar.Member{ID: "m-303", Name: "Yuki Tanaka", DivisionID: division},
		calendar.Member{ID: "m-304", Name: "Nadia Haddad", DivisionID: division},
	); err != nil {
		return err
	}

	summer := calendar.WeekStartOf(calendar.NewDay(today.Year()+1, 7, 1), weekStart)
	next := summer.AddDays(7)
	closed := next.AddDays(7)
	mine := calendar.WeekStartOf(today.AddDays(60), weekStart)

	allotments := yearlyAllotments(vacation, division, today, 3, nil)
	allotments = append(allotments,
		calendar.AllotmentRecord{Kind: vacation, DivisionID: division, DateKey: summer, MaxAllotment: 2},
		calendar.AllotmentRecord{Kind: vacation, DivisionID: division, DateKey: closed, MaxAllotment: 0},
	)
	if err := h.Store.SaveAllotments(ctx, allotments...); err != nil {
		return err
	}

	return h.Store.SaveRequests(ctx,
		request("m-302", vacation, division, summer, calendar.StatusApproved, ""),
		request("m-303", vacation, division, summer, calendar.StatusApproved, ""),
		request("m-304", vacation, division, summer, calendar.StatusWaitlisted, ""),
		request("m-302", vacation, division, next, calendar.StatusApproved, ""),
		request("m-303", vacation, division, next, calendar.StatusTransferred, ""),
		request("m-301", vacation, division, mine, calendar.StatusApproved, ""),
	)
}

// weekStart returns the configured first weekday of vacation keys so the
// seeded keys line up with the calendar's own.
func (h *Handler) weekStart(kind calendar.Kind) time.Weekday {
	if opts, ok := h.Calendars.options[kind]; ok {
		return opts.Policy.WeekStart
	}
	return calendar.DefaultPolicy(kind).WeekStart
}
