/*
handlers_test.go - HTTP tests for the calendar and selection handlers

Tests for:
- Days and single-day classification over HTTP
- Input validation and error statuses
- Press flow: select, toggle, waitlist offer, rejection
- Occupants detail view
- Refresh endpoint and change signal
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/leave-calendar/calendar"
	"github.com/warp/leave-calendar/metrics"
	"github.com/warp/leave-calendar/realtime"
	"github.com/warp/leave-calendar/store/sqlite"
)

// Wednesday; the first requestable day is 2026-10-17.
var testNow = time.Date(2026, time.October, 14, 10, 0, 0, 0, time.UTC)

const daily = "/api/calendars/pld_sdv/divisions/1"

type testEnv struct {
	store     *sqlite.Store
	h         *Handler
	router    http.Handler
	changes   *realtime.Broadcaster
	scheduler *RefreshScheduler
}

func newTestEnv(t *testing.T, opts Options) *testEnv {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	seedDivision(t, store)

	changes := realtime.NewBroadcaster()
	t.Cleanup(changes.Close)
	opts.Publisher = changes
	opts.Clock = func() time.Time { return testNow }

	h := NewHandler(store, opts)

	// Refetches on change signals, as in cmd/server.
	rs := NewRefreshScheduler(h.Calendars, changes, nil)
	rs.Debounce = 10 * time.Millisecond
	rs.Interval = 0
	rs.Start()
	t.Cleanup(rs.Stop)
	require.Eventually(t, func() bool { return changes.Subscribers() == 1 }, time.Second, 5*time.Millisecond)

	routerOpts := RouterOptions{}
	if opts.Metrics != nil {
		routerOpts.MetricsHandler = opts.Metrics.Handler()
	}
	return &testEnv{store: store, h: h, router: NewRouter(h, routerOpts), changes: changes, scheduler: rs}
}

// seedDivision creates division 1:
//
//	2026-10-20  max 4, 3 occupying        limited
//	2026-10-21  max 1, 1 occupying        full
//	2026-10-22  max 4, 1 denied           available (zone 7: max 1)
//	2026-10-23  max 4, m-1 approved       user_requested for m-1
func seedDivision(t *testing.T, store *sqlite.Store) {
	t.Helper()
	ctx := context.Background()
	for _, m := range []calendar.Member{
		{ID: "m-1", Name: "Avery Stone", DivisionID: 1},
		{ID: "m-2", Name: "Blake Moreno", DivisionID: 1},
		{ID: "m-3", Name: "Casey Holm", DivisionID: 1},
		{ID: "m-4", Name: "Drew Patel", DivisionID: 1},
		{ID: "m-5", Name: "Emery Quinn", DivisionID: 1, ZoneID: calendar.Zone(7)},
		{ID: "m-9", Name: "Finley Ames", DivisionID: 2},
	} {
		require.NoError(t, store.SaveMember(ctx, m))
	}

	allot := func(date string, n int, zone *calendar.ZoneID) calendar.AllotmentRecord {
		return calendar.AllotmentRecord{Kind: calendar.KindDaily, DivisionID: 1, DateKey: calendar.MustParseDay(date), MaxAllotment: n, ZoneID: zone}
	}
	require.NoError(t, store.SaveAllotments(ctx,
		allot("2026-10-20", 4, nil),
		allot("2026-10-21", 1, nil),
		allot("2026-10-22", 4, nil),
		allot("2026-10-22", 1, calendar.Zone(7)),
		allot("2026-10-23", 4, nil),
	))

	req := func(id, member, date string, status calendar.RequestStatus) calendar.RequestRecord {
		return calendar.RequestRecord{
			ID: calendar.RequestID(id), MemberID: calendar.MemberID(member), Kind: calendar.KindDaily,
			DivisionID: 1, DateKey: calendar.MustParseDay(date), Status: status, LeaveType: calendar.LeavePLD,
		}
	}
	require.NoError(t, store.SaveRequests(ctx,
		req("r-1", "m-2", "2026-10-20", calendar.StatusApproved),
		req("r-2", "m-3", "2026-10-20", calendar.StatusPending),
		req("r-3", "m-4", "2026-10-20", calendar.StatusWaitlisted),
		req("r-4", "m-2", "2026-10-21", calendar.StatusApproved),
		req("r-5", "m-3", "2026-10-22", calendar.StatusDenied),
		req("r-6", "m-1", "2026-10-23", calendar.StatusApproved),
	))
}

func (e *testEnv) do(method, path string, body any) *httptest.ResponseRecorder {
	var r io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func (e *testEnv) press(t *testing.T, member, date string) PressResponse {
	t.Helper()
	rec := e.do(http.MethodPost, daily+"/press", PressRequest{MemberID: member, Date: date})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return decode[PressResponse](t, rec)
}

// =============================================================================
// DAYS
// =============================================================================

func TestGetDays_DefaultsToCurrentMonth(t *testing.T) {
	// GIVEN: a seeded division
	env := newTestEnv(t, Options{})

	// WHEN: days are requested without a range
	rec := env.do(http.MethodGet, daily+"/days?member_id=m-1", nil)

	// THEN: the whole current month is classified
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[DaysResponse](t, rec)
	assert.Equal(t, "pld_sdv", resp.Kind)
	assert.Equal(t, 1, resp.DivisionID)
	assert.True(t, resp.Loaded)
	assert.Equal(t, "2026-10-01", resp.Start)
	assert.Equal(t, "2026-10-31", resp.End)
	require.Len(t, resp.Days, 31)

	byDate := make(map[string]DayDTO)
	for _, d := range resp.Days {
		byDate[d.Date] = d
	}
	assert.Equal(t, "unavailable", byDate["2026-10-15"].Verdict)
	assert.Equal(t, "too_soon", byDate["2026-10-15"].Reason)
	assert.Equal(t, "unallocated", byDate["2026-10-17"].Verdict)
	assert.Equal(t, "limited", byDate["2026-10-20"].Verdict)
	assert.Equal(t, 3, byDate["2026-10-20"].Occupied)
	assert.Equal(t, 1, byDate["2026-10-20"].Remaining)
	assert.Equal(t, "full", byDate["2026-10-21"].Verdict)
	assert.False(t, byDate["2026-10-21"].Selectable)
	assert.Equal(t, "available", byDate["2026-10-22"].Verdict)
	assert.Equal(t, 0, byDate["2026-10-22"].Occupied, "denied requests never occupy")
	assert.Equal(t, "user_requested", byDate["2026-10-23"].Verdict)
	assert.Equal(t, "r-6", byDate["2026-10-23"].RequestID)
}

func TestGetDays_ExplicitRange(t *testing.T) {
	env := newTestEnv(t, Options{})

	rec := env.do(http.MethodGet, daily+"/days?member_id=m-2&start=2026-10-20&end=2026-10-23", nil)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[DaysResponse](t, rec)
	require.Len(t, resp.Days, 4)
	assert.Equal(t, "user_requested", resp.Days[0].Verdict, "m-2 holds 10-20")
	assert.Equal(t, "user_requested", resp.Days[1].Verdict, "m-2 holds 10-21")
	assert.NotZero(t, resp.Generation)
}

func TestGetDays_ZoneMemberSeesZoneAllotment(t *testing.T) {
	env := newTestEnv(t, Options{})

	rec := env.do(http.MethodGet, daily+"/days/2026-10-22?member_id=m-5", nil)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	day := decode[DayDTO](t, rec)
	assert.Equal(t, 1, day.Max)
	require.NotNil(t, day.ZoneID)
	assert.Equal(t, 7, *day.ZoneID)
}

func TestGetDays_Errors(t *testing.T) {
	env := newTestEnv(t, Options{})

	tests := []struct {
		name   string
		path   string
		status int
	}{
		{"unknown kind", "/api/calendars/overtime/divisions/1/days?member_id=m-1", http.StatusNotFound},
		{"bad division", "/api/calendars/pld_sdv/divisions/x/days?member_id=m-1", http.StatusBadRequest},
		{"missing member", daily + "/days", http.StatusBadRequest},
		{"bad date", daily + "/days?member_id=m-1&start=10/20/2026", http.StatusBadRequest},
		{"end before start", daily + "/days?member_id=m-1&start=2026-10-20&end=2026-10-01", http.StatusBadRequest},
		{"range too large", daily + "/days?member_id=m-1&start=2026-01-01&end=2028-01-01", http.StatusBadRequest},
		{"unknown member", daily + "/days?member_id=nobody", http.StatusNotFound},
		{"other division", daily + "/days?member_id=m-9", http.StatusForbidden},
		{"other zone", daily + "/days?member_id=m-5&zone_id=8", http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(http.MethodGet, tt.path, nil)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
		})
	}
}

func TestGetDays_ValidationFields(t *testing.T) {
	env := newTestEnv(t, Options{})

	rec := env.do(http.MethodGet, daily+"/days?zone_id=abc", nil)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decode[ErrorResponse](t, rec)
	assert.Equal(t, "required", resp.Fields["MemberID"])
	assert.Equal(t, "number", resp.Fields["ZoneID"])
}

func TestGetOccupants(t *testing.T) {
	env := newTestEnv(t, Options{})

	rec := env.do(http.MethodGet, daily+"/days/2026-10-20/occupants", nil)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[OccupantsResponse](t, rec)
	assert.Equal(t, "2026-10-20", resp.Key)
	require.Len(t, resp.Occupants, 3)
	names := make(map[string]string)
	for _, o := range resp.Occupants {
		names[o.MemberID] = o.MemberName
		assert.True(t, o.Occupying)
	}
	assert.Equal(t, "Blake Moreno", names["m-2"])
}

func TestGetOccupants_InvalidDate(t *testing.T) {
	env := newTestEnv(t, Options{})

	rec := env.do(http.MethodGet, daily+"/days/not-a-date/occupants", nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
	assert.Equal(t, "Invalid date", decode[ErrorResponse](t, rec).Error)
}

// =============================================================================
// PRESS
// =============================================================================

func TestPress_SelectToggleAndMove(t *testing.T) {
	env := newTestEnv(t, Options{})

	// WHEN: an available day is pressed
	out := env.press(t, "m-1", "2026-10-22")

	// THEN: it becomes the selection
	assert.Equal(t, "selected", out.Outcome)
	assert.True(t, out.Accepted)
	require.NotNil(t, out.Selected)
	assert.Equal(t, "2026-10-22", *out.Selected)
	require.NotNil(t, out.Day)
	assert.True(t, out.Day.Selected)

	// WHEN: another day is pressed, the selection moves
	out = env.press(t, "m-1", "2026-10-20")
	assert.Equal(t, "selected", out.Outcome)
	assert.Equal(t, "2026-10-20", *out.Selected)

	// WHEN: the same day is pressed again, it toggles off
	out = env.press(t, "m-1", "2026-10-20")
	assert.Equal(t, "deselected", out.Outcome)
	assert.Nil(t, out.Selected)
}

func TestPress_FullOffersWaitlist(t *testing.T) {
	env := newTestEnv(t, Options{})

	out := env.press(t, "m-1", "2026-10-21")

	assert.Equal(t, "selected", out.Outcome)
	assert.True(t, out.WaitlistOffer)
	assert.Equal(t, "full", out.Reason)
}

func TestPress_RejectionKeepsSelection(t *testing.T) {
	// GIVEN: a selected day
	env := newTestEnv(t, Options{})
	env.press(t, "m-1", "2026-10-22")

	for _, tc := range []struct{ date, reason string }{
		{"2026-10-15", "too_soon"},
		{"2027-05-03", "too_far"},
		{"2026-10-27", "unallocated"},
	} {
		// WHEN: an invalid day is pressed
		out := env.press(t, "m-1", tc.date)

		// THEN: it is rejected with a reason and the selection stays
		assert.Equal(t, "rejected", out.Outcome, tc.date)
		assert.Equal(t, tc.reason, out.Reason, tc.date)
		assert.NotEmpty(t, out.Message)
		require.NotNil(t, out.Selected)
		assert.Equal(t, "2026-10-22", *out.Selected)
	}
}

func TestPress_OwnRequestIsIgnored(t *testing.T) {
	env := newTestEnv(t, Options{})

	out := env.press(t, "m-1", "2026-10-23")

	assert.Equal(t, "ignored", out.Outcome)
	assert.False(t, out.Accepted)
	assert.Nil(t, out.Selected)
}

func TestPress_OwnZoneSharesSession(t *testing.T) {
	// GIVEN: m-5 presses 10-22 naming their own zone
	env := newTestEnv(t, Options{})
	rec := env.do(http.MethodPost, daily+"/press", PressRequest{MemberID: "m-5", Date: "2026-10-22", ZoneID: zoneInt(calendar.Zone(7))})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.True(t, decode[PressResponse](t, rec).Accepted)

	// THEN: views without a zone_id see the same selection
	rec = env.do(http.MethodGet, daily+"/days/2026-10-22?member_id=m-5", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, decode[DayDTO](t, rec).Selected)

	rec = env.do(http.MethodGet, daily+"/selection?member_id=m-5", nil)
	sel := decode[SelectionDTO](t, rec)
	require.NotNil(t, sel.Selected)
	assert.Equal(t, "2026-10-22", *sel.Selected)
}

func TestPress_ZoneAccessDenied(t *testing.T) {
	env := newTestEnv(t, Options{})

	rec := env.do(http.MethodPost, daily+"/press", PressRequest{MemberID: "m-5", Date: "2026-10-22", ZoneID: zoneInt(calendar.Zone(8))})

	require.Equal(t, http.StatusOK, rec.Code)
	out := decode[PressResponse](t, rec)
	assert.Equal(t, "rejected", out.Outcome)
	assert.Equal(t, "zone_access_denied", out.Reason)
}

func TestPress_InvalidBody(t *testing.T) {
	env := newTestEnv(t, Options{})

	rec := env.do(http.MethodPost, daily+"/press", PressRequest{MemberID: "m-1", Date: "tomorrow"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "datetime", decode[ErrorResponse](t, rec).Fields["Date"])

	req := httptest.NewRequest(http.MethodPost, daily+"/press", strings.NewReader("{"))
	raw := httptest.NewRecorder()
	env.router.ServeHTTP(raw, req)
	assert.Equal(t, http.StatusBadRequest, raw.Code)
}

// =============================================================================
// SELECTION
// =============================================================================

func TestSelection_GetAndClear(t *testing.T) {
	env := newTestEnv(t, Options{})

	rec := env.do(http.MethodGet, daily+"/selection?member_id=m-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, decode[SelectionDTO](t, rec).Selected)

	env.press(t, "m-1", "2026-10-20")

	rec = env.do(http.MethodGet, daily+"/selection?member_id=m-1", nil)
	sel := decode[SelectionDTO](t, rec)
	require.NotNil(t, sel.Selected)
	assert.Equal(t, "2026-10-20", *sel.Selected)
	require.NotNil(t, sel.Day)
	assert.Equal(t, "limited", sel.Day.Verdict)

	// Sessions are per member
	rec = env.do(http.MethodGet, daily+"/selection?member_id=m-2", nil)
	assert.Nil(t, decode[SelectionDTO](t, rec).Selected)

	rec = env.do(http.MethodDelete, daily+"/selection?member_id=m-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = env.do(http.MethodGet, daily+"/selection?member_id=m-1", nil)
	assert.Nil(t, decode[SelectionDTO](t, rec).Selected)
}

func TestSelection_ClearsWhenAllotmentRemoved(t *testing.T) {
	// GIVEN: a selection on 10-22
	env := newTestEnv(t, Options{})
	env.press(t, "m-1", "2026-10-22")

	// WHEN: the allotment is deleted and calendars refresh
	require.NoError(t, env.store.DeleteAllotment(context.Background(), calendar.KindDaily, 1, calendar.MustParseDay("2026-10-22"), nil))
	rec := env.do(http.MethodPost, "/api/calendars/refresh", nil)
	require.Equal(t, http.StatusAccepted, rec.Code)

	// THEN: the selection reads empty once the refetch lands
	assert.Eventually(t, func() bool {
		rec := env.do(http.MethodGet, daily+"/selection?member_id=m-1", nil)
		return decode[SelectionDTO](t, rec).Selected == nil
	}, time.Second, 10*time.Millisecond)
}

// =============================================================================
// REFRESH
// =============================================================================

func TestRefresh_SignalsAndRefetchesOnce(t *testing.T) {
	// GIVEN: an open calendar
	env := newTestEnv(t, Options{})
	env.do(http.MethodGet, daily+"/days?member_id=m-1", nil)
	cal := env.h.Calendars.Get(context.Background(), calendar.KindDaily, 1)
	require.Equal(t, uint64(1), cal.Snapshot().Generation())

	// WHEN: a request lands in the store and the refresh endpoint is hit
	require.NoError(t, env.store.SaveRequests(context.Background(), calendar.RequestRecord{
		ID: "r-new", MemberID: "m-4", Kind: calendar.KindDaily, DivisionID: 1,
		DateKey: calendar.MustParseDay("2026-10-22"), Status: calendar.StatusPending, LeaveType: calendar.LeaveSDV,
	}))
	rec := env.do(http.MethodPost, "/api/calendars/refresh", nil)

	// THEN: the change is signalled and the watcher refetches once
	require.Equal(t, http.StatusAccepted, rec.Code)
	resp := decode[RefreshResponse](t, rec)
	assert.Equal(t, "signalled", resp.Status)
	assert.Equal(t, 1, resp.Calendars)

	require.Eventually(t, func() bool { return cal.Snapshot().Generation() == 2 }, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, uint64(2), cal.Snapshot().Generation(), "no second refetch")
	runs, _ := env.scheduler.Stats()
	assert.Equal(t, 1, runs)

	rec = env.do(http.MethodGet, daily+"/days/2026-10-22?member_id=m-1", nil)
	assert.Equal(t, 1, decode[DayDTO](t, rec).Occupied)
}

func TestRefresh_WithoutPublisherRefreshesInline(t *testing.T) {
	env := newTestEnv(t, Options{})
	env.h.Publisher = nil
	cal := env.h.Calendars.Get(context.Background(), calendar.KindDaily, 1)

	rec := env.do(http.MethodPost, "/api/calendars/refresh", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[RefreshResponse](t, rec)
	assert.Equal(t, "refreshed", resp.Status)
	assert.Equal(t, 1, resp.Calendars)
	assert.Equal(t, uint64(2), cal.Snapshot().Generation())
}

// =============================================================================
// MEMBERS, HEALTH, METRICS
// =============================================================================

func TestMembers(t *testing.T) {
	env := newTestEnv(t, Options{})

	rec := env.do(http.MethodGet, "/api/members/m-5", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	m := decode[MemberDTO](t, rec)
	assert.Equal(t, "Emery Quinn", m.Name)
	require.NotNil(t, m.ZoneID)
	assert.Equal(t, 7, *m.ZoneID)

	rec = env.do(http.MethodGet, "/api/members/nobody", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(http.MethodGet, "/api/members?division_id=1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]MemberDTO](t, rec), 5)

	rec = env.do(http.MethodGet, "/api/members", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t, Options{})

	rec := env.do(http.MethodGet, "/healthz", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t, Options{Metrics: metrics.New("test")})
	env.press(t, "m-1", "2026-10-22")

	rec := env.do(http.MethodGet, "/metrics", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `test_presses_total{kind="pld_sdv",outcome="selected",reason="none"} 1`)
	assert.Contains(t, body, `test_refreshes_total{kind="pld_sdv",result="ok"} 1`)
}
