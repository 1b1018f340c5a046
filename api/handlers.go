/*
handlers.go - HTTP API handlers for the leave calendar

PURPOSE:
  Exposes the availability engine and the selection state machine to a
  rendering layer. Handlers resolve the member context, pick the calendar
  of (kind, division), and translate assessments and press outcomes into
  DTOs. No handler ever writes allotments or requests for a press.

ENDPOINTS:
  Calendar:
    GET    /api/calendars/{kind}/divisions/{division}/days                Classified range
    GET    /api/calendars/{kind}/divisions/{division}/days/{date}         One key
    GET    /api/calendars/{kind}/divisions/{division}/days/{date}/occupants  Detail view

  Selection:
    POST   /api/calendars/{kind}/divisions/{division}/press               Day press
    GET    /api/calendars/{kind}/divisions/{division}/selection           Current selection
    DELETE /api/calendars/{kind}/divisions/{division}/selection           Clear

  Realtime:
    POST   /api/calendars/refresh      "Something changed": signal or refetch every open calendar

  Members:
    GET    /api/members?division_id=   List members of a division
    GET    /api/members/{id}           Member context

ARCHITECTURE:
  Handler struct holds all dependencies:
  - Store: Database access (fetch boundary and member directory)
  - Calendars: One Calendar per (kind, division), loaded on first use
  - sessions: One Selection per (calendar, member, zone view)

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 403: Member outside the division or zone being viewed
  - 404: Unknown kind, member or scenario
  - 500: Internal errors
  A rejected press is not an error: it returns 200 with a reason.

SEE ALSO:
  - dto.go: Request/response data structures
  - calendars.go: Calendar registry
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/warp/leave-calendar/calendar"
	"github.com/warp/leave-calendar/metrics"
	"github.com/warp/leave-calendar/realtime"
	"github.com/warp/leave-calendar/store/sqlite"
)

// maxRangeDays bounds one GET .../days request.
const maxRangeDays = 400

var ErrDivisionMismatch = errors.New("member does not belong to this division")

// MemberDirectory resolves the member context of a request.
type MemberDirectory interface {
	GetMember(ctx context.Context, id calendar.MemberID) (calendar.Member, error)
}

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Options configures a Handler. Zero values are usable.
type Options struct {
	// Calendars holds the policy and fetch options per kind.
	Calendars map[calendar.Kind]calendar.Options

	Metrics   *metrics.Metrics
	Publisher realtime.Publisher
	Logger    *slog.Logger
	Clock     func() time.Time
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store     *sqlite.Store
	Members   MemberDirectory
	Calendars *Calendars
	Publisher realtime.Publisher
	Logger    *slog.Logger
	Clock     func() time.Time

	validate *validator.Validate

	mu       sync.Mutex
	sessions map[sessionKey]*calendar.Selection

	// Track currently loaded scenario
	currentScenario string
}

type sessionKey struct {
	calendarKey
	member calendar.MemberID
	zone   calendar.ZoneID // 0 = own zone
}

// NewHandler creates a new handler with the given store.
func NewHandler(store *sqlite.Store, opts Options) *Handler {
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	var observer calendar.Observer
	if opts.Metrics != nil {
		observer = opts.Metrics
	}
	return &Handler{
		Store:     store,
		Members:   store,
		Calendars: NewCalendars(store, opts.Calendars, observer, opts.Clock, opts.Logger),
		Publisher: opts.Publisher,
		Logger:    opts.Logger,
		Clock:     opts.Clock,
		validate:  validator.New(),
		sessions:  make(map[sessionKey]*calendar.Selection),
	}
}

// =============================================================================
// CALENDAR HANDLERS
// =============================================================================

// GetDays classifies every key in [start, end] (default: the current month).
func (h *Handler) GetDays(w http.ResponseWriter, r *http.Request) {
	cal, ok := h.calendarFor(w, r)
	if !ok {
		return
	}
	params := r.URL.Query()
	q := DaysQuery{
		MemberID: params.Get("member_id"),
		Start:    params.Get("start"),
		End:      params.Get("end"),
		ZoneID:   params.Get("zone_id"),
	}
	if !h.validateStruct(w, q) {
		return
	}
	query, ok := h.queryFor(w, r, cal, q.MemberID, q.ZoneID)
	if !ok {
		return
	}

	today := cal.Policy().Window.Today(query.Now)
	start, end := calendar.StartOfMonth(today), calendar.EndOfMonth(today)
	if q.Start != "" {
		start = calendar.MustParseDay(q.Start)
	}
	if q.End != "" {
		end = calendar.MustParseDay(q.End)
	}
	if end.Before(start) {
		writeError(w, http.StatusBadRequest, "end is before start", nil)
		return
	}
	if end.Time(time.UTC).Sub(start.Time(time.UTC)) > maxRangeDays*24*time.Hour {
		writeError(w, http.StatusBadRequest, "Range too large", nil)
		return
	}

	selected := h.selectedKey(cal, query)
	assessments := cal.Range(query, start, end)

	resp := DaysResponse{
		Kind:       string(cal.Kind()),
		DivisionID: int(cal.Division()),
		Loaded:     cal.Loaded(),
		Start:      start.String(),
		End:        end.String(),
		Days:       make([]DayDTO, len(assessments)),
	}
	for i, a := range assessments {
		resp.Days[i] = toDayDTO(a, selected)
		resp.Generation = a.Generation
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetDay classifies the key of one date.
func (h *Handler) GetDay(w http.ResponseWriter, r *http.Request) {
	cal, ok := h.calendarFor(w, r)
	if !ok {
		return
	}
	params := r.URL.Query()
	q := DayQuery{
		MemberID: params.Get("member_id"),
		Date:     chi.URLParam(r, "date"),
		ZoneID:   params.Get("zone_id"),
	}
	if !h.validateStruct(w, q) {
		return
	}
	query, ok := h.queryFor(w, r, cal, q.MemberID, q.ZoneID)
	if !ok {
		return
	}

	a := cal.Classify(query, calendar.MustParseDay(q.Date))
	writeJSON(w, http.StatusOK, toDayDTO(a, h.selectedKey(cal, query)))
}

// GetOccupants returns every request at the key of date: the detail view
// fetched after a selection.
func (h *Handler) GetOccupants(w http.ResponseWriter, r *http.Request) {
	cal, ok := h.calendarFor(w, r)
	if !ok {
		return
	}
	day, err := calendar.ParseDay(chi.URLParam(r, "date"))
	if err != nil {
		writeError(w, statusFor(err), "Invalid date", err)
		return
	}

	requests := cal.Requests(day)
	names := make(map[calendar.MemberID]string)
	resp := OccupantsResponse{
		Key:       cal.Policy().KeyOf(day).String(),
		Occupants: make([]OccupantDTO, 0, len(requests)),
	}
	for _, req := range requests {
		name, seen := names[req.MemberID]
		if !seen {
			if m, err := h.Members.GetMember(r.Context(), req.MemberID); err == nil {
				name = m.Name
			}
			names[req.MemberID] = name
		}
		resp.Occupants = append(resp.Occupants, toOccupantDTO(req, name))
	}
	writeJSON(w, http.StatusOK, resp)
}

// =============================================================================
// SELECTION HANDLERS
// =============================================================================

// Press handles a day press. Rejections are reported in the body, not as
// HTTP errors.
func (h *Handler) Press(w http.ResponseWriter, r *http.Request) {
	cal, ok := h.calendarFor(w, r)
	if !ok {
		return
	}
	var req PressRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if !h.validateStruct(w, req) {
		return
	}
	member, ok := h.memberFor(w, r, cal, req.MemberID)
	if !ok {
		return
	}
	var zone *calendar.ZoneID
	if req.ZoneID != nil {
		zone = calendar.Zone(calendar.ZoneID(*req.ZoneID))
	}

	sel := h.selection(cal, member, zone, true)
	out := sel.Press(calendar.MustParseDay(req.Date), h.Clock())

	h.Logger.Debug("press",
		"kind", cal.Kind(), "division", cal.Division(), "member", member.ID,
		"date", req.Date, "outcome", out.Kind, "reason", out.Reason)
	writeJSON(w, http.StatusOK, toPressResponse(out))
}

// GetSelection returns the member's current selection, revalidated against
// the latest snapshot.
func (h *Handler) GetSelection(w http.ResponseWriter, r *http.Request) {
	cal, ok := h.calendarFor(w, r)
	if !ok {
		return
	}
	params := r.URL.Query()
	q := SelectionQuery{MemberID: params.Get("member_id"), ZoneID: params.Get("zone_id")}
	if !h.validateStruct(w, q) {
		return
	}
	query, ok := h.queryFor(w, r, cal, q.MemberID, q.ZoneID)
	if !ok {
		return
	}

	resp := SelectionDTO{MemberID: q.MemberID}
	if key := h.selectedKey(cal, query); key != nil {
		day := toDayDTO(cal.Classify(query, *key), key)
		resp.Selected = dayString(key)
		resp.Day = &day
	}
	writeJSON(w, http.StatusOK, resp)
}

// ClearSelection deselects without a press.
func (h *Handler) ClearSelection(w http.ResponseWriter, r *http.Request) {
	cal, ok := h.calendarFor(w, r)
	if !ok {
		return
	}
	params := r.URL.Query()
	q := SelectionQuery{MemberID: params.Get("member_id"), ZoneID: params.Get("zone_id")}
	if !h.validateStruct(w, q) {
		return
	}
	member, ok := h.memberFor(w, r, cal, q.MemberID)
	if !ok {
		return
	}
	zone, err := parseZone(q.ZoneID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid zone_id", err)
		return
	}

	if sel := h.selection(cal, member, zone, false); sel != nil {
		sel.Clear()
	}
	writeJSON(w, http.StatusOK, SelectionDTO{MemberID: q.MemberID})
}

// =============================================================================
// REALTIME HANDLERS
// =============================================================================

// Refresh announces that allotments or requests changed. With a publisher
// wired, the RefreshScheduler of every instance (this one included) does the
// refetch and the call returns 202; otherwise calendars are refetched here.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	resp, signalled := h.changed(r.Context())
	status := http.StatusOK
	if signalled {
		status = http.StatusAccepted
	}
	writeJSON(w, status, resp)
}

// changed publishes a change signal, falling back to a local refresh when
// there is no publisher or publishing fails.
func (h *Handler) changed(ctx context.Context) (RefreshResponse, bool) {
	if h.Publisher != nil {
		err := h.Publisher.Publish(ctx)
		if err == nil {
			return RefreshResponse{Status: "signalled", Calendars: h.Calendars.Len()}, true
		}
		h.Logger.Warn("failed to publish change signal, refreshing locally", "err", err)
	}
	n, err := h.Calendars.RefreshAll(ctx)
	resp := RefreshResponse{Status: "refreshed", Calendars: n}
	if err != nil {
		resp.Status = "partial"
		resp.Errors = splitErrors(err)
	}
	return resp, false
}

// =============================================================================
// MEMBER HANDLERS
// =============================================================================

// GetMember returns the member context of one member.
func (h *Handler) GetMember(w http.ResponseWriter, r *http.Request) {
	m, err := h.Members.GetMember(r.Context(), calendar.MemberID(chi.URLParam(r, "id")))
	if errors.Is(err, sqlite.ErrMemberNotFound) {
		writeError(w, http.StatusNotFound, "Member not found", err)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get member", err)
		return
	}
	writeJSON(w, http.StatusOK, toMemberDTO(m))
}

// ListMembers returns the members of ?division_id=.
func (h *Handler) ListMembers(w http.ResponseWriter, r *http.Request) {
	division, err := strconv.Atoi(r.URL.Query().Get("division_id"))
	if err != nil || division <= 0 {
		writeError(w, http.StatusBadRequest, "division_id is required", err)
		return
	}
	members, err := h.Store.ListMembers(r.Context(), calendar.DivisionID(division))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list members", err)
		return
	}
	dtos := make([]MemberDTO, len(members))
	for i, m := range members {
		dtos[i] = toMemberDTO(m)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// Healthz reports whether the store is reachable.
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.Ping(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "Store unavailable", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "calendars": h.Calendars.Len()})
}

// =============================================================================
// HELPERS
// =============================================================================

func (h *Handler) calendarFor(w http.ResponseWriter, r *http.Request) (*calendar.Calendar, bool) {
	kind, err := calendar.ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		writeError(w, http.StatusNotFound, "Unknown calendar kind", err)
		return nil, false
	}
	division, err := strconv.Atoi(chi.URLParam(r, "division"))
	if err != nil || division <= 0 {
		writeError(w, http.StatusBadRequest, "Invalid division", err)
		return nil, false
	}
	return h.Calendars.Get(r.Context(), kind, calendar.DivisionID(division)), true
}

func (h *Handler) memberFor(w http.ResponseWriter, r *http.Request, cal *calendar.Calendar, id string) (calendar.Member, bool) {
	m, err := h.Members.GetMember(r.Context(), calendar.MemberID(id))
	if errors.Is(err, sqlite.ErrMemberNotFound) {
		writeError(w, http.StatusNotFound, "Member not found", err)
		return calendar.Member{}, false
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get member", err)
		return calendar.Member{}, false
	}
	if m.DivisionID != cal.Division() {
		writeError(w, http.StatusForbidden, "Member outside division", ErrDivisionMismatch)
		return calendar.Member{}, false
	}
	return m, true
}

// queryFor builds a read query. Viewing another zone's calendar is refused
// outright; a press reports it as a reason instead.
func (h *Handler) queryFor(w http.ResponseWriter, r *http.Request, cal *calendar.Calendar, memberID, zoneParam string) (calendar.Query, bool) {
	member, ok := h.memberFor(w, r, cal, memberID)
	if !ok {
		return calendar.Query{}, false
	}
	zone, err := parseZone(zoneParam)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid zone_id", err)
		return calendar.Query{}, false
	}
	q := calendar.Query{Member: member, Zone: zone, Now: h.Clock()}
	if reason := calendar.CheckZoneAccess(q); reason != calendar.ReasonNone {
		writeJSON(w, http.StatusForbidden, ErrorResponse{Error: reason.Message(), Details: string(reason)})
		return calendar.Query{}, false
	}
	return q, true
}

// selection returns the session of (cal, member, zone), creating it when
// create is set. A session whose member context changed starts over.
func (h *Handler) selection(cal *calendar.Calendar, member calendar.Member, zone *calendar.ZoneID, create bool) *calendar.Selection {
	zone = viewZone(member, zone)
	key := sessionKey{calendarKey: calendarKey{cal.Kind(), cal.Division()}, member: member.ID}
	if zone != nil {
		key.zone = *zone
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	sel, ok := h.sessions[key]
	if ok && sameMember(sel.Member(), member) {
		return sel
	}
	if !create {
		return nil
	}

	sel = cal.NewSelection(member, zone)
	sel.OnSelect = func(k calendar.Day) {
		h.Logger.Debug("selection changed", "kind", cal.Kind(), "member", member.ID, "key", k)
	}
	sel.OnReject = func(out calendar.Outcome) {
		h.Logger.Debug("press rejected", "kind", cal.Kind(), "member", member.ID, "date", out.Day, "reason", out.Reason)
	}
	h.sessions[key] = sel
	return sel
}

func (h *Handler) selectedKey(cal *calendar.Calendar, q calendar.Query) *calendar.Day {
	sel := h.selection(cal, q.Member, q.Zone, false)
	if sel == nil {
		return nil
	}
	key, ok := sel.Current()
	if !ok {
		return nil
	}
	return &key
}

// clearSessions drops every selection, as on logout.
func (h *Handler) clearSessions() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, sel := range h.sessions {
		sel.Reset()
	}
	h.sessions = make(map[sessionKey]*calendar.Selection)
}

// viewZone maps a view of the member's own zone to nil, so both address
// the same session.
func viewZone(member calendar.Member, zone *calendar.ZoneID) *calendar.ZoneID {
	if zone != nil && member.ZoneID != nil && *zone == *member.ZoneID {
		return nil
	}
	return zone
}

func sameMember(a, b calendar.Member) bool {
	if a.ID != b.ID || a.DivisionID != b.DivisionID {
		return false
	}
	if a.ZoneID == nil || b.ZoneID == nil {
		return a.ZoneID == nil && b.ZoneID == nil
	}
	return *a.ZoneID == *b.ZoneID
}

func parseZone(s string) (*calendar.ZoneID, error) {
	if s == "" {
		return nil, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return nil, err
	}
	return calendar.Zone(calendar.ZoneID(v)), nil
}

// validateStruct writes a 400 listing every failed field.
func (h *Handler) validateStruct(w http.ResponseWriter, v any) bool {
	err := h.validate.Struct(v)
	if err == nil {
		return true
	}
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		writeError(w, http.StatusBadRequest, "Invalid input", err)
		return false
	}
	fields := make(map[string]string, len(ve))
	for _, fe := range ve {
		fields[fe.Field()] = fe.Tag()
	}
	writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "Validation failed", Fields: fields})
	return false
}

func splitErrors(err error) []string {
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		var out []string
		for _, e := range joined.Unwrap() {
			out = append(out, e.Error())
		}
		return out
	}
	return []string{err.Error()}
}

// statusFor maps caller mistakes to 400 and everything else to 500.
func statusFor(err error) int {
	if calendar.IsClientError(err) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
