/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures the rendering layer consumes. Assessments are
  flattened into DayDTO so a client can paint a calendar cell without any
  knowledge of precedence rules.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Query: Query-string parameters, bound and validated like bodies
  - *Response: Complex response wrappers

VALIDATION:
  Request and Query types carry validator/v10 tags; handlers call
  Handler.validateStruct before using them.

SEE ALSO:
  - handlers.go: Uses these types
  - calendar/availability.go: Assessment
*/
package api

import (
	"github.com/warp/leave-calendar/calendar"
)

// =============================================================================
// CALENDAR
// =============================================================================

// DayDTO is the classification of one date key.
type DayDTO struct {
	Date          string `json:"date"`
	Key           string `json:"key"`
	Verdict       string `json:"verdict"`
	Selectable    bool   `json:"selectable"`
	Reason        string `json:"reason,omitempty"`
	Message       string `json:"message,omitempty"`
	Allocated     bool   `json:"allocated"`
	Occupied      int    `json:"occupied"`
	Max           int    `json:"max"`
	Remaining     int    `json:"remaining"`
	ZoneID        *int   `json:"zone_id,omitempty"`
	RequestID     string `json:"request_id,omitempty"`
	RequestStatus string `json:"request_status,omitempty"`
	PaidInLieu    bool   `json:"paid_in_lieu,omitempty"`
	Selected      bool   `json:"selected"`
}

// DaysResponse is a classified range of one calendar.
type DaysResponse struct {
	Kind       string   `json:"kind"`
	DivisionID int      `json:"division_id"`
	Generation uint64   `json:"generation"`
	Loaded     bool     `json:"loaded"`
	Start      string   `json:"start"`
	End        string   `json:"end"`
	Days       []DayDTO `json:"days"`
}

// DaysQuery binds GET .../days.
type DaysQuery struct {
	MemberID string `validate:"required"`
	Start    string `validate:"omitempty,datetime=2006-01-02"`
	End      string `validate:"omitempty,datetime=2006-01-02"`
	ZoneID   string `validate:"omitempty,number"`
}

// DayQuery binds GET .../days/{date}.
type DayQuery struct {
	MemberID string `validate:"required"`
	Date     string `validate:"required,datetime=2006-01-02"`
	ZoneID   string `validate:"omitempty,number"`
}

// OccupantDTO is one request at the selected key.
type OccupantDTO struct {
	RequestID  string `json:"request_id"`
	MemberID   string `json:"member_id"`
	MemberName string `json:"member_name,omitempty"`
	Status     string `json:"status"`
	Occupying  bool   `json:"occupying"`
	LeaveType  string `json:"leave_type,omitempty"`
	PaidInLieu bool   `json:"paid_in_lieu"`
	ZoneID     *int   `json:"zone_id,omitempty"`
}

// OccupantsResponse is the detail view of one key.
type OccupantsResponse struct {
	Key       string        `json:"key"`
	Occupants []OccupantDTO `json:"occupants"`
}

// =============================================================================
// SELECTION
// =============================================================================

// PressRequest is a day press from the calendar view.
type PressRequest struct {
	MemberID string `json:"member_id" validate:"required"`
	Date     string `json:"date" validate:"required,datetime=2006-01-02"`
	ZoneID   *int   `json:"zone_id,omitempty" validate:"omitempty,gt=0"`
}

// PressResponse is the outcome of one press.
type PressResponse struct {
	Outcome       string  `json:"outcome"`
	Accepted      bool    `json:"accepted"`
	Date          string  `json:"date"`
	Key           string  `json:"key"`
	Reason        string  `json:"reason,omitempty"`
	Message       string  `json:"message,omitempty"`
	WaitlistOffer bool    `json:"waitlist_offer"`
	Selected      *string `json:"selected"`
	Day           *DayDTO `json:"day,omitempty"`
}

// SelectionDTO is the current selection of one member.
type SelectionDTO struct {
	MemberID string  `json:"member_id"`
	Selected *string `json:"selected"`
	Day      *DayDTO `json:"day,omitempty"`
}

// SelectionQuery binds GET|DELETE .../selection.
type SelectionQuery struct {
	MemberID string `validate:"required"`
	ZoneID   string `validate:"omitempty,number"`
}

// RefreshResponse reports a refresh of every open calendar.
type RefreshResponse struct {
	Status    string   `json:"status"`
	Calendars int      `json:"calendars"`
	Errors    []string `json:"errors,omitempty"`
}

// =============================================================================
// MEMBERS
// =============================================================================

// MemberDTO represents a member in API responses.
type MemberDTO struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	DivisionID int    `json:"division_id"`
	ZoneID     *int   `json:"zone_id,omitempty"`
}

// =============================================================================
// SCENARIOS
// =============================================================================

// ScenarioDTO describes a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Kind        string `json:"kind"`
}

// LoadScenarioRequest selects a scenario to load.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id" validate:"required"`
}

// =============================================================================
// ERRORS
// =============================================================================

// ErrorResponse is returned for any failed request.
type ErrorResponse struct {
	Error   string            `json:"error"`
	Details string            `json:"details,omitempty"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func toDayDTO(a calendar.Assessment, selected *calendar.Day) DayDTO {
	dto := DayDTO{
		Date:       a.Day.String(),
		Key:        a.Key.String(),
		Verdict:    string(a.Verdict),
		Selectable: a.Selectable(),
		Reason:     string(a.Reason),
		Message:    a.Reason.Message(),
		Allocated:  a.Allocated,
		Occupied:   a.Occupied,
		Max:        a.Max,
		Remaining:  a.Remaining,
		ZoneID:     zoneInt(a.ZoneID),
		Selected:   selected != nil && *selected == a.Key,
	}
	if a.Request != nil {
		dto.RequestID = string(a.Request.ID)
		dto.RequestStatus = string(a.Request.Status)
		dto.PaidInLieu = a.Request.PaidInLieu
	}
	return dto
}

func toPressResponse(out calendar.Outcome) PressResponse {
	resp := PressResponse{
		Outcome:       string(out.Kind),
		Accepted:      out.Accepted(),
		Date:          out.Day.String(),
		Key:           out.Key.String(),
		Reason:        string(out.Reason),
		Message:       out.Reason.Message(),
		WaitlistOffer: out.WaitlistOffer,
		Selected:      dayString(out.Selected),
	}
	if out.Assessment.Verdict != "" {
		day := toDayDTO(out.Assessment, out.Selected)
		resp.Day = &day
	}
	return resp
}

func toOccupantDTO(r calendar.RequestRecord, name string) OccupantDTO {
	return OccupantDTO{
		RequestID:  string(r.ID),
		MemberID:   string(r.MemberID),
		MemberName: name,
		Status:     string(r.Status),
		Occupying:  r.Status.Occupying(),
		LeaveType:  string(r.LeaveType),
		PaidInLieu: r.PaidInLieu,
		ZoneID:     zoneInt(r.ZoneID),
	}
}

func toMemberDTO(m calendar.Member) MemberDTO {
	return MemberDTO{
		ID:         string(m.ID),
		Name:       m.Name,
		DivisionID: int(m.DivisionID),
		ZoneID:     zoneInt(m.ZoneID),
	}
}

func zoneInt(z *calendar.ZoneID) *int {
	if z == nil {
		return nil
	}
	v := int(*z)
	return &v
}

func dayString(d *calendar.Day) *string {
	if d == nil {
		return nil
	}
	s := d.String()
	return &s
}
