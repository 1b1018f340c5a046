package api

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func verdicts(t *testing.T, env *testEnv, path string) map[string]DayDTO {
	t.Helper()
	rec := env.do(http.MethodGet, path, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	out := make(map[string]DayDTO)
	for _, d := range decode[DaysResponse](t, rec).Days {
		out[d.Key] = d
	}
	return out
}

func loadScenario(t *testing.T, env *testEnv, id string) {
	t.Helper()
	rec := env.do(http.MethodPost, "/api/scenarios/load", LoadScenarioRequest{ScenarioID: id})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestListScenarios(t *testing.T) {
	env := newTestEnv(t, Options{})

	rec := env.do(http.MethodGet, "/api/scenarios", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[[]ScenarioDTO](t, rec)
	require.Len(t, list, len(scenarios))
	assert.Equal(t, "standard-division", list[0].ID)
}

func TestLoadScenario_StandardDivision(t *testing.T) {
	// GIVEN: today is 2026-10-14
	env := newTestEnv(t, Options{})

	// WHEN: the standard scenario loads
	loadScenario(t, env, "standard-division")

	// THEN: the seeded days classify as described
	days := verdicts(t, env, daily+"/days?member_id=m-101&start=2026-10-19&end=2026-11-06")
	assert.Equal(t, "available", days["2026-10-19"].Verdict, "yearly allotment covers undated days")
	assert.Equal(t, 4, days["2026-10-19"].Max)
	assert.Equal(t, "full", days["2026-10-21"].Verdict)
	assert.Equal(t, "limited", days["2026-10-22"].Verdict)
	assert.Equal(t, "full", days["2026-10-23"].Verdict, "holiday allotment of zero")
	assert.Equal(t, "user_requested", days["2026-10-26"].Verdict)
	assert.Equal(t, "full", days["2026-10-28"].Verdict)
	assert.True(t, days["2026-11-02"].PaidInLieu)

	rec := env.do(http.MethodGet, "/api/scenarios/current", nil)
	assert.Equal(t, "standard-division", decode[ScenarioDTO](t, rec).ID)

	// Old seed data is gone
	rec = env.do(http.MethodGet, "/api/members/m-1", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestLoadScenario_ZonedDivision(t *testing.T) {
	env := newTestEnv(t, Options{})
	loadScenario(t, env, "zoned-division")
	const zoned = "/api/calendars/pld_sdv/divisions/2"

	north := verdicts(t, env, zoned+"/days?member_id=m-201&start=2026-10-26&end=2026-10-26")
	south := verdicts(t, env, zoned+"/days?member_id=m-204&start=2026-10-26&end=2026-10-26")
	wide := verdicts(t, env, zoned+"/days?member_id=m-205&start=2026-10-26&end=2026-10-26")

	// North's yearly zone allotment holds 2, both taken (one by m-201)
	assert.Equal(t, "user_requested", north["2026-10-26"].Verdict)
	assert.Equal(t, 2, north["2026-10-26"].Occupied)
	// South's dated allotment holds 3 and counts only south requests
	assert.Equal(t, 3, south["2026-10-26"].Max)
	assert.Equal(t, 1, south["2026-10-26"].Occupied)
	assert.Equal(t, "available", south["2026-10-26"].Verdict)
	// Members without a zone read the division-wide allotment
	assert.Equal(t, 6, wide["2026-10-26"].Max)
	assert.Nil(t, wide["2026-10-26"].ZoneID)
}

func TestLoadScenario_VacationSeason(t *testing.T) {
	env := newTestEnv(t, Options{})
	loadScenario(t, env, "vacation-season")
	const vacation = "/api/calendars/vacation/divisions/3"

	weeks := verdicts(t, env, vacation+"/days?member_id=m-301&start=2027-07-01&end=2027-07-21")

	assert.Equal(t, "full", weeks["2027-06-28"].Verdict, "two approved and a waitlisted request")
	assert.Equal(t, 3, weeks["2027-06-28"].Occupied)
	assert.Equal(t, "available", weeks["2027-07-05"].Verdict, "transferred requests never occupy")
	assert.Equal(t, "full", weeks["2027-07-12"].Verdict)
	assert.Equal(t, "available", weeks["2027-07-19"].Verdict)
}

func TestLoadScenario_Errors(t *testing.T) {
	env := newTestEnv(t, Options{})

	rec := env.do(http.MethodPost, "/api/scenarios/load", LoadScenarioRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(http.MethodPost, "/api/scenarios/load", LoadScenarioRequest{ScenarioID: "nope"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// A failed load keeps the existing data
	rec = env.do(http.MethodGet, "/api/members/m-1", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestResetDatabase_ClearsSelections(t *testing.T) {
	// GIVEN: a selection
	env := newTestEnv(t, Options{})
	env.press(t, "m-1", "2026-10-22")

	// WHEN: the database is reset
	rec := env.do(http.MethodPost, "/api/scenarios/reset", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	// THEN: sessions and data are gone
	env.h.mu.Lock()
	assert.Empty(t, env.h.sessions)
	env.h.mu.Unlock()
	rec = env.do(http.MethodGet, "/api/members/m-1", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
