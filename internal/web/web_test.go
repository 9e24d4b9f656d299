package web

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"practicecal/internal/agenda"
	"practicecal/internal/config"
	"practicecal/internal/model"
)

func newTestServer(t *testing.T, mutate func(*config.Config)) *Server {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Sessions = []model.Session{{
		ID:       "u10",
		Name:     "U10 Practice",
		Location: "Field 3",
		SessionDescriptor: model.SessionDescriptor{
			StartDate:     "2024-01-01",
			EndDate:       "2024-01-31",
			StartTime:     "17:30",
			EndTime:       "19:00",
			Weekdays:      "mon, wed",
			Cancellations: "2024-01-10",
		},
	}}
	if mutate != nil {
		mutate(cfg)
	}
	cfg.Normalize()

	loc, err := cfg.Location()
	require.NoError(t, err)
	planner, err := agenda.NewPlanner(agenda.Config{Location: loc})
	require.NoError(t, err)
	planner.SetExclusions(cfg.ExclusionsBySession())

	// Wednesday noon.
	now := time.Date(2024, 1, 3, 12, 0, 0, 0, loc)
	return NewServer(cfg, planner, func() time.Time { return now })
}

func get(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func instanceKeys(dtos []occurrenceDTO) []string {
	out := make([]string, 0, len(dtos))
	for _, d := range dtos {
		out = append(out, d.InstanceKey)
	}
	return out
}

func TestHealth(t *testing.T) {
	rec := get(t, newTestServer(t, nil).Handler(), "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestBasicAuth(t *testing.T) {
	h := newTestServer(t, func(c *config.Config) {
		c.BasicAuth = &config.BasicAuthConfig{Username: "coach", Password: "whistle"}
	}).Handler()

	assert.Equal(t, http.StatusOK, get(t, h, "/health").Code)

	rec := get(t, h, "/api/sessions")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, authRealm, rec.Header().Get("WWW-Authenticate"))

	// Unknown paths are challenged before they 404.
	assert.Equal(t, http.StatusUnauthorized, get(t, h, "/nope").Code)

	// /health ignores whatever credentials are sent.
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.SetBasicAuth("coach", "wrong")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/sessions", nil)
	req.SetBasicAuth("coach", "wrong")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/sessions", nil)
	req.SetBasicAuth("coach", "whistle")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCredentialsMatch(t *testing.T) {
	creds := config.BasicAuthConfig{Username: "coach", Password: "whistle"}
	tests := []struct {
		name       string
		user, pass string
		send       bool
		want       bool
	}{
		{"match", "coach", "whistle", true, true},
		{"wrong password", "coach", "whistles", true, false},
		{"wrong user", "Coach", "whistle", true, false},
		{"empty pair", "", "", true, false},
		{"no header", "", "", false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/today", nil)
			if tt.send {
				req.SetBasicAuth(tt.user, tt.pass)
			}
			assert.Equal(t, tt.want, credentialsMatch(req, creds))
		})
	}
}

func TestBasicAuth_IncompleteCredentialsDisableAuth(t *testing.T) {
	h := newTestServer(t, func(c *config.Config) {
		c.BasicAuth = &config.BasicAuthConfig{Username: "coach"}
	}).Handler()
	assert.Equal(t, http.StatusOK, get(t, h, "/api/sessions").Code)
}

func TestSessions(t *testing.T) {
	rec := get(t, newTestServer(t, nil).Handler(), "/api/sessions")
	require.Equal(t, http.StatusOK, rec.Code)

	got := decode[[]sessionDTO](t, rec)
	require.Len(t, got, 1)
	assert.Equal(t, "u10", got[0].ID)
	assert.Equal(t, "Mon, Wed", got[0].WeekdaysLabel)
	assert.Equal(t, "5:30 PM – 7:00 PM", got[0].TimeRange)
	assert.Equal(t, []string{"2024-01-10"}, got[0].Cancellations)
}

func TestOccurrences(t *testing.T) {
	h := newTestServer(t, nil).Handler()

	rec := get(t, h, "/api/occurrences?from=2024-01-01&to=2024-01-14")
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[occurrencesResponse](t, rec)
	assert.Equal(t, []string{"u10@2024-01-01", "u10@2024-01-03", "u10@2024-01-08"}, instanceKeys(resp.Occurrences))
	assert.Equal(t, "2024-01-01", resp.RangeStart)
	assert.Equal(t, "2024-01-14", resp.RangeEnd)
	assert.Equal(t, "America/New_York", resp.DisplayTimeZone)
	assert.Equal(t, "Mon", resp.Occurrences[0].Weekday)
	assert.Equal(t, "5:30 PM – 7:00 PM", resp.Occurrences[0].TimeRange)

	// Default window starts today and spans horizon_days.
	rec = get(t, h, "/api/occurrences")
	require.Equal(t, http.StatusOK, rec.Code)
	resp = decode[occurrencesResponse](t, rec)
	assert.Equal(t, "2024-01-03", resp.RangeStart)
	assert.Equal(t, "2024-01-17", resp.RangeEnd)
	assert.Equal(t, "u10@2024-01-03", resp.Occurrences[0].InstanceKey)
}

func TestOccurrences_BadRequests(t *testing.T) {
	h := newTestServer(t, nil).Handler()

	assert.Equal(t, http.StatusBadRequest, get(t, h, "/api/occurrences?from=01/02/2024").Code)
	assert.Equal(t, http.StatusBadRequest, get(t, h, "/api/occurrences?to=soon").Code)
	assert.Equal(t, http.StatusBadRequest, get(t, h, "/api/occurrences?from=2024-02-01&to=2024-01-01").Code)
	assert.Equal(t, http.StatusNotFound, get(t, h, "/api/occurrences?session=nope").Code)
}

func TestToday(t *testing.T) {
	rec := get(t, newTestServer(t, nil).Handler(), "/api/today")
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[occurrencesResponse](t, rec)
	assert.Equal(t, []string{"u10@2024-01-03"}, instanceKeys(resp.Occurrences))
}

func TestUpcoming(t *testing.T) {
	rec := get(t, newTestServer(t, nil).Handler(), "/api/upcoming?limit=2")
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[[]occurrenceDTO](t, rec)
	assert.Equal(t, []string{"u10@2024-01-03", "u10@2024-01-08"}, instanceKeys(got))
}

func TestWeek(t *testing.T) {
	rec := get(t, newTestServer(t, nil).Handler(), "/api/week?date=2024-01-10")
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[weekResponse](t, rec)

	require.Len(t, resp.Days, 7)
	assert.Equal(t, "2024-01-08", resp.Days[0].Date)
	assert.Equal(t, "Mon", resp.Days[0].Weekday)
	assert.Len(t, resp.Days[0].Occurrences, 1)
	// Wednesday the 10th is cancelled.
	assert.Equal(t, "2024-01-10", resp.Days[2].Date)
	assert.Empty(t, resp.Days[2].Occurrences)

	assert.Equal(t, http.StatusBadRequest, get(t, newTestServer(t, nil).Handler(), "/api/week?date=x").Code)
}

func TestWeek_SundayStart(t *testing.T) {
	h := newTestServer(t, func(c *config.Config) { c.WeekStart = "sunday" }).Handler()
	resp := decode[weekResponse](t, get(t, h, "/api/week?date=2024-01-10"))
	require.Len(t, resp.Days, 7)
	assert.Equal(t, "2024-01-07", resp.Days[0].Date)
	assert.Equal(t, "Sun", resp.Days[0].Weekday)
}

func TestWeekdays(t *testing.T) {
	h := newTestServer(t, nil).Handler()

	resp := decode[weekdaysResponse](t, get(t, h, "/api/weekdays?spec=lunes,+mi%C3%A9rcoles"))
	assert.True(t, resp.Valid)
	assert.Equal(t, []int{1, 3}, resp.Days)
	assert.Equal(t, "Mon, Wed", resp.Label)
	assert.Equal(t, "monday,wednesday", resp.Encoded)

	resp = decode[weekdaysResponse](t, get(t, h, "/api/weekdays?spec=someday"))
	assert.False(t, resp.Valid)
	assert.Empty(t, resp.Days)
	assert.Equal(t, "", resp.Label)
}

func TestSessionCalendar(t *testing.T) {
	h := newTestServer(t, nil).Handler()

	rec := get(t, h, "/api/sessions/u10/calendar.ics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/calendar")
	body := rec.Body.String()
	assert.Contains(t, body, "X-WR-CALNAME:U10 Practice")
	assert.Contains(t, body, "UID:u10@2024-01-01")
	assert.NotContains(t, body, "UID:u10@2024-01-10")

	assert.Equal(t, http.StatusNotFound, get(t, h, "/api/sessions/nope/calendar.ics").Code)
}

func TestCalendarPage(t *testing.T) {
	rec := get(t, newTestServer(t, nil).Handler(), "/calendar")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")

	body := rec.Body.String()
	assert.Contains(t, body, `data-ready="true"`)
	assert.Contains(t, body, "Week of Jan 1, 2024")
	assert.Contains(t, body, "U10 Practice")
	assert.Contains(t, body, "5:30 PM")
	assert.Contains(t, body, "Field 3")
	assert.Contains(t, body, `class="day today"`)
}
