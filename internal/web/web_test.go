package web

import (
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

	"evcal/internal/config"
	"evcal/internal/dateutil"
	"evcal/internal/model"
	"evcal/internal/recurrence"
	"evcal/internal/scheduler"
	"evcal/internal/store"
)

type fakeRefresher struct {
	calls int
}

func (f *fakeRefresher) Refresh(context.Context) (scheduler.Summary, error) {
	f.calls++
	return scheduler.Summary{Events: 2, Occurrences: 10, Duration: 3 * time.Millisecond}, nil
}

func testEvents() []model.Event {
	return []model.Event{
		{
			ID: "standup", Summary: "Standup", Calendar: "work",
			StartDate: dateutil.Date(2024, 1, 1), EndDate: dateutil.Date(2024, 1, 1),
			StartTime: 9 * 60, EndTime: 9*60 + 15,
			Recurring: true,
			Rule: model.RecurrenceRule{
				Type: model.RecurWeekly, Frequency: 1, StopDate: dateutil.Date(2024, 2, 29),
				Weekdays: []model.Weekday{model.Monday, model.Wednesday, model.Friday},
			},
		},
		{
			ID: "holiday", Summary: "Holiday", Calendar: "home", AllDay: true,
			StartDate: dateutil.Date(2024, 1, 12), EndDate: dateutil.Date(2024, 1, 12),
		},
	}
}

func newTestServer(t *testing.T, refresher Refresher) (*Server, *config.Config) {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.FeedDomain = "example.test"
	cfg.FeedName = "Team"

	engine := recurrence.NewEngine(recurrence.Config{})
	index := store.New()
	for _, ev := range testEvents() {
		res := engine.Expand(ev)
		index.Replace(ev, res.Occurrences, res.Truncated)
	}

	s := NewServer(cfg, engine, index, refresher)
	s.now = func() time.Time { return time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC) }
	return s, cfg
}

func do(t *testing.T, h http.Handler, method, target string, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, rd)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func instanceKeys(occ []model.Occurrence) []string {
	out := make([]string, len(occ))
	for i, o := range occ {
		out[i] = o.InstanceKey
	}
	return out
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t, nil)
	rec := do(t, s.Handler(), http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestBasicAuth(t *testing.T) {
	s, cfg := newTestServer(t, nil)
	cfg.BasicAuth = &config.BasicAuthConfig{Username: "admin", Password: "secret"}
	h := s.Handler()

	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/health", "").Code)

	rec := do(t, h, http.MethodGet, "/api/stats", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Header().Get("WWW-Authenticate"), "Basic")

	req := httptest.NewRequest(http.MethodGet, "/api/stats", nil)
	req.SetBasicAuth("admin", "secret")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/stats", nil)
	req.SetBasicAuth("admin", "wrong")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestOccurrences(t *testing.T) {
	s, cfg := newTestServer(t, nil)
	h := s.Handler()

	tests := []struct {
		name   string
		target string
		want   []string
	}{
		{
			name:   "week defaults to today",
			target: "/api/occurrences",
			want:   []string{"standup/20240108", "standup/20240110", "holiday/20240112", "standup/20240112"},
		},
		{
			name:   "calendar filter",
			target: "/api/occurrences?view=week&date=2024-01-10&calendar=work",
			want:   []string{"standup/20240108", "standup/20240110", "standup/20240112"},
		},
		{
			name:   "day",
			target: "/api/occurrences?view=day&date=2024-01-12",
			want:   []string{"holiday/20240112", "standup/20240112"},
		},
		{
			name:   "agenda days",
			target: "/api/occurrences?view=agenda&date=2024-02-26&days=7",
			want:   []string{"standup/20240226", "standup/20240228"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, http.MethodGet, tt.target, "")
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
			resp := decode[occurrencesResponse](t, rec)
			assert.Equal(t, tt.want, instanceKeys(resp.Occurrences))
		})
	}

	rec := do(t, h, http.MethodGet, "/api/occurrences?view=month&date=2024-01-20", "")
	resp := decode[occurrencesResponse](t, rec)
	assert.Equal(t, "month", resp.View)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), resp.RangeStart.UTC())
	assert.Equal(t, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), resp.RangeEnd.UTC())
	// Mon/Wed/Fri in January 2024 plus the holiday.
	assert.Len(t, resp.Occurrences, 15)

	cfg.WeekStart = "sunday"
	rec = do(t, h, http.MethodGet, "/api/occurrences?date=2024-01-10", "")
	resp = decode[occurrencesResponse](t, rec)
	assert.Equal(t, time.Date(2024, 1, 7, 0, 0, 0, 0, time.UTC), resp.RangeStart.UTC())

	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/api/occurrences?view=decade", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/api/occurrences?date=2024-02-30", "").Code)
}

func TestExpand(t *testing.T) {
	s, _ := newTestServer(t, nil)
	h := s.Handler()

	body := `{
		"summary": "Gym",
		"start_date": "2024-01-01",
		"start_time": "18:00",
		"end_time": "19:00",
		"recurring": true,
		"rule": {"type": "weekly", "frequency": 1, "stop_date": "2024-01-14", "weekdays": [2, 4, 6]}
	}`
	rec := do(t, h, http.MethodPost, "/api/expand", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	resp := decode[expandResponse](t, rec)
	assert.Equal(t, 6, resp.Count)
	assert.False(t, resp.Truncated)
	assert.Contains(t, resp.RRule, "FREQ=WEEKLY")
	require.NotEmpty(t, resp.Occurrences)
	assert.Equal(t, time.Date(2024, 1, 1, 18, 0, 0, 0, time.UTC), resp.Occurrences[0].Start.UTC())
	assert.Equal(t, time.Date(2024, 1, 1, 19, 0, 0, 0, time.UTC), resp.Occurrences[0].End.UTC())

	// Expansion never touches the index.
	assert.Equal(t, 2, s.index.Stats().Events)

	capped := `{"start_date": "2024-01-01", "recurring": true, "rule": {"type": "daily", "frequency": 1}}`
	resp = decode[expandResponse](t, do(t, h, http.MethodPost, "/api/expand", capped))
	assert.Equal(t, 1000, resp.Count)
	assert.True(t, resp.Truncated)

	for _, bad := range []string{
		`{"start_date": "2024-13-01"}`,
		`{"start_date": "2024-01-02", "end_date": "2024-01-01"}`,
		`{"start_date": "2024-01-01", "rule": {"stop_date": "soon"}}`,
		`{"start_date": "2024-01-01", "start_time": "25:00"}`,
		`{"start_date": "2024-01-01", "colour": "red"}`,
		`not json`,
	} {
		assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/api/expand", bad).Code, bad)
	}

	assert.Equal(t, http.StatusMethodNotAllowed, do(t, h, http.MethodGet, "/api/expand", "").Code)
}

func TestEvents(t *testing.T) {
	s, _ := newTestServer(t, nil)
	h := s.Handler()

	resp := decode[eventsResponse](t, do(t, h, http.MethodGet, "/api/events", ""))
	require.Len(t, resp.Events, 2)
	assert.Equal(t, "holiday", resp.Events[0].ID)
	assert.Equal(t, 2, resp.Stats.Events)

	rec := do(t, h, http.MethodGet, "/api/events/holiday/occurrences", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "holiday/20240112")

	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/api/events/nope/occurrences", "").Code)
}

func TestRefresh(t *testing.T) {
	s, _ := newTestServer(t, nil)
	assert.Equal(t, http.StatusServiceUnavailable, do(t, s.Handler(), http.MethodPost, "/api/refresh", "").Code)

	fr := &fakeRefresher{}
	s, _ = newTestServer(t, fr)
	rec := do(t, s.Handler(), http.MethodPost, "/api/refresh", "")
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[refreshResponse](t, rec)
	assert.Equal(t, 2, resp.Events)
	assert.Equal(t, int64(3), resp.DurationMs)
	assert.Equal(t, 1, fr.calls)
}

func TestICSFeed(t *testing.T) {
	s, _ := newTestServer(t, nil)
	h := s.Handler()

	rec := do(t, h, http.MethodGet, "/feed.ics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/calendar")
	out := rec.Body.String()
	assert.Contains(t, out, "X-WR-CALNAME:Team")
	assert.Contains(t, out, "UID:standup/20240110@example.test")
	assert.Contains(t, out, "UID:holiday/20240112@example.test")
	assert.NotContains(t, out, "standup/20240108")

	out = do(t, h, http.MethodGet, "/feed.ics?calendar=home", "").Body.String()
	assert.Equal(t, 1, strings.Count(out, "BEGIN:VEVENT"))

	out = do(t, h, http.MethodGet, "/feed.ics?series=1", "").Body.String()
	assert.Contains(t, out, "UID:standup@example.test")
	assert.Contains(t, out, "RRULE:FREQ=WEEKLY")
	assert.Equal(t, 2, strings.Count(out, "BEGIN:VEVENT"))
}

func TestRSSFeed(t *testing.T) {
	s, _ := newTestServer(t, nil)
	rec := do(t, s.Handler(), http.MethodGet, "/feed.rss?days=3", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "rss")

	out := rec.Body.String()
	assert.Contains(t, out, "<rss")
	assert.Contains(t, out, "<title>Standup</title>")
	assert.Contains(t, out, "<title>Holiday</title>")
	// Window is Jan 9 up to Jan 13: Wed 10 and Fri 12 for standup.
	assert.Equal(t, 3, strings.Count(out, "<item>"))
}

func TestMetrics(t *testing.T) {
	s, _ := newTestServer(t, nil)
	rec := do(t, s.Handler(), http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "evcal_indexed_occurrences")
}

func TestViewRange(t *testing.T) {
	wed := dateutil.Date(2024, 1, 10)

	tests := []struct {
		view      string
		weekStart time.Weekday
		from, to  string
	}{
		{ViewDay, time.Monday, "2024-01-10", "2024-01-11"},
		{ViewWeek, time.Monday, "2024-01-08", "2024-01-15"},
		{ViewWeek, time.Sunday, "2024-01-07", "2024-01-14"},
		{ViewMonth, time.Monday, "2024-01-01", "2024-02-01"},
		{ViewYear, time.Monday, "2024-01-01", "2025-01-01"},
		{ViewAgenda, time.Monday, "2024-01-10", "2024-02-09"},
	}
	for _, tt := range tests {
		from, to, err := ViewRange(tt.view, wed, tt.weekStart, 30)
		require.NoError(t, err)
		assert.Equal(t, tt.from, dateutil.FormatDate(from), tt.view)
		assert.Equal(t, tt.to, dateutil.FormatDate(to), tt.view)
	}

	// A week view on the week-start day begins on that day.
	from, _, err := ViewRange(ViewWeek, dateutil.Date(2024, 1, 8), time.Monday, 0)
	require.NoError(t, err)
	assert.Equal(t, "2024-01-08", dateutil.FormatDate(from))

	_, _, err = ViewRange("fortnight", wed, time.Monday, 0)
	assert.Error(t, err)
}
