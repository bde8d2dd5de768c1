package web

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/pkg/errors"

	"evcal/internal/dateutil"
	appLog "evcal/internal/log"
	"evcal/internal/model"
	"evcal/internal/recurrence"
	"evcal/internal/store"
)

const maxRequestBytes = 1 << 20

// occurrencesResponse is the JSON shape for /api/occurrences.
type occurrencesResponse struct {
	View        string             `json:"view"`
	RangeStart  time.Time          `json:"range_start"`
	RangeEnd    time.Time          `json:"range_end"`
	Timezone    string             `json:"timezone"`
	WeekStart   string             `json:"week_start"`
	Occurrences []model.Occurrence `json:"occurrences"`
}

// handleOccurrences serves a calendar view from the index.
//
// GET /api/occurrences?view=week&date=2024-01-10&calendar=work&category=
//   - view: day, week, month, year or agenda (default week)
//   - date: any day inside the view, YYYY-MM-DD (default today)
func (s *Server) handleOccurrences(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	loc := s.engine.Location()

	view := q.Get("view")
	if view == "" {
		view = ViewWeek
	}

	date := dateutil.Truncate(s.now().In(loc))
	if v := q.Get("date"); v != "" {
		d, err := dateutil.ParseDate(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		date = d
	}

	agendaDays := parseIntDefault(q.Get("days"), s.cfg.AgendaDays)
	from, to, err := ViewRange(view, date, weekStartOf(s.cfg.WeekStart), agendaDays)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	start, end := inLocation(from, loc), inLocation(to, loc)
	occ := s.index.Range(start, end, store.Filter{
		Calendar: q.Get("calendar"),
		Category: q.Get("category"),
	})

	appLog.Debug("api occurrences", "view", view, "from", dateutil.FormatDate(from), "to", dateutil.FormatDate(to), "count", len(occ))

	writeJSON(w, http.StatusOK, occurrencesResponse{
		View:        view,
		RangeStart:  start,
		RangeEnd:    end,
		Timezone:    loc.String(),
		WeekStart:   s.cfg.WeekStart,
		Occurrences: occ,
	})
}

// ruleRequest mirrors model.RecurrenceRule with a YYYY-MM-DD stop date.
type ruleRequest struct {
	Type           model.RecurrenceType `json:"type"`
	Frequency      int                  `json:"frequency"`
	StopDate       string               `json:"stop_date"`
	Weekdays       []model.Weekday      `json:"weekdays"`
	MonthDays      []int                `json:"month_days"`
	WeekdayOfMonth *model.NthWeekday    `json:"weekday_of_month"`
	CustomDates    []string             `json:"custom_dates"`
	SkipWeekends   model.SkipPolicy     `json:"skip_weekends"`
}

// expandRequest is the body of POST /api/expand.
type expandRequest struct {
	ID         string      `json:"id"`
	Summary    string      `json:"summary"`
	Location   string      `json:"location"`
	Calendar   string      `json:"calendar"`
	Category   string      `json:"category"`
	StartDate  string      `json:"start_date"`
	EndDate    string      `json:"end_date"`
	AllDay     bool        `json:"all_day"`
	Split      bool        `json:"split"`
	StartTime  model.Clock `json:"start_time"`
	EndTime    model.Clock `json:"end_time"`
	StartTime2 model.Clock `json:"start_time_2"`
	EndTime2   model.Clock `json:"end_time_2"`
	Recurring  bool        `json:"recurring"`
	Rule       ruleRequest `json:"rule"`
}

func (req expandRequest) toEvent() (model.Event, error) {
	start, err := dateutil.ParseDate(req.StartDate)
	if err != nil {
		return model.Event{}, errors.Wrap(err, "start_date")
	}
	end := start
	if req.EndDate != "" {
		if end, err = dateutil.ParseDate(req.EndDate); err != nil {
			return model.Event{}, errors.Wrap(err, "end_date")
		}
		if end.Before(start) {
			return model.Event{}, errors.New("end_date before start_date")
		}
	}

	var stop time.Time
	if req.Rule.StopDate != "" {
		if stop, err = dateutil.ParseDate(req.Rule.StopDate); err != nil {
			return model.Event{}, errors.Wrap(err, "rule.stop_date")
		}
	}

	id := req.ID
	if id == "" {
		id = "adhoc"
	}

	return model.Event{
		ID:         id,
		Calendar:   req.Calendar,
		Category:   req.Category,
		Summary:    req.Summary,
		Location:   req.Location,
		StartDate:  start,
		EndDate:    end,
		AllDay:     req.AllDay,
		Split:      req.Split,
		StartTime:  req.StartTime,
		EndTime:    req.EndTime,
		StartTime2: req.StartTime2,
		EndTime2:   req.EndTime2,
		Recurring:  req.Recurring,
		Rule: model.RecurrenceRule{
			Type:           req.Rule.Type,
			Frequency:      req.Rule.Frequency,
			StopDate:       stop,
			Weekdays:       req.Rule.Weekdays,
			MonthDays:      req.Rule.MonthDays,
			WeekdayOfMonth: req.Rule.WeekdayOfMonth,
			CustomDates:    req.Rule.CustomDates,
			SkipWeekends:   req.Rule.SkipWeekends,
		},
	}, nil
}

// expandResponse is the JSON shape for POST /api/expand.
type expandResponse struct {
	Occurrences []model.Occurrence `json:"occurrences"`
	Count       int                `json:"count"`
	Truncated   bool               `json:"truncated"`
	RRule       string             `json:"rrule,omitempty"`
}

// handleExpand expands a single event definition without touching the index.
func (s *Server) handleExpand(w http.ResponseWriter, r *http.Request) {
	var req expandRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	ev, err := req.toEvent()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res := s.engine.Expand(ev)
	resp := expandResponse{
		Occurrences: res.Occurrences,
		Count:       len(res.Occurrences),
		Truncated:   res.Truncated,
	}
	if ev.Recurring {
		if v, ok := recurrence.ToRRule(ev.Rule, ev.StartDate); ok {
			resp.RRule = v
		}
	}
	if resp.Occurrences == nil {
		resp.Occurrences = []model.Occurrence{}
	}
	writeJSON(w, http.StatusOK, resp)
}

type eventsResponse struct {
	Events []model.Event `json:"events"`
	Stats  store.Stats   `json:"stats"`
}

func (s *Server) handleEvents(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, eventsResponse{Events: s.index.Events(), Stats: s.index.Stats()})
}

func (s *Server) handleEventOccurrences(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, ok := s.index.Event(id); !ok {
		writeError(w, http.StatusNotFound, "event not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"event_id":    id,
		"occurrences": s.index.ForEvent(id),
	})
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.index.Stats())
}

// refreshResponse is the JSON shape for POST /api/refresh.
type refreshResponse struct {
	Events          int      `json:"events"`
	Occurrences     int      `json:"occurrences"`
	Removed         int      `json:"removed"`
	TruncatedEvents []string `json:"truncated_events,omitempty"`
	FetchErrors     int      `json:"fetch_errors"`
	DurationMs      int64    `json:"duration_ms"`
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if s.refresher == nil {
		writeError(w, http.StatusServiceUnavailable, "refresh not configured")
		return
	}

	sum, err := s.refresher.Refresh(r.Context())
	if err != nil {
		appLog.Error("api refresh failed", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, refreshResponse{
		Events:          sum.Events,
		Occurrences:     sum.Occurrences,
		Removed:         sum.Removed,
		TruncatedEvents: sum.TruncatedEvents,
		FetchErrors:     sum.FetchErrors,
		DurationMs:      sum.Duration.Milliseconds(),
	})
}
