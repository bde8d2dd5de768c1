package web

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/feeds"

	"evcal/internal/dateutil"
	"evcal/internal/ics"
	appLog "evcal/internal/log"
	"evcal/internal/model"
	"evcal/internal/store"
)

// feedWindow is the [from, to) range feeds publish: from yesterday up to
// FeedHorizonDays ahead, overridable with ?days=.
func (s *Server) feedWindow(r *http.Request) (time.Time, time.Time) {
	loc := s.engine.Location()
	today := dateutil.Truncate(s.now().In(loc))
	days := parseIntDefault(r.URL.Query().Get("days"), s.cfg.FeedHorizonDays)
	if days <= 0 {
		days = s.cfg.FeedHorizonDays
	}
	return inLocation(dateutil.AddDays(today, -1), loc), inLocation(dateutil.AddDays(today, days), loc)
}

func (s *Server) feedFilter(r *http.Request) store.Filter {
	q := r.URL.Query()
	return store.Filter{Calendar: q.Get("calendar"), Category: q.Get("category")}
}

// handleICSFeed publishes the index as iCalendar.
//
// GET /feed.ics?calendar=&category=&days=&series=1
//   - series=1 emits one VEVENT per event with an RRULE where the rule
//     allows it, instead of one VEVENT per occurrence.
func (s *Server) handleICSFeed(w http.ResponseWriter, r *http.Request) {
	opts := ics.FeedOptions{Name: s.cfg.FeedName, Domain: s.cfg.FeedDomain, Now: s.now()}
	filter := s.feedFilter(r)

	var body string
	if r.URL.Query().Get("series") == "1" {
		events := make([]model.Event, 0)
		for _, ev := range s.index.Events() {
			if (filter.Calendar == "" || filter.Calendar == ev.Calendar) &&
				(filter.Category == "" || filter.Category == ev.Category) {
				events = append(events, ev)
			}
		}
		body = ics.BuildSeriesFeed(s.engine, events, opts).Serialize()
	} else {
		from, to := s.feedWindow(r)
		body = ics.BuildFeed(s.index.Range(from, to, filter), opts).Serialize()
	}

	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(body)); err != nil {
		appLog.Warn("can't write ics feed", "err", err.Error())
	}
}

// handleRSSFeed publishes upcoming occurrences as RSS 2.0.
func (s *Server) handleRSSFeed(w http.ResponseWriter, r *http.Request) {
	from, to := s.feedWindow(r)
	occ := s.index.Range(from, to, s.feedFilter(r))

	base := "http://" + r.Host
	feed := &feeds.Feed{
		Title:       s.cfg.FeedName,
		Link:        &feeds.Link{Href: base + "/feed.rss"},
		Description: fmt.Sprintf("Occurrences from %s to %s", dateutil.FormatDate(from), dateutil.FormatDate(to)),
		Created:     s.now(),
	}
	for _, o := range occ {
		feed.Items = append(feed.Items, &feeds.Item{
			Id:          o.InstanceKey + "@" + s.cfg.FeedDomain,
			Title:       o.Summary,
			Link:        &feeds.Link{Href: base + "/api/events/" + o.EventID + "/occurrences"},
			Description: describe(o),
			Created:     o.Start,
		})
	}

	out, err := feed.ToRss()
	if err != nil {
		appLog.Error("rss render failed", err)
		writeError(w, http.StatusInternalServerError, "failed to render feed")
		return
	}
	w.Header().Set("Content-Type", "application/rss+xml; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(out))
}

func describe(o model.Occurrence) string {
	var b strings.Builder
	if o.AllDay {
		b.WriteString(dateutil.FormatDate(o.Date))
		b.WriteString(" (all day)")
	} else {
		b.WriteString(o.Start.Format("2006-01-02 15:04"))
		b.WriteString(" - ")
		b.WriteString(o.End.Format("15:04"))
	}
	if o.Location != "" {
		b.WriteString(" @ ")
		b.WriteString(o.Location)
	}
	return b.String()
}
