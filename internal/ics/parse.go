package ics

import (
	"bytes"
	"sort"
	"strconv"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/pkg/errors"

	"evcal/internal/dateutil"
	appLog "evcal/internal/log"
	"evcal/internal/model"
	"evcal/internal/recurrence"
)

const (
	propertyRdate        = ical.ComponentProperty("RDATE")
	propertyRecurrenceID = ical.ComponentProperty("RECURRENCE-ID")
	propertyCategories   = ical.ComponentProperty("CATEGORIES")
)

// parsedEvent is a VEVENT mapped onto the event model plus the recurrence
// properties that still need resolving against sibling components.
type parsedEvent struct {
	event        model.Event
	uid          string
	rrule        string
	rdates       []time.Time
	exdates      []time.Time
	recurrenceID *time.Time
}

// ParseICS parses one ICS payload into catalog events.
//
// RRULE is mapped through recurrence.FromRRule. RDATE, EXDATE and
// RECURRENCE-ID overrides cannot be expressed by a rule, so a series that
// carries any of them is flattened into a custom-dates rule with engine.
// Cancelled components are dropped. Components that fail to map are
// logged and skipped.
func ParseICS(engine *recurrence.Engine, src Source, body []byte) ([]model.Event, error) {
	if len(body) == 0 {
		return nil, errors.New("empty ICS body")
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrapf(err, "parse calendar %s", src.ID)
	}

	loc := src.location()
	parsed := make([]parsedEvent, 0)
	for _, comp := range cal.Events() {
		if isCancelled(comp) {
			continue
		}
		pe, perr := parseVEvent(src, comp, loc)
		if perr != nil {
			appLog.Warn("ics vevent skipped", "id", src.ID, "url", redactURL(src.URL), "err", perr.Error())
			continue
		}
		parsed = append(parsed, pe)
	}

	// Each override replaces one date of its master series.
	overridden := make(map[string][]time.Time)
	for _, pe := range parsed {
		if pe.recurrenceID != nil {
			overridden[pe.uid] = append(overridden[pe.uid], *pe.recurrenceID)
		}
	}

	events := make([]model.Event, 0, len(parsed))
	for _, pe := range parsed {
		ev := pe.event
		if pe.recurrenceID == nil {
			ev = resolveRecurrence(engine, pe, append(pe.exdates, overridden[pe.uid]...))
		}
		events = append(events, ev)
	}

	appLog.Info("ics parse completed", "id", src.ID, "url", redactURL(src.URL), "event_count", len(events))
	return events, nil
}

func parseVEvent(src Source, ve *ical.VEvent, loc *time.Location) (parsedEvent, error) {
	var out parsedEvent

	uid := propValue(ve, ical.ComponentPropertyUniqueId)
	if uid == "" {
		return out, errors.New("missing UID")
	}
	out.uid = uid

	ev := model.Event{
		ID:          eventID(src.ID, uid),
		Calendar:    src.Calendar,
		Summary:     propValue(ve, ical.ComponentPropertySummary),
		Description: propValue(ve, ical.ComponentPropertyDescription),
		Location:    propValue(ve, ical.ComponentPropertyLocation),
		SourceID:    src.ID,
	}
	if seq, err := strconv.Atoi(strings.TrimSpace(propValue(ve, ical.ComponentPropertySequence))); err == nil {
		ev.Sequence = seq
	}
	if cats := propValue(ve, propertyCategories); cats != "" {
		ev.Category = strings.TrimSpace(strings.SplitN(cats, ",", 2)[0])
	}

	dtStart := ve.GetProperty(ical.ComponentPropertyDtStart)
	if dtStart == nil {
		return out, errors.Errorf("event %s: missing DTSTART", uid)
	}

	if isDateValue(dtStart) {
		start, err := time.Parse("20060102", strings.TrimSpace(dtStart.Value))
		if err != nil {
			return out, errors.Wrapf(err, "event %s: DTSTART", uid)
		}
		ev.AllDay = true
		ev.StartDate = start
		ev.EndDate = start
		// DTEND is exclusive for all-day events.
		if dtEnd := ve.GetProperty(ical.ComponentPropertyDtEnd); dtEnd != nil {
			if end, err := time.Parse("20060102", strings.TrimSpace(dtEnd.Value)); err == nil && end.After(start) {
				ev.EndDate = dateutil.AddDays(end, -1)
			}
		}
	} else {
		start, err := ve.GetStartAt()
		if err != nil {
			return out, errors.Wrapf(err, "event %s: DTSTART", uid)
		}
		start = inLocation(dtStart, start, loc)
		end := start
		if dtEnd := ve.GetProperty(ical.ComponentPropertyDtEnd); dtEnd != nil {
			if e, err := ve.GetEndAt(); err == nil && !e.Before(start) {
				end = inLocation(dtEnd, e, loc)
			}
		}
		ev.StartDate = dateutil.Truncate(start)
		ev.EndDate = dateutil.Truncate(end)
		ev.StartTime = clockOf(start)
		ev.EndTime = clockOf(end)
	}

	out.rrule = propValue(ve, ical.ComponentPropertyRrule)
	out.rdates = dateList(ve.GetProperties(propertyRdate), loc)
	out.exdates = dateList(ve.GetProperties(ical.ComponentPropertyExdate), loc)

	if rid := ve.GetProperty(propertyRecurrenceID); rid != nil {
		dates := dateList([]*ical.IANAProperty{rid}, loc)
		if len(dates) == 1 {
			out.recurrenceID = &dates[0]
			ev.ID = eventID(src.ID, uid) + "@" + dates[0].Format("20060102")
		}
	}

	out.event = ev
	return out, nil
}

// resolveRecurrence maps the series properties onto ev.Rule.
func resolveRecurrence(engine *recurrence.Engine, pe parsedEvent, exdates []time.Time) model.Event {
	ev := pe.event

	rule := model.RecurrenceRule{Type: model.RecurNone}
	if pe.rrule != "" {
		r, err := recurrence.FromRRule(pe.rrule, ev.StartDate)
		if err != nil {
			appLog.Warn("ics rrule not supported; importing first instance only", "event", ev.ID, "rrule", pe.rrule, "err", err.Error())
			return ev
		}
		rule = r
	}

	if len(pe.rdates) == 0 && len(exdates) == 0 {
		if rule.Type != model.RecurNone {
			ev.Recurring = true
			ev.Rule = rule
		}
		return ev
	}
	if rule.Type == model.RecurNone && len(pe.rdates) == 0 {
		// EXDATE without a series has nothing to exclude.
		return ev
	}

	ev.Recurring = true
	ev.Rule = flatten(engine, ev, rule, pe.rdates, exdates)
	return ev
}

// flatten expands rule, adds extra dates and removes excluded ones,
// returning the set as a custom-dates rule.
func flatten(engine *recurrence.Engine, ev model.Event, rule model.RecurrenceRule, extra, excluded []time.Time) model.RecurrenceRule {
	res := engine.Dates(ev.StartDate, rule)
	if res.Truncated {
		appLog.Warn("ics series truncated while flattening", "event", ev.ID, "max_repeats", engine.MaxRepeats())
	}

	set := make(map[time.Time]bool, len(res.Dates)+len(extra))
	for _, d := range res.Dates {
		set[d] = true
	}
	for _, d := range extra {
		set[d] = true
	}
	for _, d := range excluded {
		delete(set, d)
	}

	dates := make([]time.Time, 0, len(set))
	for d := range set {
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	custom := make([]string, len(dates))
	for i, d := range dates {
		custom[i] = dateutil.FormatDate(d)
	}
	return model.RecurrenceRule{Type: model.RecurCustomDates, Frequency: 1, CustomDates: custom}
}

func eventID(sourceID, uid string) string {
	if sourceID == "" {
		return uid
	}
	return sourceID + ":" + uid
}

func propValue(ve *ical.VEvent, p ical.ComponentProperty) string {
	if prop := ve.GetProperty(p); prop != nil {
		return prop.Value
	}
	return ""
}

func isCancelled(ve *ical.VEvent) bool {
	return strings.EqualFold(strings.TrimSpace(propValue(ve, ical.ComponentPropertyStatus)), "CANCELLED")
}

// isDateValue reports whether a date property carries a DATE rather than a
// DATE-TIME.
func isDateValue(p *ical.IANAProperty) bool {
	if vs, ok := p.ICalParameters["VALUE"]; ok && len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
		return true
	}
	return !strings.Contains(p.Value, "T")
}

// inLocation moves t into loc. Floating times carry no zone and are
// reinterpreted as wall-clock times in loc.
func inLocation(p *ical.IANAProperty, t time.Time, loc *time.Location) time.Time {
	_, hasTZ := p.ICalParameters["TZID"]
	if !hasTZ && !strings.HasSuffix(strings.TrimSpace(p.Value), "Z") {
		return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), 0, loc)
	}
	return t.In(loc)
}

func clockOf(t time.Time) model.Clock {
	return model.Clock(t.Hour()*60 + t.Minute())
}

// dateList collects the civil dates of comma-separated DATE / DATE-TIME
// values across props, in loc.
func dateList(props []*ical.IANAProperty, loc *time.Location) []time.Time {
	var out []time.Time
	for _, p := range props {
		valueLoc := loc
		if tzs, ok := p.ICalParameters["TZID"]; ok && len(tzs) > 0 {
			if l, err := time.LoadLocation(tzs[0]); err == nil {
				valueLoc = l
			}
		}
		for _, part := range strings.Split(p.Value, ",") {
			t, err := parseICSTime(strings.TrimSpace(part), valueLoc)
			if err != nil {
				continue
			}
			out = append(out, dateutil.Truncate(t.In(loc)))
		}
	}
	return out
}

// parseICSTime parses the basic DATE / DATE-TIME / UTC forms.
func parseICSTime(v string, loc *time.Location) (time.Time, error) {
	switch {
	case v == "":
		return time.Time{}, errors.New("empty time value")
	case strings.HasSuffix(v, "Z"):
		return time.Parse("20060102T150405Z", v)
	case strings.Contains(v, "T"):
		return time.ParseInLocation("20060102T150405", v, loc)
	default:
		return time.ParseInLocation("20060102", v, loc)
	}
}
