package ics

import (
	"strconv"
	"time"

	ical "github.com/arran4/golang-ical"

	"evcal/internal/model"
	"evcal/internal/recurrence"
)

// FeedOptions controls iCalendar feed generation.
type FeedOptions struct {
	// Name is announced as X-WR-CALNAME.
	Name string
	// Domain is appended to UIDs.
	Domain string
	// Now stamps DTSTAMP; zero means time.Now.
	Now time.Time
}

func (o FeedOptions) stamp() time.Time {
	if o.Now.IsZero() {
		return time.Now().UTC()
	}
	return o.Now.UTC()
}

func newCalendar(opts FeedOptions) *ical.Calendar {
	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId("-//evcal//occurrence feed//EN")
	if opts.Name != "" {
		cal.SetXWRCalName(opts.Name)
	}
	return cal
}

// BuildFeed renders occurrences as one VEVENT each, keyed by
// "<instance key>@<domain>".
func BuildFeed(occurrences []model.Occurrence, opts FeedOptions) *ical.Calendar {
	cal := newCalendar(opts)
	stamp := opts.stamp()

	for _, occ := range occurrences {
		ve := cal.AddEvent(occ.InstanceKey + "@" + opts.Domain)
		ve.SetDtStampTime(stamp)
		ve.SetSummary(occ.Summary)
		if occ.Location != "" {
			ve.SetLocation(occ.Location)
		}
		if occ.Category != "" {
			ve.SetProperty(propertyCategories, occ.Category)
		}
		ve.SetProperty(ical.ComponentPropertySequence, strconv.Itoa(occ.Sequence))
		if occ.AllDay {
			ve.SetAllDayStartAt(occ.Start)
			ve.SetAllDayEndAt(occ.End)
		} else {
			ve.SetStartAt(occ.Start)
			ve.SetEndAt(occ.End)
		}
	}
	return cal
}

// BuildSeriesFeed renders one VEVENT per event. Rules that map onto an
// RRULE are emitted as a series; everything else is expanded into
// per-occurrence components like BuildFeed.
func BuildSeriesFeed(engine *recurrence.Engine, events []model.Event, opts FeedOptions) *ical.Calendar {
	cal := newCalendar(opts)
	stamp := opts.stamp()

	for _, ev := range events {
		var (
			value string
			ok    bool
			dates []time.Time
		)
		if ev.Recurring && !ev.Split {
			dates = engine.Dates(ev.StartDate, ev.Rule).Dates
			// DTSTART is always an instance, so anchor on the first generated date.
			if len(dates) > 0 {
				value, ok = recurrence.ToRRule(ev.Rule, dates[0])
			}
		}
		if !ok {
			for _, comp := range BuildFeed(engine.Expand(ev).Occurrences, opts).Events() {
				cal.AddVEvent(comp)
			}
			continue
		}

		first := recurrence.Materialize(ev, dates[:1], engine.Location())[0]
		ve := cal.AddEvent(ev.ID + "@" + opts.Domain)
		ve.SetDtStampTime(stamp)
		ve.SetSummary(ev.Summary)
		if ev.Description != "" {
			ve.SetDescription(ev.Description)
		}
		if ev.Location != "" {
			ve.SetLocation(ev.Location)
		}
		if ev.Category != "" {
			ve.SetProperty(propertyCategories, ev.Category)
		}
		ve.SetProperty(ical.ComponentPropertySequence, strconv.Itoa(ev.Sequence))
		if ev.AllDay {
			ve.SetAllDayStartAt(first.Start)
			ve.SetAllDayEndAt(first.End)
		} else {
			ve.SetStartAt(first.Start)
			ve.SetEndAt(first.End)
		}
		ve.AddRrule(value)
	}
	return cal
}
