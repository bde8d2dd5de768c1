package recurrence

import (
	"fmt"
	"time"

	"evcal/internal/dateutil"
	"evcal/internal/model"
)

// Materialize attaches the event's timing to each expanded date.
//
//   - All-day events span [date 00:00, date+span+1 00:00) and ignore clock fields.
//   - Timed events start at StartTime on the date and end at EndTime on
//     date+span; an end before the start rolls past midnight.
//   - Split events yield two occurrences per date, slot 2 using the second
//     pair of clock fields.
//
// span is the number of days between the event's StartDate and EndDate.
func Materialize(ev model.Event, dates []time.Time, loc *time.Location) []model.Occurrence {
	if loc == nil {
		loc = time.UTC
	}

	span := 0
	if !ev.EndDate.IsZero() {
		if n := dateutil.DaysBetween(ev.StartDate, ev.EndDate); n > 0 {
			span = n
		}
	}

	type slot struct {
		n          int
		start, end model.Clock
	}
	slots := []slot{{n: 1, start: ev.StartTime, end: ev.EndTime}}
	if ev.Split && !ev.AllDay {
		slots = append(slots, slot{n: 2, start: ev.StartTime2, end: ev.EndTime2})
	}

	out := make([]model.Occurrence, 0, len(dates)*len(slots))
	for _, d := range dates {
		if ev.AllDay {
			start := atClock(d, 0, loc)
			end := atClock(dateutil.AddDays(d, span+1), 0, loc)
			out = append(out, newOccurrence(ev, d, start, end, 1))
			continue
		}

		for _, s := range slots {
			start := atClock(d, s.start, loc)
			end := atClock(dateutil.AddDays(d, span), s.end, loc)
			if end.Before(start) {
				end = end.AddDate(0, 0, 1)
			}
			out = append(out, newOccurrence(ev, d, start, end, s.n))
		}
	}
	return out
}

func newOccurrence(ev model.Event, date, start, end time.Time, slot int) model.Occurrence {
	return model.Occurrence{
		EventID:     ev.ID,
		InstanceKey: InstanceKey(ev.ID, date, slot),
		Date:        date,
		Start:       start,
		End:         end,
		Slot:        slot,
		AllDay:      ev.AllDay,
		Sequence:    ev.Sequence,
		Summary:     ev.Summary,
		Location:    ev.Location,
		Calendar:    ev.Calendar,
		Category:    ev.Category,
	}
}

// InstanceKey identifies one occurrence: "<event>/<YYYYMMDD>", with a
// "-<slot>" suffix for the second window of split events.
func InstanceKey(eventID string, date time.Time, slot int) string {
	key := eventID + "/" + date.Format("20060102")
	if slot > 1 {
		key += fmt.Sprintf("-%d", slot)
	}
	return key
}

// atClock builds the wall time c on the civil date d in loc.
func atClock(d time.Time, c model.Clock, loc *time.Location) time.Time {
	y, m, day := d.Date()
	return time.Date(y, m, day, int(c)/60, int(c)%60, 0, 0, loc)
}
