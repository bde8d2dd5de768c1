package web

import (
	"time"

	"github.com/pkg/errors"

	"evcal/internal/dateutil"
)

// View names accepted by /api/occurrences.
const (
	ViewDay    = "day"
	ViewWeek   = "week"
	ViewMonth  = "month"
	ViewYear   = "year"
	ViewAgenda = "agenda"
)

// ViewRange returns the civil-date interval [from, to) a view covers
// around date.
func ViewRange(view string, date time.Time, weekStart time.Weekday, agendaDays int) (time.Time, time.Time, error) {
	d := dateutil.Truncate(date)

	switch view {
	case ViewDay:
		return d, dateutil.AddDays(d, 1), nil
	case ViewWeek:
		back := (int(d.Weekday()) - int(weekStart) + 7) % 7
		from := dateutil.AddDays(d, -back)
		return from, dateutil.AddDays(from, 7), nil
	case ViewMonth:
		from := dateutil.Date(d.Year(), int(d.Month()), 1)
		return from, dateutil.AddMonths(from, 1), nil
	case ViewYear:
		from := dateutil.Date(d.Year(), 1, 1)
		return from, dateutil.Date(d.Year()+1, 1, 1), nil
	case ViewAgenda:
		if agendaDays <= 0 {
			agendaDays = 30
		}
		return d, dateutil.AddDays(d, agendaDays), nil
	default:
		return time.Time{}, time.Time{}, errors.Errorf("unknown view %q", view)
	}
}

// weekStartOf maps the config value onto a weekday.
func weekStartOf(v string) time.Weekday {
	if v == "sunday" {
		return time.Sunday
	}
	return time.Monday
}

// inLocation turns a civil date into midnight in loc.
func inLocation(d time.Time, loc *time.Location) time.Time {
	y, m, day := d.Date()
	return time.Date(y, m, day, 0, 0, 0, 0, loc)
}
