// Package dateutil holds the calendar arithmetic used by the recurrence
// engine. All dates are civil dates represented as time.Time values at
// midnight UTC.
package dateutil

import (
	"fmt"
	"time"

	"github.com/samber/mo"
)

// DateLayout is the textual form of a civil date.
const DateLayout = "2006-01-02"

var (
	// MinDate is the floor below which no occurrence is generated.
	MinDate = Date(1970, 1, 1)

	// DefaultStopDate is used when a rule carries no stop date.
	DefaultStopDate = Date(2037, 12, 31)
)

// Date builds a civil date. Out-of-range values normalize the way
// time.Date does; use CheckDate first when that is not wanted.
func Date(year, month, day int) time.Time {
	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
}

// Truncate drops the time-of-day and location of t, keeping its wall date.
func Truncate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DayOfWeek returns 0 for Sunday through 6 for Saturday.
func DayOfWeek(day, month, year int) int {
	return int(Date(year, month, day).Weekday())
}

func IsLeapYear(year int) bool {
	return year%4 == 0 && (year%100 != 0 || year%400 == 0)
}

// DaysInMonth returns 0 for a month outside 1..12.
func DaysInMonth(month, year int) int {
	switch month {
	case 1, 3, 5, 7, 8, 10, 12:
		return 31
	case 4, 6, 9, 11:
		return 30
	case 2:
		if IsLeapYear(year) {
			return 29
		}
		return 28
	default:
		return 0
	}
}

// CheckDate reports whether year/month/day name a real calendar date.
func CheckDate(year, month, day int) bool {
	if year < 1 || month < 1 || month > 12 || day < 1 {
		return false
	}
	return day <= DaysInMonth(month, year)
}

// NthWeekdayOfMonth finds the ordinal-th weekday (0=Sunday..6=Saturday)
// of the month. Ordinals 1..4 always exist; ordinal 5 exists only in
// months holding five of that weekday and is None otherwise.
func NthWeekdayOfMonth(ordinal, weekday, month, year int) mo.Option[time.Time] {
	if ordinal < 1 || ordinal > 5 || weekday < 0 || weekday > 6 || month < 1 || month > 12 {
		return mo.None[time.Time]()
	}

	first := DayOfWeek(1, month, year)
	day := 1 + (weekday-first+7)%7 + (ordinal-1)*7
	if day > DaysInMonth(month, year) {
		return mo.None[time.Time]()
	}
	return mo.Some(Date(year, month, day))
}

func AddDays(d time.Time, n int) time.Time {
	return d.AddDate(0, 0, n)
}

// AddMonths moves d by n months, clamping to the last day of the target
// month instead of overflowing (Jan 31 + 1 month = Feb 28/29).
func AddMonths(d time.Time, n int) time.Time {
	y, m, day := d.Date()
	total := int(m) - 1 + n
	ty := y + floorDiv(total, 12)
	tm := total - floorDiv(total, 12)*12 + 1
	if dim := DaysInMonth(tm, ty); day > dim {
		day = dim
	}
	h, mi, s := d.Clock()
	return time.Date(ty, time.Month(tm), day, h, mi, s, d.Nanosecond(), d.Location())
}

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

func IsWeekend(d time.Time) bool {
	wd := d.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

// NextWeekday rolls a Saturday or Sunday forward to the following Monday.
// Weekdays are returned unchanged.
func NextWeekday(d time.Time) time.Time {
	switch d.Weekday() {
	case time.Saturday:
		return AddDays(d, 2)
	case time.Sunday:
		return AddDays(d, 1)
	default:
		return d
	}
}

// DaysBetween counts whole days from a to b (negative when b is earlier).
func DaysBetween(a, b time.Time) int {
	return int(Truncate(b).Sub(Truncate(a)).Hours() / 24)
}

func FormatDate(d time.Time) string {
	return d.Format(DateLayout)
}

// ParseDate parses YYYY-MM-DD and rejects dates that do not exist, such
// as 2024-02-30.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	if FormatDate(t) != s {
		return time.Time{}, fmt.Errorf("parse date %q: expected %s", s, DateLayout)
	}
	return t, nil
}
