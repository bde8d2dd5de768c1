package recurrence

import (
	"sort"
	"strings"
	"time"

	"github.com/teambition/rrule-go"

	"evcal/internal/dateutil"
	"evcal/internal/model"
)

// applyWeekendPolicy returns the date to emit for d, or false when the
// occurrence is dropped. SkipEntirely drops weekend dates; SkipToNextWeekday
// rolls them forward to Monday.
func applyWeekendPolicy(d time.Time, p model.SkipPolicy) (time.Time, bool) {
	if !dateutil.IsWeekend(d) {
		return d, true
	}
	switch p {
	case model.SkipEntirely:
		return d, false
	case model.SkipToNextWeekday:
		return dateutil.NextWeekday(d), true
	default:
		return d, true
	}
}

// emit applies the weekend policy and stores the result if it is still in
// the window. It reports whether generation may continue.
func emit(d time.Time, rule model.RecurrenceRule, w window, c *collector) bool {
	out, ok := applyWeekendPolicy(d, rule.SkipWeekends)
	if !ok || !w.contains(out) {
		return true
	}
	return c.store(out)
}

// expandDaily steps Frequency days from the start date. Weekend dates
// dropped by SkipEntirely are not replaced.
func expandDaily(rule model.RecurrenceRule, w window, c *collector) {
	step := boundedStep(rule.Interval(), spanYears(w)*366)
	for d := w.start; !d.After(w.stop); d = dateutil.AddDays(d, step) {
		if !emit(d, rule, w, c) {
			return
		}
	}
}

// expandWeekly walks weeks anchored on the Sunday of the start week,
// emitting each configured weekday. With no weekdays configured the
// start date's weekday is used.
func expandWeekly(rule model.RecurrenceRule, w window, c *collector) {
	days := normalizeWeekdays(rule.Weekdays)
	if len(days) == 0 {
		days = []model.Weekday{model.WeekdayOf(w.start)}
	}

	step := boundedStep(rule.Interval(), spanYears(w)*53)
	weekStart := dateutil.AddDays(w.start, -int(w.start.Weekday()))

	for ws := weekStart; !ws.After(w.stop); ws = dateutil.AddDays(ws, 7*step) {
		for _, wd := range days {
			d := dateutil.AddDays(ws, wd.Offset())
			if d.Before(w.start) {
				continue
			}
			if d.After(w.stop) {
				return
			}
			if !emit(d, rule, w, c) {
				return
			}
		}
	}
}

// expandMonthlyByDate emits the listed days of each Frequency-th month.
// Day 32 resolves to the last day of the month; other days past the end
// of the month are skipped, not clamped.
func expandMonthlyByDate(rule model.RecurrenceRule, w window, c *collector) {
	days := normalizeMonthDays(rule.MonthDays)
	if len(days) == 0 {
		return
	}

	step := boundedStep(rule.Interval(), spanYears(w)*12)
	year, month := w.start.Year(), int(w.start.Month())

	for !dateutil.Date(year, month, 1).After(w.stop) {
		dim := dateutil.DaysInMonth(month, year)
		for _, day := range days {
			if day == model.LastDayOfMonth {
				day = dim
			} else if day > dim {
				continue
			}

			d := dateutil.Date(year, month, day)
			if !w.contains(d) {
				continue
			}
			if !emit(d, rule, w, c) {
				return
			}
		}
		year, month = advanceMonth(year, month, step)
	}
}

// expandDayOfMonth emits "Nth weekday" dates of each Frequency-th month.
// A missing fifth weekday falls back to the fourth.
func expandDayOfMonth(rule model.RecurrenceRule, w window, c *collector) {
	nth := rule.WeekdayOfMonth
	if nth == nil || !nth.Weekday.Valid() {
		return
	}
	ordinals := normalizeOrdinals(nth.Ordinals)
	if len(ordinals) == 0 {
		return
	}

	weekday := nth.Weekday.Offset()
	step := boundedStep(rule.Interval(), spanYears(w)*12)
	year, month := w.start.Year(), int(w.start.Month())

	for !dateutil.Date(year, month, 1).After(w.stop) {
		for _, ord := range ordinals {
			res := dateutil.NthWeekdayOfMonth(ord, weekday, month, year)
			if ord == model.LastOrdinal && res.IsAbsent() {
				res = dateutil.NthWeekdayOfMonth(4, weekday, month, year)
			}
			d, ok := res.Get()
			if !ok || d.Before(w.start) {
				continue
			}
			if d.After(w.stop) {
				return
			}
			if !c.store(d) {
				return
			}
		}
		year, month = advanceMonth(year, month, step)
	}
}

// expandYearly repeats the start's month and day every Frequency years.
// February 29 only recurs in leap years.
func expandYearly(rule model.RecurrenceRule, w window, c *collector) {
	r, err := rrule.NewRRule(rrule.ROption{
		Freq:     rrule.YEARLY,
		Interval: boundedStep(rule.Interval(), spanYears(w)),
		Dtstart:  w.start,
		Until:    w.stop,
	})
	if err != nil {
		return
	}

	next := r.Iterator()
	for d, ok := next(); ok; d, ok = next() {
		if !emit(dateutil.Truncate(d), rule, w, c) {
			return
		}
	}
}

// expandCustomDates emits every listed date that exists on the calendar,
// earliest first so the cap keeps the earliest ones. The start and stop
// bounds do not apply.
func expandCustomDates(rule model.RecurrenceRule, _ window, c *collector) {
	dates := make([]time.Time, 0, len(rule.CustomDates))
	for _, s := range rule.CustomDates {
		d, err := dateutil.ParseDate(strings.TrimSpace(s))
		if err != nil {
			continue
		}
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	for _, d := range dates {
		if !c.store(d) {
			return
		}
	}
}

func advanceMonth(year, month, step int) (int, int) {
	months := month - 1 + step
	return year + months/12, months%12 + 1
}

// boundedStep caps step at one past span, so a step larger than the whole
// window costs a single iteration instead of overflowing date arithmetic.
func boundedStep(step, span int) int {
	if span < 0 {
		span = 0
	}
	if step > span {
		return span + 1
	}
	return step
}

// spanYears is the number of calendar years the window touches.
func spanYears(w window) int {
	return w.stop.Year() - w.start.Year() + 1
}

func normalizeWeekdays(in []model.Weekday) []model.Weekday {
	out := make([]model.Weekday, 0, len(in))
	seen := make(map[model.Weekday]bool, len(in))
	for _, wd := range in {
		if !wd.Valid() || seen[wd] {
			continue
		}
		seen[wd] = true
		out = append(out, wd)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func normalizeMonthDays(in []int) []int {
	return normalizeInts(in, 1, model.LastDayOfMonth)
}

func normalizeOrdinals(in []int) []int {
	return normalizeInts(in, 1, model.LastOrdinal)
}

// normalizeInts keeps the unique values within [lo, hi], sorted ascending.
func normalizeInts(in []int, lo, hi int) []int {
	out := make([]int, 0, len(in))
	seen := make(map[int]bool, len(in))
	for _, v := range in {
		if v < lo || v > hi || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	sort.Ints(out)
	return out
}
