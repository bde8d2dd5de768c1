package recurrence

import (
	"fmt"
	"time"

	"github.com/teambition/rrule-go"

	"evcal/internal/dateutil"
	"evcal/internal/model"
)

// rruleDays is indexed by model.Weekday.Offset().
var rruleDays = [7]rrule.Weekday{rrule.SU, rrule.MO, rrule.TU, rrule.WE, rrule.TH, rrule.FR, rrule.SA}

func toRRuleDay(wd model.Weekday) rrule.Weekday {
	return rruleDays[wd.Offset()]
}

func fromRRuleDay(wd rrule.Weekday) model.Weekday {
	// rrule-go numbers weekdays from Monday = 0.
	return model.Weekday((wd.Day()+1)%7 + 1)
}

// ToRRule renders rule as an RFC 5545 RRULE value (without the "RRULE:"
// prefix). It reports false for rules an RRULE cannot carry: custom date
// lists, single events and weekend-skip policies.
func ToRRule(rule model.RecurrenceRule, start time.Time) (string, bool) {
	if rule.SkipWeekends != model.SkipNone {
		return "", false
	}

	start = dateutil.Truncate(start)
	// UNTIL is inclusive; cover the whole stop day so timed instances on it
	// survive in clients.
	opt := rrule.ROption{
		Interval: rule.Interval(),
		Until:    newWindow(start, rule).stop.Add(24*time.Hour - time.Second),
	}

	switch rule.Type {
	case model.RecurDaily:
		opt.Freq = rrule.DAILY
	case model.RecurWeekly:
		opt.Freq = rrule.WEEKLY
		opt.Wkst = rrule.SU
		days := normalizeWeekdays(rule.Weekdays)
		if len(days) == 0 {
			days = []model.Weekday{model.WeekdayOf(start)}
		}
		for _, wd := range days {
			opt.Byweekday = append(opt.Byweekday, toRRuleDay(wd))
		}
	case model.RecurMonthlyByDate:
		days := normalizeMonthDays(rule.MonthDays)
		if len(days) == 0 {
			return "", false
		}
		opt.Freq = rrule.MONTHLY
		for _, d := range days {
			if d == model.LastDayOfMonth {
				d = -1
			}
			opt.Bymonthday = append(opt.Bymonthday, d)
		}
	case model.RecurDayOfMonth:
		nth := rule.WeekdayOfMonth
		if nth == nil || !nth.Weekday.Valid() {
			return "", false
		}
		ordinals := normalizeOrdinals(nth.Ordinals)
		if len(ordinals) == 0 {
			return "", false
		}
		opt.Freq = rrule.MONTHLY
		day := toRRuleDay(nth.Weekday)
		for _, ord := range ordinals {
			if ord == model.LastOrdinal {
				ord = -1
			}
			opt.Byweekday = append(opt.Byweekday, day.Nth(ord))
		}
	case model.RecurYearly:
		opt.Freq = rrule.YEARLY
	default:
		return "", false
	}

	return opt.RRuleString(), true
}

// FromRRule maps an RRULE value onto a RecurrenceRule for an event that
// starts on start. COUNT is converted into a stop date by expanding the
// mapped rule. Patterns with no equivalent return an error.
func FromRRule(value string, start time.Time) (model.RecurrenceRule, error) {
	var rule model.RecurrenceRule

	opt, err := rrule.StrToROption(value)
	if err != nil {
		return rule, fmt.Errorf("parse rrule %q: %w", value, err)
	}

	start = dateutil.Truncate(start)
	rule.Frequency = opt.Interval
	if rule.Frequency < 1 {
		rule.Frequency = 1
	}

	switch opt.Freq {
	case rrule.DAILY:
		rule.Type = model.RecurDaily
	case rrule.WEEKLY:
		rule.Type = model.RecurWeekly
		for _, wd := range opt.Byweekday {
			rule.Weekdays = append(rule.Weekdays, fromRRuleDay(wd))
		}
	case rrule.MONTHLY:
		if err := monthlyFromROption(opt, start, &rule); err != nil {
			return rule, fmt.Errorf("rrule %q: %w", value, err)
		}
	case rrule.YEARLY:
		if len(opt.Byweekday) > 0 || len(opt.Byyearday) > 0 || len(opt.Byweekno) > 0 {
			return rule, fmt.Errorf("rrule %q: unsupported yearly pattern", value)
		}
		rule.Type = model.RecurYearly
	default:
		return rule, fmt.Errorf("rrule %q: unsupported frequency %v", value, opt.Freq)
	}

	switch {
	case !opt.Until.IsZero():
		rule.StopDate = dateutil.Truncate(opt.Until)
	case opt.Count > 0:
		// The COUNT-th generated date becomes the stop date.
		res := NewEngine(Config{MaxRepeats: opt.Count}).Dates(start, rule)
		if n := len(res.Dates); n > 0 {
			rule.StopDate = res.Dates[n-1]
		}
	}

	return rule, nil
}

func monthlyFromROption(opt *rrule.ROption, start time.Time, rule *model.RecurrenceRule) error {
	if len(opt.Byweekday) == 0 {
		rule.Type = model.RecurMonthlyByDate
		days := opt.Bymonthday
		if len(days) == 0 {
			days = []int{start.Day()}
		}
		for _, d := range days {
			switch {
			case d == -1:
				d = model.LastDayOfMonth
			case d < 1:
				return fmt.Errorf("unsupported BYMONTHDAY %d", d)
			}
			rule.MonthDays = append(rule.MonthDays, d)
		}
		return nil
	}

	rule.Type = model.RecurDayOfMonth
	nth := &model.NthWeekday{Weekday: fromRRuleDay(opt.Byweekday[0])}
	for i := range opt.Byweekday {
		wd := opt.Byweekday[i]
		if fromRRuleDay(wd) != nth.Weekday {
			return fmt.Errorf("mixed weekdays in monthly BYDAY")
		}
		if wd.N() != 0 {
			nth.Ordinals = append(nth.Ordinals, ordinalFromRRule(wd.N()))
		}
	}
	// BYDAY=TU;BYSETPOS=2 style.
	for _, pos := range opt.Bysetpos {
		nth.Ordinals = append(nth.Ordinals, ordinalFromRRule(pos))
	}
	nth.Ordinals = normalizeOrdinals(nth.Ordinals)
	if len(nth.Ordinals) == 0 {
		return fmt.Errorf("monthly BYDAY without ordinal")
	}
	rule.WeekdayOfMonth = nth
	return nil
}

// ordinalFromRRule maps RRULE positions onto 1..5; -1 means last and any
// other negative or out-of-range position yields 0 (dropped later).
func ordinalFromRRule(n int) int {
	switch {
	case n == -1:
		return model.LastOrdinal
	case n >= 1 && n <= 4:
		return n
	default:
		return 0
	}
}
