package model

import (
	"time"
)

// RecurrenceType selects the expansion strategy.
type RecurrenceType string

const (
	RecurNone          RecurrenceType = "none"
	RecurDaily         RecurrenceType = "daily"
	RecurMonthlyByDate RecurrenceType = "monthly_by_date"
	RecurYearly        RecurrenceType = "yearly"
	RecurWeekly        RecurrenceType = "weekly"
	RecurDayOfMonth    RecurrenceType = "day_of_month"
	RecurCustomDates   RecurrenceType = "custom_dates"
)

// SkipPolicy controls what happens to occurrences landing on a weekend.
// The effect is strategy-specific; see the recurrence package.
type SkipPolicy int

const (
	SkipNone          SkipPolicy = 0
	SkipEntirely      SkipPolicy = 1
	SkipToNextWeekday SkipPolicy = 2
)

// Weekday uses the 1=Sunday..7=Saturday numbering stored in rules.
type Weekday int

const (
	Sunday Weekday = iota + 1
	Monday
	Tuesday
	Wednesday
	Thursday
	Friday
	Saturday
)

func (w Weekday) Valid() bool {
	return w >= Sunday && w <= Saturday
}

// Offset converts to the 0-based (Sunday=0) convention of time.Weekday
// and the dateutil helpers.
func (w Weekday) Offset() int {
	return int(w) - 1
}

func WeekdayOf(t time.Time) Weekday {
	return Weekday(int(t.Weekday()) + 1)
}

// LastDayOfMonth is the MonthDays value meaning "last day of the month".
const LastDayOfMonth = 32

// LastOrdinal is the WeekdayOfMonth ordinal meaning "last".
const LastOrdinal = 5

// NthWeekday describes "the Nth <weekday> of the month" patterns.
type NthWeekday struct {
	Ordinals []int   `yaml:"ordinals" json:"ordinals"`
	Weekday  Weekday `yaml:"weekday" json:"weekday"`
}

// RecurrenceRule describes how occurrences are generated from an event.
// Only the fields relevant to Type are consulted.
type RecurrenceRule struct {
	Type      RecurrenceType `yaml:"type" json:"type"`
	Frequency int            `yaml:"frequency" json:"frequency"`

	// StopDate is inclusive. The zero value means no explicit stop.
	StopDate time.Time `yaml:"stop_date" json:"stop_date"`

	Weekdays       []Weekday   `yaml:"weekdays,omitempty" json:"weekdays,omitempty"`
	MonthDays      []int       `yaml:"month_days,omitempty" json:"month_days,omitempty"`
	WeekdayOfMonth *NthWeekday `yaml:"weekday_of_month,omitempty" json:"weekday_of_month,omitempty"`
	CustomDates    []string    `yaml:"custom_dates,omitempty" json:"custom_dates,omitempty"`

	SkipWeekends SkipPolicy `yaml:"skip_weekends" json:"skip_weekends"`
}

// Interval returns Frequency, treating values below 1 as 1.
func (r RecurrenceRule) Interval() int {
	if r.Frequency < 1 {
		return 1
	}
	return r.Frequency
}
