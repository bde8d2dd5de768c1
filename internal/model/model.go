package model

import (
	"fmt"
	"strings"
	"time"
)

// Event is a calendar event definition before recurrence expansion.
// StartDate and EndDate are civil dates (midnight UTC); time-of-day lives
// in the clock fields so that every occurrence shares it.
type Event struct {
	ID       string `yaml:"id" json:"id"`
	Calendar string `yaml:"calendar" json:"calendar"`
	Category string `yaml:"category" json:"category"`
	Sequence int    `yaml:"sequence" json:"sequence"`

	Summary     string `yaml:"summary" json:"summary"`
	Description string `yaml:"description" json:"description"`
	Location    string `yaml:"location" json:"location"`

	// EndDate may be after StartDate for multi-day instances.
	StartDate time.Time `yaml:"start_date" json:"start_date"`
	EndDate   time.Time `yaml:"end_date" json:"end_date"`

	AllDay bool `yaml:"all_day" json:"all_day"`

	// Split events hold two time windows per day.
	Split      bool  `yaml:"split" json:"split"`
	StartTime  Clock `yaml:"start_time" json:"start_time"`
	EndTime    Clock `yaml:"end_time" json:"end_time"`
	StartTime2 Clock `yaml:"start_time_2" json:"start_time_2"`
	EndTime2   Clock `yaml:"end_time_2" json:"end_time_2"`

	Recurring bool           `yaml:"recurring" json:"recurring"`
	Rule      RecurrenceRule `yaml:"rule" json:"rule"`

	// SourceID names the ICS subscription an imported event came from.
	SourceID string `yaml:"-" json:"source_id,omitempty"`
}

// Occurrence is one concrete instance of an event after expansion and
// materialization. Start / End are in the configured display location.
type Occurrence struct {
	EventID string `json:"event_id"`

	// InstanceKey uniquely identifies one occurrence of an event, derived
	// from the date and, for split events, the slot.
	InstanceKey string `json:"instance_key"`

	Date  time.Time `json:"date"`
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
	Slot  int       `json:"slot"`

	AllDay   bool   `json:"all_day"`
	Sequence int    `json:"sequence"`
	Summary  string `json:"summary"`
	Location string `json:"location"`
	Calendar string `json:"calendar"`
	Category string `json:"category"`
}

// Clock is a time of day in minutes after midnight.
type Clock int

// ParseClock parses HH:MM.
func ParseClock(s string) (Clock, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	var h, m int
	if _, err := fmt.Sscanf(s, "%d:%d", &h, &m); err != nil {
		return 0, fmt.Errorf("parse clock %q: %w", s, err)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("parse clock %q: out of range", s)
	}
	return Clock(h*60 + m), nil
}

func (c Clock) Duration() time.Duration {
	return time.Duration(c) * time.Minute
}

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", int(c)/60, int(c)%60)
}

func (c Clock) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *Clock) UnmarshalText(b []byte) error {
	v, err := ParseClock(string(b))
	if err != nil {
		return err
	}
	*c = v
	return nil
}
