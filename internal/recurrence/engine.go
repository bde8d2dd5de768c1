// Package recurrence expands recurrence rules into concrete dates and
// materializes them into occurrences.
//
// Expansion is a pure function of its inputs: no clock reads, no shared
// state. Malformed rules produce empty results instead of errors, and the
// MaxRepeats cap silently ends generation.
package recurrence

import (
	"sort"
	"time"

	"evcal/internal/dateutil"
	appLog "evcal/internal/log"
	"evcal/internal/metrics"
	"evcal/internal/model"
)

const (
	defaultMaxRepeats = 1000
)

// Config controls how expansion is performed.
type Config struct {
	// MaxRepeats caps the number of dates generated for a single rule.
	// If zero, defaultMaxRepeats is used.
	MaxRepeats int

	// Location is the zone occurrence timestamps are built in.
	// If nil, time.UTC is used.
	Location *time.Location
}

// DateResult is the raw output of a strategy: ascending, unique dates.
type DateResult struct {
	Dates []time.Time
	// Truncated is set when the MaxRepeats cap stopped generation.
	Truncated bool
}

// ExpandResult wraps the occurrences of a single event.
type ExpandResult struct {
	Occurrences []model.Occurrence
	Truncated   bool
}

// BatchResult wraps the occurrences of many events.
type BatchResult struct {
	Occurrences []model.Occurrence
	// TruncatedEvents records IDs of events that hit the MaxRepeats cap.
	TruncatedEvents []string
}

// Engine dispatches rules to their strategies. It is safe for concurrent use.
type Engine struct {
	cfg Config
}

func NewEngine(cfg Config) *Engine {
	if cfg.MaxRepeats <= 0 {
		cfg.MaxRepeats = defaultMaxRepeats
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &Engine{cfg: cfg}
}

func (e *Engine) MaxRepeats() int {
	return e.cfg.MaxRepeats
}

func (e *Engine) Location() *time.Location {
	return e.cfg.Location
}

// strategy enumerates the dates of one recurrence type into c.
type strategy func(rule model.RecurrenceRule, w window, c *collector)

var strategies = map[model.RecurrenceType]strategy{
	model.RecurDaily:         expandDaily,
	model.RecurWeekly:        expandWeekly,
	model.RecurMonthlyByDate: expandMonthlyByDate,
	model.RecurDayOfMonth:    expandDayOfMonth,
	model.RecurYearly:        expandYearly,
	model.RecurCustomDates:   expandCustomDates,
}

// Dates expands rule starting at start. A NONE (or empty) type yields the
// start date alone; an unknown type yields nothing.
func (e *Engine) Dates(start time.Time, rule model.RecurrenceRule) DateResult {
	start = dateutil.Truncate(start)
	c := newCollector(e.cfg.MaxRepeats)

	switch rule.Type {
	case "", model.RecurNone:
		c.store(start)
	default:
		fn, ok := strategies[rule.Type]
		if !ok {
			appLog.Debug("recurrence: unknown rule type", "type", rule.Type)
			break
		}
		if rule.Type != model.RecurCustomDates && start.Before(dateutil.MinDate) {
			break
		}
		fn(rule, newWindow(start, rule), c)
	}

	return c.result()
}

// Expand expands a single event into occurrences. Non-recurring events
// produce exactly one occurrence date.
func (e *Engine) Expand(ev model.Event) ExpandResult {
	rule := ev.Rule
	if !ev.Recurring {
		rule = model.RecurrenceRule{Type: model.RecurNone}
	}

	dr := e.Dates(ev.StartDate, rule)
	occ := Materialize(ev, dr.Dates, e.cfg.Location)

	metrics.ObserveExpansion(metricsLabel(rule.Type), len(dr.Dates), dr.Truncated)

	return ExpandResult{
		Occurrences: occ,
		Truncated:   dr.Truncated,
	}
}

// ExpandAll expands every event, concatenating occurrences in event order.
// Truncations are logged and reported, never treated as failures.
func (e *Engine) ExpandAll(events []model.Event) BatchResult {
	var result BatchResult

	all := make([]model.Occurrence, 0, len(events))
	for _, ev := range events {
		res := e.Expand(ev)
		all = append(all, res.Occurrences...)

		if res.Truncated {
			result.TruncatedEvents = append(result.TruncatedEvents, ev.ID)
			appLog.Warn("recurrence: truncated occurrences due to cap",
				"event_id", ev.ID,
				"type", ev.Rule.Type,
				"cap", e.cfg.MaxRepeats,
			)
		}
	}

	result.Occurrences = all
	return result
}

// metricsLabel keeps the type label set bounded: rule types come from
// request bodies and catalogs, so anything without a strategy is "unknown".
func metricsLabel(t model.RecurrenceType) string {
	if t == "" || t == model.RecurNone {
		return string(model.RecurNone)
	}
	if _, ok := strategies[t]; !ok {
		return "unknown"
	}
	return string(t)
}

// window is the inclusive [start, stop] range a strategy may emit into.
type window struct {
	start time.Time
	stop  time.Time
}

func newWindow(start time.Time, rule model.RecurrenceRule) window {
	stop := dateutil.DefaultStopDate
	if !rule.StopDate.IsZero() {
		stop = dateutil.Truncate(rule.StopDate)
	}
	return window{start: start, stop: stop}
}

func (w window) contains(d time.Time) bool {
	return !d.Before(w.start) && !d.After(w.stop) && !d.Before(dateutil.MinDate)
}

// collector accumulates unique dates up to a cap.
type collector struct {
	limit     int
	dates     []time.Time
	seen      map[int64]struct{}
	truncated bool
}

func newCollector(limit int) *collector {
	return &collector{
		limit: limit,
		seen:  make(map[int64]struct{}),
	}
}

// store records d and reports whether generation may continue. It
// returns false once a new date arrives with the cap already reached;
// duplicates never count against the cap.
func (c *collector) store(d time.Time) bool {
	key := d.Unix()
	if _, dup := c.seen[key]; dup {
		return true
	}
	if len(c.dates) >= c.limit {
		c.truncated = true
		return false
	}
	c.seen[key] = struct{}{}
	c.dates = append(c.dates, d)
	return true
}

func (c *collector) result() DateResult {
	sort.Slice(c.dates, func(i, j int) bool {
		return c.dates[i].Before(c.dates[j])
	})
	return DateResult{
		Dates:     c.dates,
		Truncated: c.truncated,
	}
}
