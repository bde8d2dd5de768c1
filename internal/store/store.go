// Package store keeps the materialized occurrence index in memory.
package store

import (
	"sort"
	"sync"
	"time"

	"evcal/internal/metrics"
	"evcal/internal/model"
)

// Filter narrows Range results. Empty fields match everything.
type Filter struct {
	Calendar string
	Category string
}

func (f Filter) match(o model.Occurrence) bool {
	if f.Calendar != "" && f.Calendar != o.Calendar {
		return false
	}
	if f.Category != "" && f.Category != o.Category {
		return false
	}
	return true
}

// Stats summarizes the index.
type Stats struct {
	Events      int       `json:"events"`
	Occurrences int       `json:"occurrences"`
	Truncated   int       `json:"truncated"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type entry struct {
	event       model.Event
	occurrences []model.Occurrence
	truncated   bool
}

// Index holds, per event, the definition and its expanded occurrences.
// All methods are safe for concurrent use.
type Index struct {
	mu      sync.RWMutex
	entries map[string]*entry
	total   int
	updated time.Time
}

// New creates an empty index.
func New() *Index {
	return &Index{entries: make(map[string]*entry)}
}

// Replace swaps in the occurrences of ev. Occurrences are kept sorted by
// start time.
func (s *Index) Replace(ev model.Event, occurrences []model.Occurrence, truncated bool) {
	sorted := make([]model.Occurrence, len(occurrences))
	copy(sorted, occurrences)
	sortOccurrences(sorted)

	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.entries[ev.ID]; ok {
		s.total -= len(old.occurrences)
	}
	s.entries[ev.ID] = &entry{event: ev, occurrences: sorted, truncated: truncated}
	s.total += len(sorted)
	s.touch()
}

// Delete removes an event. It reports whether the event was present.
func (s *Index) Delete(eventID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	old, ok := s.entries[eventID]
	if !ok {
		return false
	}
	s.total -= len(old.occurrences)
	delete(s.entries, eventID)
	s.touch()
	return true
}

// Retain deletes every event whose ID is not in keep and returns how many
// were removed.
func (s *Index) Retain(keep map[string]bool) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, e := range s.entries {
		if keep[id] {
			continue
		}
		s.total -= len(e.occurrences)
		delete(s.entries, id)
		removed++
	}
	if removed > 0 {
		s.touch()
	}
	return removed
}

// Range returns occurrences overlapping [from, to) that match f, ordered
// by start time. A zero-length occurrence at from is included.
func (s *Index) Range(from, to time.Time, f Filter) []model.Occurrence {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Occurrence, 0)
	for _, e := range s.entries {
		for _, o := range e.occurrences {
			if !o.Start.Before(to) {
				// Sorted by start; nothing later overlaps.
				break
			}
			if o.End.After(from) || o.Start.Equal(from) {
				if f.match(o) {
					out = append(out, o)
				}
			}
		}
	}
	sortOccurrences(out)
	return out
}

// ForEvent returns the occurrences of one event, or nil if unknown.
func (s *Index) ForEvent(eventID string) []model.Occurrence {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[eventID]
	if !ok {
		return nil
	}
	out := make([]model.Occurrence, len(e.occurrences))
	copy(out, e.occurrences)
	return out
}

// Event returns the stored definition of one event.
func (s *Index) Event(eventID string) (model.Event, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[eventID]
	if !ok {
		return model.Event{}, false
	}
	return e.event, true
}

// Events returns all stored definitions ordered by ID.
func (s *Index) Events() []model.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Event, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e.event)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Stats reports index totals.
func (s *Index) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Stats{Events: len(s.entries), Occurrences: s.total, UpdatedAt: s.updated}
	for _, e := range s.entries {
		if e.truncated {
			st.Truncated++
		}
	}
	return st
}

// touch must be called with mu held for writing.
func (s *Index) touch() {
	s.updated = time.Now().UTC()
	metrics.SetIndexSize(len(s.entries), s.total)
}

func sortOccurrences(occ []model.Occurrence) {
	sort.SliceStable(occ, func(i, j int) bool {
		if !occ[i].Start.Equal(occ[j].Start) {
			return occ[i].Start.Before(occ[j].Start)
		}
		return occ[i].InstanceKey < occ[j].InstanceKey
	})
}
