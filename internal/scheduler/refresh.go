package scheduler

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io/fs"
	"sync"
	"time"

	"evcal/internal/config"
	"evcal/internal/ics"
	appLog "evcal/internal/log"
	"evcal/internal/metrics"
	"evcal/internal/model"
	"evcal/internal/recurrence"
	"evcal/internal/store"
)

// Summary describes one refresh run.
type Summary struct {
	Events          int
	Occurrences     int
	Removed         int
	TruncatedEvents []string
	FetchErrors     int
	Duration        time.Duration
}

// Refresher rebuilds the occurrence index from the event catalog and the
// ICS subscriptions.
type Refresher struct {
	cfg     *config.Config
	engine  *recurrence.Engine
	fetcher *ics.Fetcher
	index   *store.Index

	// Serializes runs; cron and manual triggers may overlap.
	mu sync.Mutex
}

// NewRefresher wires a Refresher. fetcher may be nil when no subscriptions
// are configured.
func NewRefresher(cfg *config.Config, engine *recurrence.Engine, fetcher *ics.Fetcher, index *store.Index) *Refresher {
	return &Refresher{cfg: cfg, engine: engine, fetcher: fetcher, index: index}
}

// Refresh loads every event, expands it and replaces its entry in the index.
// Events no longer present are removed. A catalog that fails to decode
// aborts the run and leaves the index untouched; failing subscriptions
// only drop their own events.
func (r *Refresher) Refresh(ctx context.Context) (Summary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	began := time.Now()

	events, err := r.loadCatalog()
	if err != nil {
		metrics.ObserveRefresh(false)
		return Summary{}, err
	}

	imported, fetchErrs := r.loadSubscriptions(ctx)
	events = append(events, imported...)

	var sum Summary
	sum.FetchErrors = fetchErrs

	keep := make(map[string]bool, len(events))
	for _, ev := range events {
		if keep[ev.ID] {
			appLog.Warn("duplicate event id; keeping first definition", "event", ev.ID, "source", ev.SourceID)
			continue
		}
		keep[ev.ID] = true

		res := r.engine.Expand(ev)
		r.index.Replace(ev, res.Occurrences, res.Truncated)
		sum.Events++
		sum.Occurrences += len(res.Occurrences)
		if res.Truncated {
			sum.TruncatedEvents = append(sum.TruncatedEvents, ev.ID)
		}
	}
	sum.Removed = r.index.Retain(keep)
	sum.Duration = time.Since(began)

	if len(sum.TruncatedEvents) > 0 {
		appLog.Warn("refresh: occurrence cap reached", "events", sum.TruncatedEvents, "max_repeats", r.engine.MaxRepeats())
	}
	appLog.Info("refresh completed",
		"events", sum.Events,
		"occurrences", sum.Occurrences,
		"removed", sum.Removed,
		"fetch_errors", sum.FetchErrors,
		"duration", sum.Duration,
	)
	metrics.ObserveRefresh(true)
	return sum, nil
}

func (r *Refresher) loadCatalog() ([]model.Event, error) {
	if r.cfg.EventsFile == "" {
		return nil, nil
	}
	events, err := config.LoadCatalog(r.cfg.EventsFile)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			appLog.Warn("event catalog not found; continuing without it", "path", r.cfg.EventsFile)
			return nil, nil
		}
		return nil, err
	}
	return events, nil
}

func (r *Refresher) loadSubscriptions(ctx context.Context) ([]model.Event, int) {
	if r.fetcher == nil || len(r.cfg.ICS) == 0 {
		return nil, 0
	}

	results, errs := r.fetcher.FetchAll(ctx, Sources(r.cfg.ICS, r.engine.Location()))

	var events []model.Event
	failed := len(errs)
	for _, res := range results {
		parsed, err := ics.ParseICS(r.engine, res.Source, res.Body)
		if err != nil {
			appLog.Error("ics parse failed", err, "id", res.Source.ID)
			failed++
			continue
		}
		events = append(events, parsed...)
	}
	return events, failed
}

// Sources maps configured subscriptions onto fetch sources. A missing ID
// falls back to a hash of the URL.
func Sources(subs []config.ICSConfig, loc *time.Location) []ics.Source {
	out := make([]ics.Source, 0, len(subs))
	for _, s := range subs {
		id := s.ID
		if id == "" {
			sum := sha256.Sum256([]byte(s.URL))
			id = hex.EncodeToString(sum[:4])
		}
		out = append(out, ics.Source{ID: id, URL: s.URL, Calendar: s.Calendar, Location: loc})
	}
	return out
}
