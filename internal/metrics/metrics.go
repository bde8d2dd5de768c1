// Package metrics exposes Prometheus collectors for the expansion engine,
// the occurrence index and the refresh job.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	occurrencesGenerated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "evcal_occurrence_dates_generated_total",
		Help: "Dates produced by the recurrence engine, by rule type",
	}, []string{"type"})

	expansionsTruncated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "evcal_expansions_truncated_total",
		Help: "Expansions stopped by the max repeats cap, by rule type",
	}, []string{"type"})

	indexedOccurrences = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "evcal_indexed_occurrences",
		Help: "Occurrences currently held by the occurrence index",
	})

	indexedEvents = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "evcal_indexed_events",
		Help: "Events currently held by the occurrence index",
	})

	refreshRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "evcal_refresh_runs_total",
		Help: "Refresh job runs, by result",
	}, []string{"result"})

	subscriptionFetchErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "evcal_subscription_fetch_errors_total",
		Help: "Failed ICS subscription fetches",
	})
)

func ObserveExpansion(ruleType string, dates int, truncated bool) {
	occurrencesGenerated.WithLabelValues(ruleType).Add(float64(dates))
	if truncated {
		expansionsTruncated.WithLabelValues(ruleType).Inc()
	}
}

func SetIndexSize(events, occurrences int) {
	indexedEvents.Set(float64(events))
	indexedOccurrences.Set(float64(occurrences))
}

func ObserveRefresh(ok bool) {
	if ok {
		refreshRuns.WithLabelValues("ok").Inc()
		return
	}
	refreshRuns.WithLabelValues("error").Inc()
}

func ObserveFetchErrors(n int) {
	subscriptionFetchErrors.Add(float64(n))
}
