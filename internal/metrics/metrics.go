// Package metrics exposes Prometheus metrics for the ingestion pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "nordicwire"

var (
	CyclesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_total",
			Help:      "Ingestion cycles by outcome",
		},
		[]string{"status"},
	)

	CycleDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cycle_duration_seconds",
			Help:      "Duration of completed ingestion cycles in seconds",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
		},
	)

	// ArticlesTotal counts drafts per pipeline stage.
	ArticlesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "articles_total",
			Help:      "Articles by pipeline stage (fetched, dropped, unique, written)",
		},
		[]string{"stage"},
	)

	SourceFetchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_fetch_total",
			Help:      "Source fetches by source and outcome",
		},
		[]string{"source", "status"},
	)

	ExpiredDeletedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "expired_deleted_total",
			Help:      "Articles removed by the expiry sweep",
		},
	)

	EnrichmentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "enrichments_total",
			Help:      "Enrichment attempts by outcome",
		},
		[]string{"outcome"},
	)

	TranslationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "translations_total",
			Help:      "Translation calls by outcome",
		},
		[]string{"status"},
	)

	EventsPublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Article events handed to the broker by outcome",
		},
		[]string{"status"},
	)
)

// RecordCycle records a finished cycle.
func RecordCycle(status string, seconds float64, fetched, dropped, unique, written int) {
	CyclesTotal.WithLabelValues(status).Inc()
	CycleDuration.Observe(seconds)
	ArticlesTotal.WithLabelValues("fetched").Add(float64(fetched))
	ArticlesTotal.WithLabelValues("dropped").Add(float64(dropped))
	ArticlesTotal.WithLabelValues("unique").Add(float64(unique))
	ArticlesTotal.WithLabelValues("written").Add(float64(written))
}

func RecordSourceFetch(source string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	SourceFetchTotal.WithLabelValues(source, status).Inc()
}

func RecordEnrichment(outcome string) {
	EnrichmentsTotal.WithLabelValues(outcome).Inc()
}
