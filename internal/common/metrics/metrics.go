package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	IntentsClassified = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assistant_intents_classified_total",
			Help: "Total number of user turns classified, by resulting intent",
		},
		[]string{"intent"},
	)

	DirectoryLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assistant_directory_lookups_total",
			Help: "Total number of recipient resolutions, by outcome",
		},
		[]string{"outcome"},
	)

	CatalogSearches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assistant_catalog_searches_total",
			Help: "Total number of catalog searches, by outcome",
		},
		[]string{"outcome"},
	)

	Settlements = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assistant_settlements_total",
			Help: "Total number of settlement submissions, by result",
		},
		[]string{"result"},
	)

	PendingSuperseded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "assistant_pending_superseded_total",
			Help: "Total number of pending transactions silently replaced by a newer intent",
		},
	)

	MessageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "assistant_message_duration_seconds",
			Help:    "End-to-end processing time of one user message",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"intent"},
	)
)
