package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	// ListingsDiscoveredTotal counts raw search hits returned by the search collaborator.
	ListingsDiscoveredTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "productscout",
		Subsystem: "discovery",
		Name:      "listings_discovered_total",
		Help:      "Total number of raw listings returned by search queries.",
	})

	// ListingsFilteredTotal counts relevance filter outcomes, labeled accepted|rejected.
	ListingsFilteredTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "productscout",
		Subsystem: "discovery",
		Name:      "listings_filtered_total",
		Help:      "Relevance filter decisions, labeled by outcome.",
	}, []string{"outcome"})

	// ListingsPersistedTotal counts persistence outcomes, labeled created|existing|failed.
	ListingsPersistedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "productscout",
		Subsystem: "discovery",
		Name:      "listings_persisted_total",
		Help:      "Persistence outcomes for surviving listings.",
	}, []string{"result"})

	SearchErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "productscout",
		Subsystem: "discovery",
		Name:      "search_errors_total",
		Help:      "Total number of failed or timed out search calls.",
	})

	// AnalysesTotal counts analyses by recommendation, including error.
	AnalysesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "productscout",
		Subsystem: "analysis",
		Name:      "analyses_total",
		Help:      "Product analyses, labeled by recommendation.",
	}, []string{"recommendation"})

	// CatalogOperationsTotal counts publish/unpublish calls by result.
	CatalogOperationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "productscout",
		Subsystem: "catalog",
		Name:      "operations_total",
		Help:      "Catalog platform operations, labeled by action and result.",
	}, []string{"action", "result"})

	StageDurationSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "productscout",
		Subsystem: "pipeline",
		Name:      "stage_duration_seconds",
		Help:      "Wall time of each pipeline stage.",
		Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
	}, []string{"stage"})

	RunsInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "productscout",
		Subsystem: "pipeline",
		Name:      "runs_in_flight",
		Help:      "Number of pipeline runs currently executing.",
	})
)

// Register registers the collectors with the default Prometheus registry.
// Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			ListingsDiscoveredTotal,
			ListingsFilteredTotal,
			ListingsPersistedTotal,
			SearchErrorsTotal,
			AnalysesTotal,
			CatalogOperationsTotal,
			StageDurationSeconds,
			RunsInFlight,
		)
	})
}
