package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors for a crossfire map run.
type Metrics struct {
	// API traffic.
	APIRequests *prometheus.CounterVec   // labels: endpoint={login,states,occurrences}, code={<status>,error}
	APIDuration *prometheus.HistogramVec // labels: endpoint
	// RegionFetches counts per-region occurrence requests. labels: outcome={ok,skipped}
	RegionFetches *prometheus.CounterVec

	IncidentsFetched prometheus.Counter
	RowsFlattened    prometheus.Counter
	UnmappedNames    prometheus.Gauge
	AmbiguousNames   prometheus.Gauge
	MaxStateCount    prometheus.Gauge

	RowsPublished  *prometheus.CounterVec // labels: topic
	PublishErrors  *prometheus.CounterVec // labels: topic
	RunDuration    prometheus.Histogram
	LastRunSuccess prometheus.Gauge
}

// NewMetrics creates and registers all run metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics(true)

	prometheus.MustRegister(
		m.APIRequests,
		m.APIDuration,
		m.RegionFetches,
		m.IncidentsFetched,
		m.RowsFlattened,
		m.UnmappedNames,
		m.AmbiguousNames,
		m.MaxStateCount,
		m.RowsPublished,
		m.PublishErrors,
		m.RunDuration,
		m.LastRunSuccess,
	)

	return m
}

// NewMetricsForTesting creates Metrics without registering them, so tests can
// build as many as they like without "already registered" panics.
func NewMetricsForTesting() *Metrics {
	return newMetrics(false)
}

func newMetrics(withHelp bool) *Metrics {
	help := func(s string) string {
		if withHelp {
			return s
		}
		return ""
	}

	return &Metrics{
		APIRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "crossfire",
			Name:      "api_requests_total",
			Help:      help("Fogo Cruzado API requests by endpoint and status code."),
		}, []string{"endpoint", "code"}),
		APIDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "crossfire",
			Name:      "api_request_duration_seconds",
			Help:      help("Fogo Cruzado API request duration in seconds."),
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"endpoint"}),
		RegionFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "crossfire",
			Name:      "region_fetch_total",
			Help:      help("Per-region occurrence requests by outcome."),
		}, []string{"outcome"}),
		IncidentsFetched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "crossfire",
			Name:      "incidents_fetched_total",
			Help:      help("Raw occurrences returned across all regions."),
		}),
		RowsFlattened: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "crossfire",
			Name:      "rows_flattened_total",
			Help:      help("Flat rows produced from raw occurrences."),
		}),
		UnmappedNames: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "crossfire",
			Name:      "unmapped_names",
			Help:      help("API state names with no matching boundary name in the last run."),
		}),
		AmbiguousNames: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "crossfire",
			Name:      "ambiguous_names",
			Help:      help("API state names matching more than one boundary name in the last run."),
		}),
		MaxStateCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "crossfire",
			Name:      "max_state_count",
			Help:      help("Highest per-state occurrence count in the last run."),
		}),
		RowsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "crossfire",
			Name:      "rows_published_total",
			Help:      help("Messages written to Kafka by topic."),
		}, []string{"topic"}),
		PublishErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "crossfire",
			Name:      "publish_errors_total",
			Help:      help("Failed Kafka publications by topic."),
		}, []string{"topic"}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "crossfire",
			Name:      "run_duration_seconds",
			Help:      help("Duration of a complete fetch-flatten-render run."),
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300},
		}),
		LastRunSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "crossfire",
			Name:      "last_run_success",
			Help:      help("1 when the last run rendered a map, 0 otherwise."),
		}),
	}
}
