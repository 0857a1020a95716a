package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/FleetingTimes/nor-crawler/internal/model"
)

// Metrics holds the Prometheus collectors for one crawler process. Using a
// struct with an explicit registerer instead of package globals keeps tests
// from tripping over duplicate registration.
type Metrics struct {
	FetchesTotal  *prometheus.CounterVec
	RetriesTotal  prometheus.Counter
	FetchDuration *prometheus.HistogramVec
	InFlight      prometheus.Gauge
	QueueDepth    prometheus.Gauge
	OpenCircuits  prometheus.Gauge
}

// New registers the crawler's collectors with reg and returns them. Pass
// prometheus.DefaultRegisterer outside of tests.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		FetchesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "norcrawl_fetches_total",
			Help: "Fetch attempts by terminal classification.",
		}, []string{"class"}),
		RetriesTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "norcrawl_retries_total",
			Help: "Tasks rescheduled after a retryable failure.",
		}),
		FetchDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "norcrawl_fetch_duration_seconds",
			Help:    "Wall time of individual fetch attempts.",
			Buckets: prometheus.DefBuckets,
		}, []string{"class"}),
		InFlight: factory.NewGauge(prometheus.GaugeOpts{
			Name: "norcrawl_fetches_in_flight",
			Help: "Fetches currently dispatched to workers.",
		}),
		QueueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Name: "norcrawl_frontier_pending",
			Help: "Tasks queued in the frontier.",
		}),
		OpenCircuits: factory.NewGauge(prometheus.GaugeOpts{
			Name: "norcrawl_open_circuits",
			Help: "Domains whose circuit breaker is currently open.",
		}),
	}
}

// ObserveFetch records one completed fetch attempt.
func (m *Metrics) ObserveFetch(class model.FailureClass, seconds float64) {
	m.FetchesTotal.WithLabelValues(class.String()).Inc()
	m.FetchDuration.WithLabelValues(class.String()).Observe(seconds)
}
