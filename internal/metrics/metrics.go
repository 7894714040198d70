package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the service collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "contractor_ledger",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "contractor_ledger",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "contractor_ledger",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
		},
		[]string{"method", "path"},
	)

	ledgerOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "contractor_ledger",
			Subsystem: "ledger",
			Name:      "operations_total",
			Help:      "Total number of balance-mutating operations by outcome.",
		},
		[]string{"operation", "outcome"},
	)

	ledgerDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "contractor_ledger",
			Subsystem: "ledger",
			Name:      "operation_duration_seconds",
			Help:      "Duration of balance-mutating operations including lock waits.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
		},
		[]string{"operation"},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		ledgerOperations,
		ledgerDuration,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler exposes the registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

func RecordHTTPRequest(method, path string, status string, duration time.Duration) {
	if path == "" {
		path = "unmatched"
	}
	httpRequests.WithLabelValues(method, path, status).Inc()
	httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

func HTTPInFlightInc() { httpInFlight.Inc() }

func HTTPInFlightDec() { httpInFlight.Dec() }

func RecordLedgerOperation(operation, outcome string, duration time.Duration) {
	ledgerOperations.WithLabelValues(operation, outcome).Inc()
	ledgerDuration.WithLabelValues(operation).Observe(duration.Seconds())
}
