// Package metrics exposes the pipeline's Prometheus instrumentation: HTTP
// request counts, bus event outcomes, bulk job outcomes, and the depth of
// the document-generation queue.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTPRequests counts requests per method, route pattern, and status.
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "certgra_http_requests_total",
		Help: "HTTP requests handled, by method, route and status code.",
	}, []string{"method", "route", "status"})

	// BusEvents counts bus deliveries per subject and outcome
	// (handled, dropped).
	BusEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "certgra_bus_events_total",
		Help: "Bus messages consumed, by subject and outcome.",
	}, []string{"subject", "outcome"})

	// BulkJobs counts processed bulk document jobs per terminal outcome.
	BulkJobs = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "certgra_bulk_jobs_total",
		Help: "Bulk document-generation jobs processed, by outcome.",
	}, []string{"outcome"})

	// DocsQueueDepth is the last sampled length of queue:docs:generate.
	DocsQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "certgra_docs_queue_depth",
		Help: "Pending payloads on the document-generation queue.",
	})
)

// Handler serves the default registry; mounted at /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}
