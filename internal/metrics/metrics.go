package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	// Registry is the dedicated Prometheus registry for the service.
	Registry = prometheus.NewRegistry()

	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "http_requests_total", Help: "Total HTTP requests."},
		[]string{"method", "path", "status"},
	)
	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "http_request_duration_seconds", Help: "HTTP request duration in seconds.", Buckets: prometheus.DefBuckets},
		[]string{"method", "path", "status"},
	)

	// ProviderCalls counts directions provider calls by operation and outcome (ok, retry_ok, error).
	ProviderCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "directions_provider_calls_total", Help: "Directions provider calls by operation and outcome."},
		[]string{"op", "outcome"},
	)
	ProviderLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "directions_provider_latency_ms", Help: "Directions provider latency in ms.", Buckets: []float64{25, 50, 100, 250, 500, 1000, 2500, 5000, 10000}},
		[]string{"op"},
	)
	TravelCache = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "travel_time_cache_total", Help: "Travel time cache lookups by result."},
		[]string{"result"},
	)

	Assignments = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "technician_assignments_total", Help: "Assignment decisions by confidence."},
		[]string{"confidence"},
	)
	RouteOptimizations = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "route_optimizations_total", Help: "Route optimizations by method."},
		[]string{"method"},
	)
	// DegradedEvents counts fallbacks caused by provider failures, not by a missing provider.
	DegradedEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "scheduling_degraded_events_total", Help: "Fallbacks to the geo estimator after provider failures."},
		[]string{"op"},
	)
	BatchItems = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "batch_items_total", Help: "Batch work items by operation and status."},
		[]string{"op", "status"},
	)
)

var regOnce sync.Once

// RegisterDefault registers all collectors on Registry once.
func RegisterDefault() {
	regOnce.Do(func() {
		Registry.MustRegister(HTTPRequests)
		Registry.MustRegister(HTTPDuration)
		Registry.MustRegister(ProviderCalls)
		Registry.MustRegister(ProviderLatency)
		Registry.MustRegister(TravelCache)
		Registry.MustRegister(Assignments)
		Registry.MustRegister(RouteOptimizations)
		Registry.MustRegister(DegradedEvents)
		Registry.MustRegister(BatchItems)
		Registry.MustRegister(collectors.NewGoCollector())
		Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
}
