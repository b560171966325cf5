package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry is the dedicated registry exposed on /metrics.
	Registry = prometheus.NewRegistry()

	// OptimizerRuns counts optimization runs by strategy and outcome status.
	OptimizerRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "optimizer_runs_total", Help: "Optimization runs by strategy and status."},
		[]string{"strategy", "status"},
	)
	// OptimizerBatches counts remote sequencing batches by result (ok, degraded).
	OptimizerBatches = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "optimizer_batches_total", Help: "Remote sequencing batches by result."},
		[]string{"result"},
	)
	// RemoteCallDuration records external API latency per operation.
	RemoteCallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "remote_call_duration_seconds", Help: "External API call duration in seconds.", Buckets: prometheus.DefBuckets},
		[]string{"op"},
	)
	// HTTPRequests counts requests by method and status.
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "http_requests_total", Help: "Total HTTP requests."},
		[]string{"method", "status"},
	)
	// HTTPDuration records request durations in seconds.
	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "http_request_duration_seconds", Help: "HTTP request duration in seconds.", Buckets: prometheus.DefBuckets},
		[]string{"method"},
	)
)

var regOnce sync.Once

// Register adds all collectors to Registry. Safe to call more than once.
func Register() {
	regOnce.Do(func() {
		Registry.MustRegister(OptimizerRuns)
		Registry.MustRegister(OptimizerBatches)
		Registry.MustRegister(RemoteCallDuration)
		Registry.MustRegister(HTTPRequests)
		Registry.MustRegister(HTTPDuration)
		Registry.MustRegister(collectors.NewGoCollector())
		Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
}

// Handler serves the registry in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}
