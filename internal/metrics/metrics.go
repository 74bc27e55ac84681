// Package metrics holds the Prometheus collectors for console activity.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once     sync.Once
	registry *Registry
)

// Registry holds all console metrics.
type Registry struct {
	// Management API
	MgmtRequests *prometheus.CounterVec
	MgmtLatency  *prometheus.HistogramVec

	// Workflows
	CloneOutcomes *prometheus.CounterVec
	Refreshes     *prometheus.CounterVec
	Gateways      prometheus.Gauge
}

// Get returns the global metrics registry, creating it if necessary.
func Get() *Registry {
	once.Do(func() {
		registry = newRegistry()
	})
	return registry
}

func newRegistry() *Registry {
	r := &Registry{}

	r.MgmtRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gwconsole_mgmt_requests_total",
		Help: "Management API requests by operation and outcome",
	}, []string{"operation", "outcome"})

	r.MgmtLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gwconsole_mgmt_request_duration_seconds",
		Help:    "Management API request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})

	r.CloneOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gwconsole_clone_outcomes_total",
		Help: "Gateway clone workflow results",
	}, []string{"outcome"})

	r.Refreshes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gwconsole_gateway_refreshes_total",
		Help: "Gateway collection refreshes by result (applied, superseded, failed)",
	}, []string{"result"})

	r.Gateways = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gwconsole_gateways",
		Help: "Gateways in the last applied collection",
	})

	return r
}

// Handler serves the default Prometheus registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
