// Package metrics exposes the console's own Prometheus counters: upstream
// admin API calls, view refreshes and live workspaces.
package metrics

import (
	"net/http"
	"regexp"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var numericSegment = regexp.MustCompile(`/\d+`)

// Metrics holds every collector on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	upstreamRequests *prometheus.CounterVec
	upstreamLatency  *prometheus.HistogramVec
	refreshes        *prometheus.CounterVec
	staleResponses   *prometheus.CounterVec
	workspaces       prometheus.Gauge
	wsClients        prometheus.Gauge
	syncRuns         *prometheus.CounterVec
}

// New registers the console collectors plus the Go and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		upstreamRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gwconsole_upstream_requests_total",
			Help: "Admin API calls by method, templated path and status code (0 on transport failure)",
		}, []string{"method", "path", "code"}),
		upstreamLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gwconsole_upstream_request_seconds",
			Help:    "Admin API call latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"}),
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gwconsole_view_refreshes_total",
			Help: "View refreshes by resource and outcome",
		}, []string{"resource", "outcome"}),
		staleResponses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gwconsole_view_stale_responses_total",
			Help: "Responses discarded because a newer refresh was already applied",
		}, []string{"resource"}),
		workspaces: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gwconsole_active_workspaces",
			Help: "Operator workspaces currently held in memory",
		}),
		wsClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gwconsole_websocket_clients",
			Help: "Connected live-update clients",
		}),
		syncRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gwconsole_gateway_sync_runs_total",
			Help: "Route table exports to the gateway database by outcome",
		}, []string{"outcome"}),
	}
	m.registry.MustRegister(
		m.upstreamRequests,
		m.upstreamLatency,
		m.refreshes,
		m.staleResponses,
		m.workspaces,
		m.wsClients,
		m.syncRuns,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveRequest records one admin API call.
func (m *Metrics) ObserveRequest(method, path string, status int, elapsed time.Duration) {
	tmpl := TemplatePath(path)
	m.upstreamRequests.WithLabelValues(method, tmpl, strconv.Itoa(status)).Inc()
	m.upstreamLatency.WithLabelValues(method, tmpl).Observe(elapsed.Seconds())
}

// ObserveRefresh records one applied view refresh.
func (m *Metrics) ObserveRefresh(resource string, ok bool) {
	outcome := "success"
	if !ok {
		outcome = "failure"
	}
	m.refreshes.WithLabelValues(resource, outcome).Inc()
}

// ObserveStale records one discarded out-of-order response.
func (m *Metrics) ObserveStale(resource string) {
	m.staleResponses.WithLabelValues(resource).Inc()
}

// SetWorkspaces sets the live workspace gauge.
func (m *Metrics) SetWorkspaces(n int) { m.workspaces.Set(float64(n)) }

// SetWebSocketClients sets the connected client gauge.
func (m *Metrics) SetWebSocketClients(n int) { m.wsClients.Set(float64(n)) }

// ObserveSync records one gateway database export.
func (m *Metrics) ObserveSync(err error) {
	if err != nil {
		m.syncRuns.WithLabelValues("failure").Inc()
		return
	}
	m.syncRuns.WithLabelValues("success").Inc()
}

// TemplatePath replaces numeric path segments with :id so label
// cardinality stays bounded.
func TemplatePath(path string) string {
	return numericSegment.ReplaceAllString(path, "/:id")
}
