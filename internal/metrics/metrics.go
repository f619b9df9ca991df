// Package metrics exposes the relay's Prometheus instrumentation.
package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Upstream call results.
const (
	ResultOK          = "ok"
	ResultRejected    = "rejected"
	ResultUnavailable = "unavailable"
)

// Metrics owns a registry and every collector registered on it.
type Metrics struct {
	registry *prometheus.Registry

	upstreamCalls    *prometheus.CounterVec
	upstreamDuration *prometheus.HistogramVec
	guardDecisions   *prometheus.CounterVec
	httpRequests     *prometheus.CounterVec
}

// New creates a registry with Go and process collectors plus relay metrics.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		upstreamCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "linkrelay_upstream_requests_total",
			Help: "Upstream API calls by operation and result",
		}, []string{"op", "result"}),
		upstreamDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "linkrelay_upstream_request_duration_seconds",
			Help:    "Upstream API call latency in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"op"}),
		guardDecisions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "linkrelay_guard_decisions_total",
			Help: "Route guard decisions by path class and outcome",
		}, []string{"class", "outcome"}),
		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "linkrelay_http_requests_total",
			Help: "Relay HTTP requests by route, method and status",
		}, []string{"route", "method", "status"}),
	}
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveUpstream implements upstream.Observer.
func (m *Metrics) ObserveUpstream(op string, status int, err error, elapsed time.Duration) {
	result := ResultOK
	switch {
	case err != nil:
		result = ResultUnavailable
	case status < 200 || status >= 300:
		result = ResultRejected
	}
	m.upstreamCalls.WithLabelValues(op, result).Inc()
	m.upstreamDuration.WithLabelValues(op).Observe(elapsed.Seconds())
}

// ObserveGuard implements guard.Observer.
func (m *Metrics) ObserveGuard(class, outcome string) {
	if class == "" {
		class = "none"
	}
	m.guardDecisions.WithLabelValues(class, outcome).Inc()
}

// Middleware counts requests by matched route. Unmatched paths share one
// label so page URLs cannot explode cardinality.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.httpRequests.WithLabelValues(route, c.Request.Method, strconv.Itoa(c.Writer.Status())).Inc()
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
}
