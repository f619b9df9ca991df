package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// counterValue finds the counter in family name whose labels include want.
func counterValue(t *testing.T, m *Metrics, name string, want map[string]string) float64 {
	t.Helper()
	families, err := m.Registry().Gather()
	require.NoError(t, err)

	for _, family := range families {
		if family.GetName() != name {
			continue
		}
		for _, metric := range family.GetMetric() {
			if hasLabels(metric, want) {
				return metric.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func hasLabels(metric *dto.Metric, want map[string]string) bool {
	matched := 0
	for _, pair := range metric.GetLabel() {
		if v, ok := want[pair.GetName()]; ok && v == pair.GetValue() {
			matched++
		}
	}
	return matched == len(want)
}

func TestObserveUpstream(t *testing.T) {
	m := New()

	m.ObserveUpstream("GET /me", http.StatusOK, nil, 10*time.Millisecond)
	m.ObserveUpstream("GET /me", http.StatusUnauthorized, nil, time.Millisecond)
	m.ObserveUpstream("GET /me", 0, errors.New("refused"), time.Millisecond)
	m.ObserveUpstream("GET /me", http.StatusOK, nil, time.Millisecond)

	assert.Equal(t, 2.0, counterValue(t, m, "linkrelay_upstream_requests_total", map[string]string{"op": "GET /me", "result": ResultOK}))
	assert.Equal(t, 1.0, counterValue(t, m, "linkrelay_upstream_requests_total", map[string]string{"op": "GET /me", "result": ResultRejected}))
	assert.Equal(t, 1.0, counterValue(t, m, "linkrelay_upstream_requests_total", map[string]string{"op": "GET /me", "result": ResultUnavailable}))
}

func TestObserveGuard(t *testing.T) {
	m := New()

	m.ObserveGuard("protected", "redirect")
	m.ObserveGuard("protected", "redirect")
	m.ObserveGuard("", "excluded")

	assert.Equal(t, 2.0, counterValue(t, m, "linkrelay_guard_decisions_total", map[string]string{"class": "protected", "outcome": "redirect"}))
	assert.Equal(t, 1.0, counterValue(t, m, "linkrelay_guard_decisions_total", map[string]string{"class": "none", "outcome": "excluded"}))
}

func TestMiddlewareAndHandler(t *testing.T) {
	m := New()
	router := gin.New()
	router.Use(m.Middleware())
	router.GET("/api/links/:id", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	router.GET("/metrics", m.Handler())

	for _, path := range []string{"/api/links/1", "/api/links/2", "/nowhere"} {
		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	assert.Equal(t, 2.0, counterValue(t, m, "linkrelay_http_requests_total",
		map[string]string{"route": "/api/links/:id", "method": "GET", "status": "204"}))
	assert.Equal(t, 1.0, counterValue(t, m, "linkrelay_http_requests_total",
		map[string]string{"route": "unmatched", "status": "404"}))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, strings.Contains(rr.Body.String(), "linkrelay_http_requests_total"))
	assert.True(t, strings.Contains(rr.Body.String(), "go_goroutines"))
}
