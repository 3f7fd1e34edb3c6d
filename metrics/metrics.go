// Package metrics owns the Prometheus collectors for the store and the HTTP layer.
// All methods are safe to call on a nil *Metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Save outcomes.
const (
	OutcomeAccepted = "accepted"
	OutcomeRejected = "rejected"
	OutcomeConflict = "conflict"
	OutcomeFailed   = "failed"
)

// Metrics groups the collectors registered on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	saves           *prometheus.CounterVec
	backupsCreated  prometheus.Counter
	backupsPruned   prometheus.Counter
	sidecarRefresh  *prometheus.CounterVec
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

// New creates the collectors and registers them, along with the Go and process
// collectors, on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		saves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "zinga_store_saves_total",
			Help: "Document writes by outcome.",
		}, []string{"outcome"}),
		backupsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "zinga_backups_created_total",
			Help: "Timestamped backups written before a document write.",
		}),
		backupsPruned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "zinga_backups_pruned_total",
			Help: "Timestamped backups removed by the retention sweep.",
		}),
		sidecarRefresh: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "zinga_sidecar_refresh_total",
			Help: "Permanent backup refreshes by result.",
		}, []string{"result"}),
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "zinga_http_requests_total",
			Help: "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "zinga_http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
	m.registry.MustRegister(
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		m.saves, m.backupsCreated, m.backupsPruned, m.sidecarRefresh,
		m.requestsTotal, m.requestDuration,
	)
	return m
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) ObserveSave(outcome string) {
	if m == nil {
		return
	}
	m.saves.WithLabelValues(outcome).Inc()
}

func (m *Metrics) BackupCreated() {
	if m == nil {
		return
	}
	m.backupsCreated.Inc()
}

func (m *Metrics) BackupsPruned(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.backupsPruned.Add(float64(n))
}

func (m *Metrics) SidecarRefreshed(ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "error"
	}
	m.sidecarRefresh.WithLabelValues(result).Inc()
}

// Middleware records request counts and latency keyed by the matched route
// template, so path parameters do not explode label cardinality.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.requestsTotal.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		m.requestDuration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
