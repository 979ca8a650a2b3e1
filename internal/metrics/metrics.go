// Package metrics owns the Prometheus collectors of the service.
package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/and161185/console-auth/internal/audit"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "console_auth"

// Metrics groups every collector on a private registry.
type Metrics struct {
	reg        *prometheus.Registry
	rateLimit  *prometheus.CounterVec
	events     *prometheus.CounterVec
	reqLatency *prometheus.HistogramVec
}

// New registers collectors, plus the Go and process collectors, on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		rateLimit: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ratelimit_decisions_total",
			Help:      "Rate limiter decisions by category and outcome.",
		}, []string{"category", "outcome"}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Security events by action and outcome.",
		}, []string{"action", "outcome"}),
		reqLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by method, route pattern and status.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}
	m.reg.MustRegister(
		m.rateLimit, m.events, m.reqLatency,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

// ObserveRateLimit counts a limiter decision.
func (m *Metrics) ObserveRateLimit(category, outcome string) {
	m.rateLimit.WithLabelValues(category, outcome).Inc()
}

// ObserveRequest records the latency of a finished request.
func (m *Metrics) ObserveRequest(method, route string, status int, d time.Duration) {
	m.reqLatency.WithLabelValues(method, route, strconv.Itoa(status)).Observe(d.Seconds())
}

// Record counts a security event; it satisfies audit.Recorder.
func (m *Metrics) Record(_ context.Context, ev audit.Event) error {
	m.events.WithLabelValues(ev.Action, ev.Outcome).Inc()
	return nil
}
