// Package metrics exposes Prometheus instrumentation for the dashboard.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the collectors of one process. Each instance owns its
// registry so tests can create as many as they like.
type Metrics struct {
	registry          *prometheus.Registry
	httpRequestsTotal *prometheus.CounterVec
	httpDuration      *prometheus.HistogramVec
	rateRefreshes     *prometheus.CounterVec
	rateLastSuccess   prometheus.Gauge
	liveReadings      prometheus.Counter
	liveBuffered      prometheus.Gauge
}

// New creates and registers all collectors
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		httpRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ampdash",
			Name:      "http_requests_total",
			Help:      "Total count of HTTP requests processed by route and status.",
		}, []string{"route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "ampdash",
			Name:      "http_request_duration_seconds",
			Help:      "Histogram of HTTP request durations by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
		rateRefreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ampdash",
			Name:      "exchange_rate_refreshes_total",
			Help:      "Exchange-rate refresh attempts by result.",
		}, []string{"result"}),
		rateLastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "ampdash",
			Name:      "exchange_rate_last_success_timestamp_seconds",
			Help:      "Unix time of the last successful exchange-rate refresh.",
		}),
		liveReadings: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ampdash",
			Name:      "live_readings_total",
			Help:      "Live readings accepted into the buffer.",
		}),
		liveBuffered: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "ampdash",
			Name:      "live_buffered_readings",
			Help:      "Readings currently held in the live buffer.",
		}),
	}

	m.registry.MustRegister(
		m.httpRequestsTotal,
		m.httpDuration,
		m.rateRefreshes,
		m.rateLastSuccess,
		m.liveReadings,
		m.liveBuffered,
		collectors.NewGoCollector(),
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveHTTP records one request
func (m *Metrics) ObserveHTTP(route string, status int, d time.Duration) {
	m.httpRequestsTotal.WithLabelValues(route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(route).Observe(d.Seconds())
}

// RateRefresh implements currency.Observer
func (m *Metrics) RateRefresh(ok bool, at time.Time) {
	if !ok {
		m.rateRefreshes.WithLabelValues("error").Inc()
		return
	}
	m.rateRefreshes.WithLabelValues("ok").Inc()
	m.rateLastSuccess.Set(float64(at.Unix()))
}

// LiveReading implements live.Observer
func (m *Metrics) LiveReading(buffered int) {
	m.liveReadings.Inc()
	m.liveBuffered.Set(float64(buffered))
}
