package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Metrics holds all Prometheus metric collectors for the EmbedGate service.
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics.
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Embed admission metrics.
	AdmissionsTotal          *prometheus.CounterVec
	RateLimitRejectionsTotal *prometheus.CounterVec
	QuotaRejectionsTotal     prometheus.Counter

	// Retrieval metrics.
	RetrievalDuration    prometheus.Histogram
	RetrievalErrorsTotal prometheus.Counter

	// Analytics collector metrics.
	CollectorBufferSize   prometheus.Gauge
	CollectorFlushesTotal *prometheus.CounterVec
	CollectorEventsTotal  prometheus.Counter

	// Auth metrics.
	AuthFailuresTotal  *prometheus.CounterVec
	AuthSuccessesTotal *prometheus.CounterVec

	// Server lifecycle.
	ServerStartTime prometheus.Gauge
}

// New creates and registers all Prometheus metrics on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,

		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "embedgate_http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"kind", "method", "path_pattern", "status_code"}),

		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "embedgate_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"kind", "method", "path_pattern"}),

		AdmissionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "embedgate_embed_admissions_total",
			Help: "Total embed admission decisions by result code.",
		}, []string{"code", "degraded"}),

		RateLimitRejectionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "embedgate_ratelimit_rejections_total",
			Help: "Total number of rate limit rejections.",
		}, []string{"limiter_type", "scope"}),

		QuotaRejectionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "embedgate_quota_rejections_total",
			Help: "Total number of monthly quota rejections.",
		}),

		RetrievalDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "embedgate_retrieval_duration_seconds",
			Help:    "Retrieval query duration in seconds.",
			Buckets: prometheus.DefBuckets,
		}),

		RetrievalErrorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "embedgate_retrieval_errors_total",
			Help: "Total number of failed retrieval queries.",
		}),

		CollectorBufferSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "embedgate_collector_buffer_size",
			Help: "Current number of buffered analytics events.",
		}),

		CollectorFlushesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "embedgate_collector_flushes_total",
			Help: "Total number of collector flushes.",
		}, []string{"status"}),

		CollectorEventsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "embedgate_collector_events_total",
			Help: "Total number of analytics events recorded.",
		}),

		AuthFailuresTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "embedgate_auth_failures_total",
			Help: "Total number of authentication failures.",
		}, []string{"auth_type"}),

		AuthSuccessesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "embedgate_auth_successes_total",
			Help: "Total number of successful authentications.",
		}, []string{"auth_type"}),

		ServerStartTime: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "embedgate_server_start_time_seconds",
			Help: "Unix timestamp when the server started.",
		}),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.AdmissionsTotal,
		m.RateLimitRejectionsTotal,
		m.QuotaRejectionsTotal,
		m.RetrievalDuration,
		m.RetrievalErrorsTotal,
		m.CollectorBufferSize,
		m.CollectorFlushesTotal,
		m.CollectorEventsTotal,
		m.AuthFailuresTotal,
		m.AuthSuccessesTotal,
		m.ServerStartTime,
	)

	m.ServerStartTime.Set(float64(time.Now().Unix()))

	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	return m
}

// Registry returns the private Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RegisterDBPoolCollector registers a custom DB pool stats collector.
func (m *Metrics) RegisterDBPoolCollector(statFunc DBPoolStatFunc) {
	m.registry.MustRegister(NewDBPoolCollector(statFunc))
}

// IncAdmission counts one embed admission decision. code is "valid" for
// admitted requests, the denial code otherwise.
func (m *Metrics) IncAdmission(code string, degraded bool) {
	m.AdmissionsTotal.WithLabelValues(code, fmt.Sprintf("%t", degraded)).Inc()
}

// IncRateLimitRejection increments the rate limit rejection counter.
func (m *Metrics) IncRateLimitRejection(limiterType, scope string) {
	m.RateLimitRejectionsTotal.WithLabelValues(limiterType, scope).Inc()
}

// IncQuotaRejection increments the monthly quota rejection counter.
func (m *Metrics) IncQuotaRejection() {
	m.QuotaRejectionsTotal.Inc()
}

// ObserveRetrievalDuration records one retrieval query duration.
func (m *Metrics) ObserveRetrievalDuration(seconds float64) {
	m.RetrievalDuration.Observe(seconds)
}

// IncRetrievalError increments the retrieval failure counter.
func (m *Metrics) IncRetrievalError() {
	m.RetrievalErrorsTotal.Inc()
}

// IncAuthFailure increments the auth failure counter for the given auth type.
func (m *Metrics) IncAuthFailure(authType string) {
	m.AuthFailuresTotal.WithLabelValues(authType).Inc()
}

// IncAuthSuccess increments the auth success counter for the given auth type.
func (m *Metrics) IncAuthSuccess(authType string) {
	m.AuthSuccessesTotal.WithLabelValues(authType).Inc()
}

// CollectorInstrument adapts the collector metrics to the analytics
// collector's instrument hook.
type CollectorInstrument struct {
	m *Metrics
}

// CollectorInstrument returns the analytics collector metrics sink.
func (m *Metrics) CollectorInstrument() *CollectorInstrument {
	return &CollectorInstrument{m: m}
}

// EventRecorded counts one buffered event and tracks the buffer depth.
func (ci *CollectorInstrument) EventRecorded(bufferSize int) {
	ci.m.CollectorEventsTotal.Inc()
	ci.m.CollectorBufferSize.Set(float64(bufferSize))
}

// Flushed counts one flush by outcome and resets the buffer gauge.
func (ci *CollectorInstrument) Flushed(count int, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	ci.m.CollectorFlushesTotal.WithLabelValues(status).Inc()
	ci.m.CollectorBufferSize.Set(0)
}
