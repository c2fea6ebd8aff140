package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the service collectors. Each instance owns its registry so tests can build many.
type Metrics struct {
	registry *prometheus.Registry

	// HTTP
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// database
	dbQueryDuration *prometheus.HistogramVec

	// alerts, relay, notifications
	alertsSubmitted  *prometheus.CounterVec
	alertsResolved   prometheus.Counter
	relayPublished   *prometheus.CounterVec
	notificationsOut *prometheus.CounterVec

	// rate limiting
	rateLimitAllow *prometheus.CounterVec
	rateLimitDeny  *prometheus.CounterVec
}

// NewMetrics registers every collector on a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{
		registry: reg,
		httpRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
		httpRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"}),
		dbQueryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation", "table"}),
		alertsSubmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sosbeacon_alerts_submitted_total",
			Help: "Alert submissions by result (created, replayed, rejected)",
		}, []string{"result"}),
		alertsResolved: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sosbeacon_alerts_resolved_total",
			Help: "Alerts moved from pending to resolved",
		}),
		relayPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sosbeacon_relay_events_total",
			Help: "Events handed to the realtime relay",
		}, []string{"event"}),
		notificationsOut: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sosbeacon_notifications_total",
			Help: "Email/SMS notifications by channel and result",
		}, []string{"channel", "result"}),
		rateLimitAllow: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rate_limit_allow_total",
			Help: "Allowed requests by rate limiter",
		}, []string{"route"}),
		rateLimitDeny: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rate_limit_deny_total",
			Help: "Denied requests by rate limiter",
		}, []string{"route"}),
	}

	reg.MustRegister(
		m.httpRequestsTotal, m.httpRequestDuration, m.dbQueryDuration,
		m.alertsSubmitted, m.alertsResolved, m.relayPublished, m.notificationsOut,
		m.rateLimitAllow, m.rateLimitDeny,
	)
	return m
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RecordHTTPRequest observes one served request.
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	m.httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	m.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordDBQuery observes one gorm statement.
func (m *Metrics) RecordDBQuery(operation, table string, duration time.Duration) {
	m.dbQueryDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
}

func (m *Metrics) AlertSubmitted(result string) { m.alertsSubmitted.WithLabelValues(result).Inc() }
func (m *Metrics) AlertResolved()               { m.alertsResolved.Inc() }
func (m *Metrics) RelayPublished(event string)  { m.relayPublished.WithLabelValues(event).Inc() }

func (m *Metrics) Notification(channel string, err error) {
	result := "sent"
	if err != nil {
		result = "failed"
	}
	m.notificationsOut.WithLabelValues(channel, result).Inc()
}

// OnAllow and OnDeny let Metrics observe the rate limiter.
func (m *Metrics) OnAllow(route string) { m.rateLimitAllow.WithLabelValues(route).Inc() }
func (m *Metrics) OnDeny(route string)  { m.rateLimitDeny.WithLabelValues(route).Inc() }
