package observ

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the collectors the service exports. A nil *Metrics is
// valid and records nothing, which keeps tests free of registry plumbing.
type Metrics struct {
	httpInFlight        prometheus.Gauge
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	deliveries  *prometheus.CounterVec
	escalations prometheus.Counter
	toggles     *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		httpInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "http_in_flight_requests",
			Help: "In-flight HTTP requests.",
		}),
		httpRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "route", "status"}),
		httpRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "actionhub_notification_deliveries_total",
			Help: "Notification delivery attempts by audience and outcome.",
		}, []string{"audience", "outcome"}),
		escalations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "actionhub_passive_escalations_total",
			Help: "Action Items moved from new to in_progress on read.",
		}),
		toggles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "actionhub_engagement_toggles_total",
			Help: "Flag and follow toggles by kind and resulting state.",
		}, []string{"kind", "state"}),
	}
	reg.MustRegister(
		m.httpInFlight, m.httpRequestsTotal, m.httpRequestDuration,
		m.deliveries, m.escalations, m.toggles,
	)
	return m
}

// GinMiddleware records request count, latency and in-flight requests,
// labelled by the matched route template rather than the raw path.
func (m *Metrics) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}
		m.httpInFlight.Inc()
		start := time.Now()

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())
		m.httpRequestDuration.WithLabelValues(c.Request.Method, route, status).Observe(time.Since(start).Seconds())
		m.httpRequestsTotal.WithLabelValues(c.Request.Method, route, status).Inc()
		m.httpInFlight.Dec()
	}
}

func (m *Metrics) Delivery(audience string, ok bool) {
	if m == nil {
		return
	}
	outcome := "failed"
	if ok {
		outcome = "sent"
	}
	m.deliveries.WithLabelValues(audience, outcome).Inc()
}

func (m *Metrics) Escalation() {
	if m == nil {
		return
	}
	m.escalations.Inc()
}

func (m *Metrics) Toggle(kind string, on bool) {
	if m == nil {
		return
	}
	m.toggles.WithLabelValues(kind, strconv.FormatBool(on)).Inc()
}
