package metrics

import (
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTPMetrics instruments inbound HTTP traffic.
type HTTPMetrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

func NewHTTPMetrics() *HTTPMetrics {
	return &HTTPMetrics{
		requests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "agnuslink_http_requests_total",
			Help: "Total HTTP requests by method, route and status code.",
		}, []string{"method", "route", "status_code"}),
		duration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "agnuslink_http_request_duration_seconds",
			Help:    "HTTP request latency by method and route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

// GinMiddleware records request counts and latency.
func GinMiddleware(m *HTTPMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if strings.TrimSpace(route) == "" {
			route = "unknown"
		}
		m.requests.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		m.duration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}

// Metrics exposes application-level instruments.
type Metrics struct {
	commissionsCreated    *prometheus.CounterVec
	payoutRequests        *prometheus.CounterVec
	leadEvents            *prometheus.CounterVec
	onboardingTransitions *prometheus.CounterVec
}

func New() *Metrics {
	return &Metrics{
		commissionsCreated: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "agnuslink_commissions_created_total",
			Help: "Commission records created by commission type.",
		}, []string{"commission_type"}),
		payoutRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "agnuslink_payout_requests_total",
			Help: "Payout requests by outcome.",
		}, []string{"outcome"}),
		leadEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "agnuslink_lead_events_total",
			Help: "Lead status change events processed, by new status.",
		}, []string{"status"}),
		onboardingTransitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "agnuslink_onboarding_transitions_total",
			Help: "Onboarding stage transitions by target stage.",
		}, []string{"to_stage"}),
	}
}

func (m *Metrics) RecordCommission(commissionType string) {
	if m == nil {
		return
	}
	m.commissionsCreated.WithLabelValues(commissionType).Inc()
}

func (m *Metrics) RecordPayoutRequest(outcome string) {
	if m == nil {
		return
	}
	m.payoutRequests.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RecordLeadEvent(status string) {
	if m == nil {
		return
	}
	m.leadEvents.WithLabelValues(status).Inc()
}

func (m *Metrics) RecordOnboardingTransition(toStage string) {
	if m == nil {
		return
	}
	m.onboardingTransitions.WithLabelValues(toStage).Inc()
}
