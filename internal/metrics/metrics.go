// Package metrics collects and exposes Prometheus metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector registers and records the application's Prometheus metrics.
// Consumers depend on the narrow slice of its methods they call, so tests
// can substitute counters with no registry at all.
type Collector struct {
	logins             prometheus.Counter
	loginFailures      *prometheus.CounterVec
	tokenFailures      *prometheus.CounterVec
	securityEvents     *prometheus.CounterVec
	keyRefreshes       *prometheus.CounterVec
	sessionRevocations prometheus.Counter
	httpRequests       *prometheus.CounterVec
	httpDuration       *prometheus.HistogramVec
}

// NewCollector creates a Collector and registers its metrics with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		logins: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "endurely_logins_total",
			Help: "Completed sign-ins.",
		}),
		loginFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "endurely_login_failures_total",
			Help: "Login attempts that failed, by stage of the flow.",
		}, []string{"stage"}),
		tokenFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "endurely_token_validation_failures_total",
			Help: "ID token validations that failed, by reason.",
		}, []string{"reason"}),
		securityEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "endurely_security_events_total",
			Help: "Security-relevant denials, by kind.",
		}, []string{"kind"}),
		keyRefreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "endurely_key_refreshes_total",
			Help: "Signing key set refreshes, by outcome.",
		}, []string{"outcome"}),
		sessionRevocations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "endurely_session_revocations_total",
			Help: "Sessions revoked by logout.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "endurely_http_requests_total",
			Help: "HTTP requests served, by method, route and status code.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "endurely_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds, by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
	}

	reg.MustRegister(
		c.logins,
		c.loginFailures,
		c.tokenFailures,
		c.securityEvents,
		c.keyRefreshes,
		c.sessionRevocations,
		c.httpRequests,
		c.httpDuration,
	)

	return c
}

// RecordLogin counts a completed sign-in.
func (c *Collector) RecordLogin() {
	c.logins.Inc()
}

// RecordLoginFailure counts a failed login attempt. The stage names the step
// that rejected it, such as "state" or "exchange".
func (c *Collector) RecordLoginFailure(stage string) {
	c.loginFailures.WithLabelValues(stage).Inc()
}

// RecordTokenValidationFailure counts a rejected ID token by reason.
func (c *Collector) RecordTokenValidationFailure(reason string) {
	c.tokenFailures.WithLabelValues(reason).Inc()
}

// RecordSecurityEvent counts a security-relevant denial by kind.
func (c *Collector) RecordSecurityEvent(kind string) {
	c.securityEvents.WithLabelValues(kind).Inc()
}

// RecordKeyRefresh counts one signing key set refresh by outcome.
func (c *Collector) RecordKeyRefresh(outcome string) {
	c.keyRefreshes.WithLabelValues(outcome).Inc()
}

// RecordSessionRevocation counts a session revoked by logout.
func (c *Collector) RecordSessionRevocation() {
	c.sessionRevocations.Inc()
}

// RecordRequest counts a served HTTP request and observes its latency.
func (c *Collector) RecordRequest(method, route string, status int, duration time.Duration) {
	c.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	c.httpDuration.WithLabelValues(route).Observe(duration.Seconds())
}

// Handler returns the HTTP handler that serves the metrics for scraping.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
