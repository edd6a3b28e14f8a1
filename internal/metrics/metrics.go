package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Login outcomes.
const (
	OutcomeSuccess     = "success"
	OutcomeInvalid     = "invalid_credentials"
	OutcomeLocked      = "locked"
	OutcomeDeactivated = "deactivated"
	OutcomeRateLimited = "rate_limited"
	OutcomeError       = "error"
)

// Metrics holds the portal's collectors on a private registry.
type Metrics struct {
	registry          *prometheus.Registry
	loginAttempts     *prometheus.CounterVec
	lockouts          *prometheus.CounterVec
	sessionRejections *prometheus.CounterVec
	hashDuration      prometheus.Histogram
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		loginAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "campus_portal",
			Name:      "login_attempts_total",
			Help:      "Login attempts by role and outcome.",
		}, []string{"role", "outcome"}),
		lockouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "campus_portal",
			Name:      "account_lockouts_total",
			Help:      "Accounts locked after repeated failed logins.",
		}, []string{"role"}),
		sessionRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "campus_portal",
			Name:      "session_rejections_total",
			Help:      "Requests rejected by the session middleware.",
		}, []string{"reason"}),
		hashDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "campus_portal",
			Name:      "password_verify_seconds",
			Help:      "Time spent verifying passwords during login.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
		}),
	}

	m.registry.MustRegister(
		m.loginAttempts,
		m.lockouts,
		m.sessionRejections,
		m.hashDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) LoginAttempt(role, outcome string) {
	m.loginAttempts.WithLabelValues(role, outcome).Inc()
}

func (m *Metrics) Lockout(role string) {
	m.lockouts.WithLabelValues(role).Inc()
}

func (m *Metrics) SessionRejected(reason string) {
	m.sessionRejections.WithLabelValues(reason).Inc()
}

func (m *Metrics) ObserveVerify(seconds float64) {
	m.hashDuration.Observe(seconds)
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
