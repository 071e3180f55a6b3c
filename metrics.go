package auth

import "github.com/prometheus/client_golang/prometheus"

// Login outcomes reported to Metrics.
const (
	OutcomeSuccess             = "success"
	OutcomeAccountNotFound     = "account_not_found"
	OutcomeAccountInactive     = "account_inactive"
	OutcomeInvalidCredentials  = "invalid_credentials"
	OutcomeAccountBlocked      = "account_blocked"
	OutcomeVerifierUnavailable = "verifier_unavailable"
	OutcomeInternalError       = "internal_error"
)

// Metrics is the observability channel of the guard.
type Metrics interface {
	LoginOutcome(outcome string)
	StatusTransition(from, to AccountStatus)
	AttemptLogFailure()
}

type noopMetrics struct{}

func (noopMetrics) LoginOutcome(string)                           {}
func (noopMetrics) StatusTransition(AccountStatus, AccountStatus) {}
func (noopMetrics) AttemptLogFailure()                            {}

// PrometheusMetrics implements Metrics with prometheus counters.
type PrometheusMetrics struct {
	logins      *prometheus.CounterVec
	transitions *prometheus.CounterVec
	logFailures prometheus.Counter
}

// NewPrometheusMetrics registers the guard counters on reg. A nil reg uses
// the default registerer.
func NewPrometheusMetrics(reg prometheus.Registerer) *PrometheusMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &PrometheusMetrics{
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "auth",
			Name:      "login_attempts_total",
			Help:      "Login attempts by outcome.",
		}, []string{"outcome"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "auth",
			Name:      "account_transitions_total",
			Help:      "Account status transitions applied by the lockout guard.",
		}, []string{"from", "to"}),
		logFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "auth",
			Name:      "attempt_log_write_failures_total",
			Help:      "Login attempts that could not be persisted.",
		}),
	}

	reg.MustRegister(m.logins, m.transitions, m.logFailures)
	return m
}

func (m *PrometheusMetrics) LoginOutcome(outcome string) {
	m.logins.WithLabelValues(outcome).Inc()
}

func (m *PrometheusMetrics) StatusTransition(from, to AccountStatus) {
	m.transitions.WithLabelValues(from, to).Inc()
}

func (m *PrometheusMetrics) AttemptLogFailure() {
	m.logFailures.Inc()
}

func normalizeMetrics(m Metrics) Metrics {
	if m == nil {
		return noopMetrics{}
	}
	return m
}
