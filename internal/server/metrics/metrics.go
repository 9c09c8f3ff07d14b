// Package metrics exposes Prometheus instrumentation for the account
// state machines and the HTTP surface. Counters register with the default
// registry on package init.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Result labels shared by several counters.
const (
	ResultSuccess  = "success"
	ResultInvalid  = "invalid"
	ResultError    = "error"
	ResultConflict = "conflict"
)

// Outcome labels specific to one flow.
const (
	ResultInvalidCredentials = "invalid_credentials"
	ResultNotVerified        = "not_verified"
	ResultVerified           = "verified"
	ResultUnknownAccount     = "unknown_account"
	ResultUnknownToken       = "unknown_token"
	ResultRejected           = "rejected"
)

var (
	logins = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "inboxview_login_total",
		Help: "Login attempts by outcome",
	}, []string{"result"})

	sessionRotations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "inboxview_session_rotations_total",
		Help: "Refresh session rotations by outcome",
	}, []string{"result"})

	verificationAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "inboxview_verification_attempts_total",
		Help: "Email verification code checks by outcome",
	}, []string{"result"})

	passwordResets = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "inboxview_password_reset_total",
		Help: "Password reset requests and confirmations by outcome",
	}, []string{"stage", "result"})

	emailsSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "inboxview_emails_sent_total",
		Help: "Outgoing emails by kind and outcome",
	}, []string{"kind", "result"})

	httpDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "inboxview_http_request_duration_seconds",
		Help:    "HTTP request latency by route and status",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route", "status"})
)

func RecordLogin(result string) {
	logins.WithLabelValues(result).Inc()
}

func RecordSessionRotation(result string) {
	sessionRotations.WithLabelValues(result).Inc()
}

func RecordVerificationAttempt(result string) {
	verificationAttempts.WithLabelValues(result).Inc()
}

// RecordPasswordReset counts a reset event; stage is "request" or "confirm".
func RecordPasswordReset(stage, result string) {
	passwordResets.WithLabelValues(stage, result).Inc()
}

func RecordEmail(kind string, err error) {
	result := ResultSuccess
	if err != nil {
		result = ResultError
	}
	emailsSent.WithLabelValues(kind, result).Inc()
}

func ObserveHTTPRequest(method, route, status string, d time.Duration) {
	httpDuration.WithLabelValues(method, route, status).Observe(d.Seconds())
}
