package observability

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// AuthMetrics menghitung keputusan otorisasi, hasil login, dan penulisan
// audit. Nilai nil aman dipakai.
type AuthMetrics struct {
	decisions *prometheus.CounterVec
	logins    *prometheus.CounterVec
	appends   *prometheus.CounterVec
}

// NewAuthMetrics mendaftarkan metrik auth pada registerer.
func NewAuthMetrics(registerer prometheus.Registerer) *AuthMetrics {
	decisions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_authz_decisions_total",
		Help: "Keputusan otorisasi per permission dan hasil.",
	}, []string{"permission", "granted"})
	logins := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_auth_logins_total",
		Help: "Percobaan login berdasarkan hasil.",
	}, []string{"outcome"})
	appends := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_audit_appends_total",
		Help: "Penulisan audit trail berdasarkan status.",
	}, []string{"status"})
	registerer.MustRegister(decisions, logins, appends)
	return &AuthMetrics{decisions: decisions, logins: logins, appends: appends}
}

// ObserveDecision mencatat satu keputusan otorisasi.
func (m *AuthMetrics) ObserveDecision(permission string, granted bool) {
	if m == nil {
		return
	}
	m.decisions.WithLabelValues(permission, strconv.FormatBool(granted)).Inc()
}

// ObserveLogin mencatat hasil login.
func (m *AuthMetrics) ObserveLogin(outcome string) {
	if m == nil {
		return
	}
	m.logins.WithLabelValues(outcome).Inc()
}

// ObserveAppend mencatat hasil penulisan audit.
func (m *AuthMetrics) ObserveAppend(err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "failure"
	}
	m.appends.WithLabelValues(status).Inc()
}
