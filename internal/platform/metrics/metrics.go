package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus metrics shared by the engine and transport.
type Metrics struct {
	Registrations   prometheus.Counter
	Logins          *prometheus.CounterVec
	SessionsRevoked prometheus.Counter
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	return &Metrics{
		Registrations: promauto.NewCounter(prometheus.CounterOpts{
			Name: "authgate_registrations_total",
			Help: "Total number of accounts registered",
		}),
		Logins: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "authgate_logins_total",
			Help: "Total number of login attempts by result",
		}, []string{"result"}),
		SessionsRevoked: promauto.NewCounter(prometheus.CounterOpts{
			Name: "authgate_sessions_revoked_total",
			Help: "Total number of sessions added to the denylist",
		}),
	}
}

// ObserveLogin records a login attempt outcome.
func (m *Metrics) ObserveLogin(result string) {
	m.Logins.WithLabelValues(result).Inc()
}
