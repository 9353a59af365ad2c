package apiclient

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Renewal outcomes recorded by Metrics.
const (
	renewalSuccess        = "success"
	renewalFailure        = "failure"
	renewalMissingRefresh = "missing_refresh"
)

// Metrics counts client activity.
type Metrics struct {
	Requests           *prometheus.CounterVec
	Renewals           *prometheus.CounterVec
	Notifications      *prometheus.CounterVec
	SessionExpirations prometheus.Counter
}

// NewMetrics creates the client collectors and registers them with reg.
// A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Requests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gerente_client_requests_total",
			Help: "Total number of API requests dispatched, by method and status code (\"error\" when no response arrived)",
		}, []string{"method", "code"}),
		Renewals: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gerente_client_token_renewals_total",
			Help: "Total number of access token renewal attempts, by outcome",
		}, []string{"outcome"}),
		Notifications: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gerente_client_notifications_total",
			Help: "Total number of global notifications emitted, by type",
		}, []string{"type"}),
		SessionExpirations: factory.NewCounter(prometheus.CounterOpts{
			Name: "gerente_client_session_expirations_total",
			Help: "Total number of sessions purged after failed or impossible renewal",
		}),
	}
}
