/*
Package observability provides the prometheus collectors for the session
coordinator: session lifecycle counters, deletion retry outcomes, and webhook
verification results.
*/
package observability

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the coordinator's prometheus collectors.
type Metrics struct {
	SessionsCreated  prometheus.Counter
	SessionsRejoined prometheus.Counter
	ClientJoins      prometheus.Counter
	Teardowns        prometheus.Counter

	RoomDeletions  *prometheus.CounterVec // outcome: ok | enqueued
	RetryAttempts  *prometheus.CounterVec // outcome: ok | fail
	RetryExhausted prometheus.Counter

	WebhookEvents *prometheus.CounterVec // outcome: ok | rejected
}

// New creates and registers the collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		SessionsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sessiond_sessions_created_total",
			Help: "Total number of sessions created",
		}),
		SessionsRejoined: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sessiond_sessions_rejoined_total",
			Help: "Total number of therapist rejoins to an existing session",
		}),
		ClientJoins: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sessiond_client_joins_total",
			Help: "Total number of client joins",
		}),
		Teardowns: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sessiond_teardowns_total",
			Help: "Total number of completed session teardowns",
		}),
		RoomDeletions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sessiond_room_deletions_total",
			Help: "Provider room deletion calls fired at teardown",
		}, []string{"outcome"}),
		RetryAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sessiond_deletion_retry_attempts_total",
			Help: "Re-issued provider deletion calls from the retry queue",
		}, []string{"outcome"}),
		RetryExhausted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sessiond_deletion_retries_exhausted_total",
			Help: "Retry items dropped after reaching the attempt limit",
		}),
		WebhookEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sessiond_webhook_events_total",
			Help: "Inbound provider webhook deliveries",
		}, []string{"outcome"}),
	}

	reg.MustRegister(
		m.SessionsCreated,
		m.SessionsRejoined,
		m.ClientJoins,
		m.Teardowns,
		m.RoomDeletions,
		m.RetryAttempts,
		m.RetryExhausted,
		m.WebhookEvents,
	)
	return m
}

// NewNop returns unregistered collectors, for wiring without a registry.
func NewNop() *Metrics {
	return New(prometheus.NewRegistry())
}
