package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	VisitsCreated        *prometheus.CounterVec
	Transitions          *prometheus.CounterVec
	TokenRetries         prometheus.Counter
	NotificationsDropped prometheus.Counter
	NotificationsFailed  prometheus.Counter
}

// New creates and registers all Prometheus metrics on the default registry.
func New() *Metrics {
	return &Metrics{
		VisitsCreated: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "gatehouse_visits_created_total",
			Help: "Visits created, labelled by kind (walk_in, pre_registered).",
		}, []string{"kind"}),
		Transitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "gatehouse_visit_transitions_total",
			Help: "Lifecycle transitions attempted, labelled by operation and outcome.",
		}, []string{"operation", "outcome"}),
		TokenRetries: promauto.NewCounter(prometheus.CounterOpts{
			Name: "gatehouse_session_token_retries_total",
			Help: "Session token regenerations after a uniqueness conflict at insert.",
		}),
		NotificationsDropped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "gatehouse_notifications_dropped_total",
			Help: "Notifications dropped because the dispatch buffer was full.",
		}),
		NotificationsFailed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "gatehouse_notifications_failed_total",
			Help: "Notification deliveries that failed at the sink.",
		}),
	}
}

// RecordTransition counts one lifecycle transition attempt.
func (m *Metrics) RecordTransition(operation, outcome string) {
	if m == nil {
		return
	}
	m.Transitions.WithLabelValues(operation, outcome).Inc()
}

// RecordVisitCreated counts one created visit by kind.
func (m *Metrics) RecordVisitCreated(kind string) {
	if m == nil {
		return
	}
	m.VisitsCreated.WithLabelValues(kind).Inc()
}

// RecordTokenRetry counts one token regeneration.
func (m *Metrics) RecordTokenRetry() {
	if m == nil {
		return
	}
	m.TokenRetries.Inc()
}

// RecordNotificationDropped counts one dropped notification.
func (m *Metrics) RecordNotificationDropped() {
	if m == nil {
		return
	}
	m.NotificationsDropped.Inc()
}

// RecordNotificationFailed counts one failed delivery.
func (m *Metrics) RecordNotificationFailed() {
	if m == nil {
		return
	}
	m.NotificationsFailed.Inc()
}
