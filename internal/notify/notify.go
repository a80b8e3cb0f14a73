// Package notify delivers best-effort outbound messages for lifecycle
// events. Nothing here may ever fail a lifecycle operation: enqueueing is
// non-blocking, delivery errors are logged and counted, and there are no
// retries.
package notify

import (
	"context"
	"log/slog"
	"time"

	"gatehouse/internal/platform/metrics"
	id "gatehouse/pkg/domain"
)

// Kind labels what happened.
type Kind string

const (
	KindHostArrival     Kind = "host_arrival"
	KindVisitorDecision Kind = "visitor_decision"
)

// Event is one outbound notification. Transport-agnostic so sinks can fan
// out to email, chat, or a broker without caring which transition fired.
type Event struct {
	Kind       Kind       `json:"kind"`
	VisitID    id.VisitID `json:"visit_id"`
	HostEmail  string     `json:"host_email,omitempty"`
	HostName   string     `json:"host_name,omitempty"`
	Visitor    string     `json:"visitor,omitempty"`
	Company    string     `json:"company,omitempty"`
	Purpose    string     `json:"purpose,omitempty"`
	Email      string     `json:"email,omitempty"`
	Decision   string     `json:"decision,omitempty"`
	Reason     string     `json:"reason,omitempty"`
	OccurredAt time.Time  `json:"occurred_at"`
}

// Dispatcher is the contract the visit lifecycle consumes.
type Dispatcher interface {
	HostArrival(ctx context.Context, event Event)
	VisitorDecision(ctx context.Context, event Event)
}

// Sink delivers a single event somewhere. Implementations own their error
// handling beyond reporting it to the worker.
type Sink interface {
	Deliver(ctx context.Context, event Event) error
}

// AsyncDispatcher queues events on a buffered channel drained by Run. A full
// buffer drops the event: the dispatch path must never block a check-in
// because the mailer is slow.
type AsyncDispatcher struct {
	inbox   chan Event
	sinks   []Sink
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func NewAsyncDispatcher(buffer int, logger *slog.Logger, m *metrics.Metrics, sinks ...Sink) *AsyncDispatcher {
	if buffer <= 0 {
		buffer = 64
	}
	return &AsyncDispatcher{
		inbox:   make(chan Event, buffer),
		sinks:   sinks,
		logger:  logger,
		metrics: m,
	}
}

func (d *AsyncDispatcher) HostArrival(ctx context.Context, event Event) {
	event.Kind = KindHostArrival
	d.enqueue(ctx, event)
}

func (d *AsyncDispatcher) VisitorDecision(ctx context.Context, event Event) {
	event.Kind = KindVisitorDecision
	d.enqueue(ctx, event)
}

func (d *AsyncDispatcher) enqueue(ctx context.Context, event Event) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	select {
	case d.inbox <- event:
	default:
		d.metrics.RecordNotificationDropped()
		d.logger.WarnContext(ctx, "notification buffer full, dropping event",
			"kind", event.Kind,
			"visit_id", event.VisitID.String(),
		)
	}
}

// Run drains the inbox until ctx is cancelled, handing each event to every
// sink. Delivery uses a fresh timeout-bounded context: the request that
// produced the event has long since returned.
func (d *AsyncDispatcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event := <-d.inbox:
			d.deliver(event)
		}
	}
}

func (d *AsyncDispatcher) deliver(event Event) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for _, sink := range d.sinks {
		if err := sink.Deliver(ctx, event); err != nil {
			d.metrics.RecordNotificationFailed()
			d.logger.Warn("notification delivery failed",
				"kind", event.Kind,
				"visit_id", event.VisitID.String(),
				"error", err,
			)
		}
	}
}

// LogSink writes events to the structured log. The default sink in
// deployments without a broker, and the fallback alongside one.
type LogSink struct {
	logger *slog.Logger
}

func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Deliver(_ context.Context, event Event) error {
	s.logger.Info("notification",
		"kind", event.Kind,
		"visit_id", event.VisitID.String(),
		"visitor", event.Visitor,
		"decision", event.Decision,
	)
	return nil
}

// Discard drops every event. Used in tests that don't assert on dispatch.
type Discard struct{}

func (Discard) HostArrival(context.Context, Event)     {}
func (Discard) VisitorDecision(context.Context, Event) {}
