package notify

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const notificationQueue = "gatehouse.notifications"

// AMQPSink publishes events to a durable RabbitMQ queue consumed by the
// external mailer / chat bridge. The connection is dialed lazily and redialed
// after failures; a broker outage costs individual events (logged by the
// worker), never availability.
type AMQPSink struct {
	url string

	mu      sync.Mutex
	conn    *amqp.Connection
	channel *amqp.Channel
}

func NewAMQPSink(url string) *AMQPSink {
	return &AMQPSink{url: url}
}

func (s *AMQPSink) Deliver(ctx context.Context, event Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ch, err := s.channelLocked()
	if err != nil {
		return err
	}

	err = ch.PublishWithContext(ctx,
		"",                // default exchange
		notificationQueue, // routing key = queue name
		false,             // mandatory
		false,             // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now().UTC(),
			Body:         body,
		})
	if err != nil {
		// Drop the connection so the next delivery redials.
		s.closeLocked()
		return err
	}
	return nil
}

func (s *AMQPSink) channelLocked() (*amqp.Channel, error) {
	if s.channel != nil && !s.conn.IsClosed() {
		return s.channel, nil
	}
	s.closeLocked()

	conn, err := amqp.Dial(s.url)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	// Durable so events survive broker restarts.
	if _, err := ch.QueueDeclare(notificationQueue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}
	s.conn = conn
	s.channel = ch
	return ch, nil
}

func (s *AMQPSink) closeLocked() {
	if s.channel != nil {
		_ = s.channel.Close()
		s.channel = nil
	}
	if s.conn != nil {
		_ = s.conn.Close()
		s.conn = nil
	}
}

// Close releases the broker connection.
func (s *AMQPSink) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeLocked()
}
