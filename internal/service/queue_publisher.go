// Package service holds the outbound adapters of the booking engine:
// the reservation event publishers for RabbitMQ and Kafka.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/iliyamo/cinema-booking-engine/internal/logger"
	"github.com/iliyamo/cinema-booking-engine/internal/queue"
)

// AMQPPublisher publishes reservation events to a durable queue on the
// default exchange.  The connection is opened lazily and reopened after
// a failure; publishes are serialized on one channel.
type AMQPPublisher struct {
	url   string
	queue string
	log   *logger.Logger

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

// NewAMQPPublisher returns a publisher for queueName at url.  No
// connection is made until the first Publish.
func NewAMQPPublisher(url, queueName string, log *logger.Logger) *AMQPPublisher {
	if log == nil {
		log = logger.Nop()
	}
	return &AMQPPublisher{url: url, queue: queueName, log: log.Component("amqp-publisher")}
}

// connect must be called with mu held.
func (p *AMQPPublisher) connect() error {
	if p.ch != nil && !p.ch.IsClosed() {
		return nil
	}
	p.closeLocked()

	conn, err := amqp.Dial(p.url)
	if err != nil {
		return fmt.Errorf("dial broker: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}
	if _, err := ch.QueueDeclare(p.queue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return fmt.Errorf("declare queue %s: %w", p.queue, err)
	}
	p.conn, p.ch = conn, ch
	return nil
}

// Publish sends ev as a persistent JSON message.
func (p *AMQPPublisher) Publish(ctx context.Context, ev queue.ReservationEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.connect(); err != nil {
		return err
	}
	err = p.ch.PublishWithContext(ctx, "", p.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Type:         ev.Type,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	})
	if err != nil {
		// force a reconnect next time
		p.closeLocked()
		return fmt.Errorf("publish %s: %w", ev.Type, err)
	}
	p.log.DebugContext(ctx, "event published", "type", ev.Type, "reservation_id", ev.ReservationID)
	return nil
}

// Close releases the channel and connection.
func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closeLocked()
	return nil
}

func (p *AMQPPublisher) closeLocked() {
	if p.ch != nil {
		_ = p.ch.Close()
		p.ch = nil
	}
	if p.conn != nil {
		_ = p.conn.Close()
		p.conn = nil
	}
}
