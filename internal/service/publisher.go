package service

import (
	"context"
	"fmt"

	"github.com/iliyamo/cinema-booking-engine/internal/config"
	"github.com/iliyamo/cinema-booking-engine/internal/logger"
	"github.com/iliyamo/cinema-booking-engine/internal/queue"
)

// Publisher is a reservation event sink that owns a connection.
type Publisher interface {
	Publish(ctx context.Context, ev queue.ReservationEvent) error
	Close() error
}

// NopPublisher drops every event.  EVENTS_BACKEND=none selects it.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, queue.ReservationEvent) error { return nil }

func (NopPublisher) Close() error { return nil }

// NewPublisher builds the publisher selected by cfg.Backend.
func NewPublisher(cfg config.EventsConfig, log *logger.Logger) (Publisher, error) {
	switch cfg.Backend {
	case config.EventsAMQP:
		return NewAMQPPublisher(cfg.RabbitURL, cfg.Queue, log), nil
	case config.EventsKafka:
		return NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, log)
	case config.EventsNone, "":
		return NopPublisher{}, nil
	}
	return nil, fmt.Errorf("unknown EVENTS_BACKEND %q", cfg.Backend)
}
