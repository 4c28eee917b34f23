package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/cinema-booking-engine/internal/config"
	"github.com/iliyamo/cinema-booking-engine/internal/model"
	"github.com/iliyamo/cinema-booking-engine/internal/queue"
)

func sampleEvent() queue.ReservationEvent {
	r := &model.Reservation{
		ID: 11, UserID: 3, ShowtimeID: 5, PaymentStatus: model.PaymentPending, Total: 170000,
		Seats: []model.ReservationSeat{{RowName: "A", SeatNumber: 1}, {RowName: "A", SeatNumber: 2}},
	}
	return queue.NewReservationEvent(queue.EventReservationConfirmed, r, time.Date(2024, 5, 4, 10, 0, 0, 0, time.UTC))
}

func TestKafkaPublisher_Publish(t *testing.T) {
	cfg := mocks.NewTestConfig()
	cfg.Producer.Return.Successes = true
	producer := mocks.NewSyncProducer(t, cfg)
	producer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(m *sarama.ProducerMessage) error {
		if m.Topic != "reservation-events" {
			return errors.New("wrong topic " + m.Topic)
		}
		key, err := m.Key.Encode()
		if err != nil || string(key) != "11" {
			return errors.New("wrong key")
		}
		body, err := m.Value.Encode()
		if err != nil {
			return err
		}
		var ev queue.ReservationEvent
		if err := json.Unmarshal(body, &ev); err != nil {
			return err
		}
		if ev.Type != queue.EventReservationConfirmed || len(ev.SeatLabels) != 2 {
			return errors.New("unexpected payload")
		}
		return nil
	})
	p := NewKafkaPublisherWithProducer(producer, "reservation-events", nil)

	require.NoError(t, p.Publish(context.Background(), sampleEvent()))
	require.NoError(t, p.Close())
}

func TestKafkaPublisher_PublishFailure(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)
	p := NewKafkaPublisherWithProducer(producer, "t", nil)

	err := p.Publish(context.Background(), sampleEvent())

	assert.ErrorIs(t, err, sarama.ErrOutOfBrokers)
	require.NoError(t, p.Close())
}

func TestNewPublisher_Backends(t *testing.T) {
	p, err := NewPublisher(config.EventsConfig{Backend: config.EventsNone}, nil)
	require.NoError(t, err)
	assert.IsType(t, NopPublisher{}, p)

	p, err = NewPublisher(config.EventsConfig{Backend: config.EventsAMQP, RabbitURL: "amqp://localhost:1/", Queue: "q"}, nil)
	require.NoError(t, err)
	assert.IsType(t, &AMQPPublisher{}, p)
	require.NoError(t, p.Close())

	_, err = NewPublisher(config.EventsConfig{Backend: "carrier-pigeon"}, nil)
	assert.Error(t, err)
}
