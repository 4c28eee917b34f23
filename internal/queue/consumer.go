package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/iliyamo/cinema-booking-engine/internal/logger"
)

// AuditLog appends one AuditLine per event to a file.
type AuditLog struct {
	mu sync.Mutex
	w  io.Writer
}

// OpenAuditLog opens path for appending, creating parent directories.
func OpenAuditLog(path string) (*AuditLog, *os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, nil, fmt.Errorf("mkdir %s: %w", filepath.Dir(path), err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open audit log: %w", err)
	}
	return NewAuditLog(f), f, nil
}

// NewAuditLog writes to w.
func NewAuditLog(w io.Writer) *AuditLog { return &AuditLog{w: w} }

// Handle decodes one message body and appends its line.
func (a *AuditLog) Handle(body []byte) error {
	var ev ReservationEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	if ev.Type == "" || ev.ReservationID == 0 {
		return errors.New("event without type or reservation id")
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, err := io.WriteString(a.w, ev.AuditLine()); err != nil {
		return fmt.Errorf("write audit line: %w", err)
	}
	return nil
}

// StartAuditConsumer consumes queueName at url into audit until ctx is
// done, reconnecting with exponential backoff.  Malformed messages are
// rejected without requeue.
func StartAuditConsumer(ctx context.Context, url, queueName string, audit *AuditLog, log *logger.Logger) {
	if log == nil {
		log = logger.Nop()
	}
	log = log.Component("audit-consumer")

	backoff := time.Second
	for ctx.Err() == nil {
		conn, err := amqp.Dial(url)
		if err != nil {
			log.WarnContext(ctx, "dial broker failed", "error", err, "retry_in", backoff)
			if !sleep(ctx, backoff) {
				return
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		err = consume(ctx, conn, queueName, audit, log)
		_ = conn.Close()
		if ctx.Err() != nil {
			return
		}
		log.WarnContext(ctx, "consume loop ended, reconnecting", "error", err)
		if !sleep(ctx, 2*time.Second) {
			return
		}
	}
}

func consume(ctx context.Context, conn *amqp.Connection, queueName string, audit *AuditLog, log *logger.Logger) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		log.WarnContext(ctx, "set qos failed", "error", err)
	}
	if _, err := ch.QueueDeclare(queueName, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	msgs, err := ch.ConsumeWithContext(ctx, queueName, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			if err := audit.Handle(d.Body); err != nil {
				log.WarnContext(ctx, "audit message rejected", "error", err)
				_ = d.Nack(false, false)
				continue
			}
			_ = d.Ack(false)
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
