// Package queue defines the reservation events exchanged over the message
// broker and the consumer that turns them into an audit log.
package queue

import (
	"fmt"
	"strings"
	"time"

	"github.com/iliyamo/cinema-booking-engine/internal/model"
)

// Event types.  They double as AMQP routing keys and Kafka record keys
// prefixes.
const (
	EventReservationConfirmed = "reservation.confirmed"
	EventReservationUpdated   = "reservation.updated"
	EventReservationCancelled = "reservation.cancelled"
	EventPaymentConfirmed     = "reservation.paid"
)

// ReservationEvent is published after a reservation transaction commits.
// It carries enough for downstream consumers to log or notify without
// querying the primary database.
type ReservationEvent struct {
	Type          string   `json:"type"`
	ReservationID uint64   `json:"reservation_id"`
	UserID        uint64   `json:"user_id"`
	ShowtimeID    uint64   `json:"showtime_id"`
	CinemaID      uint64   `json:"cinema_id"`
	RoomID        uint64   `json:"room_id"`
	MovieID       uint64   `json:"movie_id"`
	ViewingDate   string   `json:"viewing_date"`
	StartAt       string   `json:"start_at"`
	SeatLabels    []string `json:"seats"`
	Total         int64    `json:"total"`
	PaymentStatus string   `json:"payment_status"`
	Reason        string   `json:"reason,omitempty"`
	OccurredAt    string   `json:"occurred_at"`
}

// NewReservationEvent snapshots r as an event of the given type.
func NewReservationEvent(typ string, r *model.Reservation, at time.Time) ReservationEvent {
	labels := make([]string, 0, len(r.Seats))
	for _, s := range r.Seats {
		labels = append(labels, s.Key().String())
	}
	return ReservationEvent{
		Type:          typ,
		ReservationID: r.ID,
		UserID:        r.UserID,
		ShowtimeID:    r.ShowtimeID,
		CinemaID:      r.CinemaID,
		RoomID:        r.RoomID,
		MovieID:       r.MovieID,
		ViewingDate:   r.ViewingDate.String(),
		StartAt:       r.StartAt,
		SeatLabels:    labels,
		Total:         r.Total,
		PaymentStatus: r.PaymentStatus,
		OccurredAt:    at.UTC().Format(time.RFC3339),
	}
}

// AuditLine renders the event as one human-friendly log line.
func (e ReservationEvent) AuditLine() string {
	seats := "[]"
	if len(e.SeatLabels) > 0 {
		seats = "[" + strings.Join(e.SeatLabels, ",") + "]"
	}
	line := fmt.Sprintf("[%s] %s | reservation_id=%d | user_id=%d | showtime_id=%d | room_id=%d | date=%s %s | total=%d | status=%s | seats=%s",
		e.OccurredAt, e.Type, e.ReservationID, e.UserID, e.ShowtimeID, e.RoomID, e.ViewingDate, e.StartAt, e.Total, e.PaymentStatus, seats)
	if e.Reason != "" {
		line += " | reason=" + e.Reason
	}
	return line + "\n"
}
