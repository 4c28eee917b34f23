package model

import "time"

// Payment status values of a reservation.  Only "cancelled" releases
// seats; pending and confirmed both occupy them.
const (
	PaymentPending   = "pending"
	PaymentConfirmed = "confirmed"
	PaymentCancelled = "cancelled"
)

// Reservation records a user's booking of one or more seats for a
// showtime on a given viewing date.  It owns an ordered collection of
// ReservationSeat rows, all created in the same transaction.
//
// Fields:
//  ID             – primary key identifier.
//  ShowtimeID     – showtime being reserved.
//  RoomID         – room of the showtime (denormalised).
//  CinemaID       – cinema of the room (denormalised).
//  MovieID        – movie of the showtime (denormalised).
//  UserID         – account that made the booking.
//  Username       – display name captured at booking time.
//  Phone          – contact phone captured at booking time.
//  ViewingDate    – calendar day of the screening.
//  StartAt        – daily start time of the showtime, "HH:MM".
//  BasePrice      – room base price applied to every seat.
//  Total          – Σ(BasePrice + seat extra charge).
//  PaymentStatus  – pending, confirmed or cancelled.
//  Checkin        – whether the ticket was scanned at the door.
//  TicketToken    – opaque token issued by the ticket collaborator.
//  IdempotencyKey – optional client key that deduplicates retries.
type Reservation struct {
	ID             uint64            `json:"id"`                        // reservations.id
	ShowtimeID     uint64            `json:"showtime_id"`               // reservations.showtime_id
	RoomID         uint64            `json:"room_id"`                   // reservations.room_id
	CinemaID       uint64            `json:"cinema_id"`                 // reservations.cinema_id
	MovieID        uint64            `json:"movie_id"`                  // reservations.movie_id
	UserID         uint64            `json:"user_id"`                   // reservations.user_id
	Username       string            `json:"username"`                  // reservations.username
	Phone          string            `json:"phone"`                     // reservations.phone
	ViewingDate    Date              `json:"viewing_date"`              // reservations.viewing_date
	StartAt        string            `json:"start_at"`                  // reservations.start_at
	BasePrice      int64             `json:"base_price"`                // reservations.base_price
	Total          int64             `json:"total"`                     // reservations.total
	PaymentStatus  string            `json:"payment_status"`            // reservations.payment_status
	Checkin        bool              `json:"checkin"`                   // reservations.checkin
	TicketToken    string            `json:"ticket_token"`              // reservations.ticket_token
	IdempotencyKey string            `json:"idempotency_key,omitempty"` // reservations.idempotency_key (nullable)
	Seats          []ReservationSeat `json:"seats"`
	CreatedAt      time.Time         `json:"created_at"` // reservations.created_at
	UpdatedAt      time.Time         `json:"updated_at"` // reservations.updated_at
}

// Cancelled reports whether the reservation no longer holds its seats.
func (r Reservation) Cancelled() bool { return r.PaymentStatus == PaymentCancelled }

// SeatKeys returns the (row, number) keys of the reservation's seats in
// their stored order.
func (r Reservation) SeatKeys() []SeatKey {
	keys := make([]SeatKey, 0, len(r.Seats))
	for _, s := range r.Seats {
		keys = append(keys, s.Key())
	}
	return keys
}

// ReservationSeat is the join record of exactly which seat, at what
// price, belongs to a reservation.  SeatID is optional: the durable
// identity is RowName + SeatNumber.
type ReservationSeat struct {
	ReservationID uint64  `json:"reservation_id"` // reservation_seats.reservation_id
	ShowtimeID    uint64  `json:"showtime_id"`    // reservation_seats.showtime_id
	SeatID        *uint64 `json:"seat_id"`        // reservation_seats.seat_id (nullable)
	RowName       string  `json:"row_name"`       // reservation_seats.row_name
	SeatNumber    int     `json:"seat_number"`    // reservation_seats.seat_number
	SeatPrice     int64   `json:"seat_price"`     // reservation_seats.seat_price
}

// Key returns the seat's (row, number) identity.
func (s ReservationSeat) Key() SeatKey { return SeatKey{Row: s.RowName, Number: s.SeatNumber} }
