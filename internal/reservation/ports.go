package reservation

import (
	"context"
	"time"

	"github.com/iliyamo/cinema-booking-engine/internal/model"
	"github.com/iliyamo/cinema-booking-engine/internal/queue"
)

// Store is the persistence the reservation service runs against.
// WithinTx runs fn in one storage transaction and commits only when fn
// returns nil.
type Store interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	OccupiedSeats(ctx context.Context, showtimeID uint64) ([]model.SeatKey, error)
	FindByIdempotencyKey(ctx context.Context, userID uint64, key string) (*model.Reservation, error)
	Get(ctx context.Context, id uint64) (*model.Reservation, error)
	ListByUser(ctx context.Context, userID uint64) ([]model.Reservation, error)
	// PendingBefore lists pending reservations created before cutoff,
	// oldest first.
	PendingBefore(ctx context.Context, cutoff time.Time, limit int) ([]uint64, error)
}

// Tx is the transactional view of the store.  Lock* methods take row
// locks that are held until the transaction ends.
type Tx interface {
	LockShowtime(ctx context.Context, showtimeID uint64) (*model.ScheduledShowtime, error)
	LockReservation(ctx context.Context, id uint64) (*model.Reservation, error)

	OccupiedSeats(ctx context.Context, showtimeID uint64) ([]model.SeatKey, error)
	// FindByIdempotencyKey returns nil, nil when no reservation carries key.
	FindByIdempotencyKey(ctx context.Context, userID uint64, key string) (*model.Reservation, error)

	InsertReservation(ctx context.Context, r *model.Reservation) error
	InsertSeats(ctx context.Context, seats []model.ReservationSeat) error
	DeleteSeats(ctx context.Context, reservationID uint64) error
	UpdateTotal(ctx context.Context, id uint64, total int64) error
	// SetPaymentStatus to cancelled also releases the reservation's seats.
	SetPaymentStatus(ctx context.Context, id uint64, status string) error
	SetCheckin(ctx context.Context, id uint64) error
}

// TicketRequest describes the booking a ticket token is issued for.
type TicketRequest struct {
	ShowtimeID  uint64
	UserID      uint64
	ViewingDate model.Date
	StartAt     string
	Seats       []model.SeatKey
}

// TicketIssuer produces the opaque token stored on a reservation.
type TicketIssuer interface {
	Issue(ctx context.Context, req TicketRequest) (string, error)
}

// EventPublisher receives reservation events after commit.
type EventPublisher interface {
	Publish(ctx context.Context, ev queue.ReservationEvent) error
}
