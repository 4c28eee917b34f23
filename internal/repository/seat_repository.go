package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/iliyamo/cinema-booking-engine/internal/model"
)

// SeatRepo provides methods to work with the seats of a room.
type SeatRepo struct {
	db      *sql.DB
	timeout time.Duration
}

// NewSeatRepo constructs a SeatRepo with the given DB handle.
func NewSeatRepo(db *sql.DB, timeout time.Duration) *SeatRepo {
	return &SeatRepo{db: db, timeout: timeout}
}

const seatColumns = "s.id, s.room_id, s.row_name, s.seat_number, s.seat_type, s.extra_charge, s.status, s.created_at"

// CreateBulk inserts multiple seats in a single statement.  A seat that
// already exists in the room fails the whole batch with
// *model.IntegrityError on uq_seats_position.
func (r *SeatRepo) CreateBulk(ctx context.Context, seats []model.Seat) error {
	if len(seats) == 0 {
		return nil
	}
	ctx, cancel := bound(ctx, r.timeout)
	defer cancel()

	query := "INSERT INTO seats (room_id, row_name, seat_number, seat_type, extra_charge, status) VALUES " + placeholders(len(seats), 6)
	args := make([]any, 0, len(seats)*6)
	for _, s := range seats {
		if s.SeatType == "" {
			s.SeatType = model.SeatTypeStandard
		}
		if s.Status == "" {
			s.Status = model.SeatActive
		}
		args = append(args, s.RoomID, s.RowName, s.SeatNumber, s.SeatType, s.ExtraCharge, s.Status)
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return translate("insert seats", err)
	}
	return nil
}

// ListByRoom returns every seat of a room, active or not.
func (r *SeatRepo) ListByRoom(ctx context.Context, roomID uint64) ([]model.Seat, error) {
	ctx, cancel := bound(ctx, r.timeout)
	defer cancel()
	return r.query(ctx, "list seats", "SELECT "+seatColumns+" FROM seats s WHERE s.room_id = ? ORDER BY s.id", roomID)
}

// ShowtimeSeats returns the seats of the room a showtime plays in.
func (r *SeatRepo) ShowtimeSeats(ctx context.Context, showtimeID uint64) ([]model.Seat, error) {
	ctx, cancel := bound(ctx, r.timeout)
	defer cancel()

	const q = "SELECT " + seatColumns + ` FROM seats s
	           JOIN showtimes st ON st.room_id = s.room_id
	           WHERE st.id = ?
	           ORDER BY s.id`
	return r.query(ctx, "showtime seats", q, showtimeID)
}

// SetStatus activates or deactivates one seat of a room.
func (r *SeatRepo) SetStatus(ctx context.Context, roomID, seatID uint64, status string) error {
	ctx, cancel := bound(ctx, r.timeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, "UPDATE seats SET status = ? WHERE id = ? AND room_id = ?", status, seatID, roomID)
	if err != nil {
		return translate("update seat", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// unchanged rows also report zero, so confirm existence
		var one int
		err := r.db.QueryRowContext(ctx, "SELECT 1 FROM seats WHERE id = ? AND room_id = ?", seatID, roomID).Scan(&one)
		if errors.Is(err, sql.ErrNoRows) {
			return model.NewNotFoundError("seat", seatID)
		}
		return translate("update seat", err)
	}
	return nil
}

func (r *SeatRepo) query(ctx context.Context, op, q string, args ...any) ([]model.Seat, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, translate(op, err)
	}
	defer rows.Close()

	var out []model.Seat
	for rows.Next() {
		var s model.Seat
		if err := rows.Scan(&s.ID, &s.RoomID, &s.RowName, &s.SeatNumber, &s.SeatType, &s.ExtraCharge, &s.Status, &s.CreatedAt); err != nil {
			return nil, translate(op, err)
		}
		out = append(out, s)
	}
	return out, translate(op, rows.Err())
}
