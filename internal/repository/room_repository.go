package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/iliyamo/cinema-booking-engine/internal/model"
)

// RoomRepo provides methods to create and retrieve screening rooms.
type RoomRepo struct {
	db      *sql.DB
	timeout time.Duration
}

// NewRoomRepo constructs a RoomRepo with the given DB handle.
func NewRoomRepo(db *sql.DB, timeout time.Duration) *RoomRepo {
	return &RoomRepo{db: db, timeout: timeout}
}

const roomColumns = "id, cinema_id, name, capacity, room_type, base_price, status, created_at"

func scanRoom(row interface{ Scan(...any) error }, rm *model.Room) error {
	return row.Scan(&rm.ID, &rm.CinemaID, &rm.Name, &rm.Capacity, &rm.RoomType, &rm.BasePrice, &rm.Status, &rm.CreatedAt)
}

// Create inserts a room and reads it back so defaults are populated.
// A duplicate name inside the cinema surfaces as *model.IntegrityError.
func (r *RoomRepo) Create(ctx context.Context, rm *model.Room) error {
	ctx, cancel := bound(ctx, r.timeout)
	defer cancel()

	if rm.Status == "" {
		rm.Status = model.RoomActive
	}
	const qInsert = `INSERT INTO rooms (cinema_id, name, capacity, room_type, base_price, status)
	                 VALUES (?, ?, ?, ?, ?, ?)`
	res, err := r.db.ExecContext(ctx, qInsert, rm.CinemaID, rm.Name, rm.Capacity, rm.RoomType, rm.BasePrice, rm.Status)
	if err != nil {
		return translate("insert room", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return translate("insert room", err)
	}
	if err := scanRoom(r.db.QueryRowContext(ctx, "SELECT "+roomColumns+" FROM rooms WHERE id = ?", id), rm); err != nil {
		return translate("reload room", err)
	}
	return nil
}

// GetByID retrieves a room by its ID.
func (r *RoomRepo) GetByID(ctx context.Context, id uint64) (*model.Room, error) {
	ctx, cancel := bound(ctx, r.timeout)
	defer cancel()
	return getRoom(ctx, r.db, id)
}

func getRoom(ctx context.Context, q querier, id uint64) (*model.Room, error) {
	var rm model.Room
	if err := scanRoom(q.QueryRowContext(ctx, "SELECT "+roomColumns+" FROM rooms WHERE id = ?", id), &rm); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.NewNotFoundError("room", id)
		}
		return nil, translate("get room", err)
	}
	return &rm, nil
}

// ListByCinema returns all rooms of a cinema.
func (r *RoomRepo) ListByCinema(ctx context.Context, cinemaID uint64) ([]model.Room, error) {
	ctx, cancel := bound(ctx, r.timeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, "SELECT "+roomColumns+" FROM rooms WHERE cinema_id = ? ORDER BY id", cinemaID)
	if err != nil {
		return nil, translate("list rooms", err)
	}
	defer rows.Close()

	var out []model.Room
	for rows.Next() {
		var rm model.Room
		if err := scanRoom(rows, &rm); err != nil {
			return nil, translate("list rooms", err)
		}
		out = append(out, rm)
	}
	return out, translate("list rooms", rows.Err())
}
