package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/iliyamo/cinema-booking-engine/internal/model"
	"github.com/iliyamo/cinema-booking-engine/internal/schedule"
)

// ShowtimeRepo manages persistence for showtimes.  It implements
// schedule.Repository: the scheduler reads a room's showtimes per
// calendar day, and writes run inside InRoomTx.
type ShowtimeRepo struct {
	db      *sql.DB
	timeout time.Duration
}

// NewShowtimeRepo constructs a ShowtimeRepo with the given DB handle.
func NewShowtimeRepo(db *sql.DB, timeout time.Duration) *ShowtimeRepo {
	return &ShowtimeRepo{db: db, timeout: timeout}
}

// scheduledColumns joins a showtime with its room's cinema and its
// movie's running time.
const scheduledColumns = `st.id, st.movie_id, st.room_id, st.start_date, st.end_date, st.start_at, st.created_at,
                          r.cinema_id, m.duration_minutes`

const scheduledFrom = ` FROM showtimes st
                        JOIN rooms r ON r.id = st.room_id
                        JOIN movies m ON m.id = st.movie_id`

func scanScheduled(row interface{ Scan(...any) error }, s *model.ScheduledShowtime) error {
	return row.Scan(&s.ID, &s.MovieID, &s.RoomID, &s.StartDate, &s.EndDate, &s.StartAt, &s.CreatedAt,
		&s.CinemaID, &s.DurationMinutes)
}

// ShowtimesOn lists the showtimes of a room whose date range covers date.
func (r *ShowtimeRepo) ShowtimesOn(ctx context.Context, roomID uint64, date model.Date) ([]model.ScheduledShowtime, error) {
	ctx, cancel := bound(ctx, r.timeout)
	defer cancel()
	return showtimesOn(ctx, r.db, roomID, date)
}

func showtimesOn(ctx context.Context, q querier, roomID uint64, date model.Date) ([]model.ScheduledShowtime, error) {
	const sel = "SELECT " + scheduledColumns + scheduledFrom + `
	             WHERE st.room_id = ? AND st.start_date <= ? AND st.end_date >= ?
	             ORDER BY st.start_at, st.id`
	rows, err := q.QueryContext(ctx, sel, roomID, date, date)
	if err != nil {
		return nil, translate("showtimes on", err)
	}
	defer rows.Close()

	var out []model.ScheduledShowtime
	for rows.Next() {
		var s model.ScheduledShowtime
		if err := scanScheduled(rows, &s); err != nil {
			return nil, translate("showtimes on", err)
		}
		out = append(out, s)
	}
	return out, translate("showtimes on", rows.Err())
}

// ShowtimeByID retrieves a showtime with its running time.
func (r *ShowtimeRepo) ShowtimeByID(ctx context.Context, id uint64) (*model.ScheduledShowtime, error) {
	ctx, cancel := bound(ctx, r.timeout)
	defer cancel()

	var s model.ScheduledShowtime
	err := scanScheduled(r.db.QueryRowContext(ctx, "SELECT "+scheduledColumns+scheduledFrom+" WHERE st.id = ?", id), &s)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.NewNotFoundError("showtime", id)
		}
		return nil, translate("get showtime", err)
	}
	return &s, nil
}

// ListByRoom returns the showtimes of a room, soonest first.
func (r *ShowtimeRepo) ListByRoom(ctx context.Context, roomID uint64) ([]model.ScheduledShowtime, error) {
	ctx, cancel := bound(ctx, r.timeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, "SELECT "+scheduledColumns+scheduledFrom+
		" WHERE st.room_id = ? ORDER BY st.start_date, st.start_at, st.id", roomID)
	if err != nil {
		return nil, translate("list showtimes", err)
	}
	defer rows.Close()

	var out []model.ScheduledShowtime
	for rows.Next() {
		var s model.ScheduledShowtime
		if err := scanScheduled(rows, &s); err != nil {
			return nil, translate("list showtimes", err)
		}
		out = append(out, s)
	}
	return out, translate("list showtimes", rows.Err())
}

// MovieByID satisfies schedule.Repository.
func (r *ShowtimeRepo) MovieByID(ctx context.Context, id uint64) (*model.Movie, error) {
	ctx, cancel := bound(ctx, r.timeout)
	defer cancel()
	return getMovie(ctx, r.db, id)
}

// RoomByID satisfies schedule.Repository.
func (r *ShowtimeRepo) RoomByID(ctx context.Context, id uint64) (*model.Room, error) {
	ctx, cancel := bound(ctx, r.timeout)
	defer cancel()
	return getRoom(ctx, r.db, id)
}

// InRoomTx locks the room row and runs fn in the same transaction.
// Concurrent showtime writes for one room queue on that lock, so the
// conflict check and the write inside fn see a stable schedule.
func (r *ShowtimeRepo) InRoomTx(ctx context.Context, roomID uint64, fn func(ctx context.Context, tx schedule.TxStore) error) error {
	ctx, cancel := bound(ctx, r.timeout)
	defer cancel()

	return withinTx(ctx, r.db, "showtime write", func(tx *sql.Tx) error {
		var id uint64
		if err := tx.QueryRowContext(ctx, "SELECT id FROM rooms WHERE id = ? FOR UPDATE", roomID).Scan(&id); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return model.NewNotFoundError("room", roomID)
			}
			return translate("lock room", err)
		}
		return fn(ctx, &showtimeTx{tx: tx})
	})
}

// showtimeTx is the schedule.TxStore bound to one transaction.
type showtimeTx struct {
	tx *sql.Tx
}

func (t *showtimeTx) ShowtimesOn(ctx context.Context, roomID uint64, date model.Date) ([]model.ScheduledShowtime, error) {
	return showtimesOn(ctx, t.tx, roomID, date)
}

func (t *showtimeTx) InsertShowtime(ctx context.Context, s *model.Showtime) error {
	const q = `INSERT INTO showtimes (movie_id, room_id, start_date, end_date, start_at) VALUES (?, ?, ?, ?, ?)`
	res, err := t.tx.ExecContext(ctx, q, s.MovieID, s.RoomID, s.StartDate, s.EndDate, s.StartAt)
	if err != nil {
		return translate("insert showtime", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return translate("insert showtime", err)
	}
	s.ID = uint64(id)
	if err := t.tx.QueryRowContext(ctx, "SELECT created_at FROM showtimes WHERE id = ?", s.ID).Scan(&s.CreatedAt); err != nil {
		return translate("reload showtime", err)
	}
	return nil
}

func (t *showtimeTx) UpdateShowtime(ctx context.Context, s *model.Showtime) error {
	const q = `UPDATE showtimes SET movie_id = ?, room_id = ?, start_date = ?, end_date = ?, start_at = ? WHERE id = ?`
	if _, err := t.tx.ExecContext(ctx, q, s.MovieID, s.RoomID, s.StartDate, s.EndDate, s.StartAt, s.ID); err != nil {
		return translate("update showtime", err)
	}
	return nil
}

var (
	_ schedule.Repository = (*ShowtimeRepo)(nil)
	_ schedule.TxStore    = (*showtimeTx)(nil)
)
