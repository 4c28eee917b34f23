package repository

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"time"

	"github.com/iliyamo/cinema-booking-engine/internal/model"
	"github.com/iliyamo/cinema-booking-engine/internal/reservation"
	"github.com/iliyamo/cinema-booking-engine/internal/suggestion"
)

// ReservationRepo stores reservations and their seats.  Seat rows of a
// live reservation carry occupied = 1; cancelling sets it to NULL, which
// takes them out of the uq_rs_occupancy index.  All timestamps are UTC.
type ReservationRepo struct {
	db      *sql.DB
	timeout time.Duration
}

// NewReservationRepo returns a new ReservationRepo bound to the given database.
func NewReservationRepo(db *sql.DB, timeout time.Duration) *ReservationRepo {
	return &ReservationRepo{db: db, timeout: timeout}
}

const reservationColumns = `id, showtime_id, room_id, cinema_id, movie_id, user_id, username, phone,
                            viewing_date, start_at, base_price, total, payment_status, checkin,
                            ticket_token, idempotency_key, created_at, updated_at`

func scanReservation(row interface{ Scan(...any) error }, r *model.Reservation) error {
	var idem sql.NullString
	if err := row.Scan(&r.ID, &r.ShowtimeID, &r.RoomID, &r.CinemaID, &r.MovieID, &r.UserID, &r.Username, &r.Phone,
		&r.ViewingDate, &r.StartAt, &r.BasePrice, &r.Total, &r.PaymentStatus, &r.Checkin,
		&r.TicketToken, &idem, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return err
	}
	r.IdempotencyKey = idem.String
	return nil
}

// getReservation loads one reservation with its seats.  lock appends
// FOR UPDATE to the reservation read.
func getReservation(ctx context.Context, q querier, id uint64, lock bool) (*model.Reservation, error) {
	sel := "SELECT " + reservationColumns + " FROM reservations WHERE id = ?"
	if lock {
		sel += " FOR UPDATE"
	}
	var r model.Reservation
	if err := scanReservation(q.QueryRowContext(ctx, sel, id), &r); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.NewNotFoundError("reservation", id)
		}
		return nil, translate("get reservation", err)
	}
	seats, err := seatsOf(ctx, q, []uint64{r.ID})
	if err != nil {
		return nil, err
	}
	r.Seats = seats[r.ID]
	return &r, nil
}

// seatsOf loads the seat rows of the given reservations keyed by
// reservation id, each list in insertion order.
func seatsOf(ctx context.Context, q querier, ids []uint64) (map[uint64][]model.ReservationSeat, error) {
	out := make(map[uint64][]model.ReservationSeat, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	in := placeholders(1, len(ids))
	args := make([]any, 0, len(ids))
	for _, id := range ids {
		args = append(args, id)
	}
	rows, err := q.QueryContext(ctx, `SELECT reservation_id, showtime_id, seat_id, row_name, seat_number, seat_price
	                                  FROM reservation_seats WHERE reservation_id IN `+in+` ORDER BY id`, args...)
	if err != nil {
		return nil, translate("reservation seats", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			s      model.ReservationSeat
			seatID sql.NullInt64
		)
		if err := rows.Scan(&s.ReservationID, &s.ShowtimeID, &seatID, &s.RowName, &s.SeatNumber, &s.SeatPrice); err != nil {
			return nil, translate("reservation seats", err)
		}
		s.SeatID = nullUint(seatID)
		out[s.ReservationID] = append(out[s.ReservationID], s)
	}
	return out, translate("reservation seats", rows.Err())
}

func occupiedSeats(ctx context.Context, q querier, showtimeID uint64) ([]model.SeatKey, error) {
	rows, err := q.QueryContext(ctx,
		"SELECT row_name, seat_number FROM reservation_seats WHERE showtime_id = ? AND occupied = 1", showtimeID)
	if err != nil {
		return nil, translate("occupied seats", err)
	}
	defer rows.Close()

	var out []model.SeatKey
	for rows.Next() {
		var k model.SeatKey
		if err := rows.Scan(&k.Row, &k.Number); err != nil {
			return nil, translate("occupied seats", err)
		}
		out = append(out, k)
	}
	return out, translate("occupied seats", rows.Err())
}

func findByIdempotencyKey(ctx context.Context, q querier, userID uint64, key string) (*model.Reservation, error) {
	var id uint64
	err := q.QueryRowContext(ctx,
		"SELECT id FROM reservations WHERE user_id = ? AND idempotency_key = ?", userID, key).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, translate("find by idempotency key", err)
	}
	return getReservation(ctx, q, id, false)
}

// WithinTx runs fn in one transaction.  fn's error, or a commit failure,
// rolls everything back.
func (r *ReservationRepo) WithinTx(ctx context.Context, fn func(ctx context.Context, tx reservation.Tx) error) error {
	return withinTx(ctx, r.db, "reservation tx", func(tx *sql.Tx) error {
		return fn(ctx, &reservationTx{tx: tx})
	})
}

// OccupiedSeats returns the seats held by live reservations of a showtime.
func (r *ReservationRepo) OccupiedSeats(ctx context.Context, showtimeID uint64) ([]model.SeatKey, error) {
	ctx, cancel := bound(ctx, r.timeout)
	defer cancel()
	return occupiedSeats(ctx, r.db, showtimeID)
}

// FindByIdempotencyKey returns nil, nil when the user never used key.
func (r *ReservationRepo) FindByIdempotencyKey(ctx context.Context, userID uint64, key string) (*model.Reservation, error) {
	ctx, cancel := bound(ctx, r.timeout)
	defer cancel()
	return findByIdempotencyKey(ctx, r.db, userID, key)
}

// Get loads one reservation with its seats.
func (r *ReservationRepo) Get(ctx context.Context, id uint64) (*model.Reservation, error) {
	ctx, cancel := bound(ctx, r.timeout)
	defer cancel()
	return getReservation(ctx, r.db, id, false)
}

// ListByUser returns a user's reservations, newest first, with seats.
func (r *ReservationRepo) ListByUser(ctx context.Context, userID uint64) ([]model.Reservation, error) {
	ctx, cancel := bound(ctx, r.timeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx,
		"SELECT "+reservationColumns+" FROM reservations WHERE user_id = ? ORDER BY id DESC", userID)
	if err != nil {
		return nil, translate("list reservations", err)
	}
	var (
		out []model.Reservation
		ids []uint64
	)
	for rows.Next() {
		var res model.Reservation
		if err := scanReservation(rows, &res); err != nil {
			rows.Close()
			return nil, translate("list reservations", err)
		}
		out = append(out, res)
		ids = append(ids, res.ID)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, translate("list reservations", err)
	}

	seats, err := seatsOf(ctx, r.db, ids)
	if err != nil {
		return nil, err
	}
	for i := range out {
		out[i].Seats = seats[out[i].ID]
	}
	return out, nil
}

// PendingBefore lists pending reservations created before cutoff, oldest
// first.
func (r *ReservationRepo) PendingBefore(ctx context.Context, cutoff time.Time, limit int) ([]uint64, error) {
	ctx, cancel := bound(ctx, r.timeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `SELECT id FROM reservations
	                                     WHERE payment_status = ? AND created_at < ?
	                                     ORDER BY created_at, id LIMIT ?`, model.PaymentPending, cutoff.UTC(), limit)
	if err != nil {
		return nil, translate("pending reservations", err)
	}
	defer rows.Close()

	var ids []uint64
	for rows.Next() {
		var id uint64
		if err := rows.Scan(&id); err != nil {
			return nil, translate("pending reservations", err)
		}
		ids = append(ids, id)
	}
	return ids, translate("pending reservations", rows.Err())
}

// SeatHistory returns, for each non-cancelled reservation of userID, the
// row names of its seats and the ordered active rows of its room.
func (r *ReservationRepo) SeatHistory(ctx context.Context, userID uint64) ([]suggestion.HistoryEntry, error) {
	ctx, cancel := bound(ctx, r.timeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `SELECT res.id, res.room_id, rs.row_name
	                                     FROM reservations res
	                                     JOIN reservation_seats rs ON rs.reservation_id = res.id
	                                     WHERE res.user_id = ? AND res.payment_status <> ?
	                                     ORDER BY res.id, rs.id`, userID, model.PaymentCancelled)
	if err != nil {
		return nil, translate("seat history", err)
	}
	var (
		out    []suggestion.HistoryEntry
		roomOf = map[uint64]uint64{}
	)
	for rows.Next() {
		var resID, roomID uint64
		var row string
		if err := rows.Scan(&resID, &roomID, &row); err != nil {
			rows.Close()
			return nil, translate("seat history", err)
		}
		if n := len(out); n == 0 || out[n-1].ReservationID != resID {
			out = append(out, suggestion.HistoryEntry{ReservationID: resID})
			roomOf[resID] = roomID
		}
		out[len(out)-1].SeatRows = append(out[len(out)-1].SeatRows, row)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, translate("seat history", err)
	}

	roomRows := map[uint64][]string{}
	for i := range out {
		roomID := roomOf[out[i].ReservationID]
		if _, ok := roomRows[roomID]; !ok {
			labels, err := activeRows(ctx, r.db, roomID)
			if err != nil {
				return nil, err
			}
			roomRows[roomID] = labels
		}
		out[i].RoomRows = roomRows[roomID]
	}
	return out, nil
}

func activeRows(ctx context.Context, q querier, roomID uint64) ([]string, error) {
	rows, err := q.QueryContext(ctx, "SELECT DISTINCT row_name FROM seats WHERE room_id = ? AND status = ?", roomID, model.SeatActive)
	if err != nil {
		return nil, translate("room rows", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, translate("room rows", err)
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return model.RowLess(out[i], out[j]) })
	return out, translate("room rows", rows.Err())
}

// reservationTx implements reservation.Tx on one *sql.Tx.
type reservationTx struct {
	tx *sql.Tx
}

func (t *reservationTx) LockShowtime(ctx context.Context, showtimeID uint64) (*model.ScheduledShowtime, error) {
	var s model.ScheduledShowtime
	err := scanScheduled(t.tx.QueryRowContext(ctx,
		"SELECT "+scheduledColumns+scheduledFrom+" WHERE st.id = ? FOR UPDATE OF st", showtimeID), &s)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.NewNotFoundError("showtime", showtimeID)
		}
		return nil, translate("lock showtime", err)
	}
	return &s, nil
}

func (t *reservationTx) LockReservation(ctx context.Context, id uint64) (*model.Reservation, error) {
	return getReservation(ctx, t.tx, id, true)
}

func (t *reservationTx) OccupiedSeats(ctx context.Context, showtimeID uint64) ([]model.SeatKey, error) {
	return occupiedSeats(ctx, t.tx, showtimeID)
}

func (t *reservationTx) FindByIdempotencyKey(ctx context.Context, userID uint64, key string) (*model.Reservation, error) {
	return findByIdempotencyKey(ctx, t.tx, userID, key)
}

// InsertReservation inserts r and reads back its timestamps.
func (t *reservationTx) InsertReservation(ctx context.Context, r *model.Reservation) error {
	const q = `INSERT INTO reservations (showtime_id, room_id, cinema_id, movie_id, user_id, username, phone,
	                                    viewing_date, start_at, base_price, total, payment_status, checkin,
	                                    ticket_token, idempotency_key)
	           VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	res, err := t.tx.ExecContext(ctx, q, r.ShowtimeID, r.RoomID, r.CinemaID, r.MovieID, r.UserID, r.Username, r.Phone,
		r.ViewingDate, r.StartAt, r.BasePrice, r.Total, r.PaymentStatus, r.Checkin,
		r.TicketToken, nullString(r.IdempotencyKey))
	if err != nil {
		return translate("insert reservation", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return translate("insert reservation", err)
	}
	r.ID = uint64(id)
	if err := t.tx.QueryRowContext(ctx, "SELECT created_at, updated_at FROM reservations WHERE id = ?", r.ID).
		Scan(&r.CreatedAt, &r.UpdatedAt); err != nil {
		return translate("reload reservation", err)
	}
	return nil
}

// InsertSeats inserts all rows in a single statement, each occupying its
// seat.  A seat already held by another live reservation fails with
// *model.IntegrityError on uq_rs_occupancy.
func (t *reservationTx) InsertSeats(ctx context.Context, seats []model.ReservationSeat) error {
	if len(seats) == 0 {
		return nil
	}
	query := `INSERT INTO reservation_seats (reservation_id, showtime_id, seat_id, row_name, seat_number, seat_price, occupied) VALUES ` +
		placeholders(len(seats), 7)
	args := make([]any, 0, len(seats)*7)
	for _, s := range seats {
		args = append(args, s.ReservationID, s.ShowtimeID, s.SeatID, s.RowName, s.SeatNumber, s.SeatPrice, 1)
	}
	if _, err := t.tx.ExecContext(ctx, query, args...); err != nil {
		return translate("insert reservation seats", err)
	}
	return nil
}

func (t *reservationTx) DeleteSeats(ctx context.Context, reservationID uint64) error {
	if _, err := t.tx.ExecContext(ctx, "DELETE FROM reservation_seats WHERE reservation_id = ?", reservationID); err != nil {
		return translate("delete reservation seats", err)
	}
	return nil
}

func (t *reservationTx) UpdateTotal(ctx context.Context, id uint64, total int64) error {
	if _, err := t.tx.ExecContext(ctx, "UPDATE reservations SET total = ? WHERE id = ?", total, id); err != nil {
		return translate("update total", err)
	}
	return nil
}

// SetPaymentStatus updates the status; cancelling also clears occupied on
// the seat rows in the same transaction.
func (t *reservationTx) SetPaymentStatus(ctx context.Context, id uint64, status string) error {
	if _, err := t.tx.ExecContext(ctx, "UPDATE reservations SET payment_status = ? WHERE id = ?", status, id); err != nil {
		return translate("update payment status", err)
	}
	if status != model.PaymentCancelled {
		return nil
	}
	if _, err := t.tx.ExecContext(ctx, "UPDATE reservation_seats SET occupied = NULL WHERE reservation_id = ?", id); err != nil {
		return translate("release seats", err)
	}
	return nil
}

func (t *reservationTx) SetCheckin(ctx context.Context, id uint64) error {
	if _, err := t.tx.ExecContext(ctx, "UPDATE reservations SET checkin = 1 WHERE id = ?", id); err != nil {
		return translate("check in", err)
	}
	return nil
}

var (
	_ reservation.Store        = (*ReservationRepo)(nil)
	_ reservation.Tx           = (*reservationTx)(nil)
	_ suggestion.HistoryReader = (*ReservationRepo)(nil)
	_ suggestion.SeatSource    = (*SeatRepo)(nil)
)
