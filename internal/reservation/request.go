package reservation

import (
	"fmt"

	"github.com/iliyamo/cinema-booking-engine/internal/model"
	"github.com/iliyamo/cinema-booking-engine/internal/schedule"
	"github.com/iliyamo/cinema-booking-engine/internal/seatgrid"
)

// SeatRequest is one seat of a booking.  SeatID is optional; the seat is
// identified by RowName and SeatNumber.
type SeatRequest struct {
	RowName     string
	SeatNumber  int
	SeatID      *uint64
	ExtraCharge int64
}

func (s SeatRequest) key() model.SeatKey { return model.SeatKey{Row: s.RowName, Number: s.SeatNumber} }

// CreateRequest carries everything needed to book seats.  RoomID,
// CinemaID, MovieID and StartAt may be left zero and are then taken
// from the showtime; when set they must match it.
type CreateRequest struct {
	ShowtimeID     uint64
	RoomID         uint64
	CinemaID       uint64
	MovieID        uint64
	UserID         uint64
	Username       string
	Phone          string
	ViewingDate    model.Date
	StartAt        string
	BasePrice      int64
	Seats          []SeatRequest
	IdempotencyKey string
}

// UpdateRequest swaps the seats of an existing reservation.
type UpdateRequest struct {
	ReservationID uint64
	UserID        uint64
	Seats         []SeatRequest
}

func (r *CreateRequest) validate() ([]model.SeatKey, error) {
	switch {
	case r.ShowtimeID == 0:
		return nil, model.NewValidationError("showtime_id", "is required")
	case r.UserID == 0:
		return nil, model.NewValidationError("user_id", "is required")
	case r.ViewingDate.IsZero():
		return nil, model.NewValidationError("viewing_date", "is required")
	case r.BasePrice < 0:
		return nil, model.NewValidationError("base_price", "must not be negative")
	case len(r.IdempotencyKey) > 64:
		return nil, model.NewValidationError("idempotency_key", "is longer than 64 characters")
	}
	if r.StartAt != "" {
		if _, err := schedule.ParseClock(r.StartAt); err != nil {
			return nil, err
		}
	}
	return validateSeats(r.Seats)
}

// validateSeats checks the shape of a seat selection and returns its
// keys in request order.
func validateSeats(seats []SeatRequest) ([]model.SeatKey, error) {
	if len(seats) == 0 {
		return nil, model.NewValidationError("seats", "at least one seat is required")
	}
	keys := make([]model.SeatKey, 0, len(seats))
	seen := make(map[model.SeatKey]struct{}, len(seats))
	var dups []model.SeatKey
	for _, s := range seats {
		if s.RowName == "" || seatgrid.NormalizeRowLabel(s.RowName) != s.RowName {
			return nil, &model.ValidationError{Field: "seats", Reason: fmt.Sprintf("row %q must be upper-case letters", s.RowName), Seats: []model.SeatKey{s.key()}}
		}
		if s.SeatNumber < 1 {
			return nil, &model.ValidationError{Field: "seats", Reason: "seat number must be at least 1", Seats: []model.SeatKey{s.key()}}
		}
		if s.ExtraCharge < 0 {
			return nil, &model.ValidationError{Field: "seats", Reason: "extra charge must not be negative", Seats: []model.SeatKey{s.key()}}
		}
		k := s.key()
		if _, ok := seen[k]; ok {
			dups = append(dups, k)
			continue
		}
		seen[k] = struct{}{}
		keys = append(keys, k)
	}
	if len(dups) > 0 {
		return nil, &model.ValidationError{Field: "seats", Reason: "duplicate seats in request", Seats: dups}
	}
	return keys, nil
}

// bindShowtime fills the fields copied from the locked showtime and
// rejects a request that names a different room, cinema, movie or time.
func (r *CreateRequest) bindShowtime(st *model.ScheduledShowtime) error {
	if r.RoomID == 0 {
		r.RoomID = st.RoomID
	} else if r.RoomID != st.RoomID {
		return model.NewValidationError("room_id", "does not match the showtime")
	}
	if r.MovieID == 0 {
		r.MovieID = st.MovieID
	} else if r.MovieID != st.MovieID {
		return model.NewValidationError("movie_id", "does not match the showtime")
	}
	if r.CinemaID == 0 {
		r.CinemaID = st.CinemaID
	} else if st.CinemaID != 0 && r.CinemaID != st.CinemaID {
		return model.NewValidationError("cinema_id", "does not match the showtime")
	}
	if r.StartAt == "" {
		r.StartAt = st.StartAt
	} else if r.StartAt != st.StartAt {
		return model.NewValidationError("start_at", "does not match the showtime")
	}
	if !st.Covers(r.ViewingDate) {
		return model.NewValidationError("viewing_date", fmt.Sprintf("%s is outside the showtime's run", r.ViewingDate))
	}
	return nil
}

// reservation builds the rows to insert, pending payment.
func (r *CreateRequest) reservation() *model.Reservation {
	res := &model.Reservation{
		ShowtimeID:     r.ShowtimeID,
		RoomID:         r.RoomID,
		CinemaID:       r.CinemaID,
		MovieID:        r.MovieID,
		UserID:         r.UserID,
		Username:       r.Username,
		Phone:          r.Phone,
		ViewingDate:    r.ViewingDate,
		StartAt:        r.StartAt,
		BasePrice:      r.BasePrice,
		PaymentStatus:  model.PaymentPending,
		IdempotencyKey: r.IdempotencyKey,
	}
	res.Seats, res.Total = priceSeats(0, r.ShowtimeID, r.BasePrice, r.Seats)
	return res
}

// priceSeats prices each seat at base + extra and returns the rows with
// their sum.
func priceSeats(reservationID, showtimeID uint64, base int64, seats []SeatRequest) ([]model.ReservationSeat, int64) {
	rows := make([]model.ReservationSeat, 0, len(seats))
	var total int64
	for _, s := range seats {
		price := base + s.ExtraCharge
		total += price
		rows = append(rows, model.ReservationSeat{
			ReservationID: reservationID,
			ShowtimeID:    showtimeID,
			SeatID:        s.SeatID,
			RowName:       s.RowName,
			SeatNumber:    s.SeatNumber,
			SeatPrice:     price,
		})
	}
	return rows, total
}
