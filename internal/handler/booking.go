package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/cinema-booking-engine/internal/availability"
	"github.com/iliyamo/cinema-booking-engine/internal/logger"
	"github.com/iliyamo/cinema-booking-engine/internal/middleware"
	"github.com/iliyamo/cinema-booking-engine/internal/model"
	"github.com/iliyamo/cinema-booking-engine/internal/reservation"
	"github.com/iliyamo/cinema-booking-engine/internal/seatgrid"
)

// Bookings is implemented by *reservation.Service.
type Bookings interface {
	Create(ctx context.Context, req reservation.CreateRequest) (*model.Reservation, error)
	Update(ctx context.Context, req reservation.UpdateRequest) (*model.Reservation, error)
	Cancel(ctx context.Context, id, userID uint64) (*model.Reservation, error)
	ConfirmPayment(ctx context.Context, id uint64) (*model.Reservation, error)
	CheckIn(ctx context.Context, id uint64) (*model.Reservation, error)
	Get(ctx context.Context, id, userID uint64) (*model.Reservation, error)
	ListByUser(ctx context.Context, userID uint64) ([]model.Reservation, error)
}

// Availability is implemented by *availability.Checker.
type Availability interface {
	CheckRoomSeats(ctx context.Context, showtimeID uint64, grid *seatgrid.Grid, candidates []model.SeatKey) (availability.Result, error)
	View(ctx context.Context, showtimeID uint64, grid *seatgrid.Grid) (*seatgrid.OccupancyView, error)
}

// ShowtimeSeats returns the seat records of the room a showtime plays in.
type ShowtimeSeats interface {
	ShowtimeSeats(ctx context.Context, showtimeID uint64) ([]model.Seat, error)
}

// RoomLookup resolves a room, for its base price.
type RoomLookup interface {
	GetByID(ctx context.Context, id uint64) (*model.Room, error)
}

// BookingHandler serves seat checks and the reservation lifecycle.
type BookingHandler struct {
	Bookings     Bookings
	Availability Availability
	Showtimes    ShowtimeReader
	Rooms        RoomLookup
	Seats        ShowtimeSeats
	Log          *logger.Logger

	// RetryAttempts is how many extra times Create is tried after a
	// transient storage failure.
	RetryAttempts int
	RetryBackoff  time.Duration
}

func NewBookingHandler(bookings Bookings, avail Availability, showtimes ShowtimeReader, rooms RoomLookup, seats ShowtimeSeats, retries int, log *logger.Logger) *BookingHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &BookingHandler{
		Bookings:      bookings,
		Availability:  avail,
		Showtimes:     showtimes,
		Rooms:         rooms,
		Seats:         seats,
		Log:           log.Component("booking"),
		RetryAttempts: retries,
		RetryBackoff:  50 * time.Millisecond,
	}
}

type seatRef struct {
	Row    string `json:"row" validate:"required,max=8"`
	Number int    `json:"number" validate:"required,gte=1"`
}

type seatListReq struct {
	Seats []seatRef `json:"seats" validate:"required,min=1,max=20,dive"`
}

// checkSeatsReq accepts an empty list, which just reports the occupied
// set.
type checkSeatsReq struct {
	Seats []seatRef `json:"seats" validate:"max=200,dive"`
}

func keysOf(refs []seatRef) []model.SeatKey {
	out := make([]model.SeatKey, 0, len(refs))
	for _, s := range refs {
		out = append(out, model.SeatKey{Row: seatgrid.NormalizeRowLabel(s.Row), Number: s.Number})
	}
	return out
}

type createReservationReq struct {
	ShowtimeID  uint64    `json:"showtime_id" validate:"required"`
	Seats       []seatRef `json:"seats" validate:"required,min=1,max=20,dive"`
	ViewingDate string    `json:"viewing_date" validate:"required,date"`
	Phone       string    `json:"phone" validate:"max=32"`
}

// grid loads the seat plan of the showtime's room.
func (h *BookingHandler) grid(ctx context.Context, showtimeID uint64) (*seatgrid.Grid, error) {
	seats, err := h.Seats.ShowtimeSeats(ctx, showtimeID)
	if err != nil {
		return nil, err
	}
	return seatgrid.Build(seats), nil
}

// seatRequests prices keys against grid.  Unknown or inactive seats fail
// with a ValidationError naming them.
func seatRequests(grid *seatgrid.Grid, keys []model.SeatKey) ([]reservation.SeatRequest, error) {
	if unknown := grid.Unknown(keys); len(unknown) > 0 {
		return nil, &model.ValidationError{
			Field:  "seats",
			Reason: "not part of the room's seat plan",
			Seats:  availability.SortKeys(unknown),
		}
	}
	out := make([]reservation.SeatRequest, 0, len(keys))
	for _, k := range keys {
		seat, _ := grid.SeatAt(k.Row, k.Number)
		id := seat.ID
		out = append(out, reservation.SeatRequest{
			RowName:     k.Row,
			SeatNumber:  k.Number,
			SeatID:      &id,
			ExtraCharge: seat.ExtraCharge,
		})
	}
	return out, nil
}

// CheckSeats handles POST /v1/showtimes/:id/seats/check.
func (h *BookingHandler) CheckSeats(c echo.Context) error {
	showtimeID, err := idParam(c, "id")
	if err != nil {
		return respondError(c, h.Log, err)
	}
	var req checkSeatsReq
	if err := bind(c, &req); err != nil {
		return respondError(c, h.Log, err)
	}
	ctx := c.Request().Context()
	if _, err := h.Showtimes.ShowtimeByID(ctx, showtimeID); err != nil {
		return respondError(c, h.Log, err)
	}
	grid, err := h.grid(ctx, showtimeID)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	res, err := h.Availability.CheckRoomSeats(ctx, showtimeID, grid, keysOf(req.Seats))
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, res)
}

type occupancyResp struct {
	ShowtimeID uint64                 `json:"showtime_id"`
	Configured bool                   `json:"configured"`
	Rows       []string               `json:"rows"`
	Columns    []int                  `json:"columns"`
	Cells      [][]seatgrid.CellState `json:"cells"`
	Free       int                    `json:"free"`
	Occupied   []model.SeatKey        `json:"occupied"`
}

// Occupancy handles GET /v1/showtimes/:id/seats.  Cells hold 0 for no
// seat, 1 for free and 2 for occupied.
func (h *BookingHandler) Occupancy(c echo.Context) error {
	showtimeID, err := idParam(c, "id")
	if err != nil {
		return respondError(c, h.Log, err)
	}
	ctx := c.Request().Context()
	if _, err := h.Showtimes.ShowtimeByID(ctx, showtimeID); err != nil {
		return respondError(c, h.Log, err)
	}
	grid, err := h.grid(ctx, showtimeID)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	if grid.Empty() {
		return c.JSON(http.StatusOK, echo.Map{"showtime_id": showtimeID, "configured": false})
	}
	view, err := h.Availability.View(ctx, showtimeID, grid)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, occupancyResp{
		ShowtimeID: showtimeID,
		Configured: true,
		Rows:       grid.Rows,
		Columns:    grid.Columns,
		Cells:      view.Cells(),
		Free:       view.FreeCount(),
		Occupied:   view.Occupied(),
	})
}

// Create handles POST /v1/reservations.  The optional Idempotency-Key
// header makes retries safe: a repeated key returns the reservation
// created the first time.
func (h *BookingHandler) Create(c echo.Context) error {
	var req createReservationReq
	if err := bind(c, &req); err != nil {
		return respondError(c, h.Log, err)
	}
	showtimeID := req.ShowtimeID
	viewing, _ := model.ParseDate(req.ViewingDate)

	ctx := c.Request().Context()
	st, err := h.Showtimes.ShowtimeByID(ctx, showtimeID)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	room, err := h.Rooms.GetByID(ctx, st.RoomID)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	grid, err := h.grid(ctx, showtimeID)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	seats, err := seatRequests(grid, keysOf(req.Seats))
	if err != nil {
		return respondError(c, h.Log, err)
	}

	cr := reservation.CreateRequest{
		ShowtimeID:     showtimeID,
		UserID:         middleware.UserID(c),
		Username:       middleware.Username(c),
		Phone:          req.Phone,
		ViewingDate:    viewing,
		BasePrice:      room.BasePrice,
		Seats:          seats,
		IdempotencyKey: c.Request().Header.Get(middleware.HeaderIdempotencyKey),
	}
	r, err := h.createWithRetry(ctx, cr)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusCreated, r)
}

// createWithRetry retries Create on transient storage failures.  Each
// attempt is a fresh transaction, so a retry never double-books.
func (h *BookingHandler) createWithRetry(ctx context.Context, req reservation.CreateRequest) (*model.Reservation, error) {
	var (
		r   *model.Reservation
		err error
	)
	for attempt := 0; attempt <= h.RetryAttempts; attempt++ {
		if attempt > 0 {
			h.Log.WarnContext(ctx, "retrying reservation", "showtime_id", req.ShowtimeID, "attempt", attempt, "error", err)
			select {
			case <-ctx.Done():
				return nil, err
			case <-time.After(time.Duration(attempt) * h.RetryBackoff):
			}
		}
		r, err = h.Bookings.Create(ctx, req)
		if err == nil || !errors.Is(err, model.ErrTransient) {
			return r, err
		}
	}
	return nil, err
}

// UpdateSeats handles PUT /v1/reservations/:id/seats.
func (h *BookingHandler) UpdateSeats(c echo.Context) error {
	id, err := idParam(c, "id")
	if err != nil {
		return respondError(c, h.Log, err)
	}
	var req seatListReq
	if err := bind(c, &req); err != nil {
		return respondError(c, h.Log, err)
	}
	ctx := c.Request().Context()
	userID := ownerScope(c)
	cur, err := h.Bookings.Get(ctx, id, userID)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	grid, err := h.grid(ctx, cur.ShowtimeID)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	seats, err := seatRequests(grid, keysOf(req.Seats))
	if err != nil {
		return respondError(c, h.Log, err)
	}
	r, err := h.Bookings.Update(ctx, reservation.UpdateRequest{ReservationID: id, UserID: userID, Seats: seats})
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, r)
}

// Cancel handles POST /v1/reservations/:id/cancel.
func (h *BookingHandler) Cancel(c echo.Context) error {
	id, err := idParam(c, "id")
	if err != nil {
		return respondError(c, h.Log, err)
	}
	r, err := h.Bookings.Cancel(c.Request().Context(), id, ownerScope(c))
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, r)
}

// Get handles GET /v1/reservations/:id.  Admins see every reservation;
// customers only their own.
func (h *BookingHandler) Get(c echo.Context) error {
	id, err := idParam(c, "id")
	if err != nil {
		return respondError(c, h.Log, err)
	}
	r, err := h.Bookings.Get(c.Request().Context(), id, ownerScope(c))
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, r)
}

// Mine handles GET /v1/my/reservations.
func (h *BookingHandler) Mine(c echo.Context) error {
	list, err := h.Bookings.ListByUser(c.Request().Context(), middleware.UserID(c))
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"items": list})
}

// ConfirmPayment handles POST /v1/admin/reservations/:id/confirm-payment.
func (h *BookingHandler) ConfirmPayment(c echo.Context) error {
	id, err := idParam(c, "id")
	if err != nil {
		return respondError(c, h.Log, err)
	}
	r, err := h.Bookings.ConfirmPayment(c.Request().Context(), id)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, r)
}

// CheckIn handles POST /v1/admin/reservations/:id/checkin.
func (h *BookingHandler) CheckIn(c echo.Context) error {
	id, err := idParam(c, "id")
	if err != nil {
		return respondError(c, h.Log, err)
	}
	r, err := h.Bookings.CheckIn(c.Request().Context(), id)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, r)
}

// ownerScope is the user id reservation lookups are restricted to; zero
// for admins.
func ownerScope(c echo.Context) uint64 {
	if middleware.Role(c) == model.RoleAdmin {
		return 0
	}
	return middleware.UserID(c)
}
