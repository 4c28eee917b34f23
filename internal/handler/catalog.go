package handler

import (
	"context"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/cinema-booking-engine/internal/logger"
	"github.com/iliyamo/cinema-booking-engine/internal/model"
	"github.com/iliyamo/cinema-booking-engine/internal/seatgrid"
)

// CinemaStore, MovieStore, RoomStore and SeatStore are the catalog
// repositories.
type CinemaStore interface {
	Create(ctx context.Context, c *model.Cinema) error
	GetByID(ctx context.Context, id uint64) (*model.Cinema, error)
	List(ctx context.Context) ([]model.Cinema, error)
}

type MovieStore interface {
	Create(ctx context.Context, m *model.Movie) error
	GetByID(ctx context.Context, id uint64) (*model.Movie, error)
}

type RoomStore interface {
	Create(ctx context.Context, rm *model.Room) error
	GetByID(ctx context.Context, id uint64) (*model.Room, error)
	ListByCinema(ctx context.Context, cinemaID uint64) ([]model.Room, error)
}

type SeatStore interface {
	CreateBulk(ctx context.Context, seats []model.Seat) error
	ListByRoom(ctx context.Context, roomID uint64) ([]model.Seat, error)
	SetStatus(ctx context.Context, roomID, seatID uint64, status string) error
}

// PlanInvalidator drops cached seat plans.
type PlanInvalidator interface {
	Invalidate(ctx context.Context, uri string)
}

// CatalogHandler provisions cinemas, movies, rooms and seat plans.
type CatalogHandler struct {
	Cinemas CinemaStore
	Movies  MovieStore
	Rooms   RoomStore
	Seats   SeatStore
	Cache   PlanInvalidator
	Log     *logger.Logger
}

func NewCatalogHandler(cinemas CinemaStore, movies MovieStore, rooms RoomStore, seats SeatStore, cache PlanInvalidator, log *logger.Logger) *CatalogHandler {
	if cinemas == nil || movies == nil || rooms == nil || seats == nil {
		panic("nil repository passed to NewCatalogHandler")
	}
	if log == nil {
		log = logger.Nop()
	}
	return &CatalogHandler{Cinemas: cinemas, Movies: movies, Rooms: rooms, Seats: seats, Cache: cache, Log: log.Component("catalog")}
}

func seatPlanURI(roomID uint64) string { return fmt.Sprintf("/v1/rooms/%d/seat-plan", roomID) }

type createCinemaReq struct {
	Name    string `json:"name" validate:"required,max=150"`
	Address string `json:"address" validate:"max=255"`
}

// CreateCinema handles POST /v1/admin/cinemas.
func (h *CatalogHandler) CreateCinema(c echo.Context) error {
	var req createCinemaReq
	if err := bind(c, &req); err != nil {
		return respondError(c, h.Log, err)
	}
	cin := &model.Cinema{Name: req.Name, Address: req.Address}
	if err := h.Cinemas.Create(c.Request().Context(), cin); err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusCreated, cin)
}

// ListCinemas handles GET /v1/cinemas.
func (h *CatalogHandler) ListCinemas(c echo.Context) error {
	list, err := h.Cinemas.List(c.Request().Context())
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"items": list})
}

type createMovieReq struct {
	Title           string `json:"title" validate:"required,max=200"`
	DurationMinutes int    `json:"duration_minutes" validate:"required,gt=0,lte=1440"`
}

// CreateMovie handles POST /v1/admin/movies.
func (h *CatalogHandler) CreateMovie(c echo.Context) error {
	var req createMovieReq
	if err := bind(c, &req); err != nil {
		return respondError(c, h.Log, err)
	}
	m := &model.Movie{Title: req.Title, DurationMinutes: req.DurationMinutes}
	if err := h.Movies.Create(c.Request().Context(), m); err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusCreated, m)
}

type createRoomReq struct {
	CinemaID  uint64 `json:"cinema_id" validate:"required"`
	Name      string `json:"name" validate:"required,max=100"`
	Capacity  int    `json:"capacity" validate:"gte=0"`
	RoomType  string `json:"room_type" validate:"max=32"`
	BasePrice int64  `json:"base_price" validate:"gte=0"`
}

// CreateRoom handles POST /v1/admin/rooms.
func (h *CatalogHandler) CreateRoom(c echo.Context) error {
	var req createRoomReq
	if err := bind(c, &req); err != nil {
		return respondError(c, h.Log, err)
	}
	ctx := c.Request().Context()
	if _, err := h.Cinemas.GetByID(ctx, req.CinemaID); err != nil {
		return respondError(c, h.Log, err)
	}
	if req.RoomType == "" {
		req.RoomType = "2D"
	}
	rm := &model.Room{
		CinemaID:  req.CinemaID,
		Name:      req.Name,
		Capacity:  req.Capacity,
		RoomType:  req.RoomType,
		BasePrice: req.BasePrice,
		Status:    model.RoomActive,
	}
	if err := h.Rooms.Create(ctx, rm); err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusCreated, rm)
}

// ListRooms handles GET /v1/cinemas/:id/rooms.
func (h *CatalogHandler) ListRooms(c echo.Context) error {
	id, err := idParam(c, "id")
	if err != nil {
		return respondError(c, h.Log, err)
	}
	rooms, err := h.Rooms.ListByCinema(c.Request().Context(), id)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"items": rooms})
}

type seatSpec struct {
	Row         string `json:"row" validate:"required,max=8"`
	Number      int    `json:"number" validate:"required,gte=1"`
	Type        string `json:"type" validate:"omitempty,oneof=standard premium"`
	ExtraCharge int64  `json:"extra_charge" validate:"gte=0"`
}

// layoutSpec generates a rectangular plan: Rows rows labelled A, B, ...
// of SeatsPerRow seats each.  Rows named in PremiumRows are premium at
// PremiumExtra.
type layoutSpec struct {
	Rows         int      `json:"rows" validate:"gte=1,lte=702"`
	SeatsPerRow  int      `json:"seats_per_row" validate:"gte=1,lte=200"`
	PremiumRows  []string `json:"premium_rows"`
	PremiumExtra int64    `json:"premium_extra" validate:"gte=0"`
}

type addSeatsReq struct {
	Seats  []seatSpec  `json:"seats" validate:"omitempty,dive"`
	Layout *layoutSpec `json:"layout"`
}

func (l layoutSpec) seats() []seatSpec {
	premium := make(map[string]bool, len(l.PremiumRows))
	for _, r := range l.PremiumRows {
		premium[seatgrid.NormalizeRowLabel(r)] = true
	}
	out := make([]seatSpec, 0, l.Rows*l.SeatsPerRow)
	for i := 0; i < l.Rows; i++ {
		row := seatgrid.IndexToRowLabel(i)
		for n := 1; n <= l.SeatsPerRow; n++ {
			s := seatSpec{Row: row, Number: n, Type: model.SeatTypeStandard}
			if premium[row] {
				s.Type, s.ExtraCharge = model.SeatTypePremium, l.PremiumExtra
			}
			out = append(out, s)
		}
	}
	return out
}

// AddSeats handles POST /v1/admin/rooms/:id/seats.  The payload is either
// an explicit seat list or a generated layout; duplicates within the
// payload are rejected before anything is written.
func (h *CatalogHandler) AddSeats(c echo.Context) error {
	roomID, err := idParam(c, "id")
	if err != nil {
		return respondError(c, h.Log, err)
	}
	var req addSeatsReq
	if err := bind(c, &req); err != nil {
		return respondError(c, h.Log, err)
	}
	if req.Layout != nil {
		req.Seats = append(req.Seats, req.Layout.seats()...)
	}
	if len(req.Seats) == 0 {
		return respondError(c, h.Log, model.NewValidationError("seats", "at least one seat or a layout is required"))
	}

	ctx := c.Request().Context()
	if _, err := h.Rooms.GetByID(ctx, roomID); err != nil {
		return respondError(c, h.Log, err)
	}

	seats := make([]model.Seat, 0, len(req.Seats))
	seen := make(map[model.SeatKey]struct{}, len(req.Seats))
	var dups []model.SeatKey
	for _, s := range req.Seats {
		row := seatgrid.NormalizeRowLabel(s.Row)
		if row == "" {
			return respondError(c, h.Log, model.NewValidationError("seats", fmt.Sprintf("row %q has no letters", s.Row)))
		}
		k := model.SeatKey{Row: row, Number: s.Number}
		if _, dup := seen[k]; dup {
			dups = append(dups, k)
			continue
		}
		seen[k] = struct{}{}
		typ := s.Type
		if typ == "" {
			typ = model.SeatTypeStandard
		}
		seats = append(seats, model.Seat{
			RoomID:      roomID,
			RowName:     row,
			SeatNumber:  s.Number,
			SeatType:    typ,
			ExtraCharge: s.ExtraCharge,
			Status:      model.SeatActive,
		})
	}
	if len(dups) > 0 {
		return respondError(c, h.Log, &model.ValidationError{Field: "seats", Reason: "duplicate seats in payload", Seats: dups})
	}
	if err := h.Seats.CreateBulk(ctx, seats); err != nil {
		return respondError(c, h.Log, err)
	}
	h.invalidate(ctx, roomID)
	return c.JSON(http.StatusCreated, echo.Map{"room_id": roomID, "created": len(seats)})
}

type seatStatusReq struct {
	Status string `json:"status" validate:"required,oneof=active inactive"`
}

// SetSeatStatus handles PATCH /v1/admin/rooms/:id/seats/:seatId.
func (h *CatalogHandler) SetSeatStatus(c echo.Context) error {
	roomID, err := idParam(c, "id")
	if err != nil {
		return respondError(c, h.Log, err)
	}
	seatID, err := idParam(c, "seatId")
	if err != nil {
		return respondError(c, h.Log, err)
	}
	var req seatStatusReq
	if err := bind(c, &req); err != nil {
		return respondError(c, h.Log, err)
	}
	ctx := c.Request().Context()
	if err := h.Seats.SetStatus(ctx, roomID, seatID, req.Status); err != nil {
		return respondError(c, h.Log, err)
	}
	h.invalidate(ctx, roomID)
	return c.NoContent(http.StatusNoContent)
}

type seatPlanResp struct {
	RoomID     uint64 `json:"room_id"`
	Configured bool   `json:"configured"`
	*seatgrid.Grid
}

// SeatPlan handles GET /v1/rooms/:id/seat-plan.  A room without active
// seats answers {"configured": false}.
func (h *CatalogHandler) SeatPlan(c echo.Context) error {
	roomID, err := idParam(c, "id")
	if err != nil {
		return respondError(c, h.Log, err)
	}
	ctx := c.Request().Context()
	if _, err := h.Rooms.GetByID(ctx, roomID); err != nil {
		return respondError(c, h.Log, err)
	}
	seats, err := h.Seats.ListByRoom(ctx, roomID)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	grid := seatgrid.Build(seats)
	for _, w := range grid.Warnings {
		h.Log.WarnContext(ctx, "seat plan integrity", "room_id", roomID, "warning", w.String())
	}
	if grid.Empty() {
		return c.JSON(http.StatusOK, echo.Map{"room_id": roomID, "configured": false})
	}
	return c.JSON(http.StatusOK, seatPlanResp{RoomID: roomID, Configured: true, Grid: grid})
}

func (h *CatalogHandler) invalidate(ctx context.Context, roomID uint64) {
	if h.Cache != nil {
		h.Cache.Invalidate(ctx, seatPlanURI(roomID))
	}
}
