package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/cinema-booking-engine/internal/logger"
	"github.com/iliyamo/cinema-booking-engine/internal/model"
	"github.com/iliyamo/cinema-booking-engine/internal/repository"
	"github.com/iliyamo/cinema-booking-engine/internal/schedule"
)

// ShowtimeWriter is implemented by *schedule.Service.
type ShowtimeWriter interface {
	Create(ctx context.Context, in schedule.ShowtimeInput) (*model.Showtime, error)
	Update(ctx context.Context, id uint64, in schedule.ShowtimeInput) (*model.Showtime, error)
	DryRun(ctx context.Context, in schedule.ShowtimeInput, excludeID uint64) (schedule.Result, error)
}

// ShowtimeReader looks showtimes up.
type ShowtimeReader interface {
	ShowtimeByID(ctx context.Context, id uint64) (*model.ScheduledShowtime, error)
	ListByRoom(ctx context.Context, roomID uint64) ([]model.ScheduledShowtime, error)
}

type ShowtimeHandler struct {
	Service   ShowtimeWriter
	Showtimes ShowtimeReader
	Searcher  ShowtimeSearcher
	Log       *logger.Logger
}

func NewShowtimeHandler(svc ShowtimeWriter, showtimes ShowtimeReader, searcher ShowtimeSearcher, log *logger.Logger) *ShowtimeHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &ShowtimeHandler{Service: svc, Showtimes: showtimes, Searcher: searcher, Log: log.Component("showtimes")}
}

type showtimeReq struct {
	MovieID   uint64 `json:"movie_id" validate:"required"`
	RoomID    uint64 `json:"room_id" validate:"required"`
	StartDate string `json:"start_date" validate:"required,date"`
	EndDate   string `json:"end_date" validate:"omitempty,date"`
	StartAt   string `json:"start_at" validate:"required,clock"`
}

// input converts the DTO.  A missing end_date schedules a single day.
func (r showtimeReq) input() schedule.ShowtimeInput {
	start, _ := model.ParseDate(r.StartDate)
	end := start
	if r.EndDate != "" {
		end, _ = model.ParseDate(r.EndDate)
	}
	return schedule.ShowtimeInput{
		MovieID:   r.MovieID,
		RoomID:    r.RoomID,
		StartDate: start,
		EndDate:   end,
		StartAt:   r.StartAt,
	}
}

// Create handles POST /v1/admin/showtimes.
func (h *ShowtimeHandler) Create(c echo.Context) error {
	var req showtimeReq
	if err := bind(c, &req); err != nil {
		return respondError(c, h.Log, err)
	}
	st, err := h.Service.Create(c.Request().Context(), req.input())
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusCreated, st)
}

// Update handles PUT /v1/admin/showtimes/:id.
func (h *ShowtimeHandler) Update(c echo.Context) error {
	id, err := idParam(c, "id")
	if err != nil {
		return respondError(c, h.Log, err)
	}
	var req showtimeReq
	if err := bind(c, &req); err != nil {
		return respondError(c, h.Log, err)
	}
	st, err := h.Service.Update(c.Request().Context(), id, req.input())
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, st)
}

type dryRunReq struct {
	showtimeReq
	ExcludeShowtimeID uint64 `json:"exclude_showtime_id"`
}

// Check handles POST /v1/admin/showtimes/check.  It always answers 200
// with the conflict verdict; nothing is written.
func (h *ShowtimeHandler) Check(c echo.Context) error {
	var req dryRunReq
	if err := bind(c, &req); err != nil {
		return respondError(c, h.Log, err)
	}
	res, err := h.Service.DryRun(c.Request().Context(), req.input(), req.ExcludeShowtimeID)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, res)
}

// Get handles GET /v1/showtimes/:id.
func (h *ShowtimeHandler) Get(c echo.Context) error {
	id, err := idParam(c, "id")
	if err != nil {
		return respondError(c, h.Log, err)
	}
	st, err := h.Showtimes.ShowtimeByID(c.Request().Context(), id)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, st)
}

// ListByRoom handles GET /v1/rooms/:id/showtimes.
func (h *ShowtimeHandler) ListByRoom(c echo.Context) error {
	id, err := idParam(c, "id")
	if err != nil {
		return respondError(c, h.Log, err)
	}
	list, err := h.Showtimes.ListByRoom(c.Request().Context(), id)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"items": list})
}

// ShowtimeSearcher is implemented by *repository.ShowtimeRepo.
type ShowtimeSearcher interface {
	Search(ctx context.Context, q repository.ShowtimeSearchQuery) ([]repository.ShowtimeRow, int64, error)
}

// Search handles GET /v1/showtimes?title=&cinema=&date=&page=&page_size=.
// Without date only runs that have not ended are listed.
func (h *ShowtimeHandler) Search(c echo.Context) error {
	if h.Searcher == nil {
		return c.JSON(http.StatusOK, echo.Map{"data": []repository.ShowtimeRow{}, "total": 0})
	}
	q := repository.ShowtimeSearchQuery{
		Title:  strings.TrimSpace(c.QueryParam("title")),
		Cinema: strings.TrimSpace(c.QueryParam("cinema")),
		Today:  model.NewDate(time.Now()),
	}
	if raw := strings.TrimSpace(c.QueryParam("date")); raw != "" {
		d, err := model.ParseDate(raw)
		if err != nil {
			return respondError(c, h.Log, model.NewValidationError("date", "must be YYYY-MM-DD"))
		}
		q.Date = d
	}

	page, _ := strconv.Atoi(c.QueryParam("page"))
	if page < 1 {
		page = 1
	}
	ps, _ := strconv.Atoi(c.QueryParam("page_size"))
	if ps < 1 {
		ps = 20
	}
	if ps > 100 {
		ps = 100
	}
	q.Page, q.PageSize = page, ps

	items, total, err := h.Searcher.Search(c.Request().Context(), q)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"data":      items,
		"total":     total,
		"page":      page,
		"page_size": ps,
	})
}
