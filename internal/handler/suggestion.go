package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/cinema-booking-engine/internal/logger"
	"github.com/iliyamo/cinema-booking-engine/internal/middleware"
	"github.com/iliyamo/cinema-booking-engine/internal/model"
	"github.com/iliyamo/cinema-booking-engine/internal/suggestion"
)

// Suggester is implemented by *suggestion.Engine.
type Suggester interface {
	Preference(ctx context.Context, userID uint64) (suggestion.Preference, error)
	Suggest(ctx context.Context, userID, showtimeID uint64, partySize int) (suggestion.Suggestion, error)
}

type SuggestionHandler struct {
	Engine    Suggester
	Showtimes ShowtimeReader
	Log       *logger.Logger
}

func NewSuggestionHandler(engine Suggester, showtimes ShowtimeReader, log *logger.Logger) *SuggestionHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &SuggestionHandler{Engine: engine, Showtimes: showtimes, Log: log.Component("suggestion")}
}

// Preference handles GET /v1/my/seat-preference.
func (h *SuggestionHandler) Preference(c echo.Context) error {
	p, err := h.Engine.Preference(c.Request().Context(), middleware.UserID(c))
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, p)
}

// Suggest handles GET /v1/showtimes/:id/suggestion?party=N.  Without
// party the user's average group size is used.
func (h *SuggestionHandler) Suggest(c echo.Context) error {
	showtimeID, err := idParam(c, "id")
	if err != nil {
		return respondError(c, h.Log, err)
	}
	party := 0
	if raw := c.QueryParam("party"); raw != "" {
		party, err = strconv.Atoi(raw)
		if err != nil || party < 1 || party > 20 {
			return respondError(c, h.Log, model.NewValidationError("party", "must be between 1 and 20"))
		}
	}
	ctx := c.Request().Context()
	if _, err := h.Showtimes.ShowtimeByID(ctx, showtimeID); err != nil {
		return respondError(c, h.Log, err)
	}
	s, err := h.Engine.Suggest(ctx, middleware.UserID(c), showtimeID, party)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	if s.Seats == nil {
		s.Seats = []model.SeatKey{}
	}
	return c.JSON(http.StatusOK, s)
}
