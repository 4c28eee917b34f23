package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/cinema-booking-engine/internal/logger"
	"github.com/iliyamo/cinema-booking-engine/internal/model"
	"github.com/iliyamo/cinema-booking-engine/internal/repository"
)

// retryAfterSeconds is sent with every 503.
const retryAfterSeconds = "1"

type seatJSON struct {
	Row    string `json:"row"`
	Number int    `json:"number"`
}

func seatsJSON(keys []model.SeatKey) []seatJSON {
	out := make([]seatJSON, 0, len(keys))
	for _, k := range keys {
		out = append(out, seatJSON{Row: k.Row, Number: k.Number})
	}
	return out
}

// respondError renders err through the model error taxonomy.  Anything
// it does not recognise is logged and reported as 500.
func respondError(c echo.Context, log *logger.Logger, err error) error {
	var (
		ve *model.ValidationError
		nf *model.NotFoundError
		sc *model.SeatConflictError
		cf *model.ScheduleConflictError
		te *model.TransientStorageError
		ie *model.IntegrityError
	)
	switch {
	case errors.As(err, &ve):
		body := echo.Map{"error": ve.Error()}
		if ve.Field != "" {
			body["field"] = ve.Field
		}
		if len(ve.Seats) > 0 {
			body["seats"] = seatsJSON(ve.Seats)
		}
		return c.JSON(http.StatusBadRequest, body)
	case errors.As(err, &nf):
		return c.JSON(http.StatusNotFound, echo.Map{"error": nf.Error()})
	case errors.As(err, &sc):
		return c.JSON(http.StatusConflict, echo.Map{
			"error":       "some seats are unavailable",
			"unavailable": seatsJSON(sc.Seats),
		})
	case errors.As(err, &cf):
		return c.JSON(http.StatusConflict, echo.Map{
			"error": cf.Error(),
			"conflict": echo.Map{
				"showtime_id": cf.ShowtimeID,
				"room_id":     cf.RoomID,
				"date":        cf.Date,
				"start_at":    cf.StartAt,
				"end_at":      cf.EndAt,
			},
		})
	case errors.As(err, &te):
		log.WarnContext(c.Request().Context(), "transient storage failure", "op", te.Op, "error", te.Err)
		c.Response().Header().Set("Retry-After", retryAfterSeconds)
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "storage temporarily unavailable, retry"})
	case errors.Is(err, repository.ErrEmailExists):
		return c.JSON(http.StatusConflict, echo.Map{"error": "email already exists"})
	case errors.As(err, &ie):
		return c.JSON(http.StatusConflict, echo.Map{"error": "conflicts with existing data", "constraint": ie.Constraint})
	}
	log.ErrorContext(c.Request().Context(), "request failed", "error", err)
	return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
}

func isNotFound(err error) bool { return errors.Is(err, model.ErrNotFound) }
