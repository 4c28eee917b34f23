package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/cinema-booking-engine/internal/handler"
	"github.com/iliyamo/cinema-booking-engine/internal/middleware"
	"github.com/iliyamo/cinema-booking-engine/internal/model"
)

// RegisterCustomer registers the booking endpoints under /v1.  They need a
// valid JWT; admins may use them too.  limit throttles the whole group
// and idem guards reservation creation against concurrent replays of one
// Idempotency-Key.
func RegisterCustomer(e *echo.Echo, b *handler.BookingHandler, s *handler.SuggestionHandler, jwtSecret string, limit, idem echo.MiddlewareFunc) {
	g := e.Group(
		"/v1",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(model.RoleCustomer, model.RoleAdmin),
		limit,
	)
	g.POST("/reservations", b.Create, idem)
	g.PUT("/reservations/:id/seats", b.UpdateSeats)
	g.POST("/reservations/:id/cancel", b.Cancel)
	g.GET("/reservations/:id", b.Get)
	g.GET("/my/reservations", b.Mine)

	g.GET("/my/seat-preference", s.Preference)
	g.GET("/showtimes/:id/suggestion", s.Suggest)
}
