package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/cinema-booking-engine/internal/handler"
	"github.com/iliyamo/cinema-booking-engine/internal/middleware"
	"github.com/iliyamo/cinema-booking-engine/internal/model"
)

// RegisterAdmin registers catalog, schedule and payment management under
// /v1/admin.  All routes require a valid JWT and the ADMIN role.
func RegisterAdmin(e *echo.Echo, cat *handler.CatalogHandler, st *handler.ShowtimeHandler, b *handler.BookingHandler, jwtSecret string) {
	g := e.Group(
		"/v1/admin",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(model.RoleAdmin),
	)

	// ---- Catalog ----
	g.POST("/cinemas", cat.CreateCinema)
	g.POST("/movies", cat.CreateMovie)
	g.POST("/rooms", cat.CreateRoom)
	g.POST("/rooms/:id/seats", cat.AddSeats)
	g.PATCH("/rooms/:id/seats/:seatId", cat.SetSeatStatus)

	// ---- Showtimes ----
	g.POST("/showtimes", st.Create)
	g.POST("/showtimes/check", st.Check)
	g.PUT("/showtimes/:id", st.Update)

	// ---- Reservations ----
	g.POST("/reservations/:id/confirm-payment", b.ConfirmPayment)
	g.POST("/reservations/:id/checkin", b.CheckIn)
}
