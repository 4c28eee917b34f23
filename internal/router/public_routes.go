package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/cinema-booking-engine/internal/handler"
	"github.com/iliyamo/cinema-booking-engine/internal/middleware"
)

// RegisterPublic registers the browse endpoints guests can use without a
// token.  Seat plans go through the response cache; occupancy is always
// read live.
func RegisterPublic(e *echo.Echo, cat *handler.CatalogHandler, st *handler.ShowtimeHandler, b *handler.BookingHandler, cache *middleware.ResponseCache) {
	e.GET("/v1/cinemas", cat.ListCinemas)
	e.GET("/v1/cinemas/:id/rooms", cat.ListRooms)
	e.GET("/v1/rooms/:id/seat-plan", cat.SeatPlan, cache.Middleware())
	e.GET("/v1/rooms/:id/showtimes", st.ListByRoom)

	e.GET("/v1/showtimes", st.Search)
	e.GET("/v1/showtimes/:id", st.Get)
	e.GET("/v1/showtimes/:id/seats", b.Occupancy)
	e.POST("/v1/showtimes/:id/seats/check", b.CheckSeats)
}
