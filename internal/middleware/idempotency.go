package middleware

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/cinema-booking-engine/internal/config"
	"github.com/iliyamo/cinema-booking-engine/internal/logger"
)

// HeaderIdempotencyKey names the client retry key.
const HeaderIdempotencyKey = "Idempotency-Key"

// maxIdempotencyKey matches reservations.idempotency_key.
const maxIdempotencyKey = 64

// IdempotencyGuard claims the (user, Idempotency-Key) pair in redis for
// the duration of the request.  A second request with the same key while
// the first is still running gets 409; once the first finishes the claim
// is dropped and a retry reaches the handler, which replays the stored
// reservation.  Requests without the header pass through.
func IdempotencyGuard(cfg config.IdempotencyConfig, rdb *redis.Client, log *logger.Logger) echo.MiddlewareFunc {
	if log == nil {
		log = logger.Nop()
	}
	log = log.Component("idempotency")
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := c.Request().Header.Get(HeaderIdempotencyKey)
			if key == "" {
				return next(c)
			}
			if len(key) > maxIdempotencyKey {
				return c.JSON(http.StatusBadRequest, echo.Map{"error": "Idempotency-Key must be at most 64 characters"})
			}
			if !cfg.Enabled || rdb == nil {
				return next(c)
			}

			ctx := c.Request().Context()
			rk := cfg.Prefix + ":" + userKey(c) + ":" + key
			ok, err := rdb.SetNX(ctx, rk, c.Response().Header().Get(echo.HeaderXRequestID), cfg.TTL).Result()
			if err != nil {
				log.WarnContext(ctx, "idempotency guard unavailable", "error", err)
				return next(c)
			}
			if !ok {
				c.Response().Header().Set("Retry-After", "1")
				return c.JSON(http.StatusConflict, echo.Map{"error": "a request with this Idempotency-Key is in progress"})
			}
			defer func() {
				if err := rdb.Del(context.WithoutCancel(ctx), rk).Err(); err != nil {
					log.WarnContext(ctx, "idempotency release failed", "key", rk, "error", err)
				}
			}()
			return next(c)
		}
	}
}
