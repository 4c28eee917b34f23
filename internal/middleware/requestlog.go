package middleware

import (
	"log/slog"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/iliyamo/cinema-booking-engine/internal/logger"
)

// RequestID tags every request with an X-Request-ID, keeping one sent by
// the client.
func RequestID() echo.MiddlewareFunc {
	return echomw.RequestIDWithConfig(echomw.RequestIDConfig{
		Generator: func() string { return uuid.NewString() },
	})
}

// RequestLogger writes one structured line per request.
func RequestLogger(log *logger.Logger) echo.MiddlewareFunc {
	if log == nil {
		log = logger.Nop()
	}
	log = log.Component("http")
	return echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRemoteIP:  true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v echomw.RequestLoggerValues) error {
			attrs := []any{
				slog.String("method", v.Method),
				slog.String("uri", v.URI),
				slog.Int("status", v.Status),
				slog.Duration("latency", v.Latency),
				slog.String("remote_ip", v.RemoteIP),
				slog.String("request_id", v.RequestID),
			}
			if uid := UserID(c); uid != 0 {
				attrs = append(attrs, slog.Uint64("user_id", uid))
			}
			ctx := c.Request().Context()
			switch {
			case v.Error != nil:
				log.ErrorContext(ctx, "request failed", append(attrs, slog.String("error", v.Error.Error()))...)
			case v.Status >= 500:
				log.WarnContext(ctx, "request", attrs...)
			default:
				log.InfoContext(ctx, "request", attrs...)
			}
			return nil
		},
	})
}
