package main // Entry point package

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/cinema-booking-engine/internal/availability"
	"github.com/iliyamo/cinema-booking-engine/internal/config"
	"github.com/iliyamo/cinema-booking-engine/internal/database"
	"github.com/iliyamo/cinema-booking-engine/internal/handler"
	"github.com/iliyamo/cinema-booking-engine/internal/logger"
	"github.com/iliyamo/cinema-booking-engine/internal/middleware"
	"github.com/iliyamo/cinema-booking-engine/internal/queue"
	"github.com/iliyamo/cinema-booking-engine/internal/repository"
	"github.com/iliyamo/cinema-booking-engine/internal/reservation"
	"github.com/iliyamo/cinema-booking-engine/internal/router"
	"github.com/iliyamo/cinema-booking-engine/internal/schedule"
	"github.com/iliyamo/cinema-booking-engine/internal/scheduler"
	"github.com/iliyamo/cinema-booking-engine/internal/service"
	"github.com/iliyamo/cinema-booking-engine/internal/suggestion"
	"github.com/iliyamo/cinema-booking-engine/internal/ticket"
)

func main() {
	cfg := config.Load()
	log := logger.New(logger.Options{Level: cfg.LogLevel, Format: cfg.LogFormat})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(database.Options{
		User:     cfg.DBUser,
		Password: cfg.DBPass,
		Host:     cfg.DBHost,
		Port:     cfg.DBPort,
		Name:     cfg.DBName,
	})
	if err != nil {
		log.Error("open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	if err := database.Migrate(db); err != nil {
		log.Error("migrate database", "error", err)
		os.Exit(1)
	}

	// Redis backs the rate limiter, the seat plan cache and the
	// idempotency guard.  All three pass through when it is down.
	rdb := config.NewRedisClient()
	if rdb == nil {
		log.Warn("redis unavailable; rate limiting, caching and idempotency guard disabled")
	} else {
		defer rdb.Close()
	}

	publisher, err := service.NewPublisher(cfg.Events, log)
	if err != nil {
		log.Error("event publisher", "backend", cfg.Events.Backend, "error", err)
		os.Exit(1)
	}
	defer publisher.Close()

	if cfg.Events.AuditLogPath != "" && cfg.Events.Backend == config.EventsAMQP {
		audit, f, err := queue.OpenAuditLog(cfg.Events.AuditLogPath)
		if err != nil {
			log.Error("open audit log", "path", cfg.Events.AuditLogPath, "error", err)
			os.Exit(1)
		}
		defer f.Close()
		go queue.StartAuditConsumer(ctx, cfg.Events.RabbitURL, cfg.Events.Queue, audit, log)
	}

	timeout := cfg.StorageTimeout
	cinemas := repository.NewCinemaRepo(db, timeout)
	movies := repository.NewMovieRepo(db, timeout)
	rooms := repository.NewRoomRepo(db, timeout)
	seats := repository.NewSeatRepo(db, timeout)
	showtimes := repository.NewShowtimeRepo(db, timeout)
	reservations := repository.NewReservationRepo(db, timeout)
	users := repository.NewUserRepo(db, timeout)

	schedules := schedule.NewService(showtimes, timeout, log)
	checker := availability.NewChecker(reservations, timeout, log)
	bookings := reservation.NewService(reservations, ticket.UUIDIssuer{}, reservation.Options{
		Timeout: timeout,
		Events:  publisher,
		Logger:  log,
	})
	engine := suggestion.NewEngine(reservations, seats, checker, timeout, log)

	sweeper := scheduler.NewSweeper(bookings, cfg.PendingReservationTTL, cfg.SweepInterval, log)
	go sweeper.Run(ctx)

	cache := middleware.NewResponseCache(config.LoadCacheConfig(), rdb, log)
	limit := middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb, log)
	idem := middleware.IdempotencyGuard(config.LoadIdempotencyConfig(), rdb, log)

	catalogH := handler.NewCatalogHandler(cinemas, movies, rooms, seats, cache, log)
	showtimeH := handler.NewShowtimeHandler(schedules, showtimes, showtimes, log)
	bookingH := handler.NewBookingHandler(bookings, checker, showtimes, rooms, seats, cfg.BookingRetryAttempts, log)
	suggestionH := handler.NewSuggestionHandler(engine, showtimes, log)
	authH := handler.NewAuthHandler(cfg, users, log)

	e := echo.New()
	e.HideBanner = true
	e.Validator = handler.NewRequestValidator()
	e.Use(middleware.RequestID(), middleware.RequestLogger(log))

	router.RegisterRoutes(e, db)
	router.RegisterAuth(e, authH, cfg.JWTSecret)
	router.RegisterPublic(e, catalogH, showtimeH, bookingH, cache)
	router.RegisterCustomer(e, bookingH, suggestionH, cfg.JWTSecret, limit, idem)
	router.RegisterAdmin(e, catalogH, showtimeH, bookingH, cfg.JWTSecret)

	addr := ":" + cfg.Port
	go func() {
		log.Info("listening", "addr", addr, "env", cfg.Env)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server stopped", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown", "error", err)
	}
	log.Info("server stopped")
}
