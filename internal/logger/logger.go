// Package logger wraps log/slog with the level and format switches the
// service reads from the environment, plus a few helpers for the
// booking events worth a structured line.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Logger wraps slog.Logger with additional helpers.
type Logger struct {
	*slog.Logger
}

// Options selects the level and output format.  Format is "json" or
// "text"; anything else falls back to text.
type Options struct {
	Level  string
	Format string
	Output io.Writer
}

// New creates a logger from opts.
func New(opts Options) *Logger {
	out := opts.Output
	if out == nil {
		out = os.Stdout
	}
	level := ParseLevel(opts.Level)
	hopts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}
	var h slog.Handler
	if strings.EqualFold(opts.Format, "json") {
		h = slog.NewJSONHandler(out, hopts)
	} else {
		h = slog.NewTextHandler(out, hopts)
	}
	return &Logger{Logger: slog.New(h)}
}

// Nop returns a logger that discards everything.  Tests use it.
func Nop() *Logger {
	return &Logger{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

// ParseLevel converts LOG_LEVEL strings to slog levels; unknown values
// mean info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Component returns a child logger tagged with a component name.
func (l *Logger) Component(name string) *Logger {
	return &Logger{Logger: l.Logger.With(slog.String("component", name))}
}

// WithRequestID adds the request ID to the logger context.
func (l *Logger) WithRequestID(requestID string) *Logger {
	return &Logger{Logger: l.Logger.With(slog.String("request_id", requestID))}
}

// WithError adds err to the logger context.
func (l *Logger) WithError(err error) *Logger {
	return &Logger{Logger: l.Logger.With(slog.String("error", err.Error()))}
}

// WithFields adds multiple fields to the logger context.
func (l *Logger) WithFields(fields map[string]any) *Logger {
	args := make([]any, 0, len(fields))
	for k, v := range fields {
		args = append(args, slog.Any(k, v))
	}
	return &Logger{Logger: l.Logger.With(args...)}
}

// LogReservationCreated records a committed booking.
func (l *Logger) LogReservationCreated(ctx context.Context, reservationID, showtimeID, userID uint64, seats int, total int64) {
	l.Logger.InfoContext(ctx, "reservation created",
		slog.Uint64("reservation_id", reservationID),
		slog.Uint64("showtime_id", showtimeID),
		slog.Uint64("user_id", userID),
		slog.Int("seats", seats),
		slog.Int64("total", total),
	)
}

// LogReservationCancelled records a release of seats.
func (l *Logger) LogReservationCancelled(ctx context.Context, reservationID, showtimeID uint64, reason string) {
	l.Logger.InfoContext(ctx, "reservation cancelled",
		slog.Uint64("reservation_id", reservationID),
		slog.Uint64("showtime_id", showtimeID),
		slog.String("reason", reason),
	)
}

// LogSeatConflict records a booking rejected at commit time.
func (l *Logger) LogSeatConflict(ctx context.Context, showtimeID uint64, seats []string) {
	l.Logger.WarnContext(ctx, "seat conflict",
		slog.Uint64("showtime_id", showtimeID),
		slog.Any("seats", seats),
	)
}

// LogScheduleConflict records a rejected showtime.
func (l *Logger) LogScheduleConflict(ctx context.Context, roomID, conflictingID uint64, date string) {
	l.Logger.WarnContext(ctx, "schedule conflict",
		slog.Uint64("room_id", roomID),
		slog.Uint64("conflicting_showtime_id", conflictingID),
		slog.String("date", date),
	)
}
