package schedule

import (
	"context"
	"fmt"
	"time"

	"github.com/iliyamo/cinema-booking-engine/internal/logger"
	"github.com/iliyamo/cinema-booking-engine/internal/model"
)

// Repository is the storage the showtime service needs.  InRoomTx runs
// fn inside a transaction that holds the room's row lock, so two
// showtime writes for the same room never interleave their check and
// insert.
type Repository interface {
	Store
	MovieByID(ctx context.Context, id uint64) (*model.Movie, error)
	RoomByID(ctx context.Context, id uint64) (*model.Room, error)
	ShowtimeByID(ctx context.Context, id uint64) (*model.ScheduledShowtime, error)
	InRoomTx(ctx context.Context, roomID uint64, fn func(ctx context.Context, tx TxStore) error) error
}

// TxStore is the transactional view handed to InRoomTx callbacks.
type TxStore interface {
	Store
	InsertShowtime(ctx context.Context, st *model.Showtime) error
	UpdateShowtime(ctx context.Context, st *model.Showtime) error
}

// ShowtimeInput is the payload of createShowtime and its edit variant.
type ShowtimeInput struct {
	MovieID   uint64
	RoomID    uint64
	StartDate model.Date
	EndDate   model.Date
	StartAt   string
}

// Service creates and edits showtimes, consulting the Scheduler first.
type Service struct {
	repo      Repository
	scheduler *Scheduler
	log       *logger.Logger
}

// NewService wires a showtime Service.
func NewService(repo Repository, timeout time.Duration, log *logger.Logger) *Service {
	if log == nil {
		log = logger.Nop()
	}
	return &Service{
		repo:      repo,
		scheduler: NewScheduler(repo, timeout, log),
		log:       log.Component("showtimes"),
	}
}

// Scheduler exposes the read-only checker for dry runs.
func (s *Service) Scheduler() *Scheduler { return s.scheduler }

// Create validates in, rejects it on a schedule conflict and stores it.
func (s *Service) Create(ctx context.Context, in ShowtimeInput) (*model.Showtime, error) {
	movie, err := s.prepare(ctx, in)
	if err != nil {
		return nil, err
	}
	st := &model.Showtime{
		MovieID:   in.MovieID,
		RoomID:    in.RoomID,
		StartDate: in.StartDate,
		EndDate:   in.EndDate,
		StartAt:   in.StartAt,
	}
	err = s.repo.InRoomTx(ctx, in.RoomID, func(ctx context.Context, tx TxStore) error {
		if err := s.scheduler.withStore(tx).EnsureNoConflict(ctx, RangeCandidate{
			RoomID:          in.RoomID,
			StartDate:       in.StartDate,
			EndDate:         in.EndDate,
			StartAt:         in.StartAt,
			DurationMinutes: movie.DurationMinutes,
		}); err != nil {
			return err
		}
		return tx.InsertShowtime(ctx, st)
	})
	if err != nil {
		return nil, fmt.Errorf("create showtime: %w", err)
	}
	s.log.InfoContext(ctx, "showtime created", "showtime_id", st.ID, "room_id", st.RoomID, "start_at", st.StartAt)
	return st, nil
}

// Update replaces an existing showtime's schedule.  The showtime being
// edited is excluded from the conflict check.
func (s *Service) Update(ctx context.Context, id uint64, in ShowtimeInput) (*model.Showtime, error) {
	cur, err := s.repo.ShowtimeByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if in.MovieID == 0 {
		in.MovieID = cur.MovieID
	}
	if in.RoomID == 0 {
		in.RoomID = cur.RoomID
	}
	movie, err := s.prepare(ctx, in)
	if err != nil {
		return nil, err
	}
	st := &model.Showtime{
		ID:        id,
		MovieID:   in.MovieID,
		RoomID:    in.RoomID,
		StartDate: in.StartDate,
		EndDate:   in.EndDate,
		StartAt:   in.StartAt,
		CreatedAt: cur.CreatedAt,
	}
	err = s.repo.InRoomTx(ctx, in.RoomID, func(ctx context.Context, tx TxStore) error {
		if err := s.scheduler.withStore(tx).EnsureNoConflict(ctx, RangeCandidate{
			RoomID:            in.RoomID,
			StartDate:         in.StartDate,
			EndDate:           in.EndDate,
			StartAt:           in.StartAt,
			DurationMinutes:   movie.DurationMinutes,
			ExcludeShowtimeID: id,
		}); err != nil {
			return err
		}
		return tx.UpdateShowtime(ctx, st)
	})
	if err != nil {
		return nil, fmt.Errorf("update showtime %d: %w", id, err)
	}
	return st, nil
}

// DryRun runs the conflict check for in without writing anything.
func (s *Service) DryRun(ctx context.Context, in ShowtimeInput, excludeID uint64) (Result, error) {
	movie, err := s.prepare(ctx, in)
	if err != nil {
		return Result{}, err
	}
	return s.scheduler.CheckRange(ctx, RangeCandidate{
		RoomID:            in.RoomID,
		StartDate:         in.StartDate,
		EndDate:           in.EndDate,
		StartAt:           in.StartAt,
		DurationMinutes:   movie.DurationMinutes,
		ExcludeShowtimeID: excludeID,
	})
}

// prepare validates the input shape and resolves the movie and room.
func (s *Service) prepare(ctx context.Context, in ShowtimeInput) (*model.Movie, error) {
	if in.MovieID == 0 {
		return nil, model.NewValidationError("movie_id", "is required")
	}
	if in.RoomID == 0 {
		return nil, model.NewValidationError("room_id", "is required")
	}
	if in.StartDate.IsZero() || in.EndDate.IsZero() {
		return nil, model.NewValidationError("date_range", "start_date and end_date are required")
	}
	if in.EndDate.Before(in.StartDate.Time) {
		return nil, model.NewValidationError("date_range", "end_date is before start_date")
	}
	if _, err := ParseClock(in.StartAt); err != nil {
		return nil, err
	}
	movie, err := s.repo.MovieByID(ctx, in.MovieID)
	if err != nil {
		return nil, err
	}
	if movie.DurationMinutes <= 0 {
		return nil, model.NewValidationError("movie_id", "movie has no running time")
	}
	room, err := s.repo.RoomByID(ctx, in.RoomID)
	if err != nil {
		return nil, err
	}
	if room.Status == model.RoomInactive {
		return nil, model.NewValidationError("room_id", "room is inactive")
	}
	return movie, nil
}
