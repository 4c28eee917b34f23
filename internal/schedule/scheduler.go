// Package schedule decides whether a showtime can run in a room at a
// given daily start time without overlapping another showtime in that
// room, and gates showtime creation and edits on that decision.
package schedule

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/iliyamo/cinema-booking-engine/internal/logger"
	"github.com/iliyamo/cinema-booking-engine/internal/model"
)

const minutesPerDay = 24 * 60

// MaxRangeDays bounds how many calendar days one showtime may span.
const MaxRangeDays = 366

// Interval is a half-open [Start, End) span in minutes since midnight
// of the day being checked.
type Interval struct {
	Start int
	End   int
}

// Overlaps is the strict overlap test.  Intervals that only touch
// (one ends exactly when the other starts) do not overlap.
func Overlaps(a, b Interval) bool {
	return a.Start < b.End && b.Start < a.End
}

// ParseClock converts "HH:MM" (24h) to minutes since midnight.
func ParseClock(s string) (int, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok || len(hh) != 2 || len(mm) != 2 {
		return 0, model.NewValidationError("start_at", fmt.Sprintf("%q is not HH:MM", s))
	}
	h, err1 := strconv.Atoi(hh)
	m, err2 := strconv.Atoi(mm)
	if err1 != nil || err2 != nil || h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, model.NewValidationError("start_at", fmt.Sprintf("%q is not a valid time of day", s))
	}
	return h*60 + m, nil
}

// FormatClock renders minutes since midnight as "HH:MM".  Values past
// midnight wrap to the next day.
func FormatClock(m int) string {
	m = ((m % minutesPerDay) + minutesPerDay) % minutesPerDay
	return fmt.Sprintf("%02d:%02d", m/60, m%60)
}

// IntervalAt builds the interval of a screening starting at startAt and
// lasting durationMinutes.
func IntervalAt(startAt string, durationMinutes int) (Interval, error) {
	start, err := ParseClock(startAt)
	if err != nil {
		return Interval{}, err
	}
	if durationMinutes <= 0 {
		return Interval{}, model.NewValidationError("duration", "must be positive")
	}
	return Interval{Start: start, End: start + durationMinutes}, nil
}

// Store lists the showtimes of a room that play on a calendar day,
// joined with their movie's running time.
type Store interface {
	ShowtimesOn(ctx context.Context, roomID uint64, date model.Date) ([]model.ScheduledShowtime, error)
}

// Candidate is a proposed screening on a single day.
type Candidate struct {
	RoomID            uint64
	Date              model.Date
	StartAt           string
	DurationMinutes   int
	ExcludeShowtimeID uint64 // set when editing an existing showtime
}

// RangeCandidate is a proposed showtime over an inclusive date range.
type RangeCandidate struct {
	RoomID            uint64
	StartDate         model.Date
	EndDate           model.Date
	StartAt           string
	DurationMinutes   int
	ExcludeShowtimeID uint64
}

// Result is the outcome of a conflict check.  Showtime and Date are set
// only when Conflict is true.
type Result struct {
	Conflict bool                     `json:"conflict"`
	Showtime *model.ScheduledShowtime `json:"conflicting_showtime,omitempty"`
	Date     model.Date               `json:"date,omitempty"`
	StartAt  string                   `json:"start_at,omitempty"`
	EndAt    string                   `json:"end_at,omitempty"`
}

// Scheduler checks candidates against the showtimes already stored.
type Scheduler struct {
	store   Store
	timeout time.Duration
	log     *logger.Logger
}

// NewScheduler returns a Scheduler reading from store.  Every store
// call is bounded by timeout.
func NewScheduler(store Store, timeout time.Duration, log *logger.Logger) *Scheduler {
	if log == nil {
		log = logger.Nop()
	}
	return &Scheduler{store: store, timeout: timeout, log: log.Component("schedule")}
}

// withStore returns a copy of s reading from another store, e.g. one
// bound to a transaction.
func (s *Scheduler) withStore(store Store) *Scheduler {
	cp := *s
	cp.store = store
	return &cp
}

// CheckConflict tests one calendar day.  Besides showtimes starting on
// that day it also considers screenings of the previous day that run
// past midnight, and showtimes of the next day that the candidate
// itself would run into.
func (s *Scheduler) CheckConflict(ctx context.Context, c Candidate) (Result, error) {
	if c.RoomID == 0 {
		return Result{}, model.NewValidationError("room_id", "is required")
	}
	if c.Date.IsZero() {
		return Result{}, model.NewValidationError("date", "is required")
	}
	cand, err := IntervalAt(c.StartAt, c.DurationMinutes)
	if err != nil {
		return Result{}, err
	}

	for _, shift := range []int{0, -1, 1} {
		if shift == 1 && cand.End <= minutesPerDay {
			continue
		}
		day := c.Date.AddDays(shift)
		existing, err := s.load(ctx, c.RoomID, day)
		if err != nil {
			return Result{}, err
		}
		for i := range existing {
			st := existing[i]
			if c.ExcludeShowtimeID != 0 && st.ID == c.ExcludeShowtimeID {
				continue
			}
			iv, err := IntervalAt(st.StartAt, st.DurationMinutes)
			if err != nil {
				// a stored row with a bad clock cannot be compared
				s.log.Warn("skipping malformed showtime", "showtime_id", st.ID, "start_at", st.StartAt)
				continue
			}
			iv.Start += shift * minutesPerDay
			iv.End += shift * minutesPerDay
			if Overlaps(cand, iv) {
				return Result{
					Conflict: true,
					Showtime: &st,
					Date:     day,
					StartAt:  st.StartAt,
					EndAt:    FormatClock(iv.End),
				}, nil
			}
		}
	}
	return Result{}, nil
}

// CheckRange expands the inclusive date range into per-day checks and
// returns the first conflicting day.
func (s *Scheduler) CheckRange(ctx context.Context, rc RangeCandidate) (Result, error) {
	if rc.StartDate.IsZero() || rc.EndDate.IsZero() {
		return Result{}, model.NewValidationError("date_range", "start_date and end_date are required")
	}
	if rc.EndDate.Before(rc.StartDate.Time) {
		return Result{}, model.NewValidationError("date_range", "end_date is before start_date")
	}
	days := int(rc.EndDate.Sub(rc.StartDate.Time).Hours()/24) + 1
	if days > MaxRangeDays {
		return Result{}, model.NewValidationError("date_range", fmt.Sprintf("spans %d days, max %d", days, MaxRangeDays))
	}
	for d := 0; d < days; d++ {
		res, err := s.CheckConflict(ctx, Candidate{
			RoomID:            rc.RoomID,
			Date:              rc.StartDate.AddDays(d),
			StartAt:           rc.StartAt,
			DurationMinutes:   rc.DurationMinutes,
			ExcludeShowtimeID: rc.ExcludeShowtimeID,
		})
		if err != nil || res.Conflict {
			return res, err
		}
	}
	return Result{}, nil
}

// EnsureNoConflict is CheckRange turned into an error: it returns a
// *model.ScheduleConflictError naming the overlapping showtime.
func (s *Scheduler) EnsureNoConflict(ctx context.Context, rc RangeCandidate) error {
	res, err := s.CheckRange(ctx, rc)
	if err != nil {
		return err
	}
	if !res.Conflict {
		return nil
	}
	s.log.LogScheduleConflict(ctx, rc.RoomID, res.Showtime.ID, res.Date.String())
	return &model.ScheduleConflictError{
		ShowtimeID: res.Showtime.ID,
		RoomID:     rc.RoomID,
		Date:       res.Date,
		StartAt:    res.StartAt,
		EndAt:      res.EndAt,
	}
}

func (s *Scheduler) load(ctx context.Context, roomID uint64, day model.Date) ([]model.ScheduledShowtime, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	out, err := s.store.ShowtimesOn(ctx, roomID, day)
	if err != nil {
		return nil, fmt.Errorf("load showtimes of room %d on %s: %w", roomID, day, err)
	}
	return out, nil
}
