// Package availability answers "which of these seats are still free for
// this showtime" from the live reservations.  Answers are point in time;
// only the reservation transaction decides authoritatively.
package availability

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/iliyamo/cinema-booking-engine/internal/logger"
	"github.com/iliyamo/cinema-booking-engine/internal/model"
	"github.com/iliyamo/cinema-booking-engine/internal/seatgrid"
)

// OccupancyReader returns the (row, number) pairs held by non-cancelled
// reservations of a showtime.
type OccupancyReader interface {
	OccupiedSeats(ctx context.Context, showtimeID uint64) ([]model.SeatKey, error)
}

// Result classifies a set of candidate seats.  Unavailable lists exactly
// the candidates that are taken; Occupied is the whole occupied set.
type Result struct {
	Available   bool            `json:"available"`
	Unavailable []model.SeatKey `json:"unavailable"`
	Occupied    []model.SeatKey `json:"occupied"`
}

// Classify is the pure part of Check.  Both output lists are sorted and
// duplicate candidates are counted once.
func Classify(occupied, candidates []model.SeatKey) Result {
	taken := make(map[model.SeatKey]struct{}, len(occupied))
	for _, k := range occupied {
		taken[k] = struct{}{}
	}
	res := Result{
		Unavailable: []model.SeatKey{},
		Occupied:    SortKeys(keysOf(taken)),
	}
	seen := make(map[model.SeatKey]struct{}, len(candidates))
	for _, k := range candidates {
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		if _, ok := taken[k]; ok {
			res.Unavailable = append(res.Unavailable, k)
		}
	}
	SortKeys(res.Unavailable)
	res.Available = len(res.Unavailable) == 0
	return res
}

// SortKeys orders keys by row then number, in place, and returns them.
func SortKeys(keys []model.SeatKey) []model.SeatKey {
	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })
	return keys
}

func keysOf(set map[model.SeatKey]struct{}) []model.SeatKey {
	out := make([]model.SeatKey, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	return out
}

// Checker reads occupancy through an OccupancyReader.
type Checker struct {
	reader  OccupancyReader
	timeout time.Duration
	log     *logger.Logger
}

// NewChecker returns a Checker.  timeout bounds every read; zero means
// the caller's context alone.
func NewChecker(reader OccupancyReader, timeout time.Duration, log *logger.Logger) *Checker {
	if log == nil {
		log = logger.Nop()
	}
	return &Checker{reader: reader, timeout: timeout, log: log.Component("availability")}
}

// Occupied returns the sorted occupied set of a showtime.
func (c *Checker) Occupied(ctx context.Context, showtimeID uint64) ([]model.SeatKey, error) {
	if showtimeID == 0 {
		return nil, model.NewValidationError("showtime_id", "is required")
	}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	keys, err := c.reader.OccupiedSeats(ctx, showtimeID)
	if err != nil {
		return nil, fmt.Errorf("occupied seats of showtime %d: %w", showtimeID, err)
	}
	return SortKeys(keys), nil
}

// Check classifies candidates against the showtime's occupied set.  With
// no candidates it just reports the occupied set.
func (c *Checker) Check(ctx context.Context, showtimeID uint64, candidates []model.SeatKey) (Result, error) {
	occupied, err := c.Occupied(ctx, showtimeID)
	if err != nil {
		return Result{}, err
	}
	return Classify(occupied, candidates), nil
}

// CheckRoomSeats is Check plus a plan check: candidates that are not
// sellable seats of grid (unknown or inactive) fail with a
// ValidationError listing them.
func (c *Checker) CheckRoomSeats(ctx context.Context, showtimeID uint64, grid *seatgrid.Grid, candidates []model.SeatKey) (Result, error) {
	if unknown := grid.Unknown(candidates); len(unknown) > 0 {
		return Result{}, &model.ValidationError{
			Field:  "seats",
			Reason: "not part of the room's seat plan",
			Seats:  SortKeys(unknown),
		}
	}
	return c.Check(ctx, showtimeID, candidates)
}

// View loads the occupancy of a showtime and overlays it on grid.
func (c *Checker) View(ctx context.Context, showtimeID uint64, grid *seatgrid.Grid) (*seatgrid.OccupancyView, error) {
	occupied, err := c.Occupied(ctx, showtimeID)
	if err != nil {
		return nil, err
	}
	return seatgrid.NewOccupancyView(grid, occupied), nil
}
