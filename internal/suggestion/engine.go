// Package suggestion derives a user's preferred seat zone and party size
// from past bookings and picks a concrete block of free seats for a
// showtime.  It only reads.
package suggestion

import (
	"context"
	"fmt"
	"time"

	"github.com/iliyamo/cinema-booking-engine/internal/availability"
	"github.com/iliyamo/cinema-booking-engine/internal/logger"
	"github.com/iliyamo/cinema-booking-engine/internal/model"
	"github.com/iliyamo/cinema-booking-engine/internal/seatgrid"
)

// DefaultAvgTickets is assumed for users without history.
const DefaultAvgTickets = 2

// HistoryEntry is one past, non-cancelled reservation: the row names of
// its seats and the ordered rows of the room it was made in.
type HistoryEntry struct {
	ReservationID uint64
	SeatRows      []string
	RoomRows      []string
}

// Preference is what DerivePreference learns from history.
type Preference struct {
	Position   seatgrid.Band `json:"preferred_position"`
	AvgTickets int           `json:"avg_tickets"`
}

// tieOrder breaks equal band counts.
var tieOrder = []seatgrid.Band{seatgrid.BandCenter, seatgrid.BandFront, seatgrid.BandBack}

// DerivePreference counts the band of every booked seat and averages the
// seats per reservation.
func DerivePreference(history []HistoryEntry) Preference {
	counts := map[seatgrid.Band]int{}
	var reservations, seats int
	for _, h := range history {
		if len(h.SeatRows) == 0 {
			continue
		}
		reservations++
		seats += len(h.SeatRows)

		index := make(map[string]int, len(h.RoomRows))
		for i, r := range h.RoomRows {
			index[r] = i
		}
		for _, r := range h.SeatRows {
			i, ok := index[r]
			if !ok {
				continue
			}
			counts[seatgrid.BandOf(i, len(h.RoomRows))]++
		}
	}

	p := Preference{Position: seatgrid.BandCenter, AvgTickets: DefaultAvgTickets}
	best := 0
	for _, b := range tieOrder {
		if counts[b] > best {
			best, p.Position = counts[b], b
		}
	}
	if reservations > 0 {
		// round half up
		p.AvgTickets = (2*seats + reservations) / (2 * reservations)
		if p.AvgTickets < 1 {
			p.AvgTickets = 1
		}
	}
	return p
}

// PickBlock looks for size adjacent free seats.  Rows of the preferred
// band are tried first, front to back; within a row the centered block
// is tried before a left to right scan.  The remaining bands follow in
// center, front, back order.  nil means nothing fits.
func PickBlock(v *seatgrid.OccupancyView, preferred seatgrid.Band, size int) []model.SeatKey {
	if v == nil || size <= 0 {
		return nil
	}
	g := v.Grid()
	if size > len(g.Columns) {
		return nil
	}
	for _, band := range bandOrder(preferred) {
		for _, i := range g.RowsInBand(band) {
			if block := pickInRow(v, i, size); block != nil {
				return block
			}
		}
	}
	return nil
}

func bandOrder(preferred seatgrid.Band) []seatgrid.Band {
	out := []seatgrid.Band{preferred}
	for _, b := range tieOrder {
		if b != preferred {
			out = append(out, b)
		}
	}
	return out
}

func pickInRow(v *seatgrid.OccupancyView, i, size int) []model.SeatKey {
	cols := len(v.Grid().Columns)
	fits := func(start int) bool {
		for j := start; j < start+size; j++ {
			if v.State(i, j) != seatgrid.CellFree {
				return false
			}
		}
		return true
	}
	center := (cols - size) / 2
	if fits(center) {
		return block(v.Grid(), i, center, size)
	}
	for s := 0; s+size <= cols; s++ {
		if fits(s) {
			return block(v.Grid(), i, s, size)
		}
	}
	return nil
}

func block(g *seatgrid.Grid, i, start, size int) []model.SeatKey {
	out := make([]model.SeatKey, 0, size)
	for j := start; j < start+size; j++ {
		out = append(out, model.SeatKey{Row: g.Rows[i], Number: g.Columns[j]})
	}
	return out
}

// HistoryReader loads a user's non-cancelled reservations.
type HistoryReader interface {
	SeatHistory(ctx context.Context, userID uint64) ([]HistoryEntry, error)
}

// SeatSource returns the seat records of the room a showtime plays in.
type SeatSource interface {
	ShowtimeSeats(ctx context.Context, showtimeID uint64) ([]model.Seat, error)
}

// Suggestion is the answer of Engine.Suggest.
type Suggestion struct {
	PreferredPosition seatgrid.Band   `json:"preferred_position"`
	AvgTickets        int             `json:"avg_tickets"`
	PartySize         int             `json:"party_size"`
	Seats             []model.SeatKey `json:"seats"`
}

// Engine combines history, the seat plan and live occupancy.
type Engine struct {
	history   HistoryReader
	seats     SeatSource
	occupancy *availability.Checker
	timeout   time.Duration
	log       *logger.Logger
}

// NewEngine wires an Engine.
func NewEngine(history HistoryReader, seats SeatSource, occupancy *availability.Checker, timeout time.Duration, log *logger.Logger) *Engine {
	if log == nil {
		log = logger.Nop()
	}
	return &Engine{history: history, seats: seats, occupancy: occupancy, timeout: timeout, log: log.Component("suggestion")}
}

// Preference derives the user's preference from stored history.
func (e *Engine) Preference(ctx context.Context, userID uint64) (Preference, error) {
	ctx, cancel := e.bound(ctx)
	defer cancel()
	history, err := e.history.SeatHistory(ctx, userID)
	if err != nil {
		return Preference{}, fmt.Errorf("seat history of user %d: %w", userID, err)
	}
	return DerivePreference(history), nil
}

// Suggest proposes seats for userID at showtimeID.  A partySize of zero
// or less uses the user's average.
func (e *Engine) Suggest(ctx context.Context, userID, showtimeID uint64, partySize int) (Suggestion, error) {
	pref, err := e.Preference(ctx, userID)
	if err != nil {
		return Suggestion{}, err
	}
	if partySize <= 0 {
		partySize = pref.AvgTickets
	}
	out := Suggestion{PreferredPosition: pref.Position, AvgTickets: pref.AvgTickets, PartySize: partySize}

	ctx, cancel := e.bound(ctx)
	defer cancel()
	seats, err := e.seats.ShowtimeSeats(ctx, showtimeID)
	if err != nil {
		return Suggestion{}, fmt.Errorf("seats of showtime %d: %w", showtimeID, err)
	}
	grid := seatgrid.Build(seats)
	if grid.Empty() {
		return out, nil
	}
	view, err := e.occupancy.View(ctx, showtimeID, grid)
	if err != nil {
		return Suggestion{}, err
	}
	out.Seats = PickBlock(view, pref.Position, partySize)
	e.log.DebugContext(ctx, "suggested seats", "user_id", userID, "showtime_id", showtimeID, "seats", len(out.Seats))
	return out, nil
}

func (e *Engine) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, e.timeout)
}
