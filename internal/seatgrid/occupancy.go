package seatgrid

import (
	"sort"

	"github.com/iliyamo/cinema-booking-engine/internal/model"
)

// CellState is the dynamic state of a plan slot for one showtime.
type CellState int

const (
	CellNone     CellState = iota // no sellable seat here
	CellFree                      // sellable and not claimed
	CellOccupied                  // claimed by a live reservation
)

// OccupancyView overlays a showtime's occupied set on a static Grid.
// The grid itself is never modified, so one plan can back any number
// of views.
type OccupancyView struct {
	grid     *Grid
	occupied map[model.SeatKey]struct{}
}

// NewOccupancyView builds the overlay.  Occupied keys that are not part
// of the plan (removed or inactive seats) are ignored.
func NewOccupancyView(g *Grid, occupied []model.SeatKey) *OccupancyView {
	v := &OccupancyView{grid: g, occupied: make(map[model.SeatKey]struct{}, len(occupied))}
	for _, k := range occupied {
		if g.Contains(k) {
			v.occupied[k] = struct{}{}
		}
	}
	return v
}

// Grid returns the underlying static plan.
func (v *OccupancyView) Grid() *Grid { return v.grid }

// IsFree reports whether (row, number) is a sellable seat with no live
// reservation on it.
func (v *OccupancyView) IsFree(row string, number int) bool {
	k := model.SeatKey{Row: row, Number: number}
	if !v.grid.Contains(k) {
		return false
	}
	_, taken := v.occupied[k]
	return !taken
}

// State returns the cell state at grid position (i, j).
func (v *OccupancyView) State(i, j int) CellState {
	if v.grid.Cells[i][j] == SeatNone {
		return CellNone
	}
	k := model.SeatKey{Row: v.grid.Rows[i], Number: v.grid.Columns[j]}
	if _, taken := v.occupied[k]; taken {
		return CellOccupied
	}
	return CellFree
}

// States renders the whole overlay, row-major like Grid.Cells.
func (v *OccupancyView) States() [][]CellState {
	out := make([][]CellState, len(v.grid.Rows))
	for i := range out {
		out[i] = make([]CellState, len(v.grid.Columns))
		for j := range out[i] {
			out[i][j] = v.State(i, j)
		}
	}
	return out
}

// Occupied returns the occupied keys that belong to the plan, sorted.
func (v *OccupancyView) Occupied() []model.SeatKey {
	out := make([]model.SeatKey, 0, len(v.occupied))
	for k := range v.occupied {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}

// FreeCount is the number of sellable seats still free.
func (v *OccupancyView) FreeCount() int { return len(v.grid.active) - len(v.occupied) }

// Cells is an alias of States.
func (v *OccupancyView) Cells() [][]CellState { return v.States() }
