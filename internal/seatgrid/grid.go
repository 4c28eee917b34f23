// Package seatgrid turns the unordered seat records of a room into a
// dense, addressable seat plan, and overlays a showtime's occupancy on
// top of that plan without mutating it.
package seatgrid

import (
	"fmt"
	"sort"

	"github.com/iliyamo/cinema-booking-engine/internal/model"
)

// SeatClass is the value stored in a plan cell.
type SeatClass int

const (
	SeatNone     SeatClass = 0 // no sellable seat at this slot
	SeatStandard SeatClass = 1
	SeatPremium  SeatClass = 2
)

// ClassOf maps a seat type onto a plan cell value.
func ClassOf(seatType string) SeatClass {
	if seatType == model.SeatTypePremium {
		return SeatPremium
	}
	return SeatStandard
}

// IntegrityWarning flags a duplicate (row, number) pair in the source
// records.  The later record was kept.
type IntegrityWarning struct {
	Row       string `json:"row"`
	Number    int    `json:"number"`
	KeptID    uint64 `json:"kept_id"`
	DroppedID uint64 `json:"dropped_id"`
}

func (w IntegrityWarning) String() string {
	return fmt.Sprintf("duplicate seat %s%d: kept id %d, dropped id %d", w.Row, w.Number, w.KeptID, w.DroppedID)
}

// Grid is the static seat plan of one room.  Rows and Columns list the
// distinct row names and seat numbers of active seats; Cells[i][j]
// holds the class of the seat at (Rows[i], Columns[j]).
type Grid struct {
	Rows     []string           `json:"rows"`
	Columns  []int              `json:"columns"`
	Cells    [][]SeatClass      `json:"cells"`
	Warnings []IntegrityWarning `json:"warnings,omitempty"`

	active map[model.SeatKey]model.Seat
	byID   map[uint64]model.Seat
	rowIdx map[string]int
	colIdx map[int]int
}

// Build derives the plan from raw seat records.  Inactive seats are left
// out of the cells but stay reachable through SeatByID.  When two
// records share a (row, number) pair the last one wins and a warning is
// recorded.
func Build(seats []model.Seat) *Grid {
	g := &Grid{
		active: make(map[model.SeatKey]model.Seat),
		byID:   make(map[uint64]model.Seat, len(seats)),
		rowIdx: make(map[string]int),
		colIdx: make(map[int]int),
	}
	latest := make(map[model.SeatKey]model.Seat, len(seats))
	for _, s := range seats {
		g.byID[s.ID] = s
		k := s.Key()
		if prev, dup := latest[k]; dup {
			g.Warnings = append(g.Warnings, IntegrityWarning{
				Row: k.Row, Number: k.Number, KeptID: s.ID, DroppedID: prev.ID,
			})
		}
		latest[k] = s
	}

	rowSet := make(map[string]struct{})
	colSet := make(map[int]struct{})
	for k, s := range latest {
		if !s.Active() {
			continue
		}
		g.active[k] = s
		rowSet[k.Row] = struct{}{}
		colSet[k.Number] = struct{}{}
	}

	g.Rows = make([]string, 0, len(rowSet))
	for r := range rowSet {
		g.Rows = append(g.Rows, r)
	}
	sort.Slice(g.Rows, func(i, j int) bool { return model.RowLess(g.Rows[i], g.Rows[j]) })
	g.Columns = make([]int, 0, len(colSet))
	for c := range colSet {
		g.Columns = append(g.Columns, c)
	}
	sort.Ints(g.Columns)

	for i, r := range g.Rows {
		g.rowIdx[r] = i
	}
	for j, c := range g.Columns {
		g.colIdx[c] = j
	}

	g.Cells = make([][]SeatClass, len(g.Rows))
	for i := range g.Cells {
		g.Cells[i] = make([]SeatClass, len(g.Columns))
	}
	for k, s := range g.active {
		g.Cells[g.rowIdx[k.Row]][g.colIdx[k.Number]] = ClassOf(s.SeatType)
	}
	return g
}

// Empty reports whether the room has no active seats.  Callers render a
// "no seat plan configured" state instead of failing.
func (g *Grid) Empty() bool { return len(g.active) == 0 }

// Lookup resolves an active seat's id from its row and number.
func (g *Grid) Lookup(row string, number int) (uint64, bool) {
	s, ok := g.active[model.SeatKey{Row: row, Number: number}]
	if !ok {
		return 0, false
	}
	return s.ID, true
}

// SeatAt returns the active seat at (row, number).
func (g *Grid) SeatAt(row string, number int) (model.Seat, bool) {
	s, ok := g.active[model.SeatKey{Row: row, Number: number}]
	return s, ok
}

// SeatByID returns any seat of the room, active or not.
func (g *Grid) SeatByID(id uint64) (model.Seat, bool) {
	s, ok := g.byID[id]
	return s, ok
}

// Contains reports whether k is a sellable seat of the plan.
func (g *Grid) Contains(k model.SeatKey) bool {
	_, ok := g.active[k]
	return ok
}

// Class returns the cell value at (row, number).
func (g *Grid) Class(row string, number int) SeatClass {
	i, ok := g.rowIdx[row]
	if !ok {
		return SeatNone
	}
	j, ok := g.colIdx[number]
	if !ok {
		return SeatNone
	}
	return g.Cells[i][j]
}

// RowIndex returns the position of row in Rows.
func (g *Grid) RowIndex(row string) (int, bool) {
	i, ok := g.rowIdx[row]
	return i, ok
}

// Seats returns the active seats ordered by row, then number.
func (g *Grid) Seats() []model.Seat {
	out := make([]model.Seat, 0, len(g.active))
	for _, s := range g.active {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key().Less(out[j].Key()) })
	return out
}

// Unknown returns the keys that are not sellable seats of this plan,
// preserving input order.
func (g *Grid) Unknown(keys []model.SeatKey) []model.SeatKey {
	var out []model.SeatKey
	for _, k := range keys {
		if !g.Contains(k) {
			out = append(out, k)
		}
	}
	return out
}
