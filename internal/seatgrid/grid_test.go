package seatgrid

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/cinema-booking-engine/internal/model"
)

func seat(id uint64, row string, n int, typ, status string) model.Seat {
	return model.Seat{ID: id, RoomID: 1, RowName: row, SeatNumber: n, SeatType: typ, Status: status}
}

// roomR1 is rows A-E x 5 columns with row E premium.
func roomR1() []model.Seat {
	var seats []model.Seat
	id := uint64(1)
	for _, row := range []string{"E", "C", "A", "D", "B"} {
		for n := 5; n >= 1; n-- {
			typ := model.SeatTypeStandard
			if row == "E" {
				typ = model.SeatTypePremium
			}
			seats = append(seats, seat(id, row, n, typ, model.SeatActive))
			id++
		}
	}
	return seats
}

func TestGrid_Build_OrdersRowsAndColumns(t *testing.T) {
	g := Build(roomR1())

	assert.Equal(t, []string{"A", "B", "C", "D", "E"}, g.Rows)
	assert.Equal(t, []int{1, 2, 3, 4, 5}, g.Columns)
	require.Len(t, g.Cells, 5)
	for i, row := range g.Cells {
		want := SeatStandard
		if g.Rows[i] == "E" {
			want = SeatPremium
		}
		for _, c := range row {
			assert.Equal(t, want, c)
		}
	}
	assert.False(t, g.Empty())
	assert.Empty(t, g.Warnings)
}

func TestGrid_Build_MultiLetterRowsSortAfterZ(t *testing.T) {
	g := Build([]model.Seat{
		seat(1, "AA", 1, model.SeatTypeStandard, model.SeatActive),
		seat(2, "Z", 1, model.SeatTypeStandard, model.SeatActive),
		seat(3, "B", 1, model.SeatTypeStandard, model.SeatActive),
	})

	assert.Equal(t, []string{"B", "Z", "AA"}, g.Rows)
}

func TestGrid_Build_SparseColumnsLeaveHoles(t *testing.T) {
	g := Build([]model.Seat{
		seat(1, "A", 1, model.SeatTypeStandard, model.SeatActive),
		seat(2, "A", 10, model.SeatTypeStandard, model.SeatActive),
		seat(3, "B", 2, model.SeatTypePremium, model.SeatActive),
	})

	assert.Equal(t, []int{1, 2, 10}, g.Columns)
	assert.Equal(t, [][]SeatClass{
		{SeatStandard, SeatNone, SeatStandard},
		{SeatNone, SeatPremium, SeatNone},
	}, g.Cells)
}

func TestGrid_Build_InactiveExcludedButAddressable(t *testing.T) {
	g := Build([]model.Seat{
		seat(1, "A", 1, model.SeatTypeStandard, model.SeatActive),
		seat(2, "A", 2, model.SeatTypeStandard, model.SeatInactive),
		seat(3, "B", 3, model.SeatTypeStandard, model.SeatInactive),
	})

	assert.Equal(t, []string{"A"}, g.Rows)
	assert.Equal(t, []int{1}, g.Columns)
	_, ok := g.Lookup("A", 2)
	assert.False(t, ok)
	assert.Equal(t, SeatNone, g.Class("A", 2))

	s, ok := g.SeatByID(2)
	require.True(t, ok)
	assert.Equal(t, model.SeatInactive, s.Status)
	_, ok = g.SeatByID(3)
	assert.True(t, ok)
}

func TestGrid_Build_DuplicateLastWriteWins(t *testing.T) {
	g := Build([]model.Seat{
		seat(1, "A", 1, model.SeatTypeStandard, model.SeatActive),
		seat(7, "A", 1, model.SeatTypePremium, model.SeatActive),
	})

	id, ok := g.Lookup("A", 1)
	require.True(t, ok)
	assert.Equal(t, uint64(7), id)
	assert.Equal(t, SeatPremium, g.Class("A", 1))
	require.Len(t, g.Warnings, 1)
	assert.Equal(t, IntegrityWarning{Row: "A", Number: 1, KeptID: 7, DroppedID: 1}, g.Warnings[0])
}

func TestGrid_Build_EmptyInput(t *testing.T) {
	g := Build(nil)

	assert.True(t, g.Empty())
	assert.Empty(t, g.Rows)
	assert.Empty(t, g.Columns)
	assert.Empty(t, g.Cells)
	_, ok := g.Lookup("A", 1)
	assert.False(t, ok)
}

func TestGrid_Unknown(t *testing.T) {
	g := Build(roomR1())

	got := g.Unknown([]model.SeatKey{{Row: "A", Number: 1}, {Row: "F", Number: 1}, {Row: "A", Number: 9}})

	assert.Equal(t, []model.SeatKey{{Row: "F", Number: 1}, {Row: "A", Number: 9}}, got)
}

func TestOccupancyView_DoesNotMutatePlan(t *testing.T) {
	g := Build(roomR1())
	before := make([][]SeatClass, len(g.Cells))
	for i := range g.Cells {
		before[i] = append([]SeatClass(nil), g.Cells[i]...)
	}

	v := NewOccupancyView(g, []model.SeatKey{{Row: "A", Number: 1}, {Row: "E", Number: 3}, {Row: "Q", Number: 1}})

	assert.Equal(t, before, g.Cells)
	assert.False(t, v.IsFree("A", 1))
	assert.True(t, v.IsFree("A", 2))
	assert.False(t, v.IsFree("Q", 1))
	assert.Equal(t, CellOccupied, v.State(0, 0))
	assert.Equal(t, CellFree, v.State(0, 1))
	assert.Equal(t, []model.SeatKey{{Row: "A", Number: 1}, {Row: "E", Number: 3}}, v.Occupied())
	assert.Equal(t, 23, v.FreeCount())
}

func TestBandOf(t *testing.T) {
	bands := make([]Band, 0, 5)
	for i := 0; i < 5; i++ {
		bands = append(bands, BandOf(i, 5))
	}
	assert.Equal(t, []Band{BandFront, BandFront, BandCenter, BandCenter, BandBack}, bands)

	assert.Equal(t, BandFront, BandOf(0, 3))
	assert.Equal(t, BandCenter, BandOf(1, 3))
	assert.Equal(t, BandBack, BandOf(2, 3))
	assert.Equal(t, BandCenter, BandOf(0, 0))
}

func TestRowLabels_RoundTrip(t *testing.T) {
	for _, tc := range []struct {
		label string
		index int
	}{{"A", 0}, {"Z", 25}, {"AA", 26}, {"AZ", 51}, {"BA", 52}} {
		i, ok := RowLabelToIndex(tc.label)
		require.True(t, ok, tc.label)
		assert.Equal(t, tc.index, i)
		assert.Equal(t, tc.label, IndexToRowLabel(tc.index))
	}
	_, ok := RowLabelToIndex("A1")
	assert.False(t, ok)
	assert.Equal(t, "AB", NormalizeRowLabel(" a-b "))
}
