package suggestion

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/cinema-booking-engine/internal/availability"
	"github.com/iliyamo/cinema-booking-engine/internal/model"
	"github.com/iliyamo/cinema-booking-engine/internal/seatgrid"
)

var fiveRows = []string{"A", "B", "C", "D", "E"}

func roomSeats() []model.Seat {
	var out []model.Seat
	id := uint64(1)
	for _, r := range fiveRows {
		for n := 1; n <= 5; n++ {
			out = append(out, model.Seat{ID: id, RoomID: 1, RowName: r, SeatNumber: n, SeatType: model.SeatTypeStandard, Status: model.SeatActive})
			id++
		}
	}
	return out
}

func k(row string, n int) model.SeatKey { return model.SeatKey{Row: row, Number: n} }

func view(occupied ...model.SeatKey) *seatgrid.OccupancyView {
	return seatgrid.NewOccupancyView(seatgrid.Build(roomSeats()), occupied)
}

func fullRow(row string) []model.SeatKey {
	out := make([]model.SeatKey, 0, 5)
	for n := 1; n <= 5; n++ {
		out = append(out, k(row, n))
	}
	return out
}

func TestDerivePreference_NoHistory(t *testing.T) {
	p := DerivePreference(nil)

	assert.Equal(t, seatgrid.BandCenter, p.Position)
	assert.Equal(t, 2, p.AvgTickets)
}

func TestDerivePreference_MostFrequentBandAndRoundedAverage(t *testing.T) {
	p := DerivePreference([]HistoryEntry{
		{SeatRows: []string{"E", "E", "E"}, RoomRows: fiveRows},
		{SeatRows: []string{"A", "E", "E", "B"}, RoomRows: fiveRows},
	})

	assert.Equal(t, seatgrid.BandBack, p.Position)
	assert.Equal(t, 4, p.AvgTickets, "3.5 rounds half up")
}

func TestDerivePreference_TiesPreferCenterThenFront(t *testing.T) {
	p := DerivePreference([]HistoryEntry{
		{SeatRows: []string{"A"}, RoomRows: fiveRows},
		{SeatRows: []string{"E"}, RoomRows: fiveRows},
	})
	assert.Equal(t, seatgrid.BandFront, p.Position)
	assert.Equal(t, 1, p.AvgTickets)

	p = DerivePreference([]HistoryEntry{
		{SeatRows: []string{"A", "C"}, RoomRows: fiveRows},
	})
	assert.Equal(t, seatgrid.BandCenter, p.Position)
}

func TestDerivePreference_UnknownRowsIgnored(t *testing.T) {
	p := DerivePreference([]HistoryEntry{{SeatRows: []string{"Q"}, RoomRows: fiveRows}})

	assert.Equal(t, seatgrid.BandCenter, p.Position)
	assert.Equal(t, 1, p.AvgTickets)
}

func TestPickBlock_Centered(t *testing.T) {
	got := PickBlock(view(), seatgrid.BandCenter, 2)

	assert.Equal(t, []model.SeatKey{k("C", 2), k("C", 3)}, got)
}

func TestPickBlock_FallsBackToLeftToRight(t *testing.T) {
	got := PickBlock(view(k("C", 2)), seatgrid.BandCenter, 2)

	assert.Equal(t, []model.SeatKey{k("C", 3), k("C", 4)}, got)
}

func TestPickBlock_NextRowOfBand(t *testing.T) {
	got := PickBlock(view(k("C", 2), k("C", 4)), seatgrid.BandCenter, 2)

	assert.Equal(t, []model.SeatKey{k("D", 2), k("D", 3)}, got)
}

func TestPickBlock_FallsThroughToOtherBands(t *testing.T) {
	occupied := append(fullRow("C"), fullRow("D")...)

	got := PickBlock(view(occupied...), seatgrid.BandCenter, 3)

	assert.Equal(t, []model.SeatKey{k("A", 2), k("A", 3), k("A", 4)}, got)

	got = PickBlock(view(append(occupied, fullRow("E")...)...), seatgrid.BandBack, 1)
	assert.Equal(t, []model.SeatKey{k("A", 3)}, got)
}

func TestPickBlock_NothingFits(t *testing.T) {
	assert.Nil(t, PickBlock(view(), seatgrid.BandCenter, 6))
	assert.Nil(t, PickBlock(view(), seatgrid.BandCenter, 0))

	var all []model.SeatKey
	for _, r := range fiveRows {
		all = append(all, fullRow(r)...)
	}
	assert.Nil(t, PickBlock(view(all...), seatgrid.BandFront, 1))
}

type histFn func(ctx context.Context, userID uint64) ([]HistoryEntry, error)

func (f histFn) SeatHistory(ctx context.Context, userID uint64) ([]HistoryEntry, error) {
	return f(ctx, userID)
}

type seatsFn func(ctx context.Context, showtimeID uint64) ([]model.Seat, error)

func (f seatsFn) ShowtimeSeats(ctx context.Context, showtimeID uint64) ([]model.Seat, error) {
	return f(ctx, showtimeID)
}

type occupiedFn func(ctx context.Context, showtimeID uint64) ([]model.SeatKey, error)

func (f occupiedFn) OccupiedSeats(ctx context.Context, showtimeID uint64) ([]model.SeatKey, error) {
	return f(ctx, showtimeID)
}

func TestEngine_Suggest(t *testing.T) {
	history := histFn(func(_ context.Context, _ uint64) ([]HistoryEntry, error) {
		return []HistoryEntry{{SeatRows: []string{"A", "A", "A"}, RoomRows: fiveRows}}, nil
	})
	seats := seatsFn(func(context.Context, uint64) ([]model.Seat, error) { return roomSeats(), nil })
	occ := availability.NewChecker(occupiedFn(func(context.Context, uint64) ([]model.SeatKey, error) {
		return []model.SeatKey{k("A", 2)}, nil
	}), 0, nil)
	e := NewEngine(history, seats, occ, 0, nil)

	s, err := e.Suggest(context.Background(), 7, 1, 0)

	require.NoError(t, err)
	assert.Equal(t, seatgrid.BandFront, s.PreferredPosition)
	assert.Equal(t, 3, s.AvgTickets)
	assert.Equal(t, 3, s.PartySize)
	assert.Equal(t, []model.SeatKey{k("A", 3), k("A", 4), k("A", 5)}, s.Seats)

	s, err = e.Suggest(context.Background(), 7, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, []model.SeatKey{k("A", 3)}, s.Seats)
}

func TestEngine_Suggest_EmptyPlan(t *testing.T) {
	history := histFn(func(context.Context, uint64) ([]HistoryEntry, error) { return nil, nil })
	seats := seatsFn(func(context.Context, uint64) ([]model.Seat, error) { return nil, nil })
	e := NewEngine(history, seats, availability.NewChecker(occupiedFn(nil), 0, nil), 0, nil)

	s, err := e.Suggest(context.Background(), 7, 1, 0)

	require.NoError(t, err)
	assert.Empty(t, s.Seats)
	assert.Equal(t, 2, s.PartySize)
}

func TestEngine_Preference_HistoryError(t *testing.T) {
	boom := errors.New("db down")
	e := NewEngine(histFn(func(context.Context, uint64) ([]HistoryEntry, error) { return nil, boom }), nil, nil, 0, nil)

	_, err := e.Preference(context.Background(), 7)

	assert.ErrorIs(t, err, boom)
}
