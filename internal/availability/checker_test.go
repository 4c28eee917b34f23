package availability

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/cinema-booking-engine/internal/model"
	"github.com/iliyamo/cinema-booking-engine/internal/seatgrid"
)

type readerMock struct{ mock.Mock }

func (m *readerMock) OccupiedSeats(ctx context.Context, showtimeID uint64) ([]model.SeatKey, error) {
	args := m.Called(ctx, showtimeID)
	keys, _ := args.Get(0).([]model.SeatKey)
	return keys, args.Error(1)
}

// bookings is a tiny reservation table: only rows of live reservations
// count towards occupancy.
type bookings []model.Reservation

func (b bookings) OccupiedSeats(_ context.Context, showtimeID uint64) ([]model.SeatKey, error) {
	var out []model.SeatKey
	for _, r := range b {
		if r.ShowtimeID != showtimeID || r.Cancelled() {
			continue
		}
		out = append(out, r.SeatKeys()...)
	}
	return out, nil
}

func booking(showtimeID uint64, status string, seats ...model.SeatKey) model.Reservation {
	r := model.Reservation{ShowtimeID: showtimeID, PaymentStatus: status}
	for _, k := range seats {
		r.Seats = append(r.Seats, model.ReservationSeat{ShowtimeID: showtimeID, RowName: k.Row, SeatNumber: k.Number})
	}
	return r
}

func k(row string, n int) model.SeatKey { return model.SeatKey{Row: row, Number: n} }

func TestChecker_Check_EmptyCandidatesReturnsOccupied(t *testing.T) {
	c := NewChecker(bookings{
		booking(7, model.PaymentConfirmed, k("B", 2), k("A", 3)),
		booking(8, model.PaymentConfirmed, k("A", 1)),
	}, 0, nil)

	res, err := c.Check(context.Background(), 7, nil)

	require.NoError(t, err)
	assert.True(t, res.Available)
	assert.Empty(t, res.Unavailable)
	assert.Equal(t, []model.SeatKey{k("A", 3), k("B", 2)}, res.Occupied)
}

func TestChecker_Check_CancelledReservationsDoNotCount(t *testing.T) {
	c := NewChecker(bookings{
		booking(7, model.PaymentCancelled, k("A", 1)),
		booking(7, model.PaymentPending, k("A", 2)),
	}, 0, nil)

	res, err := c.Check(context.Background(), 7, []model.SeatKey{k("A", 1), k("A", 2)})

	require.NoError(t, err)
	assert.False(t, res.Available)
	assert.Equal(t, []model.SeatKey{k("A", 2)}, res.Unavailable)
}

func TestChecker_Check_Idempotent(t *testing.T) {
	c := NewChecker(bookings{booking(7, model.PaymentConfirmed, k("C", 4), k("A", 2))}, 0, nil)
	cands := []model.SeatKey{k("C", 4), k("A", 1), k("A", 2), k("C", 4)}

	first, err := c.Check(context.Background(), 7, cands)
	require.NoError(t, err)
	second, err := c.Check(context.Background(), 7, cands)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, []model.SeatKey{k("A", 2), k("C", 4)}, first.Unavailable)
}

func TestChecker_Check_ReaderErrorWrapped(t *testing.T) {
	r := new(readerMock)
	boom := &model.TransientStorageError{Op: "occupied seats", Err: context.DeadlineExceeded}
	r.On("OccupiedSeats", mock.Anything, uint64(3)).Return(nil, boom)
	c := NewChecker(r, 0, nil)

	_, err := c.Check(context.Background(), 3, []model.SeatKey{k("A", 1)})

	assert.ErrorIs(t, err, model.ErrTransient)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	r.AssertExpectations(t)
}

func TestChecker_Check_RequiresShowtime(t *testing.T) {
	c := NewChecker(new(readerMock), 0, nil)

	_, err := c.Check(context.Background(), 0, nil)

	assert.ErrorIs(t, err, model.ErrValidation)
}

func TestChecker_CheckRoomSeats_RejectsUnknownSeats(t *testing.T) {
	grid := seatgrid.Build([]model.Seat{
		{ID: 1, RowName: "A", SeatNumber: 1, SeatType: model.SeatTypeStandard, Status: model.SeatActive},
		{ID: 2, RowName: "A", SeatNumber: 2, SeatType: model.SeatTypeStandard, Status: model.SeatInactive},
	})
	r := new(readerMock)
	c := NewChecker(r, 0, nil)

	_, err := c.CheckRoomSeats(context.Background(), 7, grid, []model.SeatKey{k("A", 1), k("A", 2), k("Z", 9)})

	var verr *model.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, []model.SeatKey{k("A", 2), k("Z", 9)}, verr.Seats)
	r.AssertNotCalled(t, "OccupiedSeats", mock.Anything, mock.Anything)
}

func TestChecker_View_OverlaysOccupancy(t *testing.T) {
	grid := seatgrid.Build([]model.Seat{
		{ID: 1, RowName: "A", SeatNumber: 1, SeatType: model.SeatTypeStandard, Status: model.SeatActive},
		{ID: 2, RowName: "A", SeatNumber: 2, SeatType: model.SeatTypeStandard, Status: model.SeatActive},
	})
	c := NewChecker(bookings{booking(7, model.PaymentPending, k("A", 2))}, 0, nil)

	v, err := c.View(context.Background(), 7, grid)

	require.NoError(t, err)
	assert.True(t, v.IsFree("A", 1))
	assert.False(t, v.IsFree("A", 2))
	assert.Equal(t, 1, v.FreeCount())
}
