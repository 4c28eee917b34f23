package reservation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/cinema-booking-engine/internal/model"
	"github.com/iliyamo/cinema-booking-engine/internal/queue"
)

type issuerFunc func(ctx context.Context, req TicketRequest) (string, error)

func (f issuerFunc) Issue(ctx context.Context, req TicketRequest) (string, error) { return f(ctx, req) }

var okIssuer = issuerFunc(func(_ context.Context, req TicketRequest) (string, error) {
	return "TKT-test", nil
})

type recordingPublisher struct {
	mu     sync.Mutex
	events []queue.ReservationEvent
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, ev queue.ReservationEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.err
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, ev := range p.events {
		out = append(out, ev.Type)
	}
	return out
}

const basePrice = int64(85000)

var viewingDay = mustDate("2024-05-01")

// fixedNow is the morning of the viewing day, before the 19:30 show.
var fixedNow = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

func mustDate(s string) model.Date {
	d, err := model.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

func fixture(t *testing.T) (*Service, *memStore, *recordingPublisher) {
	t.Helper()
	store := newMemStore()
	store.addShowtime(model.ScheduledShowtime{
		Showtime: model.Showtime{
			ID: 1, MovieID: 3, RoomID: 1,
			StartDate: viewingDay, EndDate: viewingDay.AddDays(6), StartAt: "19:30",
		},
		CinemaID:        2,
		DurationMinutes: 120,
	})
	pub := &recordingPublisher{}
	svc := NewService(store, okIssuer, Options{
		Timeout: time.Second,
		Events:  pub,
		Now:     func() time.Time { return fixedNow },
	})
	return svc, store, pub
}

func seats(keys ...string) []SeatRequest {
	out := make([]SeatRequest, 0, len(keys))
	for _, k := range keys {
		out = append(out, SeatRequest{RowName: k[:1], SeatNumber: int(k[1] - '0')})
	}
	return out
}

func createReq(userID uint64, s []SeatRequest) CreateRequest {
	return CreateRequest{
		ShowtimeID:  1,
		RoomID:      1,
		UserID:      userID,
		Username:    "u",
		ViewingDate: viewingDay,
		BasePrice:   basePrice,
		Seats:       s,
	}
}

func TestService_Create_TotalsAndSeatRows(t *testing.T) {
	svc, store, pub := fixture(t)

	r, err := svc.Create(context.Background(), createReq(7, seats("A1", "A2")))

	require.NoError(t, err)
	assert.Equal(t, int64(170000), r.Total)
	require.Len(t, r.Seats, 2)
	for _, s := range r.Seats {
		assert.Equal(t, basePrice, s.SeatPrice)
		assert.Equal(t, r.ID, s.ReservationID)
	}
	assert.Equal(t, model.PaymentPending, r.PaymentStatus)
	assert.Equal(t, "TKT-test", r.TicketToken)
	assert.Equal(t, uint64(2), r.CinemaID, "cinema copied from showtime")
	assert.Equal(t, uint64(3), r.MovieID)
	assert.Equal(t, "19:30", r.StartAt)

	stored, err := store.Get(context.Background(), r.ID)
	require.NoError(t, err)
	assert.Len(t, stored.Seats, 2)
	assert.Equal(t, []string{queue.EventReservationConfirmed}, pub.types())
}

func TestService_Create_PremiumExtraCharge(t *testing.T) {
	svc, _, _ := fixture(t)
	req := createReq(7, []SeatRequest{
		{RowName: "E", SeatNumber: 1, ExtraCharge: 20000},
		{RowName: "E", SeatNumber: 2, ExtraCharge: 20000},
		{RowName: "A", SeatNumber: 1},
	})

	r, err := svc.Create(context.Background(), req)

	require.NoError(t, err)
	assert.Equal(t, 3*basePrice+2*20000, r.Total)
	assert.Equal(t, basePrice+20000, r.Seats[0].SeatPrice)
}

func TestService_Create_ConcurrentOverlapExactlyOneWins(t *testing.T) {
	svc, store, _ := fixture(t)
	requests := [][]SeatRequest{seats("A1", "A2"), seats("A2", "A3")}

	var (
		wg    sync.WaitGroup
		start = make(chan struct{})
		errs  = make([]error, len(requests))
	)
	for i, s := range requests {
		wg.Add(1)
		go func(i int, s []SeatRequest) {
			defer wg.Done()
			<-start
			_, errs[i] = svc.Create(context.Background(), createReq(uint64(10+i), s))
		}(i, s)
	}
	close(start)
	wg.Wait()

	var ok, conflicts int
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		var sc *model.SeatConflictError
		require.ErrorAs(t, err, &sc)
		assert.Equal(t, []model.SeatKey{{Row: "A", Number: 2}}, sc.Seats)
		conflicts++
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, conflicts)
	assert.Equal(t, 1, store.count())
}

func TestService_Create_ManyConcurrentBookersSameSeat(t *testing.T) {
	svc, store, _ := fixture(t)
	const n = 20

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := svc.Create(context.Background(), createReq(uint64(100+i), seats("C5")))
			if err == nil {
				mu.Lock()
				winners++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, model.ErrSeatConflict)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, winners)
	occupied, err := store.OccupiedSeats(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, []model.SeatKey{{Row: "C", Number: 5}}, occupied)
}

func TestService_Create_LostRaceAtStorageBecomesSeatConflict(t *testing.T) {
	svc, store, _ := fixture(t)
	store.beforeInsertSeats = func() {
		store.beforeInsertSeats = nil
		store.seed(model.Reservation{
			ShowtimeID: 1, UserID: 99, PaymentStatus: model.PaymentPending,
			Seats: []model.ReservationSeat{{RowName: "A", SeatNumber: 2}},
		})
	}

	_, err := svc.Create(context.Background(), createReq(7, seats("A1", "A2")))

	var sc *model.SeatConflictError
	require.ErrorAs(t, err, &sc)
	assert.Equal(t, []model.SeatKey{{Row: "A", Number: 2}}, sc.Seats)
	assert.NotErrorIs(t, err, model.ErrIntegrity)
}

func TestService_Create_TicketFailureRollsBack(t *testing.T) {
	store := newMemStore()
	store.addShowtime(model.ScheduledShowtime{Showtime: model.Showtime{ID: 1, RoomID: 1, StartDate: viewingDay, EndDate: viewingDay, StartAt: "19:30"}})
	boom := errors.New("ticket backend down")
	svc := NewService(store, issuerFunc(func(context.Context, TicketRequest) (string, error) { return "", boom }), Options{})

	_, err := svc.Create(context.Background(), createReq(7, seats("A1")))

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, store.count())
	occupied, _ := store.OccupiedSeats(context.Background(), 1)
	assert.Empty(t, occupied)
}

func TestService_Create_IdempotencyKeyReturnsExisting(t *testing.T) {
	svc, store, pub := fixture(t)
	req := createReq(7, seats("B1"))
	req.IdempotencyKey = "abc-123"

	first, err := svc.Create(context.Background(), req)
	require.NoError(t, err)
	second, err := svc.Create(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 1, store.count())
	assert.Len(t, pub.types(), 1)
}

func TestService_Create_Validation(t *testing.T) {
	svc, _, _ := fixture(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, createReq(7, nil))
	assert.ErrorIs(t, err, model.ErrValidation)

	_, err = svc.Create(ctx, createReq(7, seats("A1", "A1")))
	var verr *model.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, []model.SeatKey{{Row: "A", Number: 1}}, verr.Seats)

	_, err = svc.Create(ctx, createReq(7, []SeatRequest{{RowName: "a", SeatNumber: 1}}))
	assert.ErrorIs(t, err, model.ErrValidation)

	_, err = svc.Create(ctx, createReq(7, []SeatRequest{{RowName: "A", SeatNumber: 0}}))
	assert.ErrorIs(t, err, model.ErrValidation)

	req := createReq(7, seats("A1"))
	req.BasePrice = -1
	_, err = svc.Create(ctx, req)
	assert.ErrorIs(t, err, model.ErrValidation)

	req = createReq(7, seats("A1"))
	req.StartAt = "7pm"
	_, err = svc.Create(ctx, req)
	assert.ErrorIs(t, err, model.ErrValidation)
}

func TestService_Create_MustMatchShowtime(t *testing.T) {
	svc, _, _ := fixture(t)
	ctx := context.Background()

	req := createReq(7, seats("A1"))
	req.RoomID = 2
	_, err := svc.Create(ctx, req)
	assert.ErrorIs(t, err, model.ErrValidation)

	req = createReq(7, seats("A1"))
	req.ViewingDate = viewingDay.AddDays(30)
	_, err = svc.Create(ctx, req)
	assert.ErrorIs(t, err, model.ErrValidation)

	req = createReq(7, seats("A1"))
	req.ShowtimeID = 42
	_, err = svc.Create(ctx, req)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestService_Create_CancelledContextLeavesNoRows(t *testing.T) {
	svc, store, _ := fixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.Create(ctx, createReq(7, seats("A1")))

	assert.ErrorIs(t, err, model.ErrTransient)
	assert.Equal(t, 0, store.count())
}

func TestService_Cancel_ReleasesSeats(t *testing.T) {
	svc, store, pub := fixture(t)
	ctx := context.Background()
	r, err := svc.Create(ctx, createReq(7, seats("A1", "A2")))
	require.NoError(t, err)

	_, err = svc.Create(ctx, createReq(8, seats("A2")))
	require.ErrorIs(t, err, model.ErrSeatConflict)

	cancelled, err := svc.Cancel(ctx, r.ID, 7)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentCancelled, cancelled.PaymentStatus)

	occupied, err := store.OccupiedSeats(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, occupied)

	again, err := svc.Create(ctx, createReq(8, seats("A2")))
	require.NoError(t, err)
	assert.NotEqual(t, r.ID, again.ID)

	twice, err := svc.Cancel(ctx, r.ID, 7)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentCancelled, twice.PaymentStatus)
	assert.Equal(t, []string{
		queue.EventReservationConfirmed,
		queue.EventReservationCancelled,
		queue.EventReservationConfirmed,
	}, pub.types())
}

func TestService_Cancel_OtherUserSeesNotFound(t *testing.T) {
	svc, _, _ := fixture(t)
	r, err := svc.Create(context.Background(), createReq(7, seats("A1")))
	require.NoError(t, err)

	_, err = svc.Cancel(context.Background(), r.ID, 8)

	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestService_Cancel_RejectedOnceShowtimeStarted(t *testing.T) {
	svc, store, _ := fixture(t)
	r, err := svc.Create(context.Background(), createReq(7, seats("A1")))
	require.NoError(t, err)
	svc.now = func() time.Time { return time.Date(2024, 5, 1, 19, 30, 0, 0, time.UTC) }

	_, err = svc.Cancel(context.Background(), r.ID, 7)

	assert.ErrorIs(t, err, model.ErrValidation)
	occupied, _ := store.OccupiedSeats(context.Background(), 1)
	assert.Len(t, occupied, 1)
}

func TestService_Update_SwapsSeats(t *testing.T) {
	svc, store, _ := fixture(t)
	ctx := context.Background()
	r, err := svc.Create(ctx, createReq(7, seats("A1", "A2")))
	require.NoError(t, err)
	_, err = svc.Create(ctx, createReq(8, seats("B1")))
	require.NoError(t, err)

	updated, err := svc.Update(ctx, UpdateRequest{ReservationID: r.ID, UserID: 7, Seats: seats("A2", "A3", "A4")})
	require.NoError(t, err)
	assert.Equal(t, 3*basePrice, updated.Total)
	assert.Equal(t, []model.SeatKey{{Row: "A", Number: 2}, {Row: "A", Number: 3}, {Row: "A", Number: 4}}, updated.SeatKeys())

	occupied, err := store.OccupiedSeats(ctx, 1)
	require.NoError(t, err)
	assert.ElementsMatch(t, []model.SeatKey{{Row: "A", Number: 2}, {Row: "A", Number: 3}, {Row: "A", Number: 4}, {Row: "B", Number: 1}}, occupied)

	_, err = svc.Update(ctx, UpdateRequest{ReservationID: r.ID, UserID: 7, Seats: seats("B1", "A2")})
	var sc *model.SeatConflictError
	require.ErrorAs(t, err, &sc)
	assert.Equal(t, []model.SeatKey{{Row: "B", Number: 1}}, sc.Seats)
}

func TestService_Update_CancelledRejected(t *testing.T) {
	svc, _, _ := fixture(t)
	ctx := context.Background()
	r, err := svc.Create(ctx, createReq(7, seats("A1")))
	require.NoError(t, err)
	_, err = svc.Cancel(ctx, r.ID, 7)
	require.NoError(t, err)

	_, err = svc.Update(ctx, UpdateRequest{ReservationID: r.ID, UserID: 7, Seats: seats("A2")})

	assert.ErrorIs(t, err, model.ErrValidation)
}

func TestService_ConfirmPaymentAndCheckIn(t *testing.T) {
	svc, _, pub := fixture(t)
	ctx := context.Background()
	r, err := svc.Create(ctx, createReq(7, seats("A1")))
	require.NoError(t, err)

	_, err = svc.CheckIn(ctx, r.ID)
	require.ErrorIs(t, err, model.ErrValidation, "check-in needs a confirmed payment")

	paid, err := svc.ConfirmPayment(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentConfirmed, paid.PaymentStatus)
	_, err = svc.ConfirmPayment(ctx, r.ID)
	require.NoError(t, err)

	in, err := svc.CheckIn(ctx, r.ID)
	require.NoError(t, err)
	assert.True(t, in.Checkin)
	in, err = svc.CheckIn(ctx, r.ID)
	require.NoError(t, err)
	assert.True(t, in.Checkin)

	assert.Equal(t, []string{queue.EventReservationConfirmed, queue.EventPaymentConfirmed}, pub.types())
}

func TestService_ConfirmPayment_CancelledRejected(t *testing.T) {
	svc, _, _ := fixture(t)
	ctx := context.Background()
	r, err := svc.Create(ctx, createReq(7, seats("A1")))
	require.NoError(t, err)
	_, err = svc.Cancel(ctx, r.ID, 0)
	require.NoError(t, err)

	_, err = svc.ConfirmPayment(ctx, r.ID)

	assert.ErrorIs(t, err, model.ErrValidation)
}

func TestService_ExpirePending(t *testing.T) {
	svc, store, _ := fixture(t)
	old := fixedNow.Add(-time.Hour)
	stale := store.seed(model.Reservation{
		ShowtimeID: 1, UserID: 7, PaymentStatus: model.PaymentPending, CreatedAt: old,
		ViewingDate: viewingDay, StartAt: "19:30",
		Seats: []model.ReservationSeat{{RowName: "A", SeatNumber: 1}},
	})
	store.seed(model.Reservation{
		ShowtimeID: 1, UserID: 7, PaymentStatus: model.PaymentConfirmed, CreatedAt: old,
		Seats: []model.ReservationSeat{{RowName: "A", SeatNumber: 2}},
	})
	store.seed(model.Reservation{
		ShowtimeID: 1, UserID: 7, PaymentStatus: model.PaymentPending, CreatedAt: fixedNow,
		Seats: []model.ReservationSeat{{RowName: "A", SeatNumber: 3}},
	})

	n, err := svc.ExpirePending(context.Background(), 15*time.Minute)

	require.NoError(t, err)
	assert.Equal(t, 1, n)
	got, err := store.Get(context.Background(), stale.ID)
	require.NoError(t, err)
	assert.True(t, got.Cancelled())
	occupied, _ := store.OccupiedSeats(context.Background(), 1)
	assert.ElementsMatch(t, []model.SeatKey{{Row: "A", Number: 2}, {Row: "A", Number: 3}}, occupied)
}

func TestService_PublishFailureDoesNotFailBooking(t *testing.T) {
	svc, store, pub := fixture(t)
	pub.err = errors.New("broker unavailable")

	r, err := svc.Create(context.Background(), createReq(7, seats("A1")))

	require.NoError(t, err)
	assert.NotZero(t, r.ID)
	assert.Equal(t, 1, store.count())
}

func TestService_GetAndList(t *testing.T) {
	svc, _, _ := fixture(t)
	ctx := context.Background()
	a, err := svc.Create(ctx, createReq(7, seats("A1")))
	require.NoError(t, err)
	b, err := svc.Create(ctx, createReq(7, seats("A2")))
	require.NoError(t, err)
	_, err = svc.Create(ctx, createReq(8, seats("A3")))
	require.NoError(t, err)

	got, err := svc.Get(ctx, a.ID, 7)
	require.NoError(t, err)
	assert.Equal(t, a.ID, got.ID)
	_, err = svc.Get(ctx, a.ID, 8)
	assert.ErrorIs(t, err, model.ErrNotFound)

	list, err := svc.ListByUser(ctx, 7)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, b.ID, list[0].ID)
}
