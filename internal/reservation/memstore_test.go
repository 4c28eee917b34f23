package reservation

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/iliyamo/cinema-booking-engine/internal/model"
)

// memStore is an in-memory Store.  Transactions stage their writes and
// apply them on commit; LockShowtime and LockReservation take real
// mutexes held until the transaction ends, like SELECT ... FOR UPDATE.
// Commit re-checks the occupancy and idempotency uniqueness the way the
// MySQL indexes would.
type memStore struct {
	mu           sync.Mutex
	showtimes    map[uint64]model.ScheduledShowtime
	reservations map[uint64]*model.Reservation
	nextID       uint64

	lockMu sync.Mutex
	locks  map[string]*sync.Mutex

	// beforeInsertSeats runs inside the transaction just before the seat
	// rows are staged.
	beforeInsertSeats func()
}

func newMemStore() *memStore {
	return &memStore{
		showtimes:    map[uint64]model.ScheduledShowtime{},
		reservations: map[uint64]*model.Reservation{},
		locks:        map[string]*sync.Mutex{},
	}
}

func (s *memStore) addShowtime(st model.ScheduledShowtime) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.showtimes[st.ID] = st
}

// seed commits r directly, bypassing every lock.
func (s *memStore) seed(r model.Reservation) *model.Reservation {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	r.ID = s.nextID
	for i := range r.Seats {
		r.Seats[i].ReservationID = r.ID
		r.Seats[i].ShowtimeID = r.ShowtimeID
	}
	cp := clone(&r)
	s.reservations[r.ID] = cp
	return clone(cp)
}

func (s *memStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.reservations)
}

func (s *memStore) lockFor(key string) *sync.Mutex {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	m, ok := s.locks[key]
	if !ok {
		m = &sync.Mutex{}
		s.locks[key] = m
	}
	return m
}

func clone(r *model.Reservation) *model.Reservation {
	cp := *r
	cp.Seats = append([]model.ReservationSeat(nil), r.Seats...)
	return &cp
}

type memTx struct {
	s      *memStore
	held   map[string]*sync.Mutex
	staged map[uint64]*model.Reservation
}

func (s *memStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	tx := &memTx{s: s, held: map[string]*sync.Mutex{}, staged: map[uint64]*model.Reservation{}}
	defer tx.unlockAll()
	if err := ctx.Err(); err != nil {
		return &model.TransientStorageError{Op: "begin", Err: err}
	}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return &model.TransientStorageError{Op: "commit", Err: err}
	}
	return tx.commit()
}

func (t *memTx) unlockAll() {
	for _, m := range t.held {
		m.Unlock()
	}
}

func (t *memTx) lock(key string) {
	if _, ok := t.held[key]; ok {
		return
	}
	m := t.s.lockFor(key)
	m.Lock()
	t.held[key] = m
}

func (t *memTx) commit() error {
	s := t.s
	s.mu.Lock()
	defer s.mu.Unlock()

	merged := make(map[uint64]*model.Reservation, len(s.reservations)+len(t.staged))
	for id, r := range s.reservations {
		merged[id] = r
	}
	for id, r := range t.staged {
		merged[id] = r
	}
	live := map[[2]any]uint64{}
	idem := map[[2]any]uint64{}
	for _, r := range merged {
		if r.IdempotencyKey != "" {
			key := [2]any{r.UserID, r.IdempotencyKey}
			if other, dup := idem[key]; dup && other != r.ID {
				return &model.IntegrityError{Constraint: model.ConstraintIdempotencyKey}
			}
			idem[key] = r.ID
		}
		if r.Cancelled() {
			continue
		}
		for _, seat := range r.Seats {
			key := [2]any{r.ShowtimeID, seat.Key()}
			if other, dup := live[key]; dup && other != r.ID {
				return &model.IntegrityError{Constraint: model.ConstraintSeatOccupancy}
			}
			live[key] = r.ID
		}
	}
	for id, r := range t.staged {
		s.reservations[id] = clone(r)
	}
	return nil
}

// current reads a reservation through the transaction's staged writes.
func (t *memTx) current(id uint64) (*model.Reservation, bool) {
	if r, ok := t.staged[id]; ok {
		return r, true
	}
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	r, ok := t.s.reservations[id]
	if !ok {
		return nil, false
	}
	cp := clone(r)
	t.staged[id] = cp
	return cp, true
}

func (t *memTx) LockShowtime(_ context.Context, id uint64) (*model.ScheduledShowtime, error) {
	t.s.mu.Lock()
	st, ok := t.s.showtimes[id]
	t.s.mu.Unlock()
	if !ok {
		return nil, model.NewNotFoundError("showtime", id)
	}
	t.lock("showtime:" + strconv.FormatUint(id, 10))
	return &st, nil
}

func (t *memTx) LockReservation(_ context.Context, id uint64) (*model.Reservation, error) {
	t.lock("reservation:" + strconv.FormatUint(id, 10))
	r, ok := t.current(id)
	if !ok {
		return nil, model.NewNotFoundError("reservation", id)
	}
	return clone(r), nil
}

func (t *memTx) OccupiedSeats(_ context.Context, showtimeID uint64) ([]model.SeatKey, error) {
	t.s.mu.Lock()
	all := make(map[uint64]*model.Reservation, len(t.s.reservations))
	for id, r := range t.s.reservations {
		all[id] = r
	}
	t.s.mu.Unlock()
	for id, r := range t.staged {
		all[id] = r
	}
	return occupiedOf(all, showtimeID), nil
}

func (t *memTx) FindByIdempotencyKey(_ context.Context, userID uint64, key string) (*model.Reservation, error) {
	return t.s.FindByIdempotencyKey(context.Background(), userID, key)
}

func (t *memTx) InsertReservation(_ context.Context, r *model.Reservation) error {
	t.s.mu.Lock()
	t.s.nextID++
	r.ID = t.s.nextID
	t.s.mu.Unlock()
	r.CreatedAt = time.Now().UTC()
	r.UpdatedAt = r.CreatedAt
	cp := clone(r)
	cp.Seats = nil
	t.staged[r.ID] = cp
	return nil
}

func (t *memTx) InsertSeats(_ context.Context, seats []model.ReservationSeat) error {
	if t.s.beforeInsertSeats != nil {
		t.s.beforeInsertSeats()
	}
	for _, seat := range seats {
		r, ok := t.current(seat.ReservationID)
		if !ok {
			return model.NewNotFoundError("reservation", seat.ReservationID)
		}
		r.Seats = append(r.Seats, seat)
	}
	return nil
}

func (t *memTx) DeleteSeats(_ context.Context, reservationID uint64) error {
	if r, ok := t.current(reservationID); ok {
		r.Seats = nil
	}
	return nil
}

func (t *memTx) UpdateTotal(_ context.Context, id uint64, total int64) error {
	r, ok := t.current(id)
	if !ok {
		return model.NewNotFoundError("reservation", id)
	}
	r.Total = total
	return nil
}

func (t *memTx) SetPaymentStatus(_ context.Context, id uint64, status string) error {
	r, ok := t.current(id)
	if !ok {
		return model.NewNotFoundError("reservation", id)
	}
	r.PaymentStatus = status
	return nil
}

func (t *memTx) SetCheckin(_ context.Context, id uint64) error {
	r, ok := t.current(id)
	if !ok {
		return model.NewNotFoundError("reservation", id)
	}
	r.Checkin = true
	return nil
}

func (s *memStore) OccupiedSeats(_ context.Context, showtimeID uint64) ([]model.SeatKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return occupiedOf(s.reservations, showtimeID), nil
}

func (s *memStore) FindByIdempotencyKey(_ context.Context, userID uint64, key string) (*model.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.reservations {
		if r.UserID == userID && r.IdempotencyKey == key {
			return clone(r), nil
		}
	}
	return nil, nil
}

func (s *memStore) Get(_ context.Context, id uint64) (*model.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reservations[id]
	if !ok {
		return nil, model.NewNotFoundError("reservation", id)
	}
	return clone(r), nil
}

func (s *memStore) ListByUser(_ context.Context, userID uint64) ([]model.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Reservation
	for _, r := range s.reservations {
		if r.UserID == userID {
			out = append(out, *clone(r))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (s *memStore) PendingBefore(_ context.Context, cutoff time.Time, limit int) ([]uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []uint64
	for id, r := range s.reservations {
		if r.PaymentStatus == model.PaymentPending && r.CreatedAt.Before(cutoff) {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	if len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

func occupiedOf(all map[uint64]*model.Reservation, showtimeID uint64) []model.SeatKey {
	var out []model.SeatKey
	for _, r := range all {
		if r.ShowtimeID != showtimeID || r.Cancelled() {
			continue
		}
		out = append(out, r.SeatKeys()...)
	}
	return out
}
