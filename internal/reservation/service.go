// Package reservation is the only write path for reservations and their
// seats.  Every operation runs in one storage transaction that locks the
// showtime row, re-reads the occupied set and either commits all rows or
// none.
package reservation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/iliyamo/cinema-booking-engine/internal/availability"
	"github.com/iliyamo/cinema-booking-engine/internal/logger"
	"github.com/iliyamo/cinema-booking-engine/internal/model"
	"github.com/iliyamo/cinema-booking-engine/internal/queue"
	"github.com/iliyamo/cinema-booking-engine/internal/schedule"
)

// expireBatch caps how many reservations one ExpirePending pass cancels.
const expireBatch = 200

// Options tunes a Service.  Zero values are usable.
type Options struct {
	Timeout time.Duration // bounds each transaction; zero disables
	Events  EventPublisher
	Logger  *logger.Logger
	Now     func() time.Time
}

// Service implements the reservation operations.
type Service struct {
	store   Store
	tickets TicketIssuer
	events  EventPublisher
	timeout time.Duration
	log     *logger.Logger
	now     func() time.Time
}

// NewService wires a Service.
func NewService(store Store, tickets TicketIssuer, opts Options) *Service {
	s := &Service{
		store:   store,
		tickets: tickets,
		events:  opts.Events,
		timeout: opts.Timeout,
		log:     opts.Logger,
		now:     opts.Now,
	}
	if s.log == nil {
		s.log = logger.Nop()
	}
	s.log = s.log.Component("reservation")
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Create books req.Seats for one viewing of a showtime.  When a seat is
// already held by a live reservation the result is a
// *model.SeatConflictError naming exactly the taken seats.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*model.Reservation, error) {
	keys, err := req.validate()
	if err != nil {
		return nil, err
	}
	ctx, cancel := s.bound(ctx)
	defer cancel()

	var (
		out    *model.Reservation
		replay bool
	)
	err = s.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		st, err := tx.LockShowtime(ctx, req.ShowtimeID)
		if err != nil {
			return err
		}
		if err := req.bindShowtime(st); err != nil {
			return err
		}
		if req.IdempotencyKey != "" {
			prev, err := tx.FindByIdempotencyKey(ctx, req.UserID, req.IdempotencyKey)
			if err != nil {
				return err
			}
			if prev != nil {
				out, replay = prev, true
				return nil
			}
		}

		occupied, err := tx.OccupiedSeats(ctx, req.ShowtimeID)
		if err != nil {
			return err
		}
		if res := availability.Classify(occupied, keys); !res.Available {
			return &model.SeatConflictError{ShowtimeID: req.ShowtimeID, Seats: res.Unavailable}
		}

		r := req.reservation()
		token, err := s.tickets.Issue(ctx, TicketRequest{
			ShowtimeID:  r.ShowtimeID,
			UserID:      r.UserID,
			ViewingDate: r.ViewingDate,
			StartAt:     r.StartAt,
			Seats:       keys,
		})
		if err != nil {
			return fmt.Errorf("issue ticket: %w", err)
		}
		r.TicketToken = token

		if err := tx.InsertReservation(ctx, r); err != nil {
			return err
		}
		for i := range r.Seats {
			r.Seats[i].ReservationID = r.ID
		}
		if err := tx.InsertSeats(ctx, r.Seats); err != nil {
			return err
		}
		out = r
		return nil
	})
	if err != nil {
		return s.createFailed(ctx, req, keys, err)
	}
	if replay {
		s.log.InfoContext(ctx, "idempotent replay", "reservation_id", out.ID, "user_id", req.UserID)
		return out, nil
	}
	s.log.LogReservationCreated(ctx, out.ID, out.ShowtimeID, out.UserID, len(out.Seats), out.Total)
	s.publish(ctx, queue.EventReservationConfirmed, out, "")
	return out, nil
}

// createFailed turns a failed booking transaction into the error the
// caller sees.  A storage-level uniqueness violation means another
// booking won the race after our own check.
func (s *Service) createFailed(ctx context.Context, req CreateRequest, keys []model.SeatKey, err error) (*model.Reservation, error) {
	var ie *model.IntegrityError
	if !errors.As(err, &ie) {
		var sc *model.SeatConflictError
		if errors.As(err, &sc) {
			s.log.LogSeatConflict(ctx, req.ShowtimeID, labels(sc.Seats))
		}
		return nil, fmt.Errorf("create reservation: %w", err)
	}
	switch ie.Constraint {
	case model.ConstraintIdempotencyKey:
		prev, ferr := s.store.FindByIdempotencyKey(ctx, req.UserID, req.IdempotencyKey)
		if ferr == nil && prev != nil {
			return prev, nil
		}
		return nil, fmt.Errorf("create reservation: %w", err)
	default:
		conflict := s.conflictFromIntegrity(ctx, req.ShowtimeID, keys)
		s.log.LogSeatConflict(ctx, req.ShowtimeID, labels(conflict.Seats))
		return nil, fmt.Errorf("create reservation: %w", conflict)
	}
}

// conflictFromIntegrity names the seats that lost the race.  If the
// occupied set cannot be read, every requested seat is reported.
func (s *Service) conflictFromIntegrity(ctx context.Context, showtimeID uint64, keys []model.SeatKey) *model.SeatConflictError {
	occupied, err := s.store.OccupiedSeats(ctx, showtimeID)
	if err == nil {
		if res := availability.Classify(occupied, keys); len(res.Unavailable) > 0 {
			return &model.SeatConflictError{ShowtimeID: showtimeID, Seats: res.Unavailable}
		}
	}
	return &model.SeatConflictError{ShowtimeID: showtimeID, Seats: availability.SortKeys(append([]model.SeatKey(nil), keys...))}
}

// Update replaces the seats of a live reservation.  Seats the
// reservation already holds count as free for the new selection.
func (s *Service) Update(ctx context.Context, req UpdateRequest) (*model.Reservation, error) {
	keys, err := validateSeats(req.Seats)
	if err != nil {
		return nil, err
	}
	ctx, cancel := s.bound(ctx)
	defer cancel()

	var out *model.Reservation
	err = s.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		r, err := s.lockOwned(ctx, tx, req.ReservationID, req.UserID)
		if err != nil {
			return err
		}
		if r.Cancelled() {
			return model.NewValidationError("reservation", "is cancelled")
		}
		if _, err := tx.LockShowtime(ctx, r.ShowtimeID); err != nil {
			return err
		}
		occupied, err := tx.OccupiedSeats(ctx, r.ShowtimeID)
		if err != nil {
			return err
		}
		if res := availability.Classify(without(occupied, r.SeatKeys()), keys); !res.Available {
			return &model.SeatConflictError{ShowtimeID: r.ShowtimeID, Seats: res.Unavailable}
		}
		if err := tx.DeleteSeats(ctx, r.ID); err != nil {
			return err
		}
		r.Seats, r.Total = priceSeats(r.ID, r.ShowtimeID, r.BasePrice, req.Seats)
		if err := tx.InsertSeats(ctx, r.Seats); err != nil {
			return err
		}
		if err := tx.UpdateTotal(ctx, r.ID, r.Total); err != nil {
			return err
		}
		out = r
		return nil
	})
	if err != nil {
		var ie *model.IntegrityError
		if errors.As(err, &ie) && ie.Constraint != model.ConstraintIdempotencyKey {
			showtimeID := uint64(0)
			if cur, gerr := s.store.Get(ctx, req.ReservationID); gerr == nil {
				showtimeID = cur.ShowtimeID
			}
			err = s.conflictFromIntegrity(ctx, showtimeID, keys)
		}
		return nil, fmt.Errorf("update reservation %d: %w", req.ReservationID, err)
	}
	out.UpdatedAt = s.now().UTC()
	s.publish(ctx, queue.EventReservationUpdated, out, "")
	return out, nil
}

// Cancel releases a reservation's seats.  userID restricts the call to
// the owner; zero skips the ownership check.  Cancelling twice returns
// the reservation unchanged.
func (s *Service) Cancel(ctx context.Context, id, userID uint64) (*model.Reservation, error) {
	return s.release(ctx, id, userID, "cancelled by user", true)
}

// ExpirePending cancels pending reservations older than olderThan and
// reports how many were released.
func (s *Service) ExpirePending(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := s.now().Add(-olderThan)
	ids, err := s.store.PendingBefore(ctx, cutoff, expireBatch)
	if err != nil {
		return 0, fmt.Errorf("list expired reservations: %w", err)
	}
	var (
		released int
		errs     []error
	)
	for _, id := range ids {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		r, err := s.release(ctx, id, 0, "payment window expired", false)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if r.Cancelled() {
			released++
		}
	}
	return released, errors.Join(errs...)
}

func (s *Service) release(ctx context.Context, id, userID uint64, reason string, userInitiated bool) (*model.Reservation, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	var (
		out  *model.Reservation
		noop bool
	)
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		r, err := s.lockOwned(ctx, tx, id, userID)
		if err != nil {
			return err
		}
		if r.Cancelled() {
			out, noop = r, true
			return nil
		}
		if userInitiated && !s.now().Before(startsAt(r)) {
			return model.NewValidationError("reservation", "showtime has already started")
		}
		if !userInitiated && r.PaymentStatus != model.PaymentPending {
			out, noop = r, true
			return nil
		}
		if _, err := tx.LockShowtime(ctx, r.ShowtimeID); err != nil {
			return err
		}
		if err := tx.SetPaymentStatus(ctx, r.ID, model.PaymentCancelled); err != nil {
			return err
		}
		r.PaymentStatus = model.PaymentCancelled
		out = r
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("cancel reservation %d: %w", id, err)
	}
	if noop {
		return out, nil
	}
	s.log.LogReservationCancelled(ctx, out.ID, out.ShowtimeID, reason)
	s.publish(ctx, queue.EventReservationCancelled, out, reason)
	return out, nil
}

// ConfirmPayment moves a pending reservation to confirmed.  It is the
// landing point of the external payment callback.
func (s *Service) ConfirmPayment(ctx context.Context, id uint64) (*model.Reservation, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	var changed bool
	var out *model.Reservation
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		r, err := tx.LockReservation(ctx, id)
		if err != nil {
			return err
		}
		out = r
		switch r.PaymentStatus {
		case model.PaymentCancelled:
			return model.NewValidationError("reservation", "is cancelled")
		case model.PaymentConfirmed:
			return nil
		}
		if err := tx.SetPaymentStatus(ctx, id, model.PaymentConfirmed); err != nil {
			return err
		}
		r.PaymentStatus = model.PaymentConfirmed
		changed = true
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("confirm payment of reservation %d: %w", id, err)
	}
	if changed {
		s.publish(ctx, queue.EventPaymentConfirmed, out, "")
	}
	return out, nil
}

// CheckIn marks a confirmed reservation as used at the door.
func (s *Service) CheckIn(ctx context.Context, id uint64) (*model.Reservation, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	var out *model.Reservation
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		r, err := tx.LockReservation(ctx, id)
		if err != nil {
			return err
		}
		out = r
		if r.PaymentStatus != model.PaymentConfirmed {
			return model.NewValidationError("reservation", "payment is not confirmed")
		}
		if r.Checkin {
			return nil
		}
		if err := tx.SetCheckin(ctx, id); err != nil {
			return err
		}
		r.Checkin = true
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("check in reservation %d: %w", id, err)
	}
	return out, nil
}

// Get loads one reservation.  A non-zero userID hides reservations of
// other users behind NotFound.
func (s *Service) Get(ctx context.Context, id, userID uint64) (*model.Reservation, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	r, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if userID != 0 && r.UserID != userID {
		return nil, model.NewNotFoundError("reservation", id)
	}
	return r, nil
}

// ListByUser returns a user's reservations, newest first.
func (s *Service) ListByUser(ctx context.Context, userID uint64) ([]model.Reservation, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	return s.store.ListByUser(ctx, userID)
}

func (s *Service) lockOwned(ctx context.Context, tx Tx, id, userID uint64) (*model.Reservation, error) {
	r, err := tx.LockReservation(ctx, id)
	if err != nil {
		return nil, err
	}
	if userID != 0 && r.UserID != userID {
		return nil, model.NewNotFoundError("reservation", id)
	}
	return r, nil
}

func (s *Service) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}

// publish hands an event to the broker.  Failures are logged only; the
// reservation is already committed.
func (s *Service) publish(ctx context.Context, typ string, r *model.Reservation, reason string) {
	if s.events == nil {
		return
	}
	ev := queue.NewReservationEvent(typ, r, s.now())
	ev.Reason = reason
	if err := s.events.Publish(context.WithoutCancel(ctx), ev); err != nil {
		s.log.WithError(err).WarnContext(ctx, "publish reservation event failed",
			"type", typ, "reservation_id", r.ID)
	}
}

// startsAt is the instant the reservation's screening begins.
func startsAt(r *model.Reservation) time.Time {
	m, err := schedule.ParseClock(r.StartAt)
	if err != nil {
		m = 0
	}
	return r.ViewingDate.Add(time.Duration(m) * time.Minute)
}

func without(set, drop []model.SeatKey) []model.SeatKey {
	skip := make(map[model.SeatKey]struct{}, len(drop))
	for _, k := range drop {
		skip[k] = struct{}{}
	}
	out := make([]model.SeatKey, 0, len(set))
	for _, k := range set {
		if _, ok := skip[k]; !ok {
			out = append(out, k)
		}
	}
	return out
}

func labels(keys []model.SeatKey) []string {
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k.String())
	}
	return out
}
