// Package scheduler runs the periodic background jobs of the server.
package scheduler

import (
	"context"
	"time"

	"github.com/iliyamo/cinema-booking-engine/internal/logger"
)

// Expirer cancels pending reservations older than a cutoff and reports
// how many it released.
type Expirer interface {
	ExpirePending(ctx context.Context, olderThan time.Duration) (int, error)
}

// Sweeper releases seats held by reservations whose payment never
// arrived.
type Sweeper struct {
	expirer  Expirer
	ttl      time.Duration
	interval time.Duration
	log      *logger.Logger
}

// NewSweeper sweeps every interval for reservations pending longer than
// ttl.
func NewSweeper(expirer Expirer, ttl, interval time.Duration, log *logger.Logger) *Sweeper {
	if log == nil {
		log = logger.Nop()
	}
	return &Sweeper{expirer: expirer, ttl: ttl, interval: interval, log: log.Component("sweeper")}
}

// Run blocks until ctx is done.  A non-positive interval or ttl disables
// the sweeper.
func (s *Sweeper) Run(ctx context.Context) {
	if s.interval <= 0 || s.ttl <= 0 {
		s.log.InfoContext(ctx, "pending reservation sweeper disabled")
		return
	}
	t := time.NewTicker(s.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.SweepOnce(ctx)
		}
	}
}

// SweepOnce runs a single pass.
func (s *Sweeper) SweepOnce(ctx context.Context) int {
	n, err := s.expirer.ExpirePending(ctx, s.ttl)
	if err != nil {
		s.log.WarnContext(ctx, "sweep failed", "error", err, "released", n)
	} else if n > 0 {
		s.log.InfoContext(ctx, "expired pending reservations", "released", n)
	}
	return n
}
