// Package ticket issues the opaque token printed on a reservation.
package ticket

import (
	"context"

	"github.com/google/uuid"

	"github.com/iliyamo/cinema-booking-engine/internal/reservation"
)

// Prefix marks tokens produced by UUIDIssuer.
const Prefix = "TKT-"

// UUIDIssuer returns "TKT-" followed by a random UUID.  It never fails
// unless the system entropy source does.
type UUIDIssuer struct{}

// Issue implements reservation.TicketIssuer.
func (UUIDIssuer) Issue(ctx context.Context, _ reservation.TicketRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	id, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return Prefix + id.String(), nil
}
