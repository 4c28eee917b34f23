package ticket

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/cinema-booking-engine/internal/reservation"
)

func TestUUIDIssuer_Issue(t *testing.T) {
	var issuer reservation.TicketIssuer = UUIDIssuer{}

	a, err := issuer.Issue(context.Background(), reservation.TicketRequest{ShowtimeID: 1})
	require.NoError(t, err)
	b, err := issuer.Issue(context.Background(), reservation.TicketRequest{ShowtimeID: 1})
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
	require.True(t, strings.HasPrefix(a, Prefix))
	_, err = uuid.Parse(strings.TrimPrefix(a, Prefix))
	assert.NoError(t, err)
}

func TestUUIDIssuer_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := UUIDIssuer{}.Issue(ctx, reservation.TicketRequest{})

	assert.ErrorIs(t, err, context.Canceled)
}
