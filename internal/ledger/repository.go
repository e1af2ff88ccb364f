package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrReservationNotFound = errors.New("reservation not found")

// Repository is the read side of the reservation ledger. Only reservations
// whose appointment is still live (pending or confirmed) are returned;
// cancelled and terminal appointments release their holds.
type Repository interface {
	// ListForResourceInRange returns live reservations for the resource
	// overlapping [start, end), ordered by reserved_start.
	ListForResourceInRange(ctx context.Context, resourceID uuid.UUID, start, end time.Time) ([]Reservation, error)

	ListByAppointment(ctx context.Context, appointmentID uuid.UUID) ([]Reservation, error)

	// ReservedQuantity sums consumable units held by live reservations
	// ending after asOf. Kept as a query, not a counter, so it can never
	// go stale.
	ReservedQuantity(ctx context.Context, resourceID uuid.UUID, asOf time.Time) (int, error)
}
