package ledger

import (
	"time"

	"github.com/google/uuid"

	"github.com/careops/clinic-scheduling/internal/catalog"
)

// Reservation is one committed resource hold backing an appointment.
// Rows are written inside the booking transaction and read here.
type Reservation struct {
	ID               uuid.UUID
	AppointmentID    uuid.UUID
	ResourceID       uuid.UUID
	RoleID           uuid.UUID
	ReservedStart    time.Time
	ReservedEnd      time.Time
	Mode             catalog.ReservationMode
	QuantityConsumed int // consumable units taken from inventory
	CreatedAt        time.Time
}

// Overlaps reports whether the reservation intersects [start, end).
// Touching boundaries do not count as overlap.
func (r *Reservation) Overlaps(start, end time.Time) bool {
	return r.ReservedStart.Before(end) && r.ReservedEnd.After(start)
}
