package booking

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/careops/clinic-scheduling/internal/ledger"
	"github.com/careops/clinic-scheduling/internal/slot"
)

var (
	ErrAppointmentNotFound     = errors.New("appointment not found")
	ErrInvalidStatusTransition = errors.New("invalid appointment status transition")
	ErrReservationConflict     = errors.New("conflicting reservation detected at commit time")
	ErrInsufficientInventory   = errors.New("consumable inventory insufficient at commit time")
)

// Repository contains all booking DB interactions. Commit and CancelTx are
// transactional: either every row lands or none do.
type Repository interface {
	GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error)

	// Commit atomically persists the appointment and its reservations,
	// flips the slot to booked (inserting it first when newSlot is set),
	// and decrements consumable inventory. After inserting reservations
	// it re-checks for overlapping exclusive holds and aborts with
	// ErrReservationConflict if a concurrent booking won the race.
	Commit(ctx context.Context, appt *Appointment, reservations []ledger.Reservation, newSlot *slot.ProcedureSlot) error

	// CancelTx sets the appointment cancelled, appends the reason to its
	// notes, restores consumed inventory and reopens the slot.
	CancelTx(ctx context.Context, id uuid.UUID, reason string) (*Appointment, error)

	// UpdateStatus performs a compare-and-set transition from any of the
	// given statuses.
	UpdateStatus(ctx context.Context, id uuid.UUID, to AppointmentStatus, from ...AppointmentStatus) (*Appointment, error)

	AppendNotes(ctx context.Context, id uuid.UUID, notes string) error

	// ListReservingResource returns live appointments holding the
	// resource inside [start, end).
	ListReservingResource(ctx context.Context, resourceID uuid.UUID, start, end time.Time) ([]Appointment, error)

	// ReplaceReservationResource swaps the resource on one reservation row.
	ReplaceReservationResource(ctx context.Context, appointmentID, oldResourceID, newResourceID uuid.UUID) error

	InsertEvent(ctx context.Context, ev EventLog) error
}
