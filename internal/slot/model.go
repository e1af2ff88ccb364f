package slot

import (
	"time"

	"github.com/google/uuid"
)

type SlotStatus string

const (
	StatusAvailable SlotStatus = "available"
	StatusBooked    SlotStatus = "booked"
	StatusExpired   SlotStatus = "expired"
)

type GenerationType string

const (
	GenerationAuto   GenerationType = "auto"
	GenerationManual GenerationType = "manual"
)

// ProcedureSlot is a candidate or committed bookable window for a procedure.
type ProcedureSlot struct {
	ID          uuid.UUID
	ProcedureID uuid.UUID
	StartTime   time.Time
	EndTime     time.Time
	Status      SlotStatus
	Generation  GenerationType
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// RoleAssignment is the chosen resource set for one role requirement
// inside a candidate slot.
type RoleAssignment struct {
	RoleID      uuid.UUID   `json:"role_id"`
	ResourceIDs []uuid.UUID `json:"resource_ids"`
}

// Candidate is a not-yet-persisted bookable window together with one valid
// resource combination.
type Candidate struct {
	ProcedureID uuid.UUID        `json:"procedure_id"`
	StartTime   time.Time        `json:"start_time"`
	EndTime     time.Time        `json:"end_time"`
	Assignments []RoleAssignment `json:"assignments"`
}

// NotBookableError rejects operations on a slot that is not available,
// carrying the slot's current status as the reason.
type NotBookableError struct {
	Status SlotStatus
}

func (e *NotBookableError) Error() string {
	return "slot is not bookable: status is " + string(e.Status)
}

func ErrSlotNotBookable(status SlotStatus) error {
	return &NotBookableError{Status: status}
}

// Shortfall reports a role that can no longer muster its minimum quantity.
type Shortfall struct {
	RoleID    uuid.UUID `json:"role_id"`
	Needed    int       `json:"needed"`
	Available int       `json:"available"`
}
