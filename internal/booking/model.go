package booking

import (
	"time"

	"github.com/google/uuid"

	"github.com/careops/clinic-scheduling/internal/availability"
	"github.com/careops/clinic-scheduling/internal/slot"
)

type AppointmentStatus string

const (
	StatusPending   AppointmentStatus = "pending"
	StatusConfirmed AppointmentStatus = "confirmed"
	StatusCancelled AppointmentStatus = "cancelled"
	StatusCompleted AppointmentStatus = "completed"
	StatusNoShow    AppointmentStatus = "no_show"
)

// terminal statuses release their resource reservations
func (s AppointmentStatus) Terminal() bool {
	return s == StatusCancelled || s == StatusCompleted || s == StatusNoShow
}

type PreferenceLevel string

const (
	PreferenceRequired  PreferenceLevel = "required"
	PreferencePreferred PreferenceLevel = "preferred"
)

// ResourcePreference is a caller-supplied wish for who or what fills a
// role. Required preferences fail the booking when unavailable; preferred
// ones degrade to a warning.
type ResourcePreference struct {
	RoleID     uuid.UUID       `json:"role_id"`
	ResourceID uuid.UUID       `json:"resource_id"`
	Level      PreferenceLevel `json:"level"`
}

// Appointment is a committed booking of a procedure slot for a contact.
type Appointment struct {
	ID          uuid.UUID
	SlotID      uuid.UUID
	ContactID   uuid.UUID
	Status      AppointmentStatus
	Notes       string
	Preferences []ResourcePreference
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// BookRequest books either an existing available slot or an ad hoc window
// derived from a raw start time and the procedure's computed duration.
type BookRequest struct {
	SlotID      uuid.UUID // existing slot, or zero for ad hoc
	ProcedureID uuid.UUID // ad hoc only
	StartTime   time.Time // ad hoc only
	ContactID   uuid.UUID
	Notes       string
	Preferences []ResourcePreference
}

type Warning struct {
	Code       string    `json:"code"` // preference_unavailable, low_stock, out_of_stock
	ResourceID uuid.UUID `json:"resource_id"`
	Message    string    `json:"message"`
	Remaining  int       `json:"remaining,omitempty"`
}

// BookResult is the success shape of Book.
type BookResult struct {
	Appointment *Appointment
	Slot        *slot.ProcedureSlot
	Warnings    []Warning
}

// ConflictError is returned when a booking cannot proceed: no appointment
// or reservation rows were created, and the caller receives the unmet
// conflicts plus suggested alternatives.
type ConflictError struct {
	Conflicts    []availability.Conflict `json:"conflicts,omitempty"`
	Shortfalls   []slot.Shortfall        `json:"shortfalls,omitempty"`
	Alternatives []slot.Candidate        `json:"suggested_alternatives,omitempty"`
}

func (e *ConflictError) Error() string {
	return "booking conflict: required resources unavailable"
}

// CoverageItem describes one appointment affected by a resource going
// offline and whether it can be reassigned automatically.
type CoverageItem struct {
	AppointmentID    uuid.UUID   `json:"appointment_id"`
	RoleID           uuid.UUID   `json:"role_id"`
	ReservedStart    time.Time   `json:"reserved_start"`
	ReservedEnd      time.Time   `json:"reserved_end"`
	Alternatives     []uuid.UUID `json:"alternatives"`
	AutoReassignable bool        `json:"auto_reassignable"`
}

// EventLog mirrors the append-only audit rows written on state changes.
type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}

const (
	EventBooked      = "APPOINTMENT_BOOKED"
	EventConfirmed   = "APPOINTMENT_CONFIRMED"
	EventCancelled   = "APPOINTMENT_CANCELLED"
	EventCompleted   = "APPOINTMENT_COMPLETED"
	EventNoShow      = "APPOINTMENT_NO_SHOW"
	EventRescheduled = "APPOINTMENT_RESCHEDULED"
	EventReassigned  = "RESOURCE_REASSIGNED"
)
