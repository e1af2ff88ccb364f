package availability

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/careops/clinic-scheduling/internal/catalog"
)

type WindowType string

const (
	WindowAvailable WindowType = "available"
	WindowBlocked   WindowType = "blocked"
)

type Frequency string

const (
	FreqDaily   Frequency = "daily"
	FreqWeekly  Frequency = "weekly"
	FreqMonthly Frequency = "monthly"
	FreqYearly  Frequency = "yearly"
)

var (
	ErrInvalidRecurrence = errors.New("invalid recurrence pattern")
)

// Recurrence describes how a declared window repeats. The end condition is
// either Until (fixed end date), Count (fixed number of occurrences), or
// neither (unbounded, capped at expansion time).
type Recurrence struct {
	Frequency  Frequency
	Interval   int // every N days/weeks/months/years
	DaysOfWeek []time.Weekday
	DayOfMonth int        // monthly only; 0 means "same day as the stored start"
	Until      *time.Time // inclusive end date
	Count      int        // 0 means unbounded
}

// Validate rejects malformed patterns before anything is written.
func (r *Recurrence) Validate() error {
	switch r.Frequency {
	case FreqDaily, FreqWeekly, FreqMonthly, FreqYearly:
	default:
		return ErrInvalidRecurrence
	}
	if r.Interval < 1 {
		return ErrInvalidRecurrence
	}
	if r.DayOfMonth < 0 || r.DayOfMonth > 31 {
		return ErrInvalidRecurrence
	}
	if r.Count < 0 {
		return ErrInvalidRecurrence
	}
	if r.Until != nil && r.Count > 0 {
		return ErrInvalidRecurrence
	}
	for _, d := range r.DaysOfWeek {
		if d < time.Sunday || d > time.Saturday {
			return ErrInvalidRecurrence
		}
	}
	return nil
}

// Availability is one declared available or blocked window for a resource,
// optionally recurring. Mode and max-concurrent overrides stay scoped to
// the window; they never mutate the resource's defaults.
type Availability struct {
	ID                    uuid.UUID
	ResourceID            uuid.UUID
	StartTime             time.Time
	EndTime               time.Time
	Type                  WindowType
	Recurrence            *Recurrence
	ModeOverride          *catalog.ReservationMode
	MaxConcurrentOverride *int
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// Window is one concrete expanded interval.
type Window struct {
	AvailabilityID        uuid.UUID
	Start                 time.Time
	End                   time.Time
	Type                  WindowType
	ModeOverride          *catalog.ReservationMode
	MaxConcurrentOverride *int
}
