package slot

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrSlotNotFound = errors.New("slot not found")

// Repository contains slot DB interactions.
type Repository interface {
	Get(ctx context.Context, id uuid.UUID) (*ProcedureSlot, error)
	ListByProcedureInRange(ctx context.Context, procedureID uuid.UUID, start, end time.Time) ([]ProcedureSlot, error)
	// ExistsAtStart dedupes materialization by exact start timestamp.
	ExistsAtStart(ctx context.Context, procedureID uuid.UUID, start time.Time) (bool, error)
	Create(ctx context.Context, s *ProcedureSlot) error
	// UpdateStatus performs a compare-and-set transition.
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to SlotStatus) (*ProcedureSlot, error)
	// DeleteExpiredAuto removes auto-generated, still-available slots whose
	// end time has passed, returning how many were deleted.
	DeleteExpiredAuto(ctx context.Context, now time.Time) (int, error)
}
