package availability

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrAvailabilityNotFound = errors.New("availability record not found")

// Repository contains availability DB interactions. ListForResource must
// include recurring records that started up to one year before the query
// range, since those can still produce in-range occurrences.
type Repository interface {
	Get(ctx context.Context, id uuid.UUID) (*Availability, error)
	ListForResource(ctx context.Context, resourceID uuid.UUID, rangeStart, rangeEnd time.Time) ([]Availability, error)
	ListForResources(ctx context.Context, resourceIDs []uuid.UUID, rangeStart, rangeEnd time.Time) (map[uuid.UUID][]Availability, error)
	Create(ctx context.Context, a *Availability) error
	Delete(ctx context.Context, id uuid.UUID) error
}
